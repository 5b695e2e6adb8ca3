package domain

import "time"

// CronRunStatus is the lifecycle of a scheduler invocation.
type CronRunStatus string

const (
	CronRunStarted   CronRunStatus = "started"
	CronRunRunning   CronRunStatus = "running"
	CronRunCompleted CronRunStatus = "completed"
	CronRunFailed    CronRunStatus = "failed"
)

const (
	DeadlineJobName = "deadline-checker"
	DeadlineJobType = "deadline_check"
)

// TriggerSource describes who started a scan.
type TriggerSource struct {
	Name     string
	Metadata map[string]any
}

// CronRunLog is the audit row for one scheduler invocation.
type CronRunLog struct {
	ID             string
	JobName        string
	JobType        string
	TriggeredBy    string
	Status         CronRunStatus
	StartedAt      time.Time
	CompletedAt    *time.Time
	DurationMs     *int64
	ItemsProcessed int
	ItemsSucceeded int
	ItemsFailed    int
	ErrorMessage   *string
	Metadata       map[string]any
}

// RunCounts are the aggregate results written when a run finishes.
type RunCounts struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
}
