package service

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"go.uber.org/zap"
)

const UnauthorizedTriggerError = "Unauthorized access attempt"

// JobLogger writes the CronRunLog audit trail of scheduled jobs.
type JobLogger struct {
	logs   repository.CronLogRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewJobLogger(logs repository.CronLogRepository, logger *zap.Logger) (*JobLogger, error) {
	if logs == nil {
		return nil, fmt.Errorf("cron log repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &JobLogger{logs: logs, logger: logger, now: time.Now}, nil
}

// Start records a started row and moves it straight to running.
func (j *JobLogger) Start(ctx context.Context, jobName, jobType string, source domain.TriggerSource) (*domain.CronRunLog, error) {
	run := &domain.CronRunLog{
		JobName:     jobName,
		JobType:     jobType,
		TriggeredBy: source.Name,
		Status:      domain.CronRunStarted,
		StartedAt:   j.now().UTC(),
		Metadata:    maps.Clone(source.Metadata),
	}
	if err := j.logs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create cron run log: %w", err)
	}

	run.Status = domain.CronRunRunning
	if err := j.logs.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to mark cron run %s running: %w", run.ID, err)
	}
	return run, nil
}

func (j *JobLogger) Complete(ctx context.Context, run *domain.CronRunLog, counts domain.RunCounts, metadata map[string]any) error {
	return j.finish(ctx, run, domain.CronRunCompleted, counts, metadata, nil)
}

func (j *JobLogger) Fail(ctx context.Context, run *domain.CronRunLog, counts domain.RunCounts, metadata map[string]any, cause error) error {
	return j.finish(ctx, run, domain.CronRunFailed, counts, metadata, cause)
}

// Unauthorized records a rejected trigger attempt as a failed run.
func (j *JobLogger) Unauthorized(ctx context.Context, jobName, jobType string, source domain.TriggerSource) error {
	now := j.now().UTC()
	message := UnauthorizedTriggerError
	var zero int64
	run := &domain.CronRunLog{
		JobName:      jobName,
		JobType:      jobType,
		TriggeredBy:  source.Name,
		Status:       domain.CronRunFailed,
		StartedAt:    now,
		CompletedAt:  &now,
		DurationMs:   &zero,
		ErrorMessage: &message,
		Metadata:     maps.Clone(source.Metadata),
	}
	if err := j.logs.Create(ctx, run); err != nil {
		return fmt.Errorf("failed to record unauthorized trigger: %w", err)
	}

	j.logger.Warn("unauthorized job trigger rejected",
		zap.String("job", jobName),
		zap.String("triggeredBy", source.Name),
		zap.String("cronLogId", run.ID),
	)
	return nil
}

func (j *JobLogger) finish(
	ctx context.Context,
	run *domain.CronRunLog,
	status domain.CronRunStatus,
	counts domain.RunCounts,
	metadata map[string]any,
	cause error,
) error {
	if run == nil {
		return fmt.Errorf("%w: cron run is required", domain.ErrValidation)
	}

	completedAt := j.now().UTC()
	duration := completedAt.Sub(run.StartedAt).Milliseconds()

	run.Status = status
	run.CompletedAt = &completedAt
	run.DurationMs = &duration
	run.ItemsProcessed = counts.Processed
	run.ItemsSucceeded = counts.Succeeded
	run.ItemsFailed = counts.Failed
	if run.Metadata == nil {
		run.Metadata = make(map[string]any, len(metadata)+1)
	}
	maps.Copy(run.Metadata, metadata)
	run.Metadata["items_skipped"] = counts.Skipped
	if cause != nil {
		message := cause.Error()
		run.ErrorMessage = &message
	}

	if err := j.logs.Update(ctx, run); err != nil {
		return fmt.Errorf("failed to finalize cron run %s: %w", run.ID, err)
	}
	return nil
}
