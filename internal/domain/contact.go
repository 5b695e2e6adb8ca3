package domain

import "time"

// Contact is a CRM lead, the identity anchor for a phone number.
type Contact struct {
	ID                   string
	Name                 string
	Phone                string
	Email                *string
	IsUnregistered       bool
	FirstMessageAnswered bool
	StageID              *string
	PipelineID           *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Placement is where newly discovered contacts land in the CRM pipeline.
type Placement struct {
	StageID    string
	PipelineID string
}
