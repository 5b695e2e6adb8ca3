package provider

import (
	"context"
)

// VoiceFlow starts an outbound call flow that asks an agency to confirm pickup.
type VoiceFlow interface {
	StartExecution(ctx context.Context, req FlowRequest) (*FlowExecution, error)
}

// FlowRequest is one outbound call. Parameters are handed to the flow as its
// trigger context.
type FlowRequest struct {
	To         string
	Parameters FlowParameters
}

// FlowParameters are the variables the confirmation flow reads.
type FlowParameters struct {
	TransferID   string `json:"transfer_id"`
	PatientName  string `json:"patient_name"`
	AgencyName   string `json:"agency_name"`
	DeadlineTime string `json:"deadline_time"`
	WebhookURL   string `json:"webhook_url"`
}

// FlowExecution is the provider handle of a started call.
type FlowExecution struct {
	SID        string
	Status     string
	StatusCode int
}

// UnconfiguredFlow rejects every call. It stands in when no voice provider
// credentials are set so escalations are still claimed, recorded and flagged.
type UnconfiguredFlow struct{}

func (UnconfiguredFlow) StartExecution(context.Context, FlowRequest) (*FlowExecution, error) {
	return nil, &ProviderError{Message: "voice flow is not configured"}
}
