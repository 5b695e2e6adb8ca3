package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ProviderError is a voice flow API failure.
type ProviderError struct {
	StatusCode int
	// Code is the provider error code from the response body, if any.
	Code      int
	Message   string
	Transient bool
	Cause     error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("provider error")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": status=%d", e.StatusCode)
	}
	if e.Code > 0 {
		fmt.Fprintf(&b, ": code=%d", e.Code)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": " + msg)
	}
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Failure is the coarse class of a failed escalation call, used for log
// fields and audit rows.
type Failure string

const (
	FailureNone      Failure = ""
	FailureTimeout   Failure = "timeout"
	FailureTransient Failure = "transient"
	FailurePermanent Failure = "permanent"
	FailureCanceled  Failure = "canceled"
)

// Classify maps a StartExecution error to its Failure class. A timed out call
// may still have rung the agency; it counts as attempted.
func Classify(err error) Failure {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.Transient {
		return FailureTransient
	}
	return FailurePermanent
}

// IsTransient reports whether the call may succeed if placed again.
func IsTransient(err error) bool {
	switch Classify(err) {
	case FailureTimeout, FailureTransient:
		return true
	default:
		return false
	}
}

func IsTimeout(err error) bool {
	return Classify(err) == FailureTimeout
}
