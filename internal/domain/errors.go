package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrNoPhone means a transfer has no reachable phone for escalation.
	ErrNoPhone = errors.New("no escalation phone")

	// ErrIdentityAmbiguous is logged when more than one contact matches a phone.
	// It is never returned to callers of the resolver.
	ErrIdentityAmbiguous = errors.New("identity ambiguous")
)

// AuthError is a hard reject of an inbound request with a bad or missing signature.
type AuthError struct {
	Provider Provider
	Reason   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: provider=%s: %s", e.Provider, e.Reason)
}

// RateLimitedError is a temporary reject; RetryAfter tells the caller when to come back.
type RateLimitedError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: key=%s retry_after=%s", e.Key, e.RetryAfter)
}

// ParseError is a payload that could not be mapped to any known event shape.
type ParseError struct {
	Provider Provider
	Reason   string
	Cause    error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error: provider=%s: %s: %v", e.Provider, e.Reason, e.Cause)
	}
	return fmt.Sprintf("parse error: provider=%s: %s", e.Provider, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ItemErrors holds the items of a batch payload that could not be parsed.
// The remaining items of the same payload are still delivered.
type ItemErrors []*ParseError

func (e ItemErrors) Error() string {
	switch len(e) {
	case 0:
		return "no item errors"
	case 1:
		return e[0].Error()
	}
	return fmt.Sprintf("%d items failed to parse, first: %v", len(e), e[0])
}

func (e ItemErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, item := range e {
		errs[i] = item
	}
	return errs
}

// PersistenceError wraps a store failure with the operation that failed.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// DispatchError is an outbound escalation call failure for one transfer.
type DispatchError struct {
	TransferID string
	Cause      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch error: transfer=%s: %v", e.TransferID, e.Cause)
}

func (e *DispatchError) Unwrap() error { return e.Cause }
