package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnsupportedVersion = errors.New("unsupported export version")
	ErrSessionClosed      = errors.New("session closed")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransientError marks a failure caused by connectivity or store
// availability. Flushes retry these with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

type RateLimitError struct {
	Quota      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("hourly quota of %d operations exceeded, retry in %s", e.Quota, e.RetryAfter.Round(time.Second))
}

type SchemaProbeError struct {
	UserID string
	Err    error
}

func (e *SchemaProbeError) Error() string {
	return fmt.Sprintf("probe schema for user %s: %v", e.UserID, e.Err)
}

func (e *SchemaProbeError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
