package backend

import (
	"errors"
	"fmt"
)

// TransportError means the request never produced an HTTP response
// (dial failure, timeout, cancellation, unreadable body).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectedError is a non-2xx answer. Body is the response text, verbatim.
type RejectedError struct {
	Op     string
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// ValidationError rejects input before any request is issued.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s must not be empty", e.Field)
}

// StatusMessage turns err into the text shown on the status line.
// fallback is used when the error carries no message of its own.
func StatusMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// IsValidation reports whether err was raised before reaching the network.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
