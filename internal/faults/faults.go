// Package faults defines the error taxonomy shared by the pipeline stages.
//
// Each class is a sentinel that concrete errors are marked with, so callers
// classify failures with errors.Is regardless of how deeply they were wrapped.
package faults

import (
	"github.com/cockroachdb/errors"
)

// Sentinels for the pipeline error classes.
var (
	// ErrValidation rejects bad gender/division/date input before any network call.
	ErrValidation = errors.New("validation error")
	// ErrTransientFetch is a retryable HTTP or network condition.
	ErrTransientFetch = errors.New("transient fetch error")
	// ErrNotFound signals that the feed has no data for a slot. It is not a failure.
	ErrNotFound = errors.New("not found")
	// ErrMalformedPayload marks a single record (or message) that could not be parsed.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrStore wraps persistent store failures.
	ErrStore = errors.New("store error")
)

// Validationf builds an error marked as ErrValidation.
func Validationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// Transient marks err as a retryable fetch failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrTransientFetch)
}

// Malformedf builds an error marked as ErrMalformedPayload.
func Malformedf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformedPayload)
}

// Malformed marks err as a malformed payload.
func Malformed(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrMalformedPayload)
}

// Store marks err as a store failure, prefixing it with the failed operation.
func Store(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, op), ErrStore)
}

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsTransient reports whether err belongs to the transient fetch class.
func IsTransient(err error) bool { return errors.Is(err, ErrTransientFetch) }

// IsMalformed reports whether err belongs to the malformed payload class.
func IsMalformed(err error) bool { return errors.Is(err, ErrMalformedPayload) }

// IsStore reports whether err belongs to the store class.
func IsStore(err error) bool { return errors.Is(err, ErrStore) }
