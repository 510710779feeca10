package core

import (
	"errors"
	"fmt"
)

// Validation reasons reported in skip summaries.
const (
	ReasonUnknownCategory = "unknown category"
	ReasonRequired        = "required"
	ReasonInvalidTime     = "invalid timestamp"
	ReasonInvalidDate     = "invalid date"
	ReasonInvalidNumber   = "invalid number"
	ReasonNegative        = "negative value"
	ReasonNotWhole        = "not a whole number"
	ReasonTooLarge        = "value too large"
)

// ValidationError is a row-scoped failure. The row is skipped and the run continues.
type ValidationError struct {
	Row    int
	Field  string
	Reason string
	Value  string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg = fmt.Sprintf("%s (%q)", msg, e.Value)
	}
	if e.Row > 0 {
		msg = fmt.Sprintf("row %d: %s", e.Row, msg)
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IOError is a file-scoped failure: the source is missing, unreadable or not in the expected shape.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// StorageError is a batch-scoped failure. The batch was rolled back.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// InsufficientDataError means no forecast can be fitted.
type InsufficientDataError struct {
	Points int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d distinct time points, need at least %d", e.Points, e.Need)
}

// Error kinds used by logs, metrics and HTTP status mapping.
const (
	KindValidation       = "validation"
	KindIO               = "io"
	KindStorage          = "storage"
	KindInsufficientData = "insufficient_data"
	KindInternal         = "internal"
)

// KindOf classifies err into one of the Kind constants.
func KindOf(err error) string {
	var (
		ve *ValidationError
		ie *IOError
		se *StorageError
		de *InsufficientDataError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ie):
		return KindIO
	case errors.As(err, &se):
		return KindStorage
	case errors.As(err, &de):
		return KindInsufficientData
	default:
		return KindInternal
	}
}
