package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the prediction core. Handlers translate these to
// RFC 7807 responses; everything else is reported as an internal error.
var (
	// ErrModelNotLoaded indicates no active model instance exists yet.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrInvalidModelType indicates a model family outside the closed enum.
	ErrInvalidModelType = errors.New("invalid model type")

	// ErrUnsupportedFamily indicates a tuning request for an unknown family.
	ErrUnsupportedFamily = errors.New("unsupported model family")

	// ErrDependencyUnavailable indicates an optional model implementation is
	// not compiled into this runtime.
	ErrDependencyUnavailable = errors.New("optional model dependency unavailable")

	// ErrAttributionUnavailable indicates the attribution capability is absent
	// (no background sample has been registered).
	ErrAttributionUnavailable = errors.New("feature attribution unavailable")

	// ErrNotCalibrated indicates PredictInterval was called before Calibrate.
	ErrNotCalibrated = errors.New("conformal predictor not calibrated")

	// ErrTrainingInProgress indicates a concurrent training request was
	// rejected; at most one training operation runs at a time.
	ErrTrainingInProgress = errors.New("training already in progress")
)

// ValidationError reports a malformed field or request item. In batch
// contexts Index identifies the offending item; it is -1 otherwise.
type ValidationError struct {
	Field   string `json:"field"`
	Index   int    `json:"index,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("validation failed for %s at index %d: %s", e.Field, e.Index, e.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewValidationError creates a request-level validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Message: message}
}

// NewItemValidationError creates a per-item validation error for batch input.
func NewItemValidationError(index int, field, message string) *ValidationError {
	return &ValidationError{Field: field, Index: index, Message: message}
}

// TrainingError wraps a failure inside a model fit. The wrapped cause is
// surfaced verbatim in development and sanitized in production responses.
type TrainingError struct {
	Family string
	Cause  error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training failed for family %q: %v", e.Family, e.Cause)
}

func (e *TrainingError) Unwrap() error { return e.Cause }

// NewTrainingError wraps cause as a training failure for the given family.
func NewTrainingError(family string, cause error) *TrainingError {
	return &TrainingError{Family: family, Cause: cause}
}

// Is and As re-export the standard helpers so callers of this package do
// not need a second errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTraining reports whether err is a TrainingError.
func IsTraining(err error) bool {
	var te *TrainingError
	return errors.As(err, &te)
}
