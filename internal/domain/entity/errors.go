package entity

import (
	"errors"
	"fmt"
)

var (
	ErrGateRejected       = errors.New("input rejected by content gate")
	ErrEmptySequence      = errors.New("no frames could be decoded")
	ErrModeInputMismatch  = errors.New("analysis mode incompatible with input")
	ErrDimensionMismatch  = errors.New("tensor dimension mismatch")
	ErrServiceUnavailable = errors.New("inference service unavailable")
	ErrInferenceFailure   = errors.New("model inference failed")
	ErrInvalidRequest     = errors.New("invalid analysis request")
)

// AnalysisError is the failure surface of the pipeline. Kind is one of the sentinel
// errors above; Reason is the message shown to the clinician.
type AnalysisError struct {
	Kind   error
	Reason string
	Err    error
}

func NewAnalysisError(kind error, reason string, err error) *AnalysisError {
	return &AnalysisError{Kind: kind, Reason: reason, Err: err}
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

func (e *AnalysisError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsUserError reports whether err was caused by the submitted input rather than by the
// service, i.e. the caller should fix the upload and resubmit.
func IsUserError(err error) bool {
	return errors.Is(err, ErrGateRejected) ||
		errors.Is(err, ErrEmptySequence) ||
		errors.Is(err, ErrModeInputMismatch) ||
		errors.Is(err, ErrInvalidRequest)
}

// ReasonOf returns the clinician-facing reason carried by err, or its message.
func ReasonOf(err error) string {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
