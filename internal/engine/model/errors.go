package model

import "fmt"

// ErrorCode is one of the taxonomy codes from the error handling design.
type ErrorCode string

const (
	ErrGeneric             ErrorCode = "E300"
	ErrTimeoutOrCancel     ErrorCode = "E301"
	ErrEmptyOutput         ErrorCode = "E302"
	ErrInputValidation     ErrorCode = "E303"
	ErrEncoderRuntime      ErrorCode = "E304"
	ErrNoProviderAvailable ErrorCode = "E305"
	ErrAuthFailure         ErrorCode = "E306"
	ErrOfflineViolation    ErrorCode = "E307"
	ErrRateLimit           ErrorCode = "E308"
	ErrOutputInvalid       ErrorCode = "E309"
	ErrContentPolicy       ErrorCode = "E310"
	ErrInsufficientResources ErrorCode = "E311"
)

// retryableCodes lists the codes that consume retry budget when they occur
// at a provider boundary, per §7: auth, policy, and input validation are
// never retryable.
var retryableCodes = map[ErrorCode]bool{
	ErrGeneric:         true,
	ErrTimeoutOrCancel: true,
	ErrEmptyOutput:     true,
	ErrRateLimit:       true,
	ErrOutputInvalid:   true,
}

// EngineError is the single typed error used across the engine so callers
// can classify failures with errors.As without inspecting strings. It wraps
// an optional underlying cause.
type EngineError struct {
	Code             ErrorCode
	ProviderName     string
	Message          string
	StderrSnippet    string
	SuggestedActions []string
	Cause            error
}

func (e *EngineError) Error() string {
	if e.ProviderName != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.ProviderName, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// Retryable reports whether this error kind consumes retry budget rather
// than advancing the provider chain immediately.
func (e *EngineError) Retryable() bool {
	return retryableCodes[e.Code]
}

// NewEngineError builds an EngineError, wrapping cause if non-nil.
func NewEngineError(code ErrorCode, provider, message string, cause error) *EngineError {
	return &EngineError{Code: code, ProviderName: provider, Message: message, Cause: cause}
}
