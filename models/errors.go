package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeConfig       = "CONFIG_ERROR"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeTimeout      = "RENDER_TIMEOUT"
	ErrCodeReadiness    = "READINESS_TIMEOUT"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeInteraction  = "INTERACTION_FAILED"
	ErrCodeExtraction   = "EXTRACTION_MISMATCH"

	// API-facing codes.
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeRunInProgress = "RUN_IN_PROGRESS"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// recoverableCodes are the transient render failures worth another attempt.
var recoverableCodes = map[string]struct{}{
	ErrCodeNavigation:   {},
	ErrCodeTimeout:      {},
	ErrCodeReadiness:    {},
	ErrCodeBrowserCrash: {},
	ErrCodeInteraction:  {},
}

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// NewConfigError is shorthand for a CONFIG_ERROR without a wrapped cause.
func NewConfigError(format string, args ...any) *ScrapeError {
	return &ScrapeError{Code: ErrCodeConfig, Message: fmt.Sprintf(format, args...)}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the outermost ScrapeError in err's chain,
// or "" if there is none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsRecoverable reports whether err is a transient render failure
// (navigation, timeouts, browser start, a failed interaction step) that
// a fresh attempt may fix.
func IsRecoverable(err error) bool {
	_, ok := recoverableCodes[CodeOf(err)]
	return ok
}

// IsConfigError reports whether err is a CONFIG_ERROR.
func IsConfigError(err error) bool {
	return CodeOf(err) == ErrCodeConfig
}
