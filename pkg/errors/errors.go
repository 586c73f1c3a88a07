package errors

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Store connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "MDW1001"
	ErrCodeConnectionTimeout    ErrorCode = "MDW1002"
	ErrCodeAuthenticationFailed ErrorCode = "MDW1003"
	ErrCodeUnsupportedDriver    ErrorCode = "MDW1004"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound     ErrorCode = "MDW2001"
	ErrCodeConfigInvalid      ErrorCode = "MDW2002"
	ErrCodeConfigMissing      ErrorCode = "MDW2003"
	ErrCodeCredentialsInvalid ErrorCode = "MDW2004"
	ErrCodeMissingCredentials ErrorCode = "MDW2005"

	// Source / ingest errors (3xxx)
	ErrCodeSourceNotFound   ErrorCode = "MDW3001"
	ErrCodeSourceUnreadable ErrorCode = "MDW3002"
	ErrCodeSourceHeader     ErrorCode = "MDW3003"

	// Store SQL / publish errors (4xxx)
	ErrCodeSQLExecution   ErrorCode = "MDW4001"
	ErrCodeSQLTransaction ErrorCode = "MDW4002"
	ErrCodeSQLTimeout     ErrorCode = "MDW4003"
	ErrCodeSQLPermission  ErrorCode = "MDW4004"
	ErrCodeMigration      ErrorCode = "MDW4005"
	ErrCodePublishFailed  ErrorCode = "MDW4006"

	// Validation errors (6xxx)
	ErrCodeValidationFailed ErrorCode = "MDW6001"
	ErrCodeInvalidInput     ErrorCode = "MDW6002"

	// Snapshot errors (8xxx)
	ErrCodeSnapshotNotFound ErrorCode = "MDW8001"
	ErrCodeNoSnapshot       ErrorCode = "MDW8002"
	ErrCodeActivateFailed   ErrorCode = "MDW8003"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "MDW9001"
	ErrCodeTimeout            ErrorCode = "MDW9002"
	ErrCodeResourceExhausted  ErrorCode = "MDW9003"
	ErrCodeRunInProgress      ErrorCode = "MDW9004"
	ErrCodeStageFailed        ErrorCode = "MDW9005"
	ErrCodeMaxRetriesExceeded ErrorCode = "MDW9007"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // Run aborted, nothing published
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, but process continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Context:     make(map[string]interface{}),
		Stack:       captureStack(),
		Timestamp:   time.Now(),
		Recoverable: false,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// If wrapping another AppError, inherit its context
	var ae *AppError
	if errors.As(err, &ae) {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a store connection error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSeverity(SeverityError).
		WithSuggestions(
			"Check the store DSN and network connectivity",
			"Verify the warehouse account and credentials",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'medallion run --help' for the supported flags",
		)
}

// SQLError creates an SQL execution error
func SQLError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSQLExecution, message).
		WithContext("query", truncateString(query, 200))

	lower := strings.ToLower(message + " " + errorText(cause))
	if strings.Contains(lower, "permission") || strings.Contains(lower, "access denied") {
		err.Code = ErrCodeSQLPermission
		_ = err.WithSuggestions(
			"Check the role has INSERT/UPDATE privileges on the medallion tables",
		)
	} else if strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") {
		err.Code = ErrCodeSQLTimeout
		_ = err.WithSuggestions(
			"Increase pipeline.stage_timeout",
			"Use a larger warehouse for the publish step",
		)
	}

	return err
}

// StageError wraps a failure of a named pipeline stage
func StageError(stage string, elapsed time.Duration, cause error) *AppError {
	code := ErrCodeStageFailed
	if errors.Is(cause, context.DeadlineExceeded) {
		code = ErrCodeTimeout
	}
	if inner := GetErrorCode(cause); inner != ErrCodeInternal {
		code = inner
	}
	return Wrap(cause, code, fmt.Sprintf("stage %s failed", stage)).
		WithSeverity(SeverityCritical).
		WithContext("stage", stage).
		WithContext("elapsed", elapsed.String())
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning).
		AsRecoverable()
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// GetContext returns a context value recorded anywhere in the error chain
func GetContext(err error, key string) (interface{}, bool) {
	var appErr *AppError
	for errors.As(err, &appErr) {
		if v, ok := appErr.Context[key]; ok {
			return v, true
		}
		err = appErr.Cause
	}
	return nil, false
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
