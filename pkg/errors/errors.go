// Package errors provides structured error handling for FormFlow.
// It implements errors with codes, context, and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Data-integrity errors (1xx)
	CodeMissingIdentity Code = "E101"
	CodeUnknownModule   Code = "E102"
	CodeInvalidEvent    Code = "E103"
	CodeMalformedName   Code = "E104"

	// Structural errors (2xx)
	CodeKeyConflict  Code = "E201"
	CodePathConflict Code = "E202"

	// Platform errors (3xx)
	CodeTransient   Code = "E301"
	CodeWriteFailed Code = "E302"
	CodeReadFailed  Code = "E303"
	CodeTimeout     Code = "E304"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"

	// Unknown
	CodeUnknown Code = "E999"
)

// FormFlowError is the base error type for all FormFlow errors.
type FormFlowError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *FormFlowError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *FormFlowError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *FormFlowError) Is(target error) bool {
	if t, ok := target.(*FormFlowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *FormFlowError) WithContext(key string, value interface{}) *FormFlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new FormFlowError.
func New(code Code, message string) *FormFlowError {
	return &FormFlowError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *FormFlowError {
	if err == nil {
		return nil
	}

	return &FormFlowError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *FormFlowError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *FormFlowError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// MissingIdentity creates an error for an incomplete visit identity.
func MissingIdentity(field string) *FormFlowError {
	return New(CodeMissingIdentity, "required visit identity field not set").
		WithContext("field", field)
}

// UnknownModule creates an error for an unrecognized form module.
func UnknownModule(module string) *FormFlowError {
	return New(CodeUnknownModule, "unrecognized form module").
		WithContext("module", module)
}

// KeyConflict creates an error for writing through an atomic value.
func KeyConflict(path, key string) *FormFlowError {
	return New(CodeKeyConflict, "key holds a non-map value").
		WithContext("path", path).
		WithContext("key", key)
}

// PathConflict creates an error for reading through an atomic value.
func PathConflict(path, key string) *FormFlowError {
	return New(CodePathConflict, "path cannot be resolved through a non-map value").
		WithContext("path", path).
		WithContext("key", key)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *FormFlowError {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var ffErr *FormFlowError
	if errors.As(err, &ffErr) {
		return ffErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var ffErr *FormFlowError
	if errors.As(err, &ffErr) {
		return ffErr.Code
	}
	return CodeUnknown
}

// IsTransient returns true if the error may succeed on retry.
func IsTransient(err error) bool {
	switch GetCode(err) {
	case CodeTransient, CodeTimeout:
		return true
	default:
		return false
	}
}

// IsIntegrity returns true if the error is a per-row data-integrity failure
// that callers should catch and skip rather than abort a batch.
func IsIntegrity(err error) bool {
	switch GetCode(err) {
	case CodeMissingIdentity, CodeUnknownModule:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
