package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	// ErrorTypeResource covers missing or unreadable templates and data.
	ErrorTypeResource ErrorType = "resource"
	// ErrorTypeParse covers template and front matter syntax errors.
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeRender covers structural failures raised while walking a tree.
	ErrorTypeRender ErrorType = "render"
	// ErrorTypeHelper covers helper and filter module loading.
	ErrorTypeHelper   ErrorType = "helper"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeInternal ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeNotFound       = "ERR_NOT_FOUND"
	ErrCodeParse          = "ERR_PARSE"
	ErrCodeData           = "ERR_DATA"
	ErrCodeHelperLoad     = "ERR_HELPER_LOAD"
	ErrCodeMissingHelper  = "ERR_MISSING_HELPER"
	ErrCodeMissingFilter  = "ERR_MISSING_FILTER"
	ErrCodeMissingPartial = "ERR_MISSING_PARTIAL"
	ErrCodeHelperFailed   = "ERR_HELPER_FAILED"
	ErrCodeConfigInvalid  = "ERR_CONFIG_INVALID"
	ErrCodeInternalError  = "ERR_INTERNAL"
)

// QuiltError is a structured error carrying the responsible address and,
// where known, the source location within that template.
type QuiltError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Address     string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *QuiltError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Address != "" {
		location := e.Address
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *QuiltError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a QuiltError with the same type and code.
func (e *QuiltError) Is(target error) bool {
	var t *QuiltError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *QuiltError) WithContext(key string, value interface{}) *QuiltError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds address and line information.
func (e *QuiltError) WithLocation(address string, line, column int) *QuiltError {
	e.Address = address
	e.Line = line
	e.Column = column

	return e
}

// NewNotFoundError creates an error for a resource that could not be read.
func NewNotFoundError(address string, cause error) *QuiltError {
	return &QuiltError{
		Type:    ErrorTypeResource,
		Code:    ErrCodeNotFound,
		Message: "resource not found",
		Cause:   cause,
		Address: address,
	}
}

// NewParseError creates a template or front matter syntax error.
func NewParseError(address string, line int, cause error) *QuiltError {
	return &QuiltError{
		Type:    ErrorTypeParse,
		Code:    ErrCodeParse,
		Message: "parse failed",
		Cause:   cause,
		Address: address,
		Line:    line,
	}
}

// NewDataError creates an error for a data file that failed to load.
func NewDataError(address string, cause error) *QuiltError {
	return &QuiltError{
		Type:    ErrorTypeResource,
		Code:    ErrCodeData,
		Message: "data file failed to load",
		Cause:   cause,
		Address: address,
	}
}

// NewHelperLoadError creates the recoverable error recorded when a helper or
// filter module cannot be loaded during collection.
func NewHelperLoadError(name, address string, cause error) *QuiltError {
	return (&QuiltError{
		Type:        ErrorTypeHelper,
		Code:        ErrCodeHelperLoad,
		Message:     "cannot load helper " + name,
		Cause:       cause,
		Address:     address,
		Recoverable: true,
	}).WithContext("helper", name)
}

// MissingHelper is raised when a helper node is evaluated but no
// implementation was ever registered for it.
func MissingHelper(name, address string, line int) *QuiltError {
	return (&QuiltError{
		Type:    ErrorTypeRender,
		Code:    ErrCodeMissingHelper,
		Message: "missing helper " + name,
		Address: address,
		Line:    line,
	}).WithContext("helper", name)
}

// MissingFilter is the filter counterpart of MissingHelper.
func MissingFilter(name, address string, line int) *QuiltError {
	return (&QuiltError{
		Type:    ErrorTypeRender,
		Code:    ErrCodeMissingFilter,
		Message: "missing filter " + name,
		Address: address,
		Line:    line,
	}).WithContext("filter", name)
}

// MissingPartial is raised when a partial reference was never installed
// into the per-render partial cache.
func MissingPartial(partial, address string, line int) *QuiltError {
	return (&QuiltError{
		Type:    ErrorTypeRender,
		Code:    ErrCodeMissingPartial,
		Message: "missing partial " + partial,
		Address: address,
		Line:    line,
	}).WithContext("partial", partial)
}

// NewHelperFailedError wraps an error returned by a helper or filter body.
func NewHelperFailedError(name, address string, line int, cause error) *QuiltError {
	return (&QuiltError{
		Type:    ErrorTypeRender,
		Code:    ErrCodeHelperFailed,
		Message: "helper " + name + " failed",
		Cause:   cause,
		Address: address,
		Line:    line,
	}).WithContext("helper", name)
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, cause error) *QuiltError {
	return &QuiltError{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeConfigInvalid,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *QuiltError {
	return &QuiltError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var qe *QuiltError
	if errors.As(err, &qe) {
		return qe.Recoverable
	}

	return false
}

// HasCode reports whether err wraps a QuiltError carrying code.
func HasCode(err error, code string) bool {
	var qe *QuiltError
	if errors.As(err, &qe) {
		return qe.Code == code
	}

	return false
}

// IsNotFound reports whether err is a missing resource error.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err once, at a severity matching its category.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var qe *QuiltError
	if !errors.As(err, &qe) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	fields := []interface{}{"type", qe.Type, "code", qe.Code, "address", qe.Address}
	if qe.Line > 0 {
		fields = append(fields, "line", qe.Line)
	}

	switch {
	case qe.Recoverable:
		h.logger.Warn(ctx, err, "Recoverable error", fields...)
	case qe.Type == ErrorTypeRender:
		h.logger.Error(ctx, err, "Render failed", fields...)
	default:
		h.logger.Error(ctx, err, "Error occurred", fields...)
	}
}
