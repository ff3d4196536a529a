package errors

import (
	"fmt"
	"strings"
)

// ErrorType classifies an AppError for HTTP mapping. The handler turns
// each class into a problem+json response with a matching status code.
type ErrorType string

const (
	ErrTypeParsing    ErrorType = "PARSING"
	ErrTypeFormat     ErrorType = "FORMAT"
	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeSession    ErrorType = "SESSION"
)

// AppError is the error carried through the invoice pipeline. Context
// holds free-form key/value pairs (carrier, row number, file path) that
// end up in the problem response and the error log.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *AppError) Error() string {
	msg := "[" + string(e.Type) + "] " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext records a key/value pair on the error. The map is created
// on first use so bare literals work too.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[key] = value
	return e
}

// NewAppError builds an AppError of the given class. Context starts nil
// until WithContext is called.
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{Type: errType, Message: message, Cause: cause}
}

// NewParsingError marks an invoice file that could not be decoded.
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewFormatError marks an upload whose file type is not supported.
func NewFormatError(message string, cause error) *AppError {
	return NewAppError(ErrTypeFormat, message, cause)
}

// NewStorageError marks a failed read or write on the data directory.
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// MissingColumnsError reports an invoice that lacks columns the pipeline
// cannot run without. Found carries every column that was present so the
// caller can show the user what the file actually contained.
type MissingColumnsError struct {
	Missing []string
	Found   []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required column(s): %s (found: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Found, ", "))
}
