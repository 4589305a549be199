package cerrors

import (
	"errors"
	"fmt"
)

// The engine's recoverable error classes. Every operation surfaces one of
// these (wrapped with detail) or an infrastructure error; none is fatal to
// the process and an aborted operation leaves no partial state behind.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("not authorized")
	ErrTxAborted    = errors.New("transaction aborted")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf wraps ErrConflict with a formatted detail message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Unauthorizedf wraps ErrUnauthorized with a formatted detail message.
func Unauthorizedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// TxAbortedf wraps ErrTxAborted with a formatted detail message.
func TxAbortedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTxAborted, fmt.Sprintf(format, args...))
}
