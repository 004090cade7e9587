package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guileen/pglitepool/logger"
)

// Error codes shared by the pool and the registry
const (
	ErrCodeConfiguration = "configuration_error"
	ErrCodePoolExhausted = "pool_exhausted"
	ErrCodeConnection    = "connection_error"
	ErrCodeDuplicateKey  = "duplicate_key"
	ErrCodeRegistration  = "registration_error"
	ErrCodeUnknownPool   = "unknown_pool"
	ErrCodeNotInUse      = "not_in_use"
)

// Error is the error type returned by every pool and registry operation.
// Two errors are equal under errors.Is when their codes match.
type Error struct {
	Code    string
	Message string
	Op      string
	Err     error
}

// Sentinels for errors.Is.
var (
	ErrConfiguration = &Error{Code: ErrCodeConfiguration, Message: "invalid pool configuration"}
	ErrPoolExhausted = &Error{Code: ErrCodePoolExhausted, Message: "connection pool is full"}
	ErrConnection    = &Error{Code: ErrCodeConnection, Message: "could not open connection"}
	ErrDuplicateKey  = &Error{Code: ErrCodeDuplicateKey, Message: "pool key already registered"}
	ErrRegistration  = &Error{Code: ErrCodeRegistration, Message: "could not register pool"}
	ErrUnknownPool   = &Error{Code: ErrCodeUnknownPool, Message: "no pool registered under key"}
	ErrNotInUse      = &Error{Code: ErrCodeNotInUse, Message: "connection is not in use"}
)

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Log writes the error through the package logger at the given level
func (e *Error) Log(ctx context.Context, level slog.Level) {
	fields := []any{
		"error_code", e.Code,
		"operation", e.Op,
		"message", e.Message,
	}
	if e.Err != nil {
		fields = append(fields, "cause", e.Err.Error())
	}

	switch level {
	case slog.LevelDebug:
		logger.DebugContext(ctx, "pool error", fields...)
	case slog.LevelInfo:
		logger.InfoContext(ctx, "pool error", fields...)
	case slog.LevelWarn:
		logger.WarnContext(ctx, "pool error", fields...)
	default:
		logger.ErrorContext(ctx, "pool error", fields...)
	}
}

// Errorf creates an *Error with a formatted message
func Errorf(code, op, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Op:      op,
	}
}

// Wrap wraps err with a code, an operation and a message
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

func newConfigurationError(format string, args ...any) *Error {
	return Errorf(ErrCodeConfiguration, "construct", format, args...)
}

func IsConfigurationError(err error) bool { return errors.Is(err, ErrConfiguration) }
func IsExhausted(err error) bool          { return errors.Is(err, ErrPoolExhausted) }
func IsConnectionError(err error) bool    { return errors.Is(err, ErrConnection) }
func IsDuplicateKey(err error) bool       { return errors.Is(err, ErrDuplicateKey) }
func IsRegistrationError(err error) bool  { return errors.Is(err, ErrRegistration) }
func IsUnknownPool(err error) bool        { return errors.Is(err, ErrUnknownPool) }
func IsNotInUse(err error) bool           { return errors.Is(err, ErrNotInUse) }

// Code returns the code of the outermost *Error in err's chain, or "" if there is none
func Code(err error) string {
	var target *Error
	if errors.As(err, &target) {
		return target.Code
	}
	return ""
}
