package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")

	ErrUnknownTool       = errors.New("unknown tool")
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrCharacterLocked is returned when a protected tool targets a character
	// that is locked for gameplay.
	ErrCharacterLocked = errors.New("character is locked for gameplay")

	ErrInvalidTransition = errors.New("invalid status transition")
	ErrActionExpired     = errors.New("pending action expired")
	ErrRewindOutOfRange  = errors.New("rewind exceeds available history")

	ErrInsufficientResource = errors.New("insufficient resource")
	ErrRuleViolation        = errors.New("rule violation")
)

// HandlerError is a domain-level failure reported by a tool handler. The
// executor rolls back the transaction and records the call as failed.
type HandlerError struct {
	Kind    error
	Message string
}

func (e *HandlerError) Error() string {
	return e.Message
}

func (e *HandlerError) Unwrap() error {
	return e.Kind
}

// Fail builds a HandlerError of the given kind.
func Fail(kind error, format string, args ...interface{}) error {
	return &HandlerError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsHandlerError reports whether err is (or wraps) a HandlerError.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}
