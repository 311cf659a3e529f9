package potluck

import (
	"errors"
	"fmt"
)

// Kind labels an error with the category callers branch on.
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindNotFound         Kind = "NOT_FOUND"
	KindForbidden        Kind = "FORBIDDEN"
	KindInvalidState     Kind = "INVALID_STATE"
	KindGenerationFailed Kind = "GENERATION_FAILED"
	KindConflict         Kind = "CONFLICT"
	KindInternal         Kind = "INTERNAL"
)

// Error carries a Kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

func NewNotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func NewForbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NewInvalidState(message string) error {
	return &Error{Kind: KindInvalidState, Message: message}
}

func NewGenerationFailed(message string, err error) error {
	return &Error{Kind: KindGenerationFailed, Message: message, Err: err}
}

func NewConflict(message string, err error) error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// Wrap adds context to err. Errors that already carry a Kind keep it; anything
// else becomes KindInternal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Message: fmt.Sprintf("%s: %s", message, e.Message), Err: e.Err}
	}
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Message returns the human-readable part of err without the kind prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
