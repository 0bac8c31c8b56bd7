package matching

import (
	"errors"
	"fmt"

	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

// Error kinds returned by the service. Callers branch with errors.Is.
// Duplicate actions are not errors: they return results with Created=false.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = store.ErrConflict
	ErrNotFound     = store.ErrNotFound
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Error carries a human-readable message next to one of the kinds above.
// The message is safe to show to clients.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Message extracts the client-facing message of err, or "" if err does not
// carry one.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

func invalid(msg string) error { return newError(ErrValidation, msg) }

// notFound keeps a storage ErrNotFound matchable while attaching msg.
func notFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return newError(ErrNotFound, msg)
	}
	return err
}
