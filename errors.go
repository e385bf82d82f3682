package remotefs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrAccessDenied  = errors.New("access denied")
	ErrUnsupported   = errors.New("operation not supported")
	ErrTransport     = errors.New("transport failure")
	ErrNotDirectory  = errors.New("not a directory")
	ErrIsDirectory   = errors.New("is a directory")
)

// Transport wraps a backend failure so it matches ErrTransport while keeping the cause.
func Transport(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// NotFound wraps ErrNotFound with the subject that failed to resolve.
func NotFound(subject string) error {
	return fmt.Errorf("%s: %w", subject, ErrNotFound)
}
