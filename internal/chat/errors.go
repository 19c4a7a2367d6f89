package chat

import (
	"errors"
	"fmt"
)

// ErrValidation marks a missing or malformed required field. Terminal for the
// request; reported only to the caller, never broadcast.
var ErrValidation = errors.New("validation failed")

// ErrNotFound marks an unknown sender, recipient, or referenced conversation.
var ErrNotFound = errors.New("not found")

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
