package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedMessage is wrapped by every decoding failure.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrInvalidMessage is returned when a message cannot be encoded because
	// one of its fields is out of range.
	ErrInvalidMessage = errors.New("invalid message")
)

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}
