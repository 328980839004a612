package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed indicates the peer or the caller closed the stream.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrTimeout indicates a dial, read or write did not finish in time.
	ErrTimeout = errors.New("operation timed out")

	// ErrDecryptionFailed indicates an incoming frame failed authentication.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrChannelClosed indicates use of a channel after Close or after a
	// fatal decryption failure.
	ErrChannelClosed = errors.New("channel closed")
)

// OpError records the operation and peer address of a transport failure.
type OpError struct {
	Op   string // operation that caused the error
	Addr string // peer address if known
	Err  error  // underlying error
}

func (e *OpError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func newOpError(op, addr string, err error) *OpError {
	return &OpError{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}
