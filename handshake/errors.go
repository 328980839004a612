package handshake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opd-ai/tezhandshake/crypto"
	"github.com/opd-ai/tezhandshake/transport"
	"github.com/opd-ai/tezhandshake/wire"
)

// Kind classifies a handshake failure.
type Kind int

const (
	// KindConnect covers unreachable peers, closed streams and abandoned attempts.
	KindConnect Kind = iota + 1
	// KindMalformedMessage covers framing and parsing failures.
	KindMalformedMessage
	// KindInvalidProofOfWork means the peer's public key lacks enough work.
	KindInvalidProofOfWork
	// KindKeyExchange means no session keys could be derived.
	KindKeyExchange
	// KindDecryptionFailed means an encrypted frame failed authentication.
	KindDecryptionFailed
	// KindRejected means the peer answered Nack.
	KindRejected
	// KindRefused means our own ack policy answered Nack.
	KindRefused
	// KindProtocolViolation means the peer sent something unexpected.
	KindProtocolViolation
	// KindTimeout means a step did not finish in time.
	KindTimeout
)

// Sentinels matched by errors.Is against an *Error of the same Kind.
var (
	ErrConnect            = errors.New("connect error")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrInvalidProofOfWork = errors.New("invalid proof of work")
	ErrKeyExchange        = errors.New("key exchange failed")
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrRejected           = errors.New("rejected by peer")
	ErrRefused            = errors.New("refused by local policy")
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrTimeout            = errors.New("timeout")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConnect:
		return ErrConnect
	case KindMalformedMessage:
		return ErrMalformedMessage
	case KindInvalidProofOfWork:
		return ErrInvalidProofOfWork
	case KindKeyExchange:
		return ErrKeyExchange
	case KindDecryptionFailed:
		return ErrDecryptionFailed
	case KindRejected:
		return ErrRejected
	case KindRefused:
		return ErrRefused
	case KindProtocolViolation:
		return ErrProtocolViolation
	case KindTimeout:
		return ErrTimeout
	default:
		return nil
	}
}

// String returns the snake_case kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindMalformedMessage:
		return "malformed_message"
	case KindInvalidProofOfWork:
		return "invalid_proof_of_work"
	case KindKeyExchange:
		return "key_exchange"
	case KindDecryptionFailed:
		return "decryption_failed"
	case KindRejected:
		return "rejected"
	case KindRefused:
		return "refused"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the failure of one handshake attempt.
type Error struct {
	Kind  Kind
	Addr  string // peer address
	State State  // state in which the failure happened
	// Motive and AlternatePeers are set for KindRejected and KindRefused.
	Motive         wire.NackMotive
	AlternatePeers []string
	Err            error // underlying error, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("handshake")
	if e.Addr != "" {
		b.WriteString(" with ")
		b.WriteString(e.Addr)
	}
	fmt.Fprintf(&b, " failed in %s: %s", e.State, e.Kind.sentinel())
	if e.Kind == KindRejected || e.Kind == KindRefused {
		fmt.Fprintf(&b, " (%s", e.Motive)
		if n := len(e.AlternatePeers); n > 0 {
			fmt.Fprintf(&b, ", %d alternate peers", n)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of e.Kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// classify picks the Kind for an error coming out of a transport, wire or
// crypto call. Closed streams and anything unrecognised are KindConnect. ctxErr, when set, takes precedence: a stream closed because
// the caller gave up reports why the caller gave up.
func classify(err, ctxErr error) Kind {
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return KindTimeout
	case ctxErr != nil:
		return KindConnect
	case errors.Is(err, transport.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, transport.ErrDecryptionFailed), errors.Is(err, crypto.ErrAuthenticationFailed):
		return KindDecryptionFailed
	case errors.Is(err, wire.ErrMalformedMessage):
		return KindMalformedMessage
	case errors.Is(err, crypto.ErrKeyExchange):
		return KindKeyExchange
	case errors.Is(err, crypto.ErrInvalidProofOfWork):
		return KindInvalidProofOfWork
	default:
		return KindConnect
	}
}
