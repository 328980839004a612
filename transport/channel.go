package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tezhandshake/crypto"
	"github.com/opd-ai/tezhandshake/limits"
	"github.com/opd-ai/tezhandshake/wire"
)

// Channel is the authenticated, encrypted message stream of one session.
//
// Send and Receive may be called from different goroutines, but each must
// not be called concurrently with itself.
type Channel struct {
	rw     FrameReadWriter
	logger *logrus.Entry

	sendMu     sync.Mutex
	localKey   [crypto.KeySize]byte
	localNonce crypto.Nonce
	sent       uint64

	recvMu      sync.Mutex
	remoteKey   [crypto.KeySize]byte
	remoteNonce crypto.Nonce
	received    uint64

	closed atomic.Bool
}

// NewChannel builds a channel over rw. The keys are copied; the caller
// remains responsible for wiping its own SessionKeys.
func NewChannel(rw FrameReadWriter, keys *crypto.SessionKeys) (*Channel, error) {
	if rw == nil {
		return nil, errors.New("nil frame stream")
	}
	if keys == nil {
		return nil, errors.New("nil session keys")
	}

	return &Channel{
		rw:        rw,
		logger:    logrus.WithField("component", "channel"),
		localKey:  keys.Local,
		remoteKey: keys.Remote,
	}, nil
}

// Send seals message under the local key and the local counter, advances
// the counter and writes one frame.
func (c *Channel) Send(message []byte) error {
	if err := limits.ValidateCleartext(message); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed.Load() {
		return ErrChannelClosed
	}

	plain := make([]byte, limits.LengthPrefixSize+len(message))
	binary.BigEndian.PutUint16(plain, uint16(len(message)))
	copy(plain[limits.LengthPrefixSize:], message)

	box, err := crypto.Seal(plain, c.localNonce, &c.localKey)
	crypto.ZeroBytes(plain)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	// The nonce is spent once it has sealed anything, written or not.
	c.localNonce = c.localNonce.Increment()
	c.sent++

	if _, err := c.rw.WriteFrame(box); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"function": "Send",
		"size":     len(message),
		"sent":     c.sent,
	}).Debug("Encrypted message sent")
	return nil
}

// Receive reads one frame, opens it under the remote key and the remote
// counter and returns the cleartext. The counter advances only on success.
// Any authentication failure is fatal to the channel.
func (c *Channel) Receive() ([]byte, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if c.closed.Load() {
		return nil, ErrChannelClosed
	}

	frame, err := c.rw.ReadFrame()
	if err != nil {
		return nil, err
	}
	if len(frame) < limits.LengthPrefixSize {
		return nil, c.fail(fmt.Errorf("%w: short frame", wire.ErrMalformedMessage))
	}
	box := frame[limits.LengthPrefixSize:]

	if err := limits.ValidateEncryptedPayload(box); err != nil {
		return nil, c.fail(fmt.Errorf("%w: %w", ErrDecryptionFailed, err))
	}

	plain, err := crypto.Open(box, c.remoteNonce, &c.remoteKey)
	if err != nil {
		return nil, c.fail(fmt.Errorf("%w: %w", ErrDecryptionFailed, err))
	}
	c.remoteNonce = c.remoteNonce.Increment()
	c.received++

	declared := int(binary.BigEndian.Uint16(plain))
	if declared != len(plain)-limits.LengthPrefixSize {
		return nil, c.fail(fmt.Errorf("%w: sealed message declares %d bytes, carries %d",
			wire.ErrMalformedMessage, declared, len(plain)-limits.LengthPrefixSize))
	}

	c.logger.WithFields(logrus.Fields{
		"function": "Receive",
		"size":     declared,
		"received": c.received,
	}).Debug("Encrypted message received")
	return plain[limits.LengthPrefixSize:], nil
}

func (c *Channel) fail(err error) error {
	c.closed.Store(true)
	c.logger.WithFields(logrus.Fields{
		"function": "Receive",
		"received": c.received,
		"error":    err.Error(),
	}).Warn("Channel failed")
	return err
}

// Counters returns the number of messages sent and successfully received.
func (c *Channel) Counters() (sent, received uint64) {
	c.sendMu.Lock()
	sent = c.sent
	c.sendMu.Unlock()
	c.recvMu.Lock()
	received = c.received
	c.recvMu.Unlock()
	return sent, received
}

// Nonces returns copies of the next local and remote nonce.
func (c *Channel) Nonces() (local, remote crypto.Nonce) {
	c.sendMu.Lock()
	local = c.localNonce
	c.sendMu.Unlock()
	c.recvMu.Lock()
	remote = c.remoteNonce
	c.recvMu.Unlock()
	return local, remote
}

// Close wipes both keys. It does not close the underlying stream; close
// that first so a blocked Receive returns.
func (c *Channel) Close() error {
	c.closed.Store(true)

	c.sendMu.Lock()
	crypto.ZeroBytes(c.localKey[:])
	c.sendMu.Unlock()

	c.recvMu.Lock()
	crypto.ZeroBytes(c.remoteKey[:])
	c.recvMu.Unlock()
	return nil
}
