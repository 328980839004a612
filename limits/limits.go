// Package limits provides centralized message size limits for the handshake protocol.
// This ensures consistent validation across different components of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// LengthPrefixSize is the size of the big-endian length prefix in front of every frame.
	LengthPrefixSize = 2

	// MaxFramePayload is the largest payload a frame can carry.
	MaxFramePayload = 1<<16 - 1

	// EncryptionOverhead is the Poly1305 tag added by golang.org/x/crypto/nacl/secretbox.
	EncryptionOverhead = 16

	// MaxEncryptedPayload is the maximum size of a sealed frame payload.
	MaxEncryptedPayload = MaxFramePayload

	// MaxCleartext is the largest message that fits in one encrypted frame.
	// The sealed plaintext carries its own 2-byte length prefix.
	MaxCleartext = MaxEncryptedPayload - EncryptionOverhead - LengthPrefixSize

	// MaxChainName bounds the network identifier in a connection message.
	MaxChainName = 128

	// MaxAlternatePeers bounds the peer suggestions accepted from a Nack.
	MaxAlternatePeers = 100
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMessageTooShort indicates a message below the minimum meaningful size
	ErrMessageTooShort = errors.New("message too short")
)

// ValidateFramePayload validates a payload before it is given a length prefix.
// Empty payloads are allowed at the framing layer.
func ValidateFramePayload(payload []byte) error {
	if len(payload) > MaxFramePayload {
		return fmt.Errorf("%w: frame payload size %d exceeds limit %d", ErrMessageTooLarge, len(payload), MaxFramePayload)
	}
	return nil
}

// ValidateCleartext validates an application message before it is sealed.
func ValidateCleartext(message []byte) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > MaxCleartext {
		return fmt.Errorf("%w: cleartext size %d exceeds limit %d", ErrMessageTooLarge, len(message), MaxCleartext)
	}
	return nil
}

// ValidateEncryptedPayload validates a sealed payload read off the wire.
// Anything shorter than the authentication tag cannot be a valid box.
func ValidateEncryptedPayload(payload []byte) error {
	if len(payload) == 0 {
		return ErrMessageEmpty
	}
	if len(payload) < EncryptionOverhead+LengthPrefixSize {
		return fmt.Errorf("%w: encrypted size %d below minimum %d", ErrMessageTooShort, len(payload), EncryptionOverhead+LengthPrefixSize)
	}
	if len(payload) > MaxEncryptedPayload {
		return fmt.Errorf("%w: encrypted size %d exceeds limit %d", ErrMessageTooLarge, len(payload), MaxEncryptedPayload)
	}
	return nil
}

// ValidateChainName validates a network identifier.
func ValidateChainName(name string) error {
	if name == "" {
		return ErrMessageEmpty
	}
	if len(name) > MaxChainName {
		return fmt.Errorf("%w: chain name size %d exceeds limit %d", ErrMessageTooLarge, len(name), MaxChainName)
	}
	return nil
}
