package crypto

import (
	"errors"

	"github.com/opd-ai/tezhandshake/limits"
	"golang.org/x/crypto/nacl/secretbox"
)

// Seal encrypts and authenticates a message with a symmetric key using NaCl
// secretbox (XSalsa20-Poly1305). The nonce must never repeat for a key.
func Seal(message []byte, nonce Nonce, key *[KeySize]byte) ([]byte, error) {
	if key == nil {
		return nil, errors.New("nil key")
	}
	if len(message) == 0 {
		return nil, limits.ErrMessageEmpty
	}
	if len(message)+secretbox.Overhead > limits.MaxEncryptedPayload {
		return nil, limits.ErrMessageTooLarge
	}

	nonceArray := [NonceSize]byte(nonce)
	return secretbox.Seal(nil, message, &nonceArray, key), nil
}
