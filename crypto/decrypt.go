package crypto

import (
	"errors"

	"golang.org/x/crypto/nacl/secretbox"
)

// Open verifies and decrypts a box produced by Seal. Any modification of the
// box, a different key or a different nonce yields ErrAuthenticationFailed.
func Open(box []byte, nonce Nonce, key *[KeySize]byte) ([]byte, error) {
	if key == nil {
		return nil, errors.New("nil key")
	}
	if len(box) < secretbox.Overhead {
		return nil, ErrAuthenticationFailed
	}

	nonceArray := [NonceSize]byte(nonce)
	out, ok := secretbox.Open(nil, box, &nonceArray, key)
	if !ok {
		return nil, ErrAuthenticationFailed
	}
	return out, nil
}
