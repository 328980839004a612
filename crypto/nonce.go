package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"io"
)

// NonceSize is the size of a NaCl nonce and of the message nonce in a
// connection message.
const NonceSize = 24

// Nonce is a 24-byte big-endian counter. Session counters start at zero and
// advance with Increment; a random Nonce is used once as the message nonce
// of a connection message.
type Nonce [NonceSize]byte

// GenerateNonce creates a cryptographically secure random nonce.
func GenerateNonce() (Nonce, error) {
	return GenerateNonceFrom(rand.Reader)
}

// GenerateNonceFrom reads a nonce from the given entropy source.
func GenerateNonceFrom(random io.Reader) (Nonce, error) {
	var nonce Nonce
	if _, err := io.ReadFull(random, nonce[:]); err != nil {
		return Nonce{}, err
	}
	return nonce, nil
}

// Increment returns the nonce plus one, wrapping to zero after the maximum
// value. The receiver is not modified.
func (n Nonce) Increment() Nonce {
	for i := NonceSize - 1; i >= 0; i-- {
		n[i]++
		if n[i] != 0 {
			break
		}
	}
	return n
}

// String returns the hex encoding of the nonce.
func (n Nonce) String() string {
	return hex.EncodeToString(n[:])
}
