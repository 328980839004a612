package crypto

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// ErrNothingToWipe is returned when a wipe is asked for a nil buffer or key pair.
var ErrNothingToWipe = errors.New("nothing to wipe")

// SecureWipe overwrites data with zeros in place.
func SecureWipe(data []byte) error {
	if data == nil {
		return ErrNothingToWipe
	}

	// x ^ x through crypto/subtle keeps the store from being elided.
	subtle.XORBytes(data, data, data)
	runtime.KeepAlive(data)
	return nil
}

// ZeroBytes is SecureWipe for callers that do not care about nil input.
func ZeroBytes(data []byte) {
	_ = SecureWipe(data)
}

// WipeKeyPair zeroes the secret half of kp. The public key is kept.
func WipeKeyPair(kp *KeyPair) error {
	if kp == nil {
		return ErrNothingToWipe
	}
	return SecureWipe(kp.Private[:])
}
