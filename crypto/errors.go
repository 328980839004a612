package crypto

import "errors"

var (
	// ErrInvalidKey indicates a malformed public or secret key
	ErrInvalidKey = errors.New("invalid key")

	// ErrKeyExchange indicates the session keys could not be derived
	ErrKeyExchange = errors.New("key exchange failed")

	// ErrAuthenticationFailed indicates a sealed box did not verify
	ErrAuthenticationFailed = errors.New("message authentication failed")

	// ErrInvalidProofOfWork indicates a public key whose stamp misses the target
	ErrInvalidProofOfWork = errors.New("invalid proof of work")
)
