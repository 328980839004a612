package crypto

import (
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// DeriveSharedSecret computes a shared secret between two parties
// using Elliptic Curve Diffie-Hellman (ECDH) on Curve25519.
//
// A peer key of low order yields the all-zero output, which X25519 reports as
// an error; such keys are rejected with ErrKeyExchange.
func DeriveSharedSecret(peerPublicKey PublicKey, privateKey SecretKey) ([KeySize]byte, error) {
	logger := NewLogger("DeriveSharedSecret").WithField("peer_key_prefix", peerPublicKey.Short())
	logger.Debug("Computing shared secret using ECDH")

	// Work on copies so the caller's arrays are never aliased by x/crypto
	publicKeyCopy := peerPublicKey
	privateKeyCopy := privateKey
	defer ZeroBytes(privateKeyCopy[:])

	sharedSecret, err := curve25519.X25519(privateKeyCopy[:], publicKeyCopy[:])
	if err != nil {
		logger.WithError(err, "x25519", "scalar_mult").Warn("X25519 computation failed")
		return [KeySize]byte{}, fmt.Errorf("%w: peer public key is not a usable curve point: %v", ErrKeyExchange, err)
	}

	var result [KeySize]byte
	copy(result[:], sharedSecret)
	ZeroBytes(sharedSecret)

	logger.Debug("Shared secret computed, intermediate buffers wiped")
	return result, nil
}
