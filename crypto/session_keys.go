package crypto

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// SessionKeys holds the two direction keys of one session. local_key seals
// what this side sends, remote_key opens what the peer sends. The peer
// derives the same pair with the roles swapped.
type SessionKeys struct {
	Local  [KeySize]byte
	Remote [KeySize]byte
}

// KeyDeriver is the signature of DeriveSessionKeys; the handshake engine
// accepts one so that key derivation can be observed in tests.
type KeyDeriver func(localSecret SecretKey, peerPublic PublicKey, localMessage, remoteMessage []byte) (*SessionKeys, error)

// DeriveSessionKeys combines the local secret key with the peer public key and
// both raw connection messages:
//
//	shared     = X25519(localSecret, peerPublic)
//	local_key  = blake2b-256(shared || localMessage || remoteMessage)
//	remote_key = blake2b-256(shared || remoteMessage || localMessage)
//
// localMessage and remoteMessage must be the exact frames sent and received,
// two-byte length prefix included.
func DeriveSessionKeys(localSecret SecretKey, peerPublic PublicKey, localMessage, remoteMessage []byte) (*SessionKeys, error) {
	if len(localMessage) == 0 || len(remoteMessage) == 0 {
		return nil, fmt.Errorf("%w: empty connection message buffer", ErrKeyExchange)
	}
	// Identical transcripts would give both directions the same key and the
	// same starting counter.
	if bytes.Equal(localMessage, remoteMessage) {
		return nil, fmt.Errorf("%w: peer reflected our connection message", ErrKeyExchange)
	}

	shared, err := DeriveSharedSecret(peerPublic, localSecret)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(shared[:])

	keys := &SessionKeys{
		Local:  directionKey(&shared, localMessage, remoteMessage),
		Remote: directionKey(&shared, remoteMessage, localMessage),
	}

	NewLogger("DeriveSessionKeys").
		WithFields(PreviewFields(localMessage, "local_message")).
		WithFields(PreviewFields(remoteMessage, "remote_message")).
		Debug("Session keys derived")

	return keys, nil
}

func directionKey(shared *[KeySize]byte, first, second []byte) [KeySize]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		// New256 only fails for oversized MAC keys; nil is always accepted.
		panic(err)
	}
	h.Write(shared[:])
	h.Write(first)
	h.Write(second)

	var key [KeySize]byte
	h.Sum(key[:0])
	return key
}

// Wipe zeroes both direction keys.
func (k *SessionKeys) Wipe() {
	if k == nil {
		return
	}
	ZeroBytes(k.Local[:])
	ZeroBytes(k.Remote[:])
}

// String never prints key material.
func (k *SessionKeys) String() string {
	return "SessionKeys(redacted)"
}
