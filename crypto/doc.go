// Package crypto implements the cryptographic primitives of the peer handshake.
//
// # Key Exchange
//
// Each node owns a static Curve25519 identity. After both connection messages
// have been exchanged, DeriveSessionKeys combines the local secret key with
// the peer's advertised public key and the two raw connection messages:
//
//	keys, err := crypto.DeriveSessionKeys(secret, peerPublic, sentBytes, receivedBytes)
//	if err != nil {
//	    // errors.Is(err, crypto.ErrKeyExchange)
//	}
//	defer keys.Wipe()
//
// The order of the two buffers in the hash input is what separates the two
// directions: one side's Local key equals the other side's Remote key.
//
// # Nonces
//
// Nonce is a 24-byte big-endian counter. Session counters start at zero and
// are advanced with Increment after every use; a random Nonce doubles as the
// message nonce of a connection message.
//
// # Authenticated Encryption
//
// Seal and Open wrap NaCl secretbox (XSalsa20-Poly1305). Open returns
// ErrAuthenticationFailed for any tampered box, wrong key or wrong nonce.
//
// # Proof of Work
//
// A public key is accepted only with a stamp such that
// blake2b-256(public_key || stamp) starts with at least target zero bits:
//
//	if err := crypto.CheckProofOfWork(pk, stamp, crypto.DefaultProofOfWorkTarget); err != nil {
//	    // errors.Is(err, crypto.ErrInvalidProofOfWork)
//	}
//
// # Secure Memory Handling
//
// Secret keys, shared secrets and session keys are wiped with ZeroBytes once
// they are no longer needed, and their String methods never print contents.
package crypto
