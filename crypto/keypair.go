// Package crypto implements the cryptographic primitives of the peer handshake.
//
// This package handles key generation, the X25519 key exchange, session key
// derivation, nonce counters, proof-of-work and authenticated encryption
// using the NaCl primitives from Go's x/crypto packages.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Public key:", keys.Public.Hex())
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"
)

// KeySize is the size of Curve25519 public and secret keys.
const KeySize = 32

// PublicKey is a Curve25519 public key as advertised in a connection message.
type PublicKey [KeySize]byte

// SecretKey is a Curve25519 secret scalar. It must never be logged.
type SecretKey [KeySize]byte

// KeyPair represents a Curve25519 key pair used for the handshake.
type KeyPair struct {
	Public  PublicKey
	Private SecretKey
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	return GenerateKeyPairFrom(rand.Reader)
}

// GenerateKeyPairFrom creates a key pair using the given entropy source.
func GenerateKeyPairFrom(random io.Reader) (*KeyPair, error) {
	dh, err := noise.DH25519.GenerateKeypair(random)
	if err != nil {
		return nil, fmt.Errorf("generate curve25519 keypair: %w", err)
	}
	defer ZeroBytes(dh.Private)

	keyPair := &KeyPair{}
	copy(keyPair.Public[:], dh.Public)
	copy(keyPair.Private[:], dh.Private)
	return keyPair, nil
}

// FromSecretKey creates a key pair from an existing secret key, deriving the
// public key by scalar multiplication with the curve base point.
func FromSecretKey(secretKey SecretKey) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, fmt.Errorf("%w: secret key is all zeros", ErrInvalidKey)
	}

	public, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	keyPair := &KeyPair{Private: secretKey}
	copy(keyPair.Public[:], public)
	return keyPair, nil
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != KeySize {
		return pk, fmt.Errorf("%w: public key size %d, expected %d", ErrInvalidKey, len(b), KeySize)
	}
	copy(pk[:], b)
	return pk, nil
}

// ParsePublicKey decodes a hex-encoded public key.
func ParsePublicKey(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return PublicKeyFromBytes(b)
}

// ParseSecretKey decodes a hex-encoded secret key.
func ParseSecretKey(s string) (SecretKey, error) {
	var sk SecretKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return sk, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	defer ZeroBytes(b)
	if len(b) != KeySize {
		return sk, fmt.Errorf("%w: secret key size %d, expected %d", ErrInvalidKey, len(b), KeySize)
	}
	copy(sk[:], b)
	return sk, nil
}

// Hex returns the lowercase hex encoding of the public key.
func (pk PublicKey) Hex() string {
	return hex.EncodeToString(pk[:])
}

// Short returns an 8-byte hex prefix suitable for log fields.
func (pk PublicKey) Short() string {
	return hex.EncodeToString(pk[:8])
}

// String never prints secret material.
func (SecretKey) String() string {
	return "SecretKey(redacted)"
}

// Hex returns the hex encoding of the secret key for identity files.
func (sk SecretKey) Hex() string {
	return hex.EncodeToString(sk[:])
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [KeySize]byte) bool {
	var acc byte
	for _, b := range key {
		acc |= b
	}
	return acc == 0
}
