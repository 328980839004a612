package crypto

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/blake2b"
)

const (
	// PublicKeyHashSize is the size of the hash a peer id encodes.
	PublicKeyHashSize = 16

	checksumSize = 4
)

// peerIDPrefix makes base58check peer ids render with a leading "id".
var peerIDPrefix = []byte{153, 103}

// ErrInvalidPeerID indicates a string that is not a well-formed peer id
var ErrInvalidPeerID = errors.New("invalid peer id")

// PublicKeyHash returns the 16-byte blake2b hash identifying a public key.
func PublicKeyHash(publicKey PublicKey) [PublicKeyHashSize]byte {
	h, err := blake2b.New(PublicKeyHashSize, nil)
	if err != nil {
		panic(err)
	}
	h.Write(publicKey[:])

	var out [PublicKeyHashSize]byte
	h.Sum(out[:0])
	return out
}

// PeerID returns the base58check peer id of a public key.
func PeerID(publicKey PublicKey) string {
	hash := PublicKeyHash(publicKey)

	payload := make([]byte, 0, len(peerIDPrefix)+PublicKeyHashSize+checksumSize)
	payload = append(payload, peerIDPrefix...)
	payload = append(payload, hash[:]...)
	sum := checksum(payload)
	payload = append(payload, sum[:]...)

	return base58.Encode(payload)
}

// ParsePeerID decodes a peer id and returns the public key hash it carries.
func ParsePeerID(id string) ([PublicKeyHashSize]byte, error) {
	var hash [PublicKeyHashSize]byte

	raw := base58.Decode(id)
	if len(raw) != len(peerIDPrefix)+PublicKeyHashSize+checksumSize {
		return hash, fmt.Errorf("%w: decoded size %d", ErrInvalidPeerID, len(raw))
	}
	if raw[0] != peerIDPrefix[0] || raw[1] != peerIDPrefix[1] {
		return hash, fmt.Errorf("%w: wrong prefix", ErrInvalidPeerID)
	}

	body := raw[:len(raw)-checksumSize]
	sum := checksum(body)
	if string(sum[:]) != string(raw[len(raw)-checksumSize:]) {
		return hash, fmt.Errorf("%w: bad checksum", ErrInvalidPeerID)
	}

	copy(hash[:], body[len(peerIDPrefix):])
	return hash, nil
}

func checksum(data []byte) [checksumSize]byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])

	var out [checksumSize]byte
	copy(out[:], second[:checksumSize])
	return out
}
