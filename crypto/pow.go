package crypto

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/bits"

	"golang.org/x/crypto/blake2b"
)

const (
	// ProofOfWorkSize is the size of a proof-of-work stamp.
	ProofOfWorkSize = 24

	// DefaultProofOfWorkTarget is the difficulty used by the main network.
	DefaultProofOfWorkTarget = 26

	// MaxProofOfWorkTarget is the number of bits in the hash.
	MaxProofOfWorkTarget = 256

	// powCheckInterval is how many candidates are tried between context checks.
	powCheckInterval = 1 << 12
)

// ProofOfWork is the stamp mixed into the public key hash so that the hash
// meets the difficulty target.
type ProofOfWork [ProofOfWorkSize]byte

// ParseProofOfWork decodes a hex-encoded stamp.
func ParseProofOfWork(s string) (ProofOfWork, error) {
	var stamp ProofOfWork
	b, err := hex.DecodeString(s)
	if err != nil {
		return stamp, fmt.Errorf("invalid proof of work stamp: %w", err)
	}
	if len(b) != ProofOfWorkSize {
		return stamp, fmt.Errorf("invalid proof of work stamp size %d, expected %d", len(b), ProofOfWorkSize)
	}
	copy(stamp[:], b)
	return stamp, nil
}

// Hex returns the hex encoding of the stamp.
func (p ProofOfWork) Hex() string {
	return hex.EncodeToString(p[:])
}

// ProofOfWorkHash returns blake2b-256(publicKey || stamp).
func ProofOfWorkHash(publicKey PublicKey, stamp ProofOfWork) [32]byte {
	var buf [KeySize + ProofOfWorkSize]byte
	copy(buf[:KeySize], publicKey[:])
	copy(buf[KeySize:], stamp[:])
	return blake2b.Sum256(buf[:])
}

// LeadingZeroBits counts the zero bits at the start of b.
func LeadingZeroBits(b []byte) int {
	n := 0
	for _, v := range b {
		if v != 0 {
			return n + bits.LeadingZeros8(v)
		}
		n += 8
	}
	return n
}

// CheckProofOfWork reports whether the stamp gives the public key hash at
// least target leading zero bits.
func CheckProofOfWork(publicKey PublicKey, stamp ProofOfWork, target int) error {
	if target <= 0 {
		return nil
	}
	hash := ProofOfWorkHash(publicKey, stamp)
	if got := LeadingZeroBits(hash[:]); got < target {
		return fmt.Errorf("%w: %d leading zero bits, target %d", ErrInvalidProofOfWork, got, target)
	}
	return nil
}

// GenerateProofOfWork searches for a stamp meeting target for publicKey,
// starting from a random stamp and counting upwards. The search stops when
// ctx is done.
func GenerateProofOfWork(ctx context.Context, publicKey PublicKey, target int) (ProofOfWork, error) {
	return GenerateProofOfWorkFrom(ctx, rand.Reader, publicKey, target)
}

// GenerateProofOfWorkFrom is GenerateProofOfWork with an explicit entropy source.
func GenerateProofOfWorkFrom(ctx context.Context, random io.Reader, publicKey PublicKey, target int) (ProofOfWork, error) {
	if target < 0 || target > MaxProofOfWorkTarget {
		return ProofOfWork{}, fmt.Errorf("proof of work target %d out of range [0, %d]", target, MaxProofOfWorkTarget)
	}

	var start Nonce
	if _, err := io.ReadFull(random, start[:]); err != nil {
		return ProofOfWork{}, fmt.Errorf("seed proof of work search: %w", err)
	}

	logger := NewLogger("GenerateProofOfWork").
		WithField("public_key_prefix", publicKey.Short()).
		WithField("target", target)
	logger.Debug("Searching for proof of work stamp")

	candidate := start
	for attempts := uint64(1); ; attempts++ {
		stamp := ProofOfWork(candidate)
		if CheckProofOfWork(publicKey, stamp, target) == nil {
			logger.WithField("attempts", attempts).Debug("Proof of work stamp found")
			return stamp, nil
		}
		candidate = candidate.Increment()

		if attempts%powCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return ProofOfWork{}, fmt.Errorf("proof of work search aborted after %d attempts: %w", attempts, ctx.Err())
			default:
			}
		}
	}
}
