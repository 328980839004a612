package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadingZeroBits(t *testing.T) {
	tests := []struct {
		in   []byte
		want int
	}{
		{[]byte{0x80}, 0},
		{[]byte{0x01}, 7},
		{[]byte{0x00, 0x40}, 9},
		{[]byte{0x00, 0x00, 0x00}, 24},
		{nil, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LeadingZeroBits(tt.in), "input %x", tt.in)
	}
}

func TestGenerateAndCheckProofOfWork(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	stamp, err := GenerateProofOfWork(context.Background(), kp.Public, 10)
	require.NoError(t, err)

	require.NoError(t, CheckProofOfWork(kp.Public, stamp, 10))

	hash := ProofOfWorkHash(kp.Public, stamp)
	assert.GreaterOrEqual(t, LeadingZeroBits(hash[:]), 10)

	// The stamp is bound to the key it was generated for.
	other, err := GenerateKeyPair()
	require.NoError(t, err)
	otherHash := ProofOfWorkHash(other.Public, stamp)
	if LeadingZeroBits(otherHash[:]) < 10 {
		assert.ErrorIs(t, CheckProofOfWork(other.Public, stamp, 10), ErrInvalidProofOfWork)
	}
}

func TestCheckProofOfWorkTargetZero(t *testing.T) {
	assert.NoError(t, CheckProofOfWork(PublicKey{}, ProofOfWork{}, 0))
}

func TestCheckProofOfWorkImpossibleTarget(t *testing.T) {
	err := CheckProofOfWork(PublicKey{7}, ProofOfWork{9}, MaxProofOfWorkTarget)
	assert.ErrorIs(t, err, ErrInvalidProofOfWork)
}

func TestGenerateProofOfWorkHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GenerateProofOfWork(ctx, PublicKey{1}, MaxProofOfWorkTarget)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateProofOfWorkRejectsBadTarget(t *testing.T) {
	_, err := GenerateProofOfWork(context.Background(), PublicKey{1}, MaxProofOfWorkTarget+1)
	assert.Error(t, err)
}

func TestParseProofOfWork(t *testing.T) {
	stamp, err := ParseProofOfWork("b6a4a80d765047918b037c85958c41096326a4b52ff0377e")
	require.NoError(t, err)
	assert.Equal(t, byte(0xb6), stamp[0])
	assert.Equal(t, byte(0x7e), stamp[ProofOfWorkSize-1])
	assert.Equal(t, "b6a4a80d765047918b037c85958c41096326a4b52ff0377e", stamp.Hex())

	_, err = ParseProofOfWork("0123456789abcdef0123456789abcdef")
	assert.Error(t, err)
}
