package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerIDFormat(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	id := PeerID(kp.Public)
	assert.True(t, strings.HasPrefix(id, "id"), "peer id %q should start with id", id)
	assert.Len(t, id, 30)
	assert.Equal(t, id, PeerID(kp.Public), "peer id must be deterministic")
}

func TestParsePeerID(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	hash, err := ParsePeerID(PeerID(kp.Public))
	require.NoError(t, err)
	assert.Equal(t, PublicKeyHash(kp.Public), hash)

	id := []byte(PeerID(kp.Public))
	// Swap two characters to break the checksum.
	id[5], id[6] = id[6], id[5]
	if id[5] != id[6] {
		_, err = ParsePeerID(string(id))
		assert.ErrorIs(t, err, ErrInvalidPeerID)
	}

	_, err = ParsePeerID("idshort")
	assert.ErrorIs(t, err, ErrInvalidPeerID)
}
