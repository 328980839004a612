package wire

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/tezhandshake/crypto"
)

func sampleConnectionMessage(t *testing.T) *ConnectionMessage {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	nonce, err := crypto.GenerateNonce()
	require.NoError(t, err)

	return &ConnectionMessage{
		Port:         9732,
		PublicKey:    kp.Public,
		ProofOfWork:  crypto.ProofOfWork{0xb6, 0xa4, 0xa8},
		MessageNonce: nonce,
		Version: NetworkVersion{
			ChainName:            "TEZOS_MAINNET",
			DistributedDBVersion: 2,
			P2PVersion:           1,
		},
	}
}

func TestConnectionMessageRoundTrip(t *testing.T) {
	messages := []*ConnectionMessage{
		sampleConnectionMessage(t),
		{Version: NetworkVersion{ChainName: "X"}},
		{Port: 65535, Version: NetworkVersion{ChainName: strings.Repeat("C", 128), DistributedDBVersion: 65535, P2PVersion: 65535}},
		{Version: DefaultNetworkVersion()},
	}

	for i, m := range messages {
		payload, err := m.Encode()
		require.NoError(t, err, "message %d", i)

		decoded, err := DecodeConnectionMessage(payload)
		require.NoError(t, err, "message %d", i)
		assert.Equal(t, m, decoded, "message %d", i)
	}
}

func TestConnectionMessageLayout(t *testing.T) {
	m := sampleConnectionMessage(t)
	payload, err := m.Encode()
	require.NoError(t, err)

	assert.Equal(t, uint16(9732), binary.BigEndian.Uint16(payload[0:2]))
	assert.Equal(t, m.PublicKey[:], payload[2:34])
	assert.Equal(t, m.ProofOfWork[:], payload[34:58])
	assert.Equal(t, m.MessageNonce[:], payload[58:82])
	assert.Equal(t, uint32(len("TEZOS_MAINNET")), binary.BigEndian.Uint32(payload[82:86]))
	assert.Equal(t, "TEZOS_MAINNET", string(payload[86:99]))
	assert.Equal(t, []byte{0, 2, 0, 1}, payload[99:])
	assert.Len(t, payload, 103)
}

// TestDecodeConnectionMessageReferenceBytes decodes a payload written out by
// hand: port, key, stamp and nonce, then the chain name as u16 zero, u16
// length and bytes, then the distributed db and p2p versions.
func TestDecodeConnectionMessageReferenceBytes(t *testing.T) {
	payload := []byte{0x26, 0x04}
	payload = append(payload, make([]byte, 32+24+24)...)
	payload = append(payload, 0x00, 0x00, 0x00, 0x0d)
	payload = append(payload, "TEZOS_MAINNET"...)
	payload = append(payload, 0x00, 0x02, 0x00, 0x01)
	require.Len(t, payload, 103)

	m, err := DecodeConnectionMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, uint16(9732), m.Port)
	assert.Equal(t, DefaultNetworkVersion(), m.Version)

	encoded, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, payload, encoded)
}

func TestConnectionMessageEncodeInvalid(t *testing.T) {
	tests := []struct {
		name    string
		version NetworkVersion
	}{
		{"empty chain name", NetworkVersion{}},
		{"long chain name", NetworkVersion{ChainName: strings.Repeat("x", 129)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &ConnectionMessage{Version: tt.version}
			_, err := m.Encode()
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestDecodeConnectionMessageMalformed(t *testing.T) {
	payload, err := sampleConnectionMessage(t).Encode()
	require.NoError(t, err)

	// Every strict prefix is truncated somewhere.
	for cut := 0; cut < len(payload); cut++ {
		_, err := DecodeConnectionMessage(payload[:cut])
		require.ErrorIs(t, err, ErrMalformedMessage, "cut at %d", cut)
	}

	_, err = DecodeConnectionMessage(append(append([]byte(nil), payload...), 0x00))
	assert.ErrorIs(t, err, ErrMalformedMessage, "trailing byte")

	// Chain name length overrunning the buffer.
	overrun := append([]byte(nil), payload...)
	binary.BigEndian.PutUint32(overrun[82:86], 0xffffffff)
	_, err = DecodeConnectionMessage(overrun)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDecodeConnectionMessageChainNameTooLong(t *testing.T) {
	m := &ConnectionMessage{Version: NetworkVersion{ChainName: strings.Repeat("C", 128)}}
	payload, err := m.Encode()
	require.NoError(t, err)

	// Grow the name by one byte and fix up its length.
	long := append([]byte(nil), payload[:82]...)
	long = binary.BigEndian.AppendUint32(long, 129)
	long = append(long, strings.Repeat("C", 129)...)
	long = append(long, payload[len(payload)-4:]...)
	_, err = DecodeConnectionMessage(long)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDefaultNetworkVersion(t *testing.T) {
	v := DefaultNetworkVersion()
	require.NoError(t, v.Validate())
	assert.Equal(t, "TEZOS_MAINNET", v.ChainName)
	assert.Equal(t, uint16(2), v.DistributedDBVersion)
	assert.Equal(t, uint16(1), v.P2PVersion)
}
