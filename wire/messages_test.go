package wire

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataRoundTrip(t *testing.T) {
	for _, m := range []Metadata{{}, {DisableMempool: true}, {PrivateNode: true}, {true, true}} {
		payload := m.Encode()
		require.Len(t, payload, MetadataSize)

		decoded, err := DecodeMetadata(payload)
		require.NoError(t, err)
		assert.Equal(t, m, decoded)
	}
	assert.Equal(t, []byte{0xFF, 0x00}, Metadata{DisableMempool: true}.Encode())
}

func TestDecodeMetadataMalformed(t *testing.T) {
	for _, payload := range [][]byte{nil, {0x00}, {0x00, 0x01}, {0x00, 0x00, 0x00}} {
		_, err := DecodeMetadata(payload)
		assert.ErrorIs(t, err, ErrMalformedMessage, "payload %x", payload)
	}
}

func TestAckRoundTrip(t *testing.T) {
	messages := []AckMessage{
		&Ack{},
		&NackV0{},
		&Nack{Motive: NackTooManyConnections},
		&Nack{Motive: NackAlreadyConnected, PotentialPeers: []string{"10.0.0.1:9732", "[2001:db8::1]:19732"}},
	}
	for _, m := range messages {
		payload, err := EncodeAck(m)
		require.NoError(t, err, m.String())

		decoded, err := DecodeAck(payload)
		require.NoError(t, err, m.String())
		assert.Equal(t, m, decoded)
		assert.Equal(t, m.Accepted(), decoded.Accepted())
	}
}

func TestAckTags(t *testing.T) {
	payload, err := EncodeAck(&Ack{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, payload)

	payload, err = EncodeAck(&NackV0{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF}, payload)

	payload, err = EncodeAck(&Nack{Motive: NackUnknownChainName})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0x02, 0, 0, 0, 0}, payload)
}

func TestDecodeAckMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"unknown tag", []byte{0x02}},
		{"trailing after ack", []byte{0x00, 0x00}},
		{"truncated motive", []byte{0x01, 0x00}},
		{"peer list overrun", []byte{0x01, 0x00, 0x00, 0, 0, 0, 9, 0}},
		{"bad peer address", []byte{0x01, 0x00, 0x00, 0, 0, 0, 8, 0, 0, 0, 4, 'h', 'o', 's', 't'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAck(tt.payload)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestEncodeAckRejectsBadPeers(t *testing.T) {
	_, err := EncodeAck(nil)
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = EncodeAck(&Nack{PotentialPeers: []string{"no-port"}})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	peers := make([]string, 101)
	for i := range peers {
		peers[i] = fmt.Sprintf("10.0.0.%d:9732", i)
	}
	_, err = EncodeAck(&Nack{PotentialPeers: peers})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestNackMotiveString(t *testing.T) {
	assert.Equal(t, "already connected", NackAlreadyConnected.String())
	assert.Equal(t, "motive(42)", NackMotive(42).String())
}

func TestValidatePeerAddress(t *testing.T) {
	assert.NoError(t, ValidatePeerAddress("boot.tzbeta.net:9732"))
	assert.Error(t, ValidatePeerAddress(":9732"))
	assert.Error(t, ValidatePeerAddress("host:port"))
	assert.Error(t, ValidatePeerAddress("host:70000"))
}
