package wire

import (
	"fmt"

	"github.com/opd-ai/tezhandshake/crypto"
	"github.com/opd-ai/tezhandshake/limits"
)

// NetworkVersion identifies the network and the protocol versions a node
// speaks. The values are opaque to the handshake.
type NetworkVersion struct {
	ChainName            string
	DistributedDBVersion uint16
	P2PVersion           uint16
}

// DefaultChainName is the mainnet chain name.
const DefaultChainName = "TEZOS_MAINNET"

// NewNetworkVersion returns the identifier for chain with distributed db
// version 2 and p2p version 1.
func NewNetworkVersion(chain string) NetworkVersion {
	return NetworkVersion{
		ChainName:            chain,
		DistributedDBVersion: 2,
		P2PVersion:           1,
	}
}

// DefaultNetworkVersion returns the mainnet identifier.
func DefaultNetworkVersion() NetworkVersion {
	return NewNetworkVersion(DefaultChainName)
}

// Validate checks the bounds enforced by the encoding.
func (v NetworkVersion) Validate() error {
	if err := limits.ValidateChainName(v.ChainName); err != nil {
		return fmt.Errorf("chain name: %w", err)
	}
	return nil
}

// ConnectionMessage is the first, unencrypted message in each direction.
type ConnectionMessage struct {
	Port         uint16
	PublicKey    crypto.PublicKey
	ProofOfWork  crypto.ProofOfWork
	MessageNonce crypto.Nonce
	Version      NetworkVersion
}

// Encode returns the payload bytes of the message.
func (m *ConnectionMessage) Encode() ([]byte, error) {
	if err := m.Version.Validate(); err != nil {
		return nil, invalid("connection message: %v", err)
	}

	e := &encoder{buf: make([]byte, 0, 96+len(m.Version.ChainName))}
	e.uint16(m.Port)
	e.fixed(m.PublicKey[:])
	e.fixed(m.ProofOfWork[:])
	e.fixed(m.MessageNonce[:])
	e.string(m.Version.ChainName)
	e.uint16(m.Version.DistributedDBVersion)
	e.uint16(m.Version.P2PVersion)

	if len(e.buf) > limits.MaxFramePayload {
		return nil, invalid("connection message of %d bytes does not fit a frame", len(e.buf))
	}
	return e.buf, nil
}

// DecodeConnectionMessage parses a connection message payload.
func DecodeConnectionMessage(payload []byte) (*ConnectionMessage, error) {
	d := newDecoder(payload)
	m := &ConnectionMessage{}

	m.Port = d.uint16("port")
	d.fixed(m.PublicKey[:], "public_key")
	d.fixed(m.ProofOfWork[:], "proof_of_work_stamp")
	d.fixed(m.MessageNonce[:], "message_nonce")
	m.Version.ChainName = d.string("chain_name")
	if d.err == nil && len(m.Version.ChainName) > limits.MaxChainName {
		return nil, malformed("chain_name of %d bytes exceeds limit %d", len(m.Version.ChainName), limits.MaxChainName)
	}

	m.Version.DistributedDBVersion = d.uint16("distributed_db_version")
	m.Version.P2PVersion = d.uint16("p2p_version")

	if err := d.finish("connection message"); err != nil {
		return nil, err
	}
	return m, nil
}
