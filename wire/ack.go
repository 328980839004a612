package wire

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/opd-ai/tezhandshake/limits"
)

// Ack tags on the wire.
const (
	tagAck    uint8 = 0x00
	tagNack   uint8 = 0x01
	tagNackV0 uint8 = 0xFF
)

// NackMotive explains why a peer refused the connection.
type NackMotive uint16

const (
	NackNoMotive NackMotive = iota
	NackTooManyConnections
	NackUnknownChainName
	NackDeprecatedP2PVersion
	NackDeprecatedDistributedDBVersion
	NackAlreadyConnected
)

// String returns a human readable motive.
func (m NackMotive) String() string {
	switch m {
	case NackNoMotive:
		return "no motive"
	case NackTooManyConnections:
		return "too many connections"
	case NackUnknownChainName:
		return "unknown chain name"
	case NackDeprecatedP2PVersion:
		return "deprecated p2p version"
	case NackDeprecatedDistributedDBVersion:
		return "deprecated distributed db version"
	case NackAlreadyConnected:
		return "already connected"
	default:
		return "motive(" + strconv.Itoa(int(m)) + ")"
	}
}

// AckMessage is the terminal message of the handshake. The set of
// implementations is closed: *Ack, *Nack and *NackV0.
type AckMessage interface {
	// Accepted reports whether the sender accepts the connection.
	Accepted() bool
	String() string
	encode(e *encoder)
}

// Ack accepts the connection.
type Ack struct{}

// Nack refuses the connection and may suggest other peers to try.
type Nack struct {
	Motive         NackMotive
	PotentialPeers []string
}

// NackV0 is the legacy refusal without a body.
type NackV0 struct{}

func (*Ack) Accepted() bool    { return true }
func (*Nack) Accepted() bool   { return false }
func (*NackV0) Accepted() bool { return false }

func (*Ack) String() string { return "Ack" }

func (n *Nack) String() string {
	return fmt.Sprintf("Nack(%s, %d potential peers)", n.Motive, len(n.PotentialPeers))
}

func (*NackV0) String() string { return "NackV0" }

func (*Ack) encode(e *encoder) { e.uint8(tagAck) }

func (n *Nack) encode(e *encoder) {
	e.uint8(tagNack)
	e.uint16(uint16(n.Motive))
	e.section(func(e *encoder) {
		for _, p := range n.PotentialPeers {
			e.string(p)
		}
	})
}

func (*NackV0) encode(e *encoder) { e.uint8(tagNackV0) }

// EncodeAck returns the payload bytes of an ack message.
func EncodeAck(msg AckMessage) ([]byte, error) {
	if msg == nil {
		return nil, invalid("nil ack message")
	}
	if n, ok := msg.(*Nack); ok {
		if len(n.PotentialPeers) > limits.MaxAlternatePeers {
			return nil, invalid("%d potential peers exceed limit %d", len(n.PotentialPeers), limits.MaxAlternatePeers)
		}
		for _, p := range n.PotentialPeers {
			if err := ValidatePeerAddress(p); err != nil {
				return nil, invalid("potential peer %q: %v", p, err)
			}
		}
	}

	e := &encoder{}
	msg.encode(e)
	if len(e.buf) > limits.MaxCleartext {
		return nil, invalid("ack message of %d bytes does not fit an encrypted frame", len(e.buf))
	}
	return e.buf, nil
}

// DecodeAck parses an ack payload. Unknown tags are malformed.
func DecodeAck(payload []byte) (AckMessage, error) {
	d := newDecoder(payload)
	var msg AckMessage

	switch tag := d.uint8("ack tag"); {
	case d.err != nil:
		return nil, d.err
	case tag == tagAck:
		msg = &Ack{}
	case tag == tagNackV0:
		msg = &NackV0{}
	case tag == tagNack:
		n := &Nack{Motive: NackMotive(d.uint16("nack motive"))}
		peers := d.section("potential_peers")
		for peers.err == nil && peers.remaining() > 0 {
			if len(n.PotentialPeers) == limits.MaxAlternatePeers {
				return nil, malformed("more than %d potential peers", limits.MaxAlternatePeers)
			}
			p := peers.string("potential peer")
			if peers.err != nil {
				break
			}
			if err := ValidatePeerAddress(p); err != nil {
				return nil, malformed("potential peer %q: %v", p, err)
			}
			n.PotentialPeers = append(n.PotentialPeers, p)
		}
		if peers.err != nil {
			return nil, peers.err
		}
		msg = n
	default:
		return nil, malformed("unknown ack tag 0x%02x", tag)
	}

	if err := d.finish("ack"); err != nil {
		return nil, err
	}
	return msg, nil
}

// ValidatePeerAddress checks that addr has the host:port form with a
// non-empty host and a numeric port.
func ValidatePeerAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "" {
		return errors.New("missing host")
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
