package handshake

import (
	"time"

	"go.uber.org/multierr"

	"github.com/opd-ai/tezhandshake/crypto"
	"github.com/opd-ai/tezhandshake/transport"
	"github.com/opd-ai/tezhandshake/wire"
)

// Result describes a successful handshake and owns the live session.
type Result struct {
	SessionID     string
	Addr          string
	PeerPublicKey crypto.PublicKey
	PeerID        string
	PeerPort      uint16
	PeerVersion   wire.NetworkVersion
	PeerMetadata  wire.Metadata
	Elapsed       time.Duration

	// Channel carries further authenticated messages in both directions.
	Channel *transport.Channel

	stream Stream
}

// Close ends the session: the stream is closed and the session keys are
// wiped.
func (r *Result) Close() error {
	return multierr.Combine(r.stream.Close(), r.Channel.Close())
}
