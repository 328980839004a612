package handshake

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tezhandshake/crypto"
	"github.com/opd-ai/tezhandshake/identity"
	"github.com/opd-ai/tezhandshake/transport"
	"github.com/opd-ai/tezhandshake/wire"
)

// DefaultPort is the advertised listening port when none is configured.
const DefaultPort = 9732

// AckPolicy chooses the ack we send once the peer's connection message and
// metadata are known. Returning anything but *wire.Ack ends the attempt with
// KindRefused after the ack has been sent.
type AckPolicy func(local wire.NetworkVersion, peer *wire.ConnectionMessage, meta wire.Metadata) wire.AckMessage

// Observer receives progress events; metrics.Collector implements it.
type Observer interface {
	transport.FrameObserver
	StateEntered(state string)
	HandshakeCompleted(outcome string, elapsed time.Duration)
}

// Config holds everything one Engine needs. Use DefaultConfig and override
// fields as needed.
type Config struct {
	// Identity is shared read-only across attempts.
	Identity *identity.Identity

	// Port is advertised in our connection message.
	Port uint16

	Version  wire.NetworkVersion
	Metadata wire.Metadata

	// PowTarget is the number of leading zero bits required of the peer's
	// proof of work. Zero disables the check.
	PowTarget int

	// DialTimeout, ReadTimeout and WriteTimeout bound each dial, frame read
	// and frame write. Zero disables that bound: the ctx passed to Connect
	// or Handshake is then the only thing that ends a stalled peer, so pass
	// one with a deadline.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	AckPolicy AckPolicy
	Logger    *logrus.Entry
	Clock     clock.Clock
	Observer  Observer

	// DeriveKeys derives the session keys; defaults to crypto.DeriveSessionKeys.
	DeriveKeys crypto.KeyDeriver

	// Random is the source of connection message nonces.
	Random io.Reader
}

// DefaultConfig returns a mainnet configuration for id.
func DefaultConfig(id *identity.Identity) Config {
	return Config{
		Identity:     id,
		Port:         DefaultPort,
		Version:      wire.DefaultNetworkVersion(),
		PowTarget:    crypto.DefaultProofOfWorkTarget,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		AckPolicy:    DefaultAckPolicy,
		Clock:        clock.New(),
		DeriveKeys:   crypto.DeriveSessionKeys,
		Random:       rand.Reader,
	}
}

// Validate reports the first unusable field. Zero timeouts are valid; see
// DialTimeout.
func (c *Config) Validate() error {
	if c.Identity == nil {
		return errors.New("identity is required")
	}
	if err := c.Version.Validate(); err != nil {
		return fmt.Errorf("network version: %w", err)
	}
	if c.PowTarget < 0 || c.PowTarget > crypto.MaxProofOfWorkTarget {
		return fmt.Errorf("proof of work target %d out of range [0, %d]", c.PowTarget, crypto.MaxProofOfWorkTarget)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// withDefaults fills nil hooks so the engine never checks for them.
func (c Config) withDefaults() Config {
	if c.AckPolicy == nil {
		c.AckPolicy = DefaultAckPolicy
	}
	if c.Logger == nil {
		c.Logger = logrus.WithField("component", "handshake")
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.DeriveKeys == nil {
		c.DeriveKeys = crypto.DeriveSessionKeys
	}
	if c.Random == nil {
		c.Random = rand.Reader
	}
	return c
}

func (c *Config) connConfig() transport.ConnConfig {
	cfg := transport.ConnConfig{
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		Logger:       c.Logger,
	}
	if c.Observer != nil {
		cfg.Observer = c.Observer
	}
	return cfg
}

// DefaultAckPolicy accepts peers on our chain whose announced versions are
// not older than ours.
func DefaultAckPolicy(local wire.NetworkVersion, peer *wire.ConnectionMessage, _ wire.Metadata) wire.AckMessage {
	switch {
	case peer.Version.ChainName != local.ChainName:
		return &wire.Nack{Motive: wire.NackUnknownChainName}
	case peer.Version.P2PVersion < local.P2PVersion:
		return &wire.Nack{Motive: wire.NackDeprecatedP2PVersion}
	case peer.Version.DistributedDBVersion < local.DistributedDBVersion:
		return &wire.Nack{Motive: wire.NackDeprecatedDistributedDBVersion}
	}
	return &wire.Ack{}
}

// AcceptAll answers Ack to every peer.
func AcceptAll(wire.NetworkVersion, *wire.ConnectionMessage, wire.Metadata) wire.AckMessage {
	return &wire.Ack{}
}
