package handshake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tezhandshake/crypto"
	"github.com/opd-ai/tezhandshake/limits"
	"github.com/opd-ai/tezhandshake/transport"
	"github.com/opd-ai/tezhandshake/wire"
)

// Stream is what one attempt runs over. *transport.Conn implements it; tests
// may supply a scripted stream instead.
type Stream interface {
	transport.FrameReadWriter
	io.Closer
}

// Engine runs handshake attempts with a fixed configuration. It holds no
// per-attempt state and is safe for concurrent use.
type Engine struct {
	cfg Config
}

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("handshake config: %w", err)
	}
	return &Engine{cfg: cfg.withDefaults()}, nil
}

// Connect dials addr and runs one handshake attempt over the new connection.
// On failure the connection is closed and an *Error is returned.
func (e *Engine) Connect(ctx context.Context, addr string) (*Result, error) {
	start := e.cfg.Clock.Now()
	conn, err := transport.Dial(ctx, addr, e.cfg.connConfig())
	if err != nil {
		herr := &Error{
			Kind:  classify(err, ctx.Err()),
			Addr:  addr,
			State: StateInit,
			Err:   err,
		}
		e.completed(herr.Kind.String(), start)
		return nil, herr
	}
	return e.run(ctx, conn, addr, start)
}

// Handshake runs one attempt over an established connection, for example
// one returned by a net.Listener.
func (e *Engine) Handshake(ctx context.Context, conn net.Conn) (*Result, error) {
	c := transport.NewConn(conn, e.cfg.connConfig())
	return e.run(ctx, c, c.RemoteAddr(), e.cfg.Clock.Now())
}

// HandshakeStream runs one attempt over an arbitrary frame stream. addr is
// only used for reporting.
func (e *Engine) HandshakeStream(ctx context.Context, stream Stream, addr string) (*Result, error) {
	return e.run(ctx, stream, addr, e.cfg.Clock.Now())
}

func (e *Engine) run(ctx context.Context, stream Stream, addr string, start time.Time) (*Result, error) {
	a := &attempt{
		cfg:    &e.cfg,
		stream: stream,
		addr:   addr,
		id:     uuid.NewString(),
		state:  StateInit,
	}
	a.logger = e.cfg.Logger.WithFields(logrus.Fields{
		"address": addr,
		"session": a.id,
	})

	res, err := a.run(ctx)
	if err != nil {
		var herr *Error
		if errors.As(err, &herr) {
			e.completed(herr.Kind.String(), start)
		}
		return nil, err
	}

	res.Elapsed = e.cfg.Clock.Since(start)
	e.completed("success", start)
	return res, nil
}

func (e *Engine) completed(outcome string, start time.Time) {
	if e.cfg.Observer != nil {
		e.cfg.Observer.HandshakeCompleted(outcome, e.cfg.Clock.Since(start))
	}
}

// attempt is the state of one handshake. Nothing in it is shared with other
// attempts.
type attempt struct {
	cfg    *Config
	stream Stream
	addr   string
	id     string
	state  State
	logger *logrus.Entry

	sentConnection []byte // exact frame as written
	recvConnection []byte // exact frame as read
	peer           *wire.ConnectionMessage
	keys           *crypto.SessionKeys
	channel        *transport.Channel
	peerMetadata   wire.Metadata
}

// run drives step until a terminal state. Cancelling ctx closes the stream,
// which unblocks any pending read or write.
func (a *attempt) run(ctx context.Context) (*Result, error) {
	stop := context.AfterFunc(ctx, func() {
		a.stream.Close()
	})

	a.logger.WithField("function", "run").Debug("Starting handshake")

	for !a.state.Terminal() {
		if ctx.Err() != nil {
			stop()
			return nil, a.fail(ctx, newError(classify(ctx.Err(), ctx.Err()), ctx.Err()))
		}

		next, err := a.step()
		if err != nil {
			stop()
			return nil, a.fail(ctx, err)
		}
		a.enter(next)
	}

	if !stop() {
		// ctx fired while the last step completed; the stream is gone.
		return nil, a.fail(ctx, newError(classify(ctx.Err(), ctx.Err()), ctx.Err()))
	}

	a.logger.WithFields(logrus.Fields{
		"function": "run",
		"peer_id":  crypto.PeerID(a.peer.PublicKey),
	}).Info("Handshake succeeded")

	return &Result{
		SessionID:     a.id,
		Addr:          a.addr,
		PeerPublicKey: a.peer.PublicKey,
		PeerID:        crypto.PeerID(a.peer.PublicKey),
		PeerPort:      a.peer.Port,
		PeerVersion:   a.peer.Version,
		PeerMetadata:  a.peerMetadata,
		Channel:       a.channel,
		stream:        a.stream,
	}, nil
}

// step performs the transition out of the current state.
func (a *attempt) step() (State, error) {
	switch a.state {
	case StateInit:
		return a.sendConnectionMessage()
	case StateSentConnectionMessage:
		return a.receiveConnectionMessage()
	case StateKeysDerived:
		return a.sendMetadata()
	case StateSentMetadata:
		return a.receiveMetadata()
	case StateMetadataExchanged:
		return a.exchangeAcks()
	default:
		return StateFailed, newError(KindProtocolViolation, fmt.Errorf("no transition out of %s", a.state))
	}
}

func (a *attempt) enter(next State) {
	a.logger.WithFields(logrus.Fields{
		"function": "step",
		"from":     a.state.String(),
		"to":       next.String(),
	}).Debug("State transition")
	a.state = next
	if a.cfg.Observer != nil {
		a.cfg.Observer.StateEntered(next.String())
	}
}

func (a *attempt) sendConnectionMessage() (State, error) {
	nonce, err := crypto.GenerateNonceFrom(a.cfg.Random)
	if err != nil {
		return StateFailed, newError(KindConnect, fmt.Errorf("message nonce: %w", err))
	}

	msg := &wire.ConnectionMessage{
		Port:         a.cfg.Port,
		PublicKey:    a.cfg.Identity.PublicKey,
		ProofOfWork:  a.cfg.Identity.ProofOfWork,
		MessageNonce: nonce,
		Version:      a.cfg.Version,
	}
	payload, err := msg.Encode()
	if err != nil {
		return StateFailed, newError(KindProtocolViolation, err)
	}

	frame, err := a.stream.WriteFrame(payload)
	if err != nil {
		return StateFailed, err
	}
	a.sentConnection = frame
	return StateSentConnectionMessage, nil
}

func (a *attempt) receiveConnectionMessage() (State, error) {
	frame, err := a.stream.ReadFrame()
	if err != nil {
		return StateFailed, err
	}
	if len(frame) < limits.LengthPrefixSize {
		return StateFailed, newError(KindMalformedMessage, errors.New("short connection frame"))
	}

	peer, err := wire.DecodeConnectionMessage(frame[limits.LengthPrefixSize:])
	if err != nil {
		return StateFailed, newError(KindMalformedMessage, err)
	}
	a.peer = peer
	a.recvConnection = frame

	logger := a.logger.WithFields(logrus.Fields{
		"function":         "receiveConnectionMessage",
		"peer_key_prefix":  peer.PublicKey.Short(),
		"peer_port":        peer.Port,
		"peer_chain_name":  peer.Version.ChainName,
		"peer_p2p_version": peer.Version.P2PVersion,
		"peer_ddb_version": peer.Version.DistributedDBVersion,
	})
	logger.Debug("Peer connection message received")

	if peer.PublicKey == a.cfg.Identity.PublicKey {
		return StateFailed, newError(KindKeyExchange, errors.New("peer presented our own public key"))
	}

	// Proof of work gates everything that follows.
	if err := crypto.CheckProofOfWork(peer.PublicKey, peer.ProofOfWork, a.cfg.PowTarget); err != nil {
		logger.WithField("target", a.cfg.PowTarget).Warn("Peer proof of work rejected")
		return StateFailed, newError(KindInvalidProofOfWork, err)
	}

	keys, err := a.cfg.DeriveKeys(a.cfg.Identity.SecretKey, peer.PublicKey, a.sentConnection, a.recvConnection)
	if err != nil {
		return StateFailed, newError(KindKeyExchange, err)
	}
	a.keys = keys
	return StateKeysDerived, nil
}

func (a *attempt) sendMetadata() (State, error) {
	channel, err := transport.NewChannel(a.stream, a.keys)
	a.keys.Wipe()
	a.keys = nil
	if err != nil {
		return StateFailed, newError(KindKeyExchange, err)
	}
	a.channel = channel

	if err := a.channel.Send(a.cfg.Metadata.Encode()); err != nil {
		return StateFailed, err
	}
	return StateSentMetadata, nil
}

func (a *attempt) receiveMetadata() (State, error) {
	payload, err := a.channel.Receive()
	if err != nil {
		return StateFailed, err
	}

	meta, err := wire.DecodeMetadata(payload)
	if err != nil {
		return StateFailed, newError(KindMalformedMessage, err)
	}
	a.peerMetadata = meta

	a.logger.WithFields(logrus.Fields{
		"function":        "receiveMetadata",
		"disable_mempool": meta.DisableMempool,
		"private_node":    meta.PrivateNode,
	}).Debug("Peer metadata received")
	return StateMetadataExchanged, nil
}

func (a *attempt) exchangeAcks() (State, error) {
	local := a.cfg.AckPolicy(a.cfg.Version, a.peer, a.peerMetadata)
	payload, err := wire.EncodeAck(local)
	if err != nil {
		return StateFailed, newError(KindProtocolViolation, err)
	}
	if err := a.channel.Send(payload); err != nil {
		return StateFailed, err
	}

	if !local.Accepted() {
		// The peer's ack is already in flight; reading it lets both sides
		// close cleanly. Its content does not change the outcome.
		if _, err := a.channel.Receive(); err != nil {
			a.logger.WithField("function", "exchangeAcks").WithError(err).Debug("Peer ack not read after refusal")
		}
		refused := &Error{Kind: KindRefused}
		if n, ok := local.(*wire.Nack); ok {
			refused.Motive = n.Motive
			refused.AlternatePeers = n.PotentialPeers
		}
		return StateFailed, refused
	}

	payload, err = a.channel.Receive()
	if err != nil {
		return StateFailed, err
	}

	ack, err := wire.DecodeAck(payload)
	if err != nil {
		return StateFailed, newError(KindProtocolViolation, err)
	}

	switch msg := ack.(type) {
	case *wire.Ack:
		return StateSuccess, nil
	case *wire.Nack:
		return StateFailed, &Error{
			Kind:           KindRejected,
			Motive:         msg.Motive,
			AlternatePeers: msg.PotentialPeers,
		}
	case *wire.NackV0:
		return StateFailed, &Error{Kind: KindRejected}
	default:
		return StateFailed, newError(KindProtocolViolation, fmt.Errorf("unexpected ack %s", ack))
	}
}

// fail turns err into an *Error carrying the address and the state the
// attempt was in, closes the stream and wipes any key material.
func (a *attempt) fail(ctx context.Context, err error) error {
	failedIn := a.state

	var herr *Error
	if !errors.As(err, &herr) {
		herr = newError(classify(err, ctx.Err()), err)
	} else if ctx.Err() != nil && herr.Kind != KindRejected && herr.Kind != KindRefused {
		herr.Kind = classify(err, ctx.Err())
	}
	herr.Addr = a.addr
	herr.State = failedIn

	a.state = StateFailed
	if a.cfg.Observer != nil {
		a.cfg.Observer.StateEntered(StateFailed.String())
	}

	a.keys.Wipe()
	if a.channel != nil {
		a.channel.Close()
	}
	a.stream.Close()

	entry := a.logger.WithFields(logrus.Fields{
		"function": "fail",
		"state":    failedIn.String(),
		"kind":     herr.Kind.String(),
	})
	if herr.Err != nil {
		entry = entry.WithError(herr.Err)
	}
	if len(herr.AlternatePeers) > 0 {
		entry = entry.WithField("alternate_peers", herr.AlternatePeers)
	}
	switch herr.Kind {
	case KindRejected, KindRefused:
		entry.WithField("motive", herr.Motive.String()).Info("Handshake ended with nack")
	default:
		entry.Warn("Handshake failed")
	}
	return herr
}
