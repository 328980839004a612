package handshake

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/tezhandshake/crypto"
	"github.com/opd-ai/tezhandshake/identity"
	"github.com/opd-ai/tezhandshake/transport"
	"github.com/opd-ai/tezhandshake/wire"
)

const testPowTarget = 8

var (
	identityOnce sync.Once
	identities   []*identity.Identity
)

// testIdentities returns two identities with proof of work for
// testPowTarget, generated once per test binary.
func testIdentities(t *testing.T) (*identity.Identity, *identity.Identity) {
	t.Helper()
	identityOnce.Do(func() {
		for i := 0; i < 2; i++ {
			id, err := identity.Generate(context.Background(), testPowTarget)
			if err != nil {
				panic(err)
			}
			identities = append(identities, id)
		}
	})
	return identities[0], identities[1]
}

func testConfig(id *identity.Identity) Config {
	cfg := DefaultConfig(id)
	cfg.PowTarget = testPowTarget
	cfg.DialTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	return cfg
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

// listen starts a loopback listener whose first accepted connection is
// passed to serve. The returned channel yields serve's error.
func listen(t *testing.T, serve func(net.Conn) error) (string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		done <- serve(conn)
	}()
	return ln.Addr().String(), done
}

// countingDeriver wraps crypto.DeriveSessionKeys, counting calls and keeping
// a copy of the last derived keys.
type countingDeriver struct {
	calls atomic.Int32
	mu    sync.Mutex
	last  crypto.SessionKeys
}

func (d *countingDeriver) derive(sk crypto.SecretKey, pk crypto.PublicKey, local, remote []byte) (*crypto.SessionKeys, error) {
	d.calls.Add(1)
	keys, err := crypto.DeriveSessionKeys(sk, pk, local, remote)
	if err == nil {
		d.mu.Lock()
		d.last = *keys
		d.mu.Unlock()
	}
	return keys, err
}

func (d *countingDeriver) keys() crypto.SessionKeys {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// scriptedStream replays prepared frames and records what the engine writes.
type scriptedStream struct {
	mu      sync.Mutex
	reads   []func(written [][]byte) ([]byte, error)
	written [][]byte
	closed  bool
}

func (s *scriptedStream) WriteFrame(payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transport.ErrConnectionClosed
	}
	frame, err := wire.EncodeFrame(payload)
	if err != nil {
		return nil, err
	}
	s.written = append(s.written, frame)
	return frame, nil
}

func (s *scriptedStream) ReadFrame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transport.ErrConnectionClosed
	}
	if len(s.reads) == 0 {
		return nil, io.EOF
	}
	next := s.reads[0]
	s.reads = s.reads[1:]
	return next(s.written)
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func frameOf(payload []byte) func([][]byte) ([]byte, error) {
	return func([][]byte) ([]byte, error) {
		return wire.EncodeFrame(payload)
	}
}

func connectionPayload(t *testing.T, id *identity.Identity, version wire.NetworkVersion) []byte {
	t.Helper()
	nonce, err := crypto.GenerateNonce()
	require.NoError(t, err)
	msg := &wire.ConnectionMessage{
		Port:         19732,
		PublicKey:    id.PublicKey,
		ProofOfWork:  id.ProofOfWork,
		MessageNonce: nonce,
		Version:      version,
	}
	payload, err := msg.Encode()
	require.NoError(t, err)
	return payload
}

// manualPeer speaks the protocol step by step with the lower level packages
// so tests can make it misbehave at a chosen point.
type manualPeer struct {
	id      *identity.Identity
	version wire.NetworkVersion
	// ack is sent as the raw ack payload.
	ack []byte
}

func (p *manualPeer) serve(conn net.Conn) error {
	c := transport.NewConn(conn, transport.DefaultConnConfig())
	defer c.Close()

	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return err
	}
	msg := &wire.ConnectionMessage{
		Port:         19732,
		PublicKey:    p.id.PublicKey,
		ProofOfWork:  p.id.ProofOfWork,
		MessageNonce: nonce,
		Version:      p.version,
	}
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	sent, err := c.WriteFrame(payload)
	if err != nil {
		return err
	}
	recv, err := c.ReadFrame()
	if err != nil {
		return err
	}
	peer, err := wire.DecodeConnectionMessage(recv[2:])
	if err != nil {
		return err
	}

	keys, err := crypto.DeriveSessionKeys(p.id.SecretKey, peer.PublicKey, sent, recv)
	if err != nil {
		return err
	}
	ch, err := transport.NewChannel(c, keys)
	keys.Wipe()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Send(wire.Metadata{}.Encode()); err != nil {
		return err
	}
	if _, err := ch.Receive(); err != nil {
		return err
	}
	if err := ch.Send(p.ack); err != nil {
		return err
	}
	// The engine's own ack; the engine may already have hung up.
	_, _ = ch.Receive()
	return nil
}

// recordingObserver keeps every event it sees.
type recordingObserver struct {
	mu       sync.Mutex
	states   []string
	outcomes []string
	sent     int
	received int
}

func (o *recordingObserver) FrameSent(int) {
	o.mu.Lock()
	o.sent++
	o.mu.Unlock()
}

func (o *recordingObserver) FrameReceived(int) {
	o.mu.Lock()
	o.received++
	o.mu.Unlock()
}

func (o *recordingObserver) StateEntered(state string) {
	o.mu.Lock()
	o.states = append(o.states, state)
	o.mu.Unlock()
}

func (o *recordingObserver) HandshakeCompleted(outcome string, _ time.Duration) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}
