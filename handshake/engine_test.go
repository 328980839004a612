package handshake

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/tezhandshake/crypto"
	"github.com/opd-ai/tezhandshake/identity"
	"github.com/opd-ai/tezhandshake/wire"
)

// runPair connects engine a to engine b over loopback TCP and returns both
// outcomes.
func runPair(t *testing.T, a, b *Engine) (resA *Result, errA error, resB *Result, errB error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		resB, errB = b.Handshake(ctx, conn)
		return nil
	})
	g.Go(func() error {
		resA, errA = a.Connect(ctx, ln.Addr().String())
		return nil
	})
	require.NoError(t, g.Wait())
	return resA, errA, resB, errB
}

func TestHandshakeHappyPath(t *testing.T) {
	idA, idB := testIdentities(t)

	derA, derB := &countingDeriver{}, &countingDeriver{}
	obs := &recordingObserver{}

	cfgA := testConfig(idA)
	cfgA.DeriveKeys = derA.derive
	cfgA.Observer = obs
	cfgB := testConfig(idB)
	cfgB.DeriveKeys = derB.derive
	cfgB.Metadata = wire.Metadata{PrivateNode: true}

	resA, errA, resB, errB := runPair(t, newEngine(t, cfgA), newEngine(t, cfgB))
	require.NoError(t, errA)
	require.NoError(t, errB)
	defer resA.Close()
	defer resB.Close()

	// Both sides derived complementary keys exactly once.
	assert.Equal(t, int32(1), derA.calls.Load())
	assert.Equal(t, int32(1), derB.calls.Load())
	keysA, keysB := derA.keys(), derB.keys()
	assert.Equal(t, keysA.Local, keysB.Remote)
	assert.Equal(t, keysA.Remote, keysB.Local)

	assert.Equal(t, idB.PeerID, resA.PeerID)
	assert.Equal(t, idA.PeerID, resB.PeerID)
	assert.Equal(t, idB.PublicKey, resA.PeerPublicKey)
	assert.Equal(t, wire.Metadata{PrivateNode: true}, resA.PeerMetadata)
	assert.Equal(t, wire.Metadata{}, resB.PeerMetadata)
	assert.Equal(t, uint16(DefaultPort), resA.PeerPort)
	assert.Equal(t, "TEZOS_MAINNET", resA.PeerVersion.ChainName)
	assert.NotEqual(t, resA.SessionID, resB.SessionID)

	obs.mu.Lock()
	assert.Equal(t, []string{"SentConnectionMessage", "KeysDerived", "SentMetadata", "MetadataExchanged", "Success"}, obs.states)
	assert.Equal(t, []string{"success"}, obs.outcomes)
	assert.Equal(t, 3, obs.sent, "connection message, metadata and ack")
	assert.Equal(t, 3, obs.received)
	obs.mu.Unlock()

	// The channel keeps working after the handshake.
	require.NoError(t, resA.Channel.Send([]byte("ping")))
	got, err := resB.Channel.Receive()
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), got)

	require.NoError(t, resB.Channel.Send([]byte("pong")))
	got, err = resA.Channel.Receive()
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), got)

	// metadata + ack + ping on each side
	sent, received := resA.Channel.Counters()
	assert.Equal(t, uint64(3), sent)
	assert.Equal(t, uint64(3), received)

}

func TestHandshakeRejectedWithAlternatePeers(t *testing.T) {
	idA, idB := testIdentities(t)
	alternates := []string{"10.0.0.1:9732", "10.0.0.2:9733"}

	cfgB := testConfig(idB)
	cfgB.AckPolicy = func(wire.NetworkVersion, *wire.ConnectionMessage, wire.Metadata) wire.AckMessage {
		return &wire.Nack{Motive: wire.NackTooManyConnections, PotentialPeers: alternates}
	}

	_, errA, _, errB := runPair(t, newEngine(t, testConfig(idA)), newEngine(t, cfgB))

	require.ErrorIs(t, errA, ErrRejected)
	var herr *Error
	require.True(t, errors.As(errA, &herr))
	assert.Equal(t, KindRejected, herr.Kind)
	assert.Equal(t, alternates, herr.AlternatePeers)
	assert.Equal(t, wire.NackTooManyConnections, herr.Motive)
	assert.Equal(t, StateMetadataExchanged, herr.State)
	assert.NotEmpty(t, herr.Addr)

	require.ErrorIs(t, errB, ErrRefused)
	require.True(t, errors.As(errB, &herr))
	assert.Equal(t, alternates, herr.AlternatePeers)
}

func TestHandshakeChainNameMismatch(t *testing.T) {
	idA, idB := testIdentities(t)
	cfgB := testConfig(idB)
	cfgB.Version.ChainName = "TEZOS_GHOSTNET"

	_, errA, _, errB := runPair(t, newEngine(t, testConfig(idA)), newEngine(t, cfgB))

	// Both sides run the default policy and refuse each other.
	var herr *Error
	require.True(t, errors.As(errA, &herr))
	assert.Equal(t, KindRefused, herr.Kind)
	assert.Equal(t, wire.NackUnknownChainName, herr.Motive)
	assert.ErrorIs(t, errB, ErrRefused)
}

func TestHandshakeProofOfWorkGate(t *testing.T) {
	idA, _ := testIdentities(t)

	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	weak := &identity.Identity{PublicKey: kp.Public, SecretKey: kp.Private}
	for stamp := byte(0); crypto.CheckProofOfWork(weak.PublicKey, weak.ProofOfWork, 24) == nil; stamp++ {
		weak.ProofOfWork[0] = stamp + 1
	}

	der := &countingDeriver{}
	cfg := testConfig(idA)
	cfg.PowTarget = 24
	cfg.DeriveKeys = der.derive

	stream := &scriptedStream{reads: []func([][]byte) ([]byte, error){
		frameOf(connectionPayload(t, weak, wire.DefaultNetworkVersion())),
	}}

	_, err = newEngine(t, cfg).HandshakeStream(context.Background(), stream, "scripted")
	require.ErrorIs(t, err, ErrInvalidProofOfWork)
	assert.ErrorIs(t, err, crypto.ErrInvalidProofOfWork)

	var herr *Error
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, StateSentConnectionMessage, herr.State)
	assert.Equal(t, "scripted", herr.Addr)

	assert.Equal(t, int32(0), der.calls.Load(), "no key derivation before proof of work passes")
	assert.Len(t, stream.written, 1, "only the connection message was sent")
	assert.True(t, stream.isClosed())
}

func TestHandshakeMalformedConnectionMessage(t *testing.T) {
	idA, _ := testIdentities(t)
	stream := &scriptedStream{reads: []func([][]byte) ([]byte, error){
		frameOf([]byte{0x00, 0x01, 0x02}),
	}}

	_, err := newEngine(t, testConfig(idA)).HandshakeStream(context.Background(), stream, "scripted")
	assert.ErrorIs(t, err, ErrMalformedMessage)
	assert.ErrorIs(t, err, wire.ErrMalformedMessage)
}

func TestHandshakeReflectedConnectionMessage(t *testing.T) {
	idA, _ := testIdentities(t)
	der := &countingDeriver{}
	cfg := testConfig(idA)
	cfg.DeriveKeys = der.derive

	echo := func(written [][]byte) ([]byte, error) {
		return written[0], nil
	}
	stream := &scriptedStream{reads: []func([][]byte) ([]byte, error){echo}}

	_, err := newEngine(t, cfg).HandshakeStream(context.Background(), stream, "mirror")
	assert.ErrorIs(t, err, ErrKeyExchange)
	assert.Equal(t, int32(0), der.calls.Load())
}

func TestHandshakeLowOrderPeerKey(t *testing.T) {
	idA, _ := testIdentities(t)
	cfg := testConfig(idA)
	cfg.PowTarget = 0

	bad := &identity.Identity{PublicKey: crypto.PublicKey{}}
	stream := &scriptedStream{reads: []func([][]byte) ([]byte, error){
		frameOf(connectionPayload(t, bad, wire.DefaultNetworkVersion())),
	}}

	_, err := newEngine(t, cfg).HandshakeStream(context.Background(), stream, "scripted")
	assert.ErrorIs(t, err, ErrKeyExchange)
	assert.ErrorIs(t, err, crypto.ErrKeyExchange)
}

func TestHandshakeDecryptionFailed(t *testing.T) {
	idA, idB := testIdentities(t)
	garbage := make([]byte, 40)
	for i := range garbage {
		garbage[i] = byte(i)
	}

	stream := &scriptedStream{reads: []func([][]byte) ([]byte, error){
		frameOf(connectionPayload(t, idB, wire.DefaultNetworkVersion())),
		frameOf(garbage),
	}}

	_, err := newEngine(t, testConfig(idA)).HandshakeStream(context.Background(), stream, "scripted")
	require.ErrorIs(t, err, ErrDecryptionFailed)

	var herr *Error
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, StateSentMetadata, herr.State)
	assert.Len(t, stream.written, 2, "connection message and metadata")
}

func TestHandshakeAckProtocolViolation(t *testing.T) {
	idA, idB := testIdentities(t)

	for name, ack := range map[string][]byte{
		"unknown tag":    {0x07},
		"trailing bytes": {0x00, 0x00},
	} {
		t.Run(name, func(t *testing.T) {
			peer := &manualPeer{id: idB, version: wire.DefaultNetworkVersion(), ack: ack}
			addr, done := listen(t, peer.serve)

			_, err := newEngine(t, testConfig(idA)).Connect(context.Background(), addr)
			require.ErrorIs(t, err, ErrProtocolViolation)

			var herr *Error
			require.True(t, errors.As(err, &herr))
			assert.Equal(t, StateMetadataExchanged, herr.State)
			assert.NoError(t, <-done)
		})
	}
}

func TestHandshakeNackV0(t *testing.T) {
	idA, idB := testIdentities(t)
	peer := &manualPeer{id: idB, version: wire.DefaultNetworkVersion(), ack: []byte{0xFF}}
	addr, done := listen(t, peer.serve)

	_, err := newEngine(t, testConfig(idA)).Connect(context.Background(), addr)
	require.ErrorIs(t, err, ErrRejected)

	var herr *Error
	require.True(t, errors.As(err, &herr))
	assert.Empty(t, herr.AlternatePeers)
	assert.NoError(t, <-done)
}

func TestHandshakeTruncatedStream(t *testing.T) {
	idA, _ := testIdentities(t)
	addr, _ := listen(t, func(conn net.Conn) error {
		defer conn.Close()
		// Half of a 100 byte frame, then hang up.
		_, err := conn.Write(append([]byte{0x00, 0x64}, make([]byte, 50)...))
		return err
	})

	start := time.Now()
	_, err := newEngine(t, testConfig(idA)).Connect(context.Background(), addr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedMessage) || errors.Is(err, ErrConnect), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHandshakeReadTimeout(t *testing.T) {
	idA, _ := testIdentities(t)
	hold := make(chan struct{})
	defer close(hold)
	addr, _ := listen(t, func(conn net.Conn) error {
		defer conn.Close()
		<-hold
		return nil
	})

	cfg := testConfig(idA)
	cfg.ReadTimeout = 100 * time.Millisecond

	_, err := newEngine(t, cfg).Connect(context.Background(), addr)
	require.ErrorIs(t, err, ErrTimeout)

	var herr *Error
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, StateSentConnectionMessage, herr.State)
}

func TestHandshakeCancellation(t *testing.T) {
	idA, _ := testIdentities(t)
	cfg := testConfig(idA)
	cfg.ReadTimeout = 0 // only the context can end the wait

	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
		want error
	}{
		{
			name: "canceled",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				time.AfterFunc(50*time.Millisecond, cancel)
				return ctx, cancel
			},
			want: ErrConnect,
		},
		{
			name: "deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 50*time.Millisecond)
			},
			want: ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hold := make(chan struct{})
			defer close(hold)
			addr, _ := listen(t, func(conn net.Conn) error {
				defer conn.Close()
				<-hold
				return nil
			})

			ctx, cancel := tt.ctx()
			defer cancel()

			start := time.Now()
			_, err := newEngine(t, cfg).Connect(ctx, addr)
			assert.ErrorIs(t, err, tt.want)
			assert.Less(t, time.Since(start), 5*time.Second)
		})
	}
}

func TestConnectRefused(t *testing.T) {
	idA, _ := testIdentities(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	obs := &recordingObserver{}
	cfg := testConfig(idA)
	cfg.Observer = obs

	_, err = newEngine(t, cfg).Connect(context.Background(), addr)
	require.ErrorIs(t, err, ErrConnect)

	var herr *Error
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, StateInit, herr.State)
	assert.Equal(t, addr, herr.Addr)
	assert.Equal(t, []string{"connect"}, obs.outcomes)
}
