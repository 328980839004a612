// Package transport carries handshake frames over a TCP stream and provides
// the encrypted channel used once session keys exist.
//
// # Framed Connections
//
// Conn wraps a net.Conn and bounds every read and write with a deadline, so
// a silent or slow peer surfaces as ErrTimeout instead of blocking forever:
//
//	conn, err := transport.Dial(ctx, "203.0.113.7:9732", transport.DefaultConnConfig())
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	frame, err := conn.ReadFrame()
//
// Closing a Conn, or cancelling the context passed to Dial, makes any
// in-flight read or write fail promptly.
//
// # Encrypted Channel
//
// Channel seals each message with NaCl secretbox under the local direction
// key and opens incoming frames under the remote direction key. Each
// direction has its own 24-byte counter used as the nonce. The counters start
// at zero, are private to the Channel, and advance once per message, so the
// two peers stay in lockstep purely through message order:
//
//	ch, err := transport.NewChannel(conn, keys)
//	if err := ch.Send([]byte("ping")); err != nil {
//	    return err
//	}
//	reply, err := ch.Receive()
//	if errors.Is(err, transport.ErrDecryptionFailed) {
//	    // tampered frame, wrong key or desynchronized counters: tear down
//	}
//
// A decryption failure is fatal. The Channel refuses further use and the
// caller must close the connection.
package transport
