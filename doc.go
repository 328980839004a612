// Package tezhandshake implements the connection handshake of the Tezos
// peer-to-peer network: the exchange that takes two nodes from a bare TCP
// connection to an authenticated, encrypted session.
//
// # Protocol
//
// Each side writes a cleartext connection message carrying its public key,
// proof-of-work stamp, a random nonce and its network version, then reads
// the peer's. Session keys are derived from the X25519 shared secret and
// both raw frames. Everything after that travels through a NaCl secretbox
// channel with one 24-byte nonce counter per direction: first the metadata
// message, then the ack that accepts or refuses the session.
//
// # Packages
//
//   - wire: frame and message encodings
//   - crypto: keys, session key derivation, nonces, proof of work, peer ids
//   - transport: deadline-bounded framed connections and the encrypted channel
//   - handshake: the state machine and its typed failures
//   - identity: identity files and generation
//   - discovery: static address lists and DNS bootstrap resolution
//   - bootstrap: ordered attempts across candidate peers
//   - peerbook: persistent record of attempted and suggested peers
//   - metrics: Prometheus collectors for handshake activity
//   - limits: size limits shared by the codecs
//
// # Getting Started
//
//	id := identity.Default()
//	engine, err := handshake.New(handshake.DefaultConfig(id))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := engine.Connect(ctx, "203.0.113.7:9732")
//	if err != nil {
//	    var herr *handshake.Error
//	    if errors.As(err, &herr) && herr.Kind == handshake.KindRejected {
//	        fmt.Println("try instead:", herr.AlternatePeers)
//	    }
//	    log.Fatal(err)
//	}
//	defer res.Close()
//
//	fmt.Println("connected to", res.PeerID)
//
// The cmd/tezhandshake command wraps the same steps with DNS bootstrap,
// a peer book and Prometheus metrics.
package tezhandshake
