// Package handshake runs the peer connection handshake as an explicit state
// machine:
//
//	Init
//	  -> SentConnectionMessage   send our connection message in clear
//	  -> KeysDerived             read the peer's, check its proof of work, derive keys
//	  -> SentMetadata            send our metadata, encrypted
//	  -> MetadataExchanged       read and authenticate the peer's metadata
//	  -> Success                 exchange acks; the peer accepted
//
// Any step may end in Failed. The failure is returned as an *Error whose Kind
// says what went wrong and which errors.Is matches against the package
// sentinels:
//
//	engine, err := handshake.New(handshake.DefaultConfig(identity.Default()))
//	if err != nil {
//	    return err
//	}
//	res, err := engine.Connect(ctx, "203.0.113.7:9732")
//	var herr *handshake.Error
//	switch {
//	case errors.As(err, &herr) && herr.Kind == handshake.KindRejected:
//	    // herr.AlternatePeers holds the peer's suggestions
//	case err != nil:
//	    return err
//	}
//	defer res.Close()
//
// A handshake attempt is single-shot. The engine never retries; callers that
// walk a list of addresses do so themselves. The static identity is shared
// between attempts, while nonces and session keys are fresh for each one.
//
// Proof of work is checked before any key derivation, since it is the only
// check possible on data the crypto layer has not authenticated.
package handshake
