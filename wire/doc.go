// Package wire implements the binary encoding of the handshake messages.
//
// Every message travels in a frame: a 2-byte big-endian length followed by
// exactly that many payload bytes. Payloads use a self-describing layout with
// big-endian fixed-width integers and u32 byte-length prefixes in front of
// strings and sequences.
//
// Three message types are defined:
//
//   - ConnectionMessage, sent in clear as the first frame in each direction
//   - Metadata, the first encrypted message
//   - Ack, a closed sum type (Ack, Nack, NackV0) that ends the handshake
//
// Decoding is strict. Truncated fields, lengths that overrun the buffer,
// unknown tags and trailing bytes all fail with an error wrapping
// ErrMalformedMessage:
//
//	msg, err := wire.DecodeConnectionMessage(payload)
//	if errors.Is(err, wire.ErrMalformedMessage) {
//	    // reject the peer
//	}
package wire
