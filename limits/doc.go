// Package limits provides centralized size constants and validation functions for
// the peer handshake protocol. Every component that frames, encrypts or parses
// untrusted bytes checks its input against these limits.
//
// # Size Hierarchy
//
//   - MaxFramePayload (65535 bytes): the largest payload a 2-byte big-endian
//     length prefix can announce.
//
//   - MaxEncryptedPayload: a frame payload carrying a sealed message. Identical
//     to MaxFramePayload; listed separately so call sites read clearly.
//
//   - MaxCleartext (65517 bytes): the largest application message that fits in
//     one encrypted frame after the inner 2-byte length and the 16-byte
//     Poly1305 tag added by NaCl secretbox.
//
//   - MaxChainName (128 bytes): upper bound on the network identifier carried in
//     a connection message.
//
// # Validation Functions
//
//	if err := limits.ValidateCleartext(msg); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
//
//	if err := limits.ValidateChainName(name); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
package limits
