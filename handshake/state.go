package handshake

// State is a step of the handshake state machine.
type State int

const (
	// StateInit is the state before anything has been sent.
	StateInit State = iota
	// StateSentConnectionMessage follows the write of our connection message.
	StateSentConnectionMessage
	// StateKeysDerived follows a valid peer connection message and key derivation.
	StateKeysDerived
	// StateSentMetadata follows the write of our encrypted metadata.
	StateSentMetadata
	// StateMetadataExchanged follows authentication of the peer's metadata.
	StateMetadataExchanged
	// StateSuccess is terminal: both sides acknowledged.
	StateSuccess
	// StateFailed is terminal: see the returned *Error.
	StateFailed
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateSentConnectionMessage:
		return "SentConnectionMessage"
	case StateKeysDerived:
		return "KeysDerived"
	case StateSentMetadata:
		return "SentMetadata"
	case StateMetadataExchanged:
		return "MetadataExchanged"
	case StateSuccess:
		return "Success"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}
