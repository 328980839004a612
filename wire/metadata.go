package wire

// MetadataSize is the encoded size of a Metadata payload.
const MetadataSize = 2

// Metadata is exchanged once in each direction over the encrypted channel.
type Metadata struct {
	DisableMempool bool
	PrivateNode    bool
}

// Encode returns the payload bytes of the metadata message.
func (m Metadata) Encode() []byte {
	e := &encoder{buf: make([]byte, 0, MetadataSize)}
	e.bool(m.DisableMempool)
	e.bool(m.PrivateNode)
	return e.buf
}

// DecodeMetadata parses a metadata payload.
func DecodeMetadata(payload []byte) (Metadata, error) {
	d := newDecoder(payload)
	m := Metadata{
		DisableMempool: d.bool("disable_mempool"),
		PrivateNode:    d.bool("private_node"),
	}
	if err := d.finish("metadata"); err != nil {
		return Metadata{}, err
	}
	return m, nil
}
