package wire

import (
	"encoding/binary"
	"math"
)

// encoder appends big-endian fields to a buffer.
type encoder struct {
	buf []byte
}

func (e *encoder) uint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) uint16(v uint16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, v)
}

func (e *encoder) uint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *encoder) fixed(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) bool(v bool) {
	if v {
		e.uint8(0xFF)
		return
	}
	e.uint8(0x00)
}

func (e *encoder) string(s string) {
	e.uint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// section writes a u32 byte-length followed by whatever fn appends.
func (e *encoder) section(fn func(*encoder)) {
	at := len(e.buf)
	e.uint32(0)
	fn(e)
	binary.BigEndian.PutUint32(e.buf[at:], uint32(len(e.buf)-at-4))
}

// decoder reads big-endian fields from a buffer. The first failure is
// sticky: later reads return zero values and err keeps the original cause.
type decoder struct {
	data []byte
	off  int
	err  error
}

func newDecoder(data []byte) *decoder {
	return &decoder{data: data}
}

func (d *decoder) remaining() int {
	return len(d.data) - d.off
}

func (d *decoder) take(n int, field string) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.remaining() {
		d.err = malformed("%s: need %d bytes, %d left", field, n, d.remaining())
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) uint8(field string) uint8 {
	b := d.take(1, field)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) uint16(field string) uint16 {
	b := d.take(2, field)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (d *decoder) uint32(field string) uint32 {
	b := d.take(4, field)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) fixed(dst []byte, field string) {
	if b := d.take(len(dst), field); b != nil {
		copy(dst, b)
	}
}

func (d *decoder) bool(field string) bool {
	switch v := d.uint8(field); {
	case d.err != nil:
		return false
	case v == 0x00:
		return false
	case v == 0xFF:
		return true
	default:
		d.err = malformed("%s: invalid boolean byte 0x%02x", field, v)
		return false
	}
}

func (d *decoder) length(field string) int {
	n := d.uint32(field + " length")
	if d.err != nil {
		return 0
	}
	if n > math.MaxInt32 || int(n) > d.remaining() {
		d.err = malformed("%s: declared %d bytes, %d left", field, n, d.remaining())
		return 0
	}
	return int(n)
}

func (d *decoder) string(field string) string {
	n := d.length(field)
	return string(d.take(n, field))
}

// section returns a decoder over the next u32 byte-length delimited region.
func (d *decoder) section(field string) *decoder {
	n := d.length(field)
	if d.err != nil {
		return &decoder{err: d.err}
	}
	return &decoder{data: d.take(n, field)}
}

// finish reports the first error, or a malformed error if bytes are left over.
func (d *decoder) finish(what string) error {
	if d.err != nil {
		return d.err
	}
	if d.remaining() != 0 {
		return malformed("%s: %d trailing bytes", what, d.remaining())
	}
	return nil
}
