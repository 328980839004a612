package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/opd-ai/tezhandshake/limits"
)

// EncodeFrame prepends the 2-byte big-endian length to payload.
func EncodeFrame(payload []byte) ([]byte, error) {
	if err := limits.ValidateFramePayload(payload); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	frame := make([]byte, limits.LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint16(frame, uint16(len(payload)))
	copy(frame[limits.LengthPrefixSize:], payload)
	return frame, nil
}

// DecodeFrame returns the payload of a single complete frame. The declared
// length must match the remaining bytes exactly.
func DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) < limits.LengthPrefixSize {
		return nil, malformed("frame of %d bytes has no length prefix", len(frame))
	}
	declared := int(binary.BigEndian.Uint16(frame))
	available := len(frame) - limits.LengthPrefixSize
	if declared != available {
		return nil, malformed("frame declares %d payload bytes, %d available", declared, available)
	}
	return frame[limits.LengthPrefixSize:], nil
}

// ReadFrame blocks until one whole frame has been read from r and returns it
// with its length prefix. A stream that ends before the first byte returns
// io.EOF; one that ends inside a frame returns an error wrapping both
// ErrMalformedMessage and io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [limits.LengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated length prefix: %w", ErrMalformedMessage, err)
		}
		return nil, err
	}

	length := int(binary.BigEndian.Uint16(header[:]))
	frame := make([]byte, limits.LengthPrefixSize+length)
	copy(frame, header[:])
	if _, err := io.ReadFull(r, frame[limits.LengthPrefixSize:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream closed inside a %d byte frame: %w",
				ErrMalformedMessage, length, io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	return frame, nil
}

// WriteFrame writes payload as one frame with a single Write call.
func WriteFrame(w io.Writer, payload []byte) ([]byte, error) {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(frame); err != nil {
		return nil, err
	}
	return frame, nil
}
