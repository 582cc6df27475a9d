// ABOUTME: Length-prefixed framing so one logical command survives partial or coalesced reads.
// ABOUTME: 4-byte big-endian length header followed by the CBOR body.

package command

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the size of the length prefix in bytes.
const HeaderSize = 4

// MaxFrameSize bounds the body length accepted by ReadFrame.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned when a frame header announces a body larger
// than MaxFrameSize. The stream is out of sync after this error.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Frame prepends the length header to body.
func Frame(body []byte) []byte {
	buf := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(buf[:HeaderSize], uint32(len(body)))
	copy(buf[HeaderSize:], body)
	return buf
}

// EncodeFrame encodes c and frames it, ready to be written to a stream.
func EncodeFrame(c Command) ([]byte, error) {
	body, err := Encode(c)
	if err != nil {
		return nil, err
	}
	return Frame(body), nil
}

// WriteFrame writes body as one frame. Header and body go out in a single
// Write call.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	_, err := w.Write(Frame(body))
	return err
}

// WriteCommand encodes c and writes it as one frame.
func WriteCommand(w io.Writer, c Command) error {
	body, err := Encode(c)
	if err != nil {
		return err
	}
	return WriteFrame(w, body)
}

// ReadFrame reads one frame and returns its body.
// It returns io.EOF only when the stream ends cleanly between frames;
// a stream that ends mid-frame yields io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}
