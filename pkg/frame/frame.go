// Package frame implements the length-prefixed framing used on a pipe.
//
// Wire format: [length: native word, little-endian][payload: length bytes]
//
// The header width follows the host word size (8 bytes on 64-bit hosts, 4 on
// 32-bit hosts). Both ends of a channel must run with the same width.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/billm/baaaht/pipechan/pkg/types"
)

// HeaderSize is the width of the length header in bytes.
const HeaderSize = bits.UintSize / 8

// PutHeader encodes n into the first HeaderSize bytes of dst.
func PutHeader(dst []byte, n int) {
	if HeaderSize == 8 {
		binary.LittleEndian.PutUint64(dst, uint64(n))
		return
	}
	binary.LittleEndian.PutUint32(dst, uint32(n))
}

// ParseHeader decodes the length stored in the first HeaderSize bytes of src.
func ParseHeader(src []byte) uint64 {
	if HeaderSize == 8 {
		return binary.LittleEndian.Uint64(src)
	}
	return uint64(binary.LittleEndian.Uint32(src))
}

// Encode returns header and payload in a single buffer so the frame can be
// handed to the OS in one write.
func Encode(payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	PutHeader(buf, len(payload))
	copy(buf[HeaderSize:], payload)
	return buf
}

// ReadHeader reads one complete header from r. io.EOF and
// io.ErrUnexpectedEOF are returned as-is so callers can tell a closed stream
// apart from other failures.
func ReadHeader(r io.Reader) (uint64, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, err
	}
	return ParseHeader(header[:]), nil
}

// chunkSize is the largest payload allocated up front. Longer payloads grow
// their buffer as bytes arrive.
const chunkSize = 1 << 20

// ReadPayload reads exactly n payload bytes from r. A positive limit rejects
// larger frames before anything is read.
func ReadPayload(r io.Reader, n uint64, limit int) ([]byte, error) {
	if limit > 0 && n > uint64(limit) {
		return nil, types.NewError(types.ErrCodeResourceExhausted,
			fmt.Sprintf("frame payload too large: %d bytes (max %d)", n, limit))
	}
	if n > uint64(^uint(0)>>1) {
		return nil, types.NewError(types.ErrCodeResourceExhausted,
			fmt.Sprintf("frame payload too large: %d bytes", n))
	}

	if n <= chunkSize {
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("reading frame payload: %w", err)
		}
		return payload, nil
	}

	var buf bytes.Buffer
	buf.Grow(chunkSize)
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Write encodes payload and writes the frame to w.
func Write(w io.Writer, payload []byte) error {
	if _, err := w.Write(Encode(payload)); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Read reads one frame from r. See ReadPayload for limit.
func Read(r io.Reader, limit int) ([]byte, error) {
	n, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	return ReadPayload(r, n, limit)
}
