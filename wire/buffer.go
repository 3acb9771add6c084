// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the length-prefixed binary protocol spoken
// by the game server's auth plugin. Frames are a 4-byte big-endian
// payload length followed by the payload; integers are big-endian and
// strings carry a 4-byte length prefix followed by raw UTF-8.
//
// Buffer is fixed-capacity with independent read and write cursors.
// It never grows: a frame that would not fit is rejected before any
// payload byte is read.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Capacity is the fixed buffer size and therefore the maximum frame
// payload size. Declared frame lengths above this are rejected with
// ErrFrameTooLarge before the payload is read.
const Capacity = 128

var (
	// ErrOverflow reports a write past the end of the buffer.
	ErrOverflow = errors.New("wire: write past end of buffer")

	// ErrUnderrun reports a read past the end of the buffered data.
	ErrUnderrun = errors.New("wire: read past end of buffered data")

	// ErrMalformed reports string bytes that are not valid UTF-8.
	ErrMalformed = errors.New("wire: string is not valid UTF-8")

	// ErrFrameTooLarge reports a declared frame length above Capacity.
	ErrFrameTooLarge = errors.New("wire: declared frame length exceeds capacity")
)

// Buffer is a fixed-capacity byte buffer with separate read and write
// cursors. Put* operations append at the write cursor; Next*
// operations consume from the read cursor and never read past the
// write cursor. Not safe for concurrent use.
type Buffer struct {
	data        [Capacity]byte
	readCursor  int
	writeCursor int
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Reset zeroes both cursors. The underlying bytes are not cleared.
func (b *Buffer) Reset() {
	b.readCursor = 0
	b.writeCursor = 0
}

// Len returns the number of bytes written to the buffer.
func (b *Buffer) Len() int {
	return b.writeCursor
}

// PutU8 appends one byte.
func (b *Buffer) PutU8(value uint8) error {
	if b.writeCursor+1 > Capacity {
		return ErrOverflow
	}
	b.data[b.writeCursor] = value
	b.writeCursor++
	return nil
}

// PutU32 appends a big-endian 32-bit integer.
func (b *Buffer) PutU32(value uint32) error {
	if b.writeCursor+4 > Capacity {
		return ErrOverflow
	}
	binary.BigEndian.PutUint32(b.data[b.writeCursor:], value)
	b.writeCursor += 4
	return nil
}

// PutString appends a 4-byte big-endian length prefix followed by the
// raw string bytes.
func (b *Buffer) PutString(value string) error {
	if err := b.PutU32(uint32(len(value))); err != nil {
		return err
	}
	if b.writeCursor+len(value) > Capacity {
		return ErrOverflow
	}
	copy(b.data[b.writeCursor:], value)
	b.writeCursor += len(value)
	return nil
}

// NextU8 reads one byte and advances the read cursor.
func (b *Buffer) NextU8() (uint8, error) {
	if b.readCursor+1 > b.writeCursor {
		return 0, ErrUnderrun
	}
	value := b.data[b.readCursor]
	b.readCursor++
	return value, nil
}

// NextU32 reads a big-endian 32-bit integer and advances the read
// cursor.
func (b *Buffer) NextU32() (uint32, error) {
	if b.readCursor+4 > b.writeCursor {
		return 0, ErrUnderrun
	}
	value := binary.BigEndian.Uint32(b.data[b.readCursor:])
	b.readCursor += 4
	return value, nil
}

// NextString reads a length-prefixed UTF-8 string and advances the
// read cursor. Returns ErrMalformed if the bytes are not valid UTF-8.
func (b *Buffer) NextString() (string, error) {
	length, err := b.NextU32()
	if err != nil {
		return "", err
	}
	if b.readCursor+int(length) > b.writeCursor {
		return "", ErrUnderrun
	}
	raw := b.data[b.readCursor : b.readCursor+int(length)]
	if !utf8.Valid(raw) {
		return "", ErrMalformed
	}
	b.readCursor += int(length)
	return string(raw), nil
}

// ReadFrame resets the buffer, reads a 4-byte big-endian frame length
// from r, then reads that many payload bytes into the buffer. A
// declared length above Capacity is rejected before any payload read.
func (b *Buffer) ReadFrame(r io.Reader) error {
	b.Reset()

	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("wire: reading frame length: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > Capacity {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	if _, err := io.ReadFull(r, b.data[:length]); err != nil {
		return fmt.Errorf("wire: reading frame payload: %w", err)
	}
	b.writeCursor = int(length)
	return nil
}

// WriteFrame writes the buffered bytes to w as one frame — 4-byte
// big-endian length, then payload — and resets the buffer.
func (b *Buffer) WriteFrame(w io.Writer) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(b.writeCursor))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: writing frame length: %w", err)
	}
	if _, err := w.Write(b.data[:b.writeCursor]); err != nil {
		return fmt.Errorf("wire: writing frame payload: %w", err)
	}
	b.Reset()
	return nil
}
