// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func TestPutNextRoundTrip(t *testing.T) {
	b := NewBuffer()
	if err := b.PutU8(7); err != nil {
		t.Fatal(err)
	}
	if err := b.PutU32(0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if err := b.PutString("steve"); err != nil {
		t.Fatal(err)
	}

	u8, err := b.NextU8()
	if err != nil || u8 != 7 {
		t.Fatalf("NextU8 = %d, %v", u8, err)
	}
	u32, err := b.NextU32()
	if err != nil || u32 != 0xDEADBEEF {
		t.Fatalf("NextU32 = %#x, %v", u32, err)
	}
	s, err := b.NextString()
	if err != nil || s != "steve" {
		t.Fatalf("NextString = %q, %v", s, err)
	}
}

func TestBigEndianLayout(t *testing.T) {
	b := NewBuffer()
	b.PutU32(0x01020304)

	var out bytes.Buffer
	if err := b.WriteFrame(&out); err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0, 0, 4, 1, 2, 3, 4}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("frame bytes = %v, want %v", out.Bytes(), want)
	}
}

func TestPutOverflow(t *testing.T) {
	b := NewBuffer()
	if err := b.PutString(strings.Repeat("x", Capacity)); !errors.Is(err, ErrOverflow) {
		t.Errorf("PutString over capacity = %v, want ErrOverflow", err)
	}

	b.Reset()
	for i := 0; i < Capacity; i++ {
		if err := b.PutU8(0); err != nil {
			t.Fatalf("PutU8 %d within capacity: %v", i, err)
		}
	}
	if err := b.PutU8(0); !errors.Is(err, ErrOverflow) {
		t.Errorf("PutU8 past capacity = %v, want ErrOverflow", err)
	}
}

func TestNextUnderrun(t *testing.T) {
	b := NewBuffer()
	b.PutU8(1)

	if _, err := b.NextU32(); !errors.Is(err, ErrUnderrun) {
		t.Errorf("NextU32 with one byte = %v, want ErrUnderrun", err)
	}

	// A string whose declared length runs past the written data.
	b.Reset()
	b.PutU32(100)
	if _, err := b.NextString(); !errors.Is(err, ErrUnderrun) {
		t.Errorf("NextString with short payload = %v, want ErrUnderrun", err)
	}
}

func TestNextStringRejectsInvalidUTF8(t *testing.T) {
	b := NewBuffer()
	b.PutU32(2)
	b.PutU8(0xFF)
	b.PutU8(0xFE)

	if _, err := b.NextString(); !errors.Is(err, ErrMalformed) {
		t.Errorf("NextString with invalid UTF-8 = %v, want ErrMalformed", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	b := NewBuffer()
	b.PutU8(0)
	b.PutString("069a79f4-44e9-4726-a5be-fca90e38aaf5")
	b.PutString("Steve")

	var network bytes.Buffer
	if err := b.WriteFrame(&network); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 {
		t.Errorf("buffer not reset after WriteFrame, len=%d", b.Len())
	}

	decoded := NewBuffer()
	if err := decoded.ReadFrame(&network); err != nil {
		t.Fatal(err)
	}
	kind, _ := decoded.NextU8()
	uuid, _ := decoded.NextString()
	name, err := decoded.NextString()
	if err != nil {
		t.Fatal(err)
	}
	if kind != 0 || uuid != "069a79f4-44e9-4726-a5be-fca90e38aaf5" || name != "Steve" {
		t.Errorf("decoded (%d, %q, %q)", kind, uuid, name)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var network bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], Capacity+1)
	network.Write(header[:])

	b := NewBuffer()
	if err := b.ReadFrame(&network); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("ReadFrame with oversized length = %v, want ErrFrameTooLarge", err)
	}
	// The payload must not have been consumed.
	if network.Len() != 0 {
		// Nothing was written beyond the header, so nothing to read —
		// this asserts ReadFrame returned before attempting a payload
		// read that would have blocked or errored differently.
		t.Errorf("unexpected leftover bytes: %d", network.Len())
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var network bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 10)
	network.Write(header[:])
	network.Write([]byte{1, 2, 3})

	b := NewBuffer()
	if err := b.ReadFrame(&network); err == nil {
		t.Error("ReadFrame with truncated payload succeeded")
	}
}
