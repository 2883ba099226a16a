// Copyright (c) 2025 Phil Polstra
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package bin provides the little-endian decoding primitives shared by the
// on-disk structure parsers. All readers interpret the input slice starting
// at the given offset and assume the caller has bounds-checked the slice.
package bin

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Uint16 reads a little-endian uint16 at off.
func Uint16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

// Uint32 reads a little-endian uint32 at off.
func Uint32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// Uint48 reads a little-endian 48-bit unsigned integer at off. NTFS file
// references store the record number this way.
func Uint48(b []byte, off int) uint64 {
	var buf [8]byte
	copy(buf[:6], b[off:off+6])
	return binary.LittleEndian.Uint64(buf[:])
}

// Uint64 reads a little-endian uint64 at off.
func Uint64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

// Uint decodes the first n bytes of b (0 < n <= 8) as a little-endian
// unsigned integer, padding the missing high bytes with zero.
func Uint(b []byte, n int) uint64 {
	var buf [8]byte
	copy(buf[:], b[:n])
	return binary.LittleEndian.Uint64(buf[:])
}

// Int decodes the first n bytes of b (0 < n <= 8) as a little-endian signed
// integer. The missing high bytes are sign-extended from the top bit of the
// last input byte. NTFS data-run offsets are stored this way.
func Int(b []byte, n int) int64 {
	var buf [8]byte
	copy(buf[:], b[:n])
	if n < 8 && b[n-1]&0x80 != 0 {
		for i := n; i < 8; i++ {
			buf[i] = 0xFF
		}
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}

// FormatGUID renders a 16-byte on-disk GUID in the canonical display form
// XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX. The first three fields are stored
// little-endian, the last two big-endian.
func FormatGUID(b []byte) string {
	if len(b) < 16 {
		return "<invalid>"
	}
	return fmt.Sprintf("%08X-%04X-%04X-%04X-%012X",
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint16(b[4:6]),
		binary.LittleEndian.Uint16(b[6:8]),
		binary.BigEndian.Uint16(b[8:10]),
		b[10:16])
}

// ParseGUID converts a display-form GUID back into its 16 on-disk bytes.
// It is the inverse of FormatGUID.
func ParseGUID(s string) ([16]byte, error) {
	var guid [16]byte

	parts := strings.Split(s, "-")
	if len(parts) != 5 ||
		len(parts[0]) != 8 || len(parts[1]) != 4 || len(parts[2]) != 4 ||
		len(parts[3]) != 4 || len(parts[4]) != 12 {
		return guid, fmt.Errorf("malformed GUID string %q", s)
	}

	var d1 uint32
	var d2, d3, d4 uint16
	var d5 uint64
	if _, err := fmt.Sscanf(parts[0], "%08x", &d1); err != nil {
		return guid, fmt.Errorf("malformed GUID string %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(parts[1], "%04x", &d2); err != nil {
		return guid, fmt.Errorf("malformed GUID string %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(parts[2], "%04x", &d3); err != nil {
		return guid, fmt.Errorf("malformed GUID string %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(parts[3], "%04x", &d4); err != nil {
		return guid, fmt.Errorf("malformed GUID string %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(parts[4], "%012x", &d5); err != nil {
		return guid, fmt.Errorf("malformed GUID string %q: %w", s, err)
	}

	binary.LittleEndian.PutUint32(guid[0:4], d1)
	binary.LittleEndian.PutUint16(guid[4:6], d2)
	binary.LittleEndian.PutUint16(guid[6:8], d3)
	binary.BigEndian.PutUint16(guid[8:10], d4)
	for i := 0; i < 6; i++ {
		guid[10+i] = byte(d5 >> (8 * (5 - i)))
	}
	return guid, nil
}

// IsZeroGUID reports whether all 16 bytes are zero (an empty GPT entry).
func IsZeroGUID(b []byte) bool {
	for _, c := range b[:16] {
		if c != 0 {
			return false
		}
	}
	return true
}
