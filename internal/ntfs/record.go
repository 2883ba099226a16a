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
package ntfs

import (
	"bytes"
	"fmt"

	"github.com/ppolstra/windows-forensics/internal/fserr"
	"github.com/ppolstra/windows-forensics/pkg/bin"
)

// DefaultRecordSize is the MFT record length on every volume this suite
// has seen; the VBR can specify another through its signed encoding.
const DefaultRecordSize = 1024

var fileSignature = []byte("FILE")

// Record header flag bits.
const (
	recordFlagInUse     = 0x0001
	recordFlagDirectory = 0x0002
)

// RecordHeader is the fixed 48-byte prefix of an MFT record.
type RecordHeader struct {
	UpdateSeqOffset uint16
	UpdateSeqSize   uint16
	LogFileSeq      uint64
	SequenceNumber  uint16
	HardLinkCount   uint16
	AttributeStart  uint16
	Flags           uint16
	LogicalSize     uint32
	PhysicalSize    uint32
	BaseReference   uint64
	NextAttributeID uint16
	RecordNumber    uint32
}

// InUse reports whether the record describes a live file or directory. A
// cleared bit on a record that still carries attributes marks a deleted
// entry.
func (h *RecordHeader) InUse() bool { return h.Flags&recordFlagInUse != 0 }

// IsDirectory reports the directory flag bit.
func (h *RecordHeader) IsDirectory() bool { return h.Flags&recordFlagDirectory != 0 }

// BaseRecord returns the MFT number of the base record when this is an
// extension record, or zero for a base record.
func (h *RecordHeader) BaseRecord() uint64 { return h.BaseReference & 0x0000FFFFFFFFFFFF }

// BaseSequence returns the sequence number of the base-record reference.
func (h *RecordHeader) BaseSequence() uint16 { return uint16(h.BaseReference >> 48) }

// Record is one parsed MFT record: the fixed header plus its decoded
// attribute stream.
type Record struct {
	Header     RecordHeader
	Attributes []*Attribute
}

// ParseRecord validates the FILE signature, applies the update-sequence
// fixup in place, and decodes the attribute stream. The buffer is modified
// by the fixup.
func ParseRecord(buf []byte) (*Record, error) {
	if len(buf) < 48 {
		return nil, fmt.Errorf("%w: mft record needs at least 48 bytes, got %d",
			fserr.ErrIO, len(buf))
	}
	if !bytes.Equal(buf[0:4], fileSignature) {
		return nil, fmt.Errorf("%w: mft record signature %q, want \"FILE\"",
			fserr.ErrInvalidSignature, buf[0:4])
	}

	r := &Record{
		Header: RecordHeader{
			UpdateSeqOffset: bin.Uint16(buf, 4),
			UpdateSeqSize:   bin.Uint16(buf, 6),
			LogFileSeq:      bin.Uint64(buf, 8),
			SequenceNumber:  bin.Uint16(buf, 16),
			HardLinkCount:   bin.Uint16(buf, 18),
			AttributeStart:  bin.Uint16(buf, 20),
			Flags:           bin.Uint16(buf, 22),
			LogicalSize:     bin.Uint32(buf, 24),
			PhysicalSize:    bin.Uint32(buf, 28),
			BaseReference:   bin.Uint64(buf, 32),
			NextAttributeID: bin.Uint16(buf, 40),
			RecordNumber:    bin.Uint32(buf, 44),
		},
	}

	if err := applyFixup(buf, int(r.Header.UpdateSeqOffset), int(r.Header.UpdateSeqSize)); err != nil {
		return nil, err
	}

	logical := int(r.Header.LogicalSize)
	if logical > len(buf) {
		logical = len(buf)
	}

	pos := int(r.Header.AttributeStart)
	for pos+4 <= logical {
		if AttrType(bin.Uint32(buf, pos)) == AttrTerminator {
			break
		}
		attr, err := ParseAttribute(buf[:logical], pos)
		if err != nil {
			return nil, err
		}
		r.Attributes = append(r.Attributes, attr)
		pos += int(attr.TotalLength)
	}
	return r, nil
}

// applyFixup replaces the last two bytes of each 512-byte sector of the
// buffer with the stored originals. The array's first word is the sentinel
// that each sector tail must currently match, or the record tore mid-write.
func applyFixup(buf []byte, offset, words int) error {
	if words < 2 {
		return nil
	}
	if offset+words*2 > len(buf) {
		return fmt.Errorf("%w: update sequence array overruns buffer", fserr.ErrCorrupt)
	}

	sentinel := buf[offset : offset+2]
	for i := 1; i < words; i++ {
		tail := 512*i - 2
		if tail+2 > len(buf) {
			return fmt.Errorf("%w: fixup sector %d beyond buffer end", fserr.ErrCorrupt, i)
		}
		if !bytes.Equal(buf[tail:tail+2], sentinel) {
			return fmt.Errorf("%w: fixup mismatch at offset %d", fserr.ErrCorrupt, tail)
		}
		copy(buf[tail:tail+2], buf[offset+2*i:offset+2*i+2])
	}
	return nil
}

// AttributesOfType returns every attribute with the given type code, in
// record order.
func (r *Record) AttributesOfType(t AttrType) []*Attribute {
	var out []*Attribute
	for _, a := range r.Attributes {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// FirstAttribute returns the first attribute of the given type, or nil.
func (r *Record) FirstAttribute(t AttrType) *Attribute {
	for _, a := range r.Attributes {
		if a.Type == t {
			return a
		}
	}
	return nil
}

func (r *Record) String() string {
	h := &r.Header
	return fmt.Sprintf("MFT entry %d/%d: in-use=%v dir=%v links=%d size=%d/%d base=%d/%d attrs=%d",
		h.RecordNumber, h.SequenceNumber, h.InUse(), h.IsDirectory(),
		h.HardLinkCount, h.LogicalSize, h.PhysicalSize,
		h.BaseRecord(), h.BaseSequence(), len(r.Attributes))
}
