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

	"github.com/boljen/go-bitmap"

	"github.com/ppolstra/windows-forensics/internal/fserr"
	"github.com/ppolstra/windows-forensics/pkg/bin"
)

var indxSignature = []byte("INDX")

// Index entry flag bits.
const (
	indexEntryHasChild = 0x01
	indexEntryLast     = 0x02
)

// IndexEntry is one entry of a directory's $I30 index: an MFT reference
// plus an embedded $FILE_NAME body, and for interior nodes the VCN of the
// child index buffer.
type IndexEntry struct {
	MFT         uint64
	Sequence    uint16
	TotalLength uint16
	KeyLength   uint16
	Flags       uint8
	FileName    *FileName
	ChildVCN    uint64
}

// HasChild reports whether the entry points at a child index buffer.
func (e *IndexEntry) HasChild() bool { return e.Flags&indexEntryHasChild != 0 }

// IsLast reports the end-of-node marker; a last entry carries no name.
func (e *IndexEntry) IsLast() bool { return e.Flags&indexEntryLast != 0 }

// Name returns the indexed filename, or "" for the end marker.
func (e *IndexEntry) Name() string {
	if e.FileName == nil {
		return ""
	}
	return e.FileName.Name
}

// ParseIndexEntry decodes the entry starting at offset.
func ParseIndexEntry(b []byte, offset int) (*IndexEntry, error) {
	if offset+16 > len(b) {
		return nil, fmt.Errorf("%w: index entry at %d overruns buffer", fserr.ErrCorrupt, offset)
	}

	e := &IndexEntry{
		MFT:         bin.Uint48(b, offset),
		Sequence:    bin.Uint16(b, offset+6),
		TotalLength: bin.Uint16(b, offset+8),
		KeyLength:   bin.Uint16(b, offset+10),
		Flags:       b[offset+12],
	}

	if e.TotalLength < 16 || offset+int(e.TotalLength) > len(b) {
		return nil, fmt.Errorf("%w: index entry length %d at offset %d",
			fserr.ErrCorrupt, e.TotalLength, offset)
	}

	if !e.IsLast() && e.KeyLength >= 66 {
		fn, err := parseFileNameContent(b[offset+16 : offset+16+int(e.KeyLength)])
		if err != nil {
			return nil, err
		}
		e.FileName = fn
	}

	if e.HasChild() {
		e.ChildVCN = bin.Uint64(b, offset+int(e.TotalLength)-8)
	}
	return e, nil
}

// walkIndexEntries decodes entries from start until the last-entry marker
// or the end offset.
func walkIndexEntries(b []byte, start, end int) ([]*IndexEntry, error) {
	var entries []*IndexEntry
	pos := start
	for pos < end {
		e, err := ParseIndexEntry(b, pos)
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
		if e.IsLast() {
			break
		}
		pos += int(e.TotalLength)
	}
	return entries, nil
}

// IndexRoot is the decoded $INDEX_ROOT ($90): the index parameters plus the
// small set of entries stored inline in the MFT record.
type IndexRoot struct {
	IndexedType       AttrType
	CollationRule     uint32
	BufferSize        uint32
	ClustersPerBuffer uint32
	LogicalSize       uint32
	PhysicalSize      uint32
	NonResidentIndex  bool
	Entries           []*IndexEntry
}

// ParseIndexRoot decodes a $90 attribute, which is always resident. Only
// filename indexes (indexed type $FILE_NAME) carry entries this suite
// interprets.
func ParseIndexRoot(a *Attribute) (*IndexRoot, error) {
	if a.Type != AttrIndexRoot {
		return nil, fmt.Errorf("%w: attribute is %s, not $INDEX_ROOT",
			fserr.ErrNotApplicable, a.Type)
	}
	v, err := a.ResidentData()
	if err != nil {
		return nil, err
	}
	if len(v) < 32 {
		return nil, fmt.Errorf("%w: $INDEX_ROOT payload is %d bytes", fserr.ErrCorrupt, len(v))
	}

	root := &IndexRoot{
		IndexedType:       AttrType(bin.Uint32(v, 0)),
		CollationRule:     bin.Uint32(v, 4),
		BufferSize:        bin.Uint32(v, 8),
		ClustersPerBuffer: bin.Uint32(v, 12),
		LogicalSize:       bin.Uint32(v, 20),
		PhysicalSize:      bin.Uint32(v, 24),
		NonResidentIndex:  bin.Uint32(v, 28)&1 != 0,
	}

	if root.IndexedType != AttrFileName {
		return root, nil
	}

	// The index node header starts at byte 16; entry offsets are relative
	// to it.
	start := 16 + int(bin.Uint32(v, 16))
	end := 16 + int(root.LogicalSize)
	if end > len(v) {
		end = len(v)
	}
	entries, err := walkIndexEntries(v, start, end)
	if err != nil {
		return nil, err
	}
	root.Entries = entries
	return root, nil
}

// IndexBuffer is one fixed-size INDX node of a directory's
// $INDEX_ALLOCATION stream.
type IndexBuffer struct {
	LogFileSeq  uint64
	VCN         uint64
	LogicalSize uint32
	HasChildren bool
	Entries     []*IndexEntry
}

// IsLeaf reports whether the node has no children.
func (ib *IndexBuffer) IsLeaf() bool { return !ib.HasChildren }

// ParseIndexBuffer validates the INDX signature, applies the per-sector
// fixup in place, and walks the node's entries. The buffer is modified by
// the fixup.
func ParseIndexBuffer(buf []byte) (*IndexBuffer, error) {
	if len(buf) < 42 {
		return nil, fmt.Errorf("%w: indx buffer needs at least 42 bytes, got %d",
			fserr.ErrIO, len(buf))
	}
	if !bytes.Equal(buf[0:4], indxSignature) {
		return nil, fmt.Errorf("%w: indx signature %q, want \"INDX\"",
			fserr.ErrInvalidSignature, buf[0:4])
	}

	updOffset := int(bin.Uint16(buf, 4))
	updWords := int(bin.Uint16(buf, 6))

	ib := &IndexBuffer{
		LogFileSeq:  bin.Uint64(buf, 8),
		VCN:         bin.Uint64(buf, 16),
		LogicalSize: bin.Uint32(buf, 28),
		HasChildren: bin.Uint32(buf, 36)&1 != 0,
	}

	if err := applyFixup(buf, updOffset, updWords); err != nil {
		return nil, err
	}

	// Entry offsets are relative to the node header at byte 24.
	start := 24 + int(bin.Uint32(buf, 24))
	end := 24 + int(ib.LogicalSize)
	if end > len(buf) {
		end = len(buf)
	}
	entries, err := walkIndexEntries(buf, start, end)
	if err != nil {
		return nil, err
	}
	ib.Entries = entries
	return ib, nil
}

// IndexBitmap is the decoded $BITMAP ($B0) of a directory: one bit per
// index buffer of the $I30 stream.
type IndexBitmap struct {
	bits bitmap.Bitmap
}

// ParseBitmap decodes a resident $B0 attribute.
func ParseBitmap(a *Attribute) (*IndexBitmap, error) {
	if a.Type != AttrBitmap {
		return nil, fmt.Errorf("%w: attribute is %s, not $BITMAP",
			fserr.ErrNotApplicable, a.Type)
	}
	v, err := a.ResidentData()
	if err != nil {
		return nil, err
	}
	return &IndexBitmap{bits: bitmap.Bitmap(v)}, nil
}

// InUse reports whether index buffer i is allocated. Bits beyond the map
// read as free.
func (m *IndexBitmap) InUse(i int) bool {
	if i < 0 || i >= m.bits.Len() {
		return false
	}
	return m.bits.Get(i)
}

// Size returns the number of bits the map covers.
func (m *IndexBitmap) Size() int { return m.bits.Len() }

// InUseCount returns the number of allocated buffers.
func (m *IndexBitmap) InUseCount() int {
	n := 0
	for i := 0; i < m.bits.Len(); i++ {
		if m.bits.Get(i) {
			n++
		}
	}
	return n
}
