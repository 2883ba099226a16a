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
	"fmt"

	"github.com/ppolstra/windows-forensics/internal/fserr"
	"github.com/ppolstra/windows-forensics/pkg/bin"
)

// AttrType is the 4-byte attribute type code.
type AttrType uint32

const (
	AttrStandardInformation AttrType = 0x10
	AttrAttributeList       AttrType = 0x20
	AttrFileName            AttrType = 0x30
	AttrObjectID            AttrType = 0x40
	AttrSecurityDescriptor  AttrType = 0x50
	AttrVolumeName          AttrType = 0x60
	AttrVolumeInformation   AttrType = 0x70
	AttrData                AttrType = 0x80
	AttrIndexRoot           AttrType = 0x90
	AttrIndexAllocation     AttrType = 0xA0
	AttrBitmap              AttrType = 0xB0
	AttrReparsePoint        AttrType = 0xC0
	AttrTerminator          AttrType = 0xFFFFFFFF
)

func (t AttrType) String() string {
	switch t {
	case AttrStandardInformation:
		return "$STANDARD_INFORMATION"
	case AttrAttributeList:
		return "$ATTRIBUTE_LIST"
	case AttrFileName:
		return "$FILE_NAME"
	case AttrObjectID:
		return "$OBJECT_ID"
	case AttrSecurityDescriptor:
		return "$SECURITY_DESCRIPTOR"
	case AttrVolumeName:
		return "$VOLUME_NAME"
	case AttrVolumeInformation:
		return "$VOLUME_INFORMATION"
	case AttrData:
		return "$DATA"
	case AttrIndexRoot:
		return "$INDEX_ROOT"
	case AttrIndexAllocation:
		return "$INDEX_ALLOCATION"
	case AttrBitmap:
		return "$BITMAP"
	case AttrReparsePoint:
		return "$REPARSE_POINT"
	default:
		return fmt.Sprintf("$UNKNOWN(0x%X)", uint32(t))
	}
}

// Attribute flag bits.
const (
	attrFlagCompressed = 0x0001
	attrFlagEncrypted  = 0x4000
	attrFlagSparse     = 0x8000
)

// DataRun is one extent of a non-resident attribute. Start is the absolute
// LCN after accumulating the on-disk signed deltas; a sparse run has no
// on-disk clusters at all.
type DataRun struct {
	Start  int64
	Count  uint64
	Sparse bool
}

// Clusters expands the run into its cluster numbers, start..start+count-1.
func (d DataRun) Clusters() []int64 {
	if d.Sparse {
		return nil
	}
	list := make([]int64, d.Count)
	for i := range list {
		list[i] = d.Start + int64(i)
	}
	return list
}

func (d DataRun) String() string {
	if d.Sparse {
		return fmt.Sprintf("sparse run of %d clusters", d.Count)
	}
	return fmt.Sprintf("run start/count: %d/%d", d.Start, d.Count)
}

// ParseDataRuns decodes a data-run stream. Each run starts with a header
// byte whose low nibble is the byte width of the cluster count and whose
// high nibble is the byte width of the signed LCN delta; a zero header
// terminates the stream. A zero-width delta encodes a sparse hole.
func ParseDataRuns(b []byte) ([]DataRun, error) {
	var runs []DataRun

	pos := 0
	start := int64(0)
	for pos < len(b) {
		header := b[pos]
		if header == 0 {
			break
		}
		countLen := int(header & 0x0F)
		offsetLen := int(header >> 4)
		pos++

		if countLen == 0 || pos+countLen+offsetLen > len(b) {
			return nil, fmt.Errorf("%w: data run at byte %d overruns its stream",
				fserr.ErrCorrupt, pos-1)
		}

		count := bin.Uint(b[pos:], countLen)
		pos += countLen

		if offsetLen == 0 {
			runs = append(runs, DataRun{Count: count, Sparse: true})
			continue
		}

		start += bin.Int(b[pos:], offsetLen)
		pos += offsetLen
		runs = append(runs, DataRun{Start: start, Count: count})
	}
	return runs, nil
}

// Attribute is one decoded attribute header plus its payload location. For
// resident attributes Value holds the payload bytes; for non-resident ones
// Runs holds the decoded extents.
type Attribute struct {
	Type        AttrType
	TotalLength uint32
	Resident    bool
	Name        string
	Flags       uint16
	ID          uint16

	// Resident only.
	Value   []byte
	Indexed bool

	// Non-resident only.
	FirstVCN        uint64
	LastVCN         uint64
	CompressionUnit uint16
	PhysicalSize    uint64
	LogicalSize     uint64
	InitializedSize uint64
	Runs            []DataRun
}

// ParseAttribute decodes the attribute starting at offset within a
// fixed-up record buffer.
func ParseAttribute(buf []byte, offset int) (*Attribute, error) {
	if offset+16 > len(buf) {
		return nil, fmt.Errorf("%w: attribute header at %d overruns record", fserr.ErrCorrupt, offset)
	}

	a := &Attribute{
		Type:        AttrType(bin.Uint32(buf, offset)),
		TotalLength: bin.Uint32(buf, offset+4),
		Resident:    buf[offset+8] == 0,
		Flags:       bin.Uint16(buf, offset+12),
		ID:          bin.Uint16(buf, offset+14),
	}

	if a.TotalLength == 0 || offset+int(a.TotalLength) > len(buf) {
		return nil, fmt.Errorf("%w: attribute %s at %d has length %d beyond record end",
			fserr.ErrCorrupt, a.Type, offset, a.TotalLength)
	}

	nameLen := int(buf[offset+9])
	nameOff := int(bin.Uint16(buf, offset+10))
	if nameLen > 0 {
		end := offset + nameOff + nameLen*2
		if end > offset+int(a.TotalLength) {
			return nil, fmt.Errorf("%w: attribute name overruns attribute", fserr.ErrCorrupt)
		}
		a.Name = bin.UTF16String(buf[offset+nameOff : end])
	}

	if a.Resident {
		if offset+24 > len(buf) {
			return nil, fmt.Errorf("%w: resident header at %d overruns record", fserr.ErrCorrupt, offset)
		}
		valueLen := int(bin.Uint32(buf, offset+16))
		valueOff := int(bin.Uint16(buf, offset+20))
		a.Indexed = buf[offset+22] == 1

		end := offset + valueOff + valueLen
		if end > offset+int(a.TotalLength) {
			return nil, fmt.Errorf("%w: resident payload of %s overruns attribute",
				fserr.ErrCorrupt, a.Type)
		}
		a.Value = append([]byte(nil), buf[offset+valueOff:end]...)
		return a, nil
	}

	if offset+64 > len(buf) {
		return nil, fmt.Errorf("%w: non-resident header at %d overruns record", fserr.ErrCorrupt, offset)
	}
	a.FirstVCN = bin.Uint64(buf, offset+16)
	a.LastVCN = bin.Uint64(buf, offset+24)
	runOff := int(bin.Uint16(buf, offset+32))
	if runOff < 16 || runOff > int(a.TotalLength) {
		return nil, fmt.Errorf("%w: data-run offset %d outside attribute of length %d",
			fserr.ErrCorrupt, runOff, a.TotalLength)
	}
	a.CompressionUnit = bin.Uint16(buf, offset+34)
	a.PhysicalSize = bin.Uint64(buf, offset+40)
	a.LogicalSize = bin.Uint64(buf, offset+48)
	a.InitializedSize = bin.Uint64(buf, offset+56)

	runs, err := ParseDataRuns(buf[offset+runOff : offset+int(a.TotalLength)])
	if err != nil {
		return nil, err
	}
	a.Runs = runs
	return a, nil
}

// HasName reports whether the attribute carries a stream name (an ADS for
// $DATA attributes).
func (a *Attribute) HasName() bool { return a.Name != "" }

// IsCompressed reports the compressed flag bit.
func (a *Attribute) IsCompressed() bool { return a.Flags&attrFlagCompressed != 0 }

// IsEncrypted reports the encrypted flag bit.
func (a *Attribute) IsEncrypted() bool { return a.Flags&attrFlagEncrypted != 0 }

// IsSparse reports the sparse flag bit.
func (a *Attribute) IsSparse() bool { return a.Flags&attrFlagSparse != 0 }

// ResidentData returns the payload of a resident attribute.
func (a *Attribute) ResidentData() ([]byte, error) {
	if !a.Resident {
		return nil, fmt.Errorf("%w: %s is non-resident", fserr.ErrNotApplicable, a.Type)
	}
	return a.Value, nil
}

// ClusterList materializes the attribute's extents into a flat list of
// cluster numbers in VCN order. Sparse runs are recorded in Runs but hold
// no on-disk clusters, so they contribute nothing here.
func (a *Attribute) ClusterList() []int64 {
	if a.Resident {
		return nil
	}
	var list []int64
	for _, run := range a.Runs {
		list = append(list, run.Clusters()...)
	}
	return list
}

func (a *Attribute) String() string {
	s := fmt.Sprintf("Attribute %s (id %d)", a.Type, a.ID)
	if a.HasName() {
		s += fmt.Sprintf(" name %q", a.Name)
	}
	if a.Resident {
		return s + fmt.Sprintf(", resident, %d bytes", len(a.Value))
	}
	return s + fmt.Sprintf(", non-resident, VCN %d-%d, %d runs, %d bytes logical",
		a.FirstVCN, a.LastVCN, len(a.Runs), a.LogicalSize)
}
