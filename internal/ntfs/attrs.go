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
	"time"
	"unicode/utf16"

	"github.com/ppolstra/windows-forensics/internal/fserr"
	"github.com/ppolstra/windows-forensics/pkg/bin"
	"github.com/ppolstra/windows-forensics/pkg/timeutil"
)

// DOS attribute flag bits shared by $STANDARD_INFORMATION and $FILE_NAME.
const (
	FlagReadOnly     = 0x0001
	FlagHidden       = 0x0002
	FlagSystem       = 0x0004
	FlagArchive      = 0x0020
	FlagTemporary    = 0x0100
	FlagSparseFile   = 0x0200
	FlagReparsePoint = 0x0400
	FlagCompressed   = 0x0800
	FlagOffline      = 0x1000
	FlagNotIndexed   = 0x2000
	FlagEncrypted    = 0x4000
	// $FILE_NAME only.
	FlagDirectory = 0x10000000
	FlagIndexView = 0x20000000
)

// StandardInfo is the decoded $STANDARD_INFORMATION ($10) payload: the four
// record timestamps and the DOS flags.
type StandardInfo struct {
	Created       uint64
	Modified      uint64
	RecordChanged uint64
	Accessed      uint64
	Flags         uint32
}

// ParseStandardInfo decodes a $10 attribute, which is always resident.
func ParseStandardInfo(a *Attribute) (*StandardInfo, error) {
	if a.Type != AttrStandardInformation {
		return nil, fmt.Errorf("%w: attribute is %s, not $STANDARD_INFORMATION",
			fserr.ErrNotApplicable, a.Type)
	}
	v, err := a.ResidentData()
	if err != nil {
		return nil, err
	}
	if len(v) < 36 {
		return nil, fmt.Errorf("%w: $STANDARD_INFORMATION payload is %d bytes",
			fserr.ErrCorrupt, len(v))
	}
	return &StandardInfo{
		Created:       bin.Uint64(v, 0),
		Modified:      bin.Uint64(v, 8),
		RecordChanged: bin.Uint64(v, 16),
		Accessed:      bin.Uint64(v, 24),
		Flags:         bin.Uint32(v, 32),
	}, nil
}

func (s *StandardInfo) CreateTime() time.Time       { return timeutil.FiletimeToTime(s.Created) }
func (s *StandardInfo) ModifyTime() time.Time       { return timeutil.FiletimeToTime(s.Modified) }
func (s *StandardInfo) RecordChangeTime() time.Time { return timeutil.FiletimeToTime(s.RecordChanged) }
func (s *StandardInfo) AccessTime() time.Time       { return timeutil.FiletimeToTime(s.Accessed) }

func (s *StandardInfo) IsHidden() bool { return s.Flags&FlagHidden != 0 }
func (s *StandardInfo) IsSystem() bool { return s.Flags&FlagSystem != 0 }

// FileName is the decoded $FILE_NAME ($30) payload. The same layout is
// embedded in directory index entries.
type FileName struct {
	ParentMFT      uint64
	ParentSequence uint16
	Created        uint64
	Modified       uint64
	RecordChanged  uint64
	Accessed       uint64
	PhysicalSize   uint64
	LogicalSize    uint64
	Flags          uint32
	ExtFlags       uint32
	Namespace      uint8
	Name           string
}

// parseFileNameContent decodes the $30 layout from the start of v.
func parseFileNameContent(v []byte) (*FileName, error) {
	if len(v) < 66 {
		return nil, fmt.Errorf("%w: $FILE_NAME payload is %d bytes", fserr.ErrCorrupt, len(v))
	}

	fn := &FileName{
		// 48-bit record number, 16-bit sequence: low32 | highWord<<32.
		ParentMFT:      bin.Uint48(v, 0),
		ParentSequence: bin.Uint16(v, 6),
		Created:        bin.Uint64(v, 8),
		Modified:       bin.Uint64(v, 16),
		RecordChanged:  bin.Uint64(v, 24),
		Accessed:       bin.Uint64(v, 32),
		PhysicalSize:   bin.Uint64(v, 40),
		LogicalSize:    bin.Uint64(v, 48),
		Flags:          bin.Uint32(v, 56),
		ExtFlags:       bin.Uint32(v, 60),
		Namespace:      v[65],
	}

	nameLen := int(v[64])
	if 66+nameLen*2 > len(v) {
		return nil, fmt.Errorf("%w: $FILE_NAME name overruns payload", fserr.ErrCorrupt)
	}
	fn.Name = bin.UTF16String(v[66 : 66+nameLen*2])
	return fn, nil
}

// ParseFileName decodes a $30 attribute, which is always resident.
func ParseFileName(a *Attribute) (*FileName, error) {
	if a.Type != AttrFileName {
		return nil, fmt.Errorf("%w: attribute is %s, not $FILE_NAME",
			fserr.ErrNotApplicable, a.Type)
	}
	v, err := a.ResidentData()
	if err != nil {
		return nil, err
	}
	return parseFileNameContent(v)
}

func (f *FileName) CreateTime() time.Time       { return timeutil.FiletimeToTime(f.Created) }
func (f *FileName) ModifyTime() time.Time       { return timeutil.FiletimeToTime(f.Modified) }
func (f *FileName) RecordChangeTime() time.Time { return timeutil.FiletimeToTime(f.RecordChanged) }
func (f *FileName) AccessTime() time.Time       { return timeutil.FiletimeToTime(f.Accessed) }

// IsDirectory reports the directory flag of the $30 attribute.
func (f *FileName) IsDirectory() bool { return f.Flags&FlagDirectory != 0 }

// NameLength returns the name length in UTF-16 code units, the measure the
// extractor uses to prefer the longest recorded name.
func (f *FileName) NameLength() int { return len(utf16.Encode([]rune(f.Name))) }

// AttrListItem is one entry of an $ATTRIBUTE_LIST ($20): a pointer to the
// MFT record holding one slice of an attribute that outgrew its base
// record.
type AttrListItem struct {
	Type         AttrType
	RecordLength uint16
	StartVCN     uint64
	MFTReference uint64
	AttrID       uint16
	Name         string
}

// MFT returns the record number portion of the item's MFT reference.
func (i *AttrListItem) MFT() uint64 { return i.MFTReference & 0x0000FFFFFFFFFFFF }

// Sequence returns the sequence portion of the item's MFT reference.
func (i *AttrListItem) Sequence() uint16 { return uint16(i.MFTReference >> 48) }

// ParseAttributeList decodes a resident $20 payload into its items.
func ParseAttributeList(a *Attribute) ([]AttrListItem, error) {
	if a.Type != AttrAttributeList {
		return nil, fmt.Errorf("%w: attribute is %s, not $ATTRIBUTE_LIST",
			fserr.ErrNotApplicable, a.Type)
	}
	v, err := a.ResidentData()
	if err != nil {
		return nil, err
	}

	var items []AttrListItem
	pos := 0
	for pos+26 <= len(v) {
		item := AttrListItem{
			Type:         AttrType(bin.Uint32(v, pos)),
			RecordLength: bin.Uint16(v, pos+4),
			StartVCN:     bin.Uint64(v, pos+8),
			MFTReference: bin.Uint64(v, pos+16),
			AttrID:       bin.Uint16(v, pos+24),
		}
		nameLen := int(v[pos+6])
		nameOff := int(v[pos+7])
		if nameLen > 0 && pos+nameOff+nameLen*2 <= len(v) {
			item.Name = bin.UTF16String(v[pos+nameOff : pos+nameOff+nameLen*2])
		}
		if item.RecordLength == 0 {
			return nil, fmt.Errorf("%w: zero-length attribute list item", fserr.ErrCorrupt)
		}
		items = append(items, item)
		pos += int(item.RecordLength)
	}
	return items, nil
}
