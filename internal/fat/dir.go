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
package fat

import (
	"strings"
	"time"

	"github.com/ppolstra/windows-forensics/pkg/bin"
	"github.com/ppolstra/windows-forensics/pkg/timeutil"
)

const DirEntrySize = 32

// Directory entry attribute bits.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolume    = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = 0x0F // read-only|hidden|system|volume marks a VFAT entry
)

// Markers stored in the first name byte.
const (
	entryDeleted    = 0xE5
	entryTerminator = 0x00
)

// DirEntry is one raw 32-byte directory slot, either a short 8+3 entry or a
// VFAT long-filename fragment.
type DirEntry struct {
	Deleted bool
	LFN     bool

	// Long-entry fields.
	SequenceNumber uint8
	LastLFN        bool
	Checksum       uint8
	NameFragment   string

	// Short-entry fields.
	Basename     string
	Extension    string
	Attributes   uint8
	createTime   uint16
	createDate   uint16
	accessDate   uint16
	modifyTime   uint16
	modifyDate   uint16
	StartCluster uint32
	FileSize     uint32
}

// ParseDirEntry decodes one 32-byte slot.
func ParseDirEntry(b []byte) DirEntry {
	e := DirEntry{Deleted: b[0] == entryDeleted}

	if b[11] == AttrLongName && b[12] == 0 {
		e.LFN = true
		e.SequenceNumber = b[0] & 0x1F
		e.LastLFN = b[0]&0x40 != 0
		e.Checksum = b[13]
		e.NameFragment = lfnFragment(b)
		return e
	}

	base := b[0:8]
	if e.Deleted {
		// The original first character is lost; keep the slot readable.
		base = append([]byte{'_'}, b[1:8]...)
	}
	e.Basename = trimShortName(base)
	e.Extension = trimShortName(b[8:11])
	e.Attributes = b[11]
	e.createTime = bin.Uint16(b, 14)
	e.createDate = bin.Uint16(b, 16)
	e.accessDate = bin.Uint16(b, 18)
	e.StartCluster = uint32(bin.Uint16(b, 20))<<16 | uint32(bin.Uint16(b, 26))
	e.modifyTime = bin.Uint16(b, 22)
	e.modifyDate = bin.Uint16(b, 24)
	e.FileSize = bin.Uint32(b, 28)
	return e
}

// lfnFragment gathers the three UCS-2 name runs of a long entry (5+6+2
// characters) and cuts at the NUL terminator or 0xFFFF padding.
func lfnFragment(b []byte) string {
	raw := make([]byte, 0, 26)
	raw = append(raw, b[1:11]...)
	raw = append(raw, b[14:26]...)
	raw = append(raw, b[28:32]...)

	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0x00 && raw[i+1] == 0x00 {
			return bin.UTF16String(raw[:i])
		}
		if raw[i] == 0xFF && raw[i+1] == 0xFF {
			return bin.UTF16String(raw[:i])
		}
	}
	return bin.UTF16String(raw)
}

func trimShortName(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, " ")
}

// Filename renders the short entry's 8.3 name.
func (e *DirEntry) Filename() string {
	if e.LFN {
		return e.NameFragment
	}
	if e.Extension == "" {
		return e.Basename
	}
	return e.Basename + "." + e.Extension
}

// CreateTime returns the creation timestamp.
func (e *DirEntry) CreateTime() time.Time {
	return timeutil.DOSDateTime(e.createDate, e.createTime)
}

// AccessDate returns the last-access date (FAT keeps no access time).
func (e *DirEntry) AccessDate() time.Time {
	return timeutil.DOSDateTime(e.accessDate, 0)
}

// ModifyTime returns the last-modification timestamp.
func (e *DirEntry) ModifyTime() time.Time {
	return timeutil.DOSDateTime(e.modifyDate, e.modifyTime)
}

// FileEntry is an ordered collection of raw directory entries making up one
// file: zero or more long-name fragments followed by the short entry. A
// deleted slot always stands alone, even when it once belonged to a
// long-name cluster, because its neighbors may have been reused.
type FileEntry struct {
	Entries []DirEntry
}

// ParseFileEntry assembles the FileEntry starting at offset within a
// directory buffer. An empty (terminator) slot yields a FileEntry with no
// entries.
func ParseFileEntry(buffer []byte, offset int) FileEntry {
	var fe FileEntry

	if offset+DirEntrySize > len(buffer) || buffer[offset] == entryTerminator {
		return fe
	}

	e := ParseDirEntry(buffer[offset : offset+DirEntrySize])
	if e.Deleted {
		fe.Entries = append(fe.Entries, e)
		return fe
	}

	if e.LFN {
		pos := offset + DirEntrySize
		for e.LFN {
			fe.Entries = append(fe.Entries, e)
			if pos+DirEntrySize > len(buffer) || buffer[pos] == entryTerminator {
				return fe
			}
			e = ParseDirEntry(buffer[pos : pos+DirEntrySize])
			pos += DirEntrySize
		}
		fe.Entries = append(fe.Entries, e)
		return fe
	}

	fe.Entries = append(fe.Entries, e)
	return fe
}

// Empty reports whether no entry was parsed (directory terminator).
func (fe *FileEntry) Empty() bool { return len(fe.Entries) == 0 }

// Count returns the number of raw slots the entry spans.
func (fe *FileEntry) Count() int { return len(fe.Entries) }

// Deleted reports whether the entry was marked deleted.
func (fe *FileEntry) Deleted() bool {
	return !fe.Empty() && fe.Entries[0].Deleted
}

// HasLongName reports whether the entry carries VFAT fragments.
func (fe *FileEntry) HasLongName() bool {
	return !fe.Empty() && fe.Entries[0].LFN
}

// HasShortName reports whether the final slot is a short entry. A deleted
// LFN fragment standing alone has none.
func (fe *FileEntry) HasShortName() bool {
	return !fe.Empty() && !fe.Entries[len(fe.Entries)-1].LFN
}

func (fe *FileEntry) short() *DirEntry {
	return &fe.Entries[len(fe.Entries)-1]
}

// LongName reconstructs the long filename. Fragments are stored in reverse
// physical order (the last LFN slot is the logical first), so concatenation
// runs from the slot just before the short entry back to the start.
func (fe *FileEntry) LongName() string {
	if !fe.HasLongName() {
		return ""
	}
	if fe.Count() == 1 {
		return fe.Entries[0].NameFragment
	}
	var sb strings.Builder
	for i := fe.Count() - 2; i >= 0; i-- {
		sb.WriteString(fe.Entries[i].NameFragment)
	}
	return sb.String()
}

// ShortName returns the 8.3 name, or "" when the entry is a lone fragment.
func (fe *FileEntry) ShortName() string {
	if !fe.HasShortName() {
		return ""
	}
	return fe.short().Filename()
}

// Name prefers the long name and falls back to the short one.
func (fe *FileEntry) Name() string {
	if n := fe.LongName(); n != "" {
		return n
	}
	return fe.ShortName()
}

// Attributes returns the short entry's attribute byte.
func (fe *FileEntry) Attributes() uint8 {
	if !fe.HasShortName() {
		return 0
	}
	return fe.short().Attributes
}

// IsDir reports the directory attribute bit.
func (fe *FileEntry) IsDir() bool { return fe.Attributes()&AttrDirectory != 0 }

// IsVolumeLabel reports the volume-label attribute bit.
func (fe *FileEntry) IsVolumeLabel() bool { return fe.Attributes()&AttrVolume != 0 }

// StartCluster returns the file's first cluster (high word joined on FAT32).
func (fe *FileEntry) StartCluster() uint32 {
	if !fe.HasShortName() {
		return 0
	}
	return fe.short().StartCluster
}

// FileSize returns the byte length recorded in the short entry.
func (fe *FileEntry) FileSize() uint32 {
	if !fe.HasShortName() {
		return 0
	}
	return fe.short().FileSize
}

// CreateTime returns the short entry's creation timestamp.
func (fe *FileEntry) CreateTime() time.Time {
	if !fe.HasShortName() {
		return time.Time{}
	}
	return fe.short().CreateTime()
}

// AccessDate returns the short entry's last-access date.
func (fe *FileEntry) AccessDate() time.Time {
	if !fe.HasShortName() {
		return time.Time{}
	}
	return fe.short().AccessDate()
}

// ModifyTime returns the short entry's modification timestamp.
func (fe *FileEntry) ModifyTime() time.Time {
	if !fe.HasShortName() {
		return time.Time{}
	}
	return fe.short().ModifyTime()
}

// Directory is the ordered list of FileEntries of one directory stream.
type Directory struct {
	Entries []FileEntry
}

// ParseDirectory walks a directory buffer in 32-byte steps until the
// terminator slot or the end of the buffer.
func ParseDirectory(buffer []byte) *Directory {
	dir := &Directory{}

	offset := 0
	for offset < len(buffer) {
		if buffer[offset] == entryTerminator {
			break
		}
		fe := ParseFileEntry(buffer, offset)
		if fe.Empty() {
			break
		}
		offset += DirEntrySize * fe.Count()
		dir.Entries = append(dir.Entries, fe)
	}
	return dir
}

// DeletedEntries filters the directory down to its deleted slots.
func (d *Directory) DeletedEntries() []FileEntry {
	var deleted []FileEntry
	for _, fe := range d.Entries {
		if fe.Deleted() {
			deleted = append(deleted, fe)
		}
	}
	return deleted
}
