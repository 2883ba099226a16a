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
package disk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-restruct/restruct"

	"github.com/ppolstra/windows-forensics/internal/fserr"
	"github.com/ppolstra/windows-forensics/pkg/bin"
)

const (
	gptHeaderLBA  = 1
	gptEntriesLBA = 2
	gptEntrySize  = 128
	gptEntryCount = 128
)

var gptSignature = []byte("EFI PART")

// GPTHeader is the 92-byte header stored at LBA 1.
type GPTHeader struct {
	Signature         [8]byte
	Revision          uint32
	HeaderSize        uint32
	HeaderCRC32       uint32
	Reserved          uint32
	CurrentLBA        uint64
	BackupLBA         uint64
	FirstUsableLBA    uint64
	LastUsableLBA     uint64
	DiskGUID          [16]byte
	PartitionEntryLBA uint64
	NumberOfEntries   uint32
	EntrySize         uint32
	EntriesCRC32      uint32
}

// ReadDiskGUID returns the disk GUID in display form.
func (h *GPTHeader) ReadDiskGUID() string {
	return bin.FormatGUID(h.DiskGUID[:])
}

// ParseGPTHeader decodes and sanity-checks the header sector.
func ParseGPTHeader(data []byte) (*GPTHeader, error) {
	if len(data) < 92 {
		return nil, fmt.Errorf("%w: gpt header needs 92 bytes, got %d", fserr.ErrIO, len(data))
	}

	var h GPTHeader
	if err := restruct.Unpack(data[:92], binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: gpt header: %v", fserr.ErrCorrupt, err)
	}

	if !bytes.Equal(h.Signature[:], gptSignature) {
		return nil, fmt.Errorf("%w: gpt header signature %q, want %q",
			fserr.ErrInvalidSignature, h.Signature[:], gptSignature)
	}
	return &h, nil
}

// GPTEntry is one 128-byte slot of the partition array.
type GPTEntry struct {
	TypeGUID   [16]byte
	UniqueGUID [16]byte
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
	Name       [72]byte // UTF-16LE, NUL terminated
}

// IsEmpty reports whether the slot is unused (zero type GUID).
func (e *GPTEntry) IsEmpty() bool {
	return bin.IsZeroGUID(e.TypeGUID[:])
}

// ReadTypeGUID returns the partition type GUID in display form.
func (e *GPTEntry) ReadTypeGUID() string {
	return bin.FormatGUID(e.TypeGUID[:])
}

// ReadUniqueGUID returns the per-partition GUID in display form.
func (e *GPTEntry) ReadUniqueGUID() string {
	return bin.FormatGUID(e.UniqueGUID[:])
}

// ReadName returns the partition label, decoded up to its NUL terminator.
func (e *GPTEntry) ReadName() string {
	return bin.UTF16StringZ(e.Name[:])
}

// ParseGPTEntry decodes one partition-array slot.
func ParseGPTEntry(data []byte) (*GPTEntry, error) {
	if len(data) < gptEntrySize {
		return nil, fmt.Errorf("%w: gpt entry needs %d bytes, got %d",
			fserr.ErrIO, gptEntrySize, len(data))
	}

	var e GPTEntry
	if err := restruct.Unpack(data[:gptEntrySize], binary.LittleEndian, &e); err != nil {
		return nil, fmt.Errorf("%w: gpt entry: %v", fserr.ErrCorrupt, err)
	}
	return &e, nil
}

// scanGPT reads the header at LBA 1 and the 16KiB partition array at LBA 2,
// yielding every occupied slot in table order. The caller has already
// verified the protective MBR.
func scanGPT(f io.ReaderAt) ([]Partition, error) {
	sector, err := readSector(f, gptHeaderLBA)
	if err != nil {
		return nil, err
	}
	if _, err := ParseGPTHeader(sector); err != nil {
		return nil, err
	}

	table, err := readAt(f, gptEntriesLBA*SectorSize, gptEntryCount*gptEntrySize)
	if err != nil {
		return nil, err
	}

	var parts []Partition
	for i := 0; i < gptEntryCount; i++ {
		entry, err := ParseGPTEntry(table[i*gptEntrySize : (i+1)*gptEntrySize])
		if err != nil {
			return nil, err
		}
		if entry.IsEmpty() {
			continue
		}

		parts = append(parts, Partition{
			Scheme:     SchemeGPT,
			Index:      i + 1,
			TypeGUID:   entry.ReadTypeGUID(),
			UniqueGUID: entry.ReadUniqueGUID(),
			Label:      entry.ReadName(),
			FirstLBA:   entry.FirstLBA,
			// LastLBA is inclusive.
			TotalSectors: entry.LastLBA - entry.FirstLBA + 1,
			Attributes:   entry.Attributes,
		})
	}
	return parts, nil
}

// supportedGPTTypes lists the type GUIDs the mount collaborator will attempt
// to hand to the host mounter: basic data, Linux, BSD, Apple, Solaris, and
// the other common data-bearing filesystems.
var supportedGPTTypes = map[string]bool{
	"EBD0A0A2-B9E5-4433-87C0-68B6B72699C7": true, // Microsoft basic data
	"37AFFC90-EF7D-4E96-91C3-2D7AE055B174": true, // IBM GPFS
	"0FC63DAF-8483-4772-8E79-3D69D8477DE4": true, // Linux filesystem
	"8DA63339-0007-60C0-C436-083AC8230908": true, // Linux reserved
	"933AC7E1-2EB4-4F13-B844-0E14E2AEF915": true, // Linux /home
	"44479540-F297-41B2-9AF7-D131D5F0458A": true, // Linux root (x86)
	"4F68BCE3-E8CD-4DB1-96E7-FBCAF984B709": true, // Linux root (x86-64)
	"B921B045-1DF0-41C3-AF44-4C6F280D3FAE": true, // Linux root (arm64)
	"3B8F8425-20E0-4F3B-907F-1A25A76F98E8": true, // Linux /srv
	"E6D6D379-F507-44C2-A23C-238F2A3DF928": true, // Linux LVM
	"516E7CB4-6ECF-11D6-8FF8-00022D09712B": true, // FreeBSD data
	"83BD6B9D-7F41-11DC-BE0B-001560B84F0F": true, // FreeBSD boot
	"516E7CB5-6ECF-11D6-8FF8-00022D09712B": true, // FreeBSD swap
	"85D5E45A-237C-11E1-B4B3-E89A8F7FC3A7": true, // MidnightBSD data
	"824CC7A0-36A8-11E3-890A-952519AD3F61": true, // OpenBSD data
	"55465300-0000-11AA-AA11-00306543ECAC": true, // Apple UFS
	"49F48D5A-B10E-11DC-B99B-0019D1879648": true, // NetBSD FFS
	"49F48D82-B10E-11DC-B99B-0019D1879648": true, // NetBSD LFS
	"2DB519C4-B10F-11DC-B99B-0019D1879648": true, // NetBSD concatenated
	"2DB519EC-B10F-11DC-B99B-0019D1879648": true, // NetBSD encrypted
	"49F48DAA-B10E-11DC-B99B-0019D1879648": true, // NetBSD RAID
	"426F6F74-0000-11AA-AA11-00306543ECAC": true, // Apple boot
	"48465300-0000-11AA-AA11-00306543ECAC": true, // Apple HFS+
	"52414944-0000-11AA-AA11-00306543ECAC": true, // Apple RAID
	"52414944-5F4F-11AA-AA11-00306543ECAC": true, // Apple RAID offline
	"4C616265-6C00-11AA-AA11-00306543ECAC": true, // Apple label
	"6A82CB45-1DD2-11B2-99A6-080020736631": true, // Solaris boot
	"6A85CF4D-1DD2-11B2-99A6-080020736631": true, // Solaris root
	"6A898CC3-1DD2-11B2-99A6-080020736631": true, // Solaris /usr, ZFS
	"6A8B642B-1DD2-11B2-99A6-080020736631": true, // Solaris swap
	"6A8EF2E9-1DD2-11B2-99A6-080020736631": true, // Solaris /var
	"6A90BA39-1DD2-11B2-99A6-080020736631": true, // Solaris /home
	"6A9283A5-1DD2-11B2-99A6-080020736631": true, // Solaris alternate sector
	"75894C1E-3AEB-11D3-B7C1-7B03A0000000": true, // HP-UX data
	"E2A1E728-32E3-11D6-A682-7B03A0000000": true, // HP-UX service
	"BC13C2FF-59E6-4262-A352-B275FD6F7172": true, // Freedesktop /boot
	"42465331-3BA3-10F1-802A-4861696B7521": true, // Haiku BFS
	"AA31E02A-400F-11DB-9590-000C2911D1B8": true, // VMware VMFS
	"9198EFFC-31C0-11DB-8F78-000C2911D1B8": true, // VMware reserved
	"9D275380-40AD-11DB-BF97-000C2911D1B8": true, // VMware kcore
	"A19D880F-05FC-4D3B-A006-743F0F84911E": true, // Linux RAID
	"7C3457EF-0000-11AA-AA11-00306543ECAC": true, // APFS
}

// GPTTypeSupported reports whether the mount collaborator should attempt a
// partition with this type GUID.
func GPTTypeSupported(typeGUID string) bool {
	return supportedGPTTypes[typeGUID]
}
