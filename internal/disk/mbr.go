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
	"encoding/binary"
	"fmt"

	"github.com/ppolstra/windows-forensics/internal/fserr"
	fmtutil "github.com/ppolstra/windows-forensics/pkg/util/format"
)

const SectorSize = 512

// CHS is an unpacked cylinder-head-sector address. On disk the sector byte
// carries the cylinder's upper two bits in its own upper two bits.
type CHS struct {
	Head     uint8
	Sector   uint8
	Cylinder uint16
}

func unpackCHS(b [3]byte) CHS {
	return CHS{
		Head:     b[0],
		Sector:   b[1] & 0x3F,
		Cylinder: uint16(b[1]&0xC0)<<2 | uint16(b[2]),
	}
}

// MBRPartitionEntry represents a single 16-byte entry in the MBR's partition
// table. Multi-byte fields are kept as raw byte arrays so the little-endian
// conversion happens explicitly in the accessors.
type MBRPartitionEntry struct {
	BootIndicator uint8        // 0x00: 0x80 for bootable, 0x00 for inactive
	StartCHS      [3]byte      // 0x01: Starting Cylinder-Head-Sector address
	PartitionType MBRPartition // 0x04: Partition type ID (e.g., 0x0B for FAT32)
	EndCHS        [3]byte      // 0x05: Ending Cylinder-Head-Sector address
	StartLBA      [4]byte      // 0x08: First sector LBA - uint32, Little-Endian
	TotalSectors  [4]byte      // 0x0C: Sectors in partition - uint32, Little-Endian
}

// ReadStartLBA returns the starting LBA of the partition.
func (p *MBRPartitionEntry) ReadStartLBA() uint32 {
	return binary.LittleEndian.Uint32(p.StartLBA[:])
}

// ReadTotalSectors returns the total number of sectors in the partition.
func (p *MBRPartitionEntry) ReadTotalSectors() uint32 {
	return binary.LittleEndian.Uint32(p.TotalSectors[:])
}

// IsEmpty reports whether the slot holds no partition.
func (p *MBRPartitionEntry) IsEmpty() bool {
	return p.PartitionType == PartitionTypeEmpty
}

// IsActive reports the bootable flag.
func (p *MBRPartitionEntry) IsActive() bool {
	return p.BootIndicator == 0x80
}

// ReadStartCHS returns the unpacked starting CHS address.
func (p *MBRPartitionEntry) ReadStartCHS() CHS {
	return unpackCHS(p.StartCHS)
}

// ReadEndCHS returns the unpacked ending CHS address.
func (p *MBRPartitionEntry) ReadEndCHS() CHS {
	return unpackCHS(p.EndCHS)
}

// String provides a human-readable representation of an MBRPartitionEntry.
func (p *MBRPartitionEntry) String() string {
	bootable := "No"
	if p.IsActive() {
		bootable = "Yes"
	}
	start, end := p.ReadStartCHS(), p.ReadEndCHS()
	return fmt.Sprintf("  Bootable: %s (0x%02X)\n"+
		"  Partition Type: 0x%02X (%s)\n"+
		"  Start CHS: %d/%d/%d\n"+
		"  End CHS: %d/%d/%d\n"+
		"  Start LBA: %d\n"+
		"  Total Sectors: %d\n"+
		"  Size: %s",
		bootable, p.BootIndicator,
		uint8(p.PartitionType), p.PartitionType.Name(),
		start.Cylinder, start.Head, start.Sector,
		end.Cylinder, end.Head, end.Sector,
		p.ReadStartLBA(),
		p.ReadTotalSectors(),
		fmtutil.FormatBytes(int64(p.ReadTotalSectors())*SectorSize))
}

// MBR represents the Master Boot Record structure. The same layout is reused
// by every EBR of an extended-partition chain.
type MBR struct {
	BootCode         [440]byte            // 0x000-0x1B7: Bootstrap code
	DiskSignature    [4]byte              // 0x1B8-0x1BB: Optional 32-bit disk signature
	Reserved         [2]byte              // 0x1BC-0x1BD: Usually 0x0000
	PartitionEntries [4]MBRPartitionEntry // 0x1BE-0x1FD: Four 16-byte partition entries
	Signature        [2]byte              // 0x1FE-0x1FF: MBR signature (0x55AA)
}

// ReadDiskSignature returns the disk signature as a uint32.
func (m *MBR) ReadDiskSignature() uint32 {
	return binary.LittleEndian.Uint32(m.DiskSignature[:])
}

// ValidSignature reports whether the sector ends with 0x55 0xAA.
func (m *MBR) ValidSignature() bool {
	return m.Signature[0] == 0x55 && m.Signature[1] == 0xAA
}

// IsProtectiveGPT reports whether this MBR is the protective MBR of a GPT
// disk: exactly one non-empty entry, of type 0xEE.
func (m *MBR) IsProtectiveGPT() bool {
	protective, occupied := 0, 0
	for i := range m.PartitionEntries {
		if m.PartitionEntries[i].IsEmpty() {
			continue
		}
		occupied++
		if m.PartitionEntries[i].PartitionType == PartitionTypeGPTProtective {
			protective++
		}
	}
	return occupied == 1 && protective == 1
}

// String provides a human-readable representation of the MBR.
func (m *MBR) String() string {
	s := fmt.Sprintf("--- Master Boot Record (MBR) ---\n"+
		"Disk Signature: 0x%08X\n"+
		"Signature valid: %v\n\n"+
		"--- Partition Table Entries ---",
		m.ReadDiskSignature(), m.ValidSignature())

	for i := range m.PartitionEntries {
		entry := &m.PartitionEntries[i]
		if entry.IsEmpty() {
			s += fmt.Sprintf("\nPartition %d: <empty>", i+1)
			continue
		}
		s += fmt.Sprintf("\nPartition %d:\n%s", i+1, entry.String())
	}
	return s
}

// ParseMBR parses a 512-byte sector into an MBR struct. The input must be
// exactly one sector of raw little-endian data.
func ParseMBR(data []byte) (*MBR, error) {
	const signatureOffset = 0x1FE

	if len(data) != SectorSize {
		return nil, fmt.Errorf("%w: mbr sector is %d bytes, want %d",
			fserr.ErrIO, len(data), SectorSize)
	}

	var mbr MBR
	copy(mbr.BootCode[:], data[0x000:0x1B8])
	copy(mbr.DiskSignature[:], data[0x1B8:0x1BC])
	copy(mbr.Reserved[:], data[0x1BC:0x1BE])

	for i := 0; i < 4; i++ {
		entryOffset := 0x1BE + (i * 16)
		entryBytes := data[entryOffset : entryOffset+16]

		mbr.PartitionEntries[i].BootIndicator = entryBytes[0x00]
		copy(mbr.PartitionEntries[i].StartCHS[:], entryBytes[0x01:0x04])
		mbr.PartitionEntries[i].PartitionType = MBRPartition(entryBytes[0x04])
		copy(mbr.PartitionEntries[i].EndCHS[:], entryBytes[0x05:0x08])
		copy(mbr.PartitionEntries[i].StartLBA[:], entryBytes[0x08:0x0C])
		copy(mbr.PartitionEntries[i].TotalSectors[:], entryBytes[0x0C:0x10])
	}

	copy(mbr.Signature[:], data[signatureOffset:signatureOffset+2])

	if !mbr.ValidSignature() {
		return nil, fmt.Errorf("%w: mbr signature is 0x%02X%02X, want 0x55AA",
			fserr.ErrInvalidSignature, mbr.Signature[0], mbr.Signature[1])
	}
	return &mbr, nil
}

type MBRPartition uint8

const (
	PartitionTypeEmpty         MBRPartition = 0x00
	PartitionTypeFAT12         MBRPartition = 0x01
	PartitionTypeFAT16Small    MBRPartition = 0x04
	PartitionTypeExtendedCHS   MBRPartition = 0x05
	PartitionTypeFAT16         MBRPartition = 0x06
	PartitionTypeNTFS          MBRPartition = 0x07
	PartitionTypeFAT32CHS      MBRPartition = 0x0B
	PartitionTypeFAT32LBA      MBRPartition = 0x0C
	PartitionTypeFAT16LBA      MBRPartition = 0x0E
	PartitionTypeExtendedLBA   MBRPartition = 0x0F
	PartitionTypeLinuxSwap     MBRPartition = 0x82
	PartitionTypeLinux         MBRPartition = 0x83
	PartitionTypeLinuxExtended MBRPartition = 0x85
	PartitionTypeGPTProtective MBRPartition = 0xEE
	PartitionTypeEFISystem     MBRPartition = 0xEF
)

// extendedTypes are the type codes marking an extended-partition container
// whose first sector starts an EBR chain.
var extendedTypes = map[MBRPartition]bool{
	0x05: true, 0x0F: true, 0x85: true, 0x91: true,
	0x9B: true, 0xC5: true, 0xE4: true,
}

// swapTypes are skipped by the mount collaborator; there is no filesystem to
// interpret inside them.
var swapTypes = map[MBRPartition]bool{
	0x42: true, 0x82: true, 0xB8: true, 0xC3: true, 0xFC: true,
}

// IsExtended reports whether the type code marks an extended container.
func (t MBRPartition) IsExtended() bool { return extendedTypes[t] }

// IsSwap reports whether the type code marks a swap area.
func (t MBRPartition) IsSwap() bool { return swapTypes[t] }

// Name maps common partition type IDs to names.
func (t MBRPartition) Name() string {
	switch t {
	case PartitionTypeEmpty:
		return "Empty"
	case PartitionTypeFAT12:
		return "FAT12"
	case PartitionTypeFAT16Small:
		return "FAT16 (<32MB)"
	case PartitionTypeExtendedCHS:
		return "Extended (CHS)"
	case PartitionTypeFAT16:
		return "FAT16"
	case PartitionTypeNTFS:
		return "NTFS/HPFS/exFAT"
	case PartitionTypeFAT32CHS:
		return "FAT32 (CHS)"
	case PartitionTypeFAT32LBA:
		return "FAT32 (LBA)"
	case PartitionTypeFAT16LBA:
		return "FAT16 (LBA)"
	case PartitionTypeExtendedLBA:
		return "Extended (LBA)"
	case PartitionTypeLinuxSwap:
		return "Linux swap"
	case PartitionTypeLinux:
		return "Linux filesystem"
	case PartitionTypeLinuxExtended:
		return "Linux extended"
	case PartitionTypeGPTProtective:
		return "GPT Protective MBR"
	case PartitionTypeEFISystem:
		return "EFI System Partition"
	default:
		if t.IsExtended() {
			return "Extended"
		}
		if t.IsSwap() {
			return "Swap/hibernation"
		}
		return "Unknown"
	}
}
