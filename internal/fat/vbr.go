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

// Package fat interprets FAT12/16/32 volumes: the boot sector, the file
// allocation table, directory streams with long-filename assembly, and the
// deleted-entry recovery heuristics.
package fat

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppolstra/windows-forensics/internal/fserr"
	"github.com/ppolstra/windows-forensics/pkg/bin"
)

// Variant selects the FAT cell width of a volume.
type Variant uint8

const (
	FAT12 Variant = iota
	FAT16
	FAT32
)

func (v Variant) String() string {
	switch v {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	default:
		return "FAT32"
	}
}

const SectorSize = 512

// VBR is the decoded FAT volume boot record. The common BPB fields apply to
// every variant; the FAT32 extension fields are zero on FAT12/16 volumes and
// the FAT12/16 extension fields are zero on FAT32.
type VBR struct {
	JumpCode          [3]byte
	OEMName           string
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumberOfFATs      uint8
	RootDirEntries    uint16
	MediaDescriptor   uint8
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32

	smallTotalSectors uint16
	largeTotalSectors uint32
	sectorsPerFAT16   uint16
	sectorsPerFAT32   uint32

	// FAT32 extension
	MirrorFlags      uint16
	Version          uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16

	DriveNumber    uint8
	SerialNumber   uint32
	VolumeLabel    string
	FilesystemType string

	variant Variant
}

// ParseVBR decodes one boot sector. The variant is detected per the FAT
// specification rule: a zero 16-bit sectors-per-FAT or a zero root-entry
// count means FAT32; otherwise the data-area cluster count separates FAT12
// from FAT16.
func ParseVBR(data []byte) (*VBR, error) {
	if len(data) < SectorSize {
		return nil, fmt.Errorf("%w: vbr needs %d bytes, got %d", fserr.ErrIO, SectorSize, len(data))
	}
	if data[510] != 0x55 || data[511] != 0xAA {
		return nil, fmt.Errorf("%w: vbr signature is 0x%02X%02X, want 0x55AA",
			fserr.ErrInvalidSignature, data[510], data[511])
	}

	v := &VBR{
		OEMName:           strings.TrimRight(string(data[3:11]), " \x00"),
		BytesPerSector:    bin.Uint16(data, 11),
		SectorsPerCluster: data[13],
		ReservedSectors:   bin.Uint16(data, 14),
		NumberOfFATs:      data[16],
		RootDirEntries:    bin.Uint16(data, 17),
		smallTotalSectors: bin.Uint16(data, 19),
		MediaDescriptor:   data[21],
		sectorsPerFAT16:   bin.Uint16(data, 22),
		SectorsPerTrack:   bin.Uint16(data, 24),
		Heads:             bin.Uint16(data, 26),
		HiddenSectors:     bin.Uint32(data, 28),
		largeTotalSectors: bin.Uint32(data, 32),
	}
	copy(v.JumpCode[:], data[0:3])

	if v.BytesPerSector == 0 || v.SectorsPerCluster == 0 {
		return nil, fmt.Errorf("%w: vbr has zero sector or cluster geometry", fserr.ErrCorrupt)
	}

	if v.sectorsPerFAT16 == 0 || v.RootDirEntries == 0 {
		v.variant = FAT32
		v.sectorsPerFAT32 = bin.Uint32(data, 36)
		v.MirrorFlags = bin.Uint16(data, 40)
		v.Version = bin.Uint16(data, 42)
		v.RootCluster = bin.Uint32(data, 44)
		v.FSInfoSector = bin.Uint16(data, 48)
		v.BackupBootSector = bin.Uint16(data, 50)
		v.DriveNumber = data[64]
		v.SerialNumber = bin.Uint32(data, 67)
		v.VolumeLabel = strings.TrimRight(string(data[71:82]), " \x00")
		v.FilesystemType = strings.TrimRight(string(data[82:90]), " \x00")
	} else {
		v.DriveNumber = data[36]
		v.SerialNumber = bin.Uint32(data, 39)
		v.VolumeLabel = strings.TrimRight(string(data[43:54]), " \x00")
		v.FilesystemType = strings.TrimRight(string(data[54:62]), " \x00")
		dataStart := v.SectorFromCluster(2)
		dataClusters := uint32(0)
		if total := v.TotalSectors(); total > dataStart {
			dataClusters = (total - dataStart) / uint32(v.SectorsPerCluster)
		}
		if dataClusters < 4085 {
			v.variant = FAT12
		} else {
			v.variant = FAT16
		}
	}
	return v, nil
}

// Variant returns the detected FAT width.
func (v *VBR) Variant() Variant { return v.variant }

// IsFAT32 is a shorthand for Variant() == FAT32.
func (v *VBR) IsFAT32() bool { return v.variant == FAT32 }

// TotalSectors resolves the small/large total-sector pair.
func (v *VBR) TotalSectors() uint32 {
	if v.smallTotalSectors != 0 {
		return uint32(v.smallTotalSectors)
	}
	return v.largeTotalSectors
}

// SectorsPerFAT resolves the 16/32-bit sectors-per-FAT pair.
func (v *VBR) SectorsPerFAT() uint32 {
	if v.sectorsPerFAT16 != 0 {
		return uint32(v.sectorsPerFAT16)
	}
	return v.sectorsPerFAT32
}

// ClusterSize returns the cluster length in bytes.
func (v *VBR) ClusterSize() uint32 {
	return uint32(v.BytesPerSector) * uint32(v.SectorsPerCluster)
}

// TotalClusters returns the number of clusters addressable on the volume,
// which also bounds every chain walk.
func (v *VBR) TotalClusters() uint32 {
	return v.TotalSectors() / uint32(v.SectorsPerCluster)
}

// SectorFromCluster maps a cluster number to its first sector, relative to
// the start of the volume. Cluster 2 is the first data cluster.
func (v *VBR) SectorFromCluster(cluster uint32) uint32 {
	sector := uint32(v.ReservedSectors) +
		uint32(v.NumberOfFATs)*v.SectorsPerFAT() +
		uint32(v.RootDirEntries)/16
	return sector + (cluster-2)*uint32(v.SectorsPerCluster)
}

// OffsetFromCluster gives the byte offset within the volume for a cluster.
func (v *VBR) OffsetFromCluster(cluster uint32) int64 {
	return int64(v.BytesPerSector) * int64(v.SectorFromCluster(cluster))
}

// ClusterFromSector inverts SectorFromCluster.
func (v *VBR) ClusterFromSector(sector uint32) uint32 {
	return (sector -
		uint32(v.NumberOfFATs)*v.SectorsPerFAT() -
		uint32(v.ReservedSectors) -
		uint32(v.RootDirEntries)/16) / uint32(v.SectorsPerCluster) + 2
}

// SectorOfFAT1 returns the first sector of the primary FAT.
func (v *VBR) SectorOfFAT1() uint32 { return uint32(v.ReservedSectors) }

// SectorOfFAT2 returns the first sector of the FAT copy.
func (v *VBR) SectorOfFAT2() uint32 { return uint32(v.ReservedSectors) + v.SectorsPerFAT() }

// RootDirSector returns the first sector of the fixed FAT12/16 root
// directory area. On FAT32 the root directory is an ordinary cluster chain
// starting at RootCluster.
func (v *VBR) RootDirSector() uint32 {
	return uint32(v.ReservedSectors) + uint32(v.NumberOfFATs)*v.SectorsPerFAT()
}

// ReadFAT reads the primary FAT of a volume that starts at base bytes into
// the image.
func (v *VBR) ReadFAT(f io.ReaderAt, base int64) (*Table, error) {
	size := int(v.SectorsPerFAT()) * int(v.BytesPerSector)
	buf := make([]byte, size)
	off := base + int64(v.SectorOfFAT1())*int64(v.BytesPerSector)
	n, err := f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading fat at offset %d: %v", fserr.ErrIO, off, err)
	}
	if n != size {
		return nil, fmt.Errorf("%w: short read of fat: %d of %d bytes", fserr.ErrIO, n, size)
	}
	return NewTable(buf, v.variant, v.TotalClusters()), nil
}

// ReadCluster reads one whole cluster of a volume starting at base bytes
// into the image.
func (v *VBR) ReadCluster(f io.ReaderAt, base int64, cluster uint32) ([]byte, error) {
	buf := make([]byte, v.ClusterSize())
	off := base + v.OffsetFromCluster(cluster)
	n, err := f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading cluster %d at offset %d: %v", fserr.ErrIO, cluster, off, err)
	}
	if n != len(buf) {
		return nil, fmt.Errorf("%w: short read of cluster %d: %d of %d bytes",
			fserr.ErrIO, cluster, n, len(buf))
	}
	return buf, nil
}

func (v *VBR) String() string {
	return fmt.Sprintf("FAT Volume Boot Record:\n"+
		"  OEM Name: %s\n"+
		"  Variant: %s\n"+
		"  Bytes/sector: %d\n"+
		"  Sectors/cluster: %d\n"+
		"  Reserved sectors: %d\n"+
		"  FAT copies: %d\n"+
		"  Root dir entries: %d\n"+
		"  Total sectors: %d\n"+
		"  Sectors/FAT: %d\n"+
		"  Hidden sectors: %d\n"+
		"  Volume label: %s\n"+
		"  Filesystem type: %s",
		v.OEMName, v.variant, v.BytesPerSector, v.SectorsPerCluster,
		v.ReservedSectors, v.NumberOfFATs, v.RootDirEntries,
		v.TotalSectors(), v.SectorsPerFAT(), v.HiddenSectors,
		v.VolumeLabel, v.FilesystemType)
}
