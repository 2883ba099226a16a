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

// Package ntfs interprets NTFS volumes for read-only analysis: the boot
// record, MFT records with their attribute streams, directory indexes, and
// the extraction of file content including alternate data streams.
package ntfs

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppolstra/windows-forensics/internal/fserr"
	"github.com/ppolstra/windows-forensics/pkg/bin"
)

const SectorSize = 512

// VBR is the decoded NTFS volume boot record.
type VBR struct {
	OEMName           string
	BytesPerSector    uint16
	SectorsPerCluster uint8
	MediaDescriptor   uint8
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32
	TotalSectors      uint64
	MFTCluster        uint64
	MFTMirrorCluster  uint64
	SerialNumber      uint64

	// Stored as signed bytes: a negative value n encodes a size of 2^|n|
	// bytes instead of a cluster count.
	clustersPerFileRecord int8
	clustersPerIndexBlock int8
}

// ParseVBR decodes one NTFS boot sector.
func ParseVBR(data []byte) (*VBR, error) {
	if len(data) < SectorSize {
		return nil, fmt.Errorf("%w: ntfs vbr needs %d bytes, got %d",
			fserr.ErrIO, SectorSize, len(data))
	}
	if data[510] != 0x55 || data[511] != 0xAA {
		return nil, fmt.Errorf("%w: ntfs vbr signature is 0x%02X%02X, want 0x55AA",
			fserr.ErrInvalidSignature, data[510], data[511])
	}

	v := &VBR{
		OEMName:               strings.TrimRight(string(data[3:11]), " \x00"),
		BytesPerSector:        bin.Uint16(data, 11),
		SectorsPerCluster:     data[13],
		MediaDescriptor:       data[21],
		SectorsPerTrack:       bin.Uint16(data, 24),
		Heads:                 bin.Uint16(data, 26),
		HiddenSectors:         bin.Uint32(data, 28),
		TotalSectors:          bin.Uint64(data, 40),
		MFTCluster:            bin.Uint64(data, 48),
		MFTMirrorCluster:      bin.Uint64(data, 56),
		clustersPerFileRecord: int8(data[64]),
		clustersPerIndexBlock: int8(data[68]),
		SerialNumber:          bin.Uint64(data, 72),
	}

	if v.BytesPerSector == 0 || v.SectorsPerCluster == 0 {
		return nil, fmt.Errorf("%w: ntfs vbr has zero sector or cluster geometry", fserr.ErrCorrupt)
	}
	return v, nil
}

// BytesPerCluster returns the cluster length in bytes.
func (v *VBR) BytesPerCluster() uint32 {
	return uint32(v.BytesPerSector) * uint32(v.SectorsPerCluster)
}

// sizeFromClusters resolves the signed clusters-or-shift encoding used for
// the file-record and index-buffer sizes.
func (v *VBR) sizeFromClusters(raw int8) uint32 {
	if raw < 0 {
		return 1 << uint(-raw)
	}
	return uint32(raw) * v.BytesPerCluster()
}

// FileRecordSize returns the MFT record length in bytes (usually 1024).
func (v *VBR) FileRecordSize() uint32 {
	return v.sizeFromClusters(v.clustersPerFileRecord)
}

// IndexBufferSize returns the INDX buffer length in bytes (usually 4096).
func (v *VBR) IndexBufferSize() uint32 {
	return v.sizeFromClusters(v.clustersPerIndexBlock)
}

// ClusterOffset gives the byte offset of a cluster counted from the start
// of the disk: the hidden sectors preceding the volume plus the cluster's
// position inside it.
func (v *VBR) ClusterOffset(cluster uint64) int64 {
	return int64(v.HiddenSectors)*int64(v.BytesPerSector) +
		int64(cluster)*int64(v.BytesPerCluster())
}

// GetCluster reads one whole cluster from the image.
func (v *VBR) GetCluster(f io.ReaderAt, cluster uint64) ([]byte, error) {
	buf := make([]byte, v.BytesPerCluster())
	off := v.ClusterOffset(cluster)
	n, err := f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading cluster %d at offset %d: %v",
			fserr.ErrIO, cluster, off, err)
	}
	if n != len(buf) {
		return nil, fmt.Errorf("%w: short read of cluster %d: %d of %d bytes",
			fserr.ErrIO, cluster, n, len(buf))
	}
	return buf, nil
}

func (v *VBR) String() string {
	return fmt.Sprintf("NTFS Volume Boot Record:\n"+
		"  OEM Name: %s\n"+
		"  Bytes/sector: %d\n"+
		"  Sectors/cluster: %d\n"+
		"  Hidden sectors: %d\n"+
		"  Total sectors: %d\n"+
		"  MFT LCN: %d\n"+
		"  MFT mirror LCN: %d\n"+
		"  File record size: %d\n"+
		"  Index buffer size: %d\n"+
		"  Serial number: %016X",
		v.OEMName, v.BytesPerSector, v.SectorsPerCluster,
		v.HiddenSectors, v.TotalSectors, v.MFTCluster, v.MFTMirrorCluster,
		v.FileRecordSize(), v.IndexBufferSize(), v.SerialNumber)
}
