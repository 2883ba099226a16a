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
	"fmt"
	"io"

	"github.com/ppolstra/windows-forensics/internal/fserr"
)

// Scheme identifies the partition-table layout a Partition was found in.
type Scheme uint8

const (
	SchemeMBR Scheme = iota
	SchemeGPT
)

func (s Scheme) String() string {
	if s == SchemeGPT {
		return "GPT"
	}
	return "MBR"
}

// Partition is one discovered partition, MBR or GPT. Values are created by
// Scan and never mutated. Index is 1-based for primaries; logical partitions
// inside an extended container count from 5, matching OS device naming.
type Partition struct {
	Scheme       Scheme
	Index        int
	Type         MBRPartition // MBR type code; zero for GPT entries
	TypeGUID     string       // GPT type GUID display form; empty for MBR
	UniqueGUID   string       // GPT unique GUID; empty for MBR
	Label        string       // GPT partition name; empty for MBR
	FirstLBA     uint64
	TotalSectors uint64
	Active       bool
	Attributes   uint64 // GPT attribute bits
	Logical      bool   // true when found via an EBR chain
}

// Offset returns the byte offset of the partition's first sector.
func (p *Partition) Offset() uint64 {
	return p.FirstLBA * SectorSize
}

// Size returns the partition length in bytes.
func (p *Partition) Size() uint64 {
	return p.TotalSectors * SectorSize
}

// Scan reads the partition scheme of an image and enumerates every
// partition in on-disk order. A protective MBR dispatches to the GPT
// scanner; otherwise the four primary slots are walked and any extended
// container is expanded through its EBR chain.
func Scan(f io.ReaderAt) ([]Partition, error) {
	sector, err := readSector(f, 0)
	if err != nil {
		return nil, err
	}

	mbr, err := ParseMBR(sector)
	if err != nil {
		return nil, err
	}

	if mbr.IsProtectiveGPT() {
		return scanGPT(f)
	}

	var parts []Partition
	nextLogical := 5
	for i := range mbr.PartitionEntries {
		entry := &mbr.PartitionEntries[i]
		if entry.IsEmpty() {
			continue
		}

		if entry.PartitionType.IsExtended() {
			logical, err := walkExtended(f, uint64(entry.ReadStartLBA()), nextLogical)
			if err != nil {
				return nil, err
			}
			// The container itself is also reported so callers can see the
			// full table; Mountable filters it out.
			parts = append(parts, Partition{
				Scheme:       SchemeMBR,
				Index:        i + 1,
				Type:         entry.PartitionType,
				FirstLBA:     uint64(entry.ReadStartLBA()),
				TotalSectors: uint64(entry.ReadTotalSectors()),
				Active:       entry.IsActive(),
			})
			parts = append(parts, logical...)
			nextLogical += len(logical)
			continue
		}

		parts = append(parts, Partition{
			Scheme:       SchemeMBR,
			Index:        i + 1,
			Type:         entry.PartitionType,
			FirstLBA:     uint64(entry.ReadStartLBA()),
			TotalSectors: uint64(entry.ReadTotalSectors()),
			Active:       entry.IsActive(),
		})
	}
	return parts, nil
}

// maxEBRChain caps the linked-list walk so a corrupted chain that loops
// back on itself cannot spin forever.
const maxEBRChain = 128

// walkExtended follows the EBR linked list rooted at ebrBase. Within each
// EBR, entry 1 addresses the logical partition relative to that EBR's own
// sector, while entry 2 addresses the next EBR relative to the base of the
// chain. An empty entry 2 terminates the list.
func walkExtended(f io.ReaderAt, ebrBase uint64, firstIndex int) ([]Partition, error) {
	var parts []Partition

	cursor := ebrBase
	index := firstIndex
	for hops := 0; hops < maxEBRChain; hops++ {
		sector, err := readSector(f, cursor)
		if err != nil {
			return parts, err
		}

		ebr, err := ParseMBR(sector)
		if err != nil {
			return parts, fmt.Errorf("ebr at sector %d: %w", cursor, err)
		}

		first := &ebr.PartitionEntries[0]
		if !first.IsEmpty() {
			parts = append(parts, Partition{
				Scheme:       SchemeMBR,
				Index:        index,
				Type:         first.PartitionType,
				FirstLBA:     cursor + uint64(first.ReadStartLBA()),
				TotalSectors: uint64(first.ReadTotalSectors()),
				Active:       first.IsActive(),
				Logical:      true,
			})
			index++
		}

		next := &ebr.PartitionEntries[1]
		if next.IsEmpty() {
			return parts, nil
		}
		cursor = ebrBase + uint64(next.ReadStartLBA())
	}
	return parts, fmt.Errorf("%w: ebr chain exceeds %d links", fserr.ErrCorrupt, maxEBRChain)
}

// readSector reads one 512-byte sector at the given LBA.
func readSector(f io.ReaderAt, lba uint64) ([]byte, error) {
	return readAt(f, int64(lba)*SectorSize, SectorSize)
}

func readAt(f io.ReaderAt, off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: read %d bytes at offset %d: %v", fserr.ErrIO, n, off, err)
	}
	if read != n {
		return nil, fmt.Errorf("%w: short read at offset %d: got %d of %d bytes",
			fserr.ErrIO, off, read, n)
	}
	return buf, nil
}
