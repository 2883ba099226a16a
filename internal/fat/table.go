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

import "github.com/ppolstra/windows-forensics/pkg/bin"

// End-of-chain thresholds. Any cell value at or above the variant's
// threshold terminates a chain; the value just below marks a bad cluster.
const (
	fat12EOC = 0xFF8
	fat16EOC = 0xFFF8
	fat32EOC = 0x0FFFFFF8
)

// Table is an in-memory copy of one file allocation table. The cell width
// depends on the variant; FAT12 packs two 12-bit cells into three bytes.
type Table struct {
	data          []byte
	variant       Variant
	totalClusters uint32
}

// NewTable wraps a raw FAT blob. totalClusters bounds chain walks and
// cluster validity checks.
func NewTable(data []byte, variant Variant, totalClusters uint32) *Table {
	return &Table{data: data, variant: variant, totalClusters: totalClusters}
}

// Variant returns the cell width of this table.
func (t *Table) Variant() Variant { return t.variant }

// TotalClusters returns the walk bound handed to the constructor.
func (t *Table) TotalClusters() uint32 { return t.totalClusters }

// Entry returns the raw cell value for a cluster, or 0 when the cluster
// number lies outside the table.
func (t *Table) Entry(cluster uint32) uint32 {
	switch t.variant {
	case FAT32:
		off := int(cluster) * 4
		if off+4 > len(t.data) {
			return 0
		}
		// The top nibble of a FAT32 cell is reserved.
		return bin.Uint32(t.data, off) & 0x0FFFFFFF
	case FAT16:
		off := int(cluster) * 2
		if off+2 > len(t.data) {
			return 0
		}
		return uint32(bin.Uint16(t.data, off))
	default:
		// Two 12-bit cells per three bytes. The even cell takes byte 0 plus
		// the low nibble of byte 1; the odd cell takes the high nibble of
		// byte 1 plus byte 2.
		off := int(cluster/2) * 3
		if off+3 > len(t.data) {
			return 0
		}
		if cluster%2 == 0 {
			return uint32(t.data[off]) | uint32(t.data[off+1]&0x0F)<<8
		}
		return uint32(t.data[off+1]>>4) | uint32(t.data[off+2])<<4
	}
}

// IsEnd reports whether the cluster's cell terminates a chain.
func (t *Table) IsEnd(cluster uint32) bool {
	v := t.Entry(cluster)
	switch t.variant {
	case FAT32:
		return v >= fat32EOC
	case FAT16:
		return v >= fat16EOC
	default:
		return v >= fat12EOC
	}
}

// IsAllocated reports whether the cluster belongs to any chain, including
// as a chain's final cluster. A zero cell means free.
func (t *Table) IsAllocated(cluster uint32) bool {
	if cluster == 0 {
		return false
	}
	return t.Entry(cluster) != 0
}

// NextCluster returns the successor of a cluster, or ok=false at the end of
// the chain (terminator cell or free cell).
func (t *Table) NextCluster(cluster uint32) (uint32, bool) {
	v := t.Entry(cluster)
	if v == 0 || t.IsEnd(cluster) {
		return 0, false
	}
	return v, true
}

// Chain returns the cluster chain starting at start, in chain order. The
// walk is bounded by the total cluster count, so a corrupted table that
// loops cannot make it spin; the visited set additionally cuts the chain at
// the first repeated cluster.
func (t *Table) Chain(start uint32) []uint32 {
	var chain []uint32

	seen := make(map[uint32]bool)
	cluster := start
	for i := uint32(0); i <= t.totalClusters; i++ {
		if !t.IsAllocated(cluster) || seen[cluster] {
			return chain
		}
		seen[cluster] = true
		chain = append(chain, cluster)

		next, ok := t.NextCluster(cluster)
		if !ok {
			return chain
		}
		cluster = next
	}
	return chain
}
