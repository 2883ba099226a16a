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
	"fmt"
	"io"

	"github.com/ppolstra/windows-forensics/internal/fserr"
)

// ReadDirectoryBuffer returns the raw stream of one directory. Cluster 0
// selects the root: the fixed root-directory area on FAT12/16, the root
// cluster chain on FAT32. Any other cluster is followed through the FAT.
func ReadDirectoryBuffer(img io.ReaderAt, base int64, vbr *VBR, table *Table, cluster uint32) ([]byte, error) {
	if cluster == 0 {
		if vbr.IsFAT32() {
			cluster = vbr.RootCluster
		} else {
			return readRootArea(img, base, vbr)
		}
	}

	chain := table.Chain(cluster)
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: cluster %d starts no chain", fserr.ErrNotApplicable, cluster)
	}

	buf := make([]byte, 0, len(chain)*int(vbr.ClusterSize()))
	for _, c := range chain {
		data, err := vbr.ReadCluster(img, base, c)
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
	}
	return buf, nil
}

// readRootArea reads the fixed FAT12/16 root directory region.
func readRootArea(img io.ReaderAt, base int64, vbr *VBR) ([]byte, error) {
	size := int(vbr.RootDirEntries) * DirEntrySize
	if size == 0 {
		return nil, fmt.Errorf("%w: volume has no fixed root directory", fserr.ErrNotApplicable)
	}
	buf := make([]byte, size)
	off := base + int64(vbr.RootDirSector())*int64(vbr.BytesPerSector)
	n, err := img.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading root directory: %v", fserr.ErrIO, err)
	}
	if n != size {
		return nil, fmt.Errorf("%w: short read of root directory", fserr.ErrIO)
	}
	return buf, nil
}
