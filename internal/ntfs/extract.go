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
	"io"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/ppolstra/windows-forensics/internal/fserr"
	"github.com/ppolstra/windows-forensics/internal/logger"
	ioutil "github.com/ppolstra/windows-forensics/pkg/util/io"
)

// Extractor rebuilds files and directory indexes from MFT records. It runs
// in one of two modes: image-only, which assumes the MFT is contiguous from
// its first LCN and aborts when a fetched record disagrees about its own
// number, or external-MFT, where a pre-extracted linearized MFT sidesteps
// fragmentation.
type Extractor struct {
	Image io.ReaderAt
	VBR   *VBR
	Base  int64 // byte offset of the volume within the image

	// MFT, when non-nil, is a linearized copy of the MFT indexed by
	// recordSize*N.
	MFT io.ReaderAt

	// IncludeSlack keeps unallocated INDX buffers in directory output.
	IncludeSlack bool
	OutputDir    string
	Log          *logger.Logger
}

// recordSize resolves the VBR's file-record size, defaulting to 1 KiB.
func (e *Extractor) recordSize() int64 {
	if e.VBR != nil {
		if s := e.VBR.FileRecordSize(); s > 0 {
			return int64(s)
		}
	}
	return DefaultRecordSize
}

// recordOffset assumes a contiguous MFT: records sit back to back from the
// MFT's first cluster.
func (e *Extractor) recordOffset(n uint64) int64 {
	return e.Base +
		int64(e.VBR.MFTCluster)*int64(e.VBR.BytesPerCluster()) +
		e.recordSize()*int64(n)
}

// Record fetches and parses MFT record n, verifying that the record's
// stored number matches. A mismatch means the MFT is fragmented and the
// contiguity assumption does not hold for this record.
func (e *Extractor) Record(n uint64) (*Record, error) {
	size := e.recordSize()
	buf := make([]byte, size)

	var off int64
	src := e.MFT
	if src != nil {
		off = size * int64(n)
	} else {
		src = e.Image
		off = e.recordOffset(n)
	}

	read, err := src.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading mft record %d: %v", fserr.ErrIO, n, err)
	}
	if int64(read) != size {
		return nil, fmt.Errorf("%w: short read of mft record %d", fserr.ErrIO, n)
	}

	rec, err := ParseRecord(buf)
	if err != nil {
		return nil, err
	}
	if uint64(rec.Header.RecordNumber) != n {
		return nil, fmt.Errorf("%w: record %d reports number %d",
			fserr.ErrFragmentedMFT, n, rec.Header.RecordNumber)
	}
	return rec, nil
}

// SanitizeName maps filenames that collide with the filesystem or shell:
// the root directory's "." becomes "root" and "$"-prefixed system files
// become "dollar<name>".
func SanitizeName(name string) string {
	if name == "" {
		return "unnamed"
	}
	switch name[0] {
	case '.':
		return "root"
	case '$':
		return "dollar" + name[1:]
	}
	return name
}

// BestName picks the longest $FILE_NAME of a record, preferring the Win32
// long name over its DOS 8.3 twin.
func (e *Extractor) BestName(rec *Record) (*FileName, error) {
	var best *FileName
	for _, a := range rec.AttributesOfType(AttrFileName) {
		fn, err := ParseFileName(a)
		if err != nil {
			e.logf("skipping malformed $FILE_NAME in record %d: %v", rec.Header.RecordNumber, err)
			continue
		}
		if best == nil || fn.NameLength() > best.NameLength() {
			best = fn
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: record %d has no usable $FILE_NAME",
			fserr.ErrNotApplicable, rec.Header.RecordNumber)
	}
	return best, nil
}

// Extract rebuilds the file or directory of MFT record n into OutputDir and
// returns the paths written.
func (e *Extractor) Extract(n uint64) ([]string, error) {
	rec, err := e.Record(n)
	if err != nil {
		return nil, err
	}

	fn, err := e.BestName(rec)
	if err != nil {
		return nil, err
	}
	name := SanitizeName(fn.Name)

	if fn.IsDirectory() || rec.Header.IsDirectory() {
		path, err := e.extractDirectory(rec, name)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}
	return e.extractFile(rec, name)
}

// extractDirectory writes the directory's $I30 stream to index-<name>,
// concatenating the clusters of every $INDEX_ALLOCATION and filtering them
// through the $BITMAP unless slack was requested.
func (e *Extractor) extractDirectory(rec *Record, name string) (string, error) {
	var clusters []int64
	for _, a := range rec.AttributesOfType(AttrIndexAllocation) {
		clusters = append(clusters, a.ClusterList()...)
	}

	var bm *IndexBitmap
	if ba := rec.FirstAttribute(AttrBitmap); ba != nil {
		parsed, err := ParseBitmap(ba)
		if err != nil {
			return "", err
		}
		bm = parsed
	}

	clustersPerBuffer := 1
	if root := rec.FirstAttribute(AttrIndexRoot); root != nil {
		if ir, err := ParseIndexRoot(root); err == nil && ir.ClustersPerBuffer > 0 {
			clustersPerBuffer = int(ir.ClustersPerBuffer)
		}
	}

	path := filepath.Join(e.OutputDir, "index-"+name)
	err := ioutil.WriteFileFunc(path, func(w io.Writer) error {
		for i, cluster := range clusters {
			buffer := i / clustersPerBuffer
			if !e.IncludeSlack && bm != nil && !bm.InUse(buffer) {
				continue
			}
			data, err := e.VBR.GetCluster(e.Image, uint64(cluster))
			if err != nil {
				return err
			}
			if _, err := w.Write(data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// extractFile gathers every $DATA attribute of the record, following any
// $ATTRIBUTE_LIST to the extension records that hold the remaining VCN
// ranges, and writes the default stream to <name> and each alternate data
// stream to <name>-ads-<stream>.
func (e *Extractor) extractFile(rec *Record, name string) ([]string, error) {
	dataAttrs, err := e.gatherData(rec)
	if err != nil {
		return nil, err
	}

	// Group by stream: "" is the default stream, anything else an ADS.
	streams := map[string][]*Attribute{}
	var order []string
	for _, a := range dataAttrs {
		if _, seen := streams[a.Name]; !seen {
			order = append(order, a.Name)
		}
		streams[a.Name] = append(streams[a.Name], a)
	}

	var written []string
	var errs *multierror.Error
	for _, stream := range order {
		path := filepath.Join(e.OutputDir, name)
		if stream != "" {
			path = filepath.Join(e.OutputDir, name+"-ads-"+stream)
		}
		if err := e.writeStream(path, streams[stream]); err != nil {
			e.logf("stream %q of %s: %v", stream, name, err)
			errs = multierror.Append(errs, err)
			continue
		}
		written = append(written, path)
	}
	return written, errs.ErrorOrNil()
}

// gatherData collects the record's $DATA attributes. When an
// $ATTRIBUTE_LIST is present, the $80 slices live in other records keyed by
// starting VCN; those records are fetched (with the same fragmentation
// check) and their $80 attributes joined in.
func (e *Extractor) gatherData(rec *Record) ([]*Attribute, error) {
	lists := rec.AttributesOfType(AttrAttributeList)
	if len(lists) == 0 {
		return rec.AttributesOfType(AttrData), nil
	}

	var refs []uint64
	seen := map[uint64]bool{}
	for _, la := range lists {
		items, err := ParseAttributeList(la)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if item.Type != AttrData || seen[item.MFT()] {
				continue
			}
			seen[item.MFT()] = true
			refs = append(refs, item.MFT())
		}
	}

	var attrs []*Attribute
	for _, mft := range refs {
		target := rec
		if mft != uint64(rec.Header.RecordNumber) {
			fetched, err := e.Record(mft)
			if err != nil {
				return nil, err
			}
			target = fetched
		}
		attrs = append(attrs, target.AttributesOfType(AttrData)...)
	}
	return attrs, nil
}

// writeStream reassembles one stream from its attribute slices. A resident
// attribute holds the whole payload inline; non-resident slices are ordered
// by first VCN before their clusters are concatenated.
func (e *Extractor) writeStream(path string, attrs []*Attribute) error {
	for _, a := range attrs {
		if a.IsCompressed() || a.IsEncrypted() {
			return fmt.Errorf("%w: compressed or encrypted $DATA stream", fserr.ErrUnsupported)
		}
	}

	for _, a := range attrs {
		if a.Resident {
			return ioutil.WriteFileFunc(path, func(w io.Writer) error {
				_, err := w.Write(a.Value)
				return err
			})
		}
	}

	sorted := append([]*Attribute(nil), attrs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FirstVCN < sorted[j].FirstVCN
	})

	return ioutil.WriteFileFunc(path, func(w io.Writer) error {
		for _, a := range sorted {
			for _, cluster := range a.ClusterList() {
				data, err := e.VBR.GetCluster(e.Image, uint64(cluster))
				if err != nil {
					return err
				}
				if _, err := w.Write(data); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (e *Extractor) logf(format string, args ...any) {
	if e.Log != nil {
		e.Log.Warnf(format, args...)
	}
}
