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
	"bytes"
	"io"
)

// DeletedEntry is one not-in-use MFT record that still carries a filename,
// the trace a deleted file leaves until its record is reused.
type DeletedEntry struct {
	MFT         uint64
	Name        string
	IsDirectory bool
}

// ScanDeleted walks a stream of MFT records (a linearized MFT file, or a
// volume region starting at the MFT) and reports every record that is
// marked free but still decodes to a named file or directory. Records that
// fail to parse are skipped; the deletion itself often tears them.
func ScanDeleted(r io.Reader, recordSize int) ([]DeletedEntry, error) {
	if recordSize <= 0 {
		recordSize = DefaultRecordSize
	}

	var found []DeletedEntry
	buf := make([]byte, recordSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return found, nil
			}
			return found, err
		}
		if d := deletedFromRecord(buf); d != nil {
			found = append(found, *d)
		}
	}
}

// deletedFromRecord classifies one raw record buffer, returning nil for
// live, nameless, or unparseable records.
func deletedFromRecord(buf []byte) *DeletedEntry {
	if !bytes.Equal(buf[0:4], fileSignature) {
		return nil
	}

	rec, err := ParseRecord(buf)
	if err != nil || rec.Header.InUse() {
		return nil
	}

	var name string
	for _, a := range rec.AttributesOfType(AttrFileName) {
		fn, err := ParseFileName(a)
		if err != nil {
			continue
		}
		if len(fn.Name) > len(name) {
			name = fn.Name
		}
	}
	if name == "" {
		return nil
	}

	return &DeletedEntry{
		MFT:         uint64(rec.Header.RecordNumber),
		Name:        name,
		IsDirectory: rec.Header.IsDirectory(),
	}
}

// maxSweepRecords bounds the in-image sweep when the end of the MFT region
// cannot be detected.
const maxSweepRecords = 1 << 20

// ScanDeleted walks the contiguous in-image MFT from its first cluster,
// stopping at the first slot that no longer looks like a record.
func (e *Extractor) ScanDeleted() ([]DeletedEntry, error) {
	size := e.recordSize()
	buf := make([]byte, size)

	var found []DeletedEntry
	for n := uint64(0); n < maxSweepRecords; n++ {
		read, err := e.Image.ReadAt(buf, e.recordOffset(n))
		if err != nil && err != io.EOF {
			return found, nil
		}
		if int64(read) != size || !bytes.Equal(buf[0:4], fileSignature) {
			return found, nil
		}
		if d := deletedFromRecord(buf); d != nil {
			found = append(found, *d)
		}
	}
	return found, nil
}
