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
package cmd

import (
	"io"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/ppolstra/windows-forensics/internal/ntfs"
)

func DefineTimelineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Emit a CSV of MACB timestamps from a linearized MFT",
		Long: `The 'timeline' command walks every record of a pre-extracted MFT file
and emits one CSV row per $FILE_NAME (source F) attribute and, for records
that carry a $FILE_NAME, one per $STANDARD_INFORMATION (source S) attribute.
Records without a $FILE_NAME produce no rows. When the image is supplied too, directory index
buffers contribute additional rows (source I) whose timestamps survive in
$I30 entries even after deletion.`,
		SilenceUsage: true,
		RunE:         RunTimeline,
	}
	cmd.Flags().StringP("mft", "m", "", "pre-extracted MFT file")
	cmd.Flags().StringP("file", "f", "", "image file (enables index-buffer rows)")
	cmd.Flags().Uint64P("offset", "o", 0, "offset of the volume in sectors")
	cmd.Flags().StringP("output", "w", "", "write the CSV here instead of stdout")
	_ = cmd.MarkFlagRequired("mft")
	return cmd
}

type timelineRow struct {
	Source        string `csv:"source"`
	Access        string `csv:"access"`
	Modify        string `csv:"modify"`
	Create        string `csv:"create"`
	RecordChange  string `csv:"record_change"`
	MFTEntry      uint64 `csv:"mft_entry"`
	Sequence      uint16 `csv:"sequence"`
	FileSize      uint64 `csv:"file_size"`
	AllocatedSize uint64 `csv:"allocated_size"`
	Filename      string `csv:"filename"`
}

func RunTimeline(cmd *cobra.Command, args []string) error {
	mftPath, _ := cmd.Flags().GetString("mft")
	imagePath, _ := cmd.Flags().GetString("file")
	offset, _ := cmd.Flags().GetUint64("offset")
	output, _ := cmd.Flags().GetString("output")

	mf, err := os.Open(mftPath)
	if err != nil {
		return err
	}
	defer mf.Close()

	// The image is optional; without it only the MFT's own timestamps are
	// reported.
	var e *ntfs.Extractor
	if imagePath != "" {
		extractor, cleanup, err := newExtractor(imagePath, "", offset)
		if err != nil {
			return err
		}
		defer cleanup()
		e = extractor
	}

	log := getLogger(cmd)

	var rows []*timelineRow
	buf := make([]byte, ntfs.DefaultRecordSize)
	for entry := uint64(0); ; entry++ {
		if _, err := io.ReadFull(mf, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return err
		}

		rec, err := ntfs.ParseRecord(buf)
		if err != nil {
			continue
		}

		var lastName *ntfs.FileName
		for _, a := range rec.AttributesOfType(ntfs.AttrFileName) {
			fn, err := ntfs.ParseFileName(a)
			if err != nil {
				continue
			}
			lastName = fn
			rows = append(rows, &timelineRow{
				Source:        "F",
				Access:        formatTimestamp(fn.AccessTime()),
				Modify:        formatTimestamp(fn.ModifyTime()),
				Create:        formatTimestamp(fn.CreateTime()),
				RecordChange:  formatTimestamp(fn.RecordChangeTime()),
				MFTEntry:      uint64(rec.Header.RecordNumber),
				Sequence:      rec.Header.SequenceNumber,
				FileSize:      fn.LogicalSize,
				AllocatedSize: fn.PhysicalSize,
				Filename:      fn.Name,
			})
		}
		if lastName == nil {
			continue
		}

		for _, a := range rec.AttributesOfType(ntfs.AttrStandardInformation) {
			si, err := ntfs.ParseStandardInfo(a)
			if err != nil {
				continue
			}
			rows = append(rows, &timelineRow{
				Source:        "S",
				Access:        formatTimestamp(si.AccessTime()),
				Modify:        formatTimestamp(si.ModifyTime()),
				Create:        formatTimestamp(si.CreateTime()),
				RecordChange:  formatTimestamp(si.RecordChangeTime()),
				MFTEntry:      uint64(rec.Header.RecordNumber),
				Sequence:      rec.Header.SequenceNumber,
				FileSize:      lastName.LogicalSize,
				AllocatedSize: lastName.PhysicalSize,
				Filename:      lastName.Name,
			})
		}

		if e != nil && rec.Header.IsDirectory() {
			indexRows, err := indexBufferRows(e, rec)
			if err != nil {
				log.Warnf("index buffers of record %d: %v", rec.Header.RecordNumber, err)
				continue
			}
			rows = append(rows, indexRows...)
		}
	}

	out := io.Writer(os.Stdout)
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return gocsv.Marshal(&rows, out)
}

// indexBufferRows reads a directory's $I30 buffers and emits one row per
// index entry.
func indexBufferRows(e *ntfs.Extractor, rec *ntfs.Record) ([]*timelineRow, error) {
	var clusters []int64
	for _, a := range rec.AttributesOfType(ntfs.AttrIndexAllocation) {
		clusters = append(clusters, a.ClusterList()...)
	}
	if len(clusters) == 0 {
		return nil, nil
	}

	var stream []byte
	for _, c := range clusters {
		data, err := e.VBR.GetCluster(e.Image, uint64(c))
		if err != nil {
			return nil, err
		}
		stream = append(stream, data...)
	}

	bufferSize := int(e.VBR.IndexBufferSize())
	if bufferSize == 0 {
		bufferSize = 4096
	}

	var rows []*timelineRow
	for off := 0; off+bufferSize <= len(stream); off += bufferSize {
		ib, err := ntfs.ParseIndexBuffer(stream[off : off+bufferSize])
		if err != nil {
			continue
		}
		for _, entry := range ib.Entries {
			fn := entry.FileName
			if fn == nil {
				continue
			}
			rows = append(rows, &timelineRow{
				Source:        "I",
				Access:        formatTimestamp(fn.AccessTime()),
				Modify:        formatTimestamp(fn.ModifyTime()),
				Create:        formatTimestamp(fn.CreateTime()),
				RecordChange:  formatTimestamp(fn.RecordChangeTime()),
				MFTEntry:      entry.MFT,
				Sequence:      entry.Sequence,
				FileSize:      fn.LogicalSize,
				AllocatedSize: fn.PhysicalSize,
				Filename:      fn.Name,
			})
		}
	}
	return rows, nil
}
