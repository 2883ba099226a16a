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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppolstra/windows-forensics/internal/fs"
	"github.com/ppolstra/windows-forensics/internal/ntfs"
)

func DefineMftCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mft",
		Short:        "Decode NTFS MFT records and their attributes",
		SilenceUsage: true,
		RunE:         RunMft,
	}
	cmd.Flags().StringP("file", "f", "", "image file")
	cmd.Flags().Uint64P("offset", "o", 0, "offset of the volume in sectors")
	cmd.Flags().Uint64P("entry", "e", 0, "MFT entry number")
	cmd.Flags().StringP("mft", "m", "", "pre-extracted MFT file (for fragmented MFTs)")
	cmd.Flags().Bool("deleted", false, "sweep for deleted entries instead of decoding one record")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// newExtractor opens the image, parses the NTFS VBR at the volume offset,
// and wires the optional sidecar MFT.
func newExtractor(imagePath, mftPath string, offsetSectors uint64) (*ntfs.Extractor, func(), error) {
	f, err := fs.Open(fs.NormalizeVolumePath(imagePath))
	if err != nil {
		return nil, nil, err
	}
	closers := func() { f.Close() }

	base := int64(offsetSectors) * ntfs.SectorSize
	sector := make([]byte, ntfs.SectorSize)
	if _, err := f.ReadAt(sector, base); err != nil {
		closers()
		return nil, nil, err
	}

	vbr, err := ntfs.ParseVBR(sector)
	if err != nil {
		closers()
		return nil, nil, err
	}

	e := &ntfs.Extractor{Image: f, VBR: vbr, Base: base}

	if mftPath != "" {
		mf, err := os.Open(mftPath)
		if err != nil {
			closers()
			return nil, nil, err
		}
		e.MFT = mf
		inner := closers
		closers = func() { mf.Close(); inner() }
	}
	return e, closers, nil
}

func RunMft(cmd *cobra.Command, args []string) error {
	imagePath, _ := cmd.Flags().GetString("file")
	mftPath, _ := cmd.Flags().GetString("mft")
	offset, _ := cmd.Flags().GetUint64("offset")
	entry, _ := cmd.Flags().GetUint64("entry")
	deleted, _ := cmd.Flags().GetBool("deleted")

	if deleted {
		return runMftDeleted(imagePath, mftPath, offset)
	}

	e, cleanup, err := newExtractor(imagePath, mftPath, offset)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Println(e.VBR)

	rec, err := e.Record(entry)
	if err != nil {
		return err
	}
	fmt.Println(rec)

	for _, a := range rec.Attributes {
		fmt.Println(a)
		switch a.Type {
		case ntfs.AttrStandardInformation:
			if si, err := ntfs.ParseStandardInfo(a); err == nil {
				fmt.Printf("  created %s modified %s changed %s accessed %s flags %04X\n",
					formatTimestamp(si.CreateTime()), formatTimestamp(si.ModifyTime()),
					formatTimestamp(si.RecordChangeTime()), formatTimestamp(si.AccessTime()),
					si.Flags)
			}
		case ntfs.AttrFileName:
			if fn, err := ntfs.ParseFileName(a); err == nil {
				fmt.Printf("  name %q parent %d/%d flags %08X\n",
					fn.Name, fn.ParentMFT, fn.ParentSequence, fn.Flags)
			}
		case ntfs.AttrAttributeList:
			if items, err := ntfs.ParseAttributeList(a); err == nil {
				for _, item := range items {
					fmt.Printf("  item %s stored in MFT %d/%d from VCN %d\n",
						item.Type, item.MFT(), item.Sequence(), item.StartVCN)
				}
			}
		}
	}
	return nil
}

// runMftDeleted sweeps MFT records for deleted files: either a linearized
// MFT sidecar or the in-image MFT read sequentially from its first cluster.
func runMftDeleted(imagePath, mftPath string, offset uint64) error {
	if mftPath != "" {
		mf, err := os.Open(mftPath)
		if err != nil {
			return err
		}
		defer mf.Close()

		found, err := ntfs.ScanDeleted(mf, ntfs.DefaultRecordSize)
		if err != nil {
			return err
		}
		printDeleted(found)
		return nil
	}

	e, cleanup, err := newExtractor(imagePath, "", offset)
	if err != nil {
		return err
	}
	defer cleanup()

	found, err := e.ScanDeleted()
	if err != nil {
		return err
	}
	printDeleted(found)
	return nil
}

func printDeleted(found []ntfs.DeletedEntry) {
	for _, d := range found {
		kind := "file"
		if d.IsDirectory {
			kind = "directory"
		}
		fmt.Printf("potential deleted %s %q at MFT %d\n", kind, d.Name, d.MFT)
	}
	if len(found) == 0 {
		fmt.Println("no deleted entries found")
	}
}
