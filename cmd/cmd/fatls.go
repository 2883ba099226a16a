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
	"time"

	"github.com/spf13/cobra"

	"github.com/ppolstra/windows-forensics/internal/fat"
	"github.com/ppolstra/windows-forensics/internal/fs"
)

func DefineFatlsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "fatls <image>",
		Short:        "List the entries of a FAT directory",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunFatls,
	}
	cmd.Flags().Uint64P("offset", "o", 0, "offset of the volume in sectors")
	cmd.Flags().Uint32P("cluster", "c", 0, "start cluster of the directory (0 = root)")
	return cmd
}

// openFATVolume loads the VBR and primary FAT of the volume at the given
// sector offset.
func openFATVolume(f fs.File, offsetSectors uint64) (*fat.VBR, *fat.Table, int64, error) {
	base := int64(offsetSectors) * fat.SectorSize

	sector := make([]byte, fat.SectorSize)
	if _, err := f.ReadAt(sector, base); err != nil {
		return nil, nil, 0, err
	}

	vbr, err := fat.ParseVBR(sector)
	if err != nil {
		return nil, nil, 0, err
	}
	table, err := vbr.ReadFAT(f, base)
	if err != nil {
		return nil, nil, 0, err
	}
	return vbr, table, base, nil
}

func RunFatls(cmd *cobra.Command, args []string) error {
	f, err := fs.Open(fs.NormalizeVolumePath(args[0]))
	if err != nil {
		return err
	}
	defer f.Close()

	offset, _ := cmd.Flags().GetUint64("offset")
	cluster, _ := cmd.Flags().GetUint32("cluster")

	vbr, table, base, err := openFATVolume(f, offset)
	if err != nil {
		return err
	}

	fmt.Printf("%s volume %q, %d sectors\n\n", vbr.Variant(), vbr.VolumeLabel, vbr.TotalSectors())

	buf, err := fat.ReadDirectoryBuffer(f, base, vbr, table, cluster)
	if err != nil {
		return err
	}

	for _, fe := range fat.ParseDirectory(buf).Entries {
		printFileEntry(&fe)
	}
	return nil
}

func printFileEntry(fe *fat.FileEntry) {
	marker := " "
	switch {
	case fe.Deleted():
		marker = "D"
	case fe.IsDir():
		marker = "d"
	case fe.IsVolumeLabel():
		marker = "v"
	}

	name := fe.Name()
	if long := fe.LongName(); long != "" && fe.HasShortName() {
		name = fmt.Sprintf("%s (%s)", long, fe.ShortName())
	}

	fmt.Printf("%s %10d  start %-8d  %s  %s\n",
		marker, fe.FileSize(), fe.StartCluster(),
		formatTimestamp(fe.ModifyTime()), name)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "                   "
	}
	return t.Format("2006-01-02 15:04:05")
}
