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

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppolstra/windows-forensics/internal/disk"
	"github.com/ppolstra/windows-forensics/internal/fs"
)

func DefinePartitionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "partitions <image>",
		Short:        "List the partitions of a disk image (MBR, extended chains, GPT)",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunPartitions,
	}
}

func RunPartitions(cmd *cobra.Command, args []string) error {
	f, err := fs.Open(fs.NormalizeVolumePath(args[0]))
	if err != nil {
		return err
	}
	defer f.Close()

	if size, err := fs.Size(f); err == nil && size > 0 {
		fmt.Printf("image %s (%s)\n\n", args[0], humanize.IBytes(uint64(size)))
	}

	parts, err := disk.Scan(f)
	if err != nil {
		return err
	}

	for i := range parts {
		p := &parts[i]
		switch p.Scheme {
		case disk.SchemeGPT:
			fmt.Printf("%3d  GPT  %-36s  %-20s  first LBA %-10d  %s\n",
				p.Index, p.TypeGUID, p.Label, p.FirstLBA, humanize.IBytes(p.Size()))
		default:
			kind := "primary"
			if p.Logical {
				kind = "logical"
			}
			active := " "
			if p.Active {
				active = "*"
			}
			fmt.Printf("%3d%s MBR  0x%02X %-18s  %-7s  first LBA %-10d  %s\n",
				p.Index, active, uint8(p.Type), p.Type.Name(), kind,
				p.FirstLBA, humanize.IBytes(p.Size()))
		}
	}

	if len(parts) == 0 {
		fmt.Println("no partitions found")
	}
	return nil
}
