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

	"github.com/spf13/cobra"

	"github.com/ppolstra/windows-forensics/internal/fs"
	"github.com/ppolstra/windows-forensics/internal/sniff"
)

func DefineCarveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "carve",
		Short: "Search raw sectors for file content by signature",
		Long: `The 'carve' command checks fixed-size sector windows of an image
against file-type signatures (jpeg, png, gif, bmp, pdf, exe, zip, doc, xls,
ppt, ofc, image) and reports the offset and sector of each hit.`,
		SilenceUsage: true,
		RunE:         RunCarve,
	}
	cmd.Flags().StringP("image", "i", "", "image file (raw format) to search")
	cmd.Flags().StringSliceP("search", "s", nil, "file types to search for")
	cmd.Flags().IntP("cluster", "c", 1, "sectors to search at a time")
	cmd.Flags().Uint64P("offset", "o", 0, "offset to start of search in sectors")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("search")
	return cmd
}

func RunCarve(cmd *cobra.Command, args []string) error {
	imagePath, _ := cmd.Flags().GetString("image")
	kinds, _ := cmd.Flags().GetStringSlice("search")
	window, _ := cmd.Flags().GetInt("cluster")
	offset, _ := cmd.Flags().GetUint64("offset")

	finders, err := sniff.NewFinders(kinds)
	if err != nil {
		return err
	}

	f, err := fs.Open(fs.NormalizeVolumePath(imagePath))
	if err != nil {
		return err
	}
	defer f.Close()

	sc := &sniff.Scanner{Finders: finders, WindowSectors: window}
	return sc.Scan(f, offset, func(m sniff.Match) bool {
		fmt.Printf("Matching %s found at offset 0x%X, sector %d\n", m.Type, m.Offset, m.Sector)
		return true
	})
}
