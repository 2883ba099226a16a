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

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/ppolstra/windows-forensics/internal/fat"
	"github.com/ppolstra/windows-forensics/internal/fs"
)

func DefineUndeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undelete <image>",
		Short: "List and recover deleted files from a FAT directory",
		Long: `The 'undelete' command walks a FAT directory for deleted entries,
classifies each one's chance of recovery, and writes candidate files for
every entry whose clusters can still be located. FAT32 volumes zero the
start cluster's high word on deletion, so the search can escalate through
candidate high words.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunUndelete,
	}
	cmd.Flags().Uint64P("offset", "o", 0, "offset of the volume in sectors")
	cmd.Flags().Uint32P("cluster", "c", 0, "start cluster of the directory (0 = root)")
	cmd.Flags().StringP("dir", "d", ".", "output directory for recovered files")
	cmd.Flags().String("hiword", "exhaustive", "FAT32 high-word strategy: hint, next, or exhaustive")
	cmd.Flags().Bool("keep-zero-clusters", false, "do not reject chains containing all-zero clusters")
	cmd.Flags().Bool("keep-zero-slack", false, "do not reject chains whose RAM slack is all zero")
	return cmd
}

func parseHiWordStrategy(s string) (fat.HiWordStrategy, error) {
	switch s {
	case "hint":
		return fat.SingleHint, nil
	case "next":
		return fat.HintThenNext, nil
	case "exhaustive":
		return fat.Exhaustive, nil
	}
	return 0, fmt.Errorf("unknown high-word strategy %q", s)
}

func RunUndelete(cmd *cobra.Command, args []string) error {
	f, err := fs.Open(fs.NormalizeVolumePath(args[0]))
	if err != nil {
		return err
	}
	defer f.Close()

	offset, _ := cmd.Flags().GetUint64("offset")
	cluster, _ := cmd.Flags().GetUint32("cluster")
	outDir, _ := cmd.Flags().GetString("dir")
	hiword, _ := cmd.Flags().GetString("hiword")
	keepZeroClusters, _ := cmd.Flags().GetBool("keep-zero-clusters")
	keepZeroSlack, _ := cmd.Flags().GetBool("keep-zero-slack")

	strategy, err := parseHiWordStrategy(hiword)
	if err != nil {
		return err
	}

	cfg := fat.RecoverConfig{
		VetoZeroClusters: !keepZeroClusters,
		VetoZeroRAMSlack: !keepZeroSlack,
		HiWord:           strategy,
		OutputDir:        outDir,
	}

	vbr, table, base, err := openFATVolume(f, offset)
	if err != nil {
		return err
	}

	buf, err := fat.ReadDirectoryBuffer(f, base, vbr, table, cluster)
	if err != nil {
		return err
	}

	log := getLogger(cmd).WithPrefix("undelete")
	hiGuess := cluster / 65536

	var errs *multierror.Error
	recovered := 0
	for _, fe := range fat.ParseDirectory(buf).DeletedEntries() {
		fe := fe
		name := fe.Name()
		switch {
		case fat.DefinitelyNotRecoverable(&fe, table, vbr):
			log.Infof("<DEL> %s: not recoverable", name)
			continue
		case fat.DefinitelyRecoverable(&fe, table, vbr):
			log.Infof("<DEL> %s: recoverable (single cluster)", name)
		default:
			log.Infof("<DEL> %s: searching candidate chains", name)
		}

		n, err := fat.RecoverFile(f, base, &fe, table, vbr, hiGuess, cfg)
		if err != nil {
			log.Errorf("recovering %s: %v", name, err)
			errs = multierror.Append(errs, err)
			continue
		}
		log.Infof("%s: %d candidate file(s) written", name, n)
		recovered += n
	}

	fmt.Printf("recovered %d candidate file(s) into %s\n", recovered, outDir)
	return errs.ErrorOrNil()
}
