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
	"path/filepath"

	ioutil "github.com/ppolstra/windows-forensics/pkg/util/io"
)

// HiWordStrategy selects how hard the FAT32 recovery searches for the
// zeroed start-cluster high word.
type HiWordStrategy uint8

const (
	// SingleHint tries only the caller's suggested high word.
	SingleHint HiWordStrategy = iota
	// HintThenNext tries the suggestion, then the next high word.
	HintThenNext
	// Exhaustive escalates from the suggestion to every possible high word,
	// producing one candidate file per success.
	Exhaustive
)

// RecoverConfig carries the policy knobs of the deleted-file heuristics.
// The vetoes discard candidate chains that look like blank disk space
// rather than former file content.
type RecoverConfig struct {
	VetoZeroClusters bool
	VetoZeroRAMSlack bool
	HiWord           HiWordStrategy
	OutputDir        string
}

// DefaultRecoverConfig mirrors the behavior a first-pass triage wants:
// both vetoes armed and the escalating high-word search.
func DefaultRecoverConfig() RecoverConfig {
	return RecoverConfig{
		VetoZeroClusters: true,
		VetoZeroRAMSlack: true,
		HiWord:           Exhaustive,
		OutputDir:        ".",
	}
}

// DefinitelyNotRecoverable classifies a deleted entry whose content is
// certainly gone: the slot is not deleted at all, is a lone long-name
// fragment, records no start cluster on FAT12/16, or points at a cluster
// some live file owns.
func DefinitelyNotRecoverable(fe *FileEntry, table *Table, vbr *VBR) bool {
	if !fe.Deleted() || !fe.HasShortName() {
		return true
	}
	if fe.HasLongName() {
		return true
	}
	if !vbr.IsFAT32() && fe.StartCluster() == 0 {
		return true
	}
	return table.IsAllocated(fe.StartCluster())
}

// DefinitelyRecoverable classifies the easy case: the file fits in one
// cluster and the cluster the entry still points at is free, so the content
// sits exactly where the directory says it does.
func DefinitelyRecoverable(fe *FileEntry, table *Table, vbr *VBR) bool {
	if !fe.Deleted() || !fe.HasShortName() || fe.HasLongName() {
		return false
	}
	if fe.StartCluster() == 0 {
		return false
	}
	return fe.FileSize() <= vbr.ClusterSize() &&
		!table.IsAllocated(fe.StartCluster())
}

// RecoverFile attempts to rebuild one deleted file, writing each candidate
// into cfg.OutputDir under the short name. A chain found with the hinted high
// word, or the one after it, is written as "NAME"; chains found by the
// exhaustive FAT32 high-word sweep are numbered "NAME1", "NAME2"... in the
// order they are found. base is the byte offset of
// the volume in the image; hiGuess is the caller's best guess for the
// zeroed FAT32 start-cluster high word, typically the directory's own
// cluster divided by 65536. It returns the number of candidates written;
// hopeless entries yield zero without error.
func RecoverFile(img io.ReaderAt, base int64, fe *FileEntry, table *Table, vbr *VBR, hiGuess uint32, cfg RecoverConfig) (int, error) {
	if DefinitelyNotRecoverable(fe, table, vbr) {
		return 0, nil
	}

	name := fe.ShortName()

	if DefinitelyRecoverable(fe, table, vbr) {
		data, err := vbr.ReadCluster(img, base, fe.StartCluster())
		if err != nil {
			return 0, err
		}
		if int(fe.FileSize()) < len(data) {
			data = data[:fe.FileSize()]
		}
		if err := writeCandidate(cfg.OutputDir, name, data); err != nil {
			return 0, err
		}
		return 1, nil
	}

	if !vbr.IsFAT32() {
		chain := candidateChain(img, base, fe, table, vbr, 0, cfg)
		if len(chain) == 0 {
			return 0, nil
		}
		if err := writeChain(img, base, vbr, cfg.OutputDir, name, fe.FileSize(), chain); err != nil {
			return 0, err
		}
		return 1, nil
	}

	// FAT32: the deletion may have zeroed the start cluster's high word, so
	// search candidate high words per the configured strategy.
	tryHi := func(hi uint32, suffix int) (bool, error) {
		chain := candidateChain(img, base, fe, table, vbr, hi, cfg)
		if len(chain) == 0 {
			return false, nil
		}
		n := name
		if suffix > 0 {
			n = fmt.Sprintf("%s%d", name, suffix)
		}
		if err := writeChain(img, base, vbr, cfg.OutputDir, n, fe.FileSize(), chain); err != nil {
			return false, err
		}
		return true, nil
	}

	ok, err := tryHi(hiGuess, 0)
	if err != nil || ok {
		return boolToCount(ok), err
	}
	if cfg.HiWord == SingleHint {
		return 0, nil
	}

	ok, err = tryHi(hiGuess+1, 0)
	if err != nil || ok {
		return boolToCount(ok), err
	}
	if cfg.HiWord == HintThenNext {
		return 0, nil
	}

	// Desperation: cycle through every possible high word, keeping each
	// chain that survives the vetoes as its own numbered candidate.
	candidates := 0
	for hi := uint32(0); hi < vbr.TotalClusters()/65536; hi++ {
		ok, err := tryHi(hi, candidates+1)
		if err != nil {
			return candidates, err
		}
		if ok {
			candidates++
		}
	}
	return candidates, nil
}

// candidateChain searches forward from the (reconstructed) start cluster,
// collecting unallocated clusters until the file's cluster count is
// reached. Chains that hit the end of the data area, contain an all-zero
// cluster, or end in all-zero RAM slack are discarded per the config.
func candidateChain(img io.ReaderAt, base int64, fe *FileEntry, table *Table, vbr *VBR, hiword uint32, cfg RecoverConfig) []uint32 {
	size := fe.FileSize()
	clusterSize := vbr.ClusterSize()

	clusters := size / clusterSize
	if size%clusterSize != 0 {
		clusters++
	}
	if clusters == 0 {
		return nil
	}
	ramSlack := 512 - size%512
	fileSlackSectors := (clusterSize - size%clusterSize) / 512

	// The recorded start cluster may still carry a stale high word; mask it
	// off before applying the guess so the words never double up.
	start := fe.StartCluster()&0xFFFF + hiword*65536
	if start < 2 || table.IsAllocated(start) {
		return nil
	}

	chain := make([]uint32, 0, clusters)
	for c := start; c < table.TotalClusters(); c++ {
		if !table.IsAllocated(c) {
			chain = append(chain, c)
		}
		if uint32(len(chain)) >= clusters {
			break
		}
	}
	if uint32(len(chain)) < clusters {
		return nil
	}

	if cfg.VetoZeroClusters {
		for _, c := range chain {
			data, err := vbr.ReadCluster(img, base, c)
			if err != nil || allZero(data) {
				return nil
			}
		}
	}

	if cfg.VetoZeroRAMSlack && ramSlack < 512 {
		// The RAM slack trails the file's last byte inside the final sector
		// of the last cluster; locate it from the following cluster
		// boundary, backing off the whole-sector file slack first.
		end := base + vbr.OffsetFromCluster(chain[clusters-1]+1) -
			int64(fileSlackSectors)*512 - int64(ramSlack)
		slack := make([]byte, ramSlack)
		if _, err := img.ReadAt(slack, end); err != nil {
			return nil
		}
		if allZero(slack) {
			return nil
		}
	}
	return chain
}

func writeChain(img io.ReaderAt, base int64, vbr *VBR, dir, name string, size uint32, chain []uint32) error {
	return ioutil.WriteFileFunc(filepath.Join(dir, name), func(w io.Writer) error {
		remaining := size
		for _, c := range chain {
			data, err := vbr.ReadCluster(img, base, c)
			if err != nil {
				return err
			}
			if remaining < uint32(len(data)) {
				data = data[:remaining]
			}
			if _, err := w.Write(data); err != nil {
				return err
			}
			remaining -= uint32(len(data))
		}
		return nil
	})
}

func writeCandidate(dir, name string, data []byte) error {
	return ioutil.WriteFileFunc(filepath.Join(dir, name), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func boolToCount(ok bool) int {
	if ok {
		return 1
	}
	return 0
}
