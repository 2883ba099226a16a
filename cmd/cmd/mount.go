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
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/ppolstra/windows-forensics/internal/disk"
	"github.com/ppolstra/windows-forensics/internal/fs"
)

func DefineMountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount <image>",
		Short: "Loop-mount every mountable partition of an image read-only",
		Long: `The 'mount' command enumerates the partitions of a disk image, skips
swap areas, extended containers and unsupported GPT types, and hands each
remaining partition to the host's mount(8) as a read-only loop mount at
/media/part<N>.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunMount,
	}
	cmd.Flags().Bool("dry-run", false, "print the mount commands without executing them")
	return cmd
}

func RunMount(cmd *cobra.Command, args []string) error {
	image := args[0]

	f, err := fs.Open(fs.NormalizeVolumePath(image))
	if err != nil {
		return err
	}
	defer f.Close()

	parts, err := disk.Scan(f)
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	log := getLogger(cmd)

	specs := disk.MountSpecs(image, parts)
	if len(specs) == 0 {
		log.Warn("no mountable partitions found")
		return nil
	}

	for _, spec := range specs {
		if dryRun {
			fmt.Printf("mount -o %s %s %s\n", spec.Options(), spec.Image, spec.Mountpoint)
			continue
		}

		if err := os.MkdirAll(spec.Mountpoint, 0o755); err != nil {
			return err
		}

		log.Infof("mounting %s at %s (offset %d)", spec.Image, spec.Mountpoint, spec.Offset)
		out, err := exec.Command("mount", "-o", spec.Options(), spec.Image, spec.Mountpoint).CombinedOutput()
		if err != nil {
			log.Errorf("mount of %s failed: %v: %s", spec.Mountpoint, err, out)
		}
	}
	return nil
}
