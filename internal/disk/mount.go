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
package disk

import (
	"fmt"
	"strings"
)

// MountSpec is the tuple handed to the host's loopback mounter for one
// partition. The core never mounts anything itself.
type MountSpec struct {
	Image      string
	Mountpoint string
	Offset     uint64 // byte offset of the partition in the image
	SizeLimit  uint64 // byte length; 0 means unbounded
}

// Options renders the mount(8) option string for a read-only loop mount.
func (m *MountSpec) Options() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "loop,ro,noatime,offset=%d", m.Offset)
	if m.SizeLimit > 0 {
		fmt.Fprintf(&sb, ",sizelimit=%d", m.SizeLimit)
	}
	return sb.String()
}

// Mountable reports whether a partition should be offered to the host
// mounter. Swap areas, extended containers, the GPT protective entry, and
// GPT partitions with unsupported type GUIDs are skipped.
func Mountable(p *Partition) bool {
	if p.TotalSectors == 0 {
		return false
	}
	if p.Scheme == SchemeGPT {
		return GPTTypeSupported(p.TypeGUID)
	}
	if p.Type == PartitionTypeEmpty || p.Type.IsExtended() || p.Type.IsSwap() {
		return false
	}
	return p.Type != PartitionTypeGPTProtective
}

// MountSpecs builds one MountSpec per mountable partition, using the
// /media/part<N> mountpoint convention.
func MountSpecs(image string, parts []Partition) []MountSpec {
	var specs []MountSpec
	for i := range parts {
		p := &parts[i]
		if !Mountable(p) {
			continue
		}
		specs = append(specs, MountSpec{
			Image:      image,
			Mountpoint: fmt.Sprintf("/media/part%d", p.Index),
			Offset:     p.Offset(),
			SizeLimit:  p.Size(),
		})
	}
	return specs
}
