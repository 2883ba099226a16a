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

// Package sniff locates file content in raw disk space by checking
// fixed-size sector windows against known file-type signatures. It stands
// in for a libmagic-style matcher: each finder answers only "does this
// window start like type X".
package sniff

import (
	"bytes"
	"fmt"
	"io"
)

const SectorSize = 512

// Match is one sniffer hit: the byte offset and sector where a window
// matched, and the finder's type label.
type Match struct {
	Offset uint64
	Sector uint64
	Type   string
}

// Finder decides whether a buffer starts like one file type.
type Finder interface {
	Type() string
	Matches(buffer []byte) bool
}

// signatureFinder matches any of a set of leading byte signatures.
type signatureFinder struct {
	name       string
	signatures [][]byte
}

func (f *signatureFinder) Type() string { return f.name }

func (f *signatureFinder) Matches(buffer []byte) bool {
	for _, sig := range f.signatures {
		if len(buffer) >= len(sig) && bytes.Equal(buffer[:len(sig)], sig) {
			return true
		}
	}
	return false
}

// compositeFinder matches when any of its members does.
type compositeFinder struct {
	name    string
	members []Finder
}

func (f *compositeFinder) Type() string { return f.name }

func (f *compositeFinder) Matches(buffer []byte) bool {
	for _, m := range f.members {
		if m.Matches(buffer) {
			return true
		}
	}
	return false
}

// cfbSignature is the Compound File Binary header shared by legacy Office
// documents; doc/xls/ppt cannot be told apart from the first sector alone.
var cfbSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

func jpegFinder() Finder {
	return &signatureFinder{"JPEG", [][]byte{{0xFF, 0xD8, 0xFF}}}
}

func pngFinder() Finder {
	return &signatureFinder{"PNG", [][]byte{{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}}}
}

func gifFinder() Finder {
	return &signatureFinder{"GIF", [][]byte{[]byte("GIF87a"), []byte("GIF89a")}}
}

func bmpFinder() Finder {
	return &signatureFinder{"Bitmap", [][]byte{[]byte("BM")}}
}

func pdfFinder() Finder {
	return &signatureFinder{"PDF", [][]byte{[]byte("%PDF")}}
}

func exeFinder() Finder {
	return &signatureFinder{"Executable", [][]byte{[]byte("MZ")}}
}

func zipFinder() Finder {
	return &signatureFinder{"Zip", [][]byte{
		{'P', 'K', 0x03, 0x04},
		{'P', 'K', 0x05, 0x06},
		{'P', 'K', 0x07, 0x08},
	}}
}

func officeFinder(name string) Finder {
	return &signatureFinder{name, [][]byte{cfbSignature}}
}

// NewFinder builds the finder for a search keyword. The composite keywords
// mirror the search lists investigators actually type: "image" covers all
// picture formats, "ofc" any legacy Office document.
func NewFinder(kind string) (Finder, error) {
	switch kind {
	case "jpeg", "jpg":
		return jpegFinder(), nil
	case "png":
		return pngFinder(), nil
	case "gif":
		return gifFinder(), nil
	case "bmp":
		return bmpFinder(), nil
	case "pdf":
		return pdfFinder(), nil
	case "exe":
		return exeFinder(), nil
	case "zip":
		return zipFinder(), nil
	case "doc", "word":
		return officeFinder("Word"), nil
	case "xls", "excel":
		return officeFinder("Excel"), nil
	case "ppt", "powerpoint":
		return officeFinder("Powerpoint"), nil
	case "ofc", "office":
		return officeFinder("Office"), nil
	case "img", "image":
		return &compositeFinder{"Image", []Finder{
			jpegFinder(), pngFinder(), gifFinder(), bmpFinder(),
		}}, nil
	default:
		return nil, fmt.Errorf("unknown search type %q", kind)
	}
}

// NewFinders resolves a comma-separated-style list of keywords.
func NewFinders(kinds []string) ([]Finder, error) {
	finders := make([]Finder, 0, len(kinds))
	for _, k := range kinds {
		f, err := NewFinder(k)
		if err != nil {
			return nil, err
		}
		finders = append(finders, f)
	}
	return finders, nil
}

// Scanner walks an image in fixed windows of WindowSectors sectors,
// delegating each window to its finders. The first finder to match claims
// the window, mirroring how an investigator triages rather than exhausts.
type Scanner struct {
	Finders       []Finder
	WindowSectors int
}

// Scan reads windows starting at startSector and calls yield for every
// match until the reader runs out or yield returns false.
func (s *Scanner) Scan(r io.ReaderAt, startSector uint64, yield func(Match) bool) error {
	window := s.WindowSectors
	if window <= 0 {
		window = 1
	}

	buf := make([]byte, window*SectorSize)
	pos := int64(startSector) * SectorSize
	for {
		n, err := r.ReadAt(buf, pos)
		if n == 0 {
			if err == io.EOF || err == nil {
				return nil
			}
			return err
		}

		chunk := buf[:n]
		for _, f := range s.Finders {
			if f.Matches(chunk) {
				m := Match{
					Offset: uint64(pos),
					Sector: uint64(pos) / SectorSize,
					Type:   f.Type(),
				}
				if !yield(m) {
					return nil
				}
				break
			}
		}

		pos += int64(len(buf))
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
