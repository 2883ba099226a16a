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

// Package fserr defines the error kinds shared by the on-disk parsers.
// Parsers wrap one of these sentinels with fmt.Errorf("%w: ...") so callers
// can classify failures with errors.Is without depending on message text.
package fserr

import "errors"

var (
	// ErrIO marks short reads and seeks past the end of the image.
	ErrIO = errors.New("i/o error")

	// ErrInvalidSignature marks a structure whose magic bytes do not match
	// (MBR/GPT/VBR 0x55AA, "EFI PART", "FILE", "INDX").
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnsupported marks layouts this suite deliberately does not handle,
	// such as compressed or encrypted NTFS attributes.
	ErrUnsupported = errors.New("unsupported")

	// ErrCorrupt marks self-inconsistent structures: fixup mismatches, bad
	// data runs, attribute lengths that overrun their record.
	ErrCorrupt = errors.New("corrupt structure")

	// ErrNotApplicable marks a request that does not fit the value at hand,
	// e.g. asking a non-resident attribute for its resident payload.
	ErrNotApplicable = errors.New("not applicable")

	// ErrFragmentedMFT is returned when a record fetched by offset carries a
	// record number other than the one requested.
	ErrFragmentedMFT = errors.New("fragmented mft")
)
