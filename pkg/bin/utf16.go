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
package bin

import (
	"golang.org/x/text/encoding/unicode"
)

var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// UTF16String decodes UTF-16LE bytes into a Go string. Odd trailing bytes
// are dropped; invalid code units become the replacement rune.
func UTF16String(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	out, err := utf16Decoder.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// UTF16StringZ decodes a UTF-16LE buffer up to the first NUL code unit.
// GPT partition names and FAT long-filename fragments are stored this way.
func UTF16StringZ(b []byte) string {
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			return UTF16String(b[:i])
		}
	}
	return UTF16String(b)
}
