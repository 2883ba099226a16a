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

// Package timeutil converts the two on-disk timestamp encodings found on
// FAT and NTFS volumes into civil time.
package timeutil

import "time"

// Seconds between 1601-01-01 (the FILETIME epoch) and 1970-01-01.
const filetimeEpochDelta = 11644473600

// DOSTime unpacks a 2-byte FAT time value. Hours occupy the top 5 bits,
// minutes the middle 6, and the low 5 bits hold seconds divided by two.
func DOSTime(v uint16) (hour, minute, second int) {
	return int(v >> 11), int((v >> 5) & 0x3F), int(v&0x1F) * 2
}

// DOSDate unpacks a 2-byte FAT date value. The year is stored as an offset
// from 1980.
func DOSDate(v uint16) (year, month, day int) {
	return 1980 + int(v>>9), int((v >> 5) & 0x0F), int(v & 0x1F)
}

// DOSTimeValid reports whether the packed time decodes to a real wall-clock
// value (hours 0-23, minutes 0-59, seconds 0-58).
func DOSTimeValid(v uint16) bool {
	h, m, s := DOSTime(v)
	return h <= 23 && m <= 59 && s <= 58
}

// DOSDateTime combines a FAT date and time pair into a UTC time.Time. A zero
// date (no timestamp recorded) yields the zero time.
func DOSDateTime(date, tod uint16) time.Time {
	if date == 0 {
		return time.Time{}
	}
	y, mo, d := DOSDate(date)
	h, mi, s := DOSTime(tod)
	return time.Date(y, time.Month(mo), d, h, mi, s, 0, time.UTC)
}

// FiletimeToTime converts a Windows FILETIME (100-nanosecond ticks since
// 1601-01-01 UTC) to a time.Time. Values before the Unix epoch saturate to
// the epoch, matching how zeroed timestamps in damaged records are treated.
func FiletimeToTime(ft uint64) time.Time {
	secs := int64(ft/10000000) - filetimeEpochDelta
	if secs < 0 {
		return time.Unix(0, 0).UTC()
	}
	nanos := int64(ft%10000000) * 100
	return time.Unix(secs, nanos).UTC()
}

// FiletimeToUnix converts a FILETIME to Unix seconds, saturating at zero.
func FiletimeToUnix(ft uint64) int64 {
	secs := int64(ft/10000000) - filetimeEpochDelta
	if secs < 0 {
		return 0
	}
	return secs
}
