//go:build windows
// +build windows

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
package fs

import (
	"fmt"
	"os"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsDiskFile reads a raw volume (\\.\C:) through sector-aligned
// overlapped reads, which the kernel requires for direct volume handles.
type windowsDiskFile struct {
	handle windows.Handle
	offset int64
}

type diskFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	sys     any
}

func (fi *diskFileInfo) Name() string       { return fi.name }
func (fi *diskFileInfo) Size() int64        { return fi.size }
func (fi *diskFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *diskFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *diskFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *diskFileInfo) Sys() interface{}   { return fi.sys }

// Open opens a regular file or a raw volume for reading.
func Open(path string) (File, error) {
	if f, err := os.Open(path); err == nil {
		if info, serr := f.Stat(); serr == nil && info.Mode().IsRegular() {
			return f, nil
		}
		f.Close()
	}

	handle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	return &windowsDiskFile{handle: handle}, nil
}

func (d *windowsDiskFile) Read(p []byte) (int, error) {
	n, err := d.ReadAt(p, d.offset)
	d.offset += int64(n)
	return n, err
}

func (d *windowsDiskFile) ReadAt(p []byte, off int64) (int, error) {
	const sectorSize = 512

	alignedOffset := off / sectorSize * sectorSize
	alignmentDiff := int(off - alignedOffset)
	alignedSize := ((len(p) + alignmentDiff + sectorSize - 1) / sectorSize) * sectorSize

	buf := make([]byte, alignedSize)

	var bytesRead uint32
	ov := new(windows.Overlapped)
	ov.Offset = uint32(alignedOffset)
	ov.OffsetHigh = uint32(alignedOffset >> 32)

	err := windows.ReadFile(d.handle, buf, &bytesRead, ov)
	if err != nil {
		if err == syscall.ERROR_IO_PENDING {
			err = windows.GetOverlappedResult(d.handle, ov, &bytesRead, true)
		}
		if err != nil {
			return 0, fmt.Errorf("aligned read failed: %w", err)
		}
	}

	n := copy(p, buf[alignmentDiff:])
	return n, nil
}

type diskGeometry struct {
	Cylinders         int64
	MediaType         uint32
	TracksPerCylinder uint32
	SectorsPerTrack   uint32
	BytesPerSector    uint32
}

const ioctlDiskGetDriveGeometry = 0x70000

func (d *windowsDiskFile) Stat() (os.FileInfo, error) {
	var geometry diskGeometry
	var bytesReturned uint32

	err := windows.DeviceIoControl(
		d.handle,
		ioctlDiskGetDriveGeometry,
		nil,
		0,
		(*byte)(unsafe.Pointer(&geometry)),
		uint32(unsafe.Sizeof(geometry)),
		&bytesReturned,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("DeviceIoControl(IOCTL_DISK_GET_DRIVE_GEOMETRY) failed: %w", err)
	}

	size := geometry.Cylinders * int64(geometry.TracksPerCylinder) *
		int64(geometry.SectorsPerTrack) * int64(geometry.BytesPerSector)

	return &diskFileInfo{size: size, sys: geometry}, nil
}

func (d *windowsDiskFile) Close() error {
	return windows.CloseHandle(d.handle)
}
