//go:build linux
// +build linux

package fs

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// deviceSize asks the kernel for the byte length of a block device via the
// BLKGETSIZE64 ioctl.
func deviceSize(f File) (int64, bool) {
	osf, ok := f.(*os.File)
	if !ok {
		return 0, false
	}

	var size uint64
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		osf.Fd(),
		unix.BLKGETSIZE64,
		uintptr(unsafe.Pointer(&size)),
	)
	if errno != 0 {
		return 0, false
	}
	return int64(size), true
}
