//go:build !unix

package decompile

import "errors"

var errStatfsUnsupported = errors.New("statfs unsupported on this platform")

// DiskFree is unsupported on this platform.
func DiskFree(path string) (uint64, error) {
	return 0, errStatfsUnsupported
}

// EnsureDiskSpace is a no-op on platforms without statfs.
func EnsureDiskSpace(path string, need uint64) error {
	return nil
}
