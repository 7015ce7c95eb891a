//go:build unix

package decompile

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// DiskFree returns the bytes available to the current user on the
// filesystem containing path.
func DiskFree(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// EnsureDiskSpace fails when the filesystem containing path has less than
// need bytes available. Decompiled trees run several times the APK size,
// so the pipeline checks before unpacking rather than dying mid-decode.
func EnsureDiskSpace(path string, need uint64) error {
	free, err := DiskFree(path)
	if err != nil {
		return err
	}
	if free < need {
		return fmt.Errorf("insufficient disk space in %s: %s free, %s required",
			path, humanize.IBytes(free), humanize.IBytes(need))
	}
	return nil
}
