// Package backup copies original APKs aside before the pipeline touches
// them.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/purify/pkg/purify/logging"
	"github.com/jamesainslie/purify/pkg/purify/types"
)

// Create copies the APK into dir as <stem>_backup<ext>, appending
// _1, _2, ... when earlier backups already hold the name. An empty dir
// places the backup next to the original. The original is never
// overwritten or moved.
func Create(apkPath, dir string) (types.Artifact, error) {
	logger := logging.Get("backup")

	if dir == "" {
		dir = filepath.Dir(apkPath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Artifact{}, fmt.Errorf("creating backup dir: %w", err)
	}

	ext := filepath.Ext(apkPath)
	stem := strings.TrimSuffix(filepath.Base(apkPath), ext)

	target := filepath.Join(dir, stem+"_backup"+ext)
	for counter := 1; exists(target); counter++ {
		target = filepath.Join(dir, fmt.Sprintf("%s_backup_%d%s", stem, counter, ext))
	}

	size, err := copyFile(apkPath, target)
	if err != nil {
		return types.Artifact{}, err
	}

	logger.Info("backup created", "original", apkPath, "backup", target)
	return types.Artifact{Path: target, Size: size}, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", dst, err)
	}

	size, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return 0, fmt.Errorf("copying to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", dst, err)
	}

	return size, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
