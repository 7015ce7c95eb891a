package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	srcDir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backups")

	apk := filepath.Join(srcDir, "game.apk")
	require.NoError(t, os.WriteFile(apk, []byte("apk content"), 0o644))

	artifact, err := Create(apk, backupDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(backupDir, "game_backup.apk"), artifact.Path)
	assert.Equal(t, int64(len("apk content")), artifact.Size)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "apk content", string(data))

	// Original untouched.
	assert.FileExists(t, apk)
}

func TestCreate_NumberedCollisions(t *testing.T) {
	srcDir := t.TempDir()
	backupDir := t.TempDir()

	apk := filepath.Join(srcDir, "game.apk")
	require.NoError(t, os.WriteFile(apk, []byte("v1"), 0o644))

	first, err := Create(apk, backupDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(backupDir, "game_backup.apk"), first.Path)

	require.NoError(t, os.WriteFile(apk, []byte("v2"), 0o644))
	second, err := Create(apk, backupDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(backupDir, "game_backup_1.apk"), second.Path)

	third, err := Create(apk, backupDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(backupDir, "game_backup_2.apk"), third.Path)

	// Earlier backups keep their content.
	data, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestCreate_MissingSource(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "ghost.apk"), t.TempDir())
	assert.Error(t, err)
}

func TestCreate_EmptyDirUsesSourceDir(t *testing.T) {
	dir := t.TempDir()
	apk := filepath.Join(dir, "game.apk")
	require.NoError(t, os.WriteFile(apk, []byte("v1"), 0o644))

	art, err := Create(apk, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "game_backup.apk"), art.Path)
}
