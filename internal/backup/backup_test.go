package backup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okpass/mobilecore/internal/cryptox"
	"github.com/okpass/mobilecore/internal/filex"
	"github.com/okpass/mobilecore/internal/logging"
)

const testDbKey = "file:///docs/Test.kdbx"

func newManager(t *testing.T) *Manager {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return NewManager(t.TempDir(), logger)
}

// addSnapshot writes one snapshot with the given content and mtime.
func addSnapshot(t *testing.T, m *Manager, content string, modTime time.Time) string {
	t.Helper()
	path, err := m.GenerateBackupPath(testDbKey, "Test.kdbx")
	require.NoError(t, err)
	// names collide within one second; disambiguate for the test
	path = fmt.Sprintf("%s.%d", path, time.Now().UnixNano())
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, filex.SetFileModTime(path, modTime))
	return path
}

func TestGenerateBackupPath_Shape(t *testing.T) {
	m := newManager(t)

	path, err := m.GenerateBackupPath(testDbKey, "Test.kdbx")
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, cryptox.DbKeyHash(testDbKey), filepath.Base(dir))
	assert.DirExists(t, dir)
	assert.Regexp(t, regexp.MustCompile(`^Test_\d+\.kdbx$`), filepath.Base(path))
}

func TestLatestBackup_PicksNewestByModTime(t *testing.T) {
	m := newManager(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	addSnapshot(t, m, "old", base)
	newest := addSnapshot(t, m, "new", base.Add(10*time.Minute))

	got, ok := m.LatestBackup(testDbKey)
	require.True(t, ok)
	assert.Equal(t, newest, got)
}

func TestLatestBackup_NoHistory(t *testing.T) {
	m := newManager(t)
	_, ok := m.LatestBackup(testDbKey)
	assert.False(t, ok)
}

func TestMatchesChecksum(t *testing.T) {
	m := newManager(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	addSnapshot(t, m, "content-a", base)
	addSnapshot(t, m, "content-b", base.Add(time.Minute))

	assert.True(t, m.MatchesChecksum(testDbKey, cryptox.Sha256Hex([]byte("content-b"))))
	assert.False(t, m.MatchesChecksum(testDbKey, cryptox.Sha256Hex([]byte("content-a"))))
	assert.False(t, m.MatchesChecksum("file:///other.kdbx", cryptox.Sha256Hex([]byte("content-b"))))
}

func TestPrune_KeepsNewestN(t *testing.T) {
	m := newManager(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, addSnapshot(t, m, fmt.Sprintf("c%d", i), base.Add(time.Duration(i)*time.Minute)))
	}

	m.Prune(testDbKey, 3)

	files, err := filex.ListFilesModTimeDesc(m.dbDir(testDbKey))
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, paths[4], files[0])
	assert.Equal(t, paths[2], files[2])
}

func TestPrune_RemovesEmptyDirectory(t *testing.T) {
	m := newManager(t)
	dir := m.dbDir(testDbKey)
	require.NoError(t, os.MkdirAll(dir, 0o770))

	m.Prune(testDbKey, 3)
	assert.NoDirExists(t, dir)
}

func TestDeleteAllForDb(t *testing.T) {
	m := newManager(t)
	addSnapshot(t, m, "x", time.Now())

	require.NoError(t, m.DeleteAllForDb(testDbKey))
	assert.NoDirExists(t, m.dbDir(testDbKey))

	// removing an absent history is fine
	require.NoError(t, m.DeleteAllForDb(testDbKey))
}

func TestSetBackupModTimeFromSource(t *testing.T) {
	m := newManager(t)
	source := time.Date(2023, 11, 2, 8, 0, 31, 0, time.UTC)
	path := addSnapshot(t, m, "x", time.Now())

	m.SetBackupModTimeFromSource(path, source)

	sec, ok := m.BackupModTime(testDbKey)
	require.True(t, ok)
	assert.Equal(t, source.Unix(), sec)
}
