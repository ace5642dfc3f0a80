package filex

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestEnsureDir_CreatesNested(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, EnsureDir(dir))
	assert.True(t, Exists(dir))

	// idempotent
	require.NoError(t, EnsureDir(dir))
}

func TestCopyFile_ContentAndSize(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.kdbx")
	dst := filepath.Join(dir, "dst.kdbx")
	writeFile(t, src, "kdbx-bytes")

	n, err := CopyFile(src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(len("kdbx-bytes")), n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "kdbx-bytes", string(got))
}

func TestCopyFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := CopyFile(filepath.Join(dir, "absent"), filepath.Join(dir, "dst"))
	require.Error(t, err)
}

func TestSetFileModTime_SecondResolution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	writeFile(t, path, "x")

	want := time.Date(2024, 5, 17, 10, 30, 21, 999_000_000, time.UTC)
	require.NoError(t, SetFileModTime(path, want))

	got, err := FileModTime(path)
	require.NoError(t, err)
	assert.Equal(t, want.Truncate(time.Second).Unix(), got.Unix())
}

func TestListFilesModTimeDesc_OrdersNewestFirst(t *testing.T) {
	dir := t.TempDir()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i, name := range []string{"old", "mid", "new"} {
		path := filepath.Join(dir, name)
		writeFile(t, path, name)
		require.NoError(t, SetFileModTime(path, base.Add(time.Duration(i)*time.Minute)))
	}

	// subdirectories are ignored
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o770))

	files, err := ListFilesModTimeDesc(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(dir, "new"), files[0])
	assert.Equal(t, filepath.Join(dir, "old"), files[2])
}

func TestSyncAndRewind(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "f")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("payload")
	require.NoError(t, err)

	require.NoError(t, SyncAndRewind(f))

	buf := make([]byte, 7)
	_, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf))
}
