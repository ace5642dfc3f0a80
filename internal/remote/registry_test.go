package remote

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newRegistryFixture(t *testing.T) (*Registry, string, string) {
	t.Helper()
	root := t.TempDir()
	sftpRoot := filepath.Join(root, "sftp")
	tempDir := filepath.Join(root, "tmp")
	require.NoError(t, os.MkdirAll(tempDir, 0o700))

	configs := NewConfigStore(fakeEnclave{}, filepath.Join(root, "rs"), testLogger())
	registry := NewRegistry(configs, func() string { return sftpRoot }, func() string { return tempDir }, testLogger())
	return registry, sftpRoot, tempDir
}

func TestPersistKeyFile_CreatesConnectionDir(t *testing.T) {
	registry, sftpRoot, tempDir := newRegistryFixture(t)

	staged := filepath.Join(tempDir, "id_ed25519")
	require.NoError(t, os.WriteFile(staged, []byte("key material"), 0o600))

	id := uuid.New()
	dst, err := registry.persistKeyFile(id, staged)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(sftpRoot, id.String(), "id_ed25519"), dst)

	kept, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, []byte("key material"), kept)
}

func TestPersistKeyFile_MissingSource(t *testing.T) {
	registry, _, tempDir := newRegistryFixture(t)

	_, err := registry.persistKeyFile(uuid.New(), filepath.Join(tempDir, "no-such-key"))
	require.Error(t, err)
}
