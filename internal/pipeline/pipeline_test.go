package pipeline

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okpass/mobilecore/internal/appstate"
	"github.com/okpass/mobilecore/internal/backup"
	"github.com/okpass/mobilecore/internal/callback"
	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/cryptox"
	"github.com/okpass/mobilecore/internal/filex"
	"github.com/okpass/mobilecore/internal/kdbx"
	"github.com/okpass/mobilecore/internal/logging"
	"github.com/okpass/mobilecore/internal/vault"
)

type fakeEnclave struct{}

func (fakeEnclave) key(tag string) []byte {
	return cryptox.DeriveKey([]byte(tag), []byte("pipeline-test-salt"))
}

func (f fakeEnclave) EncryptBytes(tag string, data []byte) ([]byte, error) {
	return cryptox.EncryptBytes(data, f.key(tag))
}

func (f fakeEnclave) DecryptBytes(tag string, data []byte) ([]byte, error) {
	return cryptox.DecryptBytes(data, f.key(tag))
}

type fakeKeyStore struct{ items map[string]string }

func (k *fakeKeyStore) Store(key, value string) error {
	if _, ok := k.items[key]; ok {
		return common.ErrDuplicateKeyStoreItem
	}
	k.items[key] = value
	return nil
}

func (k *fakeKeyStore) Get(key string) (string, error) {
	value, ok := k.items[key]
	if !ok {
		return "", common.ErrNotFound
	}
	return value, nil
}

func (k *fakeKeyStore) Delete(key string) error {
	delete(k.items, key)
	return nil
}

type fixture struct {
	pipeline *Pipeline
	state    *appstate.AppState
	codec    *kdbx.Service
	backups  *backup.Manager
	docsDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	appstate.ResetForTest()
	t.Cleanup(appstate.ResetForTest)

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	services := &callback.Services{
		Enclave:  fakeEnclave{},
		KeyStore: &fakeKeyStore{items: map[string]string{}},
	}

	home := t.TempDir()
	state, err := appstate.Init(callback.DeviceDirs{
		AppHome:  home,
		CacheDir: filepath.Join(home, "cache"),
		TempDir:  filepath.Join(home, "tmp"),
	}, services, logger)
	require.NoError(t, err)

	codec := kdbx.NewService()
	backups := backup.NewManager(state.BackupHistoryRoot(), logger)
	creds := vault.New(services.Enclave, services.KeyStore, state.KeyFilesRoot, state.Prefs(), logger)

	return &fixture{
		pipeline: New(state, codec, backups, creds, logger),
		state:    state,
		codec:    codec,
		backups:  backups,
		docsDir:  t.TempDir(),
	}
}

// createDb creates a database on disk and returns its db_key and path.
func (f *fixture) createDb(t *testing.T, name string) (string, string) {
	t.Helper()
	path := filepath.Join(f.docsDir, name)
	dbKey := "file://" + path

	_, err := f.pipeline.CreateKdbxAtPath(kdbx.NewDatabaseArgs{
		DbKey:        dbKey,
		FileName:     name,
		DatabaseName: "Test",
		Password:     "secret-pw",
	})
	require.NoError(t, err)
	return dbKey, path
}

func TestLocalPathFromDbKey(t *testing.T) {
	assert.Equal(t, "/docs/A.kdbx", LocalPathFromDbKey("file:///docs/A.kdbx"))
	assert.Equal(t, "/docs/A.kdbx", LocalPathFromDbKey("/docs/A.kdbx"))
}

func TestCreateKdbxAtPath_WritesPrimaryAndBackup(t *testing.T) {
	f := newFixture(t)
	dbKey, path := f.createDb(t, "A.kdbx")

	assert.FileExists(t, path)

	latest, ok := f.backups.LatestBackup(dbKey)
	require.True(t, ok)

	// primary was copied from the backup
	primarySum, err := cryptox.FileSha256Hex(path)
	require.NoError(t, err)
	backupSum, err := cryptox.FileSha256Hex(latest)
	require.NoError(t, err)
	assert.Equal(t, backupSum, primarySum)

	// recent list head is the new database
	pref := f.state.Prefs().Get()
	require.NotEmpty(t, pref.RecentDbsInfo)
	assert.Equal(t, "A.kdbx", pref.RecentDbsInfo[0].FileName)
}

func TestReadKdbx_CreatesBackupAndRecent(t *testing.T) {
	f := newFixture(t)
	dbKey, _ := f.createDb(t, "A.kdbx")

	// forget everything in memory and the history, then open fresh
	f.pipeline.CloseKdbx(dbKey)
	require.NoError(t, f.backups.DeleteAllForDb(dbKey))

	loaded, err := f.pipeline.ReadKdbx(kdbx.OpenArgs{DbKey: dbKey, Password: "secret-pw"})
	require.NoError(t, err)
	assert.Equal(t, "Test", loaded.DatabaseName)

	_, ok := f.backups.LatestBackup(dbKey)
	assert.True(t, ok, "read must create a backup when none matches")

	// reading again with an identical file adds no second backup
	f.pipeline.CloseKdbx(dbKey)
	_, err = f.pipeline.ReadKdbx(kdbx.OpenArgs{DbKey: dbKey, Password: "secret-pw"})
	require.NoError(t, err)

	files, err := filex.ListFilesModTimeDesc(filepath.Join(f.state.BackupHistoryRoot(), cryptox.DbKeyHash(dbKey)))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestReadKdbx_WrongPassword(t *testing.T) {
	f := newFixture(t)
	dbKey, _ := f.createDb(t, "A.kdbx")
	f.pipeline.CloseKdbx(dbKey)

	_, err := f.pipeline.ReadKdbx(kdbx.OpenArgs{DbKey: dbKey, Password: "nope"})
	require.Error(t, err)
}

// A clean save round-trip.
func TestSaveKdbx_RoundTrip(t *testing.T) {
	f := newFixture(t)
	dbKey, path := f.createDb(t, "A.kdbx")

	_, err := f.pipeline.SaveKdbx(dbKey, false)
	require.NoError(t, err)

	// a backup exists and its hash equals the cached checksum
	latest, ok := f.backups.LatestBackup(dbKey)
	require.True(t, ok)
	backupSum, err := cryptox.FileSha256Hex(latest)
	require.NoError(t, err)
	cached, ok := f.codec.Checksum(dbKey)
	require.True(t, ok)
	assert.Equal(t, backupSum, cached)

	// backup mtime <= primary mtime
	backupTime, err := filex.FileModTime(latest)
	require.NoError(t, err)
	primaryTime, err := filex.FileModTime(path)
	require.NoError(t, err)
	assert.False(t, backupTime.After(primaryTime))

	assert.Equal(t, 0, f.state.LastErrorCount())
}

// An outside change to the primary is detected and captured.
func TestSaveKdbx_ContentChangeDetected(t *testing.T) {
	f := newFixture(t)
	dbKey, path := f.createDb(t, "A.kdbx")

	// truncate the primary by one byte outside the app
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0o600))

	_, err = f.pipeline.SaveKdbx(dbKey, false)
	require.ErrorIs(t, err, common.ErrDbFileContentChangeDetected)

	backupPath, ok := f.state.LastBackupOnError(dbKey)
	require.True(t, ok, "failed save must record its backup")
	assert.FileExists(t, backupPath)

	// the primary was not overwritten
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data[:len(data)-1], onDisk)
}

// The user's explicit overwrite bypasses the conflict check.
func TestSaveKdbx_OverwriteBypassesCheck(t *testing.T) {
	f := newFixture(t)
	dbKey, path := f.createDb(t, "A.kdbx")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0o600))

	_, err = f.pipeline.SaveKdbx(dbKey, true)
	require.NoError(t, err)
	assert.Equal(t, 0, f.state.LastErrorCount())
}

// Save-as recovery after a detected conflict.
func TestSaveAsOnError_Recovery(t *testing.T) {
	f := newFixture(t)
	dbKey, path := f.createDb(t, "A.kdbx")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0o600))

	_, err = f.pipeline.SaveKdbx(dbKey, false)
	require.ErrorIs(t, err, common.ErrDbFileContentChangeDetected)

	failedBackup, ok := f.state.LastBackupOnError(dbKey)
	require.True(t, ok)
	failedSum, err := cryptox.FileSha256Hex(failedBackup)
	require.NoError(t, err)

	newPath := filepath.Join(f.docsDir, "A2.kdbx")
	newDbKey := "file://" + newPath

	loaded, err := f.pipeline.SaveAsOnError(dbKey, newDbKey, "A2.kdbx")
	require.NoError(t, err)
	assert.Equal(t, newDbKey, loaded.DbKey)
	assert.Equal(t, "A2.kdbx", loaded.FileName)

	// the new primary equals the failed-save snapshot byte for byte
	newSum, err := cryptox.FileSha256Hex(newPath)
	require.NoError(t, err)
	assert.Equal(t, failedSum, newSum)

	// a backup exists under the new key's history
	latest, ok := f.backups.LatestBackup(newDbKey)
	require.True(t, ok)
	latestSum, err := cryptox.FileSha256Hex(latest)
	require.NoError(t, err)
	assert.Equal(t, failedSum, latestSum)

	// no last-error entry remains for either key
	assert.Equal(t, 0, f.state.LastErrorCount())

	// the old key's state is gone, the recent head is the new database
	pref := f.state.Prefs().Get()
	require.NotEmpty(t, pref.RecentDbsInfo)
	assert.Equal(t, "A2.kdbx", pref.RecentDbsInfo[0].FileName)
	_, found := pref.FindRecent(dbKey)
	assert.False(t, found)
	_, hasOld := f.backups.LatestBackup(dbKey)
	assert.False(t, hasOld)

	// the new key saves cleanly from here on
	_, err = f.pipeline.SaveKdbx(newDbKey, false)
	require.NoError(t, err)
}

func TestSaveAsOnError_NoFailedSave(t *testing.T) {
	f := newFixture(t)
	dbKey, _ := f.createDb(t, "A.kdbx")

	_, err := f.pipeline.SaveAsOnError(dbKey, "file:///elsewhere/B.kdbx", "B.kdbx")
	assert.ErrorIs(t, err, common.ErrNoBackupOnError)
}

func TestVerifyDbFileChecksum(t *testing.T) {
	f := newFixture(t)
	dbKey, path := f.createDb(t, "A.kdbx")

	require.NoError(t, f.pipeline.VerifyDbFileChecksum(dbKey))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, 0x00), 0o600))

	err = f.pipeline.VerifyDbFileChecksum(dbKey)
	assert.ErrorIs(t, err, common.ErrDbFileContentChangeDetected)
}

func TestBackupRetention_PruneKeepsConfiguredCount(t *testing.T) {
	f := newFixture(t)
	dbKey, _ := f.createDb(t, "A.kdbx")

	// many saves; retention (default 3) bounds the history regardless of
	// whether same-second saves reuse a snapshot name
	for i := 0; i < 6; i++ {
		_, err := f.pipeline.SaveKdbx(dbKey, false)
		require.NoError(t, err)
	}

	dir := filepath.Join(f.state.BackupHistoryRoot(), cryptox.DbKeyHash(dbKey))
	files, err := filex.ListFilesModTimeDesc(dir)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(files), common.DefaultBackupHistoryCount)
}
