package appstate

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okpass/mobilecore/internal/callback"
	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/logging"
	"github.com/okpass/mobilecore/internal/preference"
)

type fakeFileInfo struct {
	names map[string]string
}

func (f *fakeFileInfo) UriToFileName(uri string) (string, error) {
	if name, ok := f.names[uri]; ok {
		return name, nil
	}
	return "", common.ErrNotFound
}

func (f *fakeFileInfo) UriToFileInfo(uri string) (*callback.FileInfo, error) {
	name, err := f.UriToFileName(uri)
	if err != nil {
		return nil, err
	}
	return &callback.FileInfo{FileName: name}, nil
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func initTestState(t *testing.T, dirs callback.DeviceDirs, services *callback.Services) *AppState {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	s, err := Init(dirs, services, testLogger())
	require.NoError(t, err)
	return s
}

func localDirs(t *testing.T) callback.DeviceDirs {
	t.Helper()
	home := t.TempDir()
	return callback.DeviceDirs{
		AppHome:  home,
		CacheDir: filepath.Join(home, "cache"),
		TempDir:  filepath.Join(home, "tmp"),
	}
}

func TestInit_CreatesSubRoots(t *testing.T) {
	dirs := localDirs(t)
	s := initTestState(t, dirs, &callback.Services{})

	assert.Equal(t, filepath.Join(dirs.AppHome, "backups", "history"), s.BackupHistoryRoot())
	assert.DirExists(t, s.BackupHistoryRoot())
	assert.DirExists(t, s.RemoteStorageRoot())
	assert.Equal(t, filepath.Join(s.RemoteStorageRoot(), "sftp"), s.SftpRoot())
	assert.DirExists(t, s.ExportDataRoot())
	assert.DirExists(t, s.KeyFilesRoot())
	assert.FileExists(t, filepath.Join(s.PreferenceHome(), preference.FileName))
}

func TestInit_SecondCallIsRecoverable(t *testing.T) {
	dirs := localDirs(t)
	first := initTestState(t, dirs, &callback.Services{})

	again, err := Init(localDirs(t), &callback.Services{}, testLogger())
	require.ErrorIs(t, err, common.ErrAlreadyInitialized)
	assert.Same(t, first, again)
}

func TestInit_AppGroupMigration(t *testing.T) {
	dirs := localDirs(t)
	dirs.AppGroupHome = t.TempDir()

	// simulate the pre-app-group install
	require.NoError(t, os.WriteFile(
		filepath.Join(dirs.AppHome, preference.FileName),
		[]byte(`{"version":"`+preference.CurrentVersion+`","recent_dbs_info":[],"db_session_timeout":555000,"clipboard_timeout":30000,"theme":"system","language":"en","grouped_categories":true,"backup_history_count":3,"app_lock":{"pin_lock_enabled":false,"lock_timeout":0,"attempts_allowed":3},"db_preferences":[]}`),
		0o600))
	oldKeyFiles := filepath.Join(dirs.AppHome, "key_files")
	require.NoError(t, os.MkdirAll(oldKeyFiles, 0o770))
	require.NoError(t, os.WriteFile(filepath.Join(oldKeyFiles, "k.keyx"), []byte("key"), 0o600))

	s := initTestState(t, dirs, &callback.Services{})

	shared := filepath.Join(dirs.AppGroupHome, "okp_shared")
	assert.Equal(t, shared, s.PreferenceHome())
	assert.FileExists(t, filepath.Join(shared, preference.FileName))
	assert.FileExists(t, filepath.Join(shared, "key_files", "k.keyx"))

	// sources deleted after copy
	assert.NoFileExists(t, filepath.Join(dirs.AppHome, preference.FileName))
	assert.NoFileExists(t, filepath.Join(oldKeyFiles, "k.keyx"))

	// migrated values survived
	assert.Equal(t, int64(555000), s.Prefs().Get().SessionTimeout)
}

func TestInit_AppGroupMigrationIdempotent(t *testing.T) {
	dirs := localDirs(t)
	dirs.AppGroupHome = t.TempDir()

	// nothing at the old location: init must still succeed
	s := initTestState(t, dirs, &callback.Services{})
	assert.DirExists(t, s.KeyFilesRoot())
}

func TestInit_RemovesLegacyBackups(t *testing.T) {
	dirs := localDirs(t)
	legacyDir := filepath.Join(dirs.AppHome, "backups")
	require.NoError(t, os.MkdirAll(legacyDir, 0o770))
	legacyFile := filepath.Join(legacyDir, "Old_123.kdbx")
	require.NoError(t, os.WriteFile(legacyFile, []byte("old"), 0o600))

	initTestState(t, dirs, &callback.Services{})

	assert.NoFileExists(t, legacyFile)
	// the history sub-dir is untouched
	assert.DirExists(t, filepath.Join(legacyDir, "history"))
}

func TestFileNameFromDbKey(t *testing.T) {
	dirs := localDirs(t)
	fi := &fakeFileInfo{names: map[string]string{"content://docs/77": "Work.kdbx"}}
	s := initTestState(t, dirs, &callback.Services{FileInfo: fi})

	// remote key resolves through the grammar, not the callback
	assert.Equal(t, "Test.kdbx",
		s.FileNameFromDbKey("Sftp-264226dc-be96-462a-a386-79adb6291ad7-/db/Test.kdbx"))

	// local uri resolves through the platform callback
	assert.Equal(t, "Work.kdbx", s.FileNameFromDbKey("content://docs/77"))

	// unknown uris fall back to the recent list
	require.NoError(t, s.Prefs().Update(func(p *preference.Preference) {
		p.AddRecent(preference.RecentlyUsed{FileName: "Legacy.kdbx", DbFilePath: "content://gone/1"})
	}))
	assert.Equal(t, "Legacy.kdbx", s.FileNameFromDbKey("content://gone/1"))
}

func TestLastBackupOnErrorMap(t *testing.T) {
	s := initTestState(t, localDirs(t), &callback.Services{})

	_, ok := s.LastBackupOnError("file:///a.kdbx")
	assert.False(t, ok)

	s.PutLastBackupOnError("file:///a.kdbx", "/backups/history/x/a_1.kdbx")
	path, ok := s.LastBackupOnError("file:///a.kdbx")
	require.True(t, ok)
	assert.Equal(t, "/backups/history/x/a_1.kdbx", path)
	assert.Equal(t, 1, s.LastErrorCount())

	s.RemoveLastBackupOnError("file:///a.kdbx")
	assert.Equal(t, 0, s.LastErrorCount())
}
