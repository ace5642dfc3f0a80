// Package appstate holds the process-wide application state: resolved
// directory roots, the preference store, the last-failed-save backup map and
// the platform callback services. It is initialized exactly once at startup
// and never torn down; a second initialization is refused with a recoverable
// error.
package appstate

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/okpass/mobilecore/internal/callback"
	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/dbkey"
	"github.com/okpass/mobilecore/internal/filex"
	"github.com/okpass/mobilecore/internal/logging"
	"github.com/okpass/mobilecore/internal/preference"
)

const (
	backupsDirName       = "backups"
	backupHistoryDirName = "history"
	remoteStorageDirName = "remote_storage"
	sftpDirName          = "sftp"
	exportDataDirName    = "export_data"
	keyFilesDirName      = "key_files"

	// appGroupSubDir is the sub-directory inside the iOS app-group container
	// holding the preference file and key files shared with extensions.
	appGroupSubDir = "okp_shared"
)

// AppState is the hub. All fields are immutable after Init except the
// preference store (internally mutex-guarded) and the last-error map.
type AppState struct {
	dirs     callback.DeviceDirs
	services *callback.Services
	logger   logging.Logger

	prefHome          string
	backupHistoryRoot string
	remoteStorageRoot string
	sftpRoot          string
	exportDataRoot    string
	keyFilesRoot      string

	prefs *preference.Store

	lastErrMu         sync.Mutex
	lastBackupOnError map[string]string // db_key -> backup path
}

var state struct {
	mu sync.Mutex
	s  *AppState
}

// Init builds the hub: resolves and creates the sub-roots, runs the iOS
// app-group migration and the legacy backup cleanup, and loads the
// preference document. Initialization never fails fatally; directory
// trouble is logged and the affected root falls back to the app home.
//
// A second call leaves the existing hub untouched and returns it together
// with common.ErrAlreadyInitialized.
func Init(dirs callback.DeviceDirs, services *callback.Services, logger logging.Logger) (*AppState, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.s != nil {
		return state.s, common.ErrAlreadyInitialized
	}

	s := &AppState{
		dirs:              dirs,
		services:          services,
		logger:            logger,
		lastBackupOnError: map[string]string{},
	}

	s.resolveRoots()
	s.migrateToAppGroup()
	s.removeLegacyBackups()

	s.prefs = preference.Load(s.prefHome, logger)

	state.s = s
	return s, nil
}

// Shared returns the initialized hub.
func Shared() (*AppState, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.s == nil {
		return nil, common.ErrNotInitialized
	}
	return state.s, nil
}

// ResetForTest clears the singleton. Test use only.
func ResetForTest() {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.s = nil
}

// ensureRoot creates dir and returns it, falling back to base when the
// creation fails.
func (s *AppState) ensureRoot(dir, base string) string {
	if err := filex.EnsureDir(dir); err != nil {
		s.logger.Error(context.Background(), "cannot create directory, falling back", "dir", dir, "error", err)
		return base
	}
	return dir
}

func (s *AppState) resolveRoots() {
	home := s.dirs.AppHome

	s.backupHistoryRoot = s.ensureRoot(filepath.Join(home, backupsDirName, backupHistoryDirName), home)
	s.remoteStorageRoot = s.ensureRoot(filepath.Join(home, remoteStorageDirName), home)
	s.sftpRoot = s.ensureRoot(filepath.Join(s.remoteStorageRoot, sftpDirName), s.remoteStorageRoot)
	s.exportDataRoot = s.ensureRoot(filepath.Join(home, exportDataDirName), home)

	// On iOS the preference document and the key files live in the shared
	// app-group container so the autofill extension can reach them.
	if s.dirs.AppGroupHome != "" {
		shared := s.ensureRoot(filepath.Join(s.dirs.AppGroupHome, appGroupSubDir), s.dirs.AppGroupHome)
		s.prefHome = shared
		s.keyFilesRoot = s.ensureRoot(filepath.Join(shared, keyFilesDirName), shared)
		return
	}

	s.prefHome = home
	s.keyFilesRoot = s.ensureRoot(filepath.Join(home, keyFilesDirName), home)
}

// migrateToAppGroup moves the preference file and key files from the
// app-local root into the app-group container after an upgrade. Absence at
// the source is normal; the migration is idempotent.
func (s *AppState) migrateToAppGroup() {
	if s.dirs.AppGroupHome == "" || s.prefHome == s.dirs.AppHome {
		return
	}

	oldPref := filepath.Join(s.dirs.AppHome, preference.FileName)
	newPref := filepath.Join(s.prefHome, preference.FileName)
	if filex.Exists(oldPref) && !filex.Exists(newPref) {
		if _, err := filex.CopyFile(oldPref, newPref); err != nil {
			s.logger.Error(context.Background(), "preference migration failed", "error", err)
		} else if err := os.Remove(oldPref); err != nil {
			s.logger.Warn(context.Background(), "cannot remove migrated preference", "error", err)
		}
	}

	oldKeyFiles := filepath.Join(s.dirs.AppHome, keyFilesDirName)
	entries, err := os.ReadDir(oldKeyFiles)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(oldKeyFiles, e.Name())
		dst := filepath.Join(s.keyFilesRoot, e.Name())
		if filex.Exists(dst) {
			continue
		}
		if _, err := filex.CopyFile(src, dst); err != nil {
			s.logger.Error(context.Background(), "key file migration failed", "name", e.Name(), "error", err)
			continue
		}
		_ = os.Remove(src)
	}
	// drop the source dir once emptied
	if remaining, err := os.ReadDir(oldKeyFiles); err == nil && len(remaining) == 0 {
		_ = os.Remove(oldKeyFiles)
	}
}

// removeLegacyBackups deletes backup files written by earlier releases
// directly under backups/; retention only applies to backups/history.
func (s *AppState) removeLegacyBackups() {
	legacy := filepath.Join(s.dirs.AppHome, backupsDirName)
	entries, err := os.ReadDir(legacy)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(legacy, e.Name())); err != nil {
			s.logger.Warn(context.Background(), "cannot remove legacy backup", "name", e.Name(), "error", err)
		}
	}
}

// Accessors. All roots exist (or have fallen back to the app home).

func (s *AppState) AppHome() string           { return s.dirs.AppHome }
func (s *AppState) CacheDir() string          { return s.dirs.CacheDir }
func (s *AppState) TempDir() string           { return s.dirs.TempDir }
func (s *AppState) PreferenceHome() string    { return s.prefHome }
func (s *AppState) BackupHistoryRoot() string { return s.backupHistoryRoot }
func (s *AppState) RemoteStorageRoot() string { return s.remoteStorageRoot }
func (s *AppState) SftpRoot() string          { return s.sftpRoot }
func (s *AppState) ExportDataRoot() string    { return s.exportDataRoot }
func (s *AppState) KeyFilesRoot() string      { return s.keyFilesRoot }

// Services returns the platform callback services.
func (s *AppState) Services() *callback.Services { return s.services }

// Prefs returns the preference store.
func (s *AppState) Prefs() *preference.Store { return s.prefs }

// Logger returns the hub logger.
func (s *AppState) Logger() logging.Logger { return s.logger }

// FileNameFromDbKey resolves the display file name of a db_key: the remote
// grammar first, then the platform URI callback, then the recent list.
func (s *AppState) FileNameFromDbKey(dbKeyStr string) string {
	if name, err := dbkey.FileNameOf(dbKeyStr); err == nil {
		return name
	}

	if s.services != nil && s.services.FileInfo != nil {
		if name, err := s.services.FileInfo.UriToFileName(dbKeyStr); err == nil && name != "" {
			return name
		}
	}

	pref := s.prefs.Get()
	if recent, ok := pref.FindRecent(dbKeyStr); ok {
		return recent.FileName
	}
	return filepath.Base(dbKeyStr)
}
