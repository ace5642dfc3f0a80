// Package backup maintains the per-database rotating history of saved
// snapshots. Each database gets one directory under the history root, named
// by the hash of its db_key; snapshot files inside are named
// <base>_<unix-seconds>.kdbx and ordered by modification time.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/cryptox"
	"github.com/okpass/mobilecore/internal/filex"
	"github.com/okpass/mobilecore/internal/logging"
)

type Manager struct {
	root   string
	logger logging.Logger
}

func NewManager(root string, logger logging.Logger) *Manager {
	return &Manager{root: root, logger: logger}
}

// dbDir is the history directory of one database.
func (m *Manager) dbDir(dbKey string) string {
	return filepath.Join(m.root, cryptox.DbKeyHash(dbKey))
}

// GenerateBackupPath forms a fresh snapshot path for dbKey, creating the
// database's history directory if needed. fileName is the database's display
// name; its extension is replaced by _<unix-seconds>.kdbx.
func (m *Manager) GenerateBackupPath(dbKey, fileName string) (string, error) {
	dir := m.dbDir(dbKey)
	if err := filex.EnsureDir(dir); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if base == "" {
		base = "db"
	}

	name := fmt.Sprintf("%s_%d%s", base, time.Now().Unix(), common.KdbxFileExtension)
	return filepath.Join(dir, name), nil
}

// LatestBackup returns the most recently modified snapshot of dbKey.
func (m *Manager) LatestBackup(dbKey string) (string, bool) {
	files, err := filex.ListFilesModTimeDesc(m.dbDir(dbKey))
	if err != nil || len(files) == 0 {
		return "", false
	}
	return files[0], true
}

// MatchesChecksum reports whether the latest snapshot of dbKey hashes to
// checksum. A missing history or unreadable snapshot is a non-match.
func (m *Manager) MatchesChecksum(dbKey, checksum string) bool {
	latest, ok := m.LatestBackup(dbKey)
	if !ok {
		return false
	}

	sum, err := cryptox.FileSha256Hex(latest)
	if err != nil {
		m.logger.Warn(context.Background(), "cannot hash latest backup", "path", latest, "error", err)
		return false
	}
	return sum == checksum
}

// Prune keeps the keep most recently modified snapshots of dbKey and
// deletes the rest. An emptied history directory is removed. Pruning is
// best-effort: failures are logged and skipped.
func (m *Manager) Prune(dbKey string, keep int) {
	if keep <= 0 {
		keep = common.DefaultBackupHistoryCount
	}

	dir := m.dbDir(dbKey)
	files, err := filex.ListFilesModTimeDesc(dir)
	if err != nil {
		return
	}

	for _, path := range files[min(keep, len(files)):] {
		if err := os.Remove(path); err != nil {
			m.logger.Warn(context.Background(), "cannot prune backup", "path", path, "error", err)
		}
	}

	if remaining, err := os.ReadDir(dir); err == nil && len(remaining) == 0 {
		_ = os.Remove(dir)
	}
}

// DeleteAllForDb removes the whole history of dbKey.
func (m *Manager) DeleteAllForDb(dbKey string) error {
	if err := os.RemoveAll(m.dbDir(dbKey)); err != nil {
		return fmt.Errorf("remove backup history: %w", err)
	}
	return nil
}

// RemoveBackup deletes one snapshot file.
func (m *Manager) RemoveBackup(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn(context.Background(), "cannot remove backup", "path", path, "error", err)
	}
}

// SetBackupModTimeFromSource stamps the snapshot with the source file's
// modification time (seconds resolution) so later reads can detect source
// changes without comparing contents.
func (m *Manager) SetBackupModTimeFromSource(backupPath string, sourceModTime time.Time) {
	if sourceModTime.IsZero() {
		return
	}
	if err := filex.SetFileModTime(backupPath, sourceModTime); err != nil {
		m.logger.Warn(context.Background(), "cannot set backup mtime", "path", backupPath, "error", err)
	}
}

// BackupModTime returns the modification time of the latest snapshot of
// dbKey as seconds since epoch.
func (m *Manager) BackupModTime(dbKey string) (int64, bool) {
	latest, ok := m.LatestBackup(dbKey)
	if !ok {
		return 0, false
	}
	t, err := filex.FileModTime(latest)
	if err != nil {
		return 0, false
	}
	return t.Unix(), true
}

// Root returns the history root directory.
func (m *Manager) Root() string {
	return m.root
}
