// Package pipeline orchestrates reading and saving local databases: decode
// through the codec, keep the backup history in step, detect concurrent
// changes at save time and capture failed saves for the save-as recovery
// flow.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/okpass/mobilecore/internal/appstate"
	"github.com/okpass/mobilecore/internal/backup"
	"github.com/okpass/mobilecore/internal/kdbx"
	"github.com/okpass/mobilecore/internal/logging"
	"github.com/okpass/mobilecore/internal/preference"
	"github.com/okpass/mobilecore/internal/vault"
)

type Pipeline struct {
	state   *appstate.AppState
	codec   *kdbx.Service
	backups *backup.Manager
	creds   *vault.Vault
	logger  logging.Logger
}

func New(state *appstate.AppState, codec *kdbx.Service, backups *backup.Manager,
	creds *vault.Vault, logger logging.Logger) *Pipeline {
	return &Pipeline{
		state:   state,
		codec:   codec,
		backups: backups,
		creds:   creds,
		logger:  logger,
	}
}

// LocalPathFromDbKey maps a local db_key to a filesystem path. file-scheme
// URIs are stripped; anything else is already a path (content-scheme keys
// never reach the path-based operations, their bytes arrive by descriptor).
func LocalPathFromDbKey(dbKey string) string {
	return strings.TrimPrefix(dbKey, "file://")
}

// nowMs returns the wall clock in ms since epoch, the unit the preference
// document uses.
func nowMs() int64 {
	return time.Now().UnixMilli()
}

// RecordRecent upserts the RecentlyUsed entry after a successful open or
// create.
func (p *Pipeline) RecordRecent(dbKey, fileName string, size int64, modified *int64, location string) error {
	return p.state.Prefs().Update(func(pref *preference.Preference) {
		entry := preference.RecentlyUsed{
			FileName:     fileName,
			DbFilePath:   dbKey,
			FileSize:     size,
			LastAccessed: nowMs(),
			Location:     location,
		}
		if modified != nil {
			entry.LastModified = *modified
		}
		if existing, ok := pref.FindRecent(dbKey); ok {
			entry.BiometricEnabled = existing.BiometricEnabled
		}
		pref.AddRecent(entry)
	})
}

// purgeDbState removes every app-side trace of dbKey: recent entry,
// per-database preference, backup history, failed-save snapshot and stored
// credentials. Used when a database is removed or re-keyed.
func (p *Pipeline) purgeDbState(dbKey string) {
	if err := p.state.Prefs().Update(func(pref *preference.Preference) {
		pref.RemoveRecent(dbKey)
		pref.RemoveDbPreference(dbKey)
	}); err != nil {
		p.logger.Warn(context.Background(), "cannot update preference while purging db state", "error", err)
	}

	if err := p.backups.DeleteAllForDb(dbKey); err != nil {
		p.logger.Warn(context.Background(), "cannot delete backup history", "db_key", dbKey, "error", err)
	}

	p.state.RemoveLastBackupOnError(dbKey)

	if err := p.creds.RemoveCredentials(dbKey); err != nil {
		p.logger.Warn(context.Background(), "cannot remove stored credentials", "db_key", dbKey, "error", err)
	}
}
