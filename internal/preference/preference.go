// Package preference owns the versioned preference document: recent
// databases, timeouts, theme, language, app-lock settings and per-database
// preferences. The document is kept in memory behind a mutex and written to
// preference.json as a whole on every mutation.
package preference

import (
	"github.com/okpass/mobilecore/internal/common"
)

// CurrentVersion is the schema version written by this build. Documents
// carrying an older version are migrated forward on load.
const CurrentVersion = "1.1.0"

// FileName is the on-disk name of the preference document.
const FileName = "preference.json"

// RecentlyUsed describes one known database, most recently opened first.
type RecentlyUsed struct {
	FileName         string `json:"file_name"`
	DbFilePath       string `json:"db_file_path"` // this is the db_key
	BiometricEnabled bool   `json:"biometric_enabled"`
	FileSize         int64  `json:"file_size"`
	LastModified     int64  `json:"last_modified"` // ms since epoch
	LastAccessed     int64  `json:"last_accessed"` // ms since epoch
	Location         string `json:"location"`
}

// AppLockPreference configures the PIN-based application lock.
type AppLockPreference struct {
	PinLockEnabled  bool  `json:"pin_lock_enabled"`
	LockTimeout     int64 `json:"lock_timeout"` // ms; 0 locks immediately on background
	AttemptsAllowed int   `json:"attempts_allowed"`
}

// DatabasePreference carries per-database settings keyed by db_key.
type DatabasePreference struct {
	DbKey          string `json:"db_key"`
	SessionTimeout *int64 `json:"db_session_timeout,omitempty"` // overrides the app value
}

// Preference is the persisted document.
type Preference struct {
	Version            string               `json:"version"`
	RecentDbsInfo      []RecentlyUsed       `json:"recent_dbs_info"`
	SessionTimeout     int64                `json:"db_session_timeout"` // ms
	ClipboardTimeout   int64                `json:"clipboard_timeout"`  // ms
	Theme              string               `json:"theme"`
	Language           string               `json:"language"`
	GroupedCategories  bool                 `json:"grouped_categories"`
	BackupHistoryCount int                  `json:"backup_history_count"`
	AppLock            AppLockPreference    `json:"app_lock"`
	DbPreferences      []DatabasePreference `json:"db_preferences"`
}

// NewDefault returns a current-version document with all defaults applied.
func NewDefault() *Preference {
	return &Preference{
		Version:            CurrentVersion,
		RecentDbsInfo:      []RecentlyUsed{},
		SessionTimeout:     1_800_000, // 30 min
		ClipboardTimeout:   30_000,
		Theme:              "system",
		Language:           "en",
		GroupedCategories:  true,
		BackupHistoryCount: common.DefaultBackupHistoryCount,
		AppLock:            AppLockPreference{AttemptsAllowed: 3},
		DbPreferences:      []DatabasePreference{},
	}
}

// AddRecent prepends info, removing any earlier entry with the same
// db_file_path first.
func (p *Preference) AddRecent(info RecentlyUsed) {
	p.RemoveRecent(info.DbFilePath)
	p.RecentDbsInfo = append([]RecentlyUsed{info}, p.RecentDbsInfo...)
}

// RemoveRecent deletes the entry with the given db_key, if any.
func (p *Preference) RemoveRecent(dbKey string) {
	kept := p.RecentDbsInfo[:0]
	for _, r := range p.RecentDbsInfo {
		if r.DbFilePath != dbKey {
			kept = append(kept, r)
		}
	}
	p.RecentDbsInfo = kept
}

// FindRecent returns the entry with the given db_key.
func (p *Preference) FindRecent(dbKey string) (*RecentlyUsed, bool) {
	for i := range p.RecentDbsInfo {
		if p.RecentDbsInfo[i].DbFilePath == dbKey {
			return &p.RecentDbsInfo[i], true
		}
	}
	return nil, false
}

// DbKeyForFileName scans the recent list for a database with the given
// plain file name. Entries are newest first, so when two databases share a
// file name the newest wins.
func (p *Preference) DbKeyForFileName(fileName string) (string, bool) {
	for _, r := range p.RecentDbsInfo {
		if r.FileName == fileName {
			return r.DbFilePath, true
		}
	}
	return "", false
}

// DbPreference returns the per-database preference for dbKey, creating it
// when absent.
func (p *Preference) DbPreference(dbKey string) *DatabasePreference {
	for i := range p.DbPreferences {
		if p.DbPreferences[i].DbKey == dbKey {
			return &p.DbPreferences[i]
		}
	}
	p.DbPreferences = append(p.DbPreferences, DatabasePreference{DbKey: dbKey})
	return &p.DbPreferences[len(p.DbPreferences)-1]
}

// RemoveDbPreference drops the per-database preference for dbKey.
func (p *Preference) RemoveDbPreference(dbKey string) {
	kept := p.DbPreferences[:0]
	for _, d := range p.DbPreferences {
		if d.DbKey != dbKey {
			kept = append(kept, d)
		}
	}
	p.DbPreferences = kept
}

// EffectiveBackupHistoryCount returns the retention count, falling back to
// the default when the stored value is not usable.
func (p Preference) EffectiveBackupHistoryCount() int {
	if p.BackupHistoryCount <= 0 {
		return common.DefaultBackupHistoryCount
	}
	return p.BackupHistoryCount
}
