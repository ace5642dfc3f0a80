package preference

import (
	"encoding/json"
	"fmt"
)

// preferenceV1 is the 1.0.x document shape. It predates per-database
// preferences, the app lock and the configurable backup retention; its
// recent entries carried no location label.
type preferenceV1 struct {
	Version          string           `json:"version"`
	RecentDbsInfo    []recentlyUsedV1 `json:"recent_dbs_info"`
	SessionTimeout   int64            `json:"db_session_timeout"`
	ClipboardTimeout int64            `json:"clipboard_timeout"`
	Theme            string           `json:"theme"`
	Language         string           `json:"language"`
}

type recentlyUsedV1 struct {
	FileName         string `json:"file_name"`
	DbFilePath       string `json:"db_file_path"`
	BiometricEnabled bool   `json:"biometric_enabled"`
	FileSize         int64  `json:"file_size"`
	LastModified     int64  `json:"last_modified"`
	LastAccessed     int64  `json:"last_accessed"`
}

// decodeAndMigrate parses a preference document of any supported version
// and returns the current-version form. The second return value reports
// whether the document changed and needs to be written back.
func decodeAndMigrate(data []byte) (*Preference, bool, error) {
	var header struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, false, fmt.Errorf("preference header: %w", err)
	}

	switch header.Version {
	case CurrentVersion:
		var pref Preference
		if err := json.Unmarshal(data, &pref); err != nil {
			return nil, false, fmt.Errorf("preference %s: %w", CurrentVersion, err)
		}
		normalize(&pref)
		return &pref, false, nil

	default:
		// Every pre-1.1 document decodes as the v1 shape; unknown fields
		// from versions in between are discarded.
		var old preferenceV1
		if err := json.Unmarshal(data, &old); err != nil {
			return nil, false, fmt.Errorf("preference %s: %w", header.Version, err)
		}
		return migrateV1(&old), true, nil
	}
}

// migrateV1 initializes a current document from the fields both versions
// share; everything new takes defaults.
func migrateV1(old *preferenceV1) *Preference {
	pref := NewDefault()

	if old.SessionTimeout > 0 {
		pref.SessionTimeout = old.SessionTimeout
	}
	if old.ClipboardTimeout > 0 {
		pref.ClipboardTimeout = old.ClipboardTimeout
	}
	if old.Theme != "" {
		pref.Theme = old.Theme
	}
	if old.Language != "" {
		pref.Language = old.Language
	}

	for _, r := range old.RecentDbsInfo {
		pref.RecentDbsInfo = append(pref.RecentDbsInfo, RecentlyUsed{
			FileName:         r.FileName,
			DbFilePath:       r.DbFilePath,
			BiometricEnabled: r.BiometricEnabled,
			FileSize:         r.FileSize,
			LastModified:     r.LastModified,
			LastAccessed:     r.LastAccessed,
		})
	}

	return pref
}

// normalize repairs nil slices so the marshaled document always carries
// arrays, keeping repeated loads byte-identical.
func normalize(p *Preference) {
	if p.RecentDbsInfo == nil {
		p.RecentDbsInfo = []RecentlyUsed{}
	}
	if p.DbPreferences == nil {
		p.DbPreferences = []DatabasePreference{}
	}
}
