package preference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/okpass/mobilecore/internal/logging"
)

// Store is the read-through cache over preference.json. All mutations go
// through Update, which persists the whole document atomically while the
// store mutex is held.
type Store struct {
	mu     sync.Mutex
	path   string
	pref   *Preference
	logger logging.Logger
}

// Load reads the preference document from dir, migrating older versions
// forward (the migrated document is written back immediately). A missing or
// unreadable document yields defaults; loading never fails.
func Load(dir string, logger logging.Logger) *Store {
	s := &Store{path: filepath.Join(dir, FileName), logger: logger}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn(context.Background(), "preference file unreadable, using defaults", "error", err)
		}
		s.pref = NewDefault()
		if err := s.writeLocked(); err != nil {
			logger.Warn(context.Background(), "cannot persist default preference", "error", err)
		}
		return s
	}

	pref, migrated, err := decodeAndMigrate(data)
	if err != nil {
		logger.Warn(context.Background(), "preference file corrupt, using defaults", "error", err)
		pref = NewDefault()
		migrated = true
	}

	s.pref = pref
	if migrated {
		if err := s.writeLocked(); err != nil {
			logger.Warn(context.Background(), "cannot write back migrated preference", "error", err)
		}
	}
	return s
}

// Get returns a copy of the current document.
func (s *Store) Get() Preference {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *s.pref
	copied.RecentDbsInfo = append([]RecentlyUsed(nil), s.pref.RecentDbsInfo...)
	copied.DbPreferences = append([]DatabasePreference(nil), s.pref.DbPreferences...)
	return copied
}

// Update applies fn to the document and persists the result. The lock is
// held for the whole read-modify-write so preference writes are serialized.
func (s *Store) Update(fn func(p *Preference)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.pref)
	return s.writeLocked()
}

// Reset replaces the document with defaults and persists it.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pref = NewDefault()
	return s.writeLocked()
}

// writeLocked marshals the document and replaces preference.json through a
// temp-file rename so readers never observe a torn write. Caller holds mu.
func (s *Store) writeLocked() error {
	data, err := json.MarshalIndent(s.pref, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal preference: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.path
}
