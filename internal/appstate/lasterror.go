package appstate

// The last-backup-on-error map records, per db_key, the snapshot written by
// a save that subsequently failed. The save-as recovery flow consumes it; a
// successful save clears it. The map is process-local and never persisted.

// PutLastBackupOnError records backupPath as the failed-save snapshot of
// dbKey.
func (s *AppState) PutLastBackupOnError(dbKey, backupPath string) {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	s.lastBackupOnError[dbKey] = backupPath
}

// LastBackupOnError returns the failed-save snapshot of dbKey, if any.
func (s *AppState) LastBackupOnError(dbKey string) (string, bool) {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	path, ok := s.lastBackupOnError[dbKey]
	return path, ok
}

// RemoveLastBackupOnError clears the failed-save snapshot of dbKey.
func (s *AppState) RemoveLastBackupOnError(dbKey string) {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	delete(s.lastBackupOnError, dbKey)
}

// LastErrorCount reports how many databases currently have a failed-save
// snapshot recorded.
func (s *AppState) LastErrorCount() int {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	return len(s.lastBackupOnError)
}
