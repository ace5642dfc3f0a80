package kdbx

import (
	"fmt"
	"io"

	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/cryptox"
)

// The cached checksum of a database is the SHA-256 of its serialized bytes
// at the time it was last read or saved. Save compares this against the
// primary file to detect writes made outside the app since load.

// SetChecksum stores sum as the current content checksum of dbKey.
func (s *Service) SetChecksum(dbKey, sum string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checksums[dbKey] = sum
}

// Checksum returns the cached checksum of dbKey.
func (s *Service) Checksum(dbKey string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.checksums[dbKey]
	return sum, ok
}

// CalculateAndSetChecksum hashes data and stores the result for dbKey.
func (s *Service) CalculateAndSetChecksum(dbKey string, data []byte) string {
	sum := cryptox.Sha256Hex(data)
	s.SetChecksum(dbKey, sum)
	return sum
}

// CalculateAndSetChecksumFromFile hashes the file at path and stores the
// result for dbKey. The save pipeline always hashes the backup file, never
// the just-written primary, because primaries can live on sync-driven
// filesystems where reads may be stale.
func (s *Service) CalculateAndSetChecksumFromFile(dbKey, path string) (string, error) {
	sum, err := cryptox.FileSha256Hex(path)
	if err != nil {
		return "", err
	}
	s.SetChecksum(dbKey, sum)
	return sum, nil
}

// VerifyChecksumAgainstFile compares the cached checksum of dbKey with the
// hash of the file at path. A mismatch means the on-disk content changed
// since the database was loaded.
func (s *Service) VerifyChecksumAgainstFile(dbKey, path string) error {
	sum, err := cryptox.FileSha256Hex(path)
	if err != nil {
		return err
	}
	return s.verify(dbKey, sum)
}

// VerifyChecksumAgainstReader is VerifyChecksumAgainstFile over a stream.
func (s *Service) VerifyChecksumAgainstReader(dbKey string, r io.Reader) error {
	sum, err := cryptox.ReaderSha256Hex(r)
	if err != nil {
		return err
	}
	return s.verify(dbKey, sum)
}

func (s *Service) verify(dbKey, current string) error {
	cached, ok := s.Checksum(dbKey)
	if !ok {
		return fmt.Errorf("%w: no checksum recorded for database", common.ErrNotFound)
	}
	if cached != current {
		return common.ErrDbFileContentChangeDetected
	}
	return nil
}
