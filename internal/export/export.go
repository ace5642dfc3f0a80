// Package export stages database files for the platform share sheet.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/okpass/mobilecore/internal/appstate"
	"github.com/okpass/mobilecore/internal/backup"
	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/dbkey"
	"github.com/okpass/mobilecore/internal/filex"
	"github.com/okpass/mobilecore/internal/logging"
)

type Service struct {
	state   *appstate.AppState
	backups *backup.Manager
	logger  logging.Logger
}

func NewService(state *appstate.AppState, backups *backup.Manager, logger logging.Logger) *Service {
	return &Service{state: state, backups: backups, logger: logger}
}

// PrepareExportData copies the current bytes of dbKey into the export
// staging directory and returns the staged path. The latest backup is the
// preferred source; a local primary is used when no backup exists. A
// stale artifact with the same name is replaced.
func (s *Service) PrepareExportData(dbKeyStr string) (string, error) {
	fileName := s.state.FileNameFromDbKey(dbKeyStr)
	if fileName == "" {
		return "", fmt.Errorf("%w: no file name for db key", common.ErrInvalidArgument)
	}

	src, ok := s.backups.LatestBackup(dbKeyStr)
	if !ok {
		if dbkey.IsRemote(dbKeyStr) {
			return "", fmt.Errorf("%w: no backup for remote database", common.ErrNotFound)
		}
		src = strings.TrimPrefix(dbKeyStr, "file://")
		if !filex.Exists(src) {
			return "", fmt.Errorf("%w: %s", common.ErrNotFound, src)
		}
	}

	dst := filepath.Join(s.state.ExportDataRoot(), fileName)
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("replace stale export: %w", err)
	}
	if _, err := filex.CopyFile(src, dst); err != nil {
		return "", fmt.Errorf("stage export: %w", err)
	}
	return dst, nil
}

// ClearExportData removes every staged artifact.
func (s *Service) ClearExportData() error {
	entries, err := os.ReadDir(s.state.ExportDataRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.state.ExportDataRoot(), e.Name())); err != nil {
			return err
		}
	}
	return nil
}
