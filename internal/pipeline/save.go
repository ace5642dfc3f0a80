package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/filex"
	"github.com/okpass/mobilecore/internal/kdbx"
	"github.com/okpass/mobilecore/internal/preference"
)

// SaveKdbx persists the open database identified by dbKey to its primary
// file. The serialized bytes are always written to a fresh backup first;
// the primary is only overwritten after the backup is durable. With
// overwrite false, a checksum mismatch against the primary aborts the save,
// records the backup in the last-error map and surfaces the
// content-change-detected error for the shell's save-as dialog.
func (p *Pipeline) SaveKdbx(dbKey string, overwrite bool) (*kdbx.KdbxLoaded, error) {
	primary := LocalPathFromDbKey(dbKey)
	if err := p.saveToTarget(dbKey, overwrite, primary, nil); err != nil {
		return nil, err
	}
	return p.Loaded(dbKey)
}

// SaveKdbxToWriter is SaveKdbx for targets reachable only through a
// platform handle. The conflict check is run against checkTarget when it is
// a readable path; descriptor-based callers do their own verify step first.
func (p *Pipeline) SaveKdbxToWriter(dbKey string, overwrite bool, w io.Writer) error {
	return p.saveToTarget(dbKey, overwrite, "", w)
}

// saveToTarget implements the backup-then-overwrite sequence. Exactly one
// of primaryPath / w is set.
func (p *Pipeline) saveToTarget(dbKey string, overwrite bool, primaryPath string, w io.Writer) error {
	fileName := p.state.FileNameFromDbKey(dbKey)

	backupPath, err := p.backups.GenerateBackupPath(dbKey, fileName)
	if err != nil {
		return fmt.Errorf("prepare backup: %w", err)
	}

	backupFile, err := os.OpenFile(backupPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	defer backupFile.Close()

	if err := p.codec.SaveToWriter(backupFile, dbKey); err != nil {
		p.backups.RemoveBackup(backupPath)
		return err
	}
	if err := filex.SyncAndRewind(backupFile); err != nil {
		return err
	}

	if !overwrite && primaryPath != "" {
		if err := p.codec.VerifyChecksumAgainstFile(dbKey, primaryPath); err != nil {
			if errors.Is(err, common.ErrDbFileContentChangeDetected) {
				// keep the backup for the save-as recovery flow
				p.state.PutLastBackupOnError(dbKey, backupPath)
			}
			return err
		}
	}

	if primaryPath != "" {
		if _, err := filex.CopyToFile(backupFile, primaryPath); err != nil {
			p.state.PutLastBackupOnError(dbKey, backupPath)
			return fmt.Errorf("write primary: %w", err)
		}
	} else {
		if _, err := io.Copy(w, backupFile); err != nil {
			p.state.PutLastBackupOnError(dbKey, backupPath)
			return fmt.Errorf("write primary: %w", err)
		}
	}

	// the checksum comes from the backup, never from re-reading the primary
	if _, err := p.codec.CalculateAndSetChecksumFromFile(dbKey, backupPath); err != nil {
		return fmt.Errorf("set checksum: %w", err)
	}

	p.state.RemoveLastBackupOnError(dbKey)
	p.backups.Prune(dbKey, p.state.Prefs().Get().EffectiveBackupHistoryCount())

	if err := p.state.Prefs().Update(func(pref *preference.Preference) {
		if recent, ok := pref.FindRecent(dbKey); ok {
			recent.LastModified = nowMs()
			recent.LastAccessed = nowMs()
		}
	}); err != nil {
		p.logger.Warn(context.Background(), "cannot update recent entry after save", "error", err)
	}

	return nil
}

// VerifyDbFileChecksum reports whether the primary of dbKey still matches
// the cached checksum. Some shells call this before save to decide whether
// to warn about concurrent changes.
func (p *Pipeline) VerifyDbFileChecksum(dbKey string) error {
	return p.codec.VerifyChecksumAgainstFile(dbKey, LocalPathFromDbKey(dbKey))
}

// Loaded returns the reply payload for the open database dbKey.
func (p *Pipeline) Loaded(dbKey string) (*kdbx.KdbxLoaded, error) {
	return p.codec.Loaded(dbKey)
}

// CloseKdbx drops the in-memory database and checksum of dbKey.
func (p *Pipeline) CloseKdbx(dbKey string) {
	p.codec.Close(dbKey)
}
