package pipeline

import (
	"fmt"
	"io"
	"os"

	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/filex"
	"github.com/okpass/mobilecore/internal/kdbx"
)

// SaveAsOnError completes the recovery flow after a failed save: the
// snapshot captured in the last-error map is copied into a new target file
// picked by the user, the cached database is re-keyed, and all app-side
// state of the old key is removed.
func (p *Pipeline) SaveAsOnError(oldDbKey, newDbKey, fileName string) (*kdbx.KdbxLoaded, error) {
	newPath := LocalPathFromDbKey(newDbKey)
	return p.saveAsOnErrorTo(oldDbKey, newDbKey, fileName, func(backupPath string) error {
		_, err := filex.CopyFile(backupPath, newPath)
		return err
	})
}

// SaveAsOnErrorToWriter is SaveAsOnError for platforms that hand over the
// new file as an open handle.
func (p *Pipeline) SaveAsOnErrorToWriter(oldDbKey, newDbKey, fileName string, w io.Writer) (*kdbx.KdbxLoaded, error) {
	return p.saveAsOnErrorTo(oldDbKey, newDbKey, fileName, func(backupPath string) error {
		_, err := filex.CopyToWriter(backupPath, w)
		return err
	})
}

func (p *Pipeline) saveAsOnErrorTo(oldDbKey, newDbKey, fileName string,
	writeTarget func(backupPath string) error) (*kdbx.KdbxLoaded, error) {

	backupPath, ok := p.state.LastBackupOnError(oldDbKey)
	if !ok {
		return nil, common.ErrNoBackupOnError
	}

	if err := writeTarget(backupPath); err != nil {
		return nil, fmt.Errorf("write new target: %w", err)
	}

	p.codec.RenameKey(oldDbKey, newDbKey, fileName)

	// checksum from the failed-save snapshot, never from the just-written
	// primary: the new target can sit on a sync-driven filesystem where an
	// immediate read-back is stale
	if _, err := p.codec.CalculateAndSetChecksumFromFile(newDbKey, backupPath); err != nil {
		return nil, fmt.Errorf("set checksum: %w", err)
	}

	newBackupPath, err := p.backups.GenerateBackupPath(newDbKey, fileName)
	if err != nil {
		return nil, fmt.Errorf("prepare backup: %w", err)
	}
	if _, err := filex.CopyFile(backupPath, newBackupPath); err != nil {
		return nil, fmt.Errorf("copy backup: %w", err)
	}

	// drop everything belonging to the old key, then register the new one
	p.purgeDbState(oldDbKey)
	p.state.RemoveLastBackupOnError(newDbKey)

	size := int64(0)
	if info, err := os.Stat(newBackupPath); err == nil {
		size = info.Size()
	}

	modified := nowMs()
	if err := p.RecordRecent(newDbKey, fileName, size, &modified, ""); err != nil {
		return nil, fmt.Errorf("record recent: %w", err)
	}

	return p.Loaded(newDbKey)
}
