package pipeline

import (
	"fmt"
	"io"
	"os"

	"github.com/okpass/mobilecore/internal/filex"
	"github.com/okpass/mobilecore/internal/kdbx"
)

// CreateKdbx initializes a fresh database: the serialized form goes to the
// history backup first, is copied from there into the target writer, and
// the database is registered as recently used. If the target write fails
// the backup is removed again so the history stays consistent.
func (p *Pipeline) CreateKdbx(args kdbx.NewDatabaseArgs, target io.Writer) (*kdbx.KdbxLoaded, error) {
	backupPath, err := p.backups.GenerateBackupPath(args.DbKey, args.FileName)
	if err != nil {
		return nil, fmt.Errorf("prepare backup: %w", err)
	}

	backupFile, err := os.OpenFile(backupPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	defer backupFile.Close()

	loaded, err := p.codec.CreateKdbx(backupFile, args)
	if err != nil {
		p.backups.RemoveBackup(backupPath)
		return nil, err
	}
	if err := filex.SyncAndRewind(backupFile); err != nil {
		p.backups.RemoveBackup(backupPath)
		return nil, err
	}

	if _, err := io.Copy(target, backupFile); err != nil {
		p.codec.Close(args.DbKey)
		p.backups.RemoveBackup(backupPath)
		return nil, fmt.Errorf("write new database: %w", err)
	}

	if _, err := p.codec.CalculateAndSetChecksumFromFile(args.DbKey, backupPath); err != nil {
		return nil, fmt.Errorf("set checksum: %w", err)
	}

	size := int64(0)
	if info, err := os.Stat(backupPath); err == nil {
		size = info.Size()
	}
	modified := nowMs()
	if err := p.RecordRecent(args.DbKey, args.FileName, size, &modified, ""); err != nil {
		return nil, fmt.Errorf("record recent: %w", err)
	}

	return loaded, nil
}

// CreateKdbxAtPath is CreateKdbx writing the primary to a filesystem path.
func (p *Pipeline) CreateKdbxAtPath(args kdbx.NewDatabaseArgs) (*kdbx.KdbxLoaded, error) {
	target, err := os.OpenFile(LocalPathFromDbKey(args.DbKey), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create database file: %w", err)
	}
	defer target.Close()

	loaded, err := p.CreateKdbx(args, target)
	if err != nil {
		return nil, err
	}
	if err := target.Sync(); err != nil {
		return nil, fmt.Errorf("sync database file: %w", err)
	}
	return loaded, nil
}
