package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okpass/mobilecore/internal/filex"
	"github.com/okpass/mobilecore/internal/kdbx"
)

// SourceInfo carries what is known about the primary file being read; any
// field may be absent for content-scheme sources.
type SourceInfo struct {
	FileName string
	Size     int64
	Modified *int64 // ms since epoch
	Location string
}

// ReadKdbx opens the database at the path mapped from args.DbKey.
func (p *Pipeline) ReadKdbx(args kdbx.OpenArgs) (*kdbx.KdbxLoaded, error) {
	path := LocalPathFromDbKey(args.DbKey)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read database file: %w", err)
	}

	info := SourceInfo{
		FileName: p.state.FileNameFromDbKey(args.DbKey),
		Size:     int64(len(data)),
	}
	if t, err := filex.FileModTime(path); err == nil {
		ms := t.UnixMilli()
		info.Modified = &ms
	}

	return p.readFromBytes(data, info, args)
}

// ReadKdbxFromReader opens a database whose bytes arrive through a platform
// handle (Android content URIs, iOS security-scoped files).
func (p *Pipeline) ReadKdbxFromReader(r io.Reader, info SourceInfo, args kdbx.OpenArgs) (*kdbx.KdbxLoaded, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read database stream: %w", err)
	}
	if info.Size == 0 {
		info.Size = int64(len(data))
	}
	return p.readFromBytes(data, info, args)
}

// readFromBytes is the shared unlock path: decode, checksum, ensure a
// matching backup exists, prune, record recent use and refresh the stored
// biometric credentials when applicable.
func (p *Pipeline) readFromBytes(data []byte, info SourceInfo, args kdbx.OpenArgs) (*kdbx.KdbxLoaded, error) {
	loaded, err := p.codec.ReadKdbx(bytes.NewReader(data), info.FileName, args)
	if err != nil {
		return nil, err
	}

	sum := p.codec.CalculateAndSetChecksum(args.DbKey, data)

	if !p.backups.MatchesChecksum(args.DbKey, sum) {
		if err := p.writeBackup(args.DbKey, info, data); err != nil {
			// a failed backup must not fail the unlock
			p.logger.Warn(context.Background(), "cannot create backup on read", "error", err)
		}
	}

	p.backups.Prune(args.DbKey, p.state.Prefs().Get().EffectiveBackupHistoryCount())

	if err := p.RecordRecent(args.DbKey, info.FileName, info.Size, info.Modified, info.Location); err != nil {
		p.logger.Warn(context.Background(), "cannot record recently used entry", "error", err)
	}

	var password, keyFile *string
	if args.Password != "" {
		password = &args.Password
	}
	if args.KeyFileName != "" {
		keyFile = &args.KeyFileName
	}
	p.creds.StoreCredentialsOnCheck(args.DbKey, password, keyFile, args.BiometricAuthUsed)

	return loaded, nil
}

// writeBackup stores data as a fresh snapshot and stamps it with the
// source's modified time when known.
func (p *Pipeline) writeBackup(dbKey string, info SourceInfo, data []byte) error {
	backupPath, err := p.backups.GenerateBackupPath(dbKey, info.FileName)
	if err != nil {
		return err
	}
	if _, err := filex.CopyToFile(bytes.NewReader(data), backupPath); err != nil {
		return err
	}
	if info.Modified != nil {
		p.backups.SetBackupModTimeFromSource(backupPath, time.UnixMilli(*info.Modified))
	}
	return nil
}
