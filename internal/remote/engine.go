package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/okpass/mobilecore/internal/appstate"
	"github.com/okpass/mobilecore/internal/backup"
	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/dbkey"
	"github.com/okpass/mobilecore/internal/filex"
	"github.com/okpass/mobilecore/internal/kdbx"
	"github.com/okpass/mobilecore/internal/logging"
	"github.com/okpass/mobilecore/internal/pipeline"
	"github.com/okpass/mobilecore/internal/preference"
)

// Engine orchestrates database reads and writes against remote servers.
// Every transport operation runs on the shared runtime; the local backup
// history mirrors the remote file and carries its modified time, which is
// how concurrent remote changes are detected.
type Engine struct {
	state    *appstate.AppState
	codec    *kdbx.Service
	backups  *backup.Manager
	local    *pipeline.Pipeline
	registry *Registry
	runtime  *Runtime
	logger   logging.Logger
}

func NewEngine(state *appstate.AppState, codec *kdbx.Service, backups *backup.Manager,
	local *pipeline.Pipeline, registry *Registry, runtime *Runtime, logger logging.Logger) *Engine {
	return &Engine{
		state:    state,
		codec:    codec,
		backups:  backups,
		local:    local,
		registry: registry,
		runtime:  runtime,
		logger:   logger,
	}
}

// Registry exposes the connection registry for config management commands.
func (e *Engine) Registry() *Registry { return e.registry }

// ConnectAndListRoot opens a connection from a full config (persisting
// it) and lists the configured start directory.
func (e *Engine) ConnectAndListRoot(ctx context.Context, cfg *ConnectionConfig) (uuid.UUID, *ServerDirEntry, error) {
	type reply struct {
		id      uuid.UUID
		listing *ServerDirEntry
	}
	res, err := Do(ctx, e.runtime, func(ctx context.Context) (reply, error) {
		id, session, err := e.registry.Connect(ctx, cfg)
		if err != nil {
			return reply{}, err
		}
		listing, err := session.ListDir(cfg.StartDir())
		if err != nil {
			return reply{}, err
		}
		return reply{id: id, listing: listing}, nil
	})
	if err != nil {
		return uuid.Nil, nil, err
	}
	return res.id, res.listing, nil
}

// ConnectByIDAndListRoot reconnects a stored config and lists its start
// directory.
func (e *Engine) ConnectByIDAndListRoot(ctx context.Context, id uuid.UUID) (*ServerDirEntry, error) {
	cfg, err := e.registry.StoredConfig(id)
	if err != nil {
		return nil, err
	}
	return Do(ctx, e.runtime, func(ctx context.Context) (*ServerDirEntry, error) {
		session, err := e.registry.ConnectByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return session.ListDir(cfg.StartDir())
	})
}

// ConnectByID ensures a live session exists for id.
func (e *Engine) ConnectByID(ctx context.Context, id uuid.UUID) error {
	_, err := Do(ctx, e.runtime, func(ctx context.Context) (struct{}, error) {
		_, err := e.registry.ConnectByID(ctx, id)
		return struct{}{}, err
	})
	return err
}

// ListDir lists dir on the connection id.
func (e *Engine) ListDir(ctx context.Context, id uuid.UUID, dir string) (*ServerDirEntry, error) {
	return Do(ctx, e.runtime, func(ctx context.Context) (*ServerDirEntry, error) {
		session, err := e.registry.ConnectByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return session.ListDir(dir)
	})
}

// ListSubDir lists the sub-directory sub of dir.
func (e *Engine) ListSubDir(ctx context.Context, id uuid.UUID, dir, sub string) (*ServerDirEntry, error) {
	return e.ListDir(ctx, id, path.Join(dir, sub))
}

// ListConfigs returns the persisted connection configs.
func (e *Engine) ListConfigs() ([]ConnectionConfig, error) {
	return e.registry.ListConfigs()
}

// DeleteConfig removes a stored connection and its live session.
func (e *Engine) DeleteConfig(ctx context.Context, id uuid.UUID) error {
	return e.registry.DeleteConfig(ctx, id)
}

// FileMetadata stats the remote file behind dbKey.
func (e *Engine) FileMetadata(ctx context.Context, dbKeyStr string) (*RemoteFileMetadata, error) {
	ref, err := dbkey.Parse(dbKeyStr)
	if err != nil {
		return nil, err
	}
	return Do(ctx, e.runtime, func(ctx context.Context) (*RemoteFileMetadata, error) {
		session, err := e.registry.ConnectByID(ctx, ref.ConnectionID)
		if err != nil {
			return nil, err
		}
		return session.Metadata(ref.Path)
	})
}

type fetchedFile struct {
	data []byte
	meta *RemoteFileMetadata
}

// ReadKdbx downloads and unlocks the remote database behind args.DbKey.
// The downloaded bytes feed the same unlock path as a local read, with
// the backup stamped with the remote modified time. When the server is
// unreachable and a backup exists, the database is served from the
// backup with NoConnection set; the recent list is left untouched.
func (e *Engine) ReadKdbx(ctx context.Context, args kdbx.OpenArgs) (*kdbx.KdbxLoaded, *RsAdditionalInfo, error) {
	ref, err := dbkey.Parse(args.DbKey)
	if err != nil {
		return nil, nil, err
	}

	res, err := Do(ctx, e.runtime, func(ctx context.Context) (fetchedFile, error) {
		session, err := e.registry.ConnectByID(ctx, ref.ConnectionID)
		if err != nil {
			return fetchedFile{}, err
		}
		meta, err := session.Metadata(ref.Path)
		if err != nil {
			return fetchedFile{}, err
		}
		data, err := session.ReadFile(ref.Path)
		if err != nil {
			return fetchedFile{}, err
		}
		return fetchedFile{data: data, meta: meta}, nil
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrAuthenticationFailed) {
			return nil, nil, err
		}
		return e.readFromBackup(ctx, ref, args, err)
	}

	modifiedMs := res.meta.Modified * 1000
	info := pipeline.SourceInfo{
		FileName: ref.FileName(),
		Size:     int64(len(res.data)),
		Modified: &modifiedMs,
		Location: string(ref.Scheme),
	}
	loaded, err := e.local.ReadKdbxFromReader(bytes.NewReader(res.data), info, args)
	if err != nil {
		return nil, nil, err
	}
	return loaded, &RsAdditionalInfo{}, nil
}

// readFromBackup is the offline fallback: unlock from the latest backup,
// flagged so the shell can disable editing. Nothing else is touched.
func (e *Engine) readFromBackup(ctx context.Context, ref *dbkey.RemoteRef, args kdbx.OpenArgs, cause error) (*kdbx.KdbxLoaded, *RsAdditionalInfo, error) {
	backupPath, ok := e.backups.LatestBackup(args.DbKey)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no connection and no backup: %v", common.ErrNotFound, cause)
	}
	e.logger.Info(ctx, "serving database from backup, server unreachable",
		"db_key", args.DbKey, "cause", cause)

	f, err := os.Open(backupPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	loaded, err := e.codec.ReadKdbx(f, ref.FileName(), args)
	if err != nil {
		return nil, nil, err
	}
	if _, err := e.codec.CalculateAndSetChecksumFromFile(args.DbKey, backupPath); err != nil {
		return nil, nil, fmt.Errorf("set checksum: %w", err)
	}
	return loaded, &RsAdditionalInfo{NoConnection: true}, nil
}

// SaveKdbx uploads the open database behind dbKey. The serialized bytes
// go to a fresh backup first. With overwrite false, a remote modified
// time differing from the previous backup's mtime aborts the upload and
// records the backup for the save-as recovery flow; so does a transport
// failure. After a successful upload the backup's mtime is reconciled to
// the remote file's.
func (e *Engine) SaveKdbx(ctx context.Context, dbKeyStr string, overwrite bool) (*kdbx.KdbxLoaded, error) {
	ref, err := dbkey.Parse(dbKeyStr)
	if err != nil {
		return nil, err
	}

	prevModified, hasPrev := e.backups.BackupModTime(dbKeyStr)

	backupPath, err := e.backups.GenerateBackupPath(dbKeyStr, ref.FileName())
	if err != nil {
		return nil, fmt.Errorf("prepare backup: %w", err)
	}
	if err := e.writeBackup(dbKeyStr, backupPath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}

	meta, err := Do(ctx, e.runtime, func(ctx context.Context) (*RemoteFileMetadata, error) {
		session, err := e.registry.ConnectByID(ctx, ref.ConnectionID)
		if err != nil {
			return nil, err
		}
		if !overwrite && hasPrev {
			meta, err := session.Metadata(ref.Path)
			if err == nil && meta.Modified != prevModified {
				return nil, fmt.Errorf("%w: remote file modified at %d, backup at %d",
					common.ErrDbFileContentChangeDetected, meta.Modified, prevModified)
			}
		}
		if err := session.WriteFile(ref.Path, data); err != nil {
			return nil, err
		}
		return session.Metadata(ref.Path)
	})
	if err != nil {
		// keep the snapshot for save-as recovery
		e.state.PutLastBackupOnError(dbKeyStr, backupPath)
		return nil, err
	}

	e.backups.SetBackupModTimeFromSource(backupPath, time.Unix(meta.Modified, 0))
	if _, err := e.codec.CalculateAndSetChecksumFromFile(dbKeyStr, backupPath); err != nil {
		return nil, fmt.Errorf("set checksum: %w", err)
	}
	e.state.RemoveLastBackupOnError(dbKeyStr)
	e.backups.Prune(dbKeyStr, e.state.Prefs().Get().EffectiveBackupHistoryCount())

	if err := e.state.Prefs().Update(func(pref *preference.Preference) {
		if recent, ok := pref.FindRecent(dbKeyStr); ok {
			recent.LastModified = meta.Modified * 1000
			recent.LastAccessed = time.Now().UnixMilli()
		}
	}); err != nil {
		e.logger.Warn(ctx, "cannot update recent entry after save", "error", err)
	}

	return e.codec.Loaded(dbKeyStr)
}

// writeBackup serializes the open database into backupPath.
func (e *Engine) writeBackup(dbKeyStr, backupPath string) error {
	f, err := os.OpenFile(backupPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	defer f.Close()
	if err := e.codec.SaveToWriter(f, dbKeyStr); err != nil {
		e.backups.RemoveBackup(backupPath)
		return err
	}
	return filex.SyncAndRewind(f)
}

// CreateKdbx initializes a new database and uploads it. The history
// backup is written first; a failed upload removes it again so the
// history never shows a database that does not exist remotely.
func (e *Engine) CreateKdbx(ctx context.Context, args kdbx.NewDatabaseArgs) (*kdbx.KdbxLoaded, error) {
	ref, err := dbkey.Parse(args.DbKey)
	if err != nil {
		return nil, err
	}

	backupPath, err := e.backups.GenerateBackupPath(args.DbKey, args.FileName)
	if err != nil {
		return nil, fmt.Errorf("prepare backup: %w", err)
	}
	f, err := os.OpenFile(backupPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	loaded, err := e.codec.CreateKdbx(f, args)
	if err != nil {
		f.Close()
		e.backups.RemoveBackup(backupPath)
		return nil, err
	}
	if err := filex.SyncAndRewind(f); err != nil {
		f.Close()
		return nil, err
	}
	f.Close()

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}

	meta, err := Do(ctx, e.runtime, func(ctx context.Context) (*RemoteFileMetadata, error) {
		session, err := e.registry.ConnectByID(ctx, ref.ConnectionID)
		if err != nil {
			return nil, err
		}
		if err := session.WriteFile(ref.Path, data); err != nil {
			return nil, err
		}
		return session.Metadata(ref.Path)
	})
	if err != nil {
		e.backups.RemoveBackup(backupPath)
		e.codec.Close(args.DbKey)
		return nil, err
	}

	e.backups.SetBackupModTimeFromSource(backupPath, time.Unix(meta.Modified, 0))
	if _, err := e.codec.CalculateAndSetChecksumFromFile(args.DbKey, backupPath); err != nil {
		return nil, fmt.Errorf("set checksum: %w", err)
	}

	modifiedMs := meta.Modified * 1000
	if err := e.local.RecordRecent(args.DbKey, args.FileName, int64(len(data)), &modifiedMs, string(ref.Scheme)); err != nil {
		e.logger.Warn(ctx, "cannot record recently used entry", "error", err)
	}
	return loaded, nil
}

// IsRsFileModified reports whether the remote file's modified time
// differs from the latest backup's mtime, both in seconds since epoch.
func (e *Engine) IsRsFileModified(ctx context.Context, dbKeyStr string) (bool, error) {
	meta, err := e.FileMetadata(ctx, dbKeyStr)
	if err != nil {
		return false, err
	}
	local, ok := e.backups.BackupModTime(dbKeyStr)
	if !ok {
		return true, nil
	}
	return meta.Modified != local, nil
}
