package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/okpass/mobilecore/internal/audit"
	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/dbkey"
	"github.com/okpass/mobilecore/internal/kdbx"
	"github.com/okpass/mobilecore/internal/pipeline"
	"github.com/okpass/mobilecore/internal/remote"
)

// openReply is the unlock reply; RsAdditionalInfo is present only for
// remote databases.
type openReply struct {
	*kdbx.KdbxLoaded
	RsAdditionalInfo *remote.RsAdditionalInfo `json:"rs_additional_info,omitempty"`
}

type openArgs struct {
	DbKey             string `json:"db_key"`
	Password          string `json:"password"`
	KeyFileName       string `json:"key_file_name"`
	BiometricAuthUsed bool   `json:"biometric_auth_used"`
}

// resolveOpenArgs turns command args into codec args, pulling stored
// credentials out of the vault for biometric unlocks.
func (d *Dispatcher) resolveOpenArgs(args *openArgs) (kdbx.OpenArgs, error) {
	out := kdbx.OpenArgs{
		DbKey:             args.DbKey,
		Password:          args.Password,
		KeyFileName:       args.KeyFileName,
		BiometricAuthUsed: args.BiometricAuthUsed,
	}
	if args.BiometricAuthUsed && args.Password == "" && args.KeyFileName == "" {
		stored, err := d.creds.GetCredentials(args.DbKey)
		if err != nil {
			return out, err
		}
		if stored.Password != nil {
			out.Password = *stored.Password
		}
		if stored.KeyFileName != nil {
			out.KeyFileName = *stored.KeyFileName
		}
	}
	return out, nil
}

func (d *Dispatcher) openKdbx(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	// credentialed shape first, bare biometric shape second
	var args openArgs
	if err := decodeArgs(argsJSON, &args, "db_key", "password"); err != nil {
		if err := decodeArgs(argsJSON, &args, "db_key"); err != nil {
			return nil, err
		}
	}
	open, err := c.resolveOpenArgs(&args)
	if err != nil {
		return nil, err
	}

	if dbkey.IsRemote(args.DbKey) {
		loaded, info, err := c.engine.ReadKdbx(ctx, open)
		if err != nil {
			return nil, err
		}
		c.logActivity(ctx, args.DbKey, audit.EventRemoteRead, "")
		return &openReply{KdbxLoaded: loaded, RsAdditionalInfo: info}, nil
	}

	loaded, err := c.local.ReadKdbx(open)
	if err != nil {
		return nil, err
	}
	c.logActivity(ctx, args.DbKey, audit.EventUnlock, "")
	return &openReply{KdbxLoaded: loaded}, nil
}

type openFdArgs struct {
	Fd           int    `json:"fd"`
	FileName     string `json:"file_name"`
	Size         int64  `json:"size"`
	LastModified *int64 `json:"last_modified"`
	Location     string `json:"location"`
	openArgs
}

func (d *Dispatcher) openKdbxFromFd(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args openFdArgs
	if err := decodeArgs(argsJSON, &args, "fd", "db_key"); err != nil {
		return nil, err
	}
	open, err := c.resolveOpenArgs(&args.openArgs)
	if err != nil {
		return nil, err
	}
	info := pipeline.SourceInfo{
		FileName: args.FileName,
		Size:     args.Size,
		Modified: args.LastModified,
		Location: args.Location,
	}
	if info.FileName == "" {
		info.FileName = c.state.FileNameFromDbKey(args.DbKey)
	}
	loaded, err := c.local.ReadKdbxFromFd(args.Fd, info, open)
	if err != nil {
		return nil, err
	}
	c.logActivity(ctx, args.DbKey, audit.EventUnlock, "")
	return &openReply{KdbxLoaded: loaded}, nil
}

type saveArgs struct {
	DbKey     string `json:"db_key"`
	Overwrite bool   `json:"overwrite"`
}

func (d *Dispatcher) saveKdbx(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args saveArgs
	if err := decodeArgs(argsJSON, &args, "db_key"); err != nil {
		return nil, err
	}

	var loaded *kdbx.KdbxLoaded
	if dbkey.IsRemote(args.DbKey) {
		loaded, err = c.engine.SaveKdbx(ctx, args.DbKey, args.Overwrite)
	} else {
		loaded, err = c.local.SaveKdbx(args.DbKey, args.Overwrite)
	}
	if err != nil {
		if errors.Is(err, common.ErrDbFileContentChangeDetected) {
			c.logActivity(ctx, args.DbKey, audit.EventSaveError, "content change detected")
		}
		return nil, err
	}
	event := audit.EventSave
	if dbkey.IsRemote(args.DbKey) {
		event = audit.EventRemoteWrite
	}
	c.logActivity(ctx, args.DbKey, event, "")
	return loaded, nil
}

type saveFdArgs struct {
	Fd int `json:"fd"`
	saveArgs
}

func (d *Dispatcher) saveKdbxToFd(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args saveFdArgs
	if err := decodeArgs(argsJSON, &args, "fd", "db_key"); err != nil {
		return nil, err
	}
	loaded, err := c.local.SaveKdbxToFd(args.Fd, args.DbKey, args.Overwrite)
	if err != nil {
		if errors.Is(err, common.ErrDbFileContentChangeDetected) {
			c.logActivity(ctx, args.DbKey, audit.EventSaveError, "content change detected")
		}
		return nil, err
	}
	c.logActivity(ctx, args.DbKey, audit.EventSave, "")
	return loaded, nil
}

func (d *Dispatcher) createKdbx(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args kdbx.NewDatabaseArgs
	if err := decodeArgs(argsJSON, &args, "db_key", "file_name", "database_name", "password"); err != nil {
		return nil, err
	}

	var loaded *kdbx.KdbxLoaded
	if dbkey.IsRemote(args.DbKey) {
		loaded, err = c.engine.CreateKdbx(ctx, args)
	} else {
		loaded, err = c.local.CreateKdbxAtPath(args)
	}
	if err != nil {
		return nil, err
	}
	c.logActivity(ctx, args.DbKey, audit.EventCreate, "")
	return loaded, nil
}

type createFdArgs struct {
	Fd int `json:"fd"`
	kdbx.NewDatabaseArgs
}

func (d *Dispatcher) createKdbxToFd(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args createFdArgs
	if err := decodeArgs(argsJSON, &args, "fd", "db_key", "file_name", "database_name", "password"); err != nil {
		return nil, err
	}
	loaded, err := c.local.CreateKdbxToFd(args.Fd, args.NewDatabaseArgs)
	if err != nil {
		return nil, err
	}
	c.logActivity(ctx, args.DbKey, audit.EventCreate, "")
	return loaded, nil
}

type saveAsArgs struct {
	OldDbKey string `json:"old_db_key"`
	NewDbKey string `json:"new_db_key"`
	FileName string `json:"file_name"`
}

func (d *Dispatcher) saveAsOnError(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args saveAsArgs
	if err := decodeArgs(argsJSON, &args, "old_db_key", "new_db_key", "file_name"); err != nil {
		return nil, err
	}
	loaded, err := c.local.SaveAsOnError(args.OldDbKey, args.NewDbKey, args.FileName)
	if err != nil {
		return nil, err
	}
	c.logActivity(ctx, args.NewDbKey, audit.EventSave, "save-as recovery")
	return loaded, nil
}

type saveAsFdArgs struct {
	Fd int `json:"fd"`
	saveAsArgs
}

func (d *Dispatcher) saveAsOnErrorToFd(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args saveAsFdArgs
	if err := decodeArgs(argsJSON, &args, "fd", "old_db_key", "new_db_key", "file_name"); err != nil {
		return nil, err
	}
	loaded, err := c.local.SaveAsOnErrorToFd(args.Fd, args.OldDbKey, args.NewDbKey, args.FileName)
	if err != nil {
		return nil, err
	}
	c.logActivity(ctx, args.NewDbKey, audit.EventSave, "save-as recovery")
	return loaded, nil
}

type dbKeyArgs struct {
	DbKey string `json:"db_key"`
}

func (d *Dispatcher) verifyDbFileChecksum(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args dbKeyArgs
	if err := decodeArgs(argsJSON, &args, "db_key"); err != nil {
		return nil, err
	}
	if err := c.local.VerifyDbFileChecksum(args.DbKey); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) closeKdbx(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args dbKeyArgs
	if err := decodeArgs(argsJSON, &args, "db_key"); err != nil {
		return nil, err
	}
	c.local.CloseKdbx(args.DbKey)
	c.tokens.Stop()
	return nil, nil
}

type uploadAttachmentArgs struct {
	Fd        int    `json:"fd"`
	DbKey     string `json:"db_key"`
	EntryUUID string `json:"entry_uuid"`
	Name      string `json:"name"`
}

func (d *Dispatcher) uploadAttachmentFromFd(_ context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args uploadAttachmentArgs
	if err := decodeArgs(argsJSON, &args, "fd", "db_key", "entry_uuid", "name"); err != nil {
		return nil, err
	}
	if err := c.local.UploadAttachmentFromFd(args.Fd, args.DbKey, args.EntryUUID, args.Name); err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	return nil, nil
}
