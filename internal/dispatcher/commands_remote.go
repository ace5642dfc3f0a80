package dispatcher

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/remote"
)

type connectReply struct {
	ConnectionID string                 `json:"connection_id"`
	Listing      *remote.ServerDirEntry `json:"listing"`
}

func (d *Dispatcher) rsConnectAndListRoot(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var cfg remote.ConnectionConfig
	if err := decodeArgs(argsJSON, &cfg, "type", "config"); err != nil {
		return nil, err
	}
	id, listing, err := c.engine.ConnectAndListRoot(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	return &connectReply{ConnectionID: id.String(), Listing: listing}, nil
}

type connectionIDArgs struct {
	ConnectionID string `json:"connection_id"`
}

func (a *connectionIDArgs) id() (uuid.UUID, error) {
	id, err := uuid.Parse(a.ConnectionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad connection id: %v", common.ErrInvalidArgument, err)
	}
	return id, nil
}

func (d *Dispatcher) rsConnectByIDAndListRoot(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args connectionIDArgs
	if err := decodeArgs(argsJSON, &args, "connection_id"); err != nil {
		return nil, err
	}
	id, err := args.id()
	if err != nil {
		return nil, err
	}
	return c.engine.ConnectByIDAndListRoot(ctx, id)
}

func (d *Dispatcher) rsConnectByID(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args connectionIDArgs
	if err := decodeArgs(argsJSON, &args, "connection_id"); err != nil {
		return nil, err
	}
	id, err := args.id()
	if err != nil {
		return nil, err
	}
	return nil, c.engine.ConnectByID(ctx, id)
}

type listDirArgs struct {
	connectionIDArgs
	Dir    string `json:"dir"`
	SubDir string `json:"sub_dir"`
}

func (d *Dispatcher) rsListDir(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args listDirArgs
	if err := decodeArgs(argsJSON, &args, "connection_id", "dir"); err != nil {
		return nil, err
	}
	id, err := args.id()
	if err != nil {
		return nil, err
	}
	return c.engine.ListDir(ctx, id, args.Dir)
}

func (d *Dispatcher) rsListSubDir(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args listDirArgs
	if err := decodeArgs(argsJSON, &args, "connection_id", "dir", "sub_dir"); err != nil {
		return nil, err
	}
	id, err := args.id()
	if err != nil {
		return nil, err
	}
	return c.engine.ListSubDir(ctx, id, args.Dir, args.SubDir)
}

func (d *Dispatcher) rsFileMetadata(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args dbKeyArgs
	if err := decodeArgs(argsJSON, &args, "db_key"); err != nil {
		return nil, err
	}
	return c.engine.FileMetadata(ctx, args.DbKey)
}

func (d *Dispatcher) isRsFileModified(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args dbKeyArgs
	if err := decodeArgs(argsJSON, &args, "db_key"); err != nil {
		return nil, err
	}
	return c.engine.IsRsFileModified(ctx, args.DbKey)
}

func (d *Dispatcher) rsListConfigs(_ context.Context, _ string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	configs, err := c.engine.ListConfigs()
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (d *Dispatcher) rsDeleteConfig(ctx context.Context, argsJSON string) (any, error) {
	c, err := d.components()
	if err != nil {
		return nil, err
	}
	var args connectionIDArgs
	if err := decodeArgs(argsJSON, &args, "connection_id"); err != nil {
		return nil, err
	}
	id, err := args.id()
	if err != nil {
		return nil, err
	}
	return nil, c.engine.DeleteConfig(ctx, id)
}
