// Package dispatcher is the single entry point the platform shells call:
// a string command name plus a JSON argument document in, a JSON reply of
// shape {"ok": ...} or {"error": "..."} out. Handlers are thin glue over
// the pipelines, the remote engine and the vault.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/okpass/mobilecore/internal/appstate"
	"github.com/okpass/mobilecore/internal/audit"
	"github.com/okpass/mobilecore/internal/backup"
	"github.com/okpass/mobilecore/internal/callback"
	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/export"
	"github.com/okpass/mobilecore/internal/kdbx"
	"github.com/okpass/mobilecore/internal/keyfiles"
	"github.com/okpass/mobilecore/internal/logging"
	"github.com/okpass/mobilecore/internal/otp"
	"github.com/okpass/mobilecore/internal/pipeline"
	"github.com/okpass/mobilecore/internal/remote"
	"github.com/okpass/mobilecore/internal/vault"
)

// handler runs one command. Handlers return the value serialized under
// "ok", or an error serialized under "error".
type handler func(ctx context.Context, argsJSON string) (any, error)

// Dispatcher owns the wired component graph. It starts empty; the
// "initialize" command builds the graph from the registered callbacks and
// the device directories the shell passes.
type Dispatcher struct {
	mu       sync.Mutex
	logger   logging.Logger
	logSink  logging.PlatformLogger
	state    *appstate.AppState
	codec    *kdbx.Service
	backups  *backup.Manager
	creds    *vault.Vault
	local    *pipeline.Pipeline
	engine   *remote.Engine
	keyFiles *keyfiles.Manager
	exports  *export.Service
	tokens   *otp.TokenService
	activity *audit.Service
	commands map[string]handler
}

// New returns an uninitialized dispatcher. logSink may be nil when the
// shell does not collect core logs.
func New(logSink logging.PlatformLogger) *Dispatcher {
	d := &Dispatcher{
		logger:  logging.Default(),
		logSink: logSink,
	}
	d.commands = d.commandTable()
	return d
}

// Invoke runs the named command and returns its JSON reply. It never
// panics across the boundary and never returns anything but the two reply
// shapes.
func (d *Dispatcher) Invoke(name, argsJSON string) string {
	cmd, ok := d.commands[name]
	if !ok {
		return errReply(fmt.Errorf("%w: unknown command %q", common.ErrInvalidCommand, name))
	}

	ctx := context.Background()
	value, err := cmd(ctx, argsJSON)
	if err != nil {
		d.logger.Warn(ctx, "command failed", "command", name, "error", err)
		return errReply(err)
	}
	return okReply(value)
}

func okReply(value any) string {
	if value == nil {
		value = struct{}{}
	}
	data, err := json.Marshal(map[string]any{"ok": value})
	if err != nil {
		return errReply(fmt.Errorf("encode reply: %w", err))
	}
	return string(data)
}

func errReply(err error) string {
	data, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return `{"error":"internal error"}`
	}
	return string(data)
}

// decodeArgs unmarshals argsJSON into out after checking that every
// required field is present. Missing fields are an argument error, which
// lets variant decoding try the next, more general shape.
func decodeArgs(argsJSON string, out any, required ...string) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(argsJSON), &probe); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidArgument, err)
	}
	for _, field := range required {
		if _, ok := probe[field]; !ok {
			return fmt.Errorf("%w: missing field %q", common.ErrInvalidArgument, field)
		}
	}
	if err := json.Unmarshal([]byte(argsJSON), out); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidArgument, err)
	}
	return nil
}

// components returns the wired graph, or ErrNotInitialized before the
// initialize command has run.
func (d *Dispatcher) components() (*Dispatcher, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == nil {
		return nil, common.ErrNotInitialized
	}
	return d, nil
}

type initArgs struct {
	AppHome      string `json:"app_home"`
	CacheDir     string `json:"cache_dir"`
	TempDir      string `json:"temp_dir"`
	AppGroupHome string `json:"app_group_home"`
	ActivityLog  bool   `json:"activity_log"`
}

// initialize builds the component graph. A second call is refused with a
// recoverable error; the shell treats it as "already running".
func (d *Dispatcher) initialize(ctx context.Context, argsJSON string) (any, error) {
	var args initArgs
	if err := decodeArgs(argsJSON, &args, "app_home", "cache_dir", "temp_dir"); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != nil {
		return nil, common.ErrAlreadyInitialized
	}

	services, err := callback.Current()
	if err != nil {
		return nil, fmt.Errorf("no platform callbacks registered: %w", err)
	}

	state, err := appstate.Init(callback.DeviceDirs{
		AppHome:      args.AppHome,
		CacheDir:     args.CacheDir,
		TempDir:      args.TempDir,
		AppGroupHome: args.AppGroupHome,
	}, services, d.logger)
	if err != nil {
		return nil, err
	}

	d.state = state
	d.codec = kdbx.NewService()
	d.backups = backup.NewManager(state.BackupHistoryRoot(), d.logger)
	d.creds = vault.New(services.Enclave, services.KeyStore, state.KeyFilesRoot, state.Prefs(), d.logger)
	d.local = pipeline.New(state, d.codec, d.backups, d.creds, d.logger)

	configs := remote.NewConfigStore(services.Enclave, state.RemoteStorageRoot(), d.logger)
	registry := remote.NewRegistry(configs, state.SftpRoot, state.TempDir, d.logger)
	d.engine = remote.NewEngine(state, d.codec, d.backups, d.local, registry, remote.NewRuntime(0), d.logger)

	d.keyFiles = keyfiles.NewManager(state.KeyFilesRoot, d.logger)
	d.exports = export.NewService(state, d.backups, d.logger)
	d.tokens = otp.NewTokenService(services.Events, d.logger)

	if args.ActivityLog {
		db, err := audit.InitDatabase(ctx, filepath.Join(state.AppHome(), "activity.db"))
		if err != nil {
			// the log is an extra; its absence must not block startup
			d.logger.Warn(ctx, "cannot open activity log", "error", err)
		} else {
			d.activity = audit.NewService(db, d.logger)
		}
	}
	return nil, nil
}

type enableLoggingArgs struct {
	Verbose bool `json:"verbose"`
}

func (d *Dispatcher) enableLogging(_ context.Context, argsJSON string) (any, error) {
	var args enableLoggingArgs
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	if d.logSink == nil {
		return nil, fmt.Errorf("%w: no platform log sink", common.ErrInvalidArgument)
	}
	logging.EnablePlatformLogging(d.logSink, args.Verbose)
	d.logger = logging.Default()
	return nil, nil
}

// logActivity appends to the activity log when it is enabled.
func (d *Dispatcher) logActivity(ctx context.Context, dbKey string, event audit.Event, detail string) {
	if d.activity != nil {
		d.activity.Log(ctx, dbKey, event, detail)
	}
}
