package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/dbkey"
	"github.com/okpass/mobilecore/internal/filex"
	"github.com/okpass/mobilecore/internal/logging"
)

// Registry owns the live sessions, keyed by connection id. Sessions are
// opened on first use and kept for the process lifetime; a missing
// session is rebuilt from the stored config.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Transport
	configs  *ConfigStore
	sftpRoot func() string
	tempDir  func() string
	logger   logging.Logger
}

func NewRegistry(configs *ConfigStore, sftpRoot, tempDir func() string, logger logging.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]Transport),
		configs:  configs,
		sftpRoot: sftpRoot,
		tempDir:  tempDir,
		logger:   logger,
	}
}

// keyFileDir is where a connection's private key lives after first connect.
func (r *Registry) keyFileDir(id uuid.UUID) string {
	return filepath.Join(r.sftpRoot(), id.String())
}

// persistKeyFile moves the staged private key under the connection's key
// directory and returns its new path. Losing the key would break every
// reconnect after a restart, so failures abort the connect.
func (r *Registry) persistKeyFile(id uuid.UUID, keyFilePath string) (string, error) {
	dir := r.keyFileDir(id)
	if err := filex.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("keep private key for connection %s: %w", id, err)
	}
	dst := filepath.Join(dir, filepath.Base(keyFilePath))
	if _, err := filex.CopyFile(keyFilePath, dst); err != nil {
		return "", fmt.Errorf("keep private key for connection %s: %w", id, err)
	}
	return dst, nil
}

// dial opens a transport for cfg. keyFilePath is the resolved private-key
// location for SFTP, empty otherwise.
func dial(cfg *ConnectionConfig, keyFilePath string) (Transport, error) {
	switch cfg.Type {
	case dbkey.SchemeSftp:
		return dialSftp(cfg.Sftp, keyFilePath)
	case dbkey.SchemeWebdav:
		return dialWebdav(cfg.Webdav)
	default:
		return nil, fmt.Errorf("%w: unknown storage type %q", common.ErrInvalidArgument, cfg.Type)
	}
}

// Connect opens a session from a full config, persists the config and
// stores the session under its connection id. A referenced SFTP private
// key is picked up from the temp directory and moved under
// sftp/<connection-id>/.
func (r *Registry) Connect(ctx context.Context, cfg *ConnectionConfig) (uuid.UUID, Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keyFilePath := ""
	if cfg.Type == dbkey.SchemeSftp && cfg.Sftp != nil && cfg.Sftp.PrivateKeyFileName != nil && *cfg.Sftp.PrivateKeyFileName != "" {
		name := filepath.Base(*cfg.Sftp.PrivateKeyFileName)
		keyFilePath = filepath.Join(r.tempDir(), name)
		cfg.Sftp.PrivateKeyFileName = &name
	}

	session, err := dial(cfg, keyFilePath)
	if err != nil {
		return uuid.Nil, nil, err
	}

	id, err := r.configs.Upsert(cfg)
	if err != nil {
		session.Close()
		return uuid.Nil, nil, err
	}

	if keyFilePath != "" {
		if _, err := r.persistKeyFile(id, keyFilePath); err != nil {
			session.Close()
			return uuid.Nil, nil, err
		}
	}

	if old, ok := r.sessions[id]; ok {
		old.Close()
	}
	r.sessions[id] = session
	return id, session, nil
}

// ConnectByID returns the live session for id, reconnecting from the
// stored config when none exists.
func (r *Registry) ConnectByID(ctx context.Context, id uuid.UUID) (Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[id]; ok {
		return session, nil
	}

	cfg, err := r.configs.Find(id)
	if err != nil {
		return nil, err
	}

	keyFilePath := ""
	if cfg.Type == dbkey.SchemeSftp && cfg.Sftp != nil && cfg.Sftp.PrivateKeyFileName != nil && *cfg.Sftp.PrivateKeyFileName != "" {
		keyFilePath = filepath.Join(r.keyFileDir(id), *cfg.Sftp.PrivateKeyFileName)
	}

	session, err := dial(cfg, keyFilePath)
	if err != nil {
		return nil, err
	}
	r.logger.Info(ctx, "remote session opened", "connection_id", id, "type", cfg.Type)
	r.sessions[id] = session
	return session, nil
}

// Drop closes and forgets the live session for id, if any.
func (r *Registry) Drop(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		session.Close()
		delete(r.sessions, id)
	}
}

// StoredConfig returns the persisted config for id.
func (r *Registry) StoredConfig(id uuid.UUID) (*ConnectionConfig, error) {
	return r.configs.Find(id)
}

// ListConfigs returns all persisted configs.
func (r *Registry) ListConfigs() ([]ConnectionConfig, error) {
	return r.configs.List()
}

// DeleteConfig closes any live session for id and removes its config and
// key-file directory.
func (r *Registry) DeleteConfig(ctx context.Context, id uuid.UUID) error {
	r.Drop(id)
	if err := r.configs.Delete(id); err != nil {
		return err
	}
	if err := os.RemoveAll(r.keyFileDir(id)); err != nil {
		r.logger.Error(ctx, "remove connection key files", "connection_id", id, "error", err)
	}
	return nil
}
