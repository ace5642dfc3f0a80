package remote

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/okpass/mobilecore/internal/callback"
	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/logging"
)

// ConfigFileName is the encrypted connection list under the remote
// storage root.
const ConfigFileName = "rs_storage_configs.enc"

// ConfigStore persists the connection config list as a single JSON
// document encrypted through the secure-enclave callback.
type ConfigStore struct {
	mu      sync.Mutex
	enclave callback.SecureEnclave
	path    string
	logger  logging.Logger
}

func NewConfigStore(enclave callback.SecureEnclave, remoteStorageRoot string, logger logging.Logger) *ConfigStore {
	return &ConfigStore{
		enclave: enclave,
		path:    filepath.Join(remoteStorageRoot, ConfigFileName),
		logger:  logger,
	}
}

func (s *ConfigStore) loadLocked() ([]ConnectionConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config list: %w", err)
	}
	plain, err := s.enclave.DecryptBytes(common.RemoteStorageKeyTag, data)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt config list: %v", common.ErrSecureKeyOperation, err)
	}
	var configs []ConnectionConfig
	if err := json.Unmarshal(plain, &configs); err != nil {
		return nil, fmt.Errorf("decode config list: %w", err)
	}
	return configs, nil
}

func (s *ConfigStore) saveLocked(configs []ConnectionConfig) error {
	plain, err := json.Marshal(configs)
	if err != nil {
		return fmt.Errorf("encode config list: %w", err)
	}
	enc, err := s.enclave.EncryptBytes(common.RemoteStorageKeyTag, plain)
	if err != nil {
		return fmt.Errorf("%w: encrypt config list: %v", common.ErrSecureKeyOperation, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, enc, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// List returns all stored configs; a missing file is an empty list.
func (s *ConfigStore) List() ([]ConnectionConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Find returns the config with the given connection id.
func (s *ConfigStore) Find(id uuid.UUID) (*ConnectionConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if cid := configs[i].ID(); cid != nil && *cid == id {
			return &configs[i], nil
		}
	}
	return nil, common.ErrNoRemoteStorageConfig
}

// Upsert stores cfg, assigning a fresh connection id when it has none,
// and replacing any existing entry with the same id.
func (s *ConfigStore) Upsert(cfg *ConnectionConfig) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := cfg.ID()
	if id == nil {
		newID := uuid.New()
		cfg.setID(newID)
		id = &newID
	}

	configs, err := s.loadLocked()
	if err != nil {
		return uuid.Nil, err
	}
	replaced := false
	for i := range configs {
		if cid := configs[i].ID(); cid != nil && *cid == *id {
			configs[i] = *cfg
			replaced = true
			break
		}
	}
	if !replaced {
		configs = append(configs, *cfg)
	}
	if err := s.saveLocked(configs); err != nil {
		return uuid.Nil, err
	}
	return *id, nil
}

// Delete removes the config with the given id; missing ids are ignored.
func (s *ConfigStore) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs, err := s.loadLocked()
	if err != nil {
		return err
	}
	kept := configs[:0]
	for _, c := range configs {
		if cid := c.ID(); cid != nil && *cid == id {
			continue
		}
		kept = append(kept, c)
	}
	return s.saveLocked(kept)
}
