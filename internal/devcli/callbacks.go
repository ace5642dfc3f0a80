package devcli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okpass/mobilecore/internal/callback"
	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/cryptox"
)

// devEnclave stands in for the hardware enclave on a workstation: keys
// are derived from a passphrase per tag. Development use only.
type devEnclave struct {
	passphrase []byte
}

func (e *devEnclave) keyFor(tag string) []byte {
	return cryptox.DeriveKey(e.passphrase, []byte(tag))
}

func (e *devEnclave) EncryptBytes(tag string, data []byte) ([]byte, error) {
	return cryptox.EncryptBytes(data, e.keyFor(tag))
}

func (e *devEnclave) DecryptBytes(tag string, data []byte) ([]byte, error) {
	return cryptox.DecryptBytes(data, e.keyFor(tag))
}

// devKeyStore persists items as a JSON file under the dev home. The
// values it holds are already enclave-encrypted by the callers.
type devKeyStore struct {
	mu   sync.Mutex
	path string
}

func newDevKeyStore(home string) *devKeyStore {
	return &devKeyStore{path: filepath.Join(home, "keystore.json")}
}

func (k *devKeyStore) load() (map[string]string, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	items := map[string]string{}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (k *devKeyStore) save(items map[string]string) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return os.WriteFile(k.path, data, 0o600)
}

func (k *devKeyStore) Store(key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	items, err := k.load()
	if err != nil {
		return err
	}
	if _, ok := items[key]; ok {
		return common.ErrDuplicateKeyStoreItem
	}
	items[key] = value
	return k.save(items)
}

func (k *devKeyStore) Get(key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	items, err := k.load()
	if err != nil {
		return "", err
	}
	value, ok := items[key]
	if !ok {
		return "", common.ErrNotFound
	}
	return value, nil
}

func (k *devKeyStore) Delete(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	items, err := k.load()
	if err != nil {
		return err
	}
	delete(items, key)
	return k.save(items)
}

// devEvents prints pushed events to stdout.
type devEvents struct{}

func (devEvents) SendOtpUpdate(payload string) { fmt.Printf("[otp] %s\n", payload) }
func (devEvents) SendTick(payload string)      { fmt.Printf("[tick] %s\n", payload) }

// devClipboard prints instead of touching the system clipboard.
type devClipboard struct{}

func (devClipboard) Copy(text string, protected bool, _ time.Duration) error {
	if protected {
		fmt.Println("[clipboard] (protected value copied)")
		return nil
	}
	fmt.Printf("[clipboard] %s\n", text)
	return nil
}

// registerDevCallbacks installs the workstation callbacks.
func registerDevCallbacks(home, passphrase string) error {
	return callback.Register(callback.Services{
		Enclave:  &devEnclave{passphrase: []byte(passphrase)},
		KeyStore: newDevKeyStore(home),
		Clip:     devClipboard{},
		Events:   devEvents{},
	})
}
