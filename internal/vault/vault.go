// Package vault stores per-database unlock credentials for biometric
// re-authentication, and the application-lock PIN. Records are encrypted by
// the platform secure enclave and persisted in the platform key store; the
// core never sees key material.
package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/okpass/mobilecore/internal/callback"
	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/cryptox"
	"github.com/okpass/mobilecore/internal/logging"
	"github.com/okpass/mobilecore/internal/preference"
)

// StoredCredential is the per-database record: the master password and/or
// the key-file reference. The key-file name is persisted as basename only;
// install-specific directory prefixes change across reinstalls.
type StoredCredential struct {
	Password    *string `json:"password,omitempty"`
	KeyFileName *string `json:"key_file_name,omitempty"`
}

// Vault wires the enclave and key-store callbacks with the current
// key-files root.
type Vault struct {
	enclave      callback.SecureEnclave
	keyStore     callback.SecureKeyStore
	keyFilesRoot func() string
	prefs        *preference.Store
	logger       logging.Logger
}

func New(enclave callback.SecureEnclave, keyStore callback.SecureKeyStore,
	keyFilesRoot func() string, prefs *preference.Store, logger logging.Logger) *Vault {
	return &Vault{
		enclave:      enclave,
		keyStore:     keyStore,
		keyFilesRoot: keyFilesRoot,
		prefs:        prefs,
		logger:       logger,
	}
}

func credentialStoreKey(dbKey string) string {
	return common.DbOpenKeyStorePrefix + cryptox.DbKeyHash(dbKey)
}

// StoreCredentials encrypts and persists the credential record of dbKey.
// When the key store reports a duplicate item, the stale record is deleted
// and the store retried.
func (v *Vault) StoreCredentials(dbKey string, password, keyFileName *string) error {
	record := StoredCredential{Password: password}
	if keyFileName != nil && *keyFileName != "" {
		base := filepath.Base(*keyFileName)
		record.KeyFileName = &base
	}

	plain, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	encrypted, err := v.enclave.EncryptBytes(common.DbOpenKeyTag, plain)
	common.WipeByteArray(plain)
	if err != nil {
		return fmt.Errorf("%w: enclave encrypt: %v", common.ErrSecureKeyOperation, err)
	}

	storeKey := credentialStoreKey(dbKey)
	value := base64.StdEncoding.EncodeToString(encrypted)

	err = v.keyStore.Store(storeKey, value)
	if errors.Is(err, common.ErrDuplicateKeyStoreItem) {
		if err := v.keyStore.Delete(storeKey); err != nil {
			return fmt.Errorf("%w: delete before re-store: %v", common.ErrSecureKeyOperation, err)
		}
		err = v.keyStore.Store(storeKey, value)
	}
	if err != nil {
		return fmt.Errorf("%w: key store: %v", common.ErrSecureKeyOperation, err)
	}
	return nil
}

// StoreCredentialsOnCheck stores the credentials only when biometric unlock
// is enabled for this database and the current unlock was not itself
// biometric-authenticated (in which case the stored record is already
// current). Failures are logged, not surfaced; credential caching must not
// fail an unlock.
func (v *Vault) StoreCredentialsOnCheck(dbKey string, password, keyFileName *string, biometricAuthUsed bool) {
	if biometricAuthUsed {
		return
	}

	pref := v.prefs.Get()
	recent, ok := pref.FindRecent(dbKey)
	if !ok || !recent.BiometricEnabled {
		return
	}

	if err := v.StoreCredentials(dbKey, password, keyFileName); err != nil {
		v.logger.Warn(context.Background(), "cannot store biometric credentials", "error", err)
	}
}

// GetCredentials decrypts the record of dbKey and rebuilds the key-file
// path against the current key-files root.
func (v *Vault) GetCredentials(dbKey string) (*StoredCredential, error) {
	value, err := v.keyStore.Get(credentialStoreKey(dbKey))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: key store get: %v", common.ErrSecureKeyOperation, err)
	}

	encrypted, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: stored credential is not base64: %v", common.ErrSecureKeyOperation, err)
	}

	plain, err := v.enclave.DecryptBytes(common.DbOpenKeyTag, encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: enclave decrypt: %v", common.ErrSecureKeyOperation, err)
	}

	var record StoredCredential
	err = json.Unmarshal(plain, &record)
	common.WipeByteArray(plain)
	if err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}

	if record.KeyFileName != nil && *record.KeyFileName != "" {
		full := filepath.Join(v.keyFilesRoot(), filepath.Base(*record.KeyFileName))
		record.KeyFileName = &full
	}
	return &record, nil
}

// RemoveCredentials deletes the record of dbKey. A missing record is not an
// error.
func (v *Vault) RemoveCredentials(dbKey string) error {
	err := v.keyStore.Delete(credentialStoreKey(dbKey))
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("%w: key store delete: %v", common.ErrSecureKeyOperation, err)
	}
	return nil
}
