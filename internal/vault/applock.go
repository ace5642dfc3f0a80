package vault

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okpass/mobilecore/internal/common"
)

// The app-lock PIN is kept separately from database credentials: the record
// is JSON-serialized, encrypted under its own enclave tag and stored in the
// key store under that same tag.

type pinRecord struct {
	Pin int `json:"pin"`
}

// StoreAppLockPin persists pin. An existing record is replaced.
func (v *Vault) StoreAppLockPin(pin int) error {
	if pin <= 0 {
		return fmt.Errorf("%w: pin must be a positive number", common.ErrInvalidArgument)
	}

	plain, err := json.Marshal(pinRecord{Pin: pin})
	if err != nil {
		return fmt.Errorf("marshal pin: %w", err)
	}

	encrypted, err := v.enclave.EncryptBytes(common.AppLockPinKeyTag, plain)
	common.WipeByteArray(plain)
	if err != nil {
		return fmt.Errorf("%w: enclave encrypt: %v", common.ErrSecureKeyOperation, err)
	}

	value := base64.StdEncoding.EncodeToString(encrypted)
	err = v.keyStore.Store(common.AppLockPinKeyTag, value)
	if errors.Is(err, common.ErrDuplicateKeyStoreItem) {
		if err := v.keyStore.Delete(common.AppLockPinKeyTag); err != nil {
			return fmt.Errorf("%w: delete before re-store: %v", common.ErrSecureKeyOperation, err)
		}
		err = v.keyStore.Store(common.AppLockPinKeyTag, value)
	}
	if err != nil {
		return fmt.Errorf("%w: key store: %v", common.ErrSecureKeyOperation, err)
	}
	return nil
}

// VerifyAppLockPin compares a freshly serialized candidate with the
// decrypted stored record.
func (v *Vault) VerifyAppLockPin(candidate int) (bool, error) {
	value, err := v.keyStore.Get(common.AppLockPinKeyTag)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("%w: key store get: %v", common.ErrSecureKeyOperation, err)
	}

	encrypted, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return false, fmt.Errorf("%w: stored pin is not base64: %v", common.ErrSecureKeyOperation, err)
	}

	stored, err := v.enclave.DecryptBytes(common.AppLockPinKeyTag, encrypted)
	if err != nil {
		return false, fmt.Errorf("%w: enclave decrypt: %v", common.ErrSecureKeyOperation, err)
	}

	fresh, err := json.Marshal(pinRecord{Pin: candidate})
	if err != nil {
		return false, fmt.Errorf("marshal pin: %w", err)
	}

	match := bytes.Equal(stored, fresh)
	common.WipeByteArray(stored)
	common.WipeByteArray(fresh)
	return match, nil
}

// RemoveAppLockPin deletes the stored PIN record.
func (v *Vault) RemoveAppLockPin() error {
	err := v.keyStore.Delete(common.AppLockPinKeyTag)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("%w: key store delete: %v", common.ErrSecureKeyOperation, err)
	}
	return nil
}
