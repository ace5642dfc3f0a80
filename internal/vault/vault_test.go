package vault

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/cryptox"
	"github.com/okpass/mobilecore/internal/logging"
	"github.com/okpass/mobilecore/internal/preference"
)

// fakeEnclave encrypts with an AES key derived per tag; good enough to
// verify that records survive an encrypt/decrypt round trip and that tags
// are honored.
type fakeEnclave struct{}

func (fakeEnclave) key(tag string) []byte {
	return cryptox.DeriveKey([]byte(tag), []byte("test-enclave-salt"))
}

func (f fakeEnclave) EncryptBytes(tag string, data []byte) ([]byte, error) {
	return cryptox.EncryptBytes(data, f.key(tag))
}

func (f fakeEnclave) DecryptBytes(tag string, data []byte) ([]byte, error) {
	return cryptox.DecryptBytes(data, f.key(tag))
}

// fakeKeyStore mimics the platform keychain, including the duplicate-item
// error on re-store.
type fakeKeyStore struct {
	items map[string]string
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{items: map[string]string{}}
}

func (k *fakeKeyStore) Store(key, value string) error {
	if _, ok := k.items[key]; ok {
		return common.ErrDuplicateKeyStoreItem
	}
	k.items[key] = value
	return nil
}

func (k *fakeKeyStore) Get(key string) (string, error) {
	value, ok := k.items[key]
	if !ok {
		return "", common.ErrNotFound
	}
	return value, nil
}

func (k *fakeKeyStore) Delete(key string) error {
	delete(k.items, key)
	return nil
}

type vaultFixture struct {
	vault        *Vault
	keyStore     *fakeKeyStore
	prefs        *preference.Store
	keyFilesRoot string
}

func newFixture(t *testing.T) *vaultFixture {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	prefs := preference.Load(t.TempDir(), logger)
	f := &vaultFixture{
		keyStore:     newFakeKeyStore(),
		prefs:        prefs,
		keyFilesRoot: "/install-uuid-1/key_files",
	}
	f.vault = New(fakeEnclave{}, f.keyStore, func() string { return f.keyFilesRoot }, prefs, logger)
	return f
}

const dbKey = "file:///docs/X.kdbx"

func strPtr(s string) *string { return &s }

func TestStoreAndGetCredentials_RoundTrip(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.vault.StoreCredentials(dbKey, strPtr("master-pw"), strPtr("k.keyx")))

	got, err := f.vault.GetCredentials(dbKey)
	require.NoError(t, err)
	require.NotNil(t, got.Password)
	assert.Equal(t, "master-pw", *got.Password)
	require.NotNil(t, got.KeyFileName)
	assert.Equal(t, filepath.Join(f.keyFilesRoot, "k.keyx"), *got.KeyFileName)
}

func TestStoreCredentials_StripsDirectoryPrefix(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.vault.StoreCredentials(dbKey, nil,
		strPtr("/install-uuid-1/key_files/k.keyx")))

	// simulate a reinstall: the key-files root moved
	f.keyFilesRoot = "/install-uuid-2/key_files"

	got, err := f.vault.GetCredentials(dbKey)
	require.NoError(t, err)
	require.NotNil(t, got.KeyFileName)
	assert.Equal(t, "/install-uuid-2/key_files/k.keyx", *got.KeyFileName)
	assert.Nil(t, got.Password)
}

func TestStoreCredentials_DuplicateItemRecovery(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.vault.StoreCredentials(dbKey, strPtr("old"), nil))
	require.NoError(t, f.vault.StoreCredentials(dbKey, strPtr("new"), nil))

	got, err := f.vault.GetCredentials(dbKey)
	require.NoError(t, err)
	assert.Equal(t, "new", *got.Password)
}

func TestGetCredentials_NotStored(t *testing.T) {
	f := newFixture(t)
	_, err := f.vault.GetCredentials(dbKey)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRemoveCredentials(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.vault.StoreCredentials(dbKey, strPtr("pw"), nil))

	require.NoError(t, f.vault.RemoveCredentials(dbKey))
	_, err := f.vault.GetCredentials(dbKey)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// removing again is fine
	require.NoError(t, f.vault.RemoveCredentials(dbKey))
}

func TestStoreCredentialsOnCheck(t *testing.T) {
	f := newFixture(t)

	// not in recent list yet: nothing stored
	f.vault.StoreCredentialsOnCheck(dbKey, strPtr("pw"), nil, false)
	_, err := f.vault.GetCredentials(dbKey)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, f.prefs.Update(func(p *preference.Preference) {
		p.AddRecent(preference.RecentlyUsed{FileName: "X.kdbx", DbFilePath: dbKey, BiometricEnabled: true})
	}))

	// biometric unlock adds nothing new
	f.vault.StoreCredentialsOnCheck(dbKey, strPtr("pw"), nil, true)
	_, err = f.vault.GetCredentials(dbKey)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// manual unlock with biometric enabled stores the record
	f.vault.StoreCredentialsOnCheck(dbKey, strPtr("pw"), nil, false)
	got, err := f.vault.GetCredentials(dbKey)
	require.NoError(t, err)
	assert.Equal(t, "pw", *got.Password)
}

func TestAppLockPin_StoreVerifyRemove(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.vault.StoreAppLockPin(4321))

	ok, err := f.vault.VerifyAppLockPin(4321)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.vault.VerifyAppLockPin(1111)
	require.NoError(t, err)
	assert.False(t, ok)

	// replacing goes through the delete-then-store path
	require.NoError(t, f.vault.StoreAppLockPin(9999))
	ok, err = f.vault.VerifyAppLockPin(9999)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.vault.RemoveAppLockPin())
	_, err = f.vault.VerifyAppLockPin(9999)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAppLockPin_RejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.vault.StoreAppLockPin(0), common.ErrInvalidArgument)
	assert.ErrorIs(t, f.vault.StoreAppLockPin(-5), common.ErrInvalidArgument)
}
