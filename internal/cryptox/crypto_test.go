package cryptox

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSha256Hex_KnownVector(t *testing.T) {
	// SHA-256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		Sha256Hex([]byte("abc")))
}

func TestFileSha256Hex_MatchesInMemoryHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	content := []byte("some database bytes")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	fromFile, err := FileSha256Hex(path)
	require.NoError(t, err)
	assert.Equal(t, Sha256Hex(content), fromFile)

	fromReader, err := ReaderSha256Hex(bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, fromFile, fromReader)
}

func TestFileSha256Hex_MissingFile(t *testing.T) {
	_, err := FileSha256Hex(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestDbKeyHash_StableAndDistinct(t *testing.T) {
	a := DbKeyHash("file:///docs/A.kdbx")
	b := DbKeyHash("file:///docs/B.kdbx")

	assert.Equal(t, a, DbKeyHash("file:///docs/A.kdbx"))
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}

func TestEncryptDecryptBytes_RoundTrip(t *testing.T) {
	key := DeriveKey([]byte("master"), []byte("salt-salt-salt-1"))
	plaintext := []byte(`{"password":"secret","key_file_name":"k.keyx"}`)

	ciphertext, err := EncryptBytes(plaintext, key)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := DecryptBytes(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptBytes_WrongKeyFails(t *testing.T) {
	key := DeriveKey([]byte("master"), []byte("salt-salt-salt-1"))
	other := DeriveKey([]byte("master"), []byte("salt-salt-salt-2"))

	ciphertext, err := EncryptBytes([]byte("payload"), key)
	require.NoError(t, err)

	_, err = DecryptBytes(ciphertext, other)
	require.Error(t, err)
}

func TestDecryptBytes_TruncatedCiphertext(t *testing.T) {
	key := DeriveKey([]byte("master"), []byte("salt-salt-salt-1"))
	_, err := DecryptBytes([]byte{1, 2, 3}, key)
	require.Error(t, err)
}
