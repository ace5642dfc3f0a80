// Package cryptox provides the hashing and symmetric-encryption helpers the
// service layer needs: content checksums, db_key hashing for on-disk
// namespaces, and AES-GCM with an Argon2id-derived key for the development
// secure-enclave stand-in.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
)

// Sha256Hex returns the lower-case hex SHA-256 of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ReaderSha256Hex computes the SHA-256 of everything readable from r.
func ReaderSha256Hex(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("checksum read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileSha256Hex computes the SHA-256 of the file at path.
func FileSha256Hex(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum open %s: %w", path, err)
	}
	defer f.Close()
	return ReaderSha256Hex(f)
}

// DbKeyHash maps a db_key to the stable identifier used for the backup
// history directory and the key-store entry of that database.
func DbKeyHash(dbKey string) string {
	return Sha256Hex([]byte(dbKey))
}

// DeriveKey derives a 32-byte AES key from a password and salt with
// Argon2id.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// EncryptBytes encrypts plaintext with AES-GCM under key. A fresh nonce is
// generated per call and prepended to the returned ciphertext.
//
// The key must be a valid AES key length (16, 24 or 32 bytes).
func EncryptBytes(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return append(nonce, aesgcm.Seal(nil, nonce, plaintext, nil)...), nil
}

// DecryptBytes reverses EncryptBytes: it splits the leading nonce off data
// and opens the remainder with AES-GCM under key.
func DecryptBytes(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(data) < aesgcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce, ciphertext := data[:aesgcm.NonceSize()], data[aesgcm.NonceSize():]
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}
