// Package callback declares the interfaces the platform shells implement
// and inject into the core at startup: device directories, URI resolution,
// secure-enclave encryption, the platform key store, clipboard access and
// event dispatch.
//
// The registered service set is a process-wide singleton. Registration is
// set-once; a second registration is refused with a recoverable error.
package callback

import "time"

// DeviceDirs carries the platform directory roots resolved by the shell.
// AppGroupHome is set only on platforms with an app-group shared container
// (iOS); it is empty elsewhere.
type DeviceDirs struct {
	AppHome      string
	CacheDir     string
	TempDir      string
	AppGroupHome string
}

// FileInfo describes a platform file referenced by URI.
type FileInfo struct {
	FileName     string `json:"file_name"`
	Size         *int64 `json:"file_size"`
	LastModified *int64 `json:"last_modified"` // ms since epoch
	Location     string `json:"location"`
}

// FileInfoProvider resolves platform URIs (file scheme or content scheme)
// to display names and metadata.
type FileInfoProvider interface {
	UriToFileName(uri string) (string, error)
	UriToFileInfo(uri string) (*FileInfo, error)
}

// SecureEnclave encrypts and decrypts opaque byte blobs under a
// hardware-backed key identified by tag.
type SecureEnclave interface {
	EncryptBytes(tag string, data []byte) ([]byte, error)
	DecryptBytes(tag string, data []byte) ([]byte, error)
}

// SecureKeyStore is the platform keychain/keystore. Store must return
// common.ErrDuplicateKeyStoreItem when an item already exists under key,
// and Get must return common.ErrNotFound when there is none.
type SecureKeyStore interface {
	Store(key string, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// Clipboard copies text to the system clipboard. Protected fields are
// flagged so the platform can exclude them from clipboard history; a
// non-zero cleanupAfter schedules an automatic clear.
type Clipboard interface {
	Copy(text string, protected bool, cleanupAfter time.Duration) error
}

// EventDispatcher pushes JSON-encoded events back to the shell.
type EventDispatcher interface {
	SendOtpUpdate(jsonPayload string)
	SendTick(jsonPayload string)
}

// Services bundles every callback the shell installs.
type Services struct {
	FileInfo FileInfoProvider
	Enclave  SecureEnclave
	KeyStore SecureKeyStore
	Clip     Clipboard
	Events   EventDispatcher
}
