// Package common defines shared constants and sentinel errors used across
// the service-layer packages. Callers should use errors.Is to match these
// values; user-facing messages are composed at the command boundary.
package common

import "errors"

var (
	// Lookup errors.
	ErrNotFound              = errors.New("not found")
	ErrNoRemoteStorageConfig = errors.New("no remote storage configuration found")
	ErrNoBackupOnError       = errors.New("no backup found from the failed save call")

	// Parse errors (malformed db_key, malformed JSON args, unknown command).
	ErrInvalidDbKey    = errors.New("invalid db key")
	ErrInvalidCommand  = errors.New("unknown command")
	ErrInvalidArgument = errors.New("invalid command argument")

	// Save-time conflict: the on-disk or remote content changed since load.
	ErrDbFileContentChangeDetected = errors.New("database file content has changed since last opened")

	// Authentication errors.
	ErrAuthenticationFailed       = errors.New("authentication failed")
	ErrBiometricCredentialsFailed = errors.New("stored biometric credentials failed to open the database")

	// Transport errors.
	ErrConnectionFailed = errors.New("connection failed")

	// Key-file management.
	ErrDuplicateKeyFile = errors.New("key file with the same name already exists")

	// Secure key store / enclave errors.
	ErrDuplicateKeyStoreItem = errors.New("a key store item already exists for this key")
	ErrSecureKeyOperation    = errors.New("secure key operation failed")

	// Lifecycle errors (recoverable; a second initialization is refused,
	// not fatal).
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")

	// Anything that has no more specific class.
	ErrInternal = errors.New("internal error")
)
