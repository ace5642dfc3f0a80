package common

// Secure-enclave tags. Each tag names a stable namespace under which the
// platform binds an enclave-backed key; ciphertext produced under one tag
// cannot be decrypted under another.
const (
	// DbOpenKeyTag protects the per-database biometric credentials.
	DbOpenKeyTag = "OKP_DB_OPEN_KEY"

	// AppLockPinKeyTag protects the application-lock PIN record.
	AppLockPinKeyTag = "OKP_APP_LOCK_PIN_KEY"

	// RemoteStorageKeyTag protects the remote connection configuration list.
	RemoteStorageKeyTag = "OKP_RS_STORAGE_KEY"
)

// DbOpenKeyStorePrefix prefixes the platform key-store key under which the
// encrypted credentials of one database are kept. The full key is
// DbOpenKeyStorePrefix + hash(db_key).
const DbOpenKeyStorePrefix = "OKP-DB-OPEN-"

// DefaultBackupHistoryCount is the number of backup snapshots retained per
// database when the preference document does not say otherwise.
const DefaultBackupHistoryCount = 3

// KdbxFileExtension is appended to generated database and backup file names.
const KdbxFileExtension = ".kdbx"
