// Package kdbx is the boundary to the KDBX codec. It keeps the set of
// currently unlocked databases and their content checksums, and delegates
// all parsing, KDF and AEAD work to gokeepasslib.
package kdbx

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tobischo/gokeepasslib/v3"
	"github.com/tobischo/gokeepasslib/v3/wrappers"

	"github.com/okpass/mobilecore/internal/common"
)

// Service caches unlocked databases by db_key. One service instance exists
// per process; commands run one at a time, the mutex only guards against
// the OTP ticker reading concurrently.
type Service struct {
	mu        sync.Mutex
	dbs       map[string]*openDb
	checksums map[string]string
}

type openDb struct {
	fileName string
	db       *gokeepasslib.Database
}

func NewService() *Service {
	return &Service{
		dbs:       map[string]*openDb{},
		checksums: map[string]string{},
	}
}

// OpenArgs are the credentials for unlocking one database.
type OpenArgs struct {
	DbKey             string
	Password          string
	KeyFileName       string
	BiometricAuthUsed bool
}

// KdbxLoaded is the reply payload after a database is opened or created.
type KdbxLoaded struct {
	DbKey        string `json:"db_key"`
	FileName     string `json:"file_name"`
	DatabaseName string `json:"database_name"`
	GroupCount   int    `json:"group_count"`
	EntryCount   int    `json:"entry_count"`
}

// NewDatabaseArgs describes a database to create.
type NewDatabaseArgs struct {
	DbKey        string `json:"db_key"`
	FileName     string `json:"file_name"`
	DatabaseName string `json:"database_name"`
	Password     string `json:"password"`
	KeyFileName  string `json:"key_file_name"`
}

// buildCredentials maps password/key-file combinations onto gokeepasslib
// credential constructors.
func buildCredentials(password, keyFileName string) (*gokeepasslib.DBCredentials, error) {
	switch {
	case password != "" && keyFileName != "":
		return gokeepasslib.NewPasswordAndKeyCredentials(password, keyFileName)
	case keyFileName != "":
		return gokeepasslib.NewKeyCredentials(keyFileName)
	case password != "":
		return gokeepasslib.NewPasswordCredentials(password), nil
	default:
		return nil, fmt.Errorf("%w: no password or key file provided", common.ErrAuthenticationFailed)
	}
}

// ReadKdbx decrypts and parses a KDBX stream and caches the open database
// under args.DbKey. When the stored biometric credentials were used and the
// codec rejects them (header HMAC / integrity failure), the error is
// translated so the shell can prompt for fresh credentials.
func (s *Service) ReadKdbx(r io.Reader, fileName string, args OpenArgs) (*KdbxLoaded, error) {
	creds, err := buildCredentials(args.Password, args.KeyFileName)
	if err != nil {
		return nil, err
	}

	db := gokeepasslib.NewDatabase()
	db.Credentials = creds

	if err := gokeepasslib.NewDecoder(r).Decode(db); err != nil {
		if args.BiometricAuthUsed {
			return nil, fmt.Errorf("%w: %v", common.ErrBiometricCredentialsFailed, err)
		}
		return nil, fmt.Errorf("kdbx decode: %w", err)
	}

	if err := db.UnlockProtectedEntries(); err != nil {
		return nil, fmt.Errorf("kdbx unlock: %w", err)
	}

	s.mu.Lock()
	s.dbs[args.DbKey] = &openDb{fileName: fileName, db: db}
	s.mu.Unlock()

	return s.Loaded(args.DbKey)
}

// SaveToWriter serializes the cached database into w. Protected values are
// locked for encoding and unlocked again so the in-memory copy stays
// usable.
func (s *Service) SaveToWriter(w io.Writer, dbKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	open, ok := s.dbs[dbKey]
	if !ok {
		return fmt.Errorf("%w: no open database for key", common.ErrNotFound)
	}

	if err := open.db.LockProtectedEntries(); err != nil {
		return fmt.Errorf("kdbx lock: %w", err)
	}
	defer func() { _ = open.db.UnlockProtectedEntries() }()

	if err := gokeepasslib.NewEncoder(w).Encode(open.db); err != nil {
		return fmt.Errorf("kdbx encode: %w", err)
	}
	return nil
}

// CreateKdbx initializes a fresh KDBX 4 database, writes it to w and caches
// it under args.DbKey.
func (s *Service) CreateKdbx(w io.Writer, args NewDatabaseArgs) (*KdbxLoaded, error) {
	creds, err := buildCredentials(args.Password, args.KeyFileName)
	if err != nil {
		return nil, err
	}

	db := gokeepasslib.NewDatabase(gokeepasslib.WithDatabaseKDBXVersion4())
	db.Credentials = creds
	db.Content.Meta.DatabaseName = args.DatabaseName

	root := gokeepasslib.NewGroup()
	root.Name = args.DatabaseName
	db.Content.Root = &gokeepasslib.RootData{Groups: []gokeepasslib.Group{root}}

	if err := db.LockProtectedEntries(); err != nil {
		return nil, fmt.Errorf("kdbx lock: %w", err)
	}
	if err := gokeepasslib.NewEncoder(w).Encode(db); err != nil {
		return nil, fmt.Errorf("kdbx encode: %w", err)
	}
	if err := db.UnlockProtectedEntries(); err != nil {
		return nil, fmt.Errorf("kdbx unlock: %w", err)
	}

	s.mu.Lock()
	s.dbs[args.DbKey] = &openDb{fileName: args.FileName, db: db}
	s.mu.Unlock()

	return s.Loaded(args.DbKey)
}

// Loaded builds the reply payload for the open database dbKey.
func (s *Service) Loaded(dbKey string) (*KdbxLoaded, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	open, ok := s.dbs[dbKey]
	if !ok {
		return nil, fmt.Errorf("%w: no open database for key", common.ErrNotFound)
	}

	groups, entries := 0, 0
	if open.db.Content != nil && open.db.Content.Root != nil {
		for i := range open.db.Content.Root.Groups {
			g, e := countGroup(&open.db.Content.Root.Groups[i])
			groups += g
			entries += e
		}
	}

	name := ""
	if open.db.Content != nil && open.db.Content.Meta != nil {
		name = open.db.Content.Meta.DatabaseName
	}

	return &KdbxLoaded{
		DbKey:        dbKey,
		FileName:     open.fileName,
		DatabaseName: name,
		GroupCount:   groups,
		EntryCount:   entries,
	}, nil
}

func countGroup(g *gokeepasslib.Group) (groups, entries int) {
	groups = 1
	entries = len(g.Entries)
	for i := range g.Groups {
		cg, ce := countGroup(&g.Groups[i])
		groups += cg
		entries += ce
	}
	return groups, entries
}

// IsOpen reports whether dbKey has a cached database.
func (s *Service) IsOpen(dbKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dbs[dbKey]
	return ok
}

// FileName returns the display file name of the cached database.
func (s *Service) FileName(dbKey string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	open, ok := s.dbs[dbKey]
	if !ok {
		return "", false
	}
	return open.fileName, true
}

// RenameKey moves the cached database and its checksum from oldKey to
// newKey; the save-as flow re-keys a database after writing it elsewhere.
func (s *Service) RenameKey(oldKey, newKey, fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if open, ok := s.dbs[oldKey]; ok {
		open.fileName = fileName
		s.dbs[newKey] = open
		delete(s.dbs, oldKey)
	}
	if sum, ok := s.checksums[oldKey]; ok {
		s.checksums[newKey] = sum
		delete(s.checksums, oldKey)
	}
}

// Close drops the cached database and checksum for dbKey.
func (s *Service) Close(dbKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dbs, dbKey)
	delete(s.checksums, dbKey)
}

// EntryOtpURL returns the otpauth:// URL stored in the entry's "otp" field.
func (s *Service) EntryOtpURL(dbKey, entryUUID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	open, ok := s.dbs[dbKey]
	if !ok {
		return "", fmt.Errorf("%w: no open database for key", common.ErrNotFound)
	}
	if open.db.Content == nil || open.db.Content.Root == nil {
		return "", fmt.Errorf("%w: empty database", common.ErrNotFound)
	}

	for i := range open.db.Content.Root.Groups {
		if url, ok := findOtpURL(&open.db.Content.Root.Groups[i], entryUUID); ok {
			return url, nil
		}
	}
	return "", fmt.Errorf("%w: entry has no otp field", common.ErrNotFound)
}

func findOtpURL(g *gokeepasslib.Group, entryUUID string) (string, bool) {
	for i := range g.Entries {
		e := &g.Entries[i]
		if uuidString(e.UUID) != entryUUID {
			continue
		}
		for _, v := range e.Values {
			if strings.EqualFold(v.Key, "otp") && strings.HasPrefix(v.Value.Content, "otpauth://") {
				return v.Value.Content, true
			}
		}
		return "", false
	}
	for i := range g.Groups {
		if url, ok := findOtpURL(&g.Groups[i], entryUUID); ok {
			return url, ok
		}
	}
	return "", false
}

func uuidString(u gokeepasslib.UUID) string {
	text, err := u.MarshalText()
	if err != nil {
		return ""
	}
	return string(text)
}

// newProtectedValue is used by tests and the create flow to add protected
// fields in the codec's representation.
func newProtectedValue(key, value string) gokeepasslib.ValueData {
	return gokeepasslib.ValueData{
		Key:   key,
		Value: gokeepasslib.V{Content: value, Protected: wrappers.NewBoolWrapper(true)},
	}
}
