// Package dbkey implements the db_key grammar. A db_key is either a plain
// platform URI (local database) or the structured remote form
//
//	<scheme>-<uuid>-<path>
//
// where scheme is Sftp or Webdav, uuid is the connection id in canonical
// 8-4-4-4-12 form, and path is the absolute path on the remote server, e.g.
//
//	Sftp-264226dc-be96-462a-a386-79adb6291ad7-/db/Test.kdbx
package dbkey

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/okpass/mobilecore/internal/common"
)

// Scheme selects the remote transport of a db_key.
type Scheme string

const (
	SchemeSftp   Scheme = "Sftp"
	SchemeWebdav Scheme = "Webdav"
)

const uuidLen = 36

var uuidPattern = regexp.MustCompile(
	`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// RemoteRef is the parsed form of a remote db_key.
type RemoteRef struct {
	Scheme       Scheme
	ConnectionID uuid.UUID
	Path         string
}

// Parse parses a remote db_key. Parsing is strict: the uuid segment must be
// exactly 36 hex/hyphen characters, it must be followed by a single '-',
// and the remainder must be an absolute path.
func Parse(dbKey string) (*RemoteRef, error) {
	for _, scheme := range []Scheme{SchemeSftp, SchemeWebdav} {
		prefix := string(scheme) + "-"
		if !strings.HasPrefix(dbKey, prefix) {
			continue
		}

		rest := dbKey[len(prefix):]
		// uuid, separator, then at least "/"
		if len(rest) < uuidLen+2 {
			return nil, fmt.Errorf("%w: %q is too short for a remote db key", common.ErrInvalidDbKey, dbKey)
		}

		uuidPart := rest[:uuidLen]
		if !uuidPattern.MatchString(uuidPart) {
			return nil, fmt.Errorf("%w: %q has no valid connection id", common.ErrInvalidDbKey, dbKey)
		}

		id, err := uuid.Parse(uuidPart)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidDbKey, err)
		}

		if rest[uuidLen] != '-' {
			return nil, fmt.Errorf("%w: missing separator after connection id in %q", common.ErrInvalidDbKey, dbKey)
		}

		remotePath := rest[uuidLen+1:]
		if !strings.HasPrefix(remotePath, "/") {
			return nil, fmt.Errorf("%w: remote path in %q must be absolute", common.ErrInvalidDbKey, dbKey)
		}

		return &RemoteRef{Scheme: scheme, ConnectionID: id, Path: remotePath}, nil
	}

	return nil, fmt.Errorf("%w: %q is not a remote db key", common.ErrInvalidDbKey, dbKey)
}

// IsRemote reports whether dbKey parses as a remote reference.
func IsRemote(dbKey string) bool {
	_, err := Parse(dbKey)
	return err == nil
}

// String formats the reference back to its db_key form. String is the
// inverse of Parse for every valid remote db_key.
func (r *RemoteRef) String() string {
	return fmt.Sprintf("%s-%s-%s", r.Scheme, r.ConnectionID, r.Path)
}

// FileName returns the last element of the remote path.
func (r *RemoteRef) FileName() string {
	return path.Base(r.Path)
}

// FileNameOf resolves the file name of a remote db_key, or an error for a
// non-remote key.
func FileNameOf(dbKey string) (string, error) {
	ref, err := Parse(dbKey)
	if err != nil {
		return "", err
	}
	return ref.FileName(), nil
}
