// Package remote implements the SFTP/WebDAV storage engine: connection
// configs, live sessions, and the read/write orchestration that keeps a
// local backup in sync with the remote database file.
package remote

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/okpass/mobilecore/internal/dbkey"
)

// SftpConfig describes an SFTP server connection.
type SftpConfig struct {
	ConnectionID       *uuid.UUID `json:"connection_id,omitempty"`
	Host               string     `json:"host"`
	Port               string     `json:"port"`
	User               string     `json:"user"`
	Password           *string    `json:"password,omitempty"`
	PrivateKeyFileName *string    `json:"private_key_file_name,omitempty"`
	StartDir           *string    `json:"start_dir,omitempty"`
}

// WebdavConfig describes a WebDAV server connection.
type WebdavConfig struct {
	ConnectionID       *uuid.UUID `json:"connection_id,omitempty"`
	RootURL            string     `json:"root_url"`
	User               string     `json:"user"`
	Password           string     `json:"password"`
	AllowUntrustedCert bool       `json:"allow_untrusted_cert"`
	StartDir           *string    `json:"start_dir,omitempty"`
}

// ConnectionConfig is the tagged union persisted in the encrypted config
// list. Exactly one of Sftp/Webdav is set, selected by Type.
type ConnectionConfig struct {
	Type   dbkey.Scheme
	Sftp   *SftpConfig
	Webdav *WebdavConfig
}

type connectionConfigJSON struct {
	Type   dbkey.Scheme    `json:"type"`
	Config json.RawMessage `json:"config"`
}

func (c ConnectionConfig) MarshalJSON() ([]byte, error) {
	var inner any
	switch c.Type {
	case dbkey.SchemeSftp:
		inner = c.Sftp
	case dbkey.SchemeWebdav:
		inner = c.Webdav
	default:
		return nil, fmt.Errorf("unknown connection config type %q", c.Type)
	}
	raw, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}
	return json.Marshal(connectionConfigJSON{Type: c.Type, Config: raw})
}

func (c *ConnectionConfig) UnmarshalJSON(data []byte) error {
	var doc connectionConfigJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	c.Type = doc.Type
	switch doc.Type {
	case dbkey.SchemeSftp:
		c.Sftp = &SftpConfig{}
		return json.Unmarshal(doc.Config, c.Sftp)
	case dbkey.SchemeWebdav:
		c.Webdav = &WebdavConfig{}
		return json.Unmarshal(doc.Config, c.Webdav)
	default:
		return fmt.Errorf("unknown connection config type %q", doc.Type)
	}
}

// ID returns the connection id of whichever variant is set.
func (c *ConnectionConfig) ID() *uuid.UUID {
	switch c.Type {
	case dbkey.SchemeSftp:
		if c.Sftp != nil {
			return c.Sftp.ConnectionID
		}
	case dbkey.SchemeWebdav:
		if c.Webdav != nil {
			return c.Webdav.ConnectionID
		}
	}
	return nil
}

func (c *ConnectionConfig) setID(id uuid.UUID) {
	switch c.Type {
	case dbkey.SchemeSftp:
		c.Sftp.ConnectionID = &id
	case dbkey.SchemeWebdav:
		c.Webdav.ConnectionID = &id
	}
}

// StartDir returns the configured start directory, "/" when unset.
func (c *ConnectionConfig) StartDir() string {
	var dir *string
	switch c.Type {
	case dbkey.SchemeSftp:
		if c.Sftp != nil {
			dir = c.Sftp.StartDir
		}
	case dbkey.SchemeWebdav:
		if c.Webdav != nil {
			dir = c.Webdav.StartDir
		}
	}
	if dir == nil || *dir == "" {
		return "/"
	}
	return *dir
}

// ServerDirEntry is a directory listing reply.
type ServerDirEntry struct {
	ParentDir string   `json:"parent_dir"`
	SubDirs   []string `json:"sub_dirs"`
	Files     []string `json:"files"`
}

// RemoteFileMetadata reports size and modified time (seconds since epoch)
// of a remote file.
type RemoteFileMetadata struct {
	Size     int64 `json:"size"`
	Modified int64 `json:"modified"`
}

// RsAdditionalInfo annotates a read reply; NoConnection marks a database
// served from the local backup because the server was unreachable.
type RsAdditionalInfo struct {
	NoConnection bool `json:"no_connection"`
}
