package remote

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/okpass/mobilecore/internal/common"
)

// ErrMsgConnectionRefused is surfaced verbatim to the shell when a dial
// is refused.
const ErrMsgConnectionRefused = "Connection refused. The server may not be running or connection information is not correct"

type sftpTransport struct {
	conn   *ssh.Client
	client *sftp.Client
}

// dialSftp opens an SSH session and an SFTP subsystem on it. A non-empty
// keyFilePath selects private-key auth, with cfg.Password unlocking the
// key when it is passphrase-protected; otherwise password auth is used.
func dialSftp(cfg *SftpConfig, keyFilePath string) (*sftpTransport, error) {
	auth, err := sftpAuthMethods(cfg, keyFilePath)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == "" {
		port = "22"
	}
	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	conn, err := ssh.Dial("tcp", net.JoinHostPort(cfg.Host, port), sshCfg)
	if err != nil {
		return nil, translateDialError(err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open sftp subsystem: %w", err)
	}
	return &sftpTransport{conn: conn, client: client}, nil
}

func sftpAuthMethods(cfg *SftpConfig, keyFilePath string) ([]ssh.AuthMethod, error) {
	if keyFilePath != "" {
		pem, err := os.ReadFile(keyFilePath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		var signer ssh.Signer
		if cfg.Password != nil && *cfg.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(*cfg.Password))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse private key: %v", common.ErrAuthenticationFailed, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if cfg.Password == nil {
		return nil, fmt.Errorf("%w: no password and no private key", common.ErrAuthenticationFailed)
	}
	return []ssh.AuthMethod{ssh.Password(*cfg.Password)}, nil
}

func translateDialError(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) || strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("%w: %s", common.ErrConnectionFailed, ErrMsgConnectionRefused)
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return fmt.Errorf("%w: %v", common.ErrAuthenticationFailed, err)
	}
	return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
}

func (t *sftpTransport) ListDir(dir string) (*ServerDirEntry, error) {
	entries, err := t.client.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	out := &ServerDirEntry{ParentDir: dir, SubDirs: []string{}, Files: []string{}}
	for _, e := range entries {
		if !visibleName(e.Name()) {
			continue
		}
		if e.IsDir() {
			out.SubDirs = append(out.SubDirs, e.Name())
		} else {
			out.Files = append(out.Files, e.Name())
		}
	}
	return out, nil
}

func (t *sftpTransport) ReadFile(p string) ([]byte, error) {
	f, err := t.client.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return buf.Bytes(), nil
}

func (t *sftpTransport) WriteFile(p string, data []byte) error {
	if dir := path.Dir(p); dir != "/" && dir != "." {
		// best effort; the write reports the real error if this fails
		_ = t.client.MkdirAll(dir)
	}
	f, err := t.client.Create(p)
	if err != nil {
		return fmt.Errorf("create %s: %w", p, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", p, err)
	}
	return f.Close()
}

func (t *sftpTransport) Metadata(p string) (*RemoteFileMetadata, error) {
	info, err := t.client.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	return &RemoteFileMetadata{Size: info.Size(), Modified: info.ModTime().Unix()}, nil
}

func (t *sftpTransport) Close() error {
	if t.client != nil {
		t.client.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
