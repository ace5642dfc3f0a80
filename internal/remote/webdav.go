package remote

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/studio-b12/gowebdav"

	"github.com/okpass/mobilecore/internal/common"
)

type webdavTransport struct {
	client *gowebdav.Client
}

// dialWebdav builds the HTTP client and verifies the connection with a
// depth-0 stat of the start directory.
func dialWebdav(cfg *WebdavConfig) (*webdavTransport, error) {
	client := gowebdav.NewClient(cfg.RootURL, cfg.User, cfg.Password)
	if cfg.AllowUntrustedCert {
		client.SetTransport(&http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		})
	}

	dir := "/"
	if cfg.StartDir != nil && *cfg.StartDir != "" {
		dir = *cfg.StartDir
	}
	if _, err := client.Stat(dir); err != nil {
		return nil, translateWebdavError(err)
	}
	return &webdavTransport{client: client}, nil
}

func translateWebdavError(err error) error {
	if gowebdav.IsErrNotFound(err) {
		return common.ErrNotFound
	}
	if gowebdav.IsErrCode(err, http.StatusUnauthorized) {
		return fmt.Errorf("%w: %v", common.ErrAuthenticationFailed, err)
	}
	if strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("%w: %s", common.ErrConnectionFailed, ErrMsgConnectionRefused)
	}
	return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
}

func (t *webdavTransport) ListDir(dir string) (*ServerDirEntry, error) {
	entries, err := t.client.ReadDir(dir)
	if err != nil {
		return nil, translateWebdavError(err)
	}
	out := &ServerDirEntry{ParentDir: dir, SubDirs: []string{}, Files: []string{}}
	for _, e := range entries {
		// depth-1 listings may include the directory itself
		if sameDirEntry(dir, e) {
			continue
		}
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

// sameDirEntry reports whether e is the listing's own directory, compared
// by trailing path part.
func sameDirEntry(dir string, e os.FileInfo) bool {
	if !e.IsDir() {
		return false
	}
	parts := strings.Split(strings.Trim(dir, "/"), "/")
	last := parts[len(parts)-1]
	return last != "" && last == strings.Trim(e.Name(), "/")
}

func (t *webdavTransport) ReadFile(p string) ([]byte, error) {
	data, err := t.client.Read(p)
	if err != nil {
		return nil, translateWebdavError(err)
	}
	return data, nil
}

func (t *webdavTransport) WriteFile(p string, data []byte) error {
	if err := t.client.Write(p, data, 0o644); err != nil {
		return translateWebdavError(err)
	}
	return nil
}

func (t *webdavTransport) Metadata(p string) (*RemoteFileMetadata, error) {
	info, err := t.client.Stat(p)
	if err != nil {
		return nil, translateWebdavError(err)
	}
	return &RemoteFileMetadata{Size: info.Size(), Modified: info.ModTime().Unix()}, nil
}

func (t *webdavTransport) Close() error { return nil }
