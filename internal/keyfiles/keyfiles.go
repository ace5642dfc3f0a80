// Package keyfiles manages the composite-key files imported by the user.
// They live under the key-files root and are referenced by basename only;
// full paths change across reinstalls so nothing durable stores one.
package keyfiles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/okpass/mobilecore/internal/common"
	"github.com/okpass/mobilecore/internal/filex"
	"github.com/okpass/mobilecore/internal/logging"
)

type Manager struct {
	root   func() string
	logger logging.Logger
}

func NewManager(root func() string, logger logging.Logger) *Manager {
	return &Manager{root: root, logger: logger}
}

// PathFor returns the absolute path of the stored key file name.
func (m *Manager) PathFor(name string) string {
	return filepath.Join(m.root(), filepath.Base(name))
}

// CopyPicked imports a key file picked through the platform file dialog.
// srcPath is wherever the shell staged the picked file. A stored file
// with the same basename is rejected unless overwrite is set.
func (m *Manager) CopyPicked(srcPath string, overwrite bool) (string, error) {
	name := filepath.Base(srcPath)
	dst := m.PathFor(name)

	if !overwrite && filex.Exists(dst) {
		return "", fmt.Errorf("%w: %s", common.ErrDuplicateKeyFile, name)
	}
	if _, err := filex.CopyFile(srcPath, dst); err != nil {
		return "", fmt.Errorf("import key file: %w", err)
	}
	return name, nil
}

// List returns the stored key file names, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.root())
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a stored key file; a missing file is not an error.
func (m *Manager) Delete(name string) error {
	err := os.Remove(m.PathFor(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
