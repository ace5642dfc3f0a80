package remote

import "strings"

// Transport is the operation set shared by the SFTP and WebDAV sessions.
// Implementations hold a live connection; Close releases it.
type Transport interface {
	ListDir(dir string) (*ServerDirEntry, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Metadata(path string) (*RemoteFileMetadata, error)
	Close() error
}

// visibleName reports whether a listing entry should be shown. Dotfiles,
// AppleDouble companions and Finder droppings are suppressed.
func visibleName(name string) bool {
	if name == "" || name == ".DS_Store" {
		return false
	}
	if strings.HasPrefix(name, "._") || strings.HasPrefix(name, ".") {
		return false
	}
	return true
}
