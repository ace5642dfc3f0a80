// Package filex contains small filesystem helpers shared by the save
// pipeline, the backup manager and the app state hub.
package filex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// EnsureDir creates dir (and parents) if it does not exist yet.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CopyFile copies src to dst, creating or truncating dst, and syncs dst
// before returning. The number of copied bytes is returned.
func CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	return CopyToFile(in, dst)
}

// CopyToFile writes everything readable from r into the file at dst,
// creating or truncating it, and syncs before returning.
func CopyToFile(r io.Reader, dst string) (int64, error) {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}

	n, err := io.Copy(out, r)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("copy to %s: %w", dst, err)
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return n, fmt.Errorf("sync %s: %w", dst, err)
	}

	if err := out.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", dst, err)
	}

	return n, nil
}

// CopyToWriter streams the file at src into w.
func CopyToWriter(src string, w io.Writer) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	return io.Copy(w, in)
}

// SyncAndRewind flushes f to stable storage and positions it at the start.
func SyncAndRewind(f *os.File) error {
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	return nil
}

// SetFileModTime sets the access and modification time of path to t,
// truncated to whole seconds. Backup/remote modified-time reconciliation
// compares at second resolution only.
func SetFileModTime(path string, t time.Time) error {
	sec := t.Truncate(time.Second)
	if err := os.Chtimes(path, sec, sec); err != nil {
		return fmt.Errorf("chtimes %s: %w", path, err)
	}
	return nil
}

// FileModTime returns the modification time of path.
func FileModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.ModTime(), nil
}

// ListFilesModTimeDesc lists the regular files directly under dir, ordered
// newest first by modification time.
func ListFilesModTimeDesc(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	type fileWithTime struct {
		path    string
		modTime time.Time
	}

	files := make([]fileWithTime, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileWithTime{filepath.Join(dir, e.Name()), info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	result := make([]string, 0, len(files))
	for _, f := range files {
		result = append(result, f.path)
	}
	return result, nil
}
