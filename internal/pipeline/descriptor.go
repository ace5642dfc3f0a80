package pipeline

import (
	"fmt"
	"os"
	"syscall"

	"github.com/okpass/mobilecore/internal/kdbx"
)

// The Android shell hands database files over as raw file descriptors whose
// ownership stays with the caller. The core duplicates the descriptor and
// works on the duplicate only; the borrowed descriptor is returned intact
// on every exit path. Closing it here would crash the shell.

// withBorrowedFd runs fn with an *os.File over a duplicate of fd. The
// duplicate is closed unconditionally; fd itself is never touched.
func withBorrowedFd(fd int, name string, fn func(f *os.File) error) error {
	dup, err := syscall.Dup(fd)
	if err != nil {
		return fmt.Errorf("dup descriptor: %w", err)
	}

	f := os.NewFile(uintptr(dup), name)
	if f == nil {
		_ = syscall.Close(dup)
		return fmt.Errorf("invalid descriptor %d", fd)
	}
	defer f.Close()

	return fn(f)
}

// ReadKdbxFromFd opens a database supplied as a borrowed descriptor.
func (p *Pipeline) ReadKdbxFromFd(fd int, info SourceInfo, args kdbx.OpenArgs) (*kdbx.KdbxLoaded, error) {
	var loaded *kdbx.KdbxLoaded
	err := withBorrowedFd(fd, info.FileName, func(f *os.File) error {
		var err error
		loaded, err = p.ReadKdbxFromReader(f, info, args)
		return err
	})
	return loaded, err
}

// SaveKdbxToFd saves the open database into a borrowed descriptor. The
// conflict check was already run by the shell through
// VerifyDbFileChecksum; overwrite carries the user's decision.
func (p *Pipeline) SaveKdbxToFd(fd int, dbKey string, overwrite bool) (*kdbx.KdbxLoaded, error) {
	err := withBorrowedFd(fd, p.state.FileNameFromDbKey(dbKey), func(f *os.File) error {
		if err := f.Truncate(0); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
		return p.SaveKdbxToWriter(dbKey, overwrite, f)
	})
	if err != nil {
		return nil, err
	}
	return p.Loaded(dbKey)
}

// CreateKdbxToFd initializes a new database into a borrowed descriptor:
// history backup first, then the primary, then the recent entry.
func (p *Pipeline) CreateKdbxToFd(fd int, args kdbx.NewDatabaseArgs) (*kdbx.KdbxLoaded, error) {
	var loaded *kdbx.KdbxLoaded
	err := withBorrowedFd(fd, args.FileName, func(f *os.File) error {
		var err error
		loaded, err = p.CreateKdbx(args, f)
		return err
	})
	return loaded, err
}

// SaveAsOnErrorToFd completes save-as recovery into a borrowed descriptor.
func (p *Pipeline) SaveAsOnErrorToFd(fd int, oldDbKey, newDbKey, fileName string) (*kdbx.KdbxLoaded, error) {
	var loaded *kdbx.KdbxLoaded
	err := withBorrowedFd(fd, fileName, func(f *os.File) error {
		var err error
		loaded, err = p.SaveAsOnErrorToWriter(oldDbKey, newDbKey, fileName, f)
		return err
	})
	return loaded, err
}

// UploadAttachmentFromFd attaches the content of a borrowed descriptor to
// an entry of the open database.
func (p *Pipeline) UploadAttachmentFromFd(fd int, dbKey, entryUUID, name string) error {
	return withBorrowedFd(fd, name, func(f *os.File) error {
		return p.codec.AddAttachmentFromReader(dbKey, entryUUID, name, f)
	})
}
