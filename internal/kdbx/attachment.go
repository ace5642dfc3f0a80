package kdbx

import (
	"fmt"
	"io"

	"github.com/tobischo/gokeepasslib/v3"

	"github.com/okpass/mobilecore/internal/common"
)

// AddAttachmentFromReader stores the reader's content as a binary of the
// database and references it from the entry identified by entryUUID.
func (s *Service) AddAttachmentFromReader(dbKey, entryUUID, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	open, ok := s.dbs[dbKey]
	if !ok {
		return fmt.Errorf("%w: no open database for key", common.ErrNotFound)
	}

	entry := findEntry(open.db, entryUUID)
	if entry == nil {
		return fmt.Errorf("%w: no entry %s", common.ErrNotFound, entryUUID)
	}

	// KDBX 4 keeps binaries in the inner header; older content in Meta.
	var binary *gokeepasslib.Binary
	if open.db.Content.InnerHeader != nil {
		binary = open.db.Content.InnerHeader.Binaries.Add(data)
	} else {
		binary = open.db.Content.Meta.Binaries.Add(data)
	}

	entry.Binaries = append(entry.Binaries, binary.CreateReference(name))
	return nil
}

func findEntry(db *gokeepasslib.Database, entryUUID string) *gokeepasslib.Entry {
	if db.Content == nil || db.Content.Root == nil {
		return nil
	}
	for i := range db.Content.Root.Groups {
		if e := findEntryInGroup(&db.Content.Root.Groups[i], entryUUID); e != nil {
			return e
		}
	}
	return nil
}

func findEntryInGroup(g *gokeepasslib.Group, entryUUID string) *gokeepasslib.Entry {
	for i := range g.Entries {
		if uuidString(g.Entries[i].UUID) == entryUUID {
			return &g.Entries[i]
		}
	}
	for i := range g.Groups {
		if e := findEntryInGroup(&g.Groups[i], entryUUID); e != nil {
			return e
		}
	}
	return nil
}
