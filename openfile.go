package sfs

import (
	"fmt"

	"github.com/dargueta/sfs/sfserrors"
	"github.com/dargueta/sfs/sfslayout"
)

// openFileEntry is one slot of the open-file table.
type openFileEntry struct {
	valid      bool
	cursor     int64
	inodeIndex int
}

// openFileTable is the fixed 100-slot in-memory handle table. It never
// touches disk directly; handles only index into the shared inodeTable.
type openFileTable struct {
	slots [sfslayout.MaxOpenFiles]openFileEntry
}

func newOpenFileTable() *openFileTable {
	return &openFileTable{}
}

// findByInode returns the slot number of an already-open handle on
// inodeIndex, if any. At most one open handle exists per file.
func (t *openFileTable) findByInode(inodeIndex int) (int, bool) {
	for i, e := range t.slots {
		if e.valid && e.inodeIndex == inodeIndex {
			return i, true
		}
	}
	return 0, false
}

// reserve claims the first invalid slot for inodeIndex, with the cursor
// positioned at initialCursor.
func (t *openFileTable) reserve(inodeIndex int, initialCursor int64) (int, error) {
	for i, e := range t.slots {
		if !e.valid {
			t.slots[i] = openFileEntry{valid: true, cursor: initialCursor, inodeIndex: inodeIndex}
			return i, nil
		}
	}
	return 0, sfserrors.ErrNoSpace.WithMessage("open-file table is full")
}

func (t *openFileTable) checkHandle(fd int) error {
	if fd < 0 || fd >= sfslayout.MaxOpenFiles {
		return sfserrors.ErrInvalidHandle.WithMessage(fmt.Sprintf("file handle %d out of range", fd))
	}
	if !t.slots[fd].valid {
		return sfserrors.ErrInvalidHandle.WithMessage(fmt.Sprintf("file handle %d is not open", fd))
	}
	return nil
}

// close invalidates fd. Returns ErrInvalidHandle if fd was already closed or
// never opened; a double close always fails.
func (t *openFileTable) close(fd int) error {
	if err := t.checkHandle(fd); err != nil {
		return err
	}
	t.slots[fd].valid = false
	return nil
}

func (t *openFileTable) get(fd int) (openFileEntry, error) {
	if err := t.checkHandle(fd); err != nil {
		return openFileEntry{}, err
	}
	return t.slots[fd], nil
}

func (t *openFileTable) setCursor(fd int, cursor int64) {
	t.slots[fd].cursor = cursor
}
