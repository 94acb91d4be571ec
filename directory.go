package sfs

import (
	"github.com/dargueta/sfs/sfserrors"
	"github.com/dargueta/sfs/sfslayout"
)

// dirEntry is the in-memory form of one directory slot, valid or tombstoned.
type dirEntry struct {
	valid bool
	inode int32
	name  string
}

// directory is the in-memory cache mirroring the root directory's content,
// grown dynamically past its 144-entry starting floor rather than capped
// there.
type directory struct {
	table   *inodeTable
	layout  *fileLayout
	sb      *superblock
	entries []dirEntry
	// nextIterIndex is the cursor used by getNextFileName; reset to 0 only
	// by Mksfs/MountStream.
	nextIterIndex int
}

func newDirectory(table *inodeTable, layout *fileLayout, sb *superblock) *directory {
	initialCapacity := sfslayout.MinDirectoryCacheEntries
	return &directory{
		table:   table,
		layout:  layout,
		sb:      sb,
		entries: make([]dirEntry, 0, initialCapacity),
	}
}

// load rebuilds the cache from the root inode's data blocks.
func (d *directory) load() error {
	in, err := d.table.get(sfslayout.RootInodeIndex)
	if err != nil {
		return err
	}

	totalEntries := int(in.size) / sfslayout.DirentSize
	neededBlocks := (totalEntries + sfslayout.DirentsPerBlock - 1) / sfslayout.DirentsPerBlock

	d.entries = d.entries[:0]
	buf := make([]byte, sfslayout.BlockSize)

	for b := 0; b < neededBlocks; b++ {
		whole, ok, err := d.layout.blockForOffset(sfslayout.RootInodeIndex, b)
		if err != nil {
			return err
		}
		if !ok {
			// A hole in the directory's own block list would mean a
			// corrupted image; treat the remaining entries as absent.
			break
		}
		if err := d.layout.dev.ReadBlock(whole, buf); err != nil {
			return err
		}
		for i := 0; i < sfslayout.DirentsPerBlock; i++ {
			globalIndex := b*sfslayout.DirentsPerBlock + i
			if globalIndex >= totalEntries {
				break
			}
			raw, err := sfslayout.DecodeDirent(buf[i*sfslayout.DirentSize : (i+1)*sfslayout.DirentSize])
			if err != nil {
				return err
			}
			d.entries = append(d.entries, dirEntry{
				valid: raw.Valid != 0,
				inode: raw.INode,
				name:  raw.Name(),
			})
		}
	}

	d.nextIterIndex = 0
	return nil
}

// find returns the directory index and inode index of the valid entry named
// name, or ok=false if no such entry exists.
func (d *directory) find(name string) (dirIndex int, inodeIndex int32, ok bool) {
	for i, e := range d.entries {
		if e.valid && e.name == name {
			return i, e.inode, true
		}
	}
	return 0, 0, false
}

// persistBlock re-encodes and writes the single directory data block holding
// dirIndex: only that block, never the whole directory.
func (d *directory) persistBlock(dirIndex int) error {
	blockNum := dirIndex / sfslayout.DirentsPerBlock
	whole, ok, err := d.layout.blockForOffset(sfslayout.RootInodeIndex, blockNum)
	if err != nil {
		return err
	}
	if !ok {
		return sfserrors.ErrCorrupted.WithMessage("directory block not attached to root inode")
	}

	buf := make([]byte, sfslayout.BlockSize)
	base := blockNum * sfslayout.DirentsPerBlock
	for i := 0; i < sfslayout.DirentsPerBlock; i++ {
		globalIndex := base + i
		var raw sfslayout.RawDirent
		if globalIndex < len(d.entries) {
			e := d.entries[globalIndex]
			raw = sfslayout.NewRawDirent(e.name, e.valid, e.inode)
		}
		copy(buf[i*sfslayout.DirentSize:(i+1)*sfslayout.DirentSize], sfslayout.EncodeDirent(raw))
	}
	return d.layout.dev.WriteBlock(whole, buf)
}

// add writes a new directory entry for name pointing at inodeIndex, reusing
// a tombstone if one exists in [0, total) or appending and growing the
// directory's block list otherwise.
func (d *directory) add(name string, inodeIndex int32) (int, error) {
	total := len(d.entries)
	numValid := 0
	reuseIndex := -1
	for i, e := range d.entries {
		if e.valid {
			numValid++
		} else if reuseIndex == -1 {
			reuseIndex = i
		}
	}

	var dirIndex int
	if numValid == total {
		dirIndex = total
		d.entries = append(d.entries, dirEntry{})

		in, err := d.table.get(sfslayout.RootInodeIndex)
		if err != nil {
			return 0, err
		}
		in.size += sfslayout.DirentSize
		d.table.set(sfslayout.RootInodeIndex, in)
		if err := d.table.saveBlock(sfslayout.RootInodeIndex); err != nil {
			return 0, err
		}

		if dirIndex%sfslayout.DirentsPerBlock == 0 {
			dataBlock, err := d.layout.allocateDataBlock()
			if err != nil {
				return 0, err
			}
			// addDataBlockToInode is the sole authority on where this block
			// actually lands in the inode's pointer structure; we don't
			// trust dataBlock's position, only that it's now attached.
			if err := d.layout.addDataBlockToInode(sfslayout.RootInodeIndex, dataBlock); err != nil {
				return 0, err
			}
		}
	} else {
		dirIndex = reuseIndex
	}

	d.entries[dirIndex] = dirEntry{valid: true, inode: inodeIndex, name: name}
	if err := d.persistBlock(dirIndex); err != nil {
		return 0, err
	}

	d.sb.dirNumElements++
	if err := d.sb.persist(); err != nil {
		return 0, err
	}

	return dirIndex, nil
}

// remove tombstones the entry at dirIndex.
func (d *directory) remove(dirIndex int) error {
	e := d.entries[dirIndex]
	e.valid = false
	d.entries[dirIndex] = e

	if err := d.persistBlock(dirIndex); err != nil {
		return err
	}

	d.sb.dirNumElements--
	return d.sb.persist()
}

// next returns the next valid entry in index order starting from the
// cursor, advancing it past the returned entry. ok is false once every
// entry has been delivered.
func (d *directory) next() (name string, ok bool) {
	for d.nextIterIndex < len(d.entries) {
		e := d.entries[d.nextIterIndex]
		d.nextIterIndex++
		if e.valid {
			return e.name, true
		}
	}
	return "", false
}

// resetIterator rewinds the getNextFileName cursor; called only on mount.
func (d *directory) resetIterator() {
	d.nextIterIndex = 0
}

// countValid returns the number of currently valid directory entries.
func (d *directory) countValid() int {
	n := 0
	for _, e := range d.entries {
		if e.valid {
			n++
		}
	}
	return n
}
