package sfs

import (
	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/sfs/sfserrors"
	"github.com/dargueta/sfs/sfslayout"
)

// maxFilenameLen is the largest name create/open will accept: the 20-byte
// on-disk field minus its NUL terminator.
const maxFilenameLen = sfslayout.DirentFilenameLen - 1

// create allocates a fresh inode and directory entry for name, the
// implicit step of Open when the file doesn't already exist.
func (fs *Filesystem) create(name string) (int, error) {
	inodeIndex, err := fs.inodes.allocate()
	if err != nil {
		return 0, err
	}

	fs.sb.numInodes++
	if err := fs.sb.persist(); err != nil {
		return 0, err
	}

	if _, err := fs.dir.add(name, int32(inodeIndex)); err != nil {
		return 0, err
	}

	return inodeIndex, nil
}

// Open returns a handle for name, creating the file if it doesn't already
// exist. At most one handle is ever live per inode; repeated opens of the
// same name return the same handle. A newly opened file's cursor starts at
// end-of-file (open-in-append).
func (fs *Filesystem) Open(name string) (int, error) {
	if len(name) > maxFilenameLen {
		return -1, sfserrors.ErrNameTooLong
	}

	_, inodeIndex, found := fs.dir.find(name)
	var idx int
	if found {
		idx = int(inodeIndex)
	} else {
		created, err := fs.create(name)
		if err != nil {
			return -1, err
		}
		idx = created
	}

	if fd, ok := fs.openFiles.findByInode(idx); ok {
		return fd, nil
	}

	in, err := fs.inodes.get(idx)
	if err != nil {
		return -1, err
	}

	fd, err := fs.openFiles.reserve(idx, int64(in.size))
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// Close invalidates fd. A handle that's already closed (or never opened)
// returns ErrInvalidHandle.
func (fs *Filesystem) Close(fd int) error {
	return fs.openFiles.close(fd)
}

// Seek repositions fd's cursor to the absolute offset loc, which must lie
// within [0, size]. A successful seek sets the cursor to loc, not to 0.
func (fs *Filesystem) Seek(fd int, loc int64) error {
	entry, err := fs.openFiles.get(fd)
	if err != nil {
		return err
	}
	in, err := fs.inodes.get(entry.inodeIndex)
	if err != nil {
		return err
	}
	if loc < 0 || loc > int64(in.size) {
		return sfserrors.ErrInvalidArgument
	}
	fs.openFiles.setCursor(fd, loc)
	return nil
}

// Write writes len(buf) bytes starting at fd's cursor, growing the file and
// allocating blocks as needed, and returns the number of bytes actually
// written: fewer than len(buf) if the disk fills or the file reaches its
// maximum length. Size grows to max(size, cursor+chunk) rather than
// unconditionally by each chunk, so overwriting within the existing length
// doesn't inflate it.
func (fs *Filesystem) Write(fd int, buf []byte) (int, error) {
	entry, err := fs.openFiles.get(fd)
	if err != nil {
		return 0, err
	}

	logicalBlock := int(entry.cursor / sfslayout.BlockSize)
	if logicalBlock >= sfslayout.MaxLogicalBlocks {
		return 0, nil
	}
	inBlockOff := int(entry.cursor % sfslayout.BlockSize)
	cursor := entry.cursor
	remaining := len(buf)
	written := 0

	for remaining > 0 {
		db, err := fs.layout.ensureBlock(entry.inodeIndex, logicalBlock)
		if err != nil {
			break
		}

		chunk := sfslayout.BlockSize - inBlockOff
		if chunk > remaining {
			chunk = remaining
		}

		scratch := make([]byte, sfslayout.BlockSize)
		if err := fs.dev.ReadBlock(db, scratch); err != nil {
			return written, err
		}
		copy(scratch[inBlockOff:inBlockOff+chunk], buf[written:written+chunk])
		if err := fs.dev.WriteBlock(db, scratch); err != nil {
			return written, err
		}

		cursor += int64(chunk)
		written += chunk
		remaining -= chunk
		inBlockOff = 0
		logicalBlock++

		in, err := fs.inodes.get(entry.inodeIndex)
		if err != nil {
			return written, err
		}
		if int32(cursor) > in.size {
			in.size = int32(cursor)
		}
		fs.inodes.set(entry.inodeIndex, in)
		if err := fs.inodes.saveBlock(entry.inodeIndex); err != nil {
			return written, err
		}
	}

	fs.openFiles.setCursor(fd, cursor)
	return written, nil
}

// Read reads up to len(buf) bytes starting at fd's cursor, returning the
// number of bytes actually read. The read is clamped to size-cursor, not
// just size, so a read started near EOF can't run past it.
func (fs *Filesystem) Read(fd int, buf []byte) (int, error) {
	entry, err := fs.openFiles.get(fd)
	if err != nil {
		return 0, err
	}
	in, err := fs.inodes.get(entry.inodeIndex)
	if err != nil {
		return 0, err
	}

	maxReadable := int64(in.size) - entry.cursor
	if maxReadable < 0 {
		maxReadable = 0
	}
	remaining := len(buf)
	if int64(remaining) > maxReadable {
		remaining = int(maxReadable)
	}

	logicalBlock := int(entry.cursor / sfslayout.BlockSize)
	inBlockOff := int(entry.cursor % sfslayout.BlockSize)
	cursor := entry.cursor
	readCount := 0

	for remaining > 0 {
		whole, ok, err := fs.layout.blockForOffset(entry.inodeIndex, logicalBlock)
		if err != nil {
			return readCount, err
		}
		if !ok {
			break
		}

		chunk := sfslayout.BlockSize - inBlockOff
		if chunk > remaining {
			chunk = remaining
		}

		scratch := make([]byte, sfslayout.BlockSize)
		if err := fs.dev.ReadBlock(whole, scratch); err != nil {
			return readCount, err
		}
		copy(buf[readCount:readCount+chunk], scratch[inBlockOff:inBlockOff+chunk])

		readCount += chunk
		remaining -= chunk
		cursor += int64(chunk)
		inBlockOff = 0
		logicalBlock++
	}

	fs.openFiles.setCursor(fd, cursor)
	return readCount, nil
}

// Remove deletes name: every data block it owns is freed in the bitmap, its
// inode is invalidated, and its directory entry is tombstoned. Rather than
// recompute a block count from size, every block actually referenced by
// the inode's pointers is freed directly, which sidesteps any possibility
// of an off-by-one in that computation entirely.
func (fs *Filesystem) Remove(name string) error {
	dirIndex, inodeIndex, found := fs.dir.find(name)
	if !found {
		return sfserrors.ErrNotFound
	}

	if err := fs.layout.freeAllBlocks(int(inodeIndex)); err != nil {
		return err
	}
	if err := fs.inodes.free(int(inodeIndex)); err != nil {
		return err
	}

	fs.sb.numInodes--
	if err := fs.sb.persist(); err != nil {
		return err
	}

	if err := fs.dir.remove(dirIndex); err != nil {
		return err
	}

	if fd, ok := fs.openFiles.findByInode(int(inodeIndex)); ok {
		fs.openFiles.slots[fd].valid = false
	}

	return nil
}

// GetFileSize returns name's byte length, or an error if no such file
// exists.
func (fs *Filesystem) GetFileSize(name string) (int64, error) {
	_, inodeIndex, found := fs.dir.find(name)
	if !found {
		return -1, sfserrors.ErrNotFound
	}
	in, err := fs.inodes.get(int(inodeIndex))
	if err != nil {
		return -1, err
	}
	return int64(in.size), nil
}

// GetNextFileName returns the next valid filename in directory order and
// advances the iteration cursor; ok is false once every entry has been
// delivered. The cursor only resets when an image is mounted (Mksfs or
// MountStream).
func (fs *Filesystem) GetNextFileName() (string, bool) {
	return fs.dir.next()
}

// CheckInvariants validates the structural invariants held in the
// in-memory caches: the superblock counters against the inode table and
// directory, each valid inode's size against its pointer count, and that
// every block a valid inode references is marked allocated in the bitmap.
// It aggregates every violation found rather than stopping at the first;
// it does not compare the caches with the blocks on disk.
func (fs *Filesystem) CheckInvariants() error {
	var result *multierror.Error

	if fs.sb.numInodes != int32(fs.inodes.countValid()) {
		result = multierror.Append(result, sfserrors.ErrCorrupted.WithMessage(
			"superblock.num_inodes disagrees with the inode table"))
	}
	if fs.sb.dirNumElements != int32(fs.dir.countValid()) {
		result = multierror.Append(result, sfserrors.ErrCorrupted.WithMessage(
			"superblock.dir_num_elements disagrees with the directory cache"))
	}

	for i := 0; i < sfslayout.TotalInodeSlots; i++ {
		in, err := fs.inodes.get(i)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if !in.valid {
			continue
		}

		if in.size/sfslayout.BlockSize > sfslayout.NumDirectPointers+in.numIndirectPtr {
			result = multierror.Append(result, sfserrors.ErrCorrupted.WithMessage(
				"inode size exceeds what its allocated pointers can hold"))
		}

		for _, ptr := range in.directPtr {
			if ptr == sfslayout.NonePointer {
				continue
			}
			if fs.bitmap.IsFree(dataRegionToWholeDisk(ptr)) {
				result = multierror.Append(result, sfserrors.ErrCorrupted.WithMessage(
					"inode direct pointer references a block the bitmap marks free"))
			}
		}

		if in.indirectPtr != sfslayout.NonePointer {
			if fs.bitmap.IsFree(dataRegionToWholeDisk(in.indirectPtr)) {
				result = multierror.Append(result, sfserrors.ErrCorrupted.WithMessage(
					"inode indirect pointer references a block the bitmap marks free"))
			}

			entries, err := fs.layout.readIndirectBlock(in)
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			for idx := int32(0); idx < in.numIndirectPtr; idx++ {
				if fs.bitmap.IsFree(dataRegionToWholeDisk(entries[idx])) {
					result = multierror.Append(result, sfserrors.ErrCorrupted.WithMessage(
						"indirect block entry references a block the bitmap marks free"))
				}
			}
		}
	}

	return result.ErrorOrNil()
}
