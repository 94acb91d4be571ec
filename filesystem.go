// Package sfs implements the Simple File System: a single flat directory of
// named files, backed by a fixed-geometry block device, with direct and
// single-indirect block pointers and a bitmap-backed free-space manager. See
// Filesystem for the entry point.
package sfs

import (
	"fmt"
	"io"
	"time"

	"github.com/dargueta/sfs/sfsblockdev"
	"github.com/dargueta/sfs/sfsbitmap"
	"github.com/dargueta/sfs/sfserrors"
	"github.com/dargueta/sfs/sfsgeometry"
	"github.com/dargueta/sfs/sfslayout"
)

// Filesystem is the handle owning every cache: the superblock, inode
// table, free bitmap, directory, and open-file table. All operations are
// methods on this handle rather than acting on package-level globals, so a
// process can in principle mount more than one image, though each
// individual handle is still restricted to single-threaded use.
type Filesystem struct {
	dev       *sfsblockdev.BlockDevice
	sb        *superblock
	bitmap    *sfsbitmap.FreeSpaceManager
	inodes    *inodeTable
	layout    *fileLayout
	dir       *directory
	openFiles *openFileTable
}

// Mksfs attaches to the SFS image at path. If fresh is true, a new image of
// the reference geometry (1024-byte blocks, 1024 blocks total) is created
// and formatted, overwriting anything already at path; otherwise an
// existing image is opened and its caches are reconstructed from disk.
func Mksfs(path string, fresh bool) (*Filesystem, error) {
	return MksfsWithSeed(path, fresh, time.Now().UnixNano())
}

// MksfsWithSeed is Mksfs with an explicit free-space search seed, so tests
// can pin the randomized allocator to a reproducible order.
func MksfsWithSeed(path string, fresh bool, seed int64) (*Filesystem, error) {
	blockSize, totalBlocks := sfsblockdev.DefaultGeometry()
	if err := validateGeometry(blockSize, totalBlocks); err != nil {
		return nil, err
	}

	var dev *sfsblockdev.BlockDevice
	var err error
	if fresh {
		dev, err = sfsblockdev.InitFresh(path, blockSize, totalBlocks)
	} else {
		dev, err = sfsblockdev.Init(path, blockSize, totalBlocks)
	}
	if err != nil {
		return nil, err
	}

	return mount(dev, fresh, seed)
}

// MountStream builds a Filesystem directly on top of an already-sized
// io.ReadWriteSeeker instead of a path on disk, the hook sfstesting uses to
// back a Filesystem with an in-memory image instead of a real file.
func MountStream(stream io.ReadWriteSeeker, fresh bool, seed int64) (*Filesystem, error) {
	blockSize, totalBlocks := sfsblockdev.DefaultGeometry()
	if err := validateGeometry(blockSize, totalBlocks); err != nil {
		return nil, err
	}
	dev := sfsblockdev.NewFromStream(stream, blockSize, totalBlocks)
	return mount(dev, fresh, seed)
}

// validateGeometry checks blockSize/totalBlocks against the catalogued
// reference geometry in sfsgeometry, the same way mksfs-equivalent formatting
// is supposed to reject a block device whose dimensions don't match a known,
// vetted configuration rather than silently accepting arbitrary numbers.
func validateGeometry(blockSize, totalBlocks uint) error {
	ref := sfsgeometry.Reference()
	if blockSize != ref.BlockSize || totalBlocks != ref.TotalBlocks {
		return sfserrors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("geometry %d bytes/block * %d blocks doesn't match the %q reference layout (%d/%d)",
				blockSize, totalBlocks, ref.Slug, ref.BlockSize, ref.TotalBlocks))
	}
	return nil
}

func mount(dev *sfsblockdev.BlockDevice, fresh bool, seed int64) (*Filesystem, error) {
	fs := &Filesystem{dev: dev, sb: newSuperblock(dev)}

	if fresh {
		if err := fs.formatFresh(seed); err != nil {
			return nil, err
		}
	} else {
		if err := fs.loadExisting(seed); err != nil {
			return nil, err
		}
	}

	fs.layout = newFileLayout(fs.dev, fs.bitmap, fs.inodes)
	fs.dir = newDirectory(fs.inodes, fs.layout, fs.sb)
	fs.openFiles = newOpenFileTable()

	if fresh {
		fs.dir.entries = fs.dir.entries[:0]
	} else if err := fs.dir.load(); err != nil {
		return nil, err
	}
	fs.dir.resetIterator()

	return fs, nil
}

// formatFresh lays down a brand-new superblock, inode table, and bitmap,
// marking the superblock, first inode block, and bitmap block allocated,
// then reserves inode 0 for the root directory.
func (fs *Filesystem) formatFresh(seed int64) error {
	fs.bitmap = sfsbitmap.New(fs.dev, sfslayout.TotalBlocks, seed)

	if err := fs.bitmap.SetBit(sfslayout.SuperblockIndex, true); err != nil {
		return err
	}
	if err := fs.bitmap.SetBit(sfslayout.InodeTableStart, true); err != nil {
		return err
	}
	if err := fs.bitmap.SetBit(sfslayout.BitmapBlockIndex, true); err != nil {
		return err
	}

	fs.inodes = newInodeTable(fs.dev, fs.bitmap)

	// Only the first inode-table block (already marked allocated above) is
	// persisted through saveBlock. The rest are filled with empty (invalid)
	// inode records directly via writeBlockAt so the image is fully
	// initialized on disk without
	// flipping bits that format never intended to allocate, mirroring
	// mksfs's original single write_blocks(i_node_starting_ind, 1, ...) call.
	if err := fs.inodes.saveBlock(0); err != nil {
		return err
	}
	for blk := 1; blk < sfslayout.InodeTableBlocks; blk++ {
		if err := fs.inodes.writeBlockAt(blk * sfslayout.InodesPerBlock); err != nil {
			return err
		}
	}

	rootIndex, err := fs.inodes.allocate()
	if err != nil {
		return err
	}
	if rootIndex != sfslayout.RootInodeIndex {
		return sfserrors.ErrCorrupted.WithMessage("root directory did not receive inode 0")
	}

	fs.sb.numInodes = 1
	fs.sb.dirNumElements = 0
	return fs.sb.persist()
}

// loadExisting reconstructs every cache from an already-formatted image.
func (fs *Filesystem) loadExisting(seed int64) error {
	if err := fs.sb.load(); err != nil {
		return err
	}

	bitmapBlock := make([]byte, sfslayout.BlockSize)
	if err := fs.dev.ReadBlock(sfslayout.BitmapBlockIndex, bitmapBlock); err != nil {
		return err
	}
	bm, err := sfsbitmap.FromASCII(fs.dev, bitmapBlock, seed)
	if err != nil {
		return err
	}
	fs.bitmap = bm

	fs.inodes = newInodeTable(fs.dev, fs.bitmap)
	return fs.inodes.loadAll()
}

// Unmount releases the underlying block device. It does not affect any
// already-open file handles; their state is simply discarded, since the
// open-file table is purely in-memory and ephemeral.
func (fs *Filesystem) Unmount() error {
	return fs.dev.Close()
}
