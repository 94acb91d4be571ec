package sfs

import (
	"fmt"

	"github.com/dargueta/sfs/sfsblockdev"
	"github.com/dargueta/sfs/sfsbitmap"
	"github.com/dargueta/sfs/sfserrors"
	"github.com/dargueta/sfs/sfslayout"
)

// inode is the in-memory form of an on-disk inode record. A pointer value
// of -1 (sfslayout.NonePointer) means "unused"; that's
// represented here as the same sentinel rather than an optional type to keep
// direct/indirect pointer arrays simple to serialize.
type inode struct {
	valid          bool
	numIndirectPtr int32
	size           int32
	directPtr      [sfslayout.NumDirectPointers]int32
	indirectPtr    int32
}

func emptyInode() inode {
	in := inode{indirectPtr: sfslayout.NonePointer}
	for i := range in.directPtr {
		in.directPtr[i] = sfslayout.NonePointer
	}
	return in
}

func inodeFromRaw(raw sfslayout.RawInode) inode {
	return inode{
		valid:          raw.Valid != 0,
		numIndirectPtr: raw.NumIndirectPtr,
		size:           raw.Size,
		directPtr:      raw.DirectPtr,
		indirectPtr:    raw.IndirectPtr,
	}
}

func (in inode) toRaw() sfslayout.RawInode {
	validFlag := int32(0)
	if in.valid {
		validFlag = 1
	}
	return sfslayout.RawInode{
		Valid:          validFlag,
		NumIndirectPtr: in.numIndirectPtr,
		Size:           in.size,
		DirectPtr:      in.directPtr,
		IndirectPtr:    in.indirectPtr,
	}
}

// inodeTable is the 256-slot in-memory cache of every inode, kept
// write-through consistent with disk.
type inodeTable struct {
	slots  [sfslayout.TotalInodeSlots]inode
	dev    *sfsblockdev.BlockDevice
	bitmap *sfsbitmap.FreeSpaceManager
}

func newInodeTable(dev *sfsblockdev.BlockDevice, bm *sfsbitmap.FreeSpaceManager) *inodeTable {
	t := &inodeTable{dev: dev, bitmap: bm}
	for i := range t.slots {
		t.slots[i] = emptyInode()
	}
	return t
}

// blockOfInode returns the whole-disk block index holding inode index.
func blockOfInode(index int) uint {
	return sfslayout.InodeTableStart + uint(index/sfslayout.InodesPerBlock)
}

// loadAll reads every inode-table block from disk into the cache.
func (t *inodeTable) loadAll() error {
	buf := make([]byte, sfslayout.BlockSize)
	for blk := 0; blk < sfslayout.InodeTableBlocks; blk++ {
		if err := t.dev.ReadBlock(sfslayout.InodeTableStart+uint(blk), buf); err != nil {
			return err
		}
		raws, err := sfslayout.DecodeInodeBlock(buf)
		if err != nil {
			return err
		}
		for i, raw := range raws {
			t.slots[blk*sfslayout.InodesPerBlock+i] = inodeFromRaw(raw)
		}
	}
	return nil
}

// writeBlockAt repacks every inode belonging to the block containing inode
// index and writes it to disk, without touching the bitmap. formatFresh uses
// this to write empty (invalid) inode records into inode-table blocks that
// come out of format marked free.
func (t *inodeTable) writeBlockAt(index int) error {
	blockIndex := blockOfInode(index)

	var raws [sfslayout.InodesPerBlock]sfslayout.RawInode
	first := (index / sfslayout.InodesPerBlock) * sfslayout.InodesPerBlock
	for i := 0; i < sfslayout.InodesPerBlock; i++ {
		raws[i] = t.slots[first+i].toRaw()
	}

	return t.dev.WriteBlock(blockIndex, sfslayout.EncodeInodeBlock(raws))
}

// saveBlock writes the block containing inode index to disk and, if the
// bitmap currently marks that block as free, flips it to used; this should
// never happen outside a format bug, but the on-disk state must never
// contradict the bitmap.
func (t *inodeTable) saveBlock(index int) error {
	if err := t.writeBlockAt(index); err != nil {
		return err
	}

	blockIndex := blockOfInode(index)
	if t.bitmap.IsFree(blockIndex) {
		if err := t.bitmap.SetBit(blockIndex, true); err != nil {
			return err
		}
	}
	return nil
}

// get returns the inode at index, by value.
func (t *inodeTable) get(index int) (inode, error) {
	if index < 0 || index >= sfslayout.TotalInodeSlots {
		return inode{}, sfserrors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("inode index %d out of range", index))
	}
	return t.slots[index], nil
}

// set overwrites the inode at index without persisting it.
func (t *inodeTable) set(index int, in inode) {
	t.slots[index] = in
}

// countValid returns the number of currently valid inode slots.
func (t *inodeTable) countValid() int {
	n := 0
	for _, in := range t.slots {
		if in.valid {
			n++
		}
	}
	return n
}

// allocate reserves the first invalid inode slot, persists it, and returns
// its index. Returns sfserrors.ErrNoSpace if every slot is in use.
func (t *inodeTable) allocate() (int, error) {
	for i := range t.slots {
		if !t.slots[i].valid {
			t.slots[i] = emptyInode()
			t.slots[i].valid = true
			if err := t.saveBlock(i); err != nil {
				return 0, err
			}
			return i, nil
		}
	}
	return 0, sfserrors.ErrNoSpace
}

// free marks the inode at index invalid and persists its block. The caller
// is responsible for updating superblock.num_inodes.
func (t *inodeTable) free(index int) error {
	in, err := t.get(index)
	if err != nil {
		return err
	}
	in.valid = false
	t.slots[index] = in
	return t.saveBlock(index)
}
