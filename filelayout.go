package sfs

import (
	"github.com/dargueta/sfs/sfsblockdev"
	"github.com/dargueta/sfs/sfsbitmap"
	"github.com/dargueta/sfs/sfserrors"
	"github.com/dargueta/sfs/sfslayout"
)

// fileLayout translates logical byte offsets within a file into physical
// data blocks, allocating direct/indirect pointers on demand. It operates
// on inodes by index into the shared inodeTable so that every mutation it
// makes can be persisted through the same write-through path the rest of
// the filesystem uses.
type fileLayout struct {
	dev    *sfsblockdev.BlockDevice
	bitmap *sfsbitmap.FreeSpaceManager
	table  *inodeTable
}

func newFileLayout(dev *sfsblockdev.BlockDevice, bm *sfsbitmap.FreeSpaceManager, table *inodeTable) *fileLayout {
	return &fileLayout{dev: dev, bitmap: bm, table: table}
}

func dataRegionToWholeDisk(dataRelative int32) uint {
	return sfslayout.DataRegionStart + uint(dataRelative)
}

// allocateDataBlock finds and marks used one free data-region block,
// returning its data-region-relative index.
func (fl *fileLayout) allocateDataBlock() (int32, error) {
	idx, err := fl.bitmap.FindFree(sfslayout.DataRegionStart, sfslayout.DataRegionStart+sfslayout.DataRegionBlocks, true)
	if err != nil {
		return 0, err
	}
	return int32(idx - sfslayout.DataRegionStart), nil
}

func (fl *fileLayout) readIndirectBlock(in inode) ([sfslayout.IndirectEntriesPerBlock]int32, error) {
	var entries [sfslayout.IndirectEntriesPerBlock]int32
	buf := make([]byte, sfslayout.BlockSize)
	if err := fl.dev.ReadBlock(dataRegionToWholeDisk(in.indirectPtr), buf); err != nil {
		return entries, err
	}
	for i := 0; i < sfslayout.IndirectEntriesPerBlock; i++ {
		entries[i] = sfslayout.DecodeIndirectEntry(buf[i*sfslayout.IndirectEntrySize : (i+1)*sfslayout.IndirectEntrySize])
	}
	return entries, nil
}

func (fl *fileLayout) writeIndirectBlock(in inode, entries [sfslayout.IndirectEntriesPerBlock]int32) error {
	buf := make([]byte, sfslayout.BlockSize)
	for i, e := range entries {
		copy(buf[i*sfslayout.IndirectEntrySize:(i+1)*sfslayout.IndirectEntrySize], sfslayout.EncodeIndirectEntry(e))
	}
	return fl.dev.WriteBlock(dataRegionToWholeDisk(in.indirectPtr), buf)
}

// blockForOffset is the read-only translation of a logical block number to
// a whole-disk block index. ok is false if no block is allocated there yet
// (a short read, never an error).
func (fl *fileLayout) blockForOffset(inodeIndex int, logicalBlock int) (wholeDisk uint, ok bool, err error) {
	in, err := fl.table.get(inodeIndex)
	if err != nil {
		return 0, false, err
	}

	if logicalBlock >= sfslayout.MaxLogicalBlocks {
		return 0, false, nil
	}

	if logicalBlock < sfslayout.NumDirectPointers {
		ptr := in.directPtr[logicalBlock]
		if ptr == sfslayout.NonePointer {
			return 0, false, nil
		}
		return dataRegionToWholeDisk(ptr), true, nil
	}

	idx := logicalBlock - sfslayout.NumDirectPointers
	if in.indirectPtr == sfslayout.NonePointer || int32(idx) >= in.numIndirectPtr {
		return 0, false, nil
	}

	entries, err := fl.readIndirectBlock(in)
	if err != nil {
		return 0, false, err
	}
	return dataRegionToWholeDisk(entries[idx]), true, nil
}

// ensureBlock returns the whole-disk block backing logicalBlock within the
// file owned by inodeIndex, allocating direct/indirect pointers as needed.
// Returns sfserrors.ErrNoSpace if the disk is full or the file has reached
// its maximum length (268 logical blocks).
func (fl *fileLayout) ensureBlock(inodeIndex int, logicalBlock int) (uint, error) {
	if logicalBlock >= sfslayout.MaxLogicalBlocks {
		return 0, sfserrors.ErrNoSpace
	}

	in, err := fl.table.get(inodeIndex)
	if err != nil {
		return 0, err
	}

	if logicalBlock < sfslayout.NumDirectPointers {
		if in.directPtr[logicalBlock] != sfslayout.NonePointer {
			return dataRegionToWholeDisk(in.directPtr[logicalBlock]), nil
		}

		dataBlock, err := fl.allocateDataBlock()
		if err != nil {
			return 0, err
		}
		in.directPtr[logicalBlock] = dataBlock
		fl.table.set(inodeIndex, in)
		if err := fl.table.saveBlock(inodeIndex); err != nil {
			return 0, err
		}
		return dataRegionToWholeDisk(dataBlock), nil
	}

	idx := logicalBlock - sfslayout.NumDirectPointers

	if in.indirectPtr == sfslayout.NonePointer {
		// First indirect-range write for this file: allocate both the
		// indirect pointer block itself and the first data block it
		// refers to.
		indirectBlock, err := fl.allocateDataBlock()
		if err != nil {
			return 0, err
		}
		dataBlock, err := fl.allocateDataBlock()
		if err != nil {
			return 0, err
		}

		in.indirectPtr = indirectBlock
		in.numIndirectPtr = 1
		fl.table.set(inodeIndex, in)

		var entries [sfslayout.IndirectEntriesPerBlock]int32
		for i := range entries {
			entries[i] = sfslayout.NonePointer
		}
		entries[0] = dataBlock

		if err := fl.writeIndirectBlock(in, entries); err != nil {
			return 0, err
		}
		if err := fl.table.saveBlock(inodeIndex); err != nil {
			return 0, err
		}
		return dataRegionToWholeDisk(dataBlock), nil
	}

	entries, err := fl.readIndirectBlock(in)
	if err != nil {
		return 0, err
	}

	if int32(idx) < in.numIndirectPtr {
		return dataRegionToWholeDisk(entries[idx]), nil
	}

	if in.numIndirectPtr >= sfslayout.IndirectEntriesPerBlock {
		return 0, sfserrors.ErrNoSpace
	}

	dataBlock, err := fl.allocateDataBlock()
	if err != nil {
		return 0, err
	}
	entries[in.numIndirectPtr] = dataBlock
	in.numIndirectPtr++
	fl.table.set(inodeIndex, in)

	if err := fl.writeIndirectBlock(in, entries); err != nil {
		return 0, err
	}
	if err := fl.table.saveBlock(inodeIndex); err != nil {
		return 0, err
	}
	return dataRegionToWholeDisk(dataBlock), nil
}

// addDataBlockToInode attaches an already-allocated data-region-relative
// block to inodeIndex's pointer structure: the first free direct slot if
// one exists, otherwise the indirect path (allocating the indirect block
// itself on first use). This is the path the directory's grow step uses:
// the caller only decides *that* a new block is needed, and this function
// is the sole authority on *where* it ends up in the inode's pointer
// structure.
func (fl *fileLayout) addDataBlockToInode(inodeIndex int, dataBlock int32) error {
	in, err := fl.table.get(inodeIndex)
	if err != nil {
		return err
	}

	for i, ptr := range in.directPtr {
		if ptr == sfslayout.NonePointer {
			in.directPtr[i] = dataBlock
			fl.table.set(inodeIndex, in)
			return fl.table.saveBlock(inodeIndex)
		}
	}

	if in.indirectPtr == sfslayout.NonePointer {
		indirectBlock, err := fl.allocateDataBlock()
		if err != nil {
			return err
		}
		in.indirectPtr = indirectBlock
		in.numIndirectPtr = 1
		fl.table.set(inodeIndex, in)

		var entries [sfslayout.IndirectEntriesPerBlock]int32
		for i := range entries {
			entries[i] = sfslayout.NonePointer
		}
		entries[0] = dataBlock
		if err := fl.writeIndirectBlock(in, entries); err != nil {
			return err
		}
		return fl.table.saveBlock(inodeIndex)
	}

	if in.numIndirectPtr >= sfslayout.IndirectEntriesPerBlock {
		return sfserrors.ErrNoSpace
	}

	entries, err := fl.readIndirectBlock(in)
	if err != nil {
		return err
	}
	entries[in.numIndirectPtr] = dataBlock
	in.numIndirectPtr++
	fl.table.set(inodeIndex, in)
	if err := fl.writeIndirectBlock(in, entries); err != nil {
		return err
	}
	return fl.table.saveBlock(inodeIndex)
}

// freeAllBlocks releases every data block (direct, indirect entries, and
// the indirect block itself) owned by the inode at index.
func (fl *fileLayout) freeAllBlocks(inodeIndex int) error {
	in, err := fl.table.get(inodeIndex)
	if err != nil {
		return err
	}

	for _, ptr := range in.directPtr {
		if ptr != sfslayout.NonePointer {
			if err := fl.bitmap.SetBit(dataRegionToWholeDisk(ptr), false); err != nil {
				return err
			}
		}
	}

	if in.indirectPtr != sfslayout.NonePointer {
		entries, err := fl.readIndirectBlock(in)
		if err != nil {
			return err
		}
		for i := int32(0); i < in.numIndirectPtr; i++ {
			if err := fl.bitmap.SetBit(dataRegionToWholeDisk(entries[i]), false); err != nil {
				return err
			}
		}
		if err := fl.bitmap.SetBit(dataRegionToWholeDisk(in.indirectPtr), false); err != nil {
			return err
		}
	}

	return nil
}
