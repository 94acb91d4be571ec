// Package sfsbitmap implements the free-space manager: a bit vector
// mirroring the on-disk, byte-valued ('1'/'0') free bitmap block, with
// randomized first-fit allocation.
package sfsbitmap

import (
	"fmt"
	"math/rand"

	bitmap "github.com/boljen/go-bitmap"

	"github.com/dargueta/sfs/sfsblockdev"
	"github.com/dargueta/sfs/sfserrors"
	"github.com/dargueta/sfs/sfslayout"
)

// FreeSpaceManager owns the in-memory bit vector mirroring the disk's free
// bitmap block. A cleared bit means "free"; a set bit means "allocated",
// the inverse of the on-disk ASCII convention, translated at the boundary by
// FromASCII/ToASCII. Every mutation is written through to the bitmap block
// immediately.
type FreeSpaceManager struct {
	dev   *sfsblockdev.BlockDevice
	bits  bitmap.Bitmap
	total uint
	rng   *rand.Rand
}

// New creates a FreeSpaceManager for a disk of totalBlocks whole-disk
// blocks, with every block initially marked free. seed drives the
// randomized search order of FindFree; tests can pin it for determinism.
func New(dev *sfsblockdev.BlockDevice, totalBlocks uint, seed int64) *FreeSpaceManager {
	return &FreeSpaceManager{
		dev:   dev,
		bits:  bitmap.New(int(totalBlocks)),
		total: totalBlocks,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// FromASCII rebuilds the bit vector from a BlockSize-byte on-disk bitmap
// block using the ASCII '1' (free) / '0' (allocated) encoding.
func FromASCII(dev *sfsblockdev.BlockDevice, block []byte, seed int64) (*FreeSpaceManager, error) {
	fsm := &FreeSpaceManager{
		dev:   dev,
		bits:  bitmap.New(len(block)),
		total: uint(len(block)),
		rng:   rand.New(rand.NewSource(seed)),
	}
	for i, b := range block {
		switch b {
		case '1':
			fsm.bits.Set(i, false) // free
		case '0':
			fsm.bits.Set(i, true) // allocated
		default:
			return nil, sfserrors.ErrCorrupted.WithMessage(
				fmt.Sprintf("bitmap byte %d has invalid value %#x", i, b))
		}
	}
	return fsm, nil
}

// persist writes the current bit vector to the bitmap's whole-disk block.
func (fsm *FreeSpaceManager) persist() error {
	return fsm.dev.WriteBlock(sfslayout.BitmapBlockIndex, fsm.ToASCII())
}

// ToASCII serializes the bit vector back into the on-disk byte-valued
// representation.
func (fsm *FreeSpaceManager) ToASCII() []byte {
	out := make([]byte, fsm.total)
	for i := uint(0); i < fsm.total; i++ {
		if fsm.bits.Get(int(i)) {
			out[i] = '0'
		} else {
			out[i] = '1'
		}
	}
	return out
}

// IsFree reports whether whole-disk block index is currently unallocated.
func (fsm *FreeSpaceManager) IsFree(index uint) bool {
	return !fsm.bits.Get(int(index))
}

// SetBit flips the allocation status of whole-disk block index. used=true
// marks it allocated, used=false marks it free.
func (fsm *FreeSpaceManager) SetBit(index uint, used bool) error {
	if index >= fsm.total {
		return sfserrors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("bitmap index %d not in [0, %d)", index, fsm.total))
	}
	fsm.bits.Set(int(index), used)
	return fsm.persist()
}

// FindFree searches the half-open whole-disk range [rangeStart, rangeEnd)
// for any free block. Selection is randomized: a start index is chosen
// uniformly within the range, then probed forward modulo the range length;
// the first free block found wins. If markUsed is set, the
// chosen block is immediately marked allocated. Returns the whole-disk
// index, or sfserrors.ErrNoSpace if the range is fully allocated.
func (fsm *FreeSpaceManager) FindFree(rangeStart, rangeEnd uint, markUsed bool) (uint, error) {
	if rangeEnd <= rangeStart || rangeEnd > fsm.total {
		return 0, sfserrors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid search range [%d, %d)", rangeStart, rangeEnd))
	}

	span := rangeEnd - rangeStart
	start := uint(fsm.rng.Intn(int(span)))

	for i := uint(0); i < span; i++ {
		candidate := rangeStart + (start+i)%span
		if !fsm.bits.Get(int(candidate)) {
			if markUsed {
				fsm.bits.Set(int(candidate), true)
				if err := fsm.persist(); err != nil {
					return 0, err
				}
			}
			return candidate, nil
		}
	}

	return 0, sfserrors.ErrNoSpace
}

// CountFree returns the number of free blocks in [rangeStart, rangeEnd).
func (fsm *FreeSpaceManager) CountFree(rangeStart, rangeEnd uint) uint {
	count := uint(0)
	for i := rangeStart; i < rangeEnd; i++ {
		if !fsm.bits.Get(int(i)) {
			count++
		}
	}
	return count
}
