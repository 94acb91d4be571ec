package sfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/sfs/sfslayout"
)

func TestEnsureBlockAllocatesDirectPointer(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 300)

	inodeIdx, err := fs.inodes.allocate()
	require.NoError(t, err)

	whole, err := fs.layout.ensureBlock(inodeIdx, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, whole, uint(sfslayout.DataRegionStart))

	// Calling again for the same logical block returns the same physical
	// block rather than allocating a new one.
	again, err := fs.layout.ensureBlock(inodeIdx, 0)
	require.NoError(t, err)
	assert.Equal(t, whole, again)
}

func TestEnsureBlockCrossesIntoIndirectRange(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 301)

	inodeIdx, err := fs.inodes.allocate()
	require.NoError(t, err)

	// Logical block 12 is the first indirect-range block.
	whole, err := fs.layout.ensureBlock(inodeIdx, sfslayout.NumDirectPointers)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, whole, uint(sfslayout.DataRegionStart))

	in, err := fs.inodes.get(inodeIdx)
	require.NoError(t, err)
	assert.NotEqual(t, sfslayout.NonePointer, in.indirectPtr)
	assert.EqualValues(t, 1, in.numIndirectPtr)
}

func TestEnsureBlockFailsPastMaxLogicalBlocks(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 302)

	inodeIdx, err := fs.inodes.allocate()
	require.NoError(t, err)

	_, err = fs.layout.ensureBlock(inodeIdx, sfslayout.MaxLogicalBlocks)
	assert.Error(t, err)
}

func TestBlockForOffsetReportsHoles(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 303)

	inodeIdx, err := fs.inodes.allocate()
	require.NoError(t, err)

	_, ok, err := fs.layout.blockForOffset(inodeIdx, 0)
	require.NoError(t, err)
	assert.False(t, ok, "no block allocated yet")

	_, err = fs.layout.ensureBlock(inodeIdx, 0)
	require.NoError(t, err)

	_, ok, err = fs.layout.blockForOffset(inodeIdx, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAddDataBlockToInodeFillsDirectThenIndirect(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 304)

	inodeIdx, err := fs.inodes.allocate()
	require.NoError(t, err)

	for i := 0; i < sfslayout.NumDirectPointers; i++ {
		block, err := fs.layout.allocateDataBlock()
		require.NoError(t, err)
		require.NoError(t, fs.layout.addDataBlockToInode(inodeIdx, block))
	}

	in, err := fs.inodes.get(inodeIdx)
	require.NoError(t, err)
	for _, ptr := range in.directPtr {
		assert.NotEqual(t, sfslayout.NonePointer, ptr)
	}
	assert.Equal(t, sfslayout.NonePointer, in.indirectPtr)

	// One more push spills into the indirect block.
	block, err := fs.layout.allocateDataBlock()
	require.NoError(t, err)
	require.NoError(t, fs.layout.addDataBlockToInode(inodeIdx, block))

	in, err = fs.inodes.get(inodeIdx)
	require.NoError(t, err)
	assert.NotEqual(t, sfslayout.NonePointer, in.indirectPtr)
	assert.EqualValues(t, 1, in.numIndirectPtr)
}

func TestFreeAllBlocksReturnsThemToTheBitmap(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 305)

	inodeIdx, err := fs.inodes.allocate()
	require.NoError(t, err)

	for i := 0; i < sfslayout.NumDirectPointers+5; i++ {
		_, err := fs.layout.ensureBlock(inodeIdx, i)
		require.NoError(t, err)
	}

	freeBefore := fs.bitmap.CountFree(sfslayout.DataRegionStart, sfslayout.DataRegionStart+sfslayout.DataRegionBlocks)
	require.NoError(t, fs.layout.freeAllBlocks(inodeIdx))
	freeAfter := fs.bitmap.CountFree(sfslayout.DataRegionStart, sfslayout.DataRegionStart+sfslayout.DataRegionBlocks)

	// 12 direct blocks + 1 indirect block + 5 indirect entries = 18 blocks.
	assert.Equal(t, freeBefore+18, freeAfter)
}
