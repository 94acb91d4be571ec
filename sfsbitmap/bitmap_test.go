package sfsbitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/sfs/sfsblockdev"
)

func newTestDevice(t *testing.T) *sfsblockdev.BlockDevice {
	t.Helper()
	const blockSize, totalBlocks = 1024, 1024
	stream := bytesextra.NewReadWriteSeeker(make([]byte, blockSize*totalBlocks))
	return sfsblockdev.NewFromStream(stream, blockSize, totalBlocks)
}

func TestNewEverythingFree(t *testing.T) {
	fsm := New(newTestDevice(t), 1024, 1)
	assert.Equal(t, uint(1024), fsm.CountFree(0, 1024))
	assert.True(t, fsm.IsFree(0))
	assert.True(t, fsm.IsFree(1023))
}

func TestSetBitMarksAllocated(t *testing.T) {
	fsm := New(newTestDevice(t), 1024, 1)
	require.NoError(t, fsm.SetBit(5, true))
	assert.False(t, fsm.IsFree(5))
	assert.Equal(t, uint(1023), fsm.CountFree(0, 1024))

	require.NoError(t, fsm.SetBit(5, false))
	assert.True(t, fsm.IsFree(5))
}

func TestSetBitOutOfRange(t *testing.T) {
	fsm := New(newTestDevice(t), 1024, 1)
	err := fsm.SetBit(1024, true)
	assert.Error(t, err)
}

func TestFindFreeMarksUsed(t *testing.T) {
	fsm := New(newTestDevice(t), 1024, 42)
	idx, err := fsm.FindFree(17, 1023, true)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, idx, uint(17))
	assert.Less(t, idx, uint(1023))
	assert.False(t, fsm.IsFree(idx))
}

func TestFindFreeExhaustedRange(t *testing.T) {
	fsm := New(newTestDevice(t), 1024, 7)
	for i := uint(17); i < 20; i++ {
		require.NoError(t, fsm.SetBit(i, true))
	}
	_, err := fsm.FindFree(17, 20, false)
	assert.Error(t, err)
}

func TestASCIIRoundTrip(t *testing.T) {
	dev := newTestDevice(t)
	fsm := New(dev, 1024, 3)
	require.NoError(t, fsm.SetBit(0, true))
	require.NoError(t, fsm.SetBit(1, true))
	require.NoError(t, fsm.SetBit(1023, true))

	ascii := fsm.ToASCII()
	require.Len(t, ascii, 1024)
	assert.Equal(t, byte('0'), ascii[0])
	assert.Equal(t, byte('0'), ascii[1])
	assert.Equal(t, byte('1'), ascii[2])
	assert.Equal(t, byte('0'), ascii[1023])

	restored, err := FromASCII(dev, ascii, 1)
	require.NoError(t, err)
	assert.False(t, restored.IsFree(0))
	assert.False(t, restored.IsFree(1))
	assert.True(t, restored.IsFree(2))
	assert.False(t, restored.IsFree(1023))
}

func TestFromASCIIRejectsInvalidByte(t *testing.T) {
	dev := newTestDevice(t)
	block := make([]byte, 1024)
	for i := range block {
		block[i] = '1'
	}
	block[10] = 'x'

	_, err := FromASCII(dev, block, 1)
	assert.Error(t, err)
}
