package sfs

import (
	"github.com/dargueta/sfs/sfsblockdev"
	"github.com/dargueta/sfs/sfserrors"
	"github.com/dargueta/sfs/sfslayout"
)

// superblock is the in-memory mirror of the one-block superblock record,
// write-through consistent with disk after every mutation.
type superblock struct {
	dev            *sfsblockdev.BlockDevice
	blockSize      int32
	fileSysLen     int32
	iNodeLen       int32
	iRootDir       int32
	numInodes      int32
	dirNumElements int32
}

func newSuperblock(dev *sfsblockdev.BlockDevice) *superblock {
	return &superblock{
		dev:        dev,
		blockSize:  sfslayout.BlockSize,
		fileSysLen: sfslayout.TotalBlocks,
		iNodeLen:   sfslayout.InodeSize,
		iRootDir:   sfslayout.RootInodeIndex,
	}
}

func (sb *superblock) toRaw() sfslayout.RawSuperblock {
	return sfslayout.RawSuperblock{
		Magic:          sfslayout.Magic(),
		BlockSize:      sb.blockSize,
		FileSysLen:     sb.fileSysLen,
		INodeLen:       sb.iNodeLen,
		IRootDir:       sb.iRootDir,
		NumInodes:      sb.numInodes,
		DirNumElements: sb.dirNumElements,
	}
}

func (sb *superblock) fromRaw(raw sfslayout.RawSuperblock) {
	sb.blockSize = raw.BlockSize
	sb.fileSysLen = raw.FileSysLen
	sb.iNodeLen = raw.INodeLen
	sb.iRootDir = raw.IRootDir
	sb.numInodes = raw.NumInodes
	sb.dirNumElements = raw.DirNumElements
}

// persist writes the superblock to block 0.
func (sb *superblock) persist() error {
	return sb.dev.WriteBlock(sfslayout.SuperblockIndex, sfslayout.EncodeSuperblock(sb.toRaw()))
}

// load reads block 0 and validates the magic number.
func (sb *superblock) load() error {
	buf := make([]byte, sfslayout.BlockSize)
	if err := sb.dev.ReadBlock(sfslayout.SuperblockIndex, buf); err != nil {
		return err
	}
	raw, err := sfslayout.DecodeSuperblock(buf)
	if err != nil {
		return err
	}
	if raw.Magic != sfslayout.Magic() {
		return sfserrors.ErrCorrupted.WithMessage("superblock magic number mismatch")
	}
	sb.fromRaw(raw)
	return nil
}
