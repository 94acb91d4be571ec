// Package sfsblockdev is the block-addressable storage abstraction SFS is
// built on top of, the Go equivalent of an external disk emulator
// collaborator. The core filesystem logic never touches a file handle
// directly; it only ever reads and writes whole blocks by index through a
// BlockDevice.
package sfsblockdev

import (
	"fmt"
	"io"
	"os"

	"github.com/dargueta/sfs/sfserrors"
	"github.com/dargueta/sfs/sfslayout"
)

// BlockDevice is a byte-addressable backing stream accessed strictly in
// units of BlockSize bytes. It can be backed by a real file (production) or
// any other io.ReadWriteSeeker, such as an in-memory buffer (tests).
type BlockDevice struct {
	stream     io.ReadWriteSeeker
	closer     io.Closer
	blockSize  uint
	totalBlocks uint
}

// Init attaches to an existing disk image file at path. The file is assumed
// to already contain a valid SFS image of exactly blockSize*totalBlocks
// bytes; no formatting happens here.
func Init(path string, blockSize, totalBlocks uint) (*BlockDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, sfserrors.ErrIO.Wrap(err)
	}
	return &BlockDevice{stream: f, closer: f, blockSize: blockSize, totalBlocks: totalBlocks}, nil
}

// InitFresh creates (or truncates) the disk image file at path and zero
// fills it to exactly blockSize*totalBlocks bytes.
func InitFresh(path string, blockSize, totalBlocks uint) (*BlockDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, sfserrors.ErrIO.Wrap(err)
	}

	size := int64(blockSize) * int64(totalBlocks)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, sfserrors.ErrIO.Wrap(err)
	}

	return &BlockDevice{stream: f, closer: f, blockSize: blockSize, totalBlocks: totalBlocks}, nil
}

// NewFromStream wraps an already-open, already-sized stream, such as an
// in-memory buffer built by sfstesting. The stream must already be exactly
// blockSize*totalBlocks bytes long.
func NewFromStream(stream io.ReadWriteSeeker, blockSize, totalBlocks uint) *BlockDevice {
	return &BlockDevice{stream: stream, blockSize: blockSize, totalBlocks: totalBlocks}
}

// BlockSize returns the size of a single block, in bytes.
func (dev *BlockDevice) BlockSize() uint {
	return dev.blockSize
}

// TotalBlocks returns the number of whole-disk blocks.
func (dev *BlockDevice) TotalBlocks() uint {
	return dev.totalBlocks
}

func (dev *BlockDevice) checkIndex(index uint) error {
	if index >= dev.totalBlocks {
		return sfserrors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("block index %d not in [0, %d)", index, dev.totalBlocks))
	}
	return nil
}

// ReadBlock fills buf (which must be exactly BlockSize bytes) with the
// contents of block index.
func (dev *BlockDevice) ReadBlock(index uint, buf []byte) error {
	if err := dev.checkIndex(index); err != nil {
		return err
	}
	if len(buf) != int(dev.blockSize) {
		return sfserrors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("read buffer is %d bytes, want %d", len(buf), dev.blockSize))
	}

	offset := int64(index) * int64(dev.blockSize)
	if _, err := dev.stream.Seek(offset, io.SeekStart); err != nil {
		return sfserrors.ErrIO.Wrap(err)
	}
	if _, err := io.ReadFull(dev.stream, buf); err != nil {
		return sfserrors.ErrIO.Wrap(err)
	}
	return nil
}

// WriteBlock writes buf (which must be exactly BlockSize bytes) to block
// index.
func (dev *BlockDevice) WriteBlock(index uint, buf []byte) error {
	if err := dev.checkIndex(index); err != nil {
		return err
	}
	if len(buf) != int(dev.blockSize) {
		return sfserrors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("write buffer is %d bytes, want %d", len(buf), dev.blockSize))
	}

	offset := int64(index) * int64(dev.blockSize)
	if _, err := dev.stream.Seek(offset, io.SeekStart); err != nil {
		return sfserrors.ErrIO.Wrap(err)
	}
	if _, err := dev.stream.Write(buf); err != nil {
		return sfserrors.ErrIO.Wrap(err)
	}
	return nil
}

// Close releases the underlying file, if any. Streams supplied via
// NewFromStream (e.g. in-memory buffers) are left untouched.
func (dev *BlockDevice) Close() error {
	if dev.closer == nil {
		return nil
	}
	return dev.closer.Close()
}

// DefaultGeometry returns the reference geometry used to open or format an
// image (1024-byte blocks, 1024 blocks total).
func DefaultGeometry() (blockSize, totalBlocks uint) {
	return sfslayout.BlockSize, sfslayout.TotalBlocks
}
