package sfslayout

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"
)

// byteOrder is the single fixed endianness used for every on-disk integer
// field. Documented here once rather than relying on host struct layout.
var byteOrder = binary.LittleEndian

// RawSuperblock is the bit-exact, 28-byte prefix of the superblock block.
// The remainder of the block is unused padding.
type RawSuperblock struct {
	Magic           int32
	BlockSize       int32
	FileSysLen      int32
	INodeLen        int32
	IRootDir        int32
	NumInodes       int32
	DirNumElements  int32
}

// EncodeSuperblock serializes sb into a full BlockSize-byte block, zero
// padded after the used prefix.
func EncodeSuperblock(sb RawSuperblock) []byte {
	buf := make([]byte, BlockSize)
	w := bytewriter.New(buf)
	binary.Write(w, byteOrder, &sb)
	return buf
}

// DecodeSuperblock reads the superblock prefix out of a BlockSize-byte block.
func DecodeSuperblock(block []byte) (RawSuperblock, error) {
	if len(block) < BlockSize {
		return RawSuperblock{}, fmt.Errorf("superblock buffer too small: %d bytes", len(block))
	}
	var sb RawSuperblock
	r := bytes.NewReader(block)
	if err := binary.Read(r, byteOrder, &sb); err != nil {
		return RawSuperblock{}, err
	}
	return sb, nil
}

// RawInode is the bit-exact 64-byte on-disk inode record.
type RawInode struct {
	Valid          int32
	NumIndirectPtr int32
	Size           int32
	DirectPtr      [NumDirectPointers]int32
	IndirectPtr    int32
}

// rawInodeEncodedSize is the number of bytes the named fields above encode
// to, which must fill a 64-byte inode with no padding:
//
//	3 scalars * 4B + 12 direct ptrs * 4B + 1 indirect ptr * 4B = 64B exactly.
const rawInodeEncodedSize = 4 + 4 + 4 + NumDirectPointers*4 + 4

func init() {
	if rawInodeEncodedSize != InodeSize {
		panic(fmt.Sprintf("RawInode encodes to %d bytes, want %d", rawInodeEncodedSize, InodeSize))
	}
}

// EncodeInode serializes a single inode into an InodeSize-byte buffer.
func EncodeInode(in RawInode) []byte {
	buf := make([]byte, InodeSize)
	w := bytewriter.New(buf)
	binary.Write(w, byteOrder, &in)
	return buf
}

// DecodeInode reads one inode out of an InodeSize-byte buffer.
func DecodeInode(buf []byte) (RawInode, error) {
	if len(buf) < InodeSize {
		return RawInode{}, fmt.Errorf("inode buffer too small: %d bytes", len(buf))
	}
	var in RawInode
	r := bytes.NewReader(buf)
	if err := binary.Read(r, byteOrder, &in); err != nil {
		return RawInode{}, err
	}
	return in, nil
}

// EncodeInodeBlock packs InodesPerBlock inodes into one BlockSize-byte block.
func EncodeInodeBlock(inodes [InodesPerBlock]RawInode) []byte {
	buf := make([]byte, BlockSize)
	for i, in := range inodes {
		copy(buf[i*InodeSize:(i+1)*InodeSize], EncodeInode(in))
	}
	return buf
}

// DecodeInodeBlock unpacks InodesPerBlock inodes from one BlockSize-byte
// block.
func DecodeInodeBlock(block []byte) ([InodesPerBlock]RawInode, error) {
	var out [InodesPerBlock]RawInode
	if len(block) < BlockSize {
		return out, fmt.Errorf("inode block buffer too small: %d bytes", len(block))
	}
	for i := 0; i < InodesPerBlock; i++ {
		in, err := DecodeInode(block[i*InodeSize : (i+1)*InodeSize])
		if err != nil {
			return out, err
		}
		out[i] = in
	}
	return out, nil
}

// RawDirent is the bit-exact 28-byte on-disk directory entry.
type RawDirent struct {
	// Filename is a fixed 20-byte, NUL-terminated field.
	Filename [DirentFilenameLen]byte
	Valid    int32
	INode    int32
}

// NewRawDirent builds a RawDirent from a Go string, truncating (and NUL
// terminating) it to fit DirentFilenameLen bytes. The caller is responsible
// for rejecting names that don't fit; see sfserrors.ErrNameTooLong.
func NewRawDirent(name string, valid bool, inode int32) RawDirent {
	var d RawDirent
	copy(d.Filename[:DirentFilenameLen-1], name)
	if valid {
		d.Valid = 1
	}
	d.INode = inode
	return d
}

// Name returns the NUL-terminated filename as a Go string, matching C
// strcmp/strcpy semantics: everything from the first NUL byte onward is
// ignored.
func (d RawDirent) Name() string {
	if idx := bytes.IndexByte(d.Filename[:], 0); idx >= 0 {
		return string(d.Filename[:idx])
	}
	return string(d.Filename[:])
}

// EncodeDirent serializes one directory entry into a DirentSize-byte buffer.
func EncodeDirent(d RawDirent) []byte {
	buf := make([]byte, DirentSize)
	w := bytewriter.New(buf)
	binary.Write(w, byteOrder, &d)
	return buf
}

// DecodeDirent reads one directory entry out of a DirentSize-byte buffer.
func DecodeDirent(buf []byte) (RawDirent, error) {
	if len(buf) < DirentSize {
		return RawDirent{}, fmt.Errorf("dirent buffer too small: %d bytes", len(buf))
	}
	var d RawDirent
	r := bytes.NewReader(buf)
	if err := binary.Read(r, byteOrder, &d); err != nil {
		return RawDirent{}, err
	}
	return d, nil
}

// EncodeIndirectEntry serializes a single data-region-relative block index
// as it's stored inside an indirect-pointer block.
func EncodeIndirectEntry(blockIndex int32) []byte {
	buf := make([]byte, IndirectEntrySize)
	byteOrder.PutUint32(buf, uint32(blockIndex))
	return buf
}

// DecodeIndirectEntry reads one entry out of an indirect-pointer block.
func DecodeIndirectEntry(buf []byte) int32 {
	return int32(byteOrder.Uint32(buf))
}
