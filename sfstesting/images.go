// Package sfstesting provides in-memory disk images for tests that exercise
// a Filesystem without touching the real filesystem, handing test code a
// ready-to-use io.ReadWriteSeeker rather than a temp file.
package sfstesting

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/sfs"
	"github.com/dargueta/sfs/sfsblockdev"
)

// NewBlankImage returns a zero-filled, correctly sized in-memory stream for
// the reference geometry, ready to be formatted with sfs.MountStream.
func NewBlankImage(t *testing.T) io.ReadWriteSeeker {
	t.Helper()
	blockSize, totalBlocks := sfsblockdev.DefaultGeometry()
	buf := make([]byte, blockSize*totalBlocks)
	return bytesextra.NewReadWriteSeeker(buf)
}

// MustFormat formats a brand-new in-memory image and returns the resulting
// Filesystem plus the backing stream (so the caller can simulate a reopen
// later), failing the test immediately on any error. seed pins the
// free-space allocator's search order so test assertions about which block
// gets picked are reproducible.
func MustFormat(t *testing.T, seed int64) (*sfs.Filesystem, io.ReadWriteSeeker) {
	t.Helper()
	stream := NewBlankImage(t)
	fs, err := sfs.MountStream(stream, true, seed)
	require.NoError(t, err, "failed to format in-memory image")
	return fs, stream
}

// Reopen remounts an existing in-memory image's backing stream without
// reformatting it, simulating a clean mksfs(fresh=false) after shutdown
// without ever touching a real file.
func Reopen(t *testing.T, stream io.ReadWriteSeeker, seed int64) *sfs.Filesystem {
	t.Helper()
	fs, err := sfs.MountStream(stream, false, seed)
	require.NoError(t, err, "failed to reopen in-memory image")
	return fs
}
