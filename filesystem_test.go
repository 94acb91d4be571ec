package sfs

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/sfs/sfslayout"
)

func newFreshTestFilesystem(t *testing.T, seed int64) (*Filesystem, io.ReadWriteSeeker) {
	t.Helper()
	stream := bytesextra.NewReadWriteSeeker(make([]byte, sfslayout.BlockSize*sfslayout.TotalBlocks))
	fs, err := MountStream(stream, true, seed)
	require.NoError(t, err)
	return fs, stream
}

// S1: fresh fs; open("a") -> fd0; write(fd0, "hello", 5) = 5; close(fd0);
// getfilesize("a") = 5.
func TestScenarioS1WriteThenGetSize(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 1)

	fd, err := fs.Open("a")
	require.NoError(t, err)

	n, err := fs.Write(fd, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, fs.Close(fd))

	size, err := fs.GetFileSize("a")
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)
}

// S2: fresh fs; create files "f0".."f49", each with payload "xyz"; iterate
// with getnextfilename; expect exactly 50 distinct names delivered.
func TestScenarioS2IterateFiftyFiles(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 2)

	want := make(map[string]bool, 50)
	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("f%d", i)
		want[name] = true

		fd, err := fs.Open(name)
		require.NoError(t, err)
		_, err = fs.Write(fd, []byte("xyz"))
		require.NoError(t, err)
		require.NoError(t, fs.Close(fd))
	}

	got := make(map[string]bool, 50)
	for {
		name, ok := fs.GetNextFileName()
		if !ok {
			break
		}
		got[name] = true
	}

	assert.Len(t, got, 50)
	assert.Equal(t, want, got)
}

// S3: fresh fs; open("big"); write 300,000 bytes of 0xAA; expect return <=
// 274,432; getfilesize("big") equals the returned write count.
func TestScenarioS3MaxFileSizeCeiling(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 3)

	fd, err := fs.Open("big")
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0xAA}, 300000)
	n, err := fs.Write(fd, payload)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, sfslayout.MaxFileSize)

	require.NoError(t, fs.Close(fd))

	size, err := fs.GetFileSize("big")
	require.NoError(t, err)
	assert.EqualValues(t, n, size)
}

// S4: fresh fs; open("a"); write 2048 bytes; seek(1024); read 1024 bytes;
// bytes returned MUST equal the second half of what was written.
func TestScenarioS4SeekThenRead(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 4)

	payload := make([]byte, 2048)
	for i := range payload {
		payload[i] = byte(i)
	}

	fd, err := fs.Open("a")
	require.NoError(t, err)
	n, err := fs.Write(fd, payload)
	require.NoError(t, err)
	require.Equal(t, 2048, n)

	require.NoError(t, fs.Seek(fd, 1024))

	got := make([]byte, 1024)
	nRead, err := fs.Read(fd, got)
	require.NoError(t, err)
	require.Equal(t, 1024, nRead)

	assert.Equal(t, payload[1024:], got)
}

// S5: reopen-persistence: write scenario S1, destroy caches, call
// mksfs(fresh=false), getfilesize("a") = 5, read("a") = "hello".
func TestScenarioS5ReopenPersistence(t *testing.T) {
	fs, stream := newFreshTestFilesystem(t, 5)

	fd, err := fs.Open("a")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	reopened, err := MountStream(stream, false, 5)
	require.NoError(t, err)

	size, err := reopened.GetFileSize("a")
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)

	fd2, err := reopened.Open("a")
	require.NoError(t, err)
	require.NoError(t, reopened.Seek(fd2, 0))

	buf := make([]byte, 5)
	n, err := reopened.Read(fd2, buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

// S6: fill disk by writing max-size files until the data region is
// exhausted; remove one; verify a subsequent write of the same size
// succeeds again.
func TestScenarioS6RemoveFreesSpaceForReuse(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 6)

	payload := bytes.Repeat([]byte{0x42}, sfslayout.MaxFileSize)
	var names []string

	for i := 0; ; i++ {
		name := fmt.Sprintf("filler%d", i)
		fd, err := fs.Open(name)
		require.NoError(t, err)
		n, err := fs.Write(fd, payload)
		require.NoError(t, err)
		require.NoError(t, fs.Close(fd))
		names = append(names, name)
		if n < sfslayout.MaxFileSize {
			// Disk is now full (or too full for another complete max-size
			// file); this was necessarily a short write.
			break
		}
	}
	require.Greater(t, len(names), 1, "expected at least one full-size file before exhaustion")

	// Remove the first filler file to free up a full max-size file's worth
	// of blocks.
	require.NoError(t, fs.Remove(names[0]))

	fd, err := fs.Open("reclaimed")
	require.NoError(t, err)
	n, err := fs.Write(fd, payload)
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	assert.Equal(t, sfslayout.MaxFileSize, n)
}

func TestMksfsFreshMarksExactlyThreeBlocksUsed(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 7)
	free := fs.bitmap.CountFree(0, sfslayout.TotalBlocks)
	assert.EqualValues(t, sfslayout.TotalBlocks-3, free)
}

func TestRoundTripReadEqualsWritten(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 8)

	payload := bytes.Repeat([]byte{0x99, 0x01}, 2000) // 4000 bytes, well under max.

	fd, err := fs.Open("roundtrip")
	require.NoError(t, err)
	n, err := fs.Write(fd, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	require.NoError(t, fs.Seek(fd, 0))
	got := make([]byte, len(payload))
	nRead, err := fs.Read(fd, got)
	require.NoError(t, err)
	require.Equal(t, len(payload), nRead)
	assert.Equal(t, payload, got)
}

func TestOverwriteInPlaceDoesNotInflateSize(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 9)

	fd, err := fs.Open("a")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("0123456789"))
	require.NoError(t, err)

	require.NoError(t, fs.Seek(fd, 0))
	n, err := fs.Write(fd, []byte("ABCDE"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	size, err := fs.GetFileSize("a")
	require.NoError(t, err)
	assert.EqualValues(t, 10, size) // unchanged: overwrite, not append.
}

func TestReadNearEOFDoesNotOverrun(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 10)

	fd, err := fs.Open("a")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("0123456789"))
	require.NoError(t, err)

	require.NoError(t, fs.Seek(fd, 8))
	buf := make([]byte, 100)
	n, err := fs.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "89", string(buf[:n]))
}

func TestDoubleCloseFails(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 11)

	fd, err := fs.Open("a")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))
	assert.Error(t, fs.Close(fd))
}

func TestDoubleRemoveFails(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 12)

	fd, err := fs.Open("a")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	require.NoError(t, fs.Remove("a"))
	assert.Error(t, fs.Remove("a"))
}

func TestRemoveFreesAllDataBlocks(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 13)

	fd, err := fs.Open("a")
	require.NoError(t, err)
	_, err = fs.Write(fd, bytes.Repeat([]byte{1}, sfslayout.BlockSize*20))
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	freeBefore := fs.bitmap.CountFree(sfslayout.DataRegionStart, sfslayout.DataRegionStart+sfslayout.DataRegionBlocks)

	require.NoError(t, fs.Remove("a"))

	freeAfter := fs.bitmap.CountFree(sfslayout.DataRegionStart, sfslayout.DataRegionStart+sfslayout.DataRegionBlocks)
	assert.Greater(t, freeAfter, freeBefore)
}

func TestMaxFileSizeBoundaryWriteOfOneByteOver(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 14)

	fd, err := fs.Open("huge")
	require.NoError(t, err)

	n, err := fs.Write(fd, make([]byte, sfslayout.MaxFileSize+1))
	require.NoError(t, err)
	assert.Equal(t, sfslayout.MaxFileSize, n)
}

func TestOpenNameTooLong(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 15)
	_, err := fs.Open("this-filename-is-definitely-too-long-for-the-field")
	assert.Error(t, err)
}

func TestGetFileSizeNotFound(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 16)
	_, err := fs.GetFileSize("nope")
	assert.Error(t, err)
}

func TestSeekOutOfRange(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 17)
	fd, err := fs.Open("a")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("hello"))
	require.NoError(t, err)

	assert.Error(t, fs.Seek(fd, -1))
	assert.Error(t, fs.Seek(fd, 6))
	assert.NoError(t, fs.Seek(fd, 5))
}

func TestOpenTwiceReturnsSameHandle(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 18)
	fd1, err := fs.Open("a")
	require.NoError(t, err)
	fd2, err := fs.Open("a")
	require.NoError(t, err)
	assert.Equal(t, fd1, fd2)
}

func TestCheckInvariantsOnFreshFilesystem(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 19)
	assert.NoError(t, fs.CheckInvariants())
}

func TestCheckInvariantsAfterActivity(t *testing.T) {
	fs, _ := newFreshTestFilesystem(t, 20)
	for i := 0; i < 10; i++ {
		fd, err := fs.Open(string(rune('a' + i)))
		require.NoError(t, err)
		_, err = fs.Write(fd, bytes.Repeat([]byte{byte(i)}, 3000))
		require.NoError(t, err)
		require.NoError(t, fs.Close(fd))
	}
	require.NoError(t, fs.Remove("c"))
	assert.NoError(t, fs.CheckInvariants())
}
