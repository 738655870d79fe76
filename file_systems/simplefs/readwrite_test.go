package simplefs

import (
	"fmt"
	"testing"

	"github.com/sfskit/sfs"
	dt "github.com/sfskit/sfs/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readWholeFile reads the entire contents of a file, failing the test on error.
func readWholeFile(t *testing.T, driver *Driver, inumber sfs.Inumber) []byte {
	size, err := driver.GetSize(inumber)
	require.NoError(t, err)

	contents := make([]byte, size)
	if size == 0 {
		return contents
	}

	n, err := driver.Read(inumber, contents, size, 0)
	require.NoError(t, err)
	require.Equal(t, size, n, "short read of entire file")
	return contents
}

func TestWriteRead__RoundTrip(t *testing.T) {
	testCases := []struct {
		offset int
		length int
	}{
		{0, 1},
		{0, BlockSize},
		{100, 5000},
		{BlockSize - 1, 2},
		{NumDirectPointers*BlockSize - 10, 20},
		{0, 7*BlockSize + 123},
		{3*BlockSize + 5, 10},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d@%d", tc.length, tc.offset), func(t *testing.T) {
			driver := newFormattedDriver(t, 40)
			inumber, err := driver.Create()
			require.NoError(t, err)

			data := dt.CreateRandomImage(1, uint(tc.length), t)
			n, err := driver.Write(inumber, data, tc.length, tc.offset)
			require.NoError(t, err)
			require.Equal(t, tc.length, n)

			expected := make([]byte, tc.offset+tc.length)
			copy(expected[tc.offset:], data)
			assert.Equal(t, expected, readWholeFile(t, driver, inumber))

			readBack := make([]byte, tc.length)
			n, err = driver.Read(inumber, readBack, tc.length, tc.offset)
			require.NoError(t, err)
			assert.Equal(t, tc.length, n)
			assert.Equal(t, data, readBack)
		})
	}
}

func TestWrite__UsesOnlyLengthBytes(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	inumber, err := driver.Create()
	require.NoError(t, err)

	n, err := driver.Write(inumber, []byte("hello world"), 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), readWholeFile(t, driver, inumber))
}

func TestWrite__OverwriteDoesNotShrink(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	inumber, err := driver.Create()
	require.NoError(t, err)

	original := dt.CreateRandomImage(1, 10000, t)
	_, err = driver.Write(inumber, original, len(original), 0)
	require.NoError(t, err)
	freeAfterFirstWrite := driver.freeMap.CountFree()

	patch := []byte("0123456789")
	n, err := driver.Write(inumber, patch, len(patch), 4090)
	require.NoError(t, err)
	assert.Equal(t, len(patch), n)

	size, err := driver.GetSize(inumber)
	require.NoError(t, err)
	assert.Equal(t, 10000, size)
	assert.Equal(t, freeAfterFirstWrite, driver.freeMap.CountFree(), "overwrite allocated blocks")

	expected := append([]byte{}, original...)
	copy(expected[4090:], patch)
	assert.Equal(t, expected, readWholeFile(t, driver, inumber))
}

func TestWrite__AppendGrowsFile(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	inumber, err := driver.Create()
	require.NoError(t, err)

	first := dt.CreateRandomImage(1, 3000, t)
	second := dt.CreateRandomImage(1, 3000, t)

	_, err = driver.Write(inumber, first, len(first), 0)
	require.NoError(t, err)
	_, err = driver.Write(inumber, second, len(second), len(first))
	require.NoError(t, err)

	size, err := driver.GetSize(inumber)
	require.NoError(t, err)
	assert.Equal(t, 6000, size)
	assert.Equal(t, append(first, second...), readWholeFile(t, driver, inumber))
}

// Blocks on the test device start out as random garbage, so anything in the gap
// that isn't explicitly zeroed shows up here.
func TestWrite__GapIsZeroFilled(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	inumber, err := driver.Create()
	require.NoError(t, err)

	_, err = driver.Write(inumber, []byte("head"), 4, 0)
	require.NoError(t, err)

	offset := 3*BlockSize + 5
	_, err = driver.Write(inumber, []byte("tail"), 4, offset)
	require.NoError(t, err)

	expected := make([]byte, offset+4)
	copy(expected, "head")
	copy(expected[offset:], "tail")
	assert.Equal(t, expected, readWholeFile(t, driver, inumber))
}

func TestWrite__ZeroLength(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	inumber, err := driver.Create()
	require.NoError(t, err)
	freeBefore := driver.freeMap.CountFree()

	n, err := driver.Write(inumber, []byte{}, 0, 5000)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	size, err := driver.GetSize(inumber)
	require.NoError(t, err)
	assert.Equal(t, 0, size, "zero-length write changed the size")
	assert.Equal(t, freeBefore, driver.freeMap.CountFree())
}

func TestWrite__FileTooLarge(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	inumber, err := driver.Create()
	require.NoError(t, err)

	_, err = driver.Write(inumber, []byte{1}, 1, MaxFileSize)
	assert.ErrorIs(t, err, sfs.ErrFileTooLarge)

	size, err := driver.GetSize(inumber)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestReadWrite__InvalidArguments(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	inumber, err := driver.Create()
	require.NoError(t, err)

	buffer := make([]byte, 10)
	_, err = driver.Write(inumber, buffer, len(buffer), 0)
	require.NoError(t, err)

	testCases := []struct {
		name   string
		length int
		offset int
	}{
		{"negative length", -1, 0},
		{"negative offset", 1, -1},
		{"length larger than buffer", 11, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := driver.Read(inumber, buffer, tc.length, tc.offset)
			assert.ErrorIs(t, err, sfs.ErrInvalidArgument, "Read")
			_, err = driver.Write(inumber, buffer, tc.length, tc.offset)
			assert.ErrorIs(t, err, sfs.ErrInvalidArgument, "Write")
		})
	}
}

func TestRead__ClampedAtEndOfFile(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	inumber, err := driver.Create()
	require.NoError(t, err)

	data := dt.CreateRandomImage(1, 100, t)
	_, err = driver.Write(inumber, data, len(data), 0)
	require.NoError(t, err)

	buffer := make([]byte, 50)
	n, err := driver.Read(inumber, buffer, len(buffer), 80)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, data[80:], buffer[:n])
}

func TestRead__OffsetBeyondEnd(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	inumber, err := driver.Create()
	require.NoError(t, err)

	buffer := make([]byte, 10)
	_, err = driver.Read(inumber, buffer, len(buffer), 0)
	assert.ErrorIs(t, err, sfs.ErrOffsetBeyondEnd, "reading an empty file")

	_, err = driver.Write(inumber, buffer, len(buffer), 0)
	require.NoError(t, err)

	_, err = driver.Read(inumber, buffer, len(buffer), 10)
	assert.ErrorIs(t, err, sfs.ErrOffsetBeyondEnd, "reading at end of file")
	_, err = driver.Read(inumber, buffer, len(buffer), 5000)
	assert.ErrorIs(t, err, sfs.ErrOffsetBeyondEnd, "reading past end of file")
}

func TestRead__MissingPointer(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	inumber, err := driver.Create()
	require.NoError(t, err)

	require.NoError(t, driver.saveInode(inumber, &RawInode{
		Valid:  1,
		Size:   2 * BlockSize,
		Direct: [NumDirectPointers]uint32{3},
	}))

	buffer := make([]byte, 2*BlockSize)
	n, err := driver.Read(inumber, buffer, len(buffer), 0)
	assert.ErrorIs(t, err, sfs.ErrCorruptInode)
	assert.Equal(t, BlockSize, n, "first block should have been read before the hole")
}

// 20 blocks leaves 17 data blocks. 18 blocks of data needs 19 including the
// indirect block, so only 5 direct + 11 indirect data blocks fit.
func TestWrite__DiskFullPartialWrite(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	inumber, err := driver.Create()
	require.NoError(t, err)

	data := dt.CreateRandomImage(BlockSize, 18, t)
	n, err := driver.Write(inumber, data, len(data), 0)
	assert.ErrorIs(t, err, sfs.ErrDiskFull)
	assert.Equal(t, 16*BlockSize, n)
	assert.EqualValues(t, 0, driver.freeMap.CountFree())

	size, err := driver.GetSize(inumber)
	require.NoError(t, err)
	assert.Equal(t, n, size, "size must only cover persisted bytes")
	assert.Equal(t, data[:n], readWholeFile(t, driver, inumber))

	// Everything persisted must survive a remount.
	require.NoError(t, driver.Unmount())
	require.NoError(t, driver.Mount())
	assert.EqualValues(t, 0, driver.freeMap.CountFree())
	assert.Equal(t, data[:n], readWholeFile(t, driver, inumber))
}

// A trailing partial block that can't be allocated isn't counted.
func TestWrite__DiskFullPartialBlock(t *testing.T) {
	// One inode table block and three data blocks.
	driver := newFormattedDriver(t, 5)
	inumber, err := driver.Create()
	require.NoError(t, err)

	data := dt.CreateRandomImage(1, 3*BlockSize+100, t)
	n, err := driver.Write(inumber, data, len(data), 0)
	assert.ErrorIs(t, err, sfs.ErrDiskFull)
	assert.Equal(t, 3*BlockSize, n)
}

// The indirect block can be allocated but there's nothing left for the data
// block it would point to. The indirect block must be given back.
func TestWrite__DiskFullReleasesUnusedIndirect(t *testing.T) {
	// One inode table block and six data blocks.
	driver := newFormattedDriver(t, 8)
	inumber, err := driver.Create()
	require.NoError(t, err)

	data := dt.CreateRandomImage(BlockSize, 5, t)
	_, err = driver.Write(inumber, data, len(data), 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, driver.freeMap.CountFree())

	n, err := driver.Write(inumber, data[:BlockSize], BlockSize, 5*BlockSize)
	assert.ErrorIs(t, err, sfs.ErrDiskFull)
	assert.Equal(t, 0, n)
	assert.EqualValues(t, 1, driver.freeMap.CountFree(), "indirect block leaked")

	inode, err := driver.loadValidInode(inumber)
	require.NoError(t, err)
	assert.EqualValues(t, 5*BlockSize, inode.Size)
	assert.EqualValues(t, 0, inode.Indirect)
}

func TestWrite__DiskFullOnGap(t *testing.T) {
	driver := newFormattedDriver(t, 5)
	inumber, err := driver.Create()
	require.NoError(t, err)

	// The gap alone needs all three data blocks, so none of the payload fits.
	n, err := driver.Write(inumber, []byte("x"), 1, 3*BlockSize)
	assert.ErrorIs(t, err, sfs.ErrDiskFull)
	assert.Equal(t, 0, n)

	size, err := driver.GetSize(inumber)
	require.NoError(t, err)
	assert.Equal(t, 3*BlockSize, size)
	assert.Equal(t, make([]byte, 3*BlockSize), readWholeFile(t, driver, inumber))
}
