package simplefs

import (
	"bytes"
	"io"
	"testing"

	"github.com/sfskit/sfs"
	dt "github.com/sfskit/sfs/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStream(t *testing.T, driver *Driver) *FileStream {
	inumber, err := driver.Create()
	require.NoError(t, err)
	stream, err := driver.OpenStream(inumber)
	require.NoError(t, err)
	return stream
}

func TestOpenStream__InvalidInode(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	_, err := driver.OpenStream(3)
	assert.ErrorIs(t, err, sfs.ErrInvalidInode)
}

func TestFileStream__CopyRoundTrip(t *testing.T) {
	driver := newFormattedDriver(t, 40)
	stream := newStream(t, driver)

	data := dt.CreateRandomImage(1, 2*streamChunkSize+99, t)
	n, err := stream.ReadFrom(bytes.NewReader(data))
	require.NoError(t, err)
	assert.EqualValues(t, len(data), n)

	size, err := stream.Size()
	require.NoError(t, err)
	assert.EqualValues(t, len(data), size)

	position, err := stream.Seek(0, io.SeekStart)
	require.NoError(t, err)
	require.EqualValues(t, 0, position)

	output := bytes.Buffer{}
	n, err = io.Copy(&output, stream)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), n)
	assert.Equal(t, data, output.Bytes())
}

func TestFileStream__ReadAtEOF(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	stream := newStream(t, driver)

	_, err := stream.Write([]byte("0123456789"))
	require.NoError(t, err)

	buffer := make([]byte, 8)
	n, err := stream.ReadAt(buffer, 5)
	assert.ErrorIs(t, err, io.EOF, "short read must return EOF")
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("56789"), buffer[:n])

	n, err = stream.ReadAt(buffer, 10)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)

	n, err = stream.ReadAt(buffer, 2)
	assert.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = stream.ReadAt(buffer[:0], 500)
	assert.NoError(t, err, "empty read should never fail")
	assert.Equal(t, 0, n)
}

func TestFileStream__Seek(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	stream := newStream(t, driver)

	_, err := stream.Write(make([]byte, 100))
	require.NoError(t, err)

	position, err := stream.Seek(10, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 10, position)

	position, err = stream.Seek(5, io.SeekCurrent)
	require.NoError(t, err)
	assert.EqualValues(t, 15, position)

	position, err = stream.Seek(-20, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 80, position)

	_, err = stream.Seek(-1, io.SeekStart)
	assert.ErrorIs(t, err, sfs.ErrInvalidArgument)
	_, err = stream.Seek(0, 42)
	assert.ErrorIs(t, err, sfs.ErrInvalidArgument)

	position, err = stream.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.EqualValues(t, 80, position, "failed seek moved the position")
}

func TestFileStream__WritePastEnd(t *testing.T) {
	driver := newFormattedDriver(t, 20)
	stream := newStream(t, driver)

	_, err := stream.Seek(BlockSize+3, io.SeekStart)
	require.NoError(t, err)
	n, err := stream.Write([]byte("xyz"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	expected := make([]byte, BlockSize+6)
	copy(expected[BlockSize+3:], "xyz")
	assert.Equal(t, expected, readWholeFile(t, driver, stream.Inumber()))
}

func TestFileStream__DiskFull(t *testing.T) {
	// One inode table block and three data blocks.
	driver := newFormattedDriver(t, 5)
	stream := newStream(t, driver)

	data := dt.CreateRandomImage(BlockSize, 4, t)
	n, err := stream.ReadFrom(bytes.NewReader(data))
	assert.ErrorIs(t, err, sfs.ErrDiskFull)
	assert.EqualValues(t, 3*BlockSize, n)
}
