package simplefs

import (
	"errors"
	"fmt"
	"io"

	"github.com/sfskit/sfs"
)

// streamChunkSize is the buffer size used by ReadFrom and WriteTo.
const streamChunkSize = 16 * BlockSize

// FileStream is a file-like wrapper around one inode that emulates a subset of
// the functionality provided by an [os.File]. It holds no state besides the
// stream position, so any number of streams can be open on the same inode.
type FileStream struct {
	driver   *Driver
	inumber  sfs.Inumber
	position int64
}

var (
	_ io.ReadWriteSeeker = (*FileStream)(nil)
	_ io.ReaderAt        = (*FileStream)(nil)
	_ io.WriterAt        = (*FileStream)(nil)
	_ io.ReaderFrom      = (*FileStream)(nil)
	_ io.WriterTo        = (*FileStream)(nil)
)

// OpenStream returns a stream positioned at the beginning of a file.
func (driver *Driver) OpenStream(inumber sfs.Inumber) (*FileStream, error) {
	_, err := driver.GetSize(inumber)
	if err != nil {
		return nil, err
	}
	return &FileStream{driver: driver, inumber: inumber}, nil
}

// Inumber returns the inode number the stream is on.
func (stream *FileStream) Inumber() sfs.Inumber {
	return stream.inumber
}

// Size returns the current size of the file, in bytes.
func (stream *FileStream) Size() (int64, error) {
	size, err := stream.driver.GetSize(stream.inumber)
	return int64(size), err
}

func checkStreamOffset(offset int64) error {
	if offset < 0 {
		return sfs.ErrInvalidArgument.WithMessage(fmt.Sprintf("negative offset %d", offset))
	}
	if offset > MaxFileSize {
		return sfs.ErrFileTooLarge.WithMessage(
			fmt.Sprintf("offset %d is past the maximum file size of %d", offset, MaxFileSize))
	}
	return nil
}

// ReadAt follows the [io.ReaderAt] contract: a short read always comes with an
// error, which is [io.EOF] if the end of the file was hit.
func (stream *FileStream) ReadAt(buffer []byte, offset int64) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}
	err := checkStreamOffset(offset)
	if err != nil {
		return 0, err
	}

	n, err := stream.driver.Read(stream.inumber, buffer, len(buffer), int(offset))
	if errors.Is(err, sfs.ErrOffsetBeyondEnd) {
		return 0, io.EOF
	} else if err != nil {
		return n, err
	}

	if n < len(buffer) {
		return n, io.EOF
	}
	return n, nil
}

func (stream *FileStream) Read(buffer []byte) (int, error) {
	n, err := stream.ReadAt(buffer, stream.position)
	stream.position += int64(n)
	return n, err
}

// WriteAt writes `data` at `offset`, growing the file if needed. If the device
// fills up, the bytes that were persisted are counted and [sfs.ErrDiskFull] is
// returned.
func (stream *FileStream) WriteAt(data []byte, offset int64) (int, error) {
	err := checkStreamOffset(offset)
	if err != nil {
		return 0, err
	}
	return stream.driver.Write(stream.inumber, data, len(data), int(offset))
}

func (stream *FileStream) Write(data []byte) (int, error) {
	n, err := stream.WriteAt(data, stream.position)
	stream.position += int64(n)
	return n, err
}

// Seek sets the stream position to `offset` bytes from the origin specified in
// `whence`, which must be one of [io.SeekStart], [io.SeekCurrent], or
// [io.SeekEnd].
//
// Seeking past the end of the file is possible. Reading there returns
// [io.EOF]; writing fills the gap with zeroes.
func (stream *FileStream) Seek(offset int64, whence int) (int64, error) {
	var absoluteOffset int64

	switch whence {
	case io.SeekStart:
		absoluteOffset = offset
	case io.SeekCurrent:
		absoluteOffset = stream.position + offset
	case io.SeekEnd:
		size, err := stream.Size()
		if err != nil {
			return stream.position, err
		}
		absoluteOffset = size + offset
	default:
		return stream.position, sfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid seek origin: %d", whence))
	}

	if absoluteOffset < 0 {
		return stream.position, sfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"result of Seek(offset=%d, whence=%d) is negative",
				offset,
				whence,
			),
		)
	}

	stream.position = absoluteOffset
	return absoluteOffset, nil
}

// ReadFrom copies everything from `r` into the file at the current position.
func (stream *FileStream) ReadFrom(r io.Reader) (int64, error) {
	buffer := make([]byte, streamChunkSize)
	total := int64(0)

	for {
		n, readErr := io.ReadFull(r, buffer)
		if n > 0 {
			written, err := stream.Write(buffer[:n])
			total += int64(written)
			if err != nil {
				return total, err
			}
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			return total, nil
		} else if readErr != nil {
			return total, readErr
		}
	}
}

// WriteTo copies the file from the current position to the end into `w`.
func (stream *FileStream) WriteTo(w io.Writer) (int64, error) {
	buffer := make([]byte, streamChunkSize)
	total := int64(0)

	for {
		n, readErr := stream.Read(buffer)
		if n > 0 {
			written, err := w.Write(buffer[:n])
			total += int64(written)
			if err != nil {
				return total, err
			}
		}

		if errors.Is(readErr, io.EOF) {
			return total, nil
		} else if readErr != nil {
			return total, readErr
		}
	}
}
