package common

import (
	"fmt"
	"io"

	"github.com/sfskit/sfs"
	"github.com/xaionaro-go/bytesextra"
)

// BlockDevice is the contract between a file system and the storage underneath
// it. All I/O is done one whole block at a time, and a block is considered
// durable once WriteBlock returns.
type BlockDevice interface {
	// BytesPerBlock gives the size of a single block, in bytes.
	BytesPerBlock() uint
	// TotalBlocks gives the number of blocks on the device.
	TotalBlocks() uint
	// ReadBlock copies the contents of `block` into `buffer`, which must be
	// exactly BytesPerBlock() bytes.
	ReadBlock(block PhysicalBlock, buffer []byte) error
	// WriteBlock replaces the contents of `block` with `buffer`, which must be
	// exactly BytesPerBlock() bytes.
	WriteBlock(block PhysicalBlock, buffer []byte) error
}

// FetchBlockCallback is a pointer to a function that writes the contents of a
// single block from the backing storage into `buffer`. The following guarantees
// apply:
//
// - `block` is in the range [0, TotalBlocks).
// - `buffer` is always BytesPerBlock bytes.
type FetchBlockCallback func(block PhysicalBlock, buffer []byte) error

// FlushBlockCallback is a pointer to a function that writes the contents of the
// given buffer to a block in the backing storage. All restrictions and
// guarantees in [FetchBlockCallback] apply here too.
type FlushBlockCallback func(block PhysicalBlock, buffer []byte) error

// CallbackDevice is a [BlockDevice] that delegates the actual I/O to a pair of
// callbacks. It does all bounds checking itself, so the callbacks never see a
// block number or buffer size they need to reject.
type CallbackDevice struct {
	fetch         FetchBlockCallback
	flush         FlushBlockCallback
	bytesPerBlock uint
	totalBlocks   uint
}

// NewCallbackDevice creates a new CallbackDevice. `fetchCb` reads a single block
// from the backing storage and `flushCb` writes one.
func NewCallbackDevice(
	bytesPerBlock uint,
	totalBlocks uint,
	fetchCb FetchBlockCallback,
	flushCb FlushBlockCallback,
) *CallbackDevice {
	return &CallbackDevice{
		fetch:         fetchCb,
		flush:         flushCb,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}
}

// WrapStream creates a [CallbackDevice] that wraps any [io.ReadWriteSeeker],
// such as an open image file.
func WrapStream(stream io.ReadWriteSeeker, bytesPerBlock uint, totalBlocks uint) *CallbackDevice {
	fetchCb := func(block PhysicalBlock, buffer []byte) error {
		err := seekToBlock(stream, block, bytesPerBlock)
		if err != nil {
			return err
		}
		_, err = io.ReadFull(stream, buffer)
		return err
	}

	flushCb := func(block PhysicalBlock, buffer []byte) error {
		err := seekToBlock(stream, block, bytesPerBlock)
		if err != nil {
			return err
		}
		_, err = stream.Write(buffer)
		return err
	}

	return NewCallbackDevice(bytesPerBlock, totalBlocks, fetchCb, flushCb)
}

// NewMemoryDevice creates a zero-filled device that lives entirely in memory.
func NewMemoryDevice(bytesPerBlock uint, totalBlocks uint) *CallbackDevice {
	storage := make([]byte, bytesPerBlock*totalBlocks)
	return WrapStream(bytesextra.NewReadWriteSeeker(storage), bytesPerBlock, totalBlocks)
}

// DetermineBlockCount gives the total number of blocks in a stream, rounded down
// to the nearest block.
func DetermineBlockCount(stream io.Seeker, bytesPerBlock uint) (uint, error) {
	offset, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	return uint(offset / int64(bytesPerBlock)), nil
}

// Resize changes the size of `stream` to exactly `totalBlocks` blocks. The
// stream must implement [Truncator].
func Resize(stream any, bytesPerBlock uint, totalBlocks uint) error {
	truncator, ok := stream.(Truncator)
	if !ok {
		return sfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("can't resize a stream of type %T", stream))
	}
	return truncator.Truncate(int64(bytesPerBlock) * int64(totalBlocks))
}

// seekToBlock sets the stream pointer for a stream to the offset of a block.
func seekToBlock(stream io.Seeker, block PhysicalBlock, bytesPerBlock uint) error {
	blockOffset := int64(block) * int64(bytesPerBlock)
	_, err := stream.Seek(blockOffset, io.SeekStart)
	return err
}

// BytesPerBlock returns the size of a single block, in bytes.
func (device *CallbackDevice) BytesPerBlock() uint {
	return device.bytesPerBlock
}

// TotalBlocks returns the size of the device, in blocks.
func (device *CallbackDevice) TotalBlocks() uint {
	return device.totalBlocks
}

// Size gives the size of the device, in bytes (not blocks!).
func (device *CallbackDevice) Size() int64 {
	return int64(device.bytesPerBlock) * int64(device.totalBlocks)
}

// checkIOBounds verifies that `buffer` can be used to read or write `block`. If
// not, it returns an error describing exactly what went wrong.
func (device *CallbackDevice) checkIOBounds(block PhysicalBlock, buffer []byte) error {
	if uint(block) >= device.totalBlocks {
		return sfs.ErrIOFailed.WithMessage(
			fmt.Sprintf(
				"invalid block number: %d not in range [0, %d)",
				block,
				device.totalBlocks,
			),
		)
	}

	if uint(len(buffer)) != device.bytesPerBlock {
		return sfs.ErrIOFailed.WithMessage(
			fmt.Sprintf(
				"buffer must be exactly one block (%d B), got %d",
				device.bytesPerBlock,
				len(buffer),
			),
		)
	}
	return nil
}

// ReadBlock copies the contents of a single block into `buffer`.
func (device *CallbackDevice) ReadBlock(block PhysicalBlock, buffer []byte) error {
	err := device.checkIOBounds(block, buffer)
	if err != nil {
		return err
	}
	return sfs.CastToDriverError(device.fetch(block, buffer))
}

// WriteBlock writes `buffer` to a single block.
func (device *CallbackDevice) WriteBlock(block PhysicalBlock, buffer []byte) error {
	err := device.checkIOBounds(block, buffer)
	if err != nil {
		return err
	}
	return sfs.CastToDriverError(device.flush(block, buffer))
}
