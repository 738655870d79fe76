package simplefs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sfskit/sfs"
)

func checkIOArguments(data []byte, length int, offset int) error {
	if length < 0 || offset < 0 {
		return sfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("length and offset must be non-negative, got %d and %d", length, offset))
	}
	if length > len(data) {
		return sfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("length %d is larger than the %d-byte buffer", length, len(data)))
	}
	return nil
}

// Read copies up to `length` bytes of the file, starting at `offset`, into
// `data`. Reads that extend past the end of the file are cut short; reads that
// start at or past the end fail with [sfs.ErrOffsetBeyondEnd].
func (driver *Driver) Read(inumber sfs.Inumber, data []byte, length int, offset int) (int, error) {
	driver.lock.Lock()
	defer driver.lock.Unlock()

	err := driver.requireMounted()
	if err != nil {
		return 0, err
	}

	inode, err := driver.loadValidInode(inumber)
	if err != nil {
		return 0, err
	}

	err = checkIOArguments(data, length, offset)
	if err != nil {
		return 0, err
	}

	size := uint(inode.Size)
	if uint(offset) >= size {
		return 0, sfs.ErrOffsetBeyondEnd.WithMessage(
			fmt.Sprintf("offset %d, inode %d is %d bytes", offset, inumber, size))
	}

	toRead := uint(length)
	if uint(offset)+toRead > size {
		toRead = size - uint(offset)
	}

	fm := driver.newFileMap(inumber, inode)
	it := newSegmentIterator(uint(offset), toRead)
	copied := 0

	for seg, ok := it.Next(); ok; seg, ok = it.Next() {
		block, err := fm.lookup(seg.Index)
		if err != nil {
			return copied, err
		}
		if block == 0 {
			return copied, missingPointer(inumber, uint(seg.Index), inode.Size)
		}

		buffer, err := driver.readBlock(block)
		if err != nil {
			return copied, err
		}

		copied += copy(
			data[seg.Position:seg.Position+seg.Length],
			buffer[seg.Start:seg.Start+seg.Length],
		)
	}
	return copied, nil
}

// Write copies `length` bytes from `data` into the file at `offset`,
// allocating blocks as needed. Writing past the end of the file grows it; if
// `offset` is past the end, the gap is filled with zeroes.
//
// Each block is written to the device before the inode is made to point at it.
// If the device runs out of space partway through, the write stops after the
// last complete block, the inode is updated to cover only what was persisted,
// and the number of bytes from `data` that made it to disk is returned along
// with [sfs.ErrDiskFull].
func (driver *Driver) Write(inumber sfs.Inumber, data []byte, length int, offset int) (int, error) {
	driver.lock.Lock()
	defer driver.lock.Unlock()

	err := driver.requireMounted()
	if err != nil {
		return 0, err
	}

	inode, err := driver.loadValidInode(inumber)
	if err != nil {
		return 0, err
	}

	err = checkIOArguments(data, length, offset)
	if err != nil {
		return 0, err
	}

	if uint64(offset)+uint64(length) > MaxFileSize {
		return 0, sfs.ErrFileTooLarge.WithMessage(
			fmt.Sprintf(
				"writing %d bytes at offset %d exceeds the maximum file size of %d",
				length,
				offset,
				MaxFileSize,
			),
		)
	}
	if length == 0 {
		return 0, nil
	}

	size := uint(inode.Size)
	start := uint(offset)
	gap := uint(0)
	if start > size {
		gap = start - size
		start = size
	}

	fm := driver.newFileMap(inumber, inode)
	usedBlocks := BlocksForSize(size)
	payload := data[:length]
	it := newSegmentIterator(start, gap+uint(length))
	persisted := uint(0)

	var writeErr error
	for seg, ok := it.Next(); ok; seg, ok = it.Next() {
		writeErr = driver.writeSegment(fm, seg, usedBlocks, gap, payload)
		if writeErr != nil {
			break
		}
		persisted += seg.Length
	}

	if writeErr != nil {
		driver.logger.Warn(
			"write stopped early",
			"inumber", inumber,
			"requested", length,
			"persisted", persisted,
			"error", writeErr,
		)
	}

	var result *multierror.Error
	result = multierror.Append(result, writeErr)
	result = multierror.Append(result, fm.dropEmptyIndirect())

	if start+persisted > size {
		fm.inode.Size = uint32(start + persisted)
	}

	flushErr := fm.flush()
	if flushErr != nil {
		// None of the new blocks are reachable from disk.
		result = multierror.Append(result, flushErr)
		return 0, result
	}

	written := 0
	if persisted > gap {
		written = int(persisted - gap)
	}

	if writeErr != nil {
		return written, writeErr
	}
	return written, result.ErrorOrNil()
}

// writeSegment writes one segment of a write range to its block, allocating and
// linking a new block if the segment is past the end of the file. Segment
// positions count from the start of the gap, so the first `gap` bytes of the
// range are zeroes and the rest come from `payload`.
func (driver *Driver) writeSegment(
	fm *fileMap, seg segment, usedBlocks uint, gap uint, payload []byte,
) error {
	block, err := fm.lookup(seg.Index)
	if err != nil {
		return err
	}

	isNew := false
	if block == 0 {
		if uint(seg.Index) < usedBlocks {
			return missingPointer(fm.inumber, uint(seg.Index), fm.inode.Size)
		}

		if seg.Index >= NumDirectPointers {
			_, err = fm.ensureIndirect()
			if err != nil {
				return err
			}
		}

		block, err = driver.freeMap.AllocateSingle()
		if err != nil {
			return err
		}
		isNew = true
	}

	var buffer []byte
	if isNew || seg.Length == BlockSize {
		buffer = make([]byte, BlockSize)
	} else {
		buffer, err = driver.readBlock(block)
		if err != nil {
			return err
		}
	}

	dst := buffer[seg.Start : seg.Start+seg.Length]
	position := seg.Position
	if position < gap {
		zeroes := gap - position
		if zeroes > seg.Length {
			zeroes = seg.Length
		}
		clear(dst[:zeroes])
		dst = dst[zeroes:]
		position += zeroes
	}
	copy(dst, payload[position-gap:])

	err = driver.writeBlock(block, buffer)
	if err != nil {
		if isNew {
			driver.freeMap.Release(block)
		}
		return err
	}

	if isNew {
		fm.link(seg.Index, block)
		driver.logger.Debug(
			"allocated data block",
			"inumber", fm.inumber,
			"logical_block", seg.Index,
			"block", block,
		)
	}
	return nil
}
