package simplefs

import (
	"fmt"

	"github.com/sfskit/sfs"
	c "github.com/sfskit/sfs/file_systems/common"
)

// segment is the part of a byte range that falls inside a single block.
type segment struct {
	// Index is the logical block of the file the segment is in.
	Index c.LogicalBlock
	// Start is the offset of the segment's first byte within the block.
	Start uint
	// Length is the number of bytes in the segment.
	Length uint
	// Position is the offset of the segment's first byte within the caller's
	// buffer.
	Position uint
}

// segmentIterator splits the byte range [offset, offset+length) of a file into
// per-block segments, one at a time.
type segmentIterator struct {
	offset    uint
	remaining uint
	position  uint
}

func newSegmentIterator(offset, length uint) *segmentIterator {
	return &segmentIterator{offset: offset, remaining: length}
}

// Next returns the next segment. The second return value is false once the
// entire range has been covered.
func (it *segmentIterator) Next() (segment, bool) {
	if it.remaining == 0 {
		return segment{}, false
	}

	start := it.offset % BlockSize
	length := BlockSize - start
	if length > it.remaining {
		length = it.remaining
	}

	seg := segment{
		Index:    c.LogicalBlock(it.offset / BlockSize),
		Start:    start,
		Length:   length,
		Position: it.position,
	}

	it.offset += length
	it.position += length
	it.remaining -= length
	return seg, true
}

// blockForIndex resolves a logical block of a file to the physical block that
// holds it. Indices below NumDirectPointers come from the inode; the rest come
// from `indirect`, which may be nil if the inode has no indirect block. A
// return value of 0 means no block is mapped at that index.
func blockForIndex(inode *RawInode, indirect *PointerBlock, index c.LogicalBlock) (c.PhysicalBlock, error) {
	if index < NumDirectPointers {
		return c.PhysicalBlock(inode.Direct[index]), nil
	}
	if index >= MaxFileBlocks {
		return 0, sfs.ErrFileTooLarge.WithMessage(
			fmt.Sprintf("logical block %d is past the maximum of %d", index, MaxFileBlocks))
	}
	if indirect == nil {
		return 0, nil
	}
	return c.PhysicalBlock(indirect[index-NumDirectPointers]), nil
}

// fileMap is an inode plus its indirect block, loaded only when an index past
// the direct pointers is actually needed. It lives for the duration of a single
// read or write.
type fileMap struct {
	driver        *Driver
	inumber       sfs.Inumber
	inode         *RawInode
	indirect      *PointerBlock
	indirectDirty bool
}

func (driver *Driver) newFileMap(inumber sfs.Inumber, inode *RawInode) *fileMap {
	return &fileMap{driver: driver, inumber: inumber, inode: inode}
}

func (fm *fileMap) loadIndirect() error {
	if fm.indirect != nil || fm.inode.Indirect == 0 {
		return nil
	}
	if !fm.driver.super.IsDataBlock(fm.inode.Indirect) {
		return corruptPointer(fm.inumber, "indirect pointer", fm.inode.Indirect, &fm.driver.super)
	}

	buffer, err := fm.driver.readBlock(c.PhysicalBlock(fm.inode.Indirect))
	if err != nil {
		return err
	}
	fm.indirect, err = DecodePointerBlock(buffer)
	return err
}

// lookup returns the physical block for a logical block, or 0 if nothing is
// mapped there yet. A non-zero pointer outside of the data region is reported
// as corruption.
func (fm *fileMap) lookup(index c.LogicalBlock) (c.PhysicalBlock, error) {
	if index >= NumDirectPointers {
		err := fm.loadIndirect()
		if err != nil {
			return 0, err
		}
	}

	block, err := blockForIndex(fm.inode, fm.indirect, index)
	if err != nil {
		return 0, err
	}
	if block != 0 && !fm.driver.super.IsDataBlock(uint32(block)) {
		return 0, corruptPointer(
			fm.inumber, fmt.Sprintf("logical block %d", index), uint32(block), &fm.driver.super)
	}
	return block, nil
}

// ensureIndirect makes sure the inode has an indirect block, allocating a zeroed
// one and persisting it if needed. The returned bool is true if a new block was
// allocated.
func (fm *fileMap) ensureIndirect() (bool, error) {
	if fm.inode.Indirect != 0 {
		return false, fm.loadIndirect()
	}

	block, err := fm.driver.freeMap.AllocateSingle()
	if err != nil {
		return false, err
	}

	// The indirect block must hit the disk zeroed before anything can point at
	// it, otherwise a stale block could be read back as a pointer array.
	err = fm.driver.writeBlock(block, make([]byte, BlockSize))
	if err != nil {
		fm.driver.freeMap.Release(block)
		return false, err
	}

	fm.inode.Indirect = uint32(block)
	fm.indirect = new(PointerBlock)
	fm.driver.logger.Debug("allocated indirect block", "inumber", fm.inumber, "block", block)
	return true, nil
}

// link records `block` as the physical block for logical block `index`.
func (fm *fileMap) link(index c.LogicalBlock, block c.PhysicalBlock) {
	if index < NumDirectPointers {
		fm.inode.Direct[index] = uint32(block)
		return
	}
	fm.indirect[index-NumDirectPointers] = uint32(block)
	fm.indirectDirty = true
}

// dropEmptyIndirect releases an indirect block that was allocated during this
// operation but ended up with no pointers in it.
func (fm *fileMap) dropEmptyIndirect() error {
	if fm.indirect == nil || fm.inode.Indirect == 0 {
		return nil
	}
	for _, pointer := range fm.indirect {
		if pointer != 0 {
			return nil
		}
	}

	block := c.PhysicalBlock(fm.inode.Indirect)
	fm.inode.Indirect = 0
	fm.indirect = nil
	fm.indirectDirty = false
	return fm.driver.releaseBlock(block)
}

// flush persists the indirect block if it changed, then the inode. Writing
// them in that order means the inode never points at an indirect block whose
// contents are older than the inode itself.
func (fm *fileMap) flush() error {
	if fm.indirectDirty {
		buffer := make([]byte, BlockSize)
		err := fm.indirect.Encode(buffer)
		if err != nil {
			return err
		}
		err = fm.driver.writeBlock(c.PhysicalBlock(fm.inode.Indirect), buffer)
		if err != nil {
			return err
		}
		fm.indirectDirty = false
	}
	return fm.driver.saveInode(fm.inumber, fm.inode)
}
