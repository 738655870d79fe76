package simplefs

import (
	"fmt"

	"github.com/sfskit/sfs"
	c "github.com/sfskit/sfs/file_systems/common"
)

// inodeBlocks lists the blocks an inode references.
type inodeBlocks struct {
	// Data holds the non-zero data block pointers in logical order.
	Data []c.PhysicalBlock
	// Indirect is the indirect pointer block, or 0 if the inode has none.
	Indirect c.PhysicalBlock
}

// All returns every referenced block, data and indirect alike.
func (b inodeBlocks) All() []c.PhysicalBlock {
	if b.Indirect == 0 {
		return b.Data
	}
	return append([]c.PhysicalBlock{b.Indirect}, b.Data...)
}

func corruptPointer(inumber sfs.Inumber, what string, pointer uint32, super *Superblock) error {
	return sfs.ErrCorruptInode.WithMessage(
		fmt.Sprintf(
			"inode %d: %s points to block %d, outside of data region [%d, %d)",
			inumber,
			what,
			pointer,
			super.FirstDataBlock(),
			super.TotalBlocks,
		),
	)
}

func missingPointer(inumber sfs.Inumber, index uint, size uint32) error {
	return sfs.ErrCorruptInode.WithMessage(
		fmt.Sprintf(
			"inode %d: logical block %d has no pointer but file size is %d bytes",
			inumber,
			index,
			size,
		),
	)
}

// referencedBlocks collects every block referenced by a valid inode and checks
// that the pointers are consistent with the inode's size: every pointer must be
// zero or in the data region, and none of the blocks covered by the size may be
// missing.
func (driver *Driver) referencedBlocks(
	super *Superblock, inumber sfs.Inumber, inode *RawInode,
) (inodeBlocks, error) {
	result := inodeBlocks{}
	usedBlocks := BlocksForSize(uint(inode.Size))
	if usedBlocks > MaxFileBlocks {
		return result, sfs.ErrCorruptInode.WithMessage(
			fmt.Sprintf("inode %d: size %d exceeds maximum of %d", inumber, inode.Size, MaxFileSize))
	}

	for i, pointer := range inode.Direct {
		if pointer == 0 {
			if uint(i) < usedBlocks {
				return result, missingPointer(inumber, uint(i), inode.Size)
			}
			continue
		}
		if !super.IsDataBlock(pointer) {
			return result, corruptPointer(inumber, fmt.Sprintf("direct pointer %d", i), pointer, super)
		}
		result.Data = append(result.Data, c.PhysicalBlock(pointer))
	}

	if inode.Indirect == 0 {
		if usedBlocks > NumDirectPointers {
			return result, missingPointer(inumber, NumDirectPointers, inode.Size)
		}
		return result, nil
	}

	if !super.IsDataBlock(inode.Indirect) {
		return result, corruptPointer(inumber, "indirect pointer", inode.Indirect, super)
	}
	result.Indirect = c.PhysicalBlock(inode.Indirect)

	buffer, err := driver.readBlock(result.Indirect)
	if err != nil {
		return result, err
	}
	pointers, err := DecodePointerBlock(buffer)
	if err != nil {
		return result, err
	}

	for i, pointer := range pointers {
		index := NumDirectPointers + uint(i)
		if pointer == 0 {
			if index < usedBlocks {
				return result, missingPointer(inumber, index, inode.Size)
			}
			continue
		}
		if !super.IsDataBlock(pointer) {
			return result, corruptPointer(inumber, fmt.Sprintf("indirect entry %d", i), pointer, super)
		}
		result.Data = append(result.Data, c.PhysicalBlock(pointer))
	}
	return result, nil
}

// loadInode reads an inode from the table. It doesn't care whether the inode is
// in use or not.
func (driver *Driver) loadInode(inumber sfs.Inumber) (*RawInode, error) {
	if uint(inumber) >= uint(driver.super.InodeCapacity) {
		return nil, sfs.ErrInvalidInode.WithMessage(
			fmt.Sprintf("inode %d not in range [0, %d)", inumber, driver.super.InodeCapacity))
	}

	block, slot := InodeLocation(inumber)
	buffer, err := driver.readBlock(block)
	if err != nil {
		return nil, err
	}

	inodes, err := DecodeInodeBlock(buffer)
	if err != nil {
		return nil, err
	}

	inode := inodes[slot]
	return &inode, nil
}

// loadValidInode is like loadInode but fails if the inode isn't in use.
func (driver *Driver) loadValidInode(inumber sfs.Inumber) (*RawInode, error) {
	inode, err := driver.loadInode(inumber)
	if err != nil {
		return nil, err
	}
	if !inode.IsValid() {
		return nil, sfs.ErrInvalidInode.WithMessage(fmt.Sprintf("inode %d is not in use", inumber))
	}
	return inode, nil
}

// saveInode writes an inode back to its slot in the inode table, leaving the
// other inodes in the same block untouched.
func (driver *Driver) saveInode(inumber sfs.Inumber, inode *RawInode) error {
	if uint(inumber) >= uint(driver.super.InodeCapacity) {
		return sfs.ErrInvalidInode.WithMessage(
			fmt.Sprintf("inode %d not in range [0, %d)", inumber, driver.super.InodeCapacity))
	}

	block, slot := InodeLocation(inumber)
	buffer, err := driver.readBlock(block)
	if err != nil {
		return err
	}

	inodes, err := DecodeInodeBlock(buffer)
	if err != nil {
		return err
	}

	inodes[slot] = *inode
	err = inodes.Encode(buffer)
	if err != nil {
		return err
	}
	return driver.writeBlock(block, buffer)
}

// releaseBlock returns a block to the free map unless another inode still
// points to it.
func (driver *Driver) releaseBlock(block c.PhysicalBlock) error {
	owners := driver.crossLinks[block]
	if owners > 0 {
		if owners == 1 {
			delete(driver.crossLinks, block)
		} else {
			driver.crossLinks[block] = owners - 1
		}
		driver.logger.Warn("not freeing block shared with another inode", "block", block)
		return nil
	}
	return driver.freeMap.Release(block)
}

// Create claims the lowest-numbered free inode, marks it as an empty file, and
// returns its number.
func (driver *Driver) Create() (sfs.Inumber, error) {
	driver.lock.Lock()
	defer driver.lock.Unlock()

	err := driver.requireMounted()
	if err != nil {
		return 0, err
	}

	for tableBlock := c.PhysicalBlock(1); tableBlock <= c.PhysicalBlock(driver.super.InodeTableBlocks); tableBlock++ {
		buffer, err := driver.readBlock(tableBlock)
		if err != nil {
			return 0, err
		}

		inodes, err := DecodeInodeBlock(buffer)
		if err != nil {
			return 0, err
		}

		for slot := range inodes {
			if inodes[slot].IsValid() {
				continue
			}

			// Stale pointers from a previous owner are wiped here, not on
			// delete.
			inodes[slot] = RawInode{Valid: 1}
			err = inodes.Encode(buffer)
			if err != nil {
				return 0, err
			}
			err = driver.writeBlock(tableBlock, buffer)
			if err != nil {
				return 0, err
			}

			inumber := sfs.Inumber(uint(tableBlock-1)*NumInodesPerBlock + uint(slot))
			driver.logger.Debug("created inode", "inumber", inumber)
			return inumber, nil
		}
	}

	return 0, sfs.ErrNoFreeInode.WithMessage(
		fmt.Sprintf("all %d inodes are in use", driver.super.InodeCapacity))
}

// Delete frees an inode and returns all of its blocks to the free map. The
// inode's block list is validated before anything is modified, so a corrupted
// inode is left exactly as it was.
func (driver *Driver) Delete(inumber sfs.Inumber) error {
	driver.lock.Lock()
	defer driver.lock.Unlock()

	err := driver.requireMounted()
	if err != nil {
		return err
	}

	inode, err := driver.loadValidInode(inumber)
	if err != nil {
		return err
	}

	blocks, err := driver.referencedBlocks(&driver.super, inumber, inode)
	if err != nil {
		driver.logger.Warn("refusing to delete corrupted inode", "inumber", inumber, "error", err)
		return err
	}

	err = driver.saveInode(inumber, &RawInode{})
	if err != nil {
		return err
	}

	for _, block := range blocks.All() {
		err = driver.releaseBlock(block)
		if err != nil {
			return err
		}
	}

	driver.logger.Debug(
		"deleted inode",
		"inumber", inumber,
		"blocks_released", len(blocks.All()),
	)
	return nil
}

// GetSize returns the size of a file, in bytes.
func (driver *Driver) GetSize(inumber sfs.Inumber) (int, error) {
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
	return int(inode.Size), nil
}
