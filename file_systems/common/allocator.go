// Bitmap allocator

package common

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/sfskit/sfs"
)

// Allocator tracks which blocks on a device are in use. The first
// `ReservedBlocks` blocks hold file system metadata; they're marked in use when
// the allocator is created and are never handed out or freed.
type Allocator struct {
	AllocationBitmap bitmap.Bitmap
	TotalBlocks      uint
	ReservedBlocks   uint
}

// NewAllocator creates a new allocation bitmap with every block free except
// for the reserved region [0, reservedBlocks).
func NewAllocator(totalBlocks, reservedBlocks uint) *Allocator {
	if reservedBlocks > totalBlocks {
		reservedBlocks = totalBlocks
	}

	alloc := &Allocator{
		AllocationBitmap: bitmap.New(int(totalBlocks)),
		TotalBlocks:      totalBlocks,
		ReservedBlocks:   reservedBlocks,
	}
	for i := 0; i < int(reservedBlocks); i++ {
		alloc.AllocationBitmap.Set(i, true)
	}
	return alloc
}

func (alloc *Allocator) checkBounds(block PhysicalBlock) error {
	if uint(block) >= alloc.TotalBlocks {
		msg := fmt.Sprintf(
			"invalid block id: %d not in range [0, %d)",
			block,
			alloc.TotalBlocks)
		return sfs.ErrInvalidArgument.WithMessage(msg)
	}
	return nil
}

// IsUsed returns true if the block is allocated. Out-of-range blocks are
// reported as in use so that nobody tries to allocate them.
func (alloc *Allocator) IsUsed(block PhysicalBlock) bool {
	if uint(block) >= alloc.TotalBlocks {
		return true
	}
	return alloc.AllocationBitmap.Get(int(block))
}

// MarkUsed flags a block as in use. Marking a block that's already in use is
// not an error.
func (alloc *Allocator) MarkUsed(block PhysicalBlock) error {
	err := alloc.checkBounds(block)
	if err != nil {
		return err
	}
	alloc.AllocationBitmap.Set(int(block), true)
	return nil
}

// MarkFree flags a block as available. Marking a block that's already free is
// not an error.
func (alloc *Allocator) MarkFree(block PhysicalBlock) error {
	err := alloc.checkBounds(block)
	if err != nil {
		return err
	}
	alloc.AllocationBitmap.Set(int(block), false)
	return nil
}

// AllocateSingle allocates the lowest-numbered free block outside of the
// reserved region and returns its index. If no blocks are available, it returns
// [sfs.ErrDiskFull].
func (alloc *Allocator) AllocateSingle() (PhysicalBlock, error) {
	for i := alloc.ReservedBlocks; i < alloc.TotalBlocks; i++ {
		if !alloc.AllocationBitmap.Get(int(i)) {
			alloc.AllocationBitmap.Set(int(i), true)
			return PhysicalBlock(i), nil
		}
	}

	msg := fmt.Sprintf("all %d data blocks are in use", alloc.TotalBlocks-alloc.ReservedBlocks)
	return 0, sfs.ErrDiskFull.WithMessage(msg)
}

// Release frees an allocated block. Blocks in the reserved region can never be
// released; trying to do so indicates a bug in the caller.
func (alloc *Allocator) Release(block PhysicalBlock) error {
	if uint(block) < alloc.ReservedBlocks {
		msg := fmt.Sprintf(
			"block %d is reserved for metadata, blocks [0, %d) can't be freed",
			block,
			alloc.ReservedBlocks)
		return sfs.ErrInvalidArgument.WithMessage(msg)
	}
	return alloc.MarkFree(block)
}

// CountUsed returns the number of blocks currently in use, including the
// reserved region.
func (alloc *Allocator) CountUsed() uint {
	used := uint(0)
	for i := 0; i < int(alloc.TotalBlocks); i++ {
		if alloc.AllocationBitmap.Get(i) {
			used++
		}
	}
	return used
}

// CountFree returns the number of blocks available for allocation.
func (alloc *Allocator) CountFree() uint {
	return alloc.TotalBlocks - alloc.CountUsed()
}
