package simplefs

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sfskit/sfs"
	c "github.com/sfskit/sfs/file_systems/common"
)

var _ sfs.FileSystem = (*Driver)(nil)

// Driver implements [sfs.FileSystem] on top of a block device. All mount state
// lives in the driver, so several file systems can be open at once as long as
// they're on different devices.
//
// Every exported method takes the driver's lock, so a single Driver can be
// shared between goroutines.
type Driver struct {
	device c.BlockDevice
	logger *slog.Logger

	lock      sync.Mutex
	isMounted bool
	super     Superblock
	freeMap   *c.Allocator

	// crossLinks counts the extra owners of blocks that more than one inode
	// points to. Such a block is only freed when its last owner lets go.
	crossLinks map[c.PhysicalBlock]uint
}

// FSStat gives a summary of a mounted file system's usage.
type FSStat struct {
	TotalBlocks      uint
	InodeTableBlocks uint
	DataBlocks       uint
	BlocksUsed       uint
	BlocksFree       uint
	InodeCapacity    uint
	InodesUsed       uint
}

// NewDriver creates an unmounted driver for `device`. A nil logger discards all
// log output.
func NewDriver(device c.BlockDevice, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Driver{
		device: device,
		logger: logger,
	}
}

// IsMounted returns true if the driver has been mounted successfully.
func (driver *Driver) IsMounted() bool {
	driver.lock.Lock()
	defer driver.lock.Unlock()
	return driver.isMounted
}

func (driver *Driver) requireMounted() error {
	if !driver.isMounted {
		return sfs.ErrNotMounted
	}
	return nil
}

func (driver *Driver) checkDevice() error {
	if driver.device.BytesPerBlock() != BlockSize {
		return sfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"device has %d-byte blocks, only %d is supported",
				driver.device.BytesPerBlock(),
				BlockSize,
			),
		)
	}
	return nil
}

func (driver *Driver) readBlock(block c.PhysicalBlock) ([]byte, error) {
	buffer := make([]byte, BlockSize)
	err := driver.device.ReadBlock(block, buffer)
	if err != nil {
		return nil, sfs.CastToDriverError(err).WithMessage(
			fmt.Sprintf("reading block %d", block))
	}
	return buffer, nil
}

func (driver *Driver) writeBlock(block c.PhysicalBlock, buffer []byte) error {
	err := driver.device.WriteBlock(block, buffer)
	if err != nil {
		return sfs.CastToDriverError(err).WithMessage(
			fmt.Sprintf("writing block %d", block))
	}
	return nil
}

// Format writes a fresh superblock and an empty inode table to the device.
// Data blocks aren't touched; whatever they held becomes unreachable.
func (driver *Driver) Format() error {
	driver.lock.Lock()
	defer driver.lock.Unlock()

	if driver.isMounted {
		return sfs.ErrAlreadyMounted.WithMessage("can't format a mounted file system")
	}

	err := driver.checkDevice()
	if err != nil {
		return err
	}

	totalBlocks := driver.device.TotalBlocks()
	if uint64(totalBlocks) > MaxTotalBlocks {
		return sfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"device of %d blocks is too large, at most %d blocks are supported",
				totalBlocks,
				MaxTotalBlocks,
			),
		)
	}

	super := NewSuperblock(totalBlocks)
	err = super.Validate()
	if err != nil {
		msg := fmt.Sprintf(
			"device of %d blocks is too small, need room for the superblock, %d"+
				" inode table block(s), and at least one data block",
			totalBlocks,
			super.InodeTableBlocks,
		)
		return sfs.ErrInvalidArgument.WithMessage(msg)
	}

	buffer := make([]byte, BlockSize)
	err = super.Encode(buffer)
	if err != nil {
		return err
	}
	err = driver.writeBlock(0, buffer)
	if err != nil {
		return err
	}

	// An all-zero inode block is an array of invalid inodes with no pointers.
	emptyTable := make([]byte, BlockSize)
	for i := c.PhysicalBlock(1); i <= c.PhysicalBlock(super.InodeTableBlocks); i++ {
		err = driver.writeBlock(i, emptyTable)
		if err != nil {
			return err
		}
	}

	driver.logger.Info(
		"formatted device",
		"total_blocks", super.TotalBlocks,
		"inode_table_blocks", super.InodeTableBlocks,
		"inode_capacity", super.InodeCapacity,
	)
	return nil
}

// Mount validates the superblock and rebuilds the free block map from the
// inode table. The driver's state only changes if every check passes.
func (driver *Driver) Mount() error {
	driver.lock.Lock()
	defer driver.lock.Unlock()

	if driver.isMounted {
		return sfs.ErrAlreadyMounted
	}

	err := driver.checkDevice()
	if err != nil {
		return err
	}

	buffer, err := driver.readBlock(0)
	if err != nil {
		return err
	}

	super, err := DecodeSuperblock(buffer)
	if err != nil {
		return err
	}

	if super.Magic != Magic {
		return sfs.ErrInvalidMagic.WithMessage(
			fmt.Sprintf("expected %#08x, got %#08x", Magic, super.Magic))
	}
	if uint(super.TotalBlocks) != driver.device.TotalBlocks() {
		return sfs.ErrSizeMismatch.WithMessage(
			fmt.Sprintf(
				"superblock says %d blocks, device has %d",
				super.TotalBlocks,
				driver.device.TotalBlocks(),
			),
		)
	}

	err = super.Validate()
	if err != nil {
		return err
	}

	freeMap := c.NewAllocator(uint(super.TotalBlocks), uint(super.FirstDataBlock()))
	crossLinks := map[c.PhysicalBlock]uint{}
	err = driver.markInodeTableBlocks(&super, freeMap, crossLinks)
	if err != nil {
		return err
	}

	driver.super = super
	driver.freeMap = freeMap
	driver.crossLinks = crossLinks
	driver.isMounted = true

	driver.logger.Info(
		"mounted file system",
		"total_blocks", super.TotalBlocks,
		"blocks_used", freeMap.CountUsed(),
	)
	return nil
}

// markInodeTableBlocks walks every valid inode and marks each in-range block
// it references as in use. A bad pointer only affects its own inode: it's
// skipped here and reported as [sfs.ErrCorruptInode] when that inode is used.
// Blocks claimed by more than one inode are counted in `crossLinks`.
func (driver *Driver) markInodeTableBlocks(
	super *Superblock, freeMap *c.Allocator, crossLinks map[c.PhysicalBlock]uint,
) error {
	for tableBlock := c.PhysicalBlock(1); tableBlock <= c.PhysicalBlock(super.InodeTableBlocks); tableBlock++ {
		buffer, err := driver.readBlock(tableBlock)
		if err != nil {
			return err
		}

		inodes, err := DecodeInodeBlock(buffer)
		if err != nil {
			return err
		}

		for slot := range inodes {
			if !inodes[slot].IsValid() {
				continue
			}

			inumber := sfs.Inumber(uint(tableBlock-1)*NumInodesPerBlock + uint(slot))
			err = driver.markInode(super, freeMap, crossLinks, inumber, &inodes[slot])
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (driver *Driver) markInode(
	super *Superblock,
	freeMap *c.Allocator,
	crossLinks map[c.PhysicalBlock]uint,
	inumber sfs.Inumber,
	inode *RawInode,
) error {
	skipped := 0
	mark := func(pointer uint32) error {
		if pointer == 0 {
			return nil
		}
		if !super.IsDataBlock(pointer) {
			skipped++
			return nil
		}

		block := c.PhysicalBlock(pointer)
		if freeMap.IsUsed(block) {
			crossLinks[block]++
			driver.logger.Warn("block claimed by more than one inode", "inumber", inumber, "block", block)
			return nil
		}
		return freeMap.MarkUsed(block)
	}

	for _, pointer := range inode.Direct {
		err := mark(pointer)
		if err != nil {
			return err
		}
	}

	if inode.Indirect != 0 && super.IsDataBlock(inode.Indirect) {
		err := mark(inode.Indirect)
		if err != nil {
			return err
		}

		buffer, err := driver.readBlock(c.PhysicalBlock(inode.Indirect))
		if err != nil {
			return err
		}
		pointers, err := DecodePointerBlock(buffer)
		if err != nil {
			return err
		}
		for _, pointer := range pointers {
			err = mark(pointer)
			if err != nil {
				return err
			}
		}
	} else if inode.Indirect != 0 {
		skipped++
	}

	if skipped > 0 {
		driver.logger.Warn(
			"inode has pointers outside the data region",
			"inumber", inumber,
			"pointers_skipped", skipped,
		)
	}
	return nil
}

// Unmount drops the in-memory state. If the device buffers writes it's synced
// first.
func (driver *Driver) Unmount() error {
	driver.lock.Lock()
	defer driver.lock.Unlock()

	err := driver.requireMounted()
	if err != nil {
		return err
	}

	syncer, ok := driver.device.(c.Syncer)
	if ok {
		err = syncer.Sync()
		if err != nil {
			return sfs.CastToDriverError(err)
		}
	}

	driver.isMounted = false
	driver.super = Superblock{}
	driver.freeMap = nil
	driver.crossLinks = nil
	driver.logger.Info("unmounted file system")
	return nil
}

// Stat returns usage information about the mounted file system.
func (driver *Driver) Stat() (FSStat, error) {
	driver.lock.Lock()
	defer driver.lock.Unlock()

	err := driver.requireMounted()
	if err != nil {
		return FSStat{}, err
	}

	inodesUsed := uint(0)
	for tableBlock := c.PhysicalBlock(1); tableBlock <= c.PhysicalBlock(driver.super.InodeTableBlocks); tableBlock++ {
		buffer, err := driver.readBlock(tableBlock)
		if err != nil {
			return FSStat{}, err
		}

		inodes, err := DecodeInodeBlock(buffer)
		if err != nil {
			return FSStat{}, err
		}
		for slot := range inodes {
			if inodes[slot].IsValid() {
				inodesUsed++
			}
		}
	}

	return FSStat{
		TotalBlocks:      uint(driver.super.TotalBlocks),
		InodeTableBlocks: uint(driver.super.InodeTableBlocks),
		DataBlocks:       uint(driver.super.TotalBlocks) - uint(driver.super.FirstDataBlock()),
		BlocksUsed:       driver.freeMap.CountUsed(),
		BlocksFree:       driver.freeMap.CountFree(),
		InodeCapacity:    uint(driver.super.InodeCapacity),
		InodesUsed:       inodesUsed,
	}, nil
}
