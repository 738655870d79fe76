package simplefs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"
	"github.com/sfskit/sfs"
	c "github.com/sfskit/sfs/file_systems/common"
)

// BlockSize is the only block size this file system supports.
const BlockSize = 4096

// Magic identifies a formatted device. It's stored in the first four bytes of
// block 0.
const Magic uint32 = 0xf0f03410

// NumDirectPointers is the number of data block pointers stored in the inode
// itself. Anything past that goes through the indirect block.
const NumDirectPointers = 5

// InodeSize is the size of a [RawInode] on disk, in bytes.
const InodeSize = 4 + 4 + 4*NumDirectPointers + 4

// NumInodesPerBlock is the number of inodes packed into one inode table block.
const NumInodesPerBlock = BlockSize / InodeSize

// NumPointersPerBlock is the number of block pointers an indirect block holds.
const NumPointersPerBlock = BlockSize / 4

// MaxFileBlocks is the largest number of data blocks a single file can use.
const MaxFileBlocks = NumDirectPointers + NumPointersPerBlock

// MaxFileSize is the largest file size representable, in bytes.
const MaxFileSize = MaxFileBlocks * BlockSize

// MaxTotalBlocks is the largest device this file system can be formatted on.
// Past it the inode count no longer fits in the superblock's 32-bit field.
const MaxTotalBlocks = (1<<32 - 1) / NumInodesPerBlock * 10

// Superblock is the on-disk layout of block 0.
type Superblock struct {
	Magic            uint32
	TotalBlocks      uint32
	InodeTableBlocks uint32
	InodeCapacity    uint32
}

// RawInode is the on-disk layout of a single inode. Pointers equal to 0 are
// unused; block 0 is the superblock so it can never belong to a file.
type RawInode struct {
	Valid    uint32
	Size     uint32
	Direct   [NumDirectPointers]uint32
	Indirect uint32
}

// InodeBlock is the on-disk layout of one block of the inode table.
type InodeBlock [NumInodesPerBlock]RawInode

// PointerBlock is the on-disk layout of an indirect block.
type PointerBlock [NumPointersPerBlock]uint32

// NewSuperblock computes the geometry for a freshly formatted device. Ten
// percent of the blocks, rounded up, are set aside for the inode table.
func NewSuperblock(totalBlocks uint) Superblock {
	inodeTableBlocks := (totalBlocks + 9) / 10
	return Superblock{
		Magic:            Magic,
		TotalBlocks:      uint32(totalBlocks),
		InodeTableBlocks: uint32(inodeTableBlocks),
		InodeCapacity:    uint32(inodeTableBlocks * NumInodesPerBlock),
	}
}

// FirstDataBlock returns the index of the first block after the inode table.
func (sb *Superblock) FirstDataBlock() c.PhysicalBlock {
	return c.PhysicalBlock(sb.InodeTableBlocks) + 1
}

// IsDataBlock returns true if `block` lies in the data region of the device.
func (sb *Superblock) IsDataBlock(block uint32) bool {
	return c.PhysicalBlock(block) >= sb.FirstDataBlock() && block < sb.TotalBlocks
}

// Validate checks that the geometry stored in the superblock is internally
// consistent. It doesn't check the magic number.
func (sb *Superblock) Validate() error {
	if sb.InodeTableBlocks == 0 || uint(sb.InodeTableBlocks)+1 >= uint(sb.TotalBlocks) {
		return sfs.ErrCorruptSuperblock.WithMessage(
			fmt.Sprintf(
				"inode table of %d blocks doesn't fit on a device of %d blocks",
				sb.InodeTableBlocks,
				sb.TotalBlocks,
			),
		)
	}
	if uint(sb.InodeCapacity) != uint(sb.InodeTableBlocks)*NumInodesPerBlock {
		return sfs.ErrCorruptSuperblock.WithMessage(
			fmt.Sprintf(
				"inode capacity %d doesn't match %d table blocks of %d inodes each",
				sb.InodeCapacity,
				sb.InodeTableBlocks,
				NumInodesPerBlock,
			),
		)
	}
	return nil
}

// InodeLocation returns the inode table block holding `inumber` and the
// inode's index within that block.
func InodeLocation(inumber sfs.Inumber) (c.PhysicalBlock, int) {
	return c.PhysicalBlock(inumber/NumInodesPerBlock) + 1, int(inumber % NumInodesPerBlock)
}

// BlocksForSize returns the number of data blocks a file of `size` bytes uses.
func BlocksForSize(size uint) uint {
	return (size + BlockSize - 1) / BlockSize
}

func checkBufferSize(buffer []byte) error {
	if len(buffer) < BlockSize {
		return sfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("block buffer must be at least %d bytes, got %d", BlockSize, len(buffer)))
	}
	return nil
}

func decodeBlock(buffer []byte, value any) error {
	err := checkBufferSize(buffer)
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(buffer[:BlockSize]), binary.LittleEndian, value)
}

// encodeBlock serializes `value` into the beginning of `buffer`. Bytes past the
// end of the encoded value are left as they are.
func encodeBlock(buffer []byte, value any) error {
	err := checkBufferSize(buffer)
	if err != nil {
		return err
	}
	writer := bytewriter.New(buffer[:BlockSize])
	return binary.Write(writer, binary.LittleEndian, value)
}

// DecodeSuperblock reads a superblock out of a raw block.
func DecodeSuperblock(buffer []byte) (Superblock, error) {
	var sb Superblock
	err := decodeBlock(buffer, &sb)
	return sb, err
}

// Encode writes the superblock to the beginning of `buffer`.
func (sb *Superblock) Encode(buffer []byte) error {
	return encodeBlock(buffer, sb)
}

// DecodeInodeBlock reads all the inodes stored in one inode table block.
func DecodeInodeBlock(buffer []byte) (*InodeBlock, error) {
	inodes := new(InodeBlock)
	err := decodeBlock(buffer, inodes)
	if err != nil {
		return nil, err
	}
	return inodes, nil
}

// Encode writes the inodes to `buffer`.
func (inodes *InodeBlock) Encode(buffer []byte) error {
	return encodeBlock(buffer, inodes)
}

// DecodePointerBlock reads the block pointers stored in an indirect block.
func DecodePointerBlock(buffer []byte) (*PointerBlock, error) {
	pointers := new(PointerBlock)
	err := decodeBlock(buffer, pointers)
	if err != nil {
		return nil, err
	}
	return pointers, nil
}

// Encode writes the pointers to `buffer`.
func (pointers *PointerBlock) Encode(buffer []byte) error {
	return encodeBlock(buffer, pointers)
}

// IsValid returns true if the inode is in use.
func (inode *RawInode) IsValid() bool {
	return inode.Valid != 0
}
