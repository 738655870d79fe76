/*
Package simplefs implements a minimal inode-based file system with a flat
namespace: files have no names and are referred to by inode number.

Layout on disk, with 4 KiB blocks and all integers little-endian:

	block 0                       superblock: magic, total blocks,
	                              inode table blocks, inode capacity
	blocks 1..T                   inode table, 128 32-byte inodes per block
	blocks T+1..N-1               data and indirect pointer blocks

T is a tenth of the device, rounded up. Each inode holds five direct block
pointers and one pointer to an indirect block of 1024 more, so the largest file
is 1029 blocks.

Which blocks are free is never written to disk. Mounting rebuilds the free map
by walking every valid inode, so the inode table is the only source of truth
about allocation.
*/
package simplefs
