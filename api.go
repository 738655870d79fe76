package sfs

import "io"

// Inumber identifies an inode. File systems in this module have no directory
// layer, so the inode number is the only name a file has.
type Inumber uint32

// FileSystem is the interface for drivers implementing a flat, inode-addressed
// file system on top of a block device.
type FileSystem interface {
	// Format writes a fresh, empty file system onto the device. It must not be
	// called while the file system is mounted.
	Format() error

	// Mount validates the on-disk structures and loads the in-memory state the
	// other operations need. It must be called before anything else except
	// Format, and must not be called twice without an Unmount in between.
	Mount() error

	// Unmount releases the in-memory state. The driver can be mounted again
	// afterwards.
	Unmount() error

	// Create allocates the lowest-numbered free inode and returns its number.
	Create() (Inumber, error)

	// Delete frees an inode and every block it references.
	Delete(inumber Inumber) error

	// GetSize returns the logical size of a file, in bytes.
	GetSize(inumber Inumber) (int, error)

	// Read copies up to `length` bytes starting at `offset` into `data`. It
	// returns the number of bytes copied, which is less than `length` if the
	// read reaches the end of the file.
	Read(inumber Inumber, data []byte, length int, offset int) (int, error)

	// Write copies `length` bytes from `data` into the file at `offset`,
	// growing the file if needed. If the device fills up partway through, the
	// number of bytes actually persisted is returned along with the error.
	Write(inumber Inumber, data []byte, length int, offset int) (int, error)

	// DebugDump writes a human-readable summary of the file system structures.
	DebugDump(w io.Writer) error
}
