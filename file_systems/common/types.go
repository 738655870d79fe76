// Package common contains definitions of fundamental types and functions used
// across multiple file system implementations.
package common

// LogicalBlock is the index of a block within a single file, starting at 0.
type LogicalBlock uint

// PhysicalBlock is the index of a block on the device, starting at 0.
type PhysicalBlock uint

// Truncator is an interface for objects that support a Truncate() method. This
// method must behave just like [os.File.Truncate].
type Truncator interface {
	Truncate(size int64) error
}

// Syncer is implemented by block devices that buffer writes and need an
// explicit flush before their contents are durable.
type Syncer interface {
	Sync() error
}
