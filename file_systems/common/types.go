// Package common contains definitions of fundamental types and functions used
// across the file system implementation.
package common

// LogicalBlock is the index of a physical sector in an image, counting from 0
// at the first sector of track 0.
type LogicalBlock uint

// AllocationUnit is the number of a CP/M allocation block. Block 0 is the
// first block of the data area, immediately after the reserved tracks.
type AllocationUnit uint

// Truncator is an interface for objects that support a Truncate() method. This
// method must behave just like [os.File.Truncate].
type Truncator interface {
	Truncate(size int64) error
}
