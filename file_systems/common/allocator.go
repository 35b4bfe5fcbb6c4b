// Bitmap allocator

package common

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/cpmtools/altairdisk/errors"
)

// Allocator tracks which allocation blocks are in use. CP/M keeps no free
// list on disk, so the map is rebuilt from the directory every time an image
// is opened.
type Allocator struct {
	allocationBitmap bitmap.Bitmap
	totalUnits       uint
}

// NewAllocator creates an allocation bitmap for `totalUnits` blocks, with the
// first `reservedUnits` marked as used. These hold the directory.
func NewAllocator(totalUnits, reservedUnits uint) *Allocator {
	alloc := &Allocator{
		allocationBitmap: bitmap.New(int(totalUnits)),
		totalUnits:       totalUnits,
	}
	for i := uint(0); i < reservedUnits && i < totalUnits; i++ {
		alloc.allocationBitmap.Set(int(i), true)
	}
	return alloc
}

// TotalUnits gives the number of blocks tracked by the allocator.
func (alloc *Allocator) TotalUnits() uint {
	return alloc.totalUnits
}

func (alloc *Allocator) checkUnit(unit AllocationUnit) error {
	if uint(unit) >= alloc.totalUnits {
		msg := fmt.Sprintf(
			"invalid allocation number: %d not in range [0, %d)",
			unit,
			alloc.totalUnits)
		return errors.NewWithMessage(errors.EINVAL, msg)
	}
	return nil
}

// MarkUsed flags a block as allocated. Marking a block that's already in use
// is not an error, since nothing stops two directory entries from claiming the
// same block.
func (alloc *Allocator) MarkUsed(unit AllocationUnit) error {
	err := alloc.checkUnit(unit)
	if err != nil {
		return err
	}
	alloc.allocationBitmap.Set(int(unit), true)
	return nil
}

// IsUsed returns true if the block is allocated. Blocks out of range are
// reported as used, so they're never handed out.
func (alloc *Allocator) IsUsed(unit AllocationUnit) bool {
	if alloc.checkUnit(unit) != nil {
		return true
	}
	return alloc.allocationBitmap.Get(int(unit))
}

// AllocateSingle allocates the first available unit it finds and returns its
// index. If no units are available, it returns an error.
//
// There's deliberately no way to free a unit. Erasing a file only tombstones
// its directory entries; its blocks become available again the next time the
// directory is loaded.
func (alloc *Allocator) AllocateSingle() (AllocationUnit, error) {
	for i := uint(0); i < alloc.totalUnits; i++ {
		if !alloc.allocationBitmap.Get(int(i)) {
			alloc.allocationBitmap.Set(int(i), true)
			return AllocationUnit(i), nil
		}
	}

	return 0, errors.NewWithMessage(errors.ENOSPC, "no free allocation blocks")
}

// FreeUnits lists every unallocated block in ascending order.
func (alloc *Allocator) FreeUnits() []AllocationUnit {
	free := []AllocationUnit{}
	for i := uint(0); i < alloc.totalUnits; i++ {
		if !alloc.allocationBitmap.Get(int(i)) {
			free = append(free, AllocationUnit(i))
		}
	}
	return free
}

// CountFree gives the number of unallocated blocks.
func (alloc *Allocator) CountFree() uint {
	return uint(len(alloc.FreeUnits()))
}
