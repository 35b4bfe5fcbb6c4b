package common_test

import (
	"testing"

	"github.com/cpmtools/altairdisk/errors"
	c "github.com/cpmtools/altairdisk/file_systems/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator__ReservedUnitsArePreMarked(t *testing.T) {
	alloc := c.NewAllocator(150, 2)
	assert.True(t, alloc.IsUsed(0))
	assert.True(t, alloc.IsUsed(1))
	assert.False(t, alloc.IsUsed(2))
	assert.EqualValues(t, 148, alloc.CountFree())
	assert.EqualValues(t, 150, alloc.TotalUnits())
}

func TestAllocator__FirstFit(t *testing.T) {
	alloc := c.NewAllocator(16, 2)
	require.NoError(t, alloc.MarkUsed(2))
	require.NoError(t, alloc.MarkUsed(4))

	unit, err := alloc.AllocateSingle()
	require.NoError(t, err)
	assert.EqualValues(t, 3, unit)

	unit, err = alloc.AllocateSingle()
	require.NoError(t, err)
	assert.EqualValues(t, 5, unit)

	assert.Equal(
		t,
		[]c.AllocationUnit{6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		alloc.FreeUnits(),
	)
}

func TestAllocator__Exhausted(t *testing.T) {
	alloc := c.NewAllocator(4, 2)
	_, err := alloc.AllocateSingle()
	require.NoError(t, err)
	_, err = alloc.AllocateSingle()
	require.NoError(t, err)

	_, err = alloc.AllocateSingle()
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)
	assert.Empty(t, alloc.FreeUnits())
}

func TestAllocator__MarkUsed__OutOfRange(t *testing.T) {
	alloc := c.NewAllocator(8, 1)
	err := alloc.MarkUsed(8)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.True(t, alloc.IsUsed(8), "out of range units must never look free")
	assert.EqualValues(t, 7, alloc.CountFree())
}
