package disks_test

import (
	"testing"

	"github.com/cpmtools/altairdisk/disks"
	"github.com/cpmtools/altairdisk/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getGeometry(t *testing.T, slug string) disks.DiskGeometry {
	geometry, err := disks.GetPredefinedDiskGeometry(slug)
	require.NoError(t, err, "geometry %q not found", slug)
	return geometry
}

func TestGetPredefinedDiskGeometry__AllPresent(t *testing.T) {
	slugs := []string{
		"FDD_8IN", "HDD_5MB", "HDD_5MB_1024", "FDD_TAR", "FDD_1.5MB", "FDD_8IN_8MB",
	}
	all := disks.AllGeometries()
	require.Len(t, all, len(slugs))

	for i, slug := range slugs {
		geometry := getGeometry(t, slug)
		assert.Equal(t, slug, geometry.Slug)
		assert.Equal(t, slug, all[i].Slug, "geometries are out of order")
		assert.EqualValues(t, 128, geometry.DataLength)
		assert.NoError(t, geometry.Validate())
	}
}

func TestGetPredefinedDiskGeometry__CaseInsensitive(t *testing.T) {
	geometry := getGeometry(t, "fdd_tar")
	assert.Equal(t, "FDD_TAR", geometry.Slug)
}

func TestGetPredefinedDiskGeometry__Unknown(t *testing.T) {
	_, err := disks.GetPredefinedDiskGeometry("FDD_5IN")
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestDerivedValues(t *testing.T) {
	tests := []struct {
		slug             string
		totalAllocations uint
		recsPerAlloc     uint
		recsPerExtent    uint
		wide             bool
		slots            uint
		trackLength      int64
	}{
		{"FDD_8IN", 150, 16, 128, false, 16, 4384},
		{"HDD_5MB", 1215, 32, 256, true, 8, 12288},
		{"HDD_5MB_1024", 1215, 32, 256, true, 8, 12288},
		{"FDD_TAR", 243, 8, 128, false, 16, 3328},
		{"FDD_1.5MB", 370, 32, 256, true, 8, 10240},
		{"FDD_8IN_8MB", 2046, 32, 256, true, 8, 4384},
	}

	for _, test := range tests {
		t.Run(test.slug, func(t *testing.T) {
			geometry := getGeometry(t, test.slug)
			assert.Equal(t, test.totalAllocations, geometry.TotalAllocations())
			assert.Equal(t, test.recsPerAlloc, geometry.RecordsPerAllocation())
			assert.Equal(t, test.recsPerExtent, geometry.RecordsPerExtent())
			assert.Equal(t, test.wide, geometry.WideAllocations())
			assert.Equal(t, test.slots, geometry.AllocationsPerDirent())
			assert.Equal(t, test.trackLength, geometry.TrackLength())
			assert.EqualValues(t, 4, geometry.DirentsPerSector())
			assert.Equal(
				t,
				geometry.ImageSize,
				int64(geometry.TotalTracks)*geometry.TrackLength(),
			)
		})
	}
}

func TestDetectGeometry(t *testing.T) {
	for _, geometry := range disks.AllGeometries() {
		detected, ok := disks.DetectGeometry(geometry.ImageSize)
		require.True(t, ok, "size of %s not detected", geometry.Slug)

		if geometry.Slug == "HDD_5MB_1024" {
			assert.Equal(t, "HDD_5MB", detected.Slug, "1024-entry hard disk must never be detected")
		} else {
			assert.Equal(t, geometry.Slug, detected.Slug)
		}
	}
}

func TestDetectGeometry__AlternateSize(t *testing.T) {
	detected, ok := disks.DetectGeometry(337664)
	require.True(t, ok)
	assert.Equal(t, "FDD_8IN", detected.Slug)
}

func TestDetectGeometry__NoMatch(t *testing.T) {
	for _, size := range []int64{-1, 0, 1, 337567, 256256 + 128} {
		_, ok := disks.DetectGeometry(size)
		assert.False(t, ok, "size %d should not match anything", size)
	}
}

// Every valid (allocation, record) pair must land on a distinct data sector,
// and mapping the byte offset back to a sector must give the same location.
func TestLocate__RoundTrip(t *testing.T) {
	for _, geometry := range disks.AllGeometries() {
		t.Run(geometry.Slug, func(t *testing.T) {
			recsPerAlloc := geometry.RecordsPerAllocation()
			seen := make(map[int64]bool)

			for alloc := uint(0); alloc < geometry.TotalAllocations(); alloc++ {
				for record := uint(0); record < recsPerAlloc; record++ {
					track, sector := geometry.Locate(alloc, record)
					require.Less(t, track, geometry.TotalTracks)
					require.GreaterOrEqual(t, track, geometry.ReservedTracks)
					require.GreaterOrEqual(t, sector, uint(1))
					require.LessOrEqual(t, sector, geometry.SectorsPerTrack)

					offset := geometry.RecordOffset(alloc, record)
					require.False(t, seen[offset], "alloc %d record %d reuses offset %d", alloc, record, offset)
					seen[offset] = true

					dataOffset := int64(geometry.Layout().DataOffset(track))
					sectorStart := offset - dataOffset
					gotTrack := uint(sectorStart / geometry.TrackLength())
					gotSector := uint(sectorStart%geometry.TrackLength())/geometry.SectorLength + 1
					require.Equal(t, track, gotTrack)
					require.Equal(t, sector, gotSector)
					require.Equal(t, geometry.SectorOffset(track, sector), sectorStart)
				}
			}
		})
	}
}

func TestLocate__RecordIsModuloAllocation(t *testing.T) {
	geometry := getGeometry(t, "FDD_8IN")
	track1, sector1 := geometry.Locate(3, 5)
	track2, sector2 := geometry.Locate(3, 5+16)
	assert.Equal(t, track1, track2)
	assert.Equal(t, sector1, sector2)
}

func TestLocate__KnownValues(t *testing.T) {
	// The directory of an 8" floppy starts on track 2, physical sector 1.
	geometry := getGeometry(t, "FDD_8IN")
	track, sector := geometry.Locate(0, 0)
	assert.EqualValues(t, 2, track)
	assert.EqualValues(t, 1, sector)
	assert.EqualValues(t, 2*4384+3, geometry.RecordOffset(0, 0))

	// Record 1 is skewed to physical sector 9.
	_, sector = geometry.Locate(0, 1)
	assert.EqualValues(t, 9, sector)

	// Allocation 8 starts on track 6, where the extra skew applies: logical
	// sector 2 has table value 17, giving ((16*17)%32)+1 = 17.
	track, sector = geometry.Locate(8, 2)
	assert.EqualValues(t, 6, track)
	assert.EqualValues(t, 17, sector)
	assert.EqualValues(t, 6*4384+16*137+7, geometry.RecordOffset(8, 2))

	// Hard disk data starts on track 1, and the skew table is 0-based.
	geometry = getGeometry(t, "HDD_5MB")
	track, sector = geometry.Locate(0, 2)
	assert.EqualValues(t, 1, track)
	assert.EqualValues(t, 15, sector)
	assert.EqualValues(t, 12288+14*128, geometry.RecordOffset(0, 2))
}
