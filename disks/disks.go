// Package disks describes the physical layouts of the Altair disk formats that
// CP/M can be installed on, and the arithmetic that maps CP/M's logical
// allocation blocks and records onto sectors of a raw image file.
package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/cpmtools/altairdisk/errors"
	"github.com/gocarina/gocsv"
)

// RecordSize is the size of a CP/M record. Every sector of every supported
// format carries exactly one record of data.
const RecordSize = 128

// DirentSize is the size of a single on-disk directory entry.
const DirentSize = 32

////////////////////////////////////////////////////////////////////////////////
// Geometry

type DiskGeometry struct {
	Slug string `csv:"slug"`
	Name string `csv:"name"`

	// SectorLength is the number of bytes a sector occupies in the image,
	// including any framing the controller puts around the data.
	SectorLength uint `csv:"sector_length"`
	// DataLength is the number of usable bytes in a sector. This is always
	// [RecordSize].
	DataLength      uint `csv:"data_length"`
	TotalTracks     uint `csv:"total_tracks"`
	ReservedTracks  uint `csv:"reserved_tracks"`
	SectorsPerTrack uint `csv:"sectors_per_track"`
	// BlockSize is the size of an allocation block, in bytes.
	BlockSize        uint `csv:"block_size"`
	DirectoryEntries uint `csv:"directory_entries"`
	// DirectoryBlocks is the number of allocation blocks, starting from block
	// 0, that hold the directory table.
	DirectoryBlocks uint `csv:"directory_blocks"`

	// ImageSize is the size of an image file in this format, used for
	// detecting the format of an existing image.
	ImageSize int64 `csv:"image_size"`
	// AlternateImageSize is another size that is accepted during detection, or
	// 0 if there is none.
	AlternateImageSize int64 `csv:"alternate_image_size"`
	// AutoDetect is false for formats that can't be told apart from another
	// format by size alone. These must always be selected explicitly.
	AutoDetect bool `csv:"auto_detect"`

	LayoutName string `csv:"layout"`
	SkewName   string `csv:"skew_table"`
	Notes      string `csv:"notes"`

	layout Layout
}

// Layout returns the sector framing and skew rules for this geometry.
func (g DiskGeometry) Layout() Layout {
	return g.layout
}

// TrackLength is the size of one track in the image, in bytes.
func (g DiskGeometry) TrackLength() int64 {
	return int64(g.SectorLength) * int64(g.SectorsPerTrack)
}

// TotalSectors is the number of physical sectors in the image.
func (g DiskGeometry) TotalSectors() uint {
	return g.TotalTracks * g.SectorsPerTrack
}

// TotalAllocations gives the number of allocation blocks in the data area. If
// the data area isn't a whole number of blocks, the partial block at the end
// is unusable and not counted.
func (g DiskGeometry) TotalAllocations() uint {
	dataBytes := (g.TotalTracks - g.ReservedTracks) * g.SectorsPerTrack * g.DataLength
	return dataBytes / g.BlockSize
}

func (g DiskGeometry) RecordsPerAllocation() uint {
	return g.BlockSize / g.DataLength
}

// RecordsPerExtent is the number of records a single directory entry can
// describe: eight allocations' worth, rounded up to a multiple of 128.
func (g DiskGeometry) RecordsPerExtent() uint {
	return (g.RecordsPerAllocation()*8 + 127) / 128 * 128
}

func (g DiskGeometry) DirentsPerSector() uint {
	return g.DataLength / DirentSize
}

func (g DiskGeometry) DirentsPerAllocation() uint {
	return g.BlockSize / DirentSize
}

// WideAllocations is true if allocation numbers in directory entries are
// stored as 16-bit little-endian values instead of single bytes.
func (g DiskGeometry) WideAllocations() bool {
	return g.TotalAllocations() > 256
}

// AllocationsPerDirent is the number of allocation slots in a directory entry.
func (g DiskGeometry) AllocationsPerDirent() uint {
	if g.WideAllocations() {
		return 8
	}
	return 16
}

// SystemSize is the size of the boot image stored in the reserved tracks.
func (g DiskGeometry) SystemSize() int64 {
	return int64(g.ReservedTracks) * g.TrackLength()
}

// MatchesSize returns true if an image of `size` bytes has the size expected
// for this geometry.
func (g DiskGeometry) MatchesSize(size int64) bool {
	if size <= 0 {
		return false
	}
	return size == g.ImageSize || (g.AlternateImageSize != 0 && size == g.AlternateImageSize)
}

// Validate checks that every quantity derived from the geometry is an exact
// integer and that the directory fits where it's supposed to.
func (g DiskGeometry) Validate() error {
	problems := []string{}

	if g.DataLength != RecordSize {
		problems = append(
			problems, fmt.Sprintf("data length must be %d, got %d", RecordSize, g.DataLength))
	}
	if g.SectorLength < g.DataLength {
		problems = append(
			problems,
			fmt.Sprintf("sector length %d is less than data length %d", g.SectorLength, g.DataLength))
	}
	if g.BlockSize == 0 || g.BlockSize%RecordSize != 0 {
		problems = append(
			problems,
			fmt.Sprintf("block size %d is not a multiple of %d", g.BlockSize, RecordSize))
	}
	if g.ReservedTracks >= g.TotalTracks {
		problems = append(
			problems,
			fmt.Sprintf("%d reserved tracks leaves no room for data on a %d-track disk",
				g.ReservedTracks, g.TotalTracks))
	}
	if g.DirectoryEntries%(RecordSize/DirentSize) != 0 {
		problems = append(
			problems,
			fmt.Sprintf("%d directory entries is not a whole number of sectors", g.DirectoryEntries))
	}
	if g.DirectoryEntries*DirentSize > g.DirectoryBlocks*g.BlockSize {
		problems = append(
			problems,
			fmt.Sprintf("%d directory entries don't fit in %d blocks of %d bytes",
				g.DirectoryEntries, g.DirectoryBlocks, g.BlockSize))
	}
	if int64(g.TotalTracks)*g.TrackLength() != g.ImageSize {
		problems = append(
			problems,
			fmt.Sprintf("image size %d doesn't match %d tracks of %d bytes",
				g.ImageSize, g.TotalTracks, g.TrackLength()))
	}

	// Everything below divides by the block size.
	if len(problems) > 0 {
		return errors.NewWithMessage(errors.EINVAL, g.Slug+": "+strings.Join(problems, "; "))
	}

	if g.DirectoryBlocks >= g.TotalAllocations() {
		problems = append(
			problems,
			fmt.Sprintf("directory takes all %d allocation blocks", g.TotalAllocations()))
	}
	slotsNeeded := g.RecordsPerExtent() / g.RecordsPerAllocation()
	if slotsNeeded > g.AllocationsPerDirent() {
		problems = append(
			problems,
			fmt.Sprintf("an extent needs %d allocation slots but a directory entry has %d",
				slotsNeeded, g.AllocationsPerDirent()))
	}
	if g.layout == nil {
		problems = append(problems, "no layout")
	} else if err := g.layout.checkSectorsPerTrack(g.SectorsPerTrack); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.NewWithMessage(errors.EINVAL, g.Slug+": "+strings.Join(problems, "; "))
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// Sector addressing

// Locate converts an allocation block and a record number into a track and a
// 1-based physical sector. Only `record` modulo the records per allocation is
// significant.
func (g DiskGeometry) Locate(allocation, record uint) (track, sector uint) {
	recordsPerAlloc := g.RecordsPerAllocation()
	logical := allocation*recordsPerAlloc + record%recordsPerAlloc

	// Some block sizes aren't a multiple of the track length, so this has to
	// go through the flat sector index rather than a blocks-per-track figure.
	track = logical/g.SectorsPerTrack + g.ReservedTracks
	logicalSector := logical % g.SectorsPerTrack
	sector = g.layout.Skew(track, logicalSector)
	return track, sector
}

// SectorIndex returns the position of a physical sector in the image, counting
// from 0 at the first sector of track 0.
func (g DiskGeometry) SectorIndex(track, sector uint) uint {
	return track*g.SectorsPerTrack + sector - 1
}

// SectorOffset returns the offset of the first byte of a physical sector,
// including any framing bytes.
func (g DiskGeometry) SectorOffset(track, sector uint) int64 {
	return int64(track)*g.TrackLength() + int64(sector-1)*int64(g.SectorLength)
}

// RecordOffset returns the offset in the image of the first data byte of the
// given record.
func (g DiskGeometry) RecordOffset(allocation, record uint) int64 {
	track, sector := g.Locate(allocation, record)
	return g.SectorOffset(track, sector) + int64(g.layout.DataOffset(track))
}

////////////////////////////////////////////////////////////////////////////////

//go:embed altair-geometries.csv
var diskGeometriesRawCSV string
var diskGeometries map[string]DiskGeometry
var diskGeometryOrder []string

// GetPredefinedDiskGeometry looks up a geometry by its slug. Case doesn't
// matter.
func GetPredefinedDiskGeometry(slug string) (DiskGeometry, error) {
	geometry, ok := diskGeometries[strings.ToUpper(slug)]
	if ok {
		return geometry, nil
	}

	return DiskGeometry{}, errors.NewWithMessage(
		errors.EINVAL,
		fmt.Sprintf(
			"no predefined disk geometry exists with slug %q; expected one of: %s",
			slug,
			strings.Join(diskGeometryOrder, ", "),
		),
	)
}

// AllGeometries returns every geometry in the order they're tried during
// detection.
func AllGeometries() []DiskGeometry {
	result := make([]DiskGeometry, 0, len(diskGeometryOrder))
	for _, slug := range diskGeometryOrder {
		result = append(result, diskGeometries[slug])
	}
	return result
}

// DetectGeometry finds the first auto-detectable geometry whose image size is
// `size`. The second return value is false if nothing matched.
func DetectGeometry(size int64) (DiskGeometry, bool) {
	for _, slug := range diskGeometryOrder {
		geometry := diskGeometries[slug]
		if geometry.AutoDetect && geometry.MatchesSize(size) {
			return geometry, true
		}
	}
	return DiskGeometry{}, false
}

func init() {
	reader := strings.NewReader(diskGeometriesRawCSV)
	csvReader := csv.NewReader(reader)
	csvReader.Comma = '|'

	var rows []DiskGeometry
	err := gocsv.UnmarshalCSV(csvReader, &rows)
	if err != nil {
		panic(fmt.Errorf("failed to decode disk geometries: %w", err))
	}

	diskGeometries = make(map[string]DiskGeometry, len(rows))
	diskGeometryOrder = make([]string, 0, len(rows))

	for i, row := range rows {
		_, exists := diskGeometries[row.Slug]
		if exists {
			message := fmt.Errorf(
				"duplicate definition for disk %q found on row %d", row.Slug, i+1)
			panic(message)
		}

		row.layout, err = newLayout(row.LayoutName, row.SkewName)
		if err != nil {
			panic(fmt.Errorf("row %d (%s): %w", i+1, row.Slug, err))
		}
		if err = row.Validate(); err != nil {
			panic(err)
		}

		diskGeometries[row.Slug] = row
		diskGeometryOrder = append(diskGeometryOrder, row.Slug)
	}
}
