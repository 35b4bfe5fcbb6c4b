package disks

import (
	"fmt"
)

// FillByte is what CP/M writes into erased directory entries and fresh sectors.
const FillByte = 0xE5

// Layout covers the parts of a disk format that differ between controllers:
// how logical sectors are interleaved on a track, and what framing surrounds
// the 128 data bytes of each sector.
type Layout interface {
	Name() string
	// Skew maps a 0-based logical sector on a track to a 1-based physical
	// sector number.
	Skew(track, logicalSector uint) uint
	// DataOffset is the offset of the first data byte from the start of a
	// physical sector on the given track.
	DataOffset(track uint) uint
	// FormatSector fills `raw` (one entire physical sector) with the contents
	// of a freshly formatted sector.
	FormatSector(track, physicalSector uint, raw []byte)
	// Seal updates any checksum in `raw` after its data bytes were modified.
	Seal(track uint, raw []byte)

	checkSectorsPerTrack(sectorsPerTrack uint) error
}

func newLayout(layoutName, skewName string) (Layout, error) {
	skew, ok := skewTables[skewName]
	if !ok {
		return nil, fmt.Errorf("unknown skew table %q", skewName)
	}

	switch layoutName {
	case "mits":
		return mitsLayout{skewTable: skew}, nil
	case "flat":
		return flatLayout{skewTable: skew}, nil
	default:
		return nil, fmt.Errorf("unknown layout %q", layoutName)
	}
}

// checkPermutation verifies that `table` holds every number in
// [base, base+length) exactly once.
func checkPermutation(table []uint, length uint, base uint) error {
	if uint(len(table)) != length {
		return fmt.Errorf(
			"skew table has %d entries but a track has %d sectors", len(table), length)
	}

	seen := make([]bool, length)
	for i, value := range table {
		if value < base || value >= base+length {
			return fmt.Errorf(
				"skew table entry %d is %d, not in [%d, %d)", i, value, base, base+length)
		}
		if seen[value-base] {
			return fmt.Errorf("skew table entry %d repeats sector %d", i, value)
		}
		seen[value-base] = true
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// Skew tables

// mitsSkewTable is 1-based, unlike the others.
var mitsSkewTable = []uint{
	1, 9, 17, 25, 3, 11, 19, 27, 5, 13, 21, 29, 7, 15, 23, 31,
	2, 10, 18, 26, 4, 12, 20, 28, 6, 14, 22, 30, 8, 16, 24, 32,
}

// hd5mbSkewTable has one entry per CP/M sector, not per physical sector of the
// drive.
var hd5mbSkewTable = []uint{
	0, 1, 14, 15, 28, 29, 42, 43, 8, 9, 22, 23,
	36, 37, 2, 3, 16, 17, 30, 31, 44, 45, 10, 11,
	24, 25, 38, 39, 4, 5, 18, 19, 32, 33, 46, 47,
	12, 13, 26, 27, 40, 41, 6, 7, 20, 21, 34, 35,
	48, 49, 62, 63, 76, 77, 90, 91, 56, 57, 70, 71,
	84, 85, 50, 51, 64, 65, 78, 79, 92, 93, 58, 59,
	72, 73, 86, 87, 52, 53, 66, 67, 80, 81, 94, 95,
	60, 61, 74, 75, 88, 89, 54, 55, 68, 69, 82, 83,
}

var tarbellSkewTable = []uint{
	0, 6, 12, 18, 24, 4, 10, 16, 22, 2, 8, 14, 20,
	1, 7, 13, 19, 25, 5, 11, 17, 23, 3, 9, 15, 21,
}

var fdd15mbSkewTable = identitySkew(80)

var skewTables = map[string][]uint{
	"mits":    mitsSkewTable,
	"hd5mb":   hd5mbSkewTable,
	"tarbell": tarbellSkewTable,
	"fdd15mb": fdd15mbSkewTable,
}

func identitySkew(length uint) []uint {
	table := make([]uint, length)
	for i := range table {
		table[i] = uint(i)
	}
	return table
}

////////////////////////////////////////////////////////////////////////////////
// MITS 8" framing

// mitsFramingThreshold is the first track that uses the extended sector
// layout. Tracks before it carry no sector number and a plain checksum.
const mitsFramingThreshold = 6

// mitsStopByte marks the end of the data portion of a sector.
const mitsStopByte = 0xFF

// mitsFraming gives the positions of the non-data bytes in a MITS sector.
// SectorNumber is negative if the sector doesn't carry its own number.
type mitsFraming struct {
	TrackNumber  int
	SectorNumber int
	Data         int
	Stop         int
	Zero         int
	Checksum     int
	// Extended is true if bytes 2, 3, 5 and 6 of the sector are folded into
	// the checksum along with the data.
	Extended bool
}

var mitsLowTrackFraming = mitsFraming{
	TrackNumber:  0,
	SectorNumber: -1,
	Data:         3,
	Stop:         131,
	Zero:         133,
	Checksum:     132,
}

var mitsHighTrackFraming = mitsFraming{
	TrackNumber:  0,
	SectorNumber: 1,
	Data:         7,
	Stop:         135,
	Zero:         136,
	Checksum:     4,
	Extended:     true,
}

type mitsLayout struct {
	skewTable []uint
}

func (layout mitsLayout) Name() string {
	return "mits"
}

func (layout mitsLayout) framing(track uint) mitsFraming {
	if track < mitsFramingThreshold {
		return mitsLowTrackFraming
	}
	return mitsHighTrackFraming
}

func (layout mitsLayout) Skew(track, logicalSector uint) uint {
	physical := layout.skewTable[logicalSector]
	if track < mitsFramingThreshold {
		return physical
	}
	return ((physical-1)*17)%32 + 1
}

func (layout mitsLayout) DataOffset(track uint) uint {
	return uint(layout.framing(track).Data)
}

// checksum computes the checksum of a sector without storing it.
func (layout mitsLayout) checksum(track uint, raw []byte) byte {
	framing := layout.framing(track)

	var sum byte
	for _, b := range raw[framing.Data : framing.Data+RecordSize] {
		sum += b
	}
	if framing.Extended {
		sum += raw[2] + raw[3] + raw[5] + raw[6]
	}
	return sum
}

func (layout mitsLayout) Seal(track uint, raw []byte) {
	raw[layout.framing(track).Checksum] = layout.checksum(track, raw)
}

func (layout mitsLayout) FormatSector(track, physicalSector uint, raw []byte) {
	framing := layout.framing(track)

	for i := range raw {
		raw[i] = FillByte
	}
	if !framing.Extended {
		raw[1] = 0x00
	}
	raw[2] = 0x01
	raw[framing.Stop] = mitsStopByte
	for i := framing.Zero; i < len(raw); i++ {
		raw[i] = 0x00
	}

	raw[framing.TrackNumber] = byte(track) | 0x80
	if framing.SectorNumber >= 0 {
		raw[framing.SectorNumber] = byte(((physicalSector - 1) * 17) % 32)
	}
	raw[framing.Checksum] = layout.checksum(track, raw)
}

func (layout mitsLayout) checkSectorsPerTrack(sectorsPerTrack uint) error {
	if sectorsPerTrack != 32 {
		return fmt.Errorf("MITS layout requires 32 sectors per track, got %d", sectorsPerTrack)
	}
	return checkPermutation(layout.skewTable, sectorsPerTrack, 1)
}

////////////////////////////////////////////////////////////////////////////////
// Flat sectors

// flatLayout is for formats where a sector in the image is nothing but data.
type flatLayout struct {
	skewTable []uint
}

func (layout flatLayout) Name() string {
	return "flat"
}

func (layout flatLayout) Skew(track, logicalSector uint) uint {
	return layout.skewTable[logicalSector] + 1
}

func (layout flatLayout) DataOffset(track uint) uint {
	return 0
}

func (layout flatLayout) FormatSector(track, physicalSector uint, raw []byte) {
	for i := range raw {
		raw[i] = FillByte
	}
}

func (layout flatLayout) Seal(track uint, raw []byte) {}

func (layout flatLayout) checkSectorsPerTrack(sectorsPerTrack uint) error {
	return checkPermutation(layout.skewTable, sectorsPerTrack, 0)
}
