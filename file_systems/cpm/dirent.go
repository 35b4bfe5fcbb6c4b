package cpm

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/cpmtools/altairdisk/disks"
	c "github.com/cpmtools/altairdisk/file_systems/common"
	"github.com/noxer/bytewriter"
)

const (
	// DeletedUser is stored in the user byte of an erased directory entry.
	DeletedUser = 0xE5
	// MaxUser is the highest valid user number.
	MaxUser = 15
	// AllUsers is passed as a user filter to match files in every user area.
	AllUsers = -1

	nameLength = 8
	typeLength = 3

	// maxRecordsPerDirent is the most records a record count byte can express.
	// Extents on disks with more than this many records per directory entry
	// use a carry into the extent number instead.
	maxRecordsPerDirent = 128

	// extentLowModulus is the number of extent numbers stored in the low byte.
	extentLowModulus = 32

	// EOFMarker terminates text files that don't fill their last record.
	EOFMarker = 0x1A
)

// RawDirent is the on-disk layout of a directory entry.
type RawDirent struct {
	User       uint8
	Name       [nameLength]byte
	Type       [typeLength]byte
	ExtentLow  uint8
	Reserved   uint8
	ExtentHigh uint8
	Records    uint8
	// Allocations holds 16 8-bit allocation numbers or 8 16-bit little-endian
	// ones, depending on how many blocks the disk has.
	Allocations [16]byte
}

// DecodeRawDirent deserializes a directory entry from the first 32 bytes of
// `data`.
func DecodeRawDirent(data []byte) RawDirent {
	var raw RawDirent
	// This can't fail as long as there are 32 bytes available.
	binary.Read(bytes.NewReader(data[:disks.DirentSize]), binary.LittleEndian, &raw)
	return raw
}

// Encode serializes the directory entry into the first 32 bytes of `output`.
func (raw *RawDirent) Encode(output []byte) {
	writer := bytewriter.New(output[:disks.DirentSize])
	binary.Write(writer, binary.LittleEndian, raw)
}

// Extent combines the two halves of the extent number.
func (raw *RawDirent) Extent() uint {
	return uint(raw.ExtentHigh)*extentLowModulus + uint(raw.ExtentLow)
}

func (raw *RawDirent) SetExtent(extent uint) {
	raw.ExtentLow = uint8(extent % extentLowModulus)
	raw.ExtentHigh = uint8(extent / extentLowModulus)
}

// Allocation returns the allocation number in slot `slot`. When `wide` is true
// there are 8 slots of 2 bytes each, otherwise 16 of one byte.
func (raw *RawDirent) Allocation(slot uint, wide bool) c.AllocationUnit {
	if wide {
		return c.AllocationUnit(binary.LittleEndian.Uint16(raw.Allocations[slot*2:]))
	}
	return c.AllocationUnit(raw.Allocations[slot])
}

func (raw *RawDirent) SetAllocation(slot uint, unit c.AllocationUnit, wide bool) {
	if wide {
		binary.LittleEndian.PutUint16(raw.Allocations[slot*2:], uint16(unit))
	} else {
		raw.Allocations[slot] = uint8(unit)
	}
}

// SetFilename stores a validated "NAME.TYP" filename, space-padding the name
// and type.
func (raw *RawDirent) SetFilename(filename string) {
	name, fileType, _ := strings.Cut(strings.ToUpper(filename), ".")

	for i := 0; i < nameLength; i++ {
		if i < len(name) {
			raw.Name[i] = name[i]
		} else {
			raw.Name[i] = ' '
		}
	}
	for i := 0; i < typeLength; i++ {
		if i < len(fileType) {
			raw.Type[i] = fileType[i]
		} else {
			raw.Type[i] = ' '
		}
	}
}

func (raw *RawDirent) isZero() bool {
	return *raw == RawDirent{}
}

////////////////////////////////////////////////////////////////////////////////

// Dirent is a decoded directory entry.
type Dirent struct {
	// Index is the position of the entry in the on-disk directory table.
	Index uint
	Raw   RawDirent
	// Valid is false for erased and never-used entries.
	Valid    bool
	User     uint8
	Name     string
	Type     string
	ReadOnly bool
	System   bool
	Extent   uint
	Records  uint
	// Allocations lists the blocks used by this extent, up to but not
	// including the first zero slot.
	Allocations []c.AllocationUnit

	file *File
}

func decodeDirent(index uint, raw RawDirent, geometry disks.DiskGeometry) *Dirent {
	dirent := &Dirent{
		Index:   index,
		Raw:     raw,
		Valid:   raw.User <= MaxUser && !raw.isZero(),
		User:    raw.User,
		Extent:  raw.Extent(),
		Records: uint(raw.Records),
	}

	var fileType [typeLength]byte
	for i, b := range raw.Type {
		fileType[i] = b & 0x7F
	}
	dirent.ReadOnly = raw.Type[0]&0x80 != 0
	dirent.System = raw.Type[1]&0x80 != 0
	dirent.Name = strings.TrimRight(string(raw.Name[:]), " ")
	dirent.Type = strings.TrimRight(string(fileType[:]), " ")

	wide := geometry.WideAllocations()
	for slot := uint(0); slot < geometry.AllocationsPerDirent(); slot++ {
		unit := raw.Allocation(slot, wide)
		if unit == 0 {
			break
		}
		dirent.Allocations = append(dirent.Allocations, unit)
	}
	return dirent
}

// FullName gives the filename in "NAME.TYP" form, or just "NAME" if there's no
// type.
func (dirent *Dirent) FullName() string {
	return joinFilename(dirent.Name, dirent.Type)
}

// Attributes gives the two-character attribute string shown in listings: R or
// W for read-only or read/write, then S for system files or a space.
func (dirent *Dirent) Attributes() string {
	attributes := []byte{'W', ' '}
	if dirent.ReadOnly {
		attributes[0] = 'R'
	}
	if dirent.System {
		attributes[1] = 'S'
	}
	return string(attributes)
}

// File returns the file this extent belongs to, or nil if the entry isn't
// valid.
func (dirent *Dirent) File() *File {
	return dirent.file
}

// hasRecordCarry is true for extents whose record count is 128 short of the
// real number. This happens on disks where one directory entry covers more
// than 128 records: once an extent passes four allocation blocks, the record
// count wraps and the extent number is bumped instead.
func (dirent *Dirent) hasRecordCarry(geometry disks.DiskGeometry) bool {
	return geometry.RecordsPerExtent() > maxRecordsPerDirent && len(dirent.Allocations) > 4
}

// EffectiveRecords is the number of records of data described by this extent.
func (dirent *Dirent) EffectiveRecords(geometry disks.DiskGeometry) uint {
	if dirent.hasRecordCarry(geometry) {
		return maxRecordsPerDirent + dirent.Records
	}
	return dirent.Records
}

// IsFirstExtent returns true if this is the entry a file's data starts in.
func (dirent *Dirent) IsFirstExtent(geometry disks.DiskGeometry) bool {
	return dirent.Extent == 0 || (dirent.hasRecordCarry(geometry) && dirent.Extent == 1)
}

func joinFilename(name, fileType string) string {
	if fileType == "" {
		return name
	}
	return name + "." + fileType
}
