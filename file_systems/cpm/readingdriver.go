package cpm

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/cpmtools/altairdisk/errors"
	c "github.com/cpmtools/altairdisk/file_systems/common"
)

// TransferMode controls how the end of a file is found when it's copied off the
// image.
type TransferMode int

const (
	// ModeAuto treats a file as text unless its first record has a byte with
	// the high bit set.
	ModeAuto TransferMode = iota
	// ModeText stops at the first EOF marker in the last record.
	ModeText
	// ModeBinary copies every record in full.
	ModeBinary
)

func (mode TransferMode) String() string {
	switch mode {
	case ModeAuto:
		return "auto"
	case ModeText:
		return "text"
	case ModeBinary:
		return "binary"
	default:
		return fmt.Sprintf("TransferMode(%d)", int(mode))
	}
}

func looksBinary(record []byte) bool {
	for _, b := range record {
		if b&0x80 != 0 {
			return true
		}
	}
	return false
}

// ReadFile copies the contents of `file` to `output`.
//
// Records are copied in full except for the last record of the last extent in
// text mode, which is cut short at its first EOF marker. An extent that runs
// out of allocation blocks before its record count is used up ends early.
func (driver *Driver) ReadFile(file *File, output io.Writer, mode TransferMode) error {
	if err := driver.checkMounted(); err != nil {
		return err
	}

	recordsPerAlloc := driver.geometry.RecordsPerAllocation()
	record := make([]byte, driver.geometry.DataLength)
	lastExtent := len(file.Extents) - 1
	firstRecord := true

	for extentIndex, extent := range file.Extents {
		numRecords := extent.EffectiveRecords(driver.geometry)

		for recordNumber := uint(0); recordNumber < numRecords; recordNumber++ {
			slot := recordNumber / recordsPerAlloc
			if slot >= uint(len(extent.Allocations)) {
				break
			}

			err := driver.readRecord(extent.Allocations[slot], recordNumber, record)
			if err != nil {
				return err
			}

			if mode == ModeAuto && firstRecord {
				if looksBinary(record) {
					mode = ModeBinary
				} else {
					mode = ModeText
				}
			}
			firstRecord = false

			data := record
			if mode == ModeText && extentIndex == lastExtent && recordNumber == numRecords-1 {
				if end := bytes.IndexByte(data, EOFMarker); end >= 0 {
					data = data[:end]
				}
			}

			if _, err = output.Write(data); err != nil {
				return errors.ErrIOFailed.Wrap(fmt.Errorf("writing %s: %w", file.FullName(), err))
			}
		}
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// Listings

// FileInfo summarizes one file for a directory listing.
type FileInfo struct {
	Name       string
	Type       string
	User       uint8
	Attributes string
	// Records is the total number of records across all extents.
	Records uint
	// Size is the length shown in listings: the number of records times the
	// raw sector length.
	Size int64
	// KiloBytes is the space taken by the file's allocation blocks.
	KiloBytes uint
	Extents   uint
}

func (info FileInfo) FullName() string {
	return joinFilename(info.Name, info.Type)
}

// Summary gives the totals that follow a directory listing.
type Summary struct {
	Files uint
	// UsedKB is the space occupied by the files that were listed.
	UsedKB uint
	// TotalKB is the capacity of the data area, excluding the directory.
	TotalKB uint
	// FreeEntries counts unused directory entries, regardless of user.
	FreeEntries uint
	FreeKB      uint
}

// ListFiles describes every file owned by `user`, which may be [AllUsers], in
// listing order.
func (driver *Driver) ListFiles(user int) ([]FileInfo, Summary, error) {
	if err := driver.checkMounted(); err != nil {
		return nil, Summary{}, err
	}

	geometry := driver.geometry
	blockKB := geometry.BlockSize / 1024
	summary := Summary{
		TotalKB:     (geometry.TotalAllocations() - geometry.DirectoryBlocks) * geometry.BlockSize / 1024,
		FreeEntries: geometry.DirectoryEntries - driver.directory.countValid(),
		FreeKB:      driver.allocator.CountFree() * blockKB,
	}

	infos := []FileInfo{}
	for _, file := range driver.directory.files {
		if !userMatches(user, file.User()) {
			continue
		}

		records := file.TotalRecords(geometry)
		info := FileInfo{
			Name:       file.Name(),
			Type:       file.Type(),
			User:       file.User(),
			Attributes: file.Attributes(),
			Records:    records,
			Size:       int64(records) * int64(geometry.SectorLength),
			KiloBytes:  file.TotalAllocations() * geometry.BlockSize / 1024,
			Extents:    uint(len(file.Extents)),
		}
		infos = append(infos, info)
		summary.Files++
		summary.UsedKB += info.KiloBytes
	}
	return infos, summary, nil
}

// RawEntry is a directory entry as shown in a raw listing.
type RawEntry struct {
	Index      uint   `csv:"index"`
	User       uint8  `csv:"user"`
	Name       string `csv:"name"`
	Type       string `csv:"type"`
	Attributes string `csv:"attributes"`
	Extent     uint   `csv:"extent"`
	Records    uint   `csv:"records"`
	// Allocations has every allocation slot, including unused ones.
	Allocations    []c.AllocationUnit `csv:"-"`
	AllocationList string             `csv:"allocations"`
}

// RawEntries returns every valid directory entry in on-disk order.
func (driver *Driver) RawEntries() ([]RawEntry, error) {
	if err := driver.checkMounted(); err != nil {
		return nil, err
	}

	wide := driver.geometry.WideAllocations()
	slots := driver.geometry.AllocationsPerDirent()
	entries := []RawEntry{}

	for _, dirent := range driver.directory.entries {
		if !dirent.Valid {
			continue
		}

		entry := RawEntry{
			Index:       dirent.Index,
			User:        dirent.User,
			Name:        fmt.Sprintf("%-*s", nameLength, dirent.Name),
			Type:        fmt.Sprintf("%-*s", typeLength, dirent.Type),
			Attributes:  dirent.Attributes(),
			Extent:      dirent.Extent,
			Records:     dirent.Records,
			Allocations: make([]c.AllocationUnit, slots),
		}

		numbers := make([]string, slots)
		for slot := uint(0); slot < slots; slot++ {
			entry.Allocations[slot] = dirent.Raw.Allocation(slot, wide)
			numbers[slot] = fmt.Sprint(entry.Allocations[slot])
		}
		entry.AllocationList = strings.Join(numbers, ",")
		entries = append(entries, entry)
	}
	return entries, nil
}

// FreeAllocations lists every allocation block not used by any file.
func (driver *Driver) FreeAllocations() ([]c.AllocationUnit, error) {
	if err := driver.checkMounted(); err != nil {
		return nil, err
	}
	return driver.allocator.FreeUnits(), nil
}
