package cpm

import (
	"fmt"
	"log/slog"

	"github.com/cpmtools/altairdisk/errors"
	c "github.com/cpmtools/altairdisk/file_systems/common"
)

// recordBlock finds the physical sector holding a record and returns its data.
// The returned slice points into the cache, so it's the entire raw sector, not
// just the data.
func (driver *Driver) recordBlock(
	alloc c.AllocationUnit, record uint, operation string,
) (raw []byte, track uint, block c.LogicalBlock, err error) {
	track, sector := driver.geometry.Locate(uint(alloc), record)
	block = c.LogicalBlock(driver.geometry.SectorIndex(track, sector))

	driver.logger.Debug(
		operation,
		slog.Uint64("allocation", uint64(alloc)),
		slog.Uint64("record", uint64(record)),
		slog.Uint64("track", uint64(track)),
		slog.Uint64("sector", uint64(sector)),
		slog.Int64("offset", driver.geometry.RecordOffset(uint(alloc), record)),
	)

	raw, err = driver.cache.GetSlice(block, 1)
	if err != nil {
		return nil, 0, 0, errors.ErrIOFailed.Wrap(
			fmt.Errorf("allocation %d record %d: %w", alloc, record, err))
	}
	return raw, track, block, nil
}

// readRecord copies one record of data from the image into `buffer`.
func (driver *Driver) readRecord(alloc c.AllocationUnit, record uint, buffer []byte) error {
	raw, track, _, err := driver.recordBlock(alloc, record, "reading record")
	if err != nil {
		return err
	}

	offset := driver.geometry.Layout().DataOffset(track)
	copy(buffer, raw[offset:offset+driver.geometry.DataLength])
	return nil
}

// writeRecord replaces one record of data in the image, updating the sector
// checksum if the format has one.
func (driver *Driver) writeRecord(alloc c.AllocationUnit, record uint, data []byte) error {
	raw, track, block, err := driver.recordBlock(alloc, record, "writing record")
	if err != nil {
		return err
	}

	layout := driver.geometry.Layout()
	offset := layout.DataOffset(track)
	copy(raw[offset:offset+driver.geometry.DataLength], data)
	layout.Seal(track, raw)
	return driver.cache.MarkBlockRangeDirty(block, 1)
}

// writeDirent writes out the directory sector containing entry `index`.
func (driver *Driver) writeDirent(index uint) error {
	alloc, record := driver.directory.direntLocation(index)
	return driver.writeRecord(alloc, record, driver.directory.encodeSector(index))
}

// traceRawSector logs an access to an entire physical sector, framing
// included.
func (driver *Driver) traceRawSector(operation string, track, sector uint) {
	driver.logger.Debug(
		operation,
		slog.Uint64("track", uint64(track)),
		slog.Uint64("sector", uint64(sector)),
		slog.Int64("offset", driver.geometry.SectorOffset(track, sector)),
	)
}
