package cpm

import (
	"log/slog"

	"github.com/cpmtools/altairdisk/errors"
	c "github.com/cpmtools/altairdisk/file_systems/common"
	"github.com/cpmtools/altairdisk/file_systems/common/blockcache"
	"github.com/noxer/bytewriter"
)

// Format writes a freshly formatted, empty file system over the entire image.
// The image is resized to the exact size of the geometry if it supports
// truncation. The driver must not be mounted; call [Driver.Mount] afterwards to
// use the new file system.
func (driver *Driver) Format() error {
	if driver.isMounted {
		return errors.NewWithMessage(errors.EBUSY, "can't format a mounted image")
	}

	geometry := driver.geometry
	if geometry.Slug == "HDD_5MB_1024" {
		driver.logger.Warn(
			"this format can only be read by a BIOS built for 1024 directory entries",
			slog.Uint64("directory_entries", uint64(geometry.DirectoryEntries)),
		)
	}

	cache := blockcache.WrapStream(
		driver.image, geometry.SectorLength, geometry.TotalSectors(), true)
	err := cache.Resize(geometry.TotalSectors())
	if err != nil && errors.ErrnoOf(err) != errors.ENOTSUP {
		return errors.ErrIOFailed.Wrap(err)
	}

	layout := geometry.Layout()
	trackData := make([]byte, geometry.TrackLength())
	sector := make([]byte, geometry.SectorLength)

	for track := uint(0); track < geometry.TotalTracks; track++ {
		writer := bytewriter.New(trackData)
		for physicalSector := uint(1); physicalSector <= geometry.SectorsPerTrack; physicalSector++ {
			layout.FormatSector(track, physicalSector, sector)
			driver.traceRawSector("writing raw sector", track, physicalSector)
			_, err = writer.Write(sector)
			if err != nil {
				return errors.ErrIOFailed.Wrap(err)
			}
		}

		firstBlock := c.LogicalBlock(geometry.SectorIndex(track, 1))
		err = cache.Write(firstBlock, trackData)
		if err != nil {
			return err
		}
	}

	driver.logger.Debug(
		"formatted image",
		slog.Uint64("tracks", uint64(geometry.TotalTracks)),
		slog.Int64("size", geometry.ImageSize),
	)
	return cache.Flush()
}
