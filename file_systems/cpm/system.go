package cpm

import (
	"fmt"
	"io"

	"github.com/cpmtools/altairdisk/errors"
)

func (driver *Driver) systemSectorCount() uint {
	return driver.geometry.ReservedTracks * driver.geometry.SectorsPerTrack
}

// ExtractSystem copies the raw contents of the reserved tracks, which hold the
// CP/M boot image, to `output`. Sector framing is included and no skew is
// applied.
func (driver *Driver) ExtractSystem(output io.Writer) error {
	if err := driver.checkMounted(); err != nil {
		return err
	}

	data, err := driver.cache.GetSlice(0, driver.systemSectorCount())
	if err != nil {
		return err
	}

	_, err = output.Write(data)
	if err != nil {
		return errors.ErrIOFailed.Wrap(fmt.Errorf("writing system image: %w", err))
	}
	return nil
}

// InstallSystem overwrites the reserved tracks with `data`, which must be
// exactly [disks.DiskGeometry.SystemSize] bytes, in the same form
// [Driver.ExtractSystem] produces.
func (driver *Driver) InstallSystem(data []byte) error {
	if err := driver.checkMounted(); err != nil {
		return err
	}

	expected := driver.geometry.SystemSize()
	if int64(len(data)) != expected {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"system image must be exactly %d bytes for %s, got %d",
				expected,
				driver.geometry.Slug,
				len(data),
			),
		)
	}

	return driver.cache.Write(0, data)
}
