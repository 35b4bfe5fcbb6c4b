package cpm

import (
	"fmt"
	"log/slog"

	"github.com/cpmtools/altairdisk/disks"
	"github.com/cpmtools/altairdisk/errors"
)

// ResolveGeometry picks the geometry for an image of `size` bytes. If `slug`
// isn't empty that geometry is used even if the size is wrong for it, and a
// warning is logged. Otherwise the geometry is detected from the size.
func ResolveGeometry(size int64, slug string, logger *slog.Logger) (disks.DiskGeometry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if slug != "" {
		geometry, err := disks.GetPredefinedDiskGeometry(slug)
		if err != nil {
			return disks.DiskGeometry{}, err
		}

		if size != 0 && !geometry.MatchesSize(size) {
			logger.Warn(
				"image size doesn't match the selected disk type",
				slog.String("disk_type", geometry.Slug),
				slog.Int64("image_size", size),
				slog.Int64("expected_size", geometry.ImageSize),
			)
		}
		return geometry, nil
	}

	geometry, ok := disks.DetectGeometry(size)
	if !ok {
		return disks.DiskGeometry{}, errors.NewWithMessage(
			errors.EMEDIUMTYPE,
			fmt.Sprintf("can't detect the disk type of a %d-byte image; select one explicitly", size),
		)
	}

	logger.Debug(
		"detected disk type",
		slog.String("disk_type", geometry.Slug),
		slog.Int64("image_size", size),
	)
	return geometry, nil
}
