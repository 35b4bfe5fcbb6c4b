package cpm

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/cpmtools/altairdisk/disks"
	"github.com/cpmtools/altairdisk/errors"
	c "github.com/cpmtools/altairdisk/file_systems/common"
	"github.com/cpmtools/altairdisk/file_systems/common/blockcache"
)

// Driver gives access to the CP/M file system on a single image. It isn't safe
// for concurrent use.
type Driver struct {
	// image is the stream for the disk image file.
	image    io.ReadWriteSeeker
	geometry disks.DiskGeometry
	logger   *slog.Logger
	// cache holds every physical sector of the image that's been touched.
	// Nothing is written to `image` until [Driver.Flush] is called.
	cache     *blockcache.BlockCache
	directory *directory
	allocator *c.Allocator
	// warnings collects problems found while loading the directory that didn't
	// stop the image from being mounted.
	warnings  []string
	isMounted bool
}

// NewDriver creates a driver for an image with a known geometry. If `logger` is
// nil, [slog.Default] is used.
func NewDriver(image io.ReadWriteSeeker, geometry disks.DiskGeometry, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		image:    image,
		geometry: geometry,
		logger:   logger.With(slog.String("disk_type", geometry.Slug)),
	}
}

// OpenImage determines the geometry of an image, either from `slug` or from
// the size of the image if `slug` is empty, and mounts it.
func OpenImage(image io.ReadWriteSeeker, slug string, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	size, err := image.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.ErrIOFailed.Wrap(err)
	}

	geometry, err := ResolveGeometry(size, slug, logger)
	if err != nil {
		return nil, err
	}

	driver := NewDriver(image, geometry, logger)
	err = driver.Mount()
	if err != nil {
		return nil, err
	}
	return driver, nil
}

func (driver *Driver) Geometry() disks.DiskGeometry {
	return driver.geometry
}

// Warnings returns the problems found with the directory when the image was
// mounted.
func (driver *Driver) Warnings() []string {
	return driver.warnings
}

func (driver *Driver) checkMounted() error {
	if !driver.isMounted {
		return errors.NewWithMessage(errors.EPERM, "image is not mounted")
	}
	return nil
}

// Mount reads the directory table and works out which allocation blocks are in
// use.
func (driver *Driver) Mount() error {
	if driver.isMounted {
		return errors.NewWithMessage(errors.EBUSY, "image is already mounted")
	}

	geometry := driver.geometry
	driver.cache = blockcache.WrapStream(
		driver.image, geometry.SectorLength, geometry.TotalSectors(), false)
	driver.directory = newDirectory(geometry)
	driver.allocator = c.NewAllocator(geometry.TotalAllocations(), geometry.DirectoryBlocks)
	driver.warnings = nil

	sectorData := make([]byte, geometry.DataLength)
	for sectorNumber := uint(0); sectorNumber < driver.directory.sectorCount(); sectorNumber++ {
		alloc, record := driver.directory.direntLocation(sectorNumber * geometry.DirentsPerSector())
		err := driver.readRecord(alloc, record, sectorData)
		if err != nil {
			return err
		}

		for _, dirent := range driver.directory.decodeSector(sectorNumber, sectorData) {
			if dirent.Valid {
				driver.markAllocations(dirent)
			}
		}
	}

	driver.directory.relink()
	driver.isMounted = true
	driver.logger.Debug("mounted image", slog.String("directory", driver.directory.String()))
	return nil
}

// markAllocations flags every block used by a directory entry. Blocks out of
// range are skipped with a warning; they usually mean the wrong disk type was
// picked.
func (driver *Driver) markAllocations(dirent *Dirent) {
	for _, unit := range dirent.Allocations {
		err := driver.allocator.MarkUsed(unit)
		if err == nil {
			continue
		}

		message := fmt.Sprintf(
			"invalid allocation number %d in directory entry %d (%s); possible incorrect image type",
			unit,
			dirent.Index,
			dirent.FullName(),
		)
		driver.warnings = append(driver.warnings, message)
		driver.logger.Warn(
			"invalid allocation number in directory table; possible incorrect image type",
			slog.Uint64("allocation", uint64(unit)),
			slog.Uint64("entry", uint64(dirent.Index)),
			slog.String("file", dirent.FullName()),
			slog.Uint64("total_allocations", uint64(driver.allocator.TotalUnits())),
		)
	}
}

// Flush writes all modified sectors to the image.
func (driver *Driver) Flush() error {
	if err := driver.checkMounted(); err != nil {
		return err
	}
	return driver.cache.Flush()
}

// Unmount flushes all changes to the image and releases the in-memory copy of
// the directory.
func (driver *Driver) Unmount() error {
	if err := driver.Flush(); err != nil {
		return err
	}
	driver.isMounted = false
	driver.cache = nil
	driver.directory = nil
	driver.allocator = nil
	return nil
}

// FindFile returns the file named `filename` owned by `user`, which may be
// [AllUsers]. No wildcards are allowed.
func (driver *Driver) FindFile(filename string, user int) (*File, error) {
	if err := driver.checkMounted(); err != nil {
		return nil, err
	}

	found := driver.directory.find(filename, user, false)
	if len(found) == 0 {
		return nil, errors.ErrNotFound.WithMessage(filename)
	}
	return found[0], nil
}

// FindFiles returns every file matching a wildcard pattern, in directory order.
func (driver *Driver) FindFiles(pattern string, user int) ([]*File, error) {
	if err := driver.checkMounted(); err != nil {
		return nil, err
	}
	return driver.directory.find(pattern, user, true), nil
}

// Files returns every file on the image in listing order.
func (driver *Driver) Files() []*File {
	if driver.directory == nil {
		return nil
	}
	return driver.directory.files
}
