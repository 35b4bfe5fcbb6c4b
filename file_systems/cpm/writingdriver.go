package cpm

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/cpmtools/altairdisk/errors"
	c "github.com/cpmtools/altairdisk/file_systems/common"
	"github.com/hashicorp/go-multierror"
)

// readHostRecord fills `buffer` with the next record of `input`, padding a
// short read with EOF markers. It returns the number of bytes read, which is
// 0 at the end of the input.
func readHostRecord(input io.Reader, buffer []byte) (int, error) {
	for i := range buffer {
		buffer[i] = EOFMarker
	}

	n, err := io.ReadFull(input, buffer)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, nil
	}
	return n, err
}

// pendingDirent is a directory entry that's being filled in by WriteFile but
// hasn't been written out yet.
type pendingDirent struct {
	index uint
	raw   RawDirent
}

func (driver *Driver) flushPendingDirent(pending *pendingDirent) error {
	driver.directory.setRaw(pending.index, pending.raw)
	return driver.writeDirent(pending.index)
}

// WriteFile creates a file named `filename` for user `user` and copies all of
// `input` into it. The name is converted with [ValidateFilename] first, and
// the converted name is returned.
//
// It fails with [errors.EEXIST] if the file already exists, and with
// [errors.ENOSPC] if the directory or the data area fills up. Whatever was
// written before the disk filled up is left on the image as a truncated file.
//
// An empty input creates a file with one directory entry, a record count of 1,
// and no allocation blocks.
func (driver *Driver) WriteFile(filename string, user uint8, input io.Reader) (string, error) {
	if err := driver.checkMounted(); err != nil {
		return "", err
	}
	if user > MaxUser {
		return "", errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("user number %d not in range [0, %d]", user, MaxUser))
	}

	validName, err := ValidateFilename(filename)
	if err != nil {
		return "", err
	}
	if validName != filename {
		driver.logger.Info(
			"converted filename",
			slog.String("from", filename),
			slog.String("to", validName),
		)
	}

	if found := driver.directory.find(validName, int(user), false); len(found) > 0 {
		return validName, errors.ErrExists.WithMessage(validName)
	}

	err = driver.writeFileContents(validName, user, input)
	driver.directory.relink()
	return validName, err
}

func (driver *Driver) writeFileContents(validName string, user uint8, input io.Reader) error {
	geometry := driver.geometry
	recordsPerExtent := geometry.RecordsPerExtent()
	recordsPerAlloc := geometry.RecordsPerAllocation()
	wide := geometry.WideAllocations()

	buffer := make([]byte, geometry.DataLength)
	nbytes, err := readHostRecord(input, buffer)
	if err != nil {
		return errors.ErrIOFailed.Wrap(fmt.Errorf("reading %s: %w", validName, err))
	}

	var pending *pendingDirent
	var allocation c.AllocationUnit
	recordNumber := uint(0)
	extentNumber := uint(0)
	allocsInExtent := uint(0)

	// The loop runs at least once, so an empty file still gets an entry.
	for {
		if recordNumber%recordsPerExtent == 0 {
			if pending != nil {
				if err = driver.flushPendingDirent(pending); err != nil {
					return err
				}
			}

			index, ok := driver.directory.claimFree()
			if !ok {
				return errors.ErrDirectoryFull.WithMessage(validName)
			}
			pending = &pendingDirent{index: index, raw: RawDirent{User: user}}
			pending.raw.SetFilename(validName)
			allocsInExtent = 0
		}

		if recordNumber%recordsPerAlloc == 0 {
			allocation = 0
			if nbytes > 0 {
				allocation, err = driver.allocator.AllocateSingle()
				if err != nil {
					// Keep what's been written so far findable.
					if pending.raw.Allocation(0, wide) != 0 {
						if flushErr := driver.flushPendingDirent(pending); flushErr != nil {
							return flushErr
						}
					}
					return errors.NewWithMessage(
						errors.ENOSPC, fmt.Sprintf("no free allocation blocks for %s", validName))
				}
			}
			pending.raw.SetAllocation(allocsInExtent, allocation, wide)
			allocsInExtent++
		}

		pending.raw.Records = uint8(recordNumber%maxRecordsPerDirent + 1)
		pending.raw.SetExtent(extentNumber)

		if nbytes > 0 {
			if err = driver.writeRecord(allocation, recordNumber, buffer); err != nil {
				return err
			}
		}

		recordNumber++
		if recordNumber%maxRecordsPerDirent == 0 {
			extentNumber++
		}

		nbytes, err = readHostRecord(input, buffer)
		if err != nil {
			var result *multierror.Error
			result = multierror.Append(
				result, errors.ErrIOFailed.Wrap(fmt.Errorf("reading %s: %w", validName, err)))
			if pending.raw.Allocation(0, wide) != 0 {
				if flushErr := driver.flushPendingDirent(pending); flushErr != nil {
					result = multierror.Append(result, flushErr)
				}
			}
			return result.ErrorOrNil()
		}
		if nbytes == 0 {
			break
		}
	}

	return driver.flushPendingDirent(pending)
}

// RemoveFile erases a file by marking all of its directory entries as deleted.
//
// The file's allocation blocks are not made available again until the image
// is mounted again. Until then, writing new files can't reuse that space.
func (driver *Driver) RemoveFile(file *File) error {
	if err := driver.checkMounted(); err != nil {
		return err
	}

	for _, extent := range file.Extents {
		raw := extent.Raw
		raw.User = DeletedUser
		driver.directory.setRaw(extent.Index, raw)

		if err := driver.writeDirent(extent.Index); err != nil {
			driver.directory.relink()
			return err
		}
	}

	driver.directory.relink()
	return nil
}

// Remove erases the file named `filename` owned by `user`.
func (driver *Driver) Remove(filename string, user int) error {
	file, err := driver.FindFile(filename, user)
	if err != nil {
		return err
	}
	return driver.RemoveFile(file)
}
