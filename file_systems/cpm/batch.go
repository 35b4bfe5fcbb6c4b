package cpm

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/cpmtools/altairdisk/errors"
	"github.com/hashicorp/go-multierror"
)

// The batch operations below keep going after a failure with one file and
// return every error they hit. Failures to read or write the image itself
// (errno EIO) stop the batch immediately, since nothing after them could be
// trusted.

// CreateFunc opens the host file that a file on the image is copied into.
type CreateFunc func(hostName string) (io.WriteCloser, error)

// OpenFunc opens a host file for copying onto the image.
type OpenFunc func(hostPath string) (io.ReadCloser, error)

func isImageFailure(err error) bool {
	return errors.ErrnoOf(err) == errors.EIO
}

// HostFileName gives the name `file` is saved under on the host. When
// exporting for all users, a file owned by a user other than 0 gets a "_<user>"
// suffix if another user has a file with the same name, so they don't
// overwrite each other.
func (driver *Driver) HostFileName(file *File, user int) string {
	if user == AllUsers && file.User() != 0 && driver.directory.existsForOtherUsers(file) {
		return fmt.Sprintf("%s_%d", file.FullName(), file.User())
	}
	return file.FullName()
}

// GetFiles copies every file matching any of `patterns` to the host.
func (driver *Driver) GetFiles(
	patterns []string, user int, mode TransferMode, create CreateFunc,
) error {
	if err := driver.checkMounted(); err != nil {
		return err
	}

	var result *multierror.Error
	for _, pattern := range patterns {
		found := driver.directory.find(pattern, user, true)
		if len(found) == 0 {
			result = multierror.Append(result, errors.ErrNotFound.WithMessage(pattern))
			continue
		}

		for _, file := range found {
			hostName := driver.HostFileName(file, user)
			err := driver.getFile(file, hostName, mode, create)
			if err == nil {
				driver.logger.Info(
					"copied file from image",
					slog.String("file", file.FullName()),
					slog.Int("user", int(file.User())),
					slog.String("host_file", hostName),
				)
				continue
			}

			result = multierror.Append(result, err)
			if isImageFailure(err) {
				return result.ErrorOrNil()
			}
		}
	}
	return result.ErrorOrNil()
}

func (driver *Driver) getFile(file *File, hostName string, mode TransferMode, create CreateFunc) error {
	output, err := create(hostName)
	if err != nil {
		return errors.NewWithMessage(
			errors.EPERM, fmt.Sprintf("skipping %s: %s", file.FullName(), err.Error()))
	}

	readErr := driver.ReadFile(file, output, mode)
	closeErr := output.Close()
	if readErr != nil {
		return readErr
	}
	if closeErr != nil {
		return errors.ErrIOFailed.Wrap(fmt.Errorf("closing %s: %w", hostName, closeErr))
	}
	return nil
}

// PutFiles copies every host file in `hostPaths` onto the image for `user`.
// Each file is named after the last element of its path.
func (driver *Driver) PutFiles(hostPaths []string, user uint8, open OpenFunc) error {
	if err := driver.checkMounted(); err != nil {
		return err
	}

	var result *multierror.Error
	for _, hostPath := range hostPaths {
		input, err := open(hostPath)
		if err != nil {
			result = multierror.Append(
				result,
				errors.NewWithMessage(
					errors.ENOENT, fmt.Sprintf("opening %s: %s", hostPath, err.Error())),
			)
			continue
		}

		name, err := driver.WriteFile(filepath.Base(hostPath), user, input)
		input.Close()
		if err == nil {
			driver.logger.Info(
				"copied file to image",
				slog.String("host_file", hostPath),
				slog.String("file", name),
				slog.Int("user", int(user)),
			)
			continue
		}

		result = multierror.Append(result, err)
		if isImageFailure(err) {
			return result.ErrorOrNil()
		}
	}
	return result.ErrorOrNil()
}

// EraseFiles erases every file matching any of `patterns`.
func (driver *Driver) EraseFiles(patterns []string, user int) error {
	if err := driver.checkMounted(); err != nil {
		return err
	}

	var result *multierror.Error
	for _, pattern := range patterns {
		found := driver.directory.find(pattern, user, true)
		if len(found) == 0 {
			result = multierror.Append(result, errors.ErrNotFound.WithMessage(pattern))
			continue
		}

		for _, file := range found {
			err := driver.RemoveFile(file)
			if err != nil {
				result = multierror.Append(result, err)
				if isImageFailure(err) {
					return result.ErrorOrNil()
				}
				continue
			}
			driver.logger.Info(
				"erased file",
				slog.String("file", file.FullName()),
				slog.Int("user", int(file.User())),
			)
		}
	}
	return result.ErrorOrNil()
}
