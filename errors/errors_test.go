package errors_test

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/cpmtools/altairdisk/errors"
	"github.com/stretchr/testify/assert"
)

func TestDriverErrorWithMessage(t *testing.T) {
	newErr := errors.ErrExists.WithMessage("ASM.COM")
	assert.Equal(t, "File exists: ASM.COM", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, errors.ErrExists)
	assert.Equal(t, errors.EEXIST, newErr.Errno())
}

func TestDriverErrorWrap(t *testing.T) {
	originalErr := goerrors.New("original error")
	newErr := errors.ErrIOFailed.Wrap(originalErr)

	assert.Equal(t, "Input/output error: original error", newErr.Error())
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, errors.ErrIOFailed, "driver error not set as parent")
}

func TestDriverErrorIs__MatchesOnErrno(t *testing.T) {
	err := errors.NewWithMessage(errors.ENOSPC, "no free allocation blocks")
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)
	assert.ErrorIs(t, errors.ErrDirectoryFull, errors.ErrNoSpaceOnDevice)
	assert.NotErrorIs(t, err, errors.ErrNotFound)
}

func TestErrnoOf(t *testing.T) {
	wrapped := fmt.Errorf("PIP.COM: %w", errors.ErrNotFound)
	assert.Equal(t, errors.ENOENT, errors.ErrnoOf(wrapped))
	assert.Equal(t, errors.EIO, errors.ErrnoOf(goerrors.New("plain")))
}

func TestSentinels__HaveDescriptiveMessages(t *testing.T) {
	assert.Equal(t, "No such file or directory", errors.ErrNotFound.Error())
	assert.Equal(t, "No such file or directory: NOPE.COM", errors.ErrNotFound.WithMessage("NOPE.COM").Error())
	assert.Equal(t, "Wrong medium type", errors.ErrInvalidFileSystem.Error())
	assert.Equal(t, "No space left on device: no free directory entries", errors.ErrDirectoryFull.Error())
	assert.Equal(t, "Operation not permitted: image is not mounted",
		errors.NewWithMessage(errors.EPERM, "image is not mounted").Error())

	for _, sentinel := range []errors.DriverError{
		errors.ErrNotPermitted,
		errors.ErrNotFound,
		errors.ErrIOFailed,
		errors.ErrBusy,
		errors.ErrExists,
		errors.ErrInvalidArgument,
		errors.ErrNoSpaceOnDevice,
		errors.ErrReadOnlyFileSystem,
		errors.ErrNotSupported,
		errors.ErrInvalidFileSystem,
	} {
		assert.NotContains(t, sentinel.Error(), "not recognized", "errno %d", sentinel.Errno())
	}
}

func TestStrError__Unknown(t *testing.T) {
	assert.Equal(t, "error 999 not recognized.", errors.StrError(999))
}
