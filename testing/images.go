package testing

import (
	"io"
	"testing"

	"github.com/cpmtools/altairdisk/disks"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// NewBlankImage creates a zero-filled in-memory image of the right size for
// the geometry named by `slug`.
//
//   - The returned slice is the backing storage of the stream, so writes to the
//     stream that have been flushed are visible in it.
//   - While the stream can be written to, its size is fixed. Attempting to
//     write past the end of the buffer will trigger an error.
func NewBlankImage(t *testing.T, slug string) (disks.DiskGeometry, []byte, io.ReadWriteSeeker) {
	geometry, err := disks.GetPredefinedDiskGeometry(slug)
	require.NoError(t, err, "bad disk type %q", slug)

	imageBytes := make([]byte, geometry.ImageSize)
	return geometry, imageBytes, bytesextra.NewReadWriteSeeker(imageBytes)
}

// WrapImage returns a fixed-size stream over an existing image.
func WrapImage(imageBytes []byte) io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(imageBytes)
}
