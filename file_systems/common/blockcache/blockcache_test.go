package blockcache_test

import (
	"bytes"
	"testing"

	"github.com/cpmtools/altairdisk/errors"
	c "github.com/cpmtools/altairdisk/file_systems/common"
	"github.com/cpmtools/altairdisk/file_systems/common/blockcache"
	dt "github.com/cpmtools/altairdisk/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// Test block fetch functionality with no trickery such as reading past the end
// of the image.
func TestBlockCache__Fetch__Basic(t *testing.T) {
	// 64 sectors of 137 bytes, the size of a raw MITS 8" floppy sector.
	rawBlocks := dt.CreateRandomImage(137, 64, t)
	cache := dt.CreateDefaultCache(137, 64, false, rawBlocks, t)

	currentBlock := make([]byte, 137)
	for i := c.LogicalBlock(0); i < 64; i++ {
		err := cache.Read(i, currentBlock)
		if err != nil {
			t.Errorf("failed to read block %d of [0, 64): %s", i, err.Error())
			continue
		}

		start := i * 137
		if !bytes.Equal(currentBlock, rawBlocks[start:start+137]) {
			t.Errorf("block %d read from the cache doesn't match", i)
		}
	}
}

// Trying to read past the end of an image must fail.
func TestBlockCache__Fetch__ReadPastEnd(t *testing.T) {
	cache := dt.CreateDefaultCache(128, 16, false, nil, t)
	buffer := make([]byte, 128)

	assert.NoError(t, cache.Read(0, buffer), "failed to read first block")
	assert.NoError(t, cache.Read(15, buffer), "failed to read last block")

	// Read one block past the last valid block (equal to the total number of
	// blocks). This must fail.
	err := cache.Read(16, buffer)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument, "tried reading block 16 of [0, 16)")

	err = cache.Read(16, []byte{})
	assert.Error(t, err, "tried reading 0 bytes of block 16 of [0, 16) but it didn't fail")

	assert.NoError(t, cache.Read(0, make([]byte, 2048)), "failed reading entire image")
	assert.Error(
		t,
		cache.Read(0, make([]byte, 2049)),
		"should've failed to read entire image + 1 byte into buffer")
}

// Write to a block and then read back that same block. You should always get
// back what you wrote.
func TestBlockCache__Write__Basic(t *testing.T) {
	cache := dt.CreateDefaultCache(128, 16, true, nil, t)
	readBuffer := make([]byte, cache.BytesPerBlock())

	for i := 0; i < int(cache.TotalBlocks()); i++ {
		writeBuffer := dt.RandomBytes(t, int(cache.BytesPerBlock()))
		require.NoError(t, cache.Write(c.LogicalBlock(i), writeBuffer))
		require.NoError(t, cache.Read(c.LogicalBlock(i), readBuffer))
		assert.Equal(t, writeBuffer, readBuffer, "block %d differs", i)
	}
}

// Writing a buffer that ends partway through a block must leave the rest of
// that block intact.
func TestBlockCache__Write__PartialBlock(t *testing.T) {
	backing := dt.CreateRandomImage(128, 4, t)
	original := append([]byte(nil), backing...)
	cache := dt.CreateDefaultCache(128, 4, true, backing, t)

	require.NoError(t, cache.Write(1, []byte{1, 2, 3}))
	require.NoError(t, cache.Flush())

	assert.Equal(t, []byte{1, 2, 3}, backing[128:131])
	assert.Equal(t, original[131:256], backing[131:256])
	assert.Equal(t, original[:128], backing[:128], "block 0 was modified")
}

// Only dirty blocks get written back, and only on flush.
func TestBlockCache__Flush__OnlyDirty(t *testing.T) {
	backing := make([]byte, 128*8)
	flushed := []c.LogicalBlock{}

	cache := blockcache.New(
		128,
		8,
		func(block c.LogicalBlock, buffer []byte) error {
			copy(buffer, backing[block*128:(block+1)*128])
			return nil
		},
		func(block c.LogicalBlock, buffer []byte) error {
			flushed = append(flushed, block)
			copy(backing[block*128:(block+1)*128], buffer)
			return nil
		},
		nil,
	)

	slice, err := cache.GetSlice(3, 2)
	require.NoError(t, err)
	slice[0] = 0xAA
	slice[128] = 0xBB
	assert.Zero(t, backing[3*128], "write went through before flush")

	require.NoError(t, cache.MarkBlockRangeDirty(3, 2))
	require.NoError(t, cache.Write(6, bytes.Repeat([]byte{0xCC}, 128)))
	require.NoError(t, cache.Flush())

	assert.Equal(t, []c.LogicalBlock{3, 4, 6}, flushed)
	assert.EqualValues(t, 0xAA, backing[3*128])
	assert.EqualValues(t, 0xBB, backing[4*128])
	assert.EqualValues(t, 0xCC, backing[6*128+127])

	// Flushing again must not write anything.
	flushed = flushed[:0]
	require.NoError(t, cache.Flush())
	assert.Empty(t, flushed)
}

func TestBlockCache__Resize__NotSupported(t *testing.T) {
	cache := dt.CreateDefaultCache(128, 4, true, nil, t)
	err := cache.Resize(8)
	assert.ErrorIs(t, err, errors.ErrNotSupported)
	assert.EqualValues(t, 4, cache.TotalBlocks())
}

func TestWrapStream__ReadWrite(t *testing.T) {
	backing := dt.CreateRandomImage(128, 8, t)
	stream := bytesextra.NewReadWriteSeeker(backing)
	cache := blockcache.WrapStream(stream, 128, 8, true)

	buffer := make([]byte, 256)
	require.NoError(t, cache.Read(2, buffer))
	assert.Equal(t, backing[256:512], buffer)

	payload := bytes.Repeat([]byte{0x5A}, 128)
	require.NoError(t, cache.Write(7, payload))
	require.NoError(t, cache.Flush())
	assert.Equal(t, payload, backing[7*128:])
}

// Resizing must be refused when the caller doesn't allow it, even if the
// stream could be truncated.
func TestWrapStream__ResizeForbidden(t *testing.T) {
	stream := bytesextra.NewReadWriteSeeker(make([]byte, 512))
	cache := blockcache.WrapStream(stream, 128, 4, false)
	assert.ErrorIs(t, cache.Resize(8), errors.ErrNotSupported)
}

// A stream shorter than the cache reads as zeroes past its end.
func TestWrapStream__ShortStream(t *testing.T) {
	stream := bytesextra.NewReadWriteSeeker(bytes.Repeat([]byte{0xFF}, 128+64))
	cache := blockcache.WrapStream(stream, 128, 4, false)

	buffer := make([]byte, 128)
	require.NoError(t, cache.Read(1, buffer))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 64), buffer[:64])
	assert.Equal(t, make([]byte, 64), buffer[64:])
}
