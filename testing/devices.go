package testing

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/sfskit/sfs"
	c "github.com/sfskit/sfs/file_systems/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CreateRandomImage returns `totalBlocks * bytesPerBlock` bytes of random data.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	data := make([]byte, bytesPerBlock*totalBlocks)
	_, err := rand.Read(data)
	require.NoErrorf(t, err, "can't fill %d x %d-byte image", totalBlocks, bytesPerBlock)
	return data
}

// CreateDefaultDevice returns a device whose blocks live in `backingData`, or
// in a fresh random image if that's nil. Writes land in `backingData`, so a
// test can remount a second device over the same slice.
//
// A read-only device fails the test on any write. Out-of-range block numbers
// fail it too; the device should have rejected them before the callbacks run.
func CreateDefaultDevice(
	bytesPerBlock,
	totalBlocks uint,
	writable bool,
	backingData []byte,
	t *testing.T,
) *c.CallbackDevice {
	if backingData == nil {
		backingData = CreateRandomImage(bytesPerBlock, totalBlocks, t)
	}

	blockData := func(operation string, block c.PhysicalBlock) ([]byte, error) {
		if uint(block) >= totalBlocks {
			message := fmt.Sprintf("%s of block %d on a %d-block device", operation, block, totalBlocks)
			t.Error(message)
			return nil, sfs.ErrIOFailed.WithMessage(message)
		}
		start := uint(block) * bytesPerBlock
		return backingData[start : start+bytesPerBlock], nil
	}

	fetch := func(block c.PhysicalBlock, buffer []byte) error {
		data, err := blockData("read", block)
		if err != nil {
			return err
		}
		copy(buffer, data)
		return nil
	}

	flush := func(block c.PhysicalBlock, buffer []byte) error {
		if !writable {
			message := fmt.Sprintf("write to block %d of a read-only device", block)
			t.Error(message)
			return sfs.ErrIOFailed.WithMessage(message)
		}
		data, err := blockData("write", block)
		if err != nil {
			return err
		}
		copy(data, buffer)
		return nil
	}

	device := c.NewCallbackDevice(bytesPerBlock, totalBlocks, fetch, flush)
	assert.EqualValues(t, bytesPerBlock*totalBlocks, device.Size(), "device size")
	return device
}
