package compression_test

import (
	"bytes"
	"testing"

	"github.com/sfskit/sfs"
	dt "github.com/sfskit/sfs/testing"
	c "github.com/sfskit/sfs/utilities/compression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackImage__RoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"random", dt.CreateRandomImage(512, 16, t)},
		{"homogenous", bytes.Repeat([]byte{100}, 512*18)},
		{"empty", []byte{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			totalBlocks := uint(len(tc.data) / 512)
			device := dt.CreateDefaultDevice(512, totalBlocks, false, tc.data, t)

			packed := bytes.Buffer{}
			packedSize, err := c.PackImage(device, &packed)
			require.NoError(t, err)
			assert.EqualValues(t, packed.Len(), packedSize)

			unpacked, err := c.UnpackImageToBytes(&packed)
			require.NoError(t, err)
			assert.Equal(t, len(tc.data), len(unpacked), "unpacked image has the wrong size")
			assert.True(t, bytes.Equal(tc.data, unpacked), "unpacked image is wrong")
		})
	}
}

// The whole point is to shrink mostly-empty images.
func TestPackImage__EmptyImageShrinks(t *testing.T) {
	data := make([]byte, 4096*64)
	device := dt.CreateDefaultDevice(4096, 64, false, data, t)

	packed := bytes.Buffer{}
	_, err := c.PackImage(device, &packed)
	require.NoError(t, err)
	assert.Less(t, packed.Len(), 1024)
}

func TestUnpackImage__NotGzipped(t *testing.T) {
	_, err := c.UnpackImage(bytes.NewReader([]byte("definitely not gzip")), &bytes.Buffer{})
	assert.ErrorIs(t, err, sfs.ErrInvalidArgument)
}
