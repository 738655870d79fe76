package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/sfskit/sfs"
	c "github.com/sfskit/sfs/file_systems/common"
)

type countingWriter struct {
	w     io.Writer
	count int64
}

func (cw *countingWriter) Write(data []byte) (int, error) {
	n, err := cw.w.Write(data)
	cw.count += int64(n)
	return n, err
}

// PackImage reads every block of `device` in order and writes it to `output`,
// run-length encoded and then gzipped.
//
// The returned int64 is the number of bytes written to `output`. If an error
// occurred it's undefined and should not be used.
func PackImage(device c.BlockDevice, output io.Writer) (int64, error) {
	counter := &countingWriter{w: output}

	gzWriter, err := gzip.NewWriterLevel(counter, gzip.BestCompression)
	if err != nil {
		return 0, err
	}

	encoder := NewRLE8Encoder(gzWriter)
	buffer := make([]byte, device.BytesPerBlock())

	for block := c.PhysicalBlock(0); block < c.PhysicalBlock(device.TotalBlocks()); block++ {
		err = device.ReadBlock(block, buffer)
		if err != nil {
			gzWriter.Close()
			return counter.count, sfs.CastToDriverError(err).WithMessage(
				fmt.Sprintf("packing block %d", block))
		}

		_, err = encoder.Write(buffer)
		if err != nil {
			gzWriter.Close()
			return counter.count, err
		}
	}

	err = encoder.Close()
	if err != nil {
		gzWriter.Close()
		return counter.count, err
	}

	// Closing the gzip stream writes the footer, so the count isn't final
	// until this returns.
	err = gzWriter.Close()
	return counter.count, err
}

// UnpackImage reverses [PackImage], writing the raw image bytes to `output`.
// It returns the size of the unpacked image.
func UnpackImage(input io.Reader, output io.Writer) (int64, error) {
	gzReader, err := gzip.NewReader(input)
	if err != nil {
		return 0, sfs.ErrInvalidArgument.Wrap(err)
	}
	defer gzReader.Close()
	return DecompressRLE8(gzReader, output)
}

// UnpackImageToBytes is a convenience wrapper around [UnpackImage] for images
// small enough to hold in memory.
func UnpackImageToBytes(input io.Reader) ([]byte, error) {
	buffer := bytes.Buffer{}
	_, err := UnpackImage(input, &buffer)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
