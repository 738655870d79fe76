package compression

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// maxRunLength is the longest run a single RLE8 group can describe: two copies
// of the byte plus up to 255 repeats.
const maxRunLength = 257

// RLE8Encoder run-length encodes everything written to it. Runs may span calls
// to Write, so data can be fed in block by block; call Close to emit the final
// run.
type RLE8Encoder struct {
	output   io.Writer
	current  byte
	runCount int
	written  int64
}

// NewRLE8Encoder creates an encoder that writes compressed data to `output`.
func NewRLE8Encoder(output io.Writer) *RLE8Encoder {
	return &RLE8Encoder{output: output}
}

// BytesWritten returns the number of encoded bytes written to the output so
// far.
func (enc *RLE8Encoder) BytesWritten() int64 {
	return enc.written
}

func (enc *RLE8Encoder) flushRun() error {
	var group []byte
	switch {
	case enc.runCount == 0:
		return nil
	case enc.runCount == 1:
		group = []byte{enc.current}
	default:
		group = []byte{enc.current, enc.current, byte(enc.runCount - 2)}
	}

	n, err := enc.output.Write(group)
	enc.written += int64(n)
	enc.runCount = 0
	return err
}

// Write encodes `data`. The returned count is the number of input bytes
// consumed, not the number of bytes written to the output.
func (enc *RLE8Encoder) Write(data []byte) (int, error) {
	for i, b := range data {
		if enc.runCount > 0 && b == enc.current {
			enc.runCount++
			if enc.runCount == maxRunLength {
				err := enc.flushRun()
				if err != nil {
					return i, err
				}
			}
			continue
		}

		err := enc.flushRun()
		if err != nil {
			return i, err
		}
		enc.current = b
		enc.runCount = 1
	}
	return len(data), nil
}

// Close writes out the run in progress, if any. It doesn't close the
// underlying writer.
func (enc *RLE8Encoder) Close() error {
	return enc.flushRun()
}

// CompressRLE8 encodes all of `input` into `output` and returns the number of
// bytes written to `output`.
func CompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	encoder := NewRLE8Encoder(output)
	_, err := io.Copy(encoder, input)
	if err != nil {
		return encoder.BytesWritten(), err
	}
	err = encoder.Close()
	return encoder.BytesWritten(), err
}

// DecompressRLE8 decodes RLE8 data from `input` until EOF, writing the original
// bytes to `output`. It returns the number of decoded bytes written.
func DecompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	total := int64(0)
	// The previous byte if it could start a group, or -1 if it can't.
	previous := -1

	for {
		b, err := source.ReadByte()
		if errors.Is(err, io.EOF) {
			return total, nil
		} else if err != nil {
			return total, fmt.Errorf("reading compressed data: %w", err)
		}

		var decoded []byte
		if int(b) == previous {
			repeats, err := source.ReadByte()
			if errors.Is(err, io.EOF) {
				return total, fmt.Errorf(
					"%w: no repeat count after two %#02x bytes",
					io.ErrUnexpectedEOF,
					b,
				)
			} else if err != nil {
				return total, fmt.Errorf("reading compressed data: %w", err)
			}

			// The first copy of the byte went out on the previous iteration.
			decoded = bytes.Repeat([]byte{b}, int(repeats)+1)
			previous = -1
		} else {
			decoded = []byte{b}
			previous = int(b)
		}

		n, err := output.Write(decoded)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("writing decompressed data: %w", err)
		}
	}
}
