package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sfskit/sfs"
	"github.com/sfskit/sfs/disks"
	c "github.com/sfskit/sfs/file_systems/common"
	"github.com/sfskit/sfs/file_systems/simplefs"
	"github.com/sfskit/sfs/utilities/compression"
	"github.com/urfave/cli/v2"
)

// imageDevice is a block device backed by an image file. Unmounting syncs the
// file if it was opened for writing.
type imageDevice struct {
	*c.CallbackDevice
	file     *os.File
	writable bool
}

func (device *imageDevice) Sync() error {
	if !device.writable {
		return nil
	}
	return device.file.Sync()
}

func newImageDevice(file *os.File, writable bool) (*imageDevice, error) {
	totalBlocks, err := c.DetermineBlockCount(file, simplefs.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("determining size of %s: %w", file.Name(), err)
	}
	return &imageDevice{
		CallbackDevice: c.WrapStream(file, simplefs.BlockSize, totalBlocks),
		file:           file,
		writable:       writable,
	}, nil
}

func openImage(path string, writable bool) (*os.File, error) {
	if writable {
		return os.OpenFile(path, os.O_RDWR, 0)
	}
	return os.Open(path)
}

// withMountedFS mounts the configured image for the duration of `operation`.
func (app *application) withMountedFS(
	writable bool, operation func(driver *simplefs.Driver) error,
) error {
	file, err := openImage(app.config.Image, writable)
	if err != nil {
		return err
	}
	defer file.Close()

	device, err := newImageDevice(file, writable)
	if err != nil {
		return err
	}

	driver := simplefs.NewDriver(device, app.logger)
	err = driver.Mount()
	if err != nil {
		return fmt.Errorf("mounting %s: %w", app.config.Image, err)
	}

	var result *multierror.Error
	result = multierror.Append(result, operation(driver))
	result = multierror.Append(result, driver.Unmount())
	return result.ErrorOrNil()
}

func parseInumber(context *cli.Context, position int) (sfs.Inumber, error) {
	arg := context.Args().Get(position)
	if arg == "" {
		return 0, fmt.Errorf("missing inode number argument")
	}
	value, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid inode number %q: %w", arg, err)
	}
	return sfs.Inumber(value), nil
}

// requestedSize returns the image size asked for with --blocks or --preset.
// The second return value is false if neither was given.
func requestedSize(context *cli.Context) (uint, bool, error) {
	if context.IsSet("blocks") && context.IsSet("preset") {
		return 0, false, fmt.Errorf("--blocks and --preset can't be used together")
	}
	if context.IsSet("blocks") {
		return context.Uint("blocks"), true, nil
	}
	if context.IsSet("preset") {
		preset, err := disks.GetPreset(context.String("preset"))
		if err != nil {
			return 0, false, fmt.Errorf(
				"%w (choose from %s)", err, strings.Join(disks.Slugs(), ", "))
		}
		return preset.TotalBlocks, true, nil
	}
	return 0, false, nil
}

func (app *application) formatImage(context *cli.Context) error {
	totalBlocks, resize, err := requestedSize(context)
	if err != nil {
		return err
	}

	flags := os.O_RDWR
	if resize {
		flags |= os.O_CREATE
	}

	file, err := os.OpenFile(app.config.Image, flags, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	if resize {
		err = c.Resize(file, simplefs.BlockSize, totalBlocks)
		if err != nil {
			return fmt.Errorf("resizing %s: %w", app.config.Image, err)
		}
	}

	device, err := newImageDevice(file, true)
	if err != nil {
		return err
	}

	driver := simplefs.NewDriver(device, app.logger)
	err = driver.Format()
	if err != nil {
		return err
	}

	err = device.Sync()
	if err != nil {
		return err
	}
	fmt.Printf("formatted %s: %d blocks\n", app.config.Image, device.TotalBlocks())
	return nil
}

func (app *application) debugImage(context *cli.Context) error {
	return app.withMountedFS(false, func(driver *simplefs.Driver) error {
		if context.Bool("csv") {
			return driver.WriteInodeReportCSV(os.Stdout)
		}
		return driver.DebugDump(os.Stdout)
	})
}

func (app *application) createFile(context *cli.Context) error {
	return app.withMountedFS(true, func(driver *simplefs.Driver) error {
		inumber, err := driver.Create()
		if err != nil {
			return err
		}
		fmt.Printf("created inode %d\n", inumber)
		return nil
	})
}

func (app *application) deleteFile(context *cli.Context) error {
	inumber, err := parseInumber(context, 0)
	if err != nil {
		return err
	}

	return app.withMountedFS(true, func(driver *simplefs.Driver) error {
		return driver.Delete(inumber)
	})
}

func (app *application) statFile(context *cli.Context) error {
	if context.Args().Len() == 0 {
		return app.withMountedFS(false, func(driver *simplefs.Driver) error {
			stat, err := driver.Stat()
			if err != nil {
				return err
			}
			fmt.Printf("blocks:      %d total, %d used, %d free\n", stat.TotalBlocks, stat.BlocksUsed, stat.BlocksFree)
			fmt.Printf("data blocks: %d\n", stat.DataBlocks)
			fmt.Printf("inodes:      %d of %d used in %d table blocks\n", stat.InodesUsed, stat.InodeCapacity, stat.InodeTableBlocks)
			return nil
		})
	}

	inumber, err := parseInumber(context, 0)
	if err != nil {
		return err
	}

	return app.withMountedFS(false, func(driver *simplefs.Driver) error {
		size, err := driver.GetSize(inumber)
		if err != nil {
			return err
		}
		fmt.Printf("inode %d: %d bytes\n", inumber, size)
		return nil
	})
}

// copyFileOut streams the whole of a file to `output`.
func copyFileOut(driver *simplefs.Driver, inumber sfs.Inumber, output io.Writer) (int64, error) {
	stream, err := driver.OpenStream(inumber)
	if err != nil {
		return 0, err
	}
	return io.Copy(output, stream)
}

func (app *application) catFile(context *cli.Context) error {
	inumber, err := parseInumber(context, 0)
	if err != nil {
		return err
	}

	return app.withMountedFS(false, func(driver *simplefs.Driver) error {
		_, err := copyFileOut(driver, inumber, os.Stdout)
		return err
	})
}

func (app *application) copyOut(context *cli.Context) error {
	inumber, err := parseInumber(context, 0)
	if err != nil {
		return err
	}
	if context.Args().Len() < 2 {
		return fmt.Errorf("missing output file argument")
	}

	output, err := os.Create(context.Args().Get(1))
	if err != nil {
		return err
	}
	defer output.Close()

	return app.withMountedFS(false, func(driver *simplefs.Driver) error {
		copied, err := copyFileOut(driver, inumber, output)
		if err != nil {
			return err
		}
		fmt.Printf("copied %d bytes out of inode %d\n", copied, inumber)
		return nil
	})
}

func (app *application) copyIn(context *cli.Context) error {
	inumber, err := parseInumber(context, 0)
	if err != nil {
		return err
	}
	if context.Args().Len() < 2 {
		return fmt.Errorf("missing input file argument")
	}

	input, err := os.Open(context.Args().Get(1))
	if err != nil {
		return err
	}
	defer input.Close()

	return app.withMountedFS(true, func(driver *simplefs.Driver) error {
		stream, err := driver.OpenStream(inumber)
		if err != nil {
			return err
		}
		_, err = stream.Seek(context.Int64("offset"), io.SeekStart)
		if err != nil {
			return err
		}

		copied, err := stream.ReadFrom(input)
		if errors.Is(err, sfs.ErrDiskFull) {
			fmt.Printf("image is full, copied %d bytes into inode %d\n", copied, inumber)
		}
		if err != nil {
			return err
		}

		fmt.Printf("copied %d bytes into inode %d\n", copied, inumber)
		return nil
	})
}

func (app *application) packImage(context *cli.Context) error {
	if context.Args().Len() < 1 {
		return fmt.Errorf("missing archive argument")
	}

	file, err := openImage(app.config.Image, false)
	if err != nil {
		return err
	}
	defer file.Close()

	device, err := newImageDevice(file, false)
	if err != nil {
		return err
	}

	archive, err := os.Create(context.Args().Get(0))
	if err != nil {
		return err
	}
	defer archive.Close()

	packedSize, err := compression.PackImage(device, archive)
	if err != nil {
		return err
	}
	fmt.Printf("packed %d bytes to %d\n", device.Size(), packedSize)
	return nil
}

func (app *application) unpackImage(context *cli.Context) error {
	if context.Args().Len() < 1 {
		return fmt.Errorf("missing archive argument")
	}

	archive, err := os.Open(context.Args().Get(0))
	if err != nil {
		return err
	}
	defer archive.Close()

	image, err := os.Create(app.config.Image)
	if err != nil {
		return err
	}
	defer image.Close()

	size, err := compression.UnpackImage(archive, image)
	if err != nil {
		return err
	}
	if size%simplefs.BlockSize != 0 {
		app.logger.Warn(
			"unpacked image isn't a whole number of blocks",
			"size", size,
			"block_size", simplefs.BlockSize,
		)
	}
	fmt.Printf("unpacked %d bytes\n", size)
	return image.Sync()
}
