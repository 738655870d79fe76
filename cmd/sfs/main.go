package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

type application struct {
	config *Config
	logger *slog.Logger
}

// setup merges the config file, the environment, and global flags, then sets up
// logging. Flags win over everything else.
func (app *application) setup(context *cli.Context) error {
	config, err := LoadConfig(context.String("config"))
	if err != nil {
		return err
	}

	if context.IsSet("image") {
		config.Image = context.String("image")
	}
	if context.IsSet("log-level") {
		config.LogLevel = context.String("log-level")
	}

	err = config.Validate()
	if err != nil {
		return err
	}

	level, _ := config.SlogLevel()
	app.config = config
	app.logger = slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	).With("image", config.Image)
	return nil
}

func newCLI(app *application) *cli.App {
	return &cli.App{
		Name:  appName,
		Usage: "Manage simple inode file system images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a YAML config file (default: $SFS_CONFIG_FILE, then sfs.yaml in the user config directory)",
			},
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "Path to the image file to operate on",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "One of debug, info, warn, error",
			},
		},
		Before: app.setup,
		Commands: []*cli.Command{
			{
				Name:   "format",
				Usage:  "Create or wipe an image",
				Action: app.formatImage,
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:  "blocks",
						Usage: "Create or resize the image to this many blocks first",
					},
					&cli.StringFlag{
						Name:  "preset",
						Usage: "Create or resize the image to a predefined size first, e.g. floppy-1440",
					},
				},
			},
			{
				Name:   "debug",
				Usage:  "Dump the superblock and every valid inode",
				Action: app.debugImage,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "Print one CSV row per inode instead",
					},
				},
			},
			{
				Name:   "create",
				Usage:  "Create an empty file and print its inode number",
				Action: app.createFile,
			},
			{
				Name:      "delete",
				Usage:     "Delete a file",
				ArgsUsage: "INUMBER",
				Action:    app.deleteFile,
			},
			{
				Name:      "stat",
				Usage:     "Print a file's size, or file system usage if no inode is given",
				ArgsUsage: "[INUMBER]",
				Action:    app.statFile,
			},
			{
				Name:      "cat",
				Usage:     "Write a file's contents to stdout",
				ArgsUsage: "INUMBER",
				Action:    app.catFile,
			},
			{
				Name:      "copyin",
				Usage:     "Copy a host file into a file in the image",
				ArgsUsage: "INUMBER FILE",
				Action:    app.copyIn,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "offset",
						Usage: "Byte offset in the destination file to start writing at",
					},
				},
			},
			{
				Name:      "copyout",
				Usage:     "Copy a file in the image out to a host file",
				ArgsUsage: "INUMBER FILE",
				Action:    app.copyOut,
			},
			{
				Name:      "pack",
				Usage:     "Write a compressed copy of the image",
				ArgsUsage: "ARCHIVE",
				Action:    app.packImage,
			},
			{
				Name:      "unpack",
				Usage:     "Restore the image from a compressed copy",
				ArgsUsage: "ARCHIVE",
				Action:    app.unpackImage,
			},
		},
	}
}

func main() {
	cli := newCLI(&application{})
	err := cli.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}
