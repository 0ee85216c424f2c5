package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ninelives/ext2fs/internal/ext2"
)

func main() {
	app := &cli.App{
		Name:  "mkext2fs",
		Usage: "format a fresh ext2 filesystem image",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "path of the image file to create",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:  "blocks",
				Usage: "total block count",
				Value: 16384,
			},
			&cli.Uint64Flag{
				Name:  "block-size",
				Usage: "block size in bytes: 1024, 2048, or 4096",
				Value: 1024,
			},
			&cli.Uint64Flag{
				Name:  "inodes",
				Usage: "total inode count",
				Value: 512,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "logrus level: debug, info, warn, error",
				Value: "info",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log, err := ext2.NewLogger(ext2.Config{LogLevel: c.String("log-level"), LogFormat: "text"})
	if err != nil {
		return err
	}

	f, err := os.OpenFile(c.String("out"), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer f.Close()

	blockSize := ext2.Byte(c.Uint64("block-size"))
	if err := f.Truncate(int64(c.Uint64("blocks")) * int64(blockSize)); err != nil {
		return cli.Exit(err, 1)
	}

	volume := ext2.NewFileVolume(f)
	fs, err := ext2.Format(volume, ext2.FormatOptions{
		BlocksCount: ext2.Block(c.Uint64("blocks")),
		BlockSize:   blockSize,
		InodesCount: uint32(c.Uint64("inodes")),
	}, log)
	if err != nil {
		return cli.Exit(err, 1)
	}
	if err := fs.Flush(); err != nil {
		return cli.Exit(err, 1)
	}

	log.WithField("path", c.String("out")).Info("wrote ext2 image")
	return nil
}
