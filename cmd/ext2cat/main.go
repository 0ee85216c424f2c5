package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ninelives/ext2fs/internal/ext2"
)

func main() {
	app := &cli.App{
		Name:      "ext2cat",
		Usage:     "print a file's contents from an ext2 image",
		ArgsUsage: "<image> </path/inside/image>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "logrus level: debug, info, warn, error",
				Value: "warn",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: ext2cat <image> </path/inside/image>", 2)
	}
	imagePath, targetPath := c.Args().Get(0), c.Args().Get(1)

	log, err := ext2.NewLogger(ext2.Config{LogLevel: c.String("log-level"), LogFormat: "text"})
	if err != nil {
		return err
	}

	volume, err := ext2.OpenFileVolume(imagePath)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer volume.Close()

	fs, err := ext2.Mount(volume, log)
	if err != nil {
		return cli.Exit(err, 1)
	}

	target, err := resolvePath(fs, targetPath)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer fs.Release(target)

	buf := make([]byte, fs.BlockSize())
	var offset ext2.Byte
	for {
		n, errno := fs.ReadInodeBytes(target, offset, buf)
		if errno != 0 {
			return cli.Exit(fmt.Sprintf("reading %s: errno %d", targetPath, errno), 1)
		}
		if n == 0 {
			break
		}
		if _, err := io.Copy(os.Stdout, bytes.NewReader(buf[:n])); err != nil {
			return cli.Exit(err, 1)
		}
		offset += n
	}
	return nil
}

// resolvePath walks targetPath (slash-separated, absolute or relative to the
// root) one directory lookup at a time, the way a shell's path resolution
// would, using only the lookup/traverse external interfaces this engine
// exposes.
func resolvePath(fs *ext2.FileSystem, targetPath string) (*ext2.LiveInode, error) {
	current, err := fs.RootInode()
	if err != nil {
		return nil, err
	}

	segments := splitPath(targetPath)
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		childIno, ok, err := current.Lookup([]byte(seg))
		if err != nil {
			fs.Release(current)
			return nil, err
		}
		if !ok {
			fs.Release(current)
			return nil, fmt.Errorf("no such file or directory: %s", seg)
		}

		child, err := fs.GetInode(childIno)
		fs.Release(current)
		if err != nil {
			return nil, err
		}
		current = child

		if i == len(segments)-1 {
			break
		}
		if current.Metadata().Mode.FileType != ext2.FileTypeDir {
			fs.Release(current)
			return nil, fmt.Errorf("not a directory: %s", seg)
		}
	}
	return current, nil
}

func splitPath(p string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				out = append(out, p[start:i])
			}
			start = i + 1
		}
	}
	return out
}
