// Command sfsutil is a small inspection and maintenance tool for SFS disk
// images, built around a urfave/cli command-table shape.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dargueta/sfs"
)

// defaultImagePath is the working file used when --image isn't given; the
// library itself never hardcodes a path.
const defaultImagePath = "sfs_file"

func main() {
	app := &cli.App{
		Name:  "sfsutil",
		Usage: "Inspect and manipulate SFS disk images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "image",
				Usage: "path to the disk image",
				Value: defaultImagePath,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create or wipe an image",
				Action:    formatImage,
				ArgsUsage: " ",
			},
			{
				Name:      "put",
				Usage:     "Copy a local file into the image",
				Action:    putFile,
				ArgsUsage: "LOCAL_PATH SFS_NAME",
			},
			{
				Name:      "cat",
				Usage:     "Print an SFS file's contents to stdout",
				Action:    catFile,
				ArgsUsage: "SFS_NAME",
			},
			{
				Name:      "ls",
				Usage:     "List every file in the image",
				Action:    listFiles,
				ArgsUsage: " ",
			},
			{
				Name:      "rm",
				Usage:     "Remove a file from the image",
				Action:    removeFile,
				ArgsUsage: "SFS_NAME",
			},
			{
				Name:      "stat",
				Usage:     "Print a file's size",
				Action:    statFile,
				ArgsUsage: "SFS_NAME",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err)
	}
}

func imagePath(c *cli.Context) string {
	return c.String("image")
}

func formatImage(c *cli.Context) error {
	fs, err := sfs.Mksfs(imagePath(c), true)
	if err != nil {
		return err
	}
	return fs.Unmount()
}

func mustOpenExisting(c *cli.Context) (*sfs.Filesystem, error) {
	return sfs.Mksfs(imagePath(c), false)
}

func putFile(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("put requires LOCAL_PATH and SFS_NAME")
	}
	localPath := c.Args().Get(0)
	sfsName := c.Args().Get(1)

	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}

	fs, err := mustOpenExisting(c)
	if err != nil {
		return err
	}
	defer fs.Unmount()

	fd, err := fs.Open(sfsName)
	if err != nil {
		return err
	}
	defer fs.Close(fd)

	if err := fs.Seek(fd, 0); err != nil {
		return err
	}
	n, err := fs.Write(fd, data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(data))
	}
	return nil
}

func catFile(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("cat requires SFS_NAME")
	}
	name := c.Args().Get(0)

	fs, err := mustOpenExisting(c)
	if err != nil {
		return err
	}
	defer fs.Unmount()

	size, err := fs.GetFileSize(name)
	if err != nil {
		return err
	}

	fd, err := fs.Open(name)
	if err != nil {
		return err
	}
	defer fs.Close(fd)

	if err := fs.Seek(fd, 0); err != nil {
		return err
	}
	buf := make([]byte, size)
	if _, err := fs.Read(fd, buf); err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf)
	return err
}

func listFiles(c *cli.Context) error {
	fs, err := mustOpenExisting(c)
	if err != nil {
		return err
	}
	defer fs.Unmount()

	for {
		name, ok := fs.GetNextFileName()
		if !ok {
			break
		}
		fmt.Println(name)
	}
	return nil
}

func removeFile(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("rm requires SFS_NAME")
	}

	fs, err := mustOpenExisting(c)
	if err != nil {
		return err
	}
	defer fs.Unmount()

	return fs.Remove(c.Args().Get(0))
}

func statFile(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("stat requires SFS_NAME")
	}

	fs, err := mustOpenExisting(c)
	if err != nil {
		return err
	}
	defer fs.Unmount()

	size, err := fs.GetFileSize(c.Args().Get(0))
	if err != nil {
		return err
	}
	fmt.Println(size)
	return nil
}
