package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/semaphore"

	dwarfs "github.com/mhx/dwarfs-sub004"
	"github.com/mhx/dwarfs-sub004/fileview"
)

const usage = `dwarfsck - DwarFS read-only inspection tool

Usage:
  dwarfsck ls <image> [<path>]        List directory entries at path (default: /)
  dwarfsck cat <image> <path>         Print the contents of a regular file
  dwarfsck stat <image> <path>        Show attributes for a path
  dwarfsck info <image>               Show filesystem-level statistics
  dwarfsck find <image> <glob>        List paths matching a shell glob pattern
  dwarfsck help                       Show this help message

Examples:
  dwarfsck ls image.dwarfs
  dwarfsck ls image.dwarfs usr/lib
  dwarfsck cat image.dwarfs etc/hostname
  dwarfsck info image.dwarfs
  dwarfsck find image.dwarfs '**/*.so'
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ls":
		if len(os.Args) < 3 {
			fail("missing image path")
		}
		path := "/"
		if len(os.Args) > 3 {
			path = os.Args[3]
		}
		run(os.Args[2], func(fs *dwarfs.Filesystem) error { return listDir(fs, path) })

	case "cat":
		if len(os.Args) < 4 {
			fail("missing image path or target file")
		}
		run(os.Args[2], func(fs *dwarfs.Filesystem) error { return catFile(fs, os.Args[3]) })

	case "stat":
		if len(os.Args) < 4 {
			fail("missing image path or target file")
		}
		run(os.Args[2], func(fs *dwarfs.Filesystem) error { return statPath(fs, os.Args[3]) })

	case "info":
		if len(os.Args) < 3 {
			fail("missing image path")
		}
		run(os.Args[2], showInfo)

	case "find":
		if len(os.Args) < 4 {
			fail("missing image path or glob pattern")
		}
		run(os.Args[2], func(fs *dwarfs.Filesystem) error { return findGlob(fs, os.Args[3]) })

	case "help":
		fmt.Println(usage)

	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		fmt.Println(usage)
		os.Exit(1)
	}
}

func fail(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n\n", msg)
	fmt.Println(usage)
	os.Exit(1)
}

func run(imagePath string, fn func(*dwarfs.Filesystem) error) {
	f, err := os.Open(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	v := fileview.NewReaderAt(f, st.Size())
	fs, err := dwarfs.Open(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer fs.Close()

	if err := fn(fs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func listDir(fs *dwarfs.Filesystem, path string) error {
	ino, err := fs.Find(path)
	if err != nil {
		return err
	}
	names, err := fs.Readdir(ino)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// catStreamMaxBytes bounds how much decompressed data cat holds alive
// at once, regardless of the file's size.
const catStreamMaxBytes = 16 << 20

func catFile(fs *dwarfs.Filesystem, path string) error {
	ino, err := fs.Find(path)
	if err != nil {
		return err
	}
	handle, err := fs.OpenFile(ino)
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(catStreamMaxBytes)
	fr, err := fs.StreamFile(handle, sem, catStreamMaxBytes)
	if err != nil {
		return err
	}

	ctx := context.Background()
	for !fr.Done() {
		batch, err := fr.Next(ctx)
		if err != nil {
			return err
		}
		if batch == nil {
			break
		}
		for _, ro := range batch.Ranges {
			if ro.Hole {
				os.Stdout.Write(make([]byte, ro.Length))
			} else {
				os.Stdout.Write(ro.Range.Bytes())
			}
		}
		batch.Release()
	}
	return nil
}

func statPath(fs *dwarfs.Filesystem, path string) error {
	ino, err := fs.Find(path)
	if err != nil {
		return err
	}
	attr, err := fs.Getattr(ino)
	if err != nil {
		return err
	}
	fmt.Printf("inode:  %d\n", ino)
	fmt.Printf("mode:   %#o\n", attr.Mode)
	fmt.Printf("uid:    %d\n", attr.UID)
	fmt.Printf("gid:    %d\n", attr.GID)
	fmt.Printf("size:   %d\n", attr.Size)
	fmt.Printf("nlink:  %d\n", attr.Nlink)
	return nil
}

func findGlob(fs *dwarfs.Filesystem, pattern string) error {
	matches, err := fs.FindGlob(pattern)
	if err != nil {
		return err
	}
	for _, m := range matches {
		fmt.Println(m)
	}
	return nil
}

func showInfo(fs *dwarfs.Filesystem) error {
	sv := fs.Statvfs()
	fmt.Printf("block size:  %d\n", sv.BlockSize)
	fmt.Printf("total bytes: %d\n", sv.TotalBytes)
	fmt.Printf("files:       %d\n", sv.Files)
	return nil
}
