// Command mkfs formats a disk image and replicates a host skeleton
// directory into it.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/simons-pintos/pintos-kaist/src/bdev"
	"github.com/simons-pintos/pintos-kaist/src/fs"
	"github.com/simons-pintos/pintos-kaist/src/ustr"
	"github.com/simons-pintos/pintos-kaist/src/vm"
)

func mkwbuf(b []byte) *vm.Fakeubuf_t {
	hdata := make([]uint8, len(b))
	copy(hdata, b)
	ub := &vm.Fakeubuf_t{}
	ub.Fake_init(hdata)
	return ub
}

// copydata reads the file at src and appends its contents to dst in
// the image.
func copydata(src string, fsys *fs.Fs_t, dst string) {
	srcFile, err := os.Open(src)
	if err != nil {
		panic(err)
	}
	defer srcFile.Close()

	f, ferr := fsys.Fs_open(ustr.Ustr(dst), ustr.MkUstrRoot())
	if ferr != 0 {
		panic(fmt.Sprintf("open %v failed: %v", dst, ferr))
	}
	defer f.Close()

	buf := make([]byte, bdev.SECTOR_SIZE)
	for {
		n, readErr := srcFile.Read(buf)
		if readErr != nil && readErr != io.EOF {
			panic(readErr)
		}
		if n == 0 {
			break
		}
		chunk := mkwbuf(buf[:n])
		if _, werr := f.Write(chunk); werr != 0 {
			panic(fmt.Sprintf("write %v failed: %v", dst, werr))
		}
		if readErr == io.EOF {
			break
		}
	}
}

// addfiles walks skeldir on the host and replicates its contents
// into the image.
func addfiles(fsys *fs.Fs_t, skeldir string) {
	root := ustr.MkUstrRoot()
	err := filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			fmt.Printf("failed to access %q: %v\n", path, err)
			return err
		}
		rel := strings.TrimPrefix(path, skeldir)
		if rel == "" {
			return nil
		}
		if d.IsDir() {
			if e := fsys.Fs_mkdir(ustr.Ustr(rel), root); e != 0 {
				fmt.Printf("failed to create dir %v\n", rel)
			}
			return nil
		}
		if e := fsys.Fs_create(ustr.Ustr(rel), 0, root); e != 0 {
			fmt.Printf("failed to create file %v\n", rel)
			return nil
		}
		copydata(path, fsys, rel)
		return nil
	})
	if err != nil {
		fmt.Printf("error walking the path %q: %v\n", skeldir, err)
		os.Exit(1)
	}
}

func main() {
	if len(os.Args) < 4 {
		fmt.Printf("Usage: mkfs <output image> <sectors> <skel dir>\n")
		os.Exit(1)
	}
	image := os.Args[1]
	sectors, err := strconv.Atoi(os.Args[2])
	if err != nil || sectors < 64 {
		fmt.Printf("bad sector count %q\n", os.Args[2])
		os.Exit(1)
	}

	disk := bdev.MkFiledisk(image, sectors)
	fsys := fs.StartFS(disk)
	addfiles(fsys, os.Args[3])
	disk.Close()
	fmt.Printf("wrote %v (%v sectors)\n", image, sectors)
}
