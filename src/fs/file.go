package fs

import "github.com/simons-pintos/pintos-kaist/src/bdev"
import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/fdops"
import "github.com/simons-pintos/pintos-kaist/src/util"

/// File_t is an open file or directory: a shared inode plus a
/// private cursor. It implements fdops.Fdops_i.
type File_t struct {
	fs   *Fs_t
	ino  *Inode_t
	off  int
	refs int
}

func mkfile(fs *Fs_t, ino *Inode_t) *File_t {
	f := &File_t{}
	f.fs = fs
	f.ino = ino
	f.refs = 1
	return f
}

/// Inode exposes the file's inode to the process layer for
/// deny-write bookkeeping.
func (f *File_t) Inode() *Inode_t {
	return f.ino
}

/// Read copies from the cursor into dst and advances it.
func (f *File_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	n, err := f.Pread(dst, f.off)
	f.off += n
	return n, err
}

/// Write copies src at the cursor and advances it.
func (f *File_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	n, err := f.Pwrite(src, f.off)
	f.off += n
	return n, err
}

/// Pread reads at an explicit offset without moving the cursor.
func (f *File_t) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	f.fs.Lock()
	defer f.fs.Unlock()
	buf := make([]uint8, bdev.SECTOR_SIZE)
	did := 0
	for dst.Remain() > 0 {
		l := util.Min(len(buf), dst.Remain())
		got := f.ino.read_at(buf[:l], off+did)
		if got == 0 {
			break
		}
		c, err := dst.Uiowrite(buf[:got])
		did += c
		if err != 0 {
			return did, err
		}
		if c != got {
			break
		}
	}
	return did, 0
}

/// Pwrite writes at an explicit offset without moving the cursor.
func (f *File_t) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	f.fs.Lock()
	defer f.fs.Unlock()
	buf := make([]uint8, bdev.SECTOR_SIZE)
	did := 0
	for src.Remain() > 0 {
		l := util.Min(len(buf), src.Remain())
		c, err := src.Uioread(buf[:l])
		if err != 0 {
			return did, err
		}
		if c == 0 {
			break
		}
		wrote, werr := f.ino.write_at(buf[:c], off+did)
		did += wrote
		if werr != 0 || wrote != c {
			return did, werr
		}
	}
	return did, 0
}

/// Lseek repositions the cursor.
func (f *File_t) Lseek(off, whence int) (int, defs.Err_t) {
	f.fs.Lock()
	defer f.fs.Unlock()
	var n int
	switch whence {
	case defs.SEEK_SET:
		n = off
	case defs.SEEK_CUR:
		n = f.off + off
	case defs.SEEK_END:
		n = f.ino.length + off
	default:
		return 0, -defs.EINVAL
	}
	if n < 0 {
		return 0, -defs.EINVAL
	}
	f.off = n
	return n, 0
}

/// Len returns the file's size in bytes.
func (f *File_t) Len() (int, defs.Err_t) {
	f.fs.Lock()
	defer f.fs.Unlock()
	return f.ino.length, 0
}

/// Close drops one reference; the last close releases the inode.
func (f *File_t) Close() defs.Err_t {
	f.fs.Lock()
	defer f.fs.Unlock()
	// XXXPANIC
	if f.refs <= 0 {
		panic("close of closed file")
	}
	f.refs--
	if f.refs == 0 {
		f.ino.iclose()
	}
	return 0
}

/// Reopen adds a reference for dup2 and fork.
func (f *File_t) Reopen() defs.Err_t {
	f.fs.Lock()
	defer f.fs.Unlock()
	f.refs++
	return 0
}

/// Dup opens an independent cursor over the same inode, as mmap
/// requires.
func (f *File_t) Dup() *File_t {
	f.fs.Lock()
	defer f.fs.Unlock()
	f.ino.opencnt++
	return mkfile(f.fs, f.ino)
}

/// Isdir reports whether the file is a directory.
func (f *File_t) Isdir() bool {
	f.fs.Lock()
	defer f.fs.Unlock()
	return f.ino.Isdir()
}

/// Readdir returns the next entry name, skipping free slots, "." and
/// "..". The cursor tracks the entry index.
func (f *File_t) Readdir() (string, bool) {
	f.fs.Lock()
	defer f.fs.Unlock()
	if !f.ino.Isdir() {
		return "", false
	}
	var de dirent_t
	for {
		got := f.ino.read_at(de[:], f.off)
		if got != direntSz {
			return "", false
		}
		f.off += direntSz
		nm := de.name()
		if len(nm) == 0 || nm.Isdot() || nm.Isdotdot() {
			continue
		}
		return nm.String(), true
	}
}

/// Inum returns the inode number (its cluster).
func (f *File_t) Inum() int {
	return int(f.ino.Clst)
}

/// Deny_write blocks writes for the life of an executing file.
func (f *File_t) Deny_write() {
	f.ino.Deny_write()
}

/// Allow_write releases a Deny_write.
func (f *File_t) Allow_write() {
	f.ino.Allow_write()
}

var _ fdops.Fdops_i = (*File_t)(nil)
