package fs

import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/util"
import "github.com/simons-pintos/pintos-kaist/src/ustr"

/// NAME_MAX bounds one path component.
const NAME_MAX = 14

// a directory is a file of fixed-size entries: a NUL-terminated name
// and the entry's inode cluster. an empty name marks a free slot.
const (
	direntSz      = 32
	direntNameOff = 0
	direntClstOff = 16
)

type dirent_t [direntSz]uint8

func (de *dirent_t) name() ustr.Ustr {
	return ustr.MkUstrSlice(de[direntNameOff : direntNameOff+NAME_MAX+1])
}

func (de *dirent_t) clst() uint32 {
	return uint32(util.Readn(de[:], 4, direntClstOff))
}

func (de *dirent_t) set(name ustr.Ustr, clst uint32) {
	for i := range de {
		de[i] = 0
	}
	copy(de[direntNameOff:direntNameOff+NAME_MAX], name)
	util.Writen(de[:], 4, direntClstOff, int(clst))
}

// iterates the directory's entries; f returns true to stop. the
// entry index is passed for rewrites. must hold fs.
func (fs *Fs_t) dirscan(dir *Inode_t, f func(idx int, de *dirent_t) bool) {
	var de dirent_t
	n := dir.length / direntSz
	for i := 0; i < n; i++ {
		if got := dir.read_at(de[:], i*direntSz); got != direntSz {
			return
		}
		if f(i, &de) {
			return
		}
	}
}

// finds name in dir. must hold fs.
func (fs *Fs_t) dirlookup(dir *Inode_t, name ustr.Ustr) (uint32, bool) {
	var ret uint32
	found := false
	fs.dirscan(dir, func(idx int, de *dirent_t) bool {
		if len(de.name()) != 0 && de.name().Eq(name) {
			ret = de.clst()
			found = true
			return true
		}
		return false
	})
	return ret, found
}

// adds an entry, reusing a free slot or appending. must hold fs.
func (fs *Fs_t) diradd(dir *Inode_t, name ustr.Ustr, clst uint32) defs.Err_t {
	if len(name) == 0 || len(name) > NAME_MAX {
		return -defs.ENAMETOOLONG
	}
	if _, ok := fs.dirlookup(dir, name); ok {
		return -defs.EEXIST
	}
	slot := -1
	fs.dirscan(dir, func(idx int, de *dirent_t) bool {
		if len(de.name()) == 0 {
			slot = idx
			return true
		}
		return false
	})
	if slot == -1 {
		slot = dir.length / direntSz
	}
	var de dirent_t
	de.set(name, clst)
	n, err := dir.write_at(de[:], slot*direntSz)
	if err != 0 {
		return err
	}
	if n != direntSz {
		return -defs.ENOSPC
	}
	return 0
}

// clears name's entry. must hold fs.
func (fs *Fs_t) dirremove(dir *Inode_t, name ustr.Ustr) defs.Err_t {
	found := -defs.ENOENT
	fs.dirscan(dir, func(idx int, de *dirent_t) bool {
		if len(de.name()) != 0 && de.name().Eq(name) {
			var zero dirent_t
			dir.write_at(zero[:], idx*direntSz)
			found = 0
			return true
		}
		return false
	})
	return found
}

// reports whether dir holds only "." and "..". must hold fs.
func (fs *Fs_t) dirempty(dir *Inode_t) bool {
	empty := true
	fs.dirscan(dir, func(idx int, de *dirent_t) bool {
		nm := de.name()
		if len(nm) != 0 && !nm.Isdot() && !nm.Isdotdot() {
			empty = false
			return true
		}
		return false
	})
	return empty
}

// creates the "." and ".." entries of a fresh directory. must hold
// fs.
func (fs *Fs_t) dirinit(dir *Inode_t, parent uint32) defs.Err_t {
	if err := fs.diradd(dir, ustr.Ustr("."), dir.Clst); err != 0 {
		return err
	}
	return fs.diradd(dir, ustr.DotDot, parent)
}
