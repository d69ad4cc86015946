package fs

import "github.com/simons-pintos/pintos-kaist/src/bdev"
import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/util"

/// Inode kinds.
const (
	INODE_FILE = 0
	INODE_DIR  = 1
	INODE_LINK = 2
)

const inodeMagic = 0x494e4f44

// on-disk inode layout inside its cluster: magic, kind, length,
// start cluster, then the symlink target for links
const (
	inoMagic = iota
	inoKind
	inoLen
	inoStart
)

const inoLinkOff = 16

/// LINKMAX bounds a symlink target.
const LINKMAX = bdev.SECTOR_SIZE - inoLinkOff - 1

/// Inode_t is an open inode. All fields are protected by the
/// filesystem lock; opens of the same cluster share one Inode_t.
type Inode_t struct {
	fs       *Fs_t
	Clst     uint32
	kind     int
	length   int
	start    uint32
	linkpath string

	opencnt   int
	denywrite int
	removed   bool
}

// writes the inode's metadata through to its cluster. must hold fs.
func (ino *Inode_t) flush() {
	var sec bdev.Sector_t
	fieldw(&sec, inoMagic, inodeMagic)
	fieldw(&sec, inoKind, ino.kind)
	fieldw(&sec, inoLen, ino.length)
	fieldw(&sec, inoStart, int(ino.start))
	if ino.kind == INODE_LINK {
		copy(sec[inoLinkOff:], ino.linkpath)
	}
	ino.fs.disk.Write(ino.fs.fat.Sector(ino.Clst), &sec)
}

// allocates an inode cluster of the given kind. must hold fs.
func (fs *Fs_t) icreate(kind int) (uint32, defs.Err_t) {
	clst := fs.fat.Create_chain(0)
	if clst == 0 {
		return 0, -defs.ENOSPC
	}
	ino := &Inode_t{fs: fs, Clst: clst, kind: kind}
	ino.flush()
	return clst, 0
}

// loads or shares the inode at clst; the open count rises by one.
// must hold fs.
func (fs *Fs_t) iopen(clst uint32) (*Inode_t, defs.Err_t) {
	if ino, ok := fs.inodes[clst]; ok {
		ino.opencnt++
		return ino, 0
	}
	var sec bdev.Sector_t
	fs.disk.Read(fs.fat.Sector(clst), &sec)
	if fieldr(&sec, inoMagic) != inodeMagic {
		return nil, -defs.ENOENT
	}
	ino := &Inode_t{}
	ino.fs = fs
	ino.Clst = clst
	ino.kind = fieldr(&sec, inoKind)
	ino.length = fieldr(&sec, inoLen)
	ino.start = uint32(fieldr(&sec, inoStart))
	if ino.kind == INODE_LINK {
		ino.linkpath = string(util_cstr(sec[inoLinkOff:]))
	}
	ino.opencnt = 1
	fs.inodes[clst] = ino
	return ino, 0
}

func util_cstr(b []uint8) []uint8 {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// drops one open; the last close of a removed inode frees its
// clusters. must hold fs.
func (ino *Inode_t) iclose() {
	// XXXPANIC
	if ino.opencnt <= 0 {
		panic("close of closed inode")
	}
	ino.opencnt--
	if ino.opencnt > 0 {
		return
	}
	delete(ino.fs.inodes, ino.Clst)
	if ino.removed {
		if ino.start != 0 {
			ino.fs.fat.Remove_chain(ino.start, 0)
		}
		ino.fs.fat.Remove_chain(ino.Clst, 0)
	}
}

/// Len returns the inode's length in bytes.
func (ino *Inode_t) Len() int {
	return ino.length
}

/// Isdir reports whether the inode is a directory.
func (ino *Inode_t) Isdir() bool {
	return ino.kind == INODE_DIR
}

// reads up to len(dst) bytes at off. short reads happen at end of
// file. must hold fs.
func (ino *Inode_t) read_at(dst []uint8, off int) int {
	if off < 0 || off >= ino.length {
		return 0
	}
	n := util.Min(len(dst), ino.length-off)
	done := 0
	var sec bdev.Sector_t
	for done < n {
		ci := (off + done) / bdev.SECTOR_SIZE
		so := (off + done) % bdev.SECTOR_SIZE
		clst := ino.fs.fat.Walk(ino.start, ci)
		if clst == 0 {
			break
		}
		ino.fs.disk.Read(ino.fs.fat.Sector(clst), &sec)
		c := copy(dst[done:n], sec[so:])
		done += c
	}
	return done
}

// writes src at off, growing the chain and length as needed. a
// write-denied inode refuses. must hold fs.
func (ino *Inode_t) write_at(src []uint8, off int) (int, defs.Err_t) {
	if ino.denywrite > 0 {
		return 0, -defs.EPERM
	}
	if off < 0 {
		return 0, -defs.EINVAL
	}
	done := 0
	var sec bdev.Sector_t
	for done < len(src) {
		pos := off + done
		ci := pos / bdev.SECTOR_SIZE
		so := pos % bdev.SECTOR_SIZE
		clst, err := ino.clusterof(ci, true)
		if err != 0 {
			if done > 0 {
				break
			}
			return 0, err
		}
		secn := ino.fs.fat.Sector(clst)
		if so != 0 || len(src)-done < bdev.SECTOR_SIZE {
			ino.fs.disk.Read(secn, &sec)
		}
		c := copy(sec[so:], src[done:])
		ino.fs.disk.Write(secn, &sec)
		done += c
		if pos+c > ino.length {
			ino.length = pos + c
		}
	}
	ino.flush()
	return done, 0
}

// returns the ci'th data cluster, extending the chain when grow is
// set. must hold fs.
func (ino *Inode_t) clusterof(ci int, grow bool) (uint32, defs.Err_t) {
	if ino.start == 0 {
		if !grow {
			return 0, -defs.ENOENT
		}
		clst := ino.fs.fat.Create_chain(0)
		if clst == 0 {
			return 0, -defs.ENOSPC
		}
		ino.start = clst
		ino.zerocluster(clst)
	}
	c := ino.start
	for i := 0; i < ci; i++ {
		nx := ino.fs.fat.Get(c)
		if nx == EOCHAIN {
			if !grow {
				return 0, -defs.ENOENT
			}
			nc := ino.fs.fat.Create_chain(c)
			if nc == 0 {
				return 0, -defs.ENOSPC
			}
			ino.zerocluster(nc)
			nx = nc
		}
		c = nx
	}
	return c, 0
}

func (ino *Inode_t) zerocluster(clst uint32) {
	var zero bdev.Sector_t
	ino.fs.disk.Write(ino.fs.fat.Sector(clst), &zero)
}

/// Deny_write blocks writes to the inode while it is executing.
func (ino *Inode_t) Deny_write() {
	ino.fs.Lock()
	ino.denywrite++
	ino.fs.Unlock()
}

/// Allow_write re-enables writes after execution ends.
func (ino *Inode_t) Allow_write() {
	ino.fs.Lock()
	// XXXPANIC
	if ino.denywrite <= 0 {
		panic("no")
	}
	ino.denywrite--
	ino.fs.Unlock()
}
