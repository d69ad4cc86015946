package fs

import "sync"

import "github.com/simons-pintos/pintos-kaist/src/bdev"
import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/ustr"

/// LINK_DEPTH caps nested symlink dereferences during a path walk.
const LINK_DEPTH = 8

/// Fs_t is one mounted filesystem. The embedded mutex is the
/// one-at-a-time lock around all filesystem operations; it is never
/// held across a thread suspension.
type Fs_t struct {
	sync.Mutex
	disk   bdev.Disk_i
	fat    *Fat_t
	inodes map[uint32]*Inode_t
}

/// StartFS mounts the disk, formatting it first when the FAT magic is
/// missing.
func StartFS(disk bdev.Disk_i) *Fs_t {
	fs := &Fs_t{}
	fs.disk = disk
	fs.inodes = make(map[uint32]*Inode_t)
	fs.fat = Fat_open(disk)
	if fs.fat == nil {
		fs.fat = Fat_format(disk)
		fs.mkroot()
	} else {
		// a formatted disk may still lack a root inode
		var sec bdev.Sector_t
		disk.Read(fs.fat.Sector(ROOT_CLUSTER), &sec)
		if fieldr(&sec, inoMagic) != inodeMagic {
			fs.mkroot()
		}
	}
	return fs
}

func (fs *Fs_t) mkroot() {
	root := &Inode_t{fs: fs, Clst: ROOT_CLUSTER, kind: INODE_DIR}
	root.flush()
	root.opencnt = 1
	fs.inodes[ROOT_CLUSTER] = root
	if err := fs.dirinit(root, ROOT_CLUSTER); err != 0 {
		panic("root init failed")
	}
	root.iclose()
}

// resolves path relative to the canonical absolute cwd. when
// getparent is set the walk stops before the final component and
// returns the parent directory and that component. follow controls
// dereference of a symlink in the final position; symlinks in
// intermediate positions are always followed, at most LINK_DEPTH
// deep. must hold fs; the returned inode is open.
func (fs *Fs_t) namex(cwd, path ustr.Ustr, getparent, follow bool) (*Inode_t, ustr.Ustr, defs.Err_t) {
	var full ustr.Ustr
	if path.IsAbsolute() {
		full = path
	} else {
		full = append(append(append(full, cwd...), '/'), path...)
	}
	comps := full.Parts()
	cur, err := fs.iopen(fs.fat.rootclus)
	if err != 0 {
		return nil, nil, err
	}
	depth := 0
	for i := 0; i < len(comps); i++ {
		c := comps[i]
		if c.Isdot() {
			continue
		}
		if !cur.Isdir() {
			cur.iclose()
			return nil, nil, -defs.ENOTDIR
		}
		last := i == len(comps)-1
		if getparent && last {
			return cur, c, 0
		}
		clst, ok := fs.dirlookup(cur, c)
		if !ok {
			cur.iclose()
			return nil, nil, -defs.ENOENT
		}
		nxt, err := fs.iopen(clst)
		if err != 0 {
			cur.iclose()
			return nil, nil, err
		}
		if nxt.kind == INODE_LINK && (follow || !last) {
			depth++
			if depth > LINK_DEPTH {
				nxt.iclose()
				cur.iclose()
				return nil, nil, -defs.ELOOP
			}
			tgt := ustr.Ustr(nxt.linkpath)
			nxt.iclose()
			rest := comps[i+1:]
			ncomps := append([]ustr.Ustr{}, tgt.Parts()...)
			ncomps = append(ncomps, rest...)
			comps = ncomps
			i = -1
			if tgt.IsAbsolute() {
				// restart at the root
				cur.iclose()
				cur, err = fs.iopen(fs.fat.rootclus)
				if err != 0 {
					return nil, nil, err
				}
			}
			// a relative target resolves in the directory holding
			// the link, which is cur already
			continue
		}
		cur.iclose()
		cur = nxt
	}
	if getparent {
		cur.iclose()
		return nil, nil, -defs.EINVAL
	}
	return cur, nil, 0
}

/// Fs_create makes an empty file of the given initial size.
func (fs *Fs_t) Fs_create(path ustr.Ustr, size int, cwd ustr.Ustr) defs.Err_t {
	fs.Lock()
	defer fs.Unlock()
	par, name, err := fs.namex(cwd, path, true, false)
	if err != 0 {
		return err
	}
	defer par.iclose()
	clst, err := fs.icreate(INODE_FILE)
	if err != 0 {
		return err
	}
	if err := fs.diradd(par, name, clst); err != 0 {
		fs.fat.Remove_chain(clst, 0)
		return err
	}
	if size > 0 {
		ino, err := fs.iopen(clst)
		if err != 0 {
			return err
		}
		nclus := (size + bdev.SECTOR_SIZE - 1) / bdev.SECTOR_SIZE
		for i := 0; i < nclus; i++ {
			if _, err := ino.clusterof(i, true); err != 0 {
				ino.iclose()
				return err
			}
		}
		ino.length = size
		ino.flush()
		ino.iclose()
	}
	return 0
}

/// Fs_open opens the file, directory, or followed symlink target at
/// path.
func (fs *Fs_t) Fs_open(path ustr.Ustr, cwd ustr.Ustr) (*File_t, defs.Err_t) {
	fs.Lock()
	defer fs.Unlock()
	ino, _, err := fs.namex(cwd, path, false, true)
	if err != 0 {
		return nil, err
	}
	return mkfile(fs, ino), 0
}

/// Fs_remove unlinks the name at path. Directories must be empty; an
/// open file stays usable until its last descriptor closes.
func (fs *Fs_t) Fs_remove(path ustr.Ustr, cwd ustr.Ustr) defs.Err_t {
	fs.Lock()
	defer fs.Unlock()
	par, name, err := fs.namex(cwd, path, true, false)
	if err != 0 {
		return err
	}
	defer par.iclose()
	if name.Isdot() || name.Isdotdot() {
		return -defs.EINVAL
	}
	clst, ok := fs.dirlookup(par, name)
	if !ok {
		return -defs.ENOENT
	}
	ino, err := fs.iopen(clst)
	if err != 0 {
		return err
	}
	defer ino.iclose()
	if ino.Isdir() {
		if clst == fs.fat.rootclus {
			return -defs.EINVAL
		}
		if !fs.dirempty(ino) {
			return -defs.ENOTEMPTY
		}
		if ino.opencnt > 1 {
			// someone has the directory open or is inside it
			return -defs.EPERM
		}
	}
	if err := fs.dirremove(par, name); err != 0 {
		return err
	}
	ino.removed = true
	return 0
}

/// Fs_mkdir creates a directory with its "." and ".." entries.
func (fs *Fs_t) Fs_mkdir(path ustr.Ustr, cwd ustr.Ustr) defs.Err_t {
	fs.Lock()
	defer fs.Unlock()
	par, name, err := fs.namex(cwd, path, true, false)
	if err != 0 {
		return err
	}
	defer par.iclose()
	clst, err := fs.icreate(INODE_DIR)
	if err != 0 {
		return err
	}
	ino, err := fs.iopen(clst)
	if err != 0 {
		return err
	}
	defer ino.iclose()
	if err := fs.dirinit(ino, par.Clst); err != 0 {
		fs.fat.Remove_chain(clst, 0)
		return err
	}
	if err := fs.diradd(par, name, clst); err != 0 {
		ino.removed = true
		return err
	}
	return 0
}

/// Fs_chdir validates that path names a directory and returns the
/// canonical absolute path for the process's cwd.
func (fs *Fs_t) Fs_chdir(path ustr.Ustr, cwd ustr.Ustr) (ustr.Ustr, defs.Err_t) {
	fs.Lock()
	defer fs.Unlock()
	ino, _, err := fs.namex(cwd, path, false, true)
	if err != 0 {
		return nil, err
	}
	defer ino.iclose()
	if !ino.Isdir() {
		return nil, -defs.ENOTDIR
	}
	var full ustr.Ustr
	if path.IsAbsolute() {
		full = path
	} else {
		full = append(append(append(full, cwd...), '/'), path...)
	}
	return Canonicalize(full), 0
}

/// Fs_symlink records target at linkpath without touching target.
func (fs *Fs_t) Fs_symlink(target, linkpath ustr.Ustr, cwd ustr.Ustr) defs.Err_t {
	if len(target) == 0 || len(target) > LINKMAX {
		return -defs.EINVAL
	}
	fs.Lock()
	defer fs.Unlock()
	par, name, err := fs.namex(cwd, linkpath, true, false)
	if err != 0 {
		return err
	}
	defer par.iclose()
	clst, err := fs.icreate(INODE_LINK)
	if err != 0 {
		return err
	}
	ino, err := fs.iopen(clst)
	if err != 0 {
		return err
	}
	defer ino.iclose()
	ino.linkpath = target.String()
	ino.flush()
	if err := fs.diradd(par, name, clst); err != 0 {
		ino.removed = true
		return err
	}
	return 0
}

/// Canonicalize resolves "." and ".." textually and collapses
/// slashes, yielding an absolute path.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	var stack []ustr.Ustr
	for _, c := range p.Parts() {
		if c.Isdot() {
			continue
		}
		if c.Isdotdot() {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		stack = append(stack, c)
	}
	ret := ustr.MkUstrRoot()
	for i, c := range stack {
		if i > 0 {
			ret = append(ret, '/')
		}
		ret = append(ret, c...)
	}
	return ret
}
