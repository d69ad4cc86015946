package fd

import "sync"

import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/fdops"
import "github.com/simons-pintos/pintos-kaist/src/ustr"

/// File descriptor permission bits.
const (
	FD_READ  = 0x1 /// read permission
	FD_WRITE = 0x2 /// write permission
)

/// NFILE is the fixed capacity of a process's descriptor table.
const NFILE = 128

/// Fd_t represents an open file descriptor. Refs counts the
/// additional descriptor slots aliasing it via dup2.
type Fd_t struct {
	// fops is an interface implemented via a "pointer receiver", thus
	// fops is a reference, not a value
	Fops  fdops.Fdops_i /// descriptor operations
	Perms int           /// permission bits
	Refs  int           /// extra slots aliasing this descriptor
}

/// Copyfd duplicates an open file descriptor by reopening it.
func Copyfd(f *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	nfd.Fops = f.Fops
	nfd.Perms = f.Perms
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

/// Close_panic closes the descriptor and panics on failure.
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("must succeed")
	}
}

/// Fdtable_t is the per-process descriptor table. Slots 0 and 1 are
/// the standard input and standard output sentinels. The table is
/// private to its process; fork fills the child's copy before the
/// child starts.
type Fdtable_t struct {
	fds [NFILE]*Fd_t
}

/// MkFdtable builds a table whose first two slots are the given
/// standard input and output objects.
func MkFdtable(stdin, stdout fdops.Fdops_i) *Fdtable_t {
	ft := &Fdtable_t{}
	ft.fds[0] = &Fd_t{Fops: stdin, Perms: FD_READ}
	ft.fds[1] = &Fd_t{Fops: stdout, Perms: FD_WRITE}
	return ft
}

/// Get returns the descriptor in slot fdn.
func (ft *Fdtable_t) Get(fdn int) (*Fd_t, defs.Err_t) {
	if fdn < 0 || fdn >= NFILE || ft.fds[fdn] == nil {
		return nil, -defs.EBADF
	}
	return ft.fds[fdn], 0
}

/// Insert places f in the lowest free slot at or above 2 and returns
/// its number.
func (ft *Fdtable_t) Insert(f *Fd_t) (int, defs.Err_t) {
	for i := 2; i < NFILE; i++ {
		if ft.fds[i] == nil {
			ft.fds[i] = f
			return i, 0
		}
	}
	return 0, -defs.EMFILE
}

/// Close empties slot fdn. The underlying object is closed when the
/// last aliasing slot goes away.
func (ft *Fdtable_t) Close(fdn int) defs.Err_t {
	f, err := ft.Get(fdn)
	if err != 0 {
		return err
	}
	ft.fds[fdn] = nil
	if f.Refs > 0 {
		f.Refs--
		return 0
	}
	return f.Fops.Close()
}

/// Dup2 makes slot newfd refer to the same open descriptor as oldfd,
/// closing whatever newfd held. The standard sentinels participate
/// like any other descriptor.
func (ft *Fdtable_t) Dup2(oldfd, newfd int) (int, defs.Err_t) {
	f, err := ft.Get(oldfd)
	if err != 0 {
		return 0, err
	}
	if newfd < 0 || newfd >= NFILE {
		return 0, -defs.EBADF
	}
	if oldfd == newfd {
		return newfd, 0
	}
	if ft.fds[newfd] != nil {
		ft.Close(newfd)
	}
	ft.fds[newfd] = f
	f.Refs++
	return newfd, 0
}

/// Copy clones the table for fork. Slots aliasing one descriptor in
/// the parent alias one descriptor in the child, which an interning
/// map over the parent's table preserves.
func (ft *Fdtable_t) Copy() (*Fdtable_t, defs.Err_t) {
	nt := &Fdtable_t{}
	dups := make(map[*Fd_t]*Fd_t)
	for i, f := range ft.fds {
		if f == nil {
			continue
		}
		nf, ok := dups[f]
		if !ok {
			var err defs.Err_t
			nf, err = Copyfd(f)
			if err != 0 {
				nt.Closeall()
				return nil, err
			}
			dups[f] = nf
		} else {
			nf.Refs++
		}
		nt.fds[i] = nf
	}
	return nt, 0
}

/// Closeall closes every descriptor in the table.
func (ft *Fdtable_t) Closeall() {
	for i := range ft.fds {
		if ft.fds[i] != nil {
			ft.Close(i)
		}
	}
}

/// Cwd_t tracks the current working directory for a process.
type Cwd_t struct {
	sync.Mutex // to serialize chdirs
	Path ustr.Ustr /// canonical path
}

/// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	full := append(ustr.Ustr{}, cwd.Path...)
	full = append(full, '/')
	return append(full, p...)
}

/// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd() *Cwd_t {
	c := &Cwd_t{}
	c.Path = ustr.MkUstrRoot()
	return c
}
