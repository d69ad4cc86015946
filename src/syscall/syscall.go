// Package syscall implements the dispatcher between user traps and
// the kernel: it validates every user-supplied pointer against the
// caller's supplemental page table, then routes to the handlers. Any
// validation failure terminates the process with status -1.
package syscall

import "strings"

import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/fd"
import "github.com/simons-pintos/pintos-kaist/src/fs"
import "github.com/simons-pintos/pintos-kaist/src/mem"
import "github.com/simons-pintos/pintos-kaist/src/proc"
import "github.com/simons-pintos/pintos-kaist/src/thread"
import "github.com/simons-pintos/pintos-kaist/src/ustr"

/// PATH_MAX bounds a user-supplied path string.
const PATH_MAX = 1024

/// Syscall handles the system call described by tf for process p and
/// returns the value destined for the user's first integer register.
func Syscall(k *proc.Kernel_t, p *proc.Proc_t, tf *proc.Trapframe_t) int {
	// save the register frame for fork and the stack pointer for
	// growth checks on kernel copies
	p.Tf = *tf
	p.Spt.Ursp = tf.Rsp
	thread.Pause()

	a1, a2, a3 := tf.Rdi, tf.Rsi, tf.Rdx
	a4, a5 := tf.R10, tf.R8

	switch tf.Rax {
	case defs.SYS_HALT:
		k.Halted = true
		thread.Exit()
	case defs.SYS_EXIT:
		k.Sys_exit(p, a1)
	case defs.SYS_FORK:
		name := ""
		if a1 != 0 {
			name = getstr(k, p, a1)
		}
		if tf.Cont == nil {
			k.Sys_exit(p, -1)
		}
		return k.Sys_fork(p, name, tf.Cont)
	case defs.SYS_EXEC:
		cmd := getstr(k, p, a1)
		argv := strings.Fields(cmd)
		if len(argv) == 0 {
			k.Sys_exit(p, -1)
		}
		if k.Sys_exec(p, argv[0], argv) == -1 {
			k.Sys_exit(p, -1)
		}
	case defs.SYS_WAIT:
		return k.Sys_wait(p, a1)
	case defs.SYS_CREATE:
		path := getstr(k, p, a1)
		if a2 < 0 {
			return 0
		}
		return b2i(k.Fs.Fs_create(ustr.Ustr(path), a2, p.Cwd.Path) == 0)
	case defs.SYS_REMOVE:
		path := getstr(k, p, a1)
		return b2i(k.Fs.Fs_remove(ustr.Ustr(path), p.Cwd.Path) == 0)
	case defs.SYS_OPEN:
		path := getstr(k, p, a1)
		f, err := k.Fs.Fs_open(ustr.Ustr(path), p.Cwd.Path)
		if err != 0 {
			return -1
		}
		nfd := &fd.Fd_t{Fops: f, Perms: fd.FD_READ | fd.FD_WRITE}
		fdn, err := p.Fds.Insert(nfd)
		if err != 0 {
			f.Close()
			return -1
		}
		return fdn
	case defs.SYS_FILESIZE:
		f, err := p.Fds.Get(a1)
		if err != 0 {
			return -1
		}
		sz, err := f.Fops.Len()
		if err != 0 {
			return -1
		}
		return sz
	case defs.SYS_READ:
		return sys_rw(k, p, a1, a2, a3, false)
	case defs.SYS_WRITE:
		return sys_rw(k, p, a1, a2, a3, true)
	case defs.SYS_SEEK:
		if f, err := p.Fds.Get(a1); err == 0 {
			f.Fops.Lseek(a2, defs.SEEK_SET)
		}
	case defs.SYS_TELL:
		f, err := p.Fds.Get(a1)
		if err != 0 {
			return -1
		}
		pos, err := f.Fops.Lseek(0, defs.SEEK_CUR)
		if err != 0 {
			return -1
		}
		return pos
	case defs.SYS_CLOSE:
		if p.Fds.Close(a1) != 0 {
			return -1
		}
	case defs.SYS_MMAP:
		return sys_mmap(k, p, a1, a2, a3, a4, a5)
	case defs.SYS_MUNMAP:
		if !p.Spt.Munmap(a1) {
			return -1
		}
	case defs.SYS_CHDIR:
		path := getstr(k, p, a1)
		ncwd, err := k.Fs.Fs_chdir(ustr.Ustr(path), p.Cwd.Path)
		if err != 0 {
			return 0
		}
		p.Cwd.Lock()
		p.Cwd.Path = ncwd
		p.Cwd.Unlock()
		return 1
	case defs.SYS_MKDIR:
		path := getstr(k, p, a1)
		return b2i(k.Fs.Fs_mkdir(ustr.Ustr(path), p.Cwd.Path) == 0)
	case defs.SYS_READDIR:
		f, err := p.Fds.Get(a1)
		if err != 0 {
			return 0
		}
		checkbuf(k, p, a2, fs.NAME_MAX+1)
		nm, ok := f.Fops.Readdir()
		if !ok {
			return 0
		}
		b := append([]uint8(nm), 0)
		if p.Spt.K2user(b, a2) != 0 {
			k.Sys_exit(p, -1)
		}
		return 1
	case defs.SYS_ISDIR:
		f, err := p.Fds.Get(a1)
		if err != 0 {
			return -1
		}
		return b2i(f.Fops.Isdir())
	case defs.SYS_INUMBER:
		f, err := p.Fds.Get(a1)
		if err != 0 {
			return -1
		}
		return f.Fops.Inum()
	case defs.SYS_DUP2:
		nfd, err := p.Fds.Dup2(a1, a2)
		if err != 0 {
			return -1
		}
		return nfd
	case defs.SYS_SYMLINK:
		target := getstr(k, p, a1)
		link := getstr(k, p, a2)
		if k.Fs.Fs_symlink(ustr.Ustr(target), ustr.Ustr(link), p.Cwd.Path) != 0 {
			return -1
		}
		return 0
	default:
		k.Sys_exit(p, -1)
	}
	return 0
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// a user pointer must be non-null, below the kernel, and covered by
// an SPT entry; residency is not required so lazy pages stay lazy.
func checkptr(k *proc.Kernel_t, p *proc.Proc_t, va int) {
	if va == 0 || va >= mem.KERNBASE || p.Spt.Lookup(va) == nil {
		k.Sys_exit(p, -1)
	}
}

// buffer ranges validate both endpoints.
func checkbuf(k *proc.Kernel_t, p *proc.Proc_t, va, n int) {
	if n < 0 {
		k.Sys_exit(p, -1)
	}
	if n == 0 {
		return
	}
	checkptr(k, p, va)
	checkptr(k, p, va+n-1)
}

func getstr(k *proc.Kernel_t, p *proc.Proc_t, va int) string {
	checkptr(k, p, va)
	s, err := p.Spt.Userstr(va, PATH_MAX)
	if err != 0 {
		k.Sys_exit(p, -1)
	}
	return s
}

func sys_rw(k *proc.Kernel_t, p *proc.Proc_t, fdn, bufva, n int, write bool) int {
	if n < 0 {
		k.Sys_exit(p, -1)
	}
	if n == 0 {
		return 0
	}
	checkbuf(k, p, bufva, n)
	f, err := p.Fds.Get(fdn)
	if err != 0 {
		return -1
	}
	// fault the buffer in now so the copy under the filesystem lock
	// cannot nest a fault that needs the filesystem
	if p.Spt.Prefault(bufva, n, !write) != 0 {
		k.Sys_exit(p, -1)
	}
	ub := p.Spt.Mkuserbuf(bufva, n)
	var did int
	var werr defs.Err_t
	if write {
		if f.Perms&fd.FD_WRITE == 0 {
			return -1
		}
		did, werr = f.Fops.Write(ub)
	} else {
		if f.Perms&fd.FD_READ == 0 {
			return -1
		}
		did, werr = f.Fops.Read(ub)
	}
	if werr == -defs.EPERM {
		// a write-denied executable reports zero bytes
		return 0
	}
	if werr != 0 {
		return -1
	}
	return did
}

func sys_mmap(k *proc.Kernel_t, p *proc.Proc_t, addr, length, writable, fdn, off int) int {
	f, err := p.Fds.Get(fdn)
	if err != 0 {
		return 0
	}
	file, ok := f.Fops.(*fs.File_t)
	if !ok {
		// the console cannot back a mapping
		return 0
	}
	nf := file.Dup()
	base, ok := p.Spt.Mmap(addr, length, writable != 0, nf, off)
	if !ok {
		nf.Close()
		return 0
	}
	return base
}
