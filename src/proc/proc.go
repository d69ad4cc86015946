// Package proc implements processes: fork, exec, wait, exit, the
// descriptor table, and the binding between user programs and the
// kernel. A process is a single kernel thread owning an address
// space and a descriptor table.
package proc

import "sync"

import "github.com/simons-pintos/pintos-kaist/src/console"
import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/fd"
import "github.com/simons-pintos/pintos-kaist/src/fs"
import "github.com/simons-pintos/pintos-kaist/src/limits"
import "github.com/simons-pintos/pintos-kaist/src/mem"
import "github.com/simons-pintos/pintos-kaist/src/thread"
import "github.com/simons-pintos/pintos-kaist/src/ustr"
import "github.com/simons-pintos/pintos-kaist/src/vm"

/// Trapframe_t is the user-mode register state captured at kernel
/// entry. Cont is the hosted stand-in for the saved instruction
/// pointer: the continuation fork resumes in the child.
type Trapframe_t struct {
	Rax int
	Rdi int
	Rsi int
	Rdx int
	R10 int
	R8  int
	R9  int
	Rsp int
	Cont func(*Proc_t)
}

/// Progf_t is a user program body. The harness registers one per
/// executable image; exec runs it after loading the image.
type Progf_t func(p *Proc_t)

/// Kernel_t ties the machine together: the filesystem, the console,
/// and the program registry.
type Kernel_t struct {
	sync.Mutex
	Fs    *fs.Fs_t
	Cons  *console.Cons_t
	progs map[string]Progf_t
	/// Halted is set by the halt system call.
	Halted bool
}

/// MkKernel builds the kernel context over a mounted filesystem and
/// console.
func MkKernel(fsys *fs.Fs_t, cons *console.Cons_t) *Kernel_t {
	k := &Kernel_t{}
	k.Fs = fsys
	k.Cons = cons
	k.progs = make(map[string]Progf_t)
	return k
}

/// Prog_register binds a program body to an executable name. exec of
/// a path whose final component matches runs fn after loading.
func (k *Kernel_t) Prog_register(name string, fn Progf_t) {
	k.Lock()
	k.progs[name] = fn
	k.Unlock()
}

func (k *Kernel_t) progfor(path ustr.Ustr) Progf_t {
	parts := path.Parts()
	if len(parts) == 0 {
		return nil
	}
	k.Lock()
	defer k.Unlock()
	return k.progs[parts[len(parts)-1].String()]
}

/// Proc_t is one process. The three lifecycle semaphores pair with
/// the locks' implicit waiter sets to capture the fork and wait
/// handshakes: forksem (fork complete), waitsem (wait blocks until
/// exit), freesem (parent read the status; teardown may finish).
type Proc_t struct {
	Tid  defs.Tid_t
	Name string
	thr  *thread.Thread_t

	Spt *vm.Spt_t
	Fds *fd.Fdtable_t
	Cwd *fd.Cwd_t
	Tf  Trapframe_t

	k        *Kernel_t
	parent   *Proc_t
	children map[defs.Tid_t]*Proc_t

	forksem *thread.Sema_t
	waitsem *thread.Sema_t
	freesem *thread.Sema_t

	exitstatus int
	forkok     bool
	waited     bool
	exited     bool

	execfile *fs.File_t
}

// plock serializes the process tree (parent/child links, exit
// status publication).
var plock sync.Mutex

func (k *Kernel_t) mkproc(name string) (*Proc_t, defs.Err_t) {
	if !limits.Syslimit.Sysprocs.Take() {
		return nil, -defs.ENOMEM
	}
	pm, ppm, ok := mem.Physmem.Pmap_new()
	if !ok {
		limits.Syslimit.Sysprocs.Give()
		return nil, -defs.ENOMEM
	}
	mem.Physmem.Refup(ppm)
	p := &Proc_t{}
	p.Name = name
	p.k = k
	p.Spt = vm.MkSpt(pm, ppm)
	p.Fds = fd.MkFdtable(k.Cons, k.Cons)
	p.k.Cons.Reopen()
	p.k.Cons.Reopen()
	p.Cwd = fd.MkRootCwd()
	p.children = make(map[defs.Tid_t]*Proc_t)
	p.forksem = thread.MkSema(0)
	p.waitsem = thread.MkSema(0)
	p.freesem = thread.MkSema(0)
	return p, 0
}

/// MkInitProc turns the calling thread into the first process.
func (k *Kernel_t) MkInitProc(name string) *Proc_t {
	p, err := k.mkproc(name)
	if err != 0 {
		panic("no memory for init")
	}
	p.thr = thread.Current()
	p.Tid = p.thr.Tid
	p.thr.Proc = p
	return p
}

/// Sys_fork clones the calling process. The child's address space is
/// a copy-on-write duplicate, its descriptor table preserves every
/// aliasing relationship, and it resumes at childf with a zero
/// return value. The parent gets the child's pid, or -1 when any
/// part of the duplication fails.
func (k *Kernel_t) Sys_fork(p *Proc_t, name string, childf func(*Proc_t)) int {
	if name == "" {
		name = p.Name
	}
	child, err := k.mkproc(name)
	if err != 0 {
		return -1
	}
	child.Tf = p.Tf
	child.Tf.Cont = childf
	child.Cwd.Path = append(ustr.Ustr{}, p.Cwd.Path...)

	t := thread.Create(name, thread.PRI_DEFAULT, func() {
		child.thr = thread.Current()
		child.thr.Proc = child
		ok := child.forkdup(p)
		child.forkok = ok
		child.forksem.Up()
		if !ok {
			k.Sys_exit(child, -1)
		}
		childf(child)
		k.Sys_exit(child, 0)
	})
	child.Tid = t.Tid
	plock.Lock()
	child.parent = p
	p.children[t.Tid] = child
	plock.Unlock()

	child.forksem.Down()
	if !child.forkok {
		// the child is dying through the normal exit path; reap it
		// so the only trace is our -1
		k.Sys_wait(p, int(child.Tid))
		return -1
	}
	return int(child.Tid)
}

// duplicates the parent's address space, descriptor table, and
// executable into the child. runs on the child's thread while the
// parent blocks on forksem.
func (child *Proc_t) forkdup(p *Proc_t) bool {
	if !p.Spt.Copy(child.Spt) {
		return false
	}
	// drop the pristine table from mkproc; fork's copy preserves
	// descriptor aliasing on its own
	child.Fds.Closeall()
	nt, err := p.Fds.Copy()
	if err != 0 {
		return false
	}
	child.Fds = nt
	if p.execfile != nil {
		if p.execfile.Reopen() != 0 {
			return false
		}
		child.execfile = p.execfile
		child.execfile.Deny_write()
	}
	return true
}

/// Sys_wait blocks until the child identified by pid exits, then
/// returns its exit status and releases it. It returns -1 when pid
/// is not an unwaited direct child.
func (k *Kernel_t) Sys_wait(p *Proc_t, pid int) int {
	plock.Lock()
	child, ok := p.children[defs.Tid_t(pid)]
	if !ok || child.waited {
		plock.Unlock()
		return -1
	}
	child.waited = true
	plock.Unlock()

	child.waitsem.Down()
	status := child.exitstatus
	plock.Lock()
	delete(p.children, child.Tid)
	plock.Unlock()
	child.freesem.Up()
	return status
}

/// Sys_exit terminates the process: descriptors close, the address
/// space is destroyed with mmap write-back, the executable becomes
/// writable again, the parent is signalled, and the thread dies once
/// the parent has read the status. It never returns.
func (k *Kernel_t) Sys_exit(p *Proc_t, status int) {
	if p.exited {
		panic("double exit")
	}
	p.exited = true
	p.exitstatus = status

	p.Fds.Closeall()
	p.Spt.Kill()
	mem.Pmap_free(p.Spt.Pmap, p.Spt.P_pmap)
	if p.execfile != nil {
		p.execfile.Allow_write()
		p.execfile.Close()
		p.execfile = nil
	}

	plock.Lock()
	// orphans tear down without waiting for anyone
	for _, c := range p.children {
		c.parent = nil
		c.freesem.Up()
	}
	hasparent := p.parent != nil
	plock.Unlock()

	limits.Syslimit.Sysprocs.Give()
	p.waitsem.Up()
	if hasparent {
		p.freesem.Down()
	}
	thread.Exit()
}
