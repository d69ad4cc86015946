package proc

import "testing"

import "github.com/simons-pintos/pintos-kaist/src/bdev"
import "github.com/simons-pintos/pintos-kaist/src/console"
import "github.com/simons-pintos/pintos-kaist/src/fd"
import "github.com/simons-pintos/pintos-kaist/src/fs"
import "github.com/simons-pintos/pintos-kaist/src/limits"
import "github.com/simons-pintos/pintos-kaist/src/mem"
import "github.com/simons-pintos/pintos-kaist/src/thread"
import "github.com/simons-pintos/pintos-kaist/src/ustr"
import "github.com/simons-pintos/pintos-kaist/src/vm"

func u8(s string) ustr.Ustr {
	return ustr.Ustr(s)
}

func mkfd(f *fs.File_t) *fd.Fd_t {
	return &fd.Fd_t{Fops: f, Perms: fd.FD_READ | fd.FD_WRITE}
}

func boot(t *testing.T, pool int) (*Kernel_t, *Proc_t) {
	t.Helper()
	mem.Physmem = &mem.Physmem_t{}
	mem.Phys_init(pool)
	vm.Vm_init()
	vm.Swap_init(bdev.MkMemdisk(64 * vm.SECTORS_PER_PAGE))
	thread.Init(false)
	fsys := fs.StartFS(bdev.MkMemdisk(2048))
	k := MkKernel(fsys, console.MkCons())
	return k, k.MkInitProc("init")
}

func TestForkWaitStatus(t *testing.T) {
	k, init := boot(t, 256)
	pid := k.Sys_fork(init, "child", func(q *Proc_t) {
		k.Sys_exit(q, 7)
	})
	if pid <= 0 {
		t.Fatalf("fork: %v", pid)
	}
	if st := k.Sys_wait(init, pid); st != 7 {
		t.Fatalf("wait: %v", st)
	}
	if st := k.Sys_wait(init, pid); st != -1 {
		t.Fatalf("double wait: %v", st)
	}
}

func TestForkLimit(t *testing.T) {
	k, init := boot(t, 256)
	old := limits.Syslimit
	limits.Syslimit = &limits.Syslimit_t{Sysprocs: 0}
	defer func() { limits.Syslimit = old }()
	if pid := k.Sys_fork(init, "", func(q *Proc_t) {}); pid != -1 {
		t.Fatalf("fork past the process limit: %v", pid)
	}
}

func TestOrphanTeardown(t *testing.T) {
	k, init := boot(t, 256)
	leafGone := false
	pid := k.Sys_fork(init, "mid", func(mid *Proc_t) {
		// the grandchild outlives its parent
		k.Sys_fork(mid, "leaf", func(leaf *Proc_t) {
			thread.Yield()
			leafGone = true
			k.Sys_exit(leaf, 3)
		})
		k.Sys_exit(mid, 1)
	})
	if st := k.Sys_wait(init, pid); st != 1 {
		t.Fatalf("mid exited %v", st)
	}
	// the orphan must finish without blocking on its dead parent
	for i := 0; i < 10 && !leafGone; i++ {
		thread.Yield()
	}
	if !leafGone {
		t.Fatalf("orphan never finished")
	}
}

func TestForkInheritsFds(t *testing.T) {
	k, init := boot(t, 256)
	if err := k.Fs.Fs_create(u8("/f"), 4, init.Cwd.Path); err != 0 {
		t.Fatalf("create: %v", err)
	}
	f, err := k.Fs.Fs_open(u8("/f"), init.Cwd.Path)
	if err != 0 {
		t.Fatalf("open: %v", err)
	}
	fdn, _ := init.Fds.Insert(mkfd(f))
	alias, _ := init.Fds.Dup2(fdn, 9)
	if alias != 9 {
		t.Fatalf("dup2: %v", alias)
	}

	sawAlias := false
	pid := k.Sys_fork(init, "c", func(q *Proc_t) {
		a, e1 := q.Fds.Get(fdn)
		b, e2 := q.Fds.Get(9)
		sawAlias = e1 == 0 && e2 == 0 && a == b
		k.Sys_exit(q, 0)
	})
	if st := k.Sys_wait(init, pid); st != 0 {
		t.Fatalf("child: %v", st)
	}
	if !sawAlias {
		t.Fatalf("fork broke descriptor aliasing")
	}
}

func TestExitClosesEverything(t *testing.T) {
	k, init := boot(t, 256)
	free0 := mem.Physmem.Pgcount()
	pid := k.Sys_fork(init, "c", func(q *Proc_t) {
		q.Spt.Alloc_anon(0x400000, true)
		q.Spt.K2user([]uint8{1}, 0x400000)
		k.Sys_exit(q, 0)
	})
	if st := k.Sys_wait(init, pid); st != 0 {
		t.Fatalf("child: %v", st)
	}
	if got := mem.Physmem.Pgcount(); got != free0 {
		t.Fatalf("child leaked pages: %v of %v free", got, free0)
	}
}
