package ukern

import "testing"

import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/mem"
import "github.com/simons-pintos/pintos-kaist/src/proc"
import "github.com/simons-pintos/pintos-kaist/src/syscall"
import "github.com/simons-pintos/pintos-kaist/src/thread"
import "github.com/simons-pintos/pintos-kaist/src/ustr"
import "github.com/simons-pintos/pintos-kaist/src/vm"

const scratch = 0x20000000

func sc(k *proc.Kernel_t, p *proc.Proc_t, num int, args ...int) int {
	tf := &proc.Trapframe_t{Rax: num, Rsp: mem.USER_STACK}
	regs := []*int{&tf.Rdi, &tf.Rsi, &tf.Rdx, &tf.R10, &tf.R8}
	for i, a := range args {
		*regs[i] = a
	}
	return syscall.Syscall(k, p, tf)
}

func scfork(k *proc.Kernel_t, p *proc.Proc_t, childf func(*proc.Proc_t)) int {
	tf := &proc.Trapframe_t{Rax: defs.SYS_FORK, Rsp: mem.USER_STACK, Cont: childf}
	return syscall.Syscall(k, p, tf)
}

// places a NUL-terminated string in the process's user memory
func uputs(t *testing.T, p *proc.Proc_t, va int, s string) {
	t.Helper()
	if p.Spt.Lookup(va) == nil {
		if !p.Spt.Alloc_anon(va, true) {
			t.Fatalf("scratch alloc failed")
		}
	}
	if err := p.Spt.K2user(append([]uint8(s), 0), va); err != 0 {
		t.Fatalf("uputs: %v", err)
	}
}

func seedfile(t *testing.T, m *Machine_t, path string, data []uint8) {
	t.Helper()
	root := ustr.MkUstrRoot()
	if err := m.Fs.Fs_create(ustr.Ustr(path), 0, root); err != 0 {
		t.Fatalf("create %v: %v", path, err)
	}
	f, err := m.Fs.Fs_open(ustr.Ustr(path), root)
	if err != 0 {
		t.Fatalf("open %v: %v", path, err)
	}
	ub := &vm.Fakeubuf_t{}
	ub.Fake_init(append([]uint8{}, data...))
	if n, werr := f.Write(ub); werr != 0 || n != len(data) {
		t.Fatalf("write %v: %v %v", path, n, werr)
	}
	f.Close()
}

func slurp(t *testing.T, m *Machine_t, path string) []uint8 {
	t.Helper()
	f, err := m.Fs.Fs_open(ustr.Ustr(path), ustr.MkUstrRoot())
	if err != 0 {
		t.Fatalf("open %v: %v", path, err)
	}
	sz, _ := f.Len()
	buf := make([]uint8, sz)
	ub := &vm.Fakeubuf_t{}
	ub.Fake_init(buf)
	f.Read(ub)
	f.Close()
	return buf
}

func TestExecWaitExit(t *testing.T) {
	m := Boot(Bootopts_t{})
	defer m.Shutdown()
	k := m.K

	seg := make([]uint8, 100)
	for i := range seg {
		seg[i] = uint8(i + 1)
	}
	seedfile(t, m, "/hello", Mkelf(0x400000, seg, 0, false))

	k.Prog_register("hello", func(p *proc.Proc_t) {
		// argv: "hello" "world"
		if p.Tf.Rdi != 2 {
			sc(k, p, defs.SYS_EXIT, 100)
		}
		a1ptr, _ := p.Spt.Userreadn(p.Tf.Rsi+8, 8)
		arg, _ := p.Spt.Userstr(a1ptr, 64)
		if arg != "world" {
			sc(k, p, defs.SYS_EXIT, 101)
		}
		// the segment loads lazily with the image's bytes
		got := make([]uint8, len(seg))
		if p.Spt.User2k(got, 0x400000) != 0 {
			sc(k, p, defs.SYS_EXIT, 102)
		}
		for i := range seg {
			if got[i] != seg[i] {
				sc(k, p, defs.SYS_EXIT, 103)
			}
		}
		uputs(t, p, scratch, "hi!\n")
		if n := sc(k, p, defs.SYS_WRITE, 1, scratch, 4); n != 4 {
			sc(k, p, defs.SYS_EXIT, 104)
		}
		sc(k, p, defs.SYS_EXIT, 42)
	})

	init := k.MkInitProc("init")
	pid := scfork(k, init, func(q *proc.Proc_t) {
		uputs(t, q, scratch, "/hello world")
		sc(k, q, defs.SYS_EXEC, scratch)
	})
	if pid <= 0 {
		t.Fatalf("fork returned %v", pid)
	}
	if st := sc(k, init, defs.SYS_WAIT, pid); st != 42 {
		t.Fatalf("wait returned %v; want 42", st)
	}
	if got := string(m.Cons.Output()); got != "hi!\n" {
		t.Fatalf("console %q", got)
	}
	// waiting twice fails
	if st := sc(k, init, defs.SYS_WAIT, pid); st != -1 {
		t.Fatalf("second wait returned %v", st)
	}
}

func TestForkCow(t *testing.T) {
	m := Boot(Bootopts_t{})
	defer m.Shutdown()
	k := m.K
	init := k.MkInitProc("init")

	va := 0x400000
	if !init.Spt.Alloc_anon(va, true) {
		t.Fatalf("alloc failed")
	}
	init.Spt.K2user([]uint8{0x11}, va)

	childsaw := -1
	pid := scfork(k, init, func(q *proc.Proc_t) {
		var b [1]uint8
		q.Spt.User2k(b[:], va)
		if b[0] != 0x11 {
			sc(k, q, defs.SYS_EXIT, 1)
		}
		q.Spt.K2user([]uint8{0xab}, va)
		q.Spt.User2k(b[:], va)
		childsaw = int(b[0])
		sc(k, q, defs.SYS_EXIT, 0)
	})
	if pid <= 0 {
		t.Fatalf("fork failed: %v", pid)
	}
	if st := sc(k, init, defs.SYS_WAIT, pid); st != 0 {
		t.Fatalf("child exited %v", st)
	}
	if childsaw != 0xab {
		t.Fatalf("child read %#x after its write", childsaw)
	}
	var b [1]uint8
	init.Spt.User2k(b[:], va)
	if b[0] != 0x11 {
		t.Fatalf("parent saw %#x; child write leaked", b[0])
	}
	pg := init.Spt.Lookup(va)
	if !pg.Resident() {
		t.Fatalf("parent page gone")
	}
	init.Spt.K2user([]uint8{0x12}, va)
	if sh := pg.Frame().Shares(); sh != 0 {
		t.Fatalf("sharer count %v after both writes", sh)
	}
}

func TestMmapSyscalls(t *testing.T) {
	m := Boot(Bootopts_t{})
	defer m.Shutdown()
	k := m.K
	init := k.MkInitProc("init")

	data := make([]uint8, 6000)
	for i := range data {
		data[i] = uint8(i % 199)
	}
	seedfile(t, m, "/mf", data)

	uputs(t, init, scratch, "/mf")
	fdn := sc(k, init, defs.SYS_OPEN, scratch)
	if fdn < 2 {
		t.Fatalf("open: %v", fdn)
	}
	base := sc(k, init, defs.SYS_MMAP, 0x10000000, 8192, 1, fdn, 0)
	if base != 0x10000000 {
		t.Fatalf("mmap: %#x", base)
	}
	got := make([]uint8, 8192)
	if init.Spt.User2k(got, base) != 0 {
		t.Fatalf("read of mapping failed")
	}
	for i := 0; i < 6000; i++ {
		if got[i] != data[i] {
			t.Fatalf("byte %v: %#x", i, got[i])
		}
	}
	for i := 6000; i < 8192; i++ {
		if got[i] != 0 {
			t.Fatalf("tail byte %v: %#x", i, got[i])
		}
	}
	init.Spt.K2user([]uint8{'Z'}, base+100)
	if sc(k, init, defs.SYS_MUNMAP, base) != 0 {
		t.Fatalf("munmap failed")
	}
	after := slurp(t, m, "/mf")
	if len(after) != 6000 {
		t.Fatalf("file length changed: %v", len(after))
	}
	if after[100] != 'Z' {
		t.Fatalf("write-back missing: %#x", after[100])
	}
	sc(k, init, defs.SYS_CLOSE, fdn)
}

func TestDup2(t *testing.T) {
	m := Boot(Bootopts_t{})
	defer m.Shutdown()
	k := m.K
	init := k.MkInitProc("init")
	seedfile(t, m, "/f", []uint8{})

	uputs(t, init, scratch, "/f")
	fdn := sc(k, init, defs.SYS_OPEN, scratch)
	nfd := sc(k, init, defs.SYS_DUP2, fdn, 10)
	if nfd != 10 {
		t.Fatalf("dup2: %v", nfd)
	}
	uputs(t, init, scratch+0x1000, "abc")
	if n := sc(k, init, defs.SYS_WRITE, fdn, scratch+0x1000, 3); n != 3 {
		t.Fatalf("write: %v", n)
	}
	// aliases share one cursor
	if pos := sc(k, init, defs.SYS_TELL, 10); pos != 3 {
		t.Fatalf("tell via alias: %v", pos)
	}
	sc(k, init, defs.SYS_CLOSE, fdn)
	// the alias still works after the original closes
	sc(k, init, defs.SYS_SEEK, 10, 0)
	got := scratch + 0x2000
	uputs(t, init, got, "...")
	if n := sc(k, init, defs.SYS_READ, 10, got, 3); n != 3 {
		t.Fatalf("read via alias: %v", n)
	}
	var b [3]uint8
	init.Spt.User2k(b[:], got)
	if string(b[:]) != "abc" {
		t.Fatalf("alias read %q", b)
	}
	sc(k, init, defs.SYS_CLOSE, 10)

	// dup2 over a std sentinel redirects console writes
	fdn = sc(k, init, defs.SYS_OPEN, scratch)
	sc(k, init, defs.SYS_SEEK, fdn, 0)
	if n := sc(k, init, defs.SYS_DUP2, fdn, 1); n != 1 {
		t.Fatalf("dup2 onto stdout failed")
	}
	sc(k, init, defs.SYS_WRITE, 1, scratch+0x1000, 3)
	if len(m.Cons.Output()) != 0 {
		t.Fatalf("redirected write reached the console")
	}
}

func TestStdinRead(t *testing.T) {
	m := Boot(Bootopts_t{})
	defer m.Shutdown()
	k := m.K
	init := k.MkInitProc("init")
	for _, c := range []uint8{'h', 'i', 0} {
		m.Cons.Putc(c)
	}
	buf := scratch
	uputs(t, init, buf, "..........")
	n := sc(k, init, defs.SYS_READ, 0, buf, 10)
	if n != 2 {
		t.Fatalf("stdin read %v bytes", n)
	}
	var b [2]uint8
	init.Spt.User2k(b[:], buf)
	if string(b[:]) != "hi" {
		t.Fatalf("stdin read %q", b)
	}
}

func TestDirSyscalls(t *testing.T) {
	m := Boot(Bootopts_t{})
	defer m.Shutdown()
	k := m.K
	init := k.MkInitProc("init")

	uputs(t, init, scratch, "/d")
	if sc(k, init, defs.SYS_MKDIR, scratch) != 1 {
		t.Fatalf("mkdir failed")
	}
	if sc(k, init, defs.SYS_CHDIR, scratch) != 1 {
		t.Fatalf("chdir failed")
	}
	// relative create lands in /d
	uputs(t, init, scratch+0x1000, "f")
	if sc(k, init, defs.SYS_CREATE, scratch+0x1000, 10) != 1 {
		t.Fatalf("relative create failed")
	}
	if len(slurp(t, m, "/d/f")) != 10 {
		t.Fatalf("created file not in cwd")
	}

	uputs(t, init, scratch+0x2000, "/d")
	dfd := sc(k, init, defs.SYS_OPEN, scratch+0x2000)
	if sc(k, init, defs.SYS_ISDIR, dfd) != 1 {
		t.Fatalf("isdir on directory")
	}
	if sc(k, init, defs.SYS_INUMBER, dfd) <= 0 {
		t.Fatalf("inumber")
	}
	namebuf := scratch + 0x3000
	uputs(t, init, namebuf, "................")
	if sc(k, init, defs.SYS_READDIR, dfd, namebuf) != 1 {
		t.Fatalf("readdir found nothing")
	}
	nm, _ := init.Spt.Userstr(namebuf, 32)
	if nm != "f" {
		t.Fatalf("readdir %q", nm)
	}
	if sc(k, init, defs.SYS_READDIR, dfd, namebuf) != 0 {
		t.Fatalf("readdir past the end")
	}

	// symlink through the syscall surface
	uputs(t, init, scratch+0x4000, "/d/f")
	uputs(t, init, scratch+0x5000, "/l")
	if sc(k, init, defs.SYS_SYMLINK, scratch+0x4000, scratch+0x5000) != 0 {
		t.Fatalf("symlink failed")
	}
	lfd := sc(k, init, defs.SYS_OPEN, scratch+0x5000)
	if lfd < 2 {
		t.Fatalf("open of link: %v", lfd)
	}
	if sz := sc(k, init, defs.SYS_FILESIZE, lfd); sz != 10 {
		t.Fatalf("filesize through link: %v", sz)
	}
}

func TestBadPointerKills(t *testing.T) {
	m := Boot(Bootopts_t{})
	defer m.Shutdown()
	k := m.K
	init := k.MkInitProc("init")

	pid := scfork(k, init, func(q *proc.Proc_t) {
		// kernel-range buffer: the dispatcher must kill us
		sc(k, q, defs.SYS_READ, 0, mem.KERNBASE+0x1000, 8)
		sc(k, q, defs.SYS_EXIT, 0)
	})
	if st := sc(k, init, defs.SYS_WAIT, pid); st != -1 {
		t.Fatalf("bad pointer exit status %v", st)
	}

	pid = scfork(k, init, func(q *proc.Proc_t) {
		// unmapped pointer
		sc(k, q, defs.SYS_OPEN, 0x30000000)
		sc(k, q, defs.SYS_EXIT, 0)
	})
	if st := sc(k, init, defs.SYS_WAIT, pid); st != -1 {
		t.Fatalf("unmapped pointer exit status %v", st)
	}

	pid = scfork(k, init, func(q *proc.Proc_t) {
		// bad syscall number
		sc(k, q, 999)
	})
	if st := sc(k, init, defs.SYS_WAIT, pid); st != -1 {
		t.Fatalf("bad syscall exit status %v", st)
	}
}

func TestWaitNonChild(t *testing.T) {
	m := Boot(Bootopts_t{})
	defer m.Shutdown()
	k := m.K
	init := k.MkInitProc("init")
	if st := sc(k, init, defs.SYS_WAIT, 12345); st != -1 {
		t.Fatalf("wait on non-child: %v", st)
	}
}

func TestExecDeniesWrite(t *testing.T) {
	m := Boot(Bootopts_t{})
	defer m.Shutdown()
	k := m.K
	seedfile(t, m, "/rox", Mkelf(0x400000, []uint8{1, 2, 3}, 0, false))

	k.Prog_register("rox", func(p *proc.Proc_t) {
		uputs(t, p, scratch, "/rox")
		fdn := sc(k, p, defs.SYS_OPEN, scratch)
		if fdn < 2 {
			sc(k, p, defs.SYS_EXIT, 1)
		}
		uputs(t, p, scratch+0x1000, "X")
		// writes to a running executable report zero bytes
		if n := sc(k, p, defs.SYS_WRITE, fdn, scratch+0x1000, 1); n != 0 {
			sc(k, p, defs.SYS_EXIT, 2)
		}
		sc(k, p, defs.SYS_EXIT, 0)
	})

	init := k.MkInitProc("init")
	pid := scfork(k, init, func(q *proc.Proc_t) {
		uputs(t, q, scratch, "/rox")
		sc(k, q, defs.SYS_EXEC, scratch)
	})
	if st := sc(k, init, defs.SYS_WAIT, pid); st != 0 {
		t.Fatalf("rox exited %v", st)
	}
	// after exit the image is writable again
	f, err := m.Fs.Fs_open(ustr.Ustr("/rox"), ustr.MkUstrRoot())
	if err != 0 {
		t.Fatalf("open after exit: %v", err)
	}
	ub := &vm.Fakeubuf_t{}
	ub.Fake_init([]uint8{9})
	if n, werr := f.Write(ub); werr != 0 || n != 1 {
		t.Fatalf("write after exit: %v %v", n, werr)
	}
	f.Close()
}

func TestHalt(t *testing.T) {
	m := Boot(Bootopts_t{})
	defer m.Shutdown()
	k := m.K
	init := k.MkInitProc("init")
	scfork(k, init, func(q *proc.Proc_t) {
		sc(k, q, defs.SYS_HALT)
	})
	thread.Yield()
	if !k.Halted {
		t.Fatalf("halt did not halt")
	}
}

func TestTimerBoot(t *testing.T) {
	m := Boot(Bootopts_t{Timer: true, TimerHz: 1000})
	defer m.Shutdown()
	start := thread.Ticks()
	thread.Sleep(5)
	if got := thread.Ticks(); got < start+5 {
		t.Fatalf("woke early: %v -> %v", start, got)
	}
}

func TestExecMissingImage(t *testing.T) {
	m := Boot(Bootopts_t{})
	defer m.Shutdown()
	k := m.K
	init := k.MkInitProc("init")
	pid := scfork(k, init, func(q *proc.Proc_t) {
		uputs(t, q, scratch, "/nope")
		sc(k, q, defs.SYS_EXEC, scratch)
	})
	if st := sc(k, init, defs.SYS_WAIT, pid); st != -1 {
		t.Fatalf("exec of missing image: %v", st)
	}
}
