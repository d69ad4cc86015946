// Package console provides the standard input and output sentinel
// devices. Keyboard input arrives from the machine layer one
// character at a time; console output accumulates in a buffer the
// harness can inspect.
package console

import "sync"

import "github.com/simons-pintos/pintos-kaist/src/circbuf"
import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/fdops"
import "github.com/simons-pintos/pintos-kaist/src/thread"

const kbufsz = 256

/// Cons_t is the console device. One instance serves both standard
/// input and standard output.
type Cons_t struct {
	sync.Mutex
	// keyboard ring buffer; navail counts buffered characters
	kbuf   *circbuf.Circbuf_t
	navail *thread.Sema_t

	out  []uint8
	refs int
}

/// MkCons builds a console with an empty keyboard queue.
func MkCons() *Cons_t {
	c := &Cons_t{}
	c.kbuf = circbuf.MkCircbuf(kbufsz)
	c.navail = thread.MkSema(0)
	return c
}

/// Putc is called by the machine layer when a key arrives. It runs
/// in interrupt context: it never blocks and wakes readers via the
/// interrupt-safe path. Characters past a full buffer are dropped.
func (c *Cons_t) Putc(ch uint8) {
	c.Lock()
	ok := c.kbuf.Put(ch)
	c.Unlock()
	if ok {
		c.navail.Up_intr()
	}
}

func (c *Cons_t) getc() uint8 {
	c.navail.Down()
	c.Lock()
	ch := c.kbuf.Get()
	c.Unlock()
	return ch
}

/// Read fills dst one keyboard character at a time, stopping at the
/// buffer size or at a NUL character.
func (c *Cons_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	did := 0
	for dst.Remain() > 0 {
		ch := c.getc()
		if ch == 0 {
			break
		}
		if _, err := dst.Uiowrite([]uint8{ch}); err != 0 {
			return did, err
		}
		did++
	}
	return did, 0
}

/// Write appends src to the console output.
func (c *Cons_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]uint8, src.Remain())
	did, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	c.Lock()
	c.out = append(c.out, buf[:did]...)
	c.Unlock()
	return did, 0
}

/// Output returns everything written to the console so far.
func (c *Cons_t) Output() []uint8 {
	c.Lock()
	defer c.Unlock()
	r := make([]uint8, len(c.out))
	copy(r, c.out)
	return r
}

/// Pread is not supported on the console.
func (c *Cons_t) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

/// Pwrite is not supported on the console.
func (c *Cons_t) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

/// Lseek fails; the console has no position.
func (c *Cons_t) Lseek(off, whence int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

/// Len fails; the console has no size.
func (c *Cons_t) Len() (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

/// Close drops one reference. The console itself outlives every
/// process.
func (c *Cons_t) Close() defs.Err_t {
	c.Lock()
	c.refs--
	c.Unlock()
	return 0
}

/// Reopen adds a reference for dup2 and fork.
func (c *Cons_t) Reopen() defs.Err_t {
	c.Lock()
	c.refs++
	c.Unlock()
	return 0
}

/// Isdir reports false; the console is a device.
func (c *Cons_t) Isdir() bool {
	return false
}

/// Readdir fails on a device.
func (c *Cons_t) Readdir() (string, bool) {
	return "", false
}

/// Inum returns the console device number.
func (c *Cons_t) Inum() int {
	return int(defs.Mkdev(defs.D_CONSOLE, 0))
}
