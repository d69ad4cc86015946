// Package fdops defines the interfaces between file descriptors and
// the objects behind them. Keeping these here breaks the dependency
// cycle between the VM, FD, and filesystem layers.
package fdops

import "github.com/simons-pintos/pintos-kaist/src/defs"

/// Userio_i moves bytes between kernel buffers and a source or sink
/// that may live in user memory.
type Userio_i interface {
	/// Uioread copies from the buffer into dst and returns the count.
	Uioread(dst []uint8) (int, defs.Err_t)
	/// Uiowrite copies src into the buffer and returns the count.
	Uiowrite(src []uint8) (int, defs.Err_t)
	/// Remain returns the bytes left in the buffer.
	Remain() int
	/// Totalsz returns the full size of the buffer.
	Totalsz() int
}

/// Fdops_i is the set of operations behind an open file descriptor.
/// fops is always used via a reference, never a value.
type Fdops_i interface {
	Read(dst Userio_i) (int, defs.Err_t)
	Write(src Userio_i) (int, defs.Err_t)
	Pread(dst Userio_i, off int) (int, defs.Err_t)
	Pwrite(src Userio_i, off int) (int, defs.Err_t)
	Lseek(off int, whence int) (int, defs.Err_t)
	Len() (int, defs.Err_t)
	Close() defs.Err_t
	/// Reopen adds a reference to the underlying object; Close drops
	/// one.
	Reopen() defs.Err_t
	Isdir() bool
	/// Readdir returns the next directory entry name, skipping "."
	/// and "..", or false at the end. Non-directories fail.
	Readdir() (string, bool)
	Inum() int
}
