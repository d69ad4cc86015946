// Package ukern boots the whole kernel in user space: the page
// pool, the scheduler, the VM, a disk-backed filesystem, and the
// console, wired together the way the boot path would on hardware.
// Tests and tools drive it directly.
package ukern

import "time"

import "github.com/simons-pintos/pintos-kaist/src/bdev"
import "github.com/simons-pintos/pintos-kaist/src/console"
import "github.com/simons-pintos/pintos-kaist/src/fs"
import "github.com/simons-pintos/pintos-kaist/src/mem"
import "github.com/simons-pintos/pintos-kaist/src/proc"
import "github.com/simons-pintos/pintos-kaist/src/thread"
import "github.com/simons-pintos/pintos-kaist/src/util"
import "github.com/simons-pintos/pintos-kaist/src/vm"

/// Bootopts_t configures the hosted machine.
type Bootopts_t struct {
	Pool     int         /// user pool pages
	Swap     int         /// swap slots
	Sectors  int         /// filesystem disk sectors when Disk is nil
	Disk     bdev.Disk_i /// existing image to mount
	Mlfqs    bool        /// scheduler policy
	Timer    bool        /// drive ticks from wall-clock time
	TimerHz  int         /// tick rate when Timer is set
}

/// Machine_t is one booted instance.
type Machine_t struct {
	K     *proc.Kernel_t
	Cons  *console.Cons_t
	Fs    *fs.Fs_t
	Main  *thread.Thread_t
	timer chan struct{}
}

/// Boot initializes every subsystem and turns the calling goroutine
/// into the initial kernel thread.
func Boot(opts Bootopts_t) *Machine_t {
	if opts.Pool == 0 {
		opts.Pool = 512
	}
	if opts.Swap == 0 {
		opts.Swap = 256
	}
	if opts.Sectors == 0 {
		opts.Sectors = 4096
	}
	if opts.TimerHz == 0 {
		opts.TimerHz = thread.TIMER_FREQ
	}
	mem.Physmem = &mem.Physmem_t{}
	mem.Phys_init(opts.Pool)
	vm.Vm_init()
	vm.Swap_init(bdev.MkMemdisk(opts.Swap * vm.SECTORS_PER_PAGE))

	m := &Machine_t{}
	m.Main = thread.Init(opts.Mlfqs)
	disk := opts.Disk
	if disk == nil {
		disk = bdev.MkMemdisk(opts.Sectors)
	}
	m.Fs = fs.StartFS(disk)
	m.Cons = console.MkCons()
	m.K = proc.MkKernel(m.Fs, m.Cons)

	if opts.Timer {
		m.timer = make(chan struct{})
		go func() {
			tick := time.NewTicker(time.Second / time.Duration(opts.TimerHz))
			defer tick.Stop()
			for {
				select {
				case <-m.timer:
					return
				case <-tick.C:
					thread.Tick()
				}
			}
		}()
	}
	return m
}

/// Shutdown stops the timer.
func (m *Machine_t) Shutdown() {
	if m.timer != nil {
		close(m.timer)
	}
}

// ELF64 emission offsets; the single PT_LOAD's bytes sit at a
// page-aligned offset so segment skew stays zero.
const elfDataOff = 4096

/// Mkelf builds a minimal amd64 ELF executable: one PT_LOAD segment
/// holding data at vaddr, zero-extended to memsz.
func Mkelf(vaddr int, data []uint8, memsz int, writable bool) []uint8 {
	if memsz < len(data) {
		memsz = len(data)
	}
	img := make([]uint8, elfDataOff+len(data))
	img[0] = 0x7f
	img[1] = 'E'
	img[2] = 'L'
	img[3] = 'F'
	img[4] = 2 // 64-bit
	img[5] = 1 // little endian
	img[6] = 1
	util.Writen(img, 2, 16, 2)  // ET_EXEC
	util.Writen(img, 2, 18, 62) // EM_X86_64
	util.Writen(img, 4, 20, 1)
	util.Writen(img, 8, 24, vaddr) // entry
	util.Writen(img, 8, 32, 64)    // phoff
	util.Writen(img, 2, 52, 64)    // ehsize
	util.Writen(img, 2, 54, 56)    // phentsize
	util.Writen(img, 2, 56, 1)     // phnum

	ph := 64
	util.Writen(img, 4, ph+0, 1) // PT_LOAD
	flags := 0x4 | 0x1
	if writable {
		flags |= 0x2
	}
	util.Writen(img, 4, ph+4, flags)
	util.Writen(img, 8, ph+8, elfDataOff)
	util.Writen(img, 8, ph+16, vaddr)
	util.Writen(img, 8, ph+24, vaddr)
	util.Writen(img, 8, ph+32, len(data))
	util.Writen(img, 8, ph+40, memsz)
	util.Writen(img, 8, ph+48, mem.PGSIZE)
	copy(img[elfDataOff:], data)
	return img
}
