package vm

import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/mem"
import "github.com/simons-pintos/pintos-kaist/src/util"

// All simulated user loads and stores go through here; this is where
// the hardware would set the accessed and dirty bits, so we do.

/// Userdmap8 returns a slice over the user page at va, from va's
/// offset to the end of the page, faulting the page in as needed.
/// When k2u is true the memory is prepared for a kernel write.
func (spt *Spt_t) Userdmap8(va int, k2u bool) ([]uint8, defs.Err_t) {
	vmlock.Lock()
	defer vmlock.Unlock()
	return spt.userdmap8_inner(va, k2u)
}

// must hold vmlock
func (spt *Spt_t) userdmap8_inner(va int, k2u bool) ([]uint8, defs.Err_t) {
	if va < 0 || va >= mem.KERNBASE {
		return nil, -defs.EFAULT
	}
	pte := mem.Pmap_lookup(spt.Pmap, va)
	needfault := true
	if pte != nil && *pte&mem.PTE_P != 0 {
		if k2u {
			if *pte&mem.PTE_W != 0 {
				needfault = false
			}
		} else {
			needfault = false
		}
	}
	if needfault {
		if !spt.fault(va, k2u, spt.Ursp) {
			return nil, -defs.EFAULT
		}
		pte = mem.Pmap_lookup(spt.Pmap, va)
		// XXXPANIC
		if pte == nil || *pte&mem.PTE_P == 0 {
			panic("no")
		}
	}
	*pte |= mem.PTE_A
	if k2u {
		*pte |= mem.PTE_D
	}
	return mem.Physmem.Dmap8(*pte&mem.PTE_ADDR | mem.Pa_t(va)&mem.PGOFFSET), 0
}

/// Userreadn reads an n-byte little-endian value from user memory.
func (spt *Spt_t) Userreadn(va, n int) (int, defs.Err_t) {
	if n > 8 {
		panic("large n")
	}
	var ret int
	var src []uint8
	var err defs.Err_t
	for i := 0; i < n; i += len(src) {
		src, err = spt.Userdmap8(va+i, false)
		if err != 0 {
			return 0, err
		}
		l := util.Min(n-i, len(src))
		src = src[:l]
		v := util.Readn(src, l, 0)
		ret |= v << (8 * uint(i))
	}
	return ret, 0
}

/// Userwriten writes an n-byte value to user memory at va.
func (spt *Spt_t) Userwriten(va, n, val int) defs.Err_t {
	if n > 8 {
		panic("large n")
	}
	var dst []uint8
	for i := 0; i < n; i += len(dst) {
		v := val >> (8 * uint(i))
		t, err := spt.Userdmap8(va+i, true)
		if err != 0 {
			return err
		}
		l := util.Min(n-i, len(t))
		dst = t[:l]
		util.Writen(dst, l, 0, v)
	}
	return 0
}

/// Userstr copies a NUL terminated string from user space, up to
/// lenmax bytes.
func (spt *Spt_t) Userstr(uva int, lenmax int) (string, defs.Err_t) {
	if lenmax < 0 {
		return "", 0
	}
	i := 0
	var s []uint8
	for {
		str, err := spt.Userdmap8(uva+i, false)
		if err != 0 {
			return "", err
		}
		for j, c := range str {
			if c == 0 {
				s = append(s, str[:j]...)
				return string(s), 0
			}
		}
		s = append(s, str...)
		i += len(str)
		if len(s) >= lenmax {
			return "", -defs.ENAMETOOLONG
		}
	}
}

/// K2user copies src into user memory starting at uva.
func (spt *Spt_t) K2user(src []uint8, uva int) defs.Err_t {
	cnt := 0
	l := len(src)
	for cnt != l {
		dst, err := spt.Userdmap8(uva+cnt, true)
		if err != 0 {
			return err
		}
		ub := util.Min(len(src), len(dst))
		copy(dst, src)
		src = src[ub:]
		cnt += ub
	}
	return 0
}

/// User2k copies len(dst) bytes from user memory at uva into dst.
func (spt *Spt_t) User2k(dst []uint8, uva int) defs.Err_t {
	cnt := 0
	for len(dst) != 0 {
		src, err := spt.Userdmap8(uva+cnt, false)
		if err != 0 {
			return err
		}
		did := copy(dst, src)
		dst = dst[did:]
		cnt += did
	}
	return 0
}

/// Userbuf_t assists reading and writing a range of user memory.
type Userbuf_t struct {
	userva int
	len    int
	// 0 <= off <= len
	off int
	spt *Spt_t
}

/// Mkuserbuf returns a Userbuf_t over [userva, userva+len).
func (spt *Spt_t) Mkuserbuf(userva, len int) *Userbuf_t {
	ret := &Userbuf_t{}
	ret.ub_init(spt, userva, len)
	return ret
}

func (ub *Userbuf_t) ub_init(spt *Spt_t, uva, len int) {
	if len < 0 {
		panic("negative length")
	}
	ub.userva = uva
	ub.len = len
	ub.off = 0
	ub.spt = spt
}

/// Remain returns the number of unread bytes left in the buffer.
func (ub *Userbuf_t) Remain() int {
	return ub.len - ub.off
}

/// Totalsz reports the total size of the buffer in bytes.
func (ub *Userbuf_t) Totalsz() int {
	return ub.len
}

// copies the min of either the provided buffer or ub.len. returns
// the number of bytes copied and an error. on error the state allows
// the operation to be restarted.
func (ub *Userbuf_t) _tx(buf []uint8, write bool) (int, defs.Err_t) {
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		va := ub.userva + ub.off
		ubuf, err := ub.spt.Userdmap8(va, write)
		if err != 0 {
			return ret, err
		}
		end := ub.off + len(ubuf)
		if end > ub.len {
			left := ub.len - ub.off
			ubuf = ubuf[:left]
		}
		var c int
		if write {
			c = copy(ubuf, buf)
		} else {
			c = copy(buf, ubuf)
		}
		buf = buf[c:]
		ub.off += c
		ret += c
	}
	return ret, 0
}

/// Uioread copies data from user memory into dst.
func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return ub._tx(dst, false)
}

/// Uiowrite copies src into user memory.
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return ub._tx(src, true)
}

/// Fakeubuf_t implements the same interface as Userbuf_t but
/// operates on a kernel buffer. It is used when the kernel needs to
/// treat internal memory like user memory.
type Fakeubuf_t struct {
	fbuf []uint8
	off  int
	len  int
}

/// Fake_init sets up the fake buffer with the provided slice.
func (fb *Fakeubuf_t) Fake_init(buf []uint8) {
	fb.fbuf = buf
	fb.len = len(fb.fbuf)
}

/// Remain returns the number of bytes left in the fake buffer.
func (fb *Fakeubuf_t) Remain() int {
	return len(fb.fbuf)
}

/// Totalsz returns the total length of the fake buffer.
func (fb *Fakeubuf_t) Totalsz() int {
	return fb.len
}

func (fb *Fakeubuf_t) _tx(buf []uint8, tofbuf bool) (int, defs.Err_t) {
	var c int
	if tofbuf {
		c = copy(fb.fbuf, buf)
	} else {
		c = copy(buf, fb.fbuf)
	}
	fb.fbuf = fb.fbuf[c:]
	return c, 0
}

/// Uioread copies from the fake buffer into dst.
func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return fb._tx(dst, false)
}

/// Uiowrite copies src into the fake buffer.
func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return fb._tx(src, true)
}
