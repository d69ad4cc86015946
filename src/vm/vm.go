// Package vm implements the supplemental page table, the three page
// kinds, the frame table with clock eviction, swap, and the page
// fault handler. A page begins life Uninit and converts in place to
// Anon or FileBacked on first touch.
package vm

import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/fdops"
import "github.com/simons-pintos/pintos-kaist/src/hashtable"
import "github.com/simons-pintos/pintos-kaist/src/klist"
import "github.com/simons-pintos/pintos-kaist/src/mem"
import "github.com/simons-pintos/pintos-kaist/src/util"

type ptype_t int

/// Page kinds.
const (
	VM_UNINIT ptype_t = iota
	VM_ANON
	VM_FILE
)

/// Initf_t populates a freshly framed page's contents. It runs after
/// the kind-specific initializer has converted the page in place.
type Initf_t func(pg *Page_t, bpg *mem.Bytepg_t, aux interface{}) bool

/// Page_t is the metadata for one user virtual page.
type Page_t struct {
	Va       int
	Writable bool
	kind     ptype_t
	spt      *Spt_t
	frame    *Frame_t

	// uninit payload: the kind to become, the loader, and its
	// argument
	initkind ptype_t
	init     Initf_t
	aux      interface{}

	// anon payload: swap slot when evicted
	swapslot int

	// file payload: backing object, offset, and valid bytes
	fops   fdops.Fdops_i
	foff   int
	fbytes int

	shelem klist.Elem_t // frame sharer list
	melem  klist.Elem_t // mmap region page list
}

/// Kind returns the page's current kind.
func (pg *Page_t) Kind() ptype_t {
	return pg.kind
}

/// Resident reports whether the page currently has a frame.
func (pg *Page_t) Resident() bool {
	return pg.frame != nil
}

/// Frame returns the frame holding the page, or nil.
func (pg *Page_t) Frame() *Frame_t {
	return pg.frame
}

/// Mmapreg_t records one mmap'ed region: its base, the reopened
/// backing file, and the pages that materialize it.
type Mmapreg_t struct {
	Base    int
	Len     int
	fops    fdops.Fdops_i
	pages   klist.List_t
	regelem klist.Elem_t
}

/// Spt_t is the per-process supplemental page table: page-aligned
/// virtual address to Page_t. Keys are unique per process.
type Spt_t struct {
	ht     *hashtable.Hashtable_t
	Pmap   *mem.Pmap_t
	P_pmap mem.Pa_t
	mmaps  klist.List_t
	// user stack pointer saved at kernel entry, for growth checks
	// reached from kernel copies
	Ursp int
}

/// MkSpt builds an empty table over the given page-map root.
func MkSpt(pmap *mem.Pmap_t, p_pmap mem.Pa_t) *Spt_t {
	spt := &Spt_t{}
	spt.ht = hashtable.MkHash(512)
	spt.Pmap = pmap
	spt.P_pmap = p_pmap
	spt.mmaps.Init()
	spt.Ursp = mem.USER_STACK
	return spt
}

func pgkey(va int) uintptr {
	return uintptr(util.Rounddown(va, mem.PGSIZE))
}

// deduplicating insert. must hold vmlock.
func (spt *Spt_t) insert(pg *Page_t) bool {
	_, ok := spt.ht.Set(pgkey(pg.Va), pg)
	return ok
}

// rounds va down before probing. must hold vmlock.
func (spt *Spt_t) lookup(va int) *Page_t {
	v, ok := spt.ht.Get(pgkey(va))
	if !ok {
		return nil
	}
	return v.(*Page_t)
}

/// Lookup returns the page record covering va or nil.
func (spt *Spt_t) Lookup(va int) *Page_t {
	vmlock.Lock()
	defer vmlock.Unlock()
	return spt.lookup(va)
}

/// Alloc_with_initializer records an Uninit page that will become
/// kind on first fault, populated by init(aux). It fails on a
/// duplicate mapping.
func (spt *Spt_t) Alloc_with_initializer(kind ptype_t, va int, writable bool,
	init Initf_t, aux interface{}) bool {
	if kind == VM_UNINIT {
		panic("wut")
	}
	vmlock.Lock()
	defer vmlock.Unlock()
	return spt.alloc_with_initializer(kind, va, writable, init, aux)
}

// must hold vmlock
func (spt *Spt_t) alloc_with_initializer(kind ptype_t, va int, writable bool,
	init Initf_t, aux interface{}) bool {
	pg := &Page_t{}
	pg.Va = util.Rounddown(va, mem.PGSIZE)
	pg.Writable = writable
	pg.kind = VM_UNINIT
	pg.initkind = kind
	pg.init = init
	pg.aux = aux
	pg.swapslot = -1
	pg.spt = spt
	pg.shelem.Value = pg
	pg.melem.Value = pg
	return spt.insert(pg)
}

/// Alloc_anon records a zero-filled anonymous Uninit page at va.
func (spt *Spt_t) Alloc_anon(va int, writable bool) bool {
	return spt.Alloc_with_initializer(VM_ANON, va, writable, nil, nil)
}

/// Prefault faults in the whole user range for the given access so a
/// later kernel copy cannot nest a page fault inside a filesystem
/// operation.
func (spt *Spt_t) Prefault(va, n int, write bool) defs.Err_t {
	if n <= 0 {
		return 0
	}
	vmlock.Lock()
	defer vmlock.Unlock()
	first := util.Rounddown(va, mem.PGSIZE)
	last := util.Rounddown(va+n-1, mem.PGSIZE)
	for a := first; a <= last; a += mem.PGSIZE {
		if _, err := spt.userdmap8_inner(a, write); err != 0 {
			return err
		}
	}
	return 0
}

/// Claim faults the page covering va in immediately. It is used when
/// the kernel must populate user memory before the process runs, like
/// exec's argument stacking.
func (spt *Spt_t) Claim(va int) bool {
	vmlock.Lock()
	defer vmlock.Unlock()
	pg := spt.lookup(va)
	if pg == nil {
		return false
	}
	if pg.frame != nil {
		return true
	}
	return spt.swapin(pg)
}

/// Copy clones src into dst for fork. Uninit pages are re-recorded
/// with the same initializer; resident pages share their frame
/// copy-on-write; a swapped-out anonymous page is brought back in
/// first and then shared the same way; a non-resident file-backed page
/// is cloned by metadata alone.
func (src *Spt_t) Copy(dst *Spt_t) bool {
	vmlock.Lock()
	defer vmlock.Unlock()
	ok := true
	src.ht.Iter(func(k, v interface{}) bool {
		pg := v.(*Page_t)
		if !src.copy1(dst, pg) {
			ok = false
			return true
		}
		return false
	})
	if !ok {
		return false
	}
	// clone the mmap region records; the backing file gains a
	// reference per region
	for e := src.mmaps.Front(); e != nil; e = src.mmaps.Next(e) {
		reg := e.Value.(*Mmapreg_t)
		nreg := &Mmapreg_t{}
		nreg.Base = reg.Base
		nreg.Len = reg.Len
		nreg.fops = reg.fops
		if reg.fops.Reopen() != 0 {
			return false
		}
		nreg.pages.Init()
		nreg.regelem.Value = nreg
		for pe := reg.pages.Front(); pe != nil; pe = reg.pages.Next(pe) {
			spg := pe.Value.(*Page_t)
			dpg := dst.lookup(spg.Va)
			// XXXPANIC
			if dpg == nil {
				panic("no")
			}
			nreg.pages.PushBack(&dpg.melem)
		}
		dst.mmaps.PushBack(&nreg.regelem)
	}
	return true
}

// must hold vmlock
func (src *Spt_t) copy1(dst *Spt_t, pg *Page_t) bool {
	npg := &Page_t{}
	npg.Va = pg.Va
	npg.Writable = pg.Writable
	npg.spt = dst
	npg.swapslot = -1
	npg.shelem.Value = npg
	npg.melem.Value = npg

	switch pg.kind {
	case VM_UNINIT:
		// metadata only, never faulted in; the aux travels with it
		npg.kind = VM_UNINIT
		npg.initkind = pg.initkind
		npg.init = pg.init
		npg.aux = pg.aux
		return dst.insert(npg)
	case VM_ANON:
		npg.kind = VM_ANON
		if pg.frame == nil {
			// swapped out: bring it back so both sides share one
			// frame again
			if !src.swapin(pg) {
				return false
			}
		}
	case VM_FILE:
		npg.kind = VM_FILE
		npg.fops = pg.fops
		npg.foff = pg.foff
		npg.fbytes = pg.fbytes
		if pg.frame == nil {
			// clean on disk; each side refaults independently
			return dst.insert(npg)
		}
	}
	if !dst.insert(npg) {
		return false
	}
	return share_cow(pg, npg)
}

/// Mmap maps length bytes of fops at addr, each page loading lazily
/// from the file. fops must already be an independent reopened
/// cursor; the region owns it from here.
func (spt *Spt_t) Mmap(addr, length int, writable bool, fops fdops.Fdops_i,
	foff int) (int, bool) {
	if addr == 0 || addr%mem.PGSIZE != 0 || length <= 0 || foff%mem.PGSIZE != 0 {
		return 0, false
	}
	if addr+length > mem.KERNBASE || addr+length < 0 {
		return 0, false
	}
	vmlock.Lock()
	defer vmlock.Unlock()
	npages := util.Roundup(length, mem.PGSIZE) / mem.PGSIZE
	// refuse to overlap existing mappings
	for i := 0; i < npages; i++ {
		if spt.lookup(addr+i*mem.PGSIZE) != nil {
			return 0, false
		}
	}
	reg := &Mmapreg_t{}
	reg.Base = addr
	reg.Len = length
	reg.fops = fops
	reg.pages.Init()
	reg.regelem.Value = reg

	// bytes past the end of the file are zero and are never written
	// back
	flen, err := fops.Len()
	if err != 0 {
		return 0, false
	}
	left := util.Min(length, util.Max(0, flen-foff))
	for i := 0; i < npages; i++ {
		va := addr + i*mem.PGSIZE
		fbytes := util.Min(left, mem.PGSIZE)
		aux := &Fileaux_t{Fops: fops, Off: foff + i*mem.PGSIZE, Bytes: fbytes}
		if !spt.alloc_with_initializer(VM_FILE, va, writable, file_loader, aux) {
			panic("no")
		}
		reg.pages.PushBack(&spt.lookup(va).melem)
		left -= fbytes
	}
	spt.mmaps.PushBack(&reg.regelem)
	return addr, true
}

/// Munmap tears down the region based at addr: dirty resident pages
/// are written back, mappings are cleared, and the reopened file is
/// closed. It fails when addr is not a region base.
func (spt *Spt_t) Munmap(addr int) bool {
	vmlock.Lock()
	defer vmlock.Unlock()
	var reg *Mmapreg_t
	for e := spt.mmaps.Front(); e != nil; e = spt.mmaps.Next(e) {
		r := e.Value.(*Mmapreg_t)
		if r.Base == addr {
			reg = r
			break
		}
	}
	if reg == nil {
		return false
	}
	spt.unmapreg(reg)
	return true
}

// must hold vmlock
func (spt *Spt_t) unmapreg(reg *Mmapreg_t) {
	for e := reg.pages.Front(); e != nil; {
		pg := e.Value.(*Page_t)
		e = reg.pages.Remove(&pg.melem)
		file_writeback(pg)
		spt.destroy(pg)
	}
	reg.fops.Close()
	spt.mmaps.Remove(&reg.regelem)
}

/// Kill releases the whole address space: every region is unmapped
/// with write-back, then every remaining page is destroyed, freeing
/// its frame iff it is the sole user.
func (spt *Spt_t) Kill() {
	vmlock.Lock()
	defer vmlock.Unlock()
	for e := spt.mmaps.Front(); e != nil; e = spt.mmaps.Front() {
		spt.unmapreg(e.Value.(*Mmapreg_t))
	}
	for _, pair := range spt.ht.Elems() {
		spt.destroy(pair.Value.(*Page_t))
	}
}

// removes pg from the table and releases whatever it holds. must hold
// vmlock.
func (spt *Spt_t) destroy(pg *Page_t) {
	if pg.frame != nil {
		frame_detach(pg)
	}
	if pg.kind == VM_ANON && pg.swapslot >= 0 {
		swap_free(pg.swapslot)
		pg.swapslot = -1
	}
	spt.ht.Del(pgkey(pg.Va))
}
