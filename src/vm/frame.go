package vm

import "sync"

import "github.com/simons-pintos/pintos-kaist/src/klist"
import "github.com/simons-pintos/pintos-kaist/src/mem"

// vmlock serializes all frame table, SPT, and swap state. It stands
// in for the interrupt-disabled critical sections of the hardware
// kernel: short, never held across a thread suspension.
var vmlock sync.Mutex

/// Frame_t is one physical page of user data. page is the owning
/// Page_t; sharers holds the additional pages mapping this frame
/// copy-on-write, and shares counts them.
///
/// Reference discipline: the frame itself holds one reference on the
/// physical page; each sharer mapping holds one more. The page
/// returns to the pool when the frame and every sharer are gone.
type Frame_t struct {
	Pa      mem.Pa_t
	page    *Page_t
	shares  int
	sharers klist.List_t
	elem    klist.Elem_t
}

/// Shares returns the number of additional pages sharing the frame.
func (fr *Frame_t) Shares() int {
	return fr.shares
}

type ftable_t struct {
	frames klist.List_t
	clock  *klist.Elem_t
}

var ftbl = &ftable_t{}

/// Vm_init resets the frame table. Swap_init attaches the swap disk
/// separately.
func Vm_init() {
	ftbl.frames.Init()
	ftbl.clock = nil
	swap.disk = nil
	swap.slots = nil
}

// allocates a physical page for pg, evicting if the pool is dry. the
// new frame is owned by pg but not yet mapped. must hold vmlock.
func frame_alloc(pg *Page_t) *Frame_t {
	_, pa, ok := mem.Physmem.Refpg_new()
	if !ok {
		if !evict_one() {
			return nil
		}
		_, pa, ok = mem.Physmem.Refpg_new()
		if !ok {
			return nil
		}
	}
	mem.Physmem.Refup(pa)
	fr := &Frame_t{}
	fr.Pa = pa
	fr.page = pg
	fr.sharers.Init()
	fr.elem.Value = fr
	ftbl.frames.PushBack(&fr.elem)
	pg.frame = fr
	return fr
}

// drops a frame that never got mapped. must hold vmlock.
func frame_discard(fr *Frame_t) {
	fr.page.frame = nil
	fr.page = nil
	frame_unlink(fr)
	mem.Physmem.Refdown(fr.Pa)
}

// advances the clock hand one frame. must hold vmlock.
func clock_next() *klist.Elem_t {
	if ftbl.frames.Empty() {
		return nil
	}
	if ftbl.clock == nil {
		ftbl.clock = ftbl.frames.Front()
	} else {
		ftbl.clock = ftbl.frames.Next(ftbl.clock)
		if ftbl.clock == nil {
			ftbl.clock = ftbl.frames.Front()
		}
	}
	return ftbl.clock
}

// second-chance scan: a frame whose owner mapping has the accessed
// bit set gets the bit cleared and survives; the first frame found
// with the bit clear is evicted. must hold vmlock.
func evict_one() bool {
	limit := 2*ftbl.frames.Len() + 1
	for i := 0; i < limit; i++ {
		e := clock_next()
		if e == nil {
			return false
		}
		fr := e.Value.(*Frame_t)
		pte := mem.Pmap_lookup(fr.page.spt.Pmap, fr.page.Va)
		if pte == nil || *pte&mem.PTE_P == 0 {
			// a frame mid-installation by the current operation;
			// leave it alone
			continue
		}
		if *pte&mem.PTE_A != 0 {
			*pte &^= mem.PTE_A
			continue
		}
		if evict(fr) {
			return true
		}
	}
	return false
}

// evicts fr: the owner (and each sharer, which holds an identical
// copy) persists its contents, then every mapping is cleared and the
// frame returns to the pool. must hold vmlock.
func evict(fr *Frame_t) bool {
	pg := fr.page
	switch pg.kind {
	case VM_ANON:
		// every page sharing the frame needs its own slot; if any
		// allocation fails the eviction is abandoned
		pages := []*Page_t{pg}
		for e := fr.sharers.Front(); e != nil; e = fr.sharers.Next(e) {
			pages = append(pages, e.Value.(*Page_t))
		}
		slots := make([]int, 0, len(pages))
		for range pages {
			slot, ok := swap_alloc()
			if !ok {
				for _, s := range slots {
					swap_free(s)
				}
				return false
			}
			slots = append(slots, slot)
		}
		bpg := mem.Pg2bytes(mem.Physmem.Dmap(fr.Pa))
		for i, p := range pages {
			swap_write(slots[i], bpg)
			p.swapslot = slots[i]
		}
	case VM_FILE:
		// sharers are copy-on-write and therefore clean; only the
		// owner's mapping can be dirty
		file_writeback(pg)
	default:
		panic("wut")
	}
	frame_release(fr)
	return true
}

// clears the mapping of every page on fr and frees the frame record
// and the physical page. must hold vmlock.
func frame_release(fr *Frame_t) {
	for e := fr.sharers.Front(); e != nil; {
		p := e.Value.(*Page_t)
		e = fr.sharers.Remove(&p.shelem)
		if pte := mem.Pmap_lookup(p.spt.Pmap, p.Va); pte != nil && *pte&mem.PTE_P != 0 {
			*pte = 0
			mem.Physmem.Refdown(fr.Pa)
		}
		p.frame = nil
	}
	fr.shares = 0
	own := fr.page
	if pte := mem.Pmap_lookup(own.spt.Pmap, own.Va); pte != nil && *pte&mem.PTE_P != 0 {
		*pte = 0
	}
	own.frame = nil
	fr.page = nil
	frame_unlink(fr)
	mem.Physmem.Refdown(fr.Pa)
}

// removes fr from the frame table, nudging the clock hand off it.
// must hold vmlock.
func frame_unlink(fr *Frame_t) {
	if ftbl.clock == &fr.elem {
		ftbl.clock = ftbl.frames.Next(ftbl.clock)
	}
	ftbl.frames.Remove(&fr.elem)
}

// maps pg's frame into its pmap. ro forces a read-only mapping for
// copy-on-write sharing, and only such sharer mappings add a
// reference. must hold vmlock.
func page_install(pg *Page_t, ro bool) bool {
	fr := pg.frame
	pte, err := mem.Pmap_walk(pg.spt.Pmap, pg.Va)
	if err != 0 {
		// table pages come from the same pool; one eviction may
		// free enough
		if !evict_one() {
			return false
		}
		pte, err = mem.Pmap_walk(pg.spt.Pmap, pg.Va)
		if err != 0 {
			return false
		}
	}
	// XXXPANIC
	if *pte&mem.PTE_P != 0 {
		panic("pte not empty")
	}
	perms := mem.PTE_P | mem.PTE_U | mem.PTE_A
	if pg.Writable && !ro {
		perms |= mem.PTE_W
	}
	*pte = fr.Pa | perms
	if ro {
		mem.Physmem.Refup(fr.Pa)
	}
	return true
}

// makes npg a copy-on-write sharer of pg's frame: both mappings are
// rewritten read-only and npg joins the sharer list. must hold
// vmlock.
func share_cow(pg, npg *Page_t) bool {
	fr := pg.frame
	// XXXPANIC
	if fr == nil {
		panic("no")
	}
	pte := mem.Pmap_lookup(pg.spt.Pmap, pg.Va)
	if pte == nil || *pte&mem.PTE_P == 0 {
		panic("owner not mapped")
	}
	*pte &^= mem.PTE_W
	npg.frame = fr
	if !page_install(npg, true) {
		npg.frame = nil
		if pg.Writable {
			*pte |= mem.PTE_W
		}
		return false
	}
	fr.shares++
	fr.sharers.PushBack(&npg.shelem)
	return true
}

// detaches pg from its frame; the last page off the frame frees the
// physical page. must hold vmlock.
func frame_detach(pg *Page_t) {
	fr := pg.frame
	pg.frame = nil
	if fr.page == pg {
		if pte := mem.Pmap_lookup(pg.spt.Pmap, pg.Va); pte != nil && *pte&mem.PTE_P != 0 {
			*pte = 0
		}
		if fr.shares == 0 {
			fr.page = nil
			frame_unlink(fr)
			mem.Physmem.Refdown(fr.Pa)
			return
		}
		// promote the first sharer to owner; its mapping reference
		// becomes the frame's own
		e := fr.sharers.PopFront()
		fr.shares--
		fr.page = e.Value.(*Page_t)
		mem.Physmem.Refdown(fr.Pa)
	} else {
		fr.sharers.Remove(&pg.shelem)
		fr.shares--
		if pte := mem.Pmap_lookup(pg.spt.Pmap, pg.Va); pte != nil && *pte&mem.PTE_P != 0 {
			*pte = 0
		}
		mem.Physmem.Refdown(fr.Pa)
	}
	if fr.shares == 0 {
		// sole remaining user gets its write permission back
		own := fr.page
		opte := mem.Pmap_lookup(own.spt.Pmap, own.Va)
		if own.Writable && opte != nil && *opte&mem.PTE_P != 0 {
			*opte |= mem.PTE_W
		}
	}
}
