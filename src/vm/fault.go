package vm

import "github.com/simons-pintos/pintos-kaist/src/mem"
import "github.com/simons-pintos/pintos-kaist/src/util"

/// Fault resolves a user page fault at va. write is the access kind.
/// The stack pointer saved at kernel entry bounds stack growth. It
/// returns false when the access is illegal and the process must die.
func (spt *Spt_t) Fault(va int, write bool) bool {
	vmlock.Lock()
	defer vmlock.Unlock()
	return spt.fault(va, write, spt.Ursp)
}

// must hold vmlock
func (spt *Spt_t) fault(va int, write bool, rsp int) bool {
	if va < 0 || va >= mem.KERNBASE {
		return false
	}
	pg := spt.lookup(va)
	if pg == nil {
		// stack growth: within the red zone below rsp, under the
		// stack top, and no more than 1 MiB deep
		if va >= rsp-8 && va < mem.USER_STACK && va >= mem.STACK_LIMIT {
			if !spt.alloc_with_initializer(VM_ANON, util.Rounddown(va, mem.PGSIZE),
				true, nil, nil) {
				return false
			}
			pg = spt.lookup(va)
		} else {
			return false
		}
	}
	if write && !pg.Writable {
		return false
	}
	if pg.frame != nil {
		if !write {
			// present and readable; nothing to do
			return true
		}
		return spt.cow_break(pg)
	}
	return spt.swapin(pg)
}

// brings pg into a fresh frame and maps it. must hold vmlock.
func (spt *Spt_t) swapin(pg *Page_t) bool {
	fr := frame_alloc(pg)
	if fr == nil {
		return false
	}
	bpg := mem.Pg2bytes(mem.Physmem.Dmap(fr.Pa))
	var ok bool
	switch pg.kind {
	case VM_UNINIT:
		ok = uninit_in(pg, bpg)
	case VM_ANON:
		ok = anon_in(pg, bpg)
	case VM_FILE:
		ok = file_in(pg, bpg)
	default:
		panic("wut")
	}
	if !ok {
		frame_discard(fr)
		return false
	}
	if !page_install(pg, false) {
		frame_discard(fr)
		return false
	}
	return true
}

// write fault on a present read-only mapping: break the
// copy-on-write share. must hold vmlock.
func (spt *Spt_t) cow_break(pg *Page_t) bool {
	old := pg.frame
	pte := mem.Pmap_lookup(spt.Pmap, pg.Va)
	// XXXPANIC
	if pte == nil || *pte&mem.PTE_P == 0 {
		panic("no")
	}
	if old.shares == 0 {
		// nobody else left; just re-enable the write bit
		*pte |= mem.PTE_W
		return true
	}
	_, pa, ok := mem.Physmem.Refpg_new_nozero()
	if !ok {
		if !evict_one() {
			return false
		}
		_, pa, ok = mem.Physmem.Refpg_new_nozero()
		if !ok {
			return false
		}
	}
	if pg.frame == nil {
		// our own eviction took the shared frame; the contents are
		// in swap now, so fault it in the ordinary way
		mem.Physmem.Freepg(pa)
		return spt.swapin(pg)
	}
	*mem.Physmem.Dmap(pa) = *mem.Physmem.Dmap(old.Pa)
	frame_detach(pg)
	mem.Physmem.Refup(pa)
	fr := &Frame_t{}
	fr.Pa = pa
	fr.page = pg
	fr.sharers.Init()
	fr.elem.Value = fr
	ftbl.frames.PushBack(&fr.elem)
	pg.frame = fr
	return page_install(pg, false)
}
