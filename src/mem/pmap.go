package mem

import "github.com/simons-pintos/pintos-kaist/src/defs"

// The four-level page table. The hardware contract is small: map a
// virtual address to a physical address with permission flags, query
// the accessed/dirty bits, and clear a mapping. Table pages come from
// the page pool like any other page.

func pmlx(va int, lev uint) int {
	return (va >> (12 + 9*lev)) & 0x1ff
}

/// Pmap_walk returns the PTE pointer for va, allocating intermediate
/// table pages as needed. It fails only when the pool is exhausted.
func Pmap_walk(pm *Pmap_t, va int) (*Pa_t, defs.Err_t) {
	for lev := uint(3); lev > 0; lev-- {
		ent := &pm[pmlx(va, lev)]
		if *ent&PTE_P == 0 {
			_, p_npm, ok := Physmem.Pmap_new()
			if !ok {
				return nil, -defs.ENOMEM
			}
			Physmem.Refup(p_npm)
			*ent = p_npm | PTE_P | PTE_W | PTE_U
		}
		pm = pg2pmap(Physmem.Dmap(*ent & PTE_ADDR))
	}
	return &pm[pmlx(va, 0)], 0
}

/// Pmap_lookup returns the PTE pointer for va or nil when no leaf
/// table exists on the path.
func Pmap_lookup(pm *Pmap_t, va int) *Pa_t {
	for lev := uint(3); lev > 0; lev-- {
		ent := pm[pmlx(va, lev)]
		if ent&PTE_P == 0 {
			return nil
		}
		pm = pg2pmap(Physmem.Dmap(ent & PTE_ADDR))
	}
	return &pm[pmlx(va, 0)]
}

func pmap_free1(pm *Pmap_t, lev uint) {
	for i := range pm {
		ent := pm[i]
		if ent&PTE_P == 0 {
			continue
		}
		p := ent & PTE_ADDR
		if lev > 0 {
			pmap_free1(pg2pmap(Physmem.Dmap(p)), lev-1)
		}
		Physmem.Refdown(p)
		pm[i] = 0
	}
}

/// Pmap_free releases every page still mapped under pm, all table
/// pages, and finally the root itself.
func Pmap_free(pm *Pmap_t, p_pmap Pa_t) {
	pmap_free1(pm, 3)
	Physmem.Refdown(p_pmap)
}
