package vm

import "github.com/simons-pintos/pintos-kaist/src/mem"

// brings an anonymous page into bpg: from its swap slot if it was
// evicted, otherwise it stays zero-filled. must hold vmlock.
func anon_in(pg *Page_t, bpg *mem.Bytepg_t) bool {
	if pg.swapslot < 0 {
		return true
	}
	swap_read(pg.swapslot, bpg)
	swap_free(pg.swapslot)
	pg.swapslot = -1
	return true
}
