package vm

import "github.com/simons-pintos/pintos-kaist/src/mem"

// the standard loader for file-backed pages: read the declared length
// from the backing file at the page's offset; the rest of the page is
// already zero.
func file_loader(pg *Page_t, bpg *mem.Bytepg_t, aux interface{}) bool {
	return file_in(pg, bpg)
}

// must hold vmlock
func file_in(pg *Page_t, bpg *mem.Bytepg_t) bool {
	if pg.fbytes == 0 {
		return true
	}
	if pg.fbytes < 0 || pg.fbytes > mem.PGSIZE {
		panic("bad file page length")
	}
	ub := &Fakeubuf_t{}
	ub.Fake_init(bpg[:pg.fbytes])
	n, err := pg.fops.Pread(ub, pg.foff)
	if err != 0 {
		return false
	}
	// a short read leaves the tail zero, matching a file that ends
	// inside the page
	for i := n; i < pg.fbytes; i++ {
		bpg[i] = 0
	}
	return true
}

// writes a resident dirty page back to its file and clears the dirty
// bit. zero-byte tails of the region are never written. must hold
// vmlock.
func file_writeback(pg *Page_t) {
	if pg.kind != VM_FILE || pg.frame == nil || pg.fbytes == 0 {
		return
	}
	pte := mem.Pmap_lookup(pg.spt.Pmap, pg.Va)
	if pte == nil || *pte&mem.PTE_P == 0 || *pte&mem.PTE_D == 0 {
		return
	}
	bpg := mem.Pg2bytes(mem.Physmem.Dmap(pg.frame.Pa))
	ub := &Fakeubuf_t{}
	ub.Fake_init(bpg[:pg.fbytes])
	if _, err := pg.fops.Pwrite(ub, pg.foff); err != 0 {
		return
	}
	*pte &^= mem.PTE_D
}
