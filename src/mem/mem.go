package mem

import "sync"
import "sync/atomic"
import "unsafe"

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

/// PTE_P marks a page as present.
const PTE_P Pa_t = 1 << 0

/// PTE_W marks a page writable.
const PTE_W Pa_t = 1 << 1

/// PTE_U marks a page user-accessible.
const PTE_U Pa_t = 1 << 2

/// PTE_A is set when the page has been accessed.
const PTE_A Pa_t = 1 << 5

/// PTE_D is set when the page has been written.
const PTE_D Pa_t = 1 << 6

/// PTE_ADDR extracts the address bits of a PTE.
const PTE_ADDR Pa_t = PGMASK

/// USER_STACK is the top of the user stack region.
const USER_STACK int = 0x47480000

/// STACK_LIMIT bounds stack growth to 1 MiB below USER_STACK.
const STACK_LIMIT int = USER_STACK - (1 << 20)

/// KERNBASE is the lowest kernel virtual address; user pointers must
/// be below it.
const KERNBASE int = 0x8004000000

/// Pa_t represents a physical address.
type Pa_t uintptr

/// Bytepg_t is a byte addressed page.
type Bytepg_t [PGSIZE]uint8

/// Pg_t is a generic page of ints.
type Pg_t [512]int

/// Pmap_t is a page table page.
type Pmap_t [512]Pa_t

/// Pg2bytes converts a page of ints to a page of bytes.
func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

/// Bytepg2pg converts a byte page back to a Pg_t.
func Bytepg2pg(pg *Bytepg_t) *Pg_t {
	return (*Pg_t)(unsafe.Pointer(pg))
}

func pg2pmap(pg *Pg_t) *Pmap_t {
	return (*Pmap_t)(unsafe.Pointer(pg))
}

func pmap2pg(pm *Pmap_t) *Pg_t {
	return (*Pg_t)(unsafe.Pointer(pm))
}

func _pg2pgn(p_pg Pa_t) uint32 {
	return uint32(p_pg >> PGSHIFT)
}

/// Physpg_t describes a single physical page.
type Physpg_t struct {
	Refcnt int32
	// index into pgs of next page on free list
	nexti uint32
}

/// Physmem_t manages the machine's page pool. Index 0 is reserved so
/// that Pa_t(0) never names a real page.
type Physmem_t struct {
	sync.Mutex
	Pgs   []Physpg_t
	store []Pg_t
	// index into pgs of first free pg
	freei   uint32
	freelen int32
}

/// Refaddr returns the refcount pointer and index for the given page.
func (phys *Physmem_t) Refaddr(p_pg Pa_t) (*int32, uint32) {
	idx := _pg2pgn(p_pg)
	return &phys.Pgs[idx].Refcnt, idx
}

/// Refcnt returns the current reference count of a page.
func (phys *Physmem_t) Refcnt(p_pg Pa_t) int {
	ref, _ := phys.Refaddr(p_pg)
	return int(atomic.LoadInt32(ref))
}

/// Refup increments the reference count of a page.
func (phys *Physmem_t) Refup(p_pg Pa_t) {
	ref, _ := phys.Refaddr(p_pg)
	c := atomic.AddInt32(ref, 1)
	// XXXPANIC
	if c <= 0 {
		panic("wut")
	}
}

// returns true if p_pg should be added to the free list and the index
// of the page in the pgs array
func (phys *Physmem_t) _refdec(p_pg Pa_t) (bool, uint32) {
	ref, idx := phys.Refaddr(p_pg)
	c := atomic.AddInt32(ref, -1)
	// XXXPANIC
	if c < 0 {
		panic("wut")
	}
	return c == 0, idx
}

/// Refdown decrements the reference count of a page.
/// It returns true when the page is freed.
func (phys *Physmem_t) Refdown(p_pg Pa_t) bool {
	if add, idx := phys._refdec(p_pg); add {
		phys._phys_insert(idx)
		return true
	}
	return false
}

/// Freepg returns a page that was never referenced to the pool.
func (phys *Physmem_t) Freepg(p_pg Pa_t) {
	phys.Refup(p_pg)
	phys.Refdown(p_pg)
}

/// Zeropg is a global zero-filled page used for page clearing.
var Zeropg Pg_t

func (phys *Physmem_t) _refpg_new() (*Pg_t, Pa_t, bool) {
	var p_pg Pa_t
	var ok bool
	phys.Lock()
	ff := phys.freei
	if ff != ^uint32(0) {
		p_pg = Pa_t(ff) << PGSHIFT
		phys.freei = phys.Pgs[ff].nexti
		ok = true
		if phys.Pgs[ff].Refcnt < 0 {
			panic("negative ref count")
		}
		phys.freelen--
		if phys.freelen < 0 {
			panic("no")
		}
	}
	phys.Unlock()
	if ok {
		return phys.Dmap(p_pg), p_pg, true
	}
	return nil, 0, false
}

/// Refpg_new allocates a zeroed page and returns its mapping and address.
/// The returned page's refcount is zero; the caller refs it.
func (phys *Physmem_t) Refpg_new() (*Pg_t, Pa_t, bool) {
	pg, p_pg, ok := phys._refpg_new()
	if !ok {
		return nil, 0, false
	}
	*pg = Zeropg
	return pg, p_pg, true
}

/// Refpg_new_nozero allocates an uninitialised page.
func (phys *Physmem_t) Refpg_new_nozero() (*Pg_t, Pa_t, bool) {
	return phys._refpg_new()
}

/// Pmap_new allocates a page-table page.
func (phys *Physmem_t) Pmap_new() (*Pmap_t, Pa_t, bool) {
	a, b, ok := phys.Refpg_new()
	if !ok {
		return nil, 0, false
	}
	return pg2pmap(a), b, ok
}

func (phys *Physmem_t) _phys_insert(idx uint32) {
	phys.Lock()
	phys.Pgs[idx].nexti = phys.freei
	phys.freei = idx
	phys.freelen++
	if phys.freelen < 0 {
		panic("no")
	}
	phys.Unlock()
}

/// Dmap returns the kernel virtual mapping of the physical page.
func (phys *Physmem_t) Dmap(p Pa_t) *Pg_t {
	idx := _pg2pgn(p & PGMASK)
	if idx == 0 || int(idx) >= len(phys.store) {
		panic("direct map out of range")
	}
	return &phys.store[idx]
}

/// Dmap8 returns a byte slice over the page from the physical
/// address's offset to the end of the page.
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	pg := phys.Dmap(p)
	off := p & PGOFFSET
	bpg := Pg2bytes(pg)
	return bpg[off:]
}

/// Pgcount returns the number of free pages remaining.
func (phys *Physmem_t) Pgcount() int {
	phys.Lock()
	r := int(phys.freelen)
	phys.Unlock()
	return r
}

/// Physmem is the global physical memory allocator instance.
var Physmem = &Physmem_t{}

/// Phys_init initializes the page pool with respgs usable pages.
func Phys_init(respgs int) *Physmem_t {
	if respgs <= 0 {
		panic("bad pool size")
	}
	phys := Physmem
	// index 0 is the reserved null page
	phys.store = make([]Pg_t, respgs+1)
	phys.Pgs = make([]Physpg_t, respgs+1)
	phys.Pgs[0].Refcnt = -10
	phys.freelen = 0
	last := ^uint32(0)
	for i := respgs; i >= 1; i-- {
		phys.Pgs[i].Refcnt = 0
		phys.Pgs[i].nexti = last
		last = uint32(i)
		phys.freelen++
	}
	phys.freei = last
	return phys
}
