package vm

import "github.com/simons-pintos/pintos-kaist/src/bdev"
import "github.com/simons-pintos/pintos-kaist/src/bitmap"
import "github.com/simons-pintos/pintos-kaist/src/mem"

/// SECTORS_PER_PAGE is how many disk sectors hold one page.
const SECTORS_PER_PAGE = mem.PGSIZE / bdev.SECTOR_SIZE

type swap_t struct {
	disk  bdev.Disk_i
	slots *bitmap.Bitmap_t
}

var swap = &swap_t{}

/// Swap_init attaches the swap disk; one slot is one page's worth of
/// consecutive sectors.
func Swap_init(d bdev.Disk_i) {
	swap.disk = d
	swap.slots = bitmap.MkBitmap(d.Size() / SECTORS_PER_PAGE)
}

// reserves a free slot. must hold vmlock.
func swap_alloc() (int, bool) {
	if swap.slots == nil {
		return 0, false
	}
	return swap.slots.Scan_and_flip(0, 1, false)
}

// returns a slot to the free pool. must hold vmlock.
func swap_free(slot int) {
	if !swap.slots.Test(slot) {
		panic("free of free swap slot")
	}
	swap.slots.Reset(slot)
}

// writes a page into the slot's sectors. must hold vmlock.
func swap_write(slot int, bpg *mem.Bytepg_t) {
	var sec bdev.Sector_t
	for i := 0; i < SECTORS_PER_PAGE; i++ {
		copy(sec[:], bpg[i*bdev.SECTOR_SIZE:(i+1)*bdev.SECTOR_SIZE])
		swap.disk.Write(slot*SECTORS_PER_PAGE+i, &sec)
	}
}

// reads the slot's sectors into a page. must hold vmlock.
func swap_read(slot int, bpg *mem.Bytepg_t) {
	var sec bdev.Sector_t
	for i := 0; i < SECTORS_PER_PAGE; i++ {
		swap.disk.Read(slot*SECTORS_PER_PAGE+i, &sec)
		copy(bpg[i*bdev.SECTOR_SIZE:(i+1)*bdev.SECTOR_SIZE], sec[:])
	}
}

/// Swap_in_use returns the number of occupied swap slots.
func Swap_in_use() int {
	vmlock.Lock()
	defer vmlock.Unlock()
	if swap.slots == nil {
		return 0
	}
	return swap.slots.Count()
}
