// Package fs implements the cluster-allocated FAT filesystem:
// hierarchical directories, symbolic links, and cluster-chained
// files. One cluster is one disk sector.
package fs

import "github.com/simons-pintos/pintos-kaist/src/bdev"
import "github.com/simons-pintos/pintos-kaist/src/util"

/// FAT_MAGIC identifies a formatted disk.
const FAT_MAGIC = 0x46415431

/// EOCHAIN terminates a cluster chain.
const EOCHAIN uint32 = 0x0fffffff

/// SECTORS_PER_CLUSTER is fixed at one.
const SECTORS_PER_CLUSTER = 1

/// ROOT_CLUSTER is the root directory's inode cluster.
const ROOT_CLUSTER uint32 = 1

// boot sector field indices (32-bit fields)
const (
	bootMagic = iota
	bootSecPerClus
	bootTotalSecs
	bootFatStart
	bootFatSecs
	bootRootClus
)

func fieldr(s *bdev.Sector_t, field int) int {
	return util.Readn(s[:], 4, field*4)
}

func fieldw(s *bdev.Sector_t, field int, v int) {
	util.Writen(s[:], 4, field*4, v)
}

/// Fat_t holds the in-memory FAT and the boot geometry. Entry i of
/// the table describes cluster i+1; value 0 is free, EOCHAIN ends a
/// chain, anything else is the successor cluster.
type Fat_t struct {
	disk      bdev.Disk_i
	fat       []uint32
	length    int
	fatstart  int
	datastart int
	rootclus  uint32
}

// entries that fit in one FAT sector
const fatPerSec = bdev.SECTOR_SIZE / 4

/// Fat_format writes a fresh boot sector and empty FAT to disk and
/// reserves the root cluster.
func Fat_format(disk bdev.Disk_i) *Fat_t {
	total := disk.Size()
	fatsecs := (total-1)/(fatPerSec*SECTORS_PER_CLUSTER+1) + 1
	var bs bdev.Sector_t
	fieldw(&bs, bootMagic, FAT_MAGIC)
	fieldw(&bs, bootSecPerClus, SECTORS_PER_CLUSTER)
	fieldw(&bs, bootTotalSecs, total)
	fieldw(&bs, bootFatStart, 1)
	fieldw(&bs, bootFatSecs, fatsecs)
	fieldw(&bs, bootRootClus, int(ROOT_CLUSTER))
	disk.Write(0, &bs)

	f := mkfat(disk, total, 1, fatsecs, ROOT_CLUSTER)
	// zero FAT on disk
	var zero bdev.Sector_t
	for i := 0; i < fatsecs; i++ {
		disk.Write(1+i, &zero)
	}
	// the root inode cluster starts every disk
	f.put(ROOT_CLUSTER, EOCHAIN)
	disk.Write(f.Sector(ROOT_CLUSTER), &zero)
	return f
}

/// Fat_open loads the FAT from a formatted disk, or nil when the
/// magic is missing.
func Fat_open(disk bdev.Disk_i) *Fat_t {
	var bs bdev.Sector_t
	disk.Read(0, &bs)
	if fieldr(&bs, bootMagic) != FAT_MAGIC {
		return nil
	}
	total := fieldr(&bs, bootTotalSecs)
	fatstart := fieldr(&bs, bootFatStart)
	fatsecs := fieldr(&bs, bootFatSecs)
	root := uint32(fieldr(&bs, bootRootClus))
	f := mkfat(disk, total, fatstart, fatsecs, root)
	var sec bdev.Sector_t
	for i := 0; i < fatsecs; i++ {
		disk.Read(fatstart+i, &sec)
		for j := 0; j < fatPerSec; j++ {
			idx := i*fatPerSec + j
			if idx < len(f.fat) {
				f.fat[idx] = uint32(util.Readn(sec[:], 4, j*4))
			}
		}
	}
	return f
}

func mkfat(disk bdev.Disk_i, total, fatstart, fatsecs int, root uint32) *Fat_t {
	f := &Fat_t{}
	f.disk = disk
	f.fatstart = fatstart
	f.datastart = fatstart + fatsecs
	f.length = total - f.datastart - 1
	if f.length <= int(root) {
		panic("disk too small")
	}
	f.fat = make([]uint32, f.length)
	f.rootclus = root
	return f
}

/// Sector converts a cluster number to its data sector.
func (f *Fat_t) Sector(clst uint32) int {
	return int(clst) + f.datastart
}

/// Get returns the FAT entry for clst.
func (f *Fat_t) Get(clst uint32) uint32 {
	if clst == 0 || int(clst) > f.length {
		panic("bad cluster")
	}
	return f.fat[clst-1]
}

// updates the entry and writes through the containing FAT sector.
func (f *Fat_t) put(clst uint32, val uint32) {
	if clst == 0 || int(clst) > f.length {
		panic("bad cluster")
	}
	f.fat[clst-1] = val
	secidx := int(clst-1) / fatPerSec
	var sec bdev.Sector_t
	base := secidx * fatPerSec
	for j := 0; j < fatPerSec; j++ {
		if base+j < len(f.fat) {
			util.Writen(sec[:], 4, j*4, int(f.fat[base+j]))
		}
	}
	f.disk.Write(f.fatstart+secidx, &sec)
}

/// Create_chain appends a fresh cluster to the chain containing
/// clst, or starts a new chain when clst is 0. It returns 0 when the
/// disk is full.
func (f *Fat_t) Create_chain(clst uint32) uint32 {
	var i uint32
	for i = 2; int(i) <= f.length && f.Get(i) > 0; i++ {
	}
	if int(i) > f.length {
		return 0
	}
	f.put(i, EOCHAIN)
	if clst == 0 {
		return i
	}
	c := clst
	for f.Get(c) != EOCHAIN {
		c = f.Get(c)
	}
	f.put(c, i)
	return i
}

/// Remove_chain frees the chain starting at clst. When pclst is
/// nonzero it becomes the new end of its chain.
func (f *Fat_t) Remove_chain(clst, pclst uint32) {
	if pclst != 0 {
		f.put(pclst, EOCHAIN)
	}
	c := clst
	for f.Get(c) != EOCHAIN {
		n := f.Get(c)
		f.put(c, 0)
		c = n
	}
	f.put(c, 0)
}

/// Walk returns the nth cluster of the chain starting at clst, or 0
/// when the chain is shorter.
func (f *Fat_t) Walk(clst uint32, n int) uint32 {
	if clst == 0 {
		return 0
	}
	c := clst
	for i := 0; i < n; i++ {
		nx := f.Get(c)
		if nx == EOCHAIN || nx == 0 {
			return 0
		}
		c = nx
	}
	return c
}

/// Free returns the number of free clusters.
func (f *Fat_t) Free() int {
	n := 0
	for i := 2; i <= f.length; i++ {
		if f.fat[i-1] == 0 {
			n++
		}
	}
	return n
}
