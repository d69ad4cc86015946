package bdev

import "os"
import "sync"

/// Filedisk_t simulates a disk backed by a file.
type Filedisk_t struct {
	sync.Mutex
	f       *os.File
	sectors int
}

/// MkFiledisk opens (or creates) the image at path with the given
/// sector count, growing the file as needed.
func MkFiledisk(path string, sectors int) *Filedisk_t {
	f, uerr := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0755)
	if uerr != nil {
		panic(uerr)
	}
	if uerr := f.Truncate(int64(sectors) * SECTOR_SIZE); uerr != nil {
		panic(uerr)
	}
	d := &Filedisk_t{}
	d.f = f
	d.sectors = sectors
	return d
}

func (d *Filedisk_t) seek(sector int) {
	if sector < 0 || sector >= d.sectors {
		panic("sector out of range")
	}
	_, uerr := d.f.Seek(int64(sector)*SECTOR_SIZE, 0)
	if uerr != nil {
		panic(uerr)
	}
}

/// Read fills dst from the image. lock to ensure that seek followed
/// by read/write is atomic.
func (d *Filedisk_t) Read(sector int, dst *Sector_t) {
	d.Lock()
	defer d.Unlock()
	d.seek(sector)
	n, uerr := d.f.Read(dst[:])
	if n != SECTOR_SIZE || uerr != nil {
		panic(uerr)
	}
}

/// Write stores src into the image.
func (d *Filedisk_t) Write(sector int, src *Sector_t) {
	d.Lock()
	defer d.Unlock()
	d.seek(sector)
	n, uerr := d.f.Write(src[:])
	if n != SECTOR_SIZE || uerr != nil {
		panic(uerr)
	}
}

/// Size returns the sector count.
func (d *Filedisk_t) Size() int {
	return d.sectors
}

/// Close flushes and closes the backing file.
func (d *Filedisk_t) Close() {
	if uerr := d.f.Sync(); uerr != nil {
		panic(uerr)
	}
	if uerr := d.f.Close(); uerr != nil {
		panic(uerr)
	}
}
