package fs

import "testing"

import "github.com/simons-pintos/pintos-kaist/src/bdev"
import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/ustr"

type kbuf_t struct {
	buf []uint8
	off int
}

func mkkbuf(b []uint8) *kbuf_t {
	return &kbuf_t{buf: b}
}

func (kb *kbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	c := copy(dst, kb.buf[kb.off:])
	kb.off += c
	return c, 0
}

func (kb *kbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	c := copy(kb.buf[kb.off:], src)
	kb.off += c
	return c, 0
}

func (kb *kbuf_t) Remain() int {
	return len(kb.buf) - kb.off
}

func (kb *kbuf_t) Totalsz() int {
	return len(kb.buf)
}

var root = ustr.MkUstrRoot()

func u(s string) ustr.Ustr {
	return ustr.Ustr(s)
}

func writefile(t *testing.T, fs *Fs_t, path string, data []uint8) {
	t.Helper()
	if err := fs.Fs_create(u(path), 0, root); err != 0 {
		t.Fatalf("create %v: %v", path, err)
	}
	f, err := fs.Fs_open(u(path), root)
	if err != 0 {
		t.Fatalf("open %v: %v", path, err)
	}
	n, werr := f.Write(mkkbuf(data))
	if werr != 0 || n != len(data) {
		t.Fatalf("write %v: %v %v", path, n, werr)
	}
	f.Close()
}

func readfile(t *testing.T, fs *Fs_t, path string) []uint8 {
	t.Helper()
	f, err := fs.Fs_open(u(path), root)
	if err != 0 {
		t.Fatalf("open %v: %v", path, err)
	}
	sz, _ := f.Len()
	buf := make([]uint8, sz)
	n, rerr := f.Read(mkkbuf(buf))
	if rerr != 0 || n != sz {
		t.Fatalf("read %v: %v of %v, err %v", path, n, sz, rerr)
	}
	f.Close()
	return buf
}

func pattern(n int) []uint8 {
	b := make([]uint8, n)
	for i := range b {
		b[i] = uint8(i % 253)
	}
	return b
}

func TestCreateReadWrite(t *testing.T) {
	fs := StartFS(bdev.MkMemdisk(2048))
	data := pattern(3 * bdev.SECTOR_SIZE)
	writefile(t, fs, "/f", data)
	got := readfile(t, fs, "/f")
	if len(got) != len(data) {
		t.Fatalf("length %v", len(got))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %v: %#x", i, got[i])
		}
	}
}

func TestCreateInitialSize(t *testing.T) {
	fs := StartFS(bdev.MkMemdisk(2048))
	if err := fs.Fs_create(u("/big"), 1000, root); err != 0 {
		t.Fatalf("create: %v", err)
	}
	f, err := fs.Fs_open(u("/big"), root)
	if err != 0 {
		t.Fatalf("open: %v", err)
	}
	if sz, _ := f.Len(); sz != 1000 {
		t.Fatalf("size %v", sz)
	}
	buf := make([]uint8, 1000)
	buf[0] = 0xff
	n, _ := f.Read(mkkbuf(buf))
	if n != 1000 || buf[0] != 0 {
		t.Fatalf("initial contents not zero: %v %#x", n, buf[0])
	}
	f.Close()
}

func TestCreateExisting(t *testing.T) {
	fs := StartFS(bdev.MkMemdisk(2048))
	writefile(t, fs, "/f", []uint8{1})
	if err := fs.Fs_create(u("/f"), 0, root); err != -defs.EEXIST {
		t.Fatalf("duplicate create: %v", err)
	}
	if _, err := fs.Fs_open(u("/nope"), root); err != -defs.ENOENT {
		t.Fatalf("open of missing file: %v", err)
	}
}

func TestSeekTellSparse(t *testing.T) {
	fs := StartFS(bdev.MkMemdisk(2048))
	writefile(t, fs, "/f", []uint8{1, 2, 3})
	f, _ := fs.Fs_open(u("/f"), root)
	if pos, _ := f.Lseek(1000, defs.SEEK_SET); pos != 1000 {
		t.Fatalf("seek %v", pos)
	}
	f.Write(mkkbuf([]uint8{9}))
	if sz, _ := f.Len(); sz != 1001 {
		t.Fatalf("size after sparse write %v", sz)
	}
	// the hole reads back zero
	f.Lseek(500, defs.SEEK_SET)
	b := make([]uint8, 1)
	f.Read(mkkbuf(b))
	if b[0] != 0 {
		t.Fatalf("hole byte %#x", b[0])
	}
	if pos, _ := f.Lseek(0, defs.SEEK_CUR); pos != 501 {
		t.Fatalf("tell %v", pos)
	}
	f.Close()
}

func TestPersistence(t *testing.T) {
	disk := bdev.MkMemdisk(2048)
	fs := StartFS(disk)
	data := pattern(1700)
	writefile(t, fs, "/keep", data)
	if err := fs.Fs_mkdir(u("/d"), root); err != 0 {
		t.Fatalf("mkdir: %v", err)
	}

	// remount from the same sectors
	fs2 := StartFS(disk)
	got := readfile(t, fs2, "/keep")
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %v after remount: %#x", i, got[i])
		}
	}
	f, err := fs2.Fs_open(u("/d"), root)
	if err != 0 || !f.Isdir() {
		t.Fatalf("dir lost on remount: %v", err)
	}
	f.Close()
}

func TestMkdirReaddir(t *testing.T) {
	fs := StartFS(bdev.MkMemdisk(2048))
	if err := fs.Fs_mkdir(u("/d"), root); err != 0 {
		t.Fatalf("mkdir: %v", err)
	}
	writefile(t, fs, "/d/a", []uint8{1})
	writefile(t, fs, "/d/b", []uint8{2})
	if err := fs.Fs_mkdir(u("/d/sub"), root); err != 0 {
		t.Fatalf("nested mkdir: %v", err)
	}
	d, err := fs.Fs_open(u("/d"), root)
	if err != 0 {
		t.Fatalf("open dir: %v", err)
	}
	if !d.Isdir() {
		t.Fatalf("not a dir")
	}
	seen := make(map[string]bool)
	for {
		nm, ok := d.Readdir()
		if !ok {
			break
		}
		seen[nm] = true
	}
	d.Close()
	for _, want := range []string{"a", "b", "sub"} {
		if !seen[want] {
			t.Fatalf("readdir missed %v (saw %v)", want, seen)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("readdir extra entries: %v", seen)
	}
}

func TestRemove(t *testing.T) {
	fs := StartFS(bdev.MkMemdisk(2048))
	writefile(t, fs, "/f", []uint8{1})
	if err := fs.Fs_remove(u("/f"), root); err != 0 {
		t.Fatalf("remove: %v", err)
	}
	if _, err := fs.Fs_open(u("/f"), root); err != -defs.ENOENT {
		t.Fatalf("open after remove: %v", err)
	}
}

func TestRemoveOpenFile(t *testing.T) {
	fs := StartFS(bdev.MkMemdisk(2048))
	writefile(t, fs, "/f", []uint8{7, 8, 9})
	f, _ := fs.Fs_open(u("/f"), root)
	if err := fs.Fs_remove(u("/f"), root); err != 0 {
		t.Fatalf("remove of open file: %v", err)
	}
	// the name is gone but the handle still works
	if _, err := fs.Fs_open(u("/f"), root); err != -defs.ENOENT {
		t.Fatalf("name survived remove: %v", err)
	}
	b := make([]uint8, 3)
	n, rerr := f.Read(mkkbuf(b))
	if rerr != 0 || n != 3 || b[0] != 7 {
		t.Fatalf("read through removed file: %v %v %v", n, rerr, b)
	}
	free := fs.fat.Free()
	f.Close()
	if fs.fat.Free() <= free {
		t.Fatalf("clusters not freed on last close")
	}
}

func TestRemoveDir(t *testing.T) {
	fs := StartFS(bdev.MkMemdisk(2048))
	fs.Fs_mkdir(u("/d"), root)
	writefile(t, fs, "/d/f", []uint8{1})
	if err := fs.Fs_remove(u("/d"), root); err != -defs.ENOTEMPTY {
		t.Fatalf("remove of non-empty dir: %v", err)
	}
	fs.Fs_remove(u("/d/f"), root)
	if err := fs.Fs_remove(u("/d"), root); err != 0 {
		t.Fatalf("remove of empty dir: %v", err)
	}
	if err := fs.Fs_remove(u("/"), root); err == 0 {
		t.Fatalf("removed the root")
	}
}

func TestChdirRelative(t *testing.T) {
	fs := StartFS(bdev.MkMemdisk(2048))
	fs.Fs_mkdir(u("/d"), root)
	fs.Fs_mkdir(u("/d/sub"), root)
	writefile(t, fs, "/d/sub/f", []uint8{42})
	cwd, err := fs.Fs_chdir(u("/d"), root)
	if err != 0 || cwd.String() != "/d" {
		t.Fatalf("chdir: %v %v", cwd, err)
	}
	cwd, err = fs.Fs_chdir(u("sub"), cwd)
	if err != 0 || cwd.String() != "/d/sub" {
		t.Fatalf("relative chdir: %v %v", cwd, err)
	}
	f, err := fs.Fs_open(u("f"), cwd)
	if err != 0 {
		t.Fatalf("relative open: %v", err)
	}
	f.Close()
	cwd, err = fs.Fs_chdir(u(".."), cwd)
	if err != 0 || cwd.String() != "/d" {
		t.Fatalf("dotdot chdir: %v %v", cwd, err)
	}
	if _, err := fs.Fs_chdir(u("/d/sub/f"), root); err != -defs.ENOTDIR {
		t.Fatalf("chdir to file: %v", err)
	}
}

func TestSymlink(t *testing.T) {
	fs := StartFS(bdev.MkMemdisk(2048))
	writefile(t, fs, "/target", []uint8{0xaa})
	if err := fs.Fs_symlink(u("/target"), u("/link"), root); err != 0 {
		t.Fatalf("symlink: %v", err)
	}
	got := readfile(t, fs, "/link")
	if len(got) != 1 || got[0] != 0xaa {
		t.Fatalf("read through link: %v", got)
	}
	// relative target resolves in the link's directory
	fs.Fs_mkdir(u("/d"), root)
	writefile(t, fs, "/d/t", []uint8{0xbb})
	if err := fs.Fs_symlink(u("t"), u("/d/l"), root); err != 0 {
		t.Fatalf("relative symlink: %v", err)
	}
	got = readfile(t, fs, "/d/l")
	if len(got) != 1 || got[0] != 0xbb {
		t.Fatalf("relative link: %v", got)
	}
	// link to link
	if err := fs.Fs_symlink(u("/link"), u("/link2"), root); err != 0 {
		t.Fatalf("nested symlink: %v", err)
	}
	got = readfile(t, fs, "/link2")
	if len(got) != 1 || got[0] != 0xaa {
		t.Fatalf("nested link: %v", got)
	}
	// removing the link leaves the target
	if err := fs.Fs_remove(u("/link"), root); err != 0 {
		t.Fatalf("remove link: %v", err)
	}
	if _, err := fs.Fs_open(u("/target"), root); err != 0 {
		t.Fatalf("target gone after link removal: %v", err)
	}
}

func TestSymlinkLoop(t *testing.T) {
	fs := StartFS(bdev.MkMemdisk(2048))
	fs.Fs_symlink(u("/b"), u("/a"), root)
	fs.Fs_symlink(u("/a"), u("/b"), root)
	if _, err := fs.Fs_open(u("/a"), root); err != -defs.ELOOP {
		t.Fatalf("symlink loop: %v", err)
	}
}

func TestDenyWrite(t *testing.T) {
	fs := StartFS(bdev.MkMemdisk(2048))
	writefile(t, fs, "/x", []uint8{1, 2, 3})
	f, _ := fs.Fs_open(u("/x"), root)
	f.Deny_write()
	g, _ := fs.Fs_open(u("/x"), root)
	if n, err := g.Write(mkkbuf([]uint8{9})); err != -defs.EPERM || n != 0 {
		t.Fatalf("write to denied file: %v %v", n, err)
	}
	f.Allow_write()
	if n, err := g.Write(mkkbuf([]uint8{9})); err != 0 || n != 1 {
		t.Fatalf("write after allow: %v %v", n, err)
	}
	g.Close()
	f.Close()
}

func TestFatChains(t *testing.T) {
	disk := bdev.MkMemdisk(256)
	fat := Fat_format(disk)
	c1 := fat.Create_chain(0)
	if c1 == 0 {
		t.Fatalf("chain alloc failed")
	}
	c2 := fat.Create_chain(c1)
	c3 := fat.Create_chain(c1)
	if c2 == 0 || c3 == 0 {
		t.Fatalf("chain extend failed")
	}
	if fat.Get(c1) != c2 || fat.Get(c2) != c3 || fat.Get(c3) != EOCHAIN {
		t.Fatalf("chain structure %v %v %v", fat.Get(c1), fat.Get(c2), fat.Get(c3))
	}
	if fat.Walk(c1, 2) != c3 {
		t.Fatalf("walk")
	}
	if fat.Walk(c1, 3) != 0 {
		t.Fatalf("walk past end")
	}
	free := fat.Free()
	fat.Remove_chain(c2, c1)
	if fat.Get(c1) != EOCHAIN {
		t.Fatalf("truncate did not terminate chain")
	}
	if fat.Free() != free+2 {
		t.Fatalf("free count %v; want %v", fat.Free(), free+2)
	}
	// the table survives a reload
	fat2 := Fat_open(disk)
	if fat2 == nil || fat2.Get(c1) != EOCHAIN {
		t.Fatalf("fat not persisted")
	}
}
