package proc

import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/fs"
import "github.com/simons-pintos/pintos-kaist/src/mem"
import "github.com/simons-pintos/pintos-kaist/src/ustr"
import "github.com/simons-pintos/pintos-kaist/src/util"
import "github.com/simons-pintos/pintos-kaist/src/vm"

// ELF64 constants the loader checks. Everything else about the
// format is the header-decoder collaborator's business: decode
// segments into (file-offset, vaddr, file-bytes, zero-bytes,
// writable) records.
const (
	elfMachineAmd64 = 62
	elfVersion      = 1
	elfPhentsize    = 56
	elfPhnumMax     = 1024
	elfPtLoad       = 1
	elfPfW          = 2
	elfEhdrSize     = 64
)

/// Segment_t is one loadable ELF segment.
type Segment_t struct {
	Off      int
	Vaddr    int
	Filesz   int
	Memsz    int
	Writable bool
}

// reads and validates the ELF header, returning the PT_LOAD
// segments and the entry point.
func elf_load(f *fs.File_t) ([]Segment_t, int, defs.Err_t) {
	var ehdr [elfEhdrSize]uint8
	ub := &vm.Fakeubuf_t{}
	ub.Fake_init(ehdr[:])
	n, err := f.Pread(ub, 0)
	if err != 0 || n != elfEhdrSize {
		return nil, 0, -defs.EINVAL
	}
	if ehdr[0] != 0x7f || ehdr[1] != 'E' || ehdr[2] != 'L' || ehdr[3] != 'F' {
		return nil, 0, -defs.EINVAL
	}
	// 64-bit little-endian executable for amd64
	if ehdr[4] != 2 || ehdr[5] != 1 {
		return nil, 0, -defs.EINVAL
	}
	if util.Readn(ehdr[:], 2, 18) != elfMachineAmd64 {
		return nil, 0, -defs.EINVAL
	}
	if util.Readn(ehdr[:], 4, 20) != elfVersion {
		return nil, 0, -defs.EINVAL
	}
	if util.Readn(ehdr[:], 2, 54) != elfPhentsize {
		return nil, 0, -defs.EINVAL
	}
	entry := util.Readn(ehdr[:], 8, 24)
	phoff := util.Readn(ehdr[:], 8, 32)
	phnum := util.Readn(ehdr[:], 2, 56)
	if phnum > elfPhnumMax {
		return nil, 0, -defs.EINVAL
	}
	var segs []Segment_t
	var phdr [elfPhentsize]uint8
	for i := 0; i < phnum; i++ {
		ub := &vm.Fakeubuf_t{}
		ub.Fake_init(phdr[:])
		n, err := f.Pread(ub, phoff+i*elfPhentsize)
		if err != 0 || n != elfPhentsize {
			return nil, 0, -defs.EINVAL
		}
		ptype := util.Readn(phdr[:], 4, 0)
		if ptype != elfPtLoad {
			continue
		}
		flags := util.Readn(phdr[:], 4, 4)
		seg := Segment_t{}
		seg.Off = util.Readn(phdr[:], 8, 8)
		seg.Vaddr = util.Readn(phdr[:], 8, 16)
		seg.Filesz = util.Readn(phdr[:], 8, 32)
		seg.Memsz = util.Readn(phdr[:], 8, 40)
		seg.Writable = flags&elfPfW != 0
		if seg.Memsz < seg.Filesz || seg.Vaddr < 0 ||
			seg.Vaddr+seg.Memsz >= mem.KERNBASE {
			return nil, 0, -defs.EINVAL
		}
		segs = append(segs, seg)
	}
	return segs, entry, 0
}

// the lazy loader for executable segments: anonymous pages whose
// first contents come from the image file.
func segloader(pg *vm.Page_t, bpg *mem.Bytepg_t, aux interface{}) bool {
	fa := aux.(*vm.Fileaux_t)
	if fa.Bytes == 0 {
		return true
	}
	ub := &vm.Fakeubuf_t{}
	ub.Fake_init(bpg[:fa.Bytes])
	n, err := fa.Fops.Pread(ub, fa.Off)
	if err != 0 {
		return false
	}
	for i := n; i < fa.Bytes; i++ {
		bpg[i] = 0
	}
	return true
}

// records every page of the segment as a lazy anonymous page backed
// by the image for its first load.
func load_segment(spt *vm.Spt_t, f *fs.File_t, seg Segment_t) bool {
	va := util.Rounddown(seg.Vaddr, mem.PGSIZE)
	skew := seg.Vaddr - va
	off := seg.Off - skew
	filesz := seg.Filesz + skew
	memsz := seg.Memsz + skew
	npages := util.Roundup(memsz, mem.PGSIZE) / mem.PGSIZE
	for i := 0; i < npages; i++ {
		fbytes := util.Min(util.Max(filesz-i*mem.PGSIZE, 0), mem.PGSIZE)
		aux := &vm.Fileaux_t{Fops: f, Off: off + i*mem.PGSIZE, Bytes: fbytes}
		if !spt.Alloc_with_initializer(vm.VM_ANON, va+i*mem.PGSIZE,
			seg.Writable, segloader, aux) {
			return false
		}
	}
	return true
}

// builds the initial user stack: argument bytes in reverse order,
// 8-byte alignment, the null-terminated argv pointer array, and the
// fake return address on top. rdi and rsi get argc and argv.
func setup_stack(p *Proc_t, argv []string) bool {
	if !p.Spt.Alloc_anon(mem.USER_STACK-mem.PGSIZE, true) {
		return false
	}
	if !p.Spt.Claim(mem.USER_STACK - mem.PGSIZE) {
		return false
	}
	sp := mem.USER_STACK
	addrs := make([]int, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		b := append([]uint8(argv[i]), 0)
		sp -= len(b)
		if p.Spt.K2user(b, sp) != 0 {
			return false
		}
		addrs[i] = sp
	}
	sp = util.Rounddown(sp, 8)
	sp -= 8 * (len(argv) + 1)
	if p.Spt.Userwriten(sp+8*len(argv), 8, 0) != 0 {
		return false
	}
	for i, a := range addrs {
		if p.Spt.Userwriten(sp+8*i, 8, a) != 0 {
			return false
		}
	}
	argvbase := sp
	sp -= 8
	if p.Spt.Userwriten(sp, 8, 0) != 0 {
		return false
	}
	p.Tf.Rsp = sp
	p.Tf.Rdi = len(argv)
	p.Tf.Rsi = argvbase
	return true
}

/// Sys_exec replaces the process image with the executable at path.
/// On success the new program runs and the call never returns; on a
/// bad path or image it returns -1 with the old image intact. A
/// failure after the old image is gone exits the process.
func (k *Kernel_t) Sys_exec(p *Proc_t, path string, argv []string) int {
	f, err := k.Fs.Fs_open(ustr.Ustr(path), p.Cwd.Path)
	if err != 0 {
		return -1
	}
	if f.Isdir() {
		f.Close()
		return -1
	}
	segs, _, err := elf_load(f)
	if err != 0 || len(segs) == 0 {
		f.Close()
		return -1
	}

	// the point of no return: tear down the old image
	oldspt := p.Spt
	oldspt.Kill()
	p.Spt = vm.MkSpt(oldspt.Pmap, oldspt.P_pmap)

	if p.execfile != nil {
		p.execfile.Allow_write()
		p.execfile.Close()
	}
	p.execfile = f
	f.Deny_write()

	ok := true
	for _, seg := range segs {
		if !load_segment(p.Spt, f, seg) {
			ok = false
			break
		}
	}
	if ok {
		ok = setup_stack(p, argv)
	}
	if !ok {
		k.Sys_exit(p, -1)
	}

	if fn := k.progfor(ustr.Ustr(path)); fn != nil {
		fn(p)
	}
	k.Sys_exit(p, 0)
	panic("unreachable")
}
