package vm

import "github.com/simons-pintos/pintos-kaist/src/fdops"
import "github.com/simons-pintos/pintos-kaist/src/mem"

/// Fileaux_t is the opaque argument carried by an Uninit page whose
/// final kind is FileBacked: where its first contents come from.
type Fileaux_t struct {
	Fops  fdops.Fdops_i
	Off   int
	Bytes int
}

// first-touch conversion: the page becomes its final kind in place,
// then the supplied loader populates the frame. callers never hold a
// reference to the old variant across this. must hold vmlock.
func uninit_in(pg *Page_t, bpg *mem.Bytepg_t) bool {
	kind := pg.initkind
	init := pg.init
	aux := pg.aux
	pg.init = nil
	pg.aux = nil
	switch kind {
	case VM_ANON:
		pg.kind = VM_ANON
		pg.swapslot = -1
	case VM_FILE:
		pg.kind = VM_FILE
		if fa, ok := aux.(*Fileaux_t); ok {
			pg.fops = fa.Fops
			pg.foff = fa.Off
			pg.fbytes = fa.Bytes
		}
	default:
		panic("wut")
	}
	if init != nil {
		return init(pg, bpg, aux)
	}
	return true
}
