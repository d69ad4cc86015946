package thread

import "testing"

import "github.com/simons-pintos/pintos-kaist/src/fixedp"

// reference evaluation of the documented recurrences for one
// CPU-bound thread with nice=0
type mlfqsref_t struct {
	recentcpu fixedp.Fp_t
	loadavg   fixedp.Fp_t
	pri       int
}

func (r *mlfqsref_t) tick(n int64) {
	r.recentcpu = r.recentcpu.Addi(1)
	if n%TIMER_FREQ == 0 {
		ready := 1
		r.loadavg = fixedp.Itofp(59).Div(fixedp.Itofp(60)).Mul(r.loadavg).
			Add(fixedp.Itofp(1).Div(fixedp.Itofp(60)).Muli(ready))
		coeff := r.loadavg.Muli(2).Div(r.loadavg.Muli(2).Addi(1))
		r.recentcpu = coeff.Mul(r.recentcpu).Addi(0)
	}
	if n%4 == 0 {
		pri := r.recentcpu.Divi(-4).Addi(PRI_MAX).Fptoi_round()
		if pri < PRI_MIN {
			pri = PRI_MIN
		}
		if pri > PRI_MAX {
			pri = PRI_MAX
		}
		r.pri = pri
	}
}

func TestMlfqsFormula(t *testing.T) {
	Init(true)
	ref := &mlfqsref_t{pri: PRI_MAX}
	for n := int64(1); n <= 100; n++ {
		Tick()
		ref.tick(n)
	}
	rc := Get_recent_cpu()
	wantrc := ref.recentcpu.Muli(100).Fptoi_round()
	if d := rc - wantrc; d < -1 || d > 1 {
		t.Fatalf("recent_cpu*100 = %v; reference %v", rc, wantrc)
	}
	if got := Get_priority(); got != ref.pri {
		t.Fatalf("priority %v; reference %v", got, ref.pri)
	}
	la := Get_load_avg()
	wantla := ref.loadavg.Muli(100).Fptoi_round()
	if la != wantla {
		t.Fatalf("load_avg*100 = %v; reference %v", la, wantla)
	}
}

func TestMlfqsSetPriorityIgnored(t *testing.T) {
	Init(true)
	before := Get_priority()
	Set_priority(PRI_MIN)
	if got := Get_priority(); got != before {
		t.Fatalf("set_priority changed priority under mlfqs: %v -> %v", before, got)
	}
}

func TestMlfqsNice(t *testing.T) {
	Init(true)
	Set_nice(10)
	if Get_nice() != 10 {
		t.Fatalf("nice %v", Get_nice())
	}
	// priority drops by nice*2 immediately after the recompute
	if got := Get_priority(); got != PRI_MAX-20 {
		t.Fatalf("priority with nice=10: %v; want %v", got, PRI_MAX-20)
	}
}

func TestMlfqsCpuBoundLosesPriority(t *testing.T) {
	Init(true)
	start := Get_priority()
	for i := 0; i < 400; i++ {
		Tick()
	}
	if got := Get_priority(); got >= start {
		t.Fatalf("cpu-bound thread kept priority %v (start %v)", got, start)
	}
}
