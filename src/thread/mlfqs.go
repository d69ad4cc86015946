package thread

import "github.com/simons-pintos/pintos-kaist/src/fixedp"
import "github.com/simons-pintos/pintos-kaist/src/klist"

// The multi-level feedback queue policy. Priorities are derived from
// running statistics; donation is disabled and Set_priority is a
// no-op while this policy is active.

/// NICE_MIN and NICE_MAX bound a thread's nice value.
const (
	NICE_MIN = -20
	NICE_MAX = 20
)

// ready threads for the load average: the ready queue plus the
// running thread, unless it is idle. must hold s.
func (s *sched_t) ready_count() int {
	n := s.readyq.Len()
	if s.running != s.idle {
		n++
	}
	return n
}

// priority = PRI_MAX - recent_cpu/4 - nice*2, clamped. must hold s.
func (t *Thread_t) setpri_mlfqs() {
	pri := t.recentcpu.Divi(-4).Addi(PRI_MAX - t.nice*2).Fptoi_round()
	if pri < PRI_MIN {
		pri = PRI_MIN
	}
	if pri > PRI_MAX {
		pri = PRI_MAX
	}
	t.base = pri
	t.eff = pri
}

// once a second: load_avg decays toward the ready count and every
// thread's recent_cpu decays by 2*load_avg/(2*load_avg+1). must hold s.
func (s *sched_t) mlfqs_second() {
	ready := s.ready_count()
	s.loadavg = fixedp.Itofp(59).Div(fixedp.Itofp(60)).Mul(s.loadavg).
		Add(fixedp.Itofp(1).Div(fixedp.Itofp(60)).Muli(ready))
	coeff := s.loadavg.Muli(2).Div(s.loadavg.Muli(2).Addi(1))
	s.alllist.Apply(func(e *klist.Elem_t) {
		t := e.Value.(*Thread_t)
		t.recentcpu = coeff.Mul(t.recentcpu).Addi(t.nice)
	})
}

// every fourth tick: recompute all priorities. must hold s.
func (s *sched_t) mlfqs_priorities() {
	s.alllist.Apply(func(e *klist.Elem_t) {
		t := e.Value.(*Thread_t)
		t.setpri_mlfqs()
	})
	if !s.readyq.Empty() {
		s.readyq.Sort(readyless)
	}
}

/// Set_nice updates the running thread's nice value, recomputes its
/// priority, and yields if it no longer has the highest.
func Set_nice(nice int) {
	if nice < NICE_MIN || nice > NICE_MAX {
		panic("bad nice")
	}
	s := S
	s.Lock()
	cur := s.running
	cur.nice = nice
	if s.mlfqs {
		cur.setpri_mlfqs()
		s.maybe_yield_locked()
	}
	s.Unlock()
}

/// Get_nice returns the running thread's nice value.
func Get_nice() int {
	s := S
	s.Lock()
	r := s.running.nice
	s.Unlock()
	return r
}

/// Get_load_avg returns 100 times the system load average, rounded.
func Get_load_avg() int {
	s := S
	s.Lock()
	r := s.loadavg.Muli(100).Fptoi_round()
	s.Unlock()
	return r
}

/// Get_recent_cpu returns 100 times the running thread's recent_cpu,
/// rounded.
func Get_recent_cpu() int {
	s := S
	s.Lock()
	r := s.running.recentcpu.Muli(100).Fptoi_round()
	s.Unlock()
	return r
}
