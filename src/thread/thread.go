// Package thread implements kernel threads: the scheduler, the timer
// tick path, and the synchronization primitives. Each kernel thread
// runs on its own goroutine gated by a run token; exactly one token
// exists, which is the single CPU. The scheduler mutex stands in for
// interrupt disabling: every critical section that touches
// scheduler-visible state holds it, and the tick handler never blocks
// while holding it.
package thread

import "math"
import "runtime"
import "sync"

import "github.com/simons-pintos/pintos-kaist/src/defs"
import "github.com/simons-pintos/pintos-kaist/src/fixedp"
import "github.com/simons-pintos/pintos-kaist/src/klist"

/// Thread priorities. Higher runs first.
const (
	PRI_MIN     = 0
	PRI_DEFAULT = 31
	PRI_MAX     = 63
)

/// TIME_SLICE is the number of timer ticks each thread gets.
const TIME_SLICE = 4

/// TIMER_FREQ is the number of timer ticks per second.
const TIMER_FREQ = 100

/// DONATION_DEPTH caps transitive priority donation.
const DONATION_DEPTH = 8

/// THREAD_NAME_MAX bounds a thread's human-readable name.
const THREAD_NAME_MAX = 15

type state_t int

const (
	RUNNING state_t = iota
	READY
	BLOCKED
	DYING
)

/// Thread_t is one kernel thread.
type Thread_t struct {
	Tid   defs.Tid_t
	name  string
	state state_t

	// base is the priority most recently set by the thread itself;
	// eff is the one the scheduler honors (max of base and donors).
	base int
	eff  int

	// mlfqs statistics
	nice      int
	recentcpu fixedp.Fp_t

	// donation bookkeeping: the lock this thread is blocked on, the
	// threads donating to it, and (while this thread is itself a
	// donor) the lock its donation is tied to.
	waitingon *Lock_t
	donors    klist.List_t
	donorlock *Lock_t

	elem      klist.Elem_t // ready queue, sleep queue, or waiter list
	allelem   klist.Elem_t
	donorelem klist.Elem_t

	waketick  int64
	yieldpend bool

	runch chan struct{}
	fn    func()

	/// Proc points at the owning process, if any. The proc layer
	/// installs it; the scheduler never looks inside.
	Proc interface{}
}

/// Name returns the thread's name.
func (t *Thread_t) Name() string {
	return t.name
}

/// Effpri returns the thread's effective priority.
func (t *Thread_t) Effpri() int {
	return t.eff
}

type sched_t struct {
	sync.Mutex
	readyq  klist.List_t
	sleepq  klist.List_t
	alllist klist.List_t
	running *Thread_t
	idle    *Thread_t

	ticks    int64
	nextwake int64
	curticks int

	ntids defs.Tid_t

	mlfqs   bool
	loadavg fixedp.Fp_t

	idlecond *sync.Cond
}

/// S is the global scheduler instance.
var S *sched_t

// a thread that must come first in a priority-descending list
func readyless(a, b *klist.Elem_t) bool {
	return a.Value.(*Thread_t).eff > b.Value.(*Thread_t).eff
}

func wakeless(a, b *klist.Elem_t) bool {
	return a.Value.(*Thread_t).waketick < b.Value.(*Thread_t).waketick
}

/// Init starts the scheduler with the chosen policy, turns the
/// calling goroutine into the initial thread, and spawns the idle
/// thread. It returns the initial thread.
func Init(mlfqs bool) *Thread_t {
	s := &sched_t{}
	s.readyq.Init()
	s.sleepq.Init()
	s.alllist.Init()
	s.mlfqs = mlfqs
	s.nextwake = math.MaxInt64
	s.idlecond = sync.NewCond(s)
	S = s

	main := s.mkthread("main", PRI_DEFAULT, nil)
	if mlfqs {
		main.setpri_mlfqs()
	}
	main.state = RUNNING
	s.running = main

	idle := s.mkthread("idle", PRI_MIN, nil)
	idle.state = READY
	s.idle = idle
	s.alllist.Remove(&idle.allelem)
	go idleloop(s, idle)
	return main
}

// must hold s
func (s *sched_t) mkthread(name string, pri int, fn func()) *Thread_t {
	if len(name) > THREAD_NAME_MAX {
		name = name[:THREAD_NAME_MAX]
	}
	s.ntids++
	t := &Thread_t{}
	t.Tid = s.ntids
	t.name = name
	t.state = BLOCKED
	t.base = pri
	t.eff = pri
	t.runch = make(chan struct{}, 1)
	t.fn = fn
	t.donors.Init()
	t.elem.Value = t
	t.allelem.Value = t
	t.donorelem.Value = t
	s.alllist.PushBack(&t.allelem)
	return t
}

/// Create spawns a new kernel thread running fn and makes it ready.
/// Under the priority policy the caller yields immediately when the
/// new thread outranks it.
func Create(name string, pri int, fn func()) *Thread_t {
	s := S
	s.Lock()
	t := s.mkthread(name, pri, fn)
	if s.mlfqs {
		// statistics are inherited from the creator
		t.nice = s.running.nice
		t.recentcpu = s.running.recentcpu
		t.setpri_mlfqs()
	}
	go func() {
		<-t.runch
		t.fn()
		Exit()
	}()
	s.unblock_locked(t)
	if !s.mlfqs && t.eff > s.running.eff && s.running != s.idle {
		s.yield_locked()
	}
	s.Unlock()
	return t
}

/// Current returns the running thread. Only meaningful from thread
/// context.
func Current() *Thread_t {
	return S.running
}

/// Ticks returns the current timer tick count.
func Ticks() int64 {
	s := S
	s.Lock()
	r := s.ticks
	s.Unlock()
	return r
}

// picks the next thread to run and dequeues it. must hold s.
func (s *sched_t) pick() *Thread_t {
	if s.readyq.Empty() {
		return s.idle
	}
	e := s.readyq.Max(func(a, b *klist.Elem_t) bool {
		return a.Value.(*Thread_t).eff < b.Value.(*Thread_t).eff
	})
	s.readyq.Remove(e)
	return e.Value.(*Thread_t)
}

// switches to the next thread. the caller must hold s, must have
// updated the current thread's state, and still holds s when this
// returns. a dying thread does not return here; its goroutine ends in
// Exit.
func (s *sched_t) schedule() {
	cur := s.running
	next := s.pick()
	if next == cur {
		cur.state = RUNNING
		return
	}
	next.state = RUNNING
	s.running = next
	s.curticks = 0
	next.runch <- struct{}{}
	if cur.state == DYING {
		return
	}
	s.Unlock()
	<-cur.runch
	s.Lock()
}

// must hold s
func (s *sched_t) unblock_locked(t *Thread_t) {
	// XXXPANIC
	if t.state != BLOCKED {
		panic("unblock of non-blocked thread")
	}
	t.state = READY
	s.readyq.InsertOrdered(&t.elem, readyless)
	s.idlecond.Signal()
}

/// Unblock moves a blocked thread to the ready queue. It does not
/// preempt; callers that want preemption use the sync primitives.
func Unblock(t *Thread_t) {
	s := S
	s.Lock()
	s.unblock_locked(t)
	s.Unlock()
}

/// Block marks the running thread blocked and schedules. Somebody
/// must later Unblock it.
func Block() {
	s := S
	s.Lock()
	s.running.state = BLOCKED
	s.schedule()
	s.Unlock()
}

// must hold s
func (s *sched_t) yield_locked() {
	cur := s.running
	cur.yieldpend = false
	if cur != s.idle {
		cur.state = READY
		s.readyq.InsertOrdered(&cur.elem, readyless)
	}
	s.schedule()
}

/// Yield gives up the CPU; the thread stays ready.
func Yield() {
	s := S
	s.Lock()
	s.yield_locked()
	s.Unlock()
}

/// Pause is a preemption point: where real hardware would deliver the
/// timer interrupt mid-instruction-stream, hosted code calls Pause.
/// It yields only when a tick has marked the thread for preemption.
func Pause() {
	s := S
	s.Lock()
	if s.running.yieldpend {
		s.yield_locked()
	}
	s.Unlock()
}

/// Exit terminates the running thread. It never returns.
func Exit() {
	s := S
	s.Lock()
	cur := s.running
	cur.state = DYING
	if cur.allelem.Inlist() {
		s.alllist.Remove(&cur.allelem)
	}
	s.schedule()
	s.Unlock()
	// the kernel stack (this goroutine) unwinds here; the thread
	// record is freed once the parent collects the exit status.
	runtime.Goexit()
}

/// Set_priority updates the running thread's base priority and
/// recomputes its effective priority from the remaining donors. Under
/// MLFQS it is a no-op.
func Set_priority(pri int) {
	if pri < PRI_MIN || pri > PRI_MAX {
		panic("bad priority")
	}
	s := S
	s.Lock()
	if s.mlfqs {
		s.Unlock()
		return
	}
	cur := s.running
	cur.base = pri
	cur.refresh_eff()
	s.maybe_yield_locked()
	s.Unlock()
}

/// Get_priority returns the running thread's effective priority.
func Get_priority() int {
	s := S
	s.Lock()
	r := s.running.eff
	s.Unlock()
	return r
}

// yields when a ready thread outranks the running one. must hold s.
func (s *sched_t) maybe_yield_locked() {
	if s.readyq.Empty() || s.running == s.idle {
		return
	}
	m := s.readyq.Max(func(a, b *klist.Elem_t) bool {
		return a.Value.(*Thread_t).eff < b.Value.(*Thread_t).eff
	})
	if m.Value.(*Thread_t).eff > s.running.eff {
		s.yield_locked()
	}
}

// eff = max(base, donor effs). must hold s.
func (t *Thread_t) refresh_eff() {
	eff := t.base
	t.donors.Apply(func(e *klist.Elem_t) {
		d := e.Value.(*Thread_t)
		if d.eff > eff {
			eff = d.eff
		}
	})
	t.eff = eff
}

func idleloop(s *sched_t, t *Thread_t) {
	<-t.runch
	s.Lock()
	for {
		for s.readyq.Empty() {
			s.idlecond.Wait()
		}
		t.state = READY
		s.schedule()
	}
}
