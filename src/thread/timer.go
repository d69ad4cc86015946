package thread

import "math"

import "github.com/simons-pintos/pintos-kaist/src/klist"

// The sleep queue is ordered by wakeup tick and summarized by
// s.nextwake so the tick handler compares one integer on the common
// path.

/// Sleep blocks the running thread for at least n ticks. Nonpositive
/// n returns immediately.
func Sleep(n int64) {
	if n <= 0 {
		return
	}
	s := S
	s.Lock()
	cur := s.running
	cur.waketick = s.ticks + n
	s.sleepq.InsertOrdered(&cur.elem, wakeless)
	if cur.waketick < s.nextwake {
		s.nextwake = cur.waketick
	}
	cur.state = BLOCKED
	s.schedule()
	s.Unlock()
}

/// Tick is the timer interrupt. It advances the clock, wakes due
/// sleepers, runs the MLFQS recomputations, and charges the running
/// thread's quantum. It never blocks.
func Tick() {
	s := S
	s.Lock()
	s.ticks++
	run := s.running

	if s.ticks >= s.nextwake {
		for e := s.sleepq.Front(); e != nil; {
			t := e.Value.(*Thread_t)
			if t.waketick > s.ticks {
				break
			}
			e = s.sleepq.Remove(&t.elem)
			s.unblock_locked(t)
		}
		if s.sleepq.Empty() {
			s.nextwake = math.MaxInt64
		} else {
			s.nextwake = s.sleepq.Front().Value.(*Thread_t).waketick
		}
	}

	if s.mlfqs {
		if run != s.idle {
			run.recentcpu = run.recentcpu.Addi(1)
		}
		if s.ticks%TIMER_FREQ == 0 {
			s.mlfqs_second()
		}
		if s.ticks%4 == 0 {
			s.mlfqs_priorities()
		}
	}

	s.curticks++
	if s.curticks >= TIME_SLICE {
		run.yieldpend = true
	}
	// a newly ready thread that outranks the running one preempts at
	// the next preemption point
	if !s.readyq.Empty() {
		m := s.readyq.Max(func(a, b *klist.Elem_t) bool {
			return a.Value.(*Thread_t).eff < b.Value.(*Thread_t).eff
		})
		if m.Value.(*Thread_t).eff > run.eff {
			run.yieldpend = true
		}
	}
	s.Unlock()
}
