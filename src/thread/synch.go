package thread

import "github.com/simons-pintos/pintos-kaist/src/klist"

/// Sema_t is a nonnegative counter with a priority-ordered waiter
/// list. The list is re-sorted on Up to tolerate donations that
/// arrived after a waiter enqueued.
type Sema_t struct {
	count   int
	waiters klist.List_t
}

/// Init prepares the semaphore with an initial count.
func (sm *Sema_t) Init(v int) {
	if v < 0 {
		panic("bad sema count")
	}
	sm.count = v
	sm.waiters.Init()
}

/// MkSema allocates a semaphore with an initial count.
func MkSema(v int) *Sema_t {
	sm := &Sema_t{}
	sm.Init(v)
	return sm
}

// must hold s. blocks until a unit is available.
func (sm *Sema_t) down_locked(s *sched_t) {
	cur := s.running
	for sm.count == 0 {
		sm.waiters.InsertOrdered(&cur.elem, readyless)
		cur.state = BLOCKED
		s.schedule()
	}
	sm.count--
}

/// Down decrements the semaphore, blocking while it is zero.
func (sm *Sema_t) Down() {
	s := S
	s.Lock()
	sm.down_locked(s)
	s.Unlock()
}

// must hold s. wakes the highest-priority waiter and reports whether
// that waiter outranks the running thread.
func (sm *Sema_t) up_locked(s *sched_t) bool {
	sm.count++
	if sm.waiters.Empty() {
		return false
	}
	sm.waiters.Sort(readyless)
	e := sm.waiters.PopFront()
	w := e.Value.(*Thread_t)
	s.unblock_locked(w)
	return w.eff > s.running.eff
}

/// Up increments the semaphore and wakes the highest-priority waiter,
/// yielding to it when it outranks the caller. Thread context only.
func (sm *Sema_t) Up() {
	s := S
	s.Lock()
	if sm.up_locked(s) && s.running != s.idle {
		s.yield_locked()
	}
	s.Unlock()
}

/// Up_intr is Up for interrupt context and for goroutines that are
/// not kernel threads: the woken thread is made ready and the running
/// thread is marked for preemption instead of an immediate yield.
func (sm *Sema_t) Up_intr() {
	s := S
	s.Lock()
	if sm.up_locked(s) {
		s.running.yieldpend = true
	}
	s.Unlock()
}

/// Try reports whether a unit could be taken without blocking.
func (sm *Sema_t) Try() bool {
	s := S
	s.Lock()
	ok := sm.count > 0
	if ok {
		sm.count--
	}
	s.Unlock()
	return ok
}

/// Lock_t wraps a binary semaphore and records the holder. Locks are
/// not reentrant; only the holder may release.
type Lock_t struct {
	sema   Sema_t
	Holder *Thread_t
}

/// Init prepares an unheld lock.
func (l *Lock_t) Init() {
	l.sema.Init(1)
}

/// MkLock allocates an unheld lock.
func MkLock() *Lock_t {
	l := &Lock_t{}
	l.Init()
	return l
}

// propagates the donor's effective priority along the chain of
// held-by edges, at most DONATION_DEPTH hops. must hold s.
func donate(donor *Thread_t) {
	cur := donor
	for i := 0; i < DONATION_DEPTH; i++ {
		l := cur.waitingon
		if l == nil || l.Holder == nil {
			break
		}
		h := l.Holder
		if h.eff < cur.eff {
			h.eff = cur.eff
		}
		cur = h
	}
}

/// Acquire takes the lock, donating the caller's effective priority
/// to the holder under the priority policy.
func (l *Lock_t) Acquire() {
	s := S
	// XXXPANIC
	if l.Holder == s.running {
		panic("lock already held")
	}
	s.Lock()
	cur := s.running
	if !s.mlfqs && l.Holder != nil {
		cur.waitingon = l
		cur.donorlock = l
		l.Holder.donors.PushBack(&cur.donorelem)
		donate(cur)
	}
	l.sema.down_locked(s)
	cur.waitingon = nil
	l.Holder = cur
	s.Unlock()
}

/// Release drops the lock, removes the donors tied to it, refreshes
/// the holder's effective priority, and wakes the highest-priority
/// waiter.
func (l *Lock_t) Release() {
	s := S
	if l.Holder != s.running {
		panic("release of lock not held")
	}
	s.Lock()
	cur := s.running
	if !s.mlfqs {
		for e := cur.donors.Front(); e != nil; {
			d := e.Value.(*Thread_t)
			if d.donorlock == l {
				e = cur.donors.Remove(&d.donorelem)
				d.donorlock = nil
			} else {
				e = cur.donors.Next(e)
			}
		}
		cur.refresh_eff()
	}
	l.Holder = nil
	if l.sema.up_locked(s) && s.running != s.idle {
		s.yield_locked()
	}
	s.Unlock()
}

/// Held reports whether the running thread holds the lock.
func (l *Lock_t) Held() bool {
	return l.Holder == Current()
}

type cvwaiter_t struct {
	sema Sema_t
	t    *Thread_t
	elem klist.Elem_t
}

func cvless(a, b *klist.Elem_t) bool {
	return a.Value.(*cvwaiter_t).t.eff > b.Value.(*cvwaiter_t).t.eff
}

/// Cond_t is a condition variable: a list of one-shot per-waiter
/// semaphores ordered by the waiter's priority, FIFO on ties.
type Cond_t struct {
	waiters klist.List_t
}

/// Init prepares the condition variable.
func (c *Cond_t) Init() {
	c.waiters.Init()
}

/// MkCond allocates a condition variable.
func MkCond() *Cond_t {
	c := &Cond_t{}
	c.Init()
	return c
}

/// Wait atomically enqueues the caller, releases l, blocks, and
/// reacquires l before returning. l must be held.
func (c *Cond_t) Wait(l *Lock_t) {
	if !l.Held() {
		panic("cond wait without lock")
	}
	w := &cvwaiter_t{}
	w.sema.Init(0)
	w.t = Current()
	w.elem.Value = w
	s := S
	s.Lock()
	c.waiters.PushBack(&w.elem)
	s.Unlock()
	l.Release()
	w.sema.Down()
	l.Acquire()
}

/// Signal wakes the highest-priority waiter, if any. l must be held.
func (c *Cond_t) Signal(l *Lock_t) {
	if !l.Held() {
		panic("cond signal without lock")
	}
	s := S
	s.Lock()
	if c.waiters.Empty() {
		s.Unlock()
		return
	}
	c.waiters.Sort(cvless)
	e := c.waiters.PopFront()
	s.Unlock()
	e.Value.(*cvwaiter_t).sema.Up()
}

/// Broadcast wakes every waiter. l must be held.
func (c *Cond_t) Broadcast(l *Lock_t) {
	if !l.Held() {
		panic("cond broadcast without lock")
	}
	s := S
	for {
		s.Lock()
		if c.waiters.Empty() {
			s.Unlock()
			return
		}
		e := c.waiters.PopFront()
		s.Unlock()
		e.Value.(*cvwaiter_t).sema.Up()
	}
}
