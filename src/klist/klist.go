// Package klist provides the kernel's intrusive doubly-linked list.
// An Elem_t is embedded in (or owned by) the enclosing record and
// carries a pointer back to it, so removal is O(1) given the element.
// Removing an element that is not currently in a list is undefined;
// callers must maintain that discipline.
package klist

/// Elem_t is one list node. Value points at the enclosing record.
type Elem_t struct {
	prev  *Elem_t
	next  *Elem_t
	Value interface{}
}

/// Inlist reports whether the element is currently linked.
func (e *Elem_t) Inlist() bool {
	return e.next != nil
}

/// Lessf_t orders two elements. It returns true when a must come
/// before b.
type Lessf_t func(a, b *Elem_t) bool

/// List_t is a doubly-linked list with sentinel head and tail.
type List_t struct {
	head Elem_t
	tail Elem_t
	len  int
}

/// MkList returns an initialized empty list.
func MkList() *List_t {
	l := &List_t{}
	l.Init()
	return l
}

/// Init prepares the list for use. A list must be initialized before
/// any other operation.
func (l *List_t) Init() {
	l.head.prev = nil
	l.head.next = &l.tail
	l.tail.prev = &l.head
	l.tail.next = nil
	l.len = 0
}

/// Empty reports whether the list has no elements.
func (l *List_t) Empty() bool {
	return l.head.next == &l.tail
}

/// Len returns the number of elements in the list.
func (l *List_t) Len() int {
	return l.len
}

/// Front returns the first element or nil if the list is empty.
func (l *List_t) Front() *Elem_t {
	if l.Empty() {
		return nil
	}
	return l.head.next
}

/// Back returns the last element or nil if the list is empty.
func (l *List_t) Back() *Elem_t {
	if l.Empty() {
		return nil
	}
	return l.tail.prev
}

/// Next returns the successor of e or nil at the end of the list.
func (l *List_t) Next(e *Elem_t) *Elem_t {
	if e.next == &l.tail {
		return nil
	}
	return e.next
}

/// InsertBefore links e immediately before pos.
func (l *List_t) InsertBefore(pos, e *Elem_t) {
	// XXXPANIC
	if e.next != nil || e.prev != nil {
		panic("elem already in a list")
	}
	e.prev = pos.prev
	e.next = pos
	pos.prev.next = e
	pos.prev = e
	l.len++
}

/// PushFront adds e at the head of the list.
func (l *List_t) PushFront(e *Elem_t) {
	l.InsertBefore(l.head.next, e)
}

/// PushBack adds e at the tail of the list.
func (l *List_t) PushBack(e *Elem_t) {
	l.InsertBefore(&l.tail, e)
}

/// Remove unlinks e and returns its successor. e must be in this
/// list.
func (l *List_t) Remove(e *Elem_t) *Elem_t {
	// XXXPANIC
	if e.next == nil || e.prev == nil {
		panic("elem not in a list")
	}
	ret := e.next
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
	l.len--
	if ret == &l.tail {
		return nil
	}
	return ret
}

/// PopFront removes and returns the first element. The list must not
/// be empty.
func (l *List_t) PopFront() *Elem_t {
	e := l.Front()
	if e == nil {
		panic("pop of empty list")
	}
	l.Remove(e)
	return e
}

/// PopBack removes and returns the last element. The list must not be
/// empty.
func (l *List_t) PopBack() *Elem_t {
	e := l.Back()
	if e == nil {
		panic("pop of empty list")
	}
	l.Remove(e)
	return e
}

/// InsertOrdered places e before the first element for which
/// less(e, cur) holds, keeping an already-ordered list ordered.
func (l *List_t) InsertOrdered(e *Elem_t, less Lessf_t) {
	cur := l.head.next
	for cur != &l.tail {
		if less(e, cur) {
			break
		}
		cur = cur.next
	}
	l.InsertBefore(cur, e)
}

/// Min returns the smallest element under less, or nil if empty.
/// Ties go to the earliest such element.
func (l *List_t) Min(less Lessf_t) *Elem_t {
	min := l.Front()
	if min == nil {
		return nil
	}
	for e := min.next; e != &l.tail; e = e.next {
		if less(e, min) {
			min = e
		}
	}
	return min
}

/// Max returns the largest element under less, or nil if empty.
/// Ties go to the earliest such element.
func (l *List_t) Max(less Lessf_t) *Elem_t {
	max := l.Front()
	if max == nil {
		return nil
	}
	for e := max.next; e != &l.tail; e = e.next {
		if less(max, e) {
			max = e
		}
	}
	return max
}

/// Apply calls f on every element, front to back. f may not modify
/// the list.
func (l *List_t) Apply(f func(*Elem_t)) {
	for e := l.head.next; e != &l.tail; e = e.next {
		f(e)
	}
}

// returns the first element of the run following the nondecreasing
// run starting at a. a may be the tail sentinel.
func (l *List_t) runend(a *Elem_t, less Lessf_t) *Elem_t {
	if a == &l.tail {
		return a
	}
	for a.next != &l.tail {
		if less(a.next, a) {
			return a.next
		}
		a = a.next
	}
	return &l.tail
}

// merges the run [a0, a1b0) with the run [a1b0, b1) in place.
func (l *List_t) inmerge(a0, a1b0, b1 *Elem_t, less Lessf_t) {
	for a0 != a1b0 && a1b0 != b1 {
		if less(a1b0, a0) {
			n := a1b0.next
			// move a1b0 before a0
			a1b0.prev.next = a1b0.next
			a1b0.next.prev = a1b0.prev
			a1b0.prev = a0.prev
			a1b0.next = a0
			a0.prev.next = a1b0
			a0.prev = a1b0
			a1b0 = n
		} else {
			a0 = a0.next
		}
	}
}

/// Sort orders the list under less using a natural iterative merge
/// sort: O(n log n) time, O(1) space, stable.
func (l *List_t) Sort(less Lessf_t) {
	for {
		passes := 0
		a0 := l.head.next
		for a0 != &l.tail {
			passes++
			a1b0 := l.runend(a0, less)
			if a1b0 == &l.tail {
				break
			}
			b1 := l.runend(a1b0, less)
			l.inmerge(a0, a1b0, b1, less)
			a0 = b1
		}
		if passes <= 1 {
			return
		}
	}
}

/// Unique removes each element that equals its predecessor under eq.
/// The list should already be sorted for full deduplication.
func (l *List_t) Unique(eq func(a, b *Elem_t) bool) {
	e := l.Front()
	if e == nil {
		return
	}
	for n := e.next; n != &l.tail; n = e.next {
		if eq(e, n) {
			l.Remove(n)
		} else {
			e = n
		}
	}
}
