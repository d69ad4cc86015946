package hashtable

import "fmt"
import "sync"
import "sync/atomic"
import "unsafe"

// A hashtable with a lock-free Get(). Keys are the kernel's integer
// key types: virtual page numbers (uintptr), thread ids (int), and
// cluster numbers (int32).

type elem_t struct {
	key     interface{}
	value   interface{}
	keyHash uint32
	next    *elem_t
}

type bucket_t struct {
	sync.RWMutex
	first *elem_t
}

func (b *bucket_t) len() int {
	b.RLock()
	defer b.RUnlock()

	l := 0
	for e := b.first; e != nil; e = e.next {
		l++
	}
	return l
}

func (b *bucket_t) elems() []Pair_t {
	b.RLock()
	defer b.RUnlock()

	p := make([]Pair_t, 0)
	for e := b.first; e != nil; e = e.next {
		p = append(p, Pair_t{Key: e.key, Value: e.value})
	}
	return p
}

func (b *bucket_t) iter(f func(interface{}, interface{}) bool) bool {
	for e := b.first; e != nil; e = loadptr(&e.next) {
		if f(e.key, e.value) {
			return true
		}
	}
	return false
}

// / Hashtable_t maps integer keys to values. It is protected
// / internally by bucket locks.
type Hashtable_t struct {
	table    []*bucket_t
	capacity int
}

// / MkHash allocates a new Hashtable_t with the given number of
// / buckets.
func MkHash(size int) *Hashtable_t {
	ht := &Hashtable_t{}
	ht.capacity = size
	ht.table = make([]*bucket_t, size)
	for i := range ht.table {
		ht.table[i] = &bucket_t{}
	}
	return ht
}

// / Size returns the total number of elements stored in the table.
func (ht *Hashtable_t) Size() int {
	n := 0
	for _, b := range ht.table {
		n += b.len()
	}
	return n
}

// / Pair_t is a key/value tuple returned by Elems.
type Pair_t struct {
	Key   interface{}
	Value interface{}
}

// / Elems returns all key/value pairs currently stored.
func (ht *Hashtable_t) Elems() []Pair_t {
	p := make([]Pair_t, 0)
	for _, b := range ht.table {
		n := b.elems()
		if n != nil {
			p = append(p, n...)
		}
	}
	return p
}

// / Get looks up key and returns its value.
func (ht *Hashtable_t) Get(key interface{}) (interface{}, bool) {
	kh := khash(key)
	b := ht.table[ht.hash(kh)]
	for e := loadptr(&b.first); e != nil; e = loadptr(&e.next) {
		if e.keyHash == kh && equal(e.key, key) {
			return e.value, true
		}
	}
	return nil, false
}

// / Set inserts a key/value pair. It returns the existing value and
// / false when the key is already present; insertion is deduplicating.
func (ht *Hashtable_t) Set(key interface{}, value interface{}) (interface{}, bool) {
	kh := khash(key)
	b := ht.table[ht.hash(kh)]
	b.Lock()
	defer b.Unlock()

	add := func(last *elem_t, b *bucket_t) {
		if last == nil {
			n := &elem_t{key: key, value: value, keyHash: kh, next: b.first}
			storeptr(&b.first, n)
		} else {
			n := &elem_t{key: key, value: value, keyHash: kh, next: last.next}
			storeptr(&last.next, n)
		}
	}

	var last *elem_t
	for e := b.first; e != nil; e = e.next {
		if e.keyHash == kh && equal(e.key, key) {
			return e.value, false
		}
		if kh < e.keyHash {
			add(last, b)
			return value, true
		}
		last = e
	}
	add(last, b)
	return value, true
}

// / Del removes key from the table. Deleting a key that is not
// / present is a programming error.
func (ht *Hashtable_t) Del(key interface{}) {
	kh := khash(key)
	b := ht.table[ht.hash(kh)]
	b.Lock()
	defer b.Unlock()

	rem := func(last *elem_t, b *bucket_t, n *elem_t) {
		if last == nil {
			storeptr(&b.first, n.next)
		} else {
			storeptr(&last.next, n.next)
		}
	}

	var last *elem_t
	for e := b.first; e != nil; e = e.next {
		if e.keyHash == kh && equal(e.key, key) {
			rem(last, b, e)
			return
		}
		if kh < e.keyHash {
			panic("del of non-existing key")
		}
		last = e
	}
	panic("del of non-existing key")
}

// / Iter applies f to each key/value pair, stopping when f returns
// / true. It returns whether f ever returned true.
func (ht *Hashtable_t) Iter(f func(interface{}, interface{}) bool) bool {
	for _, b := range ht.table {
		if b.iter(f) {
			return true
		}
	}
	return false
}

func (ht *Hashtable_t) hash(keyHash uint32) int {
	return int(keyHash % uint32(len(ht.table)))
}

// Without an explicit memory model, it is hard to know if this code is
// correct. LoadPointer/StorePointer don't issue a memory fence, but for
// traversing pointers in Get() and updating them in Set()/Del(), this might be
// ok on x86. The Go compiler also hopefully doesn't reorder loads
// wrt. LoadPointer.
func loadptr(e **elem_t) *elem_t {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(e))
	p := atomic.LoadPointer(ptr)
	n := (*elem_t)(unsafe.Pointer(p))
	return n
}

func storeptr(p **elem_t, n *elem_t) {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(p))
	v := (unsafe.Pointer)(n)
	atomic.StorePointer(ptr, v)
}

func khash(key interface{}) uint32 {
	h := hash(key)
	return uint32(2654435761) * h
}

func hash(key interface{}) uint32 {
	switch x := key.(type) {
	case int:
		return uint32(x)
	case int32:
		return uint32(x)
	case uintptr:
		return uint32(x ^ x>>32)
	}
	panic(fmt.Errorf("unsupported key type %T", key))
}

func equal(key1 interface{}, key2 interface{}) bool {
	switch x := key1.(type) {
	case int:
		return x == key2.(int)
	case int32:
		return x == key2.(int32)
	case uintptr:
		return x == key2.(uintptr)
	}
	panic(fmt.Errorf("unsupported key type %T", key1))
}
