package bitmap

import "testing"

func TestSetResetTest(t *testing.T) {
	b := MkBitmap(200)
	if b.Size() != 200 || b.Count() != 0 {
		t.Fatalf("fresh bitmap: size %v count %v", b.Size(), b.Count())
	}
	for i := 0; i < 200; i += 3 {
		b.Set(i)
	}
	for i := 0; i < 200; i++ {
		want := i%3 == 0
		if b.Test(i) != want {
			t.Fatalf("bit %v: %v", i, b.Test(i))
		}
	}
	b.Reset(0)
	if b.Test(0) {
		t.Fatalf("reset did not clear")
	}
}

func TestScanAndFlip(t *testing.T) {
	b := MkBitmap(8)
	// allocate all slots one at a time
	for i := 0; i < 8; i++ {
		idx, ok := b.Scan_and_flip(0, 1, false)
		if !ok || idx != i {
			t.Fatalf("alloc %v: got %v %v", i, idx, ok)
		}
	}
	if _, ok := b.Scan_and_flip(0, 1, false); ok {
		t.Fatalf("alloc from full bitmap succeeded")
	}
	// free one in the middle and reallocate it
	b.Reset(5)
	idx, ok := b.Scan_and_flip(0, 1, false)
	if !ok || idx != 5 {
		t.Fatalf("realloc: got %v %v", idx, ok)
	}
}

func TestScanRun(t *testing.T) {
	b := MkBitmap(64)
	b.Set(3)
	b.Set(10)
	idx, ok := b.Scan(0, 5, false)
	if !ok || idx != 4 {
		t.Fatalf("run of 5 clear: got %v %v", idx, ok)
	}
	idx, ok = b.Scan(11, 50, false)
	if !ok || idx != 11 {
		t.Fatalf("run after 11: got %v %v", idx, ok)
	}
	if _, ok = b.Scan(0, 64, false); ok {
		t.Fatalf("full-length clear run should not exist")
	}
}
