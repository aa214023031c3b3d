package bitmap

import "testing"

func TestSetTest(t *testing.T) {
	b := New(10)
	if b.Test(3) {
		t.Fatal("bit 3 set on fresh bitmap")
	}
	b.Set(3, true)
	if !b.Test(3) {
		t.Fatal("bit 3 not set after Set(3, true)")
	}
	b.Set(3, false)
	if b.Test(3) {
		t.Fatal("bit 3 still set after Set(3, false)")
	}
}

func TestSpansMultipleWords(t *testing.T) {
	b := New(130)
	b.Set(0, true)
	b.Set(63, true)
	b.Set(64, true)
	b.Set(129, true)
	for _, idx := range []int{0, 63, 64, 129} {
		if !b.Test(idx) {
			t.Fatalf("bit %d not set", idx)
		}
	}
	if b.Count(0, 130, true) != 4 {
		t.Fatalf("Count = %d, want 4", b.Count(0, 130, true))
	}
}

func TestScanAndFlip(t *testing.T) {
	b := New(16)
	b.SetAll(false)
	idx := b.ScanAndFlip(0, 3, false)
	if idx != 0 {
		t.Fatalf("first ScanAndFlip = %d, want 0", idx)
	}
	if !b.All(0, 3) {
		t.Fatal("bits [0,3) not all set after ScanAndFlip")
	}

	idx2 := b.ScanAndFlip(0, 3, false)
	if idx2 != 3 {
		t.Fatalf("second ScanAndFlip = %d, want 3", idx2)
	}
}

func TestScanNotFound(t *testing.T) {
	b := New(4)
	b.SetAll(true)
	if idx := b.Scan(0, 1, false); idx != ErrNotFound {
		t.Fatalf("Scan on full bitmap = %d, want ErrNotFound", idx)
	}
}

func TestAnyAll(t *testing.T) {
	b := New(8)
	if b.Any(0, 8) {
		t.Fatal("Any true on empty bitmap")
	}
	b.Set(4, true)
	if !b.Any(0, 8) {
		t.Fatal("Any false after setting a bit")
	}
	if b.All(0, 8) {
		t.Fatal("All true with only one bit set")
	}
	b.SetAll(true)
	if !b.All(0, 8) {
		t.Fatal("All false after SetAll(true)")
	}
}

func TestOutOfRangePanics(t *testing.T) {
	b := New(4)
	defer func() {
		if recover() == nil {
			t.Fatal("Test(4) on a 4-bit map did not panic")
		}
	}()
	b.Test(4)
}
