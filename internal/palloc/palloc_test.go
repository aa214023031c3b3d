package palloc

import "testing"

func TestGetFreeRoundtrip(t *testing.T) {
	p := NewPool(2, 2)
	f, ok := p.Get(FlagUser)
	if !ok {
		t.Fatal("Get(FlagUser) failed on fresh pool")
	}
	if int(f) < 2 {
		t.Fatalf("user frame %d allocated from kernel region", f)
	}
	p.Free(f)
}

func TestKernelUserSeparation(t *testing.T) {
	p := NewPool(1, 1)
	k, ok := p.Get(0)
	if !ok || k != 0 {
		t.Fatalf("kernel Get = (%d,%v), want (0,true)", k, ok)
	}
	if _, ok := p.Get(0); ok {
		t.Fatal("second kernel Get succeeded with only 1 kernel frame")
	}
	u, ok := p.Get(FlagUser)
	if !ok || u != 1 {
		t.Fatalf("user Get = (%d,%v), want (1,true)", u, ok)
	}
}

func TestZeroFlagClearsPage(t *testing.T) {
	p := NewPool(0, 1)
	f, _ := p.Get(FlagUser)
	b := p.Bytes(f)
	b[0] = 0xff
	p.Free(f)
	f2, _ := p.Get(FlagUser | FlagZero)
	if f2 != f {
		t.Fatalf("reallocated frame %d, want reuse of %d", f2, f)
	}
	if p.Bytes(f2)[0] != 0 {
		t.Fatal("FlagZero did not clear reused page")
	}
}

func TestDoubleFreePanics(t *testing.T) {
	p := NewPool(1, 0)
	f, _ := p.Get(0)
	p.Free(f)
	defer func() {
		if recover() == nil {
			t.Fatal("double Free did not panic")
		}
	}()
	p.Free(f)
}

func TestAccessedDirtyBits(t *testing.T) {
	p := NewPool(1, 0)
	f, _ := p.Get(0)
	if p.Accessed(f) || p.Dirty(f) {
		t.Fatal("fresh frame has accessed/dirty bits set")
	}
	p.SetAccessed(f, true)
	p.SetDirty(f, true)
	if !p.Accessed(f) || !p.Dirty(f) {
		t.Fatal("SetAccessed/SetDirty did not stick")
	}
}
