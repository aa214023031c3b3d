package intr

import "testing"

func TestDisableRestore(t *testing.T) {
	old := SetLevel(LevelOn)
	defer SetLevel(old)

	prev := Disable()
	if prev != LevelOn {
		t.Fatalf("Disable() previous = %v, want LevelOn", prev)
	}
	if GetLevel() != LevelOff {
		t.Fatalf("GetLevel() = %v, want LevelOff", GetLevel())
	}
	SetLevel(prev)
	if GetLevel() != LevelOn {
		t.Fatalf("GetLevel() after restore = %v, want LevelOn", GetLevel())
	}
}

func TestContextYieldOnReturn(t *testing.T) {
	EnterContext()
	if !InContext() {
		t.Fatal("InContext() = false inside EnterContext/ExitContext pair")
	}
	YieldOnReturn()
	yield := ExitContext()
	if !yield {
		t.Fatal("ExitContext() = false, want true after YieldOnReturn")
	}
	if InContext() {
		t.Fatal("InContext() = true after ExitContext")
	}
	// Flag should have been consumed.
	EnterContext()
	yield = ExitContext()
	if yield {
		t.Fatal("ExitContext() = true on second call, flag should be consumed")
	}
}
