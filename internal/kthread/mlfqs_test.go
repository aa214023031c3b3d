package kthread

import (
	"testing"

	"kernelcore/internal/fixedpoint"
)

func TestMLFQSPriorityFormula(t *testing.T) {
	resetForTest()
	tr := newThread("t", PriDefault)
	tr.recentCPU = fixedpoint.FromInt(100)
	tr.nice = 5

	sched.mu.Lock()
	mlfqsCalculatePriority(tr)
	sched.mu.Unlock()

	want := PriMax - 100/4 - 5*2
	if tr.priority != want {
		t.Fatalf("priority = %d, want %d", tr.priority, want)
	}
}

func TestMLFQSPriorityClampedToBounds(t *testing.T) {
	resetForTest()
	tr := newThread("t", PriDefault)
	tr.recentCPU = fixedpoint.FromInt(1000)
	tr.nice = NiceMax

	sched.mu.Lock()
	mlfqsCalculatePriority(tr)
	sched.mu.Unlock()

	if tr.priority != PriMin {
		t.Fatalf("priority = %d, want clamped to PriMin=%d", tr.priority, PriMin)
	}

	tr.recentCPU = fixedpoint.FromInt(0)
	tr.nice = NiceMin
	sched.mu.Lock()
	mlfqsCalculatePriority(tr)
	sched.mu.Unlock()
	if tr.priority != PriMax {
		t.Fatalf("priority = %d, want clamped to PriMax=%d", tr.priority, PriMax)
	}
}

func TestMLFQSRecentCPUDecay(t *testing.T) {
	resetForTest()
	tr := newThread("t", PriDefault)
	tr.nice = 0
	tr.recentCPU = fixedpoint.FromInt(10)
	sched.loadAvg = fixedpoint.FromInt(1) // load_avg = 1.0

	sched.mu.Lock()
	mlfqsCalculateRecentCPU(tr)
	sched.mu.Unlock()

	// decay = 2*1 / (2*1+1) = 2/3; recent_cpu = 2/3*10 + 0 ~= 6 (floor)
	got := tr.recentCPU.ToIntZero()
	if got < 5 || got > 7 {
		t.Fatalf("recentCPU = %d, want approximately 6-7", got)
	}
}

func TestMLFQSLoadAvgFormula(t *testing.T) {
	resetForTest()
	sched.loadAvg = fixedpoint.FromInt(0)
	sched.ready = nil
	sched.current = newThread("main", PriDefault)
	sched.current.idle = false

	sched.mu.Lock()
	mlfqsCalculateLoadAvgLocked()
	sched.mu.Unlock()

	// load_avg = 59/60*0 + 1/60*1 = 1/60, strictly between 0 and 1.
	if sched.loadAvg <= 0 {
		t.Fatalf("loadAvg = %v, want > 0", sched.loadAvg)
	}
	if sched.loadAvg.ToIntNearest() != 0 {
		t.Fatalf("loadAvg rounded = %d, want 0 (1/60 rounds down)", sched.loadAvg.ToIntNearest())
	}
}

func TestMLFQSLoadAvgCountsOnlyNonIdleCurrent(t *testing.T) {
	resetForTest()
	sched.loadAvg = fixedpoint.FromInt(0)
	sched.ready = nil
	sched.current = newThread("idle", PriDefault)
	sched.current.idle = true

	sched.mu.Lock()
	mlfqsCalculateLoadAvgLocked()
	sched.mu.Unlock()

	if sched.loadAvg != 0 {
		t.Fatalf("loadAvg = %v, want 0 when only the idle thread is current and ready is empty", sched.loadAvg)
	}
}

// TestMLFQSDisablesSetPriority checks the SetPriority no-op
// contract under mlfqs.
func TestMLFQSDisablesSetPriority(t *testing.T) {
	resetForTest()
	Configure(true)
	Start("main", PriDefault, func(main *Thread) {
		before := GetPriority()
		SetPriority(before + 10)
		after := GetPriority()
		if after != before {
			t.Fatalf("priority changed under mlfqs: %d -> %d", before, after)
		}
	})
}

// TestMLFQSTickRecalculatesWholePopulationEveryTimerFreq exercises the
// cadence resolved against the tick-driven recalculation: per-tick
// recent_cpu/priority updates for the current thread, and a full
// sweep plus load_avg recompute every TimerFreq ticks.
func TestMLFQSTickRecalculatesWholePopulationEveryTimerFreq(t *testing.T) {
	resetForTest()
	Configure(true)
	Start("main", PriDefault, func(main *Thread) {
		for i := 0; i < TimerFreq; i++ {
			Tick()
		}
		if LoadAvg() == fixedpoint.FromInt(0) && Ticks() >= TimerFreq {
			// load_avg should have moved off zero once a full period has
			// elapsed with at least the current thread runnable.
			t.Fatalf("loadAvg did not change after %d ticks", TimerFreq)
		}
	})
}
