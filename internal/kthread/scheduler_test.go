package kthread

import (
	"sort"
	"testing"
)

func bootTest(t *testing.T, mlfqs bool, body func(main *Thread)) {
	t.Helper()
	resetForTest()
	Configure(mlfqs)
	Start("main", PriDefault, body)
}

// TestCreateDoesNotPreempt matches thread_create's contract: spawning a
// higher-priority thread must not switch away from the caller.
func TestCreateDoesNotPreempt(t *testing.T) {
	var ran []string
	bootTest(t, false, func(main *Thread) {
		ran = append(ran, "main-before")
		Create("hi", PriDefault+10, func(t *Thread) {
			ran = append(ran, "hi")
		})
		ran = append(ran, "main-after")
		Yield()
	})
	if len(ran) < 2 || ran[0] != "main-before" || ran[1] != "main-after" {
		t.Fatalf("ran = %v, want main-before/main-after before child runs", ran)
	}
}

// TestPriorityOrderViaRendezvous encodes the classic scenario: three
// threads of priority 30/40/50 are created under a main thread of
// priority 31. Since Create does not preempt, main must itself block
// (here, waiting on a semaphore each child ups on exit) to observe
// the children run in strict descending-priority order.
func TestPriorityOrderViaRendezvous(t *testing.T) {
	var order []string
	bootTest(t, false, func(main *Thread) {
		done := NewSemaphore(0)
		mu := NewLock()

		spawn := func(name string, pri int) {
			Create(name, pri, func(t *Thread) {
				mu.Acquire()
				order = append(order, name)
				mu.Release()
				done.Up()
			})
		}

		mu.Acquire()
		spawn("pri30", 30)
		spawn("pri40", 40)
		spawn("pri50", 50)
		mu.Release()

		done.Down()
		done.Down()
		done.Down()
	})

	want := []string{"pri50", "pri40", "pri30"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// TestPriorityDonationChain exercises nested donation directly against
// the lock bookkeeping: low holds lockA and waits on nothing, medium
// holds lockB and waits on lockA, high waits on lockB. Donating from
// high should walk medium and land on low.
func TestPriorityDonationChain(t *testing.T) {
	resetForTest()

	low := newThread("low", 10)
	medium := newThread("medium", 20)
	high := newThread("high", 50)

	lockA := &Lock{holder: low}
	lockB := &Lock{holder: medium}
	medium.waitOnLock = lockA
	low.donations = append(low.donations, medium)
	high.waitOnLock = lockB
	medium.donations = append(medium.donations, high)

	sched.mu.Lock()
	donatePriorityLocked(high)
	sched.mu.Unlock()

	if medium.priority != 50 {
		t.Fatalf("medium.priority = %d, want 50 (donated from high)", medium.priority)
	}
	if low.priority != 50 {
		t.Fatalf("low.priority = %d, want 50 (donated through medium)", low.priority)
	}

	// Low releases lockA: the donation it received from medium (tied to
	// lockA) is removed, while high's donation to medium (tied to lockB)
	// is unaffected.
	sched.mu.Lock()
	low.donations = nil
	refreshPriorityLocked(low)
	sched.mu.Unlock()

	if low.priority != 10 {
		t.Fatalf("low.priority after donation removed = %d, want 10 (restored base)", low.priority)
	}
}

// TestMaxNestedDepthBoundsChainWalk checks that donation does not walk
// past maxNestedDepth links.
func TestMaxNestedDepthBoundsChainWalk(t *testing.T) {
	resetForTest()

	const n = maxNestedDepth + 4
	chain := make([]*Thread, n)
	for i := range chain {
		chain[i] = newThread("t", 10+i)
	}
	locks := make([]*Lock, n-1)
	for i := 0; i < n-1; i++ {
		locks[i] = &Lock{holder: chain[i]}
		chain[i+1].waitOnLock = locks[i]
		chain[i].donations = append(chain[i].donations, chain[i+1])
	}

	waiter := chain[n-1]
	sched.mu.Lock()
	donatePriorityLocked(waiter)
	sched.mu.Unlock()

	if chain[0].priority == waiter.priority {
		t.Fatalf("chain link 0 received donation past maxNestedDepth=%d", maxNestedDepth)
	}
}

// TestDonationReleaseRestoresPriority verifies that once a holder
// releases a contended lock, its effective priority drops back to
// base (or to whatever lower donation remains).
func TestDonationReleaseRestoresPriority(t *testing.T) {
	bootTest(t, false, func(main *Thread) {
		lock := NewLock()
		lowReady := NewSemaphore(0)
		highDone := NewSemaphore(0)
		lowDone := NewSemaphore(0)
		var lowPriDuring, lowPriAfter int

		Create("low", 10, func(t *Thread) {
			lock.Acquire()
			lowReady.Up()
			Yield()
			lowPriDuring = GetPriority()
			lock.Release()
			lowPriAfter = GetPriority()
			lowDone.Up()
		})

		Create("high", 50, func(t *Thread) {
			lowReady.Down()
			lock.Acquire()
			lock.Release()
			highDone.Up()
		})

		highDone.Down()
		// Release hands the CPU to high, which wakes main (31) ahead of
		// low (10); wait for low to record its post-release priority.
		lowDone.Down()

		if lowPriDuring < 50 {
			t.Fatalf("low priority while holding contended lock = %d, want >= 50", lowPriDuring)
		}
		if lowPriAfter != 10 {
			t.Fatalf("low priority after release = %d, want 10 (restored base)", lowPriAfter)
		}
	})
}

// TestSleepQueueOrdersByWakeTick checks the sleep list's ascending
// wakeup-tick / FIFO-among-ties invariant by waking threads out of
// creation order.
func TestSleepQueueOrdersByWakeTick(t *testing.T) {
	bootTest(t, false, func(main *Thread) {
		var order []int
		lock := NewLock()
		done := NewSemaphore(0)

		wake := func(n int, at int64) {
			Create("sleeper", PriDefault, func(t *Thread) {
				SleepUntil(at)
				lock.Acquire()
				order = append(order, n)
				lock.Release()
				done.Up()
			})
		}

		wake(3, 30)
		wake(1, 10)
		wake(2, 20)

		// Let each sleeper run far enough to call SleepUntil and
		// deschedule itself onto the sleep queue before ticking.
		Yield()

		for Ticks() < 30 {
			Tick()
		}
		done.Down()
		done.Down()
		done.Down()

		if !sort.IntsAreSorted(order) {
			t.Fatalf("wake order = %v, want ascending by wake tick", order)
		}
	})
}

func TestYieldOnReturnAfterTimeSlice(t *testing.T) {
	bootTest(t, false, func(main *Thread) {
		for i := 0; i < TimeSlice; i++ {
			Tick()
		}
		CheckPreemption()
	})
}

func TestPrintStatsFormat(t *testing.T) {
	bootTest(t, false, func(main *Thread) {
		Tick()
		s := PrintStats()
		if s == "" {
			t.Fatal("PrintStats returned empty string")
		}
	})
}
