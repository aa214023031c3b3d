package ktimer

import (
	"testing"
	"time"

	"kernelcore/internal/kthread"
)

// TestTimerDrivesSchedulerTicks boots a scheduler (kthread.Start panics
// if called more than once per process) and exercises Start/Stop/
// Shutdown against it from within the one boot.
func TestTimerDrivesSchedulerTicks(t *testing.T) {
	kthread.Configure(false)
	kthread.Start("main", kthread.PriDefault, func(*kthread.Thread) {
		before := kthread.Ticks()

		timer := New(time.Millisecond)
		timer.Start()
		time.Sleep(20 * time.Millisecond)

		after := kthread.Ticks()
		if after <= before {
			t.Fatalf("expected Ticks to advance while running, before=%d after=%d", before, after)
		}

		timer.Stop()
		stoppedAt := kthread.Ticks()
		time.Sleep(15 * time.Millisecond)
		if kthread.Ticks() != stoppedAt {
			t.Fatalf("ticks advanced after Stop: %d -> %d", stoppedAt, kthread.Ticks())
		}

		timer.Shutdown()
	})
}
