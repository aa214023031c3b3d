/*
 * kernelcore - Regular timer event.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package ktimer drives kthread.Tick on a regular interval from its own
// goroutine, the way a real timer interrupt would fire on hardware
// without needing the interrupted thread's cooperation. kthread.Tick
// is already safe to call this way -- it takes the scheduler lock
// itself and only ever sets a yield-on-return flag the ticked thread
// observes at its next CheckPreemption call.
package ktimer

import (
	"log/slog"
	"sync"
	"time"

	"kernelcore/internal/kthread"
)

// Timer delivers one kthread.Tick per interval while running.
type Timer struct {
	wg      sync.WaitGroup
	running bool
	enable  chan bool
	done    chan struct{}
	ticker  *time.Ticker
	period  time.Duration
}

// New creates a Timer that ticks the scheduler every period once
// started. It does not start ticking until Start is called.
func New(period time.Duration) *Timer {
	t := &Timer{
		enable: make(chan bool, 1),
		done:   make(chan struct{}),
		period: period,
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Start begins delivering regular ticks.
func (t *Timer) Start() {
	t.enable <- true
}

// Stop suspends tick delivery without tearing down the timer goroutine.
func (t *Timer) Stop() {
	t.enable <- false
}

// Shutdown stops the timer goroutine for good.
func (t *Timer) Shutdown() {
	close(t.done)
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("ktimer: timed out waiting for timer goroutine to exit")
	}
}

func (t *Timer) run() {
	defer t.wg.Done()
	t.ticker = time.NewTicker(t.period)
	defer t.ticker.Stop()
	t.running = false

	for {
		select {
		case <-t.ticker.C:
			if t.running {
				kthread.Tick()
			}
		case t.running = <-t.enable:
			if t.running {
				t.ticker.Reset(t.period)
			}
		case <-t.done:
			return
		}
	}
}
