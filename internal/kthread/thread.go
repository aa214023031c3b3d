/*
 * kernelcore - Thread control block and lifecycle.
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

// Package kthread implements the preemptive thread scheduler: thread
// records, the ready/sleep/all/destruction queues, priority donation,
// the multi-level feedback queue scheduler, and the synchronization
// primitives (semaphore, lock, condition variable) that drive it.
//
// There is exactly one logical CPU. A thread "runs" by holding a token
// on its own resume channel; handing that token to another thread's
// channel is the entire context switch. Code that wants mutual
// exclusion around the ready/sleep/all/destruction queues takes
// sched.mu, which stands in for "interrupts disabled" -- the only two
// actors that ever touch those queues concurrently are whichever
// thread is currently running and the timer tick, exactly as Pintos'
// uniprocessor model assumes.
package kthread

import (
	"fmt"
	"sync/atomic"

	"kernelcore/internal/fixedpoint"
)

// Status is a thread's position in the lifecycle state machine.
type Status int

const (
	StatusBlocked Status = iota
	StatusReady
	StatusRunning
	StatusDying
)

func (s Status) String() string {
	switch s {
	case StatusBlocked:
		return "BLOCKED"
	case StatusReady:
		return "READY"
	case StatusRunning:
		return "RUNNING"
	case StatusDying:
		return "DYING"
	default:
		return "UNKNOWN"
	}
}

// Priority bounds, matching PRI_MIN/PRI_DEFAULT/PRI_MAX.
const (
	PriMin     = 0
	PriDefault = 31
	PriMax     = 63
)

// Nice bounds for the MLFQ scheduler.
const (
	NiceMin     = -20
	NiceDefault = 0
	NiceMax     = 20
)

// maxNestedDepth bounds the priority-donation chain walk.
const maxNestedDepth = 8

const threadMagic uint32 = 0xcd6abf4b

// Thread is a kernel thread's control block.
type Thread struct {
	ID   int
	Name string

	status   Status
	priority int // effective priority
	base     int // original/base priority, pre-donation

	waitOnLock *Lock
	donations  []*Thread // threads currently donating to this one

	// MLFQS fields.
	nice      int
	recentCPU fixedpoint.Fixed

	wakeTick int64 // valid while on the sleep queue

	userMode bool // counted against user_ticks rather than kernel_ticks

	magic uint32 // stack-overflow / corruption sentinel

	resume chan struct{} // the context-switch baton
	idle   bool

	// sleepIdx/readyIdx/allIdx/waitIdx are not stored; queues are plain
	// slices searched/inserted by the scheduler under sched.mu, which is
	// perfectly adequate at the thread counts this kernel ever manages.
}

var nextID atomic.Int64

func newThread(name string, priority int) *Thread {
	if len(name) > 15 {
		name = name[:15]
	}
	t := &Thread{
		ID:        int(nextID.Add(1)),
		Name:      name,
		status:    StatusBlocked,
		priority:  priority,
		base:      priority,
		nice:      NiceDefault,
		recentCPU: fixedpoint.FromInt(0),
		magic:     threadMagic,
		resume:    make(chan struct{}, 1),
	}
	return t
}

// checkMagic panics the way an ASSERT(t->magic == THREAD_MAGIC) would:
// a corrupted canary means the kernel stack has overflowed into the
// thread record sitting below it.
func (t *Thread) checkMagic() {
	if t.magic != threadMagic {
		panic(fmt.Sprintf("thread %q (id %d): stack overflow detected, magic corrupted", t.Name, t.ID))
	}
}

// Status returns the thread's current lifecycle state.
func (t *Thread) Status() Status { return t.status }

// Priority returns the thread's current effective priority.
func (t *Thread) Priority() int { return t.priority }

// BasePriority returns the thread's original (pre-donation) priority.
func (t *Thread) BasePriority() int { return t.base }

// Nice returns the thread's MLFQS nice value.
func (t *Thread) Nice() int { return t.nice }

// RecentCPU returns the thread's MLFQS recent_cpu value.
func (t *Thread) RecentCPU() fixedpoint.Fixed { return t.recentCPU }

// IsIdle reports whether this is the scheduler's idle thread.
func (t *Thread) IsIdle() bool { return t.idle }

// SetUserMode marks the thread as running user-process code, so its
// ticks are charged to the user bucket instead of the kernel bucket.
func (t *Thread) SetUserMode(v bool) { t.userMode = v }
