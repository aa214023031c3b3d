/*
 * kernelcore - Ready/sleep/all/destruction queues and the scheduler core.
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

package kthread

import (
	"fmt"
	"sync"

	"kernelcore/internal/fixedpoint"
	"kernelcore/internal/intr"
)

// TimeSlice is the number of ticks given to each thread before
// preemption is requested.
const TimeSlice = 4

// TimerFreq is the number of ticks per second, the cadence at which
// load_avg and every thread's recent_cpu are recomputed under MLFQS.
const TimerFreq = 100

// scheduler owns every queue named in the data model: ready, sleep,
// all-threads, and destruction.
type scheduler struct {
	mu sync.Mutex

	current *Thread
	idle    *Thread

	ready       []*Thread // descending priority, FIFO among ties
	sleeping    []*Thread // ascending wakeup tick, FIFO among ties
	all         []*Thread
	destruction []*Thread

	mlfqs   bool
	loadAvg fixedpoint.Fixed

	ticks       int64
	threadTicks int // ticks since last TIME_SLICE reset

	idleTicks, kernelTicks, userTicks int64

	started bool
}

var sched = &scheduler{}

// Configure sets the scheduling policy before Start is called. Call
// with mlfqs=true for the multi-level feedback queue scheduler ("-o
// mlfqs"); otherwise the priority scheduler with donation is used.
func Configure(mlfqs bool) {
	sched.mu.Lock()
	defer sched.mu.Unlock()
	if sched.started {
		panic("kthread: Configure called after Start")
	}
	sched.mlfqs = mlfqs
}

// MLFQSEnabled reports whether the multi-level feedback queue scheduler
// is active.
func MLFQSEnabled() bool {
	sched.mu.Lock()
	defer sched.mu.Unlock()
	return sched.mlfqs
}

// Start boots the scheduler: it creates the idle thread, installs the
// calling goroutine as the initial ("main") thread, and runs fn
// synchronously as that thread's body. Start returns once fn returns
// and the main thread has exited and handed off to whatever is ready
// (normally the idle thread, spinning forever in the background).
func Start(mainName string, mainPriority int, fn func(*Thread)) {
	sched.mu.Lock()
	if sched.started {
		sched.mu.Unlock()
		panic("kthread: Start called twice")
	}
	sched.started = true

	idle := newThread("idle", PriMin)
	idle.idle = true
	idle.status = StatusReady
	sched.idle = idle
	sched.all = append(sched.all, idle)

	main := newThread(mainName, mainPriority)
	main.status = StatusRunning
	sched.all = append(sched.all, main)
	sched.current = main
	sched.mu.Unlock()

	go func() {
		<-idle.resume
		idleLoop(idle)
	}()

	fn(main)
	Exit()
}

// idleLoop never appears on the ready queue; pickNextLocked falls back
// to it only when ready is empty, matching the data model's "the idle
// thread is not on the ready queue."
func idleLoop(idle *Thread) {
	for {
		Yield()
	}
}

// Current returns the thread executing on the calling goroutine. Only
// valid to call from code running as a scheduled thread body.
func Current() *Thread {
	sched.mu.Lock()
	t := sched.current
	sched.mu.Unlock()
	t.checkMagic()
	return t
}

// insertReadyLocked inserts t after every existing entry with priority
// >= t.priority, preserving the descending-priority / FIFO-among-ties
// invariant. Caller must hold sched.mu.
func insertReadyLocked(t *Thread) {
	i := 0
	for i < len(sched.ready) && sched.ready[i].priority >= t.priority {
		i++
	}
	sched.ready = append(sched.ready, nil)
	copy(sched.ready[i+1:], sched.ready[i:])
	sched.ready[i] = t
}

// insertSleepLocked inserts t after every existing entry with an
// earlier-or-equal wakeTick, preserving ascending-wakeup / FIFO.
func insertSleepLocked(t *Thread) {
	i := 0
	for i < len(sched.sleeping) && sched.sleeping[i].wakeTick <= t.wakeTick {
		i++
	}
	sched.sleeping = append(sched.sleeping, nil)
	copy(sched.sleeping[i+1:], sched.sleeping[i:])
	sched.sleeping[i] = t
}

// pickNextLocked pops the highest-priority ready thread, or falls back
// to idle. Caller must hold sched.mu.
func pickNextLocked() *Thread {
	if len(sched.ready) > 0 {
		next := sched.ready[0]
		sched.ready = sched.ready[1:]
		return next
	}
	return sched.idle
}

// drainDestructionLocked reclaims threads queued for destruction. A
// thread cannot reclaim its own stack while running on it, so the next
// thread to schedule does it instead -- here that just means dropping
// the last reference so the goroutine and its channel can be
// collected.
func drainDestructionLocked() {
	sched.destruction = sched.destruction[:0]
}

func wake(t *Thread) {
	t.resume <- struct{}{}
}

// Create makes a new thread in the BLOCKED state and immediately
// unblocks it onto the ready queue, matching thread_create ->
// thread_unblock. It does not preempt the caller: the spec's
// thread_unblock explicitly "returns without preempting," and
// thread_create never asks for a preemption check either -- callers
// that need the new thread to run promptly yield or block themselves
// (see TestPriorityOrderViaRendezvous in scheduler_test.go).
func Create(name string, priority int, fn func(*Thread)) *Thread {
	t := newThread(name, priority)

	sched.mu.Lock()
	sched.all = append(sched.all, t)
	sched.mu.Unlock()

	go func() {
		<-t.resume
		fn(t)
		Exit()
	}()

	Unblock(t)
	return t
}

// Block requires interrupts off and the current thread RUNNING; it
// sets BLOCKED and schedules away. The caller is responsible for
// having already placed the thread on whatever wait list will
// eventually call Unblock on it.
func Block() {
	cur := Current()

	sched.mu.Lock()
	if cur.status != StatusRunning {
		sched.mu.Unlock()
		panic("kthread: Block called on non-RUNNING thread")
	}
	cur.status = StatusBlocked
	next := pickNextLocked()
	next.status = StatusRunning
	sched.current = next
	sched.mu.Unlock()

	wake(next)
	<-cur.resume
}

// Unblock requires the target to be BLOCKED; it inserts it into the
// ready queue in priority order and returns without preempting.
func Unblock(t *Thread) {
	sched.mu.Lock()
	if t.status != StatusBlocked {
		sched.mu.Unlock()
		panic("kthread: Unblock called on non-BLOCKED thread")
	}
	t.status = StatusReady
	insertReadyLocked(t)
	sched.mu.Unlock()
}

// Yield inserts the current thread (if not idle) into the ready queue
// in priority order and schedules.
func Yield() {
	cur := Current()

	sched.mu.Lock()
	if !cur.idle {
		cur.status = StatusReady
		insertReadyLocked(cur)
	}
	next := pickNextLocked()
	next.status = StatusRunning
	sched.current = next
	sched.mu.Unlock()

	wake(next)
	<-cur.resume
}

// Exit disables interrupts, marks the thread DYING, and schedules. The
// destruction list is drained by Exit itself once current has been
// switched to the next thread, since a thread cannot free its own
// stack while still running on it.
func Exit() {
	cur := Current()

	sched.mu.Lock()
	cur.status = StatusDying
	sched.destruction = append(sched.destruction, cur)
	for i, t := range sched.all {
		if t == cur {
			sched.all = append(sched.all[:i], sched.all[i+1:]...)
			break
		}
	}
	next := pickNextLocked()
	next.status = StatusRunning
	sched.current = next
	drainDestructionLocked()
	sched.mu.Unlock()

	wake(next)
	// No park: this goroutine is finished.
}

// maybeYield checks whether a READY thread has strictly higher
// priority than the caller and, if so, yields. From interrupt context
// it cannot switch directly, so it only sets yield-on-return.
func maybeYield() {
	sched.mu.Lock()
	cur := sched.current
	preempt := len(sched.ready) > 0 && sched.ready[0].priority > cur.priority
	sched.mu.Unlock()

	if !preempt {
		return
	}
	if intr.InContext() {
		intr.YieldOnReturn()
		return
	}
	Yield()
}

// SleepUntil blocks the calling thread until the given absolute tick
// has been reached. Requires interrupts off semantics in spirit; the
// scheduler mutex provides the real exclusion.
func SleepUntil(wakeupTick int64) {
	cur := Current()

	sched.mu.Lock()
	cur.wakeTick = wakeupTick
	cur.status = StatusBlocked
	insertSleepLocked(cur)
	next := pickNextLocked()
	next.status = StatusRunning
	sched.current = next
	sched.mu.Unlock()

	wake(next)
	<-cur.resume
}

// Tick is called once per timer interrupt, in interrupt context. It
// updates usage buckets, advances MLFQS bookkeeping, wakes sleepers
// whose time has come, and requests a yield-on-return once the
// current thread's time slice has elapsed.
func Tick() {
	intr.EnterContext()
	defer func() {
		if intr.ExitContext() {
			// Nothing to do synchronously: the timer drives its own
			// goroutine, not the interrupted thread's. The thread
			// itself observes the pending yield the next time it
			// calls CheckPreemption, mirroring intr_yield_on_return
			// being consulted by the interrupt epilogue "soon" rather
			// than mid-instruction.
		}
	}()

	sched.mu.Lock()
	cur := sched.current
	sched.ticks++

	switch {
	case cur.idle:
		sched.idleTicks++
	case cur.userMode:
		sched.userTicks++
	default:
		sched.kernelTicks++
	}

	if sched.mlfqs {
		if !cur.idle {
			cur.recentCPU = cur.recentCPU.AddInt(1)
		}
		mlfqsCalculatePriority(cur)

		if sched.ticks%TimerFreq == 0 {
			mlfqsCalculateLoadAvgLocked()
			for _, t := range sched.all {
				mlfqsCalculateRecentCPU(t)
				mlfqsCalculatePriority(t)
			}
			mlfqsCalculatePriority(sched.idle)
		}
	}

	// Wake every sleeper whose wakeup tick has arrived.
	for len(sched.sleeping) > 0 && sched.sleeping[0].wakeTick <= sched.ticks {
		woken := sched.sleeping[0]
		sched.sleeping = sched.sleeping[1:]
		woken.status = StatusReady
		insertReadyLocked(woken)
	}

	sched.threadTicks++
	if sched.threadTicks >= TimeSlice {
		sched.threadTicks = 0
		intr.YieldOnReturn()
	}
	sched.mu.Unlock()
}

// CheckPreemption is the cooperative checkpoint a thread body calls
// periodically (between "instructions") to honor a pending
// yield-on-return request set by Tick or maybeYield while it was
// running. Real hardware resumes the interrupted thread directly
// after the ISR and consults the flag there; a Go goroutine has no
// such resumption point, so callers that want timer preemption to
// actually take effect must call this at safe points. This resolves
// the open question in spec.md §9 about thread_launch vs do_iret: the
// context switch mechanism is a channel handoff, and the precondition
// ordering (interrupts off bookkeeping, new thread RUNNING before
// switch) is preserved by doing both under sched.mu before releasing
// the next thread's token.
func CheckPreemption() {
	if intr.GetLevel() == intr.LevelOff {
		return
	}
	sched.mu.Lock()
	pending := len(sched.ready) > 0
	sched.mu.Unlock()
	if pending {
		maybeYield()
	}
}

// Stats returns the idle/kernel/user tick counters (thread_print_stats).
func Stats() (idleTicks, kernelTicks, userTicks int64) {
	sched.mu.Lock()
	defer sched.mu.Unlock()
	return sched.idleTicks, sched.kernelTicks, sched.userTicks
}

// PrintStats renders the same line thread_print_stats prints.
func PrintStats() string {
	idleT, kernelT, userT := Stats()
	return fmt.Sprintf("Thread: %d idle ticks, %d kernel ticks, %d user ticks", idleT, kernelT, userT)
}

// AllThreads returns a snapshot of every live thread, for introspection
// (the "ps" console command) and MLFQS sweeps.
func AllThreads() []*Thread {
	sched.mu.Lock()
	defer sched.mu.Unlock()
	out := make([]*Thread, len(sched.all))
	copy(out, sched.all)
	return out
}

// ReadyThreads returns a snapshot of the ready queue in scheduling order.
func ReadyThreads() []*Thread {
	sched.mu.Lock()
	defer sched.mu.Unlock()
	out := make([]*Thread, len(sched.ready))
	copy(out, sched.ready)
	return out
}

// LoadAvg returns the current MLFQS load average.
func LoadAvg() fixedpoint.Fixed {
	sched.mu.Lock()
	defer sched.mu.Unlock()
	return sched.loadAvg
}

// Ticks returns the number of timer ticks observed since boot.
func Ticks() int64 {
	sched.mu.Lock()
	defer sched.mu.Unlock()
	return sched.ticks
}

// GetPriority returns the caller's effective priority: base priority
// maxed with any donation (priority scheduler) or the MLFQS-computed
// value.
func GetPriority() int {
	return Current().priority
}

// SetPriority sets the calling thread's base priority. Under MLFQS this
// is a no-op: the scheduler disables user priority setting entirely.
func SetPriority(p int) {
	if MLFQSEnabled() {
		return
	}
	cur := Current()

	sched.mu.Lock()
	cur.base = p
	// If p is lower than an active donation, effective priority stays
	// at the donated value until the donation is released.
	refreshPriorityLocked(cur)
	sched.mu.Unlock()

	maybeYield()
}

// SetNice sets the calling thread's MLFQS nice value and recomputes its
// priority immediately.
func SetNice(nice int) {
	if nice < NiceMin {
		nice = NiceMin
	}
	if nice > NiceMax {
		nice = NiceMax
	}
	cur := Current()
	sched.mu.Lock()
	cur.nice = nice
	mlfqsCalculatePriority(cur)
	sched.mu.Unlock()
	maybeYield()
}

// resetForTest tears the scheduler singleton down so package tests can
// boot a fresh one. Not exported: only test files in this package call
// it.
func resetForTest() {
	sched.mu.Lock()
	old := sched
	sched = &scheduler{}
	old.mu.Unlock()
}
