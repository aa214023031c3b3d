/*
 * kernelcore - Semaphore, lock (with priority donation), condition variable.
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

// Semaphore is a non-negative counter plus a priority-ordered wait list.
type Semaphore struct {
	value   int
	waiters []*Thread
}

// NewSemaphore returns a semaphore initialized to value.
func NewSemaphore(value int) *Semaphore {
	return &Semaphore{value: value}
}

// insertWaiterLocked keeps waiters in descending-priority / FIFO order,
// same discipline as the ready queue.
func insertWaiterLocked(waiters []*Thread, t *Thread) []*Thread {
	i := 0
	for i < len(waiters) && waiters[i].priority >= t.priority {
		i++
	}
	waiters = append(waiters, nil)
	copy(waiters[i+1:], waiters[i:])
	waiters[i] = t
	return waiters
}

// Down blocks while the counter is zero, then decrements it.
func (s *Semaphore) Down() {
	for {
		cur := Current()

		sched.mu.Lock()
		if s.value > 0 {
			s.value--
			sched.mu.Unlock()
			return
		}

		cur.status = StatusBlocked
		s.waiters = insertWaiterLocked(s.waiters, cur)
		next := pickNextLocked()
		next.status = StatusRunning
		sched.current = next
		sched.mu.Unlock()

		wake(next)
		<-cur.resume
	}
}

// Up increments the counter, wakes the highest-priority waiter (after
// re-sorting the wait list, since donated priorities may have changed
// since the waiter blocked), and yields if the caller is no longer the
// highest-priority thread in the system.
func (s *Semaphore) Up() {
	sched.mu.Lock()
	s.value++

	resortByPriorityLocked(s.waiters)
	var woken *Thread
	if len(s.waiters) > 0 {
		woken = s.waiters[0]
		s.waiters = s.waiters[1:]
	}
	if woken != nil {
		woken.status = StatusReady
		insertReadyLocked(woken)
	}
	sched.mu.Unlock()

	maybeYield()
}

// resortByPriorityLocked re-sorts a wait list in place by descending
// current priority (insertion sort: these lists are always small).
func resortByPriorityLocked(waiters []*Thread) {
	for i := 1; i < len(waiters); i++ {
		t := waiters[i]
		j := i - 1
		for j >= 0 && waiters[j].priority < t.priority {
			waiters[j+1] = waiters[j]
			j--
		}
		waiters[j+1] = t
	}
}

// Lock is a binary semaphore with a holder, supporting priority
// donation while a lower-priority holder blocks a higher-priority
// waiter.
type Lock struct {
	sema   Semaphore
	holder *Thread
}

// NewLock returns a free lock.
func NewLock() *Lock {
	return &Lock{sema: Semaphore{value: 1}}
}

// HeldByCurrent reports whether the calling thread holds the lock.
func (l *Lock) HeldByCurrent() bool {
	return l.holder == Current()
}

// Acquire blocks until the lock is free, donating priority along the
// chain of nested holders if it is currently held.
func (l *Lock) Acquire() {
	cur := Current()

	sched.mu.Lock()
	holder := l.holder
	if holder != nil {
		cur.waitOnLock = l
		holder.donations = append(holder.donations, cur)
		donatePriorityLocked(cur)
	}
	sched.mu.Unlock()

	l.sema.Down()

	sched.mu.Lock()
	cur.waitOnLock = nil
	l.holder = cur
	sched.mu.Unlock()
}

// Release clears the holder, removes donations tied to this lock,
// restores the caller's priority, and wakes the highest-priority
// waiter.
func (l *Lock) Release() {
	cur := Current()
	if l.holder != cur {
		panic("kthread: Release called by non-holder")
	}

	sched.mu.Lock()
	filtered := cur.donations[:0]
	for _, d := range cur.donations {
		if d.waitOnLock != l {
			filtered = append(filtered, d)
		}
	}
	cur.donations = filtered
	refreshPriorityLocked(cur)
	l.holder = nil
	sched.mu.Unlock()

	l.sema.Up()
}

// donatePriorityLocked walks holder -> holder.waitOnLock.holder -> ...,
// capped at maxNestedDepth, raising each predecessor's effective
// priority to match the waiter's. Caller must hold sched.mu.
func donatePriorityLocked(waiter *Thread) {
	t := waiter
	for depth := 0; depth < maxNestedDepth; depth++ {
		lock := t.waitOnLock
		if lock == nil || lock.holder == nil {
			return
		}
		holder := lock.holder
		if holder.priority >= waiter.priority {
			return
		}
		holder.priority = waiter.priority
		t = holder
	}
}

// refreshPriorityLocked resets a thread's effective priority to its
// base, then raises it to the maximum of any remaining donations.
// Caller must hold sched.mu.
func refreshPriorityLocked(t *Thread) {
	t.priority = t.base
	for _, d := range t.donations {
		if d.priority > t.priority {
			t.priority = d.priority
		}
	}
}

// Cond is a condition variable: a list of private per-waiter
// semaphores, each signaled individually so priority ordering among
// waiters is honored.
type Cond struct {
	waiters []*condWaiter
}

type condWaiter struct {
	sema   *Semaphore
	thread *Thread
}

// NewCond returns an unused condition variable.
func NewCond() *Cond {
	return &Cond{}
}

// Wait releases lock, blocks until Signal or Broadcast wakes this
// waiter, then reacquires lock.
func (c *Cond) Wait(lock *Lock) {
	w := &condWaiter{sema: NewSemaphore(0), thread: Current()}

	sched.mu.Lock()
	c.waiters = append(c.waiters, w)
	sched.mu.Unlock()

	lock.Release()
	w.sema.Down()
	lock.Acquire()
}

// Signal wakes the highest-priority waiter, if any.
func (c *Cond) Signal() {
	sched.mu.Lock()
	if len(c.waiters) == 0 {
		sched.mu.Unlock()
		return
	}
	best := 0
	for i, w := range c.waiters {
		if w.thread.priority > c.waiters[best].thread.priority {
			best = i
		}
	}
	w := c.waiters[best]
	c.waiters = append(c.waiters[:best], c.waiters[best+1:]...)
	sched.mu.Unlock()

	w.sema.Up()
}

// Broadcast wakes every waiter, highest priority first.
func (c *Cond) Broadcast() {
	for {
		sched.mu.Lock()
		empty := len(c.waiters) == 0
		sched.mu.Unlock()
		if empty {
			return
		}
		c.Signal()
	}
}
