/*
 * kernelcore - global, re-entrancy-aware filesystem lock.
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

package fsabi

import "kernelcore/internal/kthread"

// reentrantLock wraps a kthread.Lock with the lock_held_by_current_thread
// guard process.c and vm.c use around every filesys_lock acquire/
// release: a thread that already holds the lock (say, a page fault
// handler invoked while a syscall handler is already mid file
// operation) may acquire it again without blocking on itself, and the
// lock is only really released once the matching number of Release
// calls has unwound.
type reentrantLock struct {
	l     *kthread.Lock
	depth int
}

func newReentrantLock() *reentrantLock {
	return &reentrantLock{l: kthread.NewLock()}
}

// Acquire takes the lock, or bumps the re-entry depth if the calling
// thread already holds it.
func (r *reentrantLock) Acquire() {
	if r.l.HeldByCurrent() {
		r.depth++
		return
	}
	r.l.Acquire()
	r.depth = 1
}

// Release unwinds one level of acquisition, releasing the underlying
// lock only once depth reaches zero.
func (r *reentrantLock) Release() {
	if !r.l.HeldByCurrent() {
		panic("fsabi: Release called without holding the filesystem lock")
	}
	r.depth--
	if r.depth == 0 {
		r.l.Release()
	}
}

// HeldByCurrent reports whether the calling thread holds the lock,
// at any re-entry depth.
func (r *reentrantLock) HeldByCurrent() bool {
	return r.l.HeldByCurrent()
}

// ForceRelease drops every level of re-entry the calling thread holds.
// process.Exit calls this so a process that happens to exit while mid
// file operation (and thus still holding the lock one or more levels
// deep) can never leave it stuck held by a thread that no longer
// exists, matching the original's insistence that the lock be released
// via the process-exit path.
func (r *reentrantLock) ForceRelease() {
	if !r.l.HeldByCurrent() {
		return
	}
	r.depth = 0
	r.l.Release()
}

// FSLock is the kernel-wide filesystem lock spec.md names alongside
// the scheduler lock and frame-table lock as one of the three required
// locks: every path that touches file content (file-backed page
// swap-in/swap-out/destroy) acquires it, and process exit
// force-releases it if the dying process was still holding it.
var FSLock = newReentrantLock()
