/*
 * kernelcore - shared frame table: FIFO eviction, reference counts for CoW.
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

package vm

import (
	"sync"

	"kernelcore/internal/palloc"
)

// frameEntry tracks which page currently occupies a frame and how
// many page table entries point at it (>1 only for a copy-on-write
// sharing after fork).
type frameEntry struct {
	frame    palloc.Frame
	page     *Page
	refCount int
}

// FrameTable is the single shared pool of user-pool physical frames
// every address space draws from, plus the FIFO list vm_get_victim
// walks to pick an eviction candidate.
type FrameTable struct {
	mu    sync.Mutex
	pool  *palloc.Pool
	fifo  []*frameEntry
	owner map[palloc.Frame]*frameEntry
}

// NewFrameTable wraps a physical page pool with FIFO eviction
// bookkeeping.
func NewFrameTable(pool *palloc.Pool) *FrameTable {
	return &FrameTable{
		pool:  pool,
		owner: make(map[palloc.Frame]*frameEntry),
	}
}

// globalFrameTable is the kernel-wide frame table every address space
// shares, the Go analogue of the single global frame_list / frame_lock.
// cmd/kernelsim installs a correctly sized one at boot; tests install
// a small one via SetGlobalFrameTable.
var globalFrameTable = NewFrameTable(palloc.NewPool(4, 64))

// SetGlobalFrameTable overrides the kernel-wide frame table.
func SetGlobalFrameTable(ft *FrameTable) { globalFrameTable = ft }

// GlobalFrameTable returns the kernel-wide frame table.
func GlobalFrameTable() *FrameTable { return globalFrameTable }

// Pool returns the underlying physical page pool, for callers (like
// the fault handler's copy-on-write path) that need raw frame bytes.
func (ft *FrameTable) Pool() *palloc.Pool { return ft.pool }

// victimLocked pops the oldest entry in FIFO order, vm_get_victim's
// eviction policy. Caller must hold ft.mu.
func (ft *FrameTable) victimLocked() *frameEntry {
	if len(ft.fifo) == 0 {
		return nil
	}
	v := ft.fifo[0]
	ft.fifo = ft.fifo[1:]
	return v
}

// Get returns a free frame for page, evicting the oldest occupied
// frame (swapping its page out first) if the pool is exhausted. It
// always returns a usable frame, matching vm_get_frame's "this always
// returns a valid address" contract; err is non-nil only if eviction
// itself could not make progress (no frames at all are tracked yet
// and the pool is exhausted).
func (ft *FrameTable) Get(page *Page, flags palloc.Flags) (palloc.Frame, error) {
	f, ok := ft.pool.Get(flags | palloc.FlagUser)
	if ok {
		ft.mu.Lock()
		e := &frameEntry{frame: f, page: page, refCount: 1}
		ft.owner[f] = e
		ft.fifo = append(ft.fifo, e)
		ft.mu.Unlock()
		return f, nil
	}

	ft.mu.Lock()
	victim := ft.victimLocked()
	ft.mu.Unlock()
	if victim == nil {
		return palloc.Frame(-1), errNoFrames
	}

	if victim.page != nil {
		victim.page.Ops.SwapOut(victim.page)
		victim.page.FrameSet = false
	}

	ft.mu.Lock()
	delete(ft.owner, victim.frame)
	ft.mu.Unlock()

	*ft.pool.Bytes(victim.frame) = [palloc.PageSize]byte{}
	ft.pool.SetDirty(victim.frame, false)
	ft.pool.SetAccessed(victim.frame, false)

	ft.mu.Lock()
	e := &frameEntry{frame: victim.frame, page: page, refCount: 1}
	ft.owner[victim.frame] = e
	ft.fifo = append(ft.fifo, e)
	ft.mu.Unlock()
	return victim.frame, nil
}

// AddRef bumps a frame's reference count when a fork shares it
// read-only between parent and child (copy-on-write).
func (ft *FrameTable) AddRef(f palloc.Frame) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if e, ok := ft.owner[f]; ok {
		e.refCount++
	}
}

// RefCount reports how many page table entries currently share f.
func (ft *FrameTable) RefCount(f palloc.Frame) int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if e, ok := ft.owner[f]; ok {
		return e.refCount
	}
	return 0
}

// Release drops one reference to f, freeing the underlying physical
// page back to the pool once the count reaches zero (free_frame).
func (ft *FrameTable) Release(f palloc.Frame) {
	ft.mu.Lock()
	e, ok := ft.owner[f]
	if !ok {
		ft.mu.Unlock()
		return
	}
	e.refCount--
	if e.refCount > 0 {
		ft.mu.Unlock()
		return
	}
	delete(ft.owner, f)
	for i, fe := range ft.fifo {
		if fe == e {
			ft.fifo = append(ft.fifo[:i], ft.fifo[i+1:]...)
			break
		}
	}
	ft.mu.Unlock()
	ft.pool.Free(f)
}

type frameTableError string

func (e frameTableError) Error() string { return string(e) }

const errNoFrames = frameTableError("vm: no frames available and nothing to evict")
