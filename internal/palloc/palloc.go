/*
 * kernelcore - flat physical page pool (palloc_get_page/palloc_free_page).
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

// Package palloc models physical memory as a flat array of fixed-size
// pages, the way the S/370 emulator models core as a flat array of
// words with a per-2K-block access/modify key. Here every page gets a
// PageMeta slot instead of a two-bit key, tracking the access and
// dirty bits the frame evictor and the file-backed page writer need.
package palloc

import (
	"fmt"
	"sync"
)

// PageSize is the size in bytes of a single physical page (4 KiB,
// matching PGSIZE).
const PageSize = 4096

// Flags mirror PAL_ZERO / PAL_USER: zero-fill the page on allocation,
// and draw from the user pool rather than the kernel pool.
type Flags uint32

const (
	FlagZero Flags = 1 << iota
	FlagUser
)

// Frame identifies one physical page by its index into the pool.
type Frame int

// PageMeta tracks the bookkeeping bits a frame evictor needs: whether
// the page has been touched (accessed) or written (dirty) since the
// bits were last cleared.
type PageMeta struct {
	Accessed bool
	Dirty    bool
}

// Pool is a fixed-size arena of physical pages split into a kernel
// region and a user region, the flat-array analogue of PAL_ZERO /
// PAL_USER allocation.
type Pool struct {
	mu sync.Mutex

	pages [][PageSize]byte
	meta  []PageMeta
	free  []bool

	userStart int // first frame index reserved for the user pool
}

// NewPool allocates a pool of kernelFrames+userFrames total pages, the
// first kernelFrames reserved for FlagUser-less callers.
func NewPool(kernelFrames, userFrames int) *Pool {
	total := kernelFrames + userFrames
	p := &Pool{
		pages:     make([][PageSize]byte, total),
		meta:      make([]PageMeta, total),
		free:      make([]bool, total),
		userStart: kernelFrames,
	}
	for i := range p.free {
		p.free[i] = true
	}
	return p
}

// NumFrames returns the total number of physical pages in the pool.
func (p *Pool) NumFrames() int {
	return len(p.pages)
}

// NumFree returns the number of physical pages not currently handed
// out, for operator introspection (the "vmstat" console command).
func (p *Pool) NumFree() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, free := range p.free {
		if free {
			n++
		}
	}
	return n
}

// Get allocates one physical page, or returns ok=false if the
// requested pool (kernel or user, per FlagUser) is exhausted.
func (p *Pool) Get(flags Flags) (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start, end := 0, p.userStart
	if flags&FlagUser != 0 {
		start, end = p.userStart, len(p.free)
	}
	for i := start; i < end; i++ {
		if p.free[i] {
			p.free[i] = false
			p.meta[i] = PageMeta{}
			if flags&FlagZero != 0 {
				p.pages[i] = [PageSize]byte{}
			}
			return Frame(i), true
		}
	}
	return Frame(-1), false
}

// Free returns a page to the pool. Panics on double-free, the way a
// PANIC(ASSERT) would on a corrupted free map.
func (p *Pool) Free(f Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkFrame(f)
	if p.free[f] {
		panic(fmt.Sprintf("palloc: double free of frame %d", f))
	}
	p.free[f] = true
}

func (p *Pool) checkFrame(f Frame) {
	if f < 0 || int(f) >= len(p.pages) {
		panic(fmt.Sprintf("palloc: frame %d out of range [0,%d)", f, len(p.pages)))
	}
}

// Bytes returns the backing storage for frame f. Callers treat it as
// the physical page's memory; the supplemental page table and fault
// handler copy in/out of it directly rather than going through a
// byte-addressed accessor, since there is no MMU to trap through.
func (p *Pool) Bytes(f Frame) *[PageSize]byte {
	p.checkFrame(f)
	return &p.pages[f]
}

// Accessed reports and the SetAccessed mutator sets a frame's
// accessed bit, the same bit the emulator's memory key array tracks
// per 2K block to support reference-based eviction policies.
func (p *Pool) Accessed(f Frame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkFrame(f)
	return p.meta[f].Accessed
}

func (p *Pool) SetAccessed(f Frame, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkFrame(f)
	p.meta[f].Accessed = v
}

// Dirty reports and SetDirty mutates a frame's modified bit.
func (p *Pool) Dirty(f Frame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkFrame(f)
	return p.meta[f].Dirty
}

func (p *Pool) SetDirty(f Frame, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkFrame(f)
	p.meta[f].Dirty = v
}
