/*
 * kernelcore - page kinds and the uninit -> concrete lazy-initialization dance.
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

// Package vm implements demand-paged virtual memory: a supplemental
// page table per address space, a shared frame table with FIFO
// eviction, a disk-backed swap area for anonymous pages, file-backed
// pages for mmap, and the fault handler that ties them together.
package vm

import "kernelcore/internal/palloc"

// Kind identifies what backs a page's contents once it is loaded.
type Kind int

const (
	// KindUninit pages have not yet run their lazy initializer.
	KindUninit Kind = iota
	KindAnon
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindUninit:
		return "UNINIT"
	case KindAnon:
		return "ANON"
	case KindFile:
		return "FILE"
	default:
		return "UNKNOWN"
	}
}

// VA is a page-aligned virtual address, the supplemental page table's
// key.
type VA uintptr

// Initializer lazily populates a freshly claimed frame the first time
// a page is faulted in, the Go analogue of vm_initializer /
// lazy_load_segment.
type Initializer func(p *Page, frame *palloc.Frame) bool

// Ops is the behavior a page's kind supplies: how to bring it into a
// frame, how to evict it, and how to release it for good. Exactly one
// of anonOps/fileOps backs a page once its initializer has run;
// before that every page uses uninitOps.
type Ops interface {
	SwapIn(p *Page, f palloc.Frame) bool
	SwapOut(p *Page) bool
	Destroy(p *Page)
}

// Page is one entry of a supplemental page table: an address, whether
// it may be written, the frame currently backing it (if any), and the
// kind-specific operations and state.
type Page struct {
	VA       VA
	Writable bool

	// OriginalWritable records the pre-fork writability so a
	// copy-on-write fault can tell a genuinely read-only page from one
	// merely marked read-only to trap the first write after a fork.
	OriginalWritable bool

	Kind Kind
	Ops  Ops

	Frame    *palloc.Frame
	FrameSet bool

	// Fields valid only for KindUninit, consumed by InitializeNow.
	uninitKind  Kind
	initializer Initializer
	aux         any

	// Fields valid once the page becomes KindAnon.
	anon anonState

	// Fields valid once the page becomes KindFile.
	file fileState
}

// NewUninitPage creates a page that defers its real initialization
// until the first claim, matching vm_alloc_page_with_initializer's
// uninit_new.
func NewUninitPage(va VA, writable bool, kind Kind, init Initializer, aux any) *Page {
	return &Page{
		VA:               va,
		Writable:         writable,
		OriginalWritable: writable,
		Kind:             KindUninit,
		Ops:              uninitOps{},
		uninitKind:       kind,
		initializer:      init,
		aux:              aux,
	}
}

// InitializeNow runs a KindUninit page's deferred initializer against
// the frame it was just claimed into, promoting it to its real kind.
// No-op (returns true) if the page is not KindUninit.
func (p *Page) InitializeNow(frame *palloc.Frame) bool {
	if p.Kind != KindUninit {
		return true
	}
	switch p.uninitKind {
	case KindAnon:
		p.Kind = KindAnon
		p.Ops = anonOps{}
	case KindFile:
		p.Kind = KindFile
		p.Ops = fileOps{}
	default:
		return false
	}
	if p.initializer == nil {
		return true
	}
	return p.initializer(p, frame)
}

// uninitOps backs a page before its lazy initializer has run; SwapIn
// is the only meaningful operation, and it runs the initializer.
type uninitOps struct{}

func (uninitOps) SwapIn(p *Page, f palloc.Frame) bool {
	return p.InitializeNow(&f)
}
func (uninitOps) SwapOut(p *Page) bool { return false }
func (uninitOps) Destroy(p *Page)      {}
