/*
 * kernelcore - anonymous (non-file-backed) pages: stack, heap, bss.
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

import "kernelcore/internal/palloc"

// anonState holds the per-page bookkeeping anon_page carries: which
// swap slot (if any) the page's contents were last written to.
type anonState struct {
	swapSlot int // -1 if never swapped out
}

// NewAnonPage builds an anonymous page that lazy-zero-fills on first
// claim (the stack-growth / heap case: no initializer, no aux).
func NewAnonPage(va VA, writable bool) *Page {
	return NewUninitPage(va, writable, KindAnon, zeroFillInitializer, nil)
}

func zeroFillInitializer(p *Page, frame *palloc.Frame) bool {
	p.anon.swapSlot = -1
	return true
}

type anonOps struct{}

// SwapIn reads the page's contents back from the swap disk into f. A
// page that has never been swapped out (fresh from its initializer)
// has nothing to read; the frame is already zeroed by FrameTable.Get.
func (anonOps) SwapIn(p *Page, f palloc.Frame) bool {
	if p.anon.swapSlot < 0 {
		return true
	}
	if err := DefaultSwapDisk().In(globalFrameTable.Pool(), p.anon.swapSlot, f); err != nil {
		return false
	}
	p.anon.swapSlot = -1
	return true
}

// SwapOut writes the page's current frame to a fresh swap slot.
func (anonOps) SwapOut(p *Page) bool {
	if p.Frame == nil {
		return false
	}
	p.anon.swapSlot = DefaultSwapDisk().Out(globalFrameTable.Pool(), *p.Frame)
	return true
}

func (anonOps) Destroy(p *Page) {
	if p.FrameSet && p.Frame != nil {
		globalFrameTable.Release(*p.Frame)
		return
	}
	if p.anon.swapSlot >= 0 {
		DefaultSwapDisk().Free(p.anon.swapSlot)
		p.anon.swapSlot = -1
	}
}
