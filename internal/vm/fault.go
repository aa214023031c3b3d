/*
 * kernelcore - page fault classification and dispatch.
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

// StackLimit bounds how far a stack-growth fault will extend the
// stack downward from UserStackTop (the 1 MB STACK_LIMIT).
const StackLimit = 1 << 20

// PageSize re-exports palloc.PageSize for callers that only import vm.
const PageSize = palloc.PageSize

// KernelBase is the lowest virtual address reserved for the kernel's
// own mapping (KERN_BASE); user-space addresses are strictly below it.
const KernelBase VA = 0x8004000000

// IsKernelVA reports whether addr falls in the kernel's half of the
// address space (is_kernel_vaddr), so callers outside the fault path
// -- mmap's address validation, chiefly -- can reject a kernel address
// without building a full FaultInfo.
func IsKernelVA(addr VA) bool {
	return addr >= KernelBase
}

// PageRoundDown aligns addr down to the containing page's VA.
func PageRoundDown(addr VA) VA {
	return addr &^ (PageSize - 1)
}

// FaultInfo carries everything the fault handler needs to classify a
// trap, the Go analogue of vm_try_handle_fault's parameters.
type FaultInfo struct {
	Addr         VA
	User         bool
	Write        bool
	NotPresent   bool
	StackPtr     VA // f->rsp at fault time, for the stack-growth heuristic
	UserStackTop VA
	IsKernelVA   func(VA) bool
}

// HandleFault classifies and dispatches a page fault against spt:
// stack growth for a not-present fault just past the current stack,
// copy-on-write for a write fault against a present read-only page,
// or an ordinary demand-paging claim. Returns false if the fault is
// not recoverable (segfault).
func HandleFault(spt *SupplementalPageTable, ft *FrameTable, info FaultInfo) bool {
	if info.User && info.IsKernelVA != nil && info.IsKernelVA(info.Addr) {
		return false
	}

	pageAddr := PageRoundDown(info.Addr)
	page := spt.Find(pageAddr)

	if page == nil {
		if isStackGrowthCandidate(info) {
			return growStack(spt, ft, pageAddr)
		}
		return false
	}

	if info.Write && !info.NotPresent {
		return handleWriteProtected(ft, page)
	}

	return ClaimPage(ft, page)
}

func isStackGrowthCandidate(info FaultInfo) bool {
	return info.Addr < info.UserStackTop &&
		info.Addr >= info.StackPtr-8 &&
		info.Addr >= info.UserStackTop-StackLimit
}

// growStack installs and claims one anonymous page at pageAddr, the
// page containing the faulting address. Unmapped stack pages between
// it and the last mapped stack page are not installed here; each is
// added by its own later fault.
func growStack(spt *SupplementalPageTable, ft *FrameTable, pageAddr VA) bool {
	if !spt.Insert(NewAnonPage(pageAddr, true)) {
		return false
	}
	return ClaimPage(ft, spt.Find(pageAddr))
}

// handleWriteProtected implements the copy-on-write branch: a page
// shared read-only after fork gets its own private frame (copying the
// shared contents) the first time either side writes to it; a page
// that was never writable even before the fork is a genuine
// protection fault.
func handleWriteProtected(ft *FrameTable, page *Page) bool {
	if !page.OriginalWritable {
		return false
	}
	if page.FrameSet && ft.RefCount(*page.Frame) > 1 {
		newFrame, err := ft.Get(page, 0)
		if err != nil {
			return false
		}
		*ft.Pool().Bytes(newFrame) = *ft.Pool().Bytes(*page.Frame)
		ft.Release(*page.Frame)
		page.Frame = &newFrame
	}
	page.Writable = true
	return true
}

// ClaimPage brings page into a physical frame if it isn't already
// resident, running its swap-in (or lazy initializer, for an UNINIT
// page) against a freshly obtained frame (vm_do_claim_page).
func ClaimPage(ft *FrameTable, page *Page) bool {
	if page == nil {
		return false
	}
	if page.FrameSet {
		return true
	}
	frame, err := ft.Get(page, palloc.FlagZero)
	if err != nil {
		return false
	}
	if !page.Ops.SwapIn(page, frame) {
		ft.Release(frame)
		return false
	}
	page.Frame = &frame
	page.FrameSet = true
	return true
}
