/*
 * kernelcore - per-address-space supplemental page table.
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

import "sync"

// SupplementalPageTable maps page-aligned virtual addresses to the
// Page metadata that describes how to bring them into a frame. Go's
// builtin map stands in for hash_find/hash_insert/hash_delete over
// spt_hash: both are O(1) average-case lookups keyed by address.
type SupplementalPageTable struct {
	mu    sync.Mutex
	pages map[VA]*Page
}

// NewSupplementalPageTable returns an empty table
// (supplemental_page_table_init).
func NewSupplementalPageTable() *SupplementalPageTable {
	return &SupplementalPageTable{pages: make(map[VA]*Page)}
}

// Find returns the page covering va, or nil (spt_find_page).
func (spt *SupplementalPageTable) Find(va VA) *Page {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	return spt.pages[PageRoundDown(va)]
}

// Insert adds page, failing if its address is already occupied
// (spt_insert_page).
func (spt *SupplementalPageTable) Insert(page *Page) bool {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	if _, exists := spt.pages[page.VA]; exists {
		return false
	}
	spt.pages[page.VA] = page
	return true
}

// Remove drops the page at va without destroying its frame
// (spt_remove_page just unlinks; the caller is responsible for
// dealloc if that's also wanted).
func (spt *SupplementalPageTable) Remove(va VA) {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	delete(spt.pages, va)
}

// All returns a snapshot of every page currently tracked, for copy
// and kill to iterate without holding the lock across Page.Ops calls.
func (spt *SupplementalPageTable) All() []*Page {
	spt.mu.Lock()
	defer spt.mu.Unlock()
	out := make([]*Page, 0, len(spt.pages))
	for _, p := range spt.pages {
		out = append(out, p)
	}
	return out
}

// Copy clones every entry of src into dst for a fork: UNINIT pages are
// recreated with the same deferred initializer (they haven't touched
// a frame yet, so there's nothing to share); already-loaded anonymous
// pages share the parent's frame read-only and bump its reference
// count, so the first write after the fork takes a copy-on-write fault
// (supplemental_page_table_copy). File-backed pages reopen the backing
// file handle rather than sharing the parent's fsabi.File value, so
// one side closing its descriptor doesn't yank the file out from under
// the other (the VM_FILE branch of supplemental_page_table_copy
// re-derives a fresh lazy-load closure around file_reopen instead of
// reusing the parent's file pointer).
func (dst *SupplementalPageTable) Copy(src *SupplementalPageTable) bool {
	for _, srcPage := range src.All() {
		switch {
		case srcPage.Kind == KindUninit && srcPage.uninitKind == KindFile:
			aux, ok := srcPage.aux.(fileAux)
			if !ok {
				return false
			}
			reopened, err := aux.mapping.File.Reopen()
			if err != nil {
				return false
			}
			aux.mapping.File = reopened
			clone := NewUninitPage(srcPage.VA, srcPage.Writable, srcPage.uninitKind, srcPage.initializer, aux)
			if !dst.Insert(clone) {
				return false
			}
		case srcPage.Kind == KindUninit:
			clone := NewUninitPage(srcPage.VA, srcPage.Writable, srcPage.uninitKind, srcPage.initializer, srcPage.aux)
			if !dst.Insert(clone) {
				return false
			}
		case srcPage.Kind == KindFile:
			reopened, err := srcPage.file.file.Reopen()
			if err != nil {
				return false
			}
			clone := &Page{
				VA:               srcPage.VA,
				Writable:         false,
				OriginalWritable: srcPage.Writable,
				Kind:             srcPage.Kind,
				Ops:              srcPage.Ops,
				file: fileState{
					file:      reopened,
					offset:    srcPage.file.offset,
					readBytes: srcPage.file.readBytes,
					startAddr: srcPage.file.startAddr,
					mapSize:   srcPage.file.mapSize,
				},
			}
			if srcPage.FrameSet {
				clone.Frame = srcPage.Frame
				clone.FrameSet = true
				globalFrameTable.AddRef(*srcPage.Frame)
			}
			srcPage.Writable = false
			if !dst.Insert(clone) {
				return false
			}
		default:
			clone := &Page{
				VA:               srcPage.VA,
				Writable:         false,
				OriginalWritable: srcPage.Writable,
				Kind:             srcPage.Kind,
				Ops:              srcPage.Ops,
				anon:             srcPage.anon,
			}
			if srcPage.FrameSet {
				clone.Frame = srcPage.Frame
				clone.FrameSet = true
				globalFrameTable.AddRef(*srcPage.Frame)
			}
			srcPage.Writable = false
			if !dst.Insert(clone) {
				return false
			}
		}
	}
	return true
}

// Clear destroys every page's resources (supplemental_page_table_kill).
func (spt *SupplementalPageTable) Clear() {
	for _, p := range spt.All() {
		p.Ops.Destroy(p)
	}
	spt.mu.Lock()
	spt.pages = make(map[VA]*Page)
	spt.mu.Unlock()
}
