/*
 * kernelcore - mmap/munmap: file-backed page ranges in a process's address space.
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

package process

import (
	"fmt"

	"kernelcore/internal/fsabi"
	"kernelcore/internal/vm"
)

// Mmap installs length bytes of file starting at offset into the
// process's address space at addr, one lazily-loaded file-backed page
// per PageSize chunk, the Go analogue of do_mmap. addr and offset must
// already be page-aligned; the caller (the syscall layer) is
// responsible for picking a free, page-aligned region the way
// do_mmap's caller validates addr before calling in. Rejects what
// do_mmap/mmap's syscall wrapper reject: a null address, a kernel
// address, a non-page-aligned address or offset, a non-positive
// length, STDIN/STDOUT, an empty file, and a range that overlaps a
// page already in the supplemental page table.
func (p *Process) Mmap(addr vm.VA, fd int, file fsabi.File, offset int64, length int) (vm.VA, error) {
	if addr == 0 {
		return 0, fmt.Errorf("process: mmap address must not be null")
	}
	if vm.IsKernelVA(addr) {
		return 0, fmt.Errorf("process: mmap address %#x is a kernel address", addr)
	}
	if addr%vm.PageSize != 0 {
		return 0, fmt.Errorf("process: mmap address must be page-aligned")
	}
	if offset%vm.PageSize != 0 {
		return 0, fmt.Errorf("process: mmap offset must be page-aligned")
	}
	if length <= 0 {
		return 0, fmt.Errorf("process: mmap length must be positive")
	}
	if fd == FDStdin || fd == FDStdout {
		return 0, fmt.Errorf("process: mmap of stdin/stdout is not allowed")
	}
	if file.Length() == 0 {
		return 0, fmt.Errorf("process: mmap of an empty file is not allowed")
	}

	pageCount := (length + vm.PageSize - 1) / vm.PageSize
	mapSize := pageCount * vm.PageSize

	for i := 0; i < pageCount; i++ {
		va := addr + vm.VA(i*vm.PageSize)
		if p.SPT.Find(va) != nil {
			p.unmapRange(addr, i)
			return 0, fmt.Errorf("process: mmap address %#x already mapped", va)
		}
	}

	remaining := length
	for i := 0; i < pageCount; i++ {
		va := addr + vm.VA(i*vm.PageSize)
		readBytes := vm.PageSize
		if remaining < vm.PageSize {
			readBytes = remaining
		}
		mapping := vm.FileMapping{
			File:      file,
			Offset:    offset + int64(i*vm.PageSize),
			ReadBytes: readBytes,
		}
		page := vm.NewFilePage(va, true, mapping, addr, mapSize)
		if !p.SPT.Insert(page) {
			p.unmapRange(addr, i)
			return 0, fmt.Errorf("process: mmap address %#x already mapped", va)
		}
		remaining -= readBytes
	}

	p.mu.Lock()
	p.mappings = append(p.mappings, Mapping{Addr: addr, Length: mapSize, File: file})
	p.mu.Unlock()
	return addr, nil
}

// unmapRange removes the first n pages of a partially-installed
// mapping starting at addr, used to roll back a failed Mmap.
func (p *Process) unmapRange(addr vm.VA, n int) {
	for i := 0; i < n; i++ {
		va := addr + vm.VA(i*vm.PageSize)
		if page := p.SPT.Find(va); page != nil {
			page.Ops.Destroy(page)
			p.SPT.Remove(va)
		}
	}
}

// Munmap tears down the mapping that starts at addr: every page's
// dirty bytes are written back to the file (do_munmap's per-page
// "if dirty, write it back" loop) and the page is dropped from the
// supplemental page table.
func (p *Process) Munmap(addr vm.VA) error {
	p.mu.Lock()
	idx := -1
	var m Mapping
	for i, cand := range p.mappings {
		if cand.Addr == addr {
			idx, m = i, cand
			break
		}
	}
	if idx >= 0 {
		p.mappings = append(p.mappings[:idx], p.mappings[idx+1:]...)
	}
	p.mu.Unlock()

	if idx < 0 {
		return fmt.Errorf("process: no mapping at %#x", addr)
	}

	pageCount := m.Length / vm.PageSize
	for i := 0; i < pageCount; i++ {
		va := addr + vm.VA(i*vm.PageSize)
		page := p.SPT.Find(va)
		if page == nil {
			continue
		}
		page.Ops.Destroy(page)
		p.SPT.Remove(va)
	}
	return nil
}
