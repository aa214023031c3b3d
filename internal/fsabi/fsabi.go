/*
 * kernelcore - narrow filesystem collaborator interface for mmap/file-backed pages.
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

// Package fsabi declares the narrow slice of filesystem behavior that
// file-backed pages and mmap need (open/close/read-at/write-at/length/
// deny-write/reopen), so internal/vm and internal/process depend on an
// interface rather than a concrete filesystem. A fake in-memory
// implementation backs the package tests; a real disk-backed
// filesystem is out of scope for this kernel core.
package fsabi

import (
	"fmt"
	"sync"
)

// File is the subset of file_* operations the VM subsystem calls
// against an open file: positional I/O, length, and the write-deny
// toggle used on a process's own executable.
type File interface {
	ReadAt(p []byte, off int64) (n int, err error)
	WriteAt(p []byte, off int64) (n int, err error)
	Length() int64
	Close() error
	DenyWrite()
	AllowWrite()
	Reopen() (File, error)
}

// FS is the subset of filesys_* operations needed to open files by
// name.
type FS interface {
	Open(name string) (File, error)
}

// MemFS is an in-memory FS/File implementation for tests and for the
// simulator's bundled "disk".
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memInode
}

type memInode struct {
	mu   sync.Mutex
	data []byte
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string]*memInode)}
}

// Create adds a file with the given initial contents, overwriting any
// existing file of the same name.
func (m *MemFS) Create(name string, contents []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(contents))
	copy(buf, contents)
	m.files[name] = &memInode{data: buf}
}

// Open implements FS.
func (m *MemFS) Open(name string) (File, error) {
	m.mu.Lock()
	inode, ok := m.files[name]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fsabi: no such file %q", name)
	}
	return &memFile{inode: inode, name: name}, nil
}

type memFile struct {
	inode      *memInode
	name       string
	denyWrites int
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.inode.mu.Lock()
	defer f.inode.mu.Unlock()
	if off < 0 || off > int64(len(f.inode.data)) {
		return 0, fmt.Errorf("fsabi: ReadAt offset %d out of range", off)
	}
	n := copy(p, f.inode.data[off:])
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.inode.mu.Lock()
	defer f.inode.mu.Unlock()
	if f.denyWrites > 0 {
		return 0, fmt.Errorf("fsabi: write denied on %q", f.name)
	}
	end := off + int64(len(p))
	if end > int64(len(f.inode.data)) {
		grown := make([]byte, end)
		copy(grown, f.inode.data)
		f.inode.data = grown
	}
	n := copy(f.inode.data[off:end], p)
	return n, nil
}

func (f *memFile) Length() int64 {
	f.inode.mu.Lock()
	defer f.inode.mu.Unlock()
	return int64(len(f.inode.data))
}

func (f *memFile) Close() error { return nil }

func (f *memFile) DenyWrite()  { f.denyWrites++ }
func (f *memFile) AllowWrite() { f.denyWrites-- }

func (f *memFile) Reopen() (File, error) {
	return &memFile{inode: f.inode, name: f.name}, nil
}
