/*
 * kernelcore - process: the unit of address-space + file-descriptor ownership.
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

// Package process ties a kthread.Thread to an address space
// (vm.SupplementalPageTable) and a file descriptor table, and
// implements the three operations layered on top of them: fork (copy
// the address space, share CoW frames), mmap/munmap (install and tear
// down file-backed page ranges), and exit (parent/child rendezvous via
// a pair of semaphores, the Go analogue of wait_sema/exit_sema).
package process

import (
	"fmt"
	"sync"

	"kernelcore/internal/fsabi"
	"kernelcore/internal/kthread"
	"kernelcore/internal/vm"
)

// Reserved file descriptors, matching STDIN_FILENO/STDOUT_FILENO:
// next_fd starts at 2 so these are never handed out to AddFile.
const (
	FDStdin  = 0
	FDStdout = 1
)

// Mapping records one active mmap region so Munmap can locate every
// page belonging to it.
type Mapping struct {
	Addr   vm.VA
	Length int
	File   fsabi.File
}

// Process is one running program: its thread, its address space, its
// open files, and the parent/child bookkeeping process_wait/process_exit
// use to hand an exit status back up.
type Process struct {
	mu sync.Mutex

	ID     int
	Name   string
	Thread *kthread.Thread

	SPT      *vm.SupplementalPageTable
	FT       *vm.FrameTable
	mappings []Mapping

	Files  map[int]fsabi.File
	nextFD int

	Parent   *Process
	children map[int]*Process

	ExitStatus int
	exited     bool

	// waitSema is released by Exit once the process has torn down its
	// own resources, and acquired by Wait in the parent; exitSema is
	// the parent's acknowledgement back, so a child doesn't vanish out
	// file-descriptor space the parent is still reading ExitStatus
	// from (process_exit's wait_sema/exit_sema pair).
	waitSema *kthread.Semaphore
	exitSema *kthread.Semaphore

	// cloneSema is a separate rendezvous for Fork: it reports whether
	// the child finished copying the parent's address space and files,
	// independent of waitSema/exitSema's exit protocol (process_fork's
	// load_sema).
	cloneSema *kthread.Semaphore
}

var (
	nextIDMu sync.Mutex
	nextID   = 1
)

func allocID() int {
	nextIDMu.Lock()
	defer nextIDMu.Unlock()
	id := nextID
	nextID++
	return id
}

// New creates a process with a fresh address space and an empty file
// table (fds 0 and 1 reserved for stdin/stdout, matching next_fd
// starting at 2).
func New(name string, ft *vm.FrameTable) *Process {
	return &Process{
		ID:        allocID(),
		Name:      name,
		SPT:       vm.NewSupplementalPageTable(),
		FT:        ft,
		Files:     make(map[int]fsabi.File),
		nextFD:    2,
		children:  make(map[int]*Process),
		waitSema:  kthread.NewSemaphore(0),
		exitSema:  kthread.NewSemaphore(0),
		cloneSema: kthread.NewSemaphore(0),
	}
}

// AddFile installs f at the next free descriptor and returns it
// (the fd_table[fd] = file assignment in process_exec's open path).
func (p *Process) AddFile(f fsabi.File) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	fd := p.nextFD
	p.nextFD++
	p.Files[fd] = f
	return fd
}

// File returns the descriptor's file, or nil if fd is not open.
func (p *Process) File(fd int) fsabi.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Files[fd]
}

// CloseFile closes and removes fd from the table.
func (p *Process) CloseFile(fd int) error {
	p.mu.Lock()
	f, ok := p.Files[fd]
	delete(p.Files, fd)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("process: fd %d not open", fd)
	}
	return f.Close()
}

// addChild registers child under p, for Wait to look up by ID later
// (get_child_process).
func (p *Process) addChild(child *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()
	child.Parent = p
	p.children[child.ID] = child
}

func (p *Process) child(id int) *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.children[id]
}

func (p *Process) removeChild(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.children, id)
}
