/*
 * kernelcore - fork: clone a process's address space and file table.
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

	"kernelcore/internal/kthread"
)

// ForkLoadFailed is the exit status a forked child reports if it could
// not clone the parent's address space or duplicate its files, the Go
// analogue of __do_fork's `goto error` path setting exit_status to
// TID_ERROR before sema_up(&load_sema).
const ForkLoadFailed = -1

// Fork clones parent into a new child process: the supplemental page
// table is copied (uninit pages re-deferred, loaded pages shared
// read-only pending copy-on-write), every open file descriptor is
// duplicated via File.Reopen, and body runs as the child's thread,
// the Go analogue of __do_fork's body running on a freshly created
// thread_create. Fork blocks until the child has finished cloning
// (sema_down(&child->load_sema) in process_fork), returning an error
// if the child reported a clone failure.
func Fork(parent *Process, name string, body func(child *Process)) (*Process, error) {
	child := New(name, parent.FT)
	parent.addChild(child)

	child.Thread = kthread.Create(name, kthread.PriDefault, func(*kthread.Thread) {
		cloneFailed := !child.SPT.Copy(parent.SPT)

		if !cloneFailed {
			parent.mu.Lock()
			for fd, f := range parent.Files {
				dup, err := f.Reopen()
				if err != nil {
					cloneFailed = true
					break
				}
				child.Files[fd] = dup
			}
			child.nextFD = parent.nextFD
			parent.mu.Unlock()
		}

		if cloneFailed {
			child.mu.Lock()
			child.ExitStatus = ForkLoadFailed
			child.mu.Unlock()
			child.cloneSema.Up()
			return
		}

		child.cloneSema.Up()

		if body != nil {
			body(child)
		}
	})

	child.cloneSema.Down()

	child.mu.Lock()
	failed := child.ExitStatus == ForkLoadFailed
	child.mu.Unlock()
	if failed {
		return nil, fmt.Errorf("process: fork of %q failed to clone address space", name)
	}
	return child, nil
}
