/*
 * kernelcore - process exit and parent/child wait rendezvous.
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
)

// Exit prints the mandatory termination message, closes every open
// file, tears down the address space (running each page's Destroy so
// dirty file-backed and anonymous pages are written back or
// released), records status, and rendezvous with a parent that may be
// blocked in Wait: wakes it via waitSema, then blocks on exitSema
// until the parent has read ExitStatus and acknowledged, mirroring
// process_exit's wait_sema/exit_sema pair so a concurrent Wait can
// never observe a half-destroyed child.
func (p *Process) Exit(status int) {
	fmt.Printf("%s: exit(%d)\n", p.Name, status)

	// A process that exits while mid file operation (a fault serviced
	// inside a syscall that was already holding the lock, say) must not
	// leave the filesystem lock stuck held by a thread that is about to
	// stop existing.
	fsabi.FSLock.ForceRelease()

	p.mu.Lock()
	for fd, f := range p.Files {
		f.Close()
		delete(p.Files, fd)
	}
	p.mu.Unlock()

	p.SPT.Clear()

	p.mu.Lock()
	p.ExitStatus = status
	p.exited = true
	p.mu.Unlock()

	p.waitSema.Up()
	p.exitSema.Down()
}

// Wait blocks until the child with the given ID has exited, returning
// its exit status, the Go analogue of process_wait. Returns an error
// if childID does not name a live child of p (an unknown pid, or a
// pid already reaped by an earlier Wait).
func (p *Process) Wait(childID int) (int, error) {
	child := p.child(childID)
	if child == nil {
		return -1, fmt.Errorf("process: %d is not a child of process %d", childID, p.ID)
	}

	child.waitSema.Down()

	child.mu.Lock()
	status := child.ExitStatus
	child.mu.Unlock()

	p.removeChild(childID)
	child.exitSema.Up()
	return status, nil
}
