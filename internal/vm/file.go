/*
 * kernelcore - file-backed pages (mmap).
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

import (
	"kernelcore/internal/fsabi"
	"kernelcore/internal/palloc"
)

// fileState mirrors struct file_page/page_info_transmitter: the
// backing file, the byte range of this page within it, and the mmap
// region's start address and total size (so munmap can walk every
// page of one mapping).
type fileState struct {
	file      fsabi.File
	offset    int64
	readBytes int
	startAddr VA
	mapSize   int
}

// FileMapping describes one page-sized chunk do_mmap lazily allocates
// a page for.
type FileMapping struct {
	File      fsabi.File
	Offset    int64
	ReadBytes int
}

type fileAux struct {
	mapping   FileMapping
	startAddr VA
	mapSize   int
}

// NewFilePage builds a file-backed page that lazily reads its chunk
// of the mapped file on first claim.
func NewFilePage(va VA, writable bool, mapping FileMapping, startAddr VA, mapSize int) *Page {
	aux := fileAux{mapping: mapping, startAddr: startAddr, mapSize: mapSize}
	return NewUninitPage(va, writable, KindFile, fileInitializer, aux)
}

func fileInitializer(p *Page, frame *palloc.Frame) bool {
	aux, ok := p.aux.(fileAux)
	if !ok {
		return false
	}
	p.file = fileState{
		file:      aux.mapping.File,
		offset:    aux.mapping.Offset,
		readBytes: aux.mapping.ReadBytes,
		startAddr: aux.startAddr,
		mapSize:   aux.mapSize,
	}
	return fileOps{}.SwapIn(p, *frame)
}

type fileOps struct{}

// SwapIn reads the mapped chunk from the backing file into f,
// zero-filling whatever trailing bytes of the page the file didn't
// cover (file_backed_swap_in). Held under the global filesystem lock,
// like every other path that touches file content.
func (fileOps) SwapIn(p *Page, f palloc.Frame) bool {
	fsabi.FSLock.Acquire()
	defer fsabi.FSLock.Release()

	buf := globalFrameTable.Pool().Bytes(f)
	n, err := p.file.file.ReadAt(buf[:p.file.readBytes], p.file.offset)
	if err != nil || n != p.file.readBytes {
		return false
	}
	for i := p.file.readBytes; i < palloc.PageSize; i++ {
		buf[i] = 0
	}
	return true
}

// SwapOut writes the page back to the file if it was modified, then
// releases the frame (file-backed pages are never sent to the swap
// disk: their disk copy already is the backing store).
func (fileOps) SwapOut(p *Page) bool {
	if p.Frame == nil {
		return false
	}
	if globalFrameTable.Pool().Dirty(*p.Frame) {
		fsabi.FSLock.Acquire()
		buf := globalFrameTable.Pool().Bytes(*p.Frame)
		_, err := p.file.file.WriteAt(buf[:p.file.readBytes], p.file.offset)
		fsabi.FSLock.Release()
		if err != nil {
			return false
		}
		globalFrameTable.Pool().SetDirty(*p.Frame, false)
	}
	return true
}

func (fileOps) Destroy(p *Page) {
	if p.FrameSet && p.Frame != nil {
		if globalFrameTable.Pool().Dirty(*p.Frame) {
			fsabi.FSLock.Acquire()
			buf := globalFrameTable.Pool().Bytes(*p.Frame)
			p.file.file.WriteAt(buf[:p.file.readBytes], p.file.offset)
			fsabi.FSLock.Release()
		}
		globalFrameTable.Release(*p.Frame)
	}
}

// MappingSpan returns the file-backed page's mmap start address and
// total size, for munmap to locate every page belonging to the same
// mapping.
func (p *Page) MappingSpan() (start VA, size int) {
	return p.file.startAddr, p.file.mapSize
}
