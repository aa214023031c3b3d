/*
 * kernelcore - fixed-size bit vector, used by the swap slot allocator.
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

// Package bitmap implements a fixed-size vector of bits backed by a
// []uint64, with the scan/scan-and-flip operations the swap bitmap
// needs to find and claim free slots.
package bitmap

import (
	"fmt"
	"strings"
	"sync"
)

const elemBits = 64

// ErrNotFound is returned by Scan/ScanAndFlip when no matching run of
// CNT consecutive bits exists.
const ErrNotFound = -1

// Bitmap is a fixed-length, mutex-guarded bit vector.
type Bitmap struct {
	mu   sync.Mutex
	bits []uint64
	n    int
}

// New returns a bitmap of n bits, all initially clear.
func New(n int) *Bitmap {
	return &Bitmap{bits: make([]uint64, elemCount(n)), n: n}
}

func elemCount(n int) int {
	return (n + elemBits - 1) / elemBits
}

// Len returns the number of bits in the bitmap.
func (b *Bitmap) Len() int {
	return b.n
}

func (b *Bitmap) checkIdx(idx int) {
	if idx < 0 || idx >= b.n {
		panic(fmt.Sprintf("bitmap: index %d out of range [0,%d)", idx, b.n))
	}
}

// Set sets the bit numbered idx to value.
func (b *Bitmap) Set(idx int, value bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkIdx(idx)
	mask := uint64(1) << uint(idx%elemBits)
	if value {
		b.bits[idx/elemBits] |= mask
	} else {
		b.bits[idx/elemBits] &^= mask
	}
}

// Test returns the value of the bit numbered idx.
func (b *Bitmap) Test(idx int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkIdx(idx)
	mask := uint64(1) << uint(idx%elemBits)
	return b.bits[idx/elemBits]&mask != 0
}

// SetAll sets every bit in the map to value.
func (b *Bitmap) SetAll(value bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setRangeLocked(0, b.n, value)
}

func (b *Bitmap) setRangeLocked(start, cnt int, value bool) {
	for i := start; i < start+cnt; i++ {
		mask := uint64(1) << uint(i%elemBits)
		if value {
			b.bits[i/elemBits] |= mask
		} else {
			b.bits[i/elemBits] &^= mask
		}
	}
}

// Count returns the number of bits between start and start+cnt set to
// value.
func (b *Bitmap) Count(start, cnt int, value bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for i := start; i < start+cnt; i++ {
		mask := uint64(1) << uint(i%elemBits)
		set := b.bits[i/elemBits]&mask != 0
		if set == value {
			n++
		}
	}
	return n
}

func (b *Bitmap) containsLocked(start, cnt int, value bool) bool {
	for i := start; i < start+cnt; i++ {
		mask := uint64(1) << uint(i%elemBits)
		set := b.bits[i/elemBits]&mask != 0
		if set == value {
			return true
		}
	}
	return false
}

// Any reports whether any bit in [start, start+cnt) is set.
func (b *Bitmap) Any(start, cnt int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.containsLocked(start, cnt, true)
}

// All reports whether every bit in [start, start+cnt) is set.
func (b *Bitmap) All(start, cnt int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.containsLocked(start, cnt, false)
}

// Scan finds the starting index of the first run of cnt consecutive
// bits at or after start that are all set to value, or ErrNotFound.
func (b *Bitmap) Scan(start, cnt int, value bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scanLocked(start, cnt, value)
}

func (b *Bitmap) scanLocked(start, cnt int, value bool) int {
	if cnt > b.n {
		return ErrNotFound
	}
	last := b.n - cnt
	for i := start; i <= last; i++ {
		if !b.containsLocked(i, cnt, !value) {
			return i
		}
	}
	return ErrNotFound
}

// ScanAndFlip finds the first run of cnt consecutive bits set to value
// at or after start, flips them to !value, and returns the starting
// index, or ErrNotFound if no such run exists. This is the operation
// the swap allocator uses to atomically claim a slot.
func (b *Bitmap) ScanAndFlip(start, cnt int, value bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.scanLocked(start, cnt, value)
	if idx != ErrNotFound {
		b.setRangeLocked(idx, cnt, !value)
	}
	return idx
}

// Dump renders the bitmap as a string of '0'/'1' characters, most
// significant index last, for debug console output.
func (b *Bitmap) Dump() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sb strings.Builder
	for i := 0; i < b.n; i++ {
		mask := uint64(1) << uint(i%elemBits)
		if b.bits[i/elemBits]&mask != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
