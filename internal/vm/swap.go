/*
 * kernelcore - swap disk backing anonymous pages.
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
	"fmt"
	"sync"

	"kernelcore/internal/bitmap"
	"kernelcore/internal/palloc"
)

// SwapDisk is a fixed-capacity byte arena standing in for the swap
// partition, with one bit per page-sized slot tracking occupancy, the
// same role swap_bitmap plays against disk_get(1,1) in the original.
type SwapDisk struct {
	mu    sync.Mutex
	slots *bitmap.Bitmap
	data  [][palloc.PageSize]byte
}

// NewSwapDisk allocates a swap area of the given number of page-sized
// slots.
func NewSwapDisk(slotCount int) *SwapDisk {
	return &SwapDisk{
		slots: bitmap.New(slotCount),
		data:  make([][palloc.PageSize]byte, slotCount),
	}
}

// defaultSwapDisk is the process-wide default, sized generously enough
// for test and simulator workloads; cmd/kernelsim may replace it via
// SetDefaultSwapDisk for a differently sized boot configuration.
var defaultSwapDisk = NewSwapDisk(512)

// DefaultSwapDisk returns the kernel-wide swap area.
func DefaultSwapDisk() *SwapDisk { return defaultSwapDisk }

// Capacity returns the total number of page-sized slots.
func (d *SwapDisk) Capacity() int { return d.slots.Len() }

// UsedSlots returns the number of occupied page-sized slots, for
// operator introspection (the "vmstat" console command).
func (d *SwapDisk) UsedSlots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots.Count(0, d.slots.Len(), true)
}

// SetDefaultSwapDisk overrides the kernel-wide swap area, for boot
// configuration or test isolation.
func SetDefaultSwapDisk(d *SwapDisk) { defaultSwapDisk = d }

// Out claims a free slot and copies frame's contents into it,
// returning the slot index. Panics if the swap disk is full, matching
// anon_swap_out's PANIC("Swap space full!").
func (d *SwapDisk) Out(pool *palloc.Pool, f palloc.Frame) int {
	d.mu.Lock()
	slot := d.slots.ScanAndFlip(0, 1, false)
	if slot < 0 {
		d.mu.Unlock()
		panic("vm: swap space full")
	}
	d.data[slot] = *pool.Bytes(f)
	d.mu.Unlock()
	return slot
}

// In copies a previously swapped-out slot's contents into frame and
// frees the slot. Returns an error if the slot was never written.
func (d *SwapDisk) In(pool *palloc.Pool, slot int, f palloc.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot < 0 || slot >= d.slots.Len() || !d.slots.Test(slot) {
		return fmt.Errorf("vm: swap slot %d not occupied", slot)
	}
	*pool.Bytes(f) = d.data[slot]
	d.slots.Set(slot, false)
	return nil
}

// Free releases slot without reading it back, for a page destroyed
// while it is swapped out rather than faulted back in.
func (d *SwapDisk) Free(slot int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot < 0 || slot >= d.slots.Len() {
		return
	}
	d.slots.Set(slot, false)
}
