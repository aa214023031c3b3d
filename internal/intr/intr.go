/*
 * kernelcore - Interrupt level tracking and scoped critical sections.
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

// Package intr tracks the kernel's notion of interrupt level. There is no
// real CPU flag to flip: on a single logical CPU, "interrupts disabled"
// means the scheduler's internal lock is held by whichever actor (a
// running thread or the timer tick) is currently doing queue surgery.
// This package only carries the bookkeeping a real kernel keeps next to
// that lock -- the current level, whether we are inside interrupt
// context, and the yield-on-return flag interrupt epilogues consult --
// so that kthread can assert preconditions the way thread.c does.
package intr

import "sync/atomic"

// Level mirrors Pintos' enum intr_level.
type Level int32

const (
	LevelOff Level = iota
	LevelOn
)

var (
	level         atomic.Int32 // current Level, starts On
	contextDepth  atomic.Int32 // >0 while a "hardware interrupt handler" runs
	yieldOnReturn atomic.Bool
)

func init() {
	level.Store(int32(LevelOn))
}

// GetLevel returns the current interrupt level.
func GetLevel() Level {
	return Level(level.Load())
}

// SetLevel sets the interrupt level and returns the previous one, exactly
// like Pintos' intr_set_level.
func SetLevel(l Level) Level {
	old := Level(level.Swap(int32(l)))
	return old
}

// Disable turns interrupts off and returns the previous level, so the
// caller can restore it later with SetLevel.
func Disable() Level {
	return SetLevel(LevelOff)
}

// Enable turns interrupts on and returns the previous level.
func Enable() Level {
	return SetLevel(LevelOn)
}

// InContext reports whether the calling code is running as part of an
// "external interrupt" handler (the timer tick), matching
// intr_context().
func InContext() bool {
	return contextDepth.Load() > 0
}

// EnterContext marks the start of interrupt-context execution.
func EnterContext() {
	contextDepth.Add(1)
}

// ExitContext marks the end of interrupt-context execution and returns
// whether a yield was requested while inside it (intr_yield_on_return).
// The caller is responsible for acting on the flag after unwinding out
// of interrupt context, since the handler itself cannot block or switch.
func ExitContext() bool {
	contextDepth.Add(-1)
	return yieldOnReturn.Swap(false)
}

// YieldOnReturn requests that the current thread yield as soon as
// interrupt-context execution completes. Safe to call from interrupt
// context, where an immediate context switch is not.
func YieldOnReturn() {
	yieldOnReturn.Store(true)
}
