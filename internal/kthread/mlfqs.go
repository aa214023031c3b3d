/*
 * kernelcore - MLFQS priority, recent_cpu and load_avg recomputation.
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

package kthread

import "kernelcore/internal/fixedpoint"

// mlfqsCalculatePriority computes priority = PRI_MAX - recent_cpu/4 -
// nice*2, clamped to [PRI_MIN, PRI_MAX]. Caller must hold sched.mu.
func mlfqsCalculatePriority(t *Thread) {
	p := PriMax - t.recentCPU.DivInt(4).ToIntZero() - t.nice*2
	if p < PriMin {
		p = PriMin
	}
	if p > PriMax {
		p = PriMax
	}
	t.priority = p
}

// mlfqsCalculateRecentCPU applies
// recent_cpu = (2*load_avg)/(2*load_avg+1) * recent_cpu + nice.
// Caller must hold sched.mu.
func mlfqsCalculateRecentCPU(t *Thread) {
	twiceLoad := sched.loadAvg.MulInt(2)
	decay := twiceLoad.Div(twiceLoad.AddInt(1))
	t.recentCPU = decay.Mul(t.recentCPU).AddInt(t.nice)
}

// mlfqsCalculateLoadAvgLocked applies
// load_avg = 59/60 * load_avg + 1/60 * ready_count, where ready_count
// counts the running thread too unless it is idle. Caller must hold
// sched.mu.
func mlfqsCalculateLoadAvgLocked() {
	readyCount := len(sched.ready)
	if sched.current != nil && !sched.current.idle {
		readyCount++
	}
	coeffOld := fixedpoint.FromInt(59).Div(fixedpoint.FromInt(60))
	coeffReady := fixedpoint.FromInt(1).Div(fixedpoint.FromInt(60))
	sched.loadAvg = coeffOld.Mul(sched.loadAvg).Add(coeffReady.MulInt(readyCount))
}
