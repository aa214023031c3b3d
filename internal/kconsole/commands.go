/*
 * kernelcore - Console command table
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

package kconsole

import (
	"fmt"
	"strconv"

	"kernelcore/internal/kthread"
	"kernelcore/internal/vm"
)

// commandTable lists every operator command, longest-name first is not
// required since matching is by unique prefix rather than order; min
// is the fewest leading characters accepted as an abbreviation of the
// name.
var commandTable = []command{
	{name: "help", min: 1, process: cmdHelp},
	{name: "ps", min: 2, process: cmdPs},
	{name: "stats", min: 2, process: cmdStats},
	{name: "vmstat", min: 2, process: cmdVmstat},
	{name: "sleep", min: 2, process: cmdSleep},
	{name: "mlfqs", min: 2, process: cmdMlfqs},
	{name: "run", min: 2, process: cmdRun},
	{name: "quit", min: 1, process: cmdQuit},
}

func cmdHelp(_ *cmdLine, _ *Kernel) (bool, error) {
	for _, c := range commandTable {
		fmt.Println(c.name)
	}
	return false, nil
}

func cmdPs(_ *cmdLine, _ *Kernel) (bool, error) {
	for _, t := range kthread.AllThreads() {
		fmt.Printf("%-16s %-8s pri=%d\n", t.Name, t.Status(), t.Priority())
	}
	return false, nil
}

func cmdStats(_ *cmdLine, _ *Kernel) (bool, error) {
	fmt.Println(kthread.PrintStats())
	return false, nil
}

func cmdVmstat(_ *cmdLine, _ *Kernel) (bool, error) {
	ft := vm.GlobalFrameTable()
	if ft == nil {
		return false, fmt.Errorf("vmstat: no frame table installed")
	}
	pool := ft.Pool()
	fmt.Printf("frames: %d/%d free\n", pool.NumFree(), pool.NumFrames())
	if swap := vm.DefaultSwapDisk(); swap != nil {
		fmt.Printf("swap:   %d/%d slots used\n", swap.UsedSlots(), swap.Capacity())
	}
	return false, nil
}

// cmdSleep parks the console's own thread for the given number of
// ticks, a hands-on way to watch the sleep queue and the timer wake a
// thread back up.
func cmdSleep(line *cmdLine, _ *Kernel) (bool, error) {
	word := line.getWord()
	n, err := strconv.ParseInt(word, 10, 64)
	if err != nil || n < 0 {
		return false, fmt.Errorf("sleep: expected a non-negative tick count, got %q", word)
	}
	kthread.SleepUntil(kthread.Ticks() + n)
	return false, nil
}

// cmdMlfqs reports whether the multi-level feedback queue scheduler is
// active. Like Pintos' "-o mlfqs", the policy is fixed at boot by
// kconfig and cannot be toggled once the scheduler has started.
func cmdMlfqs(_ *cmdLine, _ *Kernel) (bool, error) {
	if kthread.MLFQSEnabled() {
		fmt.Println("mlfqs: on")
	} else {
		fmt.Println("mlfqs: off")
	}
	return false, nil
}

func cmdRun(line *cmdLine, kernel *Kernel) (bool, error) {
	name := line.getWord()
	if name == "" {
		return false, fmt.Errorf("run: missing program name")
	}
	if kernel == nil || kernel.Spawn == nil {
		return false, fmt.Errorf("run: no spawn handler installed")
	}
	p, err := kernel.Spawn(name)
	if err != nil {
		return false, fmt.Errorf("run: %w", err)
	}
	fmt.Printf("started %s (pid %d)\n", p.Name, p.ID)
	return false, nil
}

func cmdQuit(_ *cmdLine, _ *Kernel) (bool, error) {
	return true, nil
}
