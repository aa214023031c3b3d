/*
 * kernelcore - Main process.
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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	getopt "github.com/pborman/getopt/v2"

	"kernelcore/internal/fsabi"
	"kernelcore/internal/kconfig"
	"kernelcore/internal/kconsole"
	"kernelcore/internal/klog"
	"kernelcore/internal/kthread"
	"kernelcore/internal/ktimer"
	"kernelcore/internal/palloc"
	"kernelcore/internal/process"
	"kernelcore/internal/vm"
)

// tickPeriod is how often the simulated timer interrupt fires; Pintos
// runs at 100 Hz (10ms), kept here even though nothing in this
// simulator depends on real-time accuracy.
const tickPeriod = 10 * time.Millisecond

var logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "kernelsim.cfg", "Boot configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	cfg := kconfig.Default()
	if optConfig != nil {
		if _, err := os.Stat(*optConfig); err == nil {
			loaded, err := kconfig.LoadFile(*optConfig)
			if err != nil {
				fmt.Fprintln(os.Stderr, "kernelsim:", err)
				os.Exit(1)
			}
			cfg = loaded
		}
	}

	var logFile *os.File
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "kernelsim:", err)
			os.Exit(1)
		}
		logFile = f
	}
	logger = klog.New(logFile, kthread.Ticks, cfg.Debug)
	slog.SetDefault(logger)

	logger.Info("kernelsim booting", "policy", cfg.Policy, "kernel-frames", cfg.KernelFrames,
		"user-frames", cfg.UserFrames, "swap-slots", cfg.SwapSlots)

	pool := palloc.NewPool(cfg.KernelFrames, cfg.UserFrames)
	frames := vm.NewFrameTable(pool)
	vm.SetGlobalFrameTable(frames)
	vm.SetDefaultSwapDisk(vm.NewSwapDisk(cfg.SwapSlots))

	fs := fsabi.NewMemFS()
	kthread.Configure(cfg.Policy == kconfig.PolicyMLFQS)

	timer := ktimer.New(tickPeriod)

	kthread.Start("main", kthread.PriDefault, func(*kthread.Thread) {
		timer.Start()
		defer timer.Shutdown()

		kernel := &kconsole.Kernel{
			Spawn: func(name string) (*process.Process, error) {
				return spawn(name, frames, fs)
			},
		}

		for _, name := range cfg.RunCommands {
			if _, err := spawn(name, frames, fs); err != nil {
				logger.Error("run directive failed", "name", name, "error", err)
			}
		}

		kconsole.Run(kernel, "kernelsim> ")
	})

	logger.Info("kernelsim halted", "stats", kthread.PrintStats())
}

// spawn creates a new process and hands it a kernel thread of its own;
// a boot-time kconfig "run" directive and the console's "run" command
// both funnel through here.
func spawn(name string, frames *vm.FrameTable, fs *fsabi.MemFS) (*process.Process, error) {
	p := process.New(name, frames)
	p.Thread = kthread.Create(name, kthread.PriDefault, func(*kthread.Thread) {
		logger.Debug("process running", "name", name, "pid", p.ID)
		p.Exit(0)
	})
	return p, nil
}
