/*
 * kernelcore - Configuration file parser
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

// Package kconfig parses the simulator's boot configuration file: one
// "key = value" directive per line, blank lines and '#' comments
// ignored, the same line-oriented shape the original device config
// file used, generalized from "register a device model per line" to
// "register a boot option handler per key" since this kernel has
// subsystems to configure instead of pluggable hardware.
package kconfig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Scheduler policy names accepted by the "policy" key.
const (
	PolicyRoundRobin = "round-robin"
	PolicyPriority   = "priority"
	PolicyMLFQS      = "mlfqs"
)

// Config holds every boot-time setting the simulator understands,
// defaulted the way thread_init/palloc_init's compiled-in constants
// would be if this kernel had no command line at all.
type Config struct {
	Policy       string
	KernelFrames int
	UserFrames   int
	SwapSlots    int
	Debug        bool
	RunCommands  []string
}

// Default returns the configuration a boot with no config file at all
// would use.
func Default() *Config {
	return &Config{
		Policy:       PolicyPriority,
		KernelFrames: 64,
		UserFrames:   256,
		SwapSlots:    512,
	}
}

// handler applies one key's value to cfg; registered in the init
// blocks below instead of every caller hand-rolling a switch, mirroring
// RegisterModel/RegisterOption's per-key dispatch table.
type handler func(cfg *Config, value string) error

var handlers = map[string]handler{}

func register(key string, fn handler) {
	handlers[key] = fn
}

func init() {
	register("policy", func(cfg *Config, value string) error {
		switch value {
		case PolicyRoundRobin, PolicyPriority, PolicyMLFQS:
			cfg.Policy = value
			return nil
		default:
			return fmt.Errorf("kconfig: unknown policy %q", value)
		}
	})
	register("kernel-frames", func(cfg *Config, value string) error {
		return setInt(&cfg.KernelFrames, value)
	})
	register("user-frames", func(cfg *Config, value string) error {
		return setInt(&cfg.UserFrames, value)
	})
	register("swap-slots", func(cfg *Config, value string) error {
		return setInt(&cfg.SwapSlots, value)
	})
	register("debug", func(cfg *Config, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("kconfig: debug: %w", err)
		}
		cfg.Debug = b
		return nil
	})
	register("run", func(cfg *Config, value string) error {
		cfg.RunCommands = append(cfg.RunCommands, value)
		return nil
	})
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("kconfig: expected integer, got %q", value)
	}
	*dst = n
	return nil
}

// Parse reads r line by line, applying each "key = value" (or
// "key value") directive to cfg via its registered handler. Blank
// lines and lines starting with '#' are ignored. An unregistered key
// is an error, the same as LoadConfigFile's "No type registered".
func Parse(r io.Reader, cfg *Config) error {
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, err := splitDirective(line)
		if err != nil {
			return fmt.Errorf("kconfig: line %d: %w", lineNumber, err)
		}

		h, ok := handlers[key]
		if !ok {
			return fmt.Errorf("kconfig: line %d: unknown option %q", lineNumber, key)
		}
		if err := h(cfg, value); err != nil {
			return fmt.Errorf("kconfig: line %d: %w", lineNumber, err)
		}
	}
	return scanner.Err()
}

func splitDirective(line string) (key, value string, err error) {
	if idx := strings.IndexByte(line, '='); idx >= 0 {
		return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), nil
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", errors.New("expected \"key = value\" or \"key value\"")
	}
	return fields[0], strings.Join(fields[1:], " "), nil
}

// LoadFile opens name, applies every directive on top of Default, and
// returns the resulting configuration.
func LoadFile(name string) (*Config, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := Default()
	if err := Parse(file, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
