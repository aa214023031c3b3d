/*
 * kernelcore - Console reader.
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

// Package kconsole implements the simulator's operator console: a
// liner-backed REPL that abbreviation-matches command names the way a
// real Pintos test runner's "-q run foo" or a VAX console's terse
// command set would, dispatching to kthread/vm/process introspection
// and control instead of device attach/detach.
package kconsole

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/peterh/liner"

	"kernelcore/internal/process"
)

// Kernel is the narrow slice of boot-time state the console needs: the
// set of live processes to list, and a way to launch another one.
type Kernel struct {
	Processes func() []*process.Process
	Spawn     func(name string) (*process.Process, error)
}

type command struct {
	name    string
	min     int
	process func(*cmdLine, *Kernel) (bool, error)
}

type cmdLine struct {
	line string
	pos  int
}

// Run starts the console's read-eval-print loop against kernel,
// returning once the operator types "quit" or aborts with Ctrl-D, the
// Go analogue of ConsoleReader's liner.Prompt loop.
func Run(kernel *Kernel, prompt string) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(partial string) []string {
		return CompleteCmd(partial)
	})

	for {
		text, err := line.Prompt(prompt)
		if err == nil {
			line.AppendHistory(text)
			quit, procErr := ProcessCommand(text, kernel)
			if procErr != nil {
				fmt.Println("Error: " + procErr.Error())
			}
			if quit {
				return
			}
			continue
		}

		if errors.Is(err, liner.ErrPromptAborted) {
			return
		}
		slog.Error("kconsole: error reading line: " + err.Error())
		return
	}
}

// ProcessCommand parses and runs one command line against kernel,
// abbreviation-matching the leading word against the registered
// command table the way matchList/matchCommand do.
func ProcessCommand(commandLine string, kernel *Kernel) (bool, error) {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	matches := matchCommands(name)
	switch len(matches) {
	case 0:
		return false, fmt.Errorf("command not found: %s", name)
	case 1:
		return matches[0].process(&line, kernel)
	default:
		return false, fmt.Errorf("ambiguous command: %s", name)
	}
}

// CompleteCmd returns every command name that abbreviation-matches
// the word typed so far, for liner's tab-completion callback.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord()
	var out []string
	for _, c := range matchCommands(name) {
		out = append(out, c.name)
	}
	return out
}

func matchCommands(name string) []command {
	if name == "" {
		return nil
	}
	var match []command
	for _, c := range commandTable {
		if matchesAbbreviation(c, name) {
			match = append(match, c)
		}
	}
	return match
}

// matchesAbbreviation reports whether name is a prefix of c.name at
// least c.min characters long, the same rule matchCommand applies so
// "c" can mean "continue" while "co" is still ambiguous against
// "copy" if one existed.
func matchesAbbreviation(c command, name string) bool {
	if len(name) < c.min || len(name) > len(c.name) {
		return false
	}
	return c.name[:len(name)] == name
}

func (l *cmdLine) isEOL() bool {
	return l.pos >= len(l.line)
}

func (l *cmdLine) skipSpace() {
	for !l.isEOL() && l.line[l.pos] == ' ' {
		l.pos++
	}
}

// getWord consumes and returns the next space-delimited token.
func (l *cmdLine) getWord() string {
	l.skipSpace()
	start := l.pos
	for !l.isEOL() && l.line[l.pos] != ' ' {
		l.pos++
	}
	return l.line[start:l.pos]
}
