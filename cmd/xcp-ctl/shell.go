// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/go-lpc/xcp/daq"
	"github.com/go-lpc/xcp/mem"
)

var errQuit = errors.New("xcp-ctl: quit")

type command struct {
	args string // usage of arguments
	help string
	narg [2]int // min and max number of arguments
	f    func(sh *shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":        {"", "display this help", [2]int{0, 0}, (*shell).help},
		"quit":        {"", "quit the shell", [2]int{0, 0}, (*shell).quit},
		"reset":       {"", "stop all DAQ lists and clear the DAQ configuration", [2]int{0, 0}, (*shell).reset},
		"free":        {"", "free all DAQ lists", [2]int{0, 0}, (*shell).free},
		"alloc-daq":   {"N", "allocate N DAQ lists", [2]int{1, 1}, (*shell).allocDAQ},
		"alloc-odt":   {"LIST N", "allocate N ODTs to DAQ list LIST", [2]int{2, 2}, (*shell).allocODT},
		"alloc-entry": {"LIST ODT N", "allocate N entries to an ODT", [2]int{3, 3}, (*shell).allocEntry},
		"set-ptr":     {"LIST ODT ENTRY", "set the DAQ list pointer", [2]int{3, 3}, (*shell).setPtr},
		"write":       {"ADDR LEN [EXT]", "write the ODT entry at the DAQ list pointer", [2]int{2, 3}, (*shell).write},
		"mode":        {"LIST EVENT PRESCALER [ts] [pid-off]", "set the mode of a DAQ list", [2]int{3, 5}, (*shell).mode},
		"select":      {"LIST", "select a DAQ list", [2]int{1, 1}, (*shell).selectList},
		"start":       {"LIST", "start a DAQ list", [2]int{1, 1}, (*shell).start},
		"stop":        {"LIST", "stop a DAQ list", [2]int{1, 1}, (*shell).stop},
		"start-all":   {"", "start the selected DAQ lists", [2]int{0, 0}, (*shell).startAll},
		"stop-all":    {"", "stop all DAQ lists", [2]int{0, 0}, (*shell).stopAll},
		"trigger":     {"CH [N]", "trigger event channel CH, N times", [2]int{1, 2}, (*shell).trigger},
		"poke":        {"ADDR HEX [EXT]", "write bytes to target memory", [2]int{2, 3}, (*shell).poke},
		"drain":       {"", "display and remove the queued DTOs", [2]int{0, 0}, (*shell).drain},
		"load":        {"FILE", "configure the engine from a layout file", [2]int{1, 1}, (*shell).load},
		"info":        {"", "display DAQ processor information", [2]int{0, 0}, (*shell).info},
		"dump":        {"", "display the DAQ configuration", [2]int{0, 0}, (*shell).dump},
	}
}

type shell struct {
	eng *daq.Engine
	mem *mem.Map
	w   io.Writer

	buf []byte
}

func newShell(eng *daq.Engine, m *mem.Map, w io.Writer) *shell {
	return &shell{eng: eng, mem: m, w: w}
}

func (sh *shell) exec(line string) error {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return nil
	}
	name, args := toks[0], toks[1:]
	if name == "exit" {
		name = "quit"
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	if len(args) < cmd.narg[0] || len(args) > cmd.narg[1] {
		return fmt.Errorf("invalid arguments for %q (usage: %s %s)", name, name, cmd.args)
	}
	return cmd.f(sh, args)
}

func (sh *shell) complete(line string) []string {
	var o []string
	for name := range commands {
		if strings.HasPrefix(name, line) {
			o = append(o, name)
		}
	}
	sort.Strings(o)
	return o
}

func (sh *shell) help(args []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(sh.w, "%-40s %s\n", strings.TrimSpace(name+" "+cmd.args), cmd.help)
	}
	return nil
}

func (sh *shell) quit(args []string) error { return errQuit }

func (sh *shell) reset(args []string) error {
	sh.eng.Reset()
	return nil
}

func (sh *shell) free(args []string) error {
	return sh.eng.FreeAll()
}

func (sh *shell) allocDAQ(args []string) error {
	v, err := ints(args)
	if err != nil {
		return err
	}
	return sh.eng.AllocateLists(v[0])
}

func (sh *shell) allocODT(args []string) error {
	v, err := ints(args)
	if err != nil {
		return err
	}
	return sh.eng.AllocateODTs(v[0], v[1])
}

func (sh *shell) allocEntry(args []string) error {
	v, err := ints(args)
	if err != nil {
		return err
	}
	return sh.eng.AllocateEntries(v[0], v[1], v[2])
}

func (sh *shell) setPtr(args []string) error {
	v, err := ints(args)
	if err != nil {
		return err
	}
	return sh.eng.SetPointer(v[0], v[1], v[2])
}

func (sh *shell) write(args []string) error {
	mta, err := mtaFrom(args[0], args[2:])
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return fmt.Errorf("invalid entry size %q: %w", args[1], err)
	}
	return sh.eng.WriteEntry(mta, uint8(n))
}

func (sh *shell) mode(args []string) error {
	v, err := ints(args[:3])
	if err != nil {
		return err
	}
	if v[2] < 0 || v[2] > 0xff {
		return fmt.Errorf("invalid prescaler %d", v[2])
	}
	var mode daq.Mode
	for _, flag := range args[3:] {
		switch flag {
		case "ts":
			mode |= daq.ModeTimestamp
		case "pid-off":
			mode |= daq.ModePIDOff
		default:
			return fmt.Errorf("invalid DAQ list mode flag %q", flag)
		}
	}
	return sh.eng.SetListMode(v[0], mode, v[1], uint8(v[2]))
}

func (sh *shell) startStop(args []string, mode daq.StartStop) error {
	v, err := ints(args)
	if err != nil {
		return err
	}
	return sh.eng.StartStopList(v[0], mode)
}

func (sh *shell) selectList(args []string) error { return sh.startStop(args, daq.Select) }
func (sh *shell) start(args []string) error      { return sh.startStop(args, daq.Start) }
func (sh *shell) stop(args []string) error       { return sh.startStop(args, daq.Stop) }

func (sh *shell) startAll(args []string) error {
	return sh.eng.StartSelected()
}

func (sh *shell) stopAll(args []string) error {
	sh.eng.StopAll()
	return nil
}

func (sh *shell) trigger(args []string) error {
	if len(args) == 1 {
		args = append(args, "1")
	}
	v, err := ints(args)
	if err != nil {
		return err
	}
	if _, err := sh.eng.EventInfo(v[0]); err != nil {
		return err
	}
	for i := 0; i < v[1]; i++ {
		sh.eng.TriggerEvent(v[0])
	}
	return nil
}

func (sh *shell) poke(args []string) error {
	mta, err := mtaFrom(args[0], args[2:])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("invalid data %q: %w", args[1], err)
	}
	return sh.mem.WriteMemory(mta, data)
}

func (sh *shell) drain(args []string) error {
	q := sh.eng.Queue()
	for {
		var ok bool
		sh.buf, ok = q.Dequeue(sh.buf[:0])
		if !ok {
			break
		}
		fmt.Fprintf(sh.w, "dto: %x\n", sh.buf)
	}
	if q.Overload() {
		fmt.Fprintf(sh.w, "overload\n")
		q.ClearOverload()
	}
	return nil
}

func (sh *shell) load(args []string) error {
	lay, err := daq.LoadLayout(args[0])
	if err != nil {
		return err
	}
	return sh.eng.Configure(lay)
}

func (sh *shell) info(args []string) error {
	cnt := sh.eng.Counts()
	unit, size := sh.eng.Timestamp()
	stats := sh.eng.Stats()
	fmt.Fprintf(sh.w, "processor: %v\n", sh.eng.ProcessorState())
	fmt.Fprintf(sh.w, "allocator: %v\n", sh.eng.AllocState())
	fmt.Fprintf(sh.w, "properties: 0x%02x\n", sh.eng.Properties())
	fmt.Fprintf(sh.w, "timestamp: 0x%02x (unit=%v, size=%d)\n", sh.eng.TimestampMode(), unit, size)
	fmt.Fprintf(sh.w, "entities: %d/%d (lists=%d)\n", cnt.Entities, cnt.Capacity, cnt.Lists)
	fmt.Fprintf(sh.w, "fragments: %d (dropped=%d, errors=%d)\n", stats.Fragments, stats.Overloads, stats.Errors)
	for i, evt := range sh.eng.Events() {
		fmt.Fprintf(sh.w, "event[%d]: %q period=%v\n", i, evt.Name, evt.Period())
	}
	return nil
}

func (sh *shell) dump(args []string) error {
	return sh.eng.Dump(sh.w)
}

func ints(args []string) ([]int, error) {
	o := make([]int, len(args))
	for i, arg := range args {
		v, err := strconv.ParseInt(arg, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid argument %q: %w", arg, err)
		}
		o[i] = int(v)
	}
	return o, nil
}

func mtaFrom(addr string, ext []string) (daq.MTA, error) {
	var mta daq.MTA
	v, err := strconv.ParseUint(addr, 0, 32)
	if err != nil {
		return mta, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	mta.Addr = uint32(v)
	if len(ext) > 0 {
		v, err := strconv.ParseUint(ext[0], 0, 8)
		if err != nil {
			return mta, fmt.Errorf("invalid address extension %q: %w", ext[0], err)
		}
		mta.Ext = uint8(v)
	}
	return mta, nil
}
