// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq implements the data acquisition engine of an XCP slave:
// dynamic allocation of DAQ lists, ODTs and ODT entries, event triggered
// sampling of target memory and the transfer queue of DTO fragments.
package daq // import "github.com/go-lpc/xcp/daq"

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// ProcessorState is the global state of the DAQ processor.
type ProcessorState uint8

const (
	ProcUninit ProcessorState = iota
	ProcConfigInvalid
	ProcConfigValid
	ProcStopped
	ProcRunning
)

func (s ProcessorState) String() string {
	switch s {
	case ProcUninit:
		return "uninitialized"
	case ProcConfigInvalid:
		return "configuration invalid"
	case ProcConfigValid:
		return "configuration valid"
	case ProcStopped:
		return "stopped"
	case ProcRunning:
		return "running"
	default:
		return fmt.Sprintf("ProcessorState(%d)", uint8(s))
	}
}

// DAQ properties, as reported by GET_DAQ_PROCESSOR_INFO.
const (
	PropConfigDynamic      = 0x01
	PropPrescaler          = 0x02
	PropResume             = 0x04
	PropBitSTIM            = 0x08
	PropTimestampSupported = 0x10
	PropPIDOffSupported    = 0x20
)

// StartStop selects the action of StartStopList.
type StartStop uint8

const (
	Stop StartStop = iota
	Start
	Select
)

// Engine is a DAQ processor instance.
// Configuration calls and TriggerEvent may be issued from different
// goroutines; the queue is drained by a single consumer.
type Engine struct {
	msg *log.Logger
	cfg config

	mu    sync.Mutex
	ents  arena
	state AllocState
	proc  ProcessorState
	ptr   Pointer

	mem   Memory
	clock Clock
	queue *Queue

	buf   []byte // fragment scratch buffer
	stats Stats
}

// Stats holds sampling statistics.
type Stats struct {
	Fragments uint64 // fragments handed to the queue
	Overloads uint64 // fragments dropped because the queue was full
	Errors    uint64 // fragments dropped because of a memory or size error
}

// New creates a new DAQ engine reading target memory through mem.
func New(mem Memory, opts ...Option) (*Engine, error) {
	if mem == nil {
		return nil, fmt.Errorf("daq: invalid nil memory")
	}

	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	err := cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("daq: invalid configuration: %w", err)
	}

	e := &Engine{
		msg:   cfg.msg,
		cfg:   cfg,
		ents:  newArena(cfg.capacity),
		mem:   mem,
		clock: cfg.clock,
		queue: NewQueue(cfg.queue, cfg.maxDTO),
		buf:   make([]byte, cfg.maxDTO),
	}
	if e.msg == nil {
		e.msg = log.New(os.Stdout, "daq: ", 0)
	}
	if e.clock == nil {
		e.clock = NewClock(cfg.tsUnit)
	}

	e.reset()
	return e, nil
}

// Reset stops all DAQ lists, clears the DAQ configuration and the transfer queue.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *Engine) reset() {
	e.stopAll()
	e.state = StateIdle
	_ = e.free() // always allowed.
	e.queue.Init()
	e.stats = Stats{}
}

// Queue returns the transfer queue fed by TriggerEvent.
func (e *Engine) Queue() *Queue { return e.queue }

// Stats returns a snapshot of the sampling statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// ProcessorState returns the state of the DAQ processor.
func (e *Engine) ProcessorState() ProcessorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proc
}

// SetProcessorState sets the state of the DAQ processor.
func (e *Engine) SetProcessorState(s ProcessorState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.proc = s
}

// Properties returns the DAQ properties byte.
func (e *Engine) Properties() uint8 {
	props := uint8(PropConfigDynamic | PropPIDOffSupported)
	if e.cfg.prescaler {
		props |= PropPrescaler
	}
	if e.cfg.tsSize > 0 {
		props |= PropTimestampSupported
	}
	return props
}

// TimestampMode returns the timestamp mode byte: the unit in the upper
// nibble and the size in bytes in the lower one.
func (e *Engine) TimestampMode() uint8 {
	return uint8(e.cfg.tsUnit)<<4 | uint8(e.cfg.tsSize)
}

// Timestamp returns the unit and the size in bytes of DTO timestamps.
func (e *Engine) Timestamp() (TimestampUnit, int) {
	return e.cfg.tsUnit, e.cfg.tsSize
}

// Clock returns the current value of the DAQ clock.
func (e *Engine) Clock() uint32 {
	return e.clock.Now()
}

// Events returns the event channels of the engine.
func (e *Engine) Events() []Event {
	o := make([]Event, len(e.cfg.events))
	copy(o, e.cfg.events)
	return o
}

// EventInfo returns the descriptor of event channel ch.
func (e *Engine) EventInfo(ch int) (Event, error) {
	if ch < 0 || ch >= len(e.cfg.events) {
		return Event{}, outOfRange("event channel", ch, len(e.cfg.events))
	}
	return e.cfg.events[ch], nil
}

// StartStopList stops, starts or selects DAQ list list.
func (e *Engine) StartStopList(list int, mode StartStop) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	dl, err := e.ents.list(list)
	if err != nil {
		return fmt.Errorf("daq: could not start/stop DAQ list: %w", err)
	}

	switch mode {
	case Stop:
		dl.Mode &^= ModeStarted
		if !e.running() {
			e.proc = ProcStopped
		}
	case Start:
		if !e.validateList(list) {
			return fmt.Errorf("daq: could not start DAQ list %d: %w", list, errListConfig)
		}
		err = e.checkSize(list)
		if err != nil {
			return fmt.Errorf("daq: could not start DAQ list %d: %w", list, err)
		}
		dl.Mode |= ModeStarted
		dl.Counter = 0
		e.proc = ProcRunning
	case Select:
		if !e.validateList(list) {
			return fmt.Errorf("daq: could not select DAQ list %d: %w", list, errListConfig)
		}
		dl.Mode |= ModeSelected
	default:
		return fmt.Errorf("daq: invalid start/stop mode %d", mode)
	}
	return nil
}

// StartSelected starts all the selected DAQ lists and clears their
// selection flag.
func (e *Engine) StartSelected() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := 0; i < e.ents.nlists; i++ {
		dl := &e.ents.ents[i].List
		if dl.Mode&ModeSelected == 0 {
			continue
		}
		if !e.validateList(i) {
			return fmt.Errorf("daq: could not start DAQ list %d: %w", i, errListConfig)
		}
		err := e.checkSize(i)
		if err != nil {
			return fmt.Errorf("daq: could not start DAQ list %d: %w", i, err)
		}
	}

	n := e.synch(true)
	if n > 0 {
		e.proc = ProcRunning
	}
	return nil
}

// StopSelected stops all the selected DAQ lists and clears their
// selection flag.
func (e *Engine) StopSelected() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.synch(false)
	if !e.running() {
		e.proc = ProcStopped
	}
}

// StopAll stops all DAQ lists.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopAll()
}

func (e *Engine) stopAll() {
	for i := 0; i < e.ents.nlists; i++ {
		e.ents.ents[i].List.Mode &^= ModeStarted | ModeSelected
	}
	e.proc = ProcStopped
}

func (e *Engine) synch(start bool) int {
	n := 0
	for i := 0; i < e.ents.nlists; i++ {
		dl := &e.ents.ents[i].List
		if dl.Mode&ModeSelected == 0 {
			continue
		}
		if start {
			dl.Mode |= ModeStarted
			dl.Counter = 0
		} else {
			dl.Mode &^= ModeStarted
		}
		dl.Mode &^= ModeSelected
		n++
	}
	return n
}

func (e *Engine) running() bool {
	for i := 0; i < e.ents.nlists; i++ {
		if e.ents.ents[i].List.Mode&ModeStarted != 0 {
			return true
		}
	}
	return false
}

// checkSize makes sure the fragment of a DAQ list fits in a DTO.
func (e *Engine) checkSize(list int) error {
	dl := &e.ents.ents[list].List
	size := e.headerSize(dl.Mode)
	for i := 0; i < dl.ODTs.Count; i++ {
		odt, err := e.ents.odt(list, i)
		if err != nil {
			return err
		}
		for j := 0; j < odt.Entries.Count; j++ {
			ent, err := e.ents.entry(list, i, j)
			if err != nil {
				return err
			}
			size += int(ent.Len)
		}
	}
	if size > e.cfg.maxDTO {
		return fmt.Errorf("fragment size %d exceeds max DTO size %d", size, e.cfg.maxDTO)
	}
	if dl.Mode&ModePIDOff != 0 {
		return nil
	}
	pid, err := e.firstPID(list)
	if err != nil {
		return err
	}
	if pid > maxPID {
		return outOfRange("pid", pid, maxPID+1)
	}
	return nil
}
