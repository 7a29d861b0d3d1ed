// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"log"
)

const (
	defaultCapacity = 256
	defaultQueue    = 64
	defaultMaxDTO   = 256
	defaultMaxEntry = 0xff

	maxPID = 0xfc // PIDs above are reserved for response packets
)

type config struct {
	msg *log.Logger

	capacity int // max number of DAQ entities
	queue    int // number of transfer queue slots
	maxDTO   int // max fragment size, in bytes
	maxEntry int // max ODT entry size, in bytes

	prescaler bool
	tsUnit    TimestampUnit
	tsSize    int

	events []Event
	clock  Clock
}

func newConfig() config {
	return config{
		capacity:  defaultCapacity,
		queue:     defaultQueue,
		maxDTO:    defaultMaxDTO,
		maxEntry:  defaultMaxEntry,
		prescaler: true,
		tsUnit:    Unit1US,
		tsSize:    4,
		events:    DefaultEvents(),
	}
}

func (cfg *config) validate() error {
	switch {
	case cfg.capacity <= 0:
		return fmt.Errorf("invalid arena capacity %d", cfg.capacity)
	case cfg.queue <= 0:
		return fmt.Errorf("invalid queue size %d", cfg.queue)
	case cfg.maxDTO <= 2:
		return fmt.Errorf("invalid max DTO size %d", cfg.maxDTO)
	case cfg.maxEntry <= 0 || cfg.maxEntry > 0xff:
		return fmt.Errorf("invalid max ODT entry size %d", cfg.maxEntry)
	case len(cfg.events) == 0:
		return fmt.Errorf("no event channel")
	}
	switch cfg.tsSize {
	case 0, 1, 2, 4:
	default:
		return fmt.Errorf("invalid timestamp size %d", cfg.tsSize)
	}
	if !cfg.tsUnit.valid() {
		return fmt.Errorf("invalid timestamp unit %d", cfg.tsUnit)
	}
	return nil
}

// Option configures a DAQ engine.
type Option func(*config)

// WithCapacity sets the maximum number of DAQ entities (lists, ODTs and
// entries) that can be allocated.
func WithCapacity(n int) Option {
	return func(cfg *config) {
		cfg.capacity = n
	}
}

// WithQueueSize sets the number of fragments the transfer queue can hold.
func WithQueueSize(n int) Option {
	return func(cfg *config) {
		cfg.queue = n
	}
}

// WithMaxDTO sets the maximum size of a fragment, header included.
func WithMaxDTO(n int) Option {
	return func(cfg *config) {
		cfg.maxDTO = n
	}
}

// WithMaxEntrySize sets the maximum size of an ODT entry.
func WithMaxEntrySize(n int) Option {
	return func(cfg *config) {
		cfg.maxEntry = n
	}
}

// WithPrescaler enables or disables DAQ list prescalers.
// When disabled, every trigger of an event samples its DAQ lists.
func WithPrescaler(v bool) Option {
	return func(cfg *config) {
		cfg.prescaler = v
	}
}

// WithTimestamp configures the unit and size (0, 1, 2 or 4 bytes) of
// fragment timestamps. A size of 0 disables timestamps.
func WithTimestamp(unit TimestampUnit, size int) Option {
	return func(cfg *config) {
		cfg.tsUnit = unit
		cfg.tsSize = size
	}
}

// WithEvents sets the event channels of the engine.
func WithEvents(evts ...Event) Option {
	return func(cfg *config) {
		cfg.events = append([]Event(nil), evts...)
	}
}

// WithClock sets the clock used to timestamp fragments.
func WithClock(c Clock) Option {
	return func(cfg *config) {
		cfg.clock = c
	}
}

// WithLogger sets the logger of the engine.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}
