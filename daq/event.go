// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"time"
)

// TimestampUnit is the unit of DAQ clock ticks and event cycles.
type TimestampUnit uint8

const (
	Unit1NS TimestampUnit = iota
	Unit10NS
	Unit100NS
	Unit1US
	Unit10US
	Unit100US
	Unit1MS
	Unit10MS
	Unit100MS
	Unit1S
	Unit1PS
	Unit10PS
	Unit100PS
)

func (u TimestampUnit) valid() bool { return u <= Unit100PS }

// Duration returns the duration of one tick of unit u.
// Sub-nanosecond units are rounded up to one nanosecond.
func (u TimestampUnit) Duration() time.Duration {
	switch {
	case u <= Unit1S:
		d := time.Nanosecond
		for i := Unit1NS; i < u; i++ {
			d *= 10
		}
		return d
	case u <= Unit100PS:
		return time.Nanosecond
	}
	panic(fmt.Errorf("daq: invalid timestamp unit %d", u))
}

func (u TimestampUnit) String() string {
	names := [...]string{
		"1ns", "10ns", "100ns", "1us", "10us", "100us",
		"1ms", "10ms", "100ms", "1s", "1ps", "10ps", "100ps",
	}
	if !u.valid() {
		return fmt.Sprintf("TimestampUnit(%d)", uint8(u))
	}
	return names[u]
}

// EventKind describes which kind of DAQ lists an event channel can serve.
type EventKind uint8

const (
	EventDAQ     EventKind = 0x04
	EventSTIM    EventKind = 0x08
	EventDAQSTIM EventKind = 0x0c
)

// Event describes an event channel.
type Event struct {
	Name  string        `json:"name" yaml:"name"`
	Kind  EventKind     `json:"kind" yaml:"kind"`
	Unit  TimestampUnit `json:"unit" yaml:"unit"`
	Cycle uint8         `json:"cycle" yaml:"cycle"` // 0 for sporadic events
}

// Period returns the cycle time of a periodic event, or zero for a
// sporadic one.
func (evt Event) Period() time.Duration {
	if evt.Cycle == 0 {
		return 0
	}
	return time.Duration(evt.Cycle) * evt.Unit.Duration()
}

// DefaultEvents returns the event channels of a default engine.
func DefaultEvents() []Event {
	return []Event{
		{Name: "EVT 100ms", Kind: EventDAQ, Unit: Unit1MS, Cycle: 100},
		{Name: "EVT sporadic", Kind: EventDAQ, Unit: Unit1MS, Cycle: 0},
		{Name: "EVT 10ms", Kind: EventDAQ, Unit: Unit1MS, Cycle: 10},
	}
}
