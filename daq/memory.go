// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"sync/atomic"
	"time"
)

// Memory gives access to the memory of the target.
//
// ReadMemory fills p with len(p) bytes read from mta.
// It is called from TriggerEvent and must not block.
type Memory interface {
	ReadMemory(mta MTA, p []byte) error
}

// MemoryFunc adapts a function to the Memory interface.
type MemoryFunc func(mta MTA, p []byte) error

func (f MemoryFunc) ReadMemory(mta MTA, p []byte) error { return f(mta, p) }

// Clock is a free running counter used to timestamp fragments.
type Clock interface {
	Now() uint32
}

// NewClock returns a monotonic clock ticking in the provided unit,
// starting at zero.
func NewClock(unit TimestampUnit) Clock {
	return &monoClock{
		beg:  time.Now(),
		tick: unit.Duration(),
	}
}

type monoClock struct {
	beg  time.Time
	tick time.Duration
}

func (c *monoClock) Now() uint32 {
	return uint32(time.Since(c.beg) / c.tick)
}

// ManualClock is a clock advanced by hand.
type ManualClock struct {
	v uint32
}

func (c *ManualClock) Now() uint32 { return atomic.LoadUint32(&c.v) }

// Set sets the clock to v.
func (c *ManualClock) Set(v uint32) { atomic.StoreUint32(&c.v, v) }

// Add advances the clock by d ticks and returns the new value.
func (c *ManualClock) Add(d uint32) uint32 { return atomic.AddUint32(&c.v, d) }

var (
	_ Memory = (MemoryFunc)(nil)
	_ Clock  = (*monoClock)(nil)
	_ Clock  = (*ManualClock)(nil)
)
