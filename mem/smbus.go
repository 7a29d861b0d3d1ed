// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-daq/smbus"
)

// DefaultSMBusPoll is the refresh period of the registers of an SMBus space
// opened with OpenSMBus.
const DefaultSMBusPoll = 100 * time.Millisecond

// Bus is a register-oriented bus, such as an SMBus/I2C adapter.
type Bus interface {
	ReadReg(addr, reg uint8) (uint8, error)
	Close() error
}

const (
	regIdle    uint8 = iota // never read
	regWatched              // read at least once, no value yet
	regValid                // value fetched from the bus
)

// SMBus exposes the registers of the devices of a bus as a memory space.
// The offset of a register is dev<<8 | reg.
// A read of n bytes reads n consecutive registers of one device.
//
// ReadAt never talks to the bus: it serves the last values fetched by Sync
// and records the registers it was asked for, so that the next Sync
// fetches them. A register that has not been fetched yet, or whose last
// fetch failed, makes ReadAt fail.
type SMBus struct {
	bus Bus

	mu    sync.Mutex
	regs  [0x10000]uint8
	state [0x10000]uint8
	keys  []uint16 // watched registers

	quit chan struct{}
	done chan struct{}
}

// NewSMBus wraps an already opened bus.
// The registers are only refreshed by explicit calls to Sync.
func NewSMBus(bus Bus) *SMBus {
	return &SMBus{
		bus:  bus,
		keys: make([]uint16, 0, 256),
	}
}

// OpenSMBus opens the SMBus adapter bus, talking to the device at addr.
// The registers are refreshed every DefaultSMBusPoll until Close.
func OpenSMBus(bus int, addr uint8) (*SMBus, error) {
	conn, err := smbus.Open(bus, addr)
	if err != nil {
		return nil, fmt.Errorf("mem: could not open SMBus %d (addr=0x%x): %w", bus, addr, err)
	}
	dev := NewSMBus(conn)
	dev.start(DefaultSMBusPoll)
	return dev, nil
}

func (dev *SMBus) start(freq time.Duration) {
	dev.quit = make(chan struct{})
	dev.done = make(chan struct{})
	go dev.poll(freq)
}

func (dev *SMBus) poll(freq time.Duration) {
	defer close(dev.done)

	tck := time.NewTicker(freq)
	defer tck.Stop()

	for {
		select {
		case <-dev.quit:
			return
		case <-tck.C:
			_ = dev.Sync()
		}
	}
}

// ReadAt implements io.ReaderAt.
func (dev *SMBus) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > 0xffff {
		return 0, fmt.Errorf("mem: invalid SMBus offset 0x%x", off)
	}
	var (
		addr = uint8(off >> 8)
		reg  = int(off & 0xff)
	)
	if reg+len(p) > 0x100 {
		return 0, fmt.Errorf("mem: SMBus read of %d registers at 0x%x crosses device boundary", len(p), off)
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()

	var (
		n   = len(p)
		err error
	)
	for i := range p {
		k := uint16(off) + uint16(i)
		switch dev.state[k] {
		case regValid:
			p[i] = dev.regs[k]
			continue
		case regIdle:
			dev.state[k] = regWatched
			dev.keys = append(dev.keys, k)
		}
		if err == nil {
			n = i
			err = fmt.Errorf("mem: SMBus register 0x%02x of device 0x%02x not available", reg+i, addr)
		}
	}
	return n, err
}

// Sync fetches from the bus the values of all the registers read so far.
// Sync returns the first error encountered, after having tried every register.
func (dev *SMBus) Sync() error {
	dev.mu.Lock()
	keys := append([]uint16(nil), dev.keys...)
	dev.mu.Unlock()

	var first error
	for _, k := range keys {
		addr, reg := uint8(k>>8), uint8(k)
		v, err := dev.bus.ReadReg(addr, reg)

		dev.mu.Lock()
		if err != nil {
			dev.state[k] = regWatched
		} else {
			dev.regs[k] = v
			dev.state[k] = regValid
		}
		dev.mu.Unlock()

		if err != nil && first == nil {
			first = fmt.Errorf("mem: could not read SMBus register 0x%02x of device 0x%02x: %w", reg, addr, err)
		}
	}
	return first
}

// Close stops the refresh of the registers and closes the underlying bus.
func (dev *SMBus) Close() error {
	if dev.quit != nil {
		close(dev.quit)
		<-dev.done
		dev.quit = nil
	}
	return dev.bus.Close()
}

var (
	_ Bus         = (*smbus.Conn)(nil)
	_ io.ReaderAt = (*SMBus)(nil)
	_ io.Closer   = (*SMBus)(nil)
)
