// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mem resolves XCP memory transfer addresses to target memory.
//
// A Map dispatches reads on the address extension of an MTA to a Window,
// a region of an io.ReaderAt (a RAM buffer, a memory-mapped file or an
// SMBus device) mapped at a base address.
package mem // import "github.com/go-lpc/xcp/mem"

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/go-lpc/xcp/daq"
)

var (
	errNoSpace = errors.New("mem: no memory space for address extension")
	errBounds  = errors.New("mem: address out of window bounds")
)

// Window is a region of a memory space, mapped at address Base.
type Window struct {
	Name string
	Base uint32
	Size int64 // size of the region, in bytes
	R    io.ReaderAt
}

// ReadMemory implements daq.Memory.
func (w *Window) ReadMemory(mta daq.MTA, p []byte) error {
	if mta.Addr < w.Base {
		return fmt.Errorf("mem: could not read %d bytes at %v from %q: %w", len(p), mta, w.Name, errBounds)
	}
	off := int64(mta.Addr - w.Base)
	if off+int64(len(p)) > w.Size {
		return fmt.Errorf("mem: could not read %d bytes at %v from %q: %w", len(p), mta, w.Name, errBounds)
	}

	n, err := w.R.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("mem: could not read %d bytes at %v from %q: %w", len(p), mta, w.Name, err)
}

func (w *Window) contains(addr uint32) bool {
	return w.Base <= addr && int64(addr-w.Base) < w.Size
}

// Map dispatches memory reads to windows, by address extension.
// Windows of a given extension must not overlap.
//
// Map is not safe for concurrent mutation: all windows must be mounted
// before the map is handed to a DAQ engine.
type Map struct {
	spaces  map[uint8][]*Window
	closers []io.Closer
}

// NewMap returns a new, empty memory map.
func NewMap() *Map {
	return &Map{spaces: make(map[uint8][]*Window)}
}

// Mount maps r at address base of address extension ext.
// If r implements io.Closer, it is closed when the map is closed.
func (m *Map) Mount(ext uint8, name string, base uint32, size int64, r io.ReaderAt) error {
	if size <= 0 {
		return fmt.Errorf("mem: invalid size %d for window %q", size, name)
	}
	if int64(base)+size > 1<<32 {
		return fmt.Errorf("mem: window %q [0x%x, 0x%x) overflows address space", name, base, int64(base)+size)
	}
	win := &Window{Name: name, Base: base, Size: size, R: r}
	for _, w := range m.spaces[ext] {
		if w.contains(base) || win.contains(w.Base) {
			return fmt.Errorf("mem: window %q overlaps with window %q (ext=%d)", name, w.Name, ext)
		}
	}
	wins := append(m.spaces[ext], win)
	sort.Slice(wins, func(i, j int) bool { return wins[i].Base < wins[j].Base })
	m.spaces[ext] = wins

	if c, ok := r.(io.Closer); ok {
		m.closers = append(m.closers, c)
	}
	return nil
}

// Windows returns the windows mounted on address extension ext, sorted by
// base address.
func (m *Map) Windows(ext uint8) []Window {
	o := make([]Window, len(m.spaces[ext]))
	for i, w := range m.spaces[ext] {
		o[i] = *w
	}
	return o
}

// ReadMemory implements daq.Memory.
func (m *Map) ReadMemory(mta daq.MTA, p []byte) error {
	wins := m.spaces[mta.Ext]
	if len(wins) == 0 {
		return fmt.Errorf("mem: could not read at %v: %w", mta, errNoSpace)
	}
	i := sort.Search(len(wins), func(i int) bool { return wins[i].Base > mta.Addr }) - 1
	if i < 0 || !wins[i].contains(mta.Addr) {
		return fmt.Errorf("mem: could not read at %v: %w", mta, errBounds)
	}
	return wins[i].ReadMemory(mta, p)
}

// WriteMemory writes p at mta, when the underlying space is writable.
func (m *Map) WriteMemory(mta daq.MTA, p []byte) error {
	wins := m.spaces[mta.Ext]
	i := sort.Search(len(wins), func(i int) bool { return wins[i].Base > mta.Addr }) - 1
	if i < 0 || !wins[i].contains(mta.Addr) {
		return fmt.Errorf("mem: could not write at %v: %w", mta, errBounds)
	}
	win := wins[i]
	off := int64(mta.Addr - win.Base)
	if off+int64(len(p)) > win.Size {
		return fmt.Errorf("mem: could not write %d bytes at %v: %w", len(p), mta, errBounds)
	}
	w, ok := win.R.(io.WriterAt)
	if !ok {
		return fmt.Errorf("mem: window %q is read-only", win.Name)
	}
	_, err := w.WriteAt(p, off)
	if err != nil {
		return fmt.Errorf("mem: could not write %d bytes at %v: %w", len(p), mta, err)
	}
	return nil
}

// Close closes all the closable memory spaces of the map.
func (m *Map) Close() error {
	var err error
	for _, c := range m.closers {
		e := c.Close()
		if e != nil && err == nil {
			err = e
		}
	}
	m.closers = nil
	if err != nil {
		return fmt.Errorf("mem: could not close memory spaces: %w", err)
	}
	return nil
}

var (
	_ daq.Memory = (*Window)(nil)
	_ daq.Memory = (*Map)(nil)
	_ io.Closer  = (*Map)(nil)
)
