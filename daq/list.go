// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"strings"
)

// Mode holds the running-state flags of a DAQ list.
type Mode uint8

const (
	ModeAlternating Mode = 0x01
	ModeDirection   Mode = 0x02 // set for STIM lists
	ModeTimestamp   Mode = 0x10
	ModePIDOff      Mode = 0x20
	ModeSelected    Mode = 0x40
	ModeStarted     Mode = 0x80
)

func (m Mode) String() string {
	var o []string
	for _, v := range []struct {
		bit  Mode
		name string
	}{
		{ModeAlternating, "alternating"},
		{ModeDirection, "stim"},
		{ModeTimestamp, "timestamp"},
		{ModePIDOff, "pid-off"},
		{ModeSelected, "selected"},
		{ModeStarted, "started"},
	} {
		if m&v.bit != 0 {
			o = append(o, v.name)
		}
	}
	if len(o) == 0 {
		return "0x00"
	}
	return fmt.Sprintf("0x%02x[%s]", uint8(m), strings.Join(o, "|"))
}

// Direction is the data direction of a DAQ list.
type Direction uint8

const (
	DirNone Direction = iota
	DirDAQ
	DirSTIM
	DirDAQSTIM
)

func (d Direction) String() string {
	switch d {
	case DirNone:
		return "none"
	case DirDAQ:
		return "daq"
	case DirSTIM:
		return "stim"
	case DirDAQSTIM:
		return "daq-stim"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// List is a DAQ list: a group of ODTs sampled together on one event.
type List struct {
	ODTs      Range
	Direction Direction
	Mode      Mode
	Event     int // event channel the list is bound to
	Prescaler uint8
	Counter   uint8 // prescaler counter

	Seq       uint8  // running transfer counter
	Overloads uint32 // fragments dropped because the queue was full
}

// NumODTs returns the number of ODTs owned by the list.
func (dl List) NumODTs() int { return dl.ODTs.Count }

// ODT is an object descriptor table: a group of entries.
type ODT struct {
	Entries Range
}

// NumEntries returns the number of entries owned by the ODT.
func (odt ODT) NumEntries() int { return odt.Entries.Count }

// MTA is a memory transfer address.
type MTA struct {
	Addr uint32
	Ext  uint8 // address space selector
}

func (mta MTA) String() string {
	return fmt.Sprintf("0x%08x:%d", mta.Addr, mta.Ext)
}

// Entry describes one sampled value.
type Entry struct {
	MTA MTA
	Len uint8
}

// Pointer is the DAQ pointer used to fill ODT entries one after the other.
type Pointer struct {
	List  int
	ODT   int
	Entry int
	valid bool
}

// List returns a copy of DAQ list n.
func (e *Engine) List(n int) (List, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dl, err := e.ents.list(n)
	if err != nil {
		return List{}, err
	}
	return *dl, nil
}

// ODT returns a copy of ODT odt of DAQ list list.
func (e *Engine) ODT(list, odt int) (ODT, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.ents.odt(list, odt)
	if err != nil {
		return ODT{}, err
	}
	return *o, nil
}

// Entry returns a copy of the requested ODT entry.
func (e *Engine) Entry(list, odt, entry int) (Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.ents.entry(list, odt, entry)
	if err != nil {
		return Entry{}, err
	}
	return *v, nil
}

// Entity returns a copy of the i-th slot of the arena.
func (e *Engine) Entity(i int) (Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= e.ents.n {
		return Entity{}, outOfRange("entity", i, e.ents.n)
	}
	return e.ents.ents[i], nil
}

// Counts returns the number of allocated entities, per kind.
func (e *Engine) Counts() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ents.counts()
}

// ListCount returns the number of allocated DAQ lists.
func (e *Engine) ListCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ents.nlists
}

// FirstPID returns the packet identifier of the first ODT of a DAQ list.
func (e *Engine) FirstPID(list int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.firstPID(list)
}

func (e *Engine) firstPID(list int) (int, error) {
	if list < 0 || list >= e.ents.nlists {
		return 0, outOfRange("daq-list", list, e.ents.nlists)
	}
	pid := 0
	for i := 0; i < list; i++ {
		pid += e.ents.ents[i].List.ODTs.Count
	}
	return pid, nil
}

// ValidateList reports whether a DAQ list exists and has at least one
// ODT with at least one entry.
func (e *Engine) ValidateList(list int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validateList(list)
}

func (e *Engine) validateList(list int) bool {
	dl, err := e.ents.list(list)
	if err != nil || dl.ODTs.Count == 0 {
		return false
	}
	for i := 0; i < dl.ODTs.Count; i++ {
		odt, err := e.ents.odt(list, i)
		if err != nil {
			return false
		}
		if odt.Entries.Count != 0 {
			return true
		}
	}
	return false
}

// ValidateEntry reports whether the (list, odt, entry) triplet has been allocated.
func (e *Engine) ValidateEntry(list, odt, entry int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.ents.entry(list, odt, entry)
	return err == nil
}

// SetPointer positions the DAQ pointer on an allocated ODT entry.
func (e *Engine) SetPointer(list, odt, entry int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.ents.entry(list, odt, entry)
	if err != nil {
		e.ptr.valid = false
		return fmt.Errorf("daq: could not set DAQ pointer: %w", err)
	}
	e.ptr = Pointer{List: list, ODT: odt, Entry: entry, valid: true}
	return nil
}

// Pointer returns the current DAQ pointer and whether it points to an entry.
func (e *Engine) Pointer() (Pointer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ptr, e.ptr.valid
}

// WriteEntry writes the entry under the DAQ pointer and advances the pointer
// to the next entry of the same ODT.
func (e *Engine) WriteEntry(mta MTA, n uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ptr.valid {
		return fmt.Errorf("daq: could not write ODT entry: %w", ErrOutOfRange)
	}
	if n == 0 || int(n) > e.cfg.maxEntry {
		return fmt.Errorf("daq: could not write ODT entry: %w",
			outOfRange("odt-entry length", int(n), e.cfg.maxEntry+1),
		)
	}

	ent, err := e.ents.entry(e.ptr.List, e.ptr.ODT, e.ptr.Entry)
	if err != nil {
		e.ptr.valid = false
		return fmt.Errorf("daq: could not write ODT entry: %w", err)
	}
	*ent = Entry{MTA: mta, Len: n}

	e.ptr.Entry++
	if _, err := e.ents.entry(e.ptr.List, e.ptr.ODT, e.ptr.Entry); err != nil {
		// past the last entry of the ODT, the pointer is undefined.
		e.ptr.valid = false
	}
	return nil
}

// SetListMode configures the mode, event channel and prescaler of a DAQ list.
// Only the mode bits that can be set by a master are taken into account.
func (e *Engine) SetListMode(list int, mode Mode, event int, prescaler uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	dl, err := e.ents.list(list)
	if err != nil {
		return fmt.Errorf("daq: could not set DAQ list mode: %w", err)
	}
	if event < 0 || event >= len(e.cfg.events) {
		return fmt.Errorf("daq: could not set DAQ list mode: %w",
			outOfRange("event channel", event, len(e.cfg.events)),
		)
	}
	if !e.cfg.prescaler && prescaler > 1 {
		return fmt.Errorf("daq: could not set DAQ list mode: %w",
			outOfRange("prescaler", int(prescaler), 2),
		)
	}
	if mode&ModeAlternating != 0 {
		return fmt.Errorf("daq: could not set DAQ list mode: alternating mode not supported")
	}
	if mode&ModeTimestamp != 0 && e.cfg.tsSize == 0 {
		return fmt.Errorf("daq: could not set DAQ list mode: timestamps not supported")
	}

	const mask = ModeDirection | ModeTimestamp | ModePIDOff | ModeSelected
	dl.Mode = (dl.Mode &^ mask) | (mode & mask)
	dl.Direction = DirDAQ
	if mode&ModeDirection != 0 {
		dl.Direction = DirSTIM
	}
	dl.Event = event
	if prescaler == 0 {
		prescaler = 1
	}
	dl.Prescaler = prescaler
	dl.Counter = 0
	return nil
}
