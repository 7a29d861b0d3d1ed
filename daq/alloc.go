// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import "fmt"

// AllocState is the state of the dynamic DAQ allocator.
type AllocState uint8

const (
	StateIdle AllocState = iota
	StateAfterFree
	StateAfterAllocLists
	StateAfterAllocODTs
	StateAfterAllocEntries

	numAllocStates = iota
)

func (s AllocState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAfterFree:
		return "after-free"
	case StateAfterAllocLists:
		return "after-alloc-daq"
	case StateAfterAllocODTs:
		return "after-alloc-odt"
	case StateAfterAllocEntries:
		return "after-alloc-odt-entry"
	default:
		return fmt.Sprintf("AllocState(%d)", uint8(s))
	}
}

// AllocOp is an allocation request.
type AllocOp uint8

const (
	OpFree AllocOp = iota
	OpAllocLists
	OpAllocODTs
	OpAllocEntries

	numAllocOps = iota
)

func (op AllocOp) String() string {
	switch op {
	case OpFree:
		return "FREE_DAQ"
	case OpAllocLists:
		return "ALLOC_DAQ"
	case OpAllocODTs:
		return "ALLOC_ODT"
	case OpAllocEntries:
		return "ALLOC_ODT_ENTRY"
	default:
		return fmt.Sprintf("AllocOp(%d)", uint8(op))
	}
}

// transitions lists which allocation requests are legal in each state.
var transitions = [numAllocStates][numAllocOps]bool{
	//                      free  lists  odts   entries
	StateIdle:              {true, false, false, false},
	StateAfterFree:         {true, true, false, false},
	StateAfterAllocLists:   {true, true, true, false},
	StateAfterAllocODTs:    {true, false, true, true},
	StateAfterAllocEntries: {true, false, false, true},
}

// next maps each request to the state it leads to once it succeeded.
var next = [numAllocOps]AllocState{
	OpFree:         StateAfterFree,
	OpAllocLists:   StateAfterAllocLists,
	OpAllocODTs:    StateAfterAllocODTs,
	OpAllocEntries: StateAfterAllocEntries,
}

// Transition returns the state reached by applying op in state s, and
// whether op is allowed at all.
func Transition(s AllocState, op AllocOp) (AllocState, bool) {
	if int(s) >= numAllocStates || int(op) >= numAllocOps {
		return s, false
	}
	if !transitions[s][op] {
		return s, false
	}
	return next[op], true
}

// AllocState returns the current state of the allocator.
func (e *Engine) AllocState() AllocState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) check(op AllocOp) (AllocState, error) {
	s, ok := Transition(e.state, op)
	if !ok {
		return e.state, &SequenceError{State: e.state, Op: op}
	}
	return s, nil
}

// FreeAll clears all DAQ lists, ODTs and entries.
// It is allowed in every state.
func (e *Engine) FreeAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.free()
}

func (e *Engine) free() error {
	s, err := e.check(OpFree)
	if err != nil {
		return err
	}
	e.ents.reset()
	e.ptr = Pointer{}
	e.state = s
	e.proc = ProcConfigInvalid
	return nil
}

// AllocateLists appends n DAQ lists to the arena.
func (e *Engine) AllocateLists(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.check(OpAllocLists)
	if err != nil {
		return err
	}
	if n < 0 || !e.ents.fits(n) {
		return &CapacityError{Op: OpAllocLists, Requested: n, Used: e.ents.n, Capacity: len(e.ents.ents)}
	}

	beg := e.ents.bump(KindList, n)
	for i := beg; i < beg+n; i++ {
		e.ents.ents[i].List.Direction = DirDAQ
		e.ents.ents[i].List.Prescaler = 1
	}
	e.ents.nlists += n
	e.state = s
	return nil
}

// AllocateODTs appends n ODTs to the arena and assigns them to DAQ list list.
// A DAQ list can only be given its ODTs once.
func (e *Engine) AllocateODTs(list, n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.check(OpAllocODTs)
	if err != nil {
		return err
	}
	dl, err := e.ents.list(list)
	if err != nil {
		return err
	}
	if dl.ODTs.Count != 0 {
		return &SequenceError{
			State: e.state, Op: OpAllocODTs,
			Msg: fmt.Sprintf("daq-list %d already has %d ODT(s)", list, dl.ODTs.Count),
		}
	}
	if n < 0 || !e.ents.fits(n) {
		return &CapacityError{Op: OpAllocODTs, Requested: n, Used: e.ents.n, Capacity: len(e.ents.ents)}
	}

	e.ents.bump(KindODT, n)
	dl.ODTs = Range{Start: e.ents.nodts, Count: n}
	e.ents.nodts += n
	e.state = s
	return nil
}

// AllocateEntries appends n ODT entries to the arena and assigns them to
// ODT odt of DAQ list list.
// An ODT can only be given its entries once.
func (e *Engine) AllocateEntries(list, odt, n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.check(OpAllocEntries)
	if err != nil {
		return err
	}
	o, err := e.ents.odt(list, odt)
	if err != nil {
		return err
	}
	if o.Entries.Count != 0 {
		return &SequenceError{
			State: e.state, Op: OpAllocEntries,
			Msg: fmt.Sprintf("odt %d of daq-list %d already has %d entries", odt, list, o.Entries.Count),
		}
	}
	if n < 0 || !e.ents.fits(n) {
		return &CapacityError{Op: OpAllocEntries, Requested: n, Used: e.ents.n, Capacity: len(e.ents.ents)}
	}

	e.ents.bump(KindEntry, n)
	o.Entries = Range{Start: e.ents.nentries, Count: n}
	e.ents.nentries += n
	e.state = s
	return nil
}
