// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import "fmt"

// Kind tags the payload held by an Entity.
type Kind uint8

const (
	KindNone Kind = iota
	KindList
	KindODT
	KindEntry
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindList:
		return "daq-list"
	case KindODT:
		return "odt"
	case KindEntry:
		return "odt-entry"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Range is a run of consecutive entities of the same kind.
// Start is relative to the beginning of that kind's run in the arena.
type Range struct {
	Start int
	Count int
}

func (r Range) contains(i int) bool { return 0 <= i && i < r.Count }

// Entity is one slot of the arena.
// Only the field matching Kind is meaningful.
type Entity struct {
	Kind  Kind
	List  List
	ODT   ODT
	Entry Entry
}

// Counts describes the occupancy of the arena.
type Counts struct {
	Entities int
	Lists    int
	ODTs     int
	Entries  int
	Capacity int
}

// arena is the flat, fixed capacity store of DAQ entities.
// Lists, ODTs and entries occupy three consecutive runs, in that order.
type arena struct {
	ents []Entity

	n        int // number of allocated entities
	nlists   int
	nodts    int
	nentries int
}

func newArena(capacity int) arena {
	return arena{ents: make([]Entity, capacity)}
}

func (a *arena) reset() {
	for i := range a.ents {
		a.ents[i] = Entity{}
	}
	a.n = 0
	a.nlists = 0
	a.nodts = 0
	a.nentries = 0
}

// fits reports whether n more entities can be appended.
// n is compared with the free space, so huge values of n cannot wrap around.
func (a *arena) fits(n int) bool {
	return n >= 0 && n <= len(a.ents)-a.n
}

// bump tags the next n slots with kind and returns the index of the first one.
func (a *arena) bump(kind Kind, n int) int {
	beg := a.n
	for i := beg; i < beg+n; i++ {
		a.ents[i] = Entity{Kind: kind}
	}
	a.n += n
	return beg
}

func (a *arena) counts() Counts {
	return Counts{
		Entities: a.n,
		Lists:    a.nlists,
		ODTs:     a.nodts,
		Entries:  a.nentries,
		Capacity: len(a.ents),
	}
}

func (a *arena) list(n int) (*List, error) {
	if n < 0 || n >= a.nlists {
		return nil, outOfRange("daq-list", n, a.nlists)
	}
	return &a.ents[n].List, nil
}

func (a *arena) odt(list, odt int) (*ODT, error) {
	dl, err := a.list(list)
	if err != nil {
		return nil, err
	}
	if !dl.ODTs.contains(odt) {
		return nil, outOfRange("odt", odt, dl.ODTs.Count)
	}
	i := a.nlists + dl.ODTs.Start + odt
	if i >= a.nlists+a.nodts {
		return nil, outOfRange("odt", odt, a.nodts-dl.ODTs.Start)
	}
	return &a.ents[i].ODT, nil
}

func (a *arena) entry(list, odt, entry int) (*Entry, error) {
	o, err := a.odt(list, odt)
	if err != nil {
		return nil, err
	}
	if !o.Entries.contains(entry) {
		return nil, outOfRange("odt-entry", entry, o.Entries.Count)
	}
	i := a.nlists + a.nodts + o.Entries.Start + entry
	if i >= a.n {
		return nil, outOfRange("odt-entry", entry, a.nentries-o.Entries.Start)
	}
	return &a.ents[i].Entry, nil
}
