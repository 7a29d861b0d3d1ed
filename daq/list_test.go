// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"errors"
	"testing"
	"time"
)

func TestListAccessors(t *testing.T) {
	e := newQuietEngine(t, nil)

	// nothing allocated.
	if _, err := e.List(0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrOutOfRange)
	}
	if _, err := e.ODT(0, 0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrOutOfRange)
	}
	if _, err := e.Entry(0, 0, 0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrOutOfRange)
	}
	if _, err := e.Entity(0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrOutOfRange)
	}

	for _, step := range []func() error{
		func() error { return e.AllocateLists(2) },
		func() error { return e.AllocateODTs(0, 1) },
		func() error { return e.AllocateODTs(1, 2) },
		func() error { return e.AllocateEntries(0, 0, 2) },
		func() error { return e.AllocateEntries(1, 1, 1) },
	} {
		err := step()
		if err != nil {
			t.Fatalf("could not allocate: %+v", err)
		}
	}

	for _, tc := range []struct {
		name string
		err  error
	}{
		{"list=-1", func() error { _, err := e.List(-1); return err }()},
		{"list=2", func() error { _, err := e.List(2); return err }()},
		{"odt=-1", func() error { _, err := e.ODT(0, -1); return err }()},
		{"odt=1", func() error { _, err := e.ODT(0, 1); return err }()},
		{"odt=(2,0)", func() error { _, err := e.ODT(2, 0); return err }()},
		{"entry=(0,0,2)", func() error { _, err := e.Entry(0, 0, 2); return err }()},
		{"entry=(1,0,0)", func() error { _, err := e.Entry(1, 0, 0); return err }()},
		{"entry=(1,1,-1)", func() error { _, err := e.Entry(1, 1, -1); return err }()},
		{"entity=8", func() error { _, err := e.Entity(8); return err }()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, ErrOutOfRange) {
				t.Fatalf("invalid error: got=%v, want=%v", tc.err, ErrOutOfRange)
			}
			var oor *OutOfRangeError
			if !errors.As(tc.err, &oor) {
				t.Fatalf("invalid error type: %T", tc.err)
			}
		})
	}

	for i, want := range []Kind{
		KindList, KindList,
		KindODT, KindODT, KindODT,
		KindEntry, KindEntry, KindEntry,
	} {
		ent, err := e.Entity(i)
		if err != nil {
			t.Fatalf("could not retrieve entity %d: %+v", i, err)
		}
		if got := ent.Kind; got != want {
			t.Fatalf("invalid kind for entity %d: got=%v, want=%v", i, got, want)
		}
	}

	if got, want := e.ListCount(), 2; got != want {
		t.Fatalf("invalid list count: got=%d, want=%d", got, want)
	}

	for _, tc := range []struct {
		list, odt, entry int
		want             bool
	}{
		{0, 0, 0, true},
		{0, 0, 1, true},
		{0, 0, 2, false},
		{1, 0, 0, false},
		{1, 1, 0, true},
		{2, 0, 0, false},
	} {
		if got := e.ValidateEntry(tc.list, tc.odt, tc.entry); got != tc.want {
			t.Fatalf("invalid entry (%d,%d,%d) validation: got=%v, want=%v",
				tc.list, tc.odt, tc.entry, got, tc.want,
			)
		}
	}
}

func TestPointer(t *testing.T) {
	e := newQuietEngine(t, nil, WithMaxEntrySize(8))

	if _, ok := e.Pointer(); ok {
		t.Fatalf("pointer should be invalid")
	}
	err := e.WriteEntry(MTA{Addr: 1}, 1)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrOutOfRange)
	}

	for _, step := range []func() error{
		func() error { return e.AllocateLists(1) },
		func() error { return e.AllocateODTs(0, 2) },
		func() error { return e.AllocateEntries(0, 0, 2) },
		func() error { return e.AllocateEntries(0, 1, 1) },
	} {
		err := step()
		if err != nil {
			t.Fatalf("could not allocate: %+v", err)
		}
	}

	err = e.SetPointer(0, 2, 0)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrOutOfRange)
	}
	if _, ok := e.Pointer(); ok {
		t.Fatalf("pointer should be invalid")
	}

	err = e.SetPointer(0, 0, 0)
	if err != nil {
		t.Fatalf("could not set pointer: %+v", err)
	}

	for _, tc := range []struct {
		n   uint8
		err error
	}{
		{0, ErrOutOfRange},
		{9, ErrOutOfRange},
	} {
		err := e.WriteEntry(MTA{Addr: 0x42}, tc.n)
		if !errors.Is(err, tc.err) {
			t.Fatalf("invalid error for len=%d: got=%v, want=%v", tc.n, err, tc.err)
		}
	}

	err = e.WriteEntry(MTA{Addr: 0x10, Ext: 1}, 4)
	if err != nil {
		t.Fatalf("could not write entry: %+v", err)
	}
	ptr, ok := e.Pointer()
	if !ok {
		t.Fatalf("pointer should be valid")
	}
	if got, want := ptr, (Pointer{List: 0, ODT: 0, Entry: 1, valid: true}); got != want {
		t.Fatalf("invalid pointer: got=%+v, want=%+v", got, want)
	}

	err = e.WriteEntry(MTA{Addr: 0x20}, 8)
	if err != nil {
		t.Fatalf("could not write entry: %+v", err)
	}
	if _, ok := e.Pointer(); ok {
		t.Fatalf("pointer should be invalid past the last entry of an ODT")
	}
	err = e.WriteEntry(MTA{Addr: 0x30}, 1)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrOutOfRange)
	}

	for _, tc := range []struct {
		odt, entry int
		want       Entry
	}{
		{0, 0, Entry{MTA: MTA{Addr: 0x10, Ext: 1}, Len: 4}},
		{0, 1, Entry{MTA: MTA{Addr: 0x20}, Len: 8}},
		{1, 0, Entry{}},
	} {
		got, err := e.Entry(0, tc.odt, tc.entry)
		if err != nil {
			t.Fatalf("could not retrieve entry: %+v", err)
		}
		if got != tc.want {
			t.Fatalf("invalid entry (%d,%d): got=%+v, want=%+v", tc.odt, tc.entry, got, tc.want)
		}
	}
}

func TestFirstPIDAndValidate(t *testing.T) {
	e := newQuietEngine(t, nil)
	for _, step := range []func() error{
		func() error { return e.AllocateLists(4) },
		func() error { return e.AllocateODTs(0, 2) },
		func() error { return e.AllocateODTs(1, 3) },
		func() error { return e.AllocateODTs(3, 1) },
		func() error { return e.AllocateEntries(0, 1, 1) },
		func() error { return e.AllocateEntries(1, 0, 0) },
	} {
		err := step()
		if err != nil {
			t.Fatalf("could not allocate: %+v", err)
		}
	}

	for _, tc := range []struct {
		list  int
		pid   int
		valid bool
	}{
		{0, 0, true},
		{1, 2, false},
		{2, 5, false},
		{3, 5, false},
	} {
		pid, err := e.FirstPID(tc.list)
		if err != nil {
			t.Fatalf("could not compute first PID of list %d: %+v", tc.list, err)
		}
		if pid != tc.pid {
			t.Fatalf("invalid first PID for list %d: got=%d, want=%d", tc.list, pid, tc.pid)
		}
		if got, want := e.ValidateList(tc.list), tc.valid; got != want {
			t.Fatalf("invalid validation for list %d: got=%v, want=%v", tc.list, got, want)
		}
	}

	if _, err := e.FirstPID(4); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrOutOfRange)
	}
	if e.ValidateList(4) || e.ValidateList(-1) {
		t.Fatalf("non-allocated lists should not validate")
	}

	err := e.StartStopList(1, Start)
	if err == nil {
		t.Fatalf("starting an invalid list should fail")
	}
	err = e.StartStopList(1, Select)
	if err == nil {
		t.Fatalf("selecting an invalid list should fail")
	}
}

func TestSetListMode(t *testing.T) {
	e := newQuietEngine(t, nil, WithPrescaler(false), WithTimestamp(Unit1MS, 0))
	for _, step := range []func() error{
		func() error { return e.AllocateLists(1) },
		func() error { return e.AllocateODTs(0, 1) },
		func() error { return e.AllocateEntries(0, 0, 1) },
	} {
		err := step()
		if err != nil {
			t.Fatalf("could not allocate: %+v", err)
		}
	}

	for _, tc := range []struct {
		name      string
		list      int
		mode      Mode
		event     int
		prescaler uint8
	}{
		{"list", 1, 0, 0, 1},
		{"event=-1", 0, 0, -1, 1},
		{"event=3", 0, 0, 3, 1},
		{"prescaler", 0, 0, 0, 2},
		{"alternating", 0, ModeAlternating, 0, 1},
		{"timestamp", 0, ModeTimestamp, 0, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := e.SetListMode(tc.list, tc.mode, tc.event, tc.prescaler)
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}

	err := e.SetListMode(0, ModePIDOff|ModeSelected|ModeStarted, 2, 0)
	if err != nil {
		t.Fatalf("could not set list mode: %+v", err)
	}
	dl, err := e.List(0)
	if err != nil {
		t.Fatalf("could not retrieve list: %+v", err)
	}
	if got, want := dl.Mode, ModePIDOff|ModeSelected; got != want {
		t.Fatalf("invalid mode: got=%v, want=%v", got, want)
	}
	if got, want := dl.Event, 2; got != want {
		t.Fatalf("invalid event: got=%d, want=%d", got, want)
	}
	if got, want := dl.Prescaler, uint8(1); got != want {
		t.Fatalf("invalid prescaler: got=%d, want=%d", got, want)
	}
	if got, want := dl.Direction, DirDAQ; got != want {
		t.Fatalf("invalid direction: got=%v, want=%v", got, want)
	}

	err = e.SetListMode(0, ModeDirection, 2, 1)
	if err != nil {
		t.Fatalf("could not set list mode: %+v", err)
	}
	dl, _ = e.List(0)
	if got, want := dl.Direction, DirSTIM; got != want {
		t.Fatalf("invalid direction: got=%v, want=%v", got, want)
	}
}

func TestStartStop(t *testing.T) {
	e := newQuietEngine(t, nil)
	configure(t, e, Layout{
		Lists: []ListLayout{
			{Event: 0, ODTs: [][]EntryDesc{{{Addr: 0, Len: 1}}}},
			{Event: 1, ODTs: [][]EntryDesc{{{Addr: 1, Len: 1}}}},
		},
	})

	mode := func(i int) Mode {
		t.Helper()
		dl, err := e.List(i)
		if err != nil {
			t.Fatalf("could not retrieve list %d: %+v", i, err)
		}
		return dl.Mode & (ModeSelected | ModeStarted)
	}

	if got, want := e.ProcessorState(), ProcRunning; got != want {
		t.Fatalf("invalid processor state: got=%v, want=%v", got, want)
	}
	for i := 0; i < 2; i++ {
		if got, want := mode(i), ModeStarted; got != want {
			t.Fatalf("invalid mode for list %d: got=%v, want=%v", i, got, want)
		}
	}

	err := e.StartStopList(0, Stop)
	if err != nil {
		t.Fatalf("could not stop list: %+v", err)
	}
	if got, want := e.ProcessorState(), ProcRunning; got != want {
		t.Fatalf("invalid processor state: got=%v, want=%v", got, want)
	}
	err = e.StartStopList(1, Stop)
	if err != nil {
		t.Fatalf("could not stop list: %+v", err)
	}
	if got, want := e.ProcessorState(), ProcStopped; got != want {
		t.Fatalf("invalid processor state: got=%v, want=%v", got, want)
	}

	err = e.StartStopList(1, Select)
	if err != nil {
		t.Fatalf("could not select list: %+v", err)
	}
	if got, want := mode(1), ModeSelected; got != want {
		t.Fatalf("invalid mode: got=%v, want=%v", got, want)
	}
	err = e.StartSelected()
	if err != nil {
		t.Fatalf("could not start selected lists: %+v", err)
	}
	if got, want := mode(1), ModeStarted; got != want {
		t.Fatalf("invalid mode: got=%v, want=%v", got, want)
	}
	if got, want := mode(0), Mode(0); got != want {
		t.Fatalf("invalid mode: got=%v, want=%v", got, want)
	}

	for i := 0; i < 2; i++ {
		err = e.StartStopList(i, Select)
		if err != nil {
			t.Fatalf("could not select list %d: %+v", i, err)
		}
	}
	e.StopSelected()
	for i := 0; i < 2; i++ {
		if got, want := mode(i), Mode(0); got != want {
			t.Fatalf("invalid mode for list %d: got=%v, want=%v", i, got, want)
		}
	}
	if got, want := e.ProcessorState(), ProcStopped; got != want {
		t.Fatalf("invalid processor state: got=%v, want=%v", got, want)
	}

	err = e.StartStopList(0, StartStop(42))
	if err == nil {
		t.Fatalf("expected an error for an invalid start/stop mode")
	}
	err = e.StartStopList(2, Start)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrOutOfRange)
	}
}

func TestStartSizeCheck(t *testing.T) {
	e := newQuietEngine(t, nil, WithMaxDTO(8))
	lay := Layout{
		Lists: []ListLayout{{
			Event:     0,
			Timestamp: true,
			ODTs:      [][]EntryDesc{{{Addr: 0, Len: 4}}},
		}},
	}
	err := e.Configure(lay)
	if err != nil {
		t.Fatalf("could not configure engine: %+v", err)
	}
	err = e.StartSelected()
	if err == nil {
		t.Fatalf("expected an error for a fragment larger than a DTO")
	}

	lay.Lists[0].Timestamp = false
	configure(t, e, lay)
}

func TestProcessorInfo(t *testing.T) {
	for _, tc := range []struct {
		name  string
		opts  []Option
		props uint8
		mode  uint8
	}{
		{
			name:  "default",
			props: PropConfigDynamic | PropPrescaler | PropTimestampSupported | PropPIDOffSupported,
			mode:  0x34,
		},
		{
			name:  "no-prescaler-no-ts",
			opts:  []Option{WithPrescaler(false), WithTimestamp(Unit10MS, 0)},
			props: PropConfigDynamic | PropPIDOffSupported,
			mode:  0x70,
		},
		{
			name:  "ts-2",
			opts:  []Option{WithTimestamp(Unit1NS, 2)},
			props: PropConfigDynamic | PropPrescaler | PropTimestampSupported | PropPIDOffSupported,
			mode:  0x02,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newQuietEngine(t, nil, tc.opts...)
			if got, want := e.Properties(), tc.props; got != want {
				t.Fatalf("invalid properties: got=0x%02x, want=0x%02x", got, want)
			}
			if got, want := e.TimestampMode(), tc.mode; got != want {
				t.Fatalf("invalid timestamp mode: got=0x%02x, want=0x%02x", got, want)
			}
		})
	}

	e := newQuietEngine(t, nil)
	evts := e.Events()
	if got, want := len(evts), 3; got != want {
		t.Fatalf("invalid number of events: got=%d, want=%d", got, want)
	}
	evt, err := e.EventInfo(0)
	if err != nil {
		t.Fatalf("could not retrieve event info: %+v", err)
	}
	if got, want := evt.Period(), 100*time.Millisecond; got != want {
		t.Fatalf("invalid period: got=%v, want=%v", got, want)
	}
	evt, _ = e.EventInfo(1)
	if got, want := evt.Period(), time.Duration(0); got != want {
		t.Fatalf("invalid period: got=%v, want=%v", got, want)
	}
	if _, err := e.EventInfo(3); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrOutOfRange)
	}

	clk := &ManualClock{}
	e = newQuietEngine(t, nil, WithClock(clk))
	clk.Set(42)
	if got, want := e.Clock(), uint32(42); got != want {
		t.Fatalf("invalid clock: got=%d, want=%d", got, want)
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected an error for a nil memory")
	}
	mem := &fakeMem{}
	for _, tc := range []struct {
		name string
		opt  Option
	}{
		{"capacity", WithCapacity(0)},
		{"queue", WithQueueSize(-1)},
		{"max-dto", WithMaxDTO(2)},
		{"max-entry", WithMaxEntrySize(256)},
		{"events", WithEvents()},
		{"ts-size", WithTimestamp(Unit1US, 3)},
		{"ts-unit", WithTimestamp(TimestampUnit(13), 4)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(mem, tc.opt)
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}
