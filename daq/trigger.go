// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"encoding/binary"
	"fmt"
)

// TriggerEvent samples all the started DAQ lists bound to event channel ch
// and hands one fragment per list to the transfer queue.
//
// Fragments that do not fit in the queue are dropped: the overload is
// recorded on the queue and on the DAQ list, and sampling goes on with
// the next list.
func (e *Engine) TriggerEvent(ch int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.proc != ProcRunning {
		return
	}
	if ch < 0 || ch >= len(e.cfg.events) {
		return
	}

	pid := 0
	for i := 0; i < e.ents.nlists; i++ {
		dl := &e.ents.ents[i].List
		first := pid
		pid += dl.ODTs.Count

		if dl.Event != ch || dl.Mode&ModeStarted == 0 || dl.Direction != DirDAQ {
			continue
		}
		if e.cfg.prescaler && dl.Prescaler > 1 {
			dl.Counter++
			if dl.Counter < dl.Prescaler {
				continue
			}
			dl.Counter = 0
		}
		e.sample(i, dl, first)
	}
}

func (e *Engine) sample(list int, dl *List, pid int) {
	n := e.putHeader(dl, pid)

	for i := 0; i < dl.ODTs.Count; i++ {
		odt, err := e.ents.odt(list, i)
		if err != nil {
			e.stats.Errors++
			return
		}
		for j := 0; j < odt.Entries.Count; j++ {
			ent, err := e.ents.entry(list, i, j)
			if err != nil {
				e.stats.Errors++
				return
			}
			end := n + int(ent.Len)
			if end > len(e.buf) {
				e.stats.Errors++
				return
			}
			err = e.mem.ReadMemory(ent.MTA, e.buf[n:end])
			if err != nil {
				e.stats.Errors++
				return
			}
			n = end
		}
	}

	if n > e.queue.Size() {
		e.stats.Errors++
		return
	}
	if !e.queue.Enqueue(e.buf[:n]) {
		dl.Overloads++
		e.stats.Overloads++
		return
	}
	dl.Seq++
	e.stats.Fragments++
}

func (e *Engine) headerSize(mode Mode) int {
	n := 1 // CTR
	if mode&ModePIDOff == 0 {
		n++
	}
	if mode&ModeTimestamp != 0 {
		n += e.cfg.tsSize
	}
	return n
}

func (e *Engine) putHeader(dl *List, pid int) int {
	n := 0
	if dl.Mode&ModePIDOff == 0 {
		e.buf[n] = uint8(pid)
		n++
	}
	e.buf[n] = dl.Seq
	n++
	if dl.Mode&ModeTimestamp == 0 {
		return n
	}

	ts := e.clock.Now()
	switch e.cfg.tsSize {
	case 1:
		e.buf[n] = uint8(ts)
	case 2:
		binary.LittleEndian.PutUint16(e.buf[n:], uint16(ts))
	case 4:
		binary.LittleEndian.PutUint32(e.buf[n:], ts)
	}
	return n + e.cfg.tsSize
}

// Fragment is a decoded DTO fragment.
type Fragment struct {
	PID       int // -1 when the fragment carries no PID
	Seq       uint8
	Timestamp uint32
	Data      []byte
}

// DecodeFragment decodes the header of a fragment produced by a DAQ list
// whose mode has the PID_OFF flag set to pidOff, with timestamps of tsSize
// bytes (0 if the list is not timestamped).
// The returned Data aliases p.
func DecodeFragment(p []byte, pidOff bool, tsSize int) (Fragment, error) {
	var (
		frag = Fragment{PID: -1}
		n    = 0
	)
	hdr := 1 + tsSize
	if !pidOff {
		hdr++
	}
	if len(p) < hdr {
		return frag, fmt.Errorf("daq: fragment too short (len=%d, header=%d)", len(p), hdr)
	}

	if !pidOff {
		frag.PID = int(p[n])
		n++
	}
	frag.Seq = p[n]
	n++
	switch tsSize {
	case 0:
	case 1:
		frag.Timestamp = uint32(p[n])
	case 2:
		frag.Timestamp = uint32(binary.LittleEndian.Uint16(p[n:]))
	case 4:
		frag.Timestamp = binary.LittleEndian.Uint32(p[n:])
	default:
		return frag, fmt.Errorf("daq: invalid timestamp size %d", tsSize)
	}
	n += tsSize
	frag.Data = p[n:]
	return frag, nil
}
