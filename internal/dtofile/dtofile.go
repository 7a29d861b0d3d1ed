// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dtofile reads and writes raw streams of DTO fragments.
//
// A stream starts with a header:
//
//	magic   [4]byte "XDTO"
//	version u8
//	ts-unit u8
//	ts-size u8
//	_       u8
//	run     u32
//	start   i64 (unix time, in nanoseconds)
//	layout  u32 length + JSON encoded daq.Layout
//
// followed by fragments, each prefixed by its u16 length.
// All integers are little-endian.
package dtofile // import "github.com/go-lpc/xcp/internal/dtofile"

import (
	"fmt"
	"time"

	"github.com/go-lpc/xcp/daq"
)

const (
	version = 1
	magic   = "XDTO"

	maxLayout = 1 << 24
)

// Header describes a stream of DTO fragments.
type Header struct {
	Run    uint32
	Start  time.Time
	TsUnit daq.TimestampUnit
	TsSize int
	Layout daq.Layout
}

// Demux identifies the DAQ list a fragment was produced by, and decodes it.
//
// Fragments of lists with the PID_OFF flag can only be attributed when the
// layout holds a single DAQ list.
func (hdr *Header) Demux(frag []byte) (int, daq.Fragment, error) {
	lists := hdr.Layout.Lists
	if len(lists) == 1 {
		f, err := daq.DecodeFragment(frag, lists[0].PIDOff, hdr.tsSize(0))
		return 0, f, err
	}
	if len(frag) == 0 {
		return -1, daq.Fragment{}, fmt.Errorf("dtofile: empty fragment")
	}

	pid := 0
	for i, dl := range lists {
		if !dl.PIDOff && int(frag[0]) == pid {
			f, err := daq.DecodeFragment(frag, false, hdr.tsSize(i))
			return i, f, err
		}
		pid += len(dl.ODTs)
	}
	return -1, daq.Fragment{}, fmt.Errorf("dtofile: no DAQ list for fragment with PID=%d", frag[0])
}

func (hdr *Header) tsSize(list int) int {
	if !hdr.Layout.Lists[list].Timestamp {
		return 0
	}
	return hdr.TsSize
}

// Split splits the payload of a fragment of DAQ list list into its ODT
// entries values.
func (hdr *Header) Split(list int, data []byte) ([][]byte, error) {
	if list < 0 || list >= len(hdr.Layout.Lists) {
		return nil, fmt.Errorf("dtofile: invalid DAQ list %d", list)
	}
	var (
		o   [][]byte
		beg = 0
	)
	for _, odt := range hdr.Layout.Lists[list].ODTs {
		for _, ent := range odt {
			end := beg + int(ent.Len)
			if end > len(data) {
				return o, fmt.Errorf("dtofile: fragment too short for DAQ list %d (len=%d)", list, len(data))
			}
			o = append(o, data[beg:end:end])
			beg = end
		}
	}
	if beg != len(data) {
		return o, fmt.Errorf("dtofile: fragment too long for DAQ list %d (len=%d, want=%d)", list, len(data), beg)
	}
	return o, nil
}
