// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/xcp/daq"
	"github.com/go-lpc/xcp/internal/dtofile"
)

func TestDump(t *testing.T) {
	tmpdir := t.TempDir()

	fname := filepath.Join(tmpdir, "xcp_daq_042.dto")
	f, err := os.Create(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := dtofile.NewEncoder(f)
	err = enc.WriteHeader(dtofile.Header{
		Run:    42,
		Start:  time.Date(2020, 11, 3, 10, 20, 30, 0, time.UTC),
		TsUnit: daq.Unit1US,
		TsSize: 4,
		Layout: daq.Layout{
			Name: "engine",
			Lists: []daq.ListLayout{
				{
					Event: 0,
					ODTs: [][]daq.EntryDesc{
						{{Addr: 0x10, Len: 4}},
						{{Addr: 0x20, Len: 2}},
					},
				},
				{
					Event:     2,
					Timestamp: true,
					ODTs:      [][]daq.EntryDesc{{{Addr: 0x30, Len: 3}}},
				},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, frag := range [][]byte{
		{0x00, 0x00, 0xa0, 0xa1, 0xa2, 0xa3, 0xb0, 0xb1},
		{0x02, 0x00, 0x10, 0x00, 0x00, 0x00, 0xc0, 0xc1, 0xc2},
	} {
		err = enc.Write(frag)
		if err != nil {
			t.Fatal(err)
		}
	}

	err = f.Close()
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name string
		raw  bool
		want string
	}{
		{
			name: "demux",
			want: `=== run 042 ===
start:     2020-11-03T10:20:30Z
timestamp: 4 bytes (unit=1us)
layout:    "engine" (lists=2)
dto #0: list=0 pid=0 seq=0 [a0a1a2a3 b0b1]
dto #1: list=1 pid=2 seq=0 ts=16 [c0c1c2]
`,
		},
		{
			name: "raw",
			raw:  true,
			want: `=== run 042 ===
start:     2020-11-03T10:20:30Z
timestamp: 4 bytes (unit=1us)
layout:    "engine" (lists=2)
dto #0: 0000a0a1a2a3b0b1
dto #1: 020010000000c0c1c2
`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out := new(strings.Builder)
			err := process(out, fname, tc.raw)
			if err != nil {
				t.Fatalf("could not dump file: %+v", err)
			}
			if got, want := out.String(), tc.want; got != want {
				t.Fatalf("invalid dump:\ngot:\n%s\nwant:\n%s\n", got, want)
			}
		})
	}

	err = process(new(strings.Builder), filepath.Join(tmpdir, "missing.dto"), false)
	if err == nil {
		t.Fatalf("expected an error dumping a missing file")
	}
}
