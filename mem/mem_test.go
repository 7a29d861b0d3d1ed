// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-lpc/xcp/daq"
)

func TestMap(t *testing.T) {
	var (
		m    = NewMap()
		ram0 = NewRAM(16)
		ram1 = NewRAM(8)
		rom  = bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef})
	)
	_, _ = ram0.WriteAt([]byte{1, 2, 3, 4}, 0)
	_, _ = ram1.WriteAt([]byte{5, 6, 7, 8}, 4)

	for _, tc := range []struct {
		ext  uint8
		name string
		base uint32
		size int64
		err  bool
		r    io.ReaderAt
	}{
		{0, "ram0", 0x1000, 16, false, ram0},
		{0, "ram1", 0x2000, 8, false, ram1},
		{1, "rom", 0x0, 4, false, rom},
		{0, "overlap-1", 0x100f, 2, true, ram1},
		{0, "overlap-2", 0x0fff, 2, true, ram1},
		{0, "empty", 0x3000, 0, true, ram1},
		{0, "overflow", 0xffff_fff0, 32, true, ram1},
	} {
		err := m.Mount(tc.ext, tc.name, tc.base, tc.size, tc.r)
		switch {
		case err != nil && !tc.err:
			t.Fatalf("could not mount %q: %+v", tc.name, err)
		case err == nil && tc.err:
			t.Fatalf("expected an error mounting %q", tc.name)
		}
	}

	wins := m.Windows(0)
	if got, want := len(wins), 2; got != want {
		t.Fatalf("invalid number of windows: got=%d, want=%d", got, want)
	}
	if got, want := wins[0].Name, "ram0"; got != want {
		t.Fatalf("invalid window: got=%q, want=%q", got, want)
	}

	for _, tc := range []struct {
		mta  daq.MTA
		n    int
		want []byte
		err  error
	}{
		{daq.MTA{Addr: 0x1000}, 4, []byte{1, 2, 3, 4}, nil},
		{daq.MTA{Addr: 0x1002}, 2, []byte{3, 4}, nil},
		{daq.MTA{Addr: 0x2004}, 4, []byte{5, 6, 7, 8}, nil},
		{daq.MTA{Addr: 0x1, Ext: 1}, 2, []byte{0xad, 0xbe}, nil},
		{daq.MTA{Addr: 0x100e}, 4, nil, errBounds},
		{daq.MTA{Addr: 0x0fff}, 1, nil, errBounds},
		{daq.MTA{Addr: 0x1800}, 1, nil, errBounds},
		{daq.MTA{Addr: 0x3000}, 1, nil, errBounds},
		{daq.MTA{Addr: 0x0, Ext: 2}, 1, nil, errNoSpace},
	} {
		t.Run(fmt.Sprintf("%v", tc.mta), func(t *testing.T) {
			buf := make([]byte, tc.n)
			err := m.ReadMemory(tc.mta, buf)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("could not read memory: %+v", err)
			}
			if !bytes.Equal(buf, tc.want) {
				t.Fatalf("invalid data: got=%x, want=%x", buf, tc.want)
			}
		})
	}

	err := m.WriteMemory(daq.MTA{Addr: 0x1004}, []byte{0xca, 0xfe})
	if err != nil {
		t.Fatalf("could not write memory: %+v", err)
	}
	buf := make([]byte, 2)
	err = m.ReadMemory(daq.MTA{Addr: 0x1004}, buf)
	if err != nil {
		t.Fatalf("could not read memory: %+v", err)
	}
	if got, want := buf, []byte{0xca, 0xfe}; !bytes.Equal(got, want) {
		t.Fatalf("invalid data: got=%x, want=%x", got, want)
	}

	err = m.WriteMemory(daq.MTA{Addr: 0x0, Ext: 1}, []byte{1})
	if err == nil {
		t.Fatalf("expected an error writing to a read-only space")
	}
	err = m.WriteMemory(daq.MTA{Addr: 0x100f}, []byte{1, 2})
	if !errors.Is(err, errBounds) {
		t.Fatalf("invalid error: got=%v, want=%v", err, errBounds)
	}

	err = m.Close()
	if err != nil {
		t.Fatalf("could not close map: %+v", err)
	}
}

type fakeBus struct {
	regs   map[uint16]uint8
	calls  int
	closed bool
}

func (bus *fakeBus) ReadReg(addr, reg uint8) (uint8, error) {
	bus.calls++
	v, ok := bus.regs[uint16(addr)<<8|uint16(reg)]
	if !ok {
		return 0, fmt.Errorf("no such register 0x%02x:0x%02x", addr, reg)
	}
	return v, nil
}

func (bus *fakeBus) Close() error {
	bus.closed = true
	return nil
}

func TestSMBus(t *testing.T) {
	bus := &fakeBus{
		regs: map[uint16]uint8{
			0x4800: 0x11,
			0x4801: 0x22,
			0x4802: 0x33,
			0x49ff: 0x44,
		},
	}
	dev := NewSMBus(bus)
	m := NewMap()
	err := m.Mount(2, "smbus", 0, 0x10000, dev)
	if err != nil {
		t.Fatalf("could not mount smbus: %+v", err)
	}

	buf := make([]byte, 3)
	err = m.ReadMemory(daq.MTA{Addr: 0x4800, Ext: 2}, buf)
	if err == nil {
		t.Fatalf("expected an error reading registers never fetched")
	}
	if got, want := bus.calls, 0; got != want {
		t.Fatalf("invalid number of bus transactions: got=%d, want=%d", got, want)
	}

	err = dev.Sync()
	if err != nil {
		t.Fatalf("could not sync registers: %+v", err)
	}
	if got, want := bus.calls, 3; got != want {
		t.Fatalf("invalid number of bus transactions: got=%d, want=%d", got, want)
	}

	err = m.ReadMemory(daq.MTA{Addr: 0x4800, Ext: 2}, buf)
	if err != nil {
		t.Fatalf("could not read registers: %+v", err)
	}
	if got, want := buf, []byte{0x11, 0x22, 0x33}; !bytes.Equal(got, want) {
		t.Fatalf("invalid registers: got=%x, want=%x", got, want)
	}
	if got, want := bus.calls, 3; got != want {
		t.Fatalf("reads should not touch the bus: got=%d, want=%d", got, want)
	}

	bus.regs[0x4800] = 0x55
	err = dev.Sync()
	if err != nil {
		t.Fatalf("could not sync registers: %+v", err)
	}
	err = m.ReadMemory(daq.MTA{Addr: 0x4800, Ext: 2}, buf[:1])
	if err != nil {
		t.Fatalf("could not read register: %+v", err)
	}
	if got, want := buf[0], uint8(0x55); got != want {
		t.Fatalf("invalid register: got=0x%x, want=0x%x", got, want)
	}

	err = m.ReadMemory(daq.MTA{Addr: 0x4802, Ext: 2}, buf)
	if err == nil {
		t.Fatalf("expected an error reading a missing register")
	}
	err = dev.Sync()
	if err == nil {
		t.Fatalf("expected an error syncing a missing register")
	}
	err = m.ReadMemory(daq.MTA{Addr: 0x4802, Ext: 2}, buf)
	if err == nil {
		t.Fatalf("expected an error reading a missing register")
	}

	err = m.ReadMemory(daq.MTA{Addr: 0x49ff, Ext: 2}, buf[:2])
	if err == nil {
		t.Fatalf("expected an error reading across devices")
	}

	err = m.Close()
	if err != nil {
		t.Fatalf("could not close map: %+v", err)
	}
	if !bus.closed {
		t.Fatalf("bus should have been closed")
	}
}

func TestSMBusPoll(t *testing.T) {
	bus := &fakeBus{
		regs: map[uint16]uint8{0x4800: 0x11},
	}
	dev := NewSMBus(bus)
	dev.start(time.Millisecond)

	buf := make([]byte, 1)
	_, err := dev.ReadAt(buf, 0x4800)
	if err == nil {
		t.Fatalf("expected an error reading a register never fetched")
	}

	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case <-timeout:
			t.Fatalf("register was not refreshed")
		default:
			_, err = dev.ReadAt(buf, 0x4800)
			if err == nil {
				break loop
			}
			time.Sleep(time.Millisecond)
		}
	}
	if got, want := buf[0], uint8(0x11); got != want {
		t.Fatalf("invalid register: got=0x%x, want=0x%x", got, want)
	}

	err = dev.Close()
	if err != nil {
		t.Fatalf("could not close device: %+v", err)
	}
	if !bus.closed {
		t.Fatalf("bus should have been closed")
	}
}

func TestOpen(t *testing.T) {
	tmp := t.TempDir()
	img := filepath.Join(tmp, "image.bin")
	err := os.WriteFile(img, []byte{0, 1, 2, 3, 4, 5, 6, 7}, 0644)
	if err != nil {
		t.Fatalf("could not create memory image: %+v", err)
	}

	shm := filepath.Join(tmp, "shm.bin")
	err = os.WriteFile(shm, bytes.Repeat([]byte{0xaa}, os.Getpagesize()), 0644)
	if err != nil {
		t.Fatalf("could not create shared memory file: %+v", err)
	}

	for _, tc := range []struct {
		name string
		data string
	}{
		{
			name: "mem.json",
			data: fmt.Sprintf(`{"spaces": [
	{"name": "ram", "kind": "ram", "ext": 0, "base": 4096, "size": 256},
	{"name": %q, "kind": "file", "ext": 1, "base": 0, "offset": 2},
	{"name": %q, "kind": "mmap", "ext": 2, "base": 0, "size": 16}
]}`, img, shm),
		},
		{
			name: "mem.yaml",
			data: fmt.Sprintf(`
spaces:
  - {name: ram, kind: ram, ext: 0, base: 0x1000, size: 256}
  - {name: %q, kind: file, ext: 1, base: 0, offset: 2}
  - {name: %q, kind: mmap, ext: 2, base: 0, size: 16}
`, img, shm),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fname := filepath.Join(tmp, tc.name)
			err := os.WriteFile(fname, []byte(tc.data), 0644)
			if err != nil {
				t.Fatalf("could not create config file: %+v", err)
			}

			cfg, err := LoadConfig(fname)
			if err != nil {
				t.Fatalf("could not load config: %+v", err)
			}
			if got, want := len(cfg.Spaces), 3; got != want {
				t.Fatalf("invalid number of spaces: got=%d, want=%d", got, want)
			}

			m, err := Open(cfg)
			if err != nil {
				t.Fatalf("could not open memory map: %+v", err)
			}
			defer m.Close()

			for _, tc := range []struct {
				mta  daq.MTA
				want []byte
			}{
				{daq.MTA{Addr: 0x10ff, Ext: 0}, []byte{0}},
				{daq.MTA{Addr: 0x0, Ext: 1}, []byte{2, 3, 4, 5, 6, 7}},
				{daq.MTA{Addr: 0xe, Ext: 2}, []byte{0xaa, 0xaa}},
			} {
				buf := make([]byte, len(tc.want))
				err := m.ReadMemory(tc.mta, buf)
				if err != nil {
					t.Fatalf("could not read %v: %+v", tc.mta, err)
				}
				if !bytes.Equal(buf, tc.want) {
					t.Fatalf("invalid data at %v: got=%x, want=%x", tc.mta, buf, tc.want)
				}
			}

			err = m.ReadMemory(daq.MTA{Addr: 0x6, Ext: 1}, make([]byte, 1))
			if !errors.Is(err, errBounds) {
				t.Fatalf("invalid error: got=%v, want=%v", err, errBounds)
			}
		})
	}

	for _, tc := range []struct {
		name string
		cfg  Config
	}{
		{"unknown-kind", Config{Spaces: []Space{{Name: "x", Kind: "flash", Size: 1}}}},
		{"empty-ram", Config{Spaces: []Space{{Name: "x", Kind: "ram"}}}},
		{"missing-file", Config{Spaces: []Space{{Name: filepath.Join(tmp, "missing"), Kind: "file"}}}},
		{"overlap", Config{Spaces: []Space{
			{Name: "a", Kind: "ram", Size: 16},
			{Name: "b", Kind: "ram", Base: 8, Size: 16},
		}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(tc.cfg)
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestEngineMemory(t *testing.T) {
	ram := NewRAM(64)
	m := NewMap()
	err := m.Mount(0, "ram", 0x100, 64, ram)
	if err != nil {
		t.Fatalf("could not mount RAM: %+v", err)
	}

	e, err := daq.New(m, daq.WithTimestamp(daq.Unit1US, 0))
	if err != nil {
		t.Fatalf("could not create engine: %+v", err)
	}
	err = e.Configure(daq.Layout{
		Lists: []daq.ListLayout{{
			Event: 1,
			ODTs:  [][]daq.EntryDesc{{{Addr: 0x110, Len: 2}}},
		}},
	})
	if err != nil {
		t.Fatalf("could not configure engine: %+v", err)
	}
	err = e.StartSelected()
	if err != nil {
		t.Fatalf("could not start engine: %+v", err)
	}

	err = m.WriteMemory(daq.MTA{Addr: 0x110}, []byte{0x12, 0x34})
	if err != nil {
		t.Fatalf("could not write memory: %+v", err)
	}
	e.TriggerEvent(1)

	frag, ok := e.Queue().Dequeue(nil)
	if !ok {
		t.Fatalf("could not dequeue fragment")
	}
	if got, want := frag, []byte{0, 0, 0x12, 0x34}; !bytes.Equal(got, want) {
		t.Fatalf("invalid fragment: got=%x, want=%x", got, want)
	}
}

func TestLoad(t *testing.T) {
	m, err := Load("")
	if err != nil {
		t.Fatalf("could not load default memory map: %+v", err)
	}
	defer m.Close()

	err = m.WriteMemory(daq.MTA{Addr: DefaultRAMSize - 2}, []byte{1, 2})
	if err != nil {
		t.Fatalf("could not write memory: %+v", err)
	}
	buf := make([]byte, 2)
	err = m.ReadMemory(daq.MTA{Addr: DefaultRAMSize - 2}, buf)
	if err != nil {
		t.Fatalf("could not read memory: %+v", err)
	}
	if got, want := buf, []byte{1, 2}; !bytes.Equal(got, want) {
		t.Fatalf("invalid data: got=%x, want=%x", got, want)
	}
	err = m.ReadMemory(daq.MTA{Addr: DefaultRAMSize - 1}, buf)
	if err == nil {
		t.Fatalf("expected an error reading past the default RAM")
	}

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatalf("expected an error loading a missing config file")
	}
}
