// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-lpc/xcp/internal/mmap"
	"gopkg.in/yaml.v3"
)

// Config describes the memory spaces of a target.
type Config struct {
	Spaces []Space `json:"spaces" yaml:"spaces"`
}

// Space describes one memory space of a target.
//
// Kind selects the backing store:
//   - "ram": a zeroed in-memory buffer of Size bytes,
//   - "file": the content of file Name, starting at Offset,
//   - "mmap": Size bytes of file Name memory-mapped at Offset
//     (e.g. /dev/mem or a file under /dev/shm),
//   - "smbus": the registers of SMBus adapter Bus, Size defaults to 64kB.
//     Registers are served from a copy refreshed every DefaultSMBusPoll.
type Space struct {
	Name   string `json:"name" yaml:"name"`
	Kind   string `json:"kind" yaml:"kind"`
	Ext    uint8  `json:"ext" yaml:"ext"`
	Base   uint32 `json:"base" yaml:"base"`
	Size   int64  `json:"size" yaml:"size"`
	Offset int64  `json:"offset,omitempty" yaml:"offset,omitempty"`
	Bus    int    `json:"bus,omitempty" yaml:"bus,omitempty"`
	Addr   uint8  `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// LoadConfig reads a memory configuration from a JSON or YAML file.
func LoadConfig(fname string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(fname)
	if err != nil {
		return cfg, fmt.Errorf("mem: could not read memory config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(fname)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &cfg)
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("mem: could not decode memory config %q: %w", fname, err)
	}
	return cfg, nil
}

// DefaultRAMSize is the size of the memory space used when no memory
// configuration is provided.
const DefaultRAMSize = 64 << 10

// Load opens the memory map described by the configuration file fname.
// An empty fname yields a single RAM space of DefaultRAMSize bytes, at
// address 0 of extension 0.
func Load(fname string) (*Map, error) {
	cfg := Config{
		Spaces: []Space{{Name: "ram", Kind: "ram", Size: DefaultRAMSize}},
	}
	if fname != "" {
		var err error
		cfg, err = LoadConfig(fname)
		if err != nil {
			return nil, err
		}
	}
	return Open(cfg)
}

// Open creates the memory map described by cfg.
func Open(cfg Config) (*Map, error) {
	m := NewMap()
	for i, spc := range cfg.Spaces {
		r, size, err := openSpace(spc)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("mem: could not open space #%d (%q): %w", i, spc.Name, err)
		}
		err = m.Mount(spc.Ext, spc.Name, spc.Base, size, r)
		if err != nil {
			if c, ok := r.(io.Closer); ok {
				_ = c.Close()
			}
			_ = m.Close()
			return nil, err
		}
	}
	return m, nil
}

func openSpace(spc Space) (io.ReaderAt, int64, error) {
	switch spc.Kind {
	case "ram":
		if spc.Size <= 0 {
			return nil, 0, fmt.Errorf("invalid RAM size %d", spc.Size)
		}
		return NewRAM(int(spc.Size)), spc.Size, nil

	case "file":
		f, err := os.Open(spc.Name)
		if err != nil {
			return nil, 0, err
		}
		size := spc.Size
		if size <= 0 {
			fi, err := f.Stat()
			if err != nil {
				_ = f.Close()
				return nil, 0, err
			}
			size = fi.Size() - spc.Offset
		}
		return &offsetFile{f: f, off: spc.Offset}, size, nil

	case "mmap":
		h, err := mmap.Open(spc.Name, spc.Offset, int(spc.Size))
		if err != nil {
			return nil, 0, err
		}
		return h, int64(h.Len()), nil

	case "smbus":
		dev, err := OpenSMBus(spc.Bus, spc.Addr)
		if err != nil {
			return nil, 0, err
		}
		size := spc.Size
		if size <= 0 {
			size = 0x10000
		}
		return dev, size, nil

	default:
		return nil, 0, fmt.Errorf("unknown memory space kind %q", spc.Kind)
	}
}

type offsetFile struct {
	f   *os.File
	off int64
}

func (f *offsetFile) ReadAt(p []byte, off int64) (int, error) {
	return f.f.ReadAt(p, f.off+off)
}

func (f *offsetFile) Close() error {
	return f.f.Close()
}
