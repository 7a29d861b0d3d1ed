// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layout describes a complete DAQ configuration.
type Layout struct {
	Name  string       `json:"name" yaml:"name"`
	Lists []ListLayout `json:"lists" yaml:"lists"`
}

// ListLayout describes one DAQ list of a layout.
type ListLayout struct {
	Event     int           `json:"event" yaml:"event"`
	Prescaler uint8         `json:"prescaler,omitempty" yaml:"prescaler,omitempty"`
	Timestamp bool          `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	PIDOff    bool          `json:"pid_off,omitempty" yaml:"pid_off,omitempty"`
	ODTs      [][]EntryDesc `json:"odts" yaml:"odts"`
}

// Mode returns the DAQ list mode described by the layout.
func (ll ListLayout) Mode() Mode {
	var mode Mode
	if ll.Timestamp {
		mode |= ModeTimestamp
	}
	if ll.PIDOff {
		mode |= ModePIDOff
	}
	return mode
}

// EntryDesc describes one ODT entry of a layout.
type EntryDesc struct {
	Addr uint32 `json:"addr" yaml:"addr"`
	Ext  uint8  `json:"ext,omitempty" yaml:"ext,omitempty"`
	Len  uint8  `json:"len" yaml:"len"`
}

// Size returns the number of DAQ entities needed by the layout.
func (lay Layout) Size() int {
	n := len(lay.Lists)
	for _, dl := range lay.Lists {
		n += len(dl.ODTs)
		for _, odt := range dl.ODTs {
			n += len(odt)
		}
	}
	return n
}

// LoadLayout reads a layout from a JSON or YAML file.
func LoadLayout(fname string) (Layout, error) {
	var lay Layout
	raw, err := os.ReadFile(fname)
	if err != nil {
		return lay, fmt.Errorf("daq: could not read layout file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(fname)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &lay)
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&lay)
	}
	if err != nil {
		return lay, fmt.Errorf("daq: could not decode layout %q: %w", fname, err)
	}
	if lay.Name == "" {
		lay.Name = strings.TrimSuffix(filepath.Base(fname), filepath.Ext(fname))
	}
	return lay, nil
}

// Configure replaces the current DAQ configuration with the one described
// by lay, and selects all of its DAQ lists.
// The whole sequence FREE_DAQ, ALLOC_DAQ, ALLOC_ODT, ALLOC_ODT_ENTRY,
// WRITE_DAQ and SET_DAQ_LIST_MODE is issued, as a master would.
func (e *Engine) Configure(lay Layout) error {
	e.StopAll()

	err := e.FreeAll()
	if err != nil {
		return fmt.Errorf("daq: could not free DAQ lists: %w", err)
	}

	err = e.AllocateLists(len(lay.Lists))
	if err != nil {
		return fmt.Errorf("daq: could not allocate %d DAQ lists: %w", len(lay.Lists), err)
	}

	for i, dl := range lay.Lists {
		err = e.AllocateODTs(i, len(dl.ODTs))
		if err != nil {
			return fmt.Errorf("daq: could not allocate ODTs for DAQ list %d: %w", i, err)
		}
	}

	for i, dl := range lay.Lists {
		for j, odt := range dl.ODTs {
			err = e.AllocateEntries(i, j, len(odt))
			if err != nil {
				return fmt.Errorf("daq: could not allocate entries for ODT %d of DAQ list %d: %w", j, i, err)
			}
		}
	}

	for i, dl := range lay.Lists {
		for j, odt := range dl.ODTs {
			if len(odt) == 0 {
				continue
			}
			err = e.SetPointer(i, j, 0)
			if err != nil {
				return err
			}
			for k, ent := range odt {
				err = e.WriteEntry(MTA{Addr: ent.Addr, Ext: ent.Ext}, ent.Len)
				if err != nil {
					return fmt.Errorf("daq: could not write entry %d of ODT %d of DAQ list %d: %w", k, j, i, err)
				}
			}
		}
	}

	for i, dl := range lay.Lists {
		err = e.SetListMode(i, dl.Mode()|ModeSelected, dl.Event, dl.Prescaler)
		if err != nil {
			return fmt.Errorf("daq: could not set mode of DAQ list %d: %w", i, err)
		}
	}

	e.SetProcessorState(ProcConfigValid)
	e.msg.Printf("configured layout %q: %d DAQ list(s), %d entities", lay.Name, len(lay.Lists), lay.Size())
	return nil
}
