// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"io"
)

// Dump writes a human readable description of the DAQ configuration to w.
func (e *Engine) Dump(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		err error
		cnt = e.ents.counts()
	)
	pr := func(format string, args ...interface{}) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, format, args...)
	}

	pr("processor state:  %v\n", e.proc)
	pr("allocator state:  %v\n", e.state)
	pr("entities:         %d of %d (lists=%d, odts=%d, entries=%d)\n",
		cnt.Entities, cnt.Capacity, cnt.Lists, cnt.ODTs, cnt.Entries,
	)
	pr("queue:            %d/%d (overload=%v)\n",
		e.queue.Len(), e.queue.Cap(), e.queue.Overload(),
	)

	pid := 0
	for i := 0; i < cnt.Lists; i++ {
		dl := e.ents.ents[i].List
		pr("daq-list #%d: event=%d prescaler=%d mode=%v dir=%v pid=%d overloads=%d\n",
			i, dl.Event, dl.Prescaler, dl.Mode, dl.Direction, pid, dl.Overloads,
		)
		pid += dl.ODTs.Count
		total := 0
		for j := 0; j < dl.ODTs.Count; j++ {
			odt, oerr := e.ents.odt(i, j)
			if oerr != nil {
				return oerr
			}
			pr("  odt #%d: entries=%d\n", j, odt.Entries.Count)
			for k := 0; k < odt.Entries.Count; k++ {
				ent, eerr := e.ents.entry(i, j, k)
				if eerr != nil {
					return eerr
				}
				pr("    entry #%d: mta=%v len=%d\n", k, ent.MTA, ent.Len)
				total += int(ent.Len)
			}
		}
		pr("  total: %d byte(s)\n", total)
	}

	if err != nil {
		return fmt.Errorf("daq: could not dump configuration: %w", err)
	}
	return nil
}
