// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/go-lpc/xcp/internal/dtofile"
	"go-hep.org/x/hep/lcio"
)

// DTO2LCIO converts the DTO stream read from dec into LCIO events.
func DTO2LCIO(w *lcio.Writer, dec *dtofile.Decoder, freq int, msg *log.Logger) error {
	hdr, err := dec.ReadHeader()
	if err != nil {
		return fmt.Errorf("could not read DTO header: %w", err)
	}
	lay, err := json.Marshal(hdr.Layout)
	if err != nil {
		return fmt.Errorf("could not encode DAQ layout: %w", err)
	}

	run := int32(hdr.Run)
	err = w.WriteRunHeader(&lcio.RunHeader{
		RunNumber: run,
		Detector:  detName,
		Descr:     hdr.Layout.Name,
		Params: lcio.Params{
			Ints: map[string][]int32{
				parTsUnit: {int32(hdr.TsUnit)},
				parTsSize: {int32(hdr.TsSize)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("could not write run header: %w", err)
	}

	var (
		frag []byte
		tick = hdr.TsUnit.Duration()
		raw  = &lcio.GenericObject{
			Data: []lcio.GenericObjectData{
				{I32s: nil},
			},
		}
	)

loop:
	for i := 0; ; i++ {
		if freq > 0 && i%freq == 0 {
			msg.Printf("processing evt %d...", i)
		}
		frag, err = dec.Next(frag[:0])
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode DTO: %w", err)
		}

		list, f, err := hdr.Demux(frag)
		if err != nil {
			return fmt.Errorf("could not demux DTO %d: %w", i, err)
		}

		evt := lcio.Event{
			RunNumber:   run,
			EventNumber: int32(i),
			TimeStamp:   hdr.Start.Add(time.Duration(f.Timestamp) * tick).UnixNano(),
			Detector:    detName,
		}
		if i == 0 {
			evt.Params = lcio.Params{
				Ints: map[string][]int32{
					parTsUnit: {int32(hdr.TsUnit)},
					parTsSize: {int32(hdr.TsSize)},
				},
				Strings: map[string][]string{
					parLayout: {string(lay)},
					parStart:  {hdr.Start.UTC().Format(time.RFC3339Nano)},
				},
			}
		}
		raw.Data[0].I32s = i32sFrom(raw.Data[0].I32s, list, f.PID, f.Seq, f.Timestamp, frag)
		evt.Add(collName, raw)

		err = w.WriteEvent(&evt)
		if err != nil {
			return fmt.Errorf("could not write DTO event: %w", err)
		}
	}

	return nil
}
