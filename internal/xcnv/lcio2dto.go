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

	"github.com/go-lpc/xcp/daq"
	"github.com/go-lpc/xcp/internal/dtofile"
	"go-hep.org/x/hep/lcio"
)

// LCIO2DTO converts LCIO events produced by DTO2LCIO back into a DTO stream.
func LCIO2DTO(enc *dtofile.Encoder, r *lcio.Reader, freq int, msg *log.Logger) error {
	var (
		frag []byte
		i    = 0
		err  error
	)

	for r.Next() {
		if freq > 0 && i%freq == 0 {
			msg.Printf("processing evt %d...", i)
		}
		evt := r.Event()
		if i == 0 {
			hdr, err := headerFrom(&evt)
			if err != nil {
				return fmt.Errorf("could not decode DTO header: %w", err)
			}
			err = enc.WriteHeader(hdr)
			if err != nil {
				return err
			}
		}

		coll, ok := evt.Get(collName).(*lcio.GenericObject)
		if !ok || len(coll.Data) == 0 {
			return fmt.Errorf("event %d has no %s collection", evt.EventNumber, collName)
		}
		frag, err = bytesFromI32s(frag[:0], coll.Data[0].I32s)
		if err != nil {
			return fmt.Errorf("could not decode DTO from event %d: %w", evt.EventNumber, err)
		}
		err = enc.Write(frag)
		if err != nil {
			return fmt.Errorf("could not re-encode DTO: %w", err)
		}
		i++
	}

	err = r.Err()
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("could not read LCIO events: %w", err)
	}
	return nil
}

func headerFrom(evt *lcio.Event) (dtofile.Header, error) {
	var (
		hdr  = dtofile.Header{Run: uint32(evt.RunNumber)}
		ints = evt.Params.Ints
		strs = evt.Params.Strings
	)
	if len(ints[parTsUnit]) != 1 || len(ints[parTsSize]) != 1 {
		return hdr, fmt.Errorf("missing timestamp parameters")
	}
	hdr.TsUnit = daq.TimestampUnit(ints[parTsUnit][0])
	hdr.TsSize = int(ints[parTsSize][0])

	if len(strs[parStart]) != 1 || len(strs[parLayout]) != 1 {
		return hdr, fmt.Errorf("missing start time or layout parameters")
	}
	start, err := time.Parse(time.RFC3339Nano, strs[parStart][0])
	if err != nil {
		return hdr, fmt.Errorf("could not parse start time: %w", err)
	}
	hdr.Start = start

	err = json.Unmarshal([]byte(strs[parLayout][0]), &hdr.Layout)
	if err != nil {
		return hdr, fmt.Errorf("could not decode DAQ layout: %w", err)
	}
	return hdr, nil
}
