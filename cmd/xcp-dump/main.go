// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// xcp-dump decodes and displays DTO files.
//
// Usage: xcp-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> xcp-dump ./xcp_daq_042.dto
//	=== run 042 ===
//	start:     2020-11-03T10:20:30Z
//	timestamp: 4 bytes (unit=1us)
//	layout:    "engine" (lists=2)
//	dto #0: list=0 pid=0 seq=0 [a0a1a2a3 b0b1]
//	dto #1: list=1 pid=2 seq=0 ts=16 [c0c1c2]
//	[...]
package main // import "github.com/go-lpc/xcp/cmd/xcp-dump"

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/xcp/internal/dtofile"
)

func main() {
	log.SetPrefix("xcp-dump: ")
	log.SetFlags(0)

	raw := flag.Bool("raw", false, "display raw fragments")

	flag.Usage = func() {
		fmt.Printf(`xcp-dump decodes and displays DTO files.

Usage: xcp-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> xcp-dump ./xcp_daq_042.dto
 === run 042 ===
 start:     2020-11-03T10:20:30Z
 timestamp: 4 bytes (unit=1us)
 layout:    "engine" (lists=2)
 dto #0: list=0 pid=0 seq=0 [a0a1a2a3 b0b1]
 dto #1: list=1 pid=2 seq=0 ts=16 [c0c1c2]
 [...]

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input DTO file")
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, *raw)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, raw bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	dec := dtofile.NewDecoder(bufio.NewReader(f))
	hdr, err := dec.ReadHeader()
	if err != nil {
		return fmt.Errorf("could not decode DTO header: %w", err)
	}

	fmt.Fprintf(wbuf, "=== run %03d ===\n", hdr.Run)
	fmt.Fprintf(wbuf, "start:     %s\n", hdr.Start.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(wbuf, "timestamp: %d bytes (unit=%v)\n", hdr.TsSize, hdr.TsUnit)
	fmt.Fprintf(wbuf, "layout:    %q (lists=%d)\n", hdr.Layout.Name, len(hdr.Layout.Lists))

	var frag []byte
loop:
	for i := 0; ; i++ {
		frag, err = dec.Next(frag[:0])
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode DTO %d: %w", i, err)
		}
		if raw {
			fmt.Fprintf(wbuf, "dto #%d: %x\n", i, frag)
			continue
		}

		list, dto, err := hdr.Demux(frag)
		if err != nil {
			return fmt.Errorf("could not demux DTO %d: %w", i, err)
		}
		ents, err := hdr.Split(list, dto.Data)
		if err != nil {
			return fmt.Errorf("could not split DTO %d: %w", i, err)
		}

		fmt.Fprintf(wbuf, "dto #%d: list=%d", i, list)
		if dto.PID >= 0 {
			fmt.Fprintf(wbuf, " pid=%d", dto.PID)
		}
		fmt.Fprintf(wbuf, " seq=%d", dto.Seq)
		if hdr.Layout.Lists[list].Timestamp {
			fmt.Fprintf(wbuf, " ts=%d", dto.Timestamp)
		}
		fmt.Fprintf(wbuf, " %x\n", ents)
	}

	return nil
}
