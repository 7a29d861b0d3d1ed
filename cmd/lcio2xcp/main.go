// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lcio2xcp converts a LCIO file into a DTO file.
package main // import "github.com/go-lpc/xcp/cmd/lcio2xcp"

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/xcp/internal/dtofile"
	"github.com/go-lpc/xcp/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

func main() {
	log.SetPrefix("lcio2xcp: ")
	log.SetFlags(0)

	var (
		oname = flag.String("o", "out.dto", "path to output DTO file")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: lcio2xcp [OPTIONS] file.lcio

ex:
 $> lcio2xcp -o out.dto ./input.lcio

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatalf("missing input LCIO file")
	}

	if *oname == "" {
		flag.Usage()
		log.Fatalf("invalid output DTO file name")
	}

	n, err := numEvents(flag.Arg(0))
	if err != nil {
		log.Fatalf("could not assess number of events: %+v", err)
	}
	log.Printf("input:  %s", flag.Arg(0))
	log.Printf("events: %d", n)

	err = process(*oname, flag.Arg(0), int(n/10))
	if err != nil {
		log.Fatalf("could not convert LCIO file: %+v", err)
	}
}

func numEvents(fname string) (int64, error) {
	r, err := lcio.Open(fname)
	if err != nil {
		return 0, fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer r.Close()

	var n int64
	for r.Next() {
		n++
	}

	err = r.Err()
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("could not assess number of events in %q: %w", fname, err)
	}

	return n, nil
}

func process(oname, fname string, freq int) error {
	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	f, err := os.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output DTO file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	err = xcnv.LCIO2DTO(dtofile.NewEncoder(w), r, freq, log.Default())
	if err != nil {
		return fmt.Errorf("could not convert LCIO to DTO: %w", err)
	}

	err = w.Flush()
	if err != nil {
		return fmt.Errorf("could not flush output DTO file: %w", err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close output DTO file: %w", err)
	}
	return nil
}
