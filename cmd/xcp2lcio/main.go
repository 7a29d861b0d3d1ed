// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command xcp2lcio converts a DTO file to an LCIO one.
package main // import "github.com/go-lpc/xcp/cmd/xcp2lcio"

import (
	"bufio"
	"compress/flate"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-lpc/xcp/internal/dtofile"
	"github.com/go-lpc/xcp/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

var (
	msg = log.New(os.Stdout, "xcp2lcio: ", 0)
)

func main() {
	var (
		oname = flag.String("o", "out.lcio", "path to output LCIO file")
		compr = flag.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		freq  = flag.Int("freq", 1000, "printout frequency of processed events")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: xcp2lcio [OPTIONS] file.dto

ex:
 $> xcp2lcio -o out.lcio -lvl=9 ./xcp_daq_042.dto

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing input DTO file")
	}

	if *oname == "" {
		flag.Usage()
		msg.Fatalf("invalid output LCIO file name")
	}

	err := process(*oname, *compr, flag.Arg(0), *freq)
	if err != nil {
		msg.Fatalf("could not convert DTO file: %+v", err)
	}
}

func process(oname string, lvl int, fname string, freq int) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open DTO file: %w", err)
	}
	defer f.Close()

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(lvl)

	dec := dtofile.NewDecoder(bufio.NewReader(f))
	err = xcnv.DTO2LCIO(w, dec, freq, msg)
	if err != nil {
		return fmt.Errorf("could not convert DTO to LCIO: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	return nil
}
