// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command xcp-ctl is an interactive shell issuing DAQ configuration,
// run-control and trigger commands to an XCP DAQ engine.
//
// Example:
//
//	$> xcp-ctl -mem ./mem.yaml
//	xcp> free
//	xcp> alloc-daq 1
//	xcp> alloc-odt 0 2
//	xcp> alloc-entry 0 0 1
//	xcp> alloc-entry 0 1 1
//	xcp> set-ptr 0 0 0
//	xcp> write 0x10 4
//	xcp> set-ptr 0 1 0
//	xcp> write 0x20 2
//	xcp> mode 0 1 1
//	xcp> select 0
//	xcp> start-all
//	xcp> trigger 1 2
//	xcp> drain
//	dto: 0000000000000000
//	dto: 0001000000000000
package main // import "github.com/go-lpc/xcp/cmd/xcp-ctl"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-lpc/xcp/daq"
	"github.com/go-lpc/xcp/mem"
	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("xcp-ctl: ")
	log.SetFlags(0)

	var (
		memCfg = flag.String("mem", "", "path to memory spaces configuration file")
		qsize  = flag.Int("queue", 64, "number of transfer queue slots")
		hist   = flag.String("history", filepath.Join(os.TempDir(), ".xcp-ctl.history"), "path to history file")
	)

	flag.Parse()

	mmap, err := mem.Load(*memCfg)
	if err != nil {
		log.Fatalf("could not open target memory: %+v", err)
	}
	defer mmap.Close()

	eng, err := daq.New(mmap,
		daq.WithQueueSize(*qsize),
		daq.WithLogger(log.New(os.Stdout, "xcp-ctl: ", 0)),
	)
	if err != nil {
		log.Fatalf("could not create DAQ engine: %+v", err)
	}

	err = run(newShell(eng, mmap, os.Stdout), *hist)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(sh *shell, hist string) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(sh.complete)

	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			log.Printf("could not save history: %+v", err)
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("xcp> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		err = sh.exec(line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			log.Printf("error: %+v", err)
		}
	}
}
