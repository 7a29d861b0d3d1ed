// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command xcp-run drives an XCP DAQ engine in stand-alone mode, writing
// the sampled DTO fragments to a file until interrupted.
//
// Usage: xcp-run [OPTIONS] -run N layout.(json|yaml)
//
// Example:
//
//	$> xcp-run -run 42 -mem ./mem.yaml -o ./data ./layout.yaml
//	$> xcp-run -run 43 -db xcpdb -pmon
package main // import "github.com/go-lpc/xcp/cmd/xcp-run"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-lpc/xcp"
	"github.com/go-lpc/xcp/acq"
	"github.com/go-lpc/xcp/conddb"
	"github.com/go-lpc/xcp/daq"
	"github.com/go-lpc/xcp/mem"
	"github.com/sbinet/pmon"
)

type config struct {
	run     int
	odir    string
	memCfg  string
	dbName  string
	layout  string
	queue   int
	timeout time.Duration
	alert   time.Duration

	pmon bool
	freq time.Duration
}

func main() {
	var cfg config

	flag.IntVar(&cfg.run, "run", -1, "run number")
	flag.StringVar(&cfg.odir, "o", ".", "output dir")
	flag.StringVar(&cfg.memCfg, "mem", "", "path to memory spaces configuration file")
	flag.StringVar(&cfg.dbName, "db", "", "name of the database holding DAQ layouts")
	flag.IntVar(&cfg.queue, "queue", 64, "number of transfer queue slots")
	flag.DurationVar(&cfg.timeout, "timeout", 0, "duration of the run (0: until interrupted)")
	flag.DurationVar(&cfg.alert, "alert", 0, "probing interval of queue overloads for mail alerts (0: disabled)")
	flag.BoolVar(&cfg.pmon, "pmon", false, "enable pmon monitoring")
	flag.DurationVar(&cfg.freq, "freq", 1*time.Second, "pmon frequency")

	log.SetPrefix("xcp-run: ")
	log.SetFlags(0)

	flag.Parse()

	switch {
	case cfg.run < 0:
		log.Fatalf("invalid run number value")
	case flag.NArg() == 0 && cfg.dbName == "":
		flag.Usage()
		log.Fatalf("missing DAQ layout file or database")
	case flag.NArg() > 1:
		flag.Usage()
		log.Fatalf("too many DAQ layout files")
	}
	cfg.layout = flag.Arg(0)

	if v, _ := xcp.Version(); v != "" {
		log.Printf("version: %s", v)
	}

	err := run(context.Background(), cfg)
	if err != nil {
		log.Fatalf("could not run xcp-run: %+v", err)
	}
}

func run(ctx context.Context, cfg config) error {
	lay, err := loadLayout(ctx, cfg)
	if err != nil {
		return fmt.Errorf("could not load DAQ layout: %w", err)
	}

	mmap, err := mem.Load(cfg.memCfg)
	if err != nil {
		return fmt.Errorf("could not open target memory: %w", err)
	}
	defer mmap.Close()

	msg := log.New(os.Stdout, "xcp-run: ", 0)
	eng, err := daq.New(mmap, daq.WithQueueSize(cfg.queue), daq.WithLogger(msg))
	if err != nil {
		return fmt.Errorf("could not create DAQ engine: %w", err)
	}

	if cfg.pmon {
		p, err := pmon.Monitor(os.Getpid())
		if err != nil {
			return fmt.Errorf("could not start monitoring xcp-run: %w", err)
		}
		f, err := os.Create(filepath.Join(cfg.odir, fmt.Sprintf("xcp_run_%03d-pmon.log", cfg.run)))
		if err != nil {
			return fmt.Errorf("could not create pmon log file: %w", err)
		}
		defer f.Close()
		p.W = f
		p.Freq = cfg.freq

		go func() {
			log.Printf("run pmon...")
			err := p.Run()
			if err != nil {
				log.Printf("could not start monitoring: %+v", err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop monitoring: %+v", err)
			}
		}()
	}

	opts := []acq.Option{acq.WithLogger(msg)}
	if cfg.alert > 0 {
		opts = append(opts, acq.WithMonitor(cfg.alert, acq.NewAlerter().Alert))
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	srv := acq.NewStandalone(eng, lay, uint32(cfg.run), cfg.odir, opts...)
	err = srv.Run(ctx)
	if err != nil {
		return fmt.Errorf("could not run acquisition: %w", err)
	}
	log.Printf("output: %s", srv.Output())

	return nil
}

func loadLayout(ctx context.Context, cfg config) (daq.Layout, error) {
	if cfg.layout != "" {
		return daq.LoadLayout(cfg.layout)
	}

	db, err := conddb.Open(cfg.dbName)
	if err != nil {
		return daq.Layout{}, fmt.Errorf("could not open layouts db: %w", err)
	}
	defer db.Close()

	return db.LastLayout(ctx)
}
