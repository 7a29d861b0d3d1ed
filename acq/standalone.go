// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-lpc/xcp/daq"
	"github.com/go-lpc/xcp/internal/dtofile"
	"golang.org/x/sync/errgroup"
)

// Standalone runs a DAQ engine without a run-control, writing the
// sampled fragments to a DTO file.
type Standalone struct {
	eng  *daq.Engine
	lay  daq.Layout
	run  uint32
	odir string

	cfg  config
	msg  *log.Logger
	stop chan os.Signal
}

// NewStandalone returns a standalone runner for run number run, that
// writes its DTO file under odir.
func NewStandalone(eng *daq.Engine, lay daq.Layout, run uint32, odir string, opts ...Option) *Standalone {
	cfg := newConfig(opts)
	return &Standalone{
		eng:  eng,
		lay:  lay,
		run:  run,
		odir: odir,
		cfg:  cfg,
		msg:  cfg.msg,
		stop: make(chan os.Signal, 1),
	}
}

// Output returns the name of the DTO file of the run.
func (srv *Standalone) Output() string {
	return filepath.Join(srv.odir, fmt.Sprintf("xcp_daq_%03d.dto", srv.run))
}

// Run configures the engine, starts its DAQ lists and samples until ctx
// is done or an interrupt (or SIGUSR1) is received.
func (srv *Standalone) Run(ctx context.Context) error {
	signal.Notify(srv.stop, os.Interrupt, syscall.SIGUSR1)
	defer signal.Stop(srv.stop)

	eng := srv.eng
	err := eng.Configure(srv.lay)
	if err != nil {
		return fmt.Errorf("acq: could not configure DAQ engine: %w", err)
	}

	f, err := os.Create(srv.Output())
	if err != nil {
		return fmt.Errorf("acq: could not create output DTO file: %w", err)
	}
	defer f.Close()

	var (
		w   = bufio.NewWriter(f)
		enc = dtofile.NewEncoder(w)
	)

	unit, size := eng.Timestamp()
	err = enc.WriteHeader(dtofile.Header{
		Run:    srv.run,
		Start:  time.Now().UTC(),
		TsUnit: unit,
		TsSize: size,
		Layout: srv.lay,
	})
	if err != nil {
		return fmt.Errorf("acq: could not write DTO header: %w", err)
	}

	eng.Queue().Init()
	err = eng.StartSelected()
	if err != nil {
		return fmt.Errorf("acq: could not start DAQ lists: %w", err)
	}
	srv.msg.Printf("run %d: started %d DAQ list(s) (state=%v)", srv.run, eng.ListCount(), eng.ProcessorState())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		grp, gctx = errgroup.WithContext(ctx)
		sched     = NewScheduler(eng, srv.msg)
		drain     = NewDrainer(eng.Queue(), enc, srv.cfg.poll)
		mon       = NewMonitor(eng, srv.cfg.freq, srv.msg, srv.cfg.alert)
	)
	grp.Go(func() error { return sched.Run(gctx) })
	grp.Go(func() error { return drain.Run(gctx) })
	grp.Go(func() error { return mon.Run(gctx) })
	grp.Go(func() error {
		select {
		case <-srv.stop:
			srv.msg.Printf("stopping acquisition...")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	err = grp.Wait()
	eng.StopAll()
	if err != nil {
		return fmt.Errorf("acq: could not run acquisition: %w", err)
	}

	err = drain.Flush()
	if err != nil {
		return fmt.Errorf("acq: could not flush transfer queue: %w", err)
	}
	mon.check()

	err = w.Flush()
	if err != nil {
		return fmt.Errorf("acq: could not flush output DTO file: %w", err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("acq: could not close output DTO file: %w", err)
	}

	stats := eng.Stats()
	srv.msg.Printf("run %d: %d DTO(s) written, %d dropped, %d error(s), %d overload(s)",
		srv.run, drain.N(), stats.Overloads, stats.Errors, mon.N(),
	)
	return nil
}
