// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/xcp/daq"
	"golang.org/x/sync/errgroup"
)

// LayoutStore provides stored DAQ layouts.
type LayoutStore interface {
	LastLayout(ctx context.Context) (daq.Layout, error)
	Layout(ctx context.Context, name string) (daq.Layout, error)
}

// Server is a run-control node driving a DAQ engine.
//
// The /config command takes a string argument selecting the DAQ layout:
// a layout file name, "db:<name>" for a named layout of the store, or
// an empty string for the latest layout of the store.
// Sampled fragments are published on the /dto output.
type Server struct {
	cfg config

	newEngine func() (*daq.Engine, error)
	db        LayoutStore

	eng *daq.Engine
	lay daq.Layout
	ok  bool // whether a layout has been loaded
}

// NewServer returns a run-control server creating its DAQ engine with
// newEngine. db may be nil.
func NewServer(newEngine func() (*daq.Engine, error), db LayoutStore, opts ...Option) *Server {
	return &Server{
		cfg:       newConfig(opts),
		newEngine: newEngine,
		db:        db,
	}
}

// Engine returns the current DAQ engine, or nil before /init.
func (srv *Server) Engine() *daq.Engine { return srv.eng }

func (srv *Server) loadLayout(ctx context.Context, src string) (daq.Layout, error) {
	switch {
	case src == "":
		if srv.db == nil {
			return daq.Layout{}, fmt.Errorf("no layout store")
		}
		return srv.db.LastLayout(ctx)
	case strings.HasPrefix(src, "db:"):
		if srv.db == nil {
			return daq.Layout{}, fmt.Errorf("no layout store")
		}
		return srv.db.Layout(ctx, strings.TrimPrefix(src, "db:"))
	default:
		return daq.LoadLayout(src)
	}
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	var src string
	if len(req.Body) > 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		src = dec.ReadStr()
	}

	lay, err := srv.loadLayout(ctx.Ctx, src)
	if err != nil {
		ctx.Msg.Errorf("could not load DAQ layout %q: %+v", src, err)
		return fmt.Errorf("could not load DAQ layout %q: %w", src, err)
	}
	srv.lay = lay
	srv.ok = true
	ctx.Msg.Infof("loaded DAQ layout %q (lists=%d, entities=%d)", lay.Name, len(lay.Lists), lay.Size())

	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	if !srv.ok {
		ctx.Msg.Errorf("no DAQ layout loaded")
		return fmt.Errorf("no DAQ layout loaded")
	}

	if srv.eng == nil {
		eng, err := srv.newEngine()
		if err != nil {
			ctx.Msg.Errorf("could not create DAQ engine: %+v", err)
			return fmt.Errorf("could not create DAQ engine: %w", err)
		}
		srv.eng = eng
	}

	err := srv.eng.Configure(srv.lay)
	if err != nil {
		ctx.Msg.Errorf("could not configure DAQ engine: %+v", err)
		return fmt.Errorf("could not configure DAQ engine: %w", err)
	}
	ctx.Msg.Infof("DAQ engine: %v", srv.eng.ProcessorState())

	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	if srv.eng != nil {
		srv.eng.Reset()
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.eng == nil {
		ctx.Msg.Errorf("DAQ engine not initialized")
		return fmt.Errorf("DAQ engine not initialized")
	}

	for i := 0; i < srv.eng.ListCount(); i++ {
		err := srv.eng.StartStopList(i, daq.Select)
		if err != nil {
			ctx.Msg.Errorf("could not select DAQ list %d: %+v", i, err)
			return fmt.Errorf("could not select DAQ list %d: %w", i, err)
		}
	}

	srv.eng.Queue().Init()
	err := srv.eng.StartSelected()
	if err != nil {
		ctx.Msg.Errorf("could not start DAQ lists: %+v", err)
		return fmt.Errorf("could not start DAQ lists: %w", err)
	}

	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	if srv.eng == nil {
		return nil
	}
	srv.eng.StopAll()
	stats := srv.eng.Stats()
	ctx.Msg.Infof("fragments=%d dropped=%d errors=%d",
		stats.Fragments, stats.Overloads, stats.Errors,
	)
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	if srv.eng != nil {
		srv.eng.StopAll()
	}
	return nil
}

// DTO publishes the next fragment of the transfer queue.
func (srv *Server) DTO(ctx tdaq.Context, dst *tdaq.Frame) error {
	tck := time.NewTicker(srv.cfg.poll)
	defer tck.Stop()

	for {
		if srv.eng != nil {
			if frag, ok := srv.eng.Queue().Dequeue(nil); ok {
				dst.Body = frag
				return nil
			}
		}
		select {
		case <-ctx.Ctx.Done():
			dst.Body = nil
			return nil
		case <-tck.C:
		}
	}
}

// Run triggers the periodic event channels and monitors the transfer
// queue, until the run is stopped.
func (srv *Server) Run(ctx tdaq.Context) error {
	if srv.eng == nil {
		return fmt.Errorf("DAQ engine not initialized")
	}

	var (
		grp   errgroup.Group
		sched = NewScheduler(srv.eng, srv.cfg.msg)
		mon   = NewMonitor(srv.eng, srv.cfg.freq, srv.cfg.msg, srv.cfg.alert)
	)
	grp.Go(func() error { return sched.Run(ctx.Ctx) })
	grp.Go(func() error { return mon.Run(ctx.Ctx) })

	err := grp.Wait()
	if err != nil {
		ctx.Msg.Errorf("could not run acquisition: %+v", err)
		return err
	}
	ctx.Msg.Infof("overloads: %d", mon.N())
	return nil
}
