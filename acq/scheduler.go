// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package acq runs a DAQ engine: it triggers the periodic event channels,
// drains the transfer queue into DTO streams and reports queue overloads.
package acq // import "github.com/go-lpc/xcp/acq"

import (
	"context"
	"log"
	"time"

	"github.com/go-lpc/xcp/daq"
	"golang.org/x/sync/errgroup"
)

// Scheduler triggers the periodic event channels of a DAQ engine.
type Scheduler struct {
	eng *daq.Engine
	msg *log.Logger
}

// NewScheduler returns a scheduler for the event channels of eng.
func NewScheduler(eng *daq.Engine, msg *log.Logger) *Scheduler {
	return &Scheduler{eng: eng, msg: msg}
}

// Run triggers every periodic event channel at its cycle time, until ctx
// is done. Sporadic channels are left to Trigger.
func (s *Scheduler) Run(ctx context.Context) error {
	var grp errgroup.Group
	for ch, evt := range s.eng.Events() {
		period := evt.Period()
		if period <= 0 {
			continue
		}
		ch := ch
		s.msg.Printf("scheduling event channel %d (%q) every %v", ch, evt.Name, period)
		grp.Go(func() error {
			s.tick(ctx, ch, period)
			return nil
		})
	}
	return grp.Wait()
}

// Trigger fires event channel ch once.
func (s *Scheduler) Trigger(ch int) {
	s.eng.TriggerEvent(ch)
}

func (s *Scheduler) tick(ctx context.Context, ch int, period time.Duration) {
	tck := time.NewTicker(period)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tck.C:
			s.eng.TriggerEvent(ch)
		}
	}
}
