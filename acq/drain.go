// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"context"
	"fmt"
	"time"

	"github.com/go-lpc/xcp/daq"
	"github.com/go-lpc/xcp/internal/dtofile"
)

// Drainer moves DTO fragments from a transfer queue to a DTO stream.
// A Drainer is the single consumer of its queue: Run and Flush must not be
// called concurrently.
type Drainer struct {
	q    *daq.Queue
	enc  *dtofile.Encoder
	poll time.Duration

	buf []byte
	n   int
}

// NewDrainer returns a drainer polling q every poll.
func NewDrainer(q *daq.Queue, enc *dtofile.Encoder, poll time.Duration) *Drainer {
	if poll <= 0 {
		poll = defaultPoll
	}
	return &Drainer{
		q:    q,
		enc:  enc,
		poll: poll,
		buf:  make([]byte, 0, q.Size()),
	}
}

// Run drains the queue until ctx is done.
func (d *Drainer) Run(ctx context.Context) error {
	tck := time.NewTicker(d.poll)
	defer tck.Stop()

	for {
		err := d.Flush()
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tck.C:
		}
	}
}

// Flush writes all the fragments currently in the queue.
func (d *Drainer) Flush() error {
	for {
		var ok bool
		d.buf, ok = d.q.Dequeue(d.buf[:0])
		if !ok {
			return nil
		}
		err := d.enc.Write(d.buf)
		if err != nil {
			return fmt.Errorf("acq: could not write DTO %d: %w", d.n, err)
		}
		d.n++
	}
}

// N returns the number of fragments written so far.
func (d *Drainer) N() int { return d.n }
