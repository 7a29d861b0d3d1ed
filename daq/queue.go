// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"sync/atomic"
)

// Queue is a bounded single-producer/single-consumer queue of fragments.
//
// Enqueue is called by one producer (the trigger path) and Dequeue by one
// consumer (the transport). The write index is only stored by the producer
// and the read index only by the consumer.
type Queue struct {
	slots []slot

	r  atomic.Uint64 // read index, owned by the consumer
	w  atomic.Uint64 // write index, owned by the producer
	ov atomic.Bool   // sticky overload flag
}

type slot struct {
	n   int
	buf []byte
}

// NewQueue creates a queue of n slots, each holding up to size bytes.
func NewQueue(n, size int) *Queue {
	q := &Queue{
		slots: make([]slot, n),
	}
	for i := range q.slots {
		q.slots[i].buf = make([]byte, size)
	}
	return q
}

// Init resets the queue to its empty state and clears the overload flag.
// It must not be called concurrently with Enqueue or Dequeue.
func (q *Queue) Init() {
	q.r.Store(0)
	q.w.Store(0)
	q.ov.Store(false)
}

// Cap returns the number of slots of the queue.
func (q *Queue) Cap() int { return len(q.slots) }

// Size returns the maximum size of a fragment.
func (q *Queue) Size() int {
	if len(q.slots) == 0 {
		return 0
	}
	return len(q.slots[0].buf)
}

// Len returns the number of queued fragments.
func (q *Queue) Len() int {
	return int(q.w.Load() - q.r.Load())
}

// Enqueue copies p into the next free slot.
// Enqueue returns false and sets the overload flag if the queue is full.
// Enqueue also returns false, without setting the overload flag, if p
// does not fit in a slot.
func (q *Queue) Enqueue(p []byte) bool {
	var (
		w = q.w.Load()
		r = q.r.Load()
		n = uint64(len(q.slots))
	)
	if w-r >= n {
		q.ov.Store(true)
		return false
	}

	s := &q.slots[w%n]
	if len(p) > len(s.buf) {
		return false
	}
	s.n = copy(s.buf, p)
	q.w.Store(w + 1)
	return true
}

// Dequeue appends the oldest fragment to dst and returns the extended
// buffer. Dequeue returns false if the queue is empty.
func (q *Queue) Dequeue(dst []byte) ([]byte, bool) {
	var (
		r = q.r.Load()
		w = q.w.Load()
		n = uint64(len(q.slots))
	)
	if r == w {
		return dst, false
	}

	s := &q.slots[r%n]
	dst = append(dst, s.buf[:s.n]...)
	q.r.Store(r + 1)
	return dst, true
}

// Overload reports whether a fragment has been dropped because the queue
// was full, since the last call to ClearOverload or Init.
func (q *Queue) Overload() bool { return q.ov.Load() }

// ClearOverload clears the overload flag.
func (q *Queue) ClearOverload() { q.ov.Store(false) }
