// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"fmt"
	"io"
	"sync"
)

// RAM is an in-memory space that may be written while being sampled.
type RAM struct {
	mu  sync.RWMutex
	buf []byte
}

// NewRAM returns a zeroed RAM space of n bytes.
func NewRAM(n int) *RAM {
	return &RAM{buf: make([]byte, n)}
}

// Len returns the size of the RAM space.
func (ram *RAM) Len() int { return len(ram.buf) }

// ReadAt implements io.ReaderAt.
func (ram *RAM) ReadAt(p []byte, off int64) (int, error) {
	ram.mu.RLock()
	defer ram.mu.RUnlock()

	if off < 0 || off > int64(len(ram.buf)) {
		return 0, fmt.Errorf("mem: invalid ReadAt offset %d", off)
	}
	n := copy(p, ram.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (ram *RAM) WriteAt(p []byte, off int64) (int, error) {
	ram.mu.Lock()
	defer ram.mu.Unlock()

	if off < 0 || off > int64(len(ram.buf)) {
		return 0, fmt.Errorf("mem: invalid WriteAt offset %d", off)
	}
	n := copy(ram.buf[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

var (
	_ io.ReaderAt = (*RAM)(nil)
	_ io.WriterAt = (*RAM)(nil)
)
