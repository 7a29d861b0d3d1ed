// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dtofile

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// Encoder writes a stream of DTO fragments.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
	hdr bool
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 8),
	}
}

// WriteHeader writes the stream header. It must be called once, before
// any fragment is written.
func (enc *Encoder) WriteHeader(hdr Header) error {
	if enc.hdr {
		return fmt.Errorf("dtofile: header already written")
	}
	raw, err := json.Marshal(hdr.Layout)
	if err != nil {
		return fmt.Errorf("dtofile: could not encode layout: %w", err)
	}

	enc.write([]byte(magic))
	enc.writeU8(version)
	enc.writeU8(uint8(hdr.TsUnit))
	enc.writeU8(uint8(hdr.TsSize))
	enc.writeU8(0)
	enc.writeU32(hdr.Run)
	enc.writeU64(uint64(hdr.Start.UnixNano()))
	enc.writeU32(uint32(len(raw)))
	enc.write(raw)
	if enc.err != nil {
		return fmt.Errorf("dtofile: could not write header: %w", enc.err)
	}
	enc.hdr = true
	return nil
}

// Write writes one fragment to the stream.
func (enc *Encoder) Write(frag []byte) error {
	if !enc.hdr {
		return fmt.Errorf("dtofile: missing header")
	}
	if len(frag) > math.MaxUint16 {
		return fmt.Errorf("dtofile: fragment too large (len=%d)", len(frag))
	}
	enc.writeU16(uint16(len(frag)))
	enc.write(frag)
	if enc.err != nil {
		return fmt.Errorf("dtofile: could not write fragment: %w", enc.err)
	}
	return nil
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
}

func (enc *Encoder) writeU8(v uint8) {
	enc.buf[0] = v
	enc.write(enc.buf[:1])
}

func (enc *Encoder) writeU16(v uint16) {
	const n = 2
	binary.LittleEndian.PutUint16(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeU32(v uint32) {
	const n = 4
	binary.LittleEndian.PutUint32(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}

func (enc *Encoder) writeU64(v uint64) {
	const n = 8
	binary.LittleEndian.PutUint64(enc.buf[:n], v)
	enc.write(enc.buf[:n])
}
