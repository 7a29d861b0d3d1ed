// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dtofile

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-lpc/xcp/daq"
)

// Decoder reads a stream of DTO fragments.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
	hdr bool
}

// NewDecoder returns a new Decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 8),
	}
}

// ReadHeader reads the stream header.
func (dec *Decoder) ReadHeader() (Header, error) {
	var hdr Header
	if dec.hdr {
		return hdr, fmt.Errorf("dtofile: header already read")
	}

	dec.load(len(magic))
	if dec.err != nil {
		return hdr, fmt.Errorf("dtofile: could not read magic: %w", dec.err)
	}
	if !bytes.Equal(dec.buf[:len(magic)], []byte(magic)) {
		return hdr, fmt.Errorf("dtofile: invalid magic %q", dec.buf[:len(magic)])
	}

	vers := dec.readU8()
	if dec.err == nil && vers != version {
		return hdr, fmt.Errorf("dtofile: invalid version %d", vers)
	}
	hdr.TsUnit = daq.TimestampUnit(dec.readU8())
	hdr.TsSize = int(dec.readU8())
	_ = dec.readU8()
	hdr.Run = dec.readU32()
	hdr.Start = time.Unix(0, int64(dec.readU64())).UTC()
	n := dec.readU32()
	if dec.err != nil {
		return hdr, fmt.Errorf("dtofile: could not read header: %w", unexpected(dec.err))
	}
	if n > maxLayout {
		return hdr, fmt.Errorf("dtofile: invalid layout size %d", n)
	}
	dec.load(int(n))
	if dec.err != nil {
		return hdr, fmt.Errorf("dtofile: could not read layout: %w", unexpected(dec.err))
	}
	err := json.Unmarshal(dec.buf[:n], &hdr.Layout)
	if err != nil {
		return hdr, fmt.Errorf("dtofile: could not decode layout: %w", err)
	}

	dec.hdr = true
	return hdr, nil
}

// Next reads the next fragment of the stream into dst and returns it.
// Next returns io.EOF at the end of the stream.
func (dec *Decoder) Next(dst []byte) ([]byte, error) {
	if !dec.hdr {
		return dst, fmt.Errorf("dtofile: missing header")
	}
	n := dec.readU16()
	if dec.err != nil {
		if errors.Is(dec.err, io.EOF) {
			return dst, io.EOF
		}
		return dst, fmt.Errorf("dtofile: could not read fragment length: %w", dec.err)
	}
	dec.load(int(n))
	if dec.err != nil {
		return dst, fmt.Errorf("dtofile: could not read fragment: %w", unexpected(dec.err))
	}
	return append(dst, dec.buf[:n]...), nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (dec *Decoder) readU8() uint8 {
	dec.load(1)
	return dec.buf[:1][0]
}

func (dec *Decoder) readU16() uint16 {
	const n = 2
	dec.load(n)
	return binary.LittleEndian.Uint16(dec.buf[:n])
}

func (dec *Decoder) readU32() uint32 {
	const n = 4
	dec.load(n)
	return binary.LittleEndian.Uint32(dec.buf[:n])
}

func (dec *Decoder) readU64() uint64 {
	const n = 8
	dec.load(n)
	return binary.LittleEndian.Uint64(dec.buf[:n])
}

func (dec *Decoder) load(n int) {
	if dec.err != nil {
		return
	}
	if cap(dec.buf) < n {
		dec.buf = append(dec.buf[:len(dec.buf)], make([]byte, n-len(dec.buf))...)
	}
	dec.buf = dec.buf[:n]
	_, dec.err = io.ReadFull(dec.r, dec.buf[:n])
}
