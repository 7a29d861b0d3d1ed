// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert DTO streams to/from LCIO.
//
// Each DTO fragment is stored as an LCIO event holding a generic object
// collection "XCP_DTO", whose int32 payload is:
//
//	[list, pid, seq, timestamp, len(fragment), fragment bytes...]
//
// with the fragment bytes packed, little-endian, into int32 words.
// The first event also carries the stream header in its parameters.
package xcnv // import "github.com/go-lpc/xcp/internal/xcnv"

import (
	"encoding/binary"
	"fmt"
)

const (
	collName = "XCP_DTO"
	detName  = "XCP"

	parLayout = "XCP_LAYOUT"
	parStart  = "XCP_START"
	parTsUnit = "XCP_TS_UNIT"
	parTsSize = "XCP_TS_SIZE"

	nhdr  = 5 // number of int32 header words
	i32sz = 4
)

func i32sFrom(dst []int32, list int, pid int, seq uint8, ts uint32, frag []byte) []int32 {
	n := nhdr + (len(frag)+i32sz-1)/i32sz
	if cap(dst) < n {
		dst = make([]int32, n)
	}
	dst = dst[:n]
	dst[0] = int32(list)
	dst[1] = int32(pid)
	dst[2] = int32(seq)
	dst[3] = int32(ts)
	dst[4] = int32(len(frag))

	var word [i32sz]byte
	for i := 0; i < len(frag); i += i32sz {
		word = [i32sz]byte{}
		copy(word[:], frag[i:])
		dst[nhdr+i/i32sz] = int32(binary.LittleEndian.Uint32(word[:]))
	}
	return dst
}

func bytesFromI32s(dst []byte, raw []int32) ([]byte, error) {
	if len(raw) < nhdr {
		return dst, fmt.Errorf("xcnv: invalid %s payload (len=%d)", collName, len(raw))
	}
	n := int(raw[4])
	if n < 0 || (n+i32sz-1)/i32sz != len(raw)-nhdr {
		return dst, fmt.Errorf("xcnv: invalid %s fragment length %d (words=%d)", collName, n, len(raw)-nhdr)
	}

	var word [i32sz]byte
	for _, v := range raw[nhdr:] {
		binary.LittleEndian.PutUint32(word[:], uint32(v))
		dst = append(dst, word[:]...)
	}
	return dst[:len(dst)-(len(raw)-nhdr)*i32sz+n], nil
}
