// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"errors"
	"fmt"
)

var (
	ErrSequence   = errors.New("daq: sequence error")
	ErrCapacity   = errors.New("daq: memory overflow")
	ErrOutOfRange = errors.New("daq: out of range")

	errListConfig = errors.New("daq: invalid DAQ list configuration")
)

// SequenceError is returned when an allocation request is issued in a state
// where the allocation order forbids it.
type SequenceError struct {
	State AllocState
	Op    AllocOp
	Msg   string // optional detail
}

func (err *SequenceError) Error() string {
	if err.Msg != "" {
		return fmt.Sprintf("daq: %s not allowed in state %s: %s", err.Op, err.State, err.Msg)
	}
	return fmt.Sprintf("daq: %s not allowed in state %s", err.Op, err.State)
}

func (err *SequenceError) Is(target error) bool { return target == ErrSequence }

// CapacityError is returned when an allocation would not fit in the arena.
type CapacityError struct {
	Op        AllocOp
	Requested int // number of entities requested
	Used      int // number of entities already allocated
	Capacity  int
}

func (err *CapacityError) Error() string {
	return fmt.Sprintf(
		"daq: %s of %d entities exceeds capacity (used=%d, cap=%d)",
		err.Op, err.Requested, err.Used, err.Capacity,
	)
}

func (err *CapacityError) Is(target error) bool { return target == ErrCapacity }

// OutOfRangeError is returned when a list, ODT, entry or parameter lies
// outside of what has been allocated or configured.
type OutOfRangeError struct {
	What  string
	Index int
	Max   int // exclusive upper bound
}

func (err *OutOfRangeError) Error() string {
	return fmt.Sprintf("daq: %s %d out of range [0, %d)", err.What, err.Index, err.Max)
}

func (err *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

func outOfRange(what string, i, max int) error {
	return &OutOfRangeError{What: what, Index: i, Max: max}
}
