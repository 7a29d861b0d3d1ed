// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"log"
	"os"
	"time"
)

const (
	defaultPoll = 10 * time.Millisecond
	defaultFreq = 1 * time.Second
)

type config struct {
	msg   *log.Logger
	poll  time.Duration // queue polling interval
	freq  time.Duration // overload probing interval
	alert func(subject, body string) error
}

func newConfig(opts []Option) config {
	cfg := config{
		msg:  log.New(os.Stdout, "acq: ", 0),
		poll: defaultPoll,
		freq: defaultFreq,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures a standalone runner or a run-control server.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithPoll sets the polling interval of the transfer queue.
func WithPoll(d time.Duration) Option {
	return func(cfg *config) {
		cfg.poll = d
	}
}

// WithMonitor sets the probing interval of queue overloads, and the
// function called when an overload is detected.
func WithMonitor(freq time.Duration, alert func(subject, body string) error) Option {
	return func(cfg *config) {
		cfg.freq = freq
		cfg.alert = alert
	}
}
