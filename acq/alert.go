// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/xcp/daq"
	mail "gopkg.in/gomail.v2"
)

const maxAlerts = 5

// Alerter sends mail alerts.
type Alerter struct {
	Usr  string
	Pwd  string
	Srv  string
	Port int
	Tgts []string

	Max int // maximum number of alerts to send

	n    int
	send func(m *mail.Message) error
}

// NewAlerter creates an alerter from the MAIL_USERNAME, MAIL_PASSWORD,
// MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment variables.
func NewAlerter() *Alerter {
	port, _ := strconv.Atoi(os.Getenv("MAIL_PORT"))
	a := &Alerter{
		Usr:  os.Getenv("MAIL_USERNAME"),
		Pwd:  os.Getenv("MAIL_PASSWORD"),
		Srv:  os.Getenv("MAIL_SERVER"),
		Port: port,
		Max:  maxAlerts,
	}
	if v := os.Getenv("MAIL_TGTS"); v != "" {
		a.Tgts = strings.Split(v, ",")
	}
	a.send = a.dial
	return a
}

func (a *Alerter) dial(m *mail.Message) error {
	dial := mail.NewDialer(a.Srv, a.Port, a.Usr, a.Pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	return dial.DialAndSend(m)
}

// Alert sends a mail with the provided subject and body.
// Alerts past the Max-th one are silently discarded.
func (a *Alerter) Alert(subject, body string) error {
	if a.Usr == "" || a.Pwd == "" || a.Srv == "" || a.Port == 0 || len(a.Tgts) == 0 {
		return fmt.Errorf("acq: could not send mail alert: missing credentials")
	}
	if a.Max > 0 && a.n >= a.Max {
		return nil
	}
	a.n++

	msg := mail.NewMessage()
	msg.SetHeader("From", a.Usr)
	msg.SetHeader("Bcc", a.Tgts...)
	msg.SetHeader("Subject", "[xcp] "+subject)
	msg.SetBody("text/plain", body)

	err := a.send(msg)
	if err != nil {
		return fmt.Errorf("acq: could not send mail alert: %w", err)
	}
	return nil
}

// Monitor watches the transfer queue of a DAQ engine for overloads.
type Monitor struct {
	eng   *daq.Engine
	freq  time.Duration
	msg   *log.Logger
	alert func(subject, body string) error

	n int // number of overloads seen
}

// NewMonitor returns a monitor probing eng every freq.
// alert may be nil.
func NewMonitor(eng *daq.Engine, freq time.Duration, msg *log.Logger, alert func(subject, body string) error) *Monitor {
	if freq <= 0 {
		freq = defaultFreq
	}
	return &Monitor{eng: eng, freq: freq, msg: msg, alert: alert}
}

// Run probes the queue until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	tck := time.NewTicker(m.freq)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tck.C:
			m.check()
		}
	}
}

func (m *Monitor) check() bool {
	q := m.eng.Queue()
	if !q.Overload() {
		return false
	}
	q.ClearOverload()
	m.n++

	stats := m.eng.Stats()
	m.msg.Printf("queue overload (fragments=%d, dropped=%d, errors=%d)",
		stats.Fragments, stats.Overloads, stats.Errors,
	)
	if m.alert == nil {
		return true
	}
	err := m.alert(
		"queue overload",
		fmt.Sprintf(
			"fragments: %d\ndropped:   %d\nerrors:    %d\nqueue:     %d slots\nfreq:      %v",
			stats.Fragments, stats.Overloads, stats.Errors, q.Cap(), m.freq,
		),
	)
	if err != nil {
		m.msg.Printf("could not send overload alert: %+v", err)
	}
	return true
}

// N returns the number of overloads seen so far.
func (m *Monitor) N() int { return m.n }
