// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command xcp-daq starts a TDAQ run-control node driving an XCP DAQ engine.
//
// The DAQ layout is selected with the /config command; sampled DTO
// fragments are published on the /dto output.
package main // import "github.com/go-lpc/xcp/cmd/xcp-daq"

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/xcp"
	"github.com/go-lpc/xcp/acq"
	"github.com/go-lpc/xcp/conddb"
	"github.com/go-lpc/xcp/daq"
	"github.com/go-lpc/xcp/mem"
)

var (
	memCfg = flag.String("mem", "", "path to memory spaces configuration file")
	dbName = flag.String("db", "", "name of the database holding DAQ layouts")
	qsize  = flag.Int("queue", 64, "number of transfer queue slots")
	alert  = flag.Duration("alert", 0, "probing interval of queue overloads for mail alerts (0: disabled)")
)

func main() {
	cmd := flags.New()
	msg := log.New(os.Stdout, "xcp-daq: ", 0)
	if v, _ := xcp.Version(); v != "" {
		msg.Printf("version: %s", v)
	}

	mmap, err := mem.Load(*memCfg)
	if err != nil {
		msg.Fatalf("could not open target memory: %+v", err)
	}
	defer mmap.Close()

	var db acq.LayoutStore
	if *dbName != "" {
		cdb, err := conddb.Open(*dbName)
		if err != nil {
			msg.Fatalf("could not open layouts db: %+v", err)
		}
		defer cdb.Close()
		db = cdb
	}

	opts := []acq.Option{acq.WithLogger(msg)}
	if *alert > 0 {
		opts = append(opts, acq.WithMonitor(*alert, acq.NewAlerter().Alert))
	}

	dev := acq.NewServer(func() (*daq.Engine, error) {
		return daq.New(mmap, daq.WithQueueSize(*qsize), daq.WithLogger(msg))
	}, db, opts...)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/dto", dev.DTO)

	srv.RunHandle(dev.Run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
