// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command xcp-sql inspects the DAQ layouts and event channels stored in
// the configuration database.
package main // import "github.com/go-lpc/xcp/cmd/xcp-sql"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-lpc/xcp/conddb"
	"github.com/go-lpc/xcp/daq"
	"gopkg.in/yaml.v3"
)

const (
	dbname = "xcpdb"
)

func main() {
	log.SetPrefix("xcp-sql: ")
	log.SetFlags(0)

	var (
		name   = flag.String("db", dbname, "name of the database")
		layout = flag.String("layout", "", "DAQ layout to inspect (default: latest)")
	)

	flag.Parse()

	log.Printf("db:     %q", *name)
	log.Printf("layout: %q", *layout)

	db, err := conddb.Open(*name)
	if err != nil {
		log.Fatalf("could not open XCP db: %+v", err)
	}
	defer db.Close()

	err = doQuery(db, *layout)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

func doQuery(db *conddb.DB, name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	names, err := db.Layouts(ctx)
	if err != nil {
		return fmt.Errorf("could not list DAQ layouts: %w", err)
	}
	log.Printf("layouts: %d", len(names))
	for i, name := range names {
		log.Printf("row[%d]: %q", i, name)
	}

	evts, err := db.Events(ctx)
	if err != nil {
		return fmt.Errorf("could not retrieve event channels: %w", err)
	}
	log.Printf("events: %d", len(evts))
	for i, evt := range evts {
		log.Printf("row[%d]: %q kind=0x%02x period=%v", i, evt.Name, evt.Kind, evt.Period())
	}

	var lay daq.Layout
	switch name {
	case "":
		lay, err = db.LastLayout(ctx)
	default:
		lay, err = db.Layout(ctx, name)
	}
	if err != nil {
		return fmt.Errorf("could not get DAQ layout %q: %w", name, err)
	}
	log.Printf("layout %q: lists=%d, entities=%d", lay.Name, len(lay.Lists), lay.Size())

	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	err = enc.Encode(lay)
	if err != nil {
		return fmt.Errorf("could not encode DAQ layout: %w", err)
	}

	return nil
}
