// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to retrieve DAQ configurations (layouts of
// DAQ lists and event channel definitions) from the configuration database.
package conddb // import "github.com/go-lpc/xcp/conddb"

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-lpc/xcp/daq"
	_ "github.com/go-sql-driver/mysql"
)

var (
	host = "localhost"
	usr  = "username"
	pwd  = "s3cr3t"

	drvName = "mysql"
)

const timeout = 5 * time.Second

// DB exposes convenience methods to easily retrieve DAQ configurations
// from the database.
type DB struct {
	db   *sql.DB
	name string // name of the database
}

// Open opens a connection to the database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

// Name returns the name of the database.
func (db *DB) Name() string { return db.name }

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastLayout returns the most recently stored DAQ layout.
func (db *DB) LastLayout(ctx context.Context) (daq.Layout, error) {
	return db.layout(
		ctx, "last layout",
		"SELECT name, layout FROM daqlayouts ORDER BY datetime DESC LIMIT 1",
	)
}

// Layout returns the most recent version of the DAQ layout name.
func (db *DB) Layout(ctx context.Context, name string) (daq.Layout, error) {
	return db.layout(
		ctx, fmt.Sprintf("layout %q", name),
		"SELECT name, layout FROM daqlayouts WHERE name=? ORDER BY datetime DESC LIMIT 1",
		name,
	)
}

func (db *DB) layout(ctx context.Context, what, query string, args ...interface{}) (daq.Layout, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		lay   daq.Layout
		name  string
		raw   []byte
		found = false
	)
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return lay, fmt.Errorf("conddb: could not query %s: %w", what, err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&name, &raw)
		if err != nil {
			return lay, fmt.Errorf("conddb: could not get %s value: %w", what, err)
		}
		found = true
	}

	if err := rows.Err(); err != nil {
		return lay, fmt.Errorf("conddb: could not scan db for %s: %w", what, err)
	}

	if err := ctx.Err(); err != nil {
		return lay, fmt.Errorf("conddb: context error while retrieving %s: %w", what, err)
	}

	if !found {
		return lay, fmt.Errorf("conddb: could not find %s: %w", what, sql.ErrNoRows)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	err = dec.Decode(&lay)
	if err != nil {
		return lay, fmt.Errorf("conddb: could not decode %s: %w", what, err)
	}
	lay.Name = name

	return lay, nil
}

// Layouts returns the names of all the stored DAQ layouts.
func (db *DB) Layouts(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var names []string
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT DISTINCT name FROM daqlayouts ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query layout names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return names, fmt.Errorf("conddb: could not scan layout name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return names, fmt.Errorf("conddb: could not scan db for layout names: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return names, fmt.Errorf("conddb: context error while retrieving layout names: %w", err)
	}

	return names, nil
}

// Events returns the event channel definitions, ordered by channel number.
func (db *DB) Events(ctx context.Context) ([]daq.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var evts []daq.Event
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name, kind, unit, cycle FROM daqevents ORDER BY channel",
	)
	if err != nil {
		return nil, fmt.Errorf(
			"conddb: could not run daqevents query: %w",
			err,
		)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			evt  daq.Event
			kind uint8
			unit uint8
		)
		err = rows.Scan(&evt.Name, &kind, &unit, &evt.Cycle)
		if err != nil {
			return evts, fmt.Errorf(
				"conddb: could not scan daqevents: %w",
				err,
			)
		}
		evt.Kind = daq.EventKind(kind)
		evt.Unit = daq.TimestampUnit(unit)
		evts = append(evts, evt)
	}

	if err := rows.Err(); err != nil {
		return evts, fmt.Errorf(
			"conddb: could not scan db for daqevents: %w",
			err,
		)
	}

	if err := ctx.Err(); err != nil {
		return evts, fmt.Errorf(
			"conddb: context error while retrieving daqevents: %w",
			err,
		)
	}

	return evts, nil
}
