/*
Copyright 2025 The ReplGate Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package sqliteinst implements the instance.Client contract over
// sqlite (pure Go, no cgo), for single-node development and for tests
// that want a real database without a server.
//
// There is no replication here: every instance owns its own database
// file, and a "replica" advances only when something external applies
// writes to it. Tests use that to stage exact watermark scenarios.
package sqliteinst

import (
	"context"
	"database/sql"
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/instance"
	"github.com/replgate/replgate/go/rg/rgerrors"
	"github.com/replgate/replgate/go/rg/sqlutil"
)

const (
	readWatermarkQuery = "select seq from replgate_watermark where id = 1"
	bumpWatermarkQuery = "update replgate_watermark set seq = seq + 1 where id = 1"
)

var schemaStatements = []string{
	`create table if not exists replgate_watermark (
		id integer not null primary key,
		seq integer not null
	)`,
	"insert or ignore into replgate_watermark (id, seq) values (1, 0)",
}

// Client talks to a single sqlite database.
type Client struct {
	inst *instance.Instance
	db   *sql.DB
}

var _ instance.Client = (*Client)(nil)

// New returns a client for the given instance over the given sqlite
// DSN (a file path, or a file: URI).
func New(inst *instance.Instance, dsn string) (*Client, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, rgerrors.Errorf(rgerrors.InvalidArgument, "instance %s: %v", inst.ID, err)
	}
	// Serialize access; sqlite handles one writer at a time.
	db.SetMaxOpenConns(1)

	return &Client{inst: inst, db: db}, nil
}

// EnsureSchema creates the watermark table and seeds its single row.
// Unlike MySQL there is no replication to carry the schema over, so
// this applies to every role.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := sqlutil.ExecNoPrepare(ctx, c.db, stmt); err != nil {
			return c.classifyErr(err)
		}
	}
	return nil
}

// Probe implements instance.Client.
func (c *Client) Probe(ctx context.Context) (bookmark.Watermark, error) {
	return c.readWatermark(ctx, c.db)
}

// Execute implements instance.Client.
func (c *Client) Execute(ctx context.Context, op *instance.Operation) (*instance.Result, bookmark.Watermark, error) {
	if op.Write && !c.inst.IsPrimary() {
		return nil, 0, rgerrors.Wrapf(instance.ErrWriteOnReplica, "instance %s has role %s", c.inst.ID, c.inst.Role)
	}
	if op.Write {
		return c.executeWrite(ctx, op)
	}
	return c.executeRead(ctx, op)
}

func (c *Client) executeWrite(ctx context.Context, op *instance.Operation) (*instance.Result, bookmark.Watermark, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, c.classifyErr(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, op.Query, op.Args...)
	if err != nil {
		return nil, 0, c.classifyErr(err)
	}
	if _, err := tx.ExecContext(ctx, bumpWatermarkQuery); err != nil {
		return nil, 0, c.classifyErr(err)
	}
	wm, err := c.readWatermark(ctx, tx)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, c.classifyErr(err)
	}

	affected, _ := res.RowsAffected()
	insertID, _ := res.LastInsertId()
	return &instance.Result{
		RowsAffected: uint64(affected),
		InsertID:     uint64(insertID),
	}, wm, nil
}

func (c *Client) executeRead(ctx context.Context, op *instance.Operation) (*instance.Result, bookmark.Watermark, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, c.classifyErr(err)
	}
	defer tx.Rollback()

	columns, data, err := sqlutil.QueryResultData(ctx, tx, op.Query, op.Args...)
	if err != nil {
		return nil, 0, c.classifyErr(err)
	}
	wm, err := c.readWatermark(ctx, tx)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, c.classifyErr(err)
	}

	return &instance.Result{
		Columns: columns,
		Rows:    data,
	}, wm, nil
}

func (c *Client) readWatermark(ctx context.Context, q sqlutil.Queryer) (bookmark.Watermark, error) {
	var (
		wm    bookmark.Watermark
		found bool
	)
	err := sqlutil.QueryRowsMap(ctx, q, readWatermarkQuery, func(m sqlutil.RowMap) error {
		wm = bookmark.Watermark(m.GetUint64("seq"))
		found = true
		return nil
	})
	if err != nil {
		return 0, c.classifyErr(err)
	}
	if !found {
		return 0, rgerrors.Errorf(rgerrors.FailedPrecondition, "instance %s: watermark row missing; schema not initialized", c.inst.ID)
	}
	return wm, nil
}

// classifyErr mirrors the MySQL backend: statement errors stay local,
// contention and I/O map to unavailable so a retry can go elsewhere,
// context errors pass through.
func (c *Client) classifyErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
			return rgerrors.Wrapf(instance.ErrInstanceUnavailable, "instance %s: %v", c.inst.ID, err)
		default:
			return rgerrors.Errorf(rgerrors.InvalidArgument, "instance %s: %v", c.inst.ID, err)
		}
	}
	return rgerrors.Wrapf(instance.ErrInstanceUnavailable, "instance %s: %v", c.inst.ID, err)
}

// Close implements instance.Client.
func (c *Client) Close() error {
	return c.db.Close()
}
