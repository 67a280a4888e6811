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

// Package mysqlinst implements the instance.Client contract over MySQL.
//
// The replication watermark is the seq column of the single row in the
// replgate_meta.watermark table. The primary bumps it inside every
// write transaction, so the value replicates with the writes it fences:
// a replica whose row shows seq >= N has applied every write that
// committed at or before N.
package mysqlinst

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-version"

	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/instance"
	"github.com/replgate/replgate/go/rg/rgerrors"
	"github.com/replgate/replgate/go/rg/sqlutil"
)

const (
	readWatermarkQuery = "select seq from replgate_meta.watermark where id = 1"
	bumpWatermarkQuery = "update replgate_meta.watermark set seq = seq + 1 where id = 1"

	serverVersionQuery = "select @@global.version as version"
)

// minServerVersion is the oldest server we accept. Read-only
// transactions and the replication features the watermark scheme leans
// on are only dependable from 5.7 on.
var minServerVersion = version.Must(version.NewVersion("5.7"))

var schemaStatements = []string{
	"create database if not exists replgate_meta",
	`create table if not exists replgate_meta.watermark (
		id tinyint unsigned not null primary key,
		seq bigint unsigned not null
	) engine = innodb`,
	"insert ignore into replgate_meta.watermark (id, seq) values (1, 0)",
}

// Client talks to a single MySQL instance. It is safe for concurrent
// use; database/sql pools connections underneath.
type Client struct {
	inst *instance.Instance
	db   *sql.DB

	// Flips to true after the first successful server version check.
	versionOK atomic.Bool
}

var _ instance.Client = (*Client)(nil)

// New returns a client for the given instance, connecting with the
// given driver DSN. The connection is established lazily; a down
// instance still gets a client, and probes report it unreachable.
func New(inst *instance.Instance, dsn string) (*Client, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, rgerrors.Errorf(rgerrors.InvalidArgument, "instance %s: invalid DSN: %v", inst.ID, err)
	}
	// Result cells scan as strings.
	cfg.InterpolateParams = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, rgerrors.Errorf(rgerrors.InvalidArgument, "instance %s: %v", inst.ID, err)
	}

	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxIdleConns(2)

	return &Client{inst: inst, db: db}, nil
}

// EnsureSchema creates the watermark schema and seeds its single row.
// It is called once on the primary at startup; replicas receive the
// schema through replication.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if !c.inst.IsPrimary() {
		return rgerrors.Wrapf(instance.ErrWriteOnReplica, "cannot initialize schema on %s", c.inst.ID)
	}
	for _, stmt := range schemaStatements {
		if _, err := sqlutil.ExecNoPrepare(ctx, c.db, stmt); err != nil {
			return c.classifyErr(err)
		}
	}
	return nil
}

// Probe implements instance.Client.
func (c *Client) Probe(ctx context.Context) (bookmark.Watermark, error) {
	if err := c.checkServerVersion(ctx); err != nil {
		return 0, err
	}
	return c.readWatermark(ctx, c.db)
}

// Execute implements instance.Client.
func (c *Client) Execute(ctx context.Context, op *instance.Operation) (*instance.Result, bookmark.Watermark, error) {
	if op.Write && !c.inst.IsPrimary() {
		return nil, 0, rgerrors.Wrapf(instance.ErrWriteOnReplica, "instance %s has role %s", c.inst.ID, c.inst.Role)
	}
	if err := c.checkServerVersion(ctx); err != nil {
		return nil, 0, err
	}
	if op.Write {
		return c.executeWrite(ctx, op)
	}
	return c.executeRead(ctx, op)
}

// executeWrite runs the statement and the watermark bump in one
// transaction, so the watermark it returns is the exact position of
// this write: replicas at or past it have applied it.
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

// executeRead runs the query and reads the watermark in one read-only
// transaction, so the returned watermark is a position the read
// actually reflects.
func (c *Client) executeRead(ctx context.Context, op *instance.Operation) (*instance.Result, bookmark.Watermark, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
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

// checkServerVersion verifies the server meets minServerVersion the
// first time a connection succeeds. Transient connection failures are
// not cached; an old server is rejected on every call.
func (c *Client) checkServerVersion(ctx context.Context) error {
	if c.versionOK.Load() {
		return nil
	}

	var raw string
	if err := c.db.QueryRowContext(ctx, serverVersionQuery).Scan(&raw); err != nil {
		return c.classifyErr(err)
	}
	// Strip build suffixes such as "-log" or "-0ubuntu0.22.04.1".
	base, _, _ := strings.Cut(raw, "-")
	parsed, err := version.NewVersion(base)
	if err != nil {
		return rgerrors.Errorf(rgerrors.Internal, "instance %s: unparseable server version %q: %v", c.inst.ID, raw, err)
	}
	if parsed.LessThan(minServerVersion) {
		return rgerrors.Errorf(rgerrors.FailedPrecondition, "instance %s: server version %s below minimum %s", c.inst.ID, raw, minServerVersion)
	}

	c.versionOK.Store(true)
	return nil
}

// classifyErr separates statement-level failures, which would fail
// identically anywhere, from transport-level ones, which are worth
// retrying on a different instance. Context errors pass through so
// cancellation keeps its meaning.
func (c *Client) classifyErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	var serverErr *mysql.MySQLError
	if errors.As(err, &serverErr) {
		// The server answered; the statement itself is at fault.
		return rgerrors.Errorf(rgerrors.InvalidArgument, "instance %s: %v", c.inst.ID, err)
	}
	return rgerrors.Wrapf(instance.ErrInstanceUnavailable, "instance %s: %v", c.inst.ID, err)
}

// Close implements instance.Client.
func (c *Client) Close() error {
	return c.db.Close()
}
