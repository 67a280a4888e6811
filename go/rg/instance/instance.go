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

// Package instance defines the contract between the router and the
// database instances it fronts: a static descriptor per instance, and a
// Client through which probes and operations flow. Backends implement
// Client per engine; see the mysqlinst and sqliteinst subpackages.
package instance

import (
	"context"
	"fmt"
	"strings"

	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/rgerrors"
	"github.com/replgate/replgate/go/rg/sqlutil"
)

var (
	// ErrInstanceUnavailable indicates a transport-level failure talking
	// to an instance. The instance may well be serving again moments
	// later; callers treat this as retriable on a different instance.
	ErrInstanceUnavailable = rgerrors.New(rgerrors.Unavailable, "instance unavailable")

	// ErrWriteOnReplica indicates a write operation was presented to a
	// non-primary instance. Writes must serialize on the primary, so
	// this is a routing bug, never retried.
	ErrWriteOnReplica = rgerrors.New(rgerrors.FailedPrecondition, "write operation on non-primary instance")
)

// Role is the replication role of an instance.
type Role int8

const (
	// RoleReplica is an asynchronously replicating, read-only instance.
	RoleReplica Role = iota
	// RolePrimary is the single writable instance all writes serialize on.
	RolePrimary
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleReplica:
		return "replica"
	default:
		return fmt.Sprintf("unknown(%d)", int8(r))
	}
}

// ParseRole parses a role name as it appears in config files.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "primary":
		return RolePrimary, nil
	case "replica":
		return RoleReplica, nil
	default:
		return RoleReplica, rgerrors.Errorf(rgerrors.InvalidArgument, "unknown instance role %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so roles render by name
// in JSON and YAML.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Instance is the static descriptor of a database instance. It never
// changes after registration; health and watermark live in the
// discovery registry.
type Instance struct {
	// ID uniquely identifies the instance within the router.
	ID string `json:"id"`
	// Role is the instance's replication role.
	Role Role `json:"role"`
	// Region is the failure domain the instance serves from, used for
	// routing affinity. May be empty.
	Region string `json:"region,omitempty"`
	// Addr is the instance's address, for display only; backends carry
	// their own connection configuration.
	Addr string `json:"addr,omitempty"`
}

// IsPrimary is a convenience for role checks at call sites.
func (i *Instance) IsPrimary() bool {
	return i.Role == RolePrimary
}

func (i *Instance) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%s)", i.ID, i.Role)
}

// Operation is a single statement to run on some instance.
type Operation struct {
	// Query is the statement text, with driver placeholders.
	Query string
	// Args are the placeholder arguments.
	Args []any
	// Write declares the operation mutates state. Writes only ever run
	// on the primary.
	Write bool
}

// Result is the outcome of an executed operation.
type Result struct {
	// Columns are the result column names, in order. Empty for writes.
	Columns []string `json:"columns,omitempty"`
	// Rows are the result rows, cells in column order.
	Rows []sqlutil.RowData `json:"rows,omitempty"`
	// RowsAffected is the number of rows changed by a write.
	RowsAffected uint64 `json:"rows_affected,omitempty"`
	// InsertID is the auto-increment id assigned by a write, when the
	// engine reports one.
	InsertID uint64 `json:"insert_id,omitempty"`
}

// RowMaps returns the result rows keyed by column name.
func (r *Result) RowMaps() []sqlutil.RowMap {
	if r == nil {
		return nil
	}
	maps := make([]sqlutil.RowMap, 0, len(r.Rows))
	for _, row := range r.Rows {
		m := make(sqlutil.RowMap, len(r.Columns))
		for i, column := range r.Columns {
			if i < len(row) {
				m[column] = row[i]
			}
		}
		maps = append(maps, m)
	}
	return maps
}

// Client is the transport through which the router talks to one
// instance. Implementations must be safe for concurrent use.
type Client interface {
	// Probe returns the instance's current replication watermark. It is
	// called continuously by the lag monitor and must respect context
	// cancellation.
	Probe(ctx context.Context) (bookmark.Watermark, error)

	// Execute runs one operation and returns its result along with the
	// watermark the execution reflects: for writes, the exact post-write
	// position; for reads, a position at or below everything the read
	// observed.
	Execute(ctx context.Context, op *Operation) (*Result, bookmark.Watermark, error)

	// Close releases the client's resources. No calls may follow.
	Close() error
}
