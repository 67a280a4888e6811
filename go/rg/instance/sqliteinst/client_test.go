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

package sqliteinst

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/instance"
)

func newTestClient(t *testing.T, role instance.Role) *Client {
	t.Helper()

	inst := &instance.Instance{ID: "test-" + role.String(), Role: role, Region: "local"}
	c, err := New(inst, filepath.Join(t.TempDir(), inst.ID+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.EnsureSchema(context.Background()))
	return c
}

func TestProbeFreshSchema(t *testing.T) {
	c := newTestClient(t, instance.RolePrimary)

	wm, err := c.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bookmark.Watermark(0), wm)
}

func TestProbeWithoutSchema(t *testing.T) {
	inst := &instance.Instance{ID: "bare", Role: instance.RolePrimary}
	c, err := New(inst, filepath.Join(t.TempDir(), "bare.db"))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Probe(context.Background())
	assert.Error(t, err)
}

func TestWriteAdvancesWatermark(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, instance.RolePrimary)

	_, wm, err := c.Execute(ctx, &instance.Operation{
		Query: "create table users (id integer primary key autoincrement, name text)",
		Write: true,
	})
	require.NoError(t, err)
	assert.Equal(t, bookmark.Watermark(1), wm)

	res, wm, err := c.Execute(ctx, &instance.Operation{
		Query: "insert into users (name) values (?)",
		Args:  []any{"alice"},
		Write: true,
	})
	require.NoError(t, err)
	assert.Equal(t, bookmark.Watermark(2), wm)
	assert.EqualValues(t, 1, res.RowsAffected)
	assert.EqualValues(t, 1, res.InsertID)

	probed, err := c.Probe(ctx)
	require.NoError(t, err)
	assert.Equal(t, wm, probed)
}

func TestReadReflectsWatermark(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, instance.RolePrimary)

	for _, q := range []string{
		"create table users (id integer primary key autoincrement, name text)",
		"insert into users (name) values ('alice')",
		"insert into users (name) values ('bob')",
	} {
		_, _, err := c.Execute(ctx, &instance.Operation{Query: q, Write: true})
		require.NoError(t, err)
	}

	res, wm, err := c.Execute(ctx, &instance.Operation{
		Query: "select name from users order by id",
	})
	require.NoError(t, err)
	assert.Equal(t, bookmark.Watermark(3), wm)
	assert.Equal(t, []string{"name"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "alice", res.RowMaps()[0].GetString("name"))
	assert.Equal(t, "bob", res.RowMaps()[1].GetString("name"))
}

func TestWriteOnReplicaRefused(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, instance.RoleReplica)

	_, _, err := c.Execute(ctx, &instance.Operation{
		Query: "create table users (id integer primary key)",
		Write: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, instance.ErrWriteOnReplica))

	// The refusal happened before the statement ran.
	wm, err := c.Probe(ctx)
	require.NoError(t, err)
	assert.Equal(t, bookmark.Watermark(0), wm)
}

func TestReadsAllowedOnReplica(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, instance.RoleReplica)

	res, wm, err := c.Execute(ctx, &instance.Operation{
		Query: "select seq from replgate_watermark",
	})
	require.NoError(t, err)
	assert.Equal(t, bookmark.Watermark(0), wm)
	require.Len(t, res.Rows, 1)
}

func TestStatementErrorIsNotUnavailable(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, instance.RolePrimary)

	_, _, err := c.Execute(ctx, &instance.Operation{Query: "select * from no_such_table"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, instance.ErrInstanceUnavailable))
}
