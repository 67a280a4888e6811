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

package mysqlinst

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replgate/replgate/go/rg/instance"
	"github.com/replgate/replgate/go/rg/rgerrors"
)

func TestNewRejectsBadDSN(t *testing.T) {
	inst := &instance.Instance{ID: "m1", Role: instance.RolePrimary}
	_, err := New(inst, "not a dsn at all")
	require.Error(t, err)
	assert.Equal(t, rgerrors.InvalidArgument, rgerrors.Code(err))
}

func TestWriteOnReplicaRefusedBeforeDialing(t *testing.T) {
	// The DSN points nowhere; the refusal must come from the role check,
	// not from the network.
	inst := &instance.Instance{ID: "r1", Role: instance.RoleReplica}
	c, err := New(inst, "root@tcp(127.0.0.1:1)/test")
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, _, err = c.Execute(ctx, &instance.Operation{Query: "insert into t values (1)", Write: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, instance.ErrWriteOnReplica))
	assert.Less(t, time.Since(start), time.Second)
}

func TestProbeUnreachableServer(t *testing.T) {
	inst := &instance.Instance{ID: "m1", Role: instance.RolePrimary}
	c, err := New(inst, "root@tcp(127.0.0.1:1)/test")
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = c.Probe(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, instance.ErrInstanceUnavailable))
}
