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

package discovery

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/instance"
	"github.com/replgate/replgate/go/rg/rgerrors"
)

func primary(id string) *instance.Instance {
	return &instance.Instance{ID: id, Role: instance.RolePrimary, Region: "eu"}
}

func replica(id, region string) *instance.Instance {
	return &instance.Instance{ID: id, Role: instance.RoleReplica, Region: region}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry()
	require.NoError(t, r.Register(primary("p1")))
	require.NoError(t, r.Register(replica("r1", "eu")))
	require.NoError(t, r.Register(replica("r2", "us")))
	return r
}

func TestRegisterAndSnapshot(t *testing.T) {
	r := newTestRegistry(t)

	snap := r.Snapshot()
	require.NotNil(t, snap.Primary)
	assert.Equal(t, "p1", snap.Primary.Instance.ID)
	assert.Equal(t, HealthUnknown, snap.Primary.Health)
	require.Len(t, snap.Replicas, 2)
	assert.Equal(t, "r1", snap.Replicas[0].Instance.ID)
	assert.Equal(t, "r2", snap.Replicas[1].Instance.ID)
	assert.EqualValues(t, 3, snap.Version)
}

func TestRegisterSecondPrimary(t *testing.T) {
	r := newTestRegistry(t)
	before := r.Snapshot().Version

	err := r.Register(primary("p2"))
	require.Error(t, err)
	assert.Equal(t, rgerrors.FailedPrecondition, rgerrors.Code(err))
	assert.Equal(t, before, r.Snapshot().Version)
}

func TestRegisterDuplicate(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Register(replica("r1", "eu"))
	require.Error(t, err)
	assert.Equal(t, rgerrors.FailedPrecondition, rgerrors.Code(err))
}

func TestDeregister(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Deregister("r2"))
	snap := r.Snapshot()
	require.Len(t, snap.Replicas, 1)
	assert.Nil(t, snap.Get("r2"))

	err := r.Deregister("r2")
	require.Error(t, err)
	assert.Equal(t, rgerrors.NotFound, rgerrors.Code(err))
}

func TestDeregisterPrimaryRefused(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Deregister("p1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPrimary))
	assert.Equal(t, rgerrors.FailedPrecondition, rgerrors.Code(err))
	assert.NotNil(t, r.Snapshot().Primary)
}

func TestUpdateWatermarkMonotonic(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.UpdateWatermark("r1", 10, Healthy, time.Millisecond, nil))
	assert.Equal(t, bookmark.Watermark(10), r.Snapshot().Get("r1").Watermark)

	// A regression is dropped, but the rest of the update applies.
	require.NoError(t, r.UpdateWatermark("r1", 5, Degraded, 2*time.Millisecond, nil))
	ih := r.Snapshot().Get("r1")
	assert.Equal(t, bookmark.Watermark(10), ih.Watermark)
	assert.Equal(t, Degraded, ih.Health)
	assert.Equal(t, 2*time.Millisecond, ih.RTT)
}

func TestUpdateWatermarkProbeError(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.UpdateWatermark("r1", 10, Healthy, time.Millisecond, nil))

	// A failed probe reports no watermark; zero must not register as a
	// regression.
	probeErr := errors.New("connection refused")
	require.NoError(t, r.UpdateWatermark("r1", 0, Degraded, time.Millisecond, probeErr))
	ih := r.Snapshot().Get("r1")
	assert.Equal(t, bookmark.Watermark(10), ih.Watermark)
	assert.Equal(t, Degraded, ih.Health)
	assert.Equal(t, "connection refused", ih.LastError)
}

func TestUpdateWatermarkUnknownInstance(t *testing.T) {
	r := newTestRegistry(t)

	err := r.UpdateWatermark("nope", 1, Healthy, 0, nil)
	require.Error(t, err)
	assert.Equal(t, rgerrors.NotFound, rgerrors.Code(err))
}

func TestWaitWakesOnPublish(t *testing.T) {
	r := newTestRegistry(t)

	ch := r.Wait()
	select {
	case <-ch:
		t.Fatal("wait channel fired before a publish")
	default:
	}

	require.NoError(t, r.UpdateWatermark("r1", 1, Healthy, 0, nil))
	select {
	case <-ch:
	default:
		t.Fatal("wait channel did not fire on publish")
	}

	// The replacement channel is armed for the next publish.
	select {
	case <-r.Wait():
		t.Fatal("fresh wait channel already fired")
	default:
	}
}

func TestSnapshotImmutable(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.UpdateWatermark("r1", 7, Healthy, 0, nil))

	before := r.Snapshot()
	require.NoError(t, r.UpdateWatermark("r1", 8, Healthy, 0, nil))

	assert.Equal(t, bookmark.Watermark(7), before.Get("r1").Watermark)
	assert.Equal(t, bookmark.Watermark(8), r.Snapshot().Get("r1").Watermark)
	assert.Greater(t, r.Snapshot().Version, before.Version)
}

func TestLagEstimate(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.UpdateWatermark("r1", 50, Healthy, 0, nil))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, r.UpdateWatermark("p1", 100, Healthy, 0, nil))

	snap := r.Snapshot()
	assert.Greater(t, snap.Get("r1").Lag, time.Duration(0))
	assert.Equal(t, time.Duration(0), snap.Primary.Lag)

	// Catching up zeroes the estimate.
	require.NoError(t, r.UpdateWatermark("r1", 100, Healthy, 0, nil))
	assert.Equal(t, time.Duration(0), r.Snapshot().Get("r1").Lag)
}

func TestDegradedLagThreshold(t *testing.T) {
	degradedLagThreshold.Set(time.Millisecond)
	defer degradedLagThreshold.Set(0)

	r := newTestRegistry(t)
	require.NoError(t, r.UpdateWatermark("r1", 50, Healthy, 0, nil))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, r.UpdateWatermark("p1", 100, Healthy, 0, nil))

	assert.Equal(t, Degraded, r.Snapshot().Get("r1").Health)

	require.NoError(t, r.UpdateWatermark("r1", 100, Healthy, 0, nil))
	assert.Equal(t, Healthy, r.Snapshot().Get("r1").Health)
}

func TestHealthTransitionsRecorded(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.UpdateWatermark("r1", 1, Healthy, 0, nil))
	require.NoError(t, r.UpdateWatermark("r1", 2, Healthy, 0, nil))
	require.NoError(t, r.UpdateWatermark("r1", 0, Degraded, 0, errors.New("timeout")))
	require.NoError(t, r.UpdateWatermark("r1", 3, Healthy, 0, nil))

	transitions := r.Transitions("r1")
	require.Len(t, transitions, 3)
	assert.Equal(t, Healthy, transitions[0].Health)
	assert.Equal(t, Degraded, transitions[1].Health)
	assert.Equal(t, "timeout", transitions[1].Error)
	assert.Equal(t, Healthy, transitions[2].Health)

	assert.Nil(t, r.Transitions("nope"))
}

func TestCacheStatusOrder(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.UpdateWatermark("r2", 9, Healthy, time.Millisecond, nil))

	statuses := r.CacheStatus()
	require.Len(t, statuses, 3)
	assert.True(t, statuses[0].Health.Instance.IsPrimary())
	assert.Equal(t, "r1", statuses[1].Health.Instance.ID)
	assert.Equal(t, "r2", statuses[2].Health.Instance.ID)
	assert.NotEmpty(t, statuses[2].StatusAsHTML())
}
