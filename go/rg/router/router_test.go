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

package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/discovery"
	"github.com/replgate/replgate/go/rg/instance"
	"github.com/replgate/replgate/go/test/utils"
)

func primary(id string) *instance.Instance {
	return &instance.Instance{ID: id, Role: instance.RolePrimary}
}

func replica(id, region string) *instance.Instance {
	return &instance.Instance{ID: id, Role: instance.RoleReplica, Region: region}
}

// testCluster builds a registry with one primary and two replicas, all
// healthy at the given watermarks. r1 lives in eu, r2 in us.
func testCluster(t *testing.T, pwm, r1wm, r2wm bookmark.Watermark) *discovery.Registry {
	t.Helper()

	reg := discovery.NewRegistry()
	require.NoError(t, reg.Register(primary("p1")))
	require.NoError(t, reg.Register(replica("r1", "eu")))
	require.NoError(t, reg.Register(replica("r2", "us")))
	require.NoError(t, reg.UpdateWatermark("p1", pwm, discovery.Healthy, time.Millisecond, nil))
	require.NoError(t, reg.UpdateWatermark("r1", r1wm, discovery.Healthy, time.Millisecond, nil))
	require.NoError(t, reg.UpdateWatermark("r2", r2wm, discovery.Healthy, time.Millisecond, nil))
	return reg
}

func TestRouteWriteGoesToPrimary(t *testing.T) {
	reg := testCluster(t, 100, 100, 100)
	rt := NewRouter(reg, "")

	// Every mode routes writes to the primary.
	for _, policy := range []*Policy{
		nil,
		{Mode: ModeUnconstrained},
		{Mode: ModePrimaryFirst},
		{Mode: ModeContinuation, RequiredWatermark: 100},
	} {
		target, err := rt.Route(context.Background(), policy, true)
		require.NoError(t, err)
		assert.Equal(t, "p1", target.Instance.ID)
	}
}

func TestRouteWriteWithoutPrimary(t *testing.T) {
	reg := discovery.NewRegistry()
	require.NoError(t, reg.Register(replica("r1", "eu")))
	require.NoError(t, reg.UpdateWatermark("r1", 10, discovery.Healthy, time.Millisecond, nil))
	rt := NewRouter(reg, "")

	_, err := rt.Route(context.Background(), nil, true)
	assert.True(t, errors.Is(err, ErrNoPrimary), "got %v", err)
}

func TestRouteWritePrimaryUnreachable(t *testing.T) {
	reg := testCluster(t, 100, 100, 100)
	require.NoError(t, reg.UpdateWatermark("p1", 0, discovery.Unreachable, time.Millisecond, assert.AnError))
	rt := NewRouter(reg, "")

	_, err := rt.Route(context.Background(), nil, true)
	assert.True(t, errors.Is(err, ErrPrimaryUnavailable), "got %v", err)
}

func TestRouteUnconstrainedPrefersReplicas(t *testing.T) {
	reg := testCluster(t, 100, 90, 95)
	rt := NewRouter(reg, "")

	for i := 0; i < 20; i++ {
		target, err := rt.Route(context.Background(), &Policy{Mode: ModeUnconstrained}, false)
		require.NoError(t, err)
		assert.Equal(t, instance.RoleReplica, target.Instance.Role)
	}
}

func TestRouteUnconstrainedSpreadsLoad(t *testing.T) {
	reg := testCluster(t, 100, 100, 100)
	rt := NewRouter(reg, "")

	picked := map[string]int{}
	for i := 0; i < 50; i++ {
		target, err := rt.Route(context.Background(), &Policy{Mode: ModeUnconstrained}, false)
		require.NoError(t, err)
		picked[target.Instance.ID]++
	}
	// Equal region affinity and RTT band: both replicas should serve.
	assert.Positive(t, picked["r1"])
	assert.Positive(t, picked["r2"])
}

func TestRouteUnconstrainedRegionAffinity(t *testing.T) {
	reg := testCluster(t, 100, 100, 100)
	rt := NewRouter(reg, "")

	for i := 0; i < 20; i++ {
		target, err := rt.Route(context.Background(), &Policy{Mode: ModeUnconstrained, PreferredRegion: "us"}, false)
		require.NoError(t, err)
		assert.Equal(t, "r2", target.Instance.ID)
	}
}

func TestRouteUnconstrainedLocalRegionDefault(t *testing.T) {
	reg := testCluster(t, 100, 100, 100)
	rt := NewRouter(reg, "eu")

	for i := 0; i < 20; i++ {
		target, err := rt.Route(context.Background(), &Policy{Mode: ModeUnconstrained}, false)
		require.NoError(t, err)
		assert.Equal(t, "r1", target.Instance.ID)
	}
}

func TestRouteUnconstrainedPrefersLowRTT(t *testing.T) {
	reg := testCluster(t, 100, 100, 100)
	require.NoError(t, reg.UpdateWatermark("r1", 100, discovery.Healthy, time.Millisecond, nil))
	require.NoError(t, reg.UpdateWatermark("r2", 100, discovery.Healthy, 50*time.Millisecond, nil))
	rt := NewRouter(reg, "")

	for i := 0; i < 20; i++ {
		target, err := rt.Route(context.Background(), &Policy{Mode: ModeUnconstrained}, false)
		require.NoError(t, err)
		assert.Equal(t, "r1", target.Instance.ID)
	}
}

func TestRouteUnconstrainedFallsBackToPrimary(t *testing.T) {
	reg := testCluster(t, 100, 100, 100)
	require.NoError(t, reg.UpdateWatermark("r1", 0, discovery.Unreachable, time.Millisecond, assert.AnError))
	require.NoError(t, reg.UpdateWatermark("r2", 0, discovery.Unreachable, time.Millisecond, assert.AnError))
	rt := NewRouter(reg, "")

	start := time.Now()
	target, err := rt.Route(context.Background(), &Policy{Mode: ModeUnconstrained}, false)
	require.NoError(t, err)
	assert.Equal(t, "p1", target.Instance.ID)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "unconstrained routing must not wait")

	// With the primary also unreachable there is nothing left to serve.
	require.NoError(t, reg.UpdateWatermark("p1", 0, discovery.Unreachable, time.Millisecond, assert.AnError))
	_, err = rt.Route(context.Background(), &Policy{Mode: ModeUnconstrained}, false)
	assert.True(t, errors.Is(err, ErrPrimaryUnavailable), "got %v", err)
}

func TestRoutePrimaryFirst(t *testing.T) {
	reg := testCluster(t, 100, 100, 100)
	rt := NewRouter(reg, "")

	target, err := rt.Route(context.Background(), &Policy{Mode: ModePrimaryFirst}, false)
	require.NoError(t, err)
	assert.Equal(t, "p1", target.Instance.ID)

	// An unreachable primary fails the request; a replica is never
	// substituted for an explicit latest-state read.
	require.NoError(t, reg.UpdateWatermark("p1", 0, discovery.Unreachable, time.Millisecond, assert.AnError))
	_, err = rt.Route(context.Background(), &Policy{Mode: ModePrimaryFirst}, false)
	assert.True(t, errors.Is(err, ErrPrimaryUnavailable), "got %v", err)
}

func TestRouteContinuationPicksCaughtUpReplica(t *testing.T) {
	// Primary at 100, replicas at 80 and 95, requirement 90: only the
	// replica at 95 may serve — not the one at 80, and not the primary
	// while a replica qualifies.
	reg := testCluster(t, 100, 80, 95)
	rt := NewRouter(reg, "")

	for i := 0; i < 20; i++ {
		target, err := rt.Route(context.Background(), &Policy{Mode: ModeContinuation, RequiredWatermark: 90}, false)
		require.NoError(t, err)
		assert.Equal(t, "r2", target.Instance.ID)
	}
}

func TestRouteContinuationPrimaryWhenOnlyQualifier(t *testing.T) {
	reg := testCluster(t, 100, 50, 60)
	rt := NewRouter(reg, "")

	start := time.Now()
	target, err := rt.Route(context.Background(), &Policy{Mode: ModeContinuation, RequiredWatermark: 90}, false)
	require.NoError(t, err)
	assert.Equal(t, "p1", target.Instance.ID)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "a qualifying primary serves immediately")
}

func TestRouteContinuationWakesOnCatchUp(t *testing.T) {
	t.Cleanup(func() { utils.EnsureNoLeaks(t) })

	// Nobody has applied watermark 5 yet, not even the primary's last
	// probe. The route call must park until the registry publishes the
	// catch-up, then return the replica, well before the wait budget.
	reg := testCluster(t, 3, 3, 2)
	rt := NewRouter(reg, "")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(50 * time.Millisecond)
		assert.NoError(t, reg.UpdateWatermark("r1", 5, discovery.Healthy, time.Millisecond, nil))
	}()
	defer wg.Wait()

	start := time.Now()
	target, err := rt.Route(context.Background(), &Policy{
		Mode:              ModeContinuation,
		RequiredWatermark: 5,
		MaxWait:           5 * time.Second,
	}, false)
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Equal(t, "r1", target.Instance.ID)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond, "route returned before the catch-up published")
	assert.Less(t, elapsed, 2*time.Second, "route waited for the budget instead of the publish")
}

func TestRouteContinuationStrictTimeout(t *testing.T) {
	// The primary is caught up, but strict-replica-only never uses it.
	reg := testCluster(t, 100, 80, 80)
	rt := NewRouter(reg, "")

	start := time.Now()
	_, err := rt.Route(context.Background(), &Policy{
		Mode:              ModeContinuation,
		RequiredWatermark: 100,
		StrictReplicaOnly: true,
		MaxWait:           30 * time.Millisecond,
	}, false)
	assert.True(t, errors.Is(err, ErrNoCaughtUpReplica), "got %v", err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRouteContinuationFallsBackToPrimaryOnTimeout(t *testing.T) {
	// Requirement beyond every known watermark: after the wait budget
	// the primary serves by role, being always caught up with itself.
	reg := testCluster(t, 100, 80, 95)
	rt := NewRouter(reg, "")

	target, err := rt.Route(context.Background(), &Policy{
		Mode:              ModeContinuation,
		RequiredWatermark: 200,
		MaxWait:           30 * time.Millisecond,
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "p1", target.Instance.ID)

	// Unless the primary is unreachable: then the request fails rather
	// than serving under-watermark data.
	require.NoError(t, reg.UpdateWatermark("p1", 0, discovery.Unreachable, time.Millisecond, assert.AnError))
	_, err = rt.Route(context.Background(), &Policy{
		Mode:              ModeContinuation,
		RequiredWatermark: 200,
		MaxWait:           30 * time.Millisecond,
	}, false)
	assert.True(t, errors.Is(err, ErrPrimaryUnavailable), "got %v", err)
}

func TestRouteContinuationCancelled(t *testing.T) {
	reg := testCluster(t, 100, 80, 95)
	rt := NewRouter(reg, "")

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	_, err := rt.Route(ctx, &Policy{
		Mode:              ModeContinuation,
		RequiredWatermark: 200,
		MaxWait:           5 * time.Second,
	}, false)
	assert.True(t, errors.Is(err, ErrCancelled), "got %v", err)
	assert.False(t, errors.Is(err, ErrNoCaughtUpReplica), "cancellation must stay distinct from timing out")
}

func TestRouteContinuationAllReplicasUnreachable(t *testing.T) {
	reg := testCluster(t, 100, 100, 100)
	require.NoError(t, reg.UpdateWatermark("r1", 0, discovery.Unreachable, time.Millisecond, assert.AnError))
	require.NoError(t, reg.UpdateWatermark("r2", 0, discovery.Unreachable, time.Millisecond, assert.AnError))
	rt := NewRouter(reg, "")

	start := time.Now()
	target, err := rt.Route(context.Background(), &Policy{Mode: ModeContinuation, RequiredWatermark: 90}, false)
	require.NoError(t, err)
	assert.Equal(t, "p1", target.Instance.ID)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "the caught-up primary serves without waiting")
}

func TestRouteExcluding(t *testing.T) {
	reg := testCluster(t, 100, 95, 95)
	rt := NewRouter(reg, "")

	excluding := map[string]bool{"r1": true}
	for i := 0; i < 20; i++ {
		target, err := rt.RouteExcluding(context.Background(), &Policy{Mode: ModeContinuation, RequiredWatermark: 90}, false, excluding)
		require.NoError(t, err)
		assert.Equal(t, "r2", target.Instance.ID)
	}

	// With both replicas excluded the caught-up primary steps in.
	excluding["r2"] = true
	target, err := rt.RouteExcluding(context.Background(), &Policy{Mode: ModeContinuation, RequiredWatermark: 90}, false, excluding)
	require.NoError(t, err)
	assert.Equal(t, "p1", target.Instance.ID)

	// Excluding the primary too leaves nothing.
	excluding["p1"] = true
	_, err = rt.RouteExcluding(context.Background(), &Policy{Mode: ModeUnconstrained}, false, excluding)
	assert.True(t, errors.Is(err, ErrPrimaryUnavailable), "got %v", err)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"unconstrained": ModeUnconstrained,
		"primary":       ModePrimaryFirst,
		"primary_first": ModePrimaryFirst,
		"primary-first": ModePrimaryFirst,
		"Continuation":  ModeContinuation,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("quorum")
	assert.Error(t, err)
	_, err = ParseMode("")
	assert.Error(t, err)
}

func TestPolicyFromBookmark(t *testing.T) {
	assert.Equal(t, ModeUnconstrained, PolicyFromBookmark(nil).Mode)
	assert.Equal(t, ModeUnconstrained, PolicyFromBookmark(bookmark.NewestUnconstrained()).Mode)
	assert.Equal(t, ModePrimaryFirst, PolicyFromBookmark(bookmark.Primary()).Mode)

	p := PolicyFromBookmark(bookmark.Continuation(42, "p1"))
	assert.Equal(t, ModeContinuation, p.Mode)
	assert.Equal(t, bookmark.Watermark(42), p.RequiredWatermark)
}
