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

// Package router turns a consistency policy into a routing decision and
// executes operations against the chosen instance.
//
// The Router resolves each request to a terminal decision against the
// current discovery snapshot: writes always go to the primary,
// unconstrained reads spread over healthy replicas, and continuation
// reads go to an instance that has applied at least the bookmark's
// required watermark, waiting (bounded, event-driven) for replication
// to catch up when none has yet. The Executor layers instance markdown
// and a single read re-route on top, and produces the outbound bookmark
// that keeps the caller's session monotonic.
package router

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/discovery"
	"github.com/replgate/replgate/go/rg/rgerrors"
	"github.com/replgate/replgate/go/rg/servenv"
	"github.com/replgate/replgate/go/stats"
	"github.com/replgate/replgate/go/trace"
	"github.com/replgate/replgate/go/viperutil"
)

var (
	// ErrNoPrimary means the registry holds no primary at all. Nothing
	// can serve writes; reads that would fall back to the primary fail
	// the same way. The registry owns the sentinel: it raises the same
	// condition when asked to deregister its one primary.
	ErrNoPrimary = discovery.ErrNoPrimary

	// ErrPrimaryUnavailable means the request needed the primary and the
	// primary is unreachable. It is never silently substituted: callers
	// asking for the primary asked for the latest state.
	ErrPrimaryUnavailable = rgerrors.New(rgerrors.Unavailable, "primary instance unreachable")

	// ErrNoCaughtUpReplica is a strict-replica-only continuation that
	// timed out before any replica reached the required watermark.
	ErrNoCaughtUpReplica = rgerrors.New(rgerrors.DeadlineExceeded, "no replica reached the required watermark in time")

	// ErrCancelled is a continuation wait interrupted by the caller's
	// context, as opposed to running out its wait budget.
	ErrCancelled = rgerrors.New(rgerrors.Canceled, "routing cancelled")
)

var (
	defaultContinuationWait = viperutil.Configure("router.continuation_wait.default", viperutil.Options[time.Duration]{
		Default:  3 * time.Second,
		FlagName: "continuation-wait-default",
		Dynamic:  true,
	})
	maxContinuationWait = viperutil.Configure("router.continuation_wait.max", viperutil.Options[time.Duration]{
		Default:  30 * time.Second,
		FlagName: "continuation-wait-max",
		Dynamic:  true,
	})

	routeCounts = stats.NewCountersWithMultiLabels(
		"RouteCounts",
		"Routing decisions by mode and destination role",
		[]string{"Mode", "Role"})
	routeErrors = stats.NewCountersWithLabels(
		"RouteErrors",
		"Routing failures by mode",
		"Mode")
	continuationWaits = stats.NewTimings(
		"ContinuationWaitTimings",
		"Time continuation routing spent waiting for replication, by outcome",
		"Outcome")
)

func init() {
	servenv.OnParseFor("replgate", registerRouterFlags)
}

func registerRouterFlags(fs *pflag.FlagSet) {
	fs.Duration("continuation-wait-default", defaultContinuationWait.Default(), "How long continuation routing waits for a replica to catch up when the caller sets no bound.")
	fs.Duration("continuation-wait-max", maxContinuationWait.Default(), "Upper bound on caller-supplied continuation wait budgets (0 for no cap).")

	viperutil.BindFlags(fs, defaultContinuationWait, maxContinuationWait)
}

// Mode selects how a read is routed.
type Mode int8

const (
	// ModeUnconstrained serves from any healthy instance, replicas
	// preferred. Never waits.
	ModeUnconstrained Mode = iota
	// ModePrimaryFirst serves from the primary, observing the latest
	// state, or fails.
	ModePrimaryFirst
	// ModeContinuation serves from an instance that has applied at least
	// the required watermark, waiting briefly for replication when none
	// has.
	ModeContinuation
)

func (m Mode) String() string {
	switch m {
	case ModeUnconstrained:
		return "unconstrained"
	case ModePrimaryFirst:
		return "primary_first"
	case ModeContinuation:
		return "continuation"
	}
	return "unknown"
}

// ParseMode parses a mode name as callers spell it in requests and
// flags.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "unconstrained":
		return ModeUnconstrained, nil
	case "primary", "primary_first", "primary-first":
		return ModePrimaryFirst, nil
	case "continuation":
		return ModeContinuation, nil
	}
	return ModeUnconstrained, rgerrors.Errorf(rgerrors.InvalidArgument, "unknown routing mode %q", s)
}

// Policy is everything the router needs to resolve one request.
type Policy struct {
	Mode Mode

	// RequiredWatermark is the minimum watermark the serving instance
	// must have applied. Only consulted in ModeContinuation.
	RequiredWatermark bookmark.Watermark

	// StrictReplicaOnly forbids the primary fallback in
	// ModeContinuation: when no replica catches up within the wait
	// budget the request fails instead of landing on the primary.
	StrictReplicaOnly bool

	// MaxWait bounds the continuation wait. Zero means the configured
	// default; values above the configured cap are clamped.
	MaxWait time.Duration

	// PreferredRegion biases instance selection towards a region. Empty
	// means the router's local region.
	PreferredRegion string
}

// PolicyFromBookmark maps a decoded bookmark to the routing policy it
// demands. A nil bookmark is a fresh session: unconstrained.
func PolicyFromBookmark(b *bookmark.Bookmark) *Policy {
	if b == nil {
		return &Policy{Mode: ModeUnconstrained}
	}
	switch b.Kind {
	case bookmark.KindPrimary:
		return &Policy{Mode: ModePrimaryFirst}
	case bookmark.KindContinuation:
		return &Policy{
			Mode:              ModeContinuation,
			RequiredWatermark: b.RequiredWatermark,
		}
	default:
		return &Policy{Mode: ModeUnconstrained}
	}
}

// Router resolves policies to instances. It only ever reads registry
// snapshots; the one blocking path is the continuation wait, which
// parks on the registry's broadcast channel until the next publish.
type Router struct {
	registry    *discovery.Registry
	localRegion string
}

// NewRouter returns a router reading the given registry. localRegion
// is the region this process runs in, used as the default selection
// affinity; it may be empty.
func NewRouter(registry *discovery.Registry, localRegion string) *Router {
	return &Router{
		registry:    registry,
		localRegion: localRegion,
	}
}

// Route resolves one request to an instance. Writes resolve to the
// primary regardless of policy.
func (rt *Router) Route(ctx context.Context, policy *Policy, isWrite bool) (*discovery.InstanceHealth, error) {
	return rt.RouteExcluding(ctx, policy, isWrite, nil)
}

// RouteExcluding is Route with an exclusion set: instances whose id is
// in excluding are never picked, so a retry can re-route away from an
// instance that just failed. The set may be nil and is not retained.
func (rt *Router) RouteExcluding(ctx context.Context, policy *Policy, isWrite bool, excluding map[string]bool) (*discovery.InstanceHealth, error) {
	span, ctx := trace.NewSpan(ctx, "Router.Route", trace.Local)
	defer span.Finish()

	if policy == nil {
		policy = &Policy{}
	}
	mode := policy.Mode.String()
	if isWrite {
		mode = "write"
	}
	span.Annotate("mode", mode)

	target, err := rt.route(ctx, policy, isWrite, excluding)
	if err != nil {
		routeErrors.Add(mode, 1)
		return nil, err
	}
	span.Annotate("instance", target.Instance.ID)
	routeCounts.Add([]string{mode, target.Instance.Role.String()}, 1)
	return target, nil
}

func (rt *Router) route(ctx context.Context, policy *Policy, isWrite bool, excluding map[string]bool) (*discovery.InstanceHealth, error) {
	snap := rt.registry.Snapshot()

	if isWrite {
		return primaryTarget(snap, excluding)
	}

	switch policy.Mode {
	case ModePrimaryFirst:
		return primaryTarget(snap, excluding)

	case ModeContinuation:
		return rt.routeContinuation(ctx, policy, excluding, snap)

	default:
		region := rt.region(policy)
		candidates := eligibleReplicas(snap, excluding, 0)
		orderCandidates(region, candidates)
		if len(candidates) > 0 {
			return candidates[0], nil
		}
		// No healthy replica: the primary picks up the load.
		return primaryTarget(snap, excluding)
	}
}

// routeContinuation scans for an instance at or past the required
// watermark and, when none exists yet, waits for registry publishes up
// to the wait budget. The wait wakes on every publish rather than
// polling, so routing reacts within one probe of replication catching
// up.
func (rt *Router) routeContinuation(ctx context.Context, policy *Policy, excluding map[string]bool, snap *discovery.Snapshot) (*discovery.InstanceHealth, error) {
	region := rt.region(policy)
	if target := pickCaughtUp(snap, policy, excluding, region); target != nil {
		return target, nil
	}

	budget := policy.MaxWait
	if budget <= 0 {
		budget = defaultContinuationWait.Get()
	}
	if limit := maxContinuationWait.Get(); limit > 0 && budget > limit {
		budget = limit
	}

	start := time.Now()
	deadline := time.NewTimer(budget)
	defer deadline.Stop()

	for {
		// Arm the wake channel before re-reading the snapshot, so a
		// publish landing in between still fires the select below.
		wake := rt.registry.Wait()
		if target := pickCaughtUp(rt.registry.Snapshot(), policy, excluding, region); target != nil {
			continuationWaits.Add("satisfied", time.Since(start))
			return target, nil
		}

		select {
		case <-ctx.Done():
			continuationWaits.Add("cancelled", time.Since(start))
			return nil, rgerrors.Wrapf(ErrCancelled, "%v after %v", ctx.Err(), time.Since(start))
		case <-deadline.C:
			continuationWaits.Add("timeout", time.Since(start))
			if policy.StrictReplicaOnly {
				return nil, rgerrors.Wrapf(ErrNoCaughtUpReplica, "watermark %s within %v", policy.RequiredWatermark, budget)
			}
			// Fall back to the primary by role: it is always caught up
			// with itself, whatever its last probe reported.
			return primaryTarget(rt.registry.Snapshot(), excluding)
		case <-wake:
		}
	}
}

func (rt *Router) region(policy *Policy) string {
	if policy.PreferredRegion != "" {
		return policy.PreferredRegion
	}
	return rt.localRegion
}

// primaryTarget returns the primary as the routing decision, or the
// error telling the caller why there is none to be had.
func primaryTarget(snap *discovery.Snapshot, excluding map[string]bool) (*discovery.InstanceHealth, error) {
	p := snap.Primary
	if p == nil {
		return nil, ErrNoPrimary
	}
	if p.Health == discovery.Unreachable {
		return nil, rgerrors.Wrapf(ErrPrimaryUnavailable, "primary %s", p.Instance.ID)
	}
	if excluding[p.Instance.ID] {
		return nil, rgerrors.Wrapf(ErrPrimaryUnavailable, "primary %s already failed this request", p.Instance.ID)
	}
	return p, nil
}

// eligibleReplicas returns the healthy, non-excluded replicas at or
// past the required watermark. required zero admits every healthy
// replica.
func eligibleReplicas(snap *discovery.Snapshot, excluding map[string]bool, required bookmark.Watermark) []*discovery.InstanceHealth {
	candidates := make([]*discovery.InstanceHealth, 0, len(snap.Replicas))
	for _, ih := range snap.Replicas {
		if ih.Health != discovery.Healthy || excluding[ih.Instance.ID] {
			continue
		}
		if !ih.Watermark.AtLeast(required) {
			continue
		}
		candidates = append(candidates, ih)
	}
	return candidates
}

// pickCaughtUp returns the best instance satisfying a continuation
// requirement right now, or nil when none does. Replicas win over the
// primary; the primary only serves when it alone qualifies, and never
// under StrictReplicaOnly.
func pickCaughtUp(snap *discovery.Snapshot, policy *Policy, excluding map[string]bool, region string) *discovery.InstanceHealth {
	candidates := eligibleReplicas(snap, excluding, policy.RequiredWatermark)
	orderCandidates(region, candidates)
	if len(candidates) > 0 {
		return candidates[0]
	}
	if policy.StrictReplicaOnly {
		return nil
	}
	if p := snap.Primary; p != nil && p.Health == discovery.Healthy &&
		p.Watermark.AtLeast(policy.RequiredWatermark) && !excluding[p.Instance.ID] {
		return p
	}
	return nil
}

// rttBandWidth buckets probe RTTs so near-equal instances compare as
// ties and load spreads across them instead of pinning to whichever
// probe happened to run fastest last.
const rttBandWidth = 2 * time.Millisecond

func rttBand(rtt time.Duration) int64 {
	return int64(rtt / rttBandWidth)
}

// orderCandidates sorts candidates into routing preference order:
// preferred-region instances first, then by RTT band, shuffled within
// ties to spread load.
func orderCandidates(region string, candidates []*discovery.InstanceHealth) {
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if region != "" {
			if im, jm := ci.Instance.Region == region, cj.Instance.Region == region; im != jm {
				return im
			}
		}
		return rttBand(ci.RTT) < rttBand(cj.RTT)
	})
}
