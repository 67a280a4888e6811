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

// Package discovery keeps track of the database instances behind the
// router and monitors their health and replication watermarks.
//
// The Registry is the single shared data structure of the process: the
// lag monitor is its only writer, and every request routed reads its
// current Snapshot. Snapshots are immutable and swapped atomically, so
// readers never block and never see torn state. Waiters blocked on
// replication progress park on a broadcast channel that each publish
// closes and replaces.
package discovery

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"

	"github.com/replgate/replgate/go/history"
	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/instance"
	"github.com/replgate/replgate/go/rg/logutil"
	"github.com/replgate/replgate/go/rg/rgerrors"
	"github.com/replgate/replgate/go/stats"
	"github.com/replgate/replgate/go/viperutil"
)

// transitionHistoryLength is how many health transitions we keep per
// instance for the status page.
const transitionHistoryLength = 16

// ErrNoPrimary means the registry holds no primary instance. Nothing
// can serve writes in that state, and removing the one primary would
// create it, so Deregister refuses with this error too.
var ErrNoPrimary = rgerrors.New(rgerrors.FailedPrecondition, "no primary instance registered")

var (
	watermarkRegressions = stats.NewCountersWithLabels(
		"WatermarkRegressions",
		"Watermark regressions dropped by the registry",
		"Instance")
	instanceWatermarks = stats.NewGaugesWithLabels(
		"InstanceWatermarks",
		"Current known watermark per instance",
		"Instance")
	instanceLagNs = stats.NewGaugesWithLabels(
		"InstanceLagNs",
		"Estimated staleness per instance, in nanoseconds",
		"Instance")

	regressionLogger = logutil.NewThrottledLogger("WatermarkRegression", 30*time.Second)

	// degradedLagThreshold demotes a healthy replica to Degraded when
	// its staleness estimate exceeds the threshold. Zero disables the
	// check. Dynamic: it follows the config file.
	degradedLagThreshold = viperutil.Configure("discovery.degraded_lag_threshold", viperutil.Options[time.Duration]{
		FlagName: "degraded-lag-threshold",
		Dynamic:  true,
	})
)

func registerRegistryFlags(fs *pflag.FlagSet) {
	fs.Duration("degraded-lag-threshold", degradedLagThreshold.Default(), "Report a replica Degraded when its staleness estimate exceeds this threshold (0 to disable).")

	viperutil.BindFlags(fs, degradedLagThreshold)
}

// Health is an instance's health as judged by the lag monitor.
type Health int8

const (
	// HealthUnknown is the state before the first probe completes.
	HealthUnknown Health = iota
	// Healthy means the latest probe succeeded.
	Healthy
	// Degraded means probes are failing, but not long enough to write
	// the instance off, or the instance is lagging beyond the
	// configured threshold.
	Degraded
	// Unreachable means probes have failed the configured number of
	// consecutive times.
	Unreachable
)

func (h Health) String() string {
	switch h {
	case HealthUnknown:
		return "unknown"
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unreachable:
		return "unreachable"
	default:
		return "invalid"
	}
}

// MarshalText makes health states render by name in JSON.
func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (h *Health) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unknown":
		*h = HealthUnknown
	case "healthy":
		*h = Healthy
	case "degraded":
		*h = Degraded
	case "unreachable":
		*h = Unreachable
	default:
		return rgerrors.Errorf(rgerrors.InvalidArgument, "unknown health state %q", text)
	}
	return nil
}

// InstanceHealth is the registry's view of one instance: the static
// descriptor plus everything the lag monitor learned about it. Values
// handed out in a Snapshot are copies; do not mutate them.
type InstanceHealth struct {
	Instance *instance.Instance `json:"instance"`
	// Health is updated only from probe results.
	Health Health `json:"health"`
	// Watermark is the last known applied watermark. It never regresses.
	Watermark bookmark.Watermark `json:"watermark"`
	// Lag estimates how stale the instance is: zero when caught up with
	// the primary's known watermark, otherwise the time since this
	// instance last made progress.
	Lag time.Duration `json:"lag"`
	// RTT is the smoothed probe round-trip time.
	RTT time.Duration `json:"rtt"`
	// LastError is the error of the most recent failed probe, if the
	// instance is not healthy.
	LastError string `json:"last_error,omitempty"`
	// LastProbe is when the last probe completed, successful or not.
	LastProbe time.Time `json:"last_probe"`
	// LastChange is when Health last transitioned.
	LastChange time.Time `json:"last_change"`
}

// Snapshot is an immutable view of the registry, atomically swapped on
// every update. Version increases with each publish.
type Snapshot struct {
	Version  uint64            `json:"version"`
	Primary  *InstanceHealth   `json:"primary,omitempty"`
	Replicas []*InstanceHealth `json:"replicas"`
}

// All returns the primary (when present) followed by the replicas.
func (s *Snapshot) All() []*InstanceHealth {
	all := make([]*InstanceHealth, 0, len(s.Replicas)+1)
	if s.Primary != nil {
		all = append(all, s.Primary)
	}
	return append(all, s.Replicas...)
}

// Get returns the health for the given instance id, or nil.
func (s *Snapshot) Get(id string) *InstanceHealth {
	if s.Primary != nil && s.Primary.Instance.ID == id {
		return s.Primary
	}
	for _, ih := range s.Replicas {
		if ih.Instance.ID == id {
			return ih
		}
	}
	return nil
}

// HealthTransition is one health state change of one instance.
type HealthTransition struct {
	At     time.Time `json:"at"`
	Health Health    `json:"health"`
	Error  string    `json:"error,omitempty"`
}

// IsDuplicate implements history.Deduplicable: consecutive records in
// the same state collapse.
func (t *HealthTransition) IsDuplicate(other any) bool {
	o, ok := other.(*HealthTransition)
	return ok && o.Health == t.Health
}

// instanceState is the registry's mutable record of one instance,
// guarded by Registry.mu.
type instanceState struct {
	inst        *instance.Instance
	health      Health
	watermark   bookmark.Watermark
	rtt         time.Duration
	lastErr     error
	lastProbe   time.Time
	lastChange  time.Time
	lastAdvance time.Time
	transitions *history.History
}

// Registry is the instance registry. The lag monitor is its only
// writer; request routing reads published snapshots.
type Registry struct {
	mu     sync.Mutex
	byID   map[string]*instanceState
	ver    uint64
	snap   atomic.Pointer[Snapshot]
	waitCh chan struct{}
}

// NewRegistry returns an empty registry publishing an empty snapshot.
func NewRegistry() *Registry {
	r := &Registry{
		byID:   make(map[string]*instanceState),
		waitCh: make(chan struct{}),
	}
	r.snap.Store(&Snapshot{Replicas: []*InstanceHealth{}})
	return r
}

// Register adds an instance in state HealthUnknown. At most one primary
// may be registered at a time.
func (r *Registry) Register(inst *instance.Instance) error {
	if inst == nil || inst.ID == "" {
		return rgerrors.New(rgerrors.InvalidArgument, "cannot register instance without an id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[inst.ID]; ok {
		return rgerrors.Errorf(rgerrors.FailedPrecondition, "instance %s is already registered", inst.ID)
	}
	if inst.IsPrimary() {
		for _, state := range r.byID {
			if state.inst.IsPrimary() {
				return rgerrors.Errorf(rgerrors.FailedPrecondition, "cannot register %s as primary: %s already is", inst.ID, state.inst.ID)
			}
		}
	}

	now := time.Now()
	r.byID[inst.ID] = &instanceState{
		inst:        inst,
		health:      HealthUnknown,
		lastChange:  now,
		lastAdvance: now,
		transitions: history.New(transitionHistoryLength),
	}
	r.publishLocked()
	return nil
}

// Deregister removes an instance. The primary cannot be deregistered;
// every write depends on it, so removing it is a reconfiguration, not a
// runtime operation.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.byID[id]
	if !ok {
		return rgerrors.Errorf(rgerrors.NotFound, "instance %s is not registered", id)
	}
	if state.inst.IsPrimary() {
		return rgerrors.Wrapf(ErrNoPrimary, "cannot deregister the primary %s", id)
	}

	delete(r.byID, id)
	r.publishLocked()
	return nil
}

// UpdateWatermark records a probe result: health and RTT always apply;
// the watermark applies only for successful probes and never regresses.
// A reported regression is dropped, counted, and logged (throttled) —
// it signals a restore or restart on the instance, not a routing
// emergency.
func (r *Registry) UpdateWatermark(id string, wm bookmark.Watermark, health Health, rtt time.Duration, probeErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.byID[id]
	if !ok {
		return rgerrors.Errorf(rgerrors.NotFound, "instance %s is not registered", id)
	}

	now := time.Now()
	state.lastProbe = now
	state.rtt = rtt
	state.lastErr = probeErr

	if probeErr == nil {
		switch {
		case wm > state.watermark:
			state.watermark = wm
			state.lastAdvance = now
		case wm < state.watermark:
			watermarkRegressions.Add(id, 1)
			regressionLogger.Warningf("instance %s reported watermark %d behind known %d; keeping %d", id, wm, state.watermark, state.watermark)
		}
	}

	if health != state.health {
		state.health = health
		state.lastChange = now
		errStr := ""
		if probeErr != nil {
			errStr = probeErr.Error()
		}
		state.transitions.Add(&HealthTransition{At: now, Health: health, Error: errStr})
	}

	r.publishLocked()
	return nil
}

// Snapshot returns the current published snapshot. It never blocks.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Wait returns a channel that is closed on the next publish. Callers
// waiting for replication progress select on it, re-reading Snapshot
// each time it fires.
func (r *Registry) Wait() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waitCh
}

// Transitions returns the retained health transitions of an instance,
// most recent first.
func (r *Registry) Transitions(id string) []*HealthTransition {
	r.mu.Lock()
	state, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	records := state.transitions.Records()
	transitions := make([]*HealthTransition, 0, len(records))
	for _, rec := range records {
		if t, ok := rec.(*HealthTransition); ok {
			transitions = append(transitions, t)
		}
	}
	return transitions
}

func (r *Registry) publishLocked() {
	r.ver++
	snap := &Snapshot{
		Version:  r.ver,
		Replicas: make([]*InstanceHealth, 0, len(r.byID)),
	}

	var primary *instanceState
	for _, state := range r.byID {
		if state.inst.IsPrimary() {
			primary = state
			break
		}
	}

	now := time.Now()
	lagThreshold := degradedLagThreshold.Get()
	for _, state := range r.byID {
		ih := &InstanceHealth{
			Instance:   state.inst,
			Health:     state.health,
			Watermark:  state.watermark,
			RTT:        state.rtt,
			LastProbe:  state.lastProbe,
			LastChange: state.lastChange,
		}
		if state.lastErr != nil {
			ih.LastError = state.lastErr.Error()
		}
		if primary != nil && state != primary && state.watermark < primary.watermark {
			ih.Lag = now.Sub(state.lastAdvance)
			if lagThreshold > 0 && ih.Health == Healthy && ih.Lag > lagThreshold {
				ih.Health = Degraded
			}
		}

		instanceWatermarks.Set(state.inst.ID, int64(state.watermark))
		instanceLagNs.Set(state.inst.ID, int64(ih.Lag))

		if state == primary {
			snap.Primary = ih
		} else {
			snap.Replicas = append(snap.Replicas, ih)
		}
	}
	sort.Slice(snap.Replicas, func(i, j int) bool {
		return snap.Replicas[i].Instance.ID < snap.Replicas[j].Instance.ID
	})

	r.snap.Store(snap)
	close(r.waitCh)
	r.waitCh = make(chan struct{})
}
