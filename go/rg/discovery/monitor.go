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
	"context"
	"sync"
	"time"

	"github.com/sjmudd/stopwatch"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/replgate/replgate/go/rg/instance"
	"github.com/replgate/replgate/go/rg/log"
	"github.com/replgate/replgate/go/rg/rgerrors"
	"github.com/replgate/replgate/go/rg/servenv"
	"github.com/replgate/replgate/go/stats"
	"github.com/replgate/replgate/go/timer"
	"github.com/replgate/replgate/go/viperutil"
)

// srttAlpha is the smoothing factor folding each probe round-trip into
// the per-instance RTT estimate.
const srttAlpha = 0.125

var (
	probeInterval = viperutil.Configure("discovery.probe_interval", viperutil.Options[time.Duration]{
		Default:  500 * time.Millisecond,
		FlagName: "probe-interval",
		Dynamic:  true,
	})
	probeTimeout = viperutil.Configure("discovery.probe_timeout", viperutil.Options[time.Duration]{
		Default:  time.Second,
		FlagName: "probe-timeout",
		Dynamic:  true,
	})
	unreachableThreshold = viperutil.Configure("discovery.unreachable_threshold", viperutil.Options[int]{
		Default:  3,
		FlagName: "unreachable-threshold",
	})

	probeCounts = stats.NewCountersWithMultiLabels(
		"ProbeCounts",
		"Probe results by instance and result",
		[]string{"Instance", "Result"})
	probeTimings = stats.NewMultiTimings(
		"ProbeTimings",
		"Probe phase timings by instance",
		[]string{"Instance", "Phase"})
)

func init() {
	servenv.OnParseFor("replgate", registerRegistryFlags)
	servenv.OnParseFor("replgate", registerMonitorFlags)
}

func registerMonitorFlags(fs *pflag.FlagSet) {
	fs.Duration("probe-interval", probeInterval.Default(), "Interval between watermark probes per instance.")
	fs.Duration("probe-timeout", probeTimeout.Default(), "Timeout for a single watermark probe.")
	fs.Int("unreachable-threshold", unreachableThreshold.Default(), "Consecutive probe failures before an instance is reported Unreachable.")

	viperutil.BindFlags(fs, probeInterval, probeTimeout, unreachableThreshold)
}

// Monitor is the lag monitor: one goroutine per watched instance, each
// probing the instance's watermark on its own ticker and writing the
// result into the registry. It is the registry's only writer.
type Monitor struct {
	registry *Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	probes map[string]*probe
	closed bool

	wg sync.WaitGroup
}

// probe is the monitor's state for one instance. The loop fields are
// guarded by mu so the startup prime and the loop never race.
type probe struct {
	inst   *instance.Instance
	client instance.Client
	ticker *timer.SuspendableTicker
	cancel context.CancelFunc

	mu       sync.Mutex
	srtt     time.Duration
	failures int
}

// NewMonitor returns a monitor writing into the given registry.
func NewMonitor(registry *Registry) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		registry: registry,
		ctx:      ctx,
		cancel:   cancel,
		probes:   make(map[string]*probe),
	}
}

// Watch registers the instance and starts its probe loop. The monitor
// owns the client from here on and closes it when the loop ends.
func (m *Monitor) Watch(inst *instance.Instance, client instance.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return rgerrors.New(rgerrors.FailedPrecondition, "monitor is closed")
	}
	if _, ok := m.probes[inst.ID]; ok {
		return rgerrors.Errorf(rgerrors.FailedPrecondition, "instance %s is already watched", inst.ID)
	}
	if err := m.registry.Register(inst); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(m.ctx)
	p := &probe{
		inst:   inst,
		client: client,
		ticker: timer.NewSuspendableTicker(probeInterval.Get(), false),
		cancel: cancel,
	}
	m.probes[inst.ID] = p

	m.wg.Add(1)
	go m.probeLoop(ctx, p)
	return nil
}

// Unwatch deregisters the instance and stops its probe loop. The
// primary cannot be unwatched; the registry refuses to drop it.
func (m *Monitor) Unwatch(id string) error {
	m.mu.Lock()
	p, ok := m.probes[id]
	if !ok {
		m.mu.Unlock()
		return rgerrors.Errorf(rgerrors.NotFound, "instance %s is not watched", id)
	}
	if err := m.registry.Deregister(id); err != nil {
		m.mu.Unlock()
		return err
	}
	delete(m.probes, id)
	m.mu.Unlock()

	p.cancel()
	p.ticker.Stop()
	return nil
}

// Client returns the client of a watched instance, or nil when the
// instance is not watched (anymore). The monitor keeps ownership: the
// client stays usable until Unwatch or Close.
func (m *Monitor) Client(id string) instance.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.probes[id]; ok {
		return p.client
	}
	return nil
}

// Prime probes every watched instance once, in parallel, and returns
// when all probes completed. Call before serving so the first snapshot
// routing sees is populated.
func (m *Monitor) Prime(ctx context.Context) error {
	m.mu.Lock()
	probes := make([]*probe, 0, len(m.probes))
	for _, p := range m.probes {
		probes = append(probes, p)
	}
	m.mu.Unlock()

	eg, ctx := errgroup.WithContext(ctx)
	for _, p := range probes {
		eg.Go(func() error {
			// A failed probe is a health state, not a startup error.
			m.probeOnce(ctx, p)
			return ctx.Err()
		})
	}
	return eg.Wait()
}

// TickNow fires an immediate probe on every watched instance. Tests use
// it for deterministic rounds; each call blocks until the loops have
// accepted the tick.
func (m *Monitor) TickNow() {
	m.mu.Lock()
	probes := make([]*probe, 0, len(m.probes))
	for _, p := range m.probes {
		probes = append(probes, p)
	}
	m.mu.Unlock()

	for _, p := range probes {
		p.ticker.TickNow()
	}
}

// Close stops every probe loop and waits for them to unwind. Watched
// clients are closed by their loops on the way out.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, p := range m.probes {
		p.ticker.Stop()
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	return nil
}

func (m *Monitor) probeLoop(ctx context.Context, p *probe) {
	defer m.wg.Done()
	defer p.client.Close()
	defer p.ticker.Stop()

	// Probe immediately so startup is not blind for a full interval.
	m.probeOnce(ctx, p)

	interval := probeInterval.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ticker.C:
		}

		m.probeOnce(ctx, p)

		if d := probeInterval.Get(); d != interval && d > 0 {
			interval = d
			p.ticker.SetInterval(d)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context, p *probe) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout.Get())
	defer cancel()

	latency := stopwatch.NewNamedStopwatch()
	latency.AddMany([]string{"probe", "publish"})

	latency.Start("probe")
	wm, err := p.client.Probe(ctx)
	latency.Stop("probe")

	rtt := latency.Elapsed("probe")
	if p.srtt == 0 {
		p.srtt = rtt
	} else {
		p.srtt += time.Duration(srttAlpha * float64(rtt-p.srtt))
	}

	var health Health
	if err != nil {
		p.failures++
		health = Degraded
		if p.failures >= unreachableThreshold.Get() {
			health = Unreachable
		}
		probeCounts.Add([]string{p.inst.ID, "error"}, 1)
	} else {
		p.failures = 0
		health = Healthy
		probeCounts.Add([]string{p.inst.ID, "ok"}, 1)
	}

	latency.Start("publish")
	if uerr := m.registry.UpdateWatermark(p.inst.ID, wm, health, p.srtt, err); uerr != nil {
		// Lost a race with Unwatch; the loop is on its way out.
		log.V(2).Infof("dropping probe result for %s: %v", p.inst.ID, uerr)
	}
	latency.Stop("publish")

	probeTimings.Add([]string{p.inst.ID, "probe"}, rtt)
	probeTimings.Add([]string{p.inst.ID, "publish"}, latency.Elapsed("publish"))
}
