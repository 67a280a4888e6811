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

	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/instance"
	"github.com/replgate/replgate/go/rg/rgerrors"
)

// FakeClient is a scriptable instance.Client for tests here and in the
// router package: the watermark it reports, and the errors it returns,
// can be changed at any time.
type FakeClient struct {
	inst *instance.Instance

	mu         sync.Mutex
	watermark  bookmark.Watermark
	probeErr   error
	execErr    error
	execResult *instance.Result
	probeDelay time.Duration

	probes   int
	executes int
	lastOp   *instance.Operation
	closed   bool
}

var _ instance.Client = (*FakeClient)(nil)

// NewFakeClient returns a fake client for the given instance, healthy
// at watermark 0.
func NewFakeClient(inst *instance.Instance) *FakeClient {
	return &FakeClient{inst: inst}
}

// SetWatermark sets the watermark reported by probes and reads.
func (f *FakeClient) SetWatermark(wm bookmark.Watermark) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watermark = wm
}

// Watermark returns the current scripted watermark.
func (f *FakeClient) Watermark() bookmark.Watermark {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermark
}

// SetProbeError makes probes fail with err until cleared with nil.
func (f *FakeClient) SetProbeError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeErr = err
}

// SetExecuteError makes Execute fail with err until cleared with nil.
func (f *FakeClient) SetExecuteError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execErr = err
}

// SetResult sets the result Execute returns for reads.
func (f *FakeClient) SetResult(res *instance.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execResult = res
}

// SetProbeDelay makes each probe take at least d, interruptible by the
// probe's context.
func (f *FakeClient) SetProbeDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeDelay = d
}

// Probe implements instance.Client.
func (f *FakeClient) Probe(ctx context.Context) (bookmark.Watermark, error) {
	f.mu.Lock()
	delay := f.probeDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.watermark, nil
}

// Execute implements instance.Client. Writes advance the watermark by
// one, mirroring the real backends.
func (f *FakeClient) Execute(ctx context.Context, op *instance.Operation) (*instance.Result, bookmark.Watermark, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.executes++
	f.lastOp = op

	if op.Write && !f.inst.IsPrimary() {
		return nil, 0, rgerrors.Wrapf(instance.ErrWriteOnReplica, "instance %s has role %s", f.inst.ID, f.inst.Role)
	}
	if f.execErr != nil {
		return nil, 0, f.execErr
	}
	if op.Write {
		f.watermark++
	}

	res := f.execResult
	if res == nil {
		res = &instance.Result{}
		if op.Write {
			res.RowsAffected = 1
		}
	}
	return res, f.watermark, nil
}

// Close implements instance.Client.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Probes returns how many probes completed or failed.
func (f *FakeClient) Probes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

// Executes returns how many Execute calls were made.
func (f *FakeClient) Executes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.executes
}

// LastOperation returns the most recent operation Execute received.
func (f *FakeClient) LastOperation() *instance.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOp
}

// Closed reports whether Close was called.
func (f *FakeClient) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
