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

package servenv

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooksFireAll(t *testing.T) {
	var h hooks
	var fired atomic.Int64

	for i := 0; i < 10; i++ {
		h.Add(func() { fired.Add(1) })
	}

	h.Fire()
	assert.EqualValues(t, 10, fired.Load())

	// Firing again runs every hook again.
	h.Fire()
	assert.EqualValues(t, 20, fired.Load())
}

func TestHooksFireEachHookExactlyOnce(t *testing.T) {
	var h hooks
	var mu sync.Mutex
	counts := make(map[string]int)

	// Distinct hooks must each fire once per Fire. A shared-capture
	// regression fires the last registered hook N times instead,
	// skipping the others.
	for _, name := range []string{"flush", "close-monitor", "close-tracer"} {
		h.Add(func() {
			mu.Lock()
			defer mu.Unlock()
			counts[name]++
		})
	}

	h.Fire()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"flush": 1, "close-monitor": 1, "close-tracer": 1}, counts)
}

func TestHooksFireInParallel(t *testing.T) {
	var h hooks

	// Each hook blocks until every other hook has started. Fire would
	// deadlock if it ran them sequentially.
	const n = 4
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		h.Add(func() {
			wg.Done()
			wg.Wait()
		})
	}

	done := make(chan struct{})
	go func() {
		h.Fire()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("hooks.Fire did not run hooks in parallel")
	}
}

func TestFireHooksWithTimeout(t *testing.T) {
	assert.True(t, fireHooksWithTimeout(time.Second, "fast", func() {}))

	release := make(chan struct{})
	defer close(release)
	assert.False(t, fireHooksWithTimeout(10*time.Millisecond, "stuck", func() {
		<-release
	}))
}

func TestOnParseForScopesFlagsToCommand(t *testing.T) {
	OnParseFor("scoped-cmd", func(fs *pflag.FlagSet) {
		fs.Bool("scoped-only", false, "only visible to scoped-cmd")
	})

	withFlag := GetFlagSetFor("scoped-cmd")
	require.NotNil(t, withFlag.Lookup("scoped-only"))

	withoutFlag := GetFlagSetFor("some-other-cmd")
	assert.Nil(t, withoutFlag.Lookup("scoped-only"))
}

func TestGetFlagSetForIncludesGlobalFlags(t *testing.T) {
	fs := GetFlagSetFor("any-command-at-all")

	// Registered by the package init hooks.
	assert.NotNil(t, fs.Lookup("log-fmt"))
	assert.NotNil(t, fs.Lookup("tracer"))
	assert.NotNil(t, fs.Lookup("config-file"))

	version := fs.Lookup("version")
	require.NotNil(t, version)
	assert.Equal(t, "v", version.Shorthand)
}

func TestRegisterDefaultFlags(t *testing.T) {
	RegisterDefaultFlags()

	fs := GetFlagSetFor("default-flags-cmd")
	require.NotNil(t, fs.Lookup("port"))
	require.NotNil(t, fs.Lookup("bind-address"))

	require.NoError(t, fs.Parse([]string{"--port", "15999", "--bind-address", "127.0.0.1"}))
	assert.Equal(t, 15999, port)
	assert.Equal(t, "127.0.0.1", bindAddress)
}

func TestMoveFlagsToCobraCommand(t *testing.T) {
	OnParseFor("move-target", func(fs *pflag.FlagSet) {
		fs.Duration("move-target-window", time.Minute, "scoped flag for the move test")
	})

	cmd := &cobra.Command{Use: "move-target"}
	MoveFlagsToCobraCommand(cmd)

	assert.NotNil(t, cmd.Flags().Lookup("move-target-window"))
	assert.NotNil(t, cmd.Flags().Lookup("log-fmt"))
	// glog's standard library flags come along too.
	assert.NotNil(t, cmd.Flags().Lookup("logtostderr"))

	// glog's verbosity flag survives as --v only; the -v shorthand
	// stays with --version.
	verbosity := cmd.Flags().Lookup("v")
	require.NotNil(t, verbosity)
	assert.Empty(t, verbosity.Shorthand)
	version := cmd.Flags().ShorthandLookup("v")
	require.NotNil(t, version)
	assert.Equal(t, "version", version.Name)
}
