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

// Package servenv contains functionality that is common for all
// ReplGate server programs. It defines and initializes command line
// flags that control the runtime environment.
//
// After a server program has parsed its flags, it needs to call
// servenv.Init to apply the command line variables to the environment,
// and servenv.RunDefault (or Run) to serve the HTTP endpoints and block
// until shutdown.
//
// If you need to plug in any custom initialization or cleanup for a
// ReplGate binary, register them using OnInit and OnClose. A clean way
// of achieving that is adding to this package a file with an init()
// function that registers the hooks.
package servenv

import (
	"os"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/replgate/replgate/go/rg/log"
	"github.com/replgate/replgate/go/rg/rgerrors"
	"github.com/replgate/replgate/go/stats/prometheusbackend"
	"github.com/replgate/replgate/go/trace"
	"github.com/replgate/replgate/go/viperutil"
)

var (
	// The flags used when calling RegisterDefaultFlags.
	port        int
	bindAddress string

	// The flags used when calling RegisterFlags.
	lameduckPeriod = 50 * time.Millisecond
	onTermTimeout  = 10 * time.Second
	onCloseTimeout = 10 * time.Second
	memProfileRate = 512 * 1024
	maxOpenFds     = uint64(32768)
	maxAcceptRate  = int64(0)

	// mu protects the Init function.
	mu sync.Mutex

	onInitHooks     hooks
	onTermHooks     hooks
	onTermSyncHooks hooks
	onRunHooks      hooks
	onCloseHooks    hooks
	inited          bool
)

// Init is the first phase of the server startup. It parses nothing: the
// command line must already have been handled (by cobra in every
// ReplGate binary) before calling it.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	if inited {
		log.Fatal("servenv.Init called second time")
	}
	inited = true

	if version {
		AppVersion.Print()
		os.Exit(0)
	}

	// Once you run as root, you pretty much destroy the machine you're
	// working on.
	if os.Getuid() == 0 {
		log.Exitf("servenv.Init: running this as root makes no sense")
	}

	runtime.MemProfileRate = memProfileRate

	// Raise the fd limit so a busy router does not run out of sockets.
	fdLimit := &syscall.Rlimit{Cur: maxOpenFds, Max: maxOpenFds}
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, fdLimit); err != nil {
		log.Warningf("can't Setrlimit %#v: err %v", *fdLimit, err)
	} else {
		log.V(1).Infof("set max-open-fds = %v", maxOpenFds)
	}

	// Every published stats var becomes scrapeable on /metrics.
	prometheusbackend.Init("replgate")

	onInitHooks.Fire()
}

// OnInit registers f to be run at the beginning of the app
// lifecycle. It will be called in Init().
func OnInit(f func()) {
	onInitHooks.Add(f)
}

// OnTerm registers a function to be run when the process receives a
// SIGTERM. This allows the program to change its behavior during the
// lameduck period. All hooks are run in parallel, and there is no
// guarantee that the process will wait for them to finish before dying
// when the lameduck period expires.
func OnTerm(f func()) {
	onTermHooks.Add(f)
}

// OnTermSync registers a function to be run when the process receives a
// SIGTERM. All hooks are run in parallel, and the process will do its
// best to wait (up to --onterm-timeout) for all of them to finish
// before dying.
func OnTermSync(f func()) {
	onTermSyncHooks.Add(f)
}

// OnRun registers f to be run right at the beginning of Run. All
// hooks are run in parallel.
func OnRun(f func()) {
	onRunHooks.Add(f)
}

// FireRunHooks fires the hooks registered by OnRun. Use this in a
// non-server to run the hooks registered by servenv.OnRun().
func FireRunHooks() {
	onRunHooks.Fire()
}

// OnClose registers f to be run at the end of the app lifecycle. This
// happens after the lameduck period, just before the program exits. All
// hooks are run in parallel.
func OnClose(f func()) {
	onCloseHooks.Add(f)
}

// fireOnTermSyncHooks returns true iff all the hooks finish before the
// timeout.
func fireOnTermSyncHooks(timeout time.Duration) bool {
	return fireHooksWithTimeout(timeout, "OnTermSync", onTermSyncHooks.Fire)
}

// fireOnCloseHooks returns true iff all the hooks finish before the
// timeout.
func fireOnCloseHooks(timeout time.Duration) bool {
	return fireHooksWithTimeout(timeout, "OnClose", onCloseHooks.Fire)
}

// fireHooksWithTimeout runs the hook function in a goroutine and gives
// up on it once the timeout expires, so a stuck hook cannot wedge
// shutdown forever.
func fireHooksWithTimeout(timeout time.Duration, name string, hookFn func()) bool {
	defer log.Flush()
	log.Infof("Firing %s hooks and waiting up to %v for them", name, timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	done := make(chan struct{})
	go func() {
		hookFn()
		close(done)
	}()

	select {
	case <-done:
		log.Infof("%s hooks finished", name)
		return true
	case <-timer.C:
		log.Infof("%s hooks timed out", name)
		return false
	}
}

// RegisterFlags installs the flags used by Init, Run and RunDefault.
func RegisterFlags() {
	OnParse(func(fs *pflag.FlagSet) {
		fs.DurationVar(&lameduckPeriod, "lameduck-period", lameduckPeriod, "keep running at least this long after SIGTERM before stopping")
		fs.DurationVar(&onTermTimeout, "onterm-timeout", onTermTimeout, "wait no more than this for OnTermSync handlers before stopping")
		fs.DurationVar(&onCloseTimeout, "onclose-timeout", onCloseTimeout, "wait no more than this for OnClose handlers before stopping")
		fs.IntVar(&memProfileRate, "mem-profile-rate", memProfileRate, "profile every n bytes allocated")
		fs.Uint64Var(&maxOpenFds, "max-open-fds", maxOpenFds, "max open file descriptors")
		fs.Int64Var(&maxAcceptRate, "max-accept-rate", maxAcceptRate, "if set, throttle accepted connections to this many per second")
	})
}

// RegisterDefaultFlags registers the default flags for listening to a
// given port for standard connections. If calling this, then call
// RunDefault().
func RegisterDefaultFlags() {
	OnParse(func(fs *pflag.FlagSet) {
		fs.IntVar(&port, "port", port, "port for the server")
		fs.StringVar(&bindAddress, "bind-address", bindAddress, "Bind address for the server. If empty, the server will listen on all available unicast and anycast IP addresses of the local system.")
	})
}

func init() {
	OnParse(log.RegisterFlags)
	OnParse(trace.RegisterFlags)
	OnParse(rgerrors.RegisterFlags)
	OnParse(viperutil.RegisterFlags)
}
