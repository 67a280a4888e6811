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
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/spf13/pflag"

	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/instance"
	"github.com/replgate/replgate/go/rg/log"
	"github.com/replgate/replgate/go/rg/rgerrors"
	"github.com/replgate/replgate/go/rg/servenv"
	"github.com/replgate/replgate/go/stats"
	"github.com/replgate/replgate/go/trace"
	"github.com/replgate/replgate/go/viperutil"
)

// readAttempts is the total read attempts per request: the initial one
// plus a single re-route after an instance failure.
const readAttempts = 2

var (
	markdownTTL = viperutil.Configure("executor.markdown_ttl", viperutil.Options[time.Duration]{
		Default:  10 * time.Second,
		FlagName: "instance-markdown-ttl",
	})

	executeTimings = stats.NewMultiTimings(
		"ExecuteTimings",
		"Operation execution latency by kind and instance",
		[]string{"Kind", "Instance"})
	readRetries = stats.NewCounter(
		"ExecuteReadRetries",
		"Reads re-routed to another instance after a transport failure")
	instanceMarkdowns = stats.NewCountersWithLabels(
		"InstanceMarkdowns",
		"Instances marked down after transport failures",
		"Instance")
)

func init() {
	servenv.OnParseFor("replgate", registerExecutorFlags)
}

func registerExecutorFlags(fs *pflag.FlagSet) {
	fs.Duration("instance-markdown-ttl", markdownTTL.Default(), "How long an instance is excluded from routing after a transport failure.")

	viperutil.BindFlags(fs, markdownTTL)
}

// ClientSource hands out the transport for an instance id. The lag
// monitor implements it; it owns the clients and their lifecycle.
type ClientSource interface {
	// Client returns the client for the given instance id, or nil when
	// the instance is not being served.
	Client(id string) instance.Client
}

// Executor runs operations against the instance the router picks and
// produces the outbound bookmark. Instances that fail at the transport
// level are marked down in a TTL cache and excluded from routing until
// the entry expires; a read that hits one is re-routed exactly once.
type Executor struct {
	router  *Router
	clients ClientSource
	marked  *cache.Cache
}

// NewExecutor returns an executor routing through router and executing
// over clients.
func NewExecutor(router *Router, clients ClientSource) *Executor {
	ttl := markdownTTL.Get()
	return &Executor{
		router:  router,
		clients: clients,
		marked:  cache.New(ttl, ttl),
	}
}

// Execute routes op per policy, runs it, and returns the result
// together with the bookmark the caller threads into its next request.
// The bookmark's requirement never decreases below the policy's: a
// session replaying its bookmarks observes a non-decreasing watermark.
func (e *Executor) Execute(ctx context.Context, policy *Policy, op *instance.Operation) (*instance.Result, *bookmark.Bookmark, error) {
	span, ctx := trace.NewSpan(ctx, "Executor.Execute", trace.Local)
	defer span.Finish()

	if op == nil || op.Query == "" {
		return nil, nil, rgerrors.New(rgerrors.InvalidArgument, "no operation to execute")
	}
	if policy == nil {
		policy = &Policy{}
	}
	span.Annotate("write", op.Write)

	if op.Write {
		return e.executeWrite(ctx, policy, op)
	}
	return e.executeRead(ctx, policy, op)
}

// executeWrite runs op on the primary. Writes are never re-routed: a
// failed write may or may not have applied, and retrying elsewhere
// would trade that ambiguity for a possible double-apply.
func (e *Executor) executeWrite(ctx context.Context, policy *Policy, op *instance.Operation) (*instance.Result, *bookmark.Bookmark, error) {
	target, err := e.router.Route(ctx, policy, true)
	if err != nil {
		return nil, nil, err
	}
	if !target.Instance.IsPrimary() {
		// Routing must resolve writes to the primary; anything else is
		// a bug we refuse to paper over.
		return nil, nil, rgerrors.Wrapf(instance.ErrWriteOnReplica, "routed write to %s", target.Instance)
	}

	client := e.clients.Client(target.Instance.ID)
	if client == nil {
		return nil, nil, rgerrors.Wrapf(instance.ErrInstanceUnavailable, "no client for %s", target.Instance.ID)
	}

	start := time.Now()
	result, wm, err := client.Execute(ctx, op)
	executeTimings.Add([]string{"write", target.Instance.ID}, time.Since(start))
	if err != nil {
		return nil, nil, err
	}

	// The post-write watermark guarantees the caller's next request
	// observes this write.
	return result, bookmark.Continuation(wm, target.Instance.ID), nil
}

// executeRead runs op on a policy-qualifying instance, re-routing once
// when the first instance fails at the transport level.
func (e *Executor) executeRead(ctx context.Context, policy *Policy, op *instance.Operation) (*instance.Result, *bookmark.Bookmark, error) {
	excluding := e.markedDown()
	var lastErr error

	for attempt := 0; attempt < readAttempts; attempt++ {
		if attempt > 0 {
			readRetries.Add(1)
		}

		target, err := e.router.RouteExcluding(ctx, policy, false, excluding)
		if err != nil {
			if lastErr != nil {
				// Routing ran dry after a markdown; the instance
				// failure is the more telling error.
				return nil, nil, lastErr
			}
			return nil, nil, err
		}

		client := e.clients.Client(target.Instance.ID)
		if client == nil {
			// The watched set changed under us; treat it like an
			// unreachable instance and re-route.
			lastErr = rgerrors.Wrapf(instance.ErrInstanceUnavailable, "no client for %s", target.Instance.ID)
			e.markDown(target.Instance.ID, excluding, lastErr)
			continue
		}

		start := time.Now()
		result, wm, err := client.Execute(ctx, op)
		executeTimings.Add([]string{"read", target.Instance.ID}, time.Since(start))
		if err != nil {
			if !errors.Is(err, instance.ErrInstanceUnavailable) {
				// Statement and policy errors fail the same way
				// everywhere; re-routing would only repeat them.
				return nil, nil, err
			}
			lastErr = err
			e.markDown(target.Instance.ID, excluding, err)
			continue
		}

		// Outbound requirement: whatever the caller already required,
		// raised to what this read reflected.
		required := policy.RequiredWatermark
		if wm > required {
			required = wm
		}
		return result, bookmark.Continuation(required, target.Instance.ID), nil
	}
	return nil, nil, lastErr
}

// markDown records a transport failure: the instance is excluded from
// routing until the TTL lapses.
func (e *Executor) markDown(id string, excluding map[string]bool, err error) {
	instanceMarkdowns.Add(id, 1)
	log.Warningf("marking instance %s down for %v: %v", id, markdownTTL.Get(), err)
	e.marked.Set(id, err.Error(), cache.DefaultExpiration)
	excluding[id] = true
}

// markedDown returns the current markdown set as a routing exclusion
// map.
func (e *Executor) markedDown() map[string]bool {
	items := e.marked.Items()
	excluding := make(map[string]bool, len(items))
	for id := range items {
		excluding[id] = true
	}
	return excluding
}
