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

package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/replgate/replgate/go/rg/discovery"
	"github.com/replgate/replgate/go/rg/log"
	"github.com/replgate/replgate/go/rg/router"
	"github.com/replgate/replgate/go/rg/servenv"
	"github.com/replgate/replgate/go/rg/web"
	"github.com/replgate/replgate/go/trace"
)

// startupTimeout bounds schema initialization and the first probe
// round. A fleet that is down at startup only delays serving this
// long; probes keep reporting its health afterwards.
const startupTimeout = 30 * time.Second

var (
	localRegion string

	Main = &cobra.Command{
		Use:   "replgate",
		Short: "ReplGate routes queries across a replicated database fleet, keeping every session's reads at or after its own writes.",
		Example: `replgate \
	--config-file /etc/replgate/replgate.yaml \
	--region us-east-1 \
	--port 15999 \
	--probe-interval "500ms" \
	--degraded-lag-threshold "10s" \
	--alsologtostderr`,
		Args:    cobra.NoArgs,
		Version: servenv.AppVersion.String(),
		PreRunE: servenv.CobraPreRunE,
		Run:     run,
	}
)

func run(cmd *cobra.Command, args []string) {
	servenv.Init()

	closer := trace.StartTracing("replgate")
	servenv.OnClose(trace.LogErrorsWhenClosing(closer))

	log.Info("starting replgate")

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	members, err := buildFleet(ctx, instancesConfig.Get())
	if err != nil {
		log.Exitf("invalid instance configuration: %v", err)
	}

	registry := discovery.NewRegistry()
	monitor := discovery.NewMonitor(registry)
	for _, m := range members {
		if err := monitor.Watch(m.inst, m.client); err != nil {
			log.Exitf("cannot watch instance %s: %v", m.inst.ID, err)
		}
	}
	// One probe round before serving, so the first routed request does
	// not see an empty snapshot.
	if err := monitor.Prime(ctx); err != nil {
		log.Warningf("startup probe round incomplete: %v", err)
	}

	executor := router.NewExecutor(router.NewRouter(registry, localRegion), monitor)
	api := web.NewAPI(executor, registry, web.DefaultOptions())
	api.Register()

	servenv.OnRun(func() {
		addStatusParts(registry)
	})
	servenv.OnClose(func() {
		_ = monitor.Close()
	})
	servenv.RunDefault()
}

// addStatusParts adds the instance registry to the /debug/status page
// of replgate.
func addStatusParts(registry *discovery.Registry) {
	servenv.AddStatusPart("Instance Registry", discovery.StatusTemplate, func() any {
		return registry.CacheStatus()
	})
}

func init() {
	servenv.RegisterDefaultFlags()
	servenv.RegisterFlags()
	servenv.RegisterDefaultSocketFileFlags()

	servenv.MoveFlagsToCobraCommand(Main)

	Main.Flags().StringVar(&localRegion, "region", "", "Region this replgate serves from. Reads prefer replicas in the request's preferred region, falling back to this one.")
}
