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

// Package web is the HTTP face of the router: a JSON query API plus
// fleet introspection pages, served on the shared servenv mux. It owns
// no routing logic; requests are decoded, handed to the executor, and
// the outcome serialized.
package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/pflag"

	"github.com/replgate/replgate/go/rg/discovery"
	"github.com/replgate/replgate/go/rg/log"
	"github.com/replgate/replgate/go/rg/router"
	"github.com/replgate/replgate/go/rg/servenv"
	"github.com/replgate/replgate/go/trace"
)

var (
	httpCORSOrigins   []string
	httpNoCompression bool
	httpAccessLogs    = true
)

func registerAPIFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(&httpCORSOrigins, "http-cors-origins", httpCORSOrigins, "origins allowed to make cross-origin requests to the API routes")
	fs.BoolVar(&httpNoCompression, "http-no-compress", httpNoCompression, "disable gzip compression of API responses")
	fs.BoolVar(&httpAccessLogs, "http-access-logs", httpAccessLogs, "log every API request")
}

func init() {
	servenv.OnParseFor("replgate", registerAPIFlags)
}

// Options wraps the configuration of the API's HTTP behavior.
type Options struct {
	// CORSOrigins, when non-empty, enables CORS on all routes for the
	// listed origins.
	CORSOrigins []string
	// DisableCompression turns off gzip compression of API responses.
	DisableCompression bool
	// EnableLogging wraps the API routes in an access log.
	EnableLogging bool
}

// DefaultOptions returns the Options selected by the command line
// flags.
func DefaultOptions() Options {
	return Options{
		CORSOrigins:        httpCORSOrigins,
		DisableCompression: httpNoCompression,
		EnableLogging:      httpAccessLogs,
	}
}

// API is the HTTP query gateway.
type API struct {
	executor *router.Executor
	registry *discovery.Registry
	router   *mux.Router
}

// NewAPI wires up the API routes for the given executor and registry.
func NewAPI(executor *router.Executor, registry *discovery.Registry, opts Options) *API {
	api := &API{
		executor: executor,
		registry: registry,
		router:   mux.NewRouter(),
	}

	api.router.HandleFunc("/debug/health", api.healthHandler).Name("API.Health")
	api.router.HandleFunc("/debug/instances", api.instancesPageHandler).Name("API.InstancesPage")

	apiRouter := api.router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/query", adapt("API.Query", api.query)).Methods("POST").Name("API.Query")
	apiRouter.HandleFunc("/instances", adapt("API.Instances", api.instances)).Methods("GET").Name("API.Instances")

	// Middlewares are executed in order of addition. CORS is a special
	// case and is applied globally, the rest only to the API routes.
	if len(opts.CORSOrigins) > 0 {
		api.router.Use(handlers.CORS(
			handlers.AllowCredentials(), handlers.AllowedOrigins(opts.CORSOrigins)))
	}

	middlewares := []mux.MiddlewareFunc{}
	if !opts.DisableCompression {
		middlewares = append(middlewares, handlers.CompressHandler)
	}
	if opts.EnableLogging {
		middlewares = append(middlewares, accessLogHandler)
	}
	apiRouter.Use(middlewares...)

	return api
}

// ServeHTTP implements http.Handler.
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.router.ServeHTTP(w, r)
}

// Register mounts the API's routes on the shared servenv mux.
func (api *API) Register() {
	for _, pattern := range []string{"/api/", "/debug/health", "/debug/instances"} {
		servenv.HTTPHandle(pattern, api)
	}
}

// handler is the signature of one API endpoint: it never writes the
// ResponseWriter itself, it describes the response.
type handler func(ctx context.Context, r *http.Request) *JSONResponse

func adapt(name string, h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		span, ctx := trace.NewSpan(r.Context(), name, trace.Server)
		defer span.Finish()

		h(ctx, r).Write(w)
	}
}

// accessLogHandler funnels the standard Apache-style request log lines
// into our logger.
func accessLogHandler(next http.Handler) http.Handler {
	return handlers.CombinedLoggingHandler(glogWriter{}, next)
}

type glogWriter struct{}

func (glogWriter) Write(p []byte) (int, error) {
	log.Info(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
