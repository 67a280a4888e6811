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

// Package trace contains a helper interface that allows various tracing
// tools to be plugged in to components using this interface.
package trace

import (
	"context"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/spf13/pflag"

	"github.com/replgate/replgate/go/rg/log"
	"github.com/replgate/replgate/go/rg/rgerrors"
)

// Span represents a unit of work within a trace. After creating a Span
// with NewSpan(), call Finish() when the work is done to record the
// Span.
type Span interface {
	// Finish marks the span as complete.
	Finish()
	// Annotate records a key/value pair associated with a Span. It
	// should be called before Finish.
	Annotate(key string, value any)
}

// SpanType qualifies the work a span stands for.
type SpanType int

const (
	// Local is a span for work done locally.
	Local SpanType = iota
	// Client is a span spent acting as a client and waiting for a
	// response.
	Client
	// Server is a span spent doing work in service of a remote client
	// request.
	Server
)

var (
	tracingServer  = "noop"
	enableLogging  = false
	tracingSampler = 1.0

	// pluginFlags is appended to by backend plugins during init; the
	// registered functions install the plugin's flags alongside the
	// core trace flags.
	pluginFlags []func(fs *pflag.FlagSet)
)

// RegisterFlags installs the trace flags on the given flag set.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&tracingServer, "tracer", tracingServer, "tracing service to use")
	fs.BoolVar(&enableLogging, "tracing-enable-logging", enableLogging, "whether to enable logging in the tracing service")
	fs.Float64Var(&tracingSampler, "tracing-sampling-rate", tracingSampler, "sampler param; with the default const sampler, 1 samples everything and 0 nothing")

	for _, fn := range pluginFlags {
		fn(fs)
	}
}

// tracingService is an interface for creating spans or extracting them
// from Contexts.
type tracingService interface {
	New(parent Span, label string, spanType SpanType) Span
	FromContext(ctx context.Context) (Span, bool)
	NewContext(parent context.Context, span Span) context.Context
}

// spanFactory is changed by RegisterSpanFactory once a tracing plugin
// is started. Until then spans do nothing.
var spanFactory tracingService = fakeSpanFactory{}

// RegisterSpanFactory installs the factory that builds spans. It is
// not safe to call concurrently with span creation; call it during
// startup.
func RegisterSpanFactory(sf tracingService) {
	spanFactory = sf
}

// NewSpan creates a new Span whose parent is the Span attached to the
// given Context, if any, and returns it along with a Context carrying
// the new Span.
func NewSpan(inCtx context.Context, label string, spanType SpanType) (Span, context.Context) {
	parent, _ := spanFactory.FromContext(inCtx)
	span := spanFactory.New(parent, label, spanType)
	outCtx := spanFactory.NewContext(inCtx, span)
	return span, outCtx
}

// FromContext returns the Span from a Context if present. The bool
// return value indicates whether a Span was present in the Context.
func FromContext(ctx context.Context) (Span, bool) {
	return spanFactory.FromContext(ctx)
}

// NewContext returns a context based on parent with a new Span value.
func NewContext(parent context.Context, span Span) context.Context {
	return spanFactory.NewContext(parent, span)
}

// tracingBackendFactory builds the opentracing tracer for one backend.
type tracingBackendFactory func(serviceName string) (opentracing.Tracer, io.Closer, error)

// tracingBackendFactories should be added to by a plugin during init()
// to register itself.
var tracingBackendFactories = make(map[string]tracingBackendFactory)

// StartTracing enables tracing for a named service using the backend
// selected with --tracer. The returned closer flushes and shuts the
// tracer down; close it on process exit.
func StartTracing(serviceName string) io.Closer {
	factory, ok := tracingBackendFactories[tracingServer]
	if !ok {
		return fail(serviceName)
	}

	tracer, closer, err := factory(serviceName)
	if err != nil {
		log.Error(rgerrors.Wrapf(err, "failed to create a %v tracer", tracingServer))
		return nilCloser{}
	}

	opentracing.SetGlobalTracer(tracer)
	RegisterSpanFactory(openTracingService{Tracer: tracer})

	if tracingServer != "noop" {
		log.Infof("successfully started tracing with [%v]", tracingServer)
	}

	return closer
}

func fail(serviceName string) io.Closer {
	options := make([]string, 0, len(tracingBackendFactories))
	for k := range tracingBackendFactories {
		options = append(options, k)
	}
	log.Errorf("no such [%s] tracing service found for %s. Available options are: %v", tracingServer, serviceName, options)
	return nilCloser{}
}

// LogErrorsWhenClosing closes the provided Closer and logs any error it
// produces. It fits the servenv hook signatures.
func LogErrorsWhenClosing(in io.Closer) func() {
	return func() {
		if err := in.Close(); err != nil {
			log.Error(err)
		}
	}
}

func init() {
	tracingBackendFactories["noop"] = func(_ string) (opentracing.Tracer, io.Closer, error) {
		return opentracing.NoopTracer{}, nilCloser{}, nil
	}
}

type nilCloser struct{}

func (c nilCloser) Close() error { return nil }

// fakeSpanFactory is the installed factory until a plugin is started.
type fakeSpanFactory struct{}

func (fakeSpanFactory) New(Span, string, SpanType) Span                           { return fakeSpan{} }
func (fakeSpanFactory) FromContext(context.Context) (Span, bool)                  { return nil, false }
func (fakeSpanFactory) NewContext(parent context.Context, _ Span) context.Context { return parent }

// fakeSpan implements Span with no-op methods.
type fakeSpan struct{}

func (fakeSpan) Finish()              {}
func (fakeSpan) Annotate(string, any) {}
