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

package trace

import (
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/spf13/pflag"
	"github.com/uber/jaeger-client-go"
	"github.com/uber/jaeger-client-go/config"

	"github.com/replgate/replgate/go/rg/log"
)

var jaegerAgentHost string

func registerJaegerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&jaegerAgentHost, "jaeger-agent-host", jaegerAgentHost, "host and port to send spans to; if empty, the jaeger client environment variables are used")
}

// newJaegerTracerFromEnv instantiates a jaeger tracer, taking
// configuration from JAEGER_* environment variables first and command
// line flags second. The sampler defaults to const/1 when nothing is
// configured.
func newJaegerTracerFromEnv(serviceName string) (opentracing.Tracer, io.Closer, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = serviceName
	}

	// Allow command line args to override environment variables.
	if jaegerAgentHost != "" {
		cfg.Reporter.LocalAgentHostPort = jaegerAgentHost
	}
	log.Infof("Tracing to: %v as %v", cfg.Reporter.LocalAgentHostPort, cfg.ServiceName)

	if cfg.Sampler.Type == "" {
		cfg.Sampler.Type = jaeger.SamplerTypeConst
		cfg.Sampler.Param = tracingSampler
	}
	log.Infof("Tracing sampler type %v (param: %v)", cfg.Sampler.Type, cfg.Sampler.Param)

	var opts []config.Option
	if enableLogging {
		opts = append(opts, config.Logger(&traceLogger{}))
	} else if cfg.Reporter.LogSpans {
		log.Warningf("JAEGER_REPORTER_LOG_SPANS was set, but --tracing-enable-logging was not")
	}

	tracer, closer, err := cfg.NewTracer(opts...)
	if err != nil {
		return nil, nil, err
	}

	return tracer, closer, nil
}

func init() {
	tracingBackendFactories["opentracing-jaeger"] = newJaegerTracerFromEnv
	pluginFlags = append(pluginFlags, registerJaegerFlags)
}
