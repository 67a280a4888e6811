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

package prometheusbackend

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/replgate/replgate/go/stats"
)

const namespace = "replgate"

func TestMain(m *testing.M) {
	Init(namespace)
	os.Exit(m.Run())
}

func TestPrometheusCounter(t *testing.T) {
	name := "blah"
	c := stats.NewCounter(name, "blah help")
	c.Add(1)

	checkHandlerForMetrics(t, name, 1)

	// Increment.
	c.Add(1)
	checkHandlerForMetrics(t, name, 2)

	c.Reset()
	checkHandlerForMetrics(t, name, 0)
}

func TestPrometheusGauge(t *testing.T) {
	name := "blah_gauge"
	c := stats.NewGauge(name, "help")
	c.Set(-100)
	checkHandlerForMetrics(t, name, -100)
}

func TestPrometheusCounterFunc(t *testing.T) {
	stats.NewCounterFunc("blah_counterfunc", "help", func() int64 { return 2 })
	checkHandlerForMetrics(t, "blah_counterfunc", 2)
}

func TestPrometheusGaugeDuration(t *testing.T) {
	g := stats.NewGaugeDuration("blah_gauge_duration", "help")
	g.Set(42 * time.Second)
	checkHandlerForMetrics(t, "blah_gauge_duration", 42)
}

func TestPrometheusCounterWithLabels(t *testing.T) {
	c := stats.NewCountersWithLabels("blah_label", "help", "method")
	c.Add("get", 2)
	c.Add("post", 1)

	response := testMetricsHandler(t)
	for _, want := range []string{
		fmt.Sprintf(`%s_blah_label{method="get"} 2`, namespace),
		fmt.Sprintf(`%s_blah_label{method="post"} 1`, namespace),
	} {
		if !strings.Contains(response.Body.String(), want) {
			t.Fatalf("no %s in response:\n%s", want, response.Body.String())
		}
	}
}

func TestPrometheusCountersWithMultiLabels(t *testing.T) {
	c := stats.NewCountersWithMultiLabels("blah_multi", "help", []string{"Method", "Status"})
	c.Add([]string{"get", "ok"}, 3)

	want := fmt.Sprintf(`%s_blah_multi{method="get",status="ok"} 3`, namespace)
	response := testMetricsHandler(t)
	if !strings.Contains(response.Body.String(), want) {
		t.Fatalf("no %s in response:\n%s", want, response.Body.String())
	}
}

func TestPrometheusTimings(t *testing.T) {
	tm := stats.NewTimings("blah_timings", "help", "category")
	tm.Add("tag1", 1*time.Millisecond)

	response := testMetricsHandler(t)
	for _, want := range []string{
		fmt.Sprintf(`%s_blah_timings_count{Histograms="tag1"} 1`, namespace),
		fmt.Sprintf(`%s_blah_timings_bucket{Histograms="tag1",le="0.001"} 1`, namespace),
	} {
		if !strings.Contains(response.Body.String(), want) {
			t.Fatalf("no %s in response:\n%s", want, response.Body.String())
		}
	}
}

func TestPrometheusMetricNameNormalization(t *testing.T) {
	stats.NewCounter("CamelCounter", "help")
	checkHandlerForMetrics(t, "camel_counter", 0)
}

func checkHandlerForMetrics(t *testing.T, metric string, value int) {
	response := testMetricsHandler(t)

	expected := fmt.Sprintf("%s_%s %d", namespace, metric, value)

	if !strings.Contains(response.Body.String(), expected) {
		t.Fatalf("no %s in response:\n%s", expected, response.Body.String())
	}
}

func testMetricsHandler(t *testing.T) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", "/metrics", nil)
	response := httptest.NewRecorder()

	promhttp.Handler().ServeHTTP(response, req)
	return response
}
