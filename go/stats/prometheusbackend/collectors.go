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
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/replgate/replgate/go/rg/log"
	"github.com/replgate/replgate/go/stats"
)

type metricFuncCollector struct {
	// f returns the floating point value of the metric.
	f    func() float64
	desc *prometheus.Desc
	vt   prometheus.ValueType
}

// Describe implements Collector.
func (c *metricFuncCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements Collector.
func (c *metricFuncCollector) Collect(ch chan<- prometheus.Metric) {
	metric, err := prometheus.NewConstMetric(c.desc, c.vt, c.f())
	if err == nil {
		ch <- metric
	} else {
		log.Errorf("Error adding metric: %s", c.desc)
	}
}

// countersWithLabelsCollector collects stats.CountersWithLabels.
type countersWithLabelsCollector struct {
	counters *stats.CountersWithLabels
	desc     *prometheus.Desc
	vt       prometheus.ValueType
}

// Describe implements Collector.
func (c *countersWithLabelsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements Collector.
func (c *countersWithLabelsCollector) Collect(ch chan<- prometheus.Metric) {
	for tag, val := range c.counters.Counts() {
		metric, err := prometheus.NewConstMetric(c.desc, c.vt, float64(val), tag)
		if err == nil {
			ch <- metric
		} else {
			log.Errorf("Error adding metric: %s", c.desc)
		}
	}
}

// gaugesWithLabelsCollector collects stats.GaugesWithLabels.
type gaugesWithLabelsCollector struct {
	gauges *stats.GaugesWithLabels
	desc   *prometheus.Desc
	vt     prometheus.ValueType
}

// Describe implements Collector.
func (g *gaugesWithLabelsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- g.desc
}

// Collect implements Collector.
func (g *gaugesWithLabelsCollector) Collect(ch chan<- prometheus.Metric) {
	for tag, val := range g.gauges.Counts() {
		metric, err := prometheus.NewConstMetric(g.desc, g.vt, float64(val), tag)
		if err == nil {
			ch <- metric
		} else {
			log.Errorf("Error adding metric: %s", g.desc)
		}
	}
}

type metricWithMultiLabelsCollector struct {
	cml  *stats.CountersWithMultiLabels
	desc *prometheus.Desc
}

// Describe implements Collector.
func (c *metricWithMultiLabelsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements Collector.
func (c *metricWithMultiLabelsCollector) Collect(ch chan<- prometheus.Metric) {
	for lvs, val := range c.cml.Counts() {
		labelValues := strings.Split(lvs, ".")
		value := float64(val)
		metric, err := prometheus.NewConstMetric(c.desc, prometheus.CounterValue, value, labelValues...)
		if err == nil {
			ch <- metric
		} else {
			log.Errorf("Error adding metric: %s", c.desc)
		}
	}
}

type multiGaugesCollector struct {
	gml  *stats.GaugesWithMultiLabels
	desc *prometheus.Desc
}

// Describe implements Collector.
func (c *multiGaugesCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements Collector.
func (c *multiGaugesCollector) Collect(ch chan<- prometheus.Metric) {
	for lvs, val := range c.gml.Counts() {
		labelValues := strings.Split(lvs, ".")
		value := float64(val)
		metric, err := prometheus.NewConstMetric(c.desc, prometheus.GaugeValue, value, labelValues...)
		if err == nil {
			ch <- metric
		} else {
			log.Errorf("Error adding metric: %s", c.desc)
		}
	}
}

type metricsFuncWithMultiLabelsCollector struct {
	cfml *stats.CountersFuncWithMultiLabels
	desc *prometheus.Desc
	vt   prometheus.ValueType
}

// Describe implements Collector.
func (c *metricsFuncWithMultiLabelsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements Collector.
func (c *metricsFuncWithMultiLabelsCollector) Collect(ch chan<- prometheus.Metric) {
	for lvs, val := range c.cfml.Counts() {
		labelValues := strings.Split(lvs, ".")
		value := float64(val)
		metric, err := prometheus.NewConstMetric(c.desc, c.vt, value, labelValues...)
		if err == nil {
			ch <- metric
		} else {
			log.Errorf("Error adding metric: %s", c.desc)
		}
	}
}

type timingsCollector struct {
	t    *stats.Timings
	desc *prometheus.Desc
}

// Describe implements Collector.
func (c *timingsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements Collector.
func (c *timingsCollector) Collect(ch chan<- prometheus.Metric) {
	for cat, his := range c.t.Histograms() {
		ch <- prometheus.MustNewConstHistogram(
			c.desc,
			uint64(his.Count()),
			float64(his.Total())/1e9,
			makeCumulativeBuckets(his.Cutoffs(), his.Buckets()),
			cat)
	}
}

type multiTimingsCollector struct {
	mt   *stats.MultiTimings
	desc *prometheus.Desc
}

// Describe implements Collector.
func (c *multiTimingsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements Collector.
func (c *multiTimingsCollector) Collect(ch chan<- prometheus.Metric) {
	for cat, his := range c.mt.Timings.Histograms() {
		labelValues := strings.Split(cat, ".")
		ch <- prometheus.MustNewConstHistogram(
			c.desc,
			uint64(his.Count()),
			float64(his.Total())/1e9,
			makeCumulativeBuckets(his.Cutoffs(), his.Buckets()),
			labelValues...)
	}
}

// makeCumulativeBuckets converts each cutoff (in nanoseconds) into an
// upper bound in seconds, with the cumulative observation count under
// that bound, as Prometheus expects.
func makeCumulativeBuckets(cutoffs []int64, buckets []int64) map[float64]uint64 {
	output := make(map[float64]uint64, len(cutoffs))
	last := uint64(0)
	for i, m := range cutoffs {
		output[float64(m)/1e9] = uint64(buckets[i]) + last
		last = output[float64(m)/1e9]
	}
	return output
}
