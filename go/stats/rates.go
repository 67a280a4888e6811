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

package stats

import (
	"encoding/json"
	"sync"
	"time"
)

var timeNow = time.Now

// Rates is capable of reporting the rate (typically QPS)
// for any variable that satisfies the CountTracker interface.
type Rates struct {
	// mu guards all fields.
	mu           sync.Mutex
	timeStamps   *RingInt64
	counts       map[string]*RingInt64
	countTracker CountTracker
	samples      int
	interval     time.Duration
	// previousTotalCount is the total count (sum of all categories)
	// at the last sampling.
	previousTotalCount int64
	// timestampLastSampling is the time the periodic sampling was run last.
	timestampLastSampling time.Time
	// totalRate is the rate of total counts per second seen in the
	// latest sampling interval. For example, 100 queries in a 5 second
	// sampling interval makes a rate of 20 QPS.
	totalRate float64
}

// NewRates reports rolling rate information for countTracker. samples
// specifies the number of samples to report, and interval specifies
// the time interval between samples. The minimum interval is 1 second.
// If passing the special value of -1s as interval, we don't snapshot.
// (use this for tests).
func NewRates(name string, countTracker CountTracker, samples int, interval time.Duration) *Rates {
	if interval < 1*time.Second && interval != -1*time.Second {
		panic("interval too small")
	}
	rt := &Rates{
		timeStamps:            NewRingInt64(samples + 1),
		counts:                make(map[string]*RingInt64),
		countTracker:          countTracker,
		samples:               samples + 1,
		interval:              interval,
		timestampLastSampling: timeNow(),
	}
	if name != "" {
		publish(name, rt)
	}
	if interval > 0 {
		go rt.track()
	}
	return rt
}

func (rt *Rates) track() {
	t := time.NewTicker(rt.interval)
	defer t.Stop()
	for {
		rt.snapshot()
		<-t.C
	}
}

func (rt *Rates) snapshot() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := timeNow()

	currentCounts := rt.countTracker.Counts()
	currentTotalCount := int64(0)
	for _, v := range currentCounts {
		currentTotalCount += v
	}

	// Calculate the current total rate.
	// NOTE: We assume that every category with a non-zero value, which
	// was tracked in rt.previousTotalCount during a previous sampling,
	// is also a key in currentCounts (even if its value has not changed).
	timeDiffSecs := now.Sub(rt.timestampLastSampling).Seconds()
	if timeDiffSecs > 0 {
		rt.totalRate = float64(currentTotalCount-rt.previousTotalCount) / timeDiffSecs
	}
	rt.previousTotalCount = currentTotalCount
	rt.timestampLastSampling = now

	rt.timeStamps.Add(now.UnixNano())
	for k, v := range currentCounts {
		if values, ok := rt.counts[k]; ok {
			values.Add(v)
		} else {
			// Add the new key.
			values := NewRingInt64(rt.samples)
			rt.counts[k] = values
			values.Add(v)
		}
	}
}

// Get returns for each category (string) its latest rates (up to X
// values where X is the configured number of samples of the Rates
// struct).
// Rates are ordered from least recent (index 0) to most recent (end of
// slice).
func (rt *Rates) Get() (rateMap map[string][]float64) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rateMap = make(map[string][]float64)
	timeStamps := rt.timeStamps.Values()
	if len(timeStamps) <= 1 {
		return
	}
	for k, v := range rt.counts {
		rateMap[k] = make([]float64, len(timeStamps)-1)
		values := v.Values()
		valueIndex := len(values) - 1
		for i := len(timeStamps) - 1; i > 0; i-- {
			if valueIndex <= 0 {
				rateMap[k][i-1] = 0
				continue
			}
			elapsed := float64((timeStamps[i] - timeStamps[i-1]) / 1e9)
			rateMap[k][i-1] = float64(values[valueIndex]-values[valueIndex-1]) / elapsed
			valueIndex--
		}
	}
	return
}

// TotalRate returns the current total rate (counted across
// categories).
func (rt *Rates) TotalRate() float64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	return rt.totalRate
}

// String implements expvar.Var.
func (rt *Rates) String() string {
	data, err := json.Marshal(rt.Get())
	if err != nil {
		data, _ = json.Marshal(err.Error())
	}
	return string(data)
}
