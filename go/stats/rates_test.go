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
	"expvar"
	"testing"
	"time"
)

func TestRates(t *testing.T) {
	clear()
	c := NewCountersWithLabels("rcounter1", "help", "label")
	r := NewRates("rates1", c, 3, 1*time.Second)
	time.Sleep(50 * time.Millisecond)
	c.Add("tag1", 0)
	c.Add("tag2", 0)
	time.Sleep(1 * time.Second)
	want := `{"tag1":[0],"tag2":[0]}`
	if r.String() != want {
		t.Errorf("want %s, got %s", want, r.String())
	}
	c.Add("tag1", 10)
	c.Add("tag2", 20)
	time.Sleep(1 * time.Second)
	want = `{"tag1":[0,10],"tag2":[0,20]}`
	if r.String() != want {
		t.Errorf("want %s, got %s", want, r.String())
	}
	time.Sleep(1 * time.Second)
	want = `{"tag1":[0,10,0],"tag2":[0,20,0]}`
	if r.String() != want {
		t.Errorf("want %s, got %s", want, r.String())
	}
	time.Sleep(1 * time.Second)
	want = `{"tag1":[10,0,0],"tag2":[20,0,0]}`
	if r.String() != want {
		t.Errorf("want %s, got %s", want, r.String())
	}
}

func TestRatesConsistency(t *testing.T) {
	// This tests the following invariant: in the time window
	// covered by rates, the sum of the rates reported must be
	// equal to the count reported by the counter.
	const (
		interval = 1 * time.Second
		epsilon  = 50 * time.Millisecond
	)

	clear()
	c := NewCountersWithLabels("rcounter4", "help", "label")
	r := NewRates("rates4", c, 100, interval)

	time.Sleep(epsilon)
	c.Add("a", 1000)
	time.Sleep(interval)
	c.Add("a", 1)
	time.Sleep(interval)

	result := r.Get()
	counts := c.Counts()
	t.Logf("r.Get(): %v", result)
	t.Logf("c.Counts(): %v", counts)

	rate, count := result["a"], counts["a"]

	var sum float64
	for _, v := range rate {
		sum += v
	}
	if sum != float64(counts["a"]) {
		t.Errorf("rate inconsistent with count: sum of %v != %v", rate, count)
	}
}

func TestRatesHook(t *testing.T) {
	clear()
	c := NewCountersWithLabels("rcounter2", "help", "label")
	var gotname string
	var gotv *Rates
	clear()
	Register(func(name string, v expvar.Var) {
		gotname = name
		gotv = v.(*Rates)
	})

	v := NewRates("rates2", c, 2, 10*time.Second)
	if gotname != "rates2" {
		t.Errorf("want rates2, got %s", gotname)
	}
	if gotv != v {
		t.Errorf("want %#v, got %#v", v, gotv)
	}
}
