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

package history

import (
	"reflect"
	"testing"
)

func TestHistory(t *testing.T) {
	h := New(3)
	if got := h.Records(); len(got) != 0 {
		t.Errorf("want empty records, got %v", got)
	}
	if h.Latest() != nil {
		t.Errorf("want nil latest, got %v", h.Latest())
	}

	for i := 1; i <= 2; i++ {
		h.Add(i)
	}
	if got, want := h.Records(), []any{2, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}

	for i := 3; i <= 5; i++ {
		h.Add(i)
	}
	// Only the latest three survive, most recent first.
	if got, want := h.Records(), []any{5, 4, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}
	if got, want := h.Latest(), 5; got != want {
		t.Errorf("want %v, got %v", want, got)
	}
}

type dedupRecord struct {
	v int
}

func (d dedupRecord) IsDuplicate(other any) bool {
	o, ok := other.(dedupRecord)
	return ok && o.v == d.v
}

func TestDeduplication(t *testing.T) {
	h := New(3)
	h.Add(dedupRecord{1})
	h.Add(dedupRecord{1})
	h.Add(dedupRecord{2})
	h.Add(dedupRecord{2})

	want := []any{dedupRecord{2}, dedupRecord{1}}
	if got := h.Records(); !reflect.DeepEqual(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}
}
