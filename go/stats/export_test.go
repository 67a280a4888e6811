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
)

// clear drops the hook and pending vars so each test starts from a
// clean registry. expvar itself cannot be reset, so tests must use
// unique variable names.
func clear() {
	defaultVarGroup.Lock()
	defaultVarGroup.vars = make(map[string]expvar.Var)
	defaultVarGroup.newVarHook = nil
	defaultVarGroup.Unlock()
}

func TestNoHook(t *testing.T) {
	clear()
	v := NewCounter("plainint", "help")
	v.Add(1)
	if v.String() != "1" {
		t.Errorf("want 1, got %s", v.String())
	}
}

func TestHookReplaysEarlierVars(t *testing.T) {
	clear()
	v := NewCounter("earlycounter", "help")
	v.Add(3)

	var gotnames []string
	Register(func(name string, _ expvar.Var) {
		gotnames = append(gotnames, name)
	})

	found := false
	for _, name := range gotnames {
		if name == "earlycounter" {
			found = true
		}
	}
	if !found {
		t.Errorf("Register did not replay earlycounter, got %v", gotnames)
	}
}

func TestString(t *testing.T) {
	clear()
	s := NewString("expstring")
	s.Set(`x"y`)
	if want, got := `"x\"y"`, s.String(); got != want {
		t.Errorf("want %s, got %s", want, got)
	}
	if want, got := `x"y`, s.Get(); got != want {
		t.Errorf("want %s, got %s", want, got)
	}
}

func TestStringFunc(t *testing.T) {
	clear()
	f := StringFunc(func() string { return "hello" })
	if want, got := `"hello"`, f.String(); got != want {
		t.Errorf("want %s, got %s", want, got)
	}
}

func TestPublishJSONFunc(t *testing.T) {
	clear()
	PublishJSONFunc("jsonfunc", func() string { return `{"a": 1}` })
	if want, got := `{"a": 1}`, expvar.Get("jsonfunc").String(); got != want {
		t.Errorf("want %s, got %s", want, got)
	}
}
