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

// Package vipertest provides utilities for testing code that reads
// viper-backed config values.
package vipertest

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/replgate/replgate/go/viperutil"
)

// Stub stubs out a given value to be backed by the passed-in viper,
// rather than the process's backing registries. It returns a function
// to undo this, restoring the original get function.
//
// Stubbing a value handle more than once in a single test fails the
// test. Tests should generally prefer this over mutating global config
// state directly.
func Stub[T any](t *testing.T, v *viper.Viper, value viperutil.Value[T]) (reset func()) {
	t.Helper()

	if !v.IsSet(value.Key()) {
		t.Logf("stubbed viper does not set %s", value.Key())
	}

	stubbed, ok := value.(interface {
		Stub(v *viper.Viper)
		Unstub()
	})
	if !ok {
		t.Fatalf("value %s does not support stubbing", value.Key())
	}

	stubbed.Stub(v)
	return stubbed.Unstub
}
