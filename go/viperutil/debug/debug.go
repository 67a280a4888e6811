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

// Package debug exposes the combined config registry for debugging.
package debug

import (
	"net/http"

	"github.com/replgate/replgate/go/viperutil/internal/registry"
)

// HandlerFunc provides an http.HandlerFunc that renders the combined
// config registry (both static and dynamic) for debugging purposes.
func HandlerFunc(w http.ResponseWriter, r *http.Request) {
	registry.Combined().DebugTo(w)
}

// WriteConfigAs writes the combined config into the given filename.
func WriteConfigAs(filename string) error {
	return registry.Combined().WriteConfigAs(filename)
}
