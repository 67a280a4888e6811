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

package servenv

import (
	"errors"
	"net"
	"net/http"

	// The debug endpoints live on the default mux: expvar brings
	// /debug/vars and net/http/pprof brings /debug/pprof/.
	_ "expvar"
	_ "net/http/pprof"

	"github.com/replgate/replgate/go/viperutil/debug"
)

// HTTPHandle registers the given handler for the server mux.
func HTTPHandle(pattern string, handler http.Handler) {
	http.Handle(pattern, handler)
}

// HTTPHandleFunc registers the given handler func for the server mux.
func HTTPHandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	http.HandleFunc(pattern, handler)
}

// HTTPServe starts the HTTP server for the server mux on the listener,
// and swallows the errors an orderly shutdown produces.
func HTTPServe(l net.Listener) error {
	err := http.Serve(l, nil)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func init() {
	HTTPHandleFunc("/debug/config", debug.HandlerFunc)
}
