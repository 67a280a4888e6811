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
	"net"
	"os"

	"github.com/spf13/pflag"

	"github.com/replgate/replgate/go/rg/log"
)

// The flag used when calling RegisterDefaultSocketFileFlags.
var socketFile string

// ServeSocketFile listens to the named socket and serves the same HTTP
// endpoints on it as the TCP listener.
func ServeSocketFile(name string) {
	if name == "" {
		log.Infof("Not listening on socket file")
		return
	}

	// try to delete if file exists
	if _, err := os.Stat(name); err == nil {
		if err := os.Remove(name); err != nil {
			log.Exitf("Cannot remove socket file %v: %v", name, err)
		}
	}

	l, err := net.Listen("unix", name)
	if err != nil {
		log.Exitf("Error listening on socket file %v: %v", name, err)
	}
	log.Infof("Listening on socket file %v", name)
	go func() {
		if err := HTTPServe(l); err != nil {
			log.Errorf("http serve on socket file returned unexpected error: %v", err)
		}
	}()
}

// RegisterDefaultSocketFileFlags registers the --socket-file flag and
// arranges for the socket to be served once the server runs.
func RegisterDefaultSocketFileFlags() {
	OnParse(func(fs *pflag.FlagSet) {
		fs.StringVar(&socketFile, "socket-file", socketFile, "Local unix socket file to listen on")
	})
	OnRun(func() {
		ServeSocketFile(socketFile)
	})
}
