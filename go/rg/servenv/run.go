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
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/replgate/replgate/go/rg/log"
)

var (
	// ListeningURL is filled in when calling Run, contains the server URL.
	ListeningURL url.URL

	// ExitChan waits for a signal that tells the process to terminate.
	ExitChan chan os.Signal
)

// Run starts listening for HTTP requests on the given address and port,
// and blocks until the process receives SIGTERM or SIGINT. The
// shutdown order is: stop accepting connections, fire OnTerm hooks in
// the background, wait for the OnTermSync hooks and the rest of the
// lameduck period, then fire the OnClose hooks.
func Run(bindAddress string, port int) {
	populateListeningURL(port)

	l, err := net.Listen("tcp", net.JoinHostPort(bindAddress, strconv.Itoa(port)))
	if err != nil {
		log.Exit(err)
	}
	if maxAcceptRate > 0 {
		l = NewThrottledListener(l, maxAcceptRate)
	}
	log.Infof("Listening for HTTP requests on %v", &ListeningURL)
	onRunHooks.Fire()
	go func() {
		if err := HTTPServe(l); err != nil {
			log.Errorf("http serve returned unexpected error: %v", err)
		}
	}()

	ExitChan = make(chan os.Signal, 1)
	signal.Notify(ExitChan, syscall.SIGTERM, syscall.SIGINT)
	// Wait for signal
	<-ExitChan
	l.Close()

	startTime := time.Now()
	log.Infof("Entering lameduck mode for at least %v", lameduckPeriod)
	log.Infof("Firing asynchronous OnTerm hooks")
	go onTermHooks.Fire()

	fireOnTermSyncHooks(onTermTimeout)
	if remain := lameduckPeriod - time.Since(startTime); remain > 0 {
		log.Infof("Sleeping an extra %v after OnTermSync to finish lameduck period", remain)
		time.Sleep(remain)
	}

	log.Info("Shutting down gracefully")
	Close()
}

// RunDefault calls Run() with the parameters from the flags.
func RunDefault() {
	Run(bindAddress, port)
}

// Close runs any registered exit hooks in parallel, waiting no longer
// than --onclose-timeout for them.
func Close() {
	fireOnCloseHooks(onCloseTimeout)
	ListeningURL = url.URL{}
}

func populateListeningURL(port int) {
	host, err := os.Hostname()
	if err != nil {
		log.Exitf("os.Hostname() failed: %v", err)
	}
	ListeningURL = url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%v:%v", host, port),
		Path:   "/",
	}
}
