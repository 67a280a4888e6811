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
	"time"
)

// ThrottledListener throttles the number of connections accepted to the
// specified rate.
type ThrottledListener struct {
	net.Listener
	throttle <-chan time.Time
}

// NewThrottledListener creates a ThrottledListener. maxRate specifies
// the maximum rate of accepts per second.
func NewThrottledListener(l net.Listener, maxRate int64) net.Listener {
	return &ThrottledListener{l, time.Tick(time.Duration(1e9 / maxRate))}
}

// Accept accepts a new connection only if the accept rate will not
// exceed the throttling limit. Otherwise, it waits before accepting.
func (tln *ThrottledListener) Accept() (c net.Conn, err error) {
	<-tln.throttle
	return tln.Listener.Accept()
}
