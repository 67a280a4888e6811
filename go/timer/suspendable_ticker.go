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

package timer

import (
	"sync"
	"sync/atomic"
	"time"
)

// SuspendableTicker is similar to time.Ticker, but also offers Suspend()
// and Resume() functions. While the ticker is suspended, nothing comes
// from the time channel C.
type SuspendableTicker struct {
	ticker *time.Ticker
	// C is user facing
	C chan time.Time

	suspended atomic.Bool
	done      chan struct{}
	stopOnce  sync.Once
}

// NewSuspendableTicker creates a new suspendable ticker, indicating
// whether the ticker should start suspended or running.
func NewSuspendableTicker(d time.Duration, initiallySuspended bool) *SuspendableTicker {
	s := &SuspendableTicker{
		ticker: time.NewTicker(d),
		C:      make(chan time.Time),
		done:   make(chan struct{}),
	}
	if initiallySuspended {
		s.suspended.Store(true)
	}
	go s.loop()
	return s
}

// Suspend stops sending time events on the channel C.
// Time events sent during suspended time are lost.
func (s *SuspendableTicker) Suspend() {
	s.suspended.Store(true)
}

// Resume re-enables time events on channel C.
func (s *SuspendableTicker) Resume() {
	s.suspended.Store(false)
}

// SetInterval changes the tick interval from now on. An already pending
// tick is unaffected.
func (s *SuspendableTicker) SetInterval(d time.Duration) {
	s.ticker.Reset(d)
}

// Stop completely stops the ticker and releases its goroutine. It may
// be called more than once.
func (s *SuspendableTicker) Stop() {
	s.stopOnce.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
}

// TickNow generates a tick at this point in time. It may block
// if nothing consumes the tick.
func (s *SuspendableTicker) TickNow() {
	if !s.suspended.Load() {
		// not suspended
		s.C <- time.Now()
	}
}

func (s *SuspendableTicker) loop() {
	for {
		select {
		case <-s.done:
			return
		case t := <-s.ticker.C:
			if s.suspended.Load() {
				continue
			}
			select {
			case s.C <- t:
			case <-s.done:
				return
			}
		}
	}
}
