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

package router

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/instance"
)

// Session threads one caller's bookmark through successive operations,
// so in-process callers don't carry tokens around themselves. It owns
// no routing logic: every call goes through the executor with the
// policy the current bookmark demands, and the returned bookmark
// replaces the held one. Safe for concurrent use; concurrent calls keep
// the strongest of the bookmarks they produce.
type Session struct {
	id       string
	executor *Executor

	mu       sync.Mutex
	bookmark *bookmark.Bookmark
}

// NewSession starts a fresh session with no consistency requirement.
func NewSession(executor *Executor) *Session {
	return &Session{
		id:       uuid.NewString(),
		executor: executor,
	}
}

// ResumeSession restores a session from an encoded bookmark token, for
// callers picking up where an earlier session left off.
func ResumeSession(executor *Executor, token string) (*Session, error) {
	b, err := bookmark.Decode(token)
	if err != nil {
		return nil, err
	}
	return &Session{
		id:       uuid.NewString(),
		executor: executor,
		bookmark: b,
	}, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Execute runs op under the session's current bookmark and advances the
// bookmark to the operation's outcome.
func (s *Session) Execute(ctx context.Context, op *instance.Operation) (*instance.Result, error) {
	s.mu.Lock()
	current := s.bookmark
	s.mu.Unlock()

	result, next, err := s.executor.Execute(ctx, PolicyFromBookmark(current), op)
	if err != nil {
		return nil, err
	}

	if next != nil {
		s.mu.Lock()
		// Merge rather than replace: a concurrent call may have already
		// advanced past this operation's requirement.
		s.bookmark = bookmark.Merge(s.bookmark, next)
		s.mu.Unlock()
	}
	return result, nil
}

// Bookmark returns the session's current bookmark, nil before the first
// operation of a fresh session.
func (s *Session) Bookmark() *bookmark.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookmark
}

// Token returns the session's bookmark in its opaque transport form,
// empty before the first operation of a fresh session.
func (s *Session) Token() string {
	return bookmark.Encode(s.Bookmark())
}
