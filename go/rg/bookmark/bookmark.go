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

// Package bookmark defines the session consistency token that callers
// thread through successive requests, and the codec that turns it into
// an opaque transportable string.
//
// A bookmark records the minimum replication watermark the serving
// instance must have applied for the caller's next operation to be
// consistent with what the caller has already observed. Bookmarks are
// immutable: every operation produces a new one, callers only ever
// pass them back unmodified.
package bookmark

import "strconv"

// Watermark is a logical replication position: how much replicated
// history an instance has applied. Watermarks are totally ordered and
// non-decreasing per instance over time. The zero value means "no
// position".
type Watermark uint64

// AtLeast reports whether w satisfies a requirement of r.
func (w Watermark) AtLeast(r Watermark) bool {
	return w >= r
}

func (w Watermark) String() string {
	return strconv.FormatUint(uint64(w), 10)
}

// Kind discriminates what a bookmark asks of the router.
type Kind byte

const (
	// KindUnconstrained carries no requirement: any healthy instance
	// may serve, the freshest session start.
	KindUnconstrained Kind = iota
	// KindPrimary requires routing to the primary once, observing the
	// latest state.
	KindPrimary
	// KindContinuation requires an instance that has applied at least
	// RequiredWatermark.
	KindContinuation
)

func (k Kind) String() string {
	switch k {
	case KindUnconstrained:
		return "unconstrained"
	case KindPrimary:
		return "primary"
	case KindContinuation:
		return "continuation"
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

// Bookmark is the caller-held consistency token. It is a value object:
// the router only reads bookmarks and produces new ones, it never
// mutates or retains them.
type Bookmark struct {
	Kind Kind

	// RequiredWatermark is the minimum watermark the serving instance
	// must have applied. Only meaningful for KindContinuation; zero
	// means no requirement.
	RequiredWatermark Watermark

	// OriginInstanceID optionally records which instance produced this
	// bookmark. It is a debugging and affinity hint, never a
	// correctness input: watermarks are comparable across instances.
	OriginInstanceID string
}

// NewestUnconstrained returns the bookmark that starts a fresh session
// with no consistency requirement.
func NewestUnconstrained() *Bookmark {
	return &Bookmark{Kind: KindUnconstrained}
}

// Primary returns the bookmark that requires the next operation to be
// served by the primary.
func Primary() *Bookmark {
	return &Bookmark{Kind: KindPrimary}
}

// Continuation returns a bookmark requiring at least the given
// watermark, recording origin as the producing instance.
func Continuation(required Watermark, origin string) *Bookmark {
	return &Bookmark{
		Kind:              KindContinuation,
		RequiredWatermark: required,
		OriginInstanceID:  origin,
	}
}

// Merge combines two bookmarks into one that satisfies both: the
// stronger kind wins and the watermark requirement is the maximum.
// Either argument may be nil.
func Merge(a, b *Bookmark) *Bookmark {
	switch {
	case a == nil && b == nil:
		return NewestUnconstrained()
	case a == nil:
		return b
	case b == nil:
		return a
	}

	merged := &Bookmark{Kind: max(a.Kind, b.Kind)}
	if a.RequiredWatermark >= b.RequiredWatermark {
		merged.RequiredWatermark = a.RequiredWatermark
		merged.OriginInstanceID = a.OriginInstanceID
	} else {
		merged.RequiredWatermark = b.RequiredWatermark
		merged.OriginInstanceID = b.OriginInstanceID
	}
	return merged
}

func (b *Bookmark) String() string {
	if b == nil {
		return "bookmark{nil}"
	}
	s := "bookmark{" + b.Kind.String()
	if b.Kind == KindContinuation {
		s += " wm=" + b.RequiredWatermark.String()
	}
	if b.OriginInstanceID != "" {
		s += " origin=" + b.OriginInstanceID
	}
	return s + "}"
}
