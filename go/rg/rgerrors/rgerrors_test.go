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

package rgerrors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"

	"github.com/replgate/replgate/go/rg/rgcode"
)

func TestWrapNil(t *testing.T) {
	got := Wrap(nil, "no error")
	if got != nil {
		t.Errorf("Wrap(nil, \"no error\"): got %#v, expected nil", got)
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		err         error
		message     string
		wantMessage string
		wantCode    rgcode.Code
	}{
		{io.EOF, "read error", "read error: EOF", Unknown},
		{New(AlreadyExists, "oops"), "client error", "client error: oops", AlreadyExists},
	}

	for _, tt := range tests {
		got := Wrap(tt.err, tt.message)
		if got.Error() != tt.wantMessage {
			t.Errorf("Wrap(%v, %q): got: [%v], want [%v]", tt.err, tt.message, got, tt.wantMessage)
		}
		if Code(got) != tt.wantCode {
			t.Errorf("Wrap(%v, %v): got: [%v], want [%v]", tt.err, tt, Code(got), tt.wantCode)
		}
	}
}

type nilError struct{}

func (nilError) Error() string { return "nil error" }

func TestRootCause(t *testing.T) {
	x := New(FailedPrecondition, "error")
	tests := []struct {
		err  error
		want error
	}{{
		// nil error is nil
		err:  nil,
		want: nil,
	}, {
		// typed nil is typed nil
		err:  (*nilError)(nil),
		want: (*nilError)(nil),
	}, {
		// uncaused error is unaffected
		err:  io.EOF,
		want: io.EOF,
	}, {
		// caused error returns cause
		err:  Wrap(io.EOF, "ignored"),
		want: io.EOF,
	}, {
		err:  x,
		want: x,
	}}

	for i, tt := range tests {
		got := RootCause(tt.err)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("test %d: got %#v, want %#v", i+1, got, tt.want)
		}
	}
}

func TestCause(t *testing.T) {
	x := New(FailedPrecondition, "error")
	tests := []struct {
		err  error
		want error
	}{{
		err:  nil,
		want: nil,
	}, {
		// uncaused error has no cause
		err:  io.EOF,
		want: nil,
	}, {
		// caused error returns cause
		err:  Wrap(io.EOF, "ignored"),
		want: io.EOF,
	}, {
		err:  x,
		want: nil,
	}}

	for i, tt := range tests {
		got := Cause(tt.err)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("test %d: got %#v, want %#v", i+1, got, tt.want)
		}
	}
}

func TestWrapfNil(t *testing.T) {
	got := Wrapf(nil, "no error")
	if got != nil {
		t.Errorf("Wrapf(nil, \"no error\"): got %#v, expected nil", got)
	}
}

func TestWrapf(t *testing.T) {
	tests := []struct {
		err     error
		message string
		want    string
	}{
		{io.EOF, "read error", "read error: EOF"},
		{Wrapf(io.EOF, "read error without format specifiers"), "client error", "client error: read error without format specifiers: EOF"},
		{Wrapf(io.EOF, "read error with %d format specifier", 1), "client error", "client error: read error with 1 format specifier: EOF"},
	}

	for _, tt := range tests {
		got := Wrap(tt.err, tt.message).Error()
		if got != tt.want {
			t.Errorf("Wrapf(%v, %q): got: %q, want %q", tt.err, tt.message, got, tt.want)
		}
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want rgcode.Code
	}{
		{nil, OK},
		{errors.New("generic"), Unknown},
		{New(Unavailable, "unavailable"), Unavailable},
		{Wrap(New(Canceled, "cancelled"), "outer"), Canceled},
		{Wrapf(Wrap(New(Internal, "bug"), "mid"), "outer"), Internal},
		{context.Canceled, Canceled},
		{context.DeadlineExceeded, DeadlineExceeded},
		{fmt.Errorf("wrapped: %w", context.Canceled), Canceled},
	}
	for i, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("test %d: Code(%v) = %v, want %v", i+1, tt.err, got, tt.want)
		}
	}
}

func TestErrorsIsThroughWrap(t *testing.T) {
	sentinel := New(Unavailable, "no caught-up replica")
	wrapped := Wrapf(sentinel, "waited %v", "50ms")

	if !errors.Is(wrapped, sentinel) {
		t.Errorf("errors.Is(%v, sentinel) = false, want true", wrapped)
	}
	if errors.Is(wrapped, io.EOF) {
		t.Errorf("errors.Is(%v, io.EOF) = true, want false", wrapped)
	}
}

func TestFormat(t *testing.T) {
	err := Wrap(New(InvalidArgument, "inner"), "outer")

	if got, want := fmt.Sprintf("%s", err), "outer: inner"; got != want {
		t.Errorf("%%s: got %q, want %q", got, want)
	}

	logErrStacks = true
	defer func() { logErrStacks = false }()
	plus := fmt.Sprintf("%v", err)
	if len(plus) <= len("outer: inner") {
		t.Errorf("%%v with stacks: expected stack output, got %q", plus)
	}
}
