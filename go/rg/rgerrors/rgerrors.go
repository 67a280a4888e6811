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

// Package rgerrors provides simple error handling primitives for ReplGate.
//
// The package provides a single error type that is used throughout the
// codebase, carrying an error Code alongside the message and, when
// enabled, a stack trace captured at creation time.
//
// Create errors with a code:
//
//	rgerrors.New(rgerrors.Unavailable, "no caught-up replica")
//	rgerrors.Errorf(rgerrors.InvalidArgument, "bad watermark %d", wm)
//
// Add context while preserving the original code and cause:
//
//	rgerrors.Wrapf(err, "probing %v", instanceID)
//
// Retrieve the code of any error with Code (errors without one report
// Unknown; context cancellation errors map to Canceled and
// DeadlineExceeded), and the innermost cause with RootCause. Wrapped
// errors implement Unwrap, so errors.Is works against the package's
// sentinel values.
//
// When the --log-err-stacks flag is set, formatting an error with %+v
// prints the stack trace of each error in the chain.
package rgerrors

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/replgate/replgate/go/rg/rgcode"
)

// logErrStacks controls whether %+v prints the captured stacks.
var logErrStacks bool

// RegisterFlags installs the rgerrors flags on the given FlagSet.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&logErrStacks, "log-err-stacks", false, "log stack traces for errors")
}

// New returns an error with the supplied message and code.
// New also records the stack trace at the point it was called.
func New(code rgcode.Code, message string) error {
	return &fundamental{
		msg:   message,
		code:  code,
		stack: callers(),
	}
}

// Errorf formats according to a format specifier and returns the string
// as a value that satisfies error.
// Errorf also records the stack trace at the point it was called.
func Errorf(code rgcode.Code, format string, args ...any) error {
	return &fundamental{
		msg:   fmt.Sprintf(format, args...),
		code:  code,
		stack: callers(),
	}
}

// fundamental is an error that has a message, a code and a stack, but
// no caller.
type fundamental struct {
	msg  string
	code rgcode.Code
	*stack
}

func (f *fundamental) Error() string { return f.msg }

// ErrorCode returns the error code.
func (f *fundamental) ErrorCode() rgcode.Code { return f.code }

func (f *fundamental) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		panicIfError(io.WriteString(s, "Code: "+f.code.String()+"\n"))
		panicIfError(io.WriteString(s, f.msg+"\n"))
		if logErrStacks {
			f.stack.Format(s, verb)
		}
		return
	case 's':
		panicIfError(io.WriteString(s, f.msg))
	case 'q':
		fmt.Fprintf(s, "%q", f.msg)
	}
}

// ErrorWithCode is implemented by errors that carry an error code.
type ErrorWithCode interface {
	ErrorCode() rgcode.Code
}

// Code returns the error code if it's a ReplGate error.
// If err is nil, it returns OK. Context errors map to their
// canonical codes. Anything else reports Unknown.
func Code(err error) rgcode.Code {
	if err == nil {
		return OK
	}
	if err, ok := err.(ErrorWithCode); ok {
		return err.ErrorCode()
	}

	cause := errors.Unwrap(err)
	if cause != nil && cause != err {
		// If there's a cause, and it's different, pull the code from it.
		return Code(cause)
	}

	// Handle some special cases.
	switch err {
	case context.Canceled:
		return Canceled
	case context.DeadlineExceeded:
		return DeadlineExceeded
	}
	return Unknown
}

// Wrap returns an error annotating err with a stack trace
// at the point Wrap is called, and the supplied message.
// If err is nil, Wrap returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrapping{
		cause: err,
		msg:   message,
		stack: callers(),
	}
}

// Wrapf returns an error annotating err with a stack trace
// at the point Wrapf is called, and the format specifier.
// If err is nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapping{
		cause: err,
		msg:   fmt.Sprintf(format, args...),
		stack: callers(),
	}
}

type wrapping struct {
	cause error
	msg   string
	*stack
}

func (w *wrapping) Error() string { return w.msg + ": " + w.cause.Error() }
func (w *wrapping) Unwrap() error { return w.cause }

func (w *wrapping) Format(s fmt.State, verb rune) {
	if rune('v') == verb {
		panicIfError(fmt.Fprintf(s, "%v\n", w.Unwrap()))
		panicIfError(io.WriteString(s, w.msg))
		if logErrStacks {
			w.stack.Format(s, verb)
		}
		return
	}
	panicIfError(io.WriteString(s, w.Error()))
}

// since we can't return an error, let's panic if something goes wrong here
func panicIfError(_ int, err error) {
	if err != nil {
		panic(err)
	}
}

// RootCause returns the underlying cause of the error, if possible.
// RootCause unwraps the whole error chain and returns the innermost
// error. If the error is nil, nil will be returned without further
// investigation.
func RootCause(err error) error {
	for {
		cause := Cause(err)
		if cause == nil {
			return err
		}
		err = cause
	}
}

// Cause will return the immediate cause, if possible.
// An error value has a cause if it implements the following
// interface:
//
//	interface {
//	       Cause() error
//	}
//
// If the error does not implement Cause or Unwrap, nil will be returned.
func Cause(err error) error {
	type causer interface {
		Cause() error
	}

	causerObj, ok := err.(causer)
	if ok {
		return causerObj.Cause()
	}
	return errors.Unwrap(err)
}

// Unwrap is a convenience alias for the standard library's errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}
