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

import "github.com/replgate/replgate/go/rg/rgcode"

// The code values live in rgcode; the Code function claims the name in
// this package. These aliases let call sites spell a code without a
// second import.
const (
	OK                 = rgcode.OK
	Canceled           = rgcode.Canceled
	Unknown            = rgcode.Unknown
	InvalidArgument    = rgcode.InvalidArgument
	DeadlineExceeded   = rgcode.DeadlineExceeded
	NotFound           = rgcode.NotFound
	AlreadyExists      = rgcode.AlreadyExists
	PermissionDenied   = rgcode.PermissionDenied
	ResourceExhausted  = rgcode.ResourceExhausted
	FailedPrecondition = rgcode.FailedPrecondition
	Aborted            = rgcode.Aborted
	OutOfRange         = rgcode.OutOfRange
	Unimplemented      = rgcode.Unimplemented
	Internal           = rgcode.Internal
	Unavailable        = rgcode.Unavailable
	DataLoss           = rgcode.DataLoss
	Unauthenticated    = rgcode.Unauthenticated
)
