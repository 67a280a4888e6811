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

// Package rgcode defines the canonical error code space used across
// ReplGate. The rgerrors package attaches these codes to errors and
// retrieves them again with rgerrors.Code.
package rgcode

import "strconv"

// Code categorizes an error for callers that dispatch on failure class
// rather than on the exact sentinel. The numbering mirrors the gRPC
// canonical codes so values stay meaningful if they ever cross a wire.
type Code int32

const (
	// OK is returned on success.
	OK Code = iota

	// Canceled indicates the operation was cancelled (typically by the
	// caller).
	Canceled

	// Unknown error. Errors raised by APIs that do not return enough
	// error information may be converted to this error.
	Unknown

	// InvalidArgument indicates the client specified an invalid
	// argument, independent of the state of the system.
	InvalidArgument

	// DeadlineExceeded means the operation expired before completion.
	DeadlineExceeded

	// NotFound means some requested entity was not found.
	NotFound

	// AlreadyExists means an entity the operation attempted to create
	// already exists.
	AlreadyExists

	// PermissionDenied indicates the caller does not have permission to
	// execute the specified operation.
	PermissionDenied

	// ResourceExhausted indicates some resource has been exhausted.
	ResourceExhausted

	// FailedPrecondition indicates the system is not in a state
	// required for the operation's execution.
	FailedPrecondition

	// Aborted indicates the operation was aborted.
	Aborted

	// OutOfRange means the operation was attempted past the valid range.
	OutOfRange

	// Unimplemented indicates the operation is not implemented or not
	// supported in this process.
	Unimplemented

	// Internal means an invariant expected by the underlying system has
	// been broken. Reserved for serious errors.
	Internal

	// Unavailable indicates the service is currently unavailable. This
	// is most likely a transient condition.
	Unavailable

	// DataLoss indicates unrecoverable data loss or corruption.
	DataLoss

	// Unauthenticated indicates the request does not have valid
	// authentication credentials.
	Unauthenticated
)

var codeNames = map[Code]string{
	OK:                 "OK",
	Canceled:           "CANCELED",
	Unknown:            "UNKNOWN",
	InvalidArgument:    "INVALID_ARGUMENT",
	DeadlineExceeded:   "DEADLINE_EXCEEDED",
	NotFound:           "NOT_FOUND",
	AlreadyExists:      "ALREADY_EXISTS",
	PermissionDenied:   "PERMISSION_DENIED",
	ResourceExhausted:  "RESOURCE_EXHAUSTED",
	FailedPrecondition: "FAILED_PRECONDITION",
	Aborted:            "ABORTED",
	OutOfRange:         "OUT_OF_RANGE",
	Unimplemented:      "UNIMPLEMENTED",
	Internal:           "INTERNAL",
	Unavailable:        "UNAVAILABLE",
	DataLoss:           "DATA_LOSS",
	Unauthenticated:    "UNAUTHENTICATED",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "CODE(" + strconv.FormatInt(int64(c), 10) + ")"
}
