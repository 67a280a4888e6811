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

package web

import (
	"encoding/json"
	"net/http"

	"github.com/replgate/replgate/go/rg/log"
	"github.com/replgate/replgate/go/rg/rgerrors"
)

// JSONResponse is the envelope every API endpoint returns.
type JSONResponse struct {
	Result any        `json:"result,omitempty"`
	Error  *errorBody `json:"error,omitempty"`
	Ok     bool       `json:"ok"`

	httpStatus int
	headers    map[string]string
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// NewJSONResponse returns a response for the given value and error
// pair, deriving the HTTP status from the error's code.
func NewJSONResponse(value any, err error) *JSONResponse {
	if err != nil {
		return &JSONResponse{
			Error: &errorBody{
				Message: err.Error(),
				Code:    rgerrors.Code(err).String(),
			},
			httpStatus: httpStatus(err),
		}
	}

	return &JSONResponse{
		Result:     value,
		Ok:         true,
		httpStatus: http.StatusOK,
	}
}

// WithHeader adds a response header, returning the response for
// chaining.
func (r *JSONResponse) WithHeader(key, value string) *JSONResponse {
	if r.headers == nil {
		r.headers = map[string]string{}
	}
	r.headers[key] = value
	return r
}

// Write renders the response onto w.
func (r *JSONResponse) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	for key, value := range r.headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(r.httpStatus)
	if err := json.NewEncoder(w).Encode(r); err != nil {
		log.Errorf("web: writing response: %v", err)
	}
}

// httpStatus maps a coded error onto the status the gateway reports.
// Routing failures are 503s, not 500s: the request was well-formed, the
// fleet just cannot serve it right now. That covers cancellation too,
// for which no registered status exists.
func httpStatus(err error) int {
	switch rgerrors.Code(err) {
	case rgerrors.InvalidArgument:
		return http.StatusBadRequest
	case rgerrors.NotFound:
		return http.StatusNotFound
	case rgerrors.FailedPrecondition, rgerrors.Unavailable, rgerrors.DeadlineExceeded, rgerrors.Canceled:
		return http.StatusServiceUnavailable
	case rgerrors.ResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
