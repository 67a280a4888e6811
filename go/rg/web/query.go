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
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/instance"
	"github.com/replgate/replgate/go/rg/rgerrors"
	"github.com/replgate/replgate/go/rg/router"
)

// BookmarkHeader carries the session bookmark when the client prefers
// headers over body fields. Responses always mirror the outbound
// bookmark into it.
const BookmarkHeader = "X-Replgate-Bookmark"

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	// Query is the statement to execute, with driver placeholders.
	Query string `json:"query"`
	// Args are the placeholder arguments.
	Args []any `json:"args,omitempty"`
	// Write declares the statement mutates state and must run on the
	// primary.
	Write bool `json:"write,omitempty"`

	// Bookmark is the token from the previous response. When empty, the
	// X-Replgate-Bookmark request header is consulted.
	Bookmark string `json:"bookmark,omitempty"`

	// Mode overrides the routing mode the bookmark implies:
	// unconstrained, primary_first or continuation.
	Mode string `json:"mode,omitempty"`
	// StrictReplica forbids the primary fallback in continuation mode.
	StrictReplica bool `json:"strict_replica,omitempty"`
	// MaxWaitMS bounds the continuation wait, in milliseconds.
	MaxWaitMS int64 `json:"max_wait_ms,omitempty"`
	// Region biases replica selection towards the named region.
	Region string `json:"region,omitempty"`
}

// QueryResponse is the result payload of POST /api/v1/query.
type QueryResponse struct {
	*instance.Result

	// Bookmark is the token to thread into the next request of the
	// session.
	Bookmark string `json:"bookmark,omitempty"`
	// Instance is the id of the instance that served the statement.
	Instance string `json:"instance,omitempty"`
}

func (api *API) query(ctx context.Context, r *http.Request) *JSONResponse {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return NewJSONResponse(nil, rgerrors.Errorf(rgerrors.InvalidArgument, "decoding request body: %v", err))
	}
	req.fillBookmarkFromHeader(r)

	policy, err := req.policy()
	if err != nil {
		return NewJSONResponse(nil, err)
	}

	op := &instance.Operation{
		Query: req.Query,
		Args:  req.Args,
		Write: req.Write,
	}
	result, next, err := api.executor.Execute(ctx, policy, op)
	if err != nil {
		return NewJSONResponse(nil, err)
	}

	resp := &QueryResponse{Result: result}
	jr := NewJSONResponse(resp, nil)
	if next != nil {
		resp.Bookmark = bookmark.Encode(next)
		resp.Instance = next.OriginInstanceID
		jr.WithHeader(BookmarkHeader, resp.Bookmark)
	}
	return jr
}

// policy resolves the request's bookmark and overrides into the routing
// policy to execute under. A token that does not decode is the caller's
// error: it must never be silently treated as "no consistency needed".
func (req *QueryRequest) policy() (*router.Policy, error) {
	var bm *bookmark.Bookmark
	if token := req.Bookmark; token != "" {
		var err error
		if bm, err = bookmark.Decode(token); err != nil {
			return nil, err
		}
	}

	policy := router.PolicyFromBookmark(bm)
	if req.Mode != "" {
		mode, err := router.ParseMode(req.Mode)
		if err != nil {
			return nil, err
		}
		policy.Mode = mode
	}
	policy.StrictReplicaOnly = req.StrictReplica
	policy.PreferredRegion = req.Region
	if req.MaxWaitMS > 0 {
		policy.MaxWait = time.Duration(req.MaxWaitMS) * time.Millisecond
	}
	return policy, nil
}

// fillBookmarkFromHeader backfills the body's bookmark field from the
// request header when the body carries none.
func (req *QueryRequest) fillBookmarkFromHeader(r *http.Request) {
	if req.Bookmark == "" {
		req.Bookmark = r.Header.Get(BookmarkHeader)
	}
}
