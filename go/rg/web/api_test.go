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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replgate/replgate/go/rg/bookmark"
	"github.com/replgate/replgate/go/rg/discovery"
	"github.com/replgate/replgate/go/rg/instance"
	"github.com/replgate/replgate/go/rg/router"
)

type staticClients map[string]instance.Client

func (s staticClients) Client(id string) instance.Client { return s[id] }

// apiSetup builds a full gateway over fake clients: primary p1 and
// replica r1, both healthy with registry and client watermarks at 10.
func apiSetup(t *testing.T) (*API, *discovery.Registry, map[string]*discovery.FakeClient) {
	t.Helper()

	reg := discovery.NewRegistry()
	fakes := make(map[string]*discovery.FakeClient)
	clients := staticClients{}
	insts := []*instance.Instance{
		{ID: "p1", Role: instance.RolePrimary},
		{ID: "r1", Role: instance.RoleReplica, Region: "eu"},
	}
	for _, inst := range insts {
		require.NoError(t, reg.Register(inst))
		f := discovery.NewFakeClient(inst)
		f.SetWatermark(10)
		fakes[inst.ID] = f
		clients[inst.ID] = f
		require.NoError(t, reg.UpdateWatermark(inst.ID, 10, discovery.Healthy, time.Millisecond, nil))
	}

	exec := router.NewExecutor(router.NewRouter(reg, ""), clients)
	return NewAPI(exec, reg, Options{}), reg, fakes
}

// queryEnvelope mirrors the wire shape of a /api/v1/query response.
type queryEnvelope struct {
	Result *QueryResponse `json:"result"`
	Error  *errorBody     `json:"error"`
	Ok     bool           `json:"ok"`
}

func postQuery(t *testing.T, api *API, req *QueryRequest, headers map[string]string) (*httptest.ResponseRecorder, *queryEnvelope) {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest("POST", "/api/v1/query", bytes.NewReader(body))
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}
	resp := httptest.NewRecorder()
	api.ServeHTTP(resp, httpReq)

	var envelope queryEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope), "response was not valid JSON: %s", resp.Body.String())
	return resp, &envelope
}

func TestQueryWriteReturnsBookmark(t *testing.T) {
	api, _, fakes := apiSetup(t)

	resp, envelope := postQuery(t, api, &QueryRequest{
		Query: "insert into t (v) values (?)",
		Args:  []any{"x"},
		Write: true,
	}, nil)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.True(t, envelope.Ok)
	require.NotNil(t, envelope.Result)
	assert.EqualValues(t, 1, envelope.Result.RowsAffected)
	assert.Equal(t, "p1", envelope.Result.Instance)
	assert.Equal(t, 1, fakes["p1"].Executes())

	// The bookmark rides in both the body and the response header.
	require.NotEmpty(t, envelope.Result.Bookmark)
	assert.Equal(t, envelope.Result.Bookmark, resp.Header().Get(BookmarkHeader))

	b, err := bookmark.Decode(envelope.Result.Bookmark)
	require.NoError(t, err)
	assert.Equal(t, bookmark.KindContinuation, b.Kind)
	assert.Equal(t, bookmark.Watermark(11), b.RequiredWatermark)
}

func TestQueryThreadsBookmarkAcrossRequests(t *testing.T) {
	api, reg, fakes := apiSetup(t)

	_, writeEnv := postQuery(t, api, &QueryRequest{Query: "insert into t (v) values (1)", Write: true}, nil)
	require.True(t, writeEnv.Ok)

	// Once the replica catches up to the write, the continuation read
	// is served by it rather than the primary.
	fakes["r1"].SetWatermark(11)
	require.NoError(t, reg.UpdateWatermark("r1", 11, discovery.Healthy, time.Millisecond, nil))

	resp, readEnv := postQuery(t, api, &QueryRequest{
		Query:    "select v from t",
		Bookmark: writeEnv.Result.Bookmark,
	}, nil)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.True(t, readEnv.Ok)
	assert.Equal(t, "r1", readEnv.Result.Instance)

	b, err := bookmark.Decode(readEnv.Result.Bookmark)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, uint64(b.RequiredWatermark), uint64(11))
}

func TestQueryBookmarkFromHeader(t *testing.T) {
	api, _, fakes := apiSetup(t)

	// A primary-kind bookmark in the header must steer this read to the
	// primary even though the body carries no bookmark at all.
	token := bookmark.Encode(bookmark.Primary())
	resp, envelope := postQuery(t, api, &QueryRequest{Query: "select 1"}, map[string]string{
		BookmarkHeader: token,
	})

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.True(t, envelope.Ok)
	assert.Equal(t, 1, fakes["p1"].Executes())
	assert.Zero(t, fakes["r1"].Executes())
}

func TestQueryBodyBookmarkWinsOverHeader(t *testing.T) {
	api, _, fakes := apiSetup(t)

	resp, envelope := postQuery(t, api, &QueryRequest{
		Query:    "select 1",
		Bookmark: bookmark.Encode(bookmark.NewestUnconstrained()),
	}, map[string]string{
		BookmarkHeader: bookmark.Encode(bookmark.Primary()),
	})

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.True(t, envelope.Ok)
	// Unconstrained reads prefer replicas, so honoring the body
	// bookmark means the replica serves.
	assert.Equal(t, 1, fakes["r1"].Executes())
	assert.Zero(t, fakes["p1"].Executes())
}

func TestQueryModeOverride(t *testing.T) {
	api, _, fakes := apiSetup(t)

	resp, envelope := postQuery(t, api, &QueryRequest{Query: "select 1", Mode: "primary"}, nil)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.True(t, envelope.Ok)
	assert.Equal(t, 1, fakes["p1"].Executes())
	assert.Zero(t, fakes["r1"].Executes())
}

func TestQueryMalformedBookmarkRejected(t *testing.T) {
	api, _, fakes := apiSetup(t)

	resp, envelope := postQuery(t, api, &QueryRequest{
		Query:    "select 1",
		Bookmark: "rg:not-a-real-token",
	}, nil)

	// A bookmark that does not decode must never degrade to an
	// unconstrained read.
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.NotNil(t, envelope.Error)
	assert.False(t, envelope.Ok)
	assert.Equal(t, "INVALID_ARGUMENT", envelope.Error.Code)
	assert.Contains(t, envelope.Error.Message, "malformed bookmark")
	assert.Zero(t, fakes["p1"].Executes())
	assert.Zero(t, fakes["r1"].Executes())
}

func TestQueryUnknownModeRejected(t *testing.T) {
	api, _, _ := apiSetup(t)

	resp, envelope := postQuery(t, api, &QueryRequest{Query: "select 1", Mode: "quorum"}, nil)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_ARGUMENT", envelope.Error.Code)
}

func TestQueryEmptyStatementRejected(t *testing.T) {
	api, _, _ := apiSetup(t)

	resp, envelope := postQuery(t, api, &QueryRequest{}, nil)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_ARGUMENT", envelope.Error.Code)
}

func TestQueryMalformedJSONRejected(t *testing.T) {
	api, _, _ := apiSetup(t)

	httpReq := httptest.NewRequest("POST", "/api/v1/query", bytes.NewReader([]byte("{nope")))
	resp := httptest.NewRecorder()
	api.ServeHTTP(resp, httpReq)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestQueryMethodNotAllowed(t *testing.T) {
	api, _, _ := apiSetup(t)

	httpReq := httptest.NewRequest("GET", "/api/v1/query", nil)
	resp := httptest.NewRecorder()
	api.ServeHTTP(resp, httpReq)

	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestQueryFleetUnavailableMapsTo503(t *testing.T) {
	api, reg, _ := apiSetup(t)

	require.NoError(t, reg.UpdateWatermark("p1", 10, discovery.Unreachable, time.Millisecond, assert.AnError))
	require.NoError(t, reg.UpdateWatermark("r1", 10, discovery.Unreachable, time.Millisecond, assert.AnError))

	resp, envelope := postQuery(t, api, &QueryRequest{Query: "select 1"}, nil)

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "UNAVAILABLE", envelope.Error.Code)
}

func TestQueryStrictContinuationTimeoutMapsTo503(t *testing.T) {
	api, _, _ := apiSetup(t)

	token := bookmark.Encode(bookmark.Continuation(99, "p1"))
	resp, envelope := postQuery(t, api, &QueryRequest{
		Query:         "select v from t",
		Bookmark:      token,
		StrictReplica: true,
		MaxWaitMS:     20,
	}, nil)

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "DEADLINE_EXCEEDED", envelope.Error.Code)
}

func TestInstancesEndpoint(t *testing.T) {
	api, _, _ := apiSetup(t)

	httpReq := httptest.NewRequest("GET", "/api/v1/instances", nil)
	resp := httptest.NewRecorder()
	api.ServeHTTP(resp, httpReq)

	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Result *discovery.Snapshot `json:"result"`
		Ok     bool                `json:"ok"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.True(t, envelope.Ok)
	require.NotNil(t, envelope.Result)
	require.NotNil(t, envelope.Result.Primary)
	assert.Equal(t, "p1", envelope.Result.Primary.Instance.ID)
	require.Len(t, envelope.Result.Replicas, 1)
	assert.Equal(t, "r1", envelope.Result.Replicas[0].Instance.ID)
}

func TestInstancesPage(t *testing.T) {
	api, _, _ := apiSetup(t)

	httpReq := httptest.NewRequest("GET", "/debug/instances", nil)
	resp := httptest.NewRecorder()
	api.ServeHTTP(resp, httpReq)

	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, "Instance Registry")
	assert.Contains(t, body, "p1")
	assert.Contains(t, body, "r1")
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.EnableLogging)
	assert.False(t, opts.DisableCompression)
	assert.Empty(t, opts.CORSOrigins)
}

func TestHealthEndpoint(t *testing.T) {
	api, reg, _ := apiSetup(t)

	httpReq := httptest.NewRequest("GET", "/debug/health", nil)
	resp := httptest.NewRecorder()
	api.ServeHTTP(resp, httpReq)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok\n", resp.Body.String())

	require.NoError(t, reg.UpdateWatermark("p1", 10, discovery.Unreachable, time.Millisecond, assert.AnError))
	require.NoError(t, reg.UpdateWatermark("r1", 10, discovery.Unreachable, time.Millisecond, assert.AnError))

	resp = httptest.NewRecorder()
	api.ServeHTTP(resp, httpReq)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
