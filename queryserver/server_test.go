// Copyright © 2018 Enrico Stahn <enrico.stahn@gmail.com>
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queryserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfwatcher/pw-queryd/jsonrpc"
)

func newTestServer(maxClients int) *Server {
	reg := jsonrpc.NewRegistry()
	reg.Register("pw_get_dir_hosts", func(ctx context.Context, params json.RawMessage, result jsonrpc.ResultBuilder) (int, string) {
		result["values"] = []string{"host1"}
		result["nb"] = 1
		return 0, ""
	})
	return NewServer(jsonrpc.NewCodec(reg), maxClients)
}

// S1 — Unknown method, over HTTP.
func TestS1UnknownMethodOverHTTP(t *testing.T) {
	s := newTestServer(16)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"no_such"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mimeJSONRPC, rec.Header().Get("Content-Type"))

	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, resp.Error.Code)
}

// S3 — Admission limit.
func TestS3AdmissionLimit(t *testing.T) {
	s := newTestServer(1)
	s.Counters.active.Store(1) // simulate one in-flight request

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"pw_get_dir_hosts"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
	assert.JSONEq(t, tooManyConnectionsBody, rec.Body.String())
	assert.Equal(t, int64(1), s.Counters.failure.Load())
}

// S6 — Form-urlencoded body decodes equivalently to S1-shaped input.
func TestS6FormEncodedBody(t *testing.T) {
	s := newTestServer(16)
	encoded := url.QueryEscape(`{"jsonrpc":"2.0","id":1,"method":"pw_get_dir_hosts"}`)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(encoded))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
}

func TestGetMethodIsBadRequest(t *testing.T) {
	s := newTestServer(16)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
	assert.Equal(t, mimeHTML, rec.Header().Get("Content-Type"))
}

func TestEmptyBodyIsBadRequest(t *testing.T) {
	s := newTestServer(16)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(1), s.Counters.failure.Load())
}

func TestMalformedJSONIsBadRequestAndClosesConnection(t *testing.T) {
	s := newTestServer(16)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
}

// S2 — Batch with one good and one bad, over HTTP.
func TestS2BatchOverHTTP(t *testing.T) {
	s := newTestServer(16)
	body := `[{"jsonrpc":"2.0","id":1,"method":"pw_get_dir_hosts"},{"jsonrpc":"2.0","id":2,"method":"no_such"}]`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resps []jsonrpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resps))
	require.Len(t, resps, 2)
	assert.Nil(t, resps[0].Error)
	require.NotNil(t, resps[1].Error)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, resps[1].Error.Code)
}

func TestSuccessfulRequestReleasesAdmissionSlot(t *testing.T) {
	s := newTestServer(1)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"pw_get_dir_hosts"}`))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, int64(0), s.Counters.active.Load())
	assert.Equal(t, int64(3), s.Counters.success.Load())
}
