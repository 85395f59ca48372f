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
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/perfwatcher/pw-queryd/jsonrpc"
	"github.com/perfwatcher/pw-queryd/logging"
)

var log logging.Logger = logging.Nop

// SetLogger configures the logger used by this package.
func SetLogger(l logging.Logger) { log = l }

// DefaultMaxBodyBytes bounds the buffered body of a single request
// (spec.md §5's "memory for in-flight bodies is bounded by MaxClients
// x max-body").
const DefaultMaxBodyBytes = 4 << 20 // 4 MiB

const (
	mimeJSONRPC   = "application/json-rpc"
	mimeHTML      = "text/html"
	formURLEncode = "application/x-www-form-urlencoded"
)

// errorPage is the generic HTML body spec.md §4.4/§7 calls for on any
// structural HTTP failure.
const errorPage = `<html><head><title>400 Bad Request</title></head><body><h1>Bad Request</h1></body></html>`

const tooManyConnectionsBody = `{"jsonrpc":"2.0","error":{"code":-32400,"message":"Too many connections"},"id":null}`

// Server is the HTTP front-end of spec.md §4.4, dispatching admitted
// POST bodies to a Codec (C2/C3) and tracking the lifecycle counters
// of §4.5.
type Server struct {
	Codec        *jsonrpc.Codec
	MaxClients   int
	MaxBodyBytes int64
	Counters     *Counters
}

// NewServer builds a Server. maxClients is assumed already validated
// (config.Config.Validate). MaxBodyBytes starts at DefaultMaxBodyBytes;
// ServeHTTP also treats a MaxBodyBytes of 0 or less as
// DefaultMaxBodyBytes.
func NewServer(codec *jsonrpc.Codec, maxClients int) *Server {
	return &Server{
		Codec:        codec,
		MaxClients:   maxClients,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Counters:     &Counters{},
	}
}

// ServeHTTP implements spec.md §4.4's per-connection lifecycle:
// admission, body buffering, transport-encoding decode, codec dispatch,
// and the status-code/Content-Type/Connection mapping of §6/§7.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.fail(w, http.StatusBadRequest, true)
		return
	}

	if !s.Counters.tryAdmit(s.MaxClients) {
		w.Header().Set("Content-Type", mimeJSONRPC)
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, tooManyConnectionsBody)
		s.Counters.failure.Add(1)
		return
	}
	s.Counters.newConnections.Add(1)
	defer s.Counters.release()

	maxBody := s.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		log.Errorf("queryserver: reading body: %v", err)
		s.fail(w, http.StatusBadRequest, true)
		return
	}
	if len(body) == 0 || int64(len(body)) > maxBody {
		s.fail(w, http.StatusBadRequest, true)
		return
	}

	if isFormEncoded(r.Header.Get("Content-Type")) {
		decoded, err := url.QueryUnescape(string(body))
		if err != nil {
			s.fail(w, http.StatusBadRequest, true)
			return
		}
		body = []byte(decoded)
	}

	answer, err := s.Codec.ParseRequest(r.Context(), body)
	if err != nil {
		s.fail(w, http.StatusBadRequest, true)
		return
	}

	w.Header().Set("Content-Type", mimeJSONRPC)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, answer)
	s.Counters.success.Add(1)
}

// fail writes the generic HTML error page, closes the connection, and
// counts the request as a failure — spec.md §7's "structural HTTP
// failure" path, shared by the bad-verb and parse-failure cases.
func (s *Server) fail(w http.ResponseWriter, status int, close bool) {
	w.Header().Set("Content-Type", mimeHTML)
	if close {
		w.Header().Set("Connection", "close")
	}
	w.WriteHeader(status)
	io.WriteString(w, errorPage)
	s.Counters.failure.Add(1)
}

// isFormEncoded reports whether contentType declares
// application/x-www-form-urlencoded (spec.md §4.4), ignoring any
// charset or boundary parameters.
func isFormEncoded(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.EqualFold(mt, formURLEncode)
}
