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

package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/perfwatcher/pw-queryd/logging"
)

var log logging.Logger = logging.Nop

// SetLogger configures the logger used by this package.
func SetLogger(l logging.Logger) { log = l }

// ErrStructural is returned by ParseRequest whenever the envelope
// itself is unusable (spec.md §4.2/§7's "structural HTTP failure"):
// not valid JSON, not an object or array, or an object (alone or as any
// element of a batch) that fails jsonrpc/id validation entirely.
var ErrStructural = errors.New("jsonrpc: malformed request")

// Codec implements spec.md §4.2's parse_one/parse_request over a
// Registry (C3).
type Codec struct {
	registry *Registry
}

// NewCodec builds a Codec dispatching through registry.
func NewCodec(registry *Registry) *Codec {
	return &Codec{registry: registry}
}

type rawNode struct {
	JSONRPC *string         `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// ParseOne implements parse_one: it never returns an error, only
// (nil, false) for a node so malformed it cannot be answered at
// all (bad jsonrpc version, absent/non-integer id, or not an object).
func (c *Codec) ParseOne(ctx context.Context, raw json.RawMessage) (*Response, bool) {
	var node rawNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, false
	}
	if node.JSONRPC == nil || *node.JSONRPC != "2.0" {
		return nil, false
	}
	id, ok := parseID(node.ID)
	if !ok {
		return nil, false
	}

	resp := &Response{JSONRPC: "2.0", ID: &id}

	if node.Method == nil || *node.Method == "" {
		resp.Error = NewError(CodeInvalidRequest, "")
		return resp, true
	}

	handler, found := c.registry.Lookup(*node.Method)
	if !found {
		resp.Error = NewError(CodeMethodNotFound, "")
		return resp, true
	}

	reqID := uuid.New().String()
	log.Debugf("jsonrpc: dispatching method=%q id=%d request_id=%s", *node.Method, id, reqID)

	result := ResultBuilder{}
	code, errMsg := handler(ctx, node.Params, result)
	switch {
	case code == 0:
		resp.Result = result
	case code > 0:
		log.Errorf("jsonrpc: method=%q request_id=%s internal error (code=%d)", *node.Method, reqID, code)
		resp.Error = NewError(CodeInternalError, "")
	default:
		resp.Error = NewError(code, errMsg)
	}
	return resp, true
}

// ParseRequest implements parse_request: dispatch on the outer JSON
// shape, aggregate a batch in order, or report ErrStructural.
func (c *Codec) ParseRequest(ctx context.Context, raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return "", ErrStructural
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return "", ErrStructural
	}

	switch delim {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return "", ErrStructural
		}
		parts := make([]string, 0, len(elems))
		for _, e := range elems {
			resp, ok := c.ParseOne(ctx, e)
			if !ok {
				// spec.md §7: partial results are never emitted. A single
				// unanswerable element discards the whole batch in favor
				// of one structural failure response.
				return "", ErrStructural
			}
			b, err := json.Marshal(resp)
			if err != nil {
				return "", ErrStructural
			}
			parts = append(parts, string(b))
		}
		return "[" + strings.Join(parts, ", ") + "]", nil

	case '{':
		resp, ok := c.ParseOne(ctx, raw)
		if !ok {
			return "", ErrStructural
		}
		b, err := json.Marshal(resp)
		if err != nil {
			return "", ErrStructural
		}
		return string(b), nil

	default:
		return "", ErrStructural
	}
}

func parseID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	return id, true
}
