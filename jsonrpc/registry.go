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
	"context"
	"encoding/json"
)

// ResultBuilder is populated by a HandlerFunc on success; it becomes
// the Response.Result. Handlers build it with a plain map, matching
// the result shapes spec.md §4.6 fixes for each method.
type ResultBuilder map[string]interface{}

// HandlerFunc is the handler contract of spec.md §4.3: returns 0 on
// success (result populated), a negative canonical code on caller
// error, or a positive value to signal an internal error.
type HandlerFunc func(ctx context.Context, params json.RawMessage, result ResultBuilder) (code int, errMsg string)

type methodEntry struct {
	name    string
	handler HandlerFunc
}

// Registry is the static (name, handler) table of spec.md §4.3.
// Lookup is linear; the table is small by construction (§4.3: "a
// handful of methods"), and immutable after startup (§5(iv)), so no
// locking is needed once Register calls are done.
type Registry struct {
	entries []methodEntry
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds name -> handler to the table. Registering the same
// name twice overwrites the earlier entry, matching a static table
// built by a sequence of Register calls at startup.
func (r *Registry) Register(name string, handler HandlerFunc) {
	for i := range r.entries {
		if r.entries[i].name == name {
			r.entries[i].handler = handler
			return
		}
	}
	r.entries = append(r.entries, methodEntry{name: name, handler: handler})
}

// Lookup finds the handler for name, exact match only.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	for i := range r.entries {
		if r.entries[i].name == name {
			return r.entries[i].handler, true
		}
	}
	return nil, false
}
