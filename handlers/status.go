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

package handlers

import (
	"context"
	"encoding/json"

	"github.com/perfwatcher/pw-queryd/jsonrpc"
)

type statusParams struct {
	Timeout int64    `json:"timeout"`
	Server  []string `json:"server"`
}

// GetStatus implements pw_get_status (spec.md §4.6). Server-supplied
// strings are copied into the result map rather than borrowed from the
// request JSON (spec.md §9's resolution of the source's borrow bug),
// so they remain valid after the snapshot reference is released.
func (e *Env) GetStatus(ctx context.Context, params json.RawMessage, result jsonrpc.ResultBuilder) (int, string) {
	var p statusParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return jsonrpc.CodeInvalidParams, "invalid params for pw_get_status"
		}
	}

	// json.Unmarshal already allocates independent strings for p.Server,
	// so using them directly as map keys needs no further copy (unlike
	// the source, which borrowed pointers into the request buffer).
	latest := make(map[string]int64, len(p.Server))
	wanted := make(map[string]struct{}, len(p.Server))
	for _, s := range p.Server {
		latest[s] = 0
		wanted[s] = struct{}{}
	}

	if len(wanted) > 0 {
		ref, err := e.Cache.Acquire()
		if err != nil {
			log.Errorf("pw_get_status: acquire snapshot: %v", err)
			return 1, ""
		}
		for i, name := range ref.Names {
			host, _, ok := splitMetricName(name)
			if !ok {
				continue
			}
			if _, want := wanted[host]; !want {
				continue
			}
			if ref.Times[i] > latest[host] {
				latest[host] = ref.Times[i]
			}
		}
		e.Cache.Release(ref)
	}

	now := e.now().Unix()
	states := make(map[string]string, len(p.Server))
	for name, ts := range latest {
		switch {
		case ts == 0:
			states[name] = "unknown"
		case ts >= now-p.Timeout:
			states[name] = "up"
		default:
			states[name] = "down"
		}
	}

	result["result"] = states
	return 0, ""
}
