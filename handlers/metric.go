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
	"sort"
	"strings"

	"github.com/perfwatcher/pw-queryd/jsonrpc"
)

// GetMetric implements pw_get_metric (spec.md §4.6): the set of
// distinct metric identifiers observed for any of the requested
// servers, sorted lexicographically (L-4).
func (e *Env) GetMetric(ctx context.Context, params json.RawMessage, result jsonrpc.ResultBuilder) (int, string) {
	var servers []string
	if len(params) > 0 {
		if err := json.Unmarshal(params, &servers); err != nil {
			return jsonrpc.CodeInvalidParams, "invalid params for pw_get_metric"
		}
	}

	wanted := make(map[string]struct{}, len(servers))
	for _, s := range servers {
		wanted[s] = struct{}{}
	}

	ref, err := e.Cache.Acquire()
	if err != nil {
		log.Errorf("pw_get_metric: acquire snapshot: %v", err)
		return 1, ""
	}
	defer e.Cache.Release(ref)

	seen := make(map[string]struct{})
	for _, name := range ref.Names {
		host, ident, ok := splitMetricName(name)
		if !ok {
			continue
		}
		if _, want := wanted[host]; !want {
			continue
		}
		seen[ident] = struct{}{}
	}

	idents := make([]string, 0, len(seen))
	for ident := range seen {
		idents = append(idents, ident)
	}
	sort.Strings(idents)

	result["result"] = idents
	return 0, ""
}

type dirTwoParams struct {
	Hostname string `json:"hostname"`
	Plugin   string `json:"plugin"`
}

// GetDirMetrics implements pw_get_dir_metrics (SPEC_FULL.md §4.6): the
// set of distinct type[-instance] identifiers observed in the current
// snapshot for metric names matching one (hostname, plugin) pair,
// sorted lexicographically (L-5).
func (e *Env) GetDirMetrics(ctx context.Context, params json.RawMessage, result jsonrpc.ResultBuilder) (int, string) {
	var p dirTwoParams
	if err := json.Unmarshal(params, &p); err != nil {
		return jsonrpc.CodeInvalidParams, "invalid params for pw_get_dir_metrics"
	}
	if !validDirComponent(p.Hostname) {
		return dirValidationError("hostname", p.Hostname)
	}
	if !validDirComponent(p.Plugin) {
		return dirValidationError("plugin", p.Plugin)
	}

	ref, err := e.Cache.Acquire()
	if err != nil {
		log.Errorf("pw_get_dir_metrics: acquire snapshot: %v", err)
		return 1, ""
	}
	defer e.Cache.Release(ref)

	prefix := p.Hostname + "/" + p.Plugin + "/"
	seen := make(map[string]struct{})
	for _, name := range ref.Names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		seen[strings.TrimPrefix(name, prefix)] = struct{}{}
	}

	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)

	result["result"] = types
	return 0, ""
}
