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
	"path/filepath"

	"github.com/perfwatcher/pw-queryd/jsonrpc"
)

// GetDirHosts implements pw_get_dir_hosts (spec.md §4.6): the entries
// of the configured data directory.
func (e *Env) GetDirHosts(ctx context.Context, params json.RawMessage, result jsonrpc.ResultBuilder) (int, string) {
	return listDir(ctx, e.DataDir, result)
}

type hostnameParams struct {
	Hostname string `json:"hostname"`
}

// GetDirPlugins implements pw_get_dir_plugins (spec.md §4.6): the
// entries of <datadir>/<hostname>.
func (e *Env) GetDirPlugins(ctx context.Context, params json.RawMessage, result jsonrpc.ResultBuilder) (int, string) {
	var p hostnameParams
	if err := json.Unmarshal(params, &p); err != nil {
		return jsonrpc.CodeInvalidParams, "invalid params for pw_get_dir_plugins"
	}
	if !validDirComponent(p.Hostname) {
		return dirValidationError("hostname", p.Hostname)
	}
	return listDir(ctx, filepath.Join(e.DataDir, p.Hostname), result)
}

// GetDirTypes implements pw_get_dir_types (spec.md §4.6): the entries
// of <datadir>/<hostname>/<plugin>.
func (e *Env) GetDirTypes(ctx context.Context, params json.RawMessage, result jsonrpc.ResultBuilder) (int, string) {
	var p dirTwoParams
	if err := json.Unmarshal(params, &p); err != nil {
		return jsonrpc.CodeInvalidParams, "invalid params for pw_get_dir_types"
	}
	if !validDirComponent(p.Hostname) {
		return dirValidationError("hostname", p.Hostname)
	}
	if !validDirComponent(p.Plugin) {
		return dirValidationError("plugin", p.Plugin)
	}
	return listDir(ctx, filepath.Join(e.DataDir, p.Hostname, p.Plugin), result)
}
