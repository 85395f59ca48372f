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

// Package handlers implements the five read-only RPC methods of
// spec.md §4.6 (component C6: pw_get_status, pw_get_metric,
// pw_get_dir_hosts, pw_get_dir_plugins, pw_get_dir_types), plus the
// pw_get_dir_metrics method SPEC_FULL.md §4.6 supplements.
package handlers

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/perfwatcher/pw-queryd/jsonrpc"
	"github.com/perfwatcher/pw-queryd/logging"
	"github.com/perfwatcher/pw-queryd/snapshot"
)

var log logging.Logger = logging.Nop

// SetLogger configures the logger used by this package.
func SetLogger(l logging.Logger) { log = l }

// Env bundles C6's two collaborators: the snapshot cache (C1) and the
// data directory root (spec.md §6's `datadir`).
type Env struct {
	Cache   *snapshot.Cache
	DataDir string

	// Now returns the wall clock used by pw_get_status. Defaults to
	// time.Now; tests substitute a fixed clock to pin spec.md §8's S4
	// scenario exactly.
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Register installs all methods this package implements into reg.
func (e *Env) Register(reg *jsonrpc.Registry) {
	reg.Register("pw_get_status", e.GetStatus)
	reg.Register("pw_get_metric", e.GetMetric)
	reg.Register("pw_get_dir_hosts", e.GetDirHosts)
	reg.Register("pw_get_dir_plugins", e.GetDirPlugins)
	reg.Register("pw_get_dir_types", e.GetDirTypes)
	reg.Register("pw_get_dir_metrics", e.GetDirMetrics)
}

// splitMetricName splits "host/plugin[-instance]/type[-instance]" into
// its host prefix and the remainder (spec.md §3 GLOSSARY). Names
// without a '/' are skipped by callers (spec.md §9's resolution of the
// source's `assert` bug) rather than asserted on.
func splitMetricName(name string) (host, rest string, ok bool) {
	i := strings.IndexByte(name, '/')
	if i < 0 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}

func dirValidationError(field, value string) (int, string) {
	return jsonrpc.CodeInvalidParams, field + " must not be \".\", \"..\", or contain \"/\": got " + value
}

// validDirComponent enforces spec.md §4.6's hostname/plugin validation.
func validDirComponent(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.Contains(s, "/")
}

// listDir implements the {values, nb} result shape shared by the three
// directory methods. spec.md §4.6 calls for entries "in natural
// directory order" for these three methods (unlike pw_get_metric's
// lexicographic requirement), so this reads raw directory order via
// Readdirnames rather than os.ReadDir (which sorts by filename).
func listDir(ctx context.Context, path string, result jsonrpc.ResultBuilder) (int, string) {
	f, err := os.Open(path)
	if err != nil {
		log.Errorf("handlers: open %q: %v", path, err)
		return 1, ""
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		log.Errorf("handlers: readdirnames %q: %v", path, err)
		return 1, ""
	}

	values := make([]string, 0, len(names))
	for _, name := range names {
		if name == "." || name == ".." {
			continue
		}
		values = append(values, name)
	}

	result["values"] = values
	result["nb"] = len(values)
	return 0, ""
}
