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

// Package fsnamesource is the default snapshot.NameSource: it treats
// the on-disk host/plugin/type data hierarchy (spec.md §6) as the
// metric name index, since this repository has no live collectd
// process to borrow `get_names` from.
package fsnamesource

import (
	"context"
	"os"
	"path/filepath"

	"github.com/perfwatcher/pw-queryd/logging"
)

var log logging.Logger = logging.Nop

// SetLogger configures the logger used by this package.
func SetLogger(l logging.Logger) { log = l }

// Source walks DataDir three levels deep (host, plugin-instance,
// type-instance) and reports each leaf as a qualified metric name
// "host/plugin-instance/type-instance" with the leaf's mtime as its
// last-update time.
type Source struct {
	DataDir string
}

// New builds a Source rooted at dataDir. An empty dataDir means "."
// per spec.md §6.
func New(dataDir string) *Source {
	if dataDir == "" {
		dataDir = "."
	}
	return &Source{DataDir: dataDir}
}

// GetNames implements snapshot.NameSource.
func (s *Source) GetNames(ctx context.Context) ([]string, []int64, error) {
	hosts, err := readDirNames(s.DataDir)
	if err != nil {
		return nil, nil, err
	}

	var names []string
	var times []int64

	for _, host := range hosts {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		hostPath := filepath.Join(s.DataDir, host)
		plugins, err := readDirNames(hostPath)
		if err != nil {
			log.Warnf("fsnamesource: skipping host %q: %v", host, err)
			continue
		}
		for _, plugin := range plugins {
			pluginPath := filepath.Join(hostPath, plugin)
			types, err := readDirNames(pluginPath)
			if err != nil {
				log.Warnf("fsnamesource: skipping plugin %q/%q: %v", host, plugin, err)
				continue
			}
			for _, typ := range types {
				info, err := os.Stat(filepath.Join(pluginPath, typ))
				if err != nil {
					continue
				}
				names = append(names, host+"/"+plugin+"/"+trimExt(typ))
				times = append(times, info.ModTime().Unix())
			}
		}
	}

	return names, times, nil
}

// trimExt strips a round-robin file extension (e.g. ".rrd") if present,
// leaving the bare type[-instance] identifier.
func trimExt(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return name
	}
	return name[:len(name)-len(ext)]
}

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
