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

package fsnamesource

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetNamesWalksHostPluginType(t *testing.T) {
	dir := t.TempDir()
	mustMkdirAll(t, filepath.Join(dir, "a", "cpu", "idle.rrd"))
	mustMkdirAll(t, filepath.Join(dir, "b", "cpu", "idle.rrd"))

	src := New(dir)
	names, times, err := src.GetNames(context.Background())
	require.NoError(t, err)
	require.Len(t, names, 2)
	require.Len(t, times, 2)

	sort.Strings(names)
	require.Equal(t, []string{"a/cpu/idle", "b/cpu/idle"}, names)
}

func TestGetNamesEmptyDataDirDefaultsToDot(t *testing.T) {
	src := New("")
	require.Equal(t, ".", src.DataDir)
}

func mustMkdirAll(t *testing.T, leafFile string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(leafFile), 0o755))
	require.NoError(t, os.WriteFile(leafFile, nil, 0o644))
}
