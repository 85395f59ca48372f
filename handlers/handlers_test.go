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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfwatcher/pw-queryd/jsonrpc"
	"github.com/perfwatcher/pw-queryd/snapshot"
)

type fixedSource struct {
	names []string
	times []int64
}

func (f fixedSource) GetNames(ctx context.Context) ([]string, []int64, error) {
	return f.names, f.times, nil
}

func newEnvAt(t *testing.T, names []string, times []int64, refreshTime time.Time) *Env {
	t.Helper()
	cache := snapshot.New(fixedSource{names: names, times: times}, 60*time.Second)
	require.NoError(t, cache.Refresh(context.Background(), refreshTime))
	return &Env{Cache: cache, DataDir: t.TempDir()}
}

// S4 — pw_get_status up/down.
func TestS4GetStatusUpDown(t *testing.T) {
	T := int64(1000)
	e := newEnvAt(t, []string{"a/cpu/idle", "b/cpu/idle"}, []int64{T, T}, time.Unix(T, 0))

	params, _ := json.Marshal(map[string]interface{}{"timeout": 5, "server": []string{"a", "b", "c"}})

	e.Now = func() time.Time { return time.Unix(T+3, 0) }
	result := jsonrpc.ResultBuilder{}
	code, _ := e.GetStatus(context.Background(), params, result)
	require.Equal(t, 0, code)
	states := result["result"].(map[string]string)
	assert.Equal(t, map[string]string{"a": "up", "b": "up", "c": "unknown"}, states)

	e.Now = func() time.Time { return time.Unix(T+10, 0) }
	result = jsonrpc.ResultBuilder{}
	code, _ = e.GetStatus(context.Background(), params, result)
	require.Equal(t, 0, code)
	states = result["result"].(map[string]string)
	assert.Equal(t, map[string]string{"a": "down", "b": "down", "c": "unknown"}, states)
}

func TestGetStatusEmptyServerList(t *testing.T) {
	e := newEnvAt(t, []string{"a/cpu/idle"}, []int64{1}, time.Unix(1, 0))

	params, _ := json.Marshal(map[string]interface{}{"timeout": 5, "server": []string{}})
	result := jsonrpc.ResultBuilder{}
	code, _ := e.GetStatus(context.Background(), params, result)
	require.Equal(t, 0, code)
	assert.Equal(t, map[string]string{}, result["result"])
}

func TestGetStatusTimeoutZero(t *testing.T) {
	now := int64(5000)
	e := newEnvAt(t, []string{"a/cpu/idle"}, []int64{now}, time.Unix(now, 0))
	e.Now = func() time.Time { return time.Unix(now, 0) }

	params, _ := json.Marshal(map[string]interface{}{"timeout": 0, "server": []string{"a"}})
	result := jsonrpc.ResultBuilder{}
	code, _ := e.GetStatus(context.Background(), params, result)
	require.Equal(t, 0, code)
	states := result["result"].(map[string]string)
	assert.Equal(t, "up", states["a"], "latest timestamp equal to now must count as up at timeout=0")
}

// S5 — pw_get_metric dedup.
func TestS5GetMetricDedup(t *testing.T) {
	e := newEnvAt(t, []string{"a/cpu/idle", "a/cpu/user", "b/cpu/idle"}, []int64{1, 1, 1}, time.Unix(1, 0))

	params, _ := json.Marshal([]string{"a", "b"})
	result := jsonrpc.ResultBuilder{}
	code, _ := e.GetMetric(context.Background(), params, result)
	require.Equal(t, 0, code)
	assert.Equal(t, []string{"cpu/idle", "cpu/user"}, result["result"])
}

func TestGetMetricSkipsNamesWithoutSlash(t *testing.T) {
	e := newEnvAt(t, []string{"malformed", "a/cpu/idle"}, []int64{1, 1}, time.Unix(1, 0))

	params, _ := json.Marshal([]string{"a"})
	result := jsonrpc.ResultBuilder{}
	code, _ := e.GetMetric(context.Background(), params, result)
	require.Equal(t, 0, code)
	assert.Equal(t, []string{"cpu/idle"}, result["result"])
}

func TestGetDirMetricsScopesToHostAndPlugin(t *testing.T) {
	e := newEnvAt(t, []string{"a/cpu/idle", "a/cpu/user", "a/mem/used", "b/cpu/idle"}, []int64{1, 1, 1, 1}, time.Unix(1, 0))

	params, _ := json.Marshal(map[string]string{"hostname": "a", "plugin": "cpu"})
	result := jsonrpc.ResultBuilder{}
	code, _ := e.GetDirMetrics(context.Background(), params, result)
	require.Equal(t, 0, code)
	assert.Equal(t, []string{"idle", "user"}, result["result"])
}

func TestDirValidationRejectsDotDotAndSlash(t *testing.T) {
	e := newEnvAt(t, nil, nil, time.Unix(1, 0))

	for _, bad := range []string{".", "..", "a/b"} {
		params, _ := json.Marshal(map[string]string{"hostname": bad})
		result := jsonrpc.ResultBuilder{}
		code, msg := e.GetDirPlugins(context.Background(), params, result)
		assert.Equal(t, jsonrpc.CodeInvalidParams, code, "hostname=%q", bad)
		assert.NotEmpty(t, msg)
	}
}

func TestGetDirHostsListsDataDirEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "host2"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "host1"), 0o755))

	e := &Env{Cache: snapshot.New(fixedSource{}, time.Minute), DataDir: dir}
	result := jsonrpc.ResultBuilder{}
	code, _ := e.GetDirHosts(context.Background(), nil, result)
	require.Equal(t, 0, code)
	// spec.md §4.6 calls for "natural directory order", not lexicographic
	// (unlike pw_get_metric): the result must be the directory's own
	// readdir order, which is filesystem-dependent and need not match
	// creation order, rather than a re-sorted list.
	d, err := os.Open(dir)
	require.NoError(t, err)
	natural, err := d.Readdirnames(-1)
	d.Close()
	require.NoError(t, err)
	assert.Equal(t, natural, result["values"])
	assert.Equal(t, 2, result["nb"])
}

func TestGetDirPluginsUnreadableDirectoryIsInternalError(t *testing.T) {
	e := &Env{Cache: snapshot.New(fixedSource{}, time.Minute), DataDir: t.TempDir()}
	params, _ := json.Marshal(map[string]string{"hostname": "does-not-exist"})
	result := jsonrpc.ResultBuilder{}
	code, _ := e.GetDirPlugins(context.Background(), params, result)
	assert.Greater(t, code, 0)
}
