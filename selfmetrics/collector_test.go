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

package selfmetrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorPublishesCounters(t *testing.T) {
	c := NewCollector(Source{
		Counters: func() CounterStats {
			return CounterStats{Active: 2, NewConnections: 5, Success: 4, Failure: 1}
		},
		SnapshotStats: func() SnapshotStats {
			return SnapshotStats{ReadyCount: 1, Refs: []int32{2, 0, 0, 0, 0, 0}, CurrentCount: 7}
		},
	})

	expected := `
# HELP pw_queryd_active_clients Number of HTTP clients currently being served.
# TYPE pw_queryd_active_clients gauge
pw_queryd_active_clients 2
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "pw_queryd_active_clients"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	count, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Greater(t, count, 0)
}
