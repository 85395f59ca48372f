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

// Package selfmetrics publishes the process counters spec.md §4.7
// assigns to the periodic tick (C7): it is the concrete
// `dispatch_values` collaborator SPEC_FULL.md's DOMAIN STACK assigns to
// a prometheus.Collector, built the same way the teacher's
// phpfpm.Exporter builds a Collector over PoolManager stats — a struct
// of *prometheus.Desc fields and a Collect that reads a point-in-time
// view of process state (atomic counter loads plus snapshot.Cache.Stats,
// which briefly takes the table lock).
package selfmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pw_queryd"

// Source is anything that can report the process counters and
// snapshot-table stats this Collector publishes. queryserver.Counters
// and snapshot.Cache each implement the half of this contract they own;
// Collector is built from small function values rather than a single
// fat interface so its caller doesn't need a combined type.
type Source struct {
	// Counters reports the four lifecycle counters of spec.md §4.5.
	Counters func() CounterStats
	// SnapshotStats reports the cache table stats of spec.md §4.1's
	// stats().
	SnapshotStats func() SnapshotStats
}

// CounterStats mirrors queryserver.Counters.Stats(), duplicated here
// (rather than imported) so this package has no dependency on
// queryserver — only on the small numbers it publishes.
type CounterStats struct {
	Active         int64
	NewConnections int64
	Success        int64
	Failure        int64
}

// SnapshotStats mirrors snapshot.Cache.Stats() for the same reason.
type SnapshotStats struct {
	ReadyCount   int
	Refs         []int32
	CurrentCount int
}

// Collector is a prometheus.Collector publishing this process's C5
// counters and C1 snapshot-table stats, spec.md §4.7 step 1's "publish
// self-counters".
type Collector struct {
	source Source

	active             *prometheus.Desc
	newConnections     *prometheus.Desc
	requestsSucceeded  *prometheus.Desc
	requestsFailed     *prometheus.Desc
	readySnapshots     *prometheus.Desc
	slotRef            *prometheus.Desc
	currentSnapshotLen *prometheus.Desc
}

// NewCollector builds a Collector reading from source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,

		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_clients"),
			"Number of HTTP clients currently being served.",
			nil, nil),

		newConnections: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "new_connections_total"),
			"Total number of admitted POST connections since start.",
			nil, nil),

		requestsSucceeded: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_succeeded_total"),
			"Total number of HTTP requests answered with HTTP 200, including answers that carry JSON-RPC error envelopes.",
			nil, nil),

		requestsFailed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_failed_total"),
			"Total number of HTTP requests rejected at admission or failed structurally (bad verb, empty or oversized body, decode or parse failure).",
			nil, nil),

		readySnapshots: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "snapshot_ready_slots"),
			"Number of snapshot table slots currently ready.",
			nil, nil),

		slotRef: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "snapshot_slot_ref"),
			"Reference count of each snapshot table slot.",
			[]string{"slot"}, nil),

		currentSnapshotLen: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "snapshot_current_entries"),
			"Number of metric names in the current snapshot.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.newConnections
	ch <- c.requestsSucceeded
	ch <- c.requestsFailed
	ch <- c.readySnapshots
	ch <- c.slotRef
	ch <- c.currentSnapshotLen
}

// Collect implements prometheus.Collector, spec.md §4.7 step 1.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source.Counters != nil {
		cs := c.source.Counters()
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(cs.Active))
		ch <- prometheus.MustNewConstMetric(c.newConnections, prometheus.CounterValue, float64(cs.NewConnections))
		ch <- prometheus.MustNewConstMetric(c.requestsSucceeded, prometheus.CounterValue, float64(cs.Success))
		ch <- prometheus.MustNewConstMetric(c.requestsFailed, prometheus.CounterValue, float64(cs.Failure))
	}

	if c.source.SnapshotStats != nil {
		ss := c.source.SnapshotStats()
		ch <- prometheus.MustNewConstMetric(c.readySnapshots, prometheus.GaugeValue, float64(ss.ReadyCount))
		ch <- prometheus.MustNewConstMetric(c.currentSnapshotLen, prometheus.GaugeValue, float64(ss.CurrentCount))
		for i, ref := range ss.Refs {
			ch <- prometheus.MustNewConstMetric(c.slotRef, prometheus.GaugeValue, float64(ref), strconv.Itoa(i))
		}
	}
}
