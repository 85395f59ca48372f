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

// Package queryserver implements the HTTP front-end and request
// lifecycle of spec.md §4.4/§4.5 (components C4, C5).
package queryserver

import "sync/atomic"

// Counters is the four process-wide counters of spec.md §3/§4.5: each
// mutates independently (I-4, L-1). SPEC_FULL.md's DOMAIN STACK
// substitutes one atomic.Int64 per counter for the source's one mutex
// per counter — still four independent words, no shared lock to
// serialize unrelated updates.
type Counters struct {
	active         atomic.Int64
	newConnections atomic.Int64
	success        atomic.Int64
	failure        atomic.Int64
}

// tryAdmit attempts to admit one more client under max (I-4). It
// reports whether admission succeeded; on success the caller owns a
// slot that must be released exactly once via release.
func (c *Counters) tryAdmit(max int) bool {
	for {
		cur := c.active.Load()
		if cur >= int64(max) {
			return false
		}
		if c.active.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// release returns an admitted slot. Panics if active would go
// negative — the only assertion violation spec.md §7 treats as fatal.
func (c *Counters) release() {
	if c.active.Add(-1) < 0 {
		panic("queryserver: active client count went negative")
	}
}

// Snapshot is a point-in-time read of all four counters, for C7's
// self-metrics publication.
type Snapshot struct {
	Active         int64
	NewConnections int64
	Success        int64
	Failure        int64
}

// Stats returns the current counter values.
func (c *Counters) Stats() Snapshot {
	return Snapshot{
		Active:         c.active.Load(),
		NewConnections: c.newConnections.Load(),
		Success:        c.success.Load(),
		Failure:        c.failure.Load(),
	}
}
