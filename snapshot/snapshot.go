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

// Package snapshot implements the reference-counted metric-name-index
// cache described in spec.md §3/§4.1 (component C1).
package snapshot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/perfwatcher/pw-queryd/logging"
)

// Slots is the fixed table size N. spec.md §3 requires N>=2; 6 matches
// the source's sizing.
const Slots = 6

var log logging.Logger = logging.Nop

// SetLogger configures the logger used by this package.
func SetLogger(l logging.Logger) { log = l }

// ErrNotAvailable is returned by Acquire when no slot is ready yet.
var ErrNotAvailable = errors.New("snapshot: not available")

// ErrTableFull is the hard error §4.1 step 4 calls for: every slot is
// ready and either referenced or current, so refresh has nowhere to
// write a new snapshot.
var ErrTableFull = errors.New("snapshot: no free slot")

// Snapshot is the immutable (names, times, count) triple of §3, borrowed
// for the duration of a Ref.
type Snapshot struct {
	Names []string
	Times []int64
	Count int
}

// NameSource is the `get_names` collaborator spec.md §6 fixes the
// contract of. Implementations may block (network, disk) but must not
// be called while any table lock is held — Cache enforces this itself.
type NameSource interface {
	GetNames(ctx context.Context) (names []string, times []int64, err error)
}

type slot struct {
	snap       Snapshot
	updateTime int64
	ref        int32
	ready      bool
}

// Cache is the snapshot table of §3. Zero value is not usable; use New.
type Cache struct {
	source     NameSource
	expiration time.Duration

	mu    sync.Mutex
	slots [Slots]slot
}

// New builds a Cache reading from source, expiring the current snapshot
// after expiration (clamped by the caller to spec.md §4.1's [1,3600]s).
func New(source NameSource, expiration time.Duration) *Cache {
	return &Cache{source: source, expiration: expiration}
}

// currentLocked returns the index of the ready slot with the greatest
// updateTime, or -1 if none is ready. Must be called with mu held.
// Ties are broken by lowest index (I-2).
func (c *Cache) currentLocked() int {
	best := -1
	for i := range c.slots {
		if !c.slots[i].ready {
			continue
		}
		if best == -1 || c.slots[i].updateTime > c.slots[best].updateTime {
			best = i
		}
	}
	return best
}

// Refresh is step 4.1's refresh(): idempotent, safe to call from the
// periodic tick on any goroutine.
func (c *Cache) Refresh(ctx context.Context, now time.Time) error {
	c.mu.Lock()
	current := c.currentLocked()

	// Reclaim every slot that is ready, unreferenced, and not current.
	for i := range c.slots {
		if i == current {
			continue
		}
		s := &c.slots[i]
		if s.ready && s.ref == 0 {
			*s = slot{}
		}
	}

	needsUpdate := current == -1
	if !needsUpdate {
		age := now.Sub(time.Unix(c.slots[current].updateTime, 0))
		needsUpdate = age >= c.expiration
	}
	if !needsUpdate {
		c.mu.Unlock()
		return nil
	}

	target := -1
	for i := range c.slots {
		if !c.slots[i].ready {
			target = i
			break
		}
	}
	if target == -1 {
		c.mu.Unlock()
		log.Errorf("snapshot: no free slot to refresh into (all %d slots ready and referenced or current)", Slots)
		return ErrTableFull
	}
	c.mu.Unlock()

	// get_names may be slow; never hold the table lock across it (§4.1
	// step 5, §5, §9).
	names, times, err := c.source.GetNames(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s := &c.slots[target]
	if s.ready {
		// Lost the race to another refresh while we were fetching;
		// find a fresh non-ready slot rather than clobber one.
		target = -1
		for i := range c.slots {
			if !c.slots[i].ready {
				target = i
				break
			}
		}
		if target == -1 {
			log.Errorf("snapshot: no free slot to populate after concurrent refresh")
			return ErrTableFull
		}
		s = &c.slots[target]
	}
	s.snap = Snapshot{Names: names, Times: times, Count: len(names)}
	s.updateTime = now.Unix()
	s.ref = 0
	s.ready = true
	return nil
}

// Ref is a borrowed handle returned by Acquire; call Release exactly
// once when done reading Snapshot.
type Ref struct {
	slot int
	Snapshot
}

// Acquire implements §4.1's acquire(): returns the current snapshot
// with its ref count incremented, or ErrNotAvailable if nothing is
// ready yet.
func (c *Cache) Acquire() (Ref, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.currentLocked()
	if current == -1 {
		return Ref{}, ErrNotAvailable
	}
	c.slots[current].ref++
	return Ref{slot: current, Snapshot: c.slots[current].snap}, nil
}

// Release implements §4.1's release(): decrements the slot's ref count.
func (c *Cache) Release(r Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &c.slots[r.slot]
	s.ref--
	if s.ref < 0 {
		panic("snapshot: ref count went negative")
	}
}

// Stats implements §4.1's stats(): a point-in-time view of the table
// for C7's self-metrics publication.
type Stats struct {
	ReadyCount     int
	Refs           [Slots]int32
	CurrentCount   int
	CurrentUpdated int64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var st Stats
	for i := range c.slots {
		st.Refs[i] = c.slots[i].ref
		if c.slots[i].ready {
			st.ReadyCount++
		}
	}
	if current := c.currentLocked(); current != -1 {
		st.CurrentCount = c.slots[current].snap.Count
		st.CurrentUpdated = c.slots[current].updateTime
	}
	return st
}
