/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

// Package cache implements the per-source in-memory cache that is
// authoritative for the engine's protection logic (spec.md §4.1), plus the
// optional shared (cross-process) cache tier reached through the Sink
// interface.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/losesky/heatlink/internal/clock"
	"github.com/losesky/heatlink/internal/model"
)

// ProtectionCounters tallies how many times the protection policy kept the
// existing cache entry instead of committing a fetch's result.
type ProtectionCounters struct {
	ErrorProtectionCount  int64
	EmptyProtectionCount  int64
	ShrinkProtectionCount int64
}

// Entry is the per-source cache snapshot described in spec.md §3.3.
type Entry struct {
	Items       []model.NewsItem
	FetchedAt   time.Time
	Size        int
	LastError   string
	Protection  ProtectionCounters
	HitCount    uint64
	MissCount   uint64
	MaxSizeSeen int
}

type sourceCache struct {
	mu    sync.Mutex
	entry *Entry
	hits  uint64
	misses uint64
}

// Cache is the per-source cache with bad-fetch protection. It is safe for
// concurrent use; each source's critical section is guarded independently so
// one source's Update never blocks another source's Lookup.
type Cache struct {
	clock    clock.Clock
	sink     Sink
	maxItems int
	compress bool

	mu      sync.RWMutex
	sources map[string]*sourceCache
}

// New returns a Cache. sink may be nil to disable the shared cache tier.
// maxItems bounds the per-source item count enforced on ingest (spec.md §5,
// default 500 when <= 0). compress toggles snappy compression of the
// shared-cache payload, mirroring CachingConfig.Compress.
func New(clk clock.Clock, sink Sink, maxItems int, compress bool) *Cache {
	if maxItems <= 0 {
		maxItems = 500
	}
	return &Cache{clock: clk, sink: sink, maxItems: maxItems, compress: compress}
}

func (c *Cache) sourceFor(sourceID string) *sourceCache {
	c.mu.RLock()
	sc, ok := c.sources[sourceID]
	c.mu.RUnlock()
	if ok {
		return sc
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sources == nil {
		c.sources = make(map[string]*sourceCache)
	}
	if sc, ok = c.sources[sourceID]; ok {
		return sc
	}
	sc = &sourceCache{}
	c.sources[sourceID] = sc
	return sc
}

// Lookup returns the cached items for sourceID, their age, and whether the
// entry is within ttl. On a cold start (no in-memory entry) it attempts a
// single read from the shared cache tier, per spec.md §4.1.
func (c *Cache) Lookup(sourceID string, ttl time.Duration) (items []model.NewsItem, ageMS int64, valid bool) {
	sc := c.sourceFor(sourceID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.entry == nil && c.sink != nil {
		if raw, ok := c.sink.Get(sharedItemsKey(sourceID)); ok {
			if decoded, err := c.decodeItems(raw); err == nil {
				sc.entry = &Entry{Items: decoded, FetchedAt: c.clock.Now(), Size: len(decoded)}
			}
		}
	}

	if sc.entry == nil {
		atomic.AddUint64(&sc.misses, 1)
		return nil, 0, false
	}

	age := c.clock.Since(sc.entry.FetchedAt)
	valid = age <= ttl
	if valid {
		atomic.AddUint64(&sc.hits, 1)
		sc.entry.HitCount++
	} else {
		atomic.AddUint64(&sc.misses, 1)
		sc.entry.MissCount++
	}
	return append([]model.NewsItem(nil), sc.entry.Items...), age.Milliseconds(), valid
}

// UpdateResult is the outcome of a Cache.Update call.
type UpdateResult struct {
	Committed         []model.NewsItem
	ProtectionApplied bool
	CounterIncremented string // "error" | "empty" | "shrink" | ""
}

// Update applies the protection policy from spec.md §4.1 and commits the
// decision atomically with respect to concurrent Lookup calls on the same
// source. ttl is used only to compute the shared-cache write TTL.
func (c *Cache) Update(sourceID string, newItems []model.NewsItem, outcomeSuccess bool, errMsg string, shrinkThreshold float64, ttl time.Duration) UpdateResult {
	if len(newItems) > c.maxItems {
		newItems = newItems[:c.maxItems]
	}

	sc := c.sourceFor(sourceID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	curCount := 0
	if sc.entry != nil {
		curCount = len(sc.entry.Items)
	}
	newCount := len(newItems)

	res := UpdateResult{}

	switch {
	case !outcomeSuccess && curCount > 0:
		res.Committed = sc.entry.Items
		res.ProtectionApplied = true
		res.CounterIncremented = "error"
		sc.entry.Protection.ErrorProtectionCount++
		sc.entry.LastError = errMsg
	case !outcomeSuccess && curCount == 0:
		res.Committed = newItems
		c.commit(sc, newItems, errMsg)
	case outcomeSuccess && newCount == 0 && curCount > 0:
		res.Committed = sc.entry.Items
		res.ProtectionApplied = true
		res.CounterIncremented = "empty"
		sc.entry.Protection.EmptyProtectionCount++
	case outcomeSuccess && curCount > 5 && float64(newCount) < shrinkThreshold*float64(curCount):
		res.Committed = sc.entry.Items
		res.ProtectionApplied = true
		res.CounterIncremented = "shrink"
		sc.entry.Protection.ShrinkProtectionCount++
	default:
		res.Committed = newItems
		c.commit(sc, newItems, "")
	}

	if c.sink != nil && outcomeSuccess && !res.ProtectionApplied {
		if encoded, err := c.encodeItems(res.Committed); err == nil {
			c.sink.Set(sharedItemsKey(sourceID), encoded, ttl)
		}
	}

	out := append([]model.NewsItem(nil), res.Committed...)
	res.Committed = out
	return res
}

// commit replaces the entry's items, preserving protection counters and
// hit/miss counts (created lazily on first successful write, spec.md §3.3).
func (c *Cache) commit(sc *sourceCache, items []model.NewsItem, lastError string) {
	prev := ProtectionCounters{}
	var hit, miss uint64
	maxSeen := len(items)
	if sc.entry != nil {
		prev = sc.entry.Protection
		hit, miss = sc.entry.HitCount, sc.entry.MissCount
		if sc.entry.MaxSizeSeen > maxSeen {
			maxSeen = sc.entry.MaxSizeSeen
		}
	}
	sc.entry = &Entry{
		Items:       items,
		FetchedAt:   c.clock.Now(),
		Size:        len(items),
		LastError:   lastError,
		Protection:  prev,
		HitCount:    hit,
		MissCount:   miss,
		MaxSizeSeen: maxSeen,
	}
}

// Clear evicts the in-memory entry for sourceID. TTL never evicts on its own
// (spec.md §3.3); only this explicit action or a process restart does.
func (c *Cache) Clear(sourceID string) {
	c.mu.Lock()
	delete(c.sources, sourceID)
	c.mu.Unlock()
	if c.sink != nil {
		c.sink.Del(sharedItemsKey(sourceID))
	}
}

// Status returns a snapshot of the current entry for monitoring (spec.md §4.1).
func (c *Cache) Status(sourceID string) (Entry, bool) {
	sc := c.sourceFor(sourceID)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.entry == nil {
		return Entry{}, false
	}
	return *sc.entry, true
}

func sharedItemsKey(sourceID string) string {
	return "source:" + sourceID
}

func sharedStatsKey(sourceID string) string {
	return "source:" + sourceID + ":stats"
}
