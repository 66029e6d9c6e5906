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

// Package stats is the per-source outcome ring buffer and live aggregate
// (spec.md §4.5), grounded on trickster's CacheIndex: a bounded in-memory
// structure mutated under a lock on write, published to readers via an
// atomically-swapped immutable snapshot, periodically flushed to a sink.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/losesky/heatlink/internal/clock"
	"github.com/losesky/heatlink/internal/fetchengine/errorkind"
)

// CallType classifies what triggered a fetch (spec.md §3.7).
type CallType string

const (
	CallTypeInternal CallType = "internal"
	CallTypeExternal CallType = "external"
)

const ringSize = 256
const maxErrorMessageBytes = 512

// Outcome is one recorded fetch attempt (spec.md §3.5).
type Outcome struct {
	SourceID     string
	StartedAt    time.Time
	DurationMS   int64
	Success      bool
	ItemCount    int
	CacheUsed    bool
	ErrorKind    errorkind.Kind
	ErrorMessage string
	CallType     CallType
}

// Aggregate is a live rollup for one (source, call_type) pair.
type Aggregate struct {
	TotalRequests      int64
	ErrorCount         int64
	SumDurationMS       int64
	SuccessRate        float64
	AvgResponseTimeMS  float64
}

func (a Aggregate) withRequest(o Outcome) Aggregate {
	a.TotalRequests++
	a.SumDurationMS += o.DurationMS
	if !o.Success {
		a.ErrorCount++
	}
	if a.TotalRequests > 0 {
		a.SuccessRate = float64(a.TotalRequests-a.ErrorCount) / float64(a.TotalRequests)
		a.AvgResponseTimeMS = float64(a.SumDurationMS) / float64(a.TotalRequests)
	}
	return a
}

// Sink is the persistence boundary for flushed stats (spec.md §6.3).
type Sink interface {
	AppendStatsOutcome(o Outcome)
	UpsertAggregate(sourceID string, callType CallType, snapshot Aggregate)
	UpsertSourceStatus(sourceID string, status SourceStatus)
}

// SourceStatus is the condensed per-source health summary handed to the
// sink's UpsertSourceStatus (spec.md §6.3).
type SourceStatus struct {
	Status     string
	LastError  string
	LastUpdate time.Time
	ItemCount  int
}

type ring struct {
	mu     sync.Mutex
	buf    [ringSize]Outcome
	filled int
	next   int

	aggregates map[CallType]*atomic.Value // holds Aggregate
}

func newRing() *ring {
	return &ring{aggregates: make(map[CallType]*atomic.Value)}
}

func (r *ring) aggregateFor(ct CallType) *atomic.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.aggregates[ct]
	if !ok {
		v = &atomic.Value{}
		v.Store(Aggregate{})
		r.aggregates[ct] = v
	}
	return v
}

func (r *ring) record(o Outcome) {
	r.mu.Lock()
	r.buf[r.next] = o
	r.next = (r.next + 1) % ringSize
	if r.filled < ringSize {
		r.filled++
	}
	r.mu.Unlock()

	v := r.aggregateFor(o.CallType)
	cur := v.Load().(Aggregate)
	v.Store(cur.withRequest(o))
}

func (r *ring) snapshotAggregate(ct CallType) Aggregate {
	v := r.aggregateFor(ct)
	return v.Load().(Aggregate)
}

func (r *ring) resetAggregate(ct CallType) {
	v := r.aggregateFor(ct)
	v.Store(Aggregate{})
}

func (r *ring) outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, r.filled)
	if r.filled < ringSize {
		copy(out, r.buf[:r.filled])
		return out
	}
	// full ring: oldest entry is at r.next
	copy(out, r.buf[r.next:])
	copy(out[ringSize-r.next:], r.buf[:r.next])
	return out
}

// Collector tracks per-source outcome rings and aggregates, flushing them
// to a Sink on an interval or immediately on failure (spec.md §4.5).
type Collector struct {
	clock         clock.Clock
	sink          Sink
	flushInterval time.Duration

	mu      sync.RWMutex
	rings   map[string]*ring
}

// New returns a Collector. flushInterval defaults to 300s when zero
// (SPEC_FULL.md Open Question decision #2).
func New(clk clock.Clock, sink Sink, flushInterval time.Duration) *Collector {
	if flushInterval <= 0 {
		flushInterval = 300 * time.Second
	}
	return &Collector{clock: clk, sink: sink, flushInterval: flushInterval, rings: make(map[string]*ring)}
}

func (c *Collector) ringFor(sourceID string) *ring {
	c.mu.RLock()
	r, ok := c.rings[sourceID]
	c.mu.RUnlock()
	if ok {
		return r
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok = c.rings[sourceID]; ok {
		return r
	}
	r = newRing()
	c.rings[sourceID] = r
	return r
}

// Record appends one outcome (truncating an overlong error message),
// updates the live aggregate for its call type, and flushes immediately
// on failure (spec.md §4.5).
func (c *Collector) Record(o Outcome) {
	if len(o.ErrorMessage) > maxErrorMessageBytes {
		o.ErrorMessage = o.ErrorMessage[:maxErrorMessageBytes]
	}
	r := c.ringFor(o.SourceID)
	r.record(o)

	if c.sink != nil {
		c.sink.AppendStatsOutcome(o)
	}

	if !o.Success {
		c.flushSource(o.SourceID)
	}
}

// Aggregate returns the live snapshot for one source and call type.
func (c *Collector) Aggregate(sourceID string, ct CallType) Aggregate {
	return c.ringFor(sourceID).snapshotAggregate(ct)
}

// Outcomes returns the retained ring for one source, oldest first.
func (c *Collector) Outcomes(sourceID string) []Outcome {
	return c.ringFor(sourceID).outcomes()
}

// FlushAll serializes every source's aggregates to the sink and resets
// their incremental counters (spec.md §4.5). Call this from a ticker at
// flushInterval.
func (c *Collector) FlushAll() {
	c.mu.RLock()
	ids := make([]string, 0, len(c.rings))
	for id := range c.rings {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	for _, id := range ids {
		c.flushSource(id)
	}
}

func (c *Collector) flushSource(sourceID string) {
	if c.sink == nil {
		return
	}
	r := c.ringFor(sourceID)
	for _, ct := range []CallType{CallTypeInternal, CallTypeExternal} {
		snap := r.snapshotAggregate(ct)
		if snap.TotalRequests == 0 {
			continue
		}
		c.sink.UpsertAggregate(sourceID, ct, snap)
		r.resetAggregate(ct)
	}
}

// FlushInterval returns the configured flush interval, for the caller's
// ticker setup.
func (c *Collector) FlushInterval() time.Duration { return c.flushInterval }
