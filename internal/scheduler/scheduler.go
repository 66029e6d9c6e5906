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

// Package scheduler computes each source's next_due_at from outcome
// history (spec.md §4.6) and drives a bounded-concurrency tick loop that
// dispatches due sources to the Fetch Engine. The semaphore is
// golang.org/x/sync/semaphore, mirroring the bounded-worker-pool idiom
// the retrieval pack's httptines and MrRSS task manager both implement by
// hand over channels — x/sync's weighted semaphore gives the same bound
// with context-aware acquire.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/losesky/heatlink/internal/clock"
)

const (
	minIntervalMS = 60_000
	maxIntervalMS = 3_600_000
	tickInterval  = time.Second
)

// Dispatcher is the engine-side hook the scheduler calls for each due
// source; it runs FetchSource as an internal call (spec.md §4.7) and
// returns whether the source is currently in flight (skip without penalty)
// plus the outcome fields the scheduler needs to recompute next_due_at.
type Dispatcher interface {
	// DispatchInternal runs a scheduler-triggered fetch for sourceID. inFlight
	// true means the source was already held by the single-flight guard and
	// was skipped; the scheduler must not advance its due time in that case.
	DispatchInternal(ctx context.Context, sourceID string) (outcome Outcome, inFlight bool)
}

// Outcome is the minimal fetch result the scheduler needs (a subset of
// stats.Outcome, kept separate to avoid a scheduler->stats dependency).
type Outcome struct {
	Success       bool
	DurationMS    int64
	NewItemCount  int
}

// SourceView is the read-only slice of SourceDescriptor the scheduler
// needs, supplied by the caller's registry lookup.
type SourceView struct {
	SourceID         string
	Priority         int
	UpdateIntervalMS int64
	AdaptiveEnabled  bool
}

type schedState struct {
	mu                  sync.Mutex
	nextDueAt           time.Time
	consecutiveFailures int
	inFlight            bool
}

// Scheduler holds per-source due-time state and drives the tick loop.
type Scheduler struct {
	clock      clock.Clock
	dispatcher Dispatcher
	sourcesFn  func() []SourceView
	concurrency int64

	mu     sync.RWMutex
	states map[string]*schedState
}

// New builds a Scheduler. sourcesFn is polled once per tick to discover
// the current source set (so registrations/deregistrations are picked up
// without restarting the scheduler). concurrency bounds simultaneous
// dispatches (default 8 per spec.md §5).
func New(clk clock.Clock, dispatcher Dispatcher, sourcesFn func() []SourceView, concurrency int64) *Scheduler {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Scheduler{
		clock:       clk,
		dispatcher:  dispatcher,
		sourcesFn:   sourcesFn,
		concurrency: concurrency,
		states:      make(map[string]*schedState),
	}
}

func (s *Scheduler) stateFor(sourceID string, updateIntervalMS int64) *schedState {
	s.mu.RLock()
	st, ok := s.states[sourceID]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.states[sourceID]; ok {
		return st
	}
	jitter := s.clock.Jitter(0, time.Duration(updateIntervalMS)*time.Millisecond)
	st = &schedState{nextDueAt: s.clock.Now().Add(jitter)}
	s.states[sourceID] = st
	return st
}

// NextDueAt returns the current due time for a source, registering it
// with startup jitter if this is the first observation (spec.md §4.6).
func (s *Scheduler) NextDueAt(view SourceView) time.Time {
	st := s.stateFor(view.SourceID, view.UpdateIntervalMS)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.nextDueAt
}

// Reschedule recomputes next_due_at after a fetch outcome (spec.md §4.6's
// backoff/slow/quiet factor formula).
func (s *Scheduler) Reschedule(view SourceView, outcome Outcome) {
	st := s.stateFor(view.SourceID, view.UpdateIntervalMS)
	st.mu.Lock()
	defer st.mu.Unlock()

	if outcome.Success {
		st.consecutiveFailures = 0
	} else {
		st.consecutiveFailures++
	}

	base := float64(view.UpdateIntervalMS)
	eb := st.consecutiveFailures
	if eb > 5 {
		eb = 5
	}
	factorErr := float64(uint(1) << uint(eb))

	factorSlow := 1 + clamp((float64(outcome.DurationMS)-1000)/10_000, 0, 2)

	var factorQuiet float64
	switch {
	case !outcome.Success:
		factorQuiet = 1
	case outcome.NewItemCount >= 5:
		factorQuiet = 1
	case outcome.NewItemCount >= 1:
		factorQuiet = 1.5
	default:
		factorQuiet = 2.0
	}

	interval := base * factorErr * factorSlow * factorQuiet
	interval = clamp(interval, base, 8*base)
	interval = clamp(interval, minIntervalMS, maxIntervalMS)

	jittered := s.clock.JitterPct(time.Duration(interval)*time.Millisecond, -0.10, 0.10)
	st.nextDueAt = s.clock.Now().Add(jittered)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Run drives the tick loop until ctx is canceled (spec.md §4.6). It wakes
// every tickInterval, collects due sources ordered by descending priority
// (ties broken by oldest next_due_at), and dispatches each under the
// concurrency semaphore. Sources already in flight are skipped without
// their due time being advanced.
func (s *Scheduler) Run(ctx context.Context) {
	sem := s.newSemaphore()
	ticker, stop := s.clock.NewTicker(tickInterval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker:
			s.tick(ctx, sem)
		}
	}
}

func (s *Scheduler) newSemaphore() *semaphore.Weighted {
	return semaphore.NewWeighted(s.concurrency)
}

func (s *Scheduler) tick(ctx context.Context, sem *semaphore.Weighted) {
	views := s.sourcesFn()
	now := s.clock.Now()

	type due struct {
		view SourceView
		at   time.Time
	}
	var dueNow []due
	for _, v := range views {
		if !v.AdaptiveEnabled {
			continue
		}
		st := s.stateFor(v.SourceID, v.UpdateIntervalMS)
		st.mu.Lock()
		at := st.nextDueAt
		inFlight := st.inFlight
		st.mu.Unlock()
		if inFlight {
			continue
		}
		if !at.After(now) {
			dueNow = append(dueNow, due{view: v, at: at})
		}
	}

	sort.Slice(dueNow, func(i, j int) bool {
		if dueNow[i].view.Priority != dueNow[j].view.Priority {
			return dueNow[i].view.Priority > dueNow[j].view.Priority
		}
		return dueNow[i].at.Before(dueNow[j].at)
	})

	var wg sync.WaitGroup
	for _, d := range dueNow {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(v SourceView) {
			defer wg.Done()
			defer sem.Release(1)
			s.dispatchOne(ctx, v)
		}(d.view)
	}
	wg.Wait()
}

func (s *Scheduler) dispatchOne(ctx context.Context, view SourceView) {
	st := s.stateFor(view.SourceID, view.UpdateIntervalMS)
	st.mu.Lock()
	st.inFlight = true
	st.mu.Unlock()
	defer func() {
		st.mu.Lock()
		st.inFlight = false
		st.mu.Unlock()
	}()

	outcome, skipped := s.dispatcher.DispatchInternal(ctx, view.SourceID)
	if skipped {
		return
	}
	s.Reschedule(view, outcome)
}
