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

// Package clock provides an injectable source of wall time, monotonic time,
// and uniform jitter so the scheduler and proxy health sweep can be driven
// deterministically from tests.
package clock

import (
	"math/rand"
	"sync"
	"time"
)

// Clock abstracts wall-clock and monotonic time plus jittered durations.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
	// Since returns the monotonic duration elapsed since t.
	Since(t time.Time) time.Duration
	// Jitter returns a uniformly distributed random duration in [min, max).
	Jitter(min, max time.Duration) time.Duration
	// JitterPct returns d scaled by a uniform random factor in [1+lowPct, 1+highPct).
	JitterPct(d time.Duration, lowPct, highPct float64) time.Duration
	// NewTicker returns a channel that receives the current time every d.
	NewTicker(d time.Duration) (<-chan time.Time, func())
	// After returns a channel that fires once after d.
	After(d time.Duration) <-chan time.Time
}

// Real is the production Clock backed by the runtime's wall and monotonic clocks
// and math/rand for jitter.
type Real struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewReal returns a Real clock seeded from the current time.
func NewReal() *Real {
	return &Real{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Now implements Clock.
func (c *Real) Now() time.Time { return time.Now() }

// Since implements Clock.
func (c *Real) Since(t time.Time) time.Duration { return time.Since(t) }

// Jitter implements Clock.
func (c *Real) Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	span := int64(max - min)
	return min + time.Duration(c.rng.Int63n(span))
}

// JitterPct implements Clock.
func (c *Real) JitterPct(d time.Duration, lowPct, highPct float64) time.Duration {
	c.mu.Lock()
	factor := 1 + lowPct + c.rng.Float64()*(highPct-lowPct)
	c.mu.Unlock()
	return time.Duration(float64(d) * factor)
}

// NewTicker implements Clock, returning a real time.Ticker's channel and a stop func.
func (c *Real) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// After implements Clock using time.After.
func (c *Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
