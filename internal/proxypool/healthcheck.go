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

package proxypool

import (
	"context"
	"net/http"
	"time"

	"github.com/losesky/heatlink/internal/clock"
	"github.com/losesky/heatlink/internal/util/log"
)

// Sweeper periodically revives cooled-down dead proxies and probes every
// non-healthy proxy's HealthCheckURL (spec.md §4.2's health-check sweep),
// feeding the result back through RecordOutcome so the ordering invariant
// stays current between real fetch traffic.
type Sweeper struct {
	pool     *Pool
	clock    clock.Clock
	client   *http.Client
	interval time.Duration
}

// NewSweeper builds a Sweeper. client is used only for health-check probes,
// never for source fetches.
func NewSweeper(pool *Pool, clk clock.Clock, client *http.Client, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Sweeper{pool: pool, clock: clk, client: client, interval: interval}
}

// Run blocks, sweeping on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker, stop := s.clock.NewTicker(s.interval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass: revive proxies past their cooldown, then probe every
// proxy that isn't currently healthy.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.pool.ReviveDeadProxies()

	for _, cfg := range s.pool.All() {
		if cfg.Status == StatusHealthy || cfg.HealthCheckURL == "" {
			continue
		}
		s.probe(ctx, cfg)
	}
}

func (s *Sweeper) probe(ctx context.Context, cfg ProxyConfig) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.HealthCheckURL, nil)
	if err != nil {
		return
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := err == nil && resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		log.WarnOnce("proxy-healthcheck-"+cfg.ProxyID, "proxy health check failed", log.Pairs{"proxyId": cfg.ProxyID, "detail": err.Error()})
	}
	s.pool.RecordOutcome(cfg.ProxyID, success, latency)
}
