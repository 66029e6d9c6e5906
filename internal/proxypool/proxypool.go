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

// Package proxypool implements the ordered proxy set, its health state
// machine, and the domain-matching / source-policy selection rules described
// in spec.md §4.2.
package proxypool

import (
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/losesky/heatlink/internal/clock"
	"github.com/losesky/heatlink/internal/model"
)

// Status is a proxy's health state (spec.md §3.4).
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusDead     Status = "dead"
)

// statusRank gives the total order healthy ≺ degraded ≺ unknown ≺ dead
// required by the ProxyConfig ordering invariant (spec.md §3.4).
var statusRank = map[Status]int{
	StatusHealthy:  0,
	StatusDegraded: 1,
	StatusUnknown:  2,
	StatusDead:     3,
}

// ErrProxyUnavailable is returned when no usable proxy exists and direct
// fallback is disallowed (spec.md §7 error_kind "proxy_unavailable").
var ErrProxyUnavailable = errors.New("proxy_unavailable")

const deadCooldown = 10 * time.Minute
const latencyEWMAAlpha = 0.25

// ProxyConfig is the static+mutable state of one proxy (spec.md §3.4).
type ProxyConfig struct {
	ProxyID        string `toml:"proxy_id"`
	Protocol       string `toml:"protocol"` // socks5 | http | https
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	Group          string `toml:"group"`
	Priority       int    `toml:"priority"`
	HealthCheckURL string `toml:"health_check_url"`

	Status              Status    `toml:"-"`
	LastCheckAt         time.Time `toml:"-"`
	LatencyMSEWMA       float64   `toml:"-"`
	ConsecutiveFailures int       `toml:"-"`
}

// URL renders the dial target for this proxy as a URL (used by the HTTP
// client factory to configure http.Transport.Proxy / a SOCKS5 dialer).
func (p *ProxyConfig) URL() *url.URL {
	u := &url.URL{Scheme: p.Protocol, Host: p.Host}
	if p.Port != 0 {
		u.Host = p.Host + ":" + itoa(p.Port)
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

type proxyEntry struct {
	mu     sync.Mutex
	config ProxyConfig
}

// Pool is the ordered, health-tracked proxy set for one engine instance.
type Pool struct {
	clock clock.Clock

	mu             sync.RWMutex
	entries        map[string]*proxyEntry
	requiredSuffix []string // domain suffixes that MUST use a proxy
}

// New returns an empty Pool. requiredDomains lists domain suffixes (e.g.
// "github.com") that force proxying under ProxyPolicyIfRequired.
func New(clk clock.Clock, requiredDomains []string) *Pool {
	norm := make([]string, len(requiredDomains))
	for i, d := range requiredDomains {
		norm[i] = strings.ToLower(d)
	}
	return &Pool{clock: clk, entries: make(map[string]*proxyEntry), requiredSuffix: norm}
}

// Add registers or replaces a proxy. New proxies start in StatusUnknown.
func (p *Pool) Add(cfg ProxyConfig) {
	if cfg.Status == "" {
		cfg.Status = StatusUnknown
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[cfg.ProxyID] = &proxyEntry{config: cfg}
}

// Remove drops a proxy from the pool. It is a no-op if proxyID is unknown.
func (p *Pool) Remove(proxyID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, proxyID)
}

// Replace swaps the entire proxy set for cfgs, preserving the health state
// of any proxy whose ID is still present and dropping every proxy not in
// cfgs (spec.md §6.5's "update proxy list" write operation).
func (p *Pool) Replace(cfgs []ProxyConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := make(map[string]*proxyEntry, len(cfgs))
	for _, cfg := range cfgs {
		if existing, ok := p.entries[cfg.ProxyID]; ok {
			existing.mu.Lock()
			cfg.Status = existing.config.Status
			cfg.LastCheckAt = existing.config.LastCheckAt
			cfg.LatencyMSEWMA = existing.config.LatencyMSEWMA
			cfg.ConsecutiveFailures = existing.config.ConsecutiveFailures
			existing.mu.Unlock()
		} else if cfg.Status == "" {
			cfg.Status = StatusUnknown
		}
		next[cfg.ProxyID] = &proxyEntry{config: cfg}
	}
	p.entries = next
}

// All returns a snapshot of every registered proxy, for monitoring (spec.md §6.5).
func (p *Pool) All() []ProxyConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ProxyConfig, 0, len(p.entries))
	for _, e := range p.entries {
		e.mu.Lock()
		out = append(out, e.config)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProxyID < out[j].ProxyID })
	return out
}

// RequiresProxy applies spec.md §4.2's policy precedence: proxy_policy
// "always"/"never" override the domain list; "if-required" defers to it.
func (p *Pool) RequiresProxy(policy model.ProxyPolicy, rawURL string) bool {
	switch policy {
	case model.ProxyPolicyAlways:
		return true
	case model.ProxyPolicyNever:
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, suffix := range p.requiredSuffix {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Select returns the best available proxy in the given group (empty group
// means "any"), honoring the total order from spec.md §3.4 and skipping dead
// proxies. direct=true means "no proxy, connect directly" — only returned
// when allowFallbackDirect is set and nothing usable is found. Any proxy_id
// in exclude is skipped, which lets a caller ask for "the next one after
// this" for the one-retry-per-tick policy in spec.md §7.
func (p *Pool) Select(group string, allowFallbackDirect bool, exclude ...string) (proxy *ProxyConfig, direct bool, err error) {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	candidates := p.ordered(group)
	for _, c := range candidates {
		if skip[c.ProxyID] {
			continue
		}
		if c.Status != StatusDead {
			cp := c
			return &cp, false, nil
		}
	}
	if allowFallbackDirect {
		return nil, true, nil
	}
	return nil, false, ErrProxyUnavailable
}

func (p *Pool) ordered(group string) []ProxyConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ProxyConfig, 0, len(p.entries))
	for _, e := range p.entries {
		e.mu.Lock()
		cfg := e.config
		e.mu.Unlock()
		if group != "" && cfg.Group != group {
			continue
		}
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if statusRank[a.Status] != statusRank[b.Status] {
			return statusRank[a.Status] < statusRank[b.Status]
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.LatencyMSEWMA != b.LatencyMSEWMA {
			return a.LatencyMSEWMA < b.LatencyMSEWMA
		}
		return a.ProxyID < b.ProxyID
	})
	return out
}

// RecordOutcome feeds a fetch-time (or health-sweep) result into the proxy's
// state machine (spec.md §4.2): success resets consecutive failures and
// promotes unknown/degraded to healthy; failure increments the counter and
// demotes at the 1-failure (degraded) and 5-failure (dead) thresholds. A dead
// proxy is returned to unknown after a cooldown so it can be re-probed.
func (p *Pool) RecordOutcome(proxyID string, success bool, latency time.Duration) {
	p.mu.RLock()
	e, ok := p.entries[proxyID]
	p.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := p.clock.Now()
	e.config.LastCheckAt = now

	if success {
		e.config.ConsecutiveFailures = 0
		if e.config.Status == StatusUnknown || e.config.Status == StatusDegraded || e.config.Status == StatusDead {
			e.config.Status = StatusHealthy
		}
		latMS := float64(latency.Milliseconds())
		if e.config.LatencyMSEWMA == 0 {
			e.config.LatencyMSEWMA = latMS
		} else {
			e.config.LatencyMSEWMA = latencyEWMAAlpha*latMS + (1-latencyEWMAAlpha)*e.config.LatencyMSEWMA
		}
		return
	}

	e.config.ConsecutiveFailures++
	switch {
	case e.config.ConsecutiveFailures >= 5:
		e.config.Status = StatusDead
	case e.config.ConsecutiveFailures >= 1:
		if e.config.Status != StatusDead {
			e.config.Status = StatusDegraded
		}
	}
}

// ReviveDeadProxies scans for proxies that have been dead for at least the
// cooldown and returns them to StatusUnknown so the health sweep re-probes
// them (spec.md §4.2).
func (p *Pool) ReviveDeadProxies() {
	now := p.clock.Now()
	p.mu.RLock()
	entries := make([]*proxyEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.config.Status == StatusDead && now.Sub(e.config.LastCheckAt) >= deadCooldown {
			e.config.Status = StatusUnknown
			e.config.ConsecutiveFailures = 0
		}
		e.mu.Unlock()
	}
}

// Get returns a snapshot of one proxy's config by id.
func (p *Pool) Get(proxyID string) (ProxyConfig, bool) {
	p.mu.RLock()
	e, ok := p.entries[proxyID]
	p.mu.RUnlock()
	if !ok {
		return ProxyConfig{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config, true
}
