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

// Package fetchengine orchestrates the registry, cache, proxy pool, HTTP
// client factory, and stats collector into the two public operations
// spec.md §4.7 describes: GetNews (caller-facing, cache-aware,
// single-flight-coalesced) and FetchSource (scheduler-facing, always
// live). It plays the same "glue everything together" role trickster's
// proxy/engines package plays for a read-through reverse proxy.
package fetchengine

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/losesky/heatlink/internal/adapter"
	"github.com/losesky/heatlink/internal/cache"
	"github.com/losesky/heatlink/internal/clock"
	"github.com/losesky/heatlink/internal/fetchengine/errorkind"
	"github.com/losesky/heatlink/internal/httpclient"
	"github.com/losesky/heatlink/internal/metrics"
	"github.com/losesky/heatlink/internal/model"
	"github.com/losesky/heatlink/internal/proxypool"
	"github.com/losesky/heatlink/internal/scheduler"
	"github.com/losesky/heatlink/internal/stats"
	"github.com/losesky/heatlink/internal/util/log"
	"github.com/losesky/heatlink/internal/util/tracing"
	"go.opentelemetry.io/otel/api/key"
	"go.opentelemetry.io/otel/api/trace"
)

const defaultFetchDeadline = 60 * time.Second
const defaultEmitTimeout = 5 * time.Second

// Options controls one GetNews call (spec.md §4.7).
type Options struct {
	ForceRefresh bool
	Deadline     time.Time
	CallType     stats.CallType // zero value means "external", the caller-facing default
}

// Meta describes how GetNews served its result (spec.md §4.7). CacheHit is
// true only when step 2's TTL-valid Lookup served the result without a
// fetch running at all; a live fetch sets it false even when protection
// kept the previously-cached items (ProtectionApplied covers that case).
type Meta struct {
	CacheHit          bool
	ProtectionApplied bool
	AgeMS             int64
	ErrorKind         errorkind.Kind
}

// Engine is the fetch orchestrator. Construct with New and register
// adapters via Registry before calling GetNews/FetchSource.
type Engine struct {
	clock      clock.Clock
	registry   *adapter.Registry
	cache      *cache.Cache
	proxies    *proxypool.Pool
	clientOpts httpclient.Options
	stats      *stats.Collector
	emitter    Emitter
	guard      *guard

	emitTimeout    time.Duration
	fetchDeadline  time.Duration
}

// Config bundles the collaborators New wires together.
type Config struct {
	Clock         clock.Clock
	Registry      *adapter.Registry
	Cache         *cache.Cache
	Proxies       *proxypool.Pool
	ClientOptions httpclient.Options
	Stats         *stats.Collector
	Emitter       Emitter
	EmitTimeout   time.Duration
	FetchDeadline time.Duration
}

// New builds an Engine from its collaborators.
func New(cfg Config) *Engine {
	if cfg.Emitter == nil {
		cfg.Emitter = LoggingEmitter{}
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = defaultEmitTimeout
	}
	if cfg.FetchDeadline <= 0 {
		cfg.FetchDeadline = defaultFetchDeadline
	}
	return &Engine{
		clock:         cfg.Clock,
		registry:      cfg.Registry,
		cache:         cfg.Cache,
		proxies:       cfg.Proxies,
		clientOpts:    cfg.ClientOptions,
		stats:         cfg.Stats,
		emitter:       cfg.Emitter,
		guard:         newGuard(),
		emitTimeout:   cfg.EmitTimeout,
		fetchDeadline: cfg.FetchDeadline,
	}
}

// InFlight reports whether sourceID currently has a leader fetch running
// (spec.md §4.9), for the scheduler's skip-without-penalty check.
func (e *Engine) InFlight(sourceID string) bool {
	return e.guard.InFlight(model.CanonicalSourceID(sourceID))
}

type leaderResult struct {
	items             []model.NewsItem
	protectionApplied bool
	outcome           stats.Outcome
}

// GetNews implements spec.md §4.7's algorithm.
func (e *Engine) GetNews(ctx context.Context, sourceID string, opts Options) ([]model.NewsItem, Meta, error) {
	canonical := model.CanonicalSourceID(sourceID)
	desc, ok := e.registry.Descriptor(canonical)
	if !ok {
		return nil, Meta{}, errorkind.New(errorkind.UnknownSource, nil)
	}

	ttl := time.Duration(desc.CacheTTLMS) * time.Millisecond

	if !opts.ForceRefresh {
		if items, ageMS, valid := e.cache.Lookup(canonical, ttl); valid {
			metrics.CacheResultTotal.WithLabelValues(canonical, "hit").Inc()
			return items, Meta{CacheHit: true, AgeMS: ageMS}, nil
		}
		metrics.CacheResultTotal.WithLabelValues(canonical, "miss").Inc()
	}

	if !opts.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, opts.Deadline)
		defer cancel()
	}

	callType := opts.CallType
	if callType == "" {
		callType = stats.CallTypeExternal
	}

	v, err, _ := e.guard.do(ctx, canonical, func() (interface{}, error) {
		lr, ferr := e.runFetch(context.Background(), canonical, desc, callType)
		return lr, ferr
	})
	if err != nil {
		if ctx.Err() != nil {
			// follower timed out waiting on the leader; fall back to whatever
			// is cached, else report a timeout (spec.md §4.7 step 3).
			if items, ageMS, valid := e.cache.Lookup(canonical, ttl); len(items) > 0 {
				return items, Meta{CacheHit: valid, AgeMS: ageMS}, nil
			}
			return nil, Meta{}, errorkind.New(errorkind.InFlightTimeout, ctx.Err())
		}
		return nil, Meta{}, err
	}

	lr := v.(leaderResult)
	if !lr.outcome.Success && len(lr.items) == 0 {
		// cold cache and the fetch failed: propagate the typed error instead
		// of an empty result set (spec.md §7's propagation policy).
		return nil, Meta{}, errorkind.New(lr.outcome.ErrorKind, errors.New(lr.outcome.ErrorMessage))
	}
	// a live fetch ran (whether or not protection kept the old items), so
	// CacheHit is left false; ErrorKind surfaces why protection kicked in,
	// per spec.md §7's "meta.error_kind set for observability" (S4).
	return lr.items, Meta{ProtectionApplied: lr.protectionApplied, ErrorKind: lr.outcome.ErrorKind}, nil
}

// FetchSource is the scheduler-facing entrypoint (spec.md §4.7): always a
// live fetch, items are committed to cache and emitted, only the outcome
// is returned.
func (e *Engine) FetchSource(ctx context.Context, sourceID string, callType stats.CallType) (stats.Outcome, error) {
	canonical := model.CanonicalSourceID(sourceID)
	desc, ok := e.registry.Descriptor(canonical)
	if !ok {
		return stats.Outcome{}, errorkind.New(errorkind.UnknownSource, nil)
	}

	v, err, _ := e.guard.do(ctx, canonical, func() (interface{}, error) {
		return e.runFetch(context.Background(), canonical, desc, callType)
	})
	if err != nil {
		return stats.Outcome{}, err
	}
	return v.(leaderResult).outcome, nil
}

// DispatchInternal implements scheduler.Dispatcher: it skips (without
// penalty) if the source is already in flight, otherwise runs FetchSource
// as an internal call (spec.md §4.8).
func (e *Engine) DispatchInternal(ctx context.Context, sourceID string) (scheduler.Outcome, bool) {
	canonical := model.CanonicalSourceID(sourceID)
	if e.InFlight(canonical) {
		return scheduler.Outcome{}, true
	}
	outcome, err := e.FetchSource(ctx, canonical, stats.CallTypeInternal)
	if err != nil {
		return scheduler.Outcome{Success: false}, false
	}
	return scheduler.Outcome{
		Success:      outcome.Success,
		DurationMS:   outcome.DurationMS,
		NewItemCount: outcome.ItemCount,
	}, false
}

// runFetch is the leader body: build adapter + client, fetch, normalize,
// commit to cache, record stats, emit. Always runs to completion once
// started regardless of the original caller's context (spec.md §4.7's
// cancellation note).
func (e *Engine) runFetch(ctx context.Context, sourceID string, desc model.SourceDescriptor, callType stats.CallType) (leaderResult, error) {
	deadline := e.fetchDeadline
	if desc.FetchDeadlineMS > 0 {
		deadline = time.Duration(desc.FetchDeadlineMS) * time.Millisecond
	}
	fetchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	inst, canonical, ok := e.registry.Resolve(sourceID)
	if !ok {
		return leaderResult{}, errorkind.New(errorkind.UnknownSource, nil)
	}

	client, proxyID := e.buildClient(desc)

	spanCtx, span := tracing.NewSpan(tracing.WithTracerName(fetchCtx, tracing.ServiceName), "fetch-source")
	start := e.clock.Now()
	span.AddEventWithTimestamp(spanCtx, start, "fetching", key.String("heatlink.source_id", canonical))

	rawItems, fetchErr := inst.Fetch(spanCtx, client)
	duration := e.clock.Since(start)

	if proxyID != "" {
		e.proxies.RecordOutcome(proxyID, fetchErr == nil, duration)
	}

	// spec.md §7: a proxy-routed failure gets exactly one retry via the next
	// proxy in the ordered pool before the tick gives up.
	if fetchErr != nil && proxyID != "" {
		retryClient, retryProxyID := e.buildClientExcluding(desc, proxyID)
		if retryProxyID != "" {
			retryStart := e.clock.Now()
			retryItems, retryErr := inst.Fetch(spanCtx, retryClient)
			retryDuration := e.clock.Since(retryStart)
			e.proxies.RecordOutcome(retryProxyID, retryErr == nil, retryDuration)
			duration += retryDuration
			proxyID = retryProxyID
			rawItems, fetchErr = retryItems, retryErr
		}
	}

	span.End(trace.WithEndTime(e.clock.Now()))

	success := fetchErr == nil
	var kind errorkind.Kind
	errMsg := ""
	if fetchErr != nil {
		kind = classify(fetchCtx, fetchErr)
		errMsg = fetchErr.Error()
	}

	metrics.FetchDurationSeconds.WithLabelValues(canonical, string(callType)).Observe(duration.Seconds())

	normalized := make([]model.NewsItem, len(rawItems))
	for i := range rawItems {
		normalized[i] = *model.Normalize(&rawItems[i], canonical, desc.Name)
	}

	result := e.cache.Update(canonical, normalized, success, errMsg, desc.ShrinkThreshold(), time.Duration(desc.CacheTTLMS)*time.Millisecond)

	outcome := stats.Outcome{
		SourceID:     canonical,
		StartedAt:    start,
		DurationMS:   duration.Milliseconds(),
		Success:      success,
		ItemCount:    len(result.Committed),
		CacheUsed:    result.ProtectionApplied,
		ErrorKind:    kind,
		ErrorMessage: errMsg,
		CallType:     callType,
	}
	if e.stats != nil {
		e.stats.Record(outcome)
	}

	metrics.FetchTotal.WithLabelValues(canonical, string(callType), strconv.FormatBool(success), string(kind)).Inc()
	metrics.ItemsCommitted.WithLabelValues(canonical).Observe(float64(len(result.Committed)))
	if result.CounterIncremented != "" {
		metrics.CacheResultTotal.WithLabelValues(canonical, result.CounterIncremented).Inc()
	}

	if !result.ProtectionApplied {
		e.emitWithTimeout(canonical, result.Committed, callType)
	}

	return leaderResult{
		items:             result.Committed,
		protectionApplied: result.ProtectionApplied,
		outcome:           outcome,
	}, nil
}

func (e *Engine) emitWithTimeout(sourceID string, items []model.NewsItem, callType stats.CallType) {
	if e.emitter == nil || len(items) == 0 {
		return
	}
	done := make(chan error, 1)
	go func() { done <- e.emitter.Emit(sourceID, items, callType) }()

	select {
	case err := <-done:
		if err != nil {
			log.Warn("emitter failed", log.Pairs{"sourceId": sourceID, "detail": err.Error()})
		}
	case <-e.clock.After(e.emitTimeout):
		log.Warn("emitter did not ack within timeout", log.Pairs{"sourceId": sourceID})
	}
}

func (e *Engine) buildClient(desc model.SourceDescriptor) (*http.Client, string) {
	if e.proxies == nil || !e.proxies.RequiresProxy(desc.ProxyPolicy, desc.HomeURL) {
		return httpclient.New(e.clientOpts, nil), ""
	}

	proxy, direct, err := e.proxies.Select(desc.ProxyGroup, desc.AllowFallbackDirect)
	if err != nil || direct {
		return httpclient.New(e.clientOpts, nil), ""
	}
	return httpclient.New(e.clientOpts, proxy), proxy.ProxyID
}

// buildClientExcluding selects the next usable proxy after excludeProxyID
// for the single per-tick retry (spec.md §7). Returns a "" proxy id (and a
// direct client the caller should ignore) when no other proxy is available.
func (e *Engine) buildClientExcluding(desc model.SourceDescriptor, excludeProxyID string) (*http.Client, string) {
	if e.proxies == nil {
		return nil, ""
	}
	proxy, direct, err := e.proxies.Select(desc.ProxyGroup, false, excludeProxyID)
	if err != nil || direct {
		return nil, ""
	}
	return httpclient.New(e.clientOpts, proxy), proxy.ProxyID
}

func classify(ctx context.Context, err error) errorkind.Kind {
	var fe *errorkind.FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if ctx.Err() == context.DeadlineExceeded {
		return errorkind.Timeout
	}
	if ctx.Err() == context.Canceled {
		return errorkind.Canceled
	}
	return errorkind.Network
}
