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

// Package metrics holds the engine's Prometheus instrumentation, in the
// same package-level-vars-plus-WithLabelValues idiom trickster's
// internal/util/metrics uses from internal/proxy/engines/httpproxy.go
// (ProxyRequestStatus.WithLabelValues(...).Inc(), ProxyRequestDuration
// .WithLabelValues(...).Observe(...)), generalized from one reverse-proxy
// request to one source fetch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FetchTotal counts every completed fetch attempt, by source, call
	// type, and outcome (spec.md §3.5's StatsOutcome fields, restated as
	// Prometheus labels).
	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "heatlink",
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Count of fetch attempts by source, call type, and outcome.",
		},
		[]string{"source_id", "call_type", "success", "error_kind"},
	)

	// FetchDurationSeconds observes fetch duration, by source and call type.
	FetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "heatlink",
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Fetch duration in seconds by source and call type.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source_id", "call_type"},
	)

	// CacheResultTotal counts cache lookups by source and result
	// (hit|miss), plus protection-policy decisions (error|empty|shrink).
	CacheResultTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "heatlink",
			Subsystem: "cache",
			Name:      "result_total",
			Help:      "Cache lookups and protection decisions by source and result.",
		},
		[]string{"source_id", "result"},
	)

	// ItemsCommitted observes how many items a committed fetch produced,
	// by source — a proxy for "quiet" sources feeding the scheduler's
	// freshness factor (spec.md §4.6).
	ItemsCommitted = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "heatlink",
			Subsystem: "fetch",
			Name:      "items_committed",
			Help:      "Item count committed to cache per fetch, by source.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"source_id"},
	)

	// ProxyHealth reports each proxy's current state machine position as a
	// gauge (0=healthy, 1=degraded, 2=unknown, 3=dead) so a dashboard can
	// alert on the same ordering spec.md §3.4 defines.
	ProxyHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "heatlink",
			Subsystem: "proxy",
			Name:      "health_state",
			Help:      "Proxy health state (0=healthy,1=degraded,2=unknown,3=dead).",
		},
		[]string{"proxy_id", "group"},
	)

	// ProxyLatencyMS reports each proxy's EWMA latency.
	ProxyLatencyMS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "heatlink",
			Subsystem: "proxy",
			Name:      "latency_ms_ewma",
			Help:      "Proxy latency EWMA in milliseconds.",
		},
		[]string{"proxy_id", "group"},
	)

	// SchedulerNextDueSeconds reports the number of seconds until each
	// source's next scheduled fetch, for spotting starved sources.
	SchedulerNextDueSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "heatlink",
			Subsystem: "scheduler",
			Name:      "next_due_seconds",
			Help:      "Seconds until the next scheduled fetch for a source.",
		},
		[]string{"source_id"},
	)
)

// Registry is the Prometheus registry the metrics above are registered
// against; cmd/heatlinkd exposes it over an HTTP listener via
// promhttp.HandlerFor, keeping the engine itself free of any transport
// dependency.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		FetchTotal,
		FetchDurationSeconds,
		CacheResultTotal,
		ItemsCommitted,
		ProxyHealth,
		ProxyLatencyMS,
		SchedulerNextDueSeconds,
	)
}

// ProxyHealthValue maps a proxypool.Status string to the gauge value
// ProxyHealth expects, kept here (rather than in internal/proxypool) so
// that package stays free of a prometheus import.
func ProxyHealthValue(status string) float64 {
	switch status {
	case "healthy":
		return 0
	case "degraded":
		return 1
	case "unknown":
		return 2
	case "dead":
		return 3
	default:
		return 2
	}
}
