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

// Package controlplane exposes the read/write operations spec.md §6.5
// describes as an internal Go API, in the same spirit as trickster's
// routing/registration package: a thin layer gluing the registry, engine,
// proxy pool, and stats collector together for an operator-facing surface.
// Serialization and transport (HTTP, gRPC, a CLI) are the caller's concern;
// this package only exposes method calls.
package controlplane

import (
	"context"
	"fmt"

	"github.com/losesky/heatlink/internal/adapter"
	"github.com/losesky/heatlink/internal/fetchengine"
	"github.com/losesky/heatlink/internal/model"
	"github.com/losesky/heatlink/internal/proxypool"
	"github.com/losesky/heatlink/internal/stats"
)

// SourceDetail combines a source's static descriptor with its live health
// summary, for a single-source dashboard view (spec.md §6.5's "source
// detail" and "source status/stats" read operations folded together).
type SourceDetail struct {
	Descriptor model.SourceDescriptor
	InFlight   bool
	Status     string
	LastError  string
	ItemCount  int
	Aggregates map[stats.CallType]stats.Aggregate
}

// ControlPlane is the operator-facing API surface over one running engine.
type ControlPlane struct {
	registry *adapter.Registry
	factory  *adapter.TypeFactory
	engine   *fetchengine.Engine
	proxies  *proxypool.Pool
	stats    *stats.Collector
}

// New builds a ControlPlane over an already-wired engine and its
// collaborators. factory dispatches RegisterSource/UpdateSourceConfig's
// constructor by SourceDescriptor.Type.
func New(registry *adapter.Registry, factory *adapter.TypeFactory, engine *fetchengine.Engine, proxies *proxypool.Pool, collector *stats.Collector) *ControlPlane {
	return &ControlPlane{registry: registry, factory: factory, engine: engine, proxies: proxies, stats: collector}
}

// ListSources returns every registered source descriptor.
func (cp *ControlPlane) ListSources() []model.SourceDescriptor {
	return cp.registry.List()
}

// SourceDetail returns the descriptor plus live health/stats for one source.
func (cp *ControlPlane) SourceDetail(sourceID string) (SourceDetail, error) {
	canonical := model.CanonicalSourceID(sourceID)
	desc, ok := cp.registry.Descriptor(canonical)
	if !ok {
		return SourceDetail{}, fmt.Errorf("controlplane: unknown source %q", canonical)
	}

	detail := SourceDetail{
		Descriptor: desc,
		InFlight:   cp.engine.InFlight(canonical),
		Status:     "unknown",
		Aggregates: map[stats.CallType]stats.Aggregate{
			stats.CallTypeInternal: cp.stats.Aggregate(canonical, stats.CallTypeInternal),
			stats.CallTypeExternal: cp.stats.Aggregate(canonical, stats.CallTypeExternal),
		},
	}

	if outcomes := cp.stats.Outcomes(canonical); len(outcomes) > 0 {
		last := outcomes[len(outcomes)-1]
		detail.ItemCount = last.ItemCount
		detail.LastError = last.ErrorMessage
		if last.Success {
			detail.Status = "healthy"
		} else {
			detail.Status = "degraded"
		}
	}

	return detail, nil
}

// ListProxies returns a snapshot of every registered proxy.
func (cp *ControlPlane) ListProxies() []proxypool.ProxyConfig {
	return cp.proxies.All()
}

// ProxyStats returns one proxy's current health record.
func (cp *ControlPlane) ProxyStats(proxyID string) (proxypool.ProxyConfig, error) {
	cfg, ok := cp.proxies.Get(proxyID)
	if !ok {
		return proxypool.ProxyConfig{}, fmt.Errorf("controlplane: unknown proxy %q", proxyID)
	}
	return cfg, nil
}

// RegisterSource builds an adapter for desc via the type factory and adds
// it to the registry (spec.md §6.5's "register source").
func (cp *ControlPlane) RegisterSource(desc model.SourceDescriptor) error {
	return cp.registry.Register(desc, cp.factory.Construct)
}

// DeregisterSource removes a source and releases its adapter.
func (cp *ControlPlane) DeregisterSource(sourceID string) {
	cp.registry.Deregister(sourceID)
}

// UpdateSourceConfig replaces an already-registered source's descriptor and
// rebuilds its adapter; the change takes effect on the next fetch (spec.md
// §6.5).
func (cp *ControlPlane) UpdateSourceConfig(desc model.SourceDescriptor) error {
	return cp.registry.Update(desc, cp.factory.Construct)
}

// UpdateProxyList replaces the engine's proxy set, preserving health state
// for proxies whose ID is unchanged (spec.md §6.5's "update proxy list").
func (cp *ControlPlane) UpdateProxyList(cfgs []proxypool.ProxyConfig) {
	cp.proxies.Replace(cfgs)
}

// TriggerRefresh runs an on-demand forced fetch for sourceID (spec.md
// §6.5's GetNews(source_id, force_refresh=true)).
func (cp *ControlPlane) TriggerRefresh(ctx context.Context, sourceID string) ([]model.NewsItem, fetchengine.Meta, error) {
	return cp.engine.GetNews(ctx, sourceID, fetchengine.Options{ForceRefresh: true})
}
