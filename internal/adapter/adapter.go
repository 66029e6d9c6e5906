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

// Package adapter defines the pluggable source contract and a
// registry/factory keyed by canonical source_id (spec.md §4.4), in the
// same shape as trickster's origin-type registry: a string key resolves
// to a constructor, not a concrete type switch sprinkled through the
// engine.
package adapter

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/losesky/heatlink/internal/model"
)

// Adapter is satisfied by every source implementation. Fetch is handed an
// HTTP client already configured by internal/httpclient (proxy, timeouts,
// user-agent) — adapters MUST NOT open their own sockets (spec.md §6.1).
type Adapter interface {
	Metadata() model.SourceDescriptor
	Fetch(ctx context.Context, client *http.Client) ([]model.NewsItem, error)
}

// Closer is an optional capability for adapters holding external handles
// (e.g. a headless renderer session).
type Closer interface {
	Close() error
}

// Constructor builds an Adapter from its descriptor.
type Constructor func(desc model.SourceDescriptor) (Adapter, error)

// Registry maps canonical source_id to a constructed Adapter instance. A
// single instance is created per registration; Fetch may be called on it
// repeatedly.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Adapter
	descs   map[string]model.SourceDescriptor
	aliases map[string]string // alias canonical id -> target canonical id
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Adapter),
		descs:   make(map[string]model.SourceDescriptor),
		aliases: make(map[string]string),
	}
}

// RegistrationError reports why Register refused a source_id.
type RegistrationError struct {
	SourceID string
	Reason   string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("adapter registry: %s: %s", e.SourceID, e.Reason)
}

// AddAlias records a legacy/synonym source_id that resolves to an
// already-canonical target id (spec.md §4.4's "separate alias table").
// The alias itself is canonicalized before being recorded.
func (r *Registry) AddAlias(alias, target string) {
	canonAlias := model.CanonicalSourceID(alias)
	canonTarget := model.CanonicalSourceID(target)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[canonAlias] = canonTarget
}

// Register builds and stores an Adapter for desc using ctor. desc.SourceID
// is canonicalized first; registering a second, distinct descriptor whose
// canonical id collides with an existing one is rejected (spec.md §3.6).
func (r *Registry) Register(desc model.SourceDescriptor, ctor Constructor) error {
	canonical := model.CanonicalSourceID(desc.SourceID)
	desc.SourceID = canonical
	if err := desc.Validate(); err != nil {
		return &RegistrationError{SourceID: canonical, Reason: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[canonical]; exists {
		return &RegistrationError{SourceID: canonical, Reason: "source_id already registered"}
	}

	inst, err := ctor(desc)
	if err != nil {
		return &RegistrationError{SourceID: canonical, Reason: err.Error()}
	}
	r.entries[canonical] = inst
	r.descs[canonical] = desc
	return nil
}

// Update replaces an already-registered source's descriptor and adapter
// instance in place (spec.md §6.5's "update source config" write
// operation, effective on the next fetch). The old instance is released if
// it is a Closer. Unlike Register, an existing canonical id is required,
// not rejected.
func (r *Registry) Update(desc model.SourceDescriptor, ctor Constructor) error {
	canonical := model.CanonicalSourceID(desc.SourceID)
	desc.SourceID = canonical
	if err := desc.Validate(); err != nil {
		return &RegistrationError{SourceID: canonical, Reason: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	old, exists := r.entries[canonical]
	if !exists {
		return &RegistrationError{SourceID: canonical, Reason: "source_id not registered"}
	}

	inst, err := ctor(desc)
	if err != nil {
		return &RegistrationError{SourceID: canonical, Reason: err.Error()}
	}
	r.entries[canonical] = inst
	r.descs[canonical] = desc
	if c, ok := old.(Closer); ok {
		c.Close()
	}
	return nil
}

// Deregister removes a source and, if the adapter is a Closer, releases it.
func (r *Registry) Deregister(sourceID string) {
	canonical := model.CanonicalSourceID(sourceID)
	r.mu.Lock()
	inst, ok := r.entries[canonical]
	delete(r.entries, canonical)
	delete(r.descs, canonical)
	r.mu.Unlock()
	if ok {
		if c, ok := inst.(Closer); ok {
			c.Close()
		}
	}
}

// Resolve canonicalizes sourceID, follows one level of alias indirection,
// and returns the registered Adapter plus its canonical id.
func (r *Registry) Resolve(sourceID string) (Adapter, string, bool) {
	canonical := model.CanonicalSourceID(sourceID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[canonical]; ok {
		canonical = target
	}
	inst, ok := r.entries[canonical]
	return inst, canonical, ok
}

// Descriptor returns the registered descriptor for a (possibly aliased)
// source_id.
func (r *Registry) Descriptor(sourceID string) (model.SourceDescriptor, bool) {
	canonical := model.CanonicalSourceID(sourceID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[canonical]; ok {
		canonical = target
	}
	d, ok := r.descs[canonical]
	return d, ok
}

// List returns every registered descriptor, for the control plane (spec.md §6.5).
func (r *Registry) List() []model.SourceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.SourceDescriptor, 0, len(r.descs))
	for _, d := range r.descs {
		out = append(out, d)
	}
	return out
}
