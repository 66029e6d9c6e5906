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

package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/losesky/heatlink/internal/model"
	"github.com/losesky/heatlink/internal/proxypool"
)

// Load reads path, overlaying it on NewConfig's defaults the way
// processOriginConfigs lays an origin's TOML values over its zero value:
// any key the file doesn't set keeps its documented default rather than
// becoming a Go zero value (an omitted update_interval_ms must not become
// 0 and fail SourceDescriptor.Validate).
func Load(path string) (*HeatLinkConfig, error) {
	c := NewConfig()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	c.processSourceConfigs(&md)
	c.processProxyConfigs(&md)

	if err := c.validate(); err != nil {
		return nil, err
	}

	Config = c
	return c, nil
}

// processSourceConfigs fills in every source's engine-wide defaults for
// fields the file left unset, then reconciles its map key with its
// source_id so a TOML table key and an explicit source_id line never
// disagree silently.
func (c *HeatLinkConfig) processSourceConfigs(md *toml.MetaData) {
	for k, d := range c.Sources {
		if !md.IsDefined("sources", k, "source_id") {
			d.SourceID = k
		}
		if !md.IsDefined("sources", k, "update_interval_ms") {
			d.UpdateIntervalMS = c.Main.DefaultUpdateIntervalMS
		}
		if !md.IsDefined("sources", k, "cache_ttl_ms") {
			d.CacheTTLMS = c.Main.DefaultCacheTTLMS
		}
		if !md.IsDefined("sources", k, "fetch_deadline_ms") {
			d.FetchDeadlineMS = c.Main.DefaultFetchDeadlineMS
		}
		if !md.IsDefined("sources", k, "proxy_policy") {
			d.ProxyPolicy = model.ProxyPolicyIfRequired
		}
		d.SourceID = model.CanonicalSourceID(d.SourceID)
	}
}

// processProxyConfigs assigns each proxy's map key back onto its proxy_id
// when the file left it unset, mirroring processSourceConfigs above.
func (c *HeatLinkConfig) processProxyConfigs(md *toml.MetaData) {
	for k, p := range c.Proxies {
		if !md.IsDefined("proxies", k, "proxy_id") {
			p.ProxyID = k
		}
		if !md.IsDefined("proxies", k, "protocol") {
			p.Protocol = "http"
		}
	}
}

// SourceDescriptors flattens the decoded Sources map into a slice, the
// shape adapter.Registry.Register and the control plane's bulk-load path
// expect.
func (c *HeatLinkConfig) SourceDescriptors() []model.SourceDescriptor {
	out := make([]model.SourceDescriptor, 0, len(c.Sources))
	for _, d := range c.Sources {
		out = append(out, *d)
	}
	return out
}

// ProxyConfigs flattens the decoded Proxies map into a slice, the shape
// proxypool.Pool.Replace expects.
func (c *HeatLinkConfig) ProxyConfigs() []proxypool.ProxyConfig {
	out := make([]proxypool.ProxyConfig, 0, len(c.Proxies))
	for _, p := range c.Proxies {
		out = append(out, *p)
	}
	return out
}
