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

// Package config loads HeatLink's TOML configuration file (spec.md §6.6's
// "environment-like inputs the engine reads once at startup"), in the same
// shape as trickster's own config package: a typed struct tree decoded with
// BurntSushi/toml, defaulted field-by-field using the decode metadata so an
// omitted key gets its documented default rather than a Go zero value.
package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/losesky/heatlink/internal/cache"
	"github.com/losesky/heatlink/internal/clock"
	"github.com/losesky/heatlink/internal/model"
	"github.com/losesky/heatlink/internal/proxypool"
	"github.com/losesky/heatlink/internal/stats"
)

// Config is the process-wide Running Configuration, set once by Load.
var Config *HeatLinkConfig

// HeatLinkConfig is the root of the TOML configuration tree.
type HeatLinkConfig struct {
	Main    *MainConfig                       `toml:"main"`
	Sources map[string]*model.SourceDescriptor `toml:"sources"`
	Proxies map[string]*proxypool.ProxyConfig  `toml:"proxies"`
	Cache   *CachingConfig                    `toml:"cache"`
	Stats   *StatsConfig                      `toml:"stats"`
	Logging *LoggingConfig                    `toml:"logging"`
	Metrics *MetricsConfig                    `toml:"metrics"`
	Tracing *TracingConfig                    `toml:"tracing"`
}

// MainConfig holds the engine-wide defaults spec.md §6.6 lists: default
// update interval, default cache TTL, default fetch deadline, global fetch
// concurrency, the proxy-required domain list, the default user-agent, and
// the headless-renderer pool size.
type MainConfig struct {
	ConfigHandlerPath string `toml:"config_handler_path"`
	PingHandlerPath   string `toml:"ping_handler_path"`

	GlobalConcurrency int64 `toml:"global_concurrency"`

	DefaultUpdateIntervalMS int64 `toml:"default_update_interval_ms"`
	DefaultCacheTTLMS       int64 `toml:"default_cache_ttl_ms"`
	DefaultFetchDeadlineMS  int64 `toml:"default_fetch_deadline_ms"`
	DefaultUserAgent        string `toml:"default_user_agent"`

	RequiredProxyDomains    []string `toml:"required_proxy_domains"`
	RendererPoolSize        int      `toml:"renderer_pool_size"`
	HealthSweepIntervalSecs int      `toml:"health_sweep_interval_secs"`
}

// CachingConfig configures the shared (cross-process) item cache tier
// (spec.md §4.1, §6.2).
type CachingConfig struct {
	CacheType         string `toml:"cache_type"` // memory | bbolt | badger | redis
	MaxItemsPerSource int    `toml:"max_items_per_source"`
	Compress          bool   `toml:"compress"`

	Redis  RedisCacheConfig  `toml:"redis"`
	BBolt  BBoltCacheConfig  `toml:"bbolt"`
	Badger BadgerCacheConfig `toml:"badger"`
}

// RedisCacheConfig mirrors internal/cache.RedisConfig's dial options.
type RedisCacheConfig struct {
	ClientType string `toml:"client_type"`
	Endpoint   string `toml:"endpoint"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
}

// BBoltCacheConfig configures the embedded bbolt cache sink.
type BBoltCacheConfig struct {
	Filename string `toml:"filename"`
	Bucket   string `toml:"bucket"`
}

// BadgerCacheConfig configures the embedded badger cache sink.
type BadgerCacheConfig struct {
	Directory      string `toml:"directory"`
	ValueDirectory string `toml:"value_directory"`
}

// StatsConfig configures the Stats Collector's flush sink (spec.md §4.5, §6.3).
type StatsConfig struct {
	SinkType          string `toml:"sink_type"` // memory | bbolt
	FlushIntervalSecs int    `toml:"flush_interval_secs"`
	BBolt             BBoltCacheConfig `toml:"bbolt"`
}

// LoggingConfig controls internal/util/log's output.
type LoggingConfig struct {
	LogFile  string `toml:"log_file"`
	LogLevel string `toml:"log_level"`
}

// MetricsConfig controls the Prometheus metrics listener.
type MetricsConfig struct {
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
}

// TracingConfig controls the OpenTelemetry tracer.
type TracingConfig struct {
	Implementation    string `toml:"tracer_implementation"`
	CollectorEndpoint string `toml:"tracing_collector"`
}

// NewConfig returns a HeatLinkConfig populated with documented defaults.
func NewConfig() *HeatLinkConfig {
	return &HeatLinkConfig{
		Main: &MainConfig{
			ConfigHandlerPath:       defaultConfigHandlerPath,
			PingHandlerPath:         defaultPingHandlerPath,
			GlobalConcurrency:       defaultGlobalConcurrency,
			DefaultUpdateIntervalMS: defaultUpdateIntervalMS,
			DefaultCacheTTLMS:       defaultCacheTTLMS,
			DefaultFetchDeadlineMS:  defaultFetchDeadlineMS,
			DefaultUserAgent:        defaultUserAgent,
			RendererPoolSize:        defaultRendererPoolSize,
			HealthSweepIntervalSecs: defaultHealthSweepIntervalSecs,
		},
		Sources: map[string]*model.SourceDescriptor{},
		Proxies: map[string]*proxypool.ProxyConfig{},
		Cache: &CachingConfig{
			CacheType:         defaultCacheType,
			MaxItemsPerSource: defaultMaxItemsPerSource,
			Compress:          defaultCacheCompression,
			Redis: RedisCacheConfig{
				ClientType: defaultRedisClientType,
				Endpoint:   defaultRedisEndpoint,
				PoolSize:   defaultRedisPoolSize,
			},
			BBolt:  BBoltCacheConfig{Filename: defaultBBoltFile, Bucket: defaultBBoltBucket},
			Badger: BadgerCacheConfig{Directory: "./heatlink-badger", ValueDirectory: "./heatlink-badger"},
		},
		Stats: &StatsConfig{
			SinkType:          defaultStatsSinkType,
			FlushIntervalSecs: defaultStatsFlushIntervalS,
			BBolt:             BBoltCacheConfig{Filename: defaultStatsBBoltFile, Bucket: defaultStatsBBoltBucket},
		},
		Logging: &LoggingConfig{LogFile: defaultLogFile, LogLevel: defaultLogLevel},
		Metrics: &MetricsConfig{ListenAddress: defaultMetricsListenAddress, ListenPort: defaultMetricsListenPort},
		Tracing: &TracingConfig{Implementation: defaultTracerImplementation},
	}
}

// validate enforces the cross-field constraints a decoded file can't
// express on its own: cache/stats sink type membership and at least one
// configured source.
func (c *HeatLinkConfig) validate() error {
	switch c.Cache.CacheType {
	case "memory", "bbolt", "badger", "redis":
	default:
		return fmt.Errorf("config: invalid cache.cache_type %q", c.Cache.CacheType)
	}
	switch c.Stats.SinkType {
	case "memory", "bbolt":
	default:
		return fmt.Errorf("config: invalid stats.sink_type %q", c.Stats.SinkType)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("config: no sources configured")
	}
	for id, d := range c.Sources {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("config: source %q: %w", id, err)
		}
	}
	return nil
}

// BuildSink constructs the cache.Sink named by c.CacheType. clk is only
// consulted for the memory sink; the on-disk and redis sinks keep their own
// clocks internally.
func (c *CachingConfig) BuildSink(clk clock.Clock) (cache.Sink, error) {
	switch c.CacheType {
	case "memory":
		return cache.NewMemorySink(clk), nil
	case "bbolt":
		return cache.NewBBoltSink(c.BBolt.Filename, c.BBolt.Bucket)
	case "badger":
		return cache.NewBadgerSink(c.Badger.Directory, c.Badger.ValueDirectory)
	case "redis":
		return cache.NewRedisSink(cache.RedisConfig{
			ClientType: c.Redis.ClientType,
			Endpoint:   c.Redis.Endpoint,
			Password:   c.Redis.Password,
			DB:         c.Redis.DB,
			PoolSize:   c.Redis.PoolSize,
		})
	default:
		return nil, fmt.Errorf("config: unknown cache_type %q", c.CacheType)
	}
}

// BuildSink constructs the stats.Sink named by c.SinkType.
func (c *StatsConfig) BuildSink() (stats.Sink, error) {
	switch c.SinkType {
	case "memory":
		return stats.NewMemorySink(), nil
	case "bbolt":
		return stats.NewBBoltSink(c.BBolt.Filename, c.BBolt.Bucket)
	default:
		return nil, fmt.Errorf("config: unknown stats sink_type %q", c.SinkType)
	}
}

// String renders the configuration back to TOML with secrets redacted, for
// diagnostics/admin-handler output.
func (c *HeatLinkConfig) String() string {
	cp := *c
	cacheCp := *c.Cache
	if cacheCp.Redis.Password != "" {
		cacheCp.Redis.Password = "*****"
	}
	cp.Cache = &cacheCp

	var buf bytes.Buffer
	e := toml.NewEncoder(&buf)
	_ = e.Encode(cp)
	return buf.String()
}
