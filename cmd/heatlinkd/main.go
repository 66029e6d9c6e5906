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

// Command heatlinkd wires the Fetch Engine's collaborators into a running
// process: load config, build the cache/stats sinks, the proxy pool, the
// adapter registry, the fetch engine and scheduler, then run until a
// termination signal arrives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/losesky/heatlink/internal/adapter"
	"github.com/losesky/heatlink/internal/adapter/htmladapter"
	"github.com/losesky/heatlink/internal/adapter/jsonadapter"
	"github.com/losesky/heatlink/internal/adapter/rssadapter"
	"github.com/losesky/heatlink/internal/cache"
	"github.com/losesky/heatlink/internal/clock"
	"github.com/losesky/heatlink/internal/config"
	"github.com/losesky/heatlink/internal/controlplane"
	"github.com/losesky/heatlink/internal/fetchengine"
	"github.com/losesky/heatlink/internal/httpclient"
	"github.com/losesky/heatlink/internal/metrics"
	"github.com/losesky/heatlink/internal/model"
	"github.com/losesky/heatlink/internal/proxypool"
	"github.com/losesky/heatlink/internal/scheduler"
	"github.com/losesky/heatlink/internal/stats"
	"github.com/losesky/heatlink/internal/util/log"
	"github.com/losesky/heatlink/internal/util/tracing"
)

const shutdownGrace = 30 * time.Second

func main() {
	configPath := flag.StringP("config", "c", "./heatlink.toml", "path to the HeatLink TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "heatlinkd: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.LogLevel, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "heatlinkd: configuring logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Error("heatlinkd exiting", log.Pairs{"detail": err.Error()})
		os.Exit(1)
	}
}

func run(cfg *config.HeatLinkConfig) error {
	clk := clock.NewReal()

	cacheSink, err := cfg.Cache.BuildSink(clk)
	if err != nil {
		return fmt.Errorf("building cache sink: %w", err)
	}
	itemCache := cache.New(clk, cacheSink, cfg.Cache.MaxItemsPerSource, cfg.Cache.Compress)

	statsSink, err := cfg.Stats.BuildSink()
	if err != nil {
		return fmt.Errorf("building stats sink: %w", err)
	}
	collector := stats.New(clk, statsSink, time.Duration(cfg.Stats.FlushIntervalSecs)*time.Second)

	proxies := proxypool.New(clk, cfg.Main.RequiredProxyDomains)
	proxies.Replace(cfg.ProxyConfigs())

	clientOpts := httpclient.DefaultOptions()
	if cfg.Main.DefaultUserAgent != "" {
		clientOpts.UserAgent = cfg.Main.DefaultUserAgent
	}

	registry := adapter.NewRegistry()
	factory := buildAdapterFactory(cfg)
	for _, desc := range cfg.SourceDescriptors() {
		if err := registry.Register(desc, factory.Construct); err != nil {
			return fmt.Errorf("registering source %q: %w", desc.SourceID, err)
		}
	}

	engine := fetchengine.New(fetchengine.Config{
		Clock:         clk,
		Registry:      registry,
		Cache:         itemCache,
		Proxies:       proxies,
		ClientOptions: clientOpts,
		Stats:         collector,
		FetchDeadline: time.Duration(cfg.Main.DefaultFetchDeadlineMS) * time.Millisecond,
	})

	sched := scheduler.New(clk, engine, sourceViewsFn(registry), cfg.Main.GlobalConcurrency)

	_ = controlplane.New(registry, factory, engine, proxies, collector)

	stopTracer, err := tracing.SetTracer(tracerImplementation(cfg.Tracing.Implementation), cfg.Tracing.CollectorEndpoint)
	if err != nil {
		return fmt.Errorf("configuring tracer: %w", err)
	}
	defer stopTracer()

	sweeper := proxypool.NewSweeper(proxies, clk, httpclient.New(clientOpts, nil),
		time.Duration(cfg.Main.HealthSweepIntervalSecs)*time.Second)

	metricsServer := buildMetricsServer(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { sched.Run(gctx); return nil })
	g.Go(func() error { sweeper.Run(gctx); return nil })
	g.Go(func() error { runFlushLoop(gctx, clk, collector); return nil })
	g.Go(func() error { return runMetricsServer(gctx, metricsServer) })
	g.Go(func() error { runMetricsSyncLoop(gctx, clk, proxies, sched, registry); return nil })

	log.Info("heatlinkd started", log.Pairs{"sources": len(cfg.Sources), "proxies": len(cfg.Proxies)})

	<-ctx.Done()
	log.Info("heatlinkd shutting down", log.Pairs{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	collector.FlushAll()

	return g.Wait()
}

// buildAdapterFactory wires the three reference adapters' ParseConfig+New
// constructors into a TypeFactory (spec.md §4.4). The headless renderer is
// left nil in the default build; a chromedp-tagged build would supply one
// built from cfg.Main.RendererPoolSize.
func buildAdapterFactory(cfg *config.HeatLinkConfig) *adapter.TypeFactory {
	return adapter.NewTypeFactory(map[model.SourceType]adapter.Constructor{
		model.SourceTypeAPI: func(desc model.SourceDescriptor) (adapter.Adapter, error) {
			parsed, err := jsonadapter.ParseConfig(desc.Config)
			if err != nil {
				return nil, err
			}
			return jsonadapter.New(desc, parsed)
		},
		model.SourceTypeRSS: func(desc model.SourceDescriptor) (adapter.Adapter, error) {
			parsed, err := rssadapter.ParseConfig(desc.Config)
			if err != nil {
				return nil, err
			}
			return rssadapter.New(desc, parsed)
		},
		model.SourceTypeWeb: func(desc model.SourceDescriptor) (adapter.Adapter, error) {
			parsed, err := htmladapter.ParseConfig(desc.Config)
			if err != nil {
				return nil, err
			}
			return htmladapter.New(desc, parsed, nil)
		},
	})
}

// sourceViewsFn closes over registry so the scheduler always reads the
// currently-registered source set (spec.md §4.6 assumes sources can be
// added/removed at runtime via the control plane).
func sourceViewsFn(registry *adapter.Registry) func() []scheduler.SourceView {
	return func() []scheduler.SourceView {
		descs := registry.List()
		views := make([]scheduler.SourceView, 0, len(descs))
		for _, d := range descs {
			views = append(views, scheduler.SourceView{
				SourceID:         d.SourceID,
				Priority:         d.Priority,
				UpdateIntervalMS: d.UpdateIntervalMS,
				AdaptiveEnabled:  d.AdaptiveEnabled,
			})
		}
		return views
	}
}

func runFlushLoop(ctx context.Context, clk clock.Clock, collector *stats.Collector) {
	tick, stop := clk.NewTicker(collector.FlushInterval())
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			collector.FlushAll()
		}
	}
}

func buildMetricsServer(cfg *config.HeatLinkConfig) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf("%s:%d", cfg.Metrics.ListenAddress, cfg.Metrics.ListenPort)
	return &http.Server{Addr: addr, Handler: handlers.CombinedLoggingHandler(os.Stdout, r)}
}

func runMetricsServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics listener: %w", err)
		}
		return nil
	}
}

// runMetricsSyncLoop periodically copies proxy-health and scheduler
// next-due-time state into the Prometheus gauges internal/metrics
// exposes, keeping internal/proxypool and internal/scheduler free of a
// direct prometheus import (DESIGN.md's internal/metrics entry).
func runMetricsSyncLoop(ctx context.Context, clk clock.Clock, proxies *proxypool.Pool, sched *scheduler.Scheduler, registry *adapter.Registry) {
	tick, stop := clk.NewTicker(5 * time.Second)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			syncProxyMetrics(proxies)
			syncSchedulerMetrics(clk, sched, registry)
		}
	}
}

func syncProxyMetrics(proxies *proxypool.Pool) {
	for _, p := range proxies.All() {
		metrics.ProxyHealth.WithLabelValues(p.ProxyID, p.Group).Set(metrics.ProxyHealthValue(string(p.Status)))
		metrics.ProxyLatencyMS.WithLabelValues(p.ProxyID, p.Group).Set(p.LatencyMSEWMA)
	}
}

func syncSchedulerMetrics(clk clock.Clock, sched *scheduler.Scheduler, registry *adapter.Registry) {
	now := clk.Now()
	for _, d := range registry.List() {
		due := sched.NextDueAt(scheduler.SourceView{
			SourceID:         d.SourceID,
			UpdateIntervalMS: d.UpdateIntervalMS,
		})
		metrics.SchedulerNextDueSeconds.WithLabelValues(d.SourceID).Set(due.Sub(now).Seconds())
	}
}

func tracerImplementation(name string) tracing.TracerImplementation {
	if impl, ok := tracing.TracerImplementations[name]; ok {
		return impl
	}
	return tracing.StdoutTracerImplementation
}
