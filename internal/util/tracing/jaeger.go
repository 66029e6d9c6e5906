//go:build jaeger

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

// Jaeger is HeatLink's production tracing backend: fetch-source spans
// (internal/fetchengine's per-adapter-invocation span, tagged with
// heatlink.source_id) ship to a collector instead of staying local, which
// is what operators actually want once more than one heatlinkd process is
// running. Pulled in only with -tags jaeger, same as
// internal/adapter/htmladapter's chromedp renderer, since the exporter
// drags in its own versioned module the default build shouldn't pay for.
package tracing

import (
	"go.opentelemetry.io/otel/api/core"
	"go.opentelemetry.io/otel/api/global"
	"go.opentelemetry.io/otel/api/key"
	"go.opentelemetry.io/otel/exporter/trace/jaeger"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func setJaegerTracer(collectorURL string) (func(), error) {
	exporter, err := jaeger.NewExporter(
		jaeger.WithCollectorEndpoint(collectorURL),
		jaeger.WithProcess(jaeger.Process{
			ServiceName: ServiceName,
			Tags: []core.KeyValue{
				key.String("exporter", "jaeger"),
			},
		}),
	)
	if err != nil {
		return nil, err
	}

	// Fetch traffic is bursty and source-count-bounded rather than
	// request-per-second-bounded, so always-sample is the right default
	// here (unlike an inbound-request tracer, there's no QPS to protect
	// the collector from).
	tp, err := sdktrace.NewProvider(
		sdktrace.WithConfig(sdktrace.Config{DefaultSampler: sdktrace.AlwaysSample()}),
		sdktrace.WithSyncer(exporter))
	if err != nil {
		return nil, err
	}
	global.SetTraceProvider(tp)

	return func() {
		exporter.Flush()
	}, nil
}
