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

package tracing

import (
	"context"

	"go.opentelemetry.io/otel/api/global"
	"go.opentelemetry.io/otel/api/trace"
)

// ServiceName identifies this process to the configured trace backend.
const ServiceName = "heatlinkd"

type tracerCtxType struct{}

var tracerCtxKey = &tracerCtxType{}

// WithTracerName returns a context carrying tracerName, so a later NewSpan
// call in the same request/fetch picks up the right tracer without every
// call site threading it through explicitly.
func WithTracerName(ctx context.Context, tracerName string) context.Context {
	return context.WithValue(ctx, tracerCtxKey, tracerName)
}

// GlobalTracer returns the configured tracer, defaulting to ServiceName
// when ctx carries none (spec.md's per-fetch tracing spans need no
// inbound-request context to extract from, unlike trickster's HTTP
// middleware use of the same API).
func GlobalTracer(ctx context.Context) trace.Tracer {
	tracerName, ok := ctx.Value(tracerCtxKey).(string)
	if !ok || tracerName == "" {
		tracerName = ServiceName
	}
	return global.TraceProvider().Tracer(tracerName)
}

// NewSpan starts a child span named spanName under ctx's tracer. Callers
// end it via the returned Span's End method; spec.md §5 names "every
// network call in adapters and the proxy-pool probe" and the fetch
// engine's per-fetch adapter invocation as the spans worth recording.
func NewSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return GlobalTracer(ctx).Start(ctx, spanName)
}
