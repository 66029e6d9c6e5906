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
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel/api/global"
	export "go.opentelemetry.io/otel/sdk/export/trace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/losesky/heatlink/internal/util/log"
)

// lastRecorder holds the most recently installed in-memory exporter, so
// integration tests (and a future control-plane "recent traces" endpoint)
// can inspect what heatlinkd actually traced without standing up a real
// collector. Guarded by recorderMu since FetchSource runs fetches
// concurrently across sources, each emitting spans on its own goroutine.
var (
	recorderMu   sync.Mutex
	lastRecorder *recorderExporter
)

// setRecorderTracer backs RecorderTracerImplementation: an in-process
// exporter with no I/O, useful for tests and for a disconnected
// troubleshooting session where even stdout output is unwanted. Always
// samples, matching the other two local implementations; a collectorURL
// is accepted for signature parity with setStdOutTracer/setJaegerTracer
// but unused since there's nowhere to send spans.
func setRecorderTracer(collectorURL string) (func(), error) {
	exporter := newRecorder()

	tp, err := sdktrace.NewProvider(
		sdktrace.WithConfig(sdktrace.Config{DefaultSampler: sdktrace.AlwaysSample()}),
		sdktrace.WithSyncer(exporter))
	if err != nil {
		return nil, err
	}
	global.SetTraceProvider(tp)

	recorderMu.Lock()
	lastRecorder = exporter
	recorderMu.Unlock()

	return func() {}, nil
}

// recorderExporter is a trace.Exporter that buffers spans in memory as JSON
// instead of writing them anywhere, and keeps the decoded SpanData around
// for LastRecordedSpans.
type recorderExporter struct {
	buf   *bytes.Buffer
	spans []*export.SpanData
}

func newRecorder() *recorderExporter {
	return &recorderExporter{buf: new(bytes.Buffer)}
}

// ExportSpan appends data's JSON encoding to the in-memory buffer and keeps
// the span for LastRecordedSpans. Marshal failures are logged and dropped;
// a single bad span shouldn't take down the tracer.
func (e *recorderExporter) ExportSpan(ctx context.Context, data *export.SpanData) {
	jsonSpan, err := json.Marshal(data)
	if err != nil {
		log.Error("tracing: recorder failed to marshal span", log.Pairs{"detail": err.Error()})
		return
	}
	e.spans = append(e.spans, data)
	e.buf.Write(append(jsonSpan, byte('\n')))
}

// LastRecordedSpans returns the spans captured by the most recently
// installed recorder tracer, or nil if RecorderTracerImplementation was
// never selected. Intended for tests asserting heatlinkd actually emitted
// a span around a fetch, without depending on a live Jaeger collector.
func LastRecordedSpans() []*export.SpanData {
	recorderMu.Lock()
	defer recorderMu.Unlock()
	if lastRecorder == nil {
		return nil
	}
	out := make([]*export.SpanData, len(lastRecorder.spans))
	copy(out, lastRecorder.spans)
	return out
}
