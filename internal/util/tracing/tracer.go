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

const (
	// StdoutTracerImplementation is the zero-config default: spans print to
	// the heatlinkd process's own stdout.
	StdoutTracerImplementation TracerImplementation = iota

	// RecorderTracerImplementation buffers spans in memory instead of
	// writing them anywhere; see LastRecordedSpans.
	RecorderTracerImplementation

	// JaegerTracer ships spans to a collector; requires a heatlinkd binary
	// built with -tags jaeger.
	JaegerTracer
)

type TracerImplementation int

var (
	tracerImplemetationStrings = []string{
		"stdout",
		"recorder",
		"jaeger",
	}
	TracerImplementations = map[string]TracerImplementation{
		tracerImplemetationStrings[StdoutTracerImplementation]:   StdoutTracerImplementation,
		tracerImplemetationStrings[RecorderTracerImplementation]: RecorderTracerImplementation,
		tracerImplemetationStrings[JaegerTracer]:                 JaegerTracer,
	}
)

func (t TracerImplementation) String() string {
	if t < StdoutTracerImplementation || t > JaegerTracer {
		return "unknown-tracer"
	}
	return tracerImplemetationStrings[t]
}

// SetTracer installs the named tracer implementation as the process-global
// OpenTelemetry trace provider (cfg.Tracing.Implementation in heatlink.toml
// selects among these). collectorURL is only consulted by JaegerTracer.
func SetTracer(t TracerImplementation, collectorURL string) (func(), error) {
	switch t {
	case StdoutTracerImplementation:
		return setStdOutTracer()
	case RecorderTracerImplementation:
		return setRecorderTracer(collectorURL)
	case JaegerTracer:
		return setJaegerTracer(collectorURL)
	default:
		return setStdOutTracer()
	}
}
