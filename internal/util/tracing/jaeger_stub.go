//go:build !jaeger

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

import "fmt"

// setJaegerTracer's default-build stand-in. heatlinkd binaries are shipped
// without the jaeger exporter linked in unless built with -tags jaeger, so
// picking JaegerTracerImplementation against one of those binaries is a
// config/binary mismatch the operator needs to know about, not a silent
// fallback to stdout.
func setJaegerTracer(collectorURL string) (func(), error) {
	return nil, fmt.Errorf("jaeger tracing requires a heatlinkd binary built with -tags jaeger")
}
