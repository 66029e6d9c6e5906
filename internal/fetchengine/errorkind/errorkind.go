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

// Package errorkind holds the engine-visible error taxonomy (spec.md §7),
// split out so both internal/stats and internal/fetchengine can depend on
// it without importing each other.
package errorkind

// Kind is one of the engine's classified failure reasons.
type Kind string

const (
	UnknownSource   Kind = "unknown_source"
	InFlightTimeout Kind = "in_flight_timeout"
	ProxyUnavailable Kind = "proxy_unavailable"
	Network         Kind = "network"
	Parse           Kind = "parse"
	AdapterInternal Kind = "adapter_internal"
	RateLimited     Kind = "rate_limited"
	Canceled        Kind = "canceled"
	Timeout         Kind = "timeout"
)

// FetchError pairs a Kind with the underlying cause, satisfying the
// stdlib errors.Is/As/Unwrap contract (SPEC_FULL.md §2.1's ambient error
// handling — typed kind + wrapped cause, no pkg/errors).
type FetchError struct {
	Kind  Kind
	Cause error
}

func (e *FetchError) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Cause.Error()
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Is reports whether target is a *FetchError with the same Kind, so
// callers can write errors.Is(err, &errorkind.FetchError{Kind: errorkind.Network}).
func (e *FetchError) Is(target error) bool {
	other, ok := target.(*FetchError)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// New wraps cause with the given Kind.
func New(kind Kind, cause error) *FetchError {
	return &FetchError{Kind: kind, Cause: cause}
}
