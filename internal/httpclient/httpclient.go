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

// Package httpclient builds per-source *http.Client instances (spec.md
// §4.3), wiring proxy selection from internal/proxypool the way the
// fetcher in the retrieval pack's RSS reader picks a proxy URL for a feed
// before handing a client to gofeed/goquery.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/losesky/heatlink/internal/proxypool"
)

// Options mirrors the knobs trickster's OriginConfig exposes for its
// upstream transport (TimeoutSecs, KeepAliveTimeoutSecs, MaxIdleConns),
// generalized to one HTTP client per source (spec.md §4.3).
type Options struct {
	ConnectTimeout      time.Duration
	ReadTimeout         time.Duration
	KeepAliveTimeout    time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxRedirects        int
	UserAgent           string
	InsecureSkipVerify  bool
}

// DefaultOptions returns the baseline transport tuning used when a source
// descriptor doesn't override it.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:      10 * time.Second,
		ReadTimeout:         20 * time.Second,
		KeepAliveTimeout:    30 * time.Second,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		MaxRedirects:        5,
		UserAgent:           "HeatLink/1.0 (+https://heatlink.invalid)",
	}
}

// errTooManyRedirects is returned by the client's CheckRedirect hook once
// MaxRedirects is exceeded (spec.md §4.3).
var errTooManyRedirects = &redirectError{}

type redirectError struct{}

func (*redirectError) Error() string { return "stopped after too many redirects" }

// userAgentTransport stamps every outbound request with the configured
// User-Agent header, since http.Transport has no built-in hook for that.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// New builds an *http.Client for one fetch attempt. When proxy is non-nil
// the transport dials through it; otherwise it connects directly. The
// returned client never follows more than opts.MaxRedirects redirects.
func New(opts Options, proxy *proxypool.ProxyConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: opts.KeepAliveTimeout,
	}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
	}
	if proxy != nil {
		proxyURL := proxy.URL()
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}

	return &http.Client{
		Transport: &userAgentTransport{base: transport, userAgent: opts.UserAgent},
		Timeout:   opts.ReadTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}
}
