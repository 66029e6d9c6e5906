//go:build chromedp

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

package htmladapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromedpRenderer is the headless-renderer implementation referenced by
// spec.md §5 as "contract only" — built here behind the chromedp build tag
// since it pulls a full headless Chrome dependency that the default build
// should not carry. A bounded pool of browser contexts backs concurrent
// Render calls (spec.md §5's "global semaphore for headless renderers,
// default 2").
type ChromedpRenderer struct {
	mu        sync.Mutex
	allocCtx  context.Context
	cancel    context.CancelFunc
	sem       chan struct{}
	idleAfter time.Duration
}

// NewChromedpRenderer starts a headless Chrome allocator with poolSize
// concurrent renderer slots.
func NewChromedpRenderer(poolSize int) *ChromedpRenderer {
	if poolSize <= 0 {
		poolSize = 2
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	return &ChromedpRenderer{
		allocCtx:  allocCtx,
		cancel:    cancel,
		sem:       make(chan struct{}, poolSize),
		idleAfter: 30 * time.Minute,
	}
}

// Render implements Renderer by navigating to pageURL, optionally waiting
// for waitForSelector to appear, and returning the rendered outer HTML.
func (r *ChromedpRenderer) Render(ctx context.Context, pageURL string, waitForSelector string) (string, error) {
	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	tabCtx, cancel := chromedp.NewContext(r.allocCtx)
	defer cancel()
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, 30*time.Second)
	defer timeoutCancel()

	actions := []chromedp.Action{chromedp.Navigate(pageURL)}
	if waitForSelector != "" {
		actions = append(actions, chromedp.WaitVisible(waitForSelector, chromedp.ByQuery))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", fmt.Errorf("chromedp: rendering %q: %w", pageURL, err)
	}
	return html, nil
}

// Close releases the underlying browser allocator (spec.md §5: "on
// graceful shutdown, renderer resources are released").
func (r *ChromedpRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel()
	return nil
}
