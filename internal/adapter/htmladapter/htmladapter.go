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

// Package htmladapter is the rendered-HTML reference adapter (spec.md
// §4.4): a page URL, a CSS selector extraction map per item, and an
// optional Renderer for sources that require JS execution before the
// markup is scrapable. The renderer is an opaque capability (spec.md
// §5's "contract only") — a headless implementation lives behind the
// chromedp build tag in renderer_chromedp.go.
package htmladapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/losesky/heatlink/internal/adapter"
	"github.com/losesky/heatlink/internal/model"
)

// Renderer executes client-side JS for a page and returns the resulting
// markup. Adapters that don't need rendering leave this nil.
type Renderer interface {
	Render(ctx context.Context, pageURL string, waitForSelector string) (html string, err error)
}

// FieldSelectors maps each NewsItem field to a CSS selector evaluated
// relative to one item root. URL and ImageURL may name an attribute via
// "selector@attr" (defaulting to "href"/"src" when omitted).
type FieldSelectors struct {
	ItemRoot string `toml:"item_root"`
	Title    string `toml:"title"`
	URL      string `toml:"url"`
	Summary  string `toml:"summary"`
	ImageURL string `toml:"image_url"`
	Author   string `toml:"author"`
	Category string `toml:"category"`
}

// Config is the adapter-specific config carried in SourceDescriptor.Config.
type Config struct {
	PageURL        string         `toml:"page_url"`
	Selectors      FieldSelectors `toml:"selectors"`
	RequiresRender bool           `toml:"requires_render"`
	RenderWaitFor  string         `toml:"render_wait_for"`
}

// ParseConfig decodes a SourceDescriptor.Config map into a Config.
func ParseConfig(raw map[string]interface{}) (Config, error) {
	var cfg Config
	if err := adapter.DecodeMapConfig(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Adapter implements adapter.Adapter for one rendered/static HTML source.
type Adapter struct {
	desc     model.SourceDescriptor
	cfg      Config
	renderer Renderer
}

// New constructs an HTML adapter. renderer may be nil when cfg.RequiresRender
// is false; a nil renderer with RequiresRender true is a configuration error.
func New(desc model.SourceDescriptor, cfg Config, renderer Renderer) (*Adapter, error) {
	if cfg.PageURL == "" {
		return nil, fmt.Errorf("htmladapter: page_url is required for source %q", desc.SourceID)
	}
	if cfg.Selectors.ItemRoot == "" || cfg.Selectors.Title == "" || cfg.Selectors.URL == "" {
		return nil, fmt.Errorf("htmladapter: selectors.item_root, title, and url are required for source %q", desc.SourceID)
	}
	if cfg.RequiresRender && renderer == nil {
		return nil, fmt.Errorf("htmladapter: source %q requires a renderer but none was supplied", desc.SourceID)
	}
	return &Adapter{desc: desc, cfg: cfg, renderer: renderer}, nil
}

// Metadata implements adapter.Adapter.
func (a *Adapter) Metadata() model.SourceDescriptor { return a.desc }

// Fetch implements adapter.Adapter.
func (a *Adapter) Fetch(ctx context.Context, client *http.Client) ([]model.NewsItem, error) {
	var doc *goquery.Document
	var err error

	if a.cfg.RequiresRender {
		html, rErr := a.renderer.Render(ctx, a.cfg.PageURL, a.cfg.RenderWaitFor)
		if rErr != nil {
			return nil, fmt.Errorf("htmladapter: rendering page: %w", rErr)
		}
		doc, err = goquery.NewDocumentFromReader(strings.NewReader(html))
	} else {
		doc, err = a.fetchStatic(ctx, client)
	}
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(a.cfg.PageURL)

	var items []model.NewsItem
	doc.Find(a.cfg.Selectors.ItemRoot).Each(func(_ int, sel *goquery.Selection) {
		item := extractItem(sel, a.cfg.Selectors, base)
		if item.Title != "" && item.URL != "" {
			items = append(items, item)
		}
	})
	return items, nil
}

func (a *Adapter) fetchStatic(ctx context.Context, client *http.Client) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.PageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("htmladapter: building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("htmladapter: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("htmladapter: upstream status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("htmladapter: parsing html: %w", err)
	}
	return doc, nil
}

func extractItem(sel *goquery.Selection, f FieldSelectors, base *url.URL) model.NewsItem {
	return model.NewsItem{
		Title:    selText(sel, f.Title),
		URL:      resolveAttr(sel, f.URL, "href", base),
		Summary:  selText(sel, f.Summary),
		ImageURL: resolveAttr(sel, f.ImageURL, "src", base),
		Author:   selText(sel, f.Author),
		Category: selText(sel, f.Category),
	}
}

func selText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return trimSpace(sel.Find(selector).First().Text())
}

func resolveAttr(sel *goquery.Selection, selector, defaultAttr string, base *url.URL) string {
	if selector == "" {
		return ""
	}
	target, attr := splitSelectorAttr(selector, defaultAttr)
	val, ok := sel.Find(target).First().Attr(attr)
	if !ok || val == "" {
		return ""
	}
	if base == nil {
		return val
	}
	ref, err := url.Parse(val)
	if err != nil {
		return val
	}
	return base.ResolveReference(ref).String()
}

func splitSelectorAttr(selector, defaultAttr string) (target, attr string) {
	for i := len(selector) - 1; i >= 0; i-- {
		if selector[i] == '@' {
			return selector[:i], selector[i+1:]
		}
	}
	return selector, defaultAttr
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
