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

// Package jsonadapter is the JSON API reference adapter (spec.md §4.4):
// a request template plus a gjson path expression selecting the item
// array, plus a per-field extraction map of gjson paths relative to each
// item.
package jsonadapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/losesky/heatlink/internal/adapter"
	"github.com/losesky/heatlink/internal/model"
)

// FieldMap names the gjson path (relative to one matched item) for each
// NewsItem field the source can supply. Required: Title, URL.
type FieldMap struct {
	Title       string `toml:"title"`
	URL         string `toml:"url"`
	OriginalID  string `toml:"original_id"`
	Summary     string `toml:"summary"`
	Content     string `toml:"content"`
	Author      string `toml:"author"`
	ImageURL    string `toml:"image_url"`
	PublishedAt string `toml:"published_at"` // must parse with time.RFC3339 once resolved
	Category    string `toml:"category"`
	Language    string `toml:"language"`
	Tags        string `toml:"tags"` // gjson path to a string array
}

// Config is the adapter-specific config carried in SourceDescriptor.Config.
type Config struct {
	RequestURL    string            `toml:"request_url"`
	RequestMethod string            `toml:"request_method"` // defaults to GET
	Headers       map[string]string `toml:"headers"`
	Body          string            `toml:"body"`
	ItemsPath     string            `toml:"items_path"` // e.g. "$.items" -> gjson uses "items" without the "$."
	Fields        FieldMap          `toml:"fields"`
}

// ParseConfig decodes a SourceDescriptor.Config map into a Config, per
// spec.md §9's "each adapter parses it into its own strongly-typed config
// record at construction".
func ParseConfig(raw map[string]interface{}) (Config, error) {
	var cfg Config
	if err := adapter.DecodeMapConfig(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Adapter implements adapter.Adapter for one JSON API source.
type Adapter struct {
	desc model.SourceDescriptor
	cfg  Config
}

// New constructs a JSON API adapter from a descriptor whose Config map has
// already been decoded into cfg by the caller (e.g. via
// adapter.DecodeMapConfig).
func New(desc model.SourceDescriptor, cfg Config) (*Adapter, error) {
	if cfg.RequestURL == "" {
		return nil, fmt.Errorf("jsonadapter: request_url is required for source %q", desc.SourceID)
	}
	if cfg.Fields.Title == "" || cfg.Fields.URL == "" {
		return nil, fmt.Errorf("jsonadapter: fields.title and fields.url are required for source %q", desc.SourceID)
	}
	if cfg.RequestMethod == "" {
		cfg.RequestMethod = http.MethodGet
	}
	return &Adapter{desc: desc, cfg: cfg}, nil
}

// Metadata implements adapter.Adapter.
func (a *Adapter) Metadata() model.SourceDescriptor { return a.desc }

// Fetch implements adapter.Adapter.
func (a *Adapter) Fetch(ctx context.Context, client *http.Client) ([]model.NewsItem, error) {
	var bodyReader io.Reader
	if a.cfg.Body != "" {
		bodyReader = bytes.NewReader([]byte(a.cfg.Body))
	}

	req, err := http.NewRequestWithContext(ctx, a.cfg.RequestMethod, a.cfg.RequestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("jsonadapter: building request: %w", err)
	}
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jsonadapter: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jsonadapter: reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("jsonadapter: upstream status %d", resp.StatusCode)
	}

	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("jsonadapter: response is not valid JSON")
	}
	doc := gjson.ParseBytes(raw)

	itemsResult := doc
	if a.cfg.ItemsPath != "" {
		itemsResult = doc.Get(a.cfg.ItemsPath)
	}
	if !itemsResult.IsArray() {
		return nil, fmt.Errorf("jsonadapter: items_path %q did not select an array", a.cfg.ItemsPath)
	}

	var items []model.NewsItem
	itemsResult.ForEach(func(_, value gjson.Result) bool {
		item := extractItem(value, a.cfg.Fields)
		if item.Title != "" && item.URL != "" {
			items = append(items, item)
		}
		return true
	})
	return items, nil
}

func extractItem(value gjson.Result, f FieldMap) model.NewsItem {
	get := func(path string) string {
		if path == "" {
			return ""
		}
		return value.Get(path).String()
	}

	item := model.NewsItem{
		Title:      get(f.Title),
		URL:        get(f.URL),
		OriginalID: get(f.OriginalID),
		Summary:    get(f.Summary),
		Content:    get(f.Content),
		Author:     get(f.Author),
		ImageURL:   get(f.ImageURL),
		Category:   get(f.Category),
		Language:   get(f.Language),
	}

	if f.PublishedAt != "" {
		if raw := value.Get(f.PublishedAt).String(); raw != "" {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				item.PublishedAt = &ts
			}
		}
	}

	if f.Tags != "" {
		tagsResult := value.Get(f.Tags)
		if tagsResult.IsArray() {
			tagsResult.ForEach(func(_, tv gjson.Result) bool {
				item.Tags = append(item.Tags, tv.String())
				return true
			})
		}
	}

	return item
}
