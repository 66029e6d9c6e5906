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

// Package rssadapter is the RSS/Atom reference adapter (spec.md §4.4),
// grounded on the retrieval pack's MrRSS feed fetcher: a gofeed.Parser
// fed the engine-provided *http.Client, channel metadata folded into
// per-item source fields.
package rssadapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mmcdole/gofeed"

	"github.com/losesky/heatlink/internal/adapter"
	"github.com/losesky/heatlink/internal/model"
)

// Config is the adapter-specific config carried in SourceDescriptor.Config.
type Config struct {
	FeedURL string `toml:"feed_url"`
}

// ParseConfig decodes a SourceDescriptor.Config map into a Config.
func ParseConfig(raw map[string]interface{}) (Config, error) {
	var cfg Config
	if err := adapter.DecodeMapConfig(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Adapter implements adapter.Adapter for one RSS/Atom source.
type Adapter struct {
	desc model.SourceDescriptor
	cfg  Config
}

// New constructs an RSS adapter.
func New(desc model.SourceDescriptor, cfg Config) (*Adapter, error) {
	if cfg.FeedURL == "" {
		return nil, fmt.Errorf("rssadapter: feed_url is required for source %q", desc.SourceID)
	}
	return &Adapter{desc: desc, cfg: cfg}, nil
}

// Metadata implements adapter.Adapter.
func (a *Adapter) Metadata() model.SourceDescriptor { return a.desc }

// Fetch implements adapter.Adapter. The client is handed to gofeed so the
// request honors the engine's proxy/timeout/user-agent configuration
// instead of gofeed's own default transport.
func (a *Adapter) Fetch(ctx context.Context, client *http.Client) ([]model.NewsItem, error) {
	parser := gofeed.NewParser()
	parser.Client = client

	feed, err := parser.ParseURLWithContext(a.cfg.FeedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("rssadapter: parsing feed: %w", err)
	}

	items := make([]model.NewsItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry.Link == "" || entry.Title == "" {
			continue
		}
		item := model.NewsItem{
			Title:      entry.Title,
			URL:        entry.Link,
			OriginalID: entry.GUID,
			Summary:    entry.Description,
			PublishedAt: entry.PublishedParsed,
			UpdatedAt:   entry.UpdatedParsed,
		}
		if entry.Author != nil {
			item.Author = entry.Author.Name
		}
		if entry.Image != nil {
			item.ImageURL = entry.Image.URL
		}
		if len(entry.Categories) > 0 {
			item.Category = entry.Categories[0]
			item.Tags = append(item.Tags, entry.Categories...)
		}
		if feed.Language != "" {
			item.Language = feed.Language
		}
		items = append(items, item)
	}
	return items, nil
}
