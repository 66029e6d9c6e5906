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

// Package model holds the data shapes shared across the Source Fetch Engine:
// the canonical NewsItem record and the SourceDescriptor that configures one
// source's adapter, caching, and proxy behavior.
package model

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// NewsItem is the canonical record the engine produces from every adapter.
type NewsItem struct {
	ID          string                 `json:"id" msg:"id"`
	SourceID    string                 `json:"source_id" msg:"source_id"`
	SourceName  string                 `json:"source_name" msg:"source_name"`
	Title       string                 `json:"title" msg:"title"`
	URL         string                 `json:"url" msg:"url"`
	OriginalID  string                 `json:"original_id,omitempty" msg:"original_id"`
	Summary     string                 `json:"summary,omitempty" msg:"summary"`
	Content     string                 `json:"content,omitempty" msg:"content"`
	Author      string                 `json:"author,omitempty" msg:"author"`
	ImageURL    string                 `json:"image_url,omitempty" msg:"image_url"`
	PublishedAt *time.Time             `json:"published_at,omitempty" msg:"published_at"`
	UpdatedAt   *time.Time             `json:"updated_at,omitempty" msg:"updated_at"`
	Language    string                 `json:"language,omitempty" msg:"language"`
	Country     string                 `json:"country,omitempty" msg:"country"`
	Category    string                 `json:"category,omitempty" msg:"category"`
	Tags        []string               `json:"tags,omitempty" msg:"tags"`
	Extra       map[string]interface{} `json:"extra,omitempty" msg:"extra"`
}

// reservedExtraKeys are fields the engine always keeps top-level; an adapter
// that places either inside Extra has it stripped on ingest (spec.md §3.1).
var reservedExtraKeys = []string{"source_id", "source_name"}

// Normalize enforces the top-level source_id/source_name invariant, strips
// them from Extra, derives ID when the adapter left it blank, and coerces
// timestamps to UTC. It mutates the item in place and also returns it.
func Normalize(item *NewsItem, sourceID, sourceName string) *NewsItem {
	item.SourceID = sourceID
	item.SourceName = sourceName

	if item.Extra != nil {
		for _, k := range reservedExtraKeys {
			delete(item.Extra, k)
		}
	}

	if item.PublishedAt != nil {
		u := item.PublishedAt.UTC()
		item.PublishedAt = &u
	}
	if item.UpdatedAt != nil {
		u := item.UpdatedAt.UTC()
		item.UpdatedAt = &u
	}

	if item.ID == "" {
		item.ID = DeriveID(sourceID, item.URL, item.PublishedAt, item.Title)
	}

	return item
}

// DeriveID computes the stable identifier for a NewsItem:
// hex(sha1(source_id || "\x00" || url || "\x00" || published_at(RFC3339 or "") || "\x00" || title))
func DeriveID(sourceID, url string, publishedAt *time.Time, title string) string {
	var pub string
	if publishedAt != nil {
		pub = publishedAt.UTC().Format(time.RFC3339)
	}
	h := sha1.New()
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write([]byte(pub))
	h.Write([]byte{0})
	h.Write([]byte(title))
	return hex.EncodeToString(h.Sum(nil))
}
