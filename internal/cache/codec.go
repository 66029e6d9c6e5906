package cache

import (
	"time"

	"github.com/golang/snappy"
	"github.com/tinylib/msgp/msgp"

	"github.com/losesky/heatlink/internal/model"
)

// encodeItems serializes a NewsItem slice with msgp's append-style runtime
// helpers (the same low-level primitives generated MarshalMsg methods call),
// optionally snappy-compressing the result, mirroring
// internal/proxy/engines/cache.go's WriteCache in the teacher repo.
func (c *Cache) encodeItems(items []model.NewsItem) ([]byte, error) {
	b := msgp.AppendArrayHeader(nil, uint32(len(items)))
	for _, it := range items {
		b = appendNewsItem(b, it)
	}
	if c.compress {
		b = snappy.Encode(nil, b)
	}
	return b, nil
}

func (c *Cache) decodeItems(raw []byte) ([]model.NewsItem, error) {
	b := raw
	if c.compress {
		d, err := snappy.Decode(nil, raw)
		if err == nil {
			b = d
		}
	}
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	items := make([]model.NewsItem, 0, sz)
	for i := uint32(0); i < sz; i++ {
		var it model.NewsItem
		it, b, err = readNewsItem(b)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func appendNewsItem(b []byte, it model.NewsItem) []byte {
	b = msgp.AppendMapHeader(b, 16)
	b = msgp.AppendString(b, "id")
	b = msgp.AppendString(b, it.ID)
	b = msgp.AppendString(b, "source_id")
	b = msgp.AppendString(b, it.SourceID)
	b = msgp.AppendString(b, "source_name")
	b = msgp.AppendString(b, it.SourceName)
	b = msgp.AppendString(b, "title")
	b = msgp.AppendString(b, it.Title)
	b = msgp.AppendString(b, "url")
	b = msgp.AppendString(b, it.URL)
	b = msgp.AppendString(b, "original_id")
	b = msgp.AppendString(b, it.OriginalID)
	b = msgp.AppendString(b, "summary")
	b = msgp.AppendString(b, it.Summary)
	b = msgp.AppendString(b, "content")
	b = msgp.AppendString(b, it.Content)
	b = msgp.AppendString(b, "author")
	b = msgp.AppendString(b, it.Author)
	b = msgp.AppendString(b, "image_url")
	b = msgp.AppendString(b, it.ImageURL)
	b = msgp.AppendString(b, "language")
	b = msgp.AppendString(b, it.Language)
	b = msgp.AppendString(b, "country")
	b = msgp.AppendString(b, it.Country)
	b = msgp.AppendString(b, "category")
	b = msgp.AppendString(b, it.Category)

	b = msgp.AppendString(b, "published_at")
	b = appendOptionalTime(b, it.PublishedAt)

	b = msgp.AppendString(b, "updated_at")
	b = appendOptionalTime(b, it.UpdatedAt)

	b = msgp.AppendString(b, "tags")
	b = msgp.AppendArrayHeader(b, uint32(len(it.Tags)))
	for _, t := range it.Tags {
		b = msgp.AppendString(b, t)
	}

	return b
}

func appendOptionalTime(b []byte, t *time.Time) []byte {
	if t == nil {
		return msgp.AppendNil(b)
	}
	return msgp.AppendTime(b, *t)
}

func readNewsItem(b []byte) (model.NewsItem, []byte, error) {
	var it model.NewsItem
	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return it, b, err
	}
	for i := uint32(0); i < sz; i++ {
		var key string
		key, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return it, b, err
		}
		switch key {
		case "id":
			it.ID, b, err = msgp.ReadStringBytes(b)
		case "source_id":
			it.SourceID, b, err = msgp.ReadStringBytes(b)
		case "source_name":
			it.SourceName, b, err = msgp.ReadStringBytes(b)
		case "title":
			it.Title, b, err = msgp.ReadStringBytes(b)
		case "url":
			it.URL, b, err = msgp.ReadStringBytes(b)
		case "original_id":
			it.OriginalID, b, err = msgp.ReadStringBytes(b)
		case "summary":
			it.Summary, b, err = msgp.ReadStringBytes(b)
		case "content":
			it.Content, b, err = msgp.ReadStringBytes(b)
		case "author":
			it.Author, b, err = msgp.ReadStringBytes(b)
		case "image_url":
			it.ImageURL, b, err = msgp.ReadStringBytes(b)
		case "language":
			it.Language, b, err = msgp.ReadStringBytes(b)
		case "country":
			it.Country, b, err = msgp.ReadStringBytes(b)
		case "category":
			it.Category, b, err = msgp.ReadStringBytes(b)
		case "published_at":
			it.PublishedAt, b, err = readOptionalTime(b)
		case "updated_at":
			it.UpdatedAt, b, err = readOptionalTime(b)
		case "tags":
			it.Tags, b, err = readStringSlice(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return it, b, err
		}
	}
	return it, b, nil
}

func readOptionalTime(b []byte) (*time.Time, []byte, error) {
	if msgp.IsNil(b) {
		return nil, b[1:], nil
	}
	t, b, err := msgp.ReadTimeBytes(b)
	if err != nil {
		return nil, b, err
	}
	return &t, b, nil
}

func readStringSlice(b []byte) ([]string, []byte, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	out := make([]string, 0, sz)
	for i := uint32(0); i < sz; i++ {
		var s string
		s, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return nil, b, err
		}
		out = append(out, s)
	}
	return out, b, nil
}
