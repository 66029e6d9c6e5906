package jsonadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losesky/heatlink/internal/model"
)

func TestFetchExtractsItemsFromNestedPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"items":[
			{"headline":"first","link":"https://x/1","published":"2024-01-02T03:04:05Z","tags":["a","b"]},
			{"headline":"","link":"https://x/2"}
		]}}`))
	}))
	defer srv.Close()

	cfg := Config{
		RequestURL: srv.URL,
		ItemsPath:  "data.items",
		Fields: FieldMap{
			Title:       "headline",
			URL:         "link",
			PublishedAt: "published",
			Tags:        "tags",
		},
	}
	a, err := New(model.SourceDescriptor{SourceID: "demo"}, cfg)
	require.NoError(t, err)

	items, err := a.Fetch(context.Background(), srv.Client())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "first", items[0].Title)
	assert.Equal(t, "https://x/1", items[0].URL)
	require.NotNil(t, items[0].PublishedAt)
	assert.Equal(t, []string{"a", "b"}, items[0].Tags)
}

func TestNewRejectsMissingRequiredFields(t *testing.T) {
	_, err := New(model.SourceDescriptor{SourceID: "demo"}, Config{})
	assert.Error(t, err)
}

func TestFetchRejectsNonArrayItemsPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"items":"not-an-array"}}`))
	}))
	defer srv.Close()

	cfg := Config{RequestURL: srv.URL, ItemsPath: "data.items", Fields: FieldMap{Title: "t", URL: "u"}}
	a, err := New(model.SourceDescriptor{SourceID: "demo"}, cfg)
	require.NoError(t, err)

	_, err = a.Fetch(context.Background(), srv.Client())
	assert.Error(t, err)
}
