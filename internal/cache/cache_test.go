package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losesky/heatlink/internal/clock"
	"github.com/losesky/heatlink/internal/model"
)

func itemsN(n int) []model.NewsItem {
	out := make([]model.NewsItem, n)
	for i := range out {
		out[i] = model.NewsItem{ID: string(rune('a' + i)), SourceID: "demo", Title: "t"}
	}
	return out
}

func TestLookupColdMiss(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, false)
	items, age, valid := c.Lookup("demo", time.Minute)
	assert.Nil(t, items)
	assert.Equal(t, int64(0), age)
	assert.False(t, valid)
}

func TestUpdateThenLookupRoundTrip(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, false)
	res := c.Update("demo", itemsN(3), true, "", 0.30, time.Minute)
	require.False(t, res.ProtectionApplied)
	require.Len(t, res.Committed, 3)

	items, _, valid := c.Lookup("demo", time.Minute)
	assert.True(t, valid)
	assert.Equal(t, res.Committed, items)
}

func TestCacheTTLExpiry(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, false)
	c.Update("demo", itemsN(2), true, "", 0.30, time.Minute)
	clk.Advance(2 * time.Minute)
	_, age, valid := c.Lookup("demo", time.Minute)
	assert.False(t, valid)
	assert.True(t, age >= int64(2*time.Minute/time.Millisecond))
}

// S4 — failure with warm cache: protection keeps existing items.
func TestProtectionOnFailureWithWarmCache(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, false)
	c.Update("demo", itemsN(10), true, "", 0.30, time.Minute)

	res := c.Update("demo", nil, false, "network error", 0.30, time.Minute)
	assert.True(t, res.ProtectionApplied)
	assert.Equal(t, "error", res.CounterIncremented)
	assert.Len(t, res.Committed, 10)

	entry, ok := c.Status("demo")
	require.True(t, ok)
	assert.Equal(t, int64(1), entry.Protection.ErrorProtectionCount)
}

func TestFailureWithColdCacheCommitsEmpty(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, false)
	res := c.Update("demo", nil, false, "network error", 0.30, time.Minute)
	assert.False(t, res.ProtectionApplied)
	assert.Len(t, res.Committed, 0)

	entry, ok := c.Status("demo")
	require.True(t, ok)
	assert.Equal(t, "network error", entry.LastError)
}

func TestEmptyProtection(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, false)
	c.Update("demo", itemsN(4), true, "", 0.30, time.Minute)

	res := c.Update("demo", nil, true, "", 0.30, time.Minute)
	assert.True(t, res.ProtectionApplied)
	assert.Equal(t, "empty", res.CounterIncremented)
	assert.Len(t, res.Committed, 4)
}

// S3 — shrink protection: cache holds 10, fetch returns 2.
func TestShrinkProtection(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, false)
	c.Update("demo", itemsN(10), true, "", 0.30, time.Minute)

	res := c.Update("demo", itemsN(2), true, "", 0.30, time.Minute)
	assert.True(t, res.ProtectionApplied)
	assert.Equal(t, "shrink", res.CounterIncremented)
	assert.Len(t, res.Committed, 10)
}

// Boundary: cur=5, new=1 -> no shrink protection (threshold requires cur > 5).
func TestShrinkBoundaryCurEqualsFive(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, false)
	c.Update("demo", itemsN(5), true, "", 0.30, time.Minute)

	res := c.Update("demo", itemsN(1), true, "", 0.30, time.Minute)
	assert.False(t, res.ProtectionApplied)
	assert.Len(t, res.Committed, 1)
}

// Boundary: cur=6, new=1 (16.7%) -> shrink protection applies.
func TestShrinkBoundaryCurSixNewOne(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, false)
	c.Update("demo", itemsN(6), true, "", 0.30, time.Minute)

	res := c.Update("demo", itemsN(1), true, "", 0.30, time.Minute)
	assert.True(t, res.ProtectionApplied)
	assert.Equal(t, "shrink", res.CounterIncremented)
}

// Boundary: cur=6, new=2 (33.3%) -> no shrink protection.
func TestShrinkBoundaryCurSixNewTwo(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, false)
	c.Update("demo", itemsN(6), true, "", 0.30, time.Minute)

	res := c.Update("demo", itemsN(2), true, "", 0.30, time.Minute)
	assert.False(t, res.ProtectionApplied)
	assert.Len(t, res.Committed, 2)
}

func TestZeroItemsOnSuccessWithColdCacheNoProtection(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, false)
	res := c.Update("demo", nil, true, "", 0.30, time.Minute)
	assert.False(t, res.ProtectionApplied)
	assert.Len(t, res.Committed, 0)
}

func TestSharedCacheColdStartRead(t *testing.T) {
	clk := clock.NewMock(time.Now())
	sink := NewMemorySink(clk)
	c := New(clk, sink, 500, false)

	other := New(clk, sink, 500, false)
	other.Update("demo", itemsN(3), true, "", 0.30, time.Minute)

	items, _, valid := c.Lookup("demo", time.Minute)
	assert.True(t, valid)
	assert.Len(t, items, 3)
}

func TestClearEvictsEntry(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, false)
	c.Update("demo", itemsN(3), true, "", 0.30, time.Minute)
	c.Clear("demo")
	_, _, valid := c.Lookup("demo", time.Minute)
	assert.False(t, valid)
}

func TestMaxItemsEnforcedOnIngest(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 5, false)
	res := c.Update("demo", itemsN(20), true, "", 0.30, time.Minute)
	assert.Len(t, res.Committed, 5)
}

func TestCodecRoundTrip(t *testing.T) {
	clk := clock.NewMock(time.Now())
	c := New(clk, nil, 500, true)
	now := clk.Now()
	in := []model.NewsItem{
		{ID: "1", SourceID: "demo", SourceName: "Demo", Title: "hello", URL: "https://x", PublishedAt: &now, Tags: []string{"a", "b"}},
	}
	encoded, err := c.encodeItems(in)
	require.NoError(t, err)
	decoded, err := c.decodeItems(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, in[0].ID, decoded[0].ID)
	assert.Equal(t, in[0].Tags, decoded[0].Tags)
	require.NotNil(t, decoded[0].PublishedAt)
}
