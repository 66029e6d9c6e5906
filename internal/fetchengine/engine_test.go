package fetchengine

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losesky/heatlink/internal/adapter"
	"github.com/losesky/heatlink/internal/cache"
	"github.com/losesky/heatlink/internal/clock"
	"github.com/losesky/heatlink/internal/fetchengine/errorkind"
	"github.com/losesky/heatlink/internal/httpclient"
	"github.com/losesky/heatlink/internal/model"
	"github.com/losesky/heatlink/internal/proxypool"
	"github.com/losesky/heatlink/internal/stats"
)

type countingAdapter struct {
	desc     model.SourceDescriptor
	calls    int32
	block    chan struct{}
	items    []model.NewsItem
	err      error
	fetchFn  func() ([]model.NewsItem, error)
}

func (a *countingAdapter) Metadata() model.SourceDescriptor { return a.desc }
func (a *countingAdapter) Fetch(ctx context.Context, client *http.Client) ([]model.NewsItem, error) {
	atomic.AddInt32(&a.calls, 1)
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.fetchFn != nil {
		return a.fetchFn()
	}
	return a.items, a.err
}

func buildEngine(t *testing.T, desc model.SourceDescriptor, a adapter.Adapter) (*Engine, *countingAdapter) {
	t.Helper()
	reg := adapter.NewRegistry()
	err := reg.Register(desc, func(d model.SourceDescriptor) (adapter.Adapter, error) { return a, nil })
	require.NoError(t, err)

	clk := clock.NewMock(time.Now())
	c := cache.New(clk, nil, 500, false)
	st := stats.New(clk, nil, 0)

	eng := New(Config{
		Clock:         clk,
		Registry:      reg,
		Cache:         c,
		Proxies:       nil,
		ClientOptions: httpclient.DefaultOptions(),
		Stats:         st,
		Emitter:       LoggingEmitter{},
	})
	ca, _ := a.(*countingAdapter)
	return eng, ca
}

func demoDesc(id string) model.SourceDescriptor {
	return model.SourceDescriptor{
		SourceID:         id,
		Name:             "Demo",
		Type:             model.SourceTypeAPI,
		UpdateIntervalMS: 60_000,
		CacheTTLMS:       30_000,
	}
}

func TestGetNewsUnknownSourceFails(t *testing.T) {
	eng, _ := buildEngine(t, demoDesc("demo"), &countingAdapter{})
	_, _, err := eng.GetNews(context.Background(), "other", Options{})
	require.Error(t, err)
	var fe *errorkind.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errorkind.UnknownSource, fe.Kind)
}

func TestGetNewsLiveFetchCommitsAndReturnsItems(t *testing.T) {
	items := []model.NewsItem{{Title: "t", URL: "https://x/1"}}
	stub := &countingAdapter{desc: demoDesc("demo"), items: items}
	eng, _ := buildEngine(t, demoDesc("demo"), stub)

	out, meta, err := eng.GetNews(context.Background(), "demo", Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, meta.ProtectionApplied)
	assert.NotEmpty(t, out[0].ID)
	assert.Equal(t, "demo", out[0].SourceID)
}

func TestGetNewsCacheHitSkipsFetch(t *testing.T) {
	items := []model.NewsItem{{Title: "t", URL: "https://x/1"}}
	stub := &countingAdapter{desc: demoDesc("demo"), items: items}
	eng, _ := buildEngine(t, demoDesc("demo"), stub)

	_, _, err := eng.GetNews(context.Background(), "demo", Options{})
	require.NoError(t, err)

	_, meta, err := eng.GetNews(context.Background(), "demo", Options{})
	require.NoError(t, err)
	assert.True(t, meta.CacheHit)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.calls))
}

func TestGetNewsForceRefreshBypassesCache(t *testing.T) {
	items := []model.NewsItem{{Title: "t", URL: "https://x/1"}}
	stub := &countingAdapter{desc: demoDesc("demo"), items: items}
	eng, _ := buildEngine(t, demoDesc("demo"), stub)

	_, _, err := eng.GetNews(context.Background(), "demo", Options{})
	require.NoError(t, err)
	_, _, err = eng.GetNews(context.Background(), "demo", Options{ForceRefresh: true})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&stub.calls))
}

// S1/S2-style: concurrent GetNews calls for the same source coalesce into
// one leader fetch.
func TestGetNewsCoalescesConcurrentCalls(t *testing.T) {
	block := make(chan struct{})
	stub := &countingAdapter{desc: demoDesc("demo"), block: block, items: []model.NewsItem{{Title: "t", URL: "https://x/1"}}}
	eng, _ := buildEngine(t, demoDesc("demo"), stub)

	var wg sync.WaitGroup
	results := make([][]model.NewsItem, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			items, _, err := eng.GetNews(context.Background(), "demo", Options{ForceRefresh: true})
			if err == nil {
				results[idx] = items
			}
		}(i)
	}

	// give goroutines a chance to all reach the leader/follower split
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.calls))
	for _, r := range results {
		assert.Len(t, r, 1)
	}
}

func TestGetNewsProtectionAppliedOnFailureWithWarmCache(t *testing.T) {
	stub := &countingAdapter{desc: demoDesc("demo"), items: []model.NewsItem{{Title: "t", URL: "https://x/1"}}}
	eng, _ := buildEngine(t, demoDesc("demo"), stub)
	_, _, err := eng.GetNews(context.Background(), "demo", Options{})
	require.NoError(t, err)

	stub.err = assertErr{}
	stub.items = nil
	items, meta, err := eng.GetNews(context.Background(), "demo", Options{ForceRefresh: true})
	require.NoError(t, err)
	assert.True(t, meta.ProtectionApplied)
	// a live fetch ran, so this is not a cache hit, even though protection
	// kept the previously-cached items (spec.md §4.7/§7, S4).
	assert.False(t, meta.CacheHit)
	assert.Equal(t, errorkind.Network, meta.ErrorKind)
	require.Len(t, items, 1)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestGetNewsColdCacheFailurePropagatesError(t *testing.T) {
	stub := &countingAdapter{desc: demoDesc("demo"), err: assertErr{}}
	eng, _ := buildEngine(t, demoDesc("demo"), stub)

	_, _, err := eng.GetNews(context.Background(), "demo", Options{})
	require.Error(t, err)
	var fe *errorkind.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errorkind.Network, fe.Kind)
}

func TestFetchSourceReturnsOutcomeForScheduler(t *testing.T) {
	stub := &countingAdapter{desc: demoDesc("demo"), items: []model.NewsItem{{Title: "t", URL: "https://x/1"}}}
	eng, _ := buildEngine(t, demoDesc("demo"), stub)

	outcome, err := eng.FetchSource(context.Background(), "demo", stats.CallTypeInternal)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 1, outcome.ItemCount)
	assert.Equal(t, stats.CallTypeInternal, outcome.CallType)
}

// S6: a proxy-routed failure gets one retry via the next proxy in the
// ordered pool, and the failed proxy is left degraded for future selections.
func TestRunFetchRetriesViaNextProxyOnFailure(t *testing.T) {
	calls := int32(0)
	stub := &countingAdapter{
		desc: demoDesc("demo"),
		fetchFn: func() ([]model.NewsItem, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, assertErr{}
			}
			return []model.NewsItem{{Title: "t", URL: "https://x/1"}}, nil
		},
	}
	desc := demoDesc("demo")
	desc.HomeURL = "https://example.com/feed"
	desc.ProxyPolicy = model.ProxyPolicyAlways

	reg := adapter.NewRegistry()
	require.NoError(t, reg.Register(desc, func(d model.SourceDescriptor) (adapter.Adapter, error) { return stub, nil }))

	clk := clock.NewMock(time.Now())
	pool := proxypool.New(clk, nil)
	pool.Add(proxypool.ProxyConfig{ProxyID: "p1", Protocol: "http", Host: "proxy1", Priority: 10, Status: proxypool.StatusHealthy})
	pool.Add(proxypool.ProxyConfig{ProxyID: "p2", Protocol: "http", Host: "proxy2", Priority: 5, Status: proxypool.StatusHealthy})

	c := cache.New(clk, nil, 500, false)
	eng := New(Config{
		Clock:         clk,
		Registry:      reg,
		Cache:         c,
		Proxies:       pool,
		ClientOptions: httpclient.DefaultOptions(),
		Stats:         stats.New(clk, nil, 0),
		Emitter:       LoggingEmitter{},
	})

	outcome, err := eng.FetchSource(context.Background(), "demo", stats.CallTypeInternal)
	require.NoError(t, err)
	assert.True(t, outcome.Success, "the retry via p2 should have succeeded")
	assert.Equal(t, 1, outcome.ItemCount)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "exactly one retry")

	p1, ok := pool.Get("p1")
	require.True(t, ok)
	assert.Equal(t, proxypool.StatusDegraded, p1.Status)
	assert.Equal(t, 1, p1.ConsecutiveFailures)

	p2, ok := pool.Get("p2")
	require.True(t, ok)
	assert.Equal(t, proxypool.StatusHealthy, p2.Status)
}

func TestDispatchInternalSkipsWhenInFlight(t *testing.T) {
	block := make(chan struct{})
	stub := &countingAdapter{desc: demoDesc("demo"), block: block, items: []model.NewsItem{{Title: "t", URL: "https://x/1"}}}
	eng, _ := buildEngine(t, demoDesc("demo"), stub)

	go eng.FetchSource(context.Background(), "demo", stats.CallTypeInternal)
	time.Sleep(20 * time.Millisecond)

	_, skipped := eng.DispatchInternal(context.Background(), "demo")
	assert.True(t, skipped)

	close(block)
}
