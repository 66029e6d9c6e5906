package controlplane

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losesky/heatlink/internal/adapter"
	"github.com/losesky/heatlink/internal/cache"
	"github.com/losesky/heatlink/internal/clock"
	"github.com/losesky/heatlink/internal/fetchengine"
	"github.com/losesky/heatlink/internal/httpclient"
	"github.com/losesky/heatlink/internal/model"
	"github.com/losesky/heatlink/internal/proxypool"
	"github.com/losesky/heatlink/internal/stats"
)

type stubAdapter struct {
	desc  model.SourceDescriptor
	items []model.NewsItem
}

func (a *stubAdapter) Metadata() model.SourceDescriptor { return a.desc }
func (a *stubAdapter) Fetch(ctx context.Context, client *http.Client) ([]model.NewsItem, error) {
	return a.items, nil
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

func build(t *testing.T) (*ControlPlane, *adapter.Registry, *proxypool.Pool) {
	t.Helper()
	reg := adapter.NewRegistry()
	factory := adapter.NewTypeFactory(map[model.SourceType]adapter.Constructor{
		model.SourceTypeAPI: func(d model.SourceDescriptor) (adapter.Adapter, error) {
			return &stubAdapter{desc: d, items: []model.NewsItem{{Title: "t", URL: "https://x/1"}}}, nil
		},
	})

	clk := clock.NewMock(time.Now())
	c := cache.New(clk, nil, 500, false)
	st := stats.New(clk, nil, 0)
	proxies := proxypool.New(clk, nil)

	eng := fetchengine.New(fetchengine.Config{
		Clock:         clk,
		Registry:      reg,
		Cache:         c,
		Proxies:       proxies,
		ClientOptions: httpclient.DefaultOptions(),
		Stats:         st,
	})

	cp := New(reg, factory, eng, proxies, st)
	return cp, reg, proxies
}

func TestRegisterAndListSources(t *testing.T) {
	cp, _, _ := build(t)
	require.NoError(t, cp.RegisterSource(demoDesc("demo")))
	sources := cp.ListSources()
	require.Len(t, sources, 1)
	assert.Equal(t, "demo", sources[0].SourceID)
}

func TestSourceDetailUnknownErrors(t *testing.T) {
	cp, _, _ := build(t)
	_, err := cp.SourceDetail("nope")
	require.Error(t, err)
}

func TestSourceDetailReflectsFetchOutcome(t *testing.T) {
	cp, _, _ := build(t)
	require.NoError(t, cp.RegisterSource(demoDesc("demo")))

	_, _, err := cp.TriggerRefresh(context.Background(), "demo")
	require.NoError(t, err)

	detail, err := cp.SourceDetail("demo")
	require.NoError(t, err)
	assert.Equal(t, "healthy", detail.Status)
	assert.Equal(t, 1, detail.ItemCount)
	assert.False(t, detail.InFlight)
}

func TestDeregisterSourceRemovesIt(t *testing.T) {
	cp, _, _ := build(t)
	require.NoError(t, cp.RegisterSource(demoDesc("demo")))
	cp.DeregisterSource("demo")
	assert.Empty(t, cp.ListSources())
}

func TestUpdateSourceConfigTakesEffect(t *testing.T) {
	cp, _, _ := build(t)
	require.NoError(t, cp.RegisterSource(demoDesc("demo")))

	updated := demoDesc("demo")
	updated.Priority = 7
	require.NoError(t, cp.UpdateSourceConfig(updated))

	detail, err := cp.SourceDetail("demo")
	require.NoError(t, err)
	assert.Equal(t, 7, detail.Descriptor.Priority)
}

func TestUpdateProxyListReplacesSet(t *testing.T) {
	cp, _, proxies := build(t)
	proxies.Add(proxypool.ProxyConfig{ProxyID: "p1"})

	cp.UpdateProxyList([]proxypool.ProxyConfig{{ProxyID: "p2"}})

	list := cp.ListProxies()
	require.Len(t, list, 1)
	assert.Equal(t, "p2", list[0].ProxyID)

	_, err := cp.ProxyStats("p1")
	assert.Error(t, err)
}

func TestTriggerRefreshForcesLiveFetch(t *testing.T) {
	cp, _, _ := build(t)
	require.NoError(t, cp.RegisterSource(demoDesc("demo")))

	items, meta, err := cp.TriggerRefresh(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, meta.CacheHit)
}
