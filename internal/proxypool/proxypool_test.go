package proxypool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losesky/heatlink/internal/clock"
	"github.com/losesky/heatlink/internal/model"
)

func TestRequiresProxyAlwaysNeverOverride(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, []string{"example.com"})
	assert.True(t, p.RequiresProxy(model.ProxyPolicyAlways, "https://other.org/x"))
	assert.False(t, p.RequiresProxy(model.ProxyPolicyNever, "https://example.com/x"))
}

func TestRequiresProxyIfRequiredMatchesDomainSuffix(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, []string{"example.com"})
	assert.True(t, p.RequiresProxy(model.ProxyPolicyIfRequired, "https://news.example.com/a"))
	assert.True(t, p.RequiresProxy(model.ProxyPolicyIfRequired, "https://example.com/a"))
	assert.False(t, p.RequiresProxy(model.ProxyPolicyIfRequired, "https://unrelated.net/a"))
}

func TestOrderingInvariant(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, nil)
	p.Add(ProxyConfig{ProxyID: "dead-1", Status: StatusDead, Priority: 10})
	p.Add(ProxyConfig{ProxyID: "unknown-1", Status: StatusUnknown, Priority: 10})
	p.Add(ProxyConfig{ProxyID: "degraded-1", Status: StatusDegraded, Priority: 10})
	p.Add(ProxyConfig{ProxyID: "healthy-low-prio", Status: StatusHealthy, Priority: 1})
	p.Add(ProxyConfig{ProxyID: "healthy-high-prio", Status: StatusHealthy, Priority: 5})

	ordered := p.ordered("")
	require.Len(t, ordered, 5)
	assert.Equal(t, "healthy-high-prio", ordered[0].ProxyID)
	assert.Equal(t, "healthy-low-prio", ordered[1].ProxyID)
	assert.Equal(t, "degraded-1", ordered[2].ProxyID)
	assert.Equal(t, "unknown-1", ordered[3].ProxyID)
	assert.Equal(t, "dead-1", ordered[4].ProxyID)
}

func TestOrderingTiesBrokenByLatencyThenID(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, nil)
	p.Add(ProxyConfig{ProxyID: "b", Status: StatusHealthy, Priority: 1, LatencyMSEWMA: 50})
	p.Add(ProxyConfig{ProxyID: "a", Status: StatusHealthy, Priority: 1, LatencyMSEWMA: 50})
	p.Add(ProxyConfig{ProxyID: "fast", Status: StatusHealthy, Priority: 1, LatencyMSEWMA: 10})

	ordered := p.ordered("")
	require.Len(t, ordered, 3)
	assert.Equal(t, "fast", ordered[0].ProxyID)
	assert.Equal(t, "a", ordered[1].ProxyID)
	assert.Equal(t, "b", ordered[2].ProxyID)
}

func TestSelectSkipsDeadAndReturnsBest(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, nil)
	p.Add(ProxyConfig{ProxyID: "dead-1", Status: StatusDead, Priority: 10})
	p.Add(ProxyConfig{ProxyID: "healthy-1", Status: StatusHealthy, Priority: 1})

	proxy, direct, err := p.Select("", false)
	require.NoError(t, err)
	require.False(t, direct)
	require.NotNil(t, proxy)
	assert.Equal(t, "healthy-1", proxy.ProxyID)
}

func TestSelectAllDeadFallsBackDirectWhenAllowed(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, nil)
	p.Add(ProxyConfig{ProxyID: "dead-1", Status: StatusDead})

	proxy, direct, err := p.Select("", true)
	require.NoError(t, err)
	assert.True(t, direct)
	assert.Nil(t, proxy)
}

// S6 — proxy failover: when the best proxy is unavailable without fallback,
// Select reports proxy_unavailable.
func TestSelectAllDeadNoFallbackErrors(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, nil)
	p.Add(ProxyConfig{ProxyID: "dead-1", Status: StatusDead})

	proxy, direct, err := p.Select("", false)
	assert.ErrorIs(t, err, ErrProxyUnavailable)
	assert.False(t, direct)
	assert.Nil(t, proxy)
}

func TestRecordOutcomeSuccessPromotesToHealthyAndTracksEWMA(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, nil)
	p.Add(ProxyConfig{ProxyID: "p1", Status: StatusUnknown})

	p.RecordOutcome("p1", true, 100*time.Millisecond)
	cfg, ok := p.Get("p1")
	require.True(t, ok)
	assert.Equal(t, StatusHealthy, cfg.Status)
	assert.Equal(t, float64(100), cfg.LatencyMSEWMA)

	p.RecordOutcome("p1", true, 200*time.Millisecond)
	cfg, _ = p.Get("p1")
	assert.InDelta(t, 125.0, cfg.LatencyMSEWMA, 0.001)
}

func TestRecordOutcomeFailureThresholds(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, nil)
	p.Add(ProxyConfig{ProxyID: "p1", Status: StatusHealthy})

	p.RecordOutcome("p1", false, 0)
	cfg, _ := p.Get("p1")
	assert.Equal(t, StatusDegraded, cfg.Status)
	assert.Equal(t, 1, cfg.ConsecutiveFailures)

	for i := 0; i < 4; i++ {
		p.RecordOutcome("p1", false, 0)
	}
	cfg, _ = p.Get("p1")
	assert.Equal(t, StatusDead, cfg.Status)
	assert.Equal(t, 5, cfg.ConsecutiveFailures)
}

func TestRecordOutcomeSuccessResetsFailureCount(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, nil)
	p.Add(ProxyConfig{ProxyID: "p1", Status: StatusHealthy})
	p.RecordOutcome("p1", false, 0)
	p.RecordOutcome("p1", true, 10*time.Millisecond)

	cfg, _ := p.Get("p1")
	assert.Equal(t, 0, cfg.ConsecutiveFailures)
	assert.Equal(t, StatusHealthy, cfg.Status)
}

func TestReviveDeadProxiesAfterCooldown(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, nil)
	p.Add(ProxyConfig{ProxyID: "p1", Status: StatusHealthy})
	for i := 0; i < 5; i++ {
		p.RecordOutcome("p1", false, 0)
	}
	cfg, _ := p.Get("p1")
	require.Equal(t, StatusDead, cfg.Status)

	p.ReviveDeadProxies()
	cfg, _ = p.Get("p1")
	assert.Equal(t, StatusDead, cfg.Status, "should not revive before cooldown elapses")

	clk.Advance(11 * time.Minute)
	p.ReviveDeadProxies()
	cfg, _ = p.Get("p1")
	assert.Equal(t, StatusUnknown, cfg.Status)
}

func TestURLBuildsProxyTarget(t *testing.T) {
	cfg := ProxyConfig{Protocol: "socks5", Host: "proxy.internal", Port: 1080, Username: "u", Password: "pw"}
	u := cfg.URL()
	assert.Equal(t, "socks5", u.Scheme)
	assert.Equal(t, "proxy.internal:1080", u.Host)
	assert.Equal(t, "u", u.User.Username())
}

func TestRemoveDropsProxy(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, nil)
	p.Add(ProxyConfig{ProxyID: "p1"})
	p.Remove("p1")
	_, ok := p.Get("p1")
	assert.False(t, ok)
}

func TestReplacePreservesHealthStateForSurvivingProxies(t *testing.T) {
	clk := clock.NewMock(time.Now())
	p := New(clk, nil)
	p.Add(ProxyConfig{ProxyID: "p1", Priority: 1})
	p.RecordOutcome("p1", true, 150*time.Millisecond)

	p.Replace([]ProxyConfig{
		{ProxyID: "p1", Priority: 9},
		{ProxyID: "p2", Priority: 2},
	})

	all := p.All()
	require.Len(t, all, 2)
	p1, ok := p.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 9, p1.Priority, "new config fields should win")
	assert.Equal(t, StatusHealthy, p1.Status, "health state should survive the replace")
	assert.InDelta(t, 150.0, p1.LatencyMSEWMA, 0.001)

	p2, ok := p.Get("p2")
	require.True(t, ok)
	assert.Equal(t, StatusUnknown, p2.Status, "a brand new proxy starts unknown")
}
