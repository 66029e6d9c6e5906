package proxypool

import (
	"context"
	"net/http"
	"time"

	"github.com/losesky/heatlink/internal/util/log"
)

const healthCheckDeadline = 5 * time.Second

// Sweep probes every registered proxy's health_check_url once with a minimal
// GET request bounded by healthCheckDeadline, feeding the result into
// RecordOutcome (spec.md §4.2). Proxies without a health_check_url are
// skipped. Run this on a ticker from the caller (e.g. cmd/heatlinkd).
func (p *Pool) Sweep(ctx context.Context, client *http.Client) {
	p.ReviveDeadProxies()
	for _, cfg := range p.All() {
		if cfg.HealthCheckURL == "" {
			continue
		}
		p.probeOne(ctx, client, cfg)
	}
}

func (p *Pool) probeOne(ctx context.Context, client *http.Client, cfg ProxyConfig) {
	reqCtx, cancel := context.WithTimeout(ctx, healthCheckDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, cfg.HealthCheckURL, nil)
	if err != nil {
		log.Debug("proxy health check request build failed", log.Pairs{"proxyId": cfg.ProxyID, "detail": err.Error()})
		p.RecordOutcome(cfg.ProxyID, false, 0)
		return
	}

	start := p.clock.Now()
	resp, err := client.Do(req)
	elapsed := p.clock.Since(start)
	if err != nil {
		p.RecordOutcome(cfg.ProxyID, false, elapsed)
		return
	}
	defer resp.Body.Close()

	success := resp.StatusCode < 500
	p.RecordOutcome(cfg.ProxyID, success, elapsed)
}
