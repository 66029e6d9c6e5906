package model

import "strings"

// SourceType enumerates the adapter shapes a SourceDescriptor may select.
type SourceType string

const (
	SourceTypeAPI SourceType = "api"
	SourceTypeWeb SourceType = "web"
	SourceTypeRSS SourceType = "rss"
)

// ProxyPolicy controls whether a source's outbound requests must be routed
// through the Proxy Pool (spec.md §3.2, §4.2).
type ProxyPolicy string

const (
	ProxyPolicyNever      ProxyPolicy = "never"
	ProxyPolicyIfRequired ProxyPolicy = "if-required"
	ProxyPolicyAlways     ProxyPolicy = "always"
)

// SourceDescriptor is the static per-source configuration record (spec.md §3.2).
type SourceDescriptor struct {
	SourceID             string                 `toml:"source_id"`
	Name                 string                 `toml:"name"`
	HomeURL              string                 `toml:"home_url"`
	Type                 SourceType             `toml:"type"`
	Category             string                 `toml:"category"`
	Country              string                 `toml:"country"`
	Language             string                 `toml:"language"`
	Priority             int                    `toml:"priority"`
	Config               map[string]interface{} `toml:"config"`
	UpdateIntervalMS      int64                 `toml:"update_interval_ms"`
	CacheTTLMS            int64                 `toml:"cache_ttl_ms"`
	AdaptiveEnabled       bool                  `toml:"adaptive_enabled"`
	ProxyPolicy           ProxyPolicy           `toml:"proxy_policy"`
	ProxyGroup            string                `toml:"proxy_group"`
	AllowFallbackDirect   bool                  `toml:"allow_fallback_direct"`
	ShrinkThresholdPct    float64               `toml:"shrink_threshold_pct"`
	FetchDeadlineMS       int64                 `toml:"fetch_deadline_ms"`
}

// CanonicalSourceID rewrites an underscore-separated synonym to the
// canonical hyphen form, and lowercases it (spec.md §3.6).
func CanonicalSourceID(id string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(id)), "_", "-")
}

// Validate enforces the SourceDescriptor constraints from spec.md §3.2.
// It returns the first violated constraint, or nil if the descriptor is valid.
func (d *SourceDescriptor) Validate() error {
	if d.UpdateIntervalMS < 60_000 {
		return errInvalidDescriptor("update_interval_ms must be >= 60000")
	}
	if d.CacheTTLMS < 30_000 {
		return errInvalidDescriptor("cache_ttl_ms must be >= 30000")
	}
	if d.CacheTTLMS > d.UpdateIntervalMS*2 {
		return errInvalidDescriptor("cache_ttl_ms must be <= update_interval_ms * 2")
	}
	switch d.Type {
	case SourceTypeAPI, SourceTypeWeb, SourceTypeRSS:
	default:
		return errInvalidDescriptor("type must be one of api|web|rss")
	}
	switch d.ProxyPolicy {
	case ProxyPolicyNever, ProxyPolicyIfRequired, ProxyPolicyAlways, "":
	default:
		return errInvalidDescriptor("proxy_policy must be one of never|if-required|always")
	}
	return nil
}

type descriptorError string

func (e descriptorError) Error() string { return string(e) }

func errInvalidDescriptor(msg string) error { return descriptorError(msg) }

// ShrinkThreshold returns the configured shrink-protection ratio, defaulting
// to 0.30 per spec.md §4.1 when unset.
func (d *SourceDescriptor) ShrinkThreshold() float64 {
	if d.ShrinkThresholdPct <= 0 {
		return 0.30
	}
	return d.ShrinkThresholdPct
}
