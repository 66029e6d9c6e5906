package cache

import "time"

// Sink is the optional shared cache tier (spec.md §6.2): a cross-process
// key→bytes store with TTL. It is never the source of truth for protection
// decisions — only the in-memory Cache is.
type Sink interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Del(key string)
}
