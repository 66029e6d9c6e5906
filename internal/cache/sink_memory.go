package cache

import (
	"sync"
	"time"

	"github.com/losesky/heatlink/internal/clock"
)

type memoryRecord struct {
	value   []byte
	expires time.Time
}

// MemorySink is an in-process Sink, useful for tests and single-process
// deployments that still want the shared-cache code path exercised.
type MemorySink struct {
	clock clock.Clock
	mu    sync.Mutex
	data  map[string]memoryRecord
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink(clk clock.Clock) *MemorySink {
	return &MemorySink{clock: clk, data: make(map[string]memoryRecord)}
}

// Get implements Sink.
func (m *MemorySink) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[key]
	if !ok {
		return nil, false
	}
	if m.clock.Now().After(rec.expires) {
		delete(m.data, key)
		return nil, false
	}
	return append([]byte(nil), rec.value...), true
}

// Set implements Sink.
func (m *MemorySink) Set(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memoryRecord{value: append([]byte(nil), value...), expires: m.clock.Now().Add(ttl)}
}

// Del implements Sink.
func (m *MemorySink) Del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}
