package stats

import "sync"

// MemorySink is an in-process Sink, the default for single-process
// deployments and tests that want FlushAll's effects inspectable without
// standing up bbolt (mirrors internal/cache.MemorySink's role for the item
// cache tier).
type MemorySink struct {
	mu         sync.Mutex
	outcomes   map[string][]Outcome
	aggregates map[string]Aggregate
	statuses   map[string]SourceStatus
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		outcomes:   make(map[string][]Outcome),
		aggregates: make(map[string]Aggregate),
		statuses:   make(map[string]SourceStatus),
	}
}

// AppendStatsOutcome implements Sink.
func (s *MemorySink) AppendStatsOutcome(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[o.SourceID] = append(s.outcomes[o.SourceID], o)
}

// UpsertAggregate implements Sink.
func (s *MemorySink) UpsertAggregate(sourceID string, callType CallType, snapshot Aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregates[aggregateKey(sourceID, callType)] = snapshot
}

// UpsertSourceStatus implements Sink.
func (s *MemorySink) UpsertSourceStatus(sourceID string, status SourceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[sourceID] = status
}

// Outcomes returns the retained outcomes for one source, oldest first.
func (s *MemorySink) Outcomes(sourceID string) []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Outcome, len(s.outcomes[sourceID]))
	copy(out, s.outcomes[sourceID])
	return out
}

// Aggregate returns the last flushed aggregate for (sourceID, callType).
func (s *MemorySink) Aggregate(sourceID string, callType CallType) (Aggregate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.aggregates[aggregateKey(sourceID, callType)]
	return a, ok
}

// Status returns the last upserted SourceStatus for sourceID.
func (s *MemorySink) Status(sourceID string) (SourceStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[sourceID]
	return st, ok
}
