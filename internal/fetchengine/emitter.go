package fetchengine

import (
	"github.com/losesky/heatlink/internal/model"
	"github.com/losesky/heatlink/internal/stats"
	"github.com/losesky/heatlink/internal/util/log"
)

// Emitter is the downstream-storage boundary (spec.md §6.4). The engine
// does not wait for durability beyond EmitTimeout; Emit failures are
// logged but never roll back the cache update.
type Emitter interface {
	Emit(sourceID string, items []model.NewsItem, callType stats.CallType) error
}

// LoggingEmitter is a minimal reference Emitter: it logs what would have
// been persisted. Real deployments supply their own (a message queue, a
// relational store, a search index) — this exists so the engine is
// usable standalone and so tests have a default.
type LoggingEmitter struct{}

// Emit implements Emitter.
func (LoggingEmitter) Emit(sourceID string, items []model.NewsItem, callType stats.CallType) error {
	log.Info("emitting items", log.Pairs{"sourceId": sourceID, "count": len(items), "callType": string(callType)})
	return nil
}
