package stats

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losesky/heatlink/internal/clock"
	"github.com/losesky/heatlink/internal/fetchengine/errorkind"
)

func sampleOutcome(sourceID string, success bool) Outcome {
	return Outcome{
		SourceID:     sourceID,
		StartedAt:    time.Now(),
		DurationMS:   42,
		Success:      success,
		ItemCount:    3,
		CacheUsed:    false,
		ErrorKind:    errorkind.Network,
		ErrorMessage: "boom",
		CallType:     CallTypeExternal,
	}
}

func TestMemorySinkRoundTrips(t *testing.T) {
	sink := NewMemorySink()
	o := sampleOutcome("demo", false)
	sink.AppendStatsOutcome(o)
	sink.UpsertAggregate("demo", CallTypeExternal, Aggregate{TotalRequests: 1, ErrorCount: 1})
	sink.UpsertSourceStatus("demo", SourceStatus{Status: "degraded", ItemCount: 3})

	outcomes := sink.Outcomes("demo")
	require.Len(t, outcomes, 1)
	assert.Equal(t, o.ErrorMessage, outcomes[0].ErrorMessage)

	agg, ok := sink.Aggregate("demo", CallTypeExternal)
	require.True(t, ok)
	assert.Equal(t, int64(1), agg.TotalRequests)

	status, ok := sink.Status("demo")
	require.True(t, ok)
	assert.Equal(t, "degraded", status.Status)
}

func TestBBoltSinkRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/stats.db"
	sink, err := NewBBoltSink(path, "heatlink-stats")
	require.NoError(t, err)
	defer sink.Close()
	defer os.Remove(path)

	o := sampleOutcome("demo", true)
	sink.AppendStatsOutcome(o)
	sink.UpsertAggregate("demo", CallTypeInternal, Aggregate{TotalRequests: 5, SuccessRate: 1})
	sink.UpsertSourceStatus("demo", SourceStatus{Status: "healthy", ItemCount: 10, LastUpdate: o.StartedAt})

	outcomes := sink.Outcomes("demo")
	require.Len(t, outcomes, 1)
	assert.Equal(t, o.DurationMS, outcomes[0].DurationMS)
	assert.Equal(t, errorkind.Network, outcomes[0].ErrorKind)

	agg, ok := sink.Aggregate("demo", CallTypeInternal)
	require.True(t, ok)
	assert.Equal(t, int64(5), agg.TotalRequests)
	assert.Equal(t, 1.0, agg.SuccessRate)

	status, ok := sink.Status("demo")
	require.True(t, ok)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 10, status.ItemCount)
}

func TestCollectorFlushReachesMemorySink(t *testing.T) {
	clk := clock.NewMock(time.Now())
	sink := NewMemorySink()
	c := New(clk, sink, time.Second)

	c.Record(Outcome{SourceID: "demo", DurationMS: 50, Success: true, CallType: CallTypeExternal})
	c.FlushAll()

	agg, ok := sink.Aggregate("demo", CallTypeExternal)
	require.True(t, ok)
	assert.Equal(t, int64(1), agg.TotalRequests)
}
