package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losesky/heatlink/internal/clock"
)

func demoView(id string, priority int) SourceView {
	return SourceView{SourceID: id, Priority: priority, UpdateIntervalMS: 60_000, AdaptiveEnabled: true}
}

func TestNextDueAtAppliesStartupJitter(t *testing.T) {
	clk := clock.NewMock(time.Now())
	s := New(clk, nil, nil, 8)
	v := demoView("demo", 0)

	due := s.NextDueAt(v)
	assert.True(t, due.After(clk.Now()))
	assert.True(t, due.Before(clk.Now().Add(time.Duration(v.UpdateIntervalMS)*time.Millisecond)))
}

func TestRescheduleBaselineSuccessUsesBaseInterval(t *testing.T) {
	clk := clock.NewMock(time.Now())
	s := New(clk, nil, nil, 8)
	v := demoView("demo", 0)
	s.NextDueAt(v) // register

	s.Reschedule(v, Outcome{Success: true, DurationMS: 500, NewItemCount: 10})
	due := s.NextDueAt(v)
	assert.Equal(t, clk.Now().Add(60*time.Second), due)
}

func TestRescheduleAppliesErrorBackoff(t *testing.T) {
	clk := clock.NewMock(time.Now())
	s := New(clk, nil, nil, 8)
	v := demoView("demo", 0)
	s.NextDueAt(v)

	for i := 0; i < 3; i++ {
		s.Reschedule(v, Outcome{Success: false, DurationMS: 500})
	}
	// 3 consecutive failures -> factor_err = 2^3 = 8, base 60s -> 480s, within [60s, 480s] clamp
	due := s.NextDueAt(v)
	assert.Equal(t, clk.Now().Add(480*time.Second), due)
}

func TestRescheduleErrorBackoffCapsAt8xBase(t *testing.T) {
	clk := clock.NewMock(time.Now())
	s := New(clk, nil, nil, 8)
	v := demoView("demo", 0)
	s.NextDueAt(v)

	for i := 0; i < 5; i++ {
		s.Reschedule(v, Outcome{Success: false, DurationMS: 500})
	}
	// factor_err = 2^5 = 32 would give 1920s, clamped to 8x base = 480s
	due := s.NextDueAt(v)
	assert.Equal(t, clk.Now().Add(480*time.Second), due)
}

func TestRescheduleSlowFetchPenalty(t *testing.T) {
	clk := clock.NewMock(time.Now())
	s := New(clk, nil, nil, 8)
	v := demoView("demo", 0)
	s.NextDueAt(v)

	// duration 11000ms -> factor_slow = 1 + clamp((11000-1000)/10000, 0, 2) = 2
	s.Reschedule(v, Outcome{Success: true, DurationMS: 11_000, NewItemCount: 10})
	due := s.NextDueAt(v)
	assert.Equal(t, clk.Now().Add(120*time.Second), due)
}

func TestRescheduleQuietFactorRewardsFreshness(t *testing.T) {
	clk := clock.NewMock(time.Now())
	s := New(clk, nil, nil, 8)
	v := demoView("demo", 0)
	s.NextDueAt(v)

	s.Reschedule(v, Outcome{Success: true, DurationMS: 500, NewItemCount: 0})
	due := s.NextDueAt(v)
	assert.Equal(t, clk.Now().Add(120*time.Second), due) // factor_quiet = 2.0
}

func TestRescheduleClampsToGlobalBounds(t *testing.T) {
	clk := clock.NewMock(time.Now())
	s := New(clk, nil, nil, 8)
	v := demoView("demo", 0)
	v.UpdateIntervalMS = 500_000 // base already close to the 3_600_000 max
	s.NextDueAt(v)

	for i := 0; i < 5; i++ {
		s.Reschedule(v, Outcome{Success: false, DurationMS: 20_000})
	}
	due := s.NextDueAt(v)
	assert.Equal(t, clk.Now().Add(3_600_000*time.Millisecond), due)
}

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []string
	outcome Outcome
}

func (f *fakeDispatcher) DispatchInternal(ctx context.Context, sourceID string) (Outcome, bool) {
	f.mu.Lock()
	f.calls = append(f.calls, sourceID)
	f.mu.Unlock()
	return f.outcome, false
}

func TestTickDispatchesDueSourcesOrderedByPriority(t *testing.T) {
	clk := clock.NewMock(time.Now())
	disp := &fakeDispatcher{outcome: Outcome{Success: true, DurationMS: 100, NewItemCount: 10}}

	views := []SourceView{demoView("low", 1), demoView("high", 10)}
	// concurrency 1 so each dispatch finishes before the next starts and the
	// recorded call order is the priority order
	s := New(clk, disp, func() []SourceView { return views }, 1)
	// force both due now
	for _, v := range views {
		s.stateFor(v.SourceID, v.UpdateIntervalMS).nextDueAt = clk.Now()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.tick(ctx, s.newSemaphore())

	require.Len(t, disp.calls, 2)
	assert.Equal(t, "high", disp.calls[0])
	assert.Equal(t, "low", disp.calls[1])
}

func TestTickSkipsInFlightSourceWithoutPenalty(t *testing.T) {
	clk := clock.NewMock(time.Now())
	disp := &fakeDispatcher{outcome: Outcome{Success: true, DurationMS: 100, NewItemCount: 10}}
	v := demoView("demo", 0)
	views := []SourceView{v}
	s := New(clk, disp, func() []SourceView { return views }, 8)

	st := s.stateFor(v.SourceID, v.UpdateIntervalMS)
	st.nextDueAt = clk.Now()
	st.inFlight = true

	ctx := context.Background()
	s.tick(ctx, s.newSemaphore())

	assert.Empty(t, disp.calls)
}
