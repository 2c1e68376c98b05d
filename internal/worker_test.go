package internal

import (
	"context"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type dispatcherFunc func(ctx context.Context, r PaymentRequest) DispatchOutcome

func (f dispatcherFunc) SendToBestProcessor(ctx context.Context, r PaymentRequest) DispatchOutcome {
	return f(ctx, r)
}

type flushFixture struct {
	queue   *AdmissionQueue
	stats   *StatsAggregator
	metrics *Metrics
	loop    *FlushLoop
}

func newFlushFixture(d Dispatcher, prioritySize int) *flushFixture {
	metrics := NewMetrics()
	dedup := NewDedupCache(DedupConfig{}, clockz.RealClock, zerolog.Nop())
	queue := NewAdmissionQueue(QueueConfig{MainSize: 100, PrioritySize: prioritySize}, dedup, clockz.RealClock, metrics)
	stats := NewStatsAggregator(NewWindow(time.Hour))
	loop := NewFlushLoop(FlushConfig{Interval: time.Millisecond, BatchSize: 10, Workers: 4}, queue, d, stats, metrics, clockz.RealClock, zerolog.Nop())
	return &flushFixture{queue: queue, stats: stats, metrics: metrics, loop: loop}
}

func TestFlushLoop_TickOutcomes(t *testing.T) {
	requestedAt := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	d := dispatcherFunc(func(_ context.Context, r PaymentRequest) DispatchOutcome {
		switch r.CorrelationId {
		case "ok":
			return DispatchOutcome{Kind: OutcomeSuccess, Upstream: Secondary, RequestedAt: requestedAt}
		case "retry":
			return DispatchOutcome{Kind: OutcomeRetryable, Err: ErrProcessorFailed}
		case "panic":
			panic("boom")
		default:
			return DispatchOutcome{Kind: OutcomePermanent, Err: ErrPermanent}
		}
	})
	f := newFlushFixture(d, 10)

	for _, id := range []string{"ok", "retry", "panic", "bad"} {
		require.NoError(t, f.queue.Enqueue(payment(id, "2.50")))
	}

	assert.Equal(t, 4, f.loop.Tick(context.Background()))

	sum := f.stats.Summarize(time.Time{}, time.Time{})
	assert.EqualValues(t, 1, sum["fallback"].TotalRequests)
	assert.Equal(t, "2.50", sum["fallback"].TotalAmount.String())
	assert.Zero(t, sum["default"].TotalRequests)

	main, priority := f.queue.Depths()
	assert.Zero(t, main)
	assert.Equal(t, 2, priority)
	assert.EqualValues(t, 2, f.metrics.Requeued.Load())
	assert.EqualValues(t, 1, f.metrics.Dropped.Load())
	assert.EqualValues(t, 1, f.metrics.Panics.Load())

	windowed := f.stats.Summarize(requestedAt, requestedAt)
	assert.EqualValues(t, 1, windowed["fallback"].TotalRequests)
}

func TestFlushLoop_EmptyTick(t *testing.T) {
	var calls atomic.Int64
	f := newFlushFixture(dispatcherFunc(func(context.Context, PaymentRequest) DispatchOutcome {
		calls.Add(1)
		return DispatchOutcome{}
	}), 10)

	assert.Zero(t, f.loop.Tick(context.Background()))
	assert.Zero(t, calls.Load())
}

func TestFlushLoop_DropsWhenPriorityFull(t *testing.T) {
	f := newFlushFixture(dispatcherFunc(func(context.Context, PaymentRequest) DispatchOutcome {
		return DispatchOutcome{Kind: OutcomeRetryable, Err: ErrProcessorFailed}
	}), 1)

	require.NoError(t, f.queue.Enqueue(payment("a", "1")))
	require.NoError(t, f.queue.Enqueue(payment("b", "1")))
	f.loop.Tick(context.Background())

	assert.EqualValues(t, 1, f.metrics.Requeued.Load())
	assert.EqualValues(t, 1, f.metrics.Dropped.Load())
}

func TestFlushLoop_RunDrainsQueue(t *testing.T) {
	f := newFlushFixture(dispatcherFunc(func(context.Context, PaymentRequest) DispatchOutcome {
		return DispatchOutcome{Kind: OutcomeSuccess, Upstream: Primary, RequestedAt: time.Now()}
	}), 10)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, f.queue.Enqueue(payment(id, "1.00")))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.stats.Snapshot()[Primary].Requests == 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("flush loop did not stop")
	}
}

type relayFixture struct {
	primary   *fakeUpstream
	secondary *fakeUpstream
	tracker   *HealthTracker
	queue     *AdmissionQueue
	stats     *StatsAggregator
	loop      *FlushLoop
}

func newRelayFixture(t *testing.T) *relayFixture {
	primary := newFakeUpstream(t, http.StatusOK)
	secondary := newFakeUpstream(t, http.StatusOK)
	metrics := NewMetrics()
	tracker := newTestTracker(clockz.RealClock)
	dedup := NewDedupCache(DedupConfig{}, clockz.RealClock, zerolog.Nop())
	queue := NewAdmissionQueue(QueueConfig{}, dedup, clockz.RealClock, metrics)
	stats := NewStatsAggregator(NewWindow(time.Hour))
	client := newTestClient(tracker, primary.URL, secondary.URL)
	loop := NewFlushLoop(FlushConfig{}, queue, client, stats, metrics, clockz.RealClock, zerolog.Nop())
	return &relayFixture{primary: primary, secondary: secondary, tracker: tracker, queue: queue, stats: stats, loop: loop}
}

func TestRelay_EndToEndFailover(t *testing.T) {
	f := newRelayFixture(t)

	require.NoError(t, f.queue.Enqueue(payment("a1f2a3b4-0000-4000-8000-000000000001", "19.90")))
	f.loop.Tick(context.Background())

	sum := f.stats.Summarize(time.Time{}, time.Time{})
	assert.EqualValues(t, 1, sum["default"].TotalRequests)
	assert.Equal(t, "19.90", sum["default"].TotalAmount.String())
	assert.Zero(t, sum["fallback"].TotalRequests)
	assert.Equal(t, "0.00", sum["fallback"].TotalAmount.String())

	for i := 0; i < 4; i++ {
		f.tracker.ReportFailure(Primary)
	}
	require.NoError(t, f.queue.Enqueue(payment("a1f2a3b4-0000-4000-8000-000000000002", "10.00")))
	f.loop.Tick(context.Background())

	sum = f.stats.Summarize(time.Time{}, time.Time{})
	assert.EqualValues(t, 1, sum["default"].TotalRequests)
	assert.Equal(t, "19.90", sum["default"].TotalAmount.String())
	assert.EqualValues(t, 1, sum["fallback"].TotalRequests)
	assert.Equal(t, "10.00", sum["fallback"].TotalAmount.String())
	assert.EqualValues(t, 1, f.primary.hits.Load())
	assert.EqualValues(t, 1, f.secondary.hits.Load())
}

func TestRelay_DuplicateAdmission(t *testing.T) {
	f := newRelayFixture(t)

	require.NoError(t, f.queue.Enqueue(payment("a1f2a3b4-0000-4000-8000-000000000003", "19.90")))
	assert.ErrorIs(t, f.queue.Enqueue(payment("a1f2a3b4-0000-4000-8000-000000000003", "19.90")), ErrDuplicate)
	f.loop.Tick(context.Background())
	f.loop.Tick(context.Background())

	sum := f.stats.Summarize(time.Time{}, time.Time{})
	assert.EqualValues(t, 1, sum["default"].TotalRequests+sum["fallback"].TotalRequests)
	assert.EqualValues(t, 1, f.primary.hits.Load())
}

func TestRelay_RequeuedPaymentIsRetried(t *testing.T) {
	f := newRelayFixture(t)
	f.primary.status.Store(http.StatusInternalServerError)
	f.secondary.status.Store(http.StatusInternalServerError)

	require.NoError(t, f.queue.Enqueue(payment("a1f2a3b4-0000-4000-8000-000000000004", "5.00")))
	f.loop.Tick(context.Background())
	_, priority := f.queue.Depths()
	require.Equal(t, 1, priority)

	f.primary.status.Store(http.StatusOK)
	f.tracker.ReportSuccess(Primary)
	f.loop.Tick(context.Background())

	sum := f.stats.Summarize(time.Time{}, time.Time{})
	assert.EqualValues(t, 1, sum["default"].TotalRequests)
	assert.Equal(t, "5.00", sum["default"].TotalAmount.String())
}

func TestFlushLoop_StopCountsUndelivered(t *testing.T) {
	metrics := NewMetrics()
	dedup := NewDedupCache(DedupConfig{}, clockz.RealClock, zerolog.Nop())
	queue := NewAdmissionQueue(QueueConfig{MainSize: 10, PrioritySize: 10}, dedup, clockz.RealClock, metrics)
	stats := NewStatsAggregator(nil)
	loop := NewFlushLoop(FlushConfig{Interval: time.Hour}, queue, dispatcherFunc(func(context.Context, PaymentRequest) DispatchOutcome {
		return DispatchOutcome{Kind: OutcomeSuccess, Upstream: Primary, RequestedAt: time.Now()}
	}), stats, metrics, clockz.RealClock, zerolog.Nop())

	require.NoError(t, queue.Enqueue(payment("a", "1.00")))
	require.NoError(t, queue.Enqueue(payment("b", "1.00")))
	require.True(t, queue.Requeue(payment("c", "1.00")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, loop.Run(ctx))

	assert.EqualValues(t, 3, metrics.Dropped.Load())
	assert.Zero(t, stats.Snapshot()[Primary].Requests)
}
