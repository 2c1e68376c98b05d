package internal

import (
	"context"
	"fmt"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
	"golang.org/x/sync/errgroup"
	"time"
)

const (
	DefaultFlushInterval = 5 * time.Millisecond
	DefaultBatchSize     = 250
	DefaultWorkers       = 32
)

// Dispatcher sends one payment to an upstream.
type Dispatcher interface {
	SendToBestProcessor(ctx context.Context, r PaymentRequest) DispatchOutcome
}

type FlushConfig struct {
	Interval  time.Duration
	BatchSize int
	Workers   int
}

// FlushLoop drains the admission queue on a fixed period and dispatches each
// batch on a bounded set of goroutines. A tick returns only after its whole
// batch has been handled, so ticks never overlap.
type FlushLoop struct {
	config     FlushConfig
	queue      *AdmissionQueue
	dispatcher Dispatcher
	stats      *StatsAggregator
	metrics    *Metrics
	clock      clockz.Clock
	log        zerolog.Logger
	batch      []PaymentRequest
}

func NewFlushLoop(
	config FlushConfig,
	queue *AdmissionQueue,
	dispatcher Dispatcher,
	stats *StatsAggregator,
	metrics *Metrics,
	clock clockz.Clock,
	logger zerolog.Logger,
) *FlushLoop {
	if config.Interval <= 0 {
		config.Interval = DefaultFlushInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	return &FlushLoop{
		config:     config,
		queue:      queue,
		dispatcher: dispatcher,
		stats:      stats,
		metrics:    metrics,
		clock:      clock,
		log:        logger.With().Str("component", "flush").Logger(),
		batch:      make([]PaymentRequest, 0, config.BatchSize),
	}
}

// Run ticks until ctx is cancelled. The tick in progress when ctx is
// cancelled is finished before Run returns; payments still queued at that
// point are counted as dropped and logged.
func (f *FlushLoop) Run(ctx context.Context) error {
	f.log.Info().
		Dur("interval", f.config.Interval).
		Int("batch", f.config.BatchSize).
		Int("workers", f.config.Workers).
		Msg("starting flush loop")

	ticker := f.clock.NewTicker(f.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.abandonQueued()
			f.log.Info().Msg("flush loop stopped")
			return nil
		case <-ticker.C():
			f.Tick(ctx)
		}
	}
}

// Tick drains one batch and dispatches it. It returns the batch size.
func (f *FlushLoop) Tick(ctx context.Context) int {
	f.batch = f.queue.Drain(f.config.BatchSize, f.batch[:0])
	if len(f.batch) == 0 {
		return 0
	}

	var g errgroup.Group
	g.SetLimit(f.config.Workers)
	for _, r := range f.batch {
		g.Go(func() error {
			f.handle(r, f.dispatch(ctx, r))
			return nil
		})
	}
	_ = g.Wait()
	return len(f.batch)
}

func (f *FlushLoop) dispatch(ctx context.Context, r PaymentRequest) (outcome DispatchOutcome) {
	defer func() {
		if p := recover(); p != nil {
			f.metrics.Panics.Add(1)
			outcome = DispatchOutcome{Kind: OutcomeRetryable, Err: fmt.Errorf("dispatch panic: %v", p)}
		}
	}()
	return f.dispatcher.SendToBestProcessor(ctx, r)
}

func (f *FlushLoop) handle(r PaymentRequest, outcome DispatchOutcome) {
	switch outcome.Kind {
	case OutcomeSuccess:
		f.stats.Record(outcome.Upstream, r.Amount, outcome.RequestedAt)
		f.metrics.Dispatched(outcome.Upstream)
	case OutcomeRetryable:
		if f.queue.Requeue(r) {
			f.metrics.Requeued.Add(1)
			return
		}
		f.drop(r, "priority queue full", outcome.Err)
	default:
		f.drop(r, "permanent failure", outcome.Err)
	}
}

func (f *FlushLoop) abandonQueued() {
	main, priority := f.queue.Depths()
	if main+priority == 0 {
		return
	}
	f.metrics.Dropped.Add(int64(main + priority))
	f.log.Error().
		Int("main", main).
		Int("priority", priority).
		Msg("undelivered payments lost on shutdown")
}

func (f *FlushLoop) drop(r PaymentRequest, reason string, err error) {
	f.metrics.Dropped.Add(1)
	f.log.Error().
		Err(err).
		Str("correlationId", r.CorrelationId).
		Stringer("amount", r.Amount).
		Str("reason", reason).
		Msg("payment dropped")
}
