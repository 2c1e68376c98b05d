package internal

import (
	"context"
	"fmt"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
	"golang.org/x/sync/errgroup"
	"time"
)

// Relay owns every component of the payment pipeline. It is built once per
// process and handed to the HTTP layer.
type Relay struct {
	config       Config
	tracker      *HealthTracker
	dedup        *DedupCache
	queue        *AdmissionQueue
	client       *DispatchClient
	stats        *StatsAggregator
	flush        *FlushLoop
	checkpointer *Checkpointer
	poller       *HealthPoller
	metrics      *Metrics
	log          zerolog.Logger
}

// NewRelay builds the pipeline and seeds the running totals from store.
func NewRelay(ctx context.Context, cfg Config, store CounterStore, clock clockz.Clock, logger zerolog.Logger) (*Relay, error) {
	seed, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading persisted totals: %w", err)
	}

	metrics := NewMetrics()
	tracker := NewHealthTracker(cfg.Health, clock, logger)
	dedup := NewDedupCache(cfg.Dedup, clock, logger)
	queue := NewAdmissionQueue(cfg.Queue, dedup, clock, metrics)
	client := NewDispatchClient(cfg.Dispatch, cfg.Processors(), tracker, clock, logger)
	stats := NewStatsAggregator(NewWindow(cfg.WindowRetention))
	stats.Seed(seed)

	r := &Relay{
		config:       cfg,
		tracker:      tracker,
		dedup:        dedup,
		queue:        queue,
		client:       client,
		stats:        stats,
		flush:        NewFlushLoop(cfg.Flush, queue, client, stats, metrics, clock, logger),
		checkpointer: NewCheckpointer(store, stats, cfg.CheckpointInterval, clock, logger),
		metrics:      metrics,
		log:          logger.With().Str("component", "relay").Logger(),
	}
	if cfg.HealthPoll {
		r.poller = NewHealthPoller(client, tracker, cfg.HealthPollInterval, clock, logger)
	}
	return r, nil
}

// Start runs the background loops until ctx is cancelled. The final
// checkpoint is written after the last flush tick has finished.
func (r *Relay) Start(ctx context.Context) error {
	r.log.Info().
		Str("primary", r.config.PrimaryURL).
		Str("secondary", r.config.FallbackURL).
		Str("store", r.config.StoreDriver).
		Bool("healthPoll", r.poller != nil).
		Msg("relay started")

	checkpointCtx, stopCheckpoints := context.WithCancel(context.WithoutCancel(ctx))
	defer stopCheckpoints()

	var g errgroup.Group
	g.Go(func() error {
		defer stopCheckpoints()
		return r.flush.Run(ctx)
	})
	g.Go(func() error {
		return r.checkpointer.Run(checkpointCtx)
	})
	if r.poller != nil {
		g.Go(func() error {
			return r.poller.Run(ctx)
		})
	}
	return g.Wait()
}

func (r *Relay) Enqueue(p PaymentRequest) error {
	return r.queue.Enqueue(p)
}

func (r *Relay) Summary(from, to time.Time) Summary {
	return r.stats.Summarize(from, to)
}

func (r *Relay) Health() MetricsSnapshot {
	return r.metrics.Snapshot(r.queue, r.tracker)
}
