package internal

import (
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
	"sync"
	"time"
)

const (
	DefaultCheckpointInterval = time.Second
	finalCheckpointTimeout    = 5 * time.Second
)

// Checkpointer pushes the growth of the running totals into a CounterStore.
// A delta that fails to persist is retried on the next flush.
type Checkpointer struct {
	mu       sync.Mutex
	store    CounterStore
	stats    *StatsAggregator
	interval time.Duration
	clock    clockz.Clock
	log      zerolog.Logger
	saved    Totals
}

// NewCheckpointer treats the aggregator's current totals as already
// persisted, so it must be created after the aggregator is seeded.
func NewCheckpointer(store CounterStore, stats *StatsAggregator, interval time.Duration, clock clockz.Clock, logger zerolog.Logger) *Checkpointer {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	return &Checkpointer{
		store:    store,
		stats:    stats,
		interval: interval,
		clock:    clock,
		log:      logger.With().Str("component", "checkpoint").Logger(),
		saved:    stats.Snapshot(),
	}
}

func (c *Checkpointer) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalCheckpointTimeout)
			defer cancel()
			if err := c.Flush(fctx); err != nil {
				c.log.Error().Err(err).Msg("final checkpoint failed")
				return err
			}
			c.log.Info().Msg("final checkpoint written")
			return nil
		case <-ticker.C():
			if err := c.Flush(ctx); err != nil {
				c.log.Error().Err(err).Msg("checkpoint failed")
			}
		}
	}
}

func (c *Checkpointer) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.stats.Snapshot()
	var errs []error
	for _, u := range Upstreams {
		delta := current[u].Sub(c.saved[u])
		if delta.IsZero() {
			continue
		}
		if err := c.store.Add(ctx, u, delta.Requests, delta.Cents); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		c.saved[u] = c.saved[u].Add(delta)
	}
	return errors.Join(errs...)
}
