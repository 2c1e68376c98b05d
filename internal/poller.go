package internal

import (
	"context"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
	"time"
)

const DefaultHealthPollInterval = 5 * time.Second

type HealthChecker interface {
	HealthStatus(ctx context.Context, u UpstreamId) (HealthStatus, error)
}

// HealthPoller asks each upstream for its service health and trips the
// circuit of any upstream that reports itself failing. Errors, including
// rate limiting, leave the tracker alone.
type HealthPoller struct {
	checker  HealthChecker
	tracker  *HealthTracker
	interval time.Duration
	clock    clockz.Clock
	log      zerolog.Logger
}

func NewHealthPoller(checker HealthChecker, tracker *HealthTracker, interval time.Duration, clock clockz.Clock, logger zerolog.Logger) *HealthPoller {
	if interval <= 0 {
		interval = DefaultHealthPollInterval
	}
	return &HealthPoller{
		checker:  checker,
		tracker:  tracker,
		interval: interval,
		clock:    clock,
		log:      logger.With().Str("component", "poller").Logger(),
	}
}

func (p *HealthPoller) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			p.Poll(ctx)
		}
	}
}

func (p *HealthPoller) Poll(ctx context.Context) {
	for _, u := range Upstreams {
		hs, err := p.checker.HealthStatus(ctx, u)
		if err != nil {
			p.log.Debug().Err(err).Stringer("upstream", u).Msg("health check skipped")
			continue
		}
		if hs.Failing {
			p.tracker.Trip(u)
		}
	}
}
