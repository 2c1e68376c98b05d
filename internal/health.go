package internal

import (
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
	"sync"
	"time"
)

const (
	DefaultFailureThreshold = 4
	DefaultRecoveryTimeout  = 3 * time.Second
)

// ProcessorStatus is the circuit state of one upstream.
type ProcessorStatus struct {
	ConsecutiveFailures int
	LastFailureAt       time.Time
	CircuitOpen         bool
}

type upstreamHealth struct {
	mu     sync.Mutex
	status ProcessorStatus
}

type HealthConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// HealthTracker is a per-upstream circuit breaker driven by dispatch results.
// An open circuit closes again on the first query made after RecoveryTimeout
// has elapsed since the last failure; there is no separate trial state.
type HealthTracker struct {
	config    HealthConfig
	clock     clockz.Clock
	log       zerolog.Logger
	upstreams [len(Upstreams)]upstreamHealth
}

func NewHealthTracker(config HealthConfig, clock clockz.Clock, logger zerolog.Logger) *HealthTracker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultFailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = DefaultRecoveryTimeout
	}
	return &HealthTracker{
		config: config,
		clock:  clock,
		log:    logger.With().Str("component", "health").Logger(),
	}
}

func (h *HealthTracker) ReportSuccess(u UpstreamId) {
	uh := &h.upstreams[u]
	uh.mu.Lock()
	defer uh.mu.Unlock()

	uh.status.ConsecutiveFailures = 0
	if uh.status.CircuitOpen {
		uh.status.CircuitOpen = false
		h.log.Info().Stringer("upstream", u).Msg("circuit closed after success")
	}
}

func (h *HealthTracker) ReportFailure(u UpstreamId) {
	uh := &h.upstreams[u]
	uh.mu.Lock()
	defer uh.mu.Unlock()

	uh.status.ConsecutiveFailures++
	uh.status.LastFailureAt = h.clock.Now()
	if !uh.status.CircuitOpen && uh.status.ConsecutiveFailures >= h.config.FailureThreshold {
		uh.status.CircuitOpen = true
		h.log.Warn().
			Stringer("upstream", u).
			Int("failures", uh.status.ConsecutiveFailures).
			Msg("circuit opened")
	}
}

// Trip opens the circuit as if the threshold had just been reached.
func (h *HealthTracker) Trip(u UpstreamId) {
	uh := &h.upstreams[u]
	uh.mu.Lock()
	defer uh.mu.Unlock()

	if uh.status.ConsecutiveFailures < h.config.FailureThreshold {
		uh.status.ConsecutiveFailures = h.config.FailureThreshold
	}
	uh.status.LastFailureAt = h.clock.Now()
	if !uh.status.CircuitOpen {
		uh.status.CircuitOpen = true
		h.log.Warn().Stringer("upstream", u).Msg("circuit tripped by health check")
	}
}

func (h *HealthTracker) IsEligible(u UpstreamId) bool {
	uh := &h.upstreams[u]
	uh.mu.Lock()
	defer uh.mu.Unlock()

	if !uh.status.CircuitOpen {
		return true
	}
	if h.clock.Now().Sub(uh.status.LastFailureAt) > h.config.RecoveryTimeout {
		uh.status.CircuitOpen = false
		uh.status.ConsecutiveFailures = 0
		h.log.Info().Stringer("upstream", u).Msg("circuit retest after recovery timeout")
		return true
	}
	return false
}

func (h *HealthTracker) BothIneligible() bool {
	return !h.IsEligible(Primary) && !h.IsEligible(Secondary)
}

func (h *HealthTracker) Status(u UpstreamId) ProcessorStatus {
	uh := &h.upstreams[u]
	uh.mu.Lock()
	defer uh.mu.Unlock()
	return uh.status
}
