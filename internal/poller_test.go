package internal

import (
	"context"
	"errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/zoobzio/clockz"
	"net/http"
	"testing"
	"time"
)

type healthCheckerFunc func(ctx context.Context, u UpstreamId) (HealthStatus, error)

func (f healthCheckerFunc) HealthStatus(ctx context.Context, u UpstreamId) (HealthStatus, error) {
	return f(ctx, u)
}

func TestHealthPoller_TripsFailingUpstream(t *testing.T) {
	tracker := newTestTracker(clockz.RealClock)
	checker := healthCheckerFunc(func(_ context.Context, u UpstreamId) (HealthStatus, error) {
		switch u {
		case Primary:
			return HealthStatus{Failing: true, Upstream: u}, nil
		default:
			return HealthStatus{}, errors.New("429 too many requests")
		}
	})
	p := NewHealthPoller(checker, tracker, time.Second, clockz.RealClock, zerolog.Nop())

	p.Poll(context.Background())

	assert.False(t, tracker.IsEligible(Primary))
	assert.True(t, tracker.IsEligible(Secondary))
}

func TestHealthPoller_AgainstUpstream(t *testing.T) {
	primary := newFakeUpstream(t, http.StatusOK)
	secondary := newFakeUpstream(t, http.StatusOK)
	tracker := newTestTracker(clockz.RealClock)
	client := newTestClient(tracker, primary.URL, secondary.URL)
	p := NewHealthPoller(client, tracker, time.Second, clockz.RealClock, zerolog.Nop())

	p.Poll(context.Background())

	assert.True(t, tracker.BothIneligible())
}
