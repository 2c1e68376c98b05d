package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

const (
	CorrelationIdAlreadyExists = "CorrelationId already exists"
	requestedAtLayout          = "2006-01-02T15:04:05.000Z07:00"

	DefaultMaxRetries     = 2
	DefaultRequestTimeout = 300 * time.Millisecond
	baseBackoff           = 50 * time.Millisecond
	maxBackoff            = 500 * time.Millisecond
	backoffJitter         = 30 * time.Millisecond
)

type PaymentProcessor struct {
	Id       UpstreamId
	Endpoint string
}

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomePermanent
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// DispatchOutcome is the result of one SendToBestProcessor call. Upstream and
// RequestedAt are set only on success.
type DispatchOutcome struct {
	Kind        OutcomeKind
	Upstream    UpstreamId
	RequestedAt time.Time
	Err         error
}

type DispatchConfig struct {
	MaxRetries     int
	RequestTimeout time.Duration
}

type paymentRequest struct {
	CorrelationId string `json:"correlationId"`
	Amount        Amount `json:"amount"`
	RequestedAt   string `json:"requestedAt"`
}

// DispatchClient delivers a payment to the best available upstream.
type DispatchClient struct {
	config     DispatchConfig
	processors [len(Upstreams)]PaymentProcessor
	tracker    *HealthTracker
	client     *http.Client
	clock      clockz.Clock
	log        zerolog.Logger
	payloads   *pool[paymentRequest]
	jitter     func() time.Duration
}

func NewDispatchClient(
	config DispatchConfig,
	processors [len(Upstreams)]PaymentProcessor,
	tracker *HealthTracker,
	clock clockz.Clock,
	logger zerolog.Logger,
) *DispatchClient {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 256
	transport.MaxIdleConnsPerHost = 128
	return &DispatchClient{
		config:     config,
		processors: processors,
		tracker:    tracker,
		client:     &http.Client{Transport: transport},
		clock:      clock,
		log:        logger.With().Str("component", "dispatch").Logger(),
		payloads: newPool[paymentRequest](512, func(p *paymentRequest) {
			*p = paymentRequest{}
		}),
		jitter: func() time.Duration {
			return time.Duration(rand.Int64N(int64(backoffJitter)))
		},
	}
}

// SendToBestProcessor tries eligible upstreams in preference order, retrying
// each one up to MaxRetries times. It never returns an error for upstream
// failures; those are reported as OutcomeRetryable.
func (c *DispatchClient) SendToBestProcessor(ctx context.Context, r PaymentRequest) DispatchOutcome {
	if c.tracker.BothIneligible() {
		return DispatchOutcome{Kind: OutcomeRetryable, Err: ErrProcessorFailed}
	}

	requestedAt := c.clock.Now().UTC().Truncate(time.Millisecond)
	body, err := c.encode(r, requestedAt)
	if err != nil {
		return DispatchOutcome{Kind: OutcomePermanent, Err: fmt.Errorf("%w: encode: %v", ErrPermanent, err)}
	}

	var buf [len(Upstreams)]UpstreamId
	candidates := buf[:0]
	for _, u := range Upstreams {
		if c.tracker.IsEligible(u) {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, Upstreams[:]...)
	}

	lastErr := ErrProcessorFailed
	for _, u := range candidates {
		for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
			err := c.attempt(ctx, c.processors[u], body)
			if err == nil {
				c.tracker.ReportSuccess(u)
				return DispatchOutcome{Kind: OutcomeSuccess, Upstream: u, RequestedAt: requestedAt}
			}
			if errors.Is(err, ErrPermanent) {
				return DispatchOutcome{Kind: OutcomePermanent, Err: err}
			}

			c.tracker.ReportFailure(u)
			lastErr = err
			c.log.Debug().
				Err(err).
				Stringer("upstream", u).
				Int("attempt", attempt).
				Str("correlationId", r.CorrelationId).
				Msg("dispatch attempt failed")

			if attempt < c.config.MaxRetries {
				select {
				case <-c.clock.After(c.backoff(attempt)):
				case <-ctx.Done():
					return DispatchOutcome{Kind: OutcomeRetryable, Err: ctx.Err()}
				}
			}
		}
	}
	return DispatchOutcome{Kind: OutcomeRetryable, Err: lastErr}
}

func (c *DispatchClient) encode(r PaymentRequest, requestedAt time.Time) ([]byte, error) {
	req := c.payloads.Get()
	defer c.payloads.Put(req)
	req.CorrelationId = r.CorrelationId
	req.Amount = r.Amount.Round()
	req.RequestedAt = requestedAt.Format(requestedAtLayout)
	return json.Marshal(req)
}

// backoff returns min(500ms, 50ms*2^(attempt-1) + jitter).
func (c *DispatchClient) backoff(attempt int) time.Duration {
	if attempt > 8 {
		return maxBackoff
	}
	d := baseBackoff<<(attempt-1) + c.jitter()
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// attempt sends one POST. An attempt in flight is not cut short by ctx; only
// the per-attempt timeout bounds it.
func (c *DispatchClient) attempt(ctx context.Context, p PaymentProcessor, body []byte) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint+"/payments", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", p.Id, ErrTimeout)
		}
		return fmt.Errorf("%s: %w: %v", p.Id, ErrProcessorFailed, err)
	}
	defer func(Body io.ReadCloser) {
		_, _ = io.Copy(io.Discard, Body)
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode == http.StatusUnprocessableEntity {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if strings.Contains(string(b), CorrelationIdAlreadyExists) {
			return nil
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %w: status %d", p.Id, ErrProcessorFailed, resp.StatusCode)
	}
	return nil
}

func (c *DispatchClient) HealthStatus(ctx context.Context, u UpstreamId) (HealthStatus, error) {
	hs := HealthStatus{Upstream: u}
	p := c.processors[u]

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint+"/payments/service-health", nil)
	if err != nil {
		return hs, fmt.Errorf("building service health request for %s: %w", u, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return hs, fmt.Errorf("error fetching service health for %s: %w", u, err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return hs, fmt.Errorf("%w: service health for %s returned %d", ErrProcessorFailed, u, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return hs, fmt.Errorf("error decoding service health response: %w", err)
	}
	hs.Upstream = u
	return hs, nil
}
