package internal

import (
	"fmt"
	"github.com/zoobzio/clockz"
	"time"
)

const (
	DefaultMainQueueSize     = 6000
	DefaultPriorityQueueSize = 2000
)

type QueueConfig struct {
	MainSize     int
	PrioritySize int
}

// AdmissionQueue holds admitted payments until the flush loop dispatches
// them. Only the admission path writes to main; only the flush loop writes
// to priority.
type AdmissionQueue struct {
	main     chan PaymentRequest
	priority chan PaymentRequest
	dedup    *DedupCache
	clock    clockz.Clock
	metrics  *Metrics
}

func NewAdmissionQueue(config QueueConfig, dedup *DedupCache, clock clockz.Clock, metrics *Metrics) *AdmissionQueue {
	if config.MainSize <= 0 {
		config.MainSize = DefaultMainQueueSize
	}
	if config.PrioritySize <= 0 {
		config.PrioritySize = DefaultPriorityQueueSize
	}
	return &AdmissionQueue{
		main:     make(chan PaymentRequest, config.MainSize),
		priority: make(chan PaymentRequest, config.PrioritySize),
		dedup:    dedup,
		clock:    clock,
		metrics:  metrics,
	}
}

// Enqueue admits r without blocking. It returns ErrDuplicate when the
// correlation id was admitted within the dedup window and ErrQueueFull when
// the main queue has no room. Amounts outside the accepted range are
// rejected with ErrInvalidPayment before touching the dedup cache.
func (q *AdmissionQueue) Enqueue(r PaymentRequest) error {
	if !r.Amount.Valid() {
		return fmt.Errorf("%w: amount %s out of range", ErrInvalidPayment, r.Amount)
	}

	entry, ok := q.dedup.Reserve(r.CorrelationId)
	if !ok {
		q.metrics.RejectedDuplicate.Add(1)
		return fmt.Errorf("%w: %s", ErrDuplicate, r.CorrelationId)
	}

	r.Amount = r.Amount.Round()
	r.AdmittedAt = q.clock.Now().UTC().Truncate(time.Millisecond)

	select {
	case q.main <- r:
		q.metrics.Admitted.Add(1)
		return nil
	default:
		q.dedup.Release(r.CorrelationId, entry)
		q.metrics.RejectedFull.Add(1)
		return ErrQueueFull
	}
}

// Requeue puts r on the priority queue. It returns false when that queue is
// full.
func (q *AdmissionQueue) Requeue(r PaymentRequest) bool {
	select {
	case q.priority <- r:
		return true
	default:
		return false
	}
}

// Drain appends up to max queued payments to buf, priority queue first.
func (q *AdmissionQueue) Drain(max int, buf []PaymentRequest) []PaymentRequest {
	for n := 0; n < max; n++ {
		select {
		case r := <-q.priority:
			buf = append(buf, r)
			continue
		default:
		}
		select {
		case r := <-q.main:
			buf = append(buf, r)
		default:
			return buf
		}
	}
	return buf
}

func (q *AdmissionQueue) Depths() (main, priority int) {
	return len(q.main), len(q.priority)
}
