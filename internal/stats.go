package internal

import (
	"sync/atomic"
	"time"
)

type statsCounter struct {
	requests atomic.Int64
	cents    atomic.Int64
}

// StatsAggregator keeps running totals per upstream. Each field is updated
// atomically on its own; a reader may see a count without its amount for a
// brief moment.
type StatsAggregator struct {
	counters [len(Upstreams)]statsCounter
	window   *Window
}

func NewStatsAggregator(window *Window) *StatsAggregator {
	return &StatsAggregator{window: window}
}

// Record adds one confirmed success. requestedAt is the timestamp that was
// sent to the upstream and places the payment in the window index.
func (s *StatsAggregator) Record(u UpstreamId, amount Amount, requestedAt time.Time) {
	cents := amount.Cents()
	c := &s.counters[u]
	c.requests.Add(1)
	c.cents.Add(cents)
	if s.window != nil {
		s.window.Add(u, requestedAt, cents)
	}
}

// Seed adds totals carried over from a previous run.
func (s *StatsAggregator) Seed(totals Totals) {
	for _, u := range Upstreams {
		s.counters[u].requests.Add(totals[u].Requests)
		s.counters[u].cents.Add(totals[u].Cents)
	}
}

func (s *StatsAggregator) Snapshot() Totals {
	var t Totals
	for _, u := range Upstreams {
		t[u] = Counter{
			Requests: s.counters[u].requests.Load(),
			Cents:    s.counters[u].cents.Load(),
		}
	}
	return t
}

// Summarize returns the running totals when both bounds are zero, otherwise
// the totals recorded with a requestedAt inside [from, to]. Bounded queries
// only see this process's window: totals seeded from the store are left out.
func (s *StatsAggregator) Summarize(from, to time.Time) Summary {
	if (from.IsZero() && to.IsZero()) || s.window == nil {
		return NewSummary(s.Snapshot())
	}
	return NewSummary(s.window.Sum(from, to))
}
