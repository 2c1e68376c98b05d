package internal

import "sync/atomic"

// Metrics tracks relay activity with lock-free counters.
type Metrics struct {
	Admitted          atomic.Int64
	RejectedDuplicate atomic.Int64
	RejectedFull      atomic.Int64
	Requeued          atomic.Int64
	Dropped           atomic.Int64
	Panics            atomic.Int64
	dispatched        [len(Upstreams)]atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Dispatched(u UpstreamId) {
	m.dispatched[u].Add(1)
}

type UpstreamMetrics struct {
	Dispatched  int64 `json:"dispatched"`
	CircuitOpen bool  `json:"circuitOpen"`
	Failures    int   `json:"consecutiveFailures"`
}

type MetricsSnapshot struct {
	Admitted          int64                            `json:"admitted"`
	RejectedDuplicate int64                            `json:"rejectedDuplicate"`
	RejectedFull      int64                            `json:"rejectedFull"`
	Requeued          int64                            `json:"requeued"`
	Dropped           int64                            `json:"dropped"`
	Panics            int64                            `json:"panics"`
	MainQueueDepth    int                              `json:"mainQueueDepth"`
	PriorityDepth     int                              `json:"priorityQueueDepth"`
	Upstreams         map[UpstreamName]UpstreamMetrics `json:"upstreams"`
}

// Snapshot reads every counter independently; the result is not a single
// consistent cut.
func (m *Metrics) Snapshot(queue *AdmissionQueue, tracker *HealthTracker) MetricsSnapshot {
	s := MetricsSnapshot{
		Admitted:          m.Admitted.Load(),
		RejectedDuplicate: m.RejectedDuplicate.Load(),
		RejectedFull:      m.RejectedFull.Load(),
		Requeued:          m.Requeued.Load(),
		Dropped:           m.Dropped.Load(),
		Panics:            m.Panics.Load(),
		Upstreams:         make(map[UpstreamName]UpstreamMetrics, len(Upstreams)),
	}
	if queue != nil {
		s.MainQueueDepth, s.PriorityDepth = queue.Depths()
	}
	for _, u := range Upstreams {
		um := UpstreamMetrics{Dispatched: m.dispatched[u].Load()}
		if tracker != nil {
			st := tracker.Status(u)
			um.CircuitOpen = st.CircuitOpen
			um.Failures = st.ConsecutiveFailures
		}
		s.Upstreams[u.Name()] = um
	}
	return s
}
