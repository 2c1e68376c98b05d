package internal

import (
	"github.com/google/btree"
	"math"
	"sync"
	"time"
)

const (
	DefaultWindowRetention = 24 * time.Hour
	windowPruneEvery       = 10_000
)

// bucket aggregates every success recorded for one upstream in one
// millisecond.
type bucket struct {
	at       int64
	upstream UpstreamId
	Counter
}

func (b *bucket) Less(item btree.Item) bool {
	o := item.(*bucket)
	if b.at == o.at {
		return b.upstream < o.upstream
	}
	return b.at < o.at
}

// Window indexes per-millisecond totals by time so summaries can be limited
// to a [from, to] range.
type Window struct {
	mu        sync.RWMutex
	tree      *btree.BTree
	retention time.Duration
	created   int
}

func NewWindow(retention time.Duration) *Window {
	if retention <= 0 {
		retention = DefaultWindowRetention
	}
	return &Window{
		tree:      btree.New(32),
		retention: retention,
	}
}

func (w *Window) Add(u UpstreamId, at time.Time, cents int64) {
	ms := at.UnixMilli()

	w.mu.Lock()
	defer w.mu.Unlock()

	if item := w.tree.Get(&bucket{at: ms, upstream: u}); item != nil {
		b := item.(*bucket)
		b.Requests++
		b.Cents += cents
		return
	}
	w.tree.ReplaceOrInsert(&bucket{at: ms, upstream: u, Counter: Counter{Requests: 1, Cents: cents}})
	w.created++
	if w.created%windowPruneEvery == 0 {
		w.prune(ms - w.retention.Milliseconds())
	}
}

// Sum totals the buckets whose time falls in [from, to]. A zero bound is
// open.
func (w *Window) Sum(from, to time.Time) Totals {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !from.IsZero() {
		lo = from.UnixMilli()
	}
	if !to.IsZero() {
		hi = to.UnixMilli()
	}

	var totals Totals
	if lo > hi {
		return totals
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	w.tree.AscendGreaterOrEqual(&bucket{at: lo, upstream: Primary}, func(item btree.Item) bool {
		b := item.(*bucket)
		if b.at > hi {
			return false
		}
		totals[b.upstream] = totals[b.upstream].Add(b.Counter)
		return true
	})
	return totals
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tree.Len()
}

func (w *Window) prune(cutoff int64) {
	var stale []btree.Item
	w.tree.AscendLessThan(&bucket{at: cutoff, upstream: Primary}, func(item btree.Item) bool {
		stale = append(stale, item)
		return true
	})
	for _, item := range stale {
		w.tree.Delete(item)
	}
}
