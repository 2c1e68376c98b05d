package internal

import (
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultDedupTTL   = 10 * time.Minute
	DefaultSweepEvery = 2000
)

type dedupEntry struct {
	seenAt time.Time
}

type DedupConfig struct {
	TTL        time.Duration
	SweepEvery int64
}

// DedupCache remembers admitted correlation ids for TTL. Entries are compared
// by pointer so a rollback never removes an entry written by someone else.
type DedupCache struct {
	config     DedupConfig
	entries    sync.Map
	admissions atomic.Int64
	clock      clockz.Clock
	log        zerolog.Logger
}

func NewDedupCache(config DedupConfig, clock clockz.Clock, logger zerolog.Logger) *DedupCache {
	if config.TTL <= 0 {
		config.TTL = DefaultDedupTTL
	}
	if config.SweepEvery <= 0 {
		config.SweepEvery = DefaultSweepEvery
	}
	return &DedupCache{
		config: config,
		clock:  clock,
		log:    logger.With().Str("component", "dedup").Logger(),
	}
}

// Reserve records id as seen. It returns false when id was already seen
// less than TTL ago.
func (c *DedupCache) Reserve(id string) (*dedupEntry, bool) {
	now := c.clock.Now()
	entry := &dedupEntry{seenAt: now}
	for {
		v, loaded := c.entries.LoadOrStore(id, entry)
		if !loaded {
			break
		}
		prev := v.(*dedupEntry)
		if now.Sub(prev.seenAt) < c.config.TTL {
			return nil, false
		}
		if c.entries.CompareAndSwap(id, prev, entry) {
			break
		}
	}

	if c.admissions.Add(1)%c.config.SweepEvery == 0 {
		c.Sweep()
	}
	return entry, true
}

// Release undoes a Reserve, leaving newer entries for the same id alone.
func (c *DedupCache) Release(id string, entry *dedupEntry) {
	c.entries.CompareAndDelete(id, entry)
}

// Sweep drops expired entries and returns how many were removed.
func (c *DedupCache) Sweep() int {
	now := c.clock.Now()
	removed := 0
	c.entries.Range(func(k, v any) bool {
		if now.Sub(v.(*dedupEntry).seenAt) >= c.config.TTL {
			if c.entries.CompareAndDelete(k, v) {
				removed++
			}
		}
		return true
	})
	if removed > 0 {
		c.log.Debug().Int("removed", removed).Msg("dedup sweep")
	}
	return removed
}

func (c *DedupCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
