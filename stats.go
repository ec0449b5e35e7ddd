package memcache

import (
	"sync/atomic"
	"time"

	"github.com/relaycache/memcache/internal/coarsetime"
)

// ClientStats holds lifetime operation counters for a Client. All fields
// are safe for concurrent access and are a point-in-time snapshot once
// returned — they do not update after the fact.
type ClientStats struct {
	Gets       uint64
	Sets       uint64
	Deletes    uint64
	Increments uint64
	Decrements uint64

	CacheHits   uint64
	CacheMisses uint64
	Errors      uint64
}

// HitRate returns CacheHits / (CacheHits + CacheMisses), or 0 if no Get
// has completed yet.
func (s ClientStats) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

type clientStatsCollector struct {
	stats ClientStats
}

func (c *clientStatsCollector) recordGet()       { atomic.AddUint64(&c.stats.Gets, 1) }
func (c *clientStatsCollector) recordSet()       { atomic.AddUint64(&c.stats.Sets, 1) }
func (c *clientStatsCollector) recordDelete()    { atomic.AddUint64(&c.stats.Deletes, 1) }
func (c *clientStatsCollector) recordIncrement() { atomic.AddUint64(&c.stats.Increments, 1) }
func (c *clientStatsCollector) recordDecrement() { atomic.AddUint64(&c.stats.Decrements, 1) }
func (c *clientStatsCollector) recordHit()       { atomic.AddUint64(&c.stats.CacheHits, 1) }
func (c *clientStatsCollector) recordMiss()      { atomic.AddUint64(&c.stats.CacheMisses, 1) }
func (c *clientStatsCollector) recordError()     { atomic.AddUint64(&c.stats.Errors, 1) }

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Gets:        atomic.LoadUint64(&c.stats.Gets),
		Sets:        atomic.LoadUint64(&c.stats.Sets),
		Deletes:     atomic.LoadUint64(&c.stats.Deletes),
		Increments:  atomic.LoadUint64(&c.stats.Increments),
		Decrements:  atomic.LoadUint64(&c.stats.Decrements),
		CacheHits:   atomic.LoadUint64(&c.stats.CacheHits),
		CacheMisses: atomic.LoadUint64(&c.stats.CacheMisses),
		Errors:      atomic.LoadUint64(&c.stats.Errors),
	}
}

// ConnectionStats holds lifetime counters for one server Connection.
type ConnectionStats struct {
	Dials          uint64
	DialErrors     uint64
	Reconnects     uint64
	Timeouts       uint64
	FatalFailures  uint64
	RequestsQueued uint64
	RequestsDone   uint64

	// LastActivity is the coarsetime.Now() reading taken the last time a
	// request finished on this Connection, or the zero Time if none ever
	// has. It is coarse (updated on a 50ms tick) by design: this is read on
	// every completed request, and a true time.Now() call on that path
	// would cost more than the counter increments it sits next to.
	LastActivity time.Time
}

type connectionStatsCollector struct {
	stats        ConnectionStats
	lastActivity atomic.Value // time.Time
}

func (c *connectionStatsCollector) recordDial()      { atomic.AddUint64(&c.stats.Dials, 1) }
func (c *connectionStatsCollector) recordDialError() { atomic.AddUint64(&c.stats.DialErrors, 1) }
func (c *connectionStatsCollector) recordReconnect() { atomic.AddUint64(&c.stats.Reconnects, 1) }
func (c *connectionStatsCollector) recordTimeout()   { atomic.AddUint64(&c.stats.Timeouts, 1) }
func (c *connectionStatsCollector) recordFatalFailure() {
	atomic.AddUint64(&c.stats.FatalFailures, 1)
}
func (c *connectionStatsCollector) recordQueued() { atomic.AddUint64(&c.stats.RequestsQueued, 1) }
func (c *connectionStatsCollector) recordDone() {
	atomic.AddUint64(&c.stats.RequestsDone, 1)
	c.lastActivity.Store(coarsetime.Now())
}

func (c *connectionStatsCollector) snapshot() ConnectionStats {
	s := ConnectionStats{
		Dials:          atomic.LoadUint64(&c.stats.Dials),
		DialErrors:     atomic.LoadUint64(&c.stats.DialErrors),
		Reconnects:     atomic.LoadUint64(&c.stats.Reconnects),
		Timeouts:       atomic.LoadUint64(&c.stats.Timeouts),
		FatalFailures:  atomic.LoadUint64(&c.stats.FatalFailures),
		RequestsQueued: atomic.LoadUint64(&c.stats.RequestsQueued),
		RequestsDone:   atomic.LoadUint64(&c.stats.RequestsDone),
	}
	if t, ok := c.lastActivity.Load().(time.Time); ok {
		s.LastActivity = t
	}
	return s
}
