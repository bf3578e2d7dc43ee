// Package metrics tracks request rates and parse outcomes for live views.
package metrics

import (
	"sync"
	"time"
)

// RateTracker counts requests in fixed-size time buckets held in a ring.
// Bucket times come from the records themselves, so replayed logs produce the
// rates they had when written.
type RateTracker struct {
	mu         sync.RWMutex
	buckets    []int
	starts     []time.Time // bucket start per slot
	current    int
	bucketSize time.Duration
	windowSize int
	total      int
	latest     time.Time // newest record time seen
}

// NewRateTracker creates a tracker with windowSize buckets of bucketSize,
// e.g. 60 buckets of 10s for a ten minute window.
func NewRateTracker(bucketSize time.Duration, windowSize int) *RateTracker {
	if windowSize < 2 {
		windowSize = 2
	}
	return &RateTracker{
		buckets:    make([]int, windowSize),
		starts:     make([]time.Time, windowSize),
		bucketSize: bucketSize,
		windowSize: windowSize,
	}
}

// Record counts one request at t.
func (rt *RateTracker) Record(t time.Time) {
	rt.RecordN(t, 1)
}

// RecordN counts n requests at t. Requests older than the current bucket are
// folded into it.
func (rt *RateTracker) RecordN(t time.Time, n int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	start := t.Truncate(rt.bucketSize)
	cur := rt.starts[rt.current]
	if !cur.IsZero() && start.After(cur) {
		rt.current = (rt.current + 1) % rt.windowSize
		rt.total -= rt.buckets[rt.current]
		rt.buckets[rt.current] = 0
	}
	if cur.IsZero() || start.After(cur) {
		rt.starts[rt.current] = start
	}
	rt.buckets[rt.current] += n
	rt.total += n
	if t.After(rt.latest) {
		rt.latest = t
	}
}

// RateStats are request rates in requests per second.
type RateStats struct {
	Current     float64 // most recent bucket
	Peak        float64 // busiest bucket in the window
	Average     float64
	Total       int     // requests in the window
	TrendChange float64 // percent change of the newer half of the window against the older half
}

// Stats computes rates over the window ending at the newest record seen.
func (rt *RateTracker) Stats() RateStats {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	if rt.total == 0 {
		return RateStats{}
	}

	window := rt.bucketSize * time.Duration(rt.windowSize)
	half := rt.bucketSize * time.Duration(rt.windowSize/2)
	var valid, peak, recent, previous, total int
	for i := 0; i < rt.windowSize; i++ {
		if rt.starts[i].IsZero() {
			continue
		}
		age := rt.latest.Sub(rt.starts[i])
		if age > window {
			continue
		}
		valid++
		total += rt.buckets[i]
		if rt.buckets[i] > peak {
			peak = rt.buckets[i]
		}
		if age < half {
			recent += rt.buckets[i]
		} else {
			previous += rt.buckets[i]
		}
	}
	if valid == 0 {
		return RateStats{}
	}

	secs := rt.bucketSize.Seconds()
	var trend float64
	if previous > 0 {
		trend = float64(recent-previous) / float64(previous) * 100
	}
	return RateStats{
		Current:     float64(rt.buckets[rt.current]) / secs,
		Peak:        float64(peak) / secs,
		Average:     float64(total) / (float64(valid) * secs),
		Total:       total,
		TrendChange: trend,
	}
}

// Reset clears all buckets.
func (rt *RateTracker) Reset() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for i := range rt.buckets {
		rt.buckets[i] = 0
		rt.starts[i] = time.Time{}
	}
	rt.current, rt.total = 0, 0
	rt.latest = time.Time{}
}
