package bot

import (
	"context"
	"sync"
	"time"
)

// StaleAfter is how long an idle rate-limit entry survives before Cleanup evicts it.
const StaleAfter = time.Hour

// RateLimitInfo describes an address's request counters after a hit.
type RateLimitInfo struct {
	RequestsInLastMinute int       `json:"requestsInLastMinute"`
	RequestsInLastHour   int       `json:"requestsInLastHour"`
	Limited              bool      `json:"isRateLimited"`
	ResetTime            time.Time `json:"resetTime"`
}

// RateLimiter keeps per-address request counters over minute and hour windows.
// Updates for one address are serialized by that address's lock, so concurrent
// hits never lose an increment; different addresses never contend.
type RateLimiter struct {
	perMinute int
	perHour   int
	entries   sync.Map // address -> *window
}

type window struct {
	mu          sync.Mutex
	minuteStart time.Time
	hourStart   time.Time
	minute      int
	hour        int
	evicted     bool
}

// NewRateLimiter creates a limiter allowing perMinute and perHour requests per address.
func NewRateLimiter(perMinute, perHour int) *RateLimiter {
	return &RateLimiter{perMinute: perMinute, perHour: perHour}
}

// Hit records one request from addr at now and returns the updated counters.
func (l *RateLimiter) Hit(addr string, now time.Time) RateLimitInfo {
	for {
		w := l.load(addr, now)
		w.mu.Lock()
		if w.evicted {
			// Cleanup removed this entry between load and lock; start over with a fresh one.
			w.mu.Unlock()
			continue
		}
		if now.Sub(w.hourStart) >= time.Hour {
			w.hourStart, w.hour = now, 0
		}
		if now.Sub(w.minuteStart) >= time.Minute {
			w.minuteStart, w.minute = now, 0
		}
		w.minute++
		w.hour++
		info := RateLimitInfo{
			RequestsInLastMinute: w.minute,
			RequestsInLastHour:   w.hour,
			Limited:              w.minute > l.perMinute || w.hour > l.perHour,
			ResetTime:            w.hourStart.Add(time.Hour),
		}
		w.mu.Unlock()
		return info
	}
}

func (l *RateLimiter) load(addr string, now time.Time) *window {
	if v, ok := l.entries.Load(addr); ok {
		return v.(*window)
	}
	v, _ := l.entries.LoadOrStore(addr, &window{minuteStart: now, hourStart: now})
	return v.(*window)
}

// Len returns the number of tracked addresses.
func (l *RateLimiter) Len() int {
	n := 0
	l.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Cleanup evicts entries whose hour window started more than StaleAfter before now.
// Each entry's lock is held only while that entry is checked.
func (l *RateLimiter) Cleanup(now time.Time) int {
	evicted := 0
	l.entries.Range(func(key, value any) bool {
		w := value.(*window)
		w.mu.Lock()
		if now.Sub(w.hourStart) > StaleAfter {
			w.evicted = true
			if l.entries.CompareAndDelete(key, w) {
				evicted++
			}
		}
		w.mu.Unlock()
		return true
	})
	return evicted
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (l *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Cleanup(now)
		}
	}
}
