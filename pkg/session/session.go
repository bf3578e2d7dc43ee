// Package session rebuilds visitor sessions from one address's request records.
package session

import (
	"sort"
	"time"

	"github.com/papaganelli/visitlog/pkg/parser"
)

// DefaultTimeout is the inactivity gap that closes a session.
const DefaultTimeout = 30 * time.Minute

// Session is a contiguous block of one address's activity.
type Session struct {
	Key             string    `json:"sessionId"`
	Address         string    `json:"ipAddress"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationSeconds float64   `json:"duration"`
	Pages           []string  `json:"pages"`
	TotalRequests   int       `json:"totalRequests"` // actual page requests only
	Records         int       `json:"records"`       // every record covered, system paths included
}

// Reconstructor groups records into sessions using an inactivity timeout.
type Reconstructor struct {
	Timeout time.Duration
}

// New returns a Reconstructor; a non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration) *Reconstructor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reconstructor{Timeout: timeout}
}

// SessionsFor splits the records of a single address into sessions ordered by
// start time. Grouping by address is the caller's job.
//
// A new session starts whenever the gap since the previous record exceeds the
// timeout. System paths keep a session alive but add nothing to its content.
func (r *Reconstructor) SessionsFor(records []parser.Record) []Session {
	if len(records) == 0 {
		return nil
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	sorted := make([]parser.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	var sessions []Session
	current := open(sorted[0])
	seen := map[string]bool{}
	current.add(sorted[0], seen)

	for i := 1; i < len(sorted); i++ {
		prev, rec := sorted[i-1], sorted[i]
		if rec.Time.Sub(prev.Time) > timeout {
			sessions = append(sessions, current.close(prev.Time))
			current = open(rec)
			seen = map[string]bool{}
		}
		current.add(rec, seen)
	}
	sessions = append(sessions, current.close(sorted[len(sorted)-1].Time))
	return sessions
}

func open(first parser.Record) *Session {
	return &Session{
		Key:       first.Address + "-" + first.Time.UTC().Format("20060102T150405.000Z"),
		Address:   first.Address,
		StartTime: first.Time,
		Pages:     []string{},
	}
}

func (s *Session) add(rec parser.Record, seen map[string]bool) {
	s.Records++
	if !IsActualPage(rec.Path) {
		return
	}
	s.TotalRequests++
	page := NormalizePath(rec.Path)
	if !seen[page] {
		seen[page] = true
		s.Pages = append(s.Pages, page)
	}
}

func (s *Session) close(end time.Time) Session {
	s.EndTime = end
	s.DurationSeconds = end.Sub(s.StartTime).Seconds()
	return *s
}
