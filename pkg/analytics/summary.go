// Package analytics folds parsed request records into run-wide and
// per-address summaries.
package analytics

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/papaganelli/visitlog/pkg/parser"
)

// AddressSet is an insertion-ordered set of client addresses.
type AddressSet struct {
	seen  map[string]struct{}
	order []string
}

func (s *AddressSet) add(addr string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[addr]; ok {
		return
	}
	s.seen[addr] = struct{}{}
	s.order = append(s.order, addr)
}

// Len returns the number of distinct addresses.
func (s *AddressSet) Len() int { return len(s.order) }

// Contains reports whether addr is in the set.
func (s *AddressSet) Contains(addr string) bool {
	_, ok := s.seen[addr]
	return ok
}

// Slice returns the addresses in first-seen order.
func (s *AddressSet) Slice() []string {
	return append([]string(nil), s.order...)
}

func (s *AddressSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// TimeRange holds the first and last timestamps of a run, rendered with
// parser.FormatTimestamp. Both are "" when there is no data.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// LogSummary is the run-wide rollup of a set of records.
type LogSummary struct {
	TotalRequests              int         `json:"totalRequests"`
	UniqueAddresses            *AddressSet `json:"uniqueAddresses"`
	StatusCodes                *Counter    `json:"statusCodes"`
	TopPaths                   *Counter    `json:"topPaths"`
	TopUserAgents              *Counter    `json:"topUserAgents"` // keyed by browser name
	TopReferrers               *Counter    `json:"topReferrers"`  // keyed by hostname
	AverageResponseTimeSeconds float64     `json:"averageResponseTime"`
	TotalBytesSent             int64       `json:"totalBytesSent"`
	TimeRange                  TimeRange   `json:"timeRange"`
}

// Summarize folds records into a LogSummary. It does not modify its input and
// holds no state between calls.
func Summarize(records []parser.Record) LogSummary {
	s := LogSummary{
		TotalRequests:   len(records),
		UniqueAddresses: &AddressSet{},
		StatusCodes:     NewCounter(),
		TopPaths:        NewCounter(),
		TopUserAgents:   NewCounter(),
		TopReferrers:    NewCounter(),
	}

	var (
		totalTime  float64
		timed      int
		start, end time.Time
	)
	for _, r := range records {
		s.UniqueAddresses.add(r.Address)
		s.StatusCodes.Add(strconv.Itoa(r.Status))
		s.TopPaths.Add(r.Path)
		if r.UserAgent != "" {
			s.TopUserAgents.Add(parser.Browser(r.UserAgent))
		}
		if r.Referer != "" {
			s.TopReferrers.Add(RefererHost(r.Referer))
		}
		if r.RequestTime > 0 {
			totalTime += r.RequestTime
			timed++
		}
		s.TotalBytesSent += r.Bytes

		if start.IsZero() || r.Time.Before(start) {
			start = r.Time
		}
		if end.IsZero() || r.Time.After(end) {
			end = r.Time
		}
	}

	if timed > 0 {
		s.AverageResponseTimeSeconds = totalTime / float64(timed)
	}
	s.TimeRange = TimeRange{Start: parser.FormatTimestamp(start), End: parser.FormatTimestamp(end)}
	return s
}

// RefererHost returns the hostname of a referer URL, or "Direct" when the
// referer is not an absolute URL.
func RefererHost(referer string) string {
	u, err := url.Parse(referer)
	if err != nil || u.Hostname() == "" {
		return "Direct"
	}
	return u.Hostname()
}
