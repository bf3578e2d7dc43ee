package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/papaganelli/visitlog/pkg/bot"
	"github.com/papaganelli/visitlog/pkg/parser"
	"github.com/papaganelli/visitlog/pkg/session"
)

// CountryLookup resolves an address to a country code.
type CountryLookup interface {
	Country(addr string) string
}

// AddressSummary is the rollup of one client address.
type AddressSummary struct {
	Address         string            `json:"ipAddress"`
	Country         string            `json:"country,omitempty"`
	TotalVisits     int               `json:"totalVisits"` // number of sessions
	SessionCount    int               `json:"sessions"`
	Requests        int               `json:"requests"` // raw record count
	FirstVisit      time.Time         `json:"firstVisit"`
	LastVisit       time.Time         `json:"lastVisit"`
	Pages           map[string]int    `json:"pages"`
	Browsers        map[string]int    `json:"browsers"`
	Devices         map[string]int    `json:"devices"`
	EngagementScore int               `json:"engagementScore"`
	Indicators      bot.Indicators    `json:"botIndicators"`
	Sessions        []session.Session `json:"sessionDetails"`
}

// Builder turns records into per-address summaries.
type Builder struct {
	Sessions  *session.Reconstructor
	Policy    bot.Policy
	Countries CountryLookup // optional
}

// NewBuilder returns a Builder with the default session timeout and bot policy.
func NewBuilder() *Builder {
	return &Builder{Sessions: session.New(session.DefaultTimeout), Policy: bot.DefaultPolicy()}
}

// GroupByAddress splits records by address, preserving first-seen address
// order and each address's record order.
func GroupByAddress(records []parser.Record) ([]string, map[string][]parser.Record) {
	var order []string
	groups := make(map[string][]parser.Record)
	for _, r := range records {
		if _, ok := groups[r.Address]; !ok {
			order = append(order, r.Address)
		}
		groups[r.Address] = append(groups[r.Address], r)
	}
	return order, groups
}

// Build summarizes every non-internal address in records. The result is
// ordered by last visit, most recent first.
func (b *Builder) Build(records []parser.Record) []AddressSummary {
	order, groups := GroupByAddress(records)
	out := make([]AddressSummary, 0, len(order))
	for _, addr := range order {
		if bot.IsInternalAddress(addr) {
			continue
		}
		out = append(out, b.Summarize(addr, groups[addr]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastVisit.After(out[j].LastVisit)
	})
	return out
}

// Summarize builds the summary for one address from its records.
func (b *Builder) Summarize(addr string, records []parser.Record) AddressSummary {
	recon := b.Sessions
	if recon == nil {
		recon = session.New(session.DefaultTimeout)
	}
	sessions := recon.SessionsFor(records)

	s := AddressSummary{
		Address:    addr,
		Requests:   len(records),
		Pages:      make(map[string]int),
		Browsers:   make(map[string]int),
		Devices:    make(map[string]int),
		Indicators: b.Policy.Evaluate(records),
		Sessions:   sessions,
	}
	if sessions == nil {
		s.Sessions = []session.Session{}
	}
	if b.Countries != nil {
		s.Country = b.Countries.Country(addr)
	}

	for _, r := range records {
		if s.FirstVisit.IsZero() || r.Time.Before(s.FirstVisit) {
			s.FirstVisit = r.Time
		}
		if r.Time.After(s.LastVisit) {
			s.LastVisit = r.Time
		}
		if r.UserAgent != "" {
			s.Browsers[parser.Browser(r.UserAgent)]++
			s.Devices[parser.DeviceType(r.UserAgent)]++
		}
		if session.IsActualPage(r.Path) {
			s.Pages[session.NormalizePath(r.Path)]++
		}
	}

	s.SessionCount = len(sessions)
	s.TotalVisits = len(sessions)

	var pageRequests int
	var totalSeconds float64
	for _, sess := range sessions {
		pageRequests += sess.TotalRequests
		totalSeconds += sess.DurationSeconds
	}
	var avgMinutes float64
	if len(sessions) > 0 {
		avgMinutes = totalSeconds / float64(len(sessions)) / 60
	}
	s.EngagementScore = EngagementScore(pageRequests, len(s.Pages), avgMinutes, len(sessions))
	return s
}

// EngagementScore is the 0–100 dashboard heuristic. The weights are tuned by
// hand, not fitted:
//
//	min(requests*10, 100) + uniquePages*15 + min(avgSessionMinutes*20, 50) + min(sessions*10, 30)
//
// clamped to [0, 100] and rounded.
func EngagementScore(requests, uniquePages int, avgSessionMinutes float64, sessions int) int {
	score := math.Min(float64(requests)*10, 100) +
		float64(uniquePages)*15 +
		math.Min(avgSessionMinutes*20, 50) +
		math.Min(float64(sessions)*10, 30)
	return int(math.Round(math.Max(0, math.Min(score, 100))))
}

// SeparateBotTraffic partitions summaries into humans and bots using the
// indicators computed at build time. Every input summary lands in exactly one
// of the two slices.
func SeparateBotTraffic(summaries []AddressSummary, p bot.Policy) (humans, bots []AddressSummary) {
	humans = make([]AddressSummary, 0, len(summaries))
	bots = make([]AddressSummary, 0)
	for _, s := range summaries {
		if s.Requests > 0 && s.Indicators.Count() >= p.MinIndicators {
			bots = append(bots, s)
		} else {
			humans = append(humans, s)
		}
	}
	return humans, bots
}

// AddressCount is one row of the unique-address table.
type AddressCount struct {
	Address   string    `json:"ipAddress"`
	Requests  int       `json:"count"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// UniqueAddressesWithCounts lists non-internal addresses by request count,
// highest first, ties in first-seen order.
func UniqueAddressesWithCounts(records []parser.Record) []AddressCount {
	order, groups := GroupByAddress(records)
	out := make([]AddressCount, 0, len(order))
	for _, addr := range order {
		if bot.IsInternalAddress(addr) {
			continue
		}
		c := AddressCount{Address: addr}
		for _, r := range groups[addr] {
			c.Requests++
			if c.FirstSeen.IsZero() || r.Time.Before(c.FirstSeen) {
				c.FirstSeen = r.Time
			}
			if r.Time.After(c.LastSeen) {
				c.LastSeen = r.Time
			}
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Requests > out[j].Requests
	})
	return out
}

// PageStat is one row of the page analytics table.
type PageStat struct {
	Path     string `json:"path"`
	Views    int    `json:"views"`
	Visitors int    `json:"uniqueVisitors"`
}

// FilteredPageAnalytics returns the top n actual pages (system and asset
// paths removed, query strings stripped) with view and visitor counts.
func FilteredPageAnalytics(records []parser.Record, n int) []PageStat {
	views := NewCounter()
	visitors := make(map[string]map[string]struct{})
	for _, r := range records {
		if !session.IsActualPage(r.Path) {
			continue
		}
		p := session.NormalizePath(r.Path)
		views.Add(p)
		if visitors[p] == nil {
			visitors[p] = make(map[string]struct{})
		}
		visitors[p][r.Address] = struct{}{}
	}

	top := views.Top(n)
	out := make([]PageStat, len(top))
	for i, it := range top {
		out[i] = PageStat{Path: it.Key, Views: it.Count, Visitors: len(visitors[it.Key])}
	}
	return out
}
