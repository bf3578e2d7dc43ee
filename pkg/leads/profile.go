package leads

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/papaganelli/visitlog/pkg/session"
)

// Conversion events recorded when a visitor reaches a key page.
const (
	EventContactVisited  = "contact_page_visited"
	EventServicesVisited = "services_page_visited"
	EventPortfolioViewed = "portfolio_viewed"
)

var conversionPages = []struct{ path, event string }{
	{"/contact", EventContactVisited},
	{"/services", EventServicesVisited},
	{"/projects", EventPortfolioViewed},
}

// SessionUpdate is one tracked session to fold into a visitor's profile.
type SessionUpdate struct {
	Address      string
	SessionID    string
	Start        time.Time
	End          time.Time
	Pages        []string // visit order, repeats allowed
	TimeOnSiteMs float64
	DeviceType   string
	Activity     Activity
}

// TimePatterns describes when and how long a visitor tends to stay.
type TimePatterns struct {
	AverageSessionDurationMs float64  `json:"averageSessionDuration"`
	PreferredVisitHours      []string `json:"preferredVisitTimes"`
	ReturnVisitor            bool     `json:"returnVisitor"`
}

// Profile accumulates a visitor's sessions. Scores reflect the most recent
// session; totals, page sets and patterns cover every folded session.
type Profile struct {
	Address             string       `json:"ip"`
	SessionID           string       `json:"sessionId"`
	FirstVisit          time.Time    `json:"firstVisit"`
	LastVisit           time.Time    `json:"lastVisit"`
	TotalVisits         int          `json:"totalVisits"`
	TotalTimeOnSiteMs   float64      `json:"totalTimeOnSite"`
	PagesVisited        []string     `json:"pagesVisited"`
	EngagementScore     float64      `json:"engagementScore"`
	LeadScore           float64      `json:"leadScore"`
	DeviceType          string       `json:"deviceType,omitempty"`
	DeviceConsistency   bool         `json:"deviceConsistency"`
	HighEngagementPages []string     `json:"highEngagementPages"`
	ConversionEvents    []string     `json:"conversionEvents"`
	TimePatterns        TimePatterns `json:"timeBasedPatterns"`
	FoldedSessions      []string     `json:"foldedSessions,omitempty"`
}

func (p Profile) clone() Profile {
	p.PagesVisited = append([]string(nil), p.PagesVisited...)
	p.HighEngagementPages = append([]string(nil), p.HighEngagementPages...)
	p.ConversionEvents = append([]string(nil), p.ConversionEvents...)
	p.TimePatterns.PreferredVisitHours = append([]string(nil), p.TimePatterns.PreferredVisitHours...)
	p.FoldedSessions = append([]string(nil), p.FoldedSessions...)
	return p
}

func (p *Profile) hasSession(id string) bool {
	for _, s := range p.FoldedSessions {
		if s == id {
			return true
		}
	}
	return false
}

// Store holds one profile per address. Updates to an address are serialized
// by that address's lock; different addresses proceed in parallel.
type Store struct {
	policy  Policy
	loc     *time.Location
	entries sync.Map // address -> *entry
}

type entry struct {
	mu      sync.Mutex
	profile *Profile
}

// NewStore creates an empty Store. loc is the zone used for preferred visit
// hours; nil means UTC.
func NewStore(policy Policy, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{policy: policy, loc: loc}
}

// Policy returns the scoring table of the store.
func (s *Store) Policy() Policy {
	return s.policy
}

func (s *Store) entry(addr string) *entry {
	v, _ := s.entries.LoadOrStore(addr, &entry{})
	return v.(*entry)
}

// Update folds u into the profile for u.Address and returns the result.
// A session already folded into the profile is ignored and reported with
// applied == false.
func (s *Store) Update(u SessionUpdate) (p Profile, applied bool, err error) {
	if u.Address == "" {
		return Profile{}, false, fmt.Errorf("session %q has no address", u.SessionID)
	}
	e := s.entry(u.Address)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.profile != nil && u.SessionID != "" && e.profile.hasSession(u.SessionID) {
		return e.profile.clone(), false, nil
	}
	next := s.fold(e.profile, u)
	e.profile = &next
	return next.clone(), true, nil
}

func (s *Store) fold(prev *Profile, u SessionUpdate) Profile {
	pages := distinct(u.Pages)
	highValue := s.policy.HighValuePages(pages)

	var p Profile
	if prev != nil {
		p = prev.clone()
	} else {
		p = Profile{Address: u.Address, FirstVisit: u.Start, DeviceConsistency: true}
	}

	p.TotalVisits++
	n := float64(p.TotalVisits)
	p.SessionID = u.SessionID
	if !u.Start.IsZero() && (p.FirstVisit.IsZero() || u.Start.Before(p.FirstVisit)) {
		p.FirstVisit = u.Start
	}
	last := u.End
	if last.IsZero() {
		last = u.Start
	}
	if last.After(p.LastVisit) {
		p.LastVisit = last
	}
	p.TotalTimeOnSiteMs += u.TimeOnSiteMs
	p.PagesVisited = union(p.PagesVisited, pages)
	p.HighEngagementPages = union(p.HighEngagementPages, s.policy.HighEngagementPages(pages))
	p.ConversionEvents = union(p.ConversionEvents, conversionEvents(pages))

	if u.DeviceType != "" {
		if p.DeviceType != "" && p.DeviceType != u.DeviceType {
			p.DeviceConsistency = false
		}
		p.DeviceType = u.DeviceType
	}

	p.EngagementScore = s.policy.EngagementScore(u.TimeOnSiteMs, len(pages), u.Activity)
	p.LeadScore = s.policy.LeadScore(p.EngagementScore, p.TotalVisits, u.TimeOnSiteMs, len(highValue))

	tp := &p.TimePatterns
	tp.AverageSessionDurationMs = (tp.AverageSessionDurationMs*(n-1) + u.TimeOnSiteMs) / n
	tp.ReturnVisitor = p.TotalVisits > 1
	if !u.Start.IsZero() {
		tp.PreferredVisitHours = union(tp.PreferredVisitHours, []string{fmt.Sprintf("%d:00", u.Start.In(s.loc).Hour())})
	}
	if u.SessionID != "" {
		p.FoldedSessions = append(p.FoldedSessions, u.SessionID)
	}
	return p
}

// Get returns a copy of the profile for addr.
func (s *Store) Get(addr string) (Profile, bool) {
	v, ok := s.entries.Load(addr)
	if !ok {
		return Profile{}, false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil {
		return Profile{}, false
	}
	return e.profile.clone(), true
}

// Profiles returns copies of every profile, highest lead score first.
func (s *Store) Profiles() []Profile {
	var out []Profile
	s.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if e.profile != nil {
			out = append(out, e.profile.clone())
		}
		e.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].LeadScore != out[j].LeadScore {
			return out[i].LeadScore > out[j].LeadScore
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Restore loads previously saved profiles, replacing any held for the same
// addresses.
func (s *Store) Restore(profiles []Profile) {
	for _, p := range profiles {
		if p.Address == "" {
			continue
		}
		e := s.entry(p.Address)
		e.mu.Lock()
		cp := p.clone()
		e.profile = &cp
		e.mu.Unlock()
	}
}

// Len returns the number of profiles.
func (s *Store) Len() int {
	n := 0
	s.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if e.profile != nil {
			n++
		}
		e.mu.Unlock()
		return true
	})
	return n
}

func conversionEvents(pages []string) []string {
	var out []string
	for _, c := range conversionPages {
		for _, p := range pages {
			if p == c.path {
				out = append(out, c.event)
				break
			}
		}
	}
	return out
}

// distinct normalizes pages and drops repeats, keeping first-visit order.
func distinct(pages []string) []string {
	seen := make(map[string]bool, len(pages))
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		p = session.PagePath(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
