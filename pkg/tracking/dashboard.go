package tracking

import (
	"sort"
	"time"

	"github.com/papaganelli/visitlog/pkg/leads"
	"github.com/papaganelli/visitlog/pkg/session"
)

// RecentEvents is how many of the latest events a day summary keeps.
const RecentEvents = 100

// AddressActivity is one address's tracked activity over a day.
type AddressActivity struct {
	Address             string         `json:"ip"`
	TotalVisits         int            `json:"totalVisits"` // events received
	UniqueSessions      int            `json:"uniqueSessions"`
	Pages               map[string]int `json:"pages"`
	Devices             map[string]int `json:"devices"`
	Browsers            map[string]int `json:"browsers"`
	AverageTimeOnPageMs float64        `json:"averageTimeOnPage"`
	FirstVisit          time.Time      `json:"firstVisit"`
	LastVisit           time.Time      `json:"lastVisit"`
}

// DaySummary is the tracking dashboard for one day of events.
type DaySummary struct {
	Addresses      []AddressActivity `json:"summary"`
	RecentEvents   []Event           `json:"events"`
	TotalVisitors  int               `json:"totalVisitors"`
	TotalSessions  int               `json:"totalSessions"`
	TotalPageViews int               `json:"totalPageViews"`
}

// SummarizeDay rolls events up per address, busiest address first. Events
// are expected in timestamp order, as ReadDay returns them.
func SummarizeDay(events []Event) DaySummary {
	type acc struct {
		AddressActivity
		sessions map[string]struct{}
		timed    int
		total    float64
	}
	var order []string
	byAddr := map[string]*acc{}
	sessions := map[string]struct{}{}

	for _, e := range events {
		sessions[e.SessionID] = struct{}{}
		addr := e.Address
		if addr == "" {
			addr = unknown
		}
		a, ok := byAddr[addr]
		if !ok {
			a = &acc{
				AddressActivity: AddressActivity{
					Address:    addr,
					Pages:      map[string]int{},
					Devices:    map[string]int{},
					Browsers:   map[string]int{},
					FirstVisit: e.Timestamp,
				},
				sessions: map[string]struct{}{},
			}
			byAddr[addr] = a
			order = append(order, addr)
		}

		a.TotalVisits++
		a.sessions[e.SessionID] = struct{}{}
		if e.Timestamp.Before(a.FirstVisit) {
			a.FirstVisit = e.Timestamp
		}
		if e.Timestamp.After(a.LastVisit) {
			a.LastVisit = e.Timestamp
		}
		a.Pages[session.PagePath(e.PageURL)]++
		a.Devices[orUnknown(e.DeviceInfo.DeviceType)]++
		a.Browsers[orUnknown(e.DeviceInfo.Browser)]++
		if t := e.TimeOnPage(); t > 0 {
			a.total += t
			a.timed++
		}
	}

	out := DaySummary{
		Addresses:      make([]AddressActivity, 0, len(order)),
		RecentEvents:   []Event{},
		TotalSessions:  len(sessions),
		TotalPageViews: len(events),
	}
	for _, addr := range order {
		a := byAddr[addr]
		a.UniqueSessions = len(a.sessions)
		if a.timed > 0 {
			a.AverageTimeOnPageMs = a.total / float64(a.timed)
		}
		out.Addresses = append(out.Addresses, a.AddressActivity)
	}
	sort.SliceStable(out.Addresses, func(i, j int) bool {
		return out.Addresses[i].TotalVisits > out.Addresses[j].TotalVisits
	})
	out.TotalVisitors = len(out.Addresses)

	recent := events
	if len(recent) > RecentEvents {
		recent = recent[len(recent)-RecentEvents:]
	}
	out.RecentEvents = append(out.RecentEvents, recent...)
	return out
}

// SessionUpdates groups events by session id, in first-seen order, into the
// updates the lead store folds into visitor profiles. Engagement counters
// are running totals, so a session keeps the highest value reported.
func SessionUpdates(events []Event) []leads.SessionUpdate {
	var order []string
	byID := map[string]*leads.SessionUpdate{}

	for _, e := range events {
		u, ok := byID[e.SessionID]
		if !ok {
			u = &leads.SessionUpdate{SessionID: e.SessionID, Start: e.Timestamp, End: e.Timestamp}
			byID[e.SessionID] = u
			order = append(order, e.SessionID)
		}
		if u.Address == "" {
			u.Address = e.Address
		}
		if e.DeviceInfo.DeviceType != "" {
			u.DeviceType = e.DeviceInfo.DeviceType
		}
		if e.Timestamp.Before(u.Start) {
			u.Start = e.Timestamp
		}
		if e.Timestamp.After(u.End) {
			u.End = e.Timestamp
		}
		u.Pages = append(u.Pages, session.PagePath(e.PageURL))
		u.TimeOnSiteMs += e.TimeOnPage()

		if e.ScrollDepth != nil {
			u.Activity.ScrollDepth = max(u.Activity.ScrollDepth, *e.ScrollDepth)
		}
		if en := e.Engagement; en != nil {
			u.Activity.Clicks = max(u.Activity.Clicks, en.Clicks)
			u.Activity.MouseMovements = max(u.Activity.MouseMovements, en.MouseMovements)
			u.Activity.ScrollEvents = max(u.Activity.ScrollEvents, en.ScrollEvents)
		}
	}

	out := make([]leads.SessionUpdate, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}
