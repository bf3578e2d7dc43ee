package tracking

import (
	"sort"
	"strings"
	"time"
)

const unknown = "unknown"

// RecentFingerprints is how many of the newest entries a summary keeps.
const RecentFingerprints = 50

// Interactions are the counters a fingerprint beacon carries.
type Interactions struct {
	Clicks           int `json:"clicks"`
	Scrolls          int `json:"scrolls"`
	FormInteractions int `json:"formInteractions"`
}

// Fingerprint is the payload posted by the browser fingerprinting beacon.
type Fingerprint struct {
	Timestamp        time.Time    `json:"timestamp"`
	VisitorID        string       `json:"visitorId"`
	Address          string       `json:"ipAddress"`
	UserAgent        string       `json:"userAgent"`
	Browser          string       `json:"browser"`
	DeviceType       string       `json:"deviceType"`
	ScreenResolution string       `json:"screenResolution"`
	Timezone         string       `json:"timezone"`
	Language         string       `json:"language"`
	Platform         string       `json:"platform"`
	CPUCores         int          `json:"cpuCores"`
	MemorySize       float64      `json:"memorySize"`
	Canvas           string       `json:"canvas"`
	WebGL            string       `json:"webgl"`
	Audio            string       `json:"audio"`
	Fonts            []string     `json:"fonts"`
	Plugins          []string     `json:"plugins"`
	SessionID        string       `json:"sessionId"`
	PageURL          string       `json:"pageUrl"`
	Referrer         string       `json:"referrer"`
	TimeOnPageMs     float64      `json:"timeOnPage"`
	ScrollDepth      float64      `json:"scrollDepth"`
	Interactions     Interactions `json:"interactions"`
}

// FingerprintEntry is one line of the fingerprint log.
type FingerprintEntry struct {
	Timestamp        time.Time `json:"timestamp"`
	VisitorID        string    `json:"visitorId"`
	Address          string    `json:"ipAddress"`
	UserAgent        string    `json:"userAgent"`
	Browser          string    `json:"browser"`
	DeviceType       string    `json:"deviceType"`
	ScreenResolution string    `json:"screenResolution"`
	Timezone         string    `json:"timezone"`
	Language         string    `json:"language"`
	Platform         string    `json:"platform"`
	CPUCores         int       `json:"cpuCores"`
	MemorySize       float64   `json:"memorySize"`
	Canvas           string    `json:"canvas"`
	WebGL            string    `json:"webgl"`
	Audio            string    `json:"audio"`
	Fonts            string    `json:"fonts"`   // comma separated
	Plugins          string    `json:"plugins"` // comma separated
	SessionID        string    `json:"sessionId"`
	PageURL          string    `json:"pageUrl"`
	Referrer         string    `json:"referrer"`
	TimeOnPageMs     float64   `json:"timeOnPage"`
	ScrollDepth      float64   `json:"scrollDepth"`
	Clicks           int       `json:"clicks"`
	Scrolls          int       `json:"scrolls"`
	FormInteractions int       `json:"formInteractions"`
}

// Entry flattens a fingerprint into a log entry. Missing strings become
// "unknown"; a missing timestamp becomes now.
func (f Fingerprint) Entry(now time.Time) FingerprintEntry {
	ts := f.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return FingerprintEntry{
		Timestamp:        ts.UTC(),
		VisitorID:        orUnknown(f.VisitorID),
		Address:          orUnknown(f.Address),
		UserAgent:        orUnknown(f.UserAgent),
		Browser:          orUnknown(f.Browser),
		DeviceType:       orUnknown(f.DeviceType),
		ScreenResolution: orUnknown(f.ScreenResolution),
		Timezone:         orUnknown(f.Timezone),
		Language:         orUnknown(f.Language),
		Platform:         orUnknown(f.Platform),
		CPUCores:         f.CPUCores,
		MemorySize:       f.MemorySize,
		Canvas:           f.Canvas,
		WebGL:            f.WebGL,
		Audio:            f.Audio,
		Fonts:            strings.Join(f.Fonts, ","),
		Plugins:          strings.Join(f.Plugins, ","),
		SessionID:        orUnknown(f.SessionID),
		PageURL:          orUnknown(f.PageURL),
		Referrer:         orUnknown(f.Referrer),
		TimeOnPageMs:     f.TimeOnPageMs,
		ScrollDepth:      f.ScrollDepth,
		Clicks:           f.Interactions.Clicks,
		Scrolls:          f.Interactions.Scrolls,
		FormInteractions: f.Interactions.FormInteractions,
	}
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

// InteractionStats are per-entry averages.
type InteractionStats struct {
	AverageClicks           float64 `json:"averageClicks"`
	AverageScrolls          float64 `json:"averageScrolls"`
	AverageFormInteractions float64 `json:"averageFormInteractions"`
}

// FingerprintSummary is the rollup of a fingerprint log.
type FingerprintSummary struct {
	TotalVisitors      int                `json:"totalVisitors"`
	UniqueVisitors     int                `json:"uniqueVisitors"`
	TotalSessions      int                `json:"totalSessions"`
	AverageTimeOnSite  float64            `json:"averageTimeOnSite"`
	AverageScrollDepth float64            `json:"averageScrollDepth"`
	Browsers           map[string]int     `json:"browsers"`
	Devices            map[string]int     `json:"devices"`
	Timezones          map[string]int     `json:"timezones"`
	Languages          map[string]int     `json:"languages"`
	Platforms          map[string]int     `json:"platforms"`
	ScreenResolutions  map[string]int     `json:"screenResolutions"`
	TopPages           map[string]int     `json:"topPages"`
	TopReferrers       map[string]int     `json:"topReferrers"`
	InteractionStats   InteractionStats   `json:"interactionStats"`
	RecentVisitors     []FingerprintEntry `json:"recentVisitors"`
}

// SummarizeFingerprints aggregates fingerprint log entries.
func SummarizeFingerprints(entries []FingerprintEntry) FingerprintSummary {
	s := FingerprintSummary{
		Browsers:          map[string]int{},
		Devices:           map[string]int{},
		Timezones:         map[string]int{},
		Languages:         map[string]int{},
		Platforms:         map[string]int{},
		ScreenResolutions: map[string]int{},
		TopPages:          map[string]int{},
		TopReferrers:      map[string]int{},
		RecentVisitors:    []FingerprintEntry{},
	}
	if len(entries) == 0 {
		return s
	}

	visitors := map[string]struct{}{}
	sessions := map[string]struct{}{}
	var timeOnSite, scroll, clicks, scrolls, forms float64
	for _, e := range entries {
		visitors[e.VisitorID] = struct{}{}
		sessions[e.SessionID] = struct{}{}
		s.Browsers[e.Browser]++
		s.Devices[e.DeviceType]++
		s.Timezones[e.Timezone]++
		s.Languages[e.Language]++
		s.Platforms[e.Platform]++
		s.ScreenResolutions[e.ScreenResolution]++
		s.TopPages[e.PageURL]++
		if e.Referrer != "" && e.Referrer != unknown {
			s.TopReferrers[e.Referrer]++
		}
		timeOnSite += e.TimeOnPageMs
		scroll += e.ScrollDepth
		clicks += float64(e.Clicks)
		scrolls += float64(e.Scrolls)
		forms += float64(e.FormInteractions)
	}

	n := float64(len(entries))
	s.TotalVisitors = len(visitors)
	s.UniqueVisitors = len(visitors)
	s.TotalSessions = len(sessions)
	s.AverageTimeOnSite = timeOnSite / n
	s.AverageScrollDepth = scroll / n
	s.InteractionStats = InteractionStats{
		AverageClicks:           clicks / n,
		AverageScrolls:          scrolls / n,
		AverageFormInteractions: forms / n,
	}

	recent := append([]FingerprintEntry(nil), entries...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp.After(recent[j].Timestamp)
	})
	if len(recent) > RecentFingerprints {
		recent = recent[:RecentFingerprints]
	}
	s.RecentVisitors = recent
	return s
}

// FilterFingerprints keeps entries matching visitorID and addr; an empty
// argument matches everything.
func FilterFingerprints(entries []FingerprintEntry, visitorID, addr string) []FingerprintEntry {
	out := make([]FingerprintEntry, 0, len(entries))
	for _, e := range entries {
		if visitorID != "" && e.VisitorID != visitorID {
			continue
		}
		if addr != "" && e.Address != addr {
			continue
		}
		out = append(out, e)
	}
	return out
}
