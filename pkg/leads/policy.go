// Package leads scores visitors for sales readiness from their tracked sessions.
package leads

import (
	"math"
	"strings"
	"time"
)

// Policy is the weight and threshold table behind the engagement and lead
// scores. The defaults were chosen by hand and are meant to be recalibrated
// here rather than in the scoring code.
type Policy struct {
	// Engagement score (0..1).
	EngagementTimeWeight     float64
	EngagementPagesWeight    float64
	EngagementActivityWeight float64
	TimeOnSiteTarget         time.Duration
	PagesTarget              int
	ScrollDepthTarget        float64 // percent
	ClicksTarget             int
	MouseMovementsTarget     int

	// Lead score (0..1).
	LeadEngagementWeight float64
	LeadVisitsWeight     float64
	LeadTimeWeight       float64
	LeadHighValueWeight  float64
	VisitsTarget         int
	LeadTimeTarget       time.Duration
	HighValueTarget      int

	QualifiedScore      float64
	HighUrgencyScore    float64
	OpportunityScore    float64 // lower bound for conversion opportunities
	HighEngagementScore float64 // engagement above this is called out as a reason

	HighValuePatterns  []string
	EngagementKeywords []string
}

// DefaultPolicy returns the scoring table used by the marketing reports.
func DefaultPolicy() Policy {
	return Policy{
		EngagementTimeWeight:     0.40,
		EngagementPagesWeight:    0.30,
		EngagementActivityWeight: 0.30,
		TimeOnSiteTarget:         5 * time.Minute,
		PagesTarget:              3,
		ScrollDepthTarget:        100,
		ClicksTarget:             10,
		MouseMovementsTarget:     50,

		LeadEngagementWeight: 0.30,
		LeadVisitsWeight:     0.20,
		LeadTimeWeight:       0.25,
		LeadHighValueWeight:  0.25,
		VisitsTarget:         5,
		LeadTimeTarget:       10 * time.Minute,
		HighValueTarget:      3,

		QualifiedScore:      0.6,
		HighUrgencyScore:    0.8,
		OpportunityScore:    0.4,
		HighEngagementScore: 0.7,

		HighValuePatterns:  []string{"/services", "/projects", "/contact", "/about", "/pricing", "/quote"},
		EngagementKeywords: []string{"contact", "services", "projects", "about", "pricing"},
	}
}

// Activity is the interaction data of one session.
type Activity struct {
	ScrollDepth    float64 `json:"scrollDepth"` // deepest scroll, percent
	Clicks         int     `json:"clicks"`
	MouseMovements int     `json:"mouseMovements"`
	ScrollEvents   int     `json:"scrollEvents"`
}

// EngagementScore scores one session's time on site, distinct pages and activity.
func (p Policy) EngagementScore(timeOnSiteMs float64, pages int, a Activity) float64 {
	activity := (ratio(a.ScrollDepth, p.ScrollDepthTarget) +
		ratio(float64(a.Clicks), float64(p.ClicksTarget)) +
		ratio(float64(a.MouseMovements), float64(p.MouseMovementsTarget))) / 3

	score := p.EngagementTimeWeight*ratio(timeOnSiteMs, ms(p.TimeOnSiteTarget)) +
		p.EngagementPagesWeight*ratio(float64(pages), float64(p.PagesTarget)) +
		p.EngagementActivityWeight*activity
	return clamp01(score)
}

// LeadScore combines engagement, visit count, time investment and high-value
// pages into the 0..1 lead score.
func (p Policy) LeadScore(engagement float64, totalVisits int, timeOnSiteMs float64, highValuePages int) float64 {
	score := p.LeadEngagementWeight*clamp01(engagement) +
		p.LeadVisitsWeight*ratio(float64(totalVisits), float64(p.VisitsTarget)) +
		p.LeadTimeWeight*ratio(timeOnSiteMs, ms(p.LeadTimeTarget)) +
		p.LeadHighValueWeight*ratio(float64(highValuePages), float64(p.HighValueTarget))
	return clamp01(score)
}

// HighValuePages returns the pages matching a high-value pattern.
func (p Policy) HighValuePages(pages []string) []string {
	return matching(pages, p.HighValuePatterns)
}

// HighEngagementPages returns the pages naming an engagement keyword.
func (p Policy) HighEngagementPages(pages []string) []string {
	return matching(pages, p.EngagementKeywords)
}

// Urgency maps a lead score to its urgency tier.
func (p Policy) Urgency(leadScore float64) string {
	switch {
	case leadScore >= p.HighUrgencyScore:
		return UrgencyHigh
	case leadScore >= p.QualifiedScore:
		return UrgencyMedium
	}
	return UrgencyLow
}

func matching(pages, substrings []string) []string {
	var out []string
	for _, page := range pages {
		for _, s := range substrings {
			if strings.Contains(page, s) {
				out = append(out, page)
				break
			}
		}
	}
	return out
}

// ratio returns v/target capped to [0, 1]. A non-positive target yields 0.
func ratio(v, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return clamp01(v / target)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}

func ms(d time.Duration) float64 {
	return float64(d.Milliseconds())
}
