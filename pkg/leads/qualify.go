package leads

import (
	"slices"
	"strings"

	"github.com/papaganelli/visitlog/pkg/analytics"
)

// Urgency tiers.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Qualification is the verdict for one visitor.
type Qualification struct {
	Address             string  `json:"ip"`
	IsQualified         bool    `json:"isQualified"`
	LeadScore           float64 `json:"leadScore"`
	QualificationReason string  `json:"qualificationReason"`
	RecommendedAction   string  `json:"recommendedAction"`
	Urgency             string  `json:"urgency"`
	NextBestAction      string  `json:"nextBestAction"`
}

// Qualify judges a profile against the policy.
func (p Policy) Qualify(prof Profile) Qualification {
	return Qualification{
		Address:             prof.Address,
		IsQualified:         prof.LeadScore >= p.QualifiedScore,
		LeadScore:           prof.LeadScore,
		QualificationReason: p.reason(prof),
		RecommendedAction:   recommendedAction(prof),
		Urgency:             p.Urgency(prof.LeadScore),
		NextBestAction:      nextBestAction(prof),
	}
}

// Qualify judges the stored profile for addr.
func (s *Store) Qualify(addr string) Qualification {
	prof, ok := s.Get(addr)
	if !ok {
		return Qualification{
			Address:             addr,
			QualificationReason: "No visitor profile found",
			RecommendedAction:   "Continue monitoring",
			Urgency:             UrgencyLow,
			NextBestAction:      "Wait for more engagement",
		}
	}
	return s.policy.Qualify(prof)
}

func (p Policy) reason(prof Profile) string {
	var reasons []string
	if prof.EngagementScore > p.HighEngagementScore {
		reasons = append(reasons, "High engagement")
	}
	if prof.TotalVisits > 2 {
		reasons = append(reasons, "Return visitor")
	}
	if len(prof.HighEngagementPages) > 0 {
		reasons = append(reasons, "Viewed key pages")
	}
	if len(prof.ConversionEvents) > 0 {
		reasons = append(reasons, "Conversion events triggered")
	}
	if len(reasons) == 0 {
		return "Limited engagement"
	}
	return strings.Join(reasons, ", ")
}

func recommendedAction(prof Profile) string {
	switch {
	case slices.Contains(prof.ConversionEvents, EventContactVisited):
		return "Follow up on contact form submission"
	case slices.Contains(prof.HighEngagementPages, "/services"):
		return "Send personalized service proposal"
	case slices.Contains(prof.HighEngagementPages, "/projects"):
		return "Share relevant case studies"
	}
	return "Send welcome email with value proposition"
}

func nextBestAction(prof Profile) string {
	switch {
	case !slices.Contains(prof.ConversionEvents, EventContactVisited):
		return "Encourage contact page visit"
	case !slices.Contains(prof.HighEngagementPages, "/services"):
		return "Direct to services page"
	case !slices.Contains(prof.HighEngagementPages, "/projects"):
		return "Showcase portfolio"
	}
	return "Maintain relationship with regular updates"
}

func conversionOpportunity(prof Profile) string {
	switch {
	case !slices.Contains(prof.ConversionEvents, EventContactVisited):
		return "Contact page conversion"
	case !slices.Contains(prof.HighEngagementPages, "/services"):
		return "Service interest qualification"
	case !slices.Contains(prof.HighEngagementPages, "/projects"):
		return "Portfolio engagement"
	}
	return "General engagement improvement"
}

// Opportunity is a visitor close to qualifying.
type Opportunity struct {
	Visitor     Profile `json:"visitor"`
	Opportunity string  `json:"opportunity"`
	Confidence  float64 `json:"confidence"`
}

// MarketInsights aggregates behaviour across all profiles.
type MarketInsights struct {
	TopPerformingPages []string       `json:"topPerformingPages"`
	CommonUserJourneys [][]string     `json:"commonUserJourneys"`
	DevicePreferences  map[string]int `json:"devicePreferences"`
	TimeBasedTrends    map[string]int `json:"timeBasedTrends"`
}

// SalesIntelligence is the sales-facing view over a set of profiles.
type SalesIntelligence struct {
	HighValueVisitors       []Profile      `json:"highValueVisitors"`
	ConversionOpportunities []Opportunity  `json:"conversionOpportunities"`
	MarketInsights          MarketInsights `json:"marketInsights"`
}

const (
	topPages    = 5
	topJourneys = 3
	journeySep  = " -> "
)

// SalesIntelligence splits profiles into qualified visitors and near-miss
// opportunities and summarizes their pages, journeys, devices and hours.
func (p Policy) SalesIntelligence(profiles []Profile) SalesIntelligence {
	si := SalesIntelligence{
		HighValueVisitors:       []Profile{},
		ConversionOpportunities: []Opportunity{},
		MarketInsights: MarketInsights{
			DevicePreferences: map[string]int{},
			TimeBasedTrends:   map[string]int{},
		},
	}

	pages := analytics.NewCounter()
	journeys := analytics.NewCounter()
	for _, prof := range profiles {
		switch {
		case prof.LeadScore >= p.QualifiedScore:
			si.HighValueVisitors = append(si.HighValueVisitors, prof)
		case prof.LeadScore >= p.OpportunityScore:
			si.ConversionOpportunities = append(si.ConversionOpportunities, Opportunity{
				Visitor:     prof,
				Opportunity: conversionOpportunity(prof),
				Confidence:  prof.LeadScore,
			})
		}

		for _, page := range prof.PagesVisited {
			pages.Add(page)
		}
		if len(prof.PagesVisited) > 0 {
			journeys.Add(strings.Join(prof.PagesVisited, journeySep))
		}
		if prof.DeviceType != "" {
			si.MarketInsights.DevicePreferences[prof.DeviceType]++
		}
		for _, h := range prof.TimePatterns.PreferredVisitHours {
			si.MarketInsights.TimeBasedTrends[h]++
		}
	}

	si.MarketInsights.TopPerformingPages = make([]string, 0, topPages)
	for _, it := range pages.Top(topPages) {
		si.MarketInsights.TopPerformingPages = append(si.MarketInsights.TopPerformingPages, it.Key)
	}
	si.MarketInsights.CommonUserJourneys = make([][]string, 0, topJourneys)
	for _, it := range journeys.Top(topJourneys) {
		si.MarketInsights.CommonUserJourneys = append(si.MarketInsights.CommonUserJourneys, strings.Split(it.Key, journeySep))
	}
	return si
}
