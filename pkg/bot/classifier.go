// Package bot separates automated traffic from human visitors.
package bot

import (
	"strings"

	"github.com/papaganelli/visitlog/pkg/parser"
)

// Policy holds the classification thresholds. The values were picked
// empirically; they are tunable policy, not derived limits.
type Policy struct {
	MaxUserAgents    int // more distinct user agents than this is suspicious
	MaxDeviceTypes   int
	MaxBrowsers      int
	MaxHumanRequests int
	MinIndicators    int // indicators needed to call an address a bot
}

// DefaultPolicy returns the thresholds used by the analytics dashboards.
func DefaultPolicy() Policy {
	return Policy{
		MaxUserAgents:    5,
		MaxDeviceTypes:   3,
		MaxBrowsers:      3,
		MaxHumanRequests: 100,
		MinIndicators:    3,
	}
}

// Indicators is the per-address evidence used by the classifier.
type Indicators struct {
	ManyUserAgents  bool `json:"manyUserAgents"`
	ManyDeviceTypes bool `json:"manyDeviceTypes"`
	ManyBrowsers    bool `json:"manyBrowsers"`
	HighVolume      bool `json:"highVolume"`
	BotAgent        bool `json:"botAgent"`
	CrawlerAgent    bool `json:"crawlerAgent"`

	UserAgents  int `json:"userAgents"`
	DeviceTypes int `json:"deviceTypes"`
	Browsers    int `json:"browsers"`
	Requests    int `json:"requests"`
}

// Count returns how many indicators are set.
func (in Indicators) Count() int {
	n := 0
	for _, b := range []bool{in.ManyUserAgents, in.ManyDeviceTypes, in.ManyBrowsers, in.HighVolume, in.BotAgent, in.CrawlerAgent} {
		if b {
			n++
		}
	}
	return n
}

// Evaluate computes the indicators for one address's records.
func (p Policy) Evaluate(records []parser.Record) Indicators {
	agents := make(map[string]struct{})
	devices := make(map[string]struct{})
	browsers := make(map[string]struct{})
	var in Indicators

	for _, r := range records {
		agents[r.UserAgent] = struct{}{}
		devices[parser.DeviceType(r.UserAgent)] = struct{}{}
		browsers[parser.Browser(r.UserAgent)] = struct{}{}

		ua := strings.ToLower(r.UserAgent)
		if strings.Contains(ua, "bot") {
			in.BotAgent = true
		}
		if strings.Contains(ua, "crawler") || strings.Contains(ua, "spider") {
			in.CrawlerAgent = true
		}
	}

	in.UserAgents = len(agents)
	in.DeviceTypes = len(devices)
	in.Browsers = len(browsers)
	in.Requests = len(records)
	in.ManyUserAgents = in.UserAgents > p.MaxUserAgents
	in.ManyDeviceTypes = in.DeviceTypes > p.MaxDeviceTypes
	in.ManyBrowsers = in.Browsers > p.MaxBrowsers
	in.HighVolume = in.Requests > p.MaxHumanRequests
	return in
}

// IsBot classifies one address's records. An address is a bot when at least
// MinIndicators indicators hold.
func (p Policy) IsBot(records []parser.Record) bool {
	if len(records) == 0 {
		return false
	}
	return p.Evaluate(records).Count() >= p.MinIndicators
}

// IsBot classifies records with DefaultPolicy.
func IsBot(records []parser.Record) bool {
	return DefaultPolicy().IsBot(records)
}
