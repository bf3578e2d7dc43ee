package bot

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/papaganelli/visitlog/pkg/parser"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

func records(n int, agents ...string) []parser.Record {
	out := make([]parser.Record, n)
	start := time.Date(2025, 7, 25, 10, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = parser.Record{
			Time:      start.Add(time.Duration(i) * time.Second),
			Address:   "203.0.113.9",
			Path:      "/",
			Status:    200,
			UserAgent: agents[i%len(agents)],
		}
	}
	return out
}

func TestIsBotCrawlerWithVolume(t *testing.T) {
	agents := make([]string, 0, 8)
	for i := 0; i < 7; i++ {
		agents = append(agents, fmt.Sprintf("%s/%d", chromeUA, i))
	}
	agents = append(agents, "ExampleCrawler/1.0")

	recs := records(150, agents...)
	in := DefaultPolicy().Evaluate(recs)
	if !in.HighVolume || !in.ManyUserAgents || !in.CrawlerAgent {
		t.Fatalf("unexpected indicators: %+v", in)
	}
	if !IsBot(recs) {
		t.Error("150 requests, 8 agents and a crawler should classify as bot")
	}
}

func TestIsBotHumanTraffic(t *testing.T) {
	tests := []struct {
		name string
		recs []parser.Record
	}{
		{"single browser", records(20, chromeUA)},
		{"two indicators only", records(150, "Googlebot/2.1")},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsBot(tt.recs) {
				t.Errorf("IsBot() = true, want false (indicators %+v)", DefaultPolicy().Evaluate(tt.recs))
			}
		})
	}
}

func TestPolicyThreshold(t *testing.T) {
	recs := records(150, "Googlebot/2.1")
	p := DefaultPolicy()
	p.MinIndicators = 2
	if !p.IsBot(recs) {
		t.Error("volume + bot agent should satisfy a threshold of 2")
	}
}

func TestIsInternalAddress(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.5", true},
		{"172.32.0.5", false},
		{"192.168.1.10", true},
		{"::1", true},
		{"::ffff:10.0.0.1", true},
		{"localhost", true},
		{"203.0.113.5", false},
		{"2001:db8::1", false},
		{"unknown", false},
	}
	for _, tt := range tests {
		if got := IsInternalAddress(tt.addr); got != tt.want {
			t.Errorf("IsInternalAddress(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestRateLimiterWindows(t *testing.T) {
	l := NewRateLimiter(2, 5)
	now := time.Date(2025, 7, 25, 10, 0, 0, 0, time.UTC)

	l.Hit("a", now)
	l.Hit("a", now.Add(time.Second))
	info := l.Hit("a", now.Add(2*time.Second))
	if !info.Limited || info.RequestsInLastMinute != 3 {
		t.Fatalf("third hit within a minute should be limited: %+v", info)
	}

	info = l.Hit("a", now.Add(61*time.Second))
	if info.Limited || info.RequestsInLastMinute != 1 || info.RequestsInLastHour != 4 {
		t.Fatalf("minute window should reset, hour window should not: %+v", info)
	}
	if !info.ResetTime.Equal(now.Add(time.Hour)) {
		t.Errorf("reset time = %v", info.ResetTime)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	l := NewRateLimiter(60, 1000)
	now := time.Date(2025, 7, 25, 10, 0, 0, 0, time.UTC)
	l.Hit("old", now)
	l.Hit("fresh", now.Add(50*time.Minute))

	if n := l.Cleanup(now.Add(61 * time.Minute)); n != 1 {
		t.Fatalf("Cleanup() evicted %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
	info := l.Hit("old", now.Add(62*time.Minute))
	if info.RequestsInLastHour != 1 {
		t.Errorf("evicted address should start over, got %+v", info)
	}
}

func TestRateLimiterConcurrentHits(t *testing.T) {
	l := NewRateLimiter(1<<30, 1<<30)
	now := time.Date(2025, 7, 25, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Hit("shared", now)
			}
		}()
	}
	wg.Wait()

	if info := l.Hit("shared", now); info.RequestsInLastHour != 1001 {
		t.Errorf("expected 1001 counted hits, got %d", info.RequestsInLastHour)
	}
}

func TestDetectorUserAgents(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		ua         string
		isBot      bool
		confidence float64
	}{
		{"browser", chromeUA, false, 0.1},
		{"curl", "curl/8.0.1", true, 0.9},
		{"short unknown", "FooClient/1.0", true, 0.7},
		{"headless", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 HeadlessChrome/120.0 Safari/537.36", true, 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(DefaultDetectorConfig())
			res := d.Detect("198.51.100.1", tt.ua, nil, now)
			if res.IsBot != tt.isBot || res.Confidence != tt.confidence {
				t.Errorf("Detect(%q) = %+v", tt.ua, res)
			}
		})
	}
}

func TestDetectorHintsAndRateLimit(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.MaxRequestsPerMinute = 1
	d := NewDetector(cfg)
	now := time.Now()

	fast, still := 200.0, 0
	res := d.Detect("198.51.100.2", chromeUA, &Hints{TimeOnPageMs: &fast, MouseMovements: &still}, now)
	if res.IsBot {
		t.Fatalf("first request from a browser should pass: %+v", res)
	}
	if res.Confidence < 0.39 || res.Confidence > 0.41 || res.RequiresVerification {
		t.Errorf("hints should raise confidence to 0.4: %+v", res)
	}

	res = d.Detect("198.51.100.2", chromeUA, nil, now)
	if !res.IsBot || !res.RateLimitExceeded {
		t.Errorf("second request within a minute should exceed the limit: %+v", res)
	}
}

// Adding distinct user agents never lowers the indicator count.
func TestProperty_IndicatorMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	policy := DefaultPolicy()

	properties.Property("more user agents never reduce indicators", prop.ForAll(
		func(base []string, extra []string) bool {
			if len(base) == 0 {
				base = []string{chromeUA}
			}
			before := records(len(base), base...)
			after := append(append([]parser.Record{}, before...), records(len(extra)+1, append(extra, "agent-extra")...)...)
			b, a := policy.Evaluate(before), policy.Evaluate(after)
			if a.Count() < b.Count() {
				return false
			}
			return !policy.IsBot(before) || policy.IsBot(after)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
