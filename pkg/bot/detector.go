package bot

import (
	"fmt"
	"strings"
	"time"
)

// DetectorConfig configures request-level detection for tracking beacons.
type DetectorConfig struct {
	MaxRequestsPerMinute           int
	MaxRequestsPerHour             int
	SuspiciousUserAgents           []string
	ProgressiveVerificationEnabled bool
}

// DefaultDetectorConfig returns the beacon detection defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MaxRequestsPerMinute: 60,
		MaxRequestsPerHour:   1000,
		SuspiciousUserAgents: []string{
			"bot", "crawler", "spider", "scraper", "curl", "wget", "python", "java",
			"go-http-client", "okhttp", "apache-httpclient", "postman", "insomnia",
		},
		ProgressiveVerificationEnabled: true,
	}
}

var automationTools = []string{"selenium", "webdriver", "phantomjs", "headless"}

// Hints are optional client-reported behaviour signals.
type Hints struct {
	TimeOnPageMs   *float64
	MouseMovements *int
}

// Result is the verdict for a single request.
type Result struct {
	IsBot                bool          `json:"isBot"`
	Confidence           float64       `json:"confidence"`
	Reason               string        `json:"reason"`
	RequiresVerification bool          `json:"requiresVerification"`
	RateLimitExceeded    bool          `json:"rateLimitExceeded"`
	RateLimit            RateLimitInfo `json:"rateLimit"`
}

// Detector judges individual requests by user agent and per-address rate.
// It is safe for concurrent use.
type Detector struct {
	cfg     DetectorConfig
	limiter *RateLimiter
}

// NewDetector creates a Detector with its own rate limiter.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.MaxRequestsPerMinute, cfg.MaxRequestsPerHour),
	}
}

// Limiter exposes the detector's rate limiter, e.g. for periodic cleanup.
func (d *Detector) Limiter() *RateLimiter {
	return d.limiter
}

// Detect records a request from addr and classifies it.
func (d *Detector) Detect(addr, userAgent string, hints *Hints, now time.Time) Result {
	rl := d.limiter.Hit(addr, now)
	isBot, confidence, reason := d.analyzeUserAgent(userAgent)

	if hints != nil {
		if hints.TimeOnPageMs != nil && *hints.TimeOnPageMs < 1000 {
			confidence = min(confidence+0.2, 1.0)
			reason += "; Rapid page navigation detected"
		}
		if hints.MouseMovements != nil && *hints.MouseMovements == 0 {
			confidence = min(confidence+0.1, 1.0)
			reason += "; No mouse movements detected"
		}
	}

	return Result{
		IsBot:                isBot || rl.Limited,
		Confidence:           confidence,
		Reason:               reason,
		RequiresVerification: d.cfg.ProgressiveVerificationEnabled && confidence > 0.5,
		RateLimitExceeded:    rl.Limited,
		RateLimit:            rl,
	}
}

func (d *Detector) analyzeUserAgent(userAgent string) (bool, float64, string) {
	ua := strings.ToLower(userAgent)

	for _, pattern := range d.cfg.SuspiciousUserAgents {
		if strings.Contains(ua, pattern) {
			return true, 0.9, fmt.Sprintf("Suspicious user agent pattern: %s", pattern)
		}
	}

	hasBrowser := strings.Contains(ua, "mozilla") || strings.Contains(ua, "chrome") ||
		strings.Contains(ua, "safari") || strings.Contains(ua, "firefox")
	if !hasBrowser && len(ua) < 50 {
		return true, 0.7, "Missing browser indicators and short user agent"
	}

	for _, tool := range automationTools {
		if strings.Contains(ua, tool) {
			return true, 0.95, fmt.Sprintf("Automation tool detected: %s", tool)
		}
	}

	return false, 0.1, "Appears to be legitimate browser"
}
