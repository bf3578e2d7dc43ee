package parser

import "strings"

// Device types inferred from a user agent.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// IsCrawlerAgent reports whether ua self-identifies as an automated client.
func IsCrawlerAgent(ua string) bool {
	ua = strings.ToLower(ua)
	return strings.Contains(ua, "bot") || strings.Contains(ua, "crawler") || strings.Contains(ua, "spider")
}

// Browser extracts a normalized browser name from a user agent.
// Edge and Opera are checked before Chrome since their agents also carry "chrome".
func Browser(ua string) string {
	if ua == "" {
		return "Unknown"
	}
	l := strings.ToLower(ua)
	switch {
	case IsCrawlerAgent(l):
		return "Bot"
	case strings.Contains(l, "edg/") || strings.Contains(l, "edga/") || strings.Contains(l, "edgios/") || strings.Contains(l, "edge/"):
		return "Edge"
	case strings.Contains(l, "opr/") || strings.Contains(l, "opera"):
		return "Opera"
	case strings.Contains(l, "chrome") || strings.Contains(l, "crios"):
		return "Chrome"
	case strings.Contains(l, "firefox") || strings.Contains(l, "fxios"):
		return "Firefox"
	case strings.Contains(l, "safari"):
		return "Safari"
	}
	return "Other"
}

// DeviceType infers desktop, mobile, tablet, bot or unknown from a user agent.
func DeviceType(ua string) string {
	if ua == "" {
		return DeviceUnknown
	}
	l := strings.ToLower(ua)
	switch {
	case IsCrawlerAgent(l):
		return DeviceBot
	case strings.Contains(l, "ipad") || strings.Contains(l, "tablet"):
		return DeviceTablet
	case strings.Contains(l, "android") && !strings.Contains(l, "mobile"):
		return DeviceTablet
	case strings.Contains(l, "mobi") || strings.Contains(l, "iphone") || strings.Contains(l, "android"):
		return DeviceMobile
	}
	return DeviceDesktop
}

// OS infers the operating system family from a user agent.
func OS(ua string) string {
	l := strings.ToLower(ua)
	switch {
	case l == "":
		return "Unknown"
	case strings.Contains(l, "iphone") || strings.Contains(l, "ipad") || strings.Contains(l, "ios"):
		return "iOS"
	case strings.Contains(l, "android"):
		return "Android"
	case strings.Contains(l, "windows"):
		return "Windows"
	case strings.Contains(l, "mac os x") || strings.Contains(l, "macintosh"):
		return "macOS"
	case strings.Contains(l, "linux"):
		return "Linux"
	}
	return "Other"
}
