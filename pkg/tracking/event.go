// Package tracking defines the client-side tracking event and fingerprint
// schemas and reads them back from disk.
package tracking

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEvent is returned for events that fail validation.
var ErrInvalidEvent = errors.New("invalid tracking event")

// EventType is the kind of interaction a tracking event reports.
type EventType string

const (
	EventPageview     EventType = "pageview"
	EventClick        EventType = "click"
	EventScroll       EventType = "scroll"
	EventFormSubmit   EventType = "form_submit"
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventError        EventType = "error"
	EventPerformance  EventType = "performance"
	EventEngagement   EventType = "engagement"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventPageview, EventClick, EventScroll, EventFormSubmit, EventSessionStart,
		EventSessionEnd, EventError, EventPerformance, EventEngagement:
		return true
	}
	return false
}

// DeviceInfo is what the browser reports about itself.
type DeviceInfo struct {
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browserVersion,omitempty"`
	OS             string `json:"os,omitempty"`
	OSVersion      string `json:"osVersion,omitempty"`
	DeviceType     string `json:"deviceType"` // desktop, mobile or tablet
	ScreenWidth    int    `json:"screenWidth,omitempty"`
	ScreenHeight   int    `json:"screenHeight,omitempty"`
	ViewportWidth  int    `json:"viewportWidth,omitempty"`
	ViewportHeight int    `json:"viewportHeight,omitempty"`
	Language       string `json:"language,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

// Performance holds page timing metrics in milliseconds (CLS is unitless).
type Performance struct {
	PageLoadTime           float64 `json:"pageLoadTime"`
	DOMContentLoaded       float64 `json:"domContentLoaded"`
	FirstContentfulPaint   float64 `json:"firstContentfulPaint"`
	LargestContentfulPaint float64 `json:"largestContentfulPaint"`
	CumulativeLayoutShift  float64 `json:"cumulativeLayoutShift"`
	FirstInputDelay        float64 `json:"firstInputDelay"`
	TimeToInteractive      float64 `json:"timeToInteractive"`
}

// Engagement holds the client's running interaction counters for a page.
type Engagement struct {
	MouseMovements   int     `json:"mouseMovements"`
	KeyStrokes       int     `json:"keyStrokes"`
	ScrollEvents     int     `json:"scrollEvents"`
	Clicks           int     `json:"clicks"`
	FormInteractions int     `json:"formInteractions"`
	TimeOnPage       float64 `json:"timeOnPage,omitempty"`
	BounceRate       bool    `json:"bounceRate"`
	ReturnVisitor    bool    `json:"returnVisitor"`
}

// Event is one client-emitted tracking event. Address is filled in by the
// server that receives it.
type Event struct {
	ID                string         `json:"eventId,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	SessionID         string         `json:"sessionId"`
	EventType         EventType      `json:"eventType"`
	PageURL           string         `json:"pageUrl"`
	Referrer          string         `json:"referrer,omitempty"`
	Address           string         `json:"ipAddress,omitempty"`
	UserAgent         string         `json:"userAgent,omitempty"`
	DeviceInfo        DeviceInfo     `json:"deviceInfo"`
	EventData         map[string]any `json:"eventData,omitempty"`
	TimeOnPageMs      *float64       `json:"timeOnPage,omitempty"`
	TimeOnPageSeconds *int64         `json:"timeOnPageSeconds,omitempty"`
	ScrollDepth       *float64       `json:"scrollDepth,omitempty"`
	Performance       *Performance   `json:"performance,omitempty"`
	Engagement        *Engagement    `json:"engagement,omitempty"`
}

// Validate checks the fields every event must carry.
func (e *Event) Validate() error {
	switch {
	case e.SessionID == "":
		return fmt.Errorf("%w: missing sessionId", ErrInvalidEvent)
	case !e.EventType.Valid():
		return fmt.Errorf("%w: unknown eventType %q", ErrInvalidEvent, e.EventType)
	case e.PageURL == "":
		return fmt.Errorf("%w: missing pageUrl", ErrInvalidEvent)
	case e.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	return nil
}

// TimeOnPage returns the reported time on page in milliseconds, or 0.
func (e *Event) TimeOnPage() float64 {
	if e.TimeOnPageMs == nil || *e.TimeOnPageMs < 0 {
		return 0
	}
	return *e.TimeOnPageMs
}
