package session

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/papaganelli/visitlog/pkg/parser"
)

var base = time.Date(2025, 7, 25, 10, 0, 0, 0, time.UTC)

func rec(minute int, path string) parser.Record {
	return parser.Record{
		Time:    base.Add(time.Duration(minute) * time.Minute),
		Address: "203.0.113.5",
		Method:  "GET",
		Path:    path,
		Status:  200,
	}
}

func TestSessionsForSplitsOnGap(t *testing.T) {
	// 10:00, 10:05, 11:00 -> gap of 55 minutes before the third record
	records := []parser.Record{rec(60, "/contact"), rec(0, "/"), rec(5, "/services")}

	sessions := New(30 * time.Minute).SessionsFor(records)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	first := sessions[0]
	if !first.StartTime.Equal(base) || !first.EndTime.Equal(base.Add(5*time.Minute)) {
		t.Errorf("first session spans %v - %v", first.StartTime, first.EndTime)
	}
	if first.DurationSeconds != 300 {
		t.Errorf("first session duration = %v, want 300", first.DurationSeconds)
	}
	if first.TotalRequests != 2 || len(first.Pages) != 2 {
		t.Errorf("first session requests=%d pages=%v", first.TotalRequests, first.Pages)
	}

	second := sessions[1]
	if second.DurationSeconds != 0 {
		t.Errorf("second session duration = %v, want 0", second.DurationSeconds)
	}
	if !second.StartTime.Equal(base.Add(time.Hour)) {
		t.Errorf("second session start = %v", second.StartTime)
	}
	if second.Pages[0] != "/contact" {
		t.Errorf("second session pages = %v", second.Pages)
	}
}

func TestSessionsForGapBoundary(t *testing.T) {
	tests := []struct {
		name string
		gap  int
		want int
	}{
		{"gap equal to timeout extends", 30, 1},
		{"gap one minute over timeout splits", 31, 2},
		{"small gap extends", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(30 * time.Minute).SessionsFor([]parser.Record{rec(0, "/"), rec(tt.gap, "/about")})
			if len(got) != tt.want {
				t.Errorf("sessions = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSessionsForSingleRecord(t *testing.T) {
	got := New(0).SessionsFor([]parser.Record{rec(0, "/")})
	if len(got) != 1 {
		t.Fatalf("expected 1 session, got %d", len(got))
	}
	if got[0].DurationSeconds != 0 || !got[0].StartTime.Equal(got[0].EndTime) {
		t.Errorf("single record should give a zero-duration session: %+v", got[0])
	}
	if New(0).SessionsFor(nil) != nil {
		t.Error("no records should give no sessions")
	}
}

func TestSystemPathsKeepSessionAlive(t *testing.T) {
	records := []parser.Record{
		rec(0, "/"),
		rec(25, "/_next/static/chunk.js"),
		rec(50, "/api/tracking"),
		rec(75, "/services?ref=nav"),
		rec(76, "/services"),
	}
	got := New(30 * time.Minute).SessionsFor(records)
	if len(got) != 1 {
		t.Fatalf("system paths should bridge the gaps, got %d sessions", len(got))
	}
	s := got[0]
	if s.TotalRequests != 3 {
		t.Errorf("total requests = %d, want 3 actual page hits", s.TotalRequests)
	}
	if len(s.Pages) != 2 || s.Pages[0] != "/" || s.Pages[1] != "/services" {
		t.Errorf("pages = %v", s.Pages)
	}
	if s.Records != 5 {
		t.Errorf("records = %d, want 5", s.Records)
	}
}

func TestIsActualPage(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"/services", true},
		{"/projects/alpha?tab=1", true},
		{"/about.html", true},
		{"/_next/static/css/app.css", false},
		{"/api/tracking", false},
		{"/.well-known/security.txt", false},
		{"/favicon.ico", false},
		{"/robots.txt", false},
		{"/images/logo.png", false},
		{"/wp-login.php", false},
		{"*", false},
	}
	for _, tt := range tests {
		if got := IsActualPage(tt.path); got != tt.want {
			t.Errorf("IsActualPage(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestPagePath(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"/services?ref=ad", "/services"},
		{"", "/"},
		{"https://bigbraincoding.com/contact", "/contact"},
		{"https://bigbraincoding.com/services?ref=x#top", "/services"},
		{"https://bigbraincoding.com", "/"},
		{"http://localhost:3000/projects/alpha", "/projects/alpha"},
		{"/redirect?to=https://example.com/x", "/redirect"},
	}
	for _, tt := range tests {
		if got := PagePath(tt.ref); got != tt.want {
			t.Errorf("PagePath(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

// Every record lands in exactly one session; sessions are ordered and never overlap.
func TestProperty_SessionPartition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	paths := []string{"/", "/about", "/static/app.js", "/contact"}

	properties.Property("sessions partition the record set", prop.ForAll(
		func(offsets []int, timeoutMinutes int) bool {
			records := make([]parser.Record, len(offsets))
			for i, off := range offsets {
				records[i] = rec(off, paths[i%len(paths)])
			}
			sessions := New(time.Duration(timeoutMinutes) * time.Minute).SessionsFor(records)
			if len(records) == 0 {
				return len(sessions) == 0
			}

			covered := 0
			for i, s := range sessions {
				covered += s.Records
				if s.EndTime.Before(s.StartTime) {
					return false
				}
				if i > 0 && !sessions[i-1].EndTime.Before(s.StartTime) {
					return false
				}
			}
			return covered == len(records)
		},
		gen.SliceOf(gen.IntRange(0, 24*60)),
		gen.IntRange(1, 120),
	))

	properties.TestingRun(t)
}
