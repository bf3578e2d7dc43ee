package ingest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/papaganelli/visitlog/pkg/bot"
	"github.com/papaganelli/visitlog/pkg/tracking"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

var received = time.Date(2025, 7, 25, 14, 30, 5, 0, time.UTC)

func newServer(t *testing.T, perMinute int) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := bot.DefaultDetectorConfig()
	cfg.MaxRequestsPerMinute = perMinute
	s := New(Options{
		EventsDir:       filepath.Join(dir, "events"),
		FingerprintPath: filepath.Join(dir, "fingerprint_tracking.log"),
		Detector:        bot.NewDetector(cfg),
		Location:        time.UTC,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:             func() time.Time { return received },
	})
	return s, dir
}

func post(t *testing.T, h http.Handler, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.RemoteAddr = "10.0.0.2:51234"
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", chromeUA)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

const pageview = `{"timestamp":"2025-07-25T14:30:00Z","sessionId":"abcdef123456","eventType":"pageview","pageUrl":"/services","timeOnPage":4600,"engagement":{"mouseMovements":12}}`

func TestHealth(t *testing.T) {
	s, _ := newServer(t, 60)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Errorf("GET /healthz = %d", rec.Code)
	}
}

func TestTrackingEventStored(t *testing.T) {
	s, dir := newServer(t, 60)
	rec := post(t, s, "/api/tracking", pageview, map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	if body["stored"] != true || body["eventId"] == "" {
		t.Errorf("response = %v", body)
	}

	day := tracking.DayDir(filepath.Join(dir, "events"), received)
	events, stats, err := tracking.ReadDay(day)
	if err != nil {
		t.Fatalf("ReadDay() error = %v", err)
	}
	if stats.Files != 1 || len(events) != 1 {
		t.Fatalf("stats = %+v, events = %d", stats, len(events))
	}
	e := events[0]
	if e.Address != "203.0.113.5" || e.UserAgent != chromeUA || e.ID != body["eventId"] {
		t.Errorf("event = %+v", e)
	}
	if e.TimeOnPageSeconds == nil || *e.TimeOnPageSeconds != 5 {
		t.Errorf("TimeOnPageSeconds = %v", e.TimeOnPageSeconds)
	}
	if _, err := os.Stat(filepath.Join(day, "14-30-05-abcdef12.json")); err != nil {
		t.Errorf("event file name: %v", err)
	}

	// Same session in the same second gets its own file.
	post(t, s, "/api/tracking", pageview, nil)
	if _, stats, _ := tracking.ReadDay(day); stats.Files != 2 {
		t.Errorf("second event overwrote the first, files = %d", stats.Files)
	}
}

func TestTrackingEventRejected(t *testing.T) {
	s, _ := newServer(t, 60)
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"sessionId":`},
		{"missing session", `{"eventType":"pageview","pageUrl":"/"}`},
		{"unknown type", `{"sessionId":"s","eventType":"hover","pageUrl":"/"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, s, "/api/tracking", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d", rec.Code)
			}
			if decode(t, rec)["error"] == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestTrackingBotDropped(t *testing.T) {
	s, dir := newServer(t, 60)
	rec := post(t, s, "/api/tracking", pageview, map[string]string{"User-Agent": "curl/8.5.0"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode(t, rec); body["stored"] != false || body["requiresVerification"] != true {
		t.Errorf("response = %v", body)
	}
	if _, err := os.Stat(filepath.Join(dir, "events")); !os.IsNotExist(err) {
		t.Error("bot events must not be written")
	}
}

func TestTrackingRateLimited(t *testing.T) {
	s, _ := newServer(t, 2)
	for i := 0; i < 2; i++ {
		if rec := post(t, s, "/api/tracking", pageview, nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := post(t, s, "/api/tracking", pageview, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	other := post(t, s, "/api/tracking", pageview, map[string]string{"X-Forwarded-For": "198.51.100.7"})
	if other.Code != http.StatusOK {
		t.Errorf("other address should not be limited, got %d", other.Code)
	}
}

func TestFingerprintRoundTrip(t *testing.T) {
	s, _ := newServer(t, 60)
	body := `{"timestamp":"2025-07-25T14:00:00Z","visitorId":"v1","browser":"Chrome","fonts":["Arial","Inter"],"sessionId":"s1","pageUrl":"/","interactions":{"clicks":3}}`
	for _, ip := range []string{"203.0.113.5", "198.51.100.7"} {
		rec := post(t, s, "/api/tracking/fingerprint", body, map[string]string{"X-Real-IP": ip})
		if rec.Code != http.StatusOK {
			t.Fatalf("POST fingerprint status = %d", rec.Code)
		}
	}

	tests := []struct {
		query string
		code  int
		count float64
	}{
		{"", http.StatusBadRequest, 0},
		{"?visitorId=v1", http.StatusOK, 2},
		{"?ip=198.51.100.7", http.StatusOK, 1},
		{"?visitorId=v1&ip=192.0.2.1", http.StatusOK, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tracking/fingerprint"+tt.query, nil))
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			if got := decode(t, rec)["totalEntries"]; got != tt.count {
				t.Errorf("totalEntries = %v, want %v", got, tt.count)
			}
		})
	}

	entries, err := s.fingerprints.Find("v1", "203.0.113.5")
	if err != nil || len(entries) != 1 {
		t.Fatalf("Find() = %v, %v", entries, err)
	}
	if e := entries[0]; e.Fonts != "Arial,Inter" || e.Clicks != 3 || e.Platform != "unknown" {
		t.Errorf("entry = %+v", e)
	}
}

func TestSessionPrefix(t *testing.T) {
	tests := map[string]string{
		"abcdef123456": "abcdef12",
		"../../etc":    "etc",
		"":             "unknown",
		"a-b_c":        "abc",
	}
	for in, want := range tests {
		if got := sessionPrefix(in); got != want {
			t.Errorf("sessionPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
