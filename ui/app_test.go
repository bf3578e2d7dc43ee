package ui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/papaganelli/visitlog/internal/report"
	"github.com/papaganelli/visitlog/pkg/analytics"
	"github.com/papaganelli/visitlog/pkg/leads"
	"github.com/papaganelli/visitlog/pkg/metrics"
	"github.com/papaganelli/visitlog/pkg/parser"
)

var base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func record(i int, addr, path string, status int) parser.Record {
	return parser.Record{
		Time:        base.Add(time.Duration(i) * time.Second),
		Address:     addr,
		Method:      "GET",
		Path:        path,
		Status:      status,
		Bytes:       512,
		UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) Firefox/125.0",
		Referer:     "https://news.example.org/item",
		RequestTime: 0.05,
	}
}

func TestNewAppClampsRefresh(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, MinRefresh},
		{time.Second, time.Second},
		{time.Hour, MaxRefresh},
	}
	for _, tt := range tests {
		if got := NewApp("x", nil, tt.in, nil).refresh; got != tt.want {
			t.Errorf("NewApp(refresh=%v).refresh = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestModelUpdateAndView(t *testing.T) {
	stats := metrics.NewParseStats()
	m := NewApp("/var/log/nginx/access.log", nil, time.Second, stats)

	if got := m.View(); got != "Loading..." {
		t.Errorf("View() before size = %q", got)
	}
	m.Update(tea.WindowSizeMsg{Width: 140, Height: 50})

	for i, r := range []parser.Record{
		record(0, "203.0.113.5", "/pricing", 200),
		record(1, "203.0.113.5", "/contact", 200),
		record(2, "198.51.100.7", "/missing", 404),
	} {
		stats.Observe(&r)
		if _, cmd := m.Update(recordMsg(r)); cmd == nil {
			t.Fatalf("record %d: expected a command to wait for the next record", i)
		}
	}
	stats.Observe(nil)

	if m.summary.TotalRequests != 0 {
		t.Error("summary should only refresh on tick")
	}
	m.Update(tickMsg(time.Now()))
	if m.summary.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", m.summary.TotalRequests)
	}

	view := m.View()
	for _, want := range []string{"VISITLOG LIVE", "following", "/pricing", "203.0.113.5", "404", "Firefox", "news.example.org", "Skipped lines"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	m.Update(streamClosedMsg{})
	if !strings.Contains(m.View(), "stream closed") {
		t.Error("View() should show the closed stream")
	}
}

func TestModelWindowIsBounded(t *testing.T) {
	m := NewApp("x", nil, time.Second, nil)
	for i := range liveWindow + 10 {
		m.Update(recordMsg(record(i, "203.0.113.5", fmt.Sprintf("/p/%d", i), 200)))
	}
	if len(m.window) != liveWindow {
		t.Fatalf("window = %d, want %d", len(m.window), liveWindow)
	}
	if m.window[0].Path != "/p/10" {
		t.Errorf("oldest kept = %s, want /p/10", m.window[0].Path)
	}
}

func TestModelQuitKeys(t *testing.T) {
	m := NewApp("x", nil, time.Second, nil)
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyEsc},
	} {
		if _, cmd := m.Update(key); cmd == nil {
			t.Errorf("key %q should quit", key.String())
		}
	}
}

func TestWaitForRecord(t *testing.T) {
	ch := make(chan parser.Record, 1)
	ch <- record(0, "203.0.113.5", "/", 200)
	if msg := waitForRecord(ch)(); msg.(recordMsg).Path != "/" {
		t.Errorf("waitForRecord() = %#v", msg)
	}
	close(ch)
	if _, ok := waitForRecord(ch)().(streamClosedMsg); !ok {
		t.Error("closed channel should yield streamClosedMsg")
	}
}

func TestHelpers(t *testing.T) {
	bytes := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range bytes {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := truncate("/short", 20); got != "/short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("/a/very/long/path/indeed", 12); got != "/a/very/l..." {
		t.Errorf("truncate long = %q", got)
	}

	for _, pct := range []int{-5, 0, 50, 100, 150} {
		bar := createBar(pct, 10)
		if n := strings.Count(bar, "█") + strings.Count(bar, "░"); n != 10 {
			t.Errorf("createBar(%d) has %d cells", pct, n)
		}
	}
	if got := strings.Count(createBar(50, 10), "█"); got != 5 {
		t.Errorf("createBar(50) filled = %d", got)
	}

	items := addressItems([]analytics.AddressCount{{Address: "a", Requests: 3}, {Address: "b", Requests: 1}}, 1)
	if len(items) != 1 || items[0].Key != "a" || items[0].Count != 3 {
		t.Errorf("addressItems() = %+v", items)
	}
}

func TestRenderReport(t *testing.T) {
	records := []parser.Record{
		record(0, "203.0.113.5", "/pricing", 200),
		record(1, "203.0.113.5", "/about", 301),
	}
	b := analytics.NewBuilder()
	humans, bots := analytics.SeparateBotTraffic(b.Build(records), b.Policy)
	rep := &report.LogReport{
		Status:          report.StatusOK,
		Timezone:        "UTC",
		Sources:         []string{"access.log"},
		Errors:          []report.SourceError{{Source: "s3://logs/old.gz", Error: "timeout"}},
		Summary:         analytics.Summarize(records),
		UniqueAddresses: analytics.UniqueAddressesWithCounts(records),
		Pages:           analytics.FilteredPageAnalytics(records, 10),
		Humans:          humans,
		Bots:            bots,
	}

	out := RenderReport(rep, 0)
	for _, want := range []string{"VISITLOG REPORT", "/pricing", "203.0.113.5", "Human Visitors", "s3://logs/old.gz: timeout"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderReport() missing %q", want)
		}
	}

	empty := &report.LogReport{Status: report.StatusNoData, Summary: analytics.Summarize(nil)}
	if out := RenderReport(empty, 80); !strings.Contains(out, "No log data") {
		t.Errorf("RenderReport(no data) = %q", out)
	}
}

func TestRenderMarketing(t *testing.T) {
	rep := &report.MarketingReport{
		Status: report.StatusOK,
		Day:    "2025-03-14",
		Qualifications: []leads.Qualification{
			{Address: "203.0.113.5", IsQualified: true, LeadScore: 82.5, Urgency: leads.UrgencyHigh, NextBestAction: "Send proposal"},
		},
		SalesIntelligence: leads.SalesIntelligence{
			MarketInsights: leads.MarketInsights{
				TopPerformingPages: []string{"/services"},
				DevicePreferences:  map[string]int{"desktop": 2, "mobile": 1},
			},
		},
	}
	out := RenderMarketing(rep, 120)
	for _, want := range []string{"VISITLOG LEADS", "203.0.113.5", "82.5", "high", "/services", "desktop"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderMarketing() missing %q", want)
		}
	}
	if out := RenderMarketing(&report.MarketingReport{Status: report.StatusNoData}, 0); !strings.Contains(out, "No visitor profiles") {
		t.Errorf("RenderMarketing(no data) = %q", out)
	}
}
