// Package ui renders visitlog dashboards in the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/papaganelli/visitlog/pkg/analytics"
	"github.com/papaganelli/visitlog/pkg/metrics"
	"github.com/papaganelli/visitlog/pkg/parser"
)

// Refresh bounds for the live dashboard.
const (
	MinRefresh = 100 * time.Millisecond
	MaxRefresh = 10 * time.Second
)

// liveWindow caps the records kept for the running summary.
const liveWindow = 5000

type tickMsg time.Time

type recordMsg parser.Record

type streamClosedMsg struct{}

// Model is the live follow-mode dashboard.
type Model struct {
	source  string
	records <-chan parser.Record
	refresh time.Duration
	rates   *metrics.RateTracker
	parse   *metrics.ParseStats // optional

	window   []parser.Record // newest last
	summary  analytics.LogSummary
	visitors []analytics.Item
	closed   bool

	width     int
	height    int
	startTime time.Time
}

// NewApp creates the live dashboard for records followed from source. parse
// may be nil.
func NewApp(source string, records <-chan parser.Record, refresh time.Duration, parse *metrics.ParseStats) *Model {
	refresh = min(max(refresh, MinRefresh), MaxRefresh)
	return &Model{
		source:    source,
		records:   records,
		refresh:   refresh,
		rates:     metrics.NewRateTracker(10*time.Second, 60),
		parse:     parse,
		summary:   analytics.Summarize(nil),
		startTime: time.Now(),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(m.refresh), waitForRecord(m.records))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.refreshSummary()
		return m, tickCmd(m.refresh)

	case recordMsg:
		m.add(parser.Record(msg))
		return m, waitForRecord(m.records)

	case streamClosedMsg:
		m.closed = true
		m.refreshSummary()
	}
	return m, nil
}

func (m *Model) refreshSummary() {
	m.summary = analytics.Summarize(m.window)
	m.visitors = addressItems(analytics.UniqueAddressesWithCounts(m.window), 6)
}

func (m *Model) add(r parser.Record) {
	m.window = append(m.window, r)
	if len(m.window) > liveWindow {
		m.window = append(m.window[:0:0], m.window[len(m.window)-liveWindow:]...)
	}
	m.rates.Record(r.Time)
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	w := panelWidth(m.width)

	state := "following"
	if m.closed {
		state = "stream closed"
	}
	header := titleStyle.Render("VISITLOG LIVE") + "\n" +
		dimStyle.Render(fmt.Sprintf("%s  •  %s  •  up %s  •  press 'q' to quit",
			m.source, state, time.Since(m.startTime).Round(time.Second)))

	s := m.summary
	rates := m.rates.Stats()
	overview := headerStyle.Render("Overview") + "\n" +
		metric("Requests (window)", fmt.Sprintf("%d", s.TotalRequests)) +
		metric("Unique visitors", fmt.Sprintf("%d", s.UniqueAddresses.Len())) +
		metric("Avg response", fmt.Sprintf("%.3fs", s.AverageResponseTimeSeconds)) +
		metric("Bytes sent", formatBytes(s.TotalBytesSent)) +
		metric("Rate now / peak", fmt.Sprintf("%.2f / %.2f req/s", rates.Current, rates.Peak)) +
		metric("Trend", fmt.Sprintf("%+.1f%%", rates.TrendChange))
	if m.parse != nil {
		snap := m.parse.Snapshot()
		overview += metric("Skipped lines", fmt.Sprintf("%d (%.1f%%)", snap.Skipped, snap.SkipRate()*100))
	}

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Width(w).Render(overview),
		statusPanel(s.StatusCodes, s.TotalRequests, w))
	middle := lipgloss.JoinHorizontal(lipgloss.Top,
		topPanel("Top Paths", s.TopPaths.Top(6), w),
		topPanel("Top Visitors", m.visitors, w))
	lower := lipgloss.JoinHorizontal(lipgloss.Top,
		topPanel("Browsers", s.TopUserAgents.Top(6), w),
		topPanel("Referrers", s.TopReferrers.Top(6), w))

	return lipgloss.JoinVertical(lipgloss.Left, header, top, middle, lower, m.recentPanel())
}

func (m *Model) recentPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Recent Activity") + "\n")
	maxPath := max(m.width-60, 20)
	for i := len(m.window) - 1; i >= 0 && i >= len(m.window)-7; i-- {
		r := m.window[i]
		fmt.Fprintf(&b, "%s  %-15s  %-6s  %s  %s\n",
			dimStyle.Render(r.Time.Format("15:04:05")),
			labelStyle.Render(r.Address),
			r.Method,
			lipgloss.NewStyle().Foreground(statusColor(r.Status)).Bold(true).Render(fmt.Sprintf("%3d", r.Status)),
			labelStyle.Render(truncate(r.Path, maxPath)))
	}
	return panelStyle.Width(max(m.width-4, 30)).Render(b.String())
}

// Run starts the program on the alternate screen.
func (m *Model) Run() error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForRecord(records <-chan parser.Record) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-records
		if !ok {
			return streamClosedMsg{}
		}
		return recordMsg(r)
	}
}
