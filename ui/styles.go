package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papaganelli/visitlog/pkg/analytics"
)

var (
	primaryColor   = lipgloss.Color("86")  // cyan
	secondaryColor = lipgloss.Color("213") // pink
	successColor   = lipgloss.Color("46")
	warningColor   = lipgloss.Color("220")
	errorColor     = lipgloss.Color("196")
	textColor      = lipgloss.Color("252")
	dimColor       = lipgloss.Color("241")
	borderColor    = lipgloss.Color("240")
	accentColor    = lipgloss.Color("117")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Background(lipgloss.Color("235")).
			Padding(0, 2).
			MarginBottom(1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(1, 2).
			MarginRight(1).
			MarginBottom(1)

	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)
	metricLabelStyle = lipgloss.NewStyle().Foreground(dimColor).Width(20)
	metricValueStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	countStyle       = lipgloss.NewStyle().Foreground(secondaryColor)
	labelStyle       = lipgloss.NewStyle().Foreground(textColor)
	dimStyle         = lipgloss.NewStyle().Foreground(dimColor)
)

// panelWidth splits the terminal into two columns.
func panelWidth(total int) int {
	return max(total/2-4, 30)
}

func metric(label, value string) string {
	return metricLabelStyle.Render(label) + metricValueStyle.Render(value) + "\n"
}

// topPanel renders a counter's top n items as a titled panel.
func topPanel(title string, items []analytics.Item, width int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(title) + "\n")
	if len(items) == 0 {
		b.WriteString(dimStyle.Render("no data") + "\n")
	}
	for _, it := range items {
		fmt.Fprintf(&b, "%s  %s\n", countStyle.Render(fmt.Sprintf("%4d", it.Count)), labelStyle.Render(truncate(it.Key, width-15)))
	}
	return panelStyle.Width(width).Render(b.String())
}

// statusPanel renders the status code distribution with bars.
func statusPanel(codes *analytics.Counter, total, width int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("HTTP Status Codes") + "\n")
	if total == 0 {
		total = 1
	}
	for _, it := range codes.Top(5) {
		code, _ := strconv.Atoi(it.Key)
		pct := float64(it.Count) / float64(total) * 100
		fmt.Fprintf(&b, "%s %s %s\n",
			lipgloss.NewStyle().Foreground(statusColor(code)).Render(fmt.Sprintf("%3d", code)),
			createBar(int(pct), 20),
			dimStyle.Render(fmt.Sprintf("%4d (%.1f%%)", it.Count, pct)),
		)
	}
	return panelStyle.Width(width).Render(b.String())
}

func statusColor(code int) lipgloss.Color {
	switch {
	case code >= 200 && code < 300:
		return successColor
	case code >= 300 && code < 400:
		return warningColor
	default:
		return errorColor
	}
}

// createBar draws a percentage bar of the given width.
func createBar(percentage, width int) string {
	percentage = min(max(percentage, 0), 100)
	filled := width * percentage / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(borderColor).Render(bar)
}

func formatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB", float64(n)/(1024*1024*1024))
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	n = max(n, 8)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func addressItems(rows []analytics.AddressCount, n int) []analytics.Item {
	items := make([]analytics.Item, 0, min(n, len(rows)))
	for i, r := range rows {
		if i == n {
			break
		}
		items = append(items, analytics.Item{Key: r.Address, Count: r.Requests})
	}
	return items
}
