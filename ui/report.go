package ui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papaganelli/visitlog/internal/report"
	"github.com/papaganelli/visitlog/pkg/analytics"
	"github.com/papaganelli/visitlog/pkg/leads"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 120

// RenderReport draws a log report as static panels.
func RenderReport(rep *report.LogReport, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	w := panelWidth(width)
	s := rep.Summary

	header := titleStyle.Render("VISITLOG REPORT") + "\n" +
		dimStyle.Render(fmt.Sprintf("%s → %s (%s)  •  %d sources",
			s.TimeRange.Start, s.TimeRange.End, rep.Timezone, len(rep.Sources)))
	if rep.Status != report.StatusOK {
		return header + "\n\n" + dimStyle.Render("No log data for the selected range.") + errorLines(rep.Errors)
	}

	overview := headerStyle.Render("Overview") + "\n" +
		metric("Requests", fmt.Sprintf("%d", s.TotalRequests)) +
		metric("Unique visitors", fmt.Sprintf("%d", s.UniqueAddresses.Len())) +
		metric("Humans / bots", fmt.Sprintf("%d / %d", len(rep.Humans), len(rep.Bots))) +
		metric("Avg response", fmt.Sprintf("%.3fs", s.AverageResponseTimeSeconds)) +
		metric("Bytes sent", formatBytes(s.TotalBytesSent)) +
		metric("Skipped lines", fmt.Sprintf("%d (%.1f%%)", rep.Parse.Skipped, rep.Parse.SkipRate()*100))

	pages := make([]analytics.Item, 0, len(rep.Pages))
	for _, p := range rep.Pages {
		pages = append(pages, analytics.Item{Key: p.Path, Count: p.Views})
	}

	rows := []string{
		header,
		lipgloss.JoinHorizontal(lipgloss.Top,
			panelStyle.Width(w).Render(overview),
			statusPanel(s.StatusCodes, s.TotalRequests, w)),
		lipgloss.JoinHorizontal(lipgloss.Top,
			topPanel("Top Pages", pages, w),
			topPanel("Top Visitors", addressItems(rep.UniqueAddresses, 10), w)),
		lipgloss.JoinHorizontal(lipgloss.Top,
			topPanel("Browsers", s.TopUserAgents.Top(8), w),
			topPanel("Referrers", s.TopReferrers.Top(8), w)),
		visitorTable("Human Visitors", rep.Humans, width),
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...) + errorLines(rep.Errors)
}

func visitorTable(title string, rows []analytics.AddressSummary, width int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(title) + "\n")
	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("no data") + "\n")
	}
	for i, r := range rows {
		if i == 15 {
			fmt.Fprintf(&b, "%s\n", dimStyle.Render(fmt.Sprintf("... %d more", len(rows)-i)))
			break
		}
		fmt.Fprintf(&b, "%-39s %-3s %s visits %s requests  engagement %s\n",
			labelStyle.Render(r.Address),
			dimStyle.Render(r.Country),
			countStyle.Render(fmt.Sprintf("%3d", r.TotalVisits)),
			countStyle.Render(fmt.Sprintf("%4d", r.Requests)),
			createBar(r.EngagementScore, 10))
	}
	return panelStyle.Width(max(width-4, 30)).Render(b.String())
}

func errorLines(errs []report.SourceError) string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, e := range errs {
		b.WriteString(lipgloss.NewStyle().Foreground(warningColor).Render("! "+e.Source+": "+e.Error) + "\n")
	}
	return b.String()
}

// RenderMarketing draws the lead-scoring view.
func RenderMarketing(rep *report.MarketingReport, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	header := titleStyle.Render("VISITLOG LEADS") + "\n" +
		dimStyle.Render(fmt.Sprintf("%s  •  %d event files  •  %d sessions folded",
			rep.Day, rep.Read.Files, rep.SessionsApplied))
	if rep.Status != report.StatusOK {
		return header + "\n\n" + dimStyle.Render("No visitor profiles yet.") + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Qualification") + "\n")
	for _, q := range rep.Qualifications {
		mark := dimStyle.Render("·")
		if q.IsQualified {
			mark = lipgloss.NewStyle().Foreground(successColor).Render("✓")
		}
		fmt.Fprintf(&b, "%s %-39s %s %s %s\n",
			mark,
			labelStyle.Render(q.Address),
			metricValueStyle.Render(fmt.Sprintf("%5.1f", q.LeadScore)),
			lipgloss.NewStyle().Foreground(urgencyColor(q.Urgency)).Render(fmt.Sprintf("%-6s", q.Urgency)),
			dimStyle.Render(truncate(q.NextBestAction, 40)))
	}

	insights := rep.SalesIntelligence.MarketInsights
	var pages strings.Builder
	pages.WriteString(headerStyle.Render("Top Performing Pages") + "\n")
	for i, p := range insights.TopPerformingPages {
		fmt.Fprintf(&pages, "%s  %s\n", countStyle.Render(fmt.Sprintf("%2d.", i+1)), labelStyle.Render(p))
	}
	devices := analytics.NewCounter()
	for _, d := range slices.Sorted(maps.Keys(insights.DevicePreferences)) {
		devices.AddN(d, insights.DevicePreferences[d])
	}

	w := panelWidth(width)
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		panelStyle.Width(max(width-4, 30)).Render(b.String()),
		lipgloss.JoinHorizontal(lipgloss.Top,
			panelStyle.Width(w).Render(pages.String()),
			topPanel("Devices", devices.Top(5), w)),
	)
}

func urgencyColor(u string) lipgloss.Color {
	switch u {
	case leads.UrgencyHigh:
		return errorColor
	case leads.UrgencyMedium:
		return warningColor
	}
	return dimColor
}
