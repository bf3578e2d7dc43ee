// Package report assembles dashboards from log sources, event directories and
// the lead store. Unreadable sources never fail a report; they are listed in
// its Errors and the report status reflects whether any data was found.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/papaganelli/visitlog/internal/config"
	"github.com/papaganelli/visitlog/internal/source"
	"github.com/papaganelli/visitlog/pkg/analytics"
	"github.com/papaganelli/visitlog/pkg/detector"
	"github.com/papaganelli/visitlog/pkg/leads"
	"github.com/papaganelli/visitlog/pkg/metrics"
	"github.com/papaganelli/visitlog/pkg/parser"
	"github.com/papaganelli/visitlog/pkg/session"
)

// Status tells the presentation layer whether a report has anything to show.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNoData   Status = "no_data"
	StatusNotFound Status = "not_found"
)

// SourceError records a source that could not be read.
type SourceError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Options select and filter the records of a log report.
type Options struct {
	LogType   string // access, tracking, ip_tracking or all
	StartDate string // YYYY-MM-DD in the engine timezone, inclusive
	EndDate   string
	TopN      int
}

// Engine builds reports. Fields may be replaced after New, before first use.
type Engine struct {
	Parser    *parser.Parser
	Builder   *analytics.Builder
	Layout    detector.Layout
	Remote    []source.Source // extra access logs, e.g. S3 objects
	EventsDir string
	Leads     *leads.Store
	Timeout   time.Duration // per source
	Logger    *slog.Logger
	Now       func() time.Time
}

// New wires an engine from configuration. countries may be nil.
func New(cfg *config.Config, countries analytics.CountryLookup, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location()
	return &Engine{
		Parser: parser.New(loc),
		Builder: &analytics.Builder{
			Sessions:  session.New(cfg.SessionTimeout()),
			Policy:    cfg.BotPolicy(),
			Countries: countries,
		},
		Layout:    cfg.Layout(),
		EventsDir: cfg.EventsDir(),
		Leads:     leads.NewStore(leads.DefaultPolicy(), loc),
		Timeout:   cfg.ReadTimeout(),
		Logger:    logger,
		Now:       time.Now,
	}
}

// LogReport is the access-log dashboard.
type LogReport struct {
	Status          Status                     `json:"status"`
	GeneratedAt     time.Time                  `json:"generatedAt"`
	Timezone        string                     `json:"timezone"`
	Sources         []string                   `json:"sources"`
	Errors          []SourceError              `json:"errors,omitempty"`
	Parse           metrics.ParseSnapshot      `json:"parse"`
	Summary         analytics.LogSummary       `json:"summary"`
	UniqueAddresses []analytics.AddressCount   `json:"uniqueIps"`
	Pages           []analytics.PageStat       `json:"pageAnalytics"`
	Humans          []analytics.AddressSummary `json:"humanTraffic"`
	Bots            []analytics.AddressSummary `json:"botTraffic"`

	records []parser.Record
}

// Records returns the filtered records the report was built from.
func (r *LogReport) Records() []parser.Record { return r.records }

// Logs reads the selected logs and builds the dashboard. It fails only for
// invalid options; missing or unreadable logs yield StatusNoData.
func (e *Engine) Logs(ctx context.Context, opts Options) (*LogReport, error) {
	rep, err := e.load(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(rep.records) == 0 {
		rep.Status = StatusNoData
	}

	topN := opts.TopN
	if topN <= 0 {
		topN = analytics.DefaultTopN
	}
	rep.Summary = analytics.Summarize(rep.records)
	rep.UniqueAddresses = analytics.UniqueAddressesWithCounts(rep.records)
	rep.Pages = analytics.FilteredPageAnalytics(rep.records, topN)
	rep.Humans, rep.Bots = analytics.SeparateBotTraffic(e.Builder.Build(rep.records), e.Builder.Policy)

	e.logger().Info("log report built",
		slog.String("status", string(rep.Status)),
		slog.Int("records", len(rep.records)),
		slog.Int("sources", len(rep.Sources)),
		slog.Int("errors", len(rep.Errors)))
	return rep, nil
}

func (e *Engine) load(ctx context.Context, opts Options) (*LogReport, error) {
	sources, errs, err := e.sources(opts.LogType)
	if err != nil {
		return nil, err
	}

	rep := &LogReport{
		Status:      StatusOK,
		GeneratedAt: e.now(),
		Timezone:    e.Parser.Location().String(),
		Sources:     []string{},
		Errors:      errs,
	}
	stats := metrics.NewParseStats()
	for _, src := range sources {
		lines, err := source.ReadLines(ctx, src, e.Timeout)
		if err != nil {
			e.logger().Warn("skipping unreadable source", slog.String("source", src.Name()), slog.String("error", err.Error()))
			rep.Errors = append(rep.Errors, SourceError{Source: src.Name(), Error: err.Error()})
			continue
		}
		batch := e.Parser.ParseLines(lines)
		stats.AddBatch(batch)
		if batch.Skipped > 0 {
			e.logger().Debug("skipped unparseable lines", slog.String("source", src.Name()), slog.Int("skipped", batch.Skipped))
		}
		rep.Sources = append(rep.Sources, src.Name())
		rep.records = append(rep.records, batch.Records...)
	}
	rep.Parse = stats.Snapshot()

	slices.SortStableFunc(rep.records, func(a, b parser.Record) int {
		return a.Time.Compare(b.Time)
	})
	if opts.StartDate != "" || opts.EndDate != "" {
		start, end := e.openRange(rep.records, opts.StartDate, opts.EndDate)
		filtered, err := analytics.FilterByDateRange(rep.records, start, end, e.Parser.Location())
		if err != nil {
			return nil, err
		}
		rep.records = filtered
	}
	return rep, nil
}

// openRange fills a missing range bound from the first or last of the sorted
// records.
func (e *Engine) openRange(records []parser.Record, start, end string) (string, string) {
	loc := e.Parser.Location()
	if n := len(records); n > 0 {
		if start == "" {
			start = records[0].Time.In(loc).Format(time.DateOnly)
		}
		if end == "" {
			end = records[n-1].Time.In(loc).Format(time.DateOnly)
		}
	}
	if start == "" {
		start = end
	}
	if end == "" {
		end = start
	}
	return start, end
}

// sources resolves a log type to readable sources. Files that were asked for
// by type but do not exist are reported as errors.
func (e *Engine) sources(logType string) ([]source.Source, []SourceError, error) {
	files, err := detector.Select(e.Layout.Files(), logType)
	if err != nil {
		return nil, nil, err
	}
	var (
		out  []source.Source
		errs []SourceError
	)
	for _, f := range files {
		if !f.Exists {
			errs = append(errs, SourceError{Source: f.Path, Error: source.ErrNotFound.Error()})
			continue
		}
		out = append(out, source.File{Path: f.Path})
	}
	if logType == "" || logType == detector.LogTypeAll || logType == detector.KindAccess {
		out = append(out, e.Remote...)
	}
	return out, errs, nil
}

// AddressReport is the per-address view.
type AddressReport struct {
	Status  Status                    `json:"status"`
	Address string                    `json:"ipAddress"`
	Errors  []SourceError             `json:"errors,omitempty"`
	Summary *analytics.AddressSummary `json:"summary,omitempty"`
	Records []parser.Record           `json:"logs"`
}

// AddressDetail returns the records of addr within the optional date range,
// and their summary. An address with no records is StatusNotFound.
func (e *Engine) AddressDetail(ctx context.Context, addr string, opts Options) (*AddressReport, error) {
	if addr == "" {
		return nil, errors.New("address is required")
	}
	rep, err := e.load(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := &AddressReport{Address: addr, Errors: rep.Errors, Records: analytics.ByAddress(rep.records, addr)}
	switch {
	case len(rep.records) == 0:
		out.Status = StatusNoData
	case len(out.Records) == 0:
		out.Status = StatusNotFound
	default:
		out.Status = StatusOK
		s := e.Builder.Summarize(addr, out.Records)
		out.Summary = &s
	}
	if out.Records == nil {
		out.Records = []parser.Record{}
	}
	return out, nil
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().In(e.Parser.Location())
	}
	return e.Now().In(e.Parser.Location())
}

// ParseDay parses a YYYY-MM-DD day in the engine timezone. An empty string is
// today.
func (e *Engine) ParseDay(s string) (time.Time, error) {
	if s == "" {
		return e.now(), nil
	}
	d, err := time.ParseInLocation(time.DateOnly, s, e.Parser.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return d, nil
}
