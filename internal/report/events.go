package report

import (
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/papaganelli/visitlog/pkg/leads"
	"github.com/papaganelli/visitlog/pkg/tracking"
)

// MarketingReport is the lead-scoring view of one day of tracking events.
type MarketingReport struct {
	Status            Status                  `json:"status"`
	Day               string                  `json:"day"`
	Read              tracking.ReadStats      `json:"read"`
	SessionsApplied   int                     `json:"sessionsApplied"`
	Profiles          []leads.Profile         `json:"visitorProfiles"`
	Qualifications    []leads.Qualification   `json:"leadQualifications"`
	SalesIntelligence leads.SalesIntelligence `json:"salesIntelligence"`
}

// Marketing folds the sessions of day's event files into the lead store and
// reports every profile it holds. Sessions already folded are not counted
// again, so a day may be re-read safely.
func (e *Engine) Marketing(day time.Time) (*MarketingReport, error) {
	dir := tracking.DayDir(e.EventsDir, day)
	rep := &MarketingReport{Status: StatusOK, Day: day.Format(time.DateOnly)}

	events, stats, err := tracking.ReadDay(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		e.logger().Info("no events for day", slog.String("dir", dir))
	case err != nil:
		return nil, err
	}
	rep.Read = stats

	for _, u := range tracking.SessionUpdates(events) {
		_, applied, err := e.Leads.Update(u)
		if err != nil {
			e.logger().Debug("session not folded", slog.String("session", u.SessionID), slog.String("error", err.Error()))
			continue
		}
		if applied {
			rep.SessionsApplied++
		}
	}

	policy := e.Leads.Policy()
	rep.Profiles = e.Leads.Profiles()
	rep.Qualifications = make([]leads.Qualification, 0, len(rep.Profiles))
	for _, p := range rep.Profiles {
		rep.Qualifications = append(rep.Qualifications, policy.Qualify(p))
	}
	rep.SalesIntelligence = policy.SalesIntelligence(rep.Profiles)
	if len(rep.Profiles) == 0 {
		rep.Status = StatusNoData
	}

	e.logger().Info("marketing report built",
		slog.String("day", rep.Day),
		slog.Int("events", len(events)),
		slog.Int("applied", rep.SessionsApplied),
		slog.Int("profiles", len(rep.Profiles)))
	return rep, nil
}

// TrackingReport is the per-address rollup of one day of tracking events.
type TrackingReport struct {
	Status Status             `json:"status"`
	Day    string             `json:"day"`
	Read   tracking.ReadStats `json:"read"`
	tracking.DaySummary
}

// Tracking summarizes day's event files.
func (e *Engine) Tracking(day time.Time) (*TrackingReport, error) {
	dir := tracking.DayDir(e.EventsDir, day)
	events, stats, err := tracking.ReadDay(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	rep := &TrackingReport{
		Status:     StatusOK,
		Day:        day.Format(time.DateOnly),
		Read:       stats,
		DaySummary: tracking.SummarizeDay(events),
	}
	if len(events) == 0 {
		rep.Status = StatusNoData
	}
	return rep, nil
}

// FingerprintReport summarizes the fingerprint log, optionally restricted to
// one visitor or address.
type FingerprintReport struct {
	Status  Status                      `json:"status"`
	Skipped int                         `json:"skipped"`
	Summary tracking.FingerprintSummary `json:"analytics"`
}

// Fingerprints reads the configured fingerprint log. visitorID and addr
// filter the entries when set.
func (e *Engine) Fingerprints(visitorID, addr string) (*FingerprintReport, error) {
	lf := e.Layout.Fingerprint()
	entries, skipped, err := tracking.ReadFingerprintFile(lf.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if visitorID != "" || addr != "" {
		entries = tracking.FilterFingerprints(entries, visitorID, addr)
	}
	rep := &FingerprintReport{
		Status:  StatusOK,
		Skipped: skipped,
		Summary: tracking.SummarizeFingerprints(entries),
	}
	if len(entries) == 0 {
		rep.Status = StatusNoData
	}
	return rep, nil
}
