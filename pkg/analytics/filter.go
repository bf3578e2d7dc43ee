package analytics

import (
	"fmt"
	"time"

	"github.com/papaganelli/visitlog/pkg/parser"
)

const dateLayout = "2006-01-02"

// FilterByDateRange keeps records from the start of startDate through the end
// of endDate (23:59:59.999) in loc. Dates use the YYYY-MM-DD form.
func FilterByDateRange(records []parser.Record, startDate, endDate string, loc *time.Location) ([]parser.Record, error) {
	if loc == nil {
		loc = parser.DefaultLocation()
	}
	start, err := time.ParseInLocation(dateLayout, startDate, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	endDay, err := time.ParseInLocation(dateLayout, endDate, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	end := endDay.AddDate(0, 0, 1).Add(-time.Millisecond)

	return filter(records, func(r parser.Record) bool {
		return !r.Time.Before(start) && !r.Time.After(end)
	}), nil
}

// ByAddress keeps the records of one client address.
func ByAddress(records []parser.Record, addr string) []parser.Record {
	return filter(records, func(r parser.Record) bool { return r.Address == addr })
}

// ByPath keeps the records for one exact request path.
func ByPath(records []parser.Record, path string) []parser.Record {
	return filter(records, func(r parser.Record) bool { return r.Path == path })
}

func filter(records []parser.Record, keep func(parser.Record) bool) []parser.Record {
	out := make([]parser.Record, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
