package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
	_ "time/tzdata" // target zones must resolve on hosts without a zoneinfo database
)

// DefaultTimezone is the analytics timezone used when none is configured.
const DefaultTimezone = "America/Kentucky/Louisville"

// TimestampLayout renders normalized timestamps. The numeric offset is always explicit.
const TimestampLayout = "2006-01-02T15:04:05.000-07:00"

var months = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March, "Apr": time.April,
	"May": time.May, "Jun": time.June, "Jul": time.July, "Aug": time.August,
	"Sep": time.September, "Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// example: 25/Jul/2025:15:10:42 +0000
var timestampRegex = regexp.MustCompile(`^(\d{1,2})/([A-Za-z]{3})/(\d{4}):(\d{1,2}):(\d{1,2}):(\d{1,2}) ([+-])(\d{2})(\d{2})$`)

// DefaultLocation returns the DefaultTimezone location, or a fixed UTC-5 zone
// if the zone database cannot provide it.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// ParseTimestamp parses an nginx time_local value and re-expresses the same
// instant in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	m := timestampRegex.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("invalid nginx timestamp %q", s)
	}
	month, ok := months[m[2]]
	if !ok {
		return time.Time{}, fmt.Errorf("invalid month %q in timestamp %q", m[2], s)
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second, _ := strconv.Atoi(m[6])
	offH, _ := strconv.Atoi(m[8])
	offM, _ := strconv.Atoi(m[9])
	if day < 1 || day > 31 || hour > 23 || minute > 59 || second > 60 || offM > 59 {
		return time.Time{}, fmt.Errorf("timestamp %q out of range", s)
	}

	offset := offH*3600 + offM*60
	if m[7] == "-" {
		offset = -offset
	}
	t := time.Date(year, month, day, hour, minute, second, 0, time.FixedZone("", offset))
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("timestamp %q has no such day", s)
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc), nil
}

// FormatTimestamp renders t with millisecond precision and an explicit offset.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}
