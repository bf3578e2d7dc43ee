package tracking

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DayDir returns the directory holding the events of day: base/YYYY/MM/DD.
func DayDir(base string, day time.Time) string {
	return filepath.Join(base, day.Format("2006"), day.Format("01"), day.Format("02"))
}

// ReadStats counts what a read skipped.
type ReadStats struct {
	Files     int `json:"files"`
	Malformed int `json:"malformed"`
	Invalid   int `json:"invalid"`
}

// DecodeEvent reads one JSON event from r and validates it.
func DecodeEvent(r io.Reader) (Event, error) {
	var e Event
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// ReadDay reads every event file in dir, ordered by timestamp. Files whose
// name contains "summary", malformed files and invalid events are skipped
// and counted. A missing dir is returned as an error satisfying
// errors.Is(err, fs.ErrNotExist).
func ReadDay(dir string) ([]Event, ReadStats, error) {
	var stats ReadStats
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, stats, fmt.Errorf("read event dir: %w", err)
	}

	var events []Event
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || filepath.Ext(name) != ".json" || strings.Contains(name, "summary") {
			continue
		}
		stats.Files++
		e, err := readEventFile(filepath.Join(dir, name))
		switch {
		case err == nil:
			events = append(events, e)
		case isInvalid(err):
			stats.Invalid++
		default:
			stats.Malformed++
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, stats, nil
}

func isInvalid(err error) bool {
	return errors.Is(err, ErrInvalidEvent)
}

func readEventFile(path string) (Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return Event{}, err
	}
	defer f.Close()
	return DecodeEvent(f)
}

// ReadFingerprints reads an NDJSON fingerprint log. Blank and malformed lines
// are skipped; the number skipped is returned.
func ReadFingerprints(r io.Reader) ([]FingerprintEntry, int, error) {
	var (
		out     []FingerprintEntry
		skipped int
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var fe FingerprintEntry
		if err := json.Unmarshal([]byte(line), &fe); err != nil {
			skipped++
			continue
		}
		out = append(out, fe)
	}
	if err := scanner.Err(); err != nil {
		return out, skipped, fmt.Errorf("read fingerprint log: %w", err)
	}
	return out, skipped, nil
}

// ReadFingerprintFile reads the fingerprint log at path.
func ReadFingerprintFile(path string) ([]FingerprintEntry, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open fingerprint log: %w", err)
	}
	defer f.Close()
	return ReadFingerprints(f)
}
