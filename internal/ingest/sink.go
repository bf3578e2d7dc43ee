package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/papaganelli/visitlog/pkg/tracking"
)

// EventSink writes each tracking event to its own file under a daily
// directory: <base>/YYYY/MM/DD/HH-MM-SS-<session prefix>.json.
type EventSink struct {
	Base string
}

// Write stores e, received at now, and returns the file path.
func (s EventSink) Write(e tracking.Event, now time.Time) (string, error) {
	dir := tracking.DayDir(s.Base, now)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create event dir: %w", err)
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}

	name := now.Format("15-04-05") + "-" + sessionPrefix(e.SessionID)
	path := filepath.Join(dir, name+".json")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		// Same session within the same second.
		path = filepath.Join(dir, name+"-"+sessionPrefix(e.ID)+".json")
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("create event file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write event file: %w", err)
	}
	return path, f.Close()
}

// sessionPrefix returns up to 8 filename-safe characters of id.
func sessionPrefix(id string) string {
	var b strings.Builder
	for _, r := range id {
		if b.Len() == 8 {
			break
		}
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// FingerprintLog appends fingerprint entries to an NDJSON file.
type FingerprintLog struct {
	Path string
	mu   sync.Mutex
}

// Append writes one entry as a line.
func (l *FingerprintLog) Append(entry tracking.FingerprintEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode fingerprint: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("create fingerprint dir: %w", err)
	}
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open fingerprint log: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("append fingerprint: %w", err)
	}
	return f.Close()
}

// Find returns the entries matching visitorID and addr. A missing log has no
// entries.
func (l *FingerprintLog) Find(visitorID, addr string) ([]tracking.FingerprintEntry, error) {
	l.mu.Lock()
	entries, _, err := tracking.ReadFingerprintFile(l.Path)
	l.mu.Unlock()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return tracking.FilterFingerprints(entries, visitorID, addr), nil
}
