// Package detector locates the access logs, fingerprint log and daily event
// directories a report reads from.
package detector

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Kinds of log source.
const (
	KindAccess      = "access"
	KindTracking    = "tracking"
	KindIPTracking  = "ip_tracking"
	KindFingerprint = "fingerprint"
	KindDiscovered  = "discovered"
)

// LogTypeAll selects every existing access-style log.
const LogTypeAll = "all"

// LogFile is a candidate log source.
type LogFile struct {
	Path       string
	Kind       string
	ServerName string // server_name from the nginx config, if discovered there
	Format     string // log_format name from the access_log directive, if any
	Exists     bool
	Size       int64
}

// Layout names the files of one site's log directory.
type Layout struct {
	Dir            string
	AccessLog      string
	TrackingLog    string
	IPTrackingLog  string
	FingerprintLog string
}

// Files returns the access, tracking and ip-tracking logs of the layout, in
// that order, with their existence and size filled in.
func (l Layout) Files() []LogFile {
	files := []LogFile{
		{Path: filepath.Join(l.Dir, l.AccessLog), Kind: KindAccess},
		{Path: filepath.Join(l.Dir, l.TrackingLog), Kind: KindTracking},
		{Path: filepath.Join(l.Dir, l.IPTrackingLog), Kind: KindIPTracking},
	}
	for i := range files {
		stat(&files[i])
	}
	return files
}

// Fingerprint returns the fingerprint log of the layout.
func (l Layout) Fingerprint() LogFile {
	f := LogFile{Path: filepath.Join(l.Dir, l.FingerprintLog), Kind: KindFingerprint}
	stat(&f)
	return f
}

func stat(f *LogFile) {
	if info, err := os.Stat(f.Path); err == nil && !info.IsDir() {
		f.Exists = true
		f.Size = info.Size()
	}
}

// Select picks the files for a log type. A specific type returns that file
// even when it does not exist yet, so the caller can report it; "all" (or an
// empty type) returns only the files that exist.
func Select(files []LogFile, logType string) ([]LogFile, error) {
	if logType == "" || logType == LogTypeAll {
		var out []LogFile
		for _, f := range files {
			if f.Exists {
				out = append(out, f)
			}
		}
		return out, nil
	}
	for _, f := range files {
		if f.Kind == logType {
			return []LogFile{f}, nil
		}
	}
	return nil, fmt.Errorf("unknown log type %q", logType)
}

// DefaultConfigPaths are the nginx configuration files searched by Discover.
var DefaultConfigPaths = []string{
	"/etc/nginx/nginx.conf",
	"/usr/local/nginx/conf/nginx.conf",
	"/opt/nginx/conf/nginx.conf",
}

// Discover reads nginx configuration files and their sites-enabled and conf.d
// includes for access_log directives. Only files that exist are returned.
func Discover(configPaths []string) []LogFile {
	var logs []LogFile
	seen := make(map[string]bool)

	add := func(found []LogFile) {
		for _, lf := range found {
			if seen[lf.Path] {
				continue
			}
			stat(&lf)
			if lf.Exists {
				logs = append(logs, lf)
				seen[lf.Path] = true
			}
		}
	}

	for _, configPath := range configPaths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}
		add(ParseConfigFile(configPath))

		configDir := filepath.Dir(configPath)
		includes := []string{
			filepath.Join(configDir, "sites-enabled", "*"),
			filepath.Join(configDir, "conf.d", "*.conf"),
		}
		for _, pattern := range includes {
			matches, err := filepath.Glob(pattern)
			if err != nil {
				slog.Warn("failed to glob nginx includes", slog.String("pattern", pattern), slog.Any("error", err))
				continue
			}
			for _, includePath := range matches {
				if info, err := os.Stat(includePath); err == nil && !info.IsDir() {
					add(ParseConfigFile(includePath))
				}
			}
		}
	}
	return logs
}

var (
	accessLogRegex  = regexp.MustCompile(`^access_log\s+([^\s;]+)(?:\s+([^\s;]+))?`)
	serverNameRegex = regexp.MustCompile(`^server_name\s+([^\s;]+)`)
)

// ParseConfigFile extracts access_log directives from one nginx config file,
// in file order. Disabled and syslog targets are skipped.
func ParseConfigFile(path string) []LogFile {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var (
		logs       []LogFile
		serverName string
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if m := serverNameRegex.FindStringSubmatch(line); m != nil {
			serverName = m[1]
		}
		m := accessLogRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		target := m[1]
		if target == "off" || strings.HasPrefix(target, "syslog:") {
			continue
		}
		logs = append(logs, LogFile{
			Path:       target,
			Kind:       KindDiscovered,
			ServerName: serverName,
			Format:     m[2],
		})
	}
	return logs
}

// BestAccessLog returns the log most likely to be the live access log:
// an unrotated access.log first, then the largest file.
// It returns an empty LogFile for an empty list.
func BestAccessLog(logs []LogFile) LogFile {
	if len(logs) == 0 {
		return LogFile{}
	}
	for _, lf := range logs {
		base := filepath.Base(lf.Path)
		if strings.HasSuffix(base, "access.log") {
			return lf
		}
	}
	largest := logs[0]
	for _, lf := range logs[1:] {
		if lf.Size > largest.Size {
			largest = lf
		}
	}
	return largest
}

var dayPattern = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)

// EventDays lists the YYYY-MM-DD days that have an event directory under
// base, oldest first.
func EventDays(base string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(base, "[0-9][0-9][0-9][0-9]", "[0-9][0-9]", "[0-9][0-9]"))
	if err != nil {
		return nil, fmt.Errorf("list event days: %w", err)
	}
	var days []string
	for _, m := range matches {
		rel, err := filepath.Rel(base, m)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if info, err := os.Stat(m); err != nil || !info.IsDir() || !dayPattern.MatchString(rel) {
			continue
		}
		days = append(days, strings.ReplaceAll(rel, "/", "-"))
	}
	sort.Strings(days)
	return days, nil
}
