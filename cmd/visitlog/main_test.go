package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setupLogs points the configuration at a temp directory holding one access
// log with two requests.
func setupLogs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	var lines []string
	for i, path := range []string{"/services", "/contact"} {
		lines = append(lines, fmt.Sprintf(
			`203.0.113.5 - - [25/Jul/2025:14:0%d:00 +0000] "GET %s HTTP/1.1" 200 512 "-" "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"`, i, path))
	}
	if err := os.WriteFile(filepath.Join(dir, "access.log"), []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"S3_BUCKET", "EVENTS_DIR", "ACCESS_LOG_NAME", "LOG_LEVEL", "VISITLOG_CONFIG"} {
		t.Setenv(name, "")
	}
	t.Setenv("NGINX_LOGS_DIR", dir)
	t.Setenv("ANALYTICS_TIMEZONE", "UTC")
	t.Setenv("PROFILE_DB", filepath.Join(dir, "profiles.db"))
	return dir
}

func TestRunCommands(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		want    string
	}{
		{"version", []string{"version"}, "", "visitlog "},
		{"no command", nil, "missing command", ""},
		{"unknown command", []string{"frobnicate"}, "unknown command", ""},
		{"bad log type", []string{"report", "-type", "error", "-json"}, "unknown log type", ""},
		{"bad day", []string{"leads", "-day", "yesterday"}, "invalid day", ""},
		{"address without ip", []string{"address"}, "address is required", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupLogs(t)
			var out bytes.Buffer
			err := run(context.Background(), tt.args, &out)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("run(%v) error = %v, want %q", tt.args, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("run(%v) error = %v", tt.args, err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", out.String(), tt.want)
			}
		})
	}
}

func TestRunReportJSON(t *testing.T) {
	setupLogs(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"report", "-json"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	var rep struct {
		Status  string `json:"status"`
		Summary struct {
			TotalRequests int `json:"totalRequests"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out.String())
	}
	if rep.Status != "ok" || rep.Summary.TotalRequests != 2 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRunReportDashboard(t *testing.T) {
	setupLogs(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"report"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), "/services") {
		t.Errorf("dashboard missing page:\n%s", out.String())
	}
}

func TestRunAddress(t *testing.T) {
	setupLogs(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"address", "203.0.113.5"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), `"status": "ok"`) {
		t.Errorf("output = %s", out.String())
	}
}

func TestRunLeadsCreatesProfileDB(t *testing.T) {
	dir := setupLogs(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"leads", "-day", "2025-07-25", "-json"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), `"status": "no_data"`) {
		t.Errorf("output = %s", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "profiles.db")); err != nil {
		t.Errorf("profile db not created: %v", err)
	}
}

func TestValidateLogPath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"log file", filepath.Join(dir, "access.log"), false},
		{"shadow", "/etc/shadow", true},
		{"ssh key", "/home/alice/.ssh/id_rsa", true},
		{"directory", dir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLogPath(tt.path, logger)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateLogPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}
