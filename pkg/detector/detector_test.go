package detector

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestBestAccessLog(t *testing.T) {
	tests := []struct {
		name     string
		logs     []LogFile
		expected string
	}{
		{
			name:     "empty list",
			expected: "",
			logs:     []LogFile{},
		},
		{
			name:     "prefer unrotated access.log",
			expected: "/var/log/nginx/site_access.log",
			logs: []LogFile{
				{Path: "/var/log/nginx/site_access.log.1", Size: 5000},
				{Path: "/var/log/nginx/site_access.log", Size: 1000},
				{Path: "/var/log/nginx/error.log", Size: 3000},
			},
		},
		{
			name:     "largest file when no access.log",
			expected: "/var/log/nginx/custom.log",
			logs: []LogFile{
				{Path: "/var/log/nginx/error.log", Size: 1000},
				{Path: "/var/log/nginx/custom.log", Size: 5000},
				{Path: "/var/log/nginx/debug.log", Size: 2000},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BestAccessLog(tt.logs)
			if result.Path != tt.expected {
				t.Errorf("BestAccessLog() = %v, want %v", result.Path, tt.expected)
			}
		})
	}
}

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLayoutAndSelect(t *testing.T) {
	dir := t.TempDir()
	layout := Layout{
		Dir:            dir,
		AccessLog:      "site_access.log",
		TrackingLog:    "site_tracking.log",
		IPTrackingLog:  "site_ip_tracking.log",
		FingerprintLog: "fingerprint_tracking.log",
	}
	touch(t, filepath.Join(dir, "site_access.log"), "line\n")
	touch(t, filepath.Join(dir, "site_ip_tracking.log"), "")

	files := layout.Files()
	if !files[0].Exists || files[0].Size != 5 || files[1].Exists {
		t.Fatalf("Files() = %+v", files)
	}

	tests := []struct {
		logType string
		want    []string
		wantErr bool
	}{
		{LogTypeAll, []string{KindAccess, KindIPTracking}, false},
		{"", []string{KindAccess, KindIPTracking}, false},
		{KindTracking, []string{KindTracking}, false},
		{"error", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.logType, func(t *testing.T) {
			got, err := Select(files, tt.logType)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Select() error = %v", err)
			}
			var kinds []string
			for _, f := range got {
				kinds = append(kinds, f.Kind)
			}
			if !reflect.DeepEqual(kinds, tt.want) {
				t.Errorf("Select(%q) = %v, want %v", tt.logType, kinds, tt.want)
			}
		})
	}

	if layout.Fingerprint().Exists {
		t.Error("fingerprint log should not exist")
	}
}

func TestParseConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nginx.conf")
	touch(t, configPath, `
# Test nginx config
server {
    server_name example.com;
    access_log /var/log/nginx/example.log extended;

    location / {
        # access_log /var/log/nginx/commented.log;
        access_log /var/log/nginx/location.log;
    }
}

server {
    server_name test.com;
    access_log /var/log/nginx/test.log tracking;
}

access_log off;
access_log syslog:server=unix:/dev/log;
`)

	got := ParseConfigFile(configPath)
	want := []LogFile{
		{Path: "/var/log/nginx/example.log", Kind: KindDiscovered, ServerName: "example.com", Format: "extended"},
		{Path: "/var/log/nginx/location.log", Kind: KindDiscovered, ServerName: "example.com"},
		{Path: "/var/log/nginx/test.log", Kind: KindDiscovered, ServerName: "test.com", Format: "tracking"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseConfigFile() =\n%+v\nwant\n%+v", got, want)
	}

	if logs := ParseConfigFile("/nonexistent/path/to/nginx.conf"); len(logs) != 0 {
		t.Errorf("expected nothing for a missing file, got %d entries", len(logs))
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	logPath := filepath.Join(root, "logs", "site_access.log")
	touch(t, logPath, "x\n")
	touch(t, filepath.Join(root, "nginx", "nginx.conf"), "access_log "+logPath+";\n")
	touch(t, filepath.Join(root, "nginx", "conf.d", "site.conf"),
		"server_name site.example;\naccess_log "+logPath+";\naccess_log "+filepath.Join(root, "missing.log")+";\n")

	got := Discover([]string{filepath.Join(root, "nginx", "nginx.conf"), filepath.Join(root, "absent.conf")})
	if len(got) != 1 || got[0].Path != logPath || !got[0].Exists {
		t.Errorf("Discover() = %+v", got)
	}
}

func TestEventDays(t *testing.T) {
	base := t.TempDir()
	for _, d := range []string{"2025/07/26", "2025/07/25", "2024/12/31"} {
		if err := os.MkdirAll(filepath.Join(base, filepath.FromSlash(d)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	touch(t, filepath.Join(base, "2025", "07", "01"), "a file, not a day")

	got, err := EventDays(base)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2024-12-31", "2025-07-25", "2025-07-26"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EventDays() = %v, want %v", got, want)
	}
}
