// Package config loads visitlog settings from defaults, an optional YAML file
// and the environment, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/papaganelli/visitlog/pkg/bot"
	"github.com/papaganelli/visitlog/pkg/detector"
	"github.com/papaganelli/visitlog/pkg/parser"
)

// Config holds runtime configuration.
type Config struct {
	Logs      LogsConfig      `koanf:"logs"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	S3        S3Config        `koanf:"s3"`
	LogLevel  string          `koanf:"log_level"`

	loc *time.Location
}

type LogsConfig struct {
	BaseDir        string `koanf:"base_dir"`
	NginxDir       string `koanf:"nginx_dir"` // relative to BaseDir unless absolute
	AccessLog      string `koanf:"access"`
	TrackingLog    string `koanf:"tracking"`
	IPTrackingLog  string `koanf:"ip_tracking"`
	FingerprintLog string `koanf:"fingerprint"`
	EventsDir      string `koanf:"events_dir"` // defaults to <log dir>/events
}

type AnalyticsConfig struct {
	Timezone              string `koanf:"timezone"`
	SessionTimeoutMinutes int    `koanf:"session_timeout"`
	MinBotIndicators      int    `koanf:"min_bot_indicators"`
	MaxHumanRequests      int    `koanf:"max_human_requests"`
	ReadTimeoutSeconds    int    `koanf:"read_timeout"`
}

type ServerConfig struct {
	ListenAddr         string `koanf:"listen_addr"`
	RateLimitPerMinute int    `koanf:"rate_limit_per_minute"`
	RateLimitPerHour   int    `koanf:"rate_limit_per_hour"`
}

type StorageConfig struct {
	ProfileDB string `koanf:"profile_db"` // empty disables persistence
}

type S3Config struct {
	Bucket   string `koanf:"bucket"`
	Prefix   string `koanf:"prefix"`
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"`
}

// envKeys maps the documented environment variables to config keys.
var envKeys = map[string]string{
	"LOGS_BASE_DIR":         "logs.base_dir",
	"NGINX_LOGS_DIR":        "logs.nginx_dir",
	"ACCESS_LOG_NAME":       "logs.access",
	"TRACKING_LOG_NAME":     "logs.tracking",
	"IP_TRACKING_LOG_NAME":  "logs.ip_tracking",
	"FINGERPRINT_LOG_NAME":  "logs.fingerprint",
	"EVENTS_DIR":            "logs.events_dir",
	"ANALYTICS_TIMEZONE":    "analytics.timezone",
	"SESSION_TIMEOUT":       "analytics.session_timeout",
	"MIN_BOT_INDICATORS":    "analytics.min_bot_indicators",
	"MAX_HUMAN_REQUESTS":    "analytics.max_human_requests",
	"READ_TIMEOUT_SECONDS":  "analytics.read_timeout",
	"LISTEN_ADDR":           "server.listen_addr",
	"RATE_LIMIT_PER_MINUTE": "server.rate_limit_per_minute",
	"RATE_LIMIT_PER_HOUR":   "server.rate_limit_per_hour",
	"PROFILE_DB":            "storage.profile_db",
	"S3_BUCKET":             "s3.bucket",
	"S3_PREFIX":             "s3.prefix",
	"S3_REGION":             "s3.region",
	"S3_ENDPOINT":           "s3.endpoint",
	"LOG_LEVEL":             "log_level",
}

func defaults() map[string]any {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "/home"
	}
	det := bot.DefaultDetectorConfig()
	pol := bot.DefaultPolicy()
	return map[string]any{
		"logs.base_dir":                home,
		"logs.nginx_dir":               "docker/nginx/logs",
		"logs.access":                  "access.log",
		"logs.tracking":                "tracking.log",
		"logs.ip_tracking":             "ip_tracking.log",
		"logs.fingerprint":             "fingerprint_tracking.log",
		"analytics.timezone":           parser.DefaultTimezone,
		"analytics.session_timeout":    30,
		"analytics.min_bot_indicators": pol.MinIndicators,
		"analytics.max_human_requests": pol.MaxHumanRequests,
		"analytics.read_timeout":       30,
		"server.listen_addr":           ":8080",
		"server.rate_limit_per_minute": det.MaxRequestsPerMinute,
		"server.rate_limit_per_hour":   det.MaxRequestsPerHour,
		"log_level":                    "info",
	}
}

// Load reads a .env file from the working directory if present, then the YAML
// file at path (skipped when path is empty), then the environment. The result
// is validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	// Unset and empty variables leave lower layers in place.
	if err := k.Load(env.ProviderWithValue("", ".", func(name, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return envKeys[name], value
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, v := range defaults() {
		if !k.Exists(key) || k.String(key) == "" {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings and resolves the timezone.
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Analytics.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Analytics.Timezone, err)
	}
	c.loc = loc
	switch {
	case c.Analytics.SessionTimeoutMinutes <= 0:
		return fmt.Errorf("session timeout must be positive, got %d", c.Analytics.SessionTimeoutMinutes)
	case c.Analytics.MinBotIndicators <= 0:
		return fmt.Errorf("min bot indicators must be positive, got %d", c.Analytics.MinBotIndicators)
	case c.Analytics.ReadTimeoutSeconds <= 0:
		return fmt.Errorf("read timeout must be positive, got %d", c.Analytics.ReadTimeoutSeconds)
	case c.Server.RateLimitPerMinute <= 0 || c.Server.RateLimitPerHour <= 0:
		return errors.New("rate limits must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Location returns the analytics timezone.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return parser.DefaultLocation()
	}
	return c.loc
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Analytics.SessionTimeoutMinutes) * time.Minute
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Analytics.ReadTimeoutSeconds) * time.Second
}

// BotPolicy returns the default classifier policy with the configured
// overrides applied.
func (c *Config) BotPolicy() bot.Policy {
	p := bot.DefaultPolicy()
	p.MinIndicators = c.Analytics.MinBotIndicators
	p.MaxHumanRequests = c.Analytics.MaxHumanRequests
	return p
}

// DetectorConfig returns the beacon detection settings.
func (c *Config) DetectorConfig() bot.DetectorConfig {
	d := bot.DefaultDetectorConfig()
	d.MaxRequestsPerMinute = c.Server.RateLimitPerMinute
	d.MaxRequestsPerHour = c.Server.RateLimitPerHour
	return d
}

// LogDir is the directory holding the configured log files.
func (c *Config) LogDir() string {
	if filepath.IsAbs(c.Logs.NginxDir) {
		return c.Logs.NginxDir
	}
	return filepath.Join(c.Logs.BaseDir, c.Logs.NginxDir)
}

// Layout describes the configured log files.
func (c *Config) Layout() detector.Layout {
	return detector.Layout{
		Dir:            c.LogDir(),
		AccessLog:      c.Logs.AccessLog,
		TrackingLog:    c.Logs.TrackingLog,
		IPTrackingLog:  c.Logs.IPTrackingLog,
		FingerprintLog: c.Logs.FingerprintLog,
	}
}

// EventsDir is the root of the daily event directories.
func (c *Config) EventsDir() string {
	if c.Logs.EventsDir != "" {
		return c.Logs.EventsDir
	}
	return filepath.Join(c.LogDir(), "events")
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}
