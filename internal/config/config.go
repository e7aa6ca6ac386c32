package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	Port string

	// LINE Messaging API
	LineChannelAccessToken string
	LineChannelSecret      string
	ReplyTimeout           time.Duration

	// Upstream knowledge base
	NotebookID      string
	AuthFile        string
	UpstreamBaseURL string
	UpstreamTimeout time.Duration
	UseMockUpstream bool

	// Session and query tuning
	QueryTimeout        time.Duration
	RefreshInterval     time.Duration
	PrefetchSources     bool
	QueueSize           int
	MaxConcurrentEvents int
	DetailTriggers      []string

	LogLevel  string
	LogFormat string // "json" or "console"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	return n, nil
}

// getDurationEnv accepts Go durations ("90s", "10m") or bare seconds ("90").
func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	return d, nil
}

func getListEnv(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// Load reads a .env file (if any) and then all env vars. Values already
// present in the environment win over the .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "5000"),

		LineChannelAccessToken: os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		LineChannelSecret:      os.Getenv("LINE_CHANNEL_SECRET"),

		NotebookID:      os.Getenv("NOTEBOOK_ID"),
		AuthFile:        getEnv("GOOGLE_AUTH_FILE", "storage_state.json"),
		UpstreamBaseURL: strings.TrimRight(os.Getenv("NOTEBOOKLM_BASE_URL"), "/"),
		UseMockUpstream: getBoolEnv("KBRELAY_USE_MOCK_UPSTREAM", false),

		PrefetchSources: getBoolEnv("KBRELAY_PREFETCH_SOURCES", true),
		DetailTriggers:  getListEnv("KBRELAY_DETAIL_TRIGGERS", []string{"詳細", "detail"}),

		LogLevel:  getEnv("KBRELAY_LOG_LEVEL", "info"),
		LogFormat: getEnv("KBRELAY_LOG_FORMAT", "json"),
	}

	var err error
	if cfg.QueryTimeout, err = getDurationEnv("KBRELAY_QUERY_TIMEOUT", 55*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReplyTimeout, err = getDurationEnv("KBRELAY_REPLY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout, err = getDurationEnv("KBRELAY_UPSTREAM_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getDurationEnv("KBRELAY_REFRESH_INTERVAL", 600*time.Second); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = getIntEnv("KBRELAY_QUEUE_SIZE", 64); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentEvents, err = getIntEnv("KBRELAY_MAX_CONCURRENT_EVENTS", 8); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every missing or invalid setting at once. requireLINE is
// false for commands that never talk to the messaging platform.
func (c *Config) Validate(requireLINE bool) error {
	var problems []string

	if requireLINE {
		if c.LineChannelAccessToken == "" {
			problems = append(problems, "LINE_CHANNEL_ACCESS_TOKEN must be set")
		}
		if c.LineChannelSecret == "" {
			problems = append(problems, "LINE_CHANNEL_SECRET must be set")
		}
		if c.ReplyTimeout <= 0 {
			problems = append(problems, "KBRELAY_REPLY_TIMEOUT must be positive")
		}
	}
	if !c.UseMockUpstream {
		if c.NotebookID == "" {
			problems = append(problems, "NOTEBOOK_ID must be set")
		}
		if c.UpstreamBaseURL == "" {
			problems = append(problems, "NOTEBOOKLM_BASE_URL must be set to the notebook gateway address")
		}
	}
	if c.QueryTimeout <= 0 {
		problems = append(problems, "KBRELAY_QUERY_TIMEOUT must be positive")
	}
	if c.RefreshInterval <= 0 {
		problems = append(problems, "KBRELAY_REFRESH_INTERVAL must be positive")
	}
	if c.QueueSize <= 0 {
		problems = append(problems, "KBRELAY_QUEUE_SIZE must be positive")
	}
	if c.MaxConcurrentEvents <= 0 {
		problems = append(problems, "KBRELAY_MAX_CONCURRENT_EVENTS must be positive")
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
