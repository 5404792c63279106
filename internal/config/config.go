package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/amishk599/jobtap/internal/model"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable consulted when --config is unset.
const EnvPath = "JOBTAP_CONFIG"

// DefaultPath is used when neither --config nor JOBTAP_CONFIG is set.
const DefaultPath = "config.yaml"

// Config is the root configuration for jobtap.
type Config struct {
	AI           AIConfig
	Collector    CollectorConfig
	DOM          DOMConfig
	Ranking      RankingConfig
	Store        StoreConfig
	Notification NotificationConfig
	Server       ServerConfig
	Watch        WatchConfig
}

// AIConfig selects the ranking backend and its model chain.
type AIConfig struct {
	Provider       string // "gemini", "openai" or "none"
	APIKey         string // expanded from env var by Load
	Model          string // coerced against the provider catalog at startup
	FallbackModels []string
	Temperature    float64
	MaxTokens      int
	BaseURL        string // empty uses the provider default
	Timeout        time.Duration
	Retry          RetryConfig
}

// RetryConfig controls backoff for overloaded models.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration
}

// CollectorConfig tunes the network side of the pipeline.
type CollectorConfig struct {
	Debounce        time.Duration
	MaxDepth        int
	SiteHost        string
	EndpointMarkers []string
	MaxBodyBytes    int64
}

// DOMConfig tunes the DOM tap.
type DOMConfig struct {
	RescanDelay time.Duration
}

// RankingConfig holds the result size and the preferences that steer
// filtering and scoring.
type RankingConfig struct {
	TopN        int
	Preferences model.Preferences
}

// StoreConfig picks the session store.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	DSN    string `yaml:"dsn"`
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log", "slack" or "redis"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
	RedisURL   string `yaml:"redis_url"`   // required if type is "redis"
	Channel    string `yaml:"channel"`
}

// ServerConfig controls the HTTP capture API.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// WatchConfig describes pages fetched on a schedule by `jobtap watch`.
type WatchConfig struct {
	Schedule string
	Targets  []TargetConfig
	MinDelay time.Duration // minimum gap between requests to the same host
}

// TargetConfig is one watched URL.
type TargetConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Kind string `yaml:"kind"` // "", "json" or "html"
}

const (
	defaultProvider    = "gemini"
	defaultTemperature = 0.2
	defaultMaxTokens   = 1400
	defaultAITimeout   = 60 * time.Second
	defaultTopN        = 10
	defaultListen      = "127.0.0.1:8787"
	defaultSchedule    = "@every 10m"
	defaultMinDelay    = 5 * time.Second
)

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	AI           rawAIConfig        `yaml:"ai"`
	Collector    rawCollectorConfig `yaml:"collector"`
	DOM          rawDOMConfig       `yaml:"dom"`
	Ranking      rawRankingConfig   `yaml:"ranking"`
	Store        StoreConfig        `yaml:"store"`
	Notification NotificationConfig `yaml:"notification"`
	Server       ServerConfig       `yaml:"server"`
	Watch        rawWatchConfig     `yaml:"watch"`
}

type rawAIConfig struct {
	Provider       string         `yaml:"provider"`
	APIKey         string         `yaml:"api_key"`
	Model          string         `yaml:"model"`
	FallbackModels []string       `yaml:"fallback_models"`
	Temperature    *float64       `yaml:"temperature"`
	MaxTokens      int            `yaml:"max_tokens"`
	BaseURL        string         `yaml:"base_url"`
	Timeout        string         `yaml:"timeout"`
	Retry          rawRetryConfig `yaml:"retry"`
}

type rawRetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
	MaxDelay    string `yaml:"max_delay"`
	MaxJitter   string `yaml:"max_jitter"`
}

type rawCollectorConfig struct {
	Debounce        string   `yaml:"debounce"`
	MaxDepth        int      `yaml:"max_depth"`
	SiteHost        string   `yaml:"site_host"`
	EndpointMarkers []string `yaml:"endpoint_markers"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
}

type rawDOMConfig struct {
	RescanDelay string `yaml:"rescan_delay"`
}

type rawRankingConfig struct {
	TopN              int `yaml:"top_n"`
	model.Preferences `yaml:",inline"`
}

type rawWatchConfig struct {
	Schedule string         `yaml:"schedule"`
	Targets  []TargetConfig `yaml:"targets"`
	MinDelay string         `yaml:"min_delay"`
}

// ResolvePath picks the config file: the flag value, then JOBTAP_CONFIG,
// then ./config.yaml.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	d := durationParser{}
	cfg := &Config{
		AI: AIConfig{
			Provider:       strings.ToLower(strings.TrimSpace(raw.AI.Provider)),
			APIKey:         strings.TrimSpace(raw.AI.APIKey),
			Model:          strings.TrimSpace(raw.AI.Model),
			FallbackModels: raw.AI.FallbackModels,
			Temperature:    defaultTemperature,
			MaxTokens:      raw.AI.MaxTokens,
			BaseURL:        raw.AI.BaseURL,
			Timeout:        d.parse("ai.timeout", raw.AI.Timeout, defaultAITimeout),
			Retry: RetryConfig{
				MaxAttempts: raw.AI.Retry.MaxAttempts,
				BaseDelay:   d.parse("ai.retry.base_delay", raw.AI.Retry.BaseDelay, 2*time.Second),
				MaxDelay:    d.parse("ai.retry.max_delay", raw.AI.Retry.MaxDelay, 30*time.Second),
				MaxJitter:   d.parse("ai.retry.max_jitter", raw.AI.Retry.MaxJitter, time.Second),
			},
		},
		Collector: CollectorConfig{
			Debounce:        d.parse("collector.debounce", raw.Collector.Debounce, 600*time.Millisecond),
			MaxDepth:        raw.Collector.MaxDepth,
			SiteHost:        raw.Collector.SiteHost,
			EndpointMarkers: raw.Collector.EndpointMarkers,
			MaxBodyBytes:    raw.Collector.MaxBodyBytes,
		},
		DOM: DOMConfig{
			RescanDelay: d.parse("dom.rescan_delay", raw.DOM.RescanDelay, time.Second),
		},
		Ranking: RankingConfig{
			TopN:        raw.Ranking.TopN,
			Preferences: raw.Ranking.Preferences,
		},
		Store:        raw.Store,
		Notification: raw.Notification,
		Server:       raw.Server,
		Watch: WatchConfig{
			Schedule: strings.TrimSpace(raw.Watch.Schedule),
			Targets:  raw.Watch.Targets,
			MinDelay: d.parse("watch.min_delay", raw.Watch.MinDelay, defaultMinDelay),
		},
	}
	if d.err != nil {
		return nil, d.err
	}

	applyDefaults(cfg, raw)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// durationParser keeps the first parse error so Parse can read every
// duration field in one expression.
type durationParser struct {
	err error
}

func (p *durationParser) parse(field, s string, def time.Duration) time.Duration {
	if s == "" || p.err != nil {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		p.err = fmt.Errorf("parse %s %q: %w", field, s, err)
		return def
	}
	return d
}

func applyDefaults(cfg *Config, raw rawConfig) {
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = defaultProvider
	}
	if raw.AI.Temperature != nil {
		cfg.AI.Temperature = *raw.AI.Temperature
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = defaultMaxTokens
	}
	if cfg.AI.Retry.MaxAttempts == 0 {
		cfg.AI.Retry.MaxAttempts = 3
	}
	if cfg.Ranking.TopN == 0 {
		cfg.Ranking.TopN = defaultTopN
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaultListen
	}
	if cfg.Watch.Schedule == "" {
		cfg.Watch.Schedule = defaultSchedule
	}
	for i := range cfg.Watch.Targets {
		t := &cfg.Watch.Targets[i]
		t.Kind = strings.ToLower(strings.TrimSpace(t.Kind))
		if t.Name == "" {
			t.Name = t.URL
		}
	}
}

func validate(cfg *Config) error {
	switch cfg.AI.Provider {
	case "gemini", "openai", "none":
	default:
		return fmt.Errorf("ai.provider must be \"gemini\", \"openai\" or \"none\", got %q", cfg.AI.Provider)
	}
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be between 0 and 2, got %v", cfg.AI.Temperature)
	}
	if cfg.AI.MaxTokens < 0 {
		return fmt.Errorf("ai.max_tokens must not be negative, got %d", cfg.AI.MaxTokens)
	}
	if cfg.AI.Retry.MaxAttempts < 1 {
		return fmt.Errorf("ai.retry.max_attempts must be at least 1, got %d", cfg.AI.Retry.MaxAttempts)
	}
	if cfg.AI.Retry.MaxDelay < cfg.AI.Retry.BaseDelay {
		return fmt.Errorf("ai.retry.max_delay (%v) must not be below base_delay (%v)", cfg.AI.Retry.MaxDelay, cfg.AI.Retry.BaseDelay)
	}

	if cfg.Collector.Debounce <= 0 {
		return fmt.Errorf("collector.debounce must be positive, got %v", cfg.Collector.Debounce)
	}
	if cfg.Collector.MaxDepth < 0 {
		return fmt.Errorf("collector.max_depth must not be negative, got %d", cfg.Collector.MaxDepth)
	}
	if cfg.Ranking.TopN < 0 {
		return fmt.Errorf("ranking.top_n must not be negative, got %d", cfg.Ranking.TopN)
	}
	p := cfg.Ranking.Preferences
	if p.MaxBudget > 0 && p.MinBudget > p.MaxBudget {
		return fmt.Errorf("ranking.min_budget (%v) exceeds max_budget (%v)", p.MinBudget, p.MaxBudget)
	}

	switch cfg.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("store.driver must be \"memory\" or \"sqlite\", got %q", cfg.Store.Driver)
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	case "redis":
		if cfg.Notification.RedisURL == "" {
			return fmt.Errorf("notification.redis_url is required when type is \"redis\"")
		}
	default:
		return fmt.Errorf("notification.type must be \"log\", \"slack\" or \"redis\", got %q", cfg.Notification.Type)
	}

	for i, t := range cfg.Watch.Targets {
		if t.URL == "" {
			return fmt.Errorf("watch.targets[%d].url is required", i)
		}
		switch t.Kind {
		case "", "json", "html":
		default:
			return fmt.Errorf("watch.targets[%d].kind must be \"json\" or \"html\", got %q", i, t.Kind)
		}
	}
	if cfg.Watch.MinDelay < 0 {
		return fmt.Errorf("watch.min_delay must not be negative, got %v", cfg.Watch.MinDelay)
	}

	return nil
}
