package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the harvester
type Config struct {
	// Link discovery settings
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Rate limiting configuration for browser-facing actions
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Randomized delay ranges for simulated interaction
	Delays DelayConfig `yaml:"delays" json:"delays"`

	// Retry behavior for soft-failing automation steps
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Egress proxy rotation
	Proxy ProxyConfig `yaml:"proxy" json:"proxy"`

	// Page-health heuristics and browsing simulation
	Behavior BehaviorConfig `yaml:"behavior" json:"behavior"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DiscoveryConfig holds link-discovery configuration
type DiscoveryConfig struct {
	Keyword              string        `yaml:"keyword" json:"keyword"`
	TargetURLTemplate    string        `yaml:"target_url_template" json:"target_url_template"`
	LoadMoreSelector     string        `yaml:"load_more_selector" json:"load_more_selector"`
	DownloadLinkSelector string        `yaml:"download_link_selector" json:"download_link_selector"`
	SaveThreshold        int           `yaml:"save_threshold" json:"save_threshold"`
	MaxScrollAttempts    int           `yaml:"max_scroll_attempts" json:"max_scroll_attempts"`
	NoGrowthLimit        int           `yaml:"no_growth_limit" json:"no_growth_limit"`
	DOMKeepCount         int           `yaml:"dom_keep_count" json:"dom_keep_count"`
	LinkDir              string        `yaml:"link_dir" json:"link_dir"`
	NavigationTimeout    time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	ActionTimeout        time.Duration `yaml:"action_timeout" json:"action_timeout"`
}

// TargetURL expands the URL template with the configured keyword
func (d DiscoveryConfig) TargetURL() string {
	return fmt.Sprintf(d.TargetURLTemplate, d.Keyword)
}

// RateLimitConfig holds sliding-window rate limiting configuration
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	TimeWindow  time.Duration `yaml:"time_window" json:"time_window"`
}

// DelayConfig holds the randomized delay ranges, in the spirit of a human
// pausing between interactions
type DelayConfig struct {
	ScrollMin   time.Duration `yaml:"scroll_min" json:"scroll_min"`
	ScrollMax   time.Duration `yaml:"scroll_max" json:"scroll_max"`
	ClickMin    time.Duration `yaml:"click_min" json:"click_min"`
	ClickMax    time.Duration `yaml:"click_max" json:"click_max"`
	NavigateMin time.Duration `yaml:"navigate_min" json:"navigate_min"`
	NavigateMax time.Duration `yaml:"navigate_max" json:"navigate_max"`
	SettleMin   time.Duration `yaml:"settle_min" json:"settle_min"`
	SettleMax   time.Duration `yaml:"settle_max" json:"settle_max"`
	IterMin     time.Duration `yaml:"iter_min" json:"iter_min"`
	IterMax     time.Duration `yaml:"iter_max" json:"iter_max"`
}

// RetryConfig holds retry behavior for automation steps
type RetryConfig struct {
	MaxRetries    int     `yaml:"max_retries" json:"max_retries"`
	BackoffFactor float64 `yaml:"backoff_factor" json:"backoff_factor"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Workers      int           `yaml:"workers" json:"workers"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	LinkDir      string        `yaml:"link_dir" json:"link_dir"`
	DownloadRoot string        `yaml:"download_root" json:"download_root"`
	MappingFile  string        `yaml:"mapping_file" json:"mapping_file"`
	DelayMin     time.Duration `yaml:"delay_min" json:"delay_min"`
	DelayMax     time.Duration `yaml:"delay_max" json:"delay_max"`
}

// ProxyConfig holds egress proxy rotation configuration
type ProxyConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Servers []string `yaml:"servers" json:"servers"`
}

// BehaviorConfig holds page-health heuristics and browsing-pause simulation
type BehaviorConfig struct {
	MinContentLength  int      `yaml:"min_content_length" json:"min_content_length"`
	BlocklistKeywords []string `yaml:"blocklist_keywords" json:"blocklist_keywords"`
	PauseProbability  float64  `yaml:"pause_probability" json:"pause_probability"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Discovery: DiscoveryConfig{
			Keyword:              "people",
			TargetURLTemplate:    "https://unsplash.com/s/photos/%s",
			LoadMoreSelector:     "button.loadMoreButton-pYP1fq",
			DownloadLinkSelector: `[data-testid="non-sponsored-photo-download-button"]`,
			SaveThreshold:        10000,
			MaxScrollAttempts:    10000,
			NoGrowthLimit:        3,
			DOMKeepCount:         100,
			LinkDir:              "./url",
			NavigationTimeout:    30 * time.Second,
			ActionTimeout:        5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 30,
			TimeWindow:  time.Minute,
		},
		Delays: DelayConfig{
			ScrollMin:   2 * time.Second,
			ScrollMax:   5 * time.Second,
			ClickMin:    1 * time.Second,
			ClickMax:    3 * time.Second,
			NavigateMin: 1500 * time.Millisecond,
			NavigateMax: 3500 * time.Millisecond,
			SettleMin:   2 * time.Second,
			SettleMax:   4 * time.Second,
			IterMin:     1 * time.Second,
			IterMax:     2 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:    3,
			BackoffFactor: 2.0,
		},
		Download: DownloadConfig{
			Workers:      8,
			Timeout:      15 * time.Second,
			MaxRetries:   10,
			LinkDir:      "./url",
			DownloadRoot: "./download",
			MappingFile:  "download_mapping.json",
			DelayMin:     500 * time.Millisecond,
			DelayMax:     2 * time.Second,
		},
		Proxy: ProxyConfig{
			Enabled: false,
			Servers: nil,
		},
		Behavior: BehaviorConfig{
			MinContentLength:  1000,
			BlocklistKeywords: []string{"429", "Too Many Requests", "Cloudflare", "challenge"},
			PauseProbability:  0.2,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// Load reads configuration from a file, falling back to defaults for any
// missing values, and applies environment variable overrides last
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// .env is optional; ignore absence
	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if defaultPath := findDefaultConfigFile(); defaultPath != "" {
		data, err := os.ReadFile(defaultPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", defaultPath, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findDefaultConfigFile looks for a config file in conventional locations
func findDefaultConfigFile() string {
	candidates := []string{
		"assetgrab.yaml",
		"assetgrab.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "assetgrab", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// applyEnvOverrides applies ASSETGRAB_* environment variables over the
// loaded configuration
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ASSETGRAB_KEYWORD"); v != "" {
		c.Discovery.Keyword = v
	}
	if v := os.Getenv("ASSETGRAB_LINK_DIR"); v != "" {
		c.Discovery.LinkDir = v
		c.Download.LinkDir = v
	}
	if v := os.Getenv("ASSETGRAB_DOWNLOAD_ROOT"); v != "" {
		c.Download.DownloadRoot = v
	}
	if v := os.Getenv("ASSETGRAB_MAPPING_FILE"); v != "" {
		c.Download.MappingFile = v
	}
	if v := os.Getenv("ASSETGRAB_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Download.Workers = n
		}
	}
	if v := os.Getenv("ASSETGRAB_MAX_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.MaxRequests = n
		}
	}
	if v := os.Getenv("ASSETGRAB_SAVE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Discovery.SaveThreshold = n
		}
	}
	if v := os.Getenv("ASSETGRAB_PROXY_SERVERS"); v != "" {
		c.Proxy.Servers = strings.Split(v, ",")
		c.Proxy.Enabled = true
	}
	if v := os.Getenv("ASSETGRAB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Discovery.Keyword == "" {
		return errors.New("discovery keyword must not be empty")
	}
	if !strings.Contains(c.Discovery.TargetURLTemplate, "%s") {
		return errors.New("target_url_template must contain a %s keyword placeholder")
	}
	if c.Discovery.SaveThreshold <= 0 {
		return errors.New("save_threshold must be positive")
	}
	if c.Discovery.MaxScrollAttempts <= 0 {
		return errors.New("max_scroll_attempts must be positive")
	}
	if c.Discovery.NoGrowthLimit <= 0 {
		return errors.New("no_growth_limit must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return errors.New("rate limit max_requests must be positive")
	}
	if c.RateLimit.TimeWindow <= 0 {
		return errors.New("rate limit time_window must be positive")
	}
	if c.Delays.ScrollMin > c.Delays.ScrollMax {
		return errors.New("scroll delay minimum exceeds maximum")
	}
	if c.Delays.ClickMin > c.Delays.ClickMax {
		return errors.New("click delay minimum exceeds maximum")
	}
	if c.Retry.MaxRetries < 0 {
		return errors.New("max_retries must not be negative")
	}
	if c.Retry.BackoffFactor < 1 {
		return errors.New("backoff_factor must be at least 1")
	}
	if c.Download.Workers <= 0 {
		return errors.New("download workers must be positive")
	}
	if c.Download.MaxRetries <= 0 {
		return errors.New("download max_retries must be positive")
	}
	if c.Download.DelayMin > c.Download.DelayMax {
		return errors.New("download delay minimum exceeds maximum")
	}
	if c.Proxy.Enabled && len(c.Proxy.Servers) == 0 {
		return errors.New("proxy enabled but no servers configured")
	}
	return nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
