package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.RateLimit.MaxRequests != 30 {
		t.Errorf("Expected default max requests to be 30, got %d", config.RateLimit.MaxRequests)
	}

	if config.Download.Workers != 8 {
		t.Errorf("Expected default workers to be 8, got %d", config.Download.Workers)
	}

	if config.Discovery.LinkDir != "./url" {
		t.Errorf("Expected default link dir to be ./url, got %s", config.Discovery.LinkDir)
	}

	if config.Download.DownloadRoot != "./download" {
		t.Errorf("Expected default download root to be ./download, got %s", config.Download.DownloadRoot)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}

func TestTargetURL(t *testing.T) {
	config := DefaultConfig()
	config.Discovery.Keyword = "mountains"

	want := "https://unsplash.com/s/photos/mountains"
	if got := config.Discovery.TargetURL(); got != want {
		t.Errorf("Expected target URL %s, got %s", want, got)
	}
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("ASSETGRAB_KEYWORD", "forest")
	os.Setenv("ASSETGRAB_LINK_DIR", "/tmp/test-links")
	os.Setenv("ASSETGRAB_WORKERS", "5")
	os.Setenv("ASSETGRAB_PROXY_SERVERS", "http://p1:8080,http://p2:8080")
	os.Setenv("ASSETGRAB_LOG_LEVEL", "debug")

	defer func() {
		os.Unsetenv("ASSETGRAB_KEYWORD")
		os.Unsetenv("ASSETGRAB_LINK_DIR")
		os.Unsetenv("ASSETGRAB_WORKERS")
		os.Unsetenv("ASSETGRAB_PROXY_SERVERS")
		os.Unsetenv("ASSETGRAB_LOG_LEVEL")
	}()

	config := DefaultConfig()
	config.applyEnvOverrides()

	if config.Discovery.Keyword != "forest" {
		t.Errorf("Expected keyword to be forest, got %s", config.Discovery.Keyword)
	}

	if config.Discovery.LinkDir != "/tmp/test-links" {
		t.Errorf("Expected discovery link dir to be /tmp/test-links, got %s", config.Discovery.LinkDir)
	}

	if config.Download.LinkDir != "/tmp/test-links" {
		t.Errorf("Expected download link dir to be /tmp/test-links, got %s", config.Download.LinkDir)
	}

	if config.Download.Workers != 5 {
		t.Errorf("Expected workers to be 5, got %d", config.Download.Workers)
	}

	if !config.Proxy.Enabled {
		t.Error("Expected proxy to be enabled")
	}

	if len(config.Proxy.Servers) != 2 {
		t.Errorf("Expected 2 proxy servers, got %d", len(config.Proxy.Servers))
	}

	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level to be debug, got %s", config.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{
			name:      "valid config",
			mutate:    func(c *Config) {},
			wantError: false,
		},
		{
			name: "empty keyword",
			mutate: func(c *Config) {
				c.Discovery.Keyword = ""
			},
			wantError: true,
		},
		{
			name: "template without placeholder",
			mutate: func(c *Config) {
				c.Discovery.TargetURLTemplate = "https://example.com/photos"
			},
			wantError: true,
		},
		{
			name: "zero save threshold",
			mutate: func(c *Config) {
				c.Discovery.SaveThreshold = 0
			},
			wantError: true,
		},
		{
			name: "zero rate limit window",
			mutate: func(c *Config) {
				c.RateLimit.TimeWindow = 0
			},
			wantError: true,
		},
		{
			name: "inverted scroll delay range",
			mutate: func(c *Config) {
				c.Delays.ScrollMin = 10 * time.Second
				c.Delays.ScrollMax = 2 * time.Second
			},
			wantError: true,
		},
		{
			name: "backoff factor below one",
			mutate: func(c *Config) {
				c.Retry.BackoffFactor = 0.5
			},
			wantError: true,
		},
		{
			name: "zero download workers",
			mutate: func(c *Config) {
				c.Download.Workers = 0
			},
			wantError: true,
		},
		{
			name: "proxy enabled without servers",
			mutate: func(c *Config) {
				c.Proxy.Enabled = true
				c.Proxy.Servers = nil
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assetgrab.yaml")

	content := `discovery:
  keyword: "architecture"
  save_threshold: 500
download:
  workers: 2
  download_root: "/tmp/assets"
logging:
  level: "warn"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Discovery.Keyword != "architecture" {
		t.Errorf("Expected keyword to be architecture, got %s", config.Discovery.Keyword)
	}

	if config.Discovery.SaveThreshold != 500 {
		t.Errorf("Expected save threshold to be 500, got %d", config.Discovery.SaveThreshold)
	}

	if config.Download.Workers != 2 {
		t.Errorf("Expected workers to be 2, got %d", config.Download.Workers)
	}

	if config.Download.DownloadRoot != "/tmp/assets" {
		t.Errorf("Expected download root to be /tmp/assets, got %s", config.Download.DownloadRoot)
	}

	if config.Logging.Level != "warn" {
		t.Errorf("Expected log level to be warn, got %s", config.Logging.Level)
	}

	// Values absent from the file keep their defaults
	if config.Discovery.NoGrowthLimit != 3 {
		t.Errorf("Expected no growth limit to default to 3, got %d", config.Discovery.NoGrowthLimit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/assetgrab.yaml")
	if err == nil {
		t.Error("Expected error loading nonexistent config file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "assetgrab.yaml")

	config := DefaultConfig()
	config.Discovery.Keyword = "wallpapers"
	config.Download.Workers = 4

	if err := config.Save(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}

	if loaded.Discovery.Keyword != "wallpapers" {
		t.Errorf("Expected keyword to be wallpapers, got %s", loaded.Discovery.Keyword)
	}

	if loaded.Download.Workers != 4 {
		t.Errorf("Expected workers to be 4, got %d", loaded.Download.Workers)
	}
}
