package config

import (
	"embed"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

const appName = "artsearch"

type Config struct {
	SearchEndpoint  string `yaml:"search_endpoint"`
	APIKey          string `yaml:"api_key"`
	RefreshInterval string `yaml:"refresh_interval"`
	FetchTimeout    string `yaml:"fetch_timeout"`
	ProbeInterval   string `yaml:"probe_interval"`
	ProbeAddress    string `yaml:"probe_address,omitempty"`
	LogLevel        string `yaml:"log_level,omitempty"`
}

// Key returns the resolved API key (config or env var).
func (c *Config) Key() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv("ARTSEARCH_API_KEY")
}

func (c *Config) RefreshDuration() time.Duration {
	return parseDuration(c.RefreshInterval, 30*time.Minute)
}

func (c *Config) FetchTimeoutDuration() time.Duration {
	return parseDuration(c.FetchTimeout, 30*time.Second)
}

func (c *Config) ProbeDuration() time.Duration {
	return parseDuration(c.ProbeInterval, 10*time.Second)
}

// ProbeTimeout bounds one connectivity probe so a blackholed dial cannot
// outlast the next probe tick.
func (c *Config) ProbeTimeout() time.Duration {
	return min(c.ProbeDuration()/2, 3*time.Second)
}

// ProbeTarget returns the host:port used for connectivity checks. Without an
// explicit probe_address it is derived from the search endpoint.
func (c *Config) ProbeTarget() string {
	if c.ProbeAddress != "" {
		return c.ProbeAddress
	}
	u, err := url.Parse(c.SearchEndpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "443"
	if u.Scheme == "http" {
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// parseDuration accepts Go durations plus an "Nd" day suffix.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// SettingsPath is where user preferences (cache_enabled) live.
func SettingsPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "settings.yaml")
}

func CachePath() string {
	return filepath.Join(xdg.CacheHome, appName, "articles.db")
}

func LogPath() string {
	return filepath.Join(xdg.StateHome, appName, "artsearch.log")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the config at path (or the default location) on top of the
// embedded defaults. A missing file is not an error; defaults are written
// there on first run.
func Load(path string) (*Config, error) {
	cfg, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Non-fatal: embedded defaults still apply
			_ = writeDefaults(path)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Keys absent from the file keep their default values.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

func validate(cfg *Config) error {
	if cfg.SearchEndpoint == "" {
		return fmt.Errorf("search_endpoint is required")
	}
	u, err := url.Parse(cfg.SearchEndpoint)
	if err != nil {
		return fmt.Errorf("search_endpoint: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("search_endpoint: url scheme must be http or https, got %q", u.Scheme)
	}
	for name, v := range map[string]string{
		"refresh_interval": cfg.RefreshInterval,
		"fetch_timeout":    cfg.FetchTimeout,
		"probe_interval":   cfg.ProbeInterval,
	} {
		if v == "" {
			continue
		}
		if parseDuration(v, 0) == 0 {
			return fmt.Errorf("%s: invalid duration %q", name, v)
		}
	}
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q (valid: debug, info, warn, error)", cfg.LogLevel)
	}
	return nil
}
