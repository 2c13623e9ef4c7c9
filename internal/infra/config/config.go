// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Admin     AdminConfig             `yaml:"admin"`
	Spotify   SpotifyConfig           `yaml:"spotify"`
	Scheduler SchedulerConfig         `yaml:"scheduler"`
	Library   LibraryConfig           `yaml:"library"`
	Mix       MixConfig               `yaml:"mix"`
	Filters   map[string]FilterConfig `yaml:"filters"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr        string      `yaml:"addr" default:":8080"`
	MetricsPath string      `yaml:"metrics_path" default:"/metrics" validate:"omitempty,startswith=/"`
	Hooks       HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	TokenPath    string `yaml:"token_path" default:"credentials.json"`
	DeviceID     string `yaml:"device_id"`
	DeviceName   string `yaml:"device_name"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// SchedulerConfig represents the mixer tick configuration.
type SchedulerConfig struct {
	IntervalSec         int   `yaml:"interval_sec" default:"30" validate:"gte=1,lte=3600"`
	DefaultRetryAfterMs int   `yaml:"default_retry_after_ms" default:"1000" validate:"gte=1,lte=600000"`
	TickOnStart         *bool `yaml:"tick_on_start" default:"true"`
}

// LibraryConfig represents library cache configuration.
type LibraryConfig struct {
	RefreshOnStart *bool `yaml:"refresh_on_start" default:"true"`
	Concurrency    int   `yaml:"concurrency" default:"4" validate:"gte=1,lte=16"`
}

// MixConfig represents the mix installed at start.
type MixConfig struct {
	Sources []MixSourceConfig `yaml:"sources" validate:"dive"`
}

// MixSourceConfig represents one weighted playlist.
type MixSourceConfig struct {
	Playlist string  `yaml:"playlist" validate:"required"` // ID, URI or URL
	Weight   float64 `yaml:"weight" validate:"gte=0,lte=1"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	seen := make(map[string]bool, len(c.Mix.Sources))
	for _, s := range c.Mix.Sources {
		if seen[s.Playlist] {
			return errors.Newf("mix source %s is listed twice", s.Playlist)
		}
		seen[s.Playlist] = true
	}
	return nil
}

// Interval returns the time between ticks.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSec) * time.Second
}

// DefaultRetryAfter returns the wait used when a throttled response has no Retry-After.
func (s SchedulerConfig) DefaultRetryAfter() time.Duration {
	return time.Duration(s.DefaultRetryAfterMs) * time.Millisecond
}

// ShouldTickOnStart reports whether the first tick runs immediately.
func (s SchedulerConfig) ShouldTickOnStart() bool {
	return s.TickOnStart == nil || *s.TickOnStart
}

// ShouldRefreshOnStart reports whether the library is fetched at start.
func (l LibraryConfig) ShouldRefreshOnStart() bool {
	return l.RefreshOnStart == nil || *l.RefreshOnStart
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
