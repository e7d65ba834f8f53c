// Package config loads FieldSync settings from a YAML file with
// FIELDSYNC_* environment overrides.
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/location"
	"github.com/kimhsiao/fieldsync/internal/models"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FIELDSYNC_"

// Config is the complete runtime configuration.
type Config struct {
	API          APIConfig          `yaml:"api" json:"api"`
	DataDir      string             `yaml:"dataDir" json:"dataDir"`
	Sync         SyncConfig         `yaml:"sync" json:"sync"`
	Location     LocationConfig     `yaml:"location" json:"location"`
	Connectivity ConnectivityConfig `yaml:"connectivity" json:"connectivity"`
	Desktop      DesktopConfig      `yaml:"desktop" json:"desktop"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`
	Tracing      TracingConfig      `yaml:"tracing" json:"tracing"`
}

// APIConfig locates the backend.
type APIConfig struct {
	BaseURL string   `yaml:"baseUrl" json:"baseUrl"`
	Timeout Duration `yaml:"timeout" json:"timeout"`
	Token   string   `yaml:"token" json:"token"`
}

// SyncConfig controls the scheduler and the retry budget.
type SyncConfig struct {
	Interval   Duration `yaml:"interval" json:"interval"`
	MaxRetries int      `yaml:"maxRetries" json:"maxRetries"`
}

// LocationConfig controls the location sampler.
type LocationConfig struct {
	Interval          Duration `yaml:"interval" json:"interval"`
	MinDistanceMeters float64  `yaml:"minDistanceMeters" json:"minDistanceMeters"`
	Accuracy          string   `yaml:"accuracy" json:"accuracy"`
	Platform          string   `yaml:"platform" json:"platform"`
}

// ConnectivityConfig controls the reachability probe.
type ConnectivityConfig struct {
	ProbeURL      string   `yaml:"probeUrl" json:"probeUrl"`
	ProbeInterval Duration `yaml:"probeInterval" json:"probeInterval"`
	ProbeTimeout  Duration `yaml:"probeTimeout" json:"probeTimeout"`
}

// DesktopConfig controls the localhost API.
type DesktopConfig struct {
	ListenAddr string `yaml:"listenAddr" json:"listenAddr"`
}

// LoggingConfig sets the minimum log level.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// TracingConfig enables the stdout span exporter.
type TracingConfig struct {
	Stdout bool `yaml:"stdout" json:"stdout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:5000",
			Timeout: Duration(15 * time.Second),
		},
		DataDir: "./data",
		Sync: SyncConfig{
			Interval:   Duration(5 * time.Minute),
			MaxRetries: 3,
		},
		Location: LocationConfig{
			Interval:          Duration(5 * time.Minute),
			MinDistanceMeters: 50,
			Accuracy:          string(location.AccuracyBalanced),
			Platform:          string(models.PlatformAndroid),
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: Duration(30 * time.Second),
			ProbeTimeout:  Duration(3 * time.Second),
		},
		Desktop: DesktopConfig{ListenAddr: "127.0.0.1:8090"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrConfig, "failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrConfig, "failed to parse config file", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML or JSON over the defaults and validates the result.
// Environment overrides are not applied.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrConfig, "failed to parse config", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from FIELDSYNC_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		if err := dst.parse(v); err != nil {
			return errors.Wrap(errors.ErrConfig, EnvPrefix+name, err)
		}
		return nil
	}

	str("API_BASE_URL", &c.API.BaseURL)
	str("API_TOKEN", &c.API.Token)
	str("DATA_DIR", &c.DataDir)
	str("LOCATION_ACCURACY", &c.Location.Accuracy)
	str("PLATFORM", &c.Location.Platform)
	str("PROBE_URL", &c.Connectivity.ProbeURL)
	str("LISTEN_ADDR", &c.Desktop.ListenAddr)
	str("LOG_LEVEL", &c.Logging.Level)

	for name, dst := range map[string]*Duration{
		"API_TIMEOUT":       &c.API.Timeout,
		"SYNC_INTERVAL":     &c.Sync.Interval,
		"LOCATION_INTERVAL": &c.Location.Interval,
		"PROBE_INTERVAL":    &c.Connectivity.ProbeInterval,
	} {
		if err := dur(name, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup(EnvPrefix + "MAX_RETRIES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.ErrConfig, EnvPrefix+"MAX_RETRIES", err)
		}
		c.Sync.MaxRetries = n
	}
	if v, ok := lookup(EnvPrefix + "TRACING_STDOUT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(errors.ErrConfig, EnvPrefix+"TRACING_STDOUT", err)
		}
		c.Tracing.Stdout = b
	}
	return nil
}

// Validate checks every field the core depends on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Newf(errors.ErrConfig, "api.baseUrl %q must be an http(s) URL", c.API.BaseURL)
	}
	if c.DataDir == "" {
		return errors.New(errors.ErrConfig, "dataDir is required")
	}

	positive := map[string]Duration{
		"api.timeout":                c.API.Timeout,
		"sync.interval":              c.Sync.Interval,
		"location.interval":          c.Location.Interval,
		"connectivity.probeInterval": c.Connectivity.ProbeInterval,
		"connectivity.probeTimeout":  c.Connectivity.ProbeTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			return errors.Newf(errors.ErrConfig, "%s must be positive, got %s", name, d)
		}
	}

	if c.Sync.MaxRetries < 0 {
		return errors.Newf(errors.ErrConfig, "sync.maxRetries must not be negative, got %d", c.Sync.MaxRetries)
	}
	if c.Location.MinDistanceMeters < 0 {
		return errors.Newf(errors.ErrConfig, "location.minDistanceMeters must not be negative")
	}
	if !location.Accuracy(c.Location.Accuracy).Valid() {
		return errors.Newf(errors.ErrConfig, "unknown location.accuracy %q", c.Location.Accuracy)
	}
	switch models.Platform(c.Location.Platform) {
	case models.PlatformAndroid, models.PlatformIOS, models.PlatformWeb, models.PlatformDesktop:
	default:
		return errors.Newf(errors.ErrConfig, "unknown location.platform %q", c.Location.Platform)
	}
	if c.Connectivity.ProbeURL != "" {
		if _, err := url.Parse(c.Connectivity.ProbeURL); err != nil {
			return errors.Wrap(errors.ErrConfig, "invalid connectivity.probeUrl", err)
		}
	}
	return nil
}

// ProbeURL returns the reachability URL, defaulting to the backend health
// endpoint.
func (c *Config) ProbeURL() string {
	if c.Connectivity.ProbeURL != "" {
		return c.Connectivity.ProbeURL
	}
	return strings.TrimRight(c.API.BaseURL, "/") + "/api/health"
}

// LocationOptions converts the location section for the sampler.
func (c *Config) LocationOptions() location.Options {
	return location.Options{
		Interval:          c.Location.Interval.Std(),
		MinDistanceMeters: c.Location.MinDistanceMeters,
		Accuracy:          location.Accuracy(c.Location.Accuracy),
		Platform:          models.Platform(c.Location.Platform),
	}
}
