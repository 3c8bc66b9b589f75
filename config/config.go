// Package config loads server and engine settings from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/warp/timeline-engine/timeline"
)

// EnvPrefix namespaces environment overrides, e.g. TIMELINE_SERVER_PORT.
const EnvPrefix = "TIMELINE"

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Timeline  TimelineConfig  `yaml:"timeline" mapstructure:"timeline"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
}

// ServerConfig configures the HTTP surface and database.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	DB             string   `yaml:"db" mapstructure:"db"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// TimelineConfig configures the engine.
type TimelineConfig struct {
	GranularityMinutes int    `yaml:"granularity_minutes" mapstructure:"granularity_minutes"`
	DefaultPolicy      string `yaml:"default_policy" mapstructure:"default_policy"`
	Timezone           string `yaml:"timezone" mapstructure:"timezone"`
}

// SchedulerConfig configures the midnight rollover job.
type SchedulerConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval" mapstructure:"check_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			DB:             "timeline.db",
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Timeline: TimelineConfig{
			GranularityMinutes: 5,
			DefaultPolicy:      timeline.PreserveEnd.String(),
			Timezone:           "Local",
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			CheckInterval: time.Minute,
		},
	}
}

// Load reads path (optional) over the defaults, then applies TIMELINE_*
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs is Load reading from fs.
func LoadFs(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetFs(fs)
	setDefaults(v, cfg)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.db", cfg.Server.DB)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("timeline.granularity_minutes", cfg.Timeline.GranularityMinutes)
	v.SetDefault("timeline.default_policy", cfg.Timeline.DefaultPolicy)
	v.SetDefault("timeline.timezone", cfg.Timeline.Timezone)
	v.SetDefault("scheduler.enabled", cfg.Scheduler.Enabled)
	v.SetDefault("scheduler.check_interval", cfg.Scheduler.CheckInterval)
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Timeline.GranularityMinutes < 0 {
		return fmt.Errorf("timeline.granularity_minutes must not be negative: %d", c.Timeline.GranularityMinutes)
	}
	if _, err := timeline.ParseSplitPolicy(c.Timeline.DefaultPolicy); err != nil {
		return fmt.Errorf("timeline.default_policy: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Scheduler.Enabled && c.Scheduler.CheckInterval <= 0 {
		return fmt.Errorf("scheduler.check_interval must be positive: %s", c.Scheduler.CheckInterval)
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timeline.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timeline.timezone: %w", err)
	}
	return loc, nil
}

// EngineConfig translates the file settings into a timeline.Config.
func (c *Config) EngineConfig() (timeline.Config, error) {
	policy, err := timeline.ParseSplitPolicy(c.Timeline.DefaultPolicy)
	if err != nil {
		return timeline.Config{}, err
	}
	loc, err := c.Location()
	if err != nil {
		return timeline.Config{}, err
	}
	return timeline.Config{
		GranularityMinutes: c.Timeline.GranularityMinutes,
		DefaultPolicy:      policy,
		Location:           loc,
	}, nil
}
