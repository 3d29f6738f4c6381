package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile     = "config.yaml"
	DefaultEnvFile        = ".env"
	DefaultGraphBaseURL   = "https://graph.facebook.com"
	DefaultAppIDEnv       = "FACEBOOK_APP_ID"
	DefaultAppSecretEnv   = "FACEBOOK_APP_SECRET"
	DefaultPageLimit      = 9999
	DefaultGraphRPS       = 5.0
	DefaultGraphTimeout   = 30 * time.Second
	DefaultOEmbedURL      = "http://www.slideshare.net/api/oembed/2"
	DefaultOEmbedTimeout  = 10 * time.Second
	DefaultOEmbedCacheTTL = 24 * time.Hour
	DefaultOEmbedRPS      = 2.0
	DefaultEmbedWorkers   = 4
	DefaultRetainDays     = 30
	DefaultTimezone       = "UTC"
	DefaultFormat         = "terminal"
	DefaultServerAddr     = ":8080"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Graph   GraphConfig   `yaml:"graph"`
	Embeds  EmbedsConfig  `yaml:"embeds"`
	Storage StorageConfig `yaml:"storage"`
	Digest  DigestConfig  `yaml:"digest"`
	Server  ServerConfig  `yaml:"server"`
	Privacy PrivacyConfig `yaml:"privacy"`
	Log     LogConfig     `yaml:"log"`
}

type GraphConfig struct {
	BaseURL           string   `yaml:"base_url"`
	Version           string   `yaml:"version"`
	GroupID           string   `yaml:"group_id"`
	AppIDEnv          string   `yaml:"app_id_env"`
	AppSecretEnv      string   `yaml:"app_secret_env"`
	PageLimit         int      `yaml:"page_limit"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Timeout           Duration `yaml:"timeout"`

	// Resolved from env vars at load time.
	AppID     string `yaml:"-"`
	AppSecret string `yaml:"-"`
}

type EmbedsConfig struct {
	SlideShareOEmbedURL string   `yaml:"slideshare_oembed_url"`
	Timeout             Duration `yaml:"timeout"`
	CacheTTL            Duration `yaml:"cache_ttl"`
	Workers             int      `yaml:"workers"`
	RequestsPerSecond   float64  `yaml:"requests_per_second"`
}

// StorageConfig configures the persistent oEmbed cache. An empty Path
// disables it.
type StorageConfig struct {
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
}

type DigestConfig struct {
	Timezone string `yaml:"timezone"`
	Format   string `yaml:"format"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Patterns []string `yaml:"patterns"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config.yaml from dir, loads dir/.env when present, applies
// defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := loadDotEnv(filepath.Join(dir, DefaultEnvFile)); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Location returns the digest timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Digest.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// loadDotEnv loads KEY=VALUE pairs without overriding variables that are
// already set in the process environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Graph.BaseURL == "" {
		cfg.Graph.BaseURL = DefaultGraphBaseURL
	}
	if cfg.Graph.AppIDEnv == "" {
		cfg.Graph.AppIDEnv = DefaultAppIDEnv
	}
	if cfg.Graph.AppSecretEnv == "" {
		cfg.Graph.AppSecretEnv = DefaultAppSecretEnv
	}
	if cfg.Graph.PageLimit == 0 {
		cfg.Graph.PageLimit = DefaultPageLimit
	}
	if cfg.Graph.RequestsPerSecond == 0 {
		cfg.Graph.RequestsPerSecond = DefaultGraphRPS
	}
	if cfg.Graph.Timeout.Duration == 0 {
		cfg.Graph.Timeout.Duration = DefaultGraphTimeout
	}
	if cfg.Embeds.SlideShareOEmbedURL == "" {
		cfg.Embeds.SlideShareOEmbedURL = DefaultOEmbedURL
	}
	if cfg.Embeds.Timeout.Duration == 0 {
		cfg.Embeds.Timeout.Duration = DefaultOEmbedTimeout
	}
	if cfg.Embeds.CacheTTL.Duration == 0 {
		cfg.Embeds.CacheTTL.Duration = DefaultOEmbedCacheTTL
	}
	if cfg.Embeds.Workers == 0 {
		cfg.Embeds.Workers = DefaultEmbedWorkers
	}
	if cfg.Embeds.RequestsPerSecond == 0 {
		cfg.Embeds.RequestsPerSecond = DefaultOEmbedRPS
	}
	if cfg.Storage.RetainDays == 0 {
		cfg.Storage.RetainDays = DefaultRetainDays
	}
	if cfg.Digest.Timezone == "" {
		cfg.Digest.Timezone = DefaultTimezone
	}
	if cfg.Digest.Format == "" {
		cfg.Digest.Format = DefaultFormat
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func resolveEnv(cfg *Config) {
	cfg.Graph.AppID = os.Getenv(cfg.Graph.AppIDEnv)
	cfg.Graph.AppSecret = os.Getenv(cfg.Graph.AppSecretEnv)
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Graph.GroupID) == "" {
		return errors.New("graph.group_id is required")
	}
	if cfg.Graph.PageLimit < 0 {
		return fmt.Errorf("graph.page_limit: must be positive, got %d", cfg.Graph.PageLimit)
	}
	if cfg.Graph.RequestsPerSecond < 0 {
		return errors.New("graph.requests_per_second: must not be negative")
	}
	if cfg.Embeds.Workers < 0 {
		return fmt.Errorf("embeds.workers: must be positive, got %d", cfg.Embeds.Workers)
	}
	if cfg.Embeds.RequestsPerSecond < 0 {
		return errors.New("embeds.requests_per_second: must not be negative")
	}

	if _, err := time.LoadLocation(cfg.Digest.Timezone); err != nil {
		return fmt.Errorf("digest.timezone: %w", err)
	}

	switch cfg.Digest.Format {
	case "terminal", "json", "markdown", "html":
		// valid
	default:
		return fmt.Errorf("digest.format: unknown format %q (want terminal, json, markdown, or html)", cfg.Digest.Format)
	}

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case "text", "json":
		// valid
	default:
		return fmt.Errorf("log.format: unknown format %q (want text or json)", cfg.Log.Format)
	}

	if cfg.Privacy.Redact.Enabled {
		for _, p := range cfg.Privacy.Redact.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("privacy.redact: compile %q: %w", p, err)
			}
		}
	}

	return nil
}
