// Package config loads collector settings from YAML or JSON files, a .env
// file and ADREPORT_* environment variables, in that order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"adreport/internal/model"
)

const envPrefix = "ADREPORT_"

// Configuration validation errors.
var (
	ErrMissingDatabasePath = errors.New("database.path is required")
	ErrMissingHTTPAddr     = errors.New("http.addr is required")
	ErrInvalidTimeout      = errors.New("timeouts must be positive")
	ErrInvalidRateTTL      = errors.New("rates.ttl must be positive")
	ErrNoApps              = errors.New("validation.apps must not be empty")
	ErrNoPlatforms         = errors.New("validation.platforms must not be empty")
	ErrInvalidCacheSize    = errors.New("cache.size must be at least 1")
	ErrInvalidLogLevel     = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidNetwork      = errors.New("seed.networks entries need name, url and date_format")
	ErrInvalidSeedRate     = errors.New("seed.currencies values must be positive decimals")
)

type Config struct {
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	HTTP       HTTPConfig       `json:"http" yaml:"http"`
	Fetch      FetchConfig      `json:"fetch" yaml:"fetch"`
	Rates      RatesConfig      `json:"rates" yaml:"rates"`
	Validation ValidationConfig `json:"validation" yaml:"validation"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Seed       SeedConfig       `json:"seed" yaml:"seed"`
}

type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

type HTTPConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

type FetchConfig struct {
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	UserAgent string        `json:"user_agent" yaml:"user_agent"`
	MaxBodyMB int           `json:"max_body_mb" yaml:"max_body_mb"`
}

type RatesConfig struct {
	TTL     time.Duration `json:"ttl" yaml:"ttl"`
	Update  bool          `json:"update" yaml:"update"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	// APIKey is only read from APILAYER_API_KEY.
	APIKey  string        `json:"-" yaml:"-"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

type ValidationConfig struct {
	Apps       []string `json:"apps" yaml:"apps"`
	Platforms  []string `json:"platforms" yaml:"platforms"`
	KeepTotals bool     `json:"keep_totals" yaml:"keep_totals"`
}

type CacheConfig struct {
	Size int           `json:"size" yaml:"size"`
	TTL  time.Duration `json:"ttl" yaml:"ttl"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

type SeedConfig struct {
	Currencies map[string]string `json:"currencies" yaml:"currencies"`
	Networks   []NetworkConfig   `json:"networks" yaml:"networks"`
}

type NetworkConfig struct {
	Name       string `json:"name" yaml:"name"`
	URL        string `json:"url" yaml:"url"`
	DateFormat string `json:"date_format" yaml:"date_format"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "adreport.db"},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:   20 * time.Second,
			UserAgent: "adreport/0.1",
			MaxBodyMB: 32,
		},
		Rates: RatesConfig{
			TTL:     7 * 24 * time.Hour,
			Update:  true,
			BaseURL: "https://api.apilayer.com/",
			Timeout: 10 * time.Second,
		},
		Validation: ValidationConfig{
			Apps: []string{
				"Talking Tom",
				"Talking Angela",
				"Talking Ginger",
				"Talking Ben",
				"My Talking Tom",
				"My Talking Angela",
				"Talking Tom Gold Run",
			},
			Platforms: []string{"iOS", "Android"},
		},
		Cache: CacheConfig{
			Size: 64,
			TTL:  10 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
		Seed: SeedConfig{
			Currencies: map[string]string{
				"USD": "1",
				"EUR": "1.19",
				"GBP": "1.35",
				"CNY": "0.15",
				"HKD": "0.13",
			},
			Networks: []NetworkConfig{
				{
					Name:       "SuperNetwork",
					URL:        "https://storage.googleapis.com/expertise-test/supernetwork/report/daily/{}.csv",
					DateFormat: "%Y-%m-%d",
				},
				{
					Name:       "AdUmbrella",
					URL:        "https://storage.googleapis.com/expertise-test/reporting/adumbrella/adumbrella-{}.csv",
					DateFormat: "%-d_%-m_%Y",
				},
			},
		},
	}
}

// Load builds the effective configuration: defaults, then the optional
// config file, then .env and the process environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

func LoadFromEnv(cfg *Config) error {
	if v := getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	// SERVER/SERVER_PORT are the names used by older deployments.
	if host, port := strings.TrimSpace(os.Getenv("SERVER")), strings.TrimSpace(os.Getenv("SERVER_PORT")); port != "" && getenv("HTTP_ADDR") == "" {
		cfg.HTTP.Addr = host + ":" + port
	}

	if v := getenv("FETCH_USER_AGENT"); v != "" {
		cfg.Fetch.UserAgent = v
	}
	if err := durationFromEnv("FETCH_TIMEOUT", &cfg.Fetch.Timeout); err != nil {
		return err
	}

	if err := durationFromEnv("RATES_TTL", &cfg.Rates.TTL); err != nil {
		return err
	}
	if v := getenv("RATES_UPDATE"); v != "" {
		update, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sRATES_UPDATE: %w", envPrefix, err)
		}
		cfg.Rates.Update = update
	}
	if v := getenv("RATES_BASE_URL"); v != "" {
		cfg.Rates.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("APILAYER_API_KEY")); v != "" {
		cfg.Rates.APIKey = v
	}

	if v := getenv("VALIDATION_APPS"); v != "" {
		cfg.Validation.Apps = splitList(v)
	}
	if v := getenv("VALIDATION_PLATFORMS"); v != "" {
		cfg.Validation.Platforms = splitList(v)
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return ErrMissingDatabasePath
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return ErrMissingHTTPAddr
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.Fetch.Timeout <= 0 || c.Rates.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Rates.TTL <= 0 {
		return ErrInvalidRateTTL
	}
	if len(c.Validation.Apps) == 0 {
		return ErrNoApps
	}
	if len(c.Validation.Platforms) == 0 {
		return ErrNoPlatforms
	}
	if c.Cache.Size < 1 {
		return ErrInvalidCacheSize
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}

	for i, network := range c.Seed.Networks {
		if network.Name == "" || network.URL == "" || network.DateFormat == "" {
			return fmt.Errorf("%w: networks[%d]", ErrInvalidNetwork, i)
		}
	}
	if _, err := c.SeedRates(); err != nil {
		return err
	}

	return nil
}

// SeedRates parses the configured default exchange rates.
func (c *Config) SeedRates() (map[model.Currency]decimal.Decimal, error) {
	rates := make(map[model.Currency]decimal.Decimal, len(c.Seed.Currencies))
	for name, value := range c.Seed.Currencies {
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSeedRate, name)
		}
		rates[model.Currency(strings.ToUpper(strings.TrimSpace(name)))] = rate
	}
	return rates, nil
}

// SeedNetworks returns the configured ad network descriptors.
func (c *Config) SeedNetworks() []model.AdNetwork {
	networks := make([]model.AdNetwork, 0, len(c.Seed.Networks))
	for _, network := range c.Seed.Networks {
		networks = append(networks, model.AdNetwork{
			Name:        network.Name,
			URLTemplate: network.URL,
			DateFormat:  network.DateFormat,
		})
	}
	return networks
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func durationFromEnv(key string, dst *time.Duration) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = d
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
