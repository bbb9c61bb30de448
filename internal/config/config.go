package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/wikido/wikido-dispatch/internal/dispatch"
	"github.com/wikido/wikido-dispatch/internal/settings"
	"github.com/wikido/wikido-dispatch/internal/tenant"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultLogLevel       = "info"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > Environment variables > YAML config > Defaults
type Config struct {
	Port string `yaml:"port"`

	WebRoot              string `yaml:"web_root"`
	HostingDomain        string `yaml:"hosting_domain"`
	SettingsFile         string `yaml:"settings_file"`
	PathLayout           string `yaml:"path_layout"`
	DatabaseSuffixLength int    `yaml:"database_suffix_length"`
	EntryMarker          string `yaml:"entry_marker"`
	DatabaseVar          string `yaml:"database_var"`
	ServerNameVar        string `yaml:"server_name_var"`

	// GlobalSettings are applied to every tenant after its own settings file.
	GlobalSettings map[string]any `yaml:"global_settings"`

	CacheSettings     bool `yaml:"cache_settings"`
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	LogLevel             string        `yaml:"log_level"`
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    time.Duration `yaml:"read_header_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
	EnableRequestLogging bool          `yaml:"enable_request_logging"`
	RateLimitRPS         float64       `yaml:"-"`
	RateLimitBurst       int           `yaml:"-"`
}

// TenantOptions returns the resolver options described by the configuration.
func (c Config) TenantOptions() tenant.Options {
	return tenant.Options{
		WebRoot:              c.WebRoot,
		HostingDomain:        c.HostingDomain,
		SettingsFile:         c.SettingsFile,
		PathLayout:           c.PathLayout,
		DatabaseSuffixLength: c.DatabaseSuffixLength,
	}
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string         `yaml:"port"`
	WebRoot              string         `yaml:"web_root"`
	HostingDomain        string         `yaml:"hosting_domain"`
	SettingsFile         string         `yaml:"settings_file"`
	PathLayout           string         `yaml:"path_layout"`
	DatabaseSuffixLength *int           `yaml:"database_suffix_length"`
	EntryMarker          string         `yaml:"entry_marker"`
	DatabaseVar          string         `yaml:"database_var"`
	ServerNameVar        string         `yaml:"server_name_var"`
	GlobalSettings       map[string]any `yaml:"global_settings"`
	CacheSettings        *bool          `yaml:"cache_settings"`
	TrustProxyHeaders    *bool          `yaml:"trust_proxy_headers"`
	LogLevel             string         `yaml:"log_level"`
	ShutdownGracePeriod  string         `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string         `yaml:"read_header_timeout"`
	WriteTimeout         string         `yaml:"write_timeout"`
	IdleTimeout          string         `yaml:"idle_timeout"`
	EnableRequestLogging *bool          `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit  `yaml:"rate_limit"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	WebRoot        *string
	HostingDomain  *string
	SettingsFile   *string
	LogLevel       *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > Environment variables > YAML config > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Load from YAML file if specified
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	// Apply environment variables (override YAML)
	applyEnvConfig(&cfg)

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		WebRoot:              tenant.DefaultWebRoot,
		HostingDomain:        tenant.DefaultHostingDomain,
		SettingsFile:         tenant.DefaultSettingsFile,
		PathLayout:           tenant.DefaultLayout,
		DatabaseSuffixLength: tenant.DefaultDatabaseSuffixLength,
		EntryMarker:          dispatch.DefaultEntryMarker,
		DatabaseVar:          dispatch.DefaultDatabaseVar,
		ServerNameVar:        dispatch.DefaultServerNameVar,
		CacheSettings:        true,
		TrustProxyHeaders:    false,
		LogLevel:             defaultLogLevel,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	setString(&cfg.Port, yamlCfg.Port)
	setString(&cfg.WebRoot, yamlCfg.WebRoot)
	setString(&cfg.HostingDomain, yamlCfg.HostingDomain)
	setString(&cfg.SettingsFile, yamlCfg.SettingsFile)
	setString(&cfg.PathLayout, yamlCfg.PathLayout)
	setString(&cfg.EntryMarker, yamlCfg.EntryMarker)
	setString(&cfg.DatabaseVar, yamlCfg.DatabaseVar)
	setString(&cfg.ServerNameVar, yamlCfg.ServerNameVar)
	setString(&cfg.LogLevel, yamlCfg.LogLevel)

	if yamlCfg.DatabaseSuffixLength != nil {
		cfg.DatabaseSuffixLength = *yamlCfg.DatabaseSuffixLength
	}

	if len(yamlCfg.GlobalSettings) > 0 {
		cfg.GlobalSettings = yamlCfg.GlobalSettings
	}

	if yamlCfg.CacheSettings != nil {
		cfg.CacheSettings = *yamlCfg.CacheSettings
	}

	if yamlCfg.TrustProxyHeaders != nil {
		cfg.TrustProxyHeaders = *yamlCfg.TrustProxyHeaders
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	var errs *multierror.Error
	durations := []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", d.name, err))
			continue
		}
		*d.field = parsed
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	return errs.ErrorOrNil()
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	setString(&cfg.WebRoot, os.Getenv("WIKIDO_WEB_ROOT"))
	setString(&cfg.HostingDomain, os.Getenv("WIKIDO_HOSTING_DOMAIN"))
	setString(&cfg.SettingsFile, os.Getenv("WIKIDO_SETTINGS_FILE"))
	setString(&cfg.LogLevel, os.Getenv("LOG_LEVEL"))

	if trust := strings.TrimSpace(os.Getenv("WIKIDO_TRUST_PROXY_HEADERS")); trust != "" {
		if value, err := strconv.ParseBool(trust); err == nil {
			cfg.TrustProxyHeaders = value
		}
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil {
		setString(&cfg.Port, *overrides.Port)
	}
	if overrides.WebRoot != nil {
		setString(&cfg.WebRoot, *overrides.WebRoot)
	}
	if overrides.HostingDomain != nil {
		setString(&cfg.HostingDomain, *overrides.HostingDomain)
	}
	if overrides.SettingsFile != nil {
		setString(&cfg.SettingsFile, *overrides.SettingsFile)
	}
	if overrides.LogLevel != nil {
		setString(&cfg.LogLevel, *overrides.LogLevel)
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs *multierror.Error

	if strings.TrimSpace(c.Port) == "" {
		errs = multierror.Append(errs, fmt.Errorf("port cannot be empty"))
	}
	if strings.TrimSpace(c.WebRoot) == "" {
		errs = multierror.Append(errs, fmt.Errorf("web root cannot be empty"))
	}
	if strings.Trim(strings.TrimSpace(c.HostingDomain), ".") == "" {
		errs = multierror.Append(errs, fmt.Errorf("hosting domain cannot be empty"))
	}
	if strings.TrimSpace(c.SettingsFile) == "" {
		errs = multierror.Append(errs, fmt.Errorf("settings file cannot be empty"))
	} else if strings.ContainsAny(c.SettingsFile, `/\`) {
		errs = multierror.Append(errs, fmt.Errorf("settings file %q must be a bare file name", c.SettingsFile))
	}
	if c.DatabaseSuffixLength < 0 {
		errs = multierror.Append(errs, fmt.Errorf("database suffix length must be >= 0"))
	}
	if strings.TrimSpace(c.EntryMarker) == "" {
		errs = multierror.Append(errs, fmt.Errorf("entry marker cannot be empty"))
	}
	if _, err := tenant.NewLayout(c.PathLayout); err != nil {
		errs = multierror.Append(errs, err)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = multierror.Append(errs, fmt.Errorf("log level %q must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.RateLimitRPS < 0 {
		errs = multierror.Append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0"))
	}
	if c.RateLimitBurst < 0 {
		errs = multierror.Append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 0"))
	}

	names := make([]string, 0, len(c.GlobalSettings))
	for name := range c.GlobalSettings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !settings.Finite(c.GlobalSettings[name]) {
			errs = multierror.Append(errs, fmt.Errorf("global setting %s must not hold infinite or NaN numbers", name))
		}
	}

	return errs.ErrorOrNil()
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}
