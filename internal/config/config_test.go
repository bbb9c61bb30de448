package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "WIKIDO_WEB_ROOT", "WIKIDO_HOSTING_DOMAIN", "WIKIDO_SETTINGS_FILE",
		"WIKIDO_TRUST_PROXY_HEADERS", "LOG_LEVEL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != defaultPort {
		t.Fatalf("expected default port %s, got %s", defaultPort, cfg.Port)
	}
	if cfg.WebRoot != "/srv/www/wikido.xyz" {
		t.Fatalf("unexpected web root: %s", cfg.WebRoot)
	}
	if cfg.HostingDomain != "wikido.xyz" {
		t.Fatalf("unexpected hosting domain: %s", cfg.HostingDomain)
	}
	if cfg.SettingsFile != "LocalSettings.php" {
		t.Fatalf("unexpected settings file: %s", cfg.SettingsFile)
	}
	if cfg.DatabaseSuffixLength != 5 {
		t.Fatalf("unexpected database suffix length: %d", cfg.DatabaseSuffixLength)
	}
	if cfg.EntryMarker != "MEDIAWIKI" {
		t.Fatalf("unexpected entry marker: %s", cfg.EntryMarker)
	}
	if !cfg.CacheSettings || cfg.TrustProxyHeaders {
		t.Fatalf("unexpected cache/proxy defaults: %v/%v", cfg.CacheSettings, cfg.TrustProxyHeaders)
	}
	if cfg.ShutdownGracePeriod != 10*time.Second {
		t.Fatalf("unexpected shutdown grace period: %s", cfg.ShutdownGracePeriod)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("WIKIDO_WEB_ROOT", "/var/wikis")
	t.Setenv("WIKIDO_HOSTING_DOMAIN", "example.org")
	t.Setenv("WIKIDO_TRUST_PROXY_HEADERS", "true")
	t.Setenv("RATE_LIMIT_RPS", "3")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "9000" {
		t.Fatalf("expected overridden port, got %s", cfg.Port)
	}
	if cfg.WebRoot != "/var/wikis" || cfg.HostingDomain != "example.org" {
		t.Fatalf("unexpected tenant settings: %s %s", cfg.WebRoot, cfg.HostingDomain)
	}
	if !cfg.TrustProxyHeaders {
		t.Fatalf("expected proxy headers to be trusted")
	}
	if cfg.RateLimitRPS != 3 {
		t.Fatalf("unexpected rate limit: %v", cfg.RateLimitRPS)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
port: "7070"
web_root: /data/wikis
hosting_domain: wiki.example
settings_file: LocalSettings.yaml
path_layout: "{{ .WebRoot }}/{{ .Tenant | lower }}/{{ .SettingsFile }}"
database_suffix_length: 3
cache_settings: false
enable_request_logging: false
log_level: debug
shutdown_grace_period: 2s
rate_limit:
  rps: 0
  burst: 0
global_settings:
  wgReadOnly: "Maintenance"
`)

	cfg, err := Load(&CLIOverrides{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "7070" || cfg.WebRoot != "/data/wikis" || cfg.HostingDomain != "wiki.example" {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if cfg.SettingsFile != "LocalSettings.yaml" || cfg.DatabaseSuffixLength != 3 {
		t.Fatalf("unexpected tenant options: %+v", cfg.TenantOptions())
	}
	if cfg.CacheSettings || cfg.EnableRequestLogging {
		t.Fatalf("expected cache and request logging to be disabled")
	}
	if cfg.LogLevel != "debug" || cfg.ShutdownGracePeriod != 2*time.Second {
		t.Fatalf("unexpected log level or grace period: %s %s", cfg.LogLevel, cfg.ShutdownGracePeriod)
	}
	if cfg.RateLimitRPS != 0 || cfg.RateLimitBurst != 0 {
		t.Fatalf("expected rate limiting to be disabled")
	}
	if cfg.GlobalSettings["wgReadOnly"] != "Maintenance" {
		t.Fatalf("unexpected global settings: %v", cfg.GlobalSettings)
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "port: \"7070\"\nweb_root: /yaml\n")
	t.Setenv("PORT", "8081")

	webRoot := "/cli"
	cfg, err := Load(&CLIOverrides{ConfigFile: path, WebRoot: &webRoot})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "8081" {
		t.Fatalf("expected env to override YAML, got %s", cfg.Port)
	}
	if cfg.WebRoot != "/cli" {
		t.Fatalf("expected CLI to override YAML, got %s", cfg.WebRoot)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	clearEnv(t)

	if _, err := Load(&CLIOverrides{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatalf("expected error for missing config file")
	}

	path := writeConfig(t, "write_timeout: soon\nidle_timeout: later\n")
	_, err := Load(&CLIOverrides{ConfigFile: path})
	if err == nil {
		t.Fatalf("expected error for invalid durations")
	}
	if !strings.Contains(err.Error(), "write_timeout") || !strings.Contains(err.Error(), "idle_timeout") {
		t.Fatalf("expected both invalid durations to be reported, got %v", err)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := defaultConfig()
	cfg.SettingsFile = "../LocalSettings.php"
	cfg.LogLevel = "loud"
	cfg.RateLimitBurst = -1
	cfg.PathLayout = "{{ .WebRoot "
	cfg.GlobalSettings = map[string]any{"wgMaxArticleSize": math.Inf(1)}

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"bare file name", "log level", "RATE_LIMIT_BURST", "path layout", "wgMaxArticleSize"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestTenantOptions(t *testing.T) {
	cfg := defaultConfig()
	opts := cfg.TenantOptions()
	if opts.WebRoot != cfg.WebRoot || opts.HostingDomain != cfg.HostingDomain || opts.DatabaseSuffixLength != 5 {
		t.Fatalf("unexpected tenant options: %+v", opts)
	}
}
