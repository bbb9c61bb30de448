// Package config loads runtime configuration from multiple sources (YAML files,
// environment variables, CLI flags) with precedence: CLI flags > Environment
// variables > YAML config > Defaults. Besides the HTTP server settings it
// carries the tenant layout (web root, hosting domain, settings file name) and
// the global settings applied to every tenant.
package config
