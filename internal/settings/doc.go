// Package settings loads a tenant's settings file into a TenantConfig value.
// PHP settings files are read, never executed: literal assignments and
// extension/skin loading calls are extracted and every other statement is
// kept aside verbatim. YAML and JSON settings files are decoded directly.
package settings
