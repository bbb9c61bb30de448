package settings

import (
	"math"
	"strconv"
	"strings"
)

// Well-known MediaWiki setting names.
const (
	KeySiteName = "wgSitename"
	KeyServer   = "wgServer"
	KeyDBName   = "wgDBname"
	KeyReadOnly = "wgReadOnly"
)

// TenantConfig is the structured form of one tenant's settings file. It is
// handed to the wiki's initializer instead of executing the file.
type TenantConfig struct {
	Tenant     string         `json:"tenant" yaml:"tenant"`
	Source     string         `json:"source" yaml:"source"`
	Settings   map[string]any `json:"settings" yaml:"settings"`
	Extensions []string       `json:"extensions" yaml:"extensions"`
	Skins      []string       `json:"skins" yaml:"skins"`
	// Unparsed holds statements of a PHP settings file that are not plain
	// literal assignments or extension loads. They are never executed.
	Unparsed []string `json:"unparsed,omitempty" yaml:"unparsed,omitempty"`
}

// Value returns the raw value of a setting.
func (c TenantConfig) Value(name string) (any, bool) {
	v, ok := c.Settings[name]
	return v, ok
}

// String returns a setting as a string. Numbers and booleans are formatted.
func (c TenantConfig) String(name string) (string, bool) {
	v, ok := c.Settings[name]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}

// Bool returns a setting as a boolean.
func (c TenantConfig) Bool(name string) (bool, bool) {
	v, ok := c.Settings[name].(bool)
	return v, ok
}

// Int returns a setting as an int. Floats are accepted when integral.
func (c TenantConfig) Int(name string) (int, bool) {
	switch val := c.Settings[name].(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int(val), true
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int(val), true
	default:
		return 0, false
	}
}

// SiteName returns $wgSitename.
func (c TenantConfig) SiteName() string {
	s, _ := c.String(KeySiteName)
	return s
}

// Server returns $wgServer.
func (c TenantConfig) Server() string {
	s, _ := c.String(KeyServer)
	return s
}

// DBName returns $wgDBname.
func (c TenantConfig) DBName() string {
	s, _ := c.String(KeyDBName)
	return s
}

// ReadOnly reports whether $wgReadOnly puts the wiki in read-only mode, and
// the message shown to editors. MediaWiki treats false, null and the empty
// string as writable.
func (c TenantConfig) ReadOnly() (bool, string) {
	switch val := c.Settings[KeyReadOnly].(type) {
	case string:
		msg := strings.TrimSpace(val)
		return msg != "", msg
	case bool:
		return val, ""
	default:
		return false, ""
	}
}

// WithOverrides returns a copy of c with overrides applied on top of its
// settings. Nil or empty overrides return an unmodified copy.
func (c TenantConfig) WithOverrides(overrides map[string]any) TenantConfig {
	out := c.Clone()
	if len(overrides) == 0 {
		return out
	}
	if out.Settings == nil {
		out.Settings = make(map[string]any, len(overrides))
	}
	for k, v := range overrides {
		out.Settings[k] = cloneValue(v)
	}
	return out
}

// Clone returns a deep copy of c.
func (c TenantConfig) Clone() TenantConfig {
	out := TenantConfig{
		Tenant:     c.Tenant,
		Source:     c.Source,
		Extensions: cloneStrings(c.Extensions),
		Skins:      cloneStrings(c.Skins),
		Unparsed:   cloneStrings(c.Unparsed),
	}
	if c.Settings != nil {
		out.Settings = cloneMap(c.Settings)
	}
	return out
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
