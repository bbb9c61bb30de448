package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// maxSettingsFileSize caps the size of a settings file (1MB).
	maxSettingsFileSize = 1 << 20

	worldWritableBits = 0o002
)

// Loader turns a tenant's settings file into a TenantConfig.
type Loader interface {
	Load(tenant, path string) (TenantConfig, error)
}

// FileLoader reads settings files from the local filesystem.
type FileLoader struct {
	logger *zap.Logger
}

// NewFileLoader creates a FileLoader. A nil logger disables warnings.
func NewFileLoader(logger *zap.Logger) *FileLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileLoader{logger: logger}
}

// LoadTenantConfig loads the settings file at path for tenant without logging.
func LoadTenantConfig(tenant, path string) (TenantConfig, error) {
	return NewFileLoader(nil).Load(tenant, path)
}

// Load reads and decodes the settings file at path. The decoder is selected
// by file extension.
func (l *FileLoader) Load(tenant, path string) (TenantConfig, error) {
	decode, err := decoderFor(path)
	if err != nil {
		return TenantConfig{}, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return TenantConfig{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return TenantConfig{}, fmt.Errorf("stat settings file %s: %w", path, err)
	}
	if info.IsDir() {
		return TenantConfig{}, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	if info.Size() > maxSettingsFileSize {
		return TenantConfig{}, fmt.Errorf("%w: %s exceeds %d bytes (got %d bytes)", ErrTooLarge, path, maxSettingsFileSize, info.Size())
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&worldWritableBits != 0 {
		l.logger.Warn("settings file is world-writable",
			zap.String("tenant", tenant),
			zap.String("path", path),
			zap.String("mode", fmt.Sprintf("%04o", info.Mode().Perm())),
		)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return TenantConfig{}, fmt.Errorf("read settings file %s: %w", path, err)
	}

	cfg := TenantConfig{
		Tenant:   tenant,
		Source:   path,
		Settings: map[string]any{},
	}
	if err := decode(data, &cfg); err != nil {
		return TenantConfig{}, fmt.Errorf("decode settings file %s: %w", path, err)
	}
	if len(cfg.Unparsed) > 0 {
		l.logger.Debug("settings statements skipped",
			zap.String("tenant", tenant),
			zap.String("path", path),
			zap.Int("count", len(cfg.Unparsed)),
		)
	}

	return cfg, nil
}

type decodeFunc func(data []byte, cfg *TenantConfig) error

func decoderFor(path string) (decodeFunc, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".php":
		return decodePHP, nil
	case ".yaml", ".yml":
		return decodeYAML, nil
	case ".json":
		return decodeJSON, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// structuredSettings is the YAML and JSON settings file layout.
type structuredSettings struct {
	Settings   map[string]any `json:"settings" yaml:"settings"`
	Extensions []string       `json:"extensions" yaml:"extensions"`
	Skins      []string       `json:"skins" yaml:"skins"`
}

func decodeYAML(data []byte, cfg *TenantConfig) error {
	var doc structuredSettings
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	applyStructured(doc, cfg)
	return nil
}

func decodeJSON(data []byte, cfg *TenantConfig) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var doc structuredSettings
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	applyStructured(doc, cfg)
	return nil
}

// applyStructured copies doc into cfg. Settings holding infinite or NaN
// numbers (YAML .inf, .nan) are moved to Unparsed.
func applyStructured(doc structuredSettings, cfg *TenantConfig) {
	keys := make([]string, 0, len(doc.Settings))
	for k := range doc.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := doc.Settings[k]
		if !Finite(v) {
			cfg.Unparsed = append(cfg.Unparsed, fmt.Sprintf("%s: %v", k, v))
			continue
		}
		cfg.Settings[k] = v
	}
	cfg.Extensions = append(cfg.Extensions, doc.Extensions...)
	cfg.Skins = append(cfg.Skins, doc.Skins...)
}

// Finite reports whether v, and everything nested in it, is free of infinite
// and NaN numbers.
func Finite(v any) bool {
	switch val := v.(type) {
	case float64:
		return isFinite(val)
	case float32:
		return isFinite(float64(val))
	case []any:
		for _, item := range val {
			if !Finite(item) {
				return false
			}
		}
	case map[string]any:
		for _, item := range val {
			if !Finite(item) {
				return false
			}
		}
	}
	return true
}
