package tenant

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// DefaultLayout places each tenant's settings file directly in its own
// directory under the web root.
const DefaultLayout = "{{ .WebRoot }}/{{ .Tenant }}/{{ .SettingsFile }}"

// Layout renders settings file paths from a text/template extended with the
// sprig function map.
type Layout struct {
	tmpl *template.Template
}

type layoutData struct {
	WebRoot      string
	Tenant       string
	SettingsFile string
}

// NewLayout parses a layout template. An empty text selects DefaultLayout.
func NewLayout(text string) (*Layout, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultLayout
	}
	tmpl, err := template.New("layout").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse path layout: %w", err)
	}
	return &Layout{tmpl: tmpl}, nil
}

// Path renders the settings file path for tenant.
func (l *Layout) Path(webRoot, tenant, settingsFile string) (string, error) {
	var buf bytes.Buffer
	data := layoutData{
		WebRoot:      webRoot,
		Tenant:       tenant,
		SettingsFile: settingsFile,
	}
	if err := l.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render path layout: %w", err)
	}
	rendered := strings.TrimSpace(buf.String())
	if rendered == "" {
		return "", fmt.Errorf("render path layout: empty path for tenant %q", tenant)
	}
	return filepath.Clean(rendered), nil
}
