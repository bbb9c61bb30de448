package tenant

import (
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// DefaultWebRoot is the directory holding one subdirectory per tenant.
	DefaultWebRoot = "/srv/www/wikido.xyz"
	// DefaultHostingDomain is the DNS suffix shared by all tenants.
	DefaultHostingDomain = "wikido.xyz"
	// DefaultSettingsFile is the per-tenant settings file name.
	DefaultSettingsFile = "LocalSettings.php"
	// DefaultDatabaseSuffixLength is the length of the suffix appended to a
	// tenant name to form its database name, e.g. "_main".
	DefaultDatabaseSuffixLength = 5
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Options configures New.
type Options struct {
	WebRoot              string
	HostingDomain        string
	SettingsFile         string
	PathLayout           string
	DatabaseSuffixLength int
}

type hostResolver struct {
	webRoot      string
	settingsFile string
	suffixLen    int
	hostPattern  *regexp.Regexp
	layout       *Layout
}

// New creates a Resolver mapping hostnames under the hosting domain, and
// database names carrying the fixed suffix, to settings files under the web root.
// Zero-valued options fall back to the package defaults.
func New(opts Options) (Resolver, error) {
	webRoot := strings.TrimSpace(opts.WebRoot)
	if webRoot == "" {
		webRoot = DefaultWebRoot
	}
	domain := strings.Trim(strings.ToLower(strings.TrimSpace(opts.HostingDomain)), ".")
	if domain == "" {
		domain = DefaultHostingDomain
	}
	settingsFile := strings.TrimSpace(opts.SettingsFile)
	if settingsFile == "" {
		settingsFile = DefaultSettingsFile
	}
	if strings.ContainsAny(settingsFile, `/\`) {
		return nil, fmt.Errorf("settings file %q must be a bare file name", settingsFile)
	}
	suffixLen := opts.DatabaseSuffixLength
	if suffixLen == 0 {
		suffixLen = DefaultDatabaseSuffixLength
	}
	if suffixLen < 0 {
		return nil, fmt.Errorf("database suffix length must be >= 0, got %d", suffixLen)
	}

	layout, err := NewLayout(opts.PathLayout)
	if err != nil {
		return nil, err
	}

	return &hostResolver{
		webRoot:      webRoot,
		settingsFile: settingsFile,
		suffixLen:    suffixLen,
		hostPattern:  regexp.MustCompile(`^(.+)\.` + regexp.QuoteMeta(domain) + `$`),
		layout:       layout,
	}, nil
}

func (r *hostResolver) Resolve(ec ExecutionContext) (Resolution, error) {
	var (
		tenant string
		err    error
	)
	switch c := ec.(type) {
	case CommandLineInvocation:
		tenant, err = r.tenantFromDatabase(c.DatabaseName)
	case WebRequest:
		tenant, err = r.tenantFromServerName(c.ServerName)
	case nil:
		return Resolution{}, ErrMissingContext
	default:
		return Resolution{}, fmt.Errorf("unsupported execution context %T", ec)
	}
	if err != nil {
		return Resolution{}, err
	}

	path, err := r.layout.Path(r.webRoot, tenant, r.settingsFile)
	if err != nil {
		return Resolution{}, err
	}

	return Resolution{
		Kind:   ec.Kind(),
		Tenant: tenant,
		Dir:    filepath.Dir(path),
		Path:   path,
	}, nil
}

func (r *hostResolver) tenantFromDatabase(dbName string) (string, error) {
	dbName = strings.TrimSpace(dbName)
	if len(dbName) <= r.suffixLen {
		return "", fmt.Errorf("%w: database name %q is too short to carry a %d-character suffix", ErrInvalidTenant, dbName, r.suffixLen)
	}
	tenant := dbName[:len(dbName)-r.suffixLen]
	if !identifierPattern.MatchString(tenant) {
		return "", fmt.Errorf("%w: %q derived from database name %q", ErrInvalidTenant, tenant, dbName)
	}
	return tenant, nil
}

func (r *hostResolver) tenantFromServerName(serverName string) (string, error) {
	server := normalizeServerName(serverName)
	if server == "" {
		return "", ErrMissingContext
	}
	matches := r.hostPattern.FindStringSubmatch(server)
	if matches == nil {
		return "", fmt.Errorf("%w: request for host %s should not reach this resolver", ErrUnrecognizedHost, serverName)
	}
	tenant := matches[1]
	if !identifierPattern.MatchString(tenant) {
		return "", fmt.Errorf("%w: request for host %s should not reach this resolver: %w", ErrUnrecognizedHost, serverName, ErrInvalidTenant)
	}
	return tenant, nil
}

// WebRequestFromHost builds a WebRequest from an HTTP Host value, dropping
// any port.
func WebRequestFromHost(host string) WebRequest {
	return WebRequest{ServerName: stripPort(strings.TrimSpace(host))}
}

func normalizeServerName(serverName string) string {
	server := stripPort(strings.TrimSpace(serverName))
	server = strings.TrimSuffix(server, ".")
	return strings.ToLower(server)
}

func stripPort(host string) string {
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(host, "[]")
}
