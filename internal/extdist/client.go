package extdist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultDistributorURL is the ExtensionDistributor special page.
	DefaultDistributorURL = "https://www.mediawiki.org/wiki/Special:ExtensionDistributor"
	// DefaultBundleBaseURL prefixes every bundle download link.
	DefaultBundleBaseURL = "https://extdist.wmflabs.org/dist/extensions/"
	// DefaultMediaWikiVersion is the release branch used when none is given.
	DefaultMediaWikiVersion = "1.35"

	maxPageSize = 8 << 20
)

// Bundle identifies one downloadable extension snapshot.
type Bundle struct {
	Extension string
	// Name is the bundle base name, for example Cite-REL1_35-8f0c5d4.
	Name string
	URL  string
}

// Client downloads MediaWiki extension bundles.
type Client struct {
	httpClient     *http.Client
	distributorURL string
	bundleBaseURL  string
	logger         *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithDistributorURL overrides the distributor page location.
func WithDistributorURL(u string) Option {
	return func(c *Client) {
		c.distributorURL = u
	}
}

// WithBundleBaseURL overrides the prefix bundle links are matched against.
func WithBundleBaseURL(u string) Option {
	return func(c *Client) {
		c.bundleBaseURL = u
	}
}

// WithLogger sets the logger used for progress messages.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: 5 * time.Minute},
		distributorURL: DefaultDistributorURL,
		bundleBaseURL:  DefaultBundleBaseURL,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReleaseBranch converts a MediaWiki version to its branch name, 1.35 -> REL1_35.
func ReleaseBranch(mwVersion string) string {
	return "REL" + strings.ReplaceAll(strings.TrimSpace(mwVersion), ".", "_")
}

// FindBundle looks up the bundle of extension for the given MediaWiki version.
func (c *Client) FindBundle(ctx context.Context, extension, mwVersion string) (Bundle, error) {
	extension = strings.TrimSpace(extension)
	if extension == "" {
		return Bundle{}, fmt.Errorf("%w: empty extension name", ErrExtensionNotFound)
	}
	if mwVersion == "" {
		mwVersion = DefaultMediaWikiVersion
	}
	branch := ReleaseBranch(mwVersion)

	q := url.Values{}
	q.Set("extdistname", extension)
	q.Set("extdistversion", branch)
	pageURL := c.distributorURL + "?" + q.Encode()
	c.logger.Debug("fetching distributor page", zap.String("url", pageURL))

	body, err := c.get(ctx, pageURL)
	if err != nil {
		return Bundle{}, err
	}
	defer body.Close()

	page, err := io.ReadAll(io.LimitReader(body, maxPageSize))
	if err != nil {
		return Bundle{}, fmt.Errorf("read distributor page: %w", err)
	}

	pattern := regexp.MustCompile(regexp.QuoteMeta(c.bundleBaseURL) +
		`(` + regexp.QuoteMeta(extension+"-"+branch) + `-\w{7})\.tar\.gz`)
	c.logger.Debug("searching distributor page", zap.String("pattern", pattern.String()))

	m := pattern.FindSubmatch(page)
	if m == nil {
		return Bundle{}, fmt.Errorf("%w: %s for %s", ErrExtensionNotFound, extension, branch)
	}
	return Bundle{
		Extension: extension,
		Name:      string(m[1]),
		URL:       string(m[0]),
	}, nil
}

// Fetch downloads bundle into targetDir. Without extract the tarball is saved
// as <bundle>.tar.gz. With extract it is unpacked and the extension directory
// is renamed to the bundle name. The written path is returned.
func (c *Client) Fetch(ctx context.Context, bundle Bundle, targetDir string, extract bool) (string, error) {
	if targetDir == "" {
		targetDir = "."
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("create target directory: %w", err)
	}

	c.logger.Info("downloading extension bundle",
		zap.String("extension", bundle.Extension),
		zap.String("url", bundle.URL),
		zap.String("target_dir", targetDir),
		zap.Bool("extract", extract),
	)

	body, err := c.get(ctx, bundle.URL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	if !extract {
		return saveArchive(body, filepath.Join(targetDir, bundle.Name+".tar.gz"))
	}

	if err := extractTarGz(body, targetDir); err != nil {
		return "", err
	}

	from := filepath.Join(targetDir, bundle.Extension)
	to := filepath.Join(targetDir, bundle.Name)
	if err := os.Rename(from, to); err != nil {
		return "", fmt.Errorf("rename %s to %s: %w", from, to, err)
	}
	return to, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", rawURL, resp.Status)
	}
	return resp.Body, nil
}

func saveArchive(r io.Reader, path string) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}
