package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/wikido/wikido-dispatch/internal/dispatch"
	"github.com/wikido/wikido-dispatch/internal/settings"
	"github.com/wikido/wikido-dispatch/internal/tenant"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

type dispatcherFunc func(tenant.ExecutionContext) (settings.TenantConfig, error)

func (f dispatcherFunc) Dispatch(ec tenant.ExecutionContext) (settings.TenantConfig, error) {
	return f(ec)
}

func newWebRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	dir := filepath.Join(root, "mywiki")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := `<?php
$wgSitename = "My Wiki";
$wgDBname = "mywiki_main";
$wgReadOnly = "Upgrading";
wfLoadExtensions( [ 'Cite', 'ParserFunctions' ] );
wfLoadSkin( 'Vector' );
`
	if err := os.WriteFile(filepath.Join(dir, "LocalSettings.php"), []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return root
}

func setupTestRouter(t *testing.T) (http.Handler, *controllableClock, string) {
	t.Helper()

	root := newWebRoot(t)
	resolver, err := tenant.New(tenant.Options{WebRoot: root})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	logger := zaptest.NewLogger(t)
	d := dispatch.New(resolver, settings.NewFileLoader(logger), dispatch.WithLogger(logger))
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))

	handler := NewHandler(d, WithClock(clock.Now))
	router := NewRouter(handler, logger, WithLogging(false))

	return router, clock, root
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	router, clock, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", clock.Now(), body.Timestamp)
	}
}

func TestTenantEndpointResolvesHost(t *testing.T) {
	router, _, root := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
	req.Host = "MyWiki.wikido.xyz:443"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Tenant         string         `json:"tenant"`
		Path           string         `json:"path"`
		SiteName       string         `json:"siteName"`
		ReadOnly       bool           `json:"readOnly"`
		ReadOnlyReason string         `json:"readOnlyReason"`
		Settings       map[string]any `json:"settings"`
		Extensions     []string       `json:"extensions"`
		Skins          []string       `json:"skins"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Tenant != "mywiki" {
		t.Fatalf("expected tenant mywiki, got %s", body.Tenant)
	}
	if want := filepath.Join(root, "mywiki", "LocalSettings.php"); body.Path != want {
		t.Fatalf("expected path %s, got %s", want, body.Path)
	}
	if body.SiteName != "My Wiki" {
		t.Fatalf("expected site name My Wiki, got %s", body.SiteName)
	}
	if !body.ReadOnly || body.ReadOnlyReason != "Upgrading" {
		t.Fatalf("expected read-only with reason, got %v %q", body.ReadOnly, body.ReadOnlyReason)
	}
	if body.Settings["wgDBname"] != "mywiki_main" {
		t.Fatalf("expected wgDBname in settings, got %v", body.Settings)
	}
	if len(body.Extensions) != 2 || body.Extensions[0] != "Cite" {
		t.Fatalf("unexpected extensions: %v", body.Extensions)
	}
	if len(body.Skins) != 1 || body.Skins[0] != "Vector" {
		t.Fatalf("unexpected skins: %v", body.Skins)
	}
}

func TestTenantEndpointErrors(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	tests := []struct {
		name   string
		host   string
		status int
	}{
		{name: "foreign host", host: "evil.example.com", status: http.StatusMisdirectedRequest},
		{name: "bare hosting domain", host: "wikido.xyz", status: http.StatusMisdirectedRequest},
		{name: "nested subdomain", host: "a.b.wikido.xyz", status: http.StatusMisdirectedRequest},
		{name: "unknown tenant", host: "ghost.wikido.xyz", status: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
			req.Host = tc.host
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}

			var body struct {
				Error   string `json:"error"`
				Details string `json:"details"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Error == "" || body.Details == "" {
				t.Fatalf("expected error and details, got %+v", body)
			}
		})
	}
}

func TestWriteDispatchErrorStatuses(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{tenant.ErrMissingContext, http.StatusBadRequest},
		{fmt.Errorf("%w: x", tenant.ErrUnrecognizedHost), http.StatusMisdirectedRequest},
		{fmt.Errorf("%w: x", tenant.ErrInvalidTenant), http.StatusBadRequest},
		{fmt.Errorf("%w: x", tenant.ErrUnknownTenant), http.StatusNotFound},
		{fmt.Errorf("load settings for x: %w", settings.ErrMalformed), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		rec := httptest.NewRecorder()
		writeDispatchError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, rec.Code)
		}
	}
}

func TestTenantEndpointUsesRequestHost(t *testing.T) {
	var got tenant.ExecutionContext
	handler := NewHandler(dispatcherFunc(func(ec tenant.ExecutionContext) (settings.TenantConfig, error) {
		got = ec
		return settings.TenantConfig{}, errors.New("stop")
	}))
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false))

	req := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
	req.Host = "docs.wikido.xyz:8080"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	want := tenant.WebRequest{ServerName: "docs.wikido.xyz"}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestTenantEndpointEmptyConfigEncodesCollections(t *testing.T) {
	handler := NewHandler(dispatcherFunc(func(tenant.ExecutionContext) (settings.TenantConfig, error) {
		return settings.TenantConfig{Tenant: "bare", Source: "/srv/bare/LocalSettings.php"}, nil
	}))
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false))

	req := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	for _, key := range []string{"settings", "extensions", "skins"} {
		if body[key] == nil {
			t.Fatalf("expected %s to be encoded as an empty collection", key)
		}
	}
}

func TestTenantEndpointUnencodableSettings(t *testing.T) {
	handler := NewHandler(dispatcherFunc(func(tenant.ExecutionContext) (settings.TenantConfig, error) {
		return settings.TenantConfig{
			Tenant:   "odd",
			Settings: map[string]any{"wgMaxArticleSize": math.Inf(1)},
		}, nil
	}))
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false))

	req := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	var body struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("expected a JSON error body: %v", err)
	}
	if body.Error == "" || body.Details == "" {
		t.Fatalf("expected error and details, got %+v", body)
	}
}

func TestTenantEndpointSkipsInfiniteLiterals(t *testing.T) {
	router, _, root := setupTestRouter(t)

	content := "<?php\n$wgSitename = 'Odd';\n$wgMaxArticleSize = INF;\n"
	path := filepath.Join(root, "mywiki", "LocalSettings.php")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
	req.Host = "mywiki.wikido.xyz"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		SiteName string         `json:"siteName"`
		Settings map[string]any `json:"settings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.SiteName != "Odd" {
		t.Fatalf("expected site name Odd, got %s", body.SiteName)
	}
	if _, ok := body.Settings["wgMaxArticleSize"]; ok {
		t.Fatalf("expected wgMaxArticleSize to be skipped, got %v", body.Settings)
	}
}

func TestCorsPreflight(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/tenant", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected Access-Control-Allow-Origin header to be set")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "test-request-id" {
		t.Fatalf("expected X-Request-ID header to be echoed, got %s", got)
	}
}
