package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/wikido/wikido-dispatch/internal/settings"
	"github.com/wikido/wikido-dispatch/internal/tenant"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// TenantDispatcher resolves an execution context to the tenant's settings.
type TenantDispatcher interface {
	Dispatch(ec tenant.ExecutionContext) (settings.TenantConfig, error)
}

// Handler wires the tenant dispatcher into HTTP handlers.
type Handler struct {
	dispatcher TenantDispatcher

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(dispatcher TenantDispatcher, opts ...HandlerOption) *Handler {
	h := &Handler{
		dispatcher: dispatcher,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTenant(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.dispatcher.Dispatch(tenant.WebRequestFromHost(r.Host))
	if err != nil {
		writeDispatchError(w, err)
		return
	}

	readOnly, reason := cfg.ReadOnly()
	resp := tenantResponse{
		Tenant:         cfg.Tenant,
		Path:           cfg.Source,
		SiteName:       cfg.SiteName(),
		ReadOnly:       readOnly,
		ReadOnlyReason: reason,
		Settings:       cfg.Settings,
		Extensions:     cfg.Extensions,
		Skins:          cfg.Skins,
	}
	if resp.Settings == nil {
		resp.Settings = map[string]any{}
	}
	if resp.Extensions == nil {
		resp.Extensions = []string{}
	}
	if resp.Skins == nil {
		resp.Skins = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeDispatchError maps dispatch failures to HTTP statuses. Host errors are
// checked first because a nested subdomain is both unrecognized and invalid.
func writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenant.ErrMissingContext):
		writeError(w, http.StatusBadRequest, "Missing host", err.Error())
	case errors.Is(err, tenant.ErrUnrecognizedHost):
		writeError(w, http.StatusMisdirectedRequest, "Unrecognized host", err.Error())
	case errors.Is(err, tenant.ErrInvalidTenant):
		writeError(w, http.StatusBadRequest, "Invalid tenant", err.Error())
	case errors.Is(err, tenant.ErrUnknownTenant):
		writeError(w, http.StatusNotFound, "Unknown tenant", err.Error())
	default:
		writeInternalError(w, err)
	}
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type tenantResponse struct {
	Tenant         string         `json:"tenant"`
	Path           string         `json:"path"`
	SiteName       string         `json:"siteName"`
	ReadOnly       bool           `json:"readOnly"`
	ReadOnlyReason string         `json:"readOnlyReason,omitempty"`
	Settings       map[string]any `json:"settings"`
	Extensions     []string       `json:"extensions"`
	Skins          []string       `json:"skins"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeJSON encodes payload before writing the status. An encoding failure
// is answered with a JSON 500.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{
			Error:   "Internal error",
			Details: "unable to encode response: " + err.Error(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{
		Error:   message,
		Details: details,
	})
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
