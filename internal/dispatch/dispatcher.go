package dispatch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/wikido/wikido-dispatch/internal/settings"
	"github.com/wikido/wikido-dispatch/internal/tenant"
)

// ErrNoEntryPoint is returned when the dispatcher runs outside the wiki's
// entry points. Callers must stop without output.
var ErrNoEntryPoint = errors.New("not invoked through a wiki entry point")

// Dispatcher resolves an execution context to a tenant and loads its settings.
type Dispatcher struct {
	resolver tenant.Resolver
	loader   settings.Loader
	logger   *zap.Logger

	globals map[string]any

	guardEnv    Environment
	entryMarker string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEntryGuard makes Dispatch refuse to run unless marker is defined in env.
func WithEntryGuard(env Environment, marker string) Option {
	return func(d *Dispatcher) {
		if marker == "" {
			marker = DefaultEntryMarker
		}
		d.guardEnv = env
		d.entryMarker = marker
	}
}

// WithGlobalSettings applies settings to every tenant after its own file.
func WithGlobalSettings(globals map[string]any) Option {
	return func(d *Dispatcher) {
		d.globals = globals
	}
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New constructs a Dispatcher.
func New(resolver tenant.Resolver, loader settings.Loader, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver: resolver,
		loader:   loader,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch returns the configuration of the tenant addressed by ec.
func (d *Dispatcher) Dispatch(ec tenant.ExecutionContext) (settings.TenantConfig, error) {
	if d.guardEnv != nil {
		if _, ok := d.guardEnv.Lookup(d.entryMarker); !ok {
			return settings.TenantConfig{}, ErrNoEntryPoint
		}
	}

	res, err := d.resolver.Resolve(ec)
	if err != nil {
		return settings.TenantConfig{}, err
	}

	info, err := os.Stat(res.Dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return settings.TenantConfig{}, fmt.Errorf("%w: %s has no directory at %s", tenant.ErrUnknownTenant, res.Tenant, res.Dir)
	case err != nil:
		return settings.TenantConfig{}, fmt.Errorf("stat tenant directory %s: %w", res.Dir, err)
	case !info.IsDir():
		return settings.TenantConfig{}, fmt.Errorf("%w: %s is not a directory", tenant.ErrUnknownTenant, res.Dir)
	}

	cfg, err := d.loader.Load(res.Tenant, res.Path)
	if err != nil {
		return settings.TenantConfig{}, fmt.Errorf("load settings for %s: %w", res.Tenant, err)
	}

	d.logger.Debug("tenant dispatched",
		zap.String("kind", res.Kind.String()),
		zap.String("tenant", res.Tenant),
		zap.String("path", res.Path),
	)

	return cfg.WithOverrides(d.globals), nil
}
