package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wikido/wikido-dispatch/internal/api"
	"github.com/wikido/wikido-dispatch/internal/config"
	"github.com/wikido/wikido-dispatch/internal/dispatch"
	"github.com/wikido/wikido-dispatch/internal/settings"
	"github.com/wikido/wikido-dispatch/internal/storage"
	"github.com/wikido/wikido-dispatch/internal/tenant"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	dispatcher *dispatch.Dispatcher
	storage    *storage.MemoryStorage
	watcher    *storage.Watcher
	handler    *api.Handler
	router     http.Handler
	logger     *zap.Logger
	server     *http.Server

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDispatcher builds a tenant dispatcher from cfg reading settings through
// loader. A nil loader reads settings files directly.
func NewDispatcher(cfg config.Config, loader settings.Loader, logger *zap.Logger, opts ...dispatch.Option) (*dispatch.Dispatcher, error) {
	resolver, err := tenant.New(cfg.TenantOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to build tenant resolver: %w", err)
	}
	if loader == nil {
		loader = settings.NewFileLoader(logger)
	}

	opts = append([]dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithGlobalSettings(cfg.GlobalSettings),
	}, opts...)
	return dispatch.New(resolver, loader, opts...), nil
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	app := &App{logger: logger}

	var loader settings.Loader = settings.NewFileLoader(logger)
	if cfg.CacheSettings {
		store := storage.NewMemoryStorage()
		watcher, err := storage.NewWatcher(store, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create settings watcher: %w", err)
		}
		loader = storage.NewCachingLoader(loader, store, watcher, logger)
		app.storage = store
		app.watcher = watcher
	}

	dispatcher, err := NewDispatcher(cfg, loader, logger)
	if err != nil {
		app.closeWatcher()
		return nil, err
	}

	handler := api.NewHandler(dispatcher)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithTrustProxyHeaders(cfg.TrustProxyHeaders),
	)

	app.dispatcher = dispatcher
	app.handler = handler
	app.router = apiRouter
	app.server = NewServer(cfg, BuildRootHandler(apiRouter))
	return app, nil
}

// BuildRootHandler constructs the root HTTP handler that routes API requests.
// Everything outside /api/ is not found.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.NotFoundHandler())
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the settings watcher and the HTTP server in goroutines and logs
// the listening address.
func (a *App) Start() error {
	if a.watcher != nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.watcher.Run(ctx); err != nil {
				a.logger.Error("settings watcher stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Close stops the settings watcher. The HTTP server is shut down separately.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		if a.storage != nil {
			a.logger.Debug("releasing settings cache",
				zap.Strings("cached_settings", a.storage.Paths()),
				zap.Int("watched_dirs", a.watcher.Dirs()),
			)
		}
		err = a.closeWatcher()
		a.wg.Wait()
	})
	return err
}

func (a *App) closeWatcher() error {
	if a.watcher == nil {
		return nil
	}
	return a.watcher.Close()
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}
