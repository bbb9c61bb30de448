package storage

import (
	"go.uber.org/zap"

	"github.com/wikido/wikido-dispatch/internal/settings"
)

// CachingLoader serves tenant configurations from a Storage, falling back to
// the wrapped loader on a miss.
type CachingLoader struct {
	next    settings.Loader
	store   Storage
	watcher *Watcher
	logger  *zap.Logger
}

// NewCachingLoader wraps next with store. When watcher is nil entries are never
// invalidated by filesystem changes.
func NewCachingLoader(next settings.Loader, store Storage, watcher *Watcher, logger *zap.Logger) *CachingLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingLoader{
		next:    next,
		store:   store,
		watcher: watcher,
		logger:  logger,
	}
}

// Load implements settings.Loader.
func (c *CachingLoader) Load(tenant, path string) (settings.TenantConfig, error) {
	if cfg, ok := c.store.Get(path); ok {
		return cfg, nil
	}

	cacheable := true
	if c.watcher != nil {
		if err := c.watcher.Watch(path); err != nil {
			c.logger.Warn("settings file not cached, watch failed",
				zap.String("tenant", tenant),
				zap.String("path", path),
				zap.Error(err),
			)
			cacheable = false
		}
	}

	generation := c.store.Generation(path)
	cfg, err := c.next.Load(tenant, path)
	if err != nil {
		return settings.TenantConfig{}, err
	}

	if cacheable {
		c.store.PutIfGeneration(path, cfg, generation)
	}
	return cfg, nil
}
