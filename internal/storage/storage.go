package storage

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/wikido/wikido-dispatch/internal/settings"
)

// Storage caches loaded tenant configurations keyed by settings file path.
//
// Every invalidation of a path advances its generation. PutIfGeneration lets a
// loader discard a value read before a concurrent invalidation.
type Storage interface {
	Get(path string) (settings.TenantConfig, bool)
	Put(path string, cfg settings.TenantConfig)
	PutIfGeneration(path string, cfg settings.TenantConfig, generation uint64) bool
	Generation(path string) uint64
	Invalidate(path string) bool
	Len() int
}

// MemoryStorage keeps tenant configurations in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu          sync.RWMutex
	configs     map[string]settings.TenantConfig
	generations map[string]uint64
}

// NewMemoryStorage initialises an empty cache.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		configs:     make(map[string]settings.TenantConfig),
		generations: make(map[string]uint64),
	}
}

// Get returns a deep copy of the configuration cached for path.
func (s *MemoryStorage) Get(path string) (settings.TenantConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[filepath.Clean(path)]
	if !ok {
		return settings.TenantConfig{}, false
	}
	return cfg.Clone(), true
}

// Put stores a deep copy of cfg under path.
func (s *MemoryStorage) Put(path string, cfg settings.TenantConfig) {
	clone := cfg.Clone()

	s.mu.Lock()
	s.configs[filepath.Clean(path)] = clone
	s.mu.Unlock()
}

// PutIfGeneration stores cfg only if path has not been invalidated since
// generation was read.
func (s *MemoryStorage) PutIfGeneration(path string, cfg settings.TenantConfig, generation uint64) bool {
	path = filepath.Clean(path)
	clone := cfg.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generations[path] != generation {
		return false
	}
	s.configs[path] = clone
	return true
}

// Generation returns the invalidation counter of path.
func (s *MemoryStorage) Generation(path string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generations[filepath.Clean(path)]
}

// Invalidate drops the entry for path and reports whether one existed.
func (s *MemoryStorage) Invalidate(path string) bool {
	path = filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generations[path]++
	if _, ok := s.configs[path]; !ok {
		return false
	}
	delete(s.configs, path)
	return true
}

// Len returns the number of cached configurations.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs)
}

// Paths returns the cached paths in sorted order.
func (s *MemoryStorage) Paths() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.configs))
	for path := range s.configs {
		out = append(out, path)
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}
