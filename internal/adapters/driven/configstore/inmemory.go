// Package configstore provides configuration persistence adapters.
package configstore

import (
	"sync"

	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

// InMemoryStore holds configuration in memory. Useful for tests and for
// deployments that configure everything through the Caddyfile and never
// change it at runtime.
type InMemoryStore struct {
	mu  sync.RWMutex
	cfg domain.Config
}

// NewInMemoryStore creates a store seeded with the given configuration.
// The seed is not validated; it is the provisioning caller's configuration.
func NewInMemoryStore(seed domain.Config) *InMemoryStore {
	return &InMemoryStore{cfg: seed.Clone()}
}

// Load returns a snapshot of the current configuration.
func (s *InMemoryStore) Load() (domain.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone(), nil
}

// Save validates and replaces the configuration as a unit.
func (s *InMemoryStore) Save(cfg domain.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.Clone()
	return nil
}

// Interface guard
var _ ports.ConfigStore = (*InMemoryStore)(nil)
