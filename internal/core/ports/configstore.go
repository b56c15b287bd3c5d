package ports

import (
	"github.com/bshelton229/caddy-shibboleth/internal/core/domain"
)

// ConfigStore is the port interface for configuration persistence.
// Implementations must be safe for concurrent use: resolution reads on every
// request while an administrative caller may replace the configuration.
type ConfigStore interface {
	// Load returns an independent snapshot of the current configuration.
	// The snapshot is immutable from the store's point of view.
	Load() (domain.Config, error)

	// Save validates and atomically replaces the configuration as a unit.
	// A validation failure leaves the stored configuration untouched.
	Save(cfg domain.Config) error
}
