// Package headers implements the attribute source over HTTP request headers
// injected by the upstream Service Provider (ShibUseHeaders deployments).
package headers

import (
	"net/http"

	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

// RequestSource reads attributes from the current request's headers.
// Lookup is a pure read: no normalization beyond Go's canonical header-name
// matching, empty values read as absent, unknown names never error.
type RequestSource struct {
	r *http.Request
}

// NewRequestSource wraps a request as an attribute source.
func NewRequestSource(r *http.Request) *RequestSource {
	return &RequestSource{r: r}
}

// Get returns the attribute value, or "" when absent.
func (s *RequestSource) Get(name string) string {
	return s.r.Header.Get(name)
}

// MapSource is a fixed attribute set, used by tests and provisioning checks.
type MapSource map[string]string

// Get returns the attribute value, or "" when absent.
func (m MapSource) Get(name string) string {
	return m[name]
}

// Interface guards
var (
	_ ports.AttributeSource = (*RequestSource)(nil)
	_ ports.AttributeSource = (MapSource)(nil)
)
