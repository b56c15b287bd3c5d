// Package metrics provides MetricsRecorder adapters.
package metrics

import (
	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

// NoopRecorder is a no-op implementation for when metrics are disabled.
// All methods are safe to call and do nothing.
type NoopRecorder struct{}

// NewNoopRecorder creates a new no-op metrics recorder.
func NewNoopRecorder() *NoopRecorder {
	return &NoopRecorder{}
}

// RecordAuthOutcome is a no-op.
func (n *NoopRecorder) RecordAuthOutcome(outcome string) {}

// RecordAccountCreated is a no-op.
func (n *NoopRecorder) RecordAccountCreated() {}

// RecordRoleResolution is a no-op.
func (n *NoopRecorder) RecordRoleResolution(role string, matched bool) {}

// RecordConfigSave is a no-op.
func (n *NoopRecorder) RecordConfigSave(success bool) {}

// Interface guard
var _ ports.MetricsRecorder = (*NoopRecorder)(nil)
