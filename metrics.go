package caddyshib

import (
	"github.com/bshelton229/caddy-shibboleth/internal/adapters/driven/metrics"
	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

// Re-export the metrics port and its adapters
type MetricsRecorder = ports.MetricsRecorder
type NoopRecorder = metrics.NoopRecorder
type PrometheusRecorder = metrics.PrometheusRecorder

var (
	NewNoopRecorder                  = metrics.NewNoopRecorder
	NewPrometheusRecorder            = metrics.NewPrometheusRecorder
	NewPrometheusRecorderWithRegistry = metrics.NewPrometheusRecorderWithRegistry
)
