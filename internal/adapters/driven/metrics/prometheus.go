package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bshelton229/caddy-shibboleth/internal/core/ports"
)

// PrometheusRecorder records metrics using Prometheus.
type PrometheusRecorder struct {
	authOutcomesTotal    *prometheus.CounterVec
	accountsCreatedTotal prometheus.Counter
	roleResolutionsTotal *prometheus.CounterVec
	configSavesTotal     *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new Prometheus metrics recorder using the
// default Prometheus registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusRecorderWithRegistry creates a new Prometheus metrics
// recorder with a custom registry. Use this for testing.
func NewPrometheusRecorderWithRegistry(reg prometheus.Registerer) *PrometheusRecorder {
	authOutcomesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shibboleth_auth_outcomes_total",
		Help: "Total session-gate terminal outcomes",
	}, []string{"outcome"})

	accountsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shibboleth_accounts_created_total",
		Help: "Total accounts provisioned from federation data",
	})

	roleResolutionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shibboleth_role_resolutions_total",
		Help: "Total role derivations",
	}, []string{"role", "result"})

	configSavesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shibboleth_config_saves_total",
		Help: "Total configuration replacement attempts",
	}, []string{"result"})

	reg.MustRegister(
		authOutcomesTotal,
		accountsCreatedTotal,
		roleResolutionsTotal,
		configSavesTotal,
	)

	return &PrometheusRecorder{
		authOutcomesTotal:    authOutcomesTotal,
		accountsCreatedTotal: accountsCreatedTotal,
		roleResolutionsTotal: roleResolutionsTotal,
		configSavesTotal:     configSavesTotal,
	}
}

// RecordAuthOutcome records a terminal session-gate outcome.
func (p *PrometheusRecorder) RecordAuthOutcome(outcome string) {
	p.authOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordAccountCreated records a federation-provisioned account.
func (p *PrometheusRecorder) RecordAccountCreated() {
	p.accountsCreatedTotal.Inc()
}

// RecordRoleResolution records a role derivation.
func (p *PrometheusRecorder) RecordRoleResolution(role string, matched bool) {
	result := "default"
	if matched {
		result = "rule"
	}
	p.roleResolutionsTotal.WithLabelValues(role, result).Inc()
}

// RecordConfigSave records a configuration replacement attempt.
func (p *PrometheusRecorder) RecordConfigSave(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	p.configSavesTotal.WithLabelValues(result).Inc()
}

// Interface guard
var _ ports.MetricsRecorder = (*PrometheusRecorder)(nil)
