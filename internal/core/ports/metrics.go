package ports

// MetricsRecorder is the port interface for recording metrics.
// Implementations are adapters (PrometheusRecorder for production,
// NoopRecorder for disabled/testing).
type MetricsRecorder interface {
	// RecordAuthOutcome records a terminal session-gate outcome
	// ("redirect", "authorized", "denied", "error").
	RecordAuthOutcome(outcome string)

	// RecordAccountCreated records a federation-provisioned account.
	RecordAccountCreated()

	// RecordRoleResolution records a role derivation; matched is true when
	// an explicit rule fired rather than the default role.
	RecordRoleResolution(role string, matched bool)

	// RecordConfigSave records a configuration replacement attempt.
	RecordConfigSave(success bool)
}
