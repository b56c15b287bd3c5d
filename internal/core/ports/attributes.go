package ports

// AttributeSource is the port interface for reading attributes asserted by
// the upstream Service Provider for the current request.
//
// Get returns "" for unknown or empty attributes; absence is a normal
// outcome, not an error. Implementations perform no normalization beyond
// treating empty as absent and must have no side effects.
type AttributeSource interface {
	Get(name string) string
}
