package modkit

// Option mutates build configuration for a module
type Option func(*buildCfg)

// buildCfg is internal wiring state for options
type buildCfg struct {
	name     string
	ports    any
	parallel *bool
}

// WithName overrides the module name used in logs
func WithName(name string) Option {
	return func(c *buildCfg) { c.name = name }
}

// WithPorts injects ports the module would otherwise build itself
// the concrete type is owned by the importing module
func WithPorts[T any](p T) Option {
	return func(c *buildCfg) { c.ports = p }
}

// WithParallel forces the fan-out mode regardless of configuration
func WithParallel(on bool) Option {
	return func(c *buildCfg) { c.parallel = &on }
}
