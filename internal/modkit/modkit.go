// Package modkit provides module wiring and core deps
package modkit

import "reflect"

// Module is the common surface for service modules that expose ports
// keep this tiny so modules stay decoupled
type Module interface {
	// Ports returns a module specific port set for cross wiring
	Ports() any

	// Name returns the module name
	Name() string
}

// Builder constructs a Module from shared deps and options
type Builder func(Deps, ...Option) Module

// PortsOf pulls T out of a module's Ports() bundle. A bundle that implements
// T directly wins, otherwise exported struct fields are tried in order
func PortsOf[T any](m Module) (T, bool) {
	var zero T
	if m == nil || m.Ports() == nil {
		return zero, false
	}
	p := m.Ports()
	if v, ok := p.(T); ok {
		return v, true
	}
	rv := reflect.Indirect(reflect.ValueOf(p))
	if rv.Kind() != reflect.Struct {
		return zero, false
	}
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanInterface() {
			continue
		}
		if v, ok := f.Interface().(T); ok {
			return v, true
		}
	}
	return zero, false
}

// MustPortsOf panics when the module does not expose T
func MustPortsOf[T any](m Module) T {
	v, ok := PortsOf[T](m)
	if !ok {
		name := "<nil>"
		if m != nil {
			name = m.Name()
		}
		panic("modkit: requested port not found on module " + name)
	}
	return v
}
