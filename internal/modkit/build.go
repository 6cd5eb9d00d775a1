package modkit

// Built is a plain struct with the fields modules care about
type Built struct {
	Name  string
	Ports any

	// Parallel is nil unless WithParallel was given
	Parallel *bool
}

// Build applies Option funcs and returns a plain struct
func Build(opts ...Option) Built {
	var c buildCfg
	for _, o := range opts {
		if o != nil {
			o(&c)
		}
	}
	return Built{Name: c.name, Ports: c.ports, Parallel: c.parallel}
}

// ParallelOr returns the forced mode or def
func (b Built) ParallelOr(def bool) bool {
	if b.Parallel == nil {
		return def
	}
	return *b.Parallel
}
