package source

import (
	"sort"

	perr "logrep/internal/platform/errors"
)

// Status is the per-endpoint outcome of one Fetch
type Status struct {
	EndpointURL     string     `json:"endpoint_url" yaml:"endpoint_url"`
	NumberOfRecords int        `json:"number_of_records" yaml:"number_of_records"`
	Pages           int        `json:"pages,omitempty" yaml:"pages,omitempty"`
	Truncated       bool       `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	NoRecords       bool       `json:"no_records,omitempty" yaml:"no_records,omitempty"`
	Cached          bool       `json:"cached,omitempty" yaml:"cached,omitempty"`
	Error           *perr.Wire `json:"error,omitempty" yaml:"error,omitempty"`

	// Err keeps the original error for in-process callers
	Err error `json:"-" yaml:"-"`
}

// OK reports whether the endpoint completed without error
func (s Status) OK() bool { return s.Err == nil }

// Fail records err on the status
func (s *Status) Fail(err error) {
	if err == nil {
		return
	}
	w := perr.WireFrom(err)
	s.Err = err
	s.Error = &w
}

// StatusMap maps endpoint name to its status
type StatusMap map[string]Status

// Names returns the endpoint names in sorted order
func (m StatusMap) Names() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Failed returns the names of endpoints that recorded an error
func (m StatusMap) Failed() []string {
	var out []string
	for _, k := range m.Names() {
		if !m[k].OK() {
			out = append(out, k)
		}
	}
	return out
}

// Records sums number_of_records across endpoints
func (m StatusMap) Records() int {
	n := 0
	for _, s := range m {
		n += s.NumberOfRecords
	}
	return n
}

// Clone returns a shallow copy safe to hand to callers
func (m StatusMap) Clone() StatusMap {
	out := make(StatusMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
