// Package timelog merges independently timestamped record sets into one
// chronological, column-prefixed frame and compacts it for presentation.
// Input records are never mutated; every Frame is owned by the call that made it
package timelog

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Row is one point on the shared time axis. Cells holds only present values
type Row struct {
	Time   time.Time      `json:"time" yaml:"time"`
	Period time.Time      `json:"period,omitzero" yaml:"period,omitempty"`
	Cells  map[string]any `json:"cells" yaml:"cells"`
}

// Get returns the cell value, nil when absent
func (r Row) Get(col string) any { return r.Cells[col] }

// Empty reports whether the row has no present cells
func (r Row) Empty() bool {
	for _, v := range r.Cells {
		if v != nil {
			return false
		}
	}
	return true
}

func (r Row) clone() Row {
	c := Row{Time: r.Time, Period: r.Period, Cells: make(map[string]any, len(r.Cells))}
	for k, v := range r.Cells {
		c.Cells[k] = v
	}
	return c
}

// Frame is an ordered column list and rows sorted by Time
type Frame struct {
	Columns []string `json:"columns" yaml:"columns"`
	Rows    []Row    `json:"rows" yaml:"rows"`
}

// Len returns the number of rows
func (f Frame) Len() int { return len(f.Rows) }

// Present counts rows with a non-nil value in col
func (f Frame) Present(col string) int {
	n := 0
	for _, r := range f.Rows {
		if r.Cells[col] != nil {
			n++
		}
	}
	return n
}

// Column returns the values of col in row order; absent values are nil
func (f Frame) Column(col string) []any {
	out := make([]any, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r.Cells[col]
	}
	return out
}

// Times returns the distinct row times in order
func (f Frame) Times() []time.Time {
	var out []time.Time
	for i, r := range f.Rows {
		if i == 0 || !r.Time.Equal(f.Rows[i-1].Time) {
			out = append(out, r.Time)
		}
	}
	return out
}

// HasColumn reports whether col is part of the frame
func (f Frame) HasColumn(col string) bool {
	for _, c := range f.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of rows and columns
func (f Frame) Clone() Frame {
	out := Frame{Columns: append([]string(nil), f.Columns...), Rows: make([]Row, len(f.Rows))}
	for i, r := range f.Rows {
		out.Rows[i] = r.clone()
	}
	return out
}

// without returns a copy of f dropping the named columns
func (f Frame) without(drop map[string]bool) Frame {
	if len(drop) == 0 {
		return f
	}
	out := Frame{Rows: make([]Row, len(f.Rows))}
	for _, c := range f.Columns {
		if !drop[c] {
			out.Columns = append(out.Columns, c)
		}
	}
	for i, r := range f.Rows {
		nr := Row{Time: r.Time, Period: r.Period, Cells: make(map[string]any, len(r.Cells))}
		for k, v := range r.Cells {
			if !drop[k] {
				nr.Cells[k] = v
			}
		}
		out.Rows[i] = nr
	}
	return out
}

// Select returns a copy holding only cols, in the given order
func (f Frame) Select(cols []string) Frame {
	keep := map[string]bool{}
	for _, c := range cols {
		keep[c] = true
	}
	drop := map[string]bool{}
	for _, c := range f.Columns {
		if !keep[c] {
			drop[c] = true
		}
	}
	out := f.without(drop)
	if len(drop) == 0 {
		out = f.Clone()
	}
	var ordered []string
	for _, c := range cols {
		if out.HasColumn(c) {
			ordered = append(ordered, c)
		}
	}
	out.Columns = ordered
	return out
}

// rowKey renders the cells of r in column order, used for duplicate detection
func rowKey(r Row, cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		v := r.Cells[c]
		if v == nil {
			b.WriteString("\x00|")
			continue
		}
		fmt.Fprintf(&b, "%T:%v|", v, v)
	}
	return b.String()
}

func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })
}
