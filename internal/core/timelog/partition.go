package timelog

import (
	"logrep/internal/platform/strings"
)

// DefaultMaxWidth is the widest value a dense column may hold, in runes
const DefaultMaxWidth = 80

// PartitionOptions tune Partition
type PartitionOptions struct {
	// MaxWidth moves a column to the sparse side when any value is wider
	MaxWidth int
	// MinDensity, when set, also moves columns present in fewer than this
	// share of rows
	MinDensity float64
}

// Partition splits columns into a dense frame of short values for inline
// tables and a sparse frame of long free text for an appendix. Both keep
// every row; a column is always on exactly one side
func Partition(f Frame, opts PartitionOptions) (dense, sparse Frame) {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultMaxWidth
	}
	var dcols, scols []string
	for _, c := range f.Columns {
		if isSparse(f, c, opts) {
			scols = append(scols, c)
		} else {
			dcols = append(dcols, c)
		}
	}
	return f.Select(dcols), f.Select(scols)
}

func isSparse(f Frame, col string, opts PartitionOptions) bool {
	if opts.MinDensity > 0 && f.Len() > 0 {
		if float64(f.Present(col))/float64(f.Len()) < opts.MinDensity {
			return true
		}
	}
	for _, r := range f.Rows {
		v := r.Cells[col]
		if v == nil {
			continue
		}
		if strings.Width(render(v)) > opts.MaxWidth {
			return true
		}
	}
	return false
}
