package timelog

import (
	"sort"
	"strings"
	"time"

	"logrep/internal/core/normalize"
	perr "logrep/internal/platform/errors"
	"logrep/internal/platform/logger"
)

const (
	// DefaultPeriod is the compaction bin width
	DefaultPeriod = 4 * time.Hour

	// DefaultMissingThreshold drops columns missing in at least this share of rows
	DefaultMissingThreshold = 0.95
)

// AdminFields are per-source field names with no analytical value; any
// field starting with "date_" is administrative as well
var AdminFields = []string{
	"id", "obs_id", "day_obs", "parent_id", "tags", "urls", "observers_crew",
	"instrument", "seq_num", "cscs", "site_id", "user_id", "user_agent",
	"is_human", "is_valid", "category", "level",
}

// CompactOptions tune Compact. The zero value is lossless with 4 h periods
type CompactOptions struct {
	Period time.Duration

	// AllowDataLoss enables the lossy steps: administrative columns, mostly
	// missing columns, list valued columns and duplicate rows within a period
	AllowDataLoss bool

	MissingThreshold float64

	// Admin replaces AdminFields when non-nil
	Admin []string
}

func (o CompactOptions) withDefaults() CompactOptions {
	if o.Period <= 0 {
		o.Period = DefaultPeriod
	}
	if o.MissingThreshold <= 0 || o.MissingThreshold > 1 {
		o.MissingThreshold = DefaultMissingThreshold
	}
	if o.Admin == nil {
		o.Admin = AdminFields
	}
	return o
}

// Report lists what Compact removed
type Report struct {
	Period         time.Duration `json:"period" yaml:"period"`
	AdminColumns   []string      `json:"admin_columns,omitempty" yaml:"admin_columns,omitempty"`
	MissingColumns []string      `json:"missing_columns,omitempty" yaml:"missing_columns,omitempty"`
	ListColumns    []string      `json:"list_columns,omitempty" yaml:"list_columns,omitempty"`
	EmptyColumns   []string      `json:"empty_columns,omitempty" yaml:"empty_columns,omitempty"`
	EmptyRows      int           `json:"empty_rows" yaml:"empty_rows"`
	DuplicateRows  int           `json:"duplicate_rows" yaml:"duplicate_rows"`
}

// Lossy reports whether any data carrying value was removed
func (r Report) Lossy() bool {
	return len(r.AdminColumns)+len(r.MissingColumns)+len(r.ListColumns)+r.DuplicateRows > 0
}

// Compact bins rows into absolute Period buckets, drops empty rows and
// columns and normalizes strings. With AllowDataLoss it also drops the columns
// and rows described on CompactOptions, logging each step
func Compact(f Frame, opts CompactOptions) (Frame, Report, error) {
	opts = opts.withDefaults()
	rep := Report{Period: opts.Period}
	if opts.Period < time.Minute {
		return Frame{}, rep, perr.Configf("timelog: period %s is below one minute", opts.Period)
	}
	log := logger.Named("timelog")
	out := f.Clone()

	if opts.AllowDataLoss {
		rep.AdminColumns = adminColumns(out.Columns, opts.Admin)
		out = out.without(set(rep.AdminColumns))
		logDrop(log, "administrative", rep.AdminColumns)

		rep.MissingColumns = missingColumns(out, opts.MissingThreshold)
		out = out.without(set(rep.MissingColumns))
		logDrop(log, "mostly missing", rep.MissingColumns)
	}

	rows := out.Rows[:0]
	for _, r := range out.Rows {
		if r.Empty() {
			rep.EmptyRows++
			continue
		}
		r.Period = r.Time.Truncate(opts.Period)
		for k, v := range r.Cells {
			if v == nil {
				delete(r.Cells, k)
				continue
			}
			r.Cells[k] = normalize.Value(v)
		}
		rows = append(rows, r)
	}
	out.Rows = rows

	rep.EmptyColumns = emptyColumns(out)
	out = out.without(set(rep.EmptyColumns))

	if opts.AllowDataLoss {
		rep.ListColumns = listColumns(out)
		out = out.without(set(rep.ListColumns))
		logDrop(log, "list valued", rep.ListColumns)

		out.Rows, rep.DuplicateRows = dedupe(out.Rows, out.Columns)
		if rep.DuplicateRows > 0 {
			log.Info().Int("rows", rep.DuplicateRows).Msg("dropped duplicate rows")
		}
	}
	return out, rep, nil
}

func logDrop(log *logger.Logger, reason string, cols []string) {
	if len(cols) == 0 {
		return
	}
	log.Info().Str("reason", reason).Strs("columns", cols).Msg("dropped columns")
}

func set(cols []string) map[string]bool {
	m := make(map[string]bool, len(cols))
	for _, c := range cols {
		m[c] = true
	}
	return m
}

// field strips the source tag from a column name
func field(col string) string {
	if i := strings.IndexByte(col, '_'); i >= 0 {
		return col[i+1:]
	}
	return col
}

func adminColumns(cols, admin []string) []string {
	names := set(admin)
	var out []string
	for _, c := range cols {
		f := field(c)
		if names[f] || strings.HasPrefix(f, "date_") {
			out = append(out, c)
		}
	}
	return out
}

// missingColumns returns columns absent in at least threshold of the rows
func missingColumns(f Frame, threshold float64) []string {
	n := f.Len()
	if n == 0 {
		return nil
	}
	var out []string
	for _, c := range f.Columns {
		missing := float64(n-f.Present(c)) / float64(n)
		if missing >= threshold {
			out = append(out, c)
		}
	}
	return out
}

func emptyColumns(f Frame) []string {
	var out []string
	for _, c := range f.Columns {
		if f.Present(c) == 0 {
			out = append(out, c)
		}
	}
	return out
}

func listColumns(f Frame) []string {
	var out []string
	for _, c := range f.Columns {
		if hasList(f, c) {
			out = append(out, c)
		}
	}
	return out
}

func hasList(f Frame, col string) bool {
	for _, r := range f.Rows {
		switch r.Cells[col].(type) {
		case []any, []string:
			return true
		}
	}
	return false
}

// dedupe keeps the first of rows with the same Period and cells. Time is
// ignored, matching rows a few seconds apart within a bin
func dedupe(rows []Row, cols []string) ([]Row, int) {
	sorted := append([]string(nil), cols...)
	sort.Strings(sorted)
	seen := map[string]bool{}
	out := rows[:0]
	dropped := 0
	for _, r := range rows {
		k := r.Period.String() + "#" + rowKey(r, sorted)
		if seen[k] {
			dropped++
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out, dropped
}
