package timelog

import (
	"sort"
	"strings"
	"time"

	"logrep/internal/core/record"
	perr "logrep/internal/platform/errors"
)

// Agg is how Reduce combines the values of one column within a period
type Agg uint8

const (
	// AggAuto picks by column name and value kinds
	AggAuto Agg = iota
	// AggText joins unique non-null values with a blank line
	AggText
	// AggLabel joins unique non-null values with ", "
	AggLabel
	// AggSum adds numeric values
	AggSum
	// AggDrop removes the column
	AggDrop
)

// String names the aggregation for logs
func (a Agg) String() string {
	switch a {
	case AggText:
		return "text"
	case AggLabel:
		return "label"
	case AggSum:
		return "sum"
	case AggDrop:
		return "drop"
	default:
		return "auto"
	}
}

// ReduceDrop are columns Reduce removes unless overridden
var ReduceDrop = []string{
	"NIG_id", "NIG_day_obs", "NIG_user_id", "NIG_date_added", "NIG_date_sent", "NIG_parent_id",
	"NAR_id", "NAR_date_begin", "NAR_user_id", "NAR_date_added", "NAR_parent_id", "NAR_date_end",
}

// textColumns are free-text fields aggregated as paragraphs
var textColumns = map[string]bool{"NIG_telescope_status": true, "NIG_summary": true}

// ReduceOptions tune Reduce
type ReduceOptions struct {
	// Aggs overrides the aggregation of named columns
	Aggs map[string]Agg
	// Drop replaces ReduceDrop when non-nil
	Drop []string
}

// Reduce collapses a compacted frame to one row per period. The row Time is
// the period start. Frames without periods (not compacted) are rejected
func Reduce(f Frame, opts ReduceOptions) (Frame, error) {
	drop := opts.Drop
	if drop == nil {
		drop = ReduceDrop
	}
	dropped := set(drop)

	aggs := map[string]Agg{}
	var cols []string
	for _, c := range f.Columns {
		a := opts.Aggs[c]
		if a == AggAuto && dropped[c] {
			a = AggDrop
		}
		if a == AggAuto {
			a = inferAgg(f, c)
		}
		if a == AggDrop {
			continue
		}
		aggs[c] = a
		cols = append(cols, c)
	}

	groups := map[time.Time][]Row{}
	var periods []time.Time
	for _, r := range f.Rows {
		if r.Period.IsZero() {
			return Frame{}, perr.Configf("timelog: reduce needs a compacted frame (row at %s has no period)", r.Time.Format(time.RFC3339))
		}
		if _, ok := groups[r.Period]; !ok {
			periods = append(periods, r.Period)
		}
		groups[r.Period] = append(groups[r.Period], r)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	out := Frame{Columns: cols, Rows: make([]Row, 0, len(periods))}
	for _, p := range periods {
		row := Row{Time: p, Period: p, Cells: map[string]any{}}
		for _, c := range cols {
			if v := aggregate(aggs[c], groups[p], c); v != nil {
				row.Cells[c] = v
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// inferAgg: message-like names are text, NAR_time_lost and all-numeric
// columns sum, everything else is a label
func inferAgg(f Frame, col string) Agg {
	if textColumns[col] || strings.Contains(col, "message") {
		return AggText
	}
	if col == "NAR_time_lost" {
		return AggSum
	}
	numeric, present := true, false
	for _, r := range f.Rows {
		v := r.Cells[col]
		if v == nil {
			continue
		}
		present = true
		if _, ok := number(v); !ok {
			numeric = false
			break
		}
	}
	if present && numeric {
		return AggSum
	}
	return AggLabel
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}

func aggregate(a Agg, rows []Row, col string) any {
	switch a {
	case AggSum:
		var sum float64
		seen := false
		for _, r := range rows {
			if f, ok := number(r.Cells[col]); ok {
				sum += f
				seen = true
			}
		}
		if !seen {
			return nil
		}
		return sum
	case AggText:
		return joinUnique(rows, col, "\n\n")
	default:
		return joinUnique(rows, col, ", ")
	}
}

// joinUnique joins the distinct rendered values in first seen order
func joinUnique(rows []Row, col, sep string) any {
	seen := map[string]bool{}
	var parts []string
	for _, r := range rows {
		v := r.Cells[col]
		if v == nil {
			continue
		}
		s := render(v)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return nil
	}
	return strings.Join(parts, sep)
}

func render(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return record.Record{"v": x}.String("v")
	}
}
