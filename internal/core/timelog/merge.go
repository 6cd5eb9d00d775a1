package timelog

import (
	"sort"
	"strings"
	"time"

	"logrep/internal/core/dayobs"
	"logrep/internal/core/record"
	perr "logrep/internal/platform/errors"
)

// Source tags used by the aggregator
const (
	TagNightReport = "NIG"
	TagExposureLog = "EXP"
	TagNarrative   = "NAR"
	TagConsDB      = "CDB"
)

// Source is one record set to merge. Every field becomes column Tag_field;
// TimeField positions the record on the time axis
type Source struct {
	Tag       string
	TimeField string
	Records   []record.Record
}

// MergeStats counts records that could not be placed, by tag
type MergeStats struct {
	NoTime     map[string]int `json:"no_time,omitempty" yaml:"no_time,omitempty"`
	OutOfRange map[string]int `json:"out_of_range,omitempty" yaml:"out_of_range,omitempty"`
}

// Skipped is the total of NoTime and OutOfRange
func (s MergeStats) Skipped() int {
	n := 0
	for _, v := range s.NoTime {
		n += v
	}
	for _, v := range s.OutOfRange {
		n += v
	}
	return n
}

// Merge seeds the frame with sentinel rows at w.Start and w.End, then outer
// joins each non-empty source in the given order on time. Rows sharing a
// timestamp join pairwise, so k rows meeting m rows at one instant give k*m.
// Records without a time or outside [Start, End] are skipped and counted
func Merge(w dayobs.Window, sources ...Source) (Frame, MergeStats, error) {
	stats := MergeStats{NoTime: map[string]int{}, OutOfRange: map[string]int{}}
	if err := w.Validate(); err != nil {
		return Frame{}, stats, err
	}
	if err := checkTags(sources); err != nil {
		return Frame{}, stats, err
	}

	acc := Frame{Rows: []Row{
		{Time: w.Start(), Cells: map[string]any{}},
		{Time: w.End(), Cells: map[string]any{}},
	}}
	for _, src := range sources {
		if len(src.Records) == 0 {
			continue
		}
		right, cols := prefixed(w, src, &stats)
		acc = outerJoin(acc, Frame{Columns: cols, Rows: right})
	}
	return acc, stats, nil
}

func checkTags(sources []Source) error {
	seen := map[string]bool{}
	for _, s := range sources {
		tag := strings.TrimSpace(s.Tag)
		if tag == "" {
			return perr.Configf("timelog: empty source tag")
		}
		if strings.Contains(tag, "_") {
			return perr.Configf("timelog: source tag %q must not contain '_'", tag)
		}
		if seen[tag] {
			return perr.Configf("timelog: duplicate source tag %q", tag)
		}
		if s.TimeField == "" {
			return perr.Configf("timelog: source %q has no time field", tag)
		}
		seen[tag] = true
	}
	return nil
}

// prefixed converts in-range records of src into rows with Tag_ columns
func prefixed(w dayobs.Window, src Source, stats *MergeStats) ([]Row, []string) {
	colset := map[string]bool{}
	rows := make([]Row, 0, len(src.Records))
	for _, rec := range src.Records {
		t, ok := rec.Time(src.TimeField)
		if !ok {
			stats.NoTime[src.Tag]++
			continue
		}
		if !w.Contains(t) {
			stats.OutOfRange[src.Tag]++
			continue
		}
		cells := make(map[string]any, len(rec))
		for k, v := range rec {
			if v == nil {
				continue
			}
			col := src.Tag + "_" + k
			cells[col] = v
			colset[col] = true
		}
		rows = append(rows, Row{Time: t, Cells: cells})
	}
	cols := make([]string, 0, len(colset))
	for c := range colset {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	sortRows(rows)
	return rows, cols
}

// outerJoin merges two time-sorted frames on Time
func outerJoin(left, right Frame) Frame {
	out := Frame{Columns: append(append([]string(nil), left.Columns...), right.Columns...)}
	i, j := 0, 0
	for i < len(left.Rows) || j < len(right.Rows) {
		switch {
		case j >= len(right.Rows) || (i < len(left.Rows) && left.Rows[i].Time.Before(right.Rows[j].Time)):
			out.Rows = append(out.Rows, left.Rows[i].clone())
			i++
		case i >= len(left.Rows) || right.Rows[j].Time.Before(left.Rows[i].Time):
			out.Rows = append(out.Rows, right.Rows[j].clone())
			j++
		default:
			t := left.Rows[i].Time
			li := run(left.Rows, i, t)
			rj := run(right.Rows, j, t)
			for _, l := range left.Rows[i:li] {
				for _, r := range right.Rows[j:rj] {
					row := l.clone()
					for k, v := range r.Cells {
						row.Cells[k] = v
					}
					out.Rows = append(out.Rows, row)
				}
			}
			i, j = li, rj
		}
	}
	return out
}

// run returns the end index of the rows starting at i that share t
func run(rows []Row, i int, t time.Time) int {
	for i < len(rows) && rows[i].Time.Equal(t) {
		i++
	}
	return i
}
