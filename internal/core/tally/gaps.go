// Package tally derives observation gaps and per-instrument night accounting
// from already fetched exposure records, almanac night hours and slew telemetry.
// Nothing here performs I/O
package tally

import (
	"sort"
	"time"

	"logrep/internal/core/dayobs"
	"logrep/internal/core/record"
)

// Fields names the record fields an exposure is read from
type Fields struct {
	ID    string
	Day   string
	Begin string
	End   string
}

var (
	// ExposureLogFields reads Exposure Log exposures
	ExposureLogFields = Fields{ID: "obs_id", Day: "day_obs", Begin: "timespan_begin", End: "timespan_end"}

	// ConsDBFields reads ConsDB exposure rows
	ConsDBFields = Fields{ID: "exposure_name", Day: "day_obs", Begin: "obs_start", End: "obs_end"}
)

// Exposure is one shutter-open interval
type Exposure struct {
	ObsID string     `json:"obs_id" yaml:"obs_id"`
	Day   dayobs.Day `json:"dayobs" yaml:"dayobs"`
	Begin time.Time  `json:"begin" yaml:"begin"`
	End   time.Time  `json:"end" yaml:"end"`
}

// Seconds is End - Begin
func (e Exposure) Seconds() float64 { return e.End.Sub(e.Begin).Seconds() }

// ExposuresFrom converts records with f. Records lacking a begin or end are
// skipped and counted. The night comes from the day field when present,
// else from the begin instant seen in loc
func ExposuresFrom(recs []record.Record, f Fields, loc *time.Location) ([]Exposure, int) {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]Exposure, 0, len(recs))
	skipped := 0
	for _, r := range recs {
		begin, ok1 := r.Time(f.Begin)
		end, ok2 := r.Time(f.End)
		if !ok1 || !ok2 {
			skipped++
			continue
		}
		day := dayobs.FromTime(begin.In(loc))
		if n, ok := r.Int(f.Day); ok {
			if d, err := dayobs.FromInt(int(n)); err == nil {
				day = d
			}
		}
		out = append(out, Exposure{ObsID: r.String(f.ID), Day: day, Begin: begin, End: end})
	}
	return out, skipped
}

// ByInstrument applies ExposuresFrom to each instrument's records and
// returns the total skipped count
func ByInstrument(recs map[string][]record.Record, f Fields, loc *time.Location) (map[string][]Exposure, int) {
	out := make(map[string][]Exposure, len(recs))
	skipped := 0
	for inst, rs := range recs {
		exps, n := ExposuresFrom(rs, f, loc)
		out[inst] = exps
		skipped += n
	}
	return out, skipped
}

// Gap is the idle span between two consecutive exposures of one night
type Gap struct {
	PrevObsID string    `json:"prev_obs_id" yaml:"prev_obs_id"`
	ObsID     string    `json:"obs_id" yaml:"obs_id"`
	PrevEnd   time.Time `json:"prev_end" yaml:"prev_end"`
	Begin     time.Time `json:"begin" yaml:"begin"`
	Minutes   float64   `json:"minutes" yaml:"minutes"`
}

// Gaps maps instrument to night to the gaps of that night
type Gaps map[string]map[dayobs.Day][]Gap

// ObservationGaps groups each instrument's exposures by night and walks them
// in begin order. The first exposure of a night has no gap; a night with one
// exposure yields an empty list. Overlapping exposures give negative gaps
func ObservationGaps(byInstrument map[string][]Exposure) Gaps {
	out := make(Gaps, len(byInstrument))
	for inst, exps := range byInstrument {
		nights := map[dayobs.Day][]Exposure{}
		for _, e := range exps {
			nights[e.Day] = append(nights[e.Day], e)
		}
		perDay := make(map[dayobs.Day][]Gap, len(nights))
		for day, es := range nights {
			sort.SliceStable(es, func(i, j int) bool { return es[i].Begin.Before(es[j].Begin) })
			gaps := []Gap{}
			for i := 1; i < len(es); i++ {
				prev, cur := es[i-1], es[i]
				gaps = append(gaps, Gap{
					PrevObsID: prev.ObsID,
					ObsID:     cur.ObsID,
					PrevEnd:   prev.End,
					Begin:     cur.Begin,
					Minutes:   cur.Begin.Sub(prev.End).Minutes(),
				})
			}
			perDay[day] = gaps
		}
		out[inst] = perDay
	}
	return out
}

// Rollup sums gap minutes per instrument and night
func Rollup(g Gaps) map[string]map[dayobs.Day]float64 {
	out := make(map[string]map[dayobs.Day]float64, len(g))
	for inst, days := range g {
		m := make(map[dayobs.Day]float64, len(days))
		for day, gaps := range days {
			var sum float64
			for _, x := range gaps {
				sum += x.Minutes
			}
			m[day] = sum
		}
		out[inst] = m
	}
	return out
}

// Days returns the nights present for inst, sorted
func (g Gaps) Days(inst string) []dayobs.Day {
	out := make([]dayobs.Day, 0, len(g[inst]))
	for d := range g[inst] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
