// Package domain defines the nightlog aggregation ports and result types
package domain

import (
	"context"
	"time"

	"logrep/internal/adapters/almanac"
	"logrep/internal/adapters/efd"
	"logrep/internal/adapters/source"
	"logrep/internal/adapters/source/consdb"
	"logrep/internal/adapters/source/exposurelog"
	"logrep/internal/adapters/source/narrativelog"
	"logrep/internal/adapters/source/nightreport"
	"logrep/internal/core/dayobs"
	"logrep/internal/core/tally"
	"logrep/internal/core/timelog"
	perr "logrep/internal/platform/errors"
)

// Request names the nights to aggregate. Both are user-facing dayobs strings
// (YYYYMMDD, YYYY-MM-DD, "today", "yesterday"); an empty Max is today and an
// empty Min the night before Max
type Request struct {
	Min string `json:"min_dayobs" validate:"omitempty,dayobs"`
	Max string `json:"max_dayobs" validate:"omitempty,dayobs"`
}

// RunnerPort is the public entrypoint exposed by the module
type RunnerPort interface {
	// Run fetches every source for the window and reconciles them. Only
	// configuration errors are returned; source failures land in the Summary
	Run(ctx context.Context, req Request) (*Summary, error)
}

// Adapters is one run's fresh adapter set. EFD is nil when disabled
type Adapters struct {
	NightReport  *nightreport.Adapter
	ExposureLog  *exposurelog.Adapter
	NarrativeLog *narrativelog.Adapter
	ConsDB       *consdb.Adapter
	EFD          *efd.Adapter
}

// List returns the non-nil adapters in fetch order
func (a Adapters) List() []source.Adapter {
	var out []source.Adapter
	add := func(present bool, ad source.Adapter) {
		if present {
			out = append(out, ad)
		}
	}
	add(a.NightReport != nil, a.NightReport)
	add(a.ExposureLog != nil, a.ExposureLog)
	add(a.NarrativeLog != nil, a.NarrativeLog)
	add(a.ConsDB != nil, a.ConsDB)
	add(a.EFD != nil, a.EFD)
	return out
}

// Factory builds Adapters for one run; adapters keep per-fetch state so they
// are never shared between runs
type Factory func() (Adapters, error)

// Slews is the telemetry slew summary
type Slews struct {
	Seconds float64 `json:"seconds" yaml:"seconds"`
	Count   int     `json:"count" yaml:"count"`
}

// TimeLog is the unified log at each stage
type TimeLog struct {
	Merge      timelog.MergeStats `json:"merge" yaml:"merge"`
	Compaction *timelog.Report    `json:"compaction,omitempty" yaml:"compaction,omitempty"`
	Rows       int                `json:"merged_rows" yaml:"merged_rows"`
	Frame      timelog.Frame      `json:"frame" yaml:"frame"`
	Dense      timelog.Frame      `json:"dense" yaml:"dense"`
	Sparse     timelog.Frame      `json:"sparse" yaml:"sparse"`
}

// Summary is everything one run produced
type Summary struct {
	RunID string     `json:"run_id" yaml:"run_id"`
	Min   dayobs.Day `json:"min_dayobs" yaml:"min_dayobs"`
	Max   dayobs.Day `json:"max_dayobs" yaml:"max_dayobs"`
	Start time.Time  `json:"start" yaml:"start"`
	End   time.Time  `json:"end" yaml:"end"`

	Status map[string]source.StatusMap `json:"status" yaml:"status"`
	Errors map[string]perr.Wire        `json:"errors,omitempty" yaml:"errors,omitempty"`
	Counts map[string]int              `json:"counts" yaml:"counts"`

	Instruments []string                          `json:"instruments" yaml:"instruments"`
	Flags       map[string]map[string]int         `json:"flags,omitempty" yaml:"flags,omitempty"`
	Tickets     map[dayobs.Day][]string           `json:"tickets,omitempty" yaml:"tickets,omitempty"`
	TimeLost    map[dayobs.Day]map[string]float64 `json:"time_lost,omitempty" yaml:"time_lost,omitempty"`
	Slews       Slews                             `json:"slews" yaml:"slews"`

	Nights     []almanac.Night `json:"nights" yaml:"nights"`
	NightHours float64         `json:"night_hours" yaml:"night_hours"`

	Gaps       tally.Gaps                        `json:"gaps" yaml:"gaps"`
	GapMinutes map[string]map[dayobs.Day]float64 `json:"gap_minutes" yaml:"gap_minutes"`
	Skipped    int                               `json:"skipped_exposures,omitempty" yaml:"skipped_exposures,omitempty"`
	Tally      map[string][]tally.Line           `json:"tally" yaml:"tally"`
	Accounting map[string]tally.Accounting       `json:"-" yaml:"-"`

	TimeLog TimeLog       `json:"time_log" yaml:"time_log"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Failed lists the sources that returned an error or have a failed endpoint
func (s *Summary) Failed() []string {
	var out []string
	for _, name := range SourceOrder {
		if _, ok := s.Errors[name]; ok {
			out = append(out, name)
			continue
		}
		if st, ok := s.Status[name]; ok && len(st.Failed()) > 0 {
			out = append(out, name)
		}
	}
	return out
}

// SourceOrder is the fixed fetch order
var SourceOrder = []string{nightreport.Service, exposurelog.Service, narrativelog.Service, consdb.Service, efd.Service}
