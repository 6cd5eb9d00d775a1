package tally

import (
	"math"
	"sort"
	"strconv"

	"logrep/internal/core/dayobs"
)

// Inputs are the night totals one accounting is derived from
type Inputs struct {
	ObservableHours float64
	ExposureSeconds float64
	NumExposures    int
	SlewSeconds     float64
	NumSlews        int
	// TimeLost is hours by lost type
	TimeLost map[string]float64
}

// Accounting splits the observable night. Undefined values are NaN and
// render as NA; detector readout has no telemetry source and is always NA
type Accounting struct {
	NightHours            float64
	ExposureHours         float64
	NumExposures          int
	NumSlews              int
	DetectorReadHours     float64
	MeanDetectorReadHours float64
	SlewHours             float64
	MeanSlewHours         float64
	IdleHours             float64
	TimeLost              map[string]float64
}

// Account computes idle = observable - exposure - slew. Mean slew with zero
// slews is NaN
func Account(in Inputs) Accounting {
	exp := in.ExposureSeconds / 3600
	slew := in.SlewSeconds / 3600
	mean := math.NaN()
	if in.NumSlews > 0 {
		mean = slew / float64(in.NumSlews)
	}
	lost := make(map[string]float64, len(in.TimeLost))
	for k, v := range in.TimeLost {
		lost[k] = v
	}
	return Accounting{
		NightHours:            in.ObservableHours,
		ExposureHours:         exp,
		NumExposures:          in.NumExposures,
		NumSlews:              in.NumSlews,
		DetectorReadHours:     math.NaN(),
		MeanDetectorReadHours: math.NaN(),
		SlewHours:             slew,
		MeanSlewHours:         mean,
		IdleHours:             in.ObservableHours - exp - slew,
		TimeLost:              lost,
	}
}

// Line is one labelled rendered value
type Line struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Lines renders the accounting in report order; time lost per type follows,
// sorted by type
func (a Accounting) Lines() []Line {
	out := []Line{
		{"Total Night (HH:MM:SS)", dayobs.FormatHours(a.NightHours)},
		{"Total Exposure (HH:MM:SS)", dayobs.FormatHours(a.ExposureHours)},
		{"Number of exposures", strconv.Itoa(a.NumExposures)},
		{"Number of slews", strconv.Itoa(a.NumSlews)},
		{"Total Detector Read (HH:MM:SS)", dayobs.FormatHours(a.DetectorReadHours)},
		{"Mean Detector Read (HH:MM:SS)", dayobs.FormatHours(a.MeanDetectorReadHours)},
		{"Total Slew (HH:MM:SS)", dayobs.FormatHours(a.SlewHours)},
		{"Mean Slew (HH:MM:SS)", dayobs.FormatHours(a.MeanSlewHours)},
		{"Total Idle (HH:MM:SS)", dayobs.FormatHours(a.IdleHours)},
	}
	types := make([]string, 0, len(a.TimeLost))
	for k := range a.TimeLost {
		types = append(types, k)
	}
	sort.Strings(types)
	for _, k := range types {
		out = append(out, Line{"Total " + k + " loss (HH:MM:SS)", dayobs.FormatHours(a.TimeLost[k])})
	}
	return out
}

// Request gathers the cross-source inputs of one window
type Request struct {
	Exposures   map[string][]Exposure
	NightHours  float64
	SlewSeconds float64
	NumSlews    int
	TimeLost    map[dayobs.Day]map[string]float64
}

// Tally computes one Accounting per instrument with at least one exposure.
// Slews and time lost are site wide and shared by every instrument
func Tally(req Request) map[string]Accounting {
	lost := map[string]float64{}
	for _, types := range req.TimeLost {
		for k, h := range types {
			lost[k] += h
		}
	}
	out := map[string]Accounting{}
	for inst, exps := range req.Exposures {
		if len(exps) == 0 {
			continue
		}
		var secs float64
		for _, e := range exps {
			secs += e.Seconds()
		}
		out[inst] = Account(Inputs{
			ObservableHours: req.NightHours,
			ExposureSeconds: secs,
			NumExposures:    len(exps),
			SlewSeconds:     req.SlewSeconds,
			NumSlews:        req.NumSlews,
			TimeLost:        lost,
		})
	}
	return out
}

// Render maps Tally output to rendered lines per instrument
func Render(t map[string]Accounting) map[string][]Line {
	out := make(map[string][]Line, len(t))
	for inst, a := range t {
		out[inst] = a.Lines()
	}
	return out
}
