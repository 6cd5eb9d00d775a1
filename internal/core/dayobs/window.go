package dayobs

import (
	"fmt"
	"time"

	perr "logrep/internal/platform/errors"
)

// ErrEmptyWindow is the root cause when min >= max
var ErrEmptyWindow = perr.New(perr.ErrorCodeConfig, "empty dayobs window")

// Window is the half-open range of nights [Min, Max) observed at one site
type Window struct {
	Min Day
	Max Day
	Loc *time.Location
}

// NewWindow validates min < max and returns the window in loc (UTC when nil)
func NewWindow(min, max Day, loc *time.Location) (Window, error) {
	if !min.Valid() {
		return Window{}, perr.WithField(invalid(min.Compact()), "min_dayobs")
	}
	if !max.Valid() {
		return Window{}, perr.WithField(invalid(max.Compact()), "max_dayobs")
	}
	if min >= max {
		return Window{}, perr.Wrapf(ErrEmptyWindow, perr.ErrorCodeConfig, "min_dayobs %s must be before max_dayobs %s", min, max)
	}
	if loc == nil {
		loc = time.UTC
	}
	return Window{Min: min, Max: max, Loc: loc}, nil
}

// Resolve builds a window from two user-facing dayobs strings.
// An empty max means today; an empty min means the night before max
func (r Resolver) Resolve(minS, maxS string) (Window, error) {
	if maxS == "" {
		maxS = Today
	}
	max, err := r.Day(maxS)
	if err != nil {
		return Window{}, perr.WithField(err, "max_dayobs")
	}
	min := max.Add(-1)
	if minS != "" {
		if min, err = r.Day(minS); err != nil {
			return Window{}, perr.WithField(err, "min_dayobs")
		}
	}
	return NewWindow(min, max, r.loc())
}

// Validate re-checks the invariant for windows built as literals
func (w Window) Validate() error {
	_, err := NewWindow(w.Min, w.Max, w.Loc)
	return err
}

func (w Window) loc() *time.Location {
	if w.Loc == nil {
		return time.UTC
	}
	return w.Loc
}

// Start is the UTC instant of local noon that opens Min
func (w Window) Start() time.Time { return w.Min.Noon(w.loc()).UTC() }

// End is the UTC instant of local noon that closes the night before Max
func (w Window) End() time.Time { return w.Max.Noon(w.loc()).UTC() }

// Contains reports Start <= t <= End (both boundaries are valid time-log rows)
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start()) && !t.After(w.End())
}

// Days lists every night in [Min, Max)
func (w Window) Days() []Day {
	n := w.Max.Sub(w.Min)
	out := make([]Day, 0, max(n, 0))
	for d := w.Min; d < w.Max; d = d.Add(1) {
		out = append(out, d)
	}
	return out
}

// Nights returns the number of nights in the window
func (w Window) Nights() int { return w.Max.Sub(w.Min) }

// DayOf returns the night of t as seen at the window's site
func (w Window) DayOf(t time.Time) Day { return FromTime(t.In(w.loc())) }

// String renders "min..max" for logs
func (w Window) String() string { return fmt.Sprintf("%s..%s", w.Min, w.Max) }
