// Package dayobs converts between observing-night identifiers and instants.
//
// An observing night is named by the calendar date on which it starts: the
// night of 2024-10-13 runs from local noon on the 13th to local noon on the
// 14th. The boundary is local noon on the wall clock of the site timezone, so
// an instant before noon belongs to the previous calendar date.
package dayobs

import (
	"strconv"
	"strings"
	"time"

	perr "logrep/internal/platform/errors"
)

// ErrInvalidDayobs is the root cause of every dayobs parsing failure
var ErrInvalidDayobs = perr.New(perr.ErrorCodeInvalidArgument, "invalid dayobs")

// Sentinel names accepted wherever a dayobs string is
const (
	Today     = "today"
	Yesterday = "yesterday"
	Tomorrow  = "tomorrow"
)

// Day is an observing night in YYYYMMDD form
type Day int

// ParseDay accepts YYYYMMDD or YYYY-MM-DD (surrounding space ignored).
// Sentinels are not handled here; see Resolver
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	var layout string
	switch len(s) {
	case 8:
		layout = "20060102"
	case 10:
		layout = "2006-01-02"
	default:
		return 0, invalid(s)
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, invalid(s)
	}
	return dayOf(t), nil
}

// FromInt validates an integer YYYYMMDD
func FromInt(i int) (Day, error) {
	d := Day(i)
	if !d.Valid() {
		return 0, invalid(strconv.Itoa(i))
	}
	return d, nil
}

// FromTime returns the night that contains t, read on the wall clock of t's
// location. Before local noon it is the previous calendar date, so DST days
// keep the boundary at 12:00
func FromTime(t time.Time) Day {
	y, m, d := t.Date()
	if t.Hour() < 12 {
		d--
	}
	return dayOf(time.Date(y, m, d, 12, 0, 0, 0, time.UTC))
}

// ToStr is FromTime formatted as YYYY-MM-DD
func ToStr(t time.Time) string { return FromTime(t).String() }

func dayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day(y*10000 + int(m)*100 + d)
}

func invalid(s string) error {
	return perr.WithField(perr.Wrapf(ErrInvalidDayobs, perr.ErrorCodeInvalidArgument, "dayobs %q", s), "dayobs")
}

// Valid reports whether d names a real calendar date
func (d Day) Valid() bool {
	y, m, dd := int(d)/10000, int(d)/100%100, int(d)%100
	if y < 1 || m < 1 || m > 12 || dd < 1 {
		return false
	}
	t := time.Date(y, time.Month(m), dd, 0, 0, 0, 0, time.UTC)
	return t.Year() == y && int(t.Month()) == m && t.Day() == dd
}

// Int returns the YYYYMMDD integer
func (d Day) Int() int { return int(d) }

// Compact returns YYYYMMDD as a string
func (d Day) Compact() string { return strconv.Itoa(int(d)) }

// String returns YYYY-MM-DD
func (d Day) String() string { return d.Date(time.UTC).Format("2006-01-02") }

// Date returns local midnight of the calendar date in loc
func (d Day) Date(loc *time.Location) time.Time {
	return time.Date(int(d)/10000, time.Month(int(d)/100%100), int(d)%100, 0, 0, 0, 0, loc)
}

// Noon returns the local noon that starts the night in loc
func (d Day) Noon(loc *time.Location) time.Time {
	return time.Date(int(d)/10000, time.Month(int(d)/100%100), int(d)%100, 12, 0, 0, 0, loc)
}

// Add returns the night n days later (negative n for earlier)
func (d Day) Add(n int) Day { return dayOf(d.Date(time.UTC).AddDate(0, 0, n)) }

// Sub returns the number of nights from o to d
func (d Day) Sub(o Day) int {
	return int(d.Date(time.UTC).Sub(o.Date(time.UTC)).Hours() / 24)
}

// IntToStr converts YYYYMMDD to YYYY-MM-DD without any timezone handling
func IntToStr(i int) (string, error) {
	d, err := FromInt(i)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// StrToInt converts YYYY-MM-DD (or YYYYMMDD) to the YYYYMMDD integer
func StrToInt(s string) (int, error) {
	d, err := ParseDay(s)
	if err != nil {
		return 0, err
	}
	return d.Int(), nil
}

// Resolver turns user-facing dayobs strings into nights and instants for one site
type Resolver struct {
	Loc *time.Location
	Now func() time.Time
}

// NewResolver returns a Resolver for loc using the wall clock
func NewResolver(loc *time.Location) Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return Resolver{Loc: loc, Now: time.Now}
}

func (r Resolver) loc() *time.Location {
	if r.Loc == nil {
		return time.UTC
	}
	return r.Loc
}

// Day resolves s; sentinels (case-insensitive) are relative to the calendar
// date of now in the site timezone
func (r Resolver) Day(s string) (Day, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case Today:
		return r.today(), nil
	case Yesterday:
		return r.today().Add(-1), nil
	case Tomorrow:
		return r.today().Add(1), nil
	}
	return ParseDay(s)
}

// Time resolves s to the local noon that starts the night
func (r Resolver) Time(s string) (time.Time, error) {
	d, err := r.Day(s)
	if err != nil {
		return time.Time{}, err
	}
	return d.Noon(r.loc()), nil
}

func (r Resolver) today() Day {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return dayOf(now().In(r.loc()))
}
