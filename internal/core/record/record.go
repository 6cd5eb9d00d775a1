// Package record defines the generic upstream record and the fixed per-source
// schemas records are projected through at decode time
package record

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Record is one upstream row: field name to decoded value.
// Values are string, int64, float64, bool, time.Time (UTC) or []any.
// A missing or null field is an absent key
type Record map[string]any

// Has reports whether field is present and non-nil
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// String returns the field as text ("" when absent); non-strings are formatted
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the field as int64
func (r Record) Int(field string) (int64, bool) {
	switch v := r[field].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Float returns the field as float64
func (r Record) Float(field string) (float64, bool) {
	switch v := r[field].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Bool returns the field as bool
func (r Record) Bool(field string) (bool, bool) {
	b, ok := r[field].(bool)
	return b, ok
}

// Time returns the field as a UTC instant
func (r Record) Time(field string) (time.Time, bool) {
	switch v := r[field].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := ParseTime(v)
		return t, err == nil
	}
	return time.Time{}, false
}

// Clone returns a shallow copy
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the present field names, sorted
func (r Record) Keys() []string {
	out := make([]string, 0, len(r))
	for k, v := range r {
		if v != nil {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// SortBy stably sorts records by the given fields in order; records missing a
// field sort after those that have it
func SortBy(recs []Record, fields ...string) {
	sort.SliceStable(recs, func(i, j int) bool {
		for _, f := range fields {
			if c := compare(recs[i][f], recs[j][f]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return cmp3(av < bv, av > bv)
		}
		if bv, ok := b.(float64); ok {
			return cmp3(float64(av) < bv, float64(av) > bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return cmp3(av < bv, av > bv)
		}
		if bv, ok := b.(int64); ok {
			return cmp3(av < float64(bv), av > float64(bv))
		}
	case string:
		if bv, ok := b.(string); ok {
			return cmp3(av < bv, av > bv)
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return cmp3(as < bs, as > bs)
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses the ISO-8601 variants upstreams emit; zone-less values are UTC
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
