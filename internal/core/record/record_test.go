package record

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 14, 1, 2, 3, 500000000, time.UTC)
	for _, s := range []string{
		"2024-10-14T01:02:03.5",
		"2024-10-14T01:02:03.500000",
		"2024-10-14T01:02:03.5Z",
		"2024-10-13T22:02:03.5-03:00",
		"2024-10-14 01:02:03.5",
	} {
		got, err := ParseTime(s)
		if err != nil || !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("ParseTime(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseTime("yesterday-ish"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestAccessors(t *testing.T) {
	ts := time.Date(2024, 10, 14, 0, 0, 0, 0, time.UTC)
	r := Record{
		"s":  "x",
		"i":  int64(20241014),
		"f":  1.25,
		"b":  true,
		"t":  ts,
		"ts": "2024-10-14T00:00:00",
		"n":  nil,
	}
	if r.String("s") != "x" || r.String("i") != "20241014" || r.String("f") != "1.25" || r.String("missing") != "" {
		t.Fatalf("String mismatch")
	}
	if n, ok := r.Int("i"); !ok || n != 20241014 {
		t.Fatalf("Int mismatch")
	}
	if f, ok := r.Float("i"); !ok || f != 20241014 {
		t.Fatalf("Float from int mismatch")
	}
	if b, ok := r.Bool("b"); !ok || !b {
		t.Fatalf("Bool mismatch")
	}
	if got, ok := r.Time("ts"); !ok || !got.Equal(ts) {
		t.Fatalf("Time from string mismatch")
	}
	if got, ok := r.Time("t"); !ok || !got.Equal(ts) {
		t.Fatalf("Time mismatch")
	}
	if r.Has("n") || !r.Has("s") {
		t.Fatalf("Has mismatch")
	}
	keys := r.Keys()
	if len(keys) != 6 || keys[0] != "b" {
		t.Fatalf("Keys = %v", keys)
	}
	c := r.Clone()
	c["s"] = "y"
	if r.String("s") != "x" {
		t.Fatalf("Clone aliases original")
	}
}

func TestSortBy(t *testing.T) {
	t0 := time.Date(2024, 10, 14, 0, 0, 0, 0, time.UTC)
	recs := []Record{
		{"id": "c", "day_obs": int64(20241014), "begin": t0.Add(2 * time.Hour)},
		{"id": "x"},
		{"id": "a", "day_obs": int64(20241013), "begin": t0.Add(3 * time.Hour)},
		{"id": "b", "day_obs": int64(20241014), "begin": t0.Add(time.Hour)},
	}
	SortBy(recs, "day_obs", "begin")
	got := ""
	for _, r := range recs {
		got += r.String("id")
	}
	if got != "abcx" {
		t.Fatalf("SortBy order = %q, want abcx", got)
	}
}
