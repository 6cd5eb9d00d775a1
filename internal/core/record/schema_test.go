package record

import (
	"testing"
	"time"
)

var testSchema = NewSchema(
	Field{"obs_id", KindString},
	Field{"day_obs", KindInt},
	Field{"time_lost", KindFloat},
	Field{"is_valid", KindBool},
	Field{"date_added", KindTime},
	Field{"tags", KindList},
	Field{"extra", KindAny},
	Field{"obs_id", KindInt},
)

func TestSchema_ProjectFromJSON(t *testing.T) {
	body := []byte(`[
		{"obs_id":"AT_O_20241013_000001","day_obs":20241013,"time_lost":0.5,"is_valid":true,
		 "date_added":"2024-10-14T01:02:03.250000","tags":["a","b"],"extra":7,"secret":"drop me"},
		{"obs_id":null,"day_obs":"20241014","time_lost":"NaN","is_valid":"false","date_added":"garbage","extra":1.5}
	]`)
	raws, err := DecodeObjects(body)
	if err != nil {
		t.Fatalf("DecodeObjects: %v", err)
	}
	recs := testSchema.ProjectAll(raws)
	if len(recs) != 2 {
		t.Fatalf("len = %d", len(recs))
	}

	r := recs[0]
	if _, ok := r["secret"]; ok {
		t.Fatalf("undeclared field leaked")
	}
	if r["obs_id"] != "AT_O_20241013_000001" || r["day_obs"] != int64(20241013) || r["time_lost"] != 0.5 || r["is_valid"] != true {
		t.Fatalf("coercion mismatch: %#v", r)
	}
	if ts, _ := r["date_added"].(time.Time); !ts.Equal(time.Date(2024, 10, 14, 1, 2, 3, 250000000, time.UTC)) {
		t.Fatalf("date_added = %v", r["date_added"])
	}
	if l, _ := r["tags"].([]any); len(l) != 2 {
		t.Fatalf("tags = %#v", r["tags"])
	}
	if r["extra"] != int64(7) {
		t.Fatalf("extra = %#v", r["extra"])
	}

	r = recs[1]
	if r.Has("obs_id") || r.Has("time_lost") || r.Has("date_added") {
		t.Fatalf("null, NaN and bad timestamps should be missing: %#v", r)
	}
	if r["day_obs"] != int64(20241014) || r["is_valid"] != false || r["extra"] != 1.5 {
		t.Fatalf("string coercions mismatch: %#v", r)
	}
}

func TestSchema_NamesWithHas(t *testing.T) {
	names := testSchema.Names()
	if len(names) != 7 || names[0] != "obs_id" {
		t.Fatalf("Names = %v (duplicates must be ignored)", names)
	}
	ext := testSchema.With(Field{"exposure_flag", KindString})
	if !ext.Has("exposure_flag") || testSchema.Has("exposure_flag") {
		t.Fatalf("With must copy")
	}
}

func TestSchema_ProjectNativeValues(t *testing.T) {
	s := NewSchema(Field{"n", KindInt}, Field{"f", KindFloat}, Field{"t", KindTime}, Field{"s", KindString})
	ts := time.Date(2024, 10, 14, 3, 0, 0, 0, time.FixedZone("CLT", -3*3600))
	r := s.Project(map[string]any{"n": int32(5), "f": int64(2), "t": ts, "s": 12.5})
	if r["n"] != int64(5) || r["f"] != 2.0 || r["s"] != "12.5" {
		t.Fatalf("native coercion mismatch: %#v", r)
	}
	if got := r["t"].(time.Time); got.Location() != time.UTC || !got.Equal(ts) {
		t.Fatalf("time not normalised to UTC: %v", got)
	}
}

func TestDecodeObjects_Bad(t *testing.T) {
	if _, err := DecodeObjects([]byte(`{"not":"an array"}`)); err == nil {
		t.Fatalf("expected error")
	}
}
