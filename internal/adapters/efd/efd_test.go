package efd

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"logrep/internal/adapters/source"
	"logrep/internal/core/dayobs"
	perr "logrep/internal/platform/errors"
	kit "logrep/internal/platform/testkit"
	"logrep/internal/platform/testkit/upstream"
)

func window(t *testing.T) dayobs.Window {
	t.Helper()
	w, err := dayobs.NewWindow(20241013, 20241014, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func influx(columns []string, values ...[]any) map[string]any {
	return map[string]any{"results": []any{map[string]any{
		"statement_id": 0,
		"series":       []any{map[string]any{"name": "x", "columns": columns, "values": values}},
	}}}
}

func TestSelectSQL(t *testing.T) {
	q := SelectSQL("efd", TargetTopic, []string{"slewTime", "blockId"}, window(t), 2)
	for _, want := range []string{
		`SELECT "slewTime","blockId" FROM "efd"."autogen"."lsst.sal.Scheduler.logevent_target"`,
		`time >= '2024-10-13T12:00:00Z' AND time < '2024-10-14T12:00:00Z'`,
		`"salIndex" = 2`,
	} {
		kit.MustContain(t, q, want)
	}
	if strings.Contains(SelectSQL("efd", "t", []string{"a"}, window(t), -1), "salIndex") {
		t.Fatalf("negative salIndex should omit the filter")
	}
}

func TestDecode(t *testing.T) {
	rows, err := Decode([]byte(`{"results":[{"statement_id":0,"series":[
		{"name":"a","columns":["time","v"],"values":[["2024-10-14T00:00:00Z",1.5],["2024-10-14T00:01:00Z",2]]}]}]}`))
	if err != nil || len(rows) != 2 || rows[1]["time"] != "2024-10-14T00:01:00Z" {
		t.Fatalf("rows = %v err = %v", rows, err)
	}
	if rows, err := Decode([]byte(`{"results":[{"statement_id":0}]}`)); err != nil || len(rows) != 0 {
		t.Fatalf("empty statement: %v %v", rows, err)
	}
	_, err = Decode([]byte(`{"results":[{"statement_id":0,"error":"undefined field"}]}`))
	if !perr.IsCode(err, perr.ErrorCodeQuery) {
		t.Fatalf("statement error code = %v", perr.CodeOf(err))
	}
	if _, err := Decode([]byte(`{`)); !perr.IsCode(err, perr.ErrorCodeJSON) {
		t.Fatalf("bad json code = %v", perr.CodeOf(err))
	}
}

func TestTargetsAndSlew(t *testing.T) {
	srv := upstream.New(t)
	srv.Static(DefaultPath, influx(
		[]string{"time", "blockId", "sequenceDuration", "sequenceNVisits", "sequenceVisits", "slewTime"},
		[]any{"2024-10-14T02:00:00Z", 7, 30.0, 1, 1, 4.5},
		[]any{"2024-10-14T01:00:00Z", 7, 30.0, 1, 1, 10.0},
		[]any{"2024-10-14T03:00:00Z", 7, 30.0, 1, 1, 0.0},
	))
	a, err := New(source.Config{Server: srv.URL, SkipProbe: true}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Fetch(context.Background(), window(t)); err != nil {
		t.Fatal(err)
	}
	recs := a.Records()
	if len(recs) != 3 {
		t.Fatalf("targets = %d", len(recs))
	}
	if first, _ := recs[0].Float("slewTime"); first != 10 {
		t.Fatalf("targets not sorted by time: %v", recs)
	}
	sum, n := a.SlewSeconds()
	kit.Near(t, "slew", sum, 14.5, 1e-9)
	if n != 2 {
		t.Fatalf("slews = %d, want 2", n)
	}

	q := srv.Queries(DefaultPath)[0]
	if q.Get("db") != "efd" {
		t.Fatalf("db = %q", q.Get("db"))
	}
	kit.MustContain(t, q.Get("q"), `"salIndex" = 2`)
	if st := a.Status()["targets"]; !st.OK() || st.NumberOfRecords != 3 {
		t.Fatalf("status = %+v", st)
	}
}

func TestReconnectsBeforeFirstQuery(t *testing.T) {
	srv := upstream.New(t)
	srv.Static(DefaultPath, influx([]string{"time", "slewTime"},
		[]any{"2024-10-14T01:00:00Z", 2.0}, []any{"2024-10-14T02:00:00Z", 3.0}))
	srv.EmptyNext(DefaultPath, 1)
	a, _ := New(source.Config{Server: srv.URL}, Options{})
	for range 2 {
		if err := a.Fetch(context.Background(), window(t)); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(a.Records()); n != 2 {
		t.Fatalf("targets = %d", n)
	}
	qs := srv.Queries(DefaultPath)
	if len(qs) != 3 {
		t.Fatalf("calls = %d, want one reconnect and two selects", len(qs))
	}
	kit.MustContain(t, qs[0].Get("q"), "LIMIT 1")
	if strings.Contains(qs[1].Get("q"), "LIMIT") {
		t.Fatalf("real select carries a limit: %s", qs[1].Get("q"))
	}
}

func TestTargetsTransportFailureIsStatus(t *testing.T) {
	srv := upstream.New(t)
	srv.Status(DefaultPath, http.StatusServiceUnavailable, `{"error":"down"}`)
	a, _ := New(source.Config{Server: srv.URL, RetryBase: time.Millisecond}, Options{})
	if err := a.Fetch(context.Background(), window(t)); err != nil {
		t.Fatalf("transport failure must not be returned: %v", err)
	}
	st := a.Status()["targets"]
	if st.OK() || st.Error.Code != perr.ErrorCodeUnavailable {
		t.Fatalf("status = %+v", st)
	}
	if sum, n := a.SlewSeconds(); sum != 0 || n != 0 {
		t.Fatalf("slew = %v/%d", sum, n)
	}
}

func TestTargetsStatementErrorIsReturned(t *testing.T) {
	srv := upstream.New(t)
	srv.Static(DefaultPath, map[string]any{"results": []any{map[string]any{"statement_id": 0, "error": "bad"}}})
	a, _ := New(source.Config{Server: srv.URL}, Options{})
	err := a.Fetch(context.Background(), window(t))
	if !perr.IsCode(err, perr.ErrorCodeQuery) {
		t.Fatalf("err = %v", err)
	}
}

func TestWeatherConcurrentAndIsolated(t *testing.T) {
	srv := upstream.New(t)
	var inflight, peak atomic.Int32
	srv.Handle(http.MethodGet, DefaultPath, func(w http.ResponseWriter, r *http.Request) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		q := r.URL.Query().Get("q")
		switch {
		case strings.Contains(q, "Scheduler"):
			upstream.JSON(w, http.StatusOK, influx([]string{"time", "slewTime"}, []any{"2024-10-14T01:00:00Z", 3.0}))
		case strings.Contains(q, "ESS.pressure"):
			http.Error(w, "boom", http.StatusBadGateway)
		case strings.Contains(q, "DIMM"):
			upstream.JSON(w, http.StatusOK, influx([]string{"time", "fwhm"},
				[]any{"2024-10-14T02:00:00Z", 0.9}, []any{"2024-10-14T01:00:00Z", 1.1}))
		default:
			upstream.JSON(w, http.StatusOK, map[string]any{"results": []any{map[string]any{"statement_id": 0}}})
		}
	})
	a, _ := New(source.Config{Server: srv.URL}, Options{Weather: true})
	if err := a.Fetch(context.Background(), window(t)); err != nil {
		t.Fatal(err)
	}
	if peak.Load() < 2 {
		t.Fatalf("weather queries ran sequentially (peak %d)", peak.Load())
	}
	st := a.Status()
	if len(st) != 1+len(WeatherTopics) {
		t.Fatalf("status names = %v", st.Names())
	}
	if st["ess_pressure"].OK() {
		t.Fatalf("pressure should have failed")
	}
	if !st["ess_temp"].NoRecords || !st["dimm_fwhm"].OK() {
		t.Fatalf("status = %+v", st)
	}
	fwhm := a.Series("dimm_fwhm")
	if v, _ := fwhm[0].Float("fwhm"); len(fwhm) != 2 || v != 1.1 {
		t.Fatalf("fwhm = %v", fwhm)
	}
	if len(a.SeriesNames()) != len(WeatherTopics) {
		t.Fatalf("series = %v", a.SeriesNames())
	}
}

func TestWeatherConcurrencyLimit(t *testing.T) {
	srv := upstream.New(t)
	var inflight, peak atomic.Int32
	srv.Handle(http.MethodGet, DefaultPath, func(w http.ResponseWriter, r *http.Request) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		upstream.JSON(w, http.StatusOK, map[string]any{"results": []any{map[string]any{"statement_id": 0}}})
	})
	a, _ := New(source.Config{Server: srv.URL}, Options{Concurrency: 1})
	if _, err := a.Weather(context.Background(), window(t)); err != nil {
		t.Fatal(err)
	}
	if peak.Load() != 1 {
		t.Fatalf("peak = %d, want 1", peak.Load())
	}
	if srv.Calls(DefaultPath) != len(WeatherTopics) {
		t.Fatalf("calls = %d", srv.Calls(DefaultPath))
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(source.Config{}, Options{DB: "efd; drop"}); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := New(source.Config{}, Options{Concurrency: 99}); err == nil {
		t.Fatalf("expected validation error")
	}
}
