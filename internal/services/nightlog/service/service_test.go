package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"logrep/internal/adapters/efd"
	"logrep/internal/adapters/source"
	"logrep/internal/adapters/source/consdb"
	"logrep/internal/adapters/source/exposurelog"
	"logrep/internal/adapters/source/narrativelog"
	"logrep/internal/adapters/source/nightreport"
	"logrep/internal/core/dayobs"
	perr "logrep/internal/platform/errors"
	"logrep/internal/platform/metrics"
	kit "logrep/internal/platform/testkit"
	"logrep/internal/platform/testkit/upstream"
	nldom "logrep/internal/services/nightlog/domain"
)

var cdbCols = []string{"exposure_id", "exposure_name", "day_obs", "seq_num", "obs_start", "obs_end"}

// observatory fakes every upstream for the night of 2024-10-13
func observatory(t *testing.T, consdbErr string) *upstream.Server {
	t.Helper()
	s := upstream.New(t)
	s.Paged("/nightreport/reports", []map[string]any{
		{"id": "r1", "day_obs": 20241013, "date_added": "2024-10-14T09:00:00", "summary": "clear night",
			"confluence_url": "https://c/1"},
	})
	s.Static("/exposurelog/instruments", map[string][]string{"dummy": {"LATISS"}})
	s.Paged("/exposurelog/exposures", []map[string]any{
		{"obs_id": "AT_O_20241013_000001", "instrument": "LATISS", "day_obs": 20241013, "seq_num": 1,
			"timespan_begin": "2024-10-14T00:00:00", "timespan_end": "2024-10-14T00:05:00"},
		{"obs_id": "AT_O_20241013_000002", "instrument": "LATISS", "day_obs": 20241013, "seq_num": 2,
			"timespan_begin": "2024-10-14T00:10:00", "timespan_end": "2024-10-14T00:15:00"},
		{"obs_id": "AT_O_20241013_000003", "instrument": "LATISS", "day_obs": 20241013, "seq_num": 3,
			"timespan_begin": "2024-10-14T00:20:00", "timespan_end": "2024-10-14T00:25:00"},
	})
	s.Paged("/exposurelog/messages", nil)
	s.Paged("/narrativelog/messages", []map[string]any{
		{"id": "n1", "message_text": "dome closed for wind", "date_begin": "2024-10-14T03:00:00",
			"date_added": "2024-10-14T03:05:00", "time_lost": 1.5, "time_lost_type": "weather"},
	})
	s.Query("/consdb/query", func(sql string) ([]string, [][]any, string) {
		if consdbErr != "" {
			return nil, nil, consdbErr
		}
		if !strings.Contains(sql, "OFFSET 0") {
			return cdbCols, nil, ""
		}
		return cdbCols, [][]any{
			{1, "MC_O_20241013_000001", 20241013, 1, "2024-10-14T01:00:00", "2024-10-14T01:00:30"},
			{2, "MC_O_20241013_000002", 20241013, 2, "2024-10-14T01:01:00", "2024-10-14T01:01:30"},
		}, ""
	})
	s.Static(efd.DefaultPath, map[string]any{"results": []any{map[string]any{
		"statement_id": 0,
		"series": []any{map[string]any{
			"name":    efd.TargetTopic,
			"columns": []string{"time", "slewTime"},
			"values":  [][]any{{"2024-10-14T00:09:00Z", 4.5}, {"2024-10-14T00:19:00Z", 10.0}},
		}},
	}}})
	return s
}

func factory(url string, calls *int) nldom.Factory {
	return func() (nldom.Adapters, error) {
		*calls++
		cfg := source.Config{Server: url, SkipProbe: true}
		var ads nldom.Adapters
		var err error
		if ads.NightReport, err = nightreport.New(cfg, nightreport.Options{}); err != nil {
			return ads, err
		}
		if ads.ExposureLog, err = exposurelog.New(cfg, exposurelog.Options{}); err != nil {
			return ads, err
		}
		if ads.NarrativeLog, err = narrativelog.New(cfg, narrativelog.Options{}); err != nil {
			return ads, err
		}
		if ads.ConsDB, err = consdb.New(cfg, consdb.Options{}); err != nil {
			return ads, err
		}
		ads.EFD, err = efd.New(cfg, efd.Options{})
		return ads, err
	}
}

func newService(t *testing.T, srvURL string, parallel bool, calls *int) *Service {
	t.Helper()
	s := New(Config{Parallel: parallel, Compact: true}, factory(srvURL, calls), metrics.New())
	kit.Freeze(t, &s.now, kit.MustTime(t, "2024-10-14T15:00:00Z"))
	s.newID = func() string { return "run-1" }
	return s
}

var night = nldom.Request{Min: "20241013", Max: "20241014"}

func TestRunReconcilesEverySource(t *testing.T) {
	srv := observatory(t, "")
	var calls int
	sum, err := newService(t, srv.URL, false, &calls).Run(context.Background(), night)
	if err != nil {
		t.Fatal(err)
	}
	if sum.RunID != "run-1" || sum.Min != 20241013 || sum.Max != 20241014 || calls != 1 {
		t.Fatalf("summary header = %+v calls=%d", sum, calls)
	}
	if f := sum.Failed(); len(f) != 0 {
		t.Fatalf("failed = %v errors = %v", f, sum.Errors)
	}
	for name, want := range map[string]int{
		"nightreport": 1, "exposurelog": 3, "exposurelog.messages": 0,
		"narrativelog": 1, "consdb": 2, "efd.targets": 2,
	} {
		if sum.Counts[name] != want {
			t.Fatalf("count %s = %d, want %d", name, sum.Counts[name], want)
		}
	}
	for _, name := range nldom.SourceOrder {
		if _, ok := sum.Status[name]; !ok {
			t.Fatalf("status for %s missing", name)
		}
	}

	if sum.Slews.Count != 2 {
		t.Fatalf("slews = %+v", sum.Slews)
	}
	kit.Near(t, "slew seconds", sum.Slews.Seconds, 14.5, 1e-9)
	kit.Near(t, "weather lost", sum.TimeLost[20241013]["weather"], 1.5, 1e-9)
	if len(sum.Nights) != 1 || sum.NightHours < 8 || sum.NightHours > 9.5 {
		t.Fatalf("night hours = %v", sum.NightHours)
	}

	// Exposure Log for LATISS, ConsDB fills lsstcam
	kit.Near(t, "LATISS gaps", sum.GapMinutes["LATISS"][20241013], 10, 1e-9)
	kit.Near(t, "lsstcam gaps", sum.GapMinutes["lsstcam"][20241013], 0.5, 1e-9)
	if len(sum.Gaps["LATISS"][20241013]) != 2 {
		t.Fatalf("gaps = %+v", sum.Gaps["LATISS"])
	}
	if _, ok := sum.Tally["LATISS"]; !ok {
		t.Fatalf("tally = %v", sum.Tally)
	}
	acc := sum.Accounting["LATISS"]
	kit.Near(t, "exposure hours", acc.ExposureHours, 0.25, 1e-9)
	kit.Near(t, "mean slew", acc.MeanSlewHours, 7.25/3600, 1e-12)

	tl := sum.TimeLog
	if tl.Merge.Skipped() != 0 || tl.Rows != 9 {
		t.Fatalf("merge rows = %d stats = %+v", tl.Rows, tl.Merge)
	}
	if tl.Compaction == nil || tl.Compaction.EmptyRows != 2 {
		t.Fatalf("compaction = %+v", tl.Compaction)
	}
	if tl.Frame.Len() != 2 {
		t.Fatalf("reduced rows = %d", tl.Frame.Len())
	}
	first := tl.Frame.Rows[0]
	if !first.Time.Equal(kit.MustTime(t, "2024-10-14T00:00:00Z")) || first.Get("NAR_message_text") != "dome closed for wind" {
		t.Fatalf("first period = %+v", first)
	}
	if tl.Frame.Rows[1].Get("NIG_summary") != "clear night" {
		t.Fatalf("second period = %+v", tl.Frame.Rows[1])
	}
	if tl.Dense.Len() != 2 || len(tl.Dense.Columns)+len(tl.Sparse.Columns) != len(tl.Frame.Columns) {
		t.Fatalf("partition dense=%v sparse=%v", tl.Dense.Columns, tl.Sparse.Columns)
	}
}

func TestRunIsolatesBrokenSources(t *testing.T) {
	srv := observatory(t, `relation "cdb_lsstcam.exposure" does not exist`)
	srv.FailNext("/nightreport/reports", 500)
	var calls int
	sum, err := newService(t, srv.URL, false, &calls).Run(context.Background(), night)
	if err != nil {
		t.Fatalf("source failures must not be returned: %v", err)
	}
	if w, ok := sum.Errors["consdb"]; !ok || w.Name != "query" {
		t.Fatalf("consdb error = %+v", sum.Errors)
	}
	failed := strings.Join(sum.Failed(), ",")
	if failed != "nightreport,consdb" {
		t.Fatalf("failed = %s", failed)
	}
	if sum.Counts["exposurelog"] != 3 || sum.Counts["narrativelog"] != 1 || sum.Counts["efd.targets"] != 2 {
		t.Fatalf("healthy sources lost data: %v", sum.Counts)
	}
	if _, ok := sum.Tally["lsstcam"]; ok {
		t.Fatalf("lsstcam should have no exposures")
	}
}

func TestRunParallelMatchesSequential(t *testing.T) {
	srv := observatory(t, "")
	var calls int
	seq, err := newService(t, srv.URL, false, &calls).Run(context.Background(), night)
	if err != nil {
		t.Fatal(err)
	}
	par, err := newService(t, srv.URL, true, &calls).Run(context.Background(), night)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range seq.Counts {
		if par.Counts[k] != v {
			t.Fatalf("count %s: parallel %d, sequential %d", k, par.Counts[k], v)
		}
	}
	if par.TimeLog.Rows != seq.TimeLog.Rows || len(par.Failed()) != 0 {
		t.Fatalf("parallel run differs: rows %d vs %d", par.TimeLog.Rows, seq.TimeLog.Rows)
	}
}

func TestRunRejectsBadRequests(t *testing.T) {
	var calls int
	s := newService(t, "http://127.0.0.1:1", false, &calls)
	cases := []struct {
		name string
		req  nldom.Request
		code perr.ErrorCode
	}{
		{"garbage", nldom.Request{Max: "not-a-day"}, perr.ErrorCodeValidation},
		{"empty window", nldom.Request{Min: "20241014", Max: "20241014"}, perr.ErrorCodeConfig},
		{"reversed", nldom.Request{Min: "2024-10-15", Max: "2024-10-14"}, perr.ErrorCodeConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Run(context.Background(), tc.req); !perr.IsCode(err, tc.code) {
				t.Fatalf("err = %v, want %s", err, tc.code)
			}
		})
	}
	if calls != 0 {
		t.Fatalf("factory called %d times before the window was valid", calls)
	}
}

func TestRunDefaultsToLastNight(t *testing.T) {
	var calls int
	s := New(Config{}, func() (nldom.Adapters, error) {
		calls++
		return nldom.Adapters{}, nil
	}, nil)
	kit.Freeze(t, &s.now, kit.MustTime(t, "2024-10-14T15:00:00Z"))
	sum, err := s.Run(context.Background(), nldom.Request{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Min != dayobs.Day(20241013) || sum.Max != dayobs.Day(20241014) || calls != 1 {
		t.Fatalf("window = %s..%s", sum.Min, sum.Max)
	}
	if sum.TimeLog.Rows != 2 || len(sum.Status) != 0 {
		t.Fatalf("empty run should hold only the sentinels: %+v", sum.TimeLog)
	}
}

func TestRunReturnsFactoryErrors(t *testing.T) {
	s := New(Config{}, func() (nldom.Adapters, error) {
		return nldom.Adapters{}, perr.Configf("bad adapter config")
	}, nil)
	if _, err := s.Run(context.Background(), night); !perr.IsCode(err, perr.ErrorCodeConfig) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewPanicsWithoutFactory(t *testing.T) {
	kit.MustPanic(t, func() { New(Config{}, nil, nil) })
	s := New(Config{}, func() (nldom.Adapters, error) { return nldom.Adapters{}, nil }, nil)
	if s.Cfg.Loc != time.UTC || s.Cfg.Site.Name == "" {
		t.Fatalf("defaults = %+v", s.Cfg)
	}
}
