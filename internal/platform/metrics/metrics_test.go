package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	kit "logrep/internal/platform/testkit"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestAndPage(t *testing.T) {
	m := New()
	m.Request("exposurelog", "messages", 200, 120*time.Millisecond, nil)
	m.Request("exposurelog", "messages", 200, 80*time.Millisecond, nil)
	m.Request("exposurelog", "messages", 0, time.Second, errors.New("dial"))
	m.Request("consdb", "query", 500, time.Second, nil)
	m.Page("exposurelog", "messages", 2500)
	m.Page("exposurelog", "messages", 17)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("exposurelog", "messages", "2xx")); got != 2 {
		t.Fatalf("2xx requests = %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("exposurelog", "messages", "error")); got != 1 {
		t.Fatalf("error requests = %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("consdb", "query", "5xx")); got != 1 {
		t.Fatalf("5xx requests = %v", got)
	}
	if got := testutil.ToFloat64(m.RecordsTotal.WithLabelValues("exposurelog", "messages")); got != 2517 {
		t.Fatalf("records = %v", got)
	}
	if got := testutil.ToFloat64(m.PagesTotal.WithLabelValues("exposurelog", "messages")); got != 2 {
		t.Fatalf("pages = %v", got)
	}
}

func TestCacheFailureRun(t *testing.T) {
	m := New()
	m.Cache("narrativelog", true)
	m.Cache("narrativelog", false)
	m.Cache("narrativelog", false)
	m.Failure("nightreport", "bad_status")
	m.Run(3 * time.Second)

	if got := testutil.ToFloat64(m.CacheTotal.WithLabelValues("narrativelog", "miss")); got != 2 {
		t.Fatalf("cache misses = %v", got)
	}
	if got := testutil.ToFloat64(m.SourceFailTotal.WithLabelValues("nightreport", "bad_status")); got != 1 {
		t.Fatalf("failures = %v", got)
	}
	if got := testutil.ToFloat64(m.RunSeconds); got != 3 {
		t.Fatalf("run seconds = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	kit.MustNotPanic(t, func() {
		m.Request("a", "b", 200, time.Second, nil)
		m.Page("a", "b", 1)
		m.Cache("a", true)
		m.Failure("a", "x")
		m.Run(time.Second)
	})
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Page("nightreport", "reports", 3)
	path := filepath.Join(t.TempDir(), "logrep.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	kit.MustContain(t, string(b), `logrep_records_fetched_total{endpoint="reports",service="nightreport"} 3`)
}
