package source

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	perr "logrep/internal/platform/errors"
	"logrep/internal/platform/testkit/upstream"
)

func TestConfigDefaultsAndCaps(t *testing.T) {
	c := Config{ConnectTimeout: time.Minute, ReadTimeout: 48 * time.Hour}.WithDefaults()
	if c.Server != DefaultServer {
		t.Fatalf("server = %q", c.Server)
	}
	if c.ConnectTimeout != MaxConnectTimeout || c.ReadTimeout != MaxReadTimeout {
		t.Fatalf("timeouts not capped: %v %v", c.ConnectTimeout, c.ReadTimeout)
	}
	if c.MaxRecords != DefaultMaxRecords || c.Observer == nil {
		t.Fatalf("defaults missing: %+v", c)
	}
	if got := (Config{Server: "https://x.example/ "}).WithDefaults().Server; got != "https://x.example" {
		t.Fatalf("trailing slash kept: %q", got)
	}
	if err := (Config{Server: "not a url"}).Validate(); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("Validate(bad) = %v", err)
	}
	if err := (Config{}).Validate(); err != nil {
		t.Fatalf("Validate(default) = %v", err)
	}
}

func TestGetRetriesTransient(t *testing.T) {
	srv := upstream.New(t)
	srv.Static("/x", []map[string]any{{"id": 1}})
	srv.FailNext("/x", http.StatusServiceUnavailable, http.StatusBadGateway)

	var slept []time.Duration
	c := testClient(t, srv, nil)
	c.sleep = func(_ context.Context, d time.Duration) error { slept = append(slept, d); return nil }

	b, err := c.Get(context.Background(), "x", "/x", nil)
	if err != nil || len(b) == 0 {
		t.Fatalf("Get = %q %v", b, err)
	}
	if srv.Calls("/x") != 3 {
		t.Fatalf("calls = %d", srv.Calls("/x"))
	}
	if len(slept) != 2 || slept[0] != 500*time.Millisecond || slept[1] != time.Second {
		t.Fatalf("backoff = %v", slept)
	}
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	srv := upstream.New(t)
	srv.Status("/down", http.StatusServiceUnavailable, "down")
	c := testClient(t, srv, func(c *Config) { c.MaxRetries = 1 })

	_, err := c.Get(context.Background(), "down", "/down", nil)
	if StatusOf(err) != http.StatusServiceUnavailable || !IsTransient(err) {
		t.Fatalf("err = %v", err)
	}
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("code = %v", perr.CodeOf(err))
	}
	if srv.Calls("/down") != 2 {
		t.Fatalf("calls = %d", srv.Calls("/down"))
	}
}

func TestRetryAfterHonoured(t *testing.T) {
	srv := upstream.New(t)
	n := 0
	srv.Handle(http.MethodGet, "/limited", func(w http.ResponseWriter, r *http.Request) {
		n++
		if n == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		upstream.JSON(w, 200, []any{})
	})
	var slept time.Duration
	c := testClient(t, srv, nil)
	c.sleep = func(_ context.Context, d time.Duration) error { slept = d; return nil }

	if _, err := c.Get(context.Background(), "limited", "/limited", nil); err != nil {
		t.Fatalf("err = %v", err)
	}
	if slept != 7*time.Second {
		t.Fatalf("slept = %v", slept)
	}
}

func TestNonTransientNotRetried(t *testing.T) {
	srv := upstream.New(t)
	srv.Status("/missing", http.StatusNotFound, `{"detail":"Not Found"}`)
	c := testClient(t, srv, nil)

	_, err := c.Get(context.Background(), "missing", "/missing", url.Values{"a": {"1"}})
	se, ok := AsStatusError(err)
	if !ok || se.Status != 404 || se.Body != `{"detail":"Not Found"}` {
		t.Fatalf("err = %#v", err)
	}
	if se.URL != srv.URL+"/missing?a=1" {
		t.Fatalf("url = %q", se.URL)
	}
	if !perr.IsCode(err, perr.ErrorCodeNotFound) || IsTransient(err) {
		t.Fatalf("classification wrong: %v", perr.CodeOf(err))
	}
	if srv.Calls("/missing") != 1 {
		t.Fatalf("calls = %d", srv.Calls("/missing"))
	}
}

func TestHeadersAndPost(t *testing.T) {
	srv := upstream.New(t)
	var auth, ua, ctype string
	srv.Handle(http.MethodPost, "/q", func(w http.ResponseWriter, r *http.Request) {
		auth, ua, ctype = r.Header.Get("Authorization"), r.Header.Get("User-Agent"), r.Header.Get("Content-Type")
		upstream.JSON(w, 200, map[string]any{"ok": true})
	})
	c := testClient(t, srv, func(c *Config) { c.Token = "s3cret" })

	if _, err := c.Post(context.Background(), "q", "/q", map[string]string{"query": "select 1"}); err != nil {
		t.Fatalf("post: %v", err)
	}
	if auth != "Bearer s3cret" || ua != "logrep" || ctype != "application/json" {
		t.Fatalf("headers: %q %q %q", auth, ua, ctype)
	}
}

func TestTransportErrorIsUnavailable(t *testing.T) {
	srv := upstream.New(t)
	u := srv.URL
	srv.Close()
	c := NewClient("gone", Config{Server: u, MaxRetries: 1})
	c.sleep = func(context.Context, time.Duration) error { return nil }

	_, err := c.Get(context.Background(), "x", "/x", nil)
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) || !IsTransient(err) {
		t.Fatalf("err = %v (%v)", err, perr.CodeOf(err))
	}
	if StatusOf(err) != 0 {
		t.Fatalf("transport error has no status")
	}
}

func TestCanceledContext(t *testing.T) {
	srv := upstream.New(t)
	srv.Static("/x", []any{})
	c := testClient(t, srv, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Get(ctx, "x", "/x", nil); err == nil {
		t.Fatalf("expected error on canceled ctx")
	}
	if srv.Calls("/x") != 0 {
		t.Fatalf("no request expected")
	}
}

func TestBackoffCap(t *testing.T) {
	c := NewClient("b", Config{RetryBase: time.Second})
	if got := c.backoff(10); got != 30*time.Second {
		t.Fatalf("backoff(10) = %v", got)
	}
	if got := c.backoff(1); got != 2*time.Second {
		t.Fatalf("backoff(1) = %v", got)
	}
}

func TestWithBudget(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ctx, c2 := WithBudget(parent, time.Hour)
	defer c2()
	dl, _ := ctx.Deadline()
	pdl, _ := parent.Deadline()
	if dl.After(pdl) {
		t.Fatalf("budget extended the parent deadline")
	}
	if Remaining(context.Background()) != 0 {
		t.Fatalf("no deadline should report zero")
	}
	free, c3 := WithBudget(context.Background(), 0)
	defer c3()
	if _, ok := free.Deadline(); ok {
		t.Fatalf("zero budget should not set a deadline")
	}
}
