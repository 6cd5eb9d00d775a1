package config

import (
	"testing"
	"time"

	kit "logrep/internal/platform/testkit"
)

func TestPrefixAndKey(t *testing.T) {
	c := New().Prefix("LOGREP_").Prefix("CACHE_")
	if got := c.key("DIR"); got != "LOGREP_CACHE_DIR" {
		t.Fatalf("key() = %q", got)
	}
}

func TestMustString(t *testing.T) {
	c := New().Prefix("APP_")
	t.Setenv("APP_NAME", "  logrep ")
	if got := c.MustString("NAME"); got != "logrep" {
		t.Fatalf("MustString = %q", got)
	}
	if !c.Has("NAME") || c.Has("MISSING") {
		t.Fatalf("Has mismatch")
	}
	kit.MustPanic(t, func() { _ = c.MustString("MISSING") })
}

func TestMustInt(t *testing.T) {
	c := New().Prefix("SVC_")
	t.Setenv("SVC_LIMIT", " 2500 ")
	if got := c.MustInt("LIMIT"); got != 2500 {
		t.Fatalf("MustInt = %d", got)
	}
	t.Setenv("SVC_BAD", "x")
	kit.MustPanic(t, func() { _ = c.MustInt("BAD") })
	kit.MustPanic(t, func() { _ = c.MustInt("MISSING") })
}

func TestMustDurationAndURL(t *testing.T) {
	c := New().Prefix("D_")
	t.Setenv("D_TIMEOUT", " 250ms ")
	if got := c.MustDuration("TIMEOUT"); got != 250*time.Millisecond {
		t.Fatalf("MustDuration = %v", got)
	}
	t.Setenv("D_BAD", "nope")
	kit.MustPanic(t, func() { _ = c.MustDuration("BAD") })

	t.Setenv("D_BASE", "https://usdf-rsp-dev.slac.stanford.edu")
	if u := c.MustURL("BASE"); !u.IsAbs() {
		t.Fatalf("MustURL returned non-absolute URL")
	}
	t.Setenv("D_REL", "/relative")
	kit.MustPanic(t, func() { _ = c.MustURL("REL") })
}

func TestRequire(t *testing.T) {
	c := New().Prefix("REQ_")
	t.Setenv("REQ_A", "x")
	t.Setenv("REQ_WS", "   ")
	c.Require("A")
	kit.MustPanic(t, func() { c.Require("A", "C") })
	kit.MustPanic(t, func() { c.Require("WS") })
}

func TestMayFallbacks(t *testing.T) {
	c := New().Prefix("MAY_")
	t.Setenv("MAY_I", " 7 ")
	t.Setenv("MAY_IBAD", "x")
	t.Setenv("MAY_F", "0.95")
	t.Setenv("MAY_FBAD", "zz")
	t.Setenv("MAY_B", "true")
	t.Setenv("MAY_BBAD", "nope")
	t.Setenv("MAY_D", "150ms")
	t.Setenv("MAY_DBAD", "nope")

	if c.MayString("MISSING", "def") != "def" {
		t.Fatalf("MayString default")
	}
	if c.MayInt("I", 0) != 7 || c.MayInt("IBAD", 3) != 3 || c.MayInt("MISSING", 9) != 9 {
		t.Fatalf("MayInt mismatch")
	}
	if c.MayFloat64("F", 0) != 0.95 || c.MayFloat64("FBAD", 0.5) != 0.5 {
		t.Fatalf("MayFloat64 mismatch")
	}
	if !c.MayBool("B", false) || c.MayBool("BBAD", false) {
		t.Fatalf("MayBool mismatch")
	}
	if c.MayDuration("D", time.Second) != 150*time.Millisecond || c.MayDuration("DBAD", time.Minute) != time.Minute {
		t.Fatalf("MayDuration mismatch")
	}
}

func TestMayURL(t *testing.T) {
	c := New().Prefix("URL_")
	t.Setenv("URL_OK", "https://summit-lsp.lsst.codes/")
	t.Setenv("URL_BAD", "not a url")
	if got := c.MayURL("OK", ""); got != "https://summit-lsp.lsst.codes" {
		t.Fatalf("MayURL = %q", got)
	}
	if got := c.MayURL("BAD", "https://x"); got != "https://x" {
		t.Fatalf("MayURL bad -> default = %q", got)
	}
}

func TestMayLocation(t *testing.T) {
	c := New().Prefix("TZ_")
	t.Setenv("TZ_SITE", "UTC")
	if loc := c.MayLocation("SITE", "America/Santiago"); loc.String() != "UTC" {
		t.Fatalf("MayLocation = %v", loc)
	}
	t.Setenv("TZ_BAD", "Mars/Olympus")
	if loc := c.MayLocation("BAD", "UTC"); loc.String() != "UTC" {
		t.Fatalf("MayLocation fallback = %v", loc)
	}
}

func TestMayCSV(t *testing.T) {
	c := New().Prefix("CSV_")
	if got := c.MayCSV("MISS", []string{"LATISS"}); len(got) != 1 || got[0] != "LATISS" {
		t.Fatalf("MayCSV default mismatch: %#v", got)
	}
	t.Setenv("CSV_VALS", " LSSTComCam, LATISS , ,LSSTCam ,, ")
	got := c.MayCSV("VALS", nil)
	want := []string{"LSSTComCam", "LATISS", "LSSTCam"}
	if len(got) != len(want) {
		t.Fatalf("MayCSV len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MayCSV[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	t.Setenv("CSV_EMPTY", " , ,")
	if got := c.MayCSV("EMPTY", []string{"x"}); len(got) != 1 {
		t.Fatalf("MayCSV all-empty -> default mismatch: %#v", got)
	}
}

func TestMayEnum(t *testing.T) {
	c := New().Prefix("E_")
	if got := c.MayEnum("MISS", "http", "http", "pg"); got != "http" {
		t.Fatalf("MayEnum default = %q", got)
	}
	t.Setenv("E_MODE", "PG")
	if got := c.MayEnum("MODE", "http", "http", "pg"); got != "pg" {
		t.Fatalf("MayEnum allowed = %q", got)
	}
	t.Setenv("E_BAD", "grpc")
	kit.MustPanic(t, func() { _ = c.MayEnum("BAD", "http", "http", "pg") })
	if got := c.MayEnum("MISSING", "", "http"); got != "" {
		t.Fatalf("MayEnum empty def = %q", got)
	}
}
