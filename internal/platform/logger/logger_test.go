package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	kit "logrep/internal/platform/testkit"

	"github.com/rs/zerolog"
)

func TestParseLevel_AllBranches(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"   nonsense   ", zerolog.InfoLevel},
	}
	for _, c := range cases {
		if got := parseLevel(c.in); got != c.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestInit_Get_Named_C_WithRun(t *testing.T) {
	var buf bytes.Buffer

	Init(Options{
		Level:       "debug",
		Format:      "console",
		Service:     "logrep-test",
		Component:   "root",
		Writer:      &buf,
		WithCaller:  true,
		SampleEvery: 2,
		StaticFields: map[string]string{
			"site": "summit",
		},
	})

	// re-sample to N=1 so every line is emitted
	rv := Get().Sample(&zerolog.BasicSampler{N: 1})
	rp := &rv
	rp.Info().Str("k", "v").Msg("root-msg")

	nv := Named("exposurelog").Sample(&zerolog.BasicSampler{N: 1})
	np := &nv
	np.Info().Msg("named-msg")

	ctx := WithRun(context.Background(), "run-123", "2024-10-13..2024-10-14")
	if got := RunID(ctx); got != "run-123" {
		t.Fatalf("RunID = %q", got)
	}
	cv := C(ctx).Sample(&zerolog.BasicSampler{N: 1})
	cp := &cv
	cp.Info().Msg("ctx-msg")

	out := buf.String()
	kit.MustContain(t, out, "root-msg")
	kit.MustContain(t, out, "named-msg")
	kit.MustContain(t, out, "ctx-msg")
	kit.MustContain(t, out, "exposurelog")
	kit.MustContain(t, out, "run_id=")
	kit.MustContain(t, out, "run-123")
	kit.MustContain(t, out, "window=")
	kit.MustContain(t, out, "site=")
	kit.MustContain(t, out, "logrep-test")
}

func TestFromEnv_Independently(t *testing.T) {
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_SERVICE", "svc-b")
	t.Setenv("LOG_COMPONENT", "comp-b")
	t.Setenv("LOG_CALLER", "true")
	t.Setenv("LOG_SAMPLE_EVERY", "5")

	opt := FromEnv()
	if strings.ToLower(opt.Level) != "warn" {
		t.Fatalf("FromEnv Level = %q, want warn", opt.Level)
	}
	if opt.Format != "json" || opt.Service != "svc-b" || opt.Component != "comp-b" {
		t.Fatalf("FromEnv fields mismatch: %+v", opt)
	}
	if !opt.WithCaller || opt.SampleEvery != 5 {
		t.Fatalf("FromEnv caller/sample mismatch: %+v", opt)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_SERVICE", "")
	t.Setenv("LOG_FORMAT", "")
	opt := FromEnv()
	if opt.Level != "info" || opt.Service != "logrep" || opt.Format != FormatAuto {
		t.Fatalf("defaults mismatch: %+v", opt)
	}
}

func TestNewFormats(t *testing.T) {
	cases := []struct {
		format string
		want   string
	}{
		{FormatJSON, `"message":"hello"`},
		{FormatConsole, "hello"},
		// a buffer is never a terminal
		{FormatAuto, `"message":"hello"`},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		l := New(Options{Format: c.format, Level: "info", Service: "svc", Writer: &buf})
		l.Debug().Msg("dropped")
		l.Info().Msg("hello")
		out := buf.String()
		kit.MustContain(t, out, c.want)
		if strings.Contains(out, "dropped") {
			t.Fatalf("%s: debug line below info level: %s", c.format, out)
		}
	}
}

func TestWithRun_NoValues(t *testing.T) {
	ctx := WithRun(context.Background(), "", "")
	if RunID(ctx) != "" {
		t.Fatalf("expected empty run id")
	}
	v := C(ctx).Sample(&zerolog.BasicSampler{N: 1})
	p := &v
	p.Debug().Msg("no-fields")
}
