package validate

import (
	"testing"

	perr "logrep/internal/platform/errors"
	kit "logrep/internal/platform/testkit"
)

type opts struct {
	Server     string `json:"server" validate:"required,url"`
	Limit      int    `json:"limit" validate:"min=1,max=2500"`
	Instrument string `json:"instrument" validate:"omitempty,sqlident"`
	MinDayobs  string `json:"min_dayobs" validate:"omitempty,dayobs"`
}

func TestStruct_OK(t *testing.T) {
	o := opts{Server: "https://summit-lsp.lsst.codes", Limit: 100, Instrument: "latiss", MinDayobs: "Yesterday"}
	if err := Struct(o); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestStruct_Failures(t *testing.T) {
	cases := []struct {
		name  string
		in    opts
		field string
		msg   string
	}{
		{"missing server", opts{Limit: 1}, "server", "server"},
		{"limit too large", opts{Server: "https://x.org", Limit: 9999}, "limit", "limit must be at most 2500"},
		{"limit too small", opts{Server: "https://x.org", Limit: 0}, "limit", "limit must be at least 1"},
		{"bad instrument", opts{Server: "https://x.org", Limit: 1, Instrument: "LATISS; DROP"}, "instrument", "SQL identifier"},
		{"bad dayobs", opts{Server: "https://x.org", Limit: 1, MinDayobs: "2024/10/14"}, "min_dayobs", "YYYYMMDD"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Struct(c.in)
			if !perr.IsCode(err, perr.ErrorCodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			e, _ := perr.As(err)
			if e.Field() != c.field {
				t.Fatalf("field = %q, want %q", e.Field(), c.field)
			}
			kit.MustContain(t, err.Error(), c.msg)
		})
	}
}

func TestStruct_InvalidTarget(t *testing.T) {
	if err := Struct(42); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("expected validation error for non-struct, got %v", err)
	}
}

func TestFieldAndMessage_Nil(t *testing.T) {
	if f, m := FieldAndMessage(nil); f != "" || m != "" {
		t.Fatalf("expected empty pair")
	}
}
