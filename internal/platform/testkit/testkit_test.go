package testkit

import (
	"testing"
	"time"
)

func TestMustPanic(t *testing.T) {
	t.Parallel()
	MustPanic(t, func() { panic("boom") })
}

func TestMustNotPanic(t *testing.T) {
	t.Parallel()
	MustNotPanic(t, func() {})
}

func TestMustContain(t *testing.T) {
	t.Parallel()
	MustContain(t, "NIG_summary EXP_exposure_flag", "EXP_")
}

func TestMustTime(t *testing.T) {
	t.Parallel()
	want := time.Date(2024, 10, 14, 1, 2, 3, 0, time.UTC)
	for _, s := range []string{"2024-10-14T01:02:03Z", "2024-10-14T01:02:03", "2024-10-13T22:02:03-03:00"} {
		if got := MustTime(t, s); !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("MustTime(%q) = %v", s, got)
		}
	}
}

func TestNear(t *testing.T) {
	t.Parallel()
	Near(t, "idle", 7.4560000001, 7.456, 1e-6)
}
