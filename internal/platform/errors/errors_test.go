package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorCode
	}{
		{http.StatusNotFound, ErrorCodeNotFound},
		{http.StatusUnauthorized, ErrorCodeUnauthorized},
		{http.StatusForbidden, ErrorCodeUnauthorized},
		{http.StatusTooManyRequests, ErrorCodeTooManyRequests},
		{http.StatusUnprocessableEntity, ErrorCodeInvalidArgument},
		{http.StatusBadRequest, ErrorCodeInvalidArgument},
		{http.StatusBadGateway, ErrorCodeUnavailable},
		{http.StatusServiceUnavailable, ErrorCodeUnavailable},
		{http.StatusGatewayTimeout, ErrorCodeUnavailable},
		{http.StatusInternalServerError, ErrorCodeBadStatus},
		{http.StatusTeapot, ErrorCodeBadStatus},
		{http.StatusOK, ErrorCodeUnknown},
	}
	for _, c := range cases {
		if got := FromHTTPStatus(c.status); got != c.want {
			t.Fatalf("FromHTTPStatus(%d) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestErrorCodeString(t *testing.T) {
	if ErrorCodeBadStatus.String() != "bad_status" || ErrorCodeNoRecords.String() != "no_records" {
		t.Fatalf("unexpected names")
	}
	if got := ErrorCode(999).String(); got != "code(999)" {
		t.Fatalf("unknown code name = %q", got)
	}
}

func TestErrorTypeAndMethods(t *testing.T) {
	var e *Error
	if e.Error() != "<nil>" {
		t.Fatalf("nil *Error render = %q, want <nil>", e.Error())
	}

	e1 := New(ErrorCodeValidation, "bad stuff")
	if CodeOf(e1) != ErrorCodeValidation {
		t.Fatalf("CodeOf(New) = %v", CodeOf(e1))
	}
	e2 := Newf(ErrorCodeJSON, "bad json %d", 12)
	if got := e2.Error(); got != "bad json 12" {
		t.Fatalf("Newf().Error = %q", got)
	}

	src := stderrs.New("root")
	e3 := Wrap(src, ErrorCodeDB, "db failed")
	if u := stderrs.Unwrap(e3); u == nil || u.Error() != "root" {
		t.Fatalf("Wrap did not keep orig")
	}
	e4 := Wrapf(src, ErrorCodeBadStatus, "status %d", 500)
	if want := "status 500: root"; e4.Error() != want {
		t.Fatalf("Wrapf().Error = %q, want %q", e4.Error(), want)
	}
	if got, ok := As(e4); !ok || got.Code() != ErrorCodeBadStatus {
		t.Fatalf("As() failed for our error")
	}
	if _, ok := As(src); ok {
		t.Fatalf("As() true for foreign error")
	}

	e5 := Wrap(src, ErrorCodeInvalidArgument, "oops")
	e6 := WithField(e5, "min_dayobs")
	e7 := WithOp(e6, "window")
	if fe, ok := As(e6); !ok || fe.Field() != "min_dayobs" {
		t.Fatalf("WithField failed")
	}
	if oe, ok := As(e7); !ok || oe.Op() != "window" {
		t.Fatalf("WithOp failed")
	}
	if fe0, _ := As(e5); fe0.Field() != "" || fe0.Op() != "" {
		t.Fatalf("copy-on-write mutated original")
	}
	if WithField(src, "x") != src {
		t.Fatalf("WithField on foreign error should pass through")
	}
}

func TestWire(t *testing.T) {
	if wf := WireFrom(nil); wf != (Wire{}) {
		t.Fatalf("WireFrom(nil) expected zero, got %+v", wf)
	}
	src := stderrs.New("dial tcp: timeout")
	if wf := WireFrom(src); wf.Code != ErrorCodeUnknown || wf.Message != "dial tcp: timeout" || wf.Name != "unknown" {
		t.Fatalf("WireFrom(foreign) mismatch: %+v", wf)
	}
	w := WireFrom(Wrap(src, ErrorCodeUnavailable, "GET /exposurelog/messages"))
	if w.Code != ErrorCodeUnavailable || w.Name != "unavailable" {
		t.Fatalf("WireFrom(ours) mismatch: %+v", w)
	}
	if w.Message != "GET /exposurelog/messages: dial tcp: timeout" {
		t.Fatalf("Wire message should carry the chain, got %q", w.Message)
	}
}

func TestSugarAndFatal(t *testing.T) {
	if !IsCode(InvalidArgf("x"), ErrorCodeInvalidArgument) ||
		!IsCode(Configf("x"), ErrorCodeConfig) ||
		!IsCode(Queryf("x"), ErrorCodeQuery) ||
		!IsCode(JSONErrf("x"), ErrorCodeJSON) ||
		!IsCode(Unavailablef("x"), ErrorCodeUnavailable) ||
		!IsCode(Internalf("x"), ErrorCodeUnknown) {
		t.Fatalf("sugar helpers code mismatch")
	}

	fatal := []error{Configf("x"), InvalidArgf("x"), New(ErrorCodeValidation, "x"), Queryf("x")}
	for _, err := range fatal {
		if !IsFatal(err) {
			t.Fatalf("IsFatal(%v) = false", err)
		}
	}
	if IsFatal(Unavailablef("x")) || IsFatal(New(ErrorCodeBadStatus, "x")) || IsFatal(stderrs.New("x")) {
		t.Fatalf("non-fatal classified as fatal")
	}
}

func TestRetryableAndWrapIf(t *testing.T) {
	if !Retryable(Unavailablef("x")) || !Retryable(New(ErrorCodeTooManyRequests, "x")) {
		t.Fatalf("transient codes should be retryable")
	}
	if Retryable(Queryf("bad sql")) {
		t.Fatalf("query errors are not retryable")
	}
	if Retryable(context.Canceled) {
		t.Fatalf("cancellation is not retryable")
	}

	if WrapIf(nil, ErrorCodeDB, "ignored") != nil {
		t.Fatalf("WrapIf(nil) should return nil")
	}
	if WrapIf(stderrs.New("x"), ErrorCodeDB, "db") == nil {
		t.Fatalf("WrapIf(non-nil) should wrap")
	}

	deep := fmt.Errorf("level2: %w", fmt.Errorf("level1: %w", stderrs.New("root")))
	if got := Root(deep); got == nil || got.Error() != "root" {
		t.Fatalf("Root() failed, got %v", got)
	}
}
