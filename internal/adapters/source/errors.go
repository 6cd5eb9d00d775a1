package source

import (
	"errors"
	"io"
	"net/http"
	"strings"

	perr "logrep/internal/platform/errors"
)

// StatusError wraps a non-2xx upstream response
type StatusError struct {
	Status int
	URL    string
	Body   string
	Err    error
}

// Error interface
func (e *StatusError) Error() string { return e.Err.Error() }

// Unwrap interface
func (e *StatusError) Unwrap() error { return e.Err }

func newStatusError(resp *http.Response, u string) error {
	// keep a small tail for diagnostics and for upstreams that put the reason in the body
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	body := strings.TrimSpace(string(b))
	return &StatusError{
		Status: resp.StatusCode,
		URL:    u,
		Body:   body,
		Err:    perr.Newf(perr.FromHTTPStatus(resp.StatusCode), "unexpected status %d from %s: %s", resp.StatusCode, u, truncate(body, 256)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// AsStatusError extracts a *StatusError from err
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// StatusOf returns the upstream HTTP status carried by err, or 0
func StatusOf(err error) int {
	if se, ok := AsStatusError(err); ok {
		return se.Status
	}
	return 0
}

// IsTransient reports whether err is a 5xx or rate-limit response, or a transport failure
func IsTransient(err error) bool {
	if se, ok := AsStatusError(err); ok {
		return se.Status == 429 || se.Status >= 500
	}
	return perr.IsCode(err, perr.ErrorCodeUnavailable)
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 512))
	return rc.Close()
}
