package source

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	perr "logrep/internal/platform/errors"
	"logrep/internal/platform/logger"

	json "github.com/goccy/go-json"
)

// maxBody bounds a single upstream response body
const maxBody = 512 << 20

// Client is a minimal JSON REST client for one upstream service with retries
// and capped timeouts
type Client struct {
	http    *http.Client
	cfg     Config
	service string
	log     logger.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	probed  atomic.Bool
}

// NewClient creates a Client for service (used for logs and metrics labels)
func NewClient(service string, cfg Config) *Client {
	cfg = cfg.WithDefaults()
	hc := cfg.HTTPClient
	if hc == nil {
		hc = newHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout)
	}
	return &Client{
		http:    hc,
		cfg:     cfg,
		service: service,
		log:     *logger.Named(service),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func newHTTPClient(connect, read time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: read,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{Transport: tr, Timeout: connect + read}
}

// Config returns the effective (defaulted) configuration
func (c *Client) Config() Config { return c.cfg }

// Service returns the service label
func (c *Client) Service() string { return c.service }

// Logger returns the component logger
func (c *Client) Logger() *logger.Logger { return &c.log }

// URL joins the server and path
func (c *Client) URL(path string) string { return c.cfg.Server + path }

// Get issues a GET with query parameters and returns the body of a 2xx response
func (c *Client) Get(ctx context.Context, endpoint, path string, q url.Values) ([]byte, error) {
	u := c.URL(path)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return c.do(ctx, endpoint, http.MethodGet, u, nil)
}

// Post issues a POST with a JSON body and returns the body of a 2xx response
func (c *Client) Post(ctx context.Context, endpoint, path string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "encode request body")
	}
	return c.do(ctx, endpoint, http.MethodPost, c.URL(path), b)
}

func (c *Client) do(ctx context.Context, endpoint, method, u string, body []byte) ([]byte, error) {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "%s %s", method, u)
		}

		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "build request %s %s", method, u)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)

		if err != nil {
			c.cfg.Observer.Request(c.service, endpoint, 0, lat, err)
			if ctx.Err() != nil || !c.shouldRetry(attempts) {
				return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "%s %s", method, u)
			}
			back := c.backoff(attempts)
			c.log.Warn().Err(err).Dur("retry_in", back).Int("attempt", attempts).Str("url", u).Msg("transport error retrying")
			if serr := c.sleep(ctx, back); serr != nil {
				return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "%s %s", method, u)
			}
			attempts++
			continue
		}

		c.cfg.Observer.Request(c.service, endpoint, resp.StatusCode, lat, nil)
		c.log.Debug().
			Str("method", method).
			Str("url", u).
			Int("status", resp.StatusCode).
			Int("attempt", attempts).
			Dur("latency", lat).
			Msg("upstream http response")

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			b, rerr := io.ReadAll(io.LimitReader(resp.Body, maxBody))
			_ = resp.Body.Close()
			if rerr != nil {
				return nil, perr.Wrapf(rerr, perr.ErrorCodeUnavailable, "read body %s", u)
			}
			return b, nil

		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode == http.StatusBadGateway,
			resp.StatusCode == http.StatusServiceUnavailable,
			resp.StatusCode == http.StatusGatewayTimeout:
			if !c.shouldRetry(attempts) {
				return nil, newStatusError(resp, u)
			}
			wait := retryAfter(resp.Header)
			if wait <= 0 {
				wait = c.backoff(attempts)
			}
			c.log.Warn().Int("status", resp.StatusCode).Dur("retry_in", wait).Int("attempt", attempts).Msg("transient upstream error retrying")
			_ = drainAndClose(resp.Body)
			if serr := c.sleep(ctx, wait); serr != nil {
				return nil, perr.Wrapf(serr, perr.ErrorCodeUnavailable, "%s %s", method, u)
			}
			attempts++
			continue

		default:
			return nil, newStatusError(resp, u)
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	// exponential with a 30s cap
	ms := int64(c.cfg.RetryBase/time.Millisecond) << uint(attempt)
	if limit := int64(30 * time.Second / time.Millisecond); ms > limit {
		ms = limit
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Client) shouldRetry(attempt int) bool { return attempt < c.cfg.MaxRetries }

func retryAfter(h http.Header) time.Duration {
	s := h.Get("Retry-After")
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
