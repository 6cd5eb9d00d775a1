// Package source holds the plumbing shared by every upstream adapter: the
// explicit endpoint configuration, a retrying HTTP client with capped
// timeouts, the offset/limit pagination loop, per-endpoint status maps and an
// optional on-disk record cache
package source

import (
	"net/http"
	"strings"
	"time"

	"logrep/internal/platform/validate"
)

const (
	// DefaultServer is used when Config.Server is empty
	DefaultServer = "https://usdf-rsp-dev.slac.stanford.edu"

	// MaxConnectTimeout caps the TCP/TLS connect phase of every request
	MaxConnectTimeout = 3100 * time.Millisecond

	// MaxReadTimeout caps the wait for a response of every request
	MaxReadTimeout = 90 * time.Minute

	// DefaultMaxRecords is the hard ceiling on records accumulated per endpoint
	DefaultMaxRecords = 9000

	// DefaultReadTimeout applies when ReadTimeout is unset
	DefaultReadTimeout = 180 * time.Second

	// DefaultMaxRetries is the retry count environment configuration starts from
	DefaultMaxRetries = 2

	// DefaultRetryBase is the first backoff step
	DefaultRetryBase = 500 * time.Millisecond

	defaultUA = "logrep"
)

// Config is the explicit endpoint configuration given to every adapter constructor
type Config struct {
	Server    string `json:"server" validate:"required,url"`
	Token     string `json:"-"`
	UserAgent string `json:"user_agent"`

	// Connect and read timeouts are clamped to MaxConnectTimeout and MaxReadTimeout
	ConnectTimeout time.Duration `json:"connect_timeout"`
	ReadTimeout    time.Duration `json:"read_timeout"`

	// Retry config for transport errors and transient (502/503/504/429) responses
	MaxRetries int           `json:"max_retries" validate:"min=0,max=10"`
	RetryBase  time.Duration `json:"retry_base"`

	// MaxRecords stops pagination once this many records are accumulated
	MaxRecords int `json:"max_records" validate:"min=1,max=1000000"`

	// Budget bounds one adapter Fetch; zero means only per-request timeouts apply
	Budget time.Duration `json:"budget"`

	// SkipProbe disables the cheap reconnect query issued before a fetch
	SkipProbe bool `json:"skip_probe"`

	Cache      Cache        `json:"-" validate:"-"`
	Observer   Observer     `json:"-" validate:"-"`
	HTTPClient *http.Client `json:"-" validate:"-"`
}

// WithDefaults fills zero values and clamps timeouts
func (c Config) WithDefaults() Config {
	c.Server = strings.TrimRight(strings.TrimSpace(c.Server), "/")
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUA
	}
	if c.ConnectTimeout <= 0 || c.ConnectTimeout > MaxConnectTimeout {
		c.ConnectTimeout = MaxConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.ReadTimeout > MaxReadTimeout {
		c.ReadTimeout = MaxReadTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.MaxRecords <= 0 {
		c.MaxRecords = DefaultMaxRecords
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	return c
}

// Validate applies defaults then checks the struct tags
func (c Config) Validate() error {
	return validate.Struct(c.WithDefaults())
}

// Observer receives request, page, cache and failure events (see platform/metrics)
type Observer interface {
	Request(service, endpoint string, status int, d time.Duration, err error)
	Page(service, endpoint string, records int)
	Cache(service string, hit bool)
	Failure(service, code string)
}

type nopObserver struct{}

func (nopObserver) Request(string, string, int, time.Duration, error) {}
func (nopObserver) Page(string, string, int)                          {}
func (nopObserver) Cache(string, bool)                                {}
func (nopObserver) Failure(string, string)                            {}
