// Package config handles application configuration via environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"logrep/internal/platform/logger"
)

// Conf is a namespaced view over environment variables (e.g., "LOGREP_", "LOGREP_CACHE_")
// Use New() for global access, or Prefix("LOGREP_") for module scopes
type Conf struct{ prefix string }

// New creates a root Conf (no prefix)
func New() Conf { return Conf{} }

// Prefix creates a child Conf with an additional prefix, e.g. cfg.Prefix("CONSDB_")
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

func (c Conf) key(k string) string { return c.prefix + k }

func (c Conf) get(k string) string { return strings.TrimSpace(os.Getenv(c.key(k))) }

// Has reports whether key is set to a non-blank value
func (c Conf) Has(key string) bool { return c.get(key) != "" }

// MustString panics if the given key is missing or empty
func (c Conf) MustString(key string) string {
	v := c.get(key)
	if v == "" {
		logger.Get().Panic().Str("key", c.key(key)).Msg("missing required env")
	}
	return v
}

// MustInt panics if the given key is missing, empty, or not an int
func (c Conf) MustInt(key string) int { return must(c, key, "int", strconv.Atoi) }

// MustDuration panics if the given key is missing, empty, or not a valid duration
func (c Conf) MustDuration(key string) time.Duration {
	return must(c, key, "duration (e.g., 250ms, 2s, 1h)", time.ParseDuration)
}

// MustURL panics if the given key is missing, empty, or not a valid absolute URL
func (c Conf) MustURL(key string) *url.URL { return must(c, key, "absolute URL", parseAbsURL) }

// Require ensures that all given keys are present (non-empty). Panics otherwise
func (c Conf) Require(keys ...string) {
	for _, k := range keys {
		c.MustString(k)
	}
}

// MayString returns the value or def if missing/empty
func (c Conf) MayString(key, def string) string {
	if v := c.get(key); v != "" {
		return v
	}
	return def
}

// MayInt returns the value or def if missing/empty; logs and returns def if invalid
func (c Conf) MayInt(key string, def int) int { return may(c, key, "int", def, strconv.Atoi) }

// MayFloat64 returns the value or def if missing/empty; logs and returns def if invalid
func (c Conf) MayFloat64(key string, def float64) float64 {
	return may(c, key, "float64", def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// MayBool returns the value or def if missing/empty; logs and returns def if invalid
func (c Conf) MayBool(key string, def bool) bool { return may(c, key, "bool", def, strconv.ParseBool) }

// MayDuration returns the value or def if missing/empty; logs and returns def if invalid
func (c Conf) MayDuration(key string, def time.Duration) time.Duration {
	return may(c, key, "duration", def, time.ParseDuration)
}

// MayURL returns an absolute URL string without trailing slash, or def if
// missing/empty; logs and returns def if not absolute
func (c Conf) MayURL(key, def string) string {
	return may(c, key, "absolute URL", def, func(s string) (string, error) {
		if _, err := parseAbsURL(s); err != nil {
			return "", err
		}
		return strings.TrimRight(s, "/"), nil
	})
}

func parseAbsURL(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("%q is not absolute", s)
	}
	return u, nil
}

func must[T any](c Conf, key, kind string, parse func(string) (T, error)) T {
	s := c.MustString(key)
	v, err := parse(s)
	if err != nil {
		logger.Get().Panic().Err(err).Str("key", c.key(key)).Str("value", s).Msg("invalid " + kind)
	}
	return v
}

func may[T any](c Conf, key, kind string, def T, parse func(string) (T, error)) T {
	s := c.get(key)
	if s == "" {
		return def
	}
	v, err := parse(s)
	if err == nil {
		return v
	}
	logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Interface("default", def).Msg("invalid " + kind + "; using default")
	return def
}

// MayLocation loads an IANA time zone or falls back to def (itself loaded, UTC on failure)
func (c Conf) MayLocation(key, def string) *time.Location {
	name := c.MayString(key, def)
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc
	}
	logger.Get().Warn().Str("key", c.key(key)).Str("value", name).Str("default", def).Msg("unknown time zone; using default")
	if loc, err = time.LoadLocation(def); err == nil {
		return loc
	}
	return time.UTC
}

// MayCSV returns a slice of strings from a comma-separated env var; def if missing/empty
func (c Conf) MayCSV(key string, def []string) []string {
	s := c.get(key)
	if s == "" {
		return def
	}
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// MayEnum ensures value is one of allowed; returns def if empty; panics if invalid
func (c Conf) MayEnum(key, def string, allowed ...string) string {
	v := c.MayString(key, def)
	if v == "" {
		return v
	}
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return strings.ToLower(a)
		}
	}
	logger.Get().Panic().Str("key", c.key(key)).Str("value", v).Strs("allowed", allowed).Msg("invalid enum value")
	return ""
}
