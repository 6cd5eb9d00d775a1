package module

import (
	"time"

	"logrep/internal/adapters/almanac"
	"logrep/internal/adapters/efd"
	"logrep/internal/adapters/source"
	"logrep/internal/adapters/source/consdb"
	"logrep/internal/core/timelog"
	"logrep/internal/platform/config"
)

// ConsDB access modes
const (
	ConsDBHTTP = "http"
	ConsDBPG   = "pg"
)

// CacheOptions configure the optional on-disk record cache
type CacheOptions struct {
	Dir            string
	MaxAge         time.Duration
	RetainMaxAge   time.Duration
	RetainMaxBytes int64
}

// ConsDBOptions select how the Consolidated Database is reached
type ConsDBOptions struct {
	Mode        string   `validate:"oneof=http pg"`
	DSN         string   `json:"-"`
	Instruments []string `validate:"dive,required"`
	Limit       int      `validate:"min=0,max=100000"`
}

// EFDOptions configure the telemetry store adapter
type EFDOptions struct {
	Enabled     bool
	Server      string `validate:"omitempty,url"`
	DB          string `validate:"omitempty,sqlident"`
	Weather     bool
	Concurrency int `validate:"min=0,max=16"`
}

// Options for the nightlog module
type Options struct {
	Source source.Config `validate:"-"`
	Cache  CacheOptions
	ConsDB ConsDBOptions
	EFD    EFDOptions

	Instruments []string
	Loc         *time.Location `validate:"-"`
	Site        almanac.Site
	Parallel    bool

	Compact       bool
	Period        time.Duration
	AllowDataLoss bool
	MaxWidth      int `validate:"min=0"`
}

// FromConfig fills options from environment
// LOGREP_SERVER (default source.DefaultServer) is the observatory REST base URL
// LOGREP_TOKEN is sent as a bearer token when set
// LOGREP_CONNECT_TIMEOUT and LOGREP_READ_TIMEOUT are clamped by the client
// LOGREP_MAX_RETRIES (default 2), LOGREP_MAX_RECORDS (default 9000), LOGREP_BUDGET (default none)
// LOGREP_SKIP_PROBE (default false) skips the reconnect probe before a fetch
// LOGREP_PARALLEL (default false) fetches all sources concurrently
// LOGREP_INSTRUMENTS restricts the Exposure Log instruments
// LOGREP_CACHE_DIR enables the disk cache; LOGREP_CACHE_MAX_AGE, LOGREP_CACHE_RETAIN_MAX_AGE, LOGREP_CACHE_RETAIN_MAX_BYTES
// LOGREP_CONSDB_MODE (http|pg, default http), LOGREP_CONSDB_DSN, LOGREP_CONSDB_INSTRUMENTS, LOGREP_CONSDB_LIMIT
// LOGREP_EFD_ENABLED (default true), LOGREP_EFD_SERVER (default LOGREP_SERVER), LOGREP_EFD_DB, LOGREP_EFD_WEATHER, LOGREP_EFD_CONCURRENCY
// LOGREP_SITE_LAT, LOGREP_SITE_LON (default Cerro Pachon), LOGREP_SITE_TZ (default UTC)
// LOGREP_TIMELOG_COMPACT (default true), LOGREP_TIMELOG_PERIOD (default 4h), LOGREP_TIMELOG_ALLOW_DATA_LOSS, LOGREP_TIMELOG_MAX_WIDTH (default 80)
func FromConfig(cfg config.Conf) Options {
	n := cfg.Prefix("LOGREP_")
	c := n.Prefix("CACHE_")
	d := n.Prefix("CONSDB_")
	e := n.Prefix("EFD_")
	s := n.Prefix("SITE_")
	tl := n.Prefix("TIMELOG_")

	server := n.MayURL("SERVER", source.DefaultServer)
	return Options{
		Source: source.Config{
			Server:         server,
			Token:          n.MayString("TOKEN", ""),
			ConnectTimeout: n.MayDuration("CONNECT_TIMEOUT", source.MaxConnectTimeout),
			ReadTimeout:    n.MayDuration("READ_TIMEOUT", source.DefaultReadTimeout),
			MaxRetries:     n.MayInt("MAX_RETRIES", source.DefaultMaxRetries),
			MaxRecords:     n.MayInt("MAX_RECORDS", source.DefaultMaxRecords),
			Budget:         n.MayDuration("BUDGET", 0),
			SkipProbe:      n.MayBool("SKIP_PROBE", false),
		},
		Cache: CacheOptions{
			Dir:            c.MayString("DIR", ""),
			MaxAge:         c.MayDuration("MAX_AGE", 0),
			RetainMaxAge:   c.MayDuration("RETAIN_MAX_AGE", 0),
			RetainMaxBytes: int64(c.MayInt("RETAIN_MAX_BYTES", 0)),
		},
		ConsDB: ConsDBOptions{
			Mode:        d.MayEnum("MODE", ConsDBHTTP, ConsDBHTTP, ConsDBPG),
			DSN:         d.MayString("DSN", ""),
			Instruments: d.MayCSV("INSTRUMENTS", consdb.DefaultInstruments),
			Limit:       d.MayInt("LIMIT", 0),
		},
		EFD: EFDOptions{
			Enabled:     e.MayBool("ENABLED", true),
			Server:      e.MayURL("SERVER", server),
			DB:          e.MayString("DB", efd.DefaultDB),
			Weather:     e.MayBool("WEATHER", false),
			Concurrency: e.MayInt("CONCURRENCY", 0),
		},
		Instruments: n.MayCSV("INSTRUMENTS", nil),
		Loc:         s.MayLocation("TZ", "UTC"),
		Site: almanac.Site{
			Name: s.MayString("NAME", almanac.CerroPachon.Name),
			Lat:  s.MayFloat64("LAT", almanac.CerroPachon.Lat),
			Lon:  s.MayFloat64("LON", almanac.CerroPachon.Lon),
		},
		Parallel:      n.MayBool("PARALLEL", false),
		Compact:       tl.MayBool("COMPACT", true),
		Period:        tl.MayDuration("PERIOD", timelog.DefaultPeriod),
		AllowDataLoss: tl.MayBool("ALLOW_DATA_LOSS", false),
		MaxWidth:      tl.MayInt("MAX_WIDTH", timelog.DefaultMaxWidth),
	}
}
