package main

import (
	"strings"
	"time"

	perr "logrep/internal/platform/errors"
	pstrings "logrep/internal/platform/strings"
	nlmod "logrep/internal/services/nightlog/module"

	"github.com/spf13/pflag"
)

type flags struct {
	min, max    string
	format      string
	metricsFile string
	strict      bool
	version     bool

	server      string
	token       string
	maxRetries  int
	maxRecords  int
	skipProbe   bool
	cacheDir    string
	instruments []string
	parallel    bool
	tz          string

	consdbMode        string
	consdbDSN         string
	consdbInstruments []string
	efd               bool
	weather           bool

	compact       bool
	period        time.Duration
	allowDataLoss bool
	maxWidth      int
}

func (f *flags) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("logrep", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringVar(&f.min, "min", "", "first night (YYYYMMDD, YYYY-MM-DD, today, yesterday); default the night before --max")
	fs.StringVar(&f.max, "max", "", "night after the last one reported; default today")
	fs.StringVarP(&f.format, "format", "o", "table", "output format: json, yaml or table")
	fs.StringVar(&f.metricsFile, "metrics-textfile", "", "write prometheus metrics to this file after the run")
	fs.BoolVar(&f.strict, "strict", false, "exit with status 3 when any source failed")
	fs.BoolVar(&f.version, "version", false, "print version and exit")

	fs.StringVar(&f.server, "server", "", "observatory REST base URL (LOGREP_SERVER)")
	fs.StringVar(&f.token, "token", "", "bearer token for the REST services (LOGREP_TOKEN)")
	fs.IntVar(&f.maxRetries, "max-retries", 0, "retries per request on transient errors (LOGREP_MAX_RETRIES)")
	fs.IntVar(&f.maxRecords, "max-records", 0, "record ceiling per endpoint (LOGREP_MAX_RECORDS)")
	fs.BoolVar(&f.skipProbe, "skip-probe", false, "skip the reachability probe before each fetch (LOGREP_SKIP_PROBE)")
	fs.StringVar(&f.cacheDir, "cache-dir", "", "enable the disk cache in this directory (LOGREP_CACHE_DIR)")
	fs.StringSliceVar(&f.instruments, "instrument", nil, "restrict Exposure Log instruments, repeatable (LOGREP_INSTRUMENTS)")
	fs.BoolVar(&f.parallel, "parallel", false, "fetch every source concurrently (LOGREP_PARALLEL)")
	fs.StringVar(&f.tz, "tz", "", "site timezone for nights and sentinels (LOGREP_SITE_TZ)")

	fs.StringVar(&f.consdbMode, "consdb-mode", "", "consolidated database access: http or pg (LOGREP_CONSDB_MODE)")
	fs.StringVar(&f.consdbDSN, "consdb-dsn", "", "postgres DSN for --consdb-mode=pg (LOGREP_CONSDB_DSN)")
	fs.StringSliceVar(&f.consdbInstruments, "consdb-instrument", nil, "consolidated database instruments, repeatable (LOGREP_CONSDB_INSTRUMENTS)")
	fs.BoolVar(&f.efd, "efd", true, "query the engineering facility database (LOGREP_EFD_ENABLED)")
	fs.BoolVar(&f.weather, "weather", false, "also fetch EFD weather series (LOGREP_EFD_WEATHER)")

	fs.BoolVar(&f.compact, "compact", true, "compact and reduce the time log per period (LOGREP_TIMELOG_COMPACT)")
	fs.DurationVar(&f.period, "period", 0, "time log reduction period (LOGREP_TIMELOG_PERIOD)")
	fs.BoolVar(&f.allowDataLoss, "allow-data-loss", false, "let compaction drop admin, sparse and list columns (LOGREP_TIMELOG_ALLOW_DATA_LOSS)")
	fs.IntVar(&f.maxWidth, "max-width", 0, "widest column kept in the dense frame (LOGREP_TIMELOG_MAX_WIDTH)")
	return fs
}

// apply overrides environment options with every flag set on the command line
func (f *flags) apply(fs *pflag.FlagSet, o *nlmod.Options) error {
	set := fs.Changed
	if set("server") {
		server := strings.TrimRight(f.server, "/")
		if o.EFD.Server == o.Source.Server {
			o.EFD.Server = server
		}
		o.Source.Server = server
	}
	if set("token") {
		o.Source.Token = pstrings.EmptyToNil(f.token)
	}
	if set("max-retries") {
		o.Source.MaxRetries = f.maxRetries
	}
	if set("max-records") {
		o.Source.MaxRecords = f.maxRecords
	}
	if set("skip-probe") {
		o.Source.SkipProbe = f.skipProbe
	}
	if set("cache-dir") {
		o.Cache.Dir = f.cacheDir
	}
	if set("instrument") {
		o.Instruments = pstrings.Unique(f.instruments)
	}
	if set("parallel") {
		o.Parallel = f.parallel
	}
	if set("tz") {
		loc, err := time.LoadLocation(f.tz)
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeConfig, "unknown timezone %q", f.tz)
		}
		o.Loc = loc
	}
	if set("consdb-mode") {
		o.ConsDB.Mode = strings.ToLower(f.consdbMode)
	}
	if set("consdb-dsn") {
		o.ConsDB.DSN = f.consdbDSN
	}
	if set("consdb-instrument") {
		o.ConsDB.Instruments = pstrings.IfEmpty(pstrings.Unique(f.consdbInstruments), o.ConsDB.Instruments)
	}
	if set("efd") {
		o.EFD.Enabled = f.efd
	}
	if set("weather") {
		o.EFD.Weather = f.weather
	}
	if set("compact") {
		o.Compact = f.compact
	}
	if set("period") {
		o.Period = f.period
	}
	if set("allow-data-loss") {
		o.AllowDataLoss = f.allowDataLoss
	}
	if set("max-width") {
		o.MaxWidth = f.maxWidth
	}
	return nil
}
