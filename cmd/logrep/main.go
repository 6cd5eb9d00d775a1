// logrep fetches one or more observing nights from every observatory log
// service, reconciles them and prints a summary to stdout.
//
// Options come from LOGREP_* environment variables (see the nightlog module)
// and command line flags override them. Logs go to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"logrep/internal/core/version"
	"logrep/internal/modkit"
	"logrep/internal/platform/config"
	perr "logrep/internal/platform/errors"
	"logrep/internal/platform/logger"
	"logrep/internal/platform/metrics"
	"logrep/internal/platform/store/pg"
	ptime "logrep/internal/platform/time"
	nldom "logrep/internal/services/nightlog/domain"
	nlmod "logrep/internal/services/nightlog/module"

	"github.com/spf13/pflag"
)

// exit codes
const (
	exitFailure = 1
	exitUsage   = 2
	exitPartial = 3
)

var errPartial = errors.New("one or more sources failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err == nil {
		return
	}
	l := logger.Get()
	switch {
	case errors.Is(err, pflag.ErrHelp):
		return
	case errors.Is(err, errPartial):
		l.Warn().Err(err).Msg("logrep finished with failed sources")
		os.Exit(exitPartial)
	case perr.IsCode(err, perr.ErrorCodeConfig), perr.IsCode(err, perr.ErrorCodeValidation), perr.IsCode(err, perr.ErrorCodeInvalidArgument):
		l.Error().Err(err).Msg("logrep: bad options")
		os.Exit(exitUsage)
	default:
		l.Error().Err(err).Msg("logrep failed")
		os.Exit(exitFailure)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	ptime.Tic()
	var f flags
	fs := f.flagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return perr.Wrap(err, perr.ErrorCodeInvalidArgument, "parse flags")
	}
	if f.version {
		_, err := fmt.Fprintln(stdout, version.Info())
		return err
	}
	if rest := fs.Args(); len(rest) > 0 {
		return perr.Newf(perr.ErrorCodeInvalidArgument, "unexpected argument: %s", rest[0])
	}
	if !validFormat(f.format) {
		return perr.Newf(perr.ErrorCodeInvalidArgument, "unknown format %q (json, yaml, table)", f.format)
	}

	root := config.New()
	opts := nlmod.FromConfig(root)
	if err := f.apply(fs, &opts); err != nil {
		return err
	}

	l := logger.Get()
	deps := modkit.Deps{Log: *l, Cfg: root, Metrics: metrics.New()}

	if opts.ConsDB.Mode == nlmod.ConsDBPG {
		pgCfg := root.Prefix("LOGREP_CONSDB_")
		db, err := pg.Open(ctx, pg.Config{
			URL:      opts.ConsDB.DSN,
			MaxConns: int32(pgCfg.MayInt("MAX_CONNS", 2)),
			SlowMs:   pgCfg.MayInt("SLOW_MS", 2000),
			AppName:  "logrep",
		}, pg.Tracer(*l), nil)
		if err != nil {
			return err
		}
		defer db.Close()
		deps.PG = db
	}

	m, err := nlmod.NewWithOptions(deps, opts)
	if err != nil {
		return err
	}
	runner := modkit.MustPortsOf[nldom.RunnerPort](m)

	sum, err := runner.Run(ctx, nldom.Request{Min: f.min, Max: f.max})
	if err != nil {
		return err
	}
	if err := write(stdout, f.format, sum); err != nil {
		return err
	}

	if f.metricsFile != "" {
		if err := deps.Metrics.WriteTextfile(f.metricsFile); err != nil {
			l.Error().Err(err).Str("path", f.metricsFile).Msg("write metrics textfile")
		}
	}
	l.Debug().Dur("wall", ptime.Toc()).Msg("logrep done")
	if failed := sum.Failed(); f.strict && len(failed) > 0 {
		return fmt.Errorf("%w: %s", errPartial, strings.Join(failed, ","))
	}
	return nil
}
