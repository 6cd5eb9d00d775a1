// Package service provides the nightlog aggregation implementation
package service

import (
	"context"
	"time"

	"logrep/internal/adapters/almanac"
	"logrep/internal/adapters/source"
	"logrep/internal/core/dayobs"
	"logrep/internal/core/timelog"
	perr "logrep/internal/platform/errors"
	"logrep/internal/platform/logger"
	"logrep/internal/platform/metrics"
	ptime "logrep/internal/platform/time"
	"logrep/internal/platform/validate"
	nldom "logrep/internal/services/nightlog/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config controls window resolution, fan-out and time log shaping
type Config struct {
	// Loc is the site timezone used for sentinels and nights
	Loc *time.Location

	Site almanac.Site

	// Parallel fetches every source concurrently
	Parallel bool

	// Compact enables compaction and per-period reduction of the time log
	Compact   bool
	Timelog   timelog.CompactOptions
	Reduce    timelog.ReduceOptions
	Partition timelog.PartitionOptions
}

// Service wires the adapter factory into the aggregation steps
type Service struct {
	Cfg     Config
	Factory nldom.Factory
	Metrics *metrics.Metrics

	now   func() time.Time
	newID func() string
}

// New constructs the nightlog service
func New(cfg Config, factory nldom.Factory, m *metrics.Metrics) *Service {
	if factory == nil {
		panic("nightlog.Service requires a non nil adapter factory")
	}
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	if cfg.Site == (almanac.Site{}) {
		cfg.Site = almanac.CerroPachon
	}
	return &Service{Cfg: cfg, Factory: factory, Metrics: m, now: time.Now, newID: uuid.NewString}
}

var _ nldom.RunnerPort = (*Service)(nil)

// Run resolves the window, fetches every source and reconciles them
func (s *Service) Run(ctx context.Context, req nldom.Request) (*nldom.Summary, error) {
	start := s.now()
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	r := dayobs.NewResolver(s.Cfg.Loc)
	r.Now = s.now
	w, err := r.Resolve(req.Min, req.Max)
	if err != nil {
		return nil, err
	}

	runID := s.newID()
	ctx = logger.WithRun(ctx, runID, w.String())
	l := logger.C(ctx).With().Str("mod", "nightlog").Logger()
	l.Info().Int("nights", w.Nights()).Bool("parallel", s.Cfg.Parallel).Msg("nightlog: run start")

	ads, err := s.Factory()
	if err != nil {
		return nil, err
	}

	sum := &nldom.Summary{
		RunID:  runID,
		Min:    w.Min,
		Max:    w.Max,
		Start:  w.Start(),
		End:    w.End(),
		Status: map[string]source.StatusMap{},
		Errors: map[string]perr.Wire{},
		Counts: map[string]int{},
	}

	tm := ptime.NewTimer()
	errs := s.fetch(ctx, w, ads.List())
	tm.Lap("fetch")
	tm.Tic()
	for _, ad := range ads.List() {
		sum.Status[ad.Name()] = ad.Status()
		if err := errs[ad.Name()]; err != nil {
			if perr.IsCode(err, perr.ErrorCodeConfig) {
				return nil, err
			}
			sum.Errors[ad.Name()] = perr.WireFrom(err)
			l.Error().Err(err).Str("source", ad.Name()).Msg("nightlog: source failed")
		}
	}

	s.derive(ctx, w, ads, sum)
	tm.Lap("derive")

	sum.Elapsed = s.now().Sub(start)
	if s.Metrics != nil {
		s.Metrics.Run(sum.Elapsed)
	}
	laps := tm.Laps()
	l.Debug().Dur("fetch", laps["fetch"]).Dur("derive", laps["derive"]).Msg("nightlog: stage timings")
	l.Info().
		Dur("elapsed", sum.Elapsed).
		Strs("failed", sum.Failed()).
		Int("time_log_rows", sum.TimeLog.Frame.Len()).
		Msg("nightlog: run done")
	return sum, nil
}

// fetch calls every adapter and returns the error of each by name. One
// adapter's failure never stops the others
func (s *Service) fetch(ctx context.Context, w dayobs.Window, ads []source.Adapter) map[string]error {
	errs := make([]error, len(ads))
	if s.Cfg.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, ad := range ads {
			g.Go(func() error {
				errs[i] = fetchOne(gctx, w, ad)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, ad := range ads {
			errs[i] = fetchOne(ctx, w, ad)
		}
	}
	out := make(map[string]error, len(ads))
	for i, ad := range ads {
		out[ad.Name()] = errs[i]
	}
	return out
}

func fetchOne(ctx context.Context, w dayobs.Window, ad source.Adapter) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = perr.Internalf("%s: fetch panicked: %v", ad.Name(), rec)
		}
	}()
	l := logger.C(ctx)
	t0 := time.Now()
	err = ad.Fetch(ctx, w)
	l.Debug().Str("source", ad.Name()).Dur("took", time.Since(t0)).Err(err).Msg("nightlog: fetched")
	return err
}
