// Package module wires the nightlog service as a modkit.Module
package module

import (
	"logrep/internal/adapters/efd"
	"logrep/internal/adapters/source"
	"logrep/internal/adapters/source/consdb"
	"logrep/internal/adapters/source/exposurelog"
	"logrep/internal/adapters/source/narrativelog"
	"logrep/internal/adapters/source/nightreport"
	"logrep/internal/core/timelog"
	"logrep/internal/modkit"
	perr "logrep/internal/platform/errors"
	"logrep/internal/platform/validate"
	nldom "logrep/internal/services/nightlog/domain"
	nlservice "logrep/internal/services/nightlog/service"
)

// Ports exported by the nightlog module
type Ports struct {
	Runner nldom.RunnerPort
}

// Module implements modkit.Module for nightlog
type Module struct {
	name  string
	opts  Options
	ports Ports
}

var _ modkit.Module = (*Module)(nil)

// New constructs and wires the nightlog module using deps.Cfg. A
// domain.Factory given with modkit.WithPorts replaces the adapters built from
// configuration
func New(deps modkit.Deps, mopts ...modkit.Option) (*Module, error) {
	return NewWithOptions(deps, FromConfig(deps.Cfg), mopts...)
}

// NewWithOptions is New with explicit options (CLI flags already applied)
func NewWithOptions(deps modkit.Deps, opts Options, mopts ...modkit.Option) (*Module, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, err
	}
	b := modkit.Build(mopts...)

	src := opts.Source
	if src.Observer == nil {
		src.Observer = deps.Observer()
	}
	if src.Cache == nil {
		src.Cache = deps.Cache
	}
	if src.Cache == nil && opts.Cache.Dir != "" {
		c, err := source.NewDiskCache(opts.Cache.Dir,
			source.WithMaxAge(opts.Cache.MaxAge),
			source.WithRetention(opts.Cache.RetainMaxAge, opts.Cache.RetainMaxBytes))
		if err != nil {
			return nil, err
		}
		src.Cache = c
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	opts.Source = src

	factory, ok := b.Ports.(nldom.Factory)
	if !ok {
		if opts.ConsDB.Mode == ConsDBPG && deps.PG == nil {
			return nil, perr.Configf("nightlog: consdb mode pg needs a postgres connection")
		}
		factory = adapters(deps, opts)
	}

	svc := nlservice.New(nlservice.Config{
		Loc:      opts.Loc,
		Site:     opts.Site,
		Parallel: b.ParallelOr(opts.Parallel),
		Compact:  opts.Compact,
		Timelog: timelog.CompactOptions{
			Period:        opts.Period,
			AllowDataLoss: opts.AllowDataLoss,
		},
		Partition: timelog.PartitionOptions{MaxWidth: opts.MaxWidth},
	}, factory, deps.Metrics)

	name := b.Name
	if name == "" {
		name = "nightlog"
	}
	return &Module{name: name, opts: opts, ports: Ports{Runner: svc}}, nil
}

// adapters returns a factory building a fresh adapter set per run
func adapters(deps modkit.Deps, opts Options) nldom.Factory {
	return func() (nldom.Adapters, error) {
		var (
			ads nldom.Adapters
			err error
		)
		if ads.NightReport, err = nightreport.New(opts.Source, nightreport.Options{}); err != nil {
			return ads, err
		}
		if ads.ExposureLog, err = exposurelog.New(opts.Source, exposurelog.Options{Instruments: opts.Instruments}); err != nil {
			return ads, err
		}
		if ads.NarrativeLog, err = narrativelog.New(opts.Source, narrativelog.Options{}); err != nil {
			return ads, err
		}

		copts := consdb.Options{Instruments: opts.ConsDB.Instruments, Limit: opts.ConsDB.Limit}
		if opts.ConsDB.Mode == ConsDBPG {
			copts.MaxRecords = opts.Source.MaxRecords
			copts.SkipReconnect = opts.Source.SkipProbe
			ads.ConsDB, err = consdb.NewWithQuerier(consdb.NewPGQuerier(deps.PG, opts.ConsDB.DSN), copts)
		} else {
			ads.ConsDB, err = consdb.New(opts.Source, copts)
		}
		if err != nil {
			return ads, err
		}

		if opts.EFD.Enabled {
			ecfg := opts.Source
			if opts.EFD.Server != "" {
				ecfg.Server = opts.EFD.Server
			}
			ads.EFD, err = efd.New(ecfg, efd.Options{
				DB:          opts.EFD.DB,
				Weather:     opts.EFD.Weather,
				Concurrency: opts.EFD.Concurrency,
			})
			if err != nil {
				return ads, err
			}
		}
		return ads, nil
	}
}

// Name returns the module name
func (m *Module) Name() string { return m.name }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Options returns the resolved options the module was built with
func (m *Module) Options() Options { return m.opts }
