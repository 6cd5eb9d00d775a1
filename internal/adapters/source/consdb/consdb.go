// Package consdb queries per-instrument exposure and quicklook rows from the
// Consolidated Database, over its REST query service or directly over Postgres
package consdb

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"logrep/internal/adapters/source"
	"logrep/internal/core/dayobs"
	"logrep/internal/core/record"
	perr "logrep/internal/platform/errors"
	"logrep/internal/platform/logger"
	"logrep/internal/platform/validate"
)

const (
	// Service is the upstream path prefix and the status/metrics label
	Service = "consdb"

	// DefaultLimit is the LIMIT used per paged statement
	DefaultLimit = 1000

	// FieldDuration is added to every exposure: obs_end - obs_start in seconds
	FieldDuration = "exp_duration"
)

// DefaultInstruments is used when Options.Instruments is empty
var DefaultInstruments = []string{"lsstcam"}

var exposureSchema = record.NewSchema(
	record.Field{Name: "exposure_id", Kind: record.KindInt},
	record.Field{Name: "exposure_name", Kind: record.KindString},
	record.Field{Name: "day_obs", Kind: record.KindInt},
	record.Field{Name: "seq_num", Kind: record.KindInt},
	record.Field{Name: "exp_time", Kind: record.KindFloat},
	record.Field{Name: "shut_time", Kind: record.KindFloat},
	record.Field{Name: "dark_time", Kind: record.KindFloat},
	record.Field{Name: "img_type", Kind: record.KindString},
	record.Field{Name: "observation_reason", Kind: record.KindString},
	record.Field{Name: "science_program", Kind: record.KindString},
	record.Field{Name: "target_name", Kind: record.KindString},
	record.Field{Name: "can_see_sky", Kind: record.KindBool},
	record.Field{Name: "band", Kind: record.KindString},
	record.Field{Name: "physical_filter", Kind: record.KindString},
	record.Field{Name: "obs_start", Kind: record.KindTime},
	record.Field{Name: "obs_end", Kind: record.KindTime},
	record.Field{Name: "obs_start_mjd", Kind: record.KindFloat},
	record.Field{Name: "obs_end_mjd", Kind: record.KindFloat},
	record.Field{Name: "exp_midpt_mjd", Kind: record.KindFloat},
	record.Field{Name: "s_ra", Kind: record.KindFloat},
	record.Field{Name: "s_dec", Kind: record.KindFloat},
	record.Field{Name: "sky_rotation", Kind: record.KindFloat},
	record.Field{Name: "airmass", Kind: record.KindFloat},
	record.Field{Name: "altitude", Kind: record.KindFloat},
	record.Field{Name: "azimuth", Kind: record.KindFloat},
	record.Field{Name: "dimm_seeing", Kind: record.KindFloat},
	record.Field{Name: "air_temp", Kind: record.KindFloat},
	record.Field{Name: "visit_id", Kind: record.KindInt},
	record.Field{Name: "zero_point_median", Kind: record.KindFloat},
	record.Field{Name: "pixel_scale_median", Kind: record.KindFloat},
	record.Field{Name: "psf_sigma_median", Kind: record.KindFloat},
)

var exposureColumns = []string{
	"e.exposure_id", "e.exposure_name", "e.day_obs", "e.seq_num", "e.exp_time", "e.shut_time", "e.dark_time",
	"e.img_type", "e.observation_reason", "e.science_program", "e.target_name", "e.can_see_sky",
	"e.band", "e.physical_filter", "e.obs_start", "e.obs_end", "e.obs_start_mjd", "e.obs_end_mjd",
	"e.exp_midpt_mjd", "e.s_ra", "e.s_dec", "e.sky_rotation", "e.airmass", "e.altitude", "e.azimuth",
	"e.dimm_seeing", "e.air_temp",
	"q.visit_id", "q.zero_point_median", "q.pixel_scale_median", "q.psf_sigma_median",
}

// ExposureSQL renders the paged exposure/quicklook join for one instrument.
// inst must already be a validated identifier
func ExposureSQL(inst string, w dayobs.Window, limit, offset int) string {
	return fmt.Sprintf(
		"SELECT %s FROM cdb_%s.exposure e JOIN cdb_%s.visit1_quicklook q ON e.exposure_id = q.visit_id "+
			"WHERE %d <= e.day_obs AND e.day_obs < %d ORDER BY e.seq_num ASC LIMIT %d OFFSET %d",
		strings.Join(exposureColumns, ", "), inst, inst, w.Min.Int(), w.Max.Int(), limit, offset,
	)
}

// Options are the service specific fetch filters
type Options struct {
	Instruments []string `json:"instruments" validate:"dive,sqlident"`
	Limit       int      `json:"limit" validate:"min=0,max=100000"`
	MaxRecords  int      `json:"max_records" validate:"min=0"`
	// SkipReconnect drops the LIMIT 1 statement run before the first fetch
	SkipReconnect bool `json:"skip_reconnect"`
}

// Adapter holds one ConsDB fetch
type Adapter struct {
	q         Querier
	warm      atomic.Bool
	opts      Options
	exposures map[string][]record.Record
	status    source.StatusMap
}

// New builds an adapter on the REST query service
func New(cfg source.Config, opts Options) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxRecords == 0 {
		opts.MaxRecords = cfg.WithDefaults().MaxRecords
	}
	opts.SkipReconnect = opts.SkipReconnect || cfg.SkipProbe
	return NewWithQuerier(NewHTTPQuerier(cfg), opts)
}

// NewWithQuerier builds an adapter on any querier (e.g. PGQuerier)
func NewWithQuerier(q Querier, opts Options) (*Adapter, error) {
	if q == nil {
		return nil, perr.Configf("consdb: nil querier")
	}
	insts := make([]string, 0, len(opts.Instruments))
	for _, i := range opts.Instruments {
		insts = append(insts, strings.ToLower(strings.TrimSpace(i)))
	}
	if len(insts) == 0 {
		insts = append(insts, DefaultInstruments...)
	}
	opts.Instruments = insts
	if err := validate.Struct(opts); err != nil {
		return nil, err
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	if opts.MaxRecords == 0 {
		opts.MaxRecords = source.DefaultMaxRecords
	}
	return &Adapter{q: q, opts: opts, exposures: map[string][]record.Record{}, status: source.StatusMap{}}, nil
}

// Name returns the service label
func (a *Adapter) Name() string { return Service }

// Fetch queries every instrument. A statement rejected by the database is
// returned; other failures are recorded per instrument
func (a *Adapter) Fetch(ctx context.Context, w dayobs.Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	log := logger.C(ctx).With().Str("component", Service).Logger()
	a.reconnect(ctx, w, &log)

	for _, inst := range a.opts.Instruments {
		name := "exposures." + inst
		st := source.Status{EndpointURL: a.q.Endpoint()}

		pages, err := source.Paginate(ctx, a.opts.Limit, a.opts.MaxRecords, func(ctx context.Context, offset, limit int) ([]map[string]any, error) {
			t, err := a.q.Query(ctx, ExposureSQL(inst, w, limit, offset))
			if err != nil {
				return nil, err
			}
			return t.Objects(), nil
		})
		st.Pages = pages.Calls
		st.Truncated = pages.Truncated
		recs := exposureSchema.ProjectAll(pages.Raw)
		for _, r := range recs {
			withDuration(r)
		}
		record.SortBy(recs, "obs_start", "seq_num")
		a.exposures[inst] = recs
		st.NumberOfRecords = len(recs)

		if err != nil {
			st.Fail(err)
			a.status[name] = st
			if perr.IsCode(err, perr.ErrorCodeQuery) {
				return perr.WithField(err, inst)
			}
			log.Warn().Err(err).Str("instrument", inst).Msg("consdb fetch failed")
			continue
		}
		if len(recs) == 0 {
			st.NoRecords = true
			log.Info().Str("instrument", inst).Msg("no records")
		}
		a.status[name] = st
	}
	return nil
}

// reconnect runs one LIMIT 1 statement, once per adapter, so a stale pooled
// connection is replaced before the first real page
func (a *Adapter) reconnect(ctx context.Context, w dayobs.Window, log *logger.Logger) {
	if a.opts.SkipReconnect || !a.warm.CompareAndSwap(false, true) {
		return
	}
	if _, err := a.q.Query(ctx, ExposureSQL(a.opts.Instruments[0], w, 1, 0)); err != nil {
		log.Debug().Err(err).Msg("reconnect query failed")
	}
}

// withDuration sets obs_end - obs_start in seconds when both are present
func withDuration(r record.Record) {
	begin, ok1 := r.Time("obs_start")
	end, ok2 := r.Time("obs_end")
	if ok1 && ok2 {
		r[FieldDuration] = end.Sub(begin).Seconds()
	}
}

// Status returns the per-endpoint status map of the last Fetch
func (a *Adapter) Status() source.StatusMap { return a.status.Clone() }

// Instruments returns the validated instrument schemas queried
func (a *Adapter) Instruments() []string { return append([]string(nil), a.opts.Instruments...) }

// Exposures returns instrument to exposure rows sorted by obs_start
func (a *Adapter) Exposures() map[string][]record.Record { return a.exposures }

// Records returns every instrument's rows in instrument order
func (a *Adapter) Records() []record.Record {
	var out []record.Record
	for _, inst := range a.opts.Instruments {
		out = append(out, a.exposures[inst]...)
	}
	return out
}

// ExposureHours sums FieldDuration per instrument, in hours
func (a *Adapter) ExposureHours() map[string]float64 {
	out := make(map[string]float64, len(a.exposures))
	for inst, recs := range a.exposures {
		var s float64
		for _, r := range recs {
			if d, ok := r.Float(FieldDuration); ok {
				s += d
			}
		}
		out[inst] = s / 3600
	}
	return out
}
