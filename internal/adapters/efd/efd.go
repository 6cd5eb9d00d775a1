// Package efd reads time series from the Engineering Facility Database, an
// InfluxDB 1.x store exposed through its JSON /query API
package efd

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"logrep/internal/adapters/source"
	"logrep/internal/core/dayobs"
	"logrep/internal/core/record"
	perr "logrep/internal/platform/errors"
	"logrep/internal/platform/logger"
	"logrep/internal/platform/validate"

	"golang.org/x/sync/errgroup"
)

const (
	// Service is the status/metrics label
	Service = "efd"

	// DefaultPath is the InfluxDB query route behind the RSP gateway
	DefaultPath = "/influxdb-enterprise-data/query"

	// DefaultDB is the InfluxDB database holding SAL topics
	DefaultDB = "efd"

	// DefaultSalIndex selects the main telescope scheduler
	DefaultSalIndex = 2

	// TargetTopic carries one event per scheduler target, including the slew
	TargetTopic = "lsst.sal.Scheduler.logevent_target"

	// FieldTime is the series timestamp column
	FieldTime = "time"
)

// Topic is one weather series: a SAL topic and the fields read from it
type Topic struct {
	Name   string
	Topic  string
	Fields []string
}

// WeatherTopics are the environment series read by Weather
var WeatherTopics = []Topic{
	{Name: "ess_wind", Topic: "lsst.sal.ESS.airFlow", Fields: []string{"speed", "direction"}},
	{Name: "ess_temp", Topic: "lsst.sal.ESS.temperature", Fields: []string{"temperatureItem0"}},
	{Name: "ess_dewpoint", Topic: "lsst.sal.ESS.dewPoint", Fields: []string{"dewPointItem"}},
	{Name: "ess_humidity", Topic: "lsst.sal.ESS.relativeHumidity", Fields: []string{"relativeHumidityItem"}},
	{Name: "ess_pressure", Topic: "lsst.sal.ESS.pressure", Fields: []string{"pressureItem0"}},
	{Name: "dimm_fwhm", Topic: "lsst.sal.DIMM.logevent_dimmMeasurement", Fields: []string{"fwhm"}},
}

var targetSchema = record.NewSchema(
	record.Field{Name: FieldTime, Kind: record.KindTime},
	record.Field{Name: "blockId", Kind: record.KindInt},
	record.Field{Name: "sequenceDuration", Kind: record.KindFloat},
	record.Field{Name: "sequenceNVisits", Kind: record.KindInt},
	record.Field{Name: "sequenceVisits", Kind: record.KindInt},
	record.Field{Name: "slewTime", Kind: record.KindFloat},
)

// Options are the store specific query settings
type Options struct {
	Path     string `json:"path"`
	DB       string `json:"db" validate:"omitempty,sqlident"`
	SalIndex int    `json:"sal_index" validate:"min=0"`
	// Weather adds the environment series to Fetch
	Weather bool `json:"weather"`
	// Concurrency bounds the in-flight weather queries; zero means all at once
	Concurrency int `json:"concurrency" validate:"min=0,max=16"`
}

// Adapter holds one EFD fetch
type Adapter struct {
	c       *source.Client
	opts    Options
	targets []record.Record
	weather map[string][]record.Record
	status  source.StatusMap
}

var _ source.Adapter = (*Adapter)(nil)

// New validates cfg and opts; it performs no I/O
func New(cfg source.Config, opts Options) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validate.Struct(opts); err != nil {
		return nil, err
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.DB == "" {
		opts.DB = DefaultDB
	}
	if opts.SalIndex == 0 {
		opts.SalIndex = DefaultSalIndex
	}
	return &Adapter{
		c:       source.NewClient(Service, cfg),
		opts:    opts,
		weather: map[string][]record.Record{},
		status:  source.StatusMap{},
	}, nil
}

// Name returns the service label
func (a *Adapter) Name() string { return Service }

// Fetch loads scheduler targets and, when enabled, the weather series.
// Only statements rejected by the store are returned
func (a *Adapter) Fetch(ctx context.Context, w dayobs.Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	ctx, cancel := source.WithBudget(ctx, a.c.Config().Budget)
	defer cancel()

	a.reconnect(ctx, w)
	if _, err := a.Targets(ctx, w); err != nil {
		return err
	}
	if a.opts.Weather {
		if _, err := a.Weather(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// reconnect sends one LIMIT 1 target select, once per client, ahead of the
// first real query
func (a *Adapter) reconnect(ctx context.Context, w dayobs.Window) {
	stmt := SelectSQL(a.opts.DB, TargetTopic, targetSchema.Names()[1:2], w, a.opts.SalIndex) + " LIMIT 1"
	a.c.Reconnect(ctx, "targets", func(ctx context.Context) error {
		_, err := a.c.Get(ctx, "targets_reconnect", a.opts.Path, url.Values{"db": {a.opts.DB}, "q": {stmt}})
		return err
	})
}

// Targets queries the scheduler target events of the window, sorted by time
func (a *Adapter) Targets(ctx context.Context, w dayobs.Window) ([]record.Record, error) {
	stmt := SelectSQL(a.opts.DB, TargetTopic, targetSchema.Names()[1:], w, a.opts.SalIndex)
	raw, st, err := a.query(ctx, "targets", stmt, w.End())
	a.status["targets"] = st
	a.targets = targetSchema.ProjectAll(raw)
	record.SortBy(a.targets, FieldTime)
	return a.targets, err
}

// Weather runs one query per WeatherTopics entry concurrently and returns the
// series by name. A failing topic leaves the others intact
func (a *Adapter) Weather(ctx context.Context, w dayobs.Window) (map[string][]record.Record, error) {
	type result struct {
		raw []map[string]any
		st  source.Status
		err error
	}
	results := make([]result, len(WeatherTopics))

	g, gctx := errgroup.WithContext(ctx)
	if a.opts.Concurrency > 0 {
		g.SetLimit(a.opts.Concurrency)
	}
	for i, tp := range WeatherTopics {
		g.Go(func() error {
			stmt := SelectSQL(a.opts.DB, tp.Topic, tp.Fields, w, -1)
			raw, st, err := a.query(gctx, tp.Name, stmt, w.End())
			results[i] = result{raw: raw, st: st, err: err}
			// query errors are collected below so siblings keep running
			return nil
		})
	}
	_ = g.Wait()

	var qerr error
	for i, tp := range WeatherTopics {
		r := results[i]
		a.status[tp.Name] = r.st
		recs := weatherSchema(tp).ProjectAll(r.raw)
		record.SortBy(recs, FieldTime)
		a.weather[tp.Name] = recs
		if r.err != nil && qerr == nil {
			qerr = r.err
		}
	}
	return a.weatherCopy(), qerr
}

func weatherSchema(tp Topic) record.Schema {
	fields := []record.Field{{Name: FieldTime, Kind: record.KindTime}}
	for _, f := range tp.Fields {
		fields = append(fields, record.Field{Name: f, Kind: record.KindFloat})
	}
	return record.NewSchema(fields...)
}

func (a *Adapter) weatherCopy() map[string][]record.Record {
	out := make(map[string][]record.Record, len(a.weather))
	for k, v := range a.weather {
		out[k] = v
	}
	return out
}

// query runs one InfluxQL statement. Transport and HTTP failures land in the
// returned Status only; a statement error reported by the store is also returned.
// Results are cached once until has passed
func (a *Adapter) query(ctx context.Context, name, stmt string, until time.Time) ([]map[string]any, source.Status, error) {
	cfg := a.c.Config()
	params := url.Values{"db": {a.opts.DB}, "q": {stmt}}
	st := source.Status{EndpointURL: a.c.URL(a.opts.Path)}
	log := logger.C(ctx).With().Str("component", Service).Str("endpoint", name).Logger()

	if cfg.Cache != nil {
		raw, ok := cfg.Cache.Get(Service, name, params)
		cfg.Observer.Cache(Service, ok)
		if ok {
			st.Cached = true
			st.NumberOfRecords = len(raw)
			st.NoRecords = len(raw) == 0
			return raw, st, nil
		}
	}

	body, err := a.c.Get(ctx, name, a.opts.Path, params)
	st.Pages = 1
	var raw []map[string]any
	if err == nil {
		raw, err = Decode(body)
	}
	st.NumberOfRecords = len(raw)
	if err != nil {
		st.Fail(err)
		cfg.Observer.Failure(Service, perr.CodeOf(err).String())
		if perr.IsCode(err, perr.ErrorCodeQuery) {
			return raw, st, perr.WithField(err, name)
		}
		log.Warn().Err(err).Msg("efd query failed")
		return raw, st, nil
	}
	cfg.Observer.Page(Service, name, len(raw))
	if len(raw) == 0 {
		st.NoRecords = true
		log.Info().Msg("no records")
	}
	if cfg.Cache != nil && a.c.Settled(until) {
		if cerr := cfg.Cache.Put(Service, name, params, raw); cerr != nil {
			log.Warn().Err(cerr).Msg("cache write failed")
		}
	}
	return raw, st, nil
}

// SelectSQL renders an InfluxQL select of fields over the window instants.
// salIndex < 0 omits the index filter
func SelectSQL(db, topic string, fields []string, w dayobs.Window, salIndex int) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = fmt.Sprintf("%q", f)
	}
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT %s FROM "%s"."autogen"."%s" WHERE time >= '%s' AND time < '%s'`,
		strings.Join(cols, ","), db, topic,
		w.Start().Format(time.RFC3339), w.End().Format(time.RFC3339))
	if salIndex >= 0 {
		fmt.Fprintf(&b, ` AND "salIndex" = %d`, salIndex)
	}
	return b.String()
}

type response struct {
	Results []struct {
		StatementID int      `json:"statement_id"`
		Series      []series `json:"series"`
		Error       string   `json:"error"`
	} `json:"results"`
	Error string `json:"error"`
}

type series struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Values  [][]any  `json:"values"`
}

// Decode flattens an InfluxDB /query response into row objects keyed by
// column; every series of every statement is concatenated
func Decode(body []byte) ([]map[string]any, error) {
	var resp response
	if err := record.DecodeValue(body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, perr.Queryf("efd: %s", resp.Error)
	}
	var out []map[string]any
	for _, res := range resp.Results {
		if res.Error != "" {
			return out, perr.Queryf("efd statement %d: %s", res.StatementID, res.Error)
		}
		for _, s := range res.Series {
			for _, row := range s.Values {
				obj := make(map[string]any, len(s.Columns))
				for i, c := range s.Columns {
					if i < len(row) {
						obj[c] = row[i]
					}
				}
				out = append(out, obj)
			}
		}
	}
	return out, nil
}

// Status returns the per-endpoint status map of the last Fetch
func (a *Adapter) Status() source.StatusMap { return a.status.Clone() }

// Records returns the scheduler targets sorted by time
func (a *Adapter) Records() []record.Record { return a.targets }

// Series returns the named weather series of the last Weather call
func (a *Adapter) Series(name string) []record.Record { return a.weather[name] }

// SeriesNames returns the fetched weather series names, sorted
func (a *Adapter) SeriesNames() []string {
	out := make([]string, 0, len(a.weather))
	for k := range a.weather {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SlewSeconds sums slewTime over the targets and counts the nonzero slews
func (a *Adapter) SlewSeconds() (float64, int) {
	var sum float64
	n := 0
	for _, r := range a.targets {
		s, ok := r.Float("slewTime")
		if !ok || s <= 0 {
			continue
		}
		sum += s
		n++
	}
	return sum, n
}
